package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

func parse(t *testing.T, xml string) *snapshot.Snapshot {
	t.Helper()
	s, err := snapshot.Parse(xml)
	require.NoError(t, err)
	return s
}

func TestNormalizeQuotes(t *testing.T) {
	assert.Equal(t,
		`//XCUIElementTypeButton[@name="Login"]`,
		NormalizeQuotes(`//XCUIElementTypeButton[@name='Login']`))

	// Already double-quoted expressions pass through.
	assert.Equal(t,
		`//b[@name="Login"]`,
		NormalizeQuotes(`//b[@name="Login"]`))
}

func TestVariants(t *testing.T) {
	vs := Variants(`//b[@name='Login']`)
	assert.Equal(t, []string{
		`//b[@name='Login']`,
		`//b[@name="Login"]`,
		`//b[@name[normalize-space(.)="Login"]]`,
		`//b[@name[contains(., "Login")]]`,
	}, vs)
}

func TestVariants_Dedup(t *testing.T) {
	// Double-quoted input makes the original equal its normalized form.
	vs := Variants(`//b[@name="Login"]`)
	assert.Len(t, vs, 3)
	assert.Equal(t, `//b[@name="Login"]`, vs[0])
}

func TestExtractAttributeQuery(t *testing.T) {
	attr, value, ok := ExtractAttributeQuery(`//b[@name='Login ']`)
	assert.True(t, ok)
	assert.Equal(t, "name", attr)
	assert.Equal(t, "Login", value)

	attr, value, ok = ExtractAttributeQuery(`//b[@label="Submit"]`)
	assert.True(t, ok)
	assert.Equal(t, "label", attr)
	assert.Equal(t, "Submit", value)

	_, _, ok = ExtractAttributeQuery(`//b[@resource-id="x"]`)
	assert.False(t, ok)
}

func TestMatchByExpression_Direct(t *testing.T) {
	s := parse(t, `<AppiumAUT><XCUIElementTypeButton name="Login"/></AppiumAUT>`)
	inv := &snapshot.TypeInventory{}

	n, matched, err := MatchByExpression(s, inv, `//XCUIElementTypeButton[@name="Login"]`)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, `//XCUIElementTypeButton[@name="Login"]`, matched)
}

func TestMatchByExpression_QuoteVariant(t *testing.T) {
	// Document attribute needs double quotes in the expression; the
	// single-quoted original still matches through normalization.
	s := parse(t, `<AppiumAUT><XCUIElementTypeButton name="O'Brien"/></AppiumAUT>`)
	inv := &snapshot.TypeInventory{}

	n, matched, err := MatchByExpression(s, inv, `//XCUIElementTypeButton[@name="O'Brien"]`)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotEmpty(t, matched)
}

func TestMatchByExpression_InventoryRetry(t *testing.T) {
	// The expression names the wrong element type; the node-type
	// inventory retry finds the attribute on the real tag.
	s := parse(t, `<AppiumAUT><XCUIElementTypeStaticText name="Login"/></AppiumAUT>`)
	inv := &snapshot.TypeInventory{}

	n, matched, err := MatchByExpression(s, inv, `//XCUIElementTypeButton[@name='Login']`)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "XCUIElementTypeStaticText", n.Data)
	assert.Contains(t, matched, "XCUIElementTypeStaticText")
}

func TestMatchByExpression_NoMatch(t *testing.T) {
	s := parse(t, `<AppiumAUT><XCUIElementTypeButton name="Other"/></AppiumAUT>`)
	inv := &snapshot.TypeInventory{}

	n, matched, err := MatchByExpression(s, inv, `//XCUIElementTypeButton[@name='Login']`)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, matched)
}

func TestMatchByText_ExactBeatsContains(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeStaticText name="Login please" x="0" y="0" width="100" height="20"/>
		<XCUIElementTypeButton name="Login" x="0" y="100" width="100" height="20"/>
	</AppiumAUT>`)
	ev := geometry.ForPlatform(core.PlatformIOS)

	cand, ok := MatchByText(s, ev, "Login")
	require.True(t, ok)
	assert.Equal(t, ScoreExact, cand.Score)
	assert.Equal(t, "XCUIElementTypeButton", cand.Node.Data)
}

func TestMatchByText_CaseFoldContains(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeStaticText label="Welcome to LOGIN screen" x="0" y="0" width="100" height="20"/>
	</AppiumAUT>`)
	ev := geometry.ForPlatform(core.PlatformIOS)

	cand, ok := MatchByText(s, ev, "login")
	require.True(t, ok)
	assert.Equal(t, ScoreContains, cand.Score)
}

func TestMatchByText_TieBreakLowerOnScreen(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeButton name="OK" x="0" y="50" width="100" height="20"/>
		<XCUIElementTypeButton name="OK" x="0" y="200" width="100" height="20"/>
	</AppiumAUT>`)
	ev := geometry.ForPlatform(core.PlatformIOS)

	cand, ok := MatchByText(s, ev, "OK")
	require.True(t, ok)
	assert.Equal(t, 200, cand.Bounds.Y)
}

func TestMatchByText_TieBreakDeeperNode(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeOther name="OK" x="0" y="50" width="100" height="20">
			<XCUIElementTypeButton name="OK" x="0" y="50" width="100" height="20"/>
		</XCUIElementTypeOther>
	</AppiumAUT>`)
	ev := geometry.ForPlatform(core.PlatformIOS)

	cand, ok := MatchByText(s, ev, "OK")
	require.True(t, ok)
	assert.Equal(t, "XCUIElementTypeButton", cand.Node.Data)
}

func TestMatchByText_SkipsIneligibleNodes(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeButton name="OK" visible="false" x="0" y="0" width="100" height="20"/>
		<XCUIElementTypeButton name="OK" x="0" y="0" width="0" height="0"/>
	</AppiumAUT>`)
	ev := geometry.ForPlatform(core.PlatformIOS)

	_, ok := MatchByText(s, ev, "OK")
	assert.False(t, ok)
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Login"`, "login"},
		{`'Login'`, "login"},
		{"  Login   Now  ", "login now"},
		{"Tab\tSeparated", "tab separated"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeText(tt.in), "input %q", tt.in)
	}
}

func TestElementToExpression(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeWindow>
			<XCUIElementTypeButton name="Login"/>
		</XCUIElementTypeWindow>
	</AppiumAUT>`)

	button, err := s.Query(`//XCUIElementTypeButton`)
	require.NoError(t, err)
	require.NotNil(t, button)

	expr, err := ElementToExpression(button)
	require.NoError(t, err)
	assert.Equal(t,
		`/AppiumAUT/XCUIElementTypeWindow/XCUIElementTypeButton[@name='Login']`,
		expr)
}

func TestElementToExpression_SiblingPosition(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeCell/>
		<XCUIElementTypeCell/>
	</AppiumAUT>`)

	cells, err := s.QueryAll(`//XCUIElementTypeCell`)
	require.NoError(t, err)
	require.Len(t, cells, 2)

	expr, err := ElementToExpression(cells[1])
	require.NoError(t, err)
	assert.Equal(t, `/AppiumAUT/XCUIElementTypeCell[position()=2]`, expr)
}

func TestElementToExpression_AttributesSuppressPosition(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeCell name="first"/>
		<XCUIElementTypeCell name="second"/>
	</AppiumAUT>`)

	cells, err := s.QueryAll(`//XCUIElementTypeCell`)
	require.NoError(t, err)

	expr, err := ElementToExpression(cells[1])
	require.NoError(t, err)
	assert.Equal(t, `/AppiumAUT/XCUIElementTypeCell[@name='second']`, expr)
}

func TestElementToExpression_SingleQuoteValue(t *testing.T) {
	// XPath 1.0 has no literal escaping; apostrophes force a
	// double-quoted literal.
	s := parse(t, `<AppiumAUT><XCUIElementTypeButton name="O'Brien"/></AppiumAUT>`)

	button, err := s.Query(`//XCUIElementTypeButton`)
	require.NoError(t, err)

	expr, err := ElementToExpression(button)
	require.NoError(t, err)
	assert.Equal(t, `/AppiumAUT/XCUIElementTypeButton[@name="O'Brien"]`, expr)
}

func TestElementToExpression_SingleQuoteRoundTrip(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeWindow>
			<XCUIElementTypeButton name="Don't Allow"/>
		</XCUIElementTypeWindow>
	</AppiumAUT>`)

	button, err := s.Query(`//XCUIElementTypeButton`)
	require.NoError(t, err)

	expr, err := ElementToExpression(button)
	require.NoError(t, err)

	inv := &snapshot.TypeInventory{}
	n, _, err := MatchByExpression(s, inv, expr)
	require.NoError(t, err)
	assert.Equal(t, button, n)
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Login", `'Login'`},
		{"O'Brien", `"O'Brien"`},
		{`Say "hi"`, `'Say "hi"'`},
		{`It's "big"`, `concat('It', "'", 's "big"')`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, xpathLiteral(tt.in), "input %q", tt.in)
	}
}

func TestElementToExpression_NilNode(t *testing.T) {
	_, err := ElementToExpression(nil)
	assert.ErrorIs(t, err, core.ErrUnconstructable)
}

func TestElementToExpression_RoundTrip(t *testing.T) {
	s := parse(t, `<AppiumAUT>
		<XCUIElementTypeWindow>
			<XCUIElementTypeOther>
				<XCUIElementTypeButton name="Save" label="Save changes"/>
			</XCUIElementTypeOther>
		</XCUIElementTypeWindow>
	</AppiumAUT>`)

	button, err := s.Query(`//XCUIElementTypeButton`)
	require.NoError(t, err)

	expr, err := ElementToExpression(button)
	require.NoError(t, err)

	inv := &snapshot.TypeInventory{}
	n, _, err := MatchByExpression(s, inv, expr)
	require.NoError(t, err)
	assert.Equal(t, button, n)
}
