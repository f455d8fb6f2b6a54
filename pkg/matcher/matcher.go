// Package matcher finds the single best node for a location expression
// or a free-text query. Expression matching retries a deterministic set
// of normalization variants before giving up; text matching scores
// every node in the snapshot and picks a winner by a fixed tie-break.
package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// matchableAttrs are the attributes carrying human-readable element
// identity, in the order they are probed.
var matchableAttrs = []string{"name", "label", "value"}

var (
	singleQuoteEqRe = regexp.MustCompile(`@(\w+)='([^']*)'`)
	attrEqRe        = regexp.MustCompile(`@(\w+)=['"]([^'"]*)['"]`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// NormalizeQuotes rewrites single-quoted attribute equality comparisons
// to double-quoted form, the canonical shape for variant generation.
func NormalizeQuotes(expr string) string {
	return singleQuoteEqRe.ReplaceAllString(expr, `@$1="$2"`)
}

// Variants returns the deterministic expression variants tried when the
// literal expression matches nothing: the original, the quote-normalized
// form, a whitespace-normalizing predicate form and a substring
// containment form. Duplicates are dropped while preserving order.
func Variants(expr string) []string {
	normalized := NormalizeQuotes(expr)
	candidates := []string{
		expr,
		normalized,
		attrEqRe.ReplaceAllString(normalized, `@$1[normalize-space(.)="$2"]`),
		attrEqRe.ReplaceAllString(normalized, `@$1[contains(., "$2")]`),
	}

	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, v := range candidates {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ExtractAttributeQuery pulls the compared value out of a raw expression
// that encodes a name/label/value equality, for use as a free-text
// fallback query.
func ExtractAttributeQuery(expr string) (attr, value string, ok bool) {
	for _, a := range matchableAttrs {
		re := regexp.MustCompile(`@` + a + `=['"]([^'"]*)['"]`)
		if m := re.FindStringSubmatch(expr); m != nil {
			return a, strings.TrimSpace(m[1]), true
		}
	}
	return "", "", false
}

// MatchByExpression evaluates the expression against the snapshot,
// walking the variant set and then retrying attribute equalities
// against every node-type tag in the inventory. The first non-empty
// result wins, returning both the node and the variant that found it
// so callers can re-locate the element through a live session. A nil
// node with a nil error means nothing matched.
func MatchByExpression(s *snapshot.Snapshot, inv *snapshot.TypeInventory, expr string) (*snapshot.Node, string, error) {
	for _, v := range Variants(expr) {
		n, err := s.Query(v)
		if err != nil {
			return nil, "", err
		}
		if n != nil {
			return n, v, nil
		}
	}

	attr, value, ok := ExtractAttributeQuery(expr)
	if !ok {
		return nil, "", nil
	}
	for _, tag := range inv.Tags(s) {
		retries := []string{
			fmt.Sprintf(`//%s[@%s='%s']`, tag, attr, value),
			fmt.Sprintf(`//%s[normalize-space(@%s)='%s']`, tag, attr, value),
			fmt.Sprintf(`//%s[@%s="%s"]`, tag, attr, value),
			fmt.Sprintf(`//%s[normalize-space(@%s)="%s"]`, tag, attr, value),
		}
		for _, v := range retries {
			n, err := s.Query(v)
			if err != nil {
				return nil, "", err
			}
			if n != nil {
				return n, v, nil
			}
		}
	}
	return nil, "", nil
}

// Candidate is a scored text-match result with the geometry needed to
// dispatch a coordinate gesture.
type Candidate struct {
	Node   *snapshot.Node
	Score  int
	Bounds core.Bounds
	Depth  int
}

// Center returns the candidate's tap coordinates.
func (c Candidate) Center() (int, int) {
	return c.Bounds.Center()
}

// Match strengths for text queries.
const (
	ScoreExact    = 3
	ScoreContains = 2
)

// MatchByText scans every node comparing the normalized query against
// the name/label/value attributes. Exact equality scores higher than
// substring containment; nodes failing the eligibility predicate are
// discarded. Ties break on highest vertical position, then greatest
// depth, then smallest area. ok=false means no eligible node matched.
func MatchByText(s *snapshot.Snapshot, ev geometry.Evaluator, query string) (Candidate, bool) {
	target := NormalizeText(query)
	if target == "" {
		return Candidate{}, false
	}

	var eligible []Candidate
	for _, n := range s.Elements() {
		score := scoreNode(n, target)
		if score == 0 {
			continue
		}
		if !geometry.Eligible(n, ev) {
			continue
		}
		eligible = append(eligible, Candidate{
			Node:   n,
			Score:  score,
			Bounds: ev.Bounds(n),
			Depth:  snapshot.Depth(n),
		})
	}
	if len(eligible) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Bounds.Y != b.Bounds.Y {
			return a.Bounds.Y > b.Bounds.Y
		}
		if a.Depth != b.Depth {
			return a.Depth > b.Depth
		}
		return a.Bounds.Area() < b.Bounds.Area()
	})
	return eligible[0], true
}

func scoreNode(n *snapshot.Node, target string) int {
	for _, attr := range matchableAttrs {
		v := NormalizeText(snapshot.Attr(n, attr))
		if v == "" {
			continue
		}
		if v == target {
			return ScoreExact
		}
	}
	for _, attr := range matchableAttrs {
		v := NormalizeText(snapshot.Attr(n, attr))
		if v != "" && strings.Contains(v, target) {
			return ScoreContains
		}
	}
	return 0
}

// NormalizeText strips one layer of surrounding quotes, collapses
// internal whitespace and case-folds. Queries and attribute values go
// through the same normalization so comparison is symmetric.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 0 && (s[0] == '\'' || s[0] == '"') {
		s = s[1:]
	}
	if len(s) > 0 && (s[len(s)-1] == '\'' || s[len(s)-1] == '"') {
		s = s[:len(s)-1]
	}
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	return strings.ToLower(s)
}

// ElementToExpression builds an absolute location expression for a node
// by walking to the root, predicating each level on its matchable
// attributes and, when same-tag siblings would otherwise be ambiguous,
// its sibling position. Attribute values are emitted as valid XPath 1.0
// string literals regardless of the quote characters they contain.
func ElementToExpression(n *snapshot.Node) (string, error) {
	if n == nil {
		return "", core.ErrUnconstructable.WithMessage("cannot construct expression for nil node")
	}

	var parts []string
	for cur := n; cur != nil && cur.Type == xmlquery.ElementNode; cur = cur.Parent {
		tag := cur.Data
		if tag == "" {
			return "", core.ErrUnconstructable.WithMessage("element in ancestor chain has no type tag")
		}

		var predicates []string
		for _, attr := range matchableAttrs {
			if v := snapshot.Attr(cur, attr); v != "" {
				predicates = append(predicates, fmt.Sprintf("@%s=%s", attr, xpathLiteral(v)))
			}
		}
		if len(predicates) == 0 {
			if pos := siblingPosition(cur); pos > 0 {
				predicates = append(predicates, fmt.Sprintf("position()=%d", pos))
			}
		}

		part := tag
		if len(predicates) > 0 {
			part = fmt.Sprintf("%s[%s]", tag, strings.Join(predicates, " and "))
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "", core.ErrUnconstructable.WithMessage("node has no element ancestry")
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), nil
}

// xpathLiteral renders a value as an XPath 1.0 string literal. XPath
// has no escape sequences inside literals, so a value with single
// quotes is wrapped in double quotes and a value with both quote kinds
// is assembled from single-quoted pieces with concat().
func xpathLiteral(v string) string {
	if !strings.Contains(v, "'") {
		return "'" + v + "'"
	}
	if !strings.Contains(v, `"`) {
		return `"` + v + `"`
	}
	parts := strings.Split(v, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

// siblingPosition returns the node's 1-based position among same-tag
// siblings, or 0 when the node is an only child of its tag and needs no
// position predicate.
func siblingPosition(n *snapshot.Node) int {
	if n.Parent == nil {
		return 0
	}
	pos, total := 0, 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != xmlquery.ElementNode || sib.Data != n.Data {
			continue
		}
		total++
		if sib == n {
			pos = total
		}
	}
	if total <= 1 {
		return 0
	}
	return pos
}
