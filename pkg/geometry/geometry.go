// Package geometry converts raw node attributes into screen bounds and
// visibility predicates. The two Appium page-source schemas are handled
// by one Evaluator per platform: iOS exposes explicit x/y/width/height
// attributes, Android packs everything into a "[x1,y1][x2,y2]" bounds
// string. Parsing failures degrade to sentinel bounds (width/height 0,
// origin -1) so a single unmeasurable node drops out of matching
// instead of aborting the query.
package geometry

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// Evaluator reads platform-specific geometry and visibility attributes.
type Evaluator interface {
	// Bounds returns the node's screen rectangle, or sentinel bounds
	// when the attributes are missing or unparsable.
	Bounds(n *snapshot.Node) core.Bounds

	// Visible reports the node's visibility attribute, defaulting to
	// true when the attribute is absent.
	Visible(n *snapshot.Node) bool
}

// ForPlatform selects the attribute schema for a snapshot platform.
func ForPlatform(p core.Platform) Evaluator {
	if p == core.PlatformIOS {
		return iosEvaluator{}
	}
	return androidEvaluator{}
}

// Enabled reads the boolean-like "enabled" attribute, defaulting false.
func Enabled(n *snapshot.Node) bool {
	return strings.EqualFold(snapshot.Attr(n, "enabled"), "true")
}

// Eligible reports whether a node can produce interaction coordinates:
// visible with a positive size at a non-negative origin.
func Eligible(n *snapshot.Node, ev Evaluator) bool {
	return ev.Visible(n) && ev.Bounds(n).Valid()
}

// sentinel marks a node whose geometry could not be parsed.
var sentinel = core.Bounds{X: -1, Y: -1}

// iosEvaluator parses the XCUITest schema: x, y, width, height and a
// "visible" attribute.
type iosEvaluator struct{}

func (iosEvaluator) Bounds(n *snapshot.Node) core.Bounds {
	x, okX := atoi(snapshot.Attr(n, "x"))
	y, okY := atoi(snapshot.Attr(n, "y"))
	if !okX || !okY {
		x, y = -1, -1
	}
	w, okW := atoi(snapshot.Attr(n, "width"))
	h, okH := atoi(snapshot.Attr(n, "height"))
	if !okW || !okH {
		w, h = 0, 0
	}
	return core.Bounds{X: x, Y: y, Width: w, Height: h}
}

func (iosEvaluator) Visible(n *snapshot.Node) bool {
	v := snapshot.Attr(n, "visible")
	return v == "" || strings.EqualFold(v, "true")
}

// androidEvaluator parses the UiAutomator2 schema: a combined
// "[x1,y1][x2,y2]" bounds attribute and a "displayed" attribute.
// The center of the resulting bounds is the true rectangle midpoint
// ((x1+x2)/2, (y1+y2)/2), never a size value reused as a position.
type androidEvaluator struct{}

var boundsRe = regexp.MustCompile(`^\[(\d+),(\d+)\]\[(\d+),(\d+)\]$`)

func (androidEvaluator) Bounds(n *snapshot.Node) core.Bounds {
	m := boundsRe.FindStringSubmatch(snapshot.Attr(n, "bounds"))
	if m == nil {
		return sentinel
	}
	x1, _ := strconv.Atoi(m[1])
	y1, _ := strconv.Atoi(m[2])
	x2, _ := strconv.Atoi(m[3])
	y2, _ := strconv.Atoi(m[4])
	return core.Bounds{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func (androidEvaluator) Visible(n *snapshot.Node) bool {
	v := snapshot.Attr(n, "displayed")
	return v == "" || strings.EqualFold(v, "true")
}

func atoi(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return v, true
}
