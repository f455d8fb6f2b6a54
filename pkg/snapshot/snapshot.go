// Package snapshot models the UI page source as a queryable XML tree.
// A snapshot is immutable and fetched fresh for every interaction
// attempt; nothing in this package caches document state between polls.
package snapshot

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/devicelab-dev/uibridge/pkg/core"
)

// Node is a single element in the UI tree.
type Node = xmlquery.Node

// Snapshot wraps a parsed page source document.
type Snapshot struct {
	doc      *xmlquery.Node
	raw      string
	platform core.Platform
}

// Parse parses raw page-source XML into a Snapshot.
// Platform is auto-detected from iOS-specific markers, the same way the
// Appium page source formats distinguish themselves.
func Parse(raw string) (*Snapshot, error) {
	doc, err := xmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, core.ErrMalformedSnapshot.WithCause(err)
	}
	if firstElement(doc) == nil {
		return nil, core.ErrMalformedSnapshot.WithMessage("page source contains no elements")
	}

	platform := core.PlatformAndroid
	if strings.Contains(raw, "XCUIElementType") || strings.Contains(raw, "AppiumAUT") {
		platform = core.PlatformIOS
	}

	return &Snapshot{doc: doc, raw: raw, platform: platform}, nil
}

// Raw returns the original page source string.
func (s *Snapshot) Raw() string {
	return s.raw
}

// Platform returns the detected attribute schema.
func (s *Snapshot) Platform() core.Platform {
	return s.platform
}

// QueryAll evaluates an XPath expression and returns all matching nodes.
// A malformed expression is a data error.
func (s *Snapshot) QueryAll(expr string) ([]*Node, error) {
	nodes, err := xmlquery.QueryAll(s.doc, expr)
	if err != nil {
		return nil, core.ErrMalformedSnapshot.WithMessage("invalid expression %q", expr).WithCause(err)
	}
	return nodes, nil
}

// Query returns the first node matching the expression, or nil.
func (s *Snapshot) Query(expr string) (*Node, error) {
	nodes, err := s.QueryAll(expr)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// Elements returns every element node in document order.
func (s *Snapshot) Elements() []*Node {
	var out []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(s.doc)
	return out
}

// Attr returns a named attribute value, or "" when absent.
func Attr(n *Node, name string) string {
	if n == nil {
		return ""
	}
	return n.SelectAttr(name)
}

// Depth returns the number of element ancestors above the node.
// Deeper nodes are more specific matches during text search.
func Depth(n *Node) int {
	depth := 0
	for p := n.Parent; p != nil && p.Type == xmlquery.ElementNode; p = p.Parent {
		depth++
	}
	return depth
}

// Text returns the node's own text content, trimmed.
func Text(n *Node) string {
	if n == nil {
		return ""
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				return t
			}
		}
	}
	return ""
}

func firstElement(doc *xmlquery.Node) *Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}
