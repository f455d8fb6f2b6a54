package engine

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/mapping"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// SetElementText types text into the element identified by a logical
// name or path expression. With append false the field is cleared
// first. The element must be visible and enabled; otherwise the
// operation fails with NotInteractable without attempting entry.
func (e *Engine) SetElementText(index int, name, text string, append bool) error {
	if name == "" {
		return core.ErrInvalidArgument.WithMessage("element name must not be empty")
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return err
	}
	snap, err := e.fetchSnapshot(conn)
	if err != nil {
		return fmt.Errorf("set text for %q on device %d: %w", name, index, err)
	}

	node, expr, err := e.locate(index, snap, t)
	if err != nil {
		return fmt.Errorf("set text for %q on device %d: %w", name, index, err)
	}
	if node == nil {
		return fmt.Errorf("set text for %q on device %d: element not found", name, index)
	}
	ev := geometry.ForPlatform(snap.Platform())
	visible := ev.Visible(node)
	enabled := geometry.Enabled(node)
	if !visible || !enabled {
		return core.ErrNotInteractable.WithMessage(
			"element %q is not editable (visible=%t, enabled=%t)", name, visible, enabled)
	}

	id, err := conn.FindElement(expr)
	if err != nil {
		return fmt.Errorf("set text for %q on device %d: %w", name, index, err)
	}
	if !append {
		if err := conn.Clear(id); err != nil {
			return fmt.Errorf("set text for %q on device %d: %w", name, index, err)
		}
	}
	if err := conn.SendKeys(id, text); err != nil {
		return fmt.Errorf("set text for %q on device %d: %w", name, index, err)
	}
	return nil
}

// GetElementText returns the element's text, falling back to the
// "value" attribute when the node carries no text content. An empty
// result is returned as "" with a logged warning, not an error.
func (e *Engine) GetElementText(index int, name string) (string, error) {
	if name == "" {
		return "", core.ErrInvalidArgument.WithMessage("element name must not be empty")
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return "", err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return "", err
	}
	snap, err := e.fetchSnapshot(conn)
	if err != nil {
		return "", fmt.Errorf("get text for %q on device %d: %w", name, index, err)
	}

	node, _, err := e.locate(index, snap, t)
	if err != nil {
		return "", fmt.Errorf("get text for %q on device %d: %w", name, index, err)
	}
	if node == nil {
		return "", fmt.Errorf("get text for %q on device %d: element not found", name, index)
	}

	text := nodeText(node)
	if text == "" {
		e.log.Warn("element has no text",
			zap.String("element", name),
			zap.Int("device", index))
	}
	return text, nil
}

// GetElementTextByID returns the text of the element with the given
// accessibility identifier, through the live session.
func (e *Engine) GetElementTextByID(index int, id string) (string, error) {
	if id == "" {
		return "", core.ErrInvalidArgument.WithMessage("element id must not be empty")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return "", err
	}
	handle, err := conn.FindElementByID(id)
	if err != nil {
		return "", fmt.Errorf("get text by id %q on device %d: %w", id, index, err)
	}
	text, err := conn.ElementText(handle)
	if err != nil {
		return "", fmt.Errorf("get text by id %q on device %d: %w", id, index, err)
	}
	return text, nil
}

// GetElementTextByExpression returns the text of the element matched by
// a logical name or raw expression, through the live session.
func (e *Engine) GetElementTextByExpression(index int, name string) (string, error) {
	if name == "" {
		return "", core.ErrInvalidArgument.WithMessage("element name must not be empty")
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return "", err
	}

	expr := name
	if !strings.HasPrefix(name, "/") {
		resolved, ok, err := mapping.Resolve(dev.MappingPath, name)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("get text by expression %q on device %d: no mapping entry", name, index)
		}
		expr = resolved
	}

	handle, err := conn.FindElement(expr)
	if err != nil {
		return "", fmt.Errorf("get text by expression %q on device %d: %w", name, index, err)
	}
	text, err := conn.ElementText(handle)
	if err != nil {
		return "", fmt.Errorf("get text by expression %q on device %d: %w", name, index, err)
	}
	return text, nil
}

// GetElementProperty returns the named attribute of the located
// element. An absent attribute yields "" with a logged warning.
func (e *Engine) GetElementProperty(index int, name, attribute string) (string, error) {
	if name == "" || attribute == "" {
		return "", core.ErrInvalidArgument.WithMessage("element name and attribute must not be empty")
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return "", err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return "", err
	}
	snap, err := e.fetchSnapshot(conn)
	if err != nil {
		return "", fmt.Errorf("get property %q of %q on device %d: %w", attribute, name, index, err)
	}

	node, _, err := e.locate(index, snap, t)
	if err != nil {
		return "", fmt.Errorf("get property %q of %q on device %d: %w", attribute, name, index, err)
	}
	if node == nil {
		return "", fmt.Errorf("get property %q of %q on device %d: element not found", attribute, name, index)
	}

	value := snapshot.Attr(node, attribute)
	if value == "" {
		e.log.Warn("attribute not found or empty",
			zap.String("element", name),
			zap.String("attribute", attribute),
			zap.Int("device", index))
	}
	return value, nil
}

// CheckElementProperty compares the located element's attribute against
// an expected value. String comparisons: ==, !=, contains, !contains,
// startsWith, !startsWith, endsWith, !endsWith. Numeric comparisons:
// <=, >=, <, > (both sides must parse as numbers). A failed comparison
// is a false result; an unsupported operator or unparsable number is an
// error.
func (e *Engine) CheckElementProperty(index int, name, attribute, expected, comparison string) (bool, error) {
	if name == "" || attribute == "" || comparison == "" {
		return false, core.ErrInvalidArgument.WithMessage(
			"element name, attribute and comparison must not be empty")
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return false, err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return false, err
	}
	snap, err := e.fetchSnapshot(conn)
	if err != nil {
		return false, fmt.Errorf("check property %q of %q on device %d: %w", attribute, name, index, err)
	}

	node, _, err := e.locate(index, snap, t)
	if err != nil {
		return false, fmt.Errorf("check property %q of %q on device %d: %w", attribute, name, index, err)
	}
	if node == nil {
		e.log.Warn("element not found for property check",
			zap.String("element", name),
			zap.Int("device", index))
		return false, nil
	}

	actual := snapshot.Attr(node, attribute)
	if actual == "" {
		e.log.Warn("attribute not found or empty for property check",
			zap.String("element", name),
			zap.String("attribute", attribute),
			zap.Int("device", index))
		return false, nil
	}

	ok, err := compare(actual, expected, comparison)
	if err != nil {
		return false, fmt.Errorf("check property %q of %q on device %d: %w", attribute, name, index, err)
	}
	if !ok {
		e.log.Info("property comparison failed",
			zap.String("element", name),
			zap.String("attribute", attribute),
			zap.String("actual", actual),
			zap.String("expected", expected),
			zap.String("comparison", comparison),
			zap.Int("device", index))
	}
	return ok, nil
}

func compare(actual, expected, comparison string) (bool, error) {
	switch comparison {
	case "==":
		return actual == expected, nil
	case "!=":
		return actual != expected, nil
	case "contains":
		return strings.Contains(actual, expected), nil
	case "!contains":
		return !strings.Contains(actual, expected), nil
	case "startsWith":
		return strings.HasPrefix(actual, expected), nil
	case "!startsWith":
		return !strings.HasPrefix(actual, expected), nil
	case "endsWith":
		return strings.HasSuffix(actual, expected), nil
	case "!endsWith":
		return !strings.HasSuffix(actual, expected), nil
	case "<=", ">=", "<", ">":
		a, errA := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(expected), 64)
		if errA != nil || errB != nil {
			return false, fmt.Errorf(
				"cannot compare %q and %q numerically with %q", actual, expected, comparison)
		}
		switch comparison {
		case "<=":
			return a <= b, nil
		case ">=":
			return a >= b, nil
		case "<":
			return a < b, nil
		default:
			return a > b, nil
		}
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", comparison)
	}
}

// nodeText returns the node's text content, or the "value" attribute
// when there is no text.
func nodeText(node *snapshot.Node) string {
	if text := snapshot.Text(node); text != "" {
		return text
	}
	return snapshot.Attr(node, "value")
}
