package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// CheckElementPresence reports whether the element's visibility matches
// displayed on a single fresh snapshot. An element that cannot be found
// counts as not displayed.
func (e *Engine) CheckElementPresence(index int, name string, displayed bool) (bool, error) {
	if name == "" {
		return false, core.ErrInvalidArgument.WithMessage("element name must not be empty")
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
		return false, fmt.Errorf("check presence of %q on device %d: %w", name, index, err)
	}

	node, _, err := e.locate(index, snap, t)
	if err != nil {
		return false, fmt.Errorf("check presence of %q on device %d: %w", name, index, err)
	}
	if node == nil {
		return !displayed, nil
	}
	ev := geometry.ForPlatform(snap.Platform())
	return ev.Visible(node) == displayed, nil
}

// CheckElementEnabled reports whether the element's accessibility state
// matches expected. The "accessible" attribute defaults to false when
// absent. A missing element is a false result, not an error.
func (e *Engine) CheckElementEnabled(index int, name string, expected bool) (bool, error) {
	if name == "" {
		return false, core.ErrInvalidArgument.WithMessage("element name must not be empty")
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
		return false, fmt.Errorf("check enabled state of %q on device %d: %w", name, index, err)
	}

	node, _, err := e.locate(index, snap, t)
	if err != nil {
		return false, fmt.Errorf("check enabled state of %q on device %d: %w", name, index, err)
	}
	if node == nil {
		e.log.Warn("element not found for enabled check",
			zap.String("element", name),
			zap.Int("device", index))
		return false, nil
	}

	accessible := snapshot.Attr(node, "accessible") == "true"
	return accessible == expected, nil
}
