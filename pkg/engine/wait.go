package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
)

// WaitForElementPresence polls until the element's visibility matches
// displayed, or the deadline passes. With displayed false, an element
// that cannot be found at all also satisfies the wait. Timeout is a
// false result, not an error.
func (e *Engine) WaitForElementPresence(index int, name string, displayed bool, timeMs int) (bool, error) {
	if name == "" {
		return false, core.ErrInvalidArgument.WithMessage("element name must not be empty")
	}
	if timeMs < 0 {
		return false, core.ErrInvalidArgument.WithMessage("wait time %dms must be non-negative", timeMs)
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return false, err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(time.Duration(timeMs) * time.Millisecond)
	for {
		snap, err := e.fetchSnapshot(conn)
		if err != nil {
			if errors.Is(err, core.ErrMalformedSnapshot) {
				return false, fmt.Errorf("wait for presence of %q on device %d: %w", name, index, err)
			}
			e.log.Debug("page source fetch failed, retrying", zap.Error(err))
		} else {
			node, _, err := e.locate(index, snap, t)
			switch {
			case err != nil:
				// Locate errors are data problems (malformed stored
				// expression, unconstructable node), not absence; they
				// surface even when the caller waits for absence.
				return false, fmt.Errorf("wait for presence of %q on device %d: %w", name, index, err)
			case node != nil:
				ev := geometry.ForPlatform(snap.Platform())
				if ev.Visible(node) == displayed {
					return true, nil
				}
			case !displayed:
				return true, nil
			}
		}

		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(e.presencePoll)
	}

	e.log.Warn("element presence wait timed out",
		zap.String("element", name),
		zap.Bool("displayed", displayed),
		zap.Int("device", index),
		zap.Int("timeMs", timeMs))
	return false, nil
}

// WaitForElementText polls until the element's text contains expected,
// or the deadline passes. Returns the matching text on success. Under
// case-sensitive comparison, a hit that differs only in case is
// reported immediately as a definitive false rather than polled until
// timeout.
func (e *Engine) WaitForElementText(index int, name, expected string, ignoreCase bool, timeMs int) (bool, string, error) {
	if name == "" {
		return false, "", core.ErrInvalidArgument.WithMessage("element name must not be empty")
	}
	if timeMs < 0 {
		return false, "", core.ErrInvalidArgument.WithMessage("wait time %dms must be non-negative", timeMs)
	}
	conn, dev, err := e.session(index)
	if err != nil {
		return false, "", err
	}
	t, err := resolveTarget(dev, name)
	if err != nil {
		return false, "", err
	}

	deadline := time.Now().Add(time.Duration(timeMs) * time.Millisecond)
	for {
		snap, err := e.fetchSnapshot(conn)
		if err != nil {
			if errors.Is(err, core.ErrMalformedSnapshot) {
				return false, "", fmt.Errorf("wait for text of %q on device %d: %w", name, index, err)
			}
			e.log.Debug("page source fetch failed, retrying", zap.Error(err))
		} else {
			node, _, err := e.locate(index, snap, t)
			if err != nil {
				return false, "", fmt.Errorf("wait for text of %q on device %d: %w", name, index, err)
			}
			if node != nil {
				text := nodeText(node)
				foldedMatch := strings.Contains(strings.ToLower(text), strings.ToLower(expected))
				if ignoreCase {
					if foldedMatch {
						return true, text, nil
					}
				} else if strings.Contains(text, expected) {
					return true, text, nil
				} else if foldedMatch {
					e.log.Info("text matches only when case is ignored",
						zap.String("element", name),
						zap.String("actual", text),
						zap.String("expected", expected),
						zap.Int("device", index))
					return false, "", nil
				}
			}
		}

		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(e.pollInterval)
	}

	e.log.Warn("element text wait timed out",
		zap.String("element", name),
		zap.String("expected", expected),
		zap.Int("device", index),
		zap.Int("timeMs", timeMs))
	return false, "", nil
}
