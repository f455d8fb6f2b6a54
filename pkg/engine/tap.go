package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/matcher"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// TapElement taps the element identified by a logical name or path
// expression, walking the full fallback cascade: expression match with
// variants, element-ref dispatch with coordinate fallback, text-based
// match, whole-screen substring search and finally OCR when configured.
// A NotInteractable element aborts immediately; exhausting every tier
// is an error, never a silent no-op.
func (e *Engine) TapElement(index int, name string) error {
	return e.tap(index, name, 1, 0)
}

// TapElementRepeat taps the element count times with a delay between
// taps, re-locating the element before every tap because the UI may
// change under repeated input.
func (e *Engine) TapElementRepeat(index int, name string, count, delayMs int) error {
	if count < 0 {
		return core.ErrInvalidArgument.WithMessage("tap count %d must be non-negative", count)
	}
	if delayMs < 0 {
		return core.ErrInvalidArgument.WithMessage("tap delay %dms must be non-negative", delayMs)
	}
	return e.tap(index, name, count, delayMs)
}

func (e *Engine) tap(index int, name string, count, delayMs int) error {
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
		return fmt.Errorf("tap %q on device %d: %w", name, index, err)
	}
	ev := geometry.ForPlatform(snap.Platform())

	// Expression tier.
	if t.expr != "" {
		node, matched, err := matcher.MatchByExpression(snap, e.inventory(index), t.expr)
		if err != nil {
			return fmt.Errorf("tap %q on device %d: %w", name, index, err)
		}
		if node != nil {
			if err := requireTappable(node, ev, name); err != nil {
				return err
			}
			done, err := e.dispatchTaps(conn, node, ev, matched, count, delayMs)
			if err != nil {
				return fmt.Errorf("tap %q on device %d: %w", name, index, err)
			}
			if done {
				return nil
			}
		}
	}

	// Text tier.
	if cand, ok := matcher.MatchByText(snap, ev, t.text); ok {
		if err := requireTappable(cand.Node, ev, name); err != nil {
			return err
		}
		if _, err := matcher.ElementToExpression(cand.Node); err != nil {
			return fmt.Errorf("tap %q on device %d: %w", name, index, err)
		}
		x, y := cand.Center()
		width, height, err := conn.WindowSize()
		if err != nil {
			return fmt.Errorf("tap %q on device %d: %w", name, index, err)
		}
		if !withinScreen(x, y, width, height) {
			return fmt.Errorf("tap %q on device %d: coordinates (%d,%d) outside screen %dx%d",
				name, index, x, y, width, height)
		}
		for i := 0; i < count; i++ {
			if err := conn.Tap(x, y); err != nil {
				return fmt.Errorf("tap %q on device %d: %w", name, index, err)
			}
			if i < count-1 {
				sleepMs(delayMs)
			}
		}
		return nil
	}

	// Screen-coverage substring tier.
	found, err := e.TapByScreenCoverageFromSubString(index, t.text, count, tapDurationMs, 50,
		int(e.searchTimeout.Milliseconds()), false)
	if err != nil {
		return fmt.Errorf("tap %q on device %d: %w", name, index, err)
	}
	if found {
		return nil
	}

	// OCR tier, when configured.
	if e.ocr != nil {
		if tapped, err := e.tapByOCR(conn, t.text, count, delayMs); err != nil {
			return fmt.Errorf("tap %q on device %d: %w", name, index, err)
		} else if tapped {
			return nil
		}
	}

	return fmt.Errorf("tap %q on device %d: element not found after all fallbacks", name, index)
}

// dispatchTaps performs count taps through the native element handle,
// falling back to previously computed center coordinates when the
// handle turns stale at dispatch time. done=false means neither path
// could act and the caller should advance to the next tier.
func (e *Engine) dispatchTaps(conn driver.Conn, node *snapshot.Node, ev geometry.Evaluator, expr string, count, delayMs int) (done bool, err error) {
	width, height, err := conn.WindowSize()
	if err != nil {
		return false, err
	}

	// Snapshot geometry kept as the coordinate fallback.
	fallbackX, fallbackY := -1, -1
	if b := ev.Bounds(node); b.Valid() {
		if x, y := b.Center(); withinScreen(x, y, width, height) {
			fallbackX, fallbackY = x, y
		}
	}

	for i := 0; i < count; i++ {
		if err := e.tapOnce(conn, expr, fallbackX, fallbackY, width, height); err != nil {
			if driver.IsNoSuchElement(err) {
				return false, nil
			}
			return false, err
		}
		if i < count-1 {
			sleepMs(delayMs)
		}
	}
	return true, nil
}

func (e *Engine) tapOnce(conn driver.Conn, expr string, fallbackX, fallbackY, width, height int) error {
	id, err := conn.FindElement(expr)
	if err == nil {
		rect, rerr := conn.ElementRect(id)
		if rerr == nil {
			if x, y := rect.Center(); withinScreen(x, y, width, height) {
				return conn.Tap(x, y)
			}
			err = fmt.Errorf("element center outside screen %dx%d", width, height)
		} else {
			err = rerr
		}
	}

	if driver.IsNoSuchElement(err) && fallbackX >= 0 && fallbackY >= 0 {
		e.log.Debug("element handle gone, tapping fallback coordinates",
			zap.Int("x", fallbackX), zap.Int("y", fallbackY))
		return conn.Tap(fallbackX, fallbackY)
	}
	return err
}

// TapByID taps the element with the given accessibility identifier.
func (e *Engine) TapByID(index int, id string) error {
	if id == "" {
		return core.ErrInvalidArgument.WithMessage("element id must not be empty")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	handle, err := conn.FindElementByID(id)
	if err != nil {
		return fmt.Errorf("tap by id %q on device %d: %w", id, index, err)
	}
	if err := conn.Click(handle); err != nil {
		return fmt.Errorf("tap by id %q on device %d: %w", id, index, err)
	}
	return nil
}

// TapByExpression taps the element matched by a raw path expression,
// without the variant cascade or fallback tiers.
func (e *Engine) TapByExpression(index int, expr string) error {
	if expr == "" {
		return core.ErrInvalidArgument.WithMessage("expression must not be empty")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	id, err := conn.FindElement(expr)
	if err != nil {
		return fmt.Errorf("tap by expression %q on device %d: %w", expr, index, err)
	}
	rect, err := conn.ElementRect(id)
	if err != nil {
		return fmt.Errorf("tap by expression %q on device %d: %w", expr, index, err)
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return fmt.Errorf("tap by expression %q on device %d: %w", expr, index, err)
	}
	x, y := rect.Center()
	if !withinScreen(x, y, width, height) {
		return fmt.Errorf("tap by expression %q on device %d: coordinates (%d,%d) outside screen %dx%d",
			expr, index, x, y, width, height)
	}
	if err := conn.Tap(x, y); err != nil {
		return fmt.Errorf("tap by expression %q on device %d: %w", expr, index, err)
	}
	return nil
}

// TapByScreenCoverage taps at coordinates given as fractions of the
// screen size, count times with a delay between taps.
func (e *Engine) TapByScreenCoverage(index int, xFrac, yFrac float64, count, delayMs int) error {
	if xFrac < 0 || xFrac > 1 || yFrac < 0 || yFrac > 1 {
		return core.ErrInvalidArgument.WithMessage(
			"screen coverage fractions (%v, %v) must be within [0, 1]", xFrac, yFrac)
	}
	if count < 0 {
		return core.ErrInvalidArgument.WithMessage("tap count %d must be non-negative", count)
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return fmt.Errorf("tap by screen coverage on device %d: %w", index, err)
	}
	x := int(xFrac * float64(width))
	y := int(yFrac * float64(height))
	for i := 0; i < count; i++ {
		if err := conn.Tap(x, y); err != nil {
			return fmt.Errorf("tap by screen coverage (%d,%d) on device %d: %w", x, y, index, err)
		}
		if i < count-1 {
			sleepMs(delayMs)
		}
	}
	return nil
}

// tapByOCR screenshots the device and asks the configured TextFinder
// for coordinates of the query text.
func (e *Engine) tapByOCR(conn driver.Conn, query string, count, delayMs int) (bool, error) {
	png, err := conn.Screenshot()
	if err != nil {
		return false, err
	}
	x, y, ok, err := e.ocr.FindText(png, query)
	if err != nil || !ok {
		return false, err
	}
	e.log.Debug("tapping OCR match", zap.String("query", query), zap.Int("x", x), zap.Int("y", y))
	for i := 0; i < count; i++ {
		if err := conn.Tap(x, y); err != nil {
			return false, err
		}
		if i < count-1 {
			sleepMs(delayMs)
		}
	}
	return true, nil
}
