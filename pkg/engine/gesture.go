package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/device"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/mapping"
	"github.com/devicelab-dev/uibridge/pkg/matcher"
)

// Fixed swipe anchor coordinates. Gestures use absolute midscreen
// points rather than fractions of the viewport.
const (
	swipeAnchorX    = 500
	swipeAnchorY    = 500
	swipeTravel     = 100
	indicatorCapKey = "BLE_Indicator"
)

// SwipeLeft swipes left count times with intervalMs between swipes.
func (e *Engine) SwipeLeft(index, count, intervalMs int) error {
	return e.swipeRepeat(index, count, intervalMs,
		swipeAnchorX+swipeTravel/2, swipeAnchorY, swipeAnchorX-swipeTravel/2, swipeAnchorY)
}

// SwipeRight swipes right count times with intervalMs between swipes.
func (e *Engine) SwipeRight(index, count, intervalMs int) error {
	return e.swipeRepeat(index, count, intervalMs,
		swipeAnchorX-swipeTravel/2, swipeAnchorY, swipeAnchorX+swipeTravel/2, swipeAnchorY)
}

// SwipeUp swipes up count times with intervalMs between swipes.
func (e *Engine) SwipeUp(index, count, intervalMs int) error {
	return e.swipeRepeat(index, count, intervalMs,
		swipeAnchorX, swipeAnchorY+swipeTravel/2, swipeAnchorX, swipeAnchorY-swipeTravel/2)
}

// SwipeDown swipes down count times with intervalMs between swipes.
func (e *Engine) SwipeDown(index, count, intervalMs int) error {
	return e.swipeRepeat(index, count, intervalMs,
		swipeAnchorX, swipeAnchorY-swipeTravel/2, swipeAnchorX, swipeAnchorY+swipeTravel/2)
}

func (e *Engine) swipeRepeat(index, count, intervalMs, startX, startY, endX, endY int) error {
	if count < 0 || intervalMs < 0 {
		return core.ErrInvalidArgument.WithMessage(
			"swipe count and interval must be non-negative")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := conn.Swipe(startX, startY, endX, endY, swipeDurationMs); err != nil {
			return fmt.Errorf("swipe on device %d: %w", index, err)
		}
		if i < count-1 {
			sleepMs(intervalMs)
		}
	}
	return nil
}

// GoBack navigates back count times with intervalMs between steps.
func (e *Engine) GoBack(index, count, intervalMs int) error {
	if count < 0 || intervalMs < 0 {
		return core.ErrInvalidArgument.WithMessage(
			"back count and interval must be non-negative")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := conn.Back(); err != nil {
			return fmt.Errorf("go back on device %d: %w", index, err)
		}
		if i < count-1 {
			sleepMs(intervalMs)
		}
	}
	return nil
}

// LockDevice locks the device screen. Locking an already locked device
// is a no-op.
func (e *Engine) LockDevice(index int) error {
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	locked, err := conn.IsLocked()
	if err != nil {
		return fmt.Errorf("lock device %d: %w", index, err)
	}
	if locked {
		return nil
	}
	if err := conn.Lock(); err != nil {
		return fmt.Errorf("lock device %d: %w", index, err)
	}
	return nil
}

// UnlockDevice wakes and unlocks the device screen. Unlocking an
// already unlocked device is a no-op.
func (e *Engine) UnlockDevice(index int) error {
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	locked, err := conn.IsLocked()
	if err != nil {
		return fmt.Errorf("unlock device %d: %w", index, err)
	}
	if !locked {
		return nil
	}
	if err := conn.Unlock(); err != nil {
		return fmt.Errorf("unlock device %d: %w", index, err)
	}
	return nil
}

// ShowNotificationControlPanel drags the notification panel open with
// an edge swipe, then waits for the status indicator to disappear
// behind it. Devices without a configured indicator element skip the
// confirmation wait. Still visible at the deadline is a Timeout error.
func (e *Engine) ShowNotificationControlPanel(index int) error {
	conn, dev, err := e.session(index)
	if err != nil {
		return err
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return fmt.Errorf("show notification panel on device %d: %w", index, err)
	}
	if err := conn.Swipe(width-10, 10, width-10, height/2, panelSwipeDurationMs); err != nil {
		return fmt.Errorf("show notification panel on device %d: %w", index, err)
	}
	return e.waitIndicatorGone(index, conn, dev, "show notification panel")
}

// HideNotificationControlPanel drags the notification panel closed,
// then runs the same indicator confirmation as the show operation.
func (e *Engine) HideNotificationControlPanel(index int) error {
	conn, dev, err := e.session(index)
	if err != nil {
		return err
	}
	width, height, err := conn.WindowSize()
	if err != nil {
		return fmt.Errorf("hide notification panel on device %d: %w", index, err)
	}
	if err := conn.Swipe(width/2, height-100, width/2, 100, panelSwipeDurationMs); err != nil {
		return fmt.Errorf("hide notification panel on device %d: %w", index, err)
	}
	return e.waitIndicatorGone(index, conn, dev, "hide notification panel")
}

// waitIndicatorGone polls until the device's configured indicator
// element is absent or hidden. The indicator expression comes from the
// device capabilities; an empty capability means the device has no
// indicator to confirm against.
func (e *Engine) waitIndicatorGone(index int, conn driver.Conn, dev *device.Device, op string) error {
	indicator := dev.Capabilities.Get(indicatorCapKey)
	if indicator == "" {
		return nil
	}

	expr := indicator
	if !strings.HasPrefix(indicator, "/") {
		resolved, ok, err := mapping.Resolve(dev.MappingPath, indicator)
		if err != nil {
			return fmt.Errorf("%s on device %d: %w", op, index, err)
		}
		if !ok {
			return fmt.Errorf("%s on device %d: no mapping entry for indicator %q", op, index, indicator)
		}
		expr = resolved
	}
	variants := matcher.Variants(expr)

	deadline := time.Now().Add(e.panelTimeout)
	for time.Now().Before(deadline) {
		snap, err := e.fetchSnapshot(conn)
		if err != nil {
			// An unreadable tree during the panel animation means the
			// indicator cannot be observed; treat it as gone.
			e.log.Debug("indicator check could not read page source", zap.Error(err))
			return nil
		}
		ev := geometry.ForPlatform(snap.Platform())

		visible := false
		for _, v := range variants {
			node, ferr := snap.Query(v)
			if ferr != nil || node == nil {
				continue
			}
			if ev.Visible(node) {
				visible = true
			}
			break
		}
		if !visible {
			return nil
		}
		time.Sleep(e.presencePoll)
	}

	return core.ErrTimeout.WithMessage(
		"%s on device %d: indicator still visible after %s", op, index, e.panelTimeout)
}
