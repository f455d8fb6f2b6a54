package engine_test

import (
	"errors"
	"testing"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver/mock"
)

func TestSwipes(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.SwipeLeft(1, 1, 0); err != nil {
		t.Fatalf("SwipeLeft: %v", err)
	}
	if err := eng.SwipeRight(1, 1, 0); err != nil {
		t.Fatalf("SwipeRight: %v", err)
	}
	if err := eng.SwipeUp(1, 1, 0); err != nil {
		t.Fatalf("SwipeUp: %v", err)
	}
	if err := eng.SwipeDown(1, 1, 0); err != nil {
		t.Fatalf("SwipeDown: %v", err)
	}

	want := []mock.Swipe{
		{StartX: 550, StartY: 500, EndX: 450, EndY: 500, DurationMs: 300},
		{StartX: 450, StartY: 500, EndX: 550, EndY: 500, DurationMs: 300},
		{StartX: 500, StartY: 550, EndX: 500, EndY: 450, DurationMs: 300},
		{StartX: 500, StartY: 450, EndX: 500, EndY: 550, DurationMs: 300},
	}
	if len(conn.Swipes) != len(want) {
		t.Fatalf("got %d swipes, want %d", len(conn.Swipes), len(want))
	}
	for i := range want {
		if conn.Swipes[i] != want[i] {
			t.Errorf("swipe %d = %+v, want %+v", i, conn.Swipes[i], want[i])
		}
	}
}

func TestSwipeRepeat(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.SwipeLeft(1, 3, 1); err != nil {
		t.Fatalf("SwipeLeft: %v", err)
	}
	if len(conn.Swipes) != 3 {
		t.Errorf("got %d swipes, want 3", len(conn.Swipes))
	}

	if err := eng.SwipeLeft(1, -1, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("negative count error = %v, want invalid argument", err)
	}
}

func TestGoBack(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.GoBack(1, 2, 1); err != nil {
		t.Fatalf("GoBack: %v", err)
	}
	if conn.BackN != 2 {
		t.Errorf("back called %d times, want 2", conn.BackN)
	}
}

func TestLockUnlock(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.LockDevice(1); err != nil {
		t.Fatalf("LockDevice: %v", err)
	}
	if !conn.Locked {
		t.Error("device not locked")
	}
	// Locking a locked device is a no-op.
	if err := eng.LockDevice(1); err != nil {
		t.Fatalf("second LockDevice: %v", err)
	}

	if err := eng.UnlockDevice(1); err != nil {
		t.Fatalf("UnlockDevice: %v", err)
	}
	if conn.Locked {
		t.Error("device still locked")
	}
	if err := eng.UnlockDevice(1); err != nil {
		t.Fatalf("second UnlockDevice: %v", err)
	}
}

func TestShowNotificationControlPanel_NoIndicator(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.ShowNotificationControlPanel(1); err != nil {
		t.Fatalf("ShowNotificationControlPanel: %v", err)
	}
	// Edge swipe from the top right corner down to midscreen.
	want := mock.Swipe{StartX: 990, StartY: 10, EndX: 990, EndY: 1000, DurationMs: 400}
	if len(conn.Swipes) != 1 || conn.Swipes[0] != want {
		t.Errorf("swipes = %v, want [%+v]", conn.Swipes, want)
	}
}

func TestShowNotificationControlPanel_IndicatorGone(t *testing.T) {
	conn := mock.New(core.PlatformIOS, emptySource)
	eng := newTestEngine(t, conn, "", "BLE_Indicator = StatusIcon\n")

	if err := eng.ShowNotificationControlPanel(1); err != nil {
		t.Fatalf("ShowNotificationControlPanel: %v", err)
	}
}

func TestShowNotificationControlPanel_IndicatorStuck(t *testing.T) {
	source := `<AppiumAUT><XCUIElementTypeWindow>
		<XCUIElementTypeImage name="ble" x="900" y="10" width="40" height="40"/>
	</XCUIElementTypeWindow></AppiumAUT>`
	conn := mock.New(core.PlatformIOS, source)
	eng := newTestEngine(t, conn, "", "BLE_Indicator = StatusIcon\n")

	err := eng.ShowNotificationControlPanel(1)
	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("error = %v, want timeout", err)
	}
}

func TestHideNotificationControlPanel(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.HideNotificationControlPanel(1); err != nil {
		t.Fatalf("HideNotificationControlPanel: %v", err)
	}
	want := mock.Swipe{StartX: 500, StartY: 1900, EndX: 500, EndY: 100, DurationMs: 400}
	if len(conn.Swipes) != 1 || conn.Swipes[0] != want {
		t.Errorf("swipes = %v, want [%+v]", conn.Swipes, want)
	}
}
