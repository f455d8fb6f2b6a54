// Package driver speaks the W3C WebDriver/Appium HTTP protocol to a
// device automation server. The interaction engine only depends on the
// Conn interface; Client is the HTTP implementation.
package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/devicelab-dev/uibridge/pkg/core"
)

// Conn is the session protocol surface the interaction engine relies
// on: fetch the UI tree, locate native element handles, dispatch
// gestures and manage the device lock state.
type Conn interface {
	// Platform returns the attribute schema of the connected device.
	Platform() core.Platform

	// Source fetches the current UI tree as raw XML.
	Source() (string, error)

	// WindowSize returns the viewport dimensions in pixels.
	WindowSize() (width, height int, err error)

	// Screenshot returns the current screen as PNG bytes.
	Screenshot() ([]byte, error)

	// FindElement locates an element by path expression and returns an
	// opaque handle for element-scoped calls.
	FindElement(expr string) (string, error)

	// FindElementByID locates an element by accessibility identifier.
	FindElementByID(id string) (string, error)

	Click(elementID string) error
	Clear(elementID string) error
	SendKeys(elementID, text string) error
	ElementRect(elementID string) (core.Bounds, error)
	ElementText(elementID string) (string, error)
	ElementAttr(elementID, name string) (string, error)

	// Tap dispatches the platform-native coordinate tap gesture.
	Tap(x, y int) error

	// Swipe drags a pointer between two points over durationMs.
	Swipe(startX, startY, endX, endY, durationMs int) error

	// Back navigates back in the foreground app.
	Back() error

	// PressKeyCode sends a hardware keycode (Android only).
	PressKeyCode(keycode int) error

	Lock() error
	Unlock() error
	IsLocked() (bool, error)

	// Close terminates the session. Safe to call on a closed session.
	Close() error
}

// ProtocolError is a structured error returned by the remote end,
// carrying the W3C error kind (e.g. "no such element").
type ProtocolError struct {
	Kind    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsNoSuchElement reports whether the error means the referenced
// element is gone or was never found, the condition that triggers the
// coordinate-dispatch fallback.
func IsNoSuchElement(err error) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	switch strings.ToLower(pe.Kind) {
	case "no such element", "stale element reference", "element not found":
		return true
	}
	return false
}
