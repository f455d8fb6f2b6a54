// Package mock provides a scripted Conn implementation for testing
// without a real device or automation server.
package mock

import (
	"fmt"
	"sync"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver"
)

// Conn is a scripted implementation of driver.Conn. Page sources are
// served from a queue so tests can simulate UI changes between polls;
// the last source repeats once the queue drains. All interactions are
// recorded for assertions.
type Conn struct {
	mu sync.Mutex

	// Configuration
	PlatformKind core.Platform
	Width        int
	Height       int
	Png          []byte

	// Elements maps expressions (or accessibility ids) to scripted
	// element state. A missing entry yields a "no such element" error.
	Elements map[string]Element

	// SourceErr, when set, fails every Source call.
	SourceErr error

	sources   []string
	sourceIdx int

	// Recorded interactions
	SourceN  int
	Taps     []Point
	Swipes   []Swipe
	Clicks   []string
	Cleared  []string
	Typed    map[string]string
	BackN    int
	Keycodes []int
	Locked   bool
	Closed   bool
}

// Element is the scripted state behind one locator.
type Element struct {
	ID   string
	Rect core.Bounds
	Text string
	Attr map[string]string
	// Stale makes element-scoped calls fail after the element was
	// located, simulating a UI change between find and dispatch.
	Stale bool
}

// Point is a recorded tap location.
type Point struct{ X, Y int }

// Swipe is a recorded drag gesture.
type Swipe struct{ StartX, StartY, EndX, EndY, DurationMs int }

// New creates a mock connection serving the given page sources in order.
func New(platform core.Platform, sources ...string) *Conn {
	return &Conn{
		PlatformKind: platform,
		Width:        1000,
		Height:       2000,
		Elements:     make(map[string]Element),
		Typed:        make(map[string]string),
		sources:      sources,
	}
}

// PushSource appends a page source to the queue.
func (c *Conn) PushSource(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, source)
}

func (c *Conn) Platform() core.Platform { return c.PlatformKind }

func (c *Conn) Source() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SourceN++
	if c.SourceErr != nil {
		return "", c.SourceErr
	}
	if len(c.sources) == 0 {
		return "", fmt.Errorf("no page sources scripted")
	}
	source := c.sources[c.sourceIdx]
	if c.sourceIdx < len(c.sources)-1 {
		c.sourceIdx++
	}
	return source, nil
}

func (c *Conn) WindowSize() (int, int, error) {
	return c.Width, c.Height, nil
}

func (c *Conn) Screenshot() ([]byte, error) {
	if c.Png == nil {
		return []byte("png"), nil
	}
	return c.Png, nil
}

func (c *Conn) FindElement(expr string) (string, error) {
	return c.find(expr)
}

func (c *Conn) FindElementByID(id string) (string, error) {
	return c.find(id)
}

func (c *Conn) find(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.Elements[key]
	if !ok {
		return "", &driver.ProtocolError{Kind: "no such element", Message: key}
	}
	if el.ID == "" {
		return key, nil
	}
	return el.ID, nil
}

func (c *Conn) lookup(elementID string) (Element, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, el := range c.Elements {
		id := el.ID
		if id == "" {
			continue
		}
		if id == elementID {
			if el.Stale {
				return Element{}, &driver.ProtocolError{Kind: "stale element reference", Message: elementID}
			}
			return el, nil
		}
	}
	for key, el := range c.Elements {
		if key == elementID {
			if el.Stale {
				return Element{}, &driver.ProtocolError{Kind: "stale element reference", Message: elementID}
			}
			return el, nil
		}
	}
	return Element{}, &driver.ProtocolError{Kind: "stale element reference", Message: elementID}
}

func (c *Conn) Click(elementID string) error {
	if _, err := c.lookup(elementID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Clicks = append(c.Clicks, elementID)
	return nil
}

func (c *Conn) Clear(elementID string) error {
	if _, err := c.lookup(elementID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Cleared = append(c.Cleared, elementID)
	c.Typed[elementID] = ""
	return nil
}

func (c *Conn) SendKeys(elementID, text string) error {
	if _, err := c.lookup(elementID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Typed[elementID] += text
	return nil
}

func (c *Conn) ElementRect(elementID string) (core.Bounds, error) {
	el, err := c.lookup(elementID)
	if err != nil {
		return core.Bounds{}, err
	}
	return el.Rect, nil
}

func (c *Conn) ElementText(elementID string) (string, error) {
	el, err := c.lookup(elementID)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (c *Conn) ElementAttr(elementID, name string) (string, error) {
	el, err := c.lookup(elementID)
	if err != nil {
		return "", err
	}
	return el.Attr[name], nil
}

func (c *Conn) Tap(x, y int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Taps = append(c.Taps, Point{X: x, Y: y})
	return nil
}

func (c *Conn) Swipe(startX, startY, endX, endY, durationMs int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Swipes = append(c.Swipes, Swipe{startX, startY, endX, endY, durationMs})
	return nil
}

func (c *Conn) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BackN++
	return nil
}

func (c *Conn) PressKeyCode(keycode int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Keycodes = append(c.Keycodes, keycode)
	return nil
}

func (c *Conn) Lock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Locked = true
	return nil
}

func (c *Conn) Unlock() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Locked = false
	return nil
}

func (c *Conn) IsLocked() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Locked, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}
