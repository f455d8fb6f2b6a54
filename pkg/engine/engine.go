// Package engine orchestrates element interaction: fetch a fresh UI
// snapshot, resolve the target through the location cascade, validate
// interactability, compute coordinates and dispatch the gesture through
// the device session. Operations that wait poll on a fixed interval
// against a wall-clock deadline computed at entry.
package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/device"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/geometry"
	"github.com/devicelab-dev/uibridge/pkg/mapping"
	"github.com/devicelab-dev/uibridge/pkg/matcher"
	"github.com/devicelab-dev/uibridge/pkg/snapshot"
)

// Default timings. Polling deadlines are wall-clock, computed once at
// operation entry.
const (
	defaultPollInterval   = 500 * time.Millisecond
	presencePollInterval  = 300 * time.Millisecond
	panelCheckTimeout     = 5 * time.Second
	searchFallbackTimeout = 8 * time.Second
	tapDurationMs         = 100
	swipeDurationMs       = 300
	panelSwipeDurationMs  = 400
)

// TextFinder locates text in a screenshot and returns tap coordinates.
// It is the optional last fallback tier of tap operations, backed by an
// external OCR capability.
type TextFinder interface {
	FindText(png []byte, query string) (x, y int, ok bool, err error)
}

// Engine drives interactions against devices held by a Registry.
// Not safe for concurrent use across the same device index.
type Engine struct {
	reg *device.Registry
	log *zap.Logger
	ocr TextFinder

	// One node-type inventory per device, cleared on re-init.
	inventories map[int]*snapshot.TypeInventory

	pollInterval  time.Duration
	presencePoll  time.Duration
	panelTimeout  time.Duration
	searchTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTextFinder enables the OCR fallback tier for tap operations.
func WithTextFinder(tf TextFinder) Option {
	return func(e *Engine) { e.ocr = tf }
}

// WithPollInterval overrides the default polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.pollInterval = d
		e.presencePoll = d
	}
}

// WithPanelTimeout overrides the notification panel confirmation
// deadline.
func WithPanelTimeout(d time.Duration) Option {
	return func(e *Engine) { e.panelTimeout = d }
}

// WithSearchTimeout overrides the deadline of the whole-screen
// substring search tier inside the tap cascade.
func WithSearchTimeout(d time.Duration) Option {
	return func(e *Engine) { e.searchTimeout = d }
}

// New creates an Engine over a device registry.
func New(reg *device.Registry, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		reg:           reg,
		log:           log,
		inventories:   make(map[int]*snapshot.TypeInventory),
		pollInterval:  defaultPollInterval,
		presencePoll:  presencePollInterval,
		panelTimeout:  panelCheckTimeout,
		searchTimeout: searchFallbackTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lifecycle

// LoadConfiguration loads the device configuration file.
func (e *Engine) LoadConfiguration(path string) error {
	return e.reg.LoadConfiguration(path)
}

// Init opens a session for the device. The node-type inventory is
// cleared because a re-init may connect a different platform.
func (e *Engine) Init(index int, overrideURL string) error {
	if err := e.reg.Init(index, overrideURL); err != nil {
		return err
	}
	if inv, ok := e.inventories[index]; ok {
		inv.Reset()
	}
	return nil
}

// Quit closes the device session.
func (e *Engine) Quit(index int) error {
	return e.reg.Quit(index)
}

// Registry returns the underlying device registry.
func (e *Engine) Registry() *device.Registry {
	return e.reg
}

// TakeScreenshot saves the current screen as PNG at path.
func (e *Engine) TakeScreenshot(index int, path string) error {
	if path == "" {
		return core.ErrInvalidArgument.WithMessage("screenshot path must not be empty")
	}
	conn, _, err := e.session(index)
	if err != nil {
		return err
	}
	png, err := conn.Screenshot()
	if err != nil {
		return fmt.Errorf("take screenshot for device %d: %w", index, err)
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write screenshot %q for device %d: %w", path, index, err)
	}
	return nil
}

// GetAllElementMap returns the raw element mapping table contents.
func (e *Engine) GetAllElementMap(index int) (string, error) {
	_, dev, err := e.session(index)
	if err != nil {
		return "", err
	}
	return mapping.Dump(dev.MappingPath)
}

// internal plumbing

func (e *Engine) session(index int) (driver.Conn, *device.Device, error) {
	conn, err := e.reg.Conn(index)
	if err != nil {
		return nil, nil, err
	}
	dev, _ := e.reg.Get(index)
	return conn, dev, nil
}

func (e *Engine) inventory(index int) *snapshot.TypeInventory {
	inv, ok := e.inventories[index]
	if !ok {
		inv = &snapshot.TypeInventory{}
		e.inventories[index] = inv
	}
	return inv
}

// fetchSnapshot grabs a fresh page source and parses it. Snapshots are
// never reused between polls.
func (e *Engine) fetchSnapshot(conn driver.Conn) (*snapshot.Snapshot, error) {
	raw, err := conn.Source()
	if err != nil {
		return nil, err
	}
	return snapshot.Parse(raw)
}

// target is a resolved interaction target: the expression to match with
// (may be empty when only text search applies) and the free-text query
// used by the fallback tiers.
type target struct {
	expr string
	text string
}

// resolveTarget classifies the caller's target string: a raw path
// expression is used directly with its compared attribute value as the
// text query; anything else goes through the mapping table, falling
// back to treating the name itself as the text query on a miss.
func resolveTarget(dev *device.Device, name string) (target, error) {
	t := target{text: name}
	if strings.HasPrefix(name, "/") {
		t.expr = name
		if _, value, ok := matcher.ExtractAttributeQuery(name); ok {
			t.text = value
		}
		return t, nil
	}

	expr, ok, err := mapping.Resolve(dev.MappingPath, name)
	if err != nil {
		return target{}, err
	}
	if ok {
		t.expr = expr
	}
	return t, nil
}

// locate runs the expression tier then the text tier against one
// snapshot. The returned expression is the one that can re-locate the
// node through the session (matched variant or constructed), or "".
func (e *Engine) locate(index int, snap *snapshot.Snapshot, t target) (*snapshot.Node, string, error) {
	ev := geometry.ForPlatform(snap.Platform())

	if t.expr != "" {
		node, matched, err := matcher.MatchByExpression(snap, e.inventory(index), t.expr)
		if err != nil {
			return nil, "", err
		}
		if node != nil {
			return node, matched, nil
		}
	}

	cand, ok := matcher.MatchByText(snap, ev, t.text)
	if !ok {
		return nil, "", nil
	}
	expr, err := matcher.ElementToExpression(cand.Node)
	if err != nil {
		return nil, "", err
	}
	return cand.Node, expr, nil
}

// requireTappable enforces the interactability contract for taps and
// text entry: visible and enabled, or a NotInteractable error that
// callers must not downgrade to "not found".
func requireTappable(node *snapshot.Node, ev geometry.Evaluator, name string) error {
	visible := ev.Visible(node)
	enabled := geometry.Enabled(node)
	if visible && enabled {
		return nil
	}
	return core.ErrNotInteractable.WithMessage(
		"element %q is not interactable (visible=%t, enabled=%t)", name, visible, enabled)
}

// withinScreen reports whether a point lies inside the viewport.
func withinScreen(x, y, width, height int) bool {
	return x >= 0 && x <= width && y >= 0 && y <= height
}

func sleepMs(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}
