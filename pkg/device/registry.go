// Package device loads per-device configuration and owns the session
// lifecycle. Devices are declared in an INI file, one section per
// device index, and are initialized lazily: loading builds the
// capability set, Init opens the session.
package device

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/ini.v1"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver"
)

// SectionPrefix names device sections in the configuration file.
const SectionPrefix = "Device_"

// AppPlaceholder is textually replaced with the configuration file's
// directory across the whole file before parsing.
const AppPlaceholder = "%APP%"

// Capabilities holds the raw key/value pairs of a device section with
// original key case preserved.
type Capabilities map[string]string

// Lookup resolves a capability name against the raw key, the
// "appium:"-prefixed key and the lower-cased variants of both. The
// first hit wins.
func (c Capabilities) Lookup(name string) (string, bool) {
	probes := []string{
		name,
		"appium:" + name,
		strings.ToLower(name),
		"appium:" + strings.ToLower(name),
	}
	for _, key := range probes {
		if v, ok := c[key]; ok {
			return v, true
		}
	}
	return "", false
}

// Get returns a capability value, or "" when absent.
func (c Capabilities) Get(name string) string {
	v, _ := c.Lookup(name)
	return v
}

// Device is the per-index configuration plus the open session handle.
// The handle is non-nil only between a successful Init and a Quit.
type Device struct {
	Index        int
	Platform     core.Platform
	ServerURL    string
	MappingPath  string
	Capabilities Capabilities
	SessionCaps  map[string]interface{}

	conn driver.Conn
}

// Conn returns the open session handle, or nil before Init/after Quit.
func (d *Device) Conn() driver.Conn {
	return d.conn
}

// DialFunc opens a session against an automation server.
type DialFunc func(serverURL string, caps map[string]interface{}, platform core.Platform) (driver.Conn, error)

// Registry keys devices by their numeric index.
type Registry struct {
	log     *zap.Logger
	devices map[int]*Device

	// dial is swapped out in tests to avoid a live server.
	dial DialFunc
}

// NewRegistry creates an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:     log,
		devices: make(map[int]*Device),
		dial:    dialAppium,
	}
}

// SetDialer replaces the session dialer. Tests and embedders with
// custom transports install their own connection factory here.
func (r *Registry) SetDialer(dial DialFunc) {
	if dial != nil {
		r.dial = dial
	}
}

func dialAppium(serverURL string, caps map[string]interface{}, platform core.Platform) (driver.Conn, error) {
	client := driver.NewClient(serverURL)
	if err := client.Connect(caps); err != nil {
		return nil, err
	}
	if client.Platform() == core.PlatformUnknown {
		client.SetPlatform(platform)
	}
	return client, nil
}

// LoadConfiguration parses the device configuration file. The
// placeholder token is substituted once across the raw content with the
// configuration file's directory. A section with an unknown platform or
// a missing mandatory key is logged and skipped; the remaining sections
// still load. Reloading updates configuration but keeps open sessions.
func (r *Registry) LoadConfiguration(path string) error {
	if path == "" {
		return core.ErrInvalidArgument.WithMessage("configuration path must not be empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read configuration %q: %w", path, err)
	}

	absDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("resolve configuration directory for %q: %w", path, err)
	}
	content := strings.ReplaceAll(string(raw), AppPlaceholder, absDir)

	cfg, err := ini.Load([]byte(content))
	if err != nil {
		return fmt.Errorf("parse configuration %q: %w", path, err)
	}

	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, SectionPrefix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimPrefix(name, SectionPrefix))
		if err != nil || index < 0 {
			r.log.Warn("skipping device section with invalid index", zap.String("section", name))
			continue
		}

		caps := Capabilities(section.KeysHash())
		dev, err := buildDevice(index, caps)
		if err != nil {
			r.log.Warn("skipping device section",
				zap.String("section", name),
				zap.Error(err))
			continue
		}

		if existing, ok := r.devices[index]; ok {
			dev.conn = existing.conn
		}
		r.devices[index] = dev
		r.log.Debug("loaded device configuration",
			zap.Int("index", index),
			zap.String("platform", string(dev.Platform)),
			zap.String("serverURL", dev.ServerURL))
	}
	return nil
}

func buildDevice(index int, caps Capabilities) (*Device, error) {
	serverURL := caps.Get("serverURL")
	if serverURL == "" {
		return nil, fmt.Errorf("no serverURL defined")
	}
	platform := core.ParsePlatform(caps.Get("platformName"))
	if platform == core.PlatformUnknown {
		return nil, fmt.Errorf("unknown platformName %q", caps.Get("platformName"))
	}
	mappingPath := caps.Get("elementMapping")
	if mappingPath == "" {
		return nil, fmt.Errorf("no elementMapping defined")
	}

	return &Device{
		Index:        index,
		Platform:     platform,
		ServerURL:    serverURL,
		MappingPath:  mappingPath,
		Capabilities: caps,
		SessionCaps:  negotiate(platform, caps),
	}, nil
}

// negotiate builds the session capability set for the platform, filling
// platform defaults and carrying every remaining configured key through
// under the "appium:" namespace.
func negotiate(platform core.Platform, caps Capabilities) map[string]interface{} {
	timeout := 600
	if v, ok := caps.Lookup("newCommandTimeout"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			timeout = n
		}
	}

	var out map[string]interface{}
	switch platform {
	case core.PlatformIOS:
		out = map[string]interface{}{
			"platformName":             "iOS",
			"appium:platformVersion":   caps.Get("platformVersion"),
			"appium:deviceName":        caps.Get("deviceName"),
			"appium:udid":              caps.Get("udid"),
			"appium:automationName":    capOrDefault(caps, "automationName", "XCUITest"),
			"appium:bundleId":          caps.Get("bundleId"),
			"appium:app":               caps.Get("app"),
			"appium:newCommandTimeout": timeout,
			"appium:usePrebuiltWDA":    "true",
		}
	case core.PlatformAndroid:
		out = map[string]interface{}{
			"platformName":             "Android",
			"appium:platformVersion":   caps.Get("platformVersion"),
			"appium:deviceName":        caps.Get("deviceName"),
			"appium:udid":              caps.Get("udid"),
			"appium:automationName":    capOrDefault(caps, "automationName", "UiAutomator2"),
			"appium:appPackage":        caps.Get("appPackage"),
			"appium:appActivity":       caps.Get("appActivity"),
			"appium:app":               caps.Get("app"),
			"appium:newCommandTimeout": timeout,
		}
	default:
		return nil
	}

	// Carry configured keys not covered by the defaults, namespaced.
	for key, value := range caps {
		switch key {
		case "serverURL", "elementMapping":
			continue
		}
		namespaced := key
		if !strings.HasPrefix(key, "appium:") && key != "platformName" {
			namespaced = "appium:" + key
		}
		if _, exists := out[namespaced]; !exists && namespaced != "platformName" {
			out[namespaced] = value
		}
	}
	return out
}

func capOrDefault(caps Capabilities, name, fallback string) string {
	if v, ok := caps.Lookup(name); ok && v != "" {
		return v
	}
	return fallback
}

// Get returns the device for an index.
func (r *Registry) Get(index int) (*Device, bool) {
	dev, ok := r.devices[index]
	return dev, ok
}

// Indices returns the loaded device indices in ascending order.
func (r *Registry) Indices() []int {
	out := make([]int, 0, len(r.devices))
	for index := range r.devices {
		out = append(out, index)
	}
	sort.Ints(out)
	return out
}

// Conn returns the open session for an index, failing with a
// precondition error when the device is unknown or not initialized.
func (r *Registry) Conn(index int) (driver.Conn, error) {
	dev, ok := r.devices[index]
	if !ok {
		return nil, core.ErrDeviceUnknown.WithMessage("device %d not found in loaded configuration", index)
	}
	if dev.conn == nil {
		return nil, core.ErrSessionNotInitialized.WithMessage("device %d: session not initialized, call Init first", index)
	}
	return dev.conn, nil
}

// MappingPath returns the element mapping table path for an index.
func (r *Registry) MappingPath(index int) (string, error) {
	dev, ok := r.devices[index]
	if !ok {
		return "", core.ErrDeviceUnknown.WithMessage("device %d not found in loaded configuration", index)
	}
	return dev.MappingPath, nil
}

// Init opens a session for the device, replacing any existing handle.
// An override endpoint takes precedence over the configured one.
func (r *Registry) Init(index int, overrideURL string) error {
	dev, ok := r.devices[index]
	if !ok {
		return core.ErrDeviceUnknown.WithMessage("device %d not found in loaded configuration", index)
	}

	url := overrideURL
	if url == "" {
		url = dev.ServerURL
	}

	conn, err := r.dial(url, dev.SessionCaps, dev.Platform)
	if err != nil {
		return fmt.Errorf("initialize device %d at %s: %w", index, url, err)
	}
	if dev.conn != nil {
		// Replace the stale handle; best effort teardown.
		_ = dev.conn.Close()
	}
	dev.conn = conn
	r.log.Info("device session initialized",
		zap.Int("index", index),
		zap.String("serverURL", url),
		zap.String("platform", string(dev.Platform)))
	return nil
}

// Quit closes the device session. Idempotent when no session is open.
func (r *Registry) Quit(index int) error {
	dev, ok := r.devices[index]
	if !ok {
		return core.ErrDeviceUnknown.WithMessage("device %d not found in loaded configuration", index)
	}
	if dev.conn == nil {
		return nil
	}
	err := dev.conn.Close()
	dev.conn = nil
	if err != nil {
		return fmt.Errorf("quit device %d: %w", index, err)
	}
	r.log.Info("device session closed", zap.Int("index", index))
	return nil
}

// QuitAll closes every open session, keeping the first error.
func (r *Registry) QuitAll() error {
	var first error
	for _, index := range r.Indices() {
		if err := r.Quit(index); err != nil && first == nil {
			first = err
		}
	}
	return first
}
