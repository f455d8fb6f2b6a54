package device

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/driver/mock"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devices.ini")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[Device_1]
platformName = iOS
platformVersion = 17.0
deviceName = iPhone 15
udid = ABC-123
bundleId = com.example.app
serverURL = http://localhost:4723/wd/hub
elementMapping = %APP%/ios.map

[Device_2]
platformName = Android
deviceName = Pixel 8
udid = emulator-5554
appPackage = com.example.app
appActivity = .MainActivity
serverURL = http://localhost:4725/wd/hub
elementMapping = %APP%/android.map
`

func TestLoadConfiguration(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)

	if err := r.LoadConfiguration(path); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}

	indices := r.Indices()
	if len(indices) != 2 || indices[0] != 1 || indices[1] != 2 {
		t.Fatalf("Indices() = %v, want [1 2]", indices)
	}

	dev, ok := r.Get(1)
	if !ok {
		t.Fatal("device 1 missing")
	}
	if dev.Platform != core.PlatformIOS {
		t.Errorf("platform = %q, want ios", dev.Platform)
	}

	// %APP% resolves to the configuration file's directory.
	wantDir := filepath.Dir(path)
	if !strings.HasPrefix(dev.MappingPath, wantDir) {
		t.Errorf("MappingPath = %q, want prefix %q", dev.MappingPath, wantDir)
	}
}

func TestLoadConfiguration_SkipsBrokenSections(t *testing.T) {
	path := writeConfig(t, `
[Device_1]
platformName = iOS
serverURL = http://localhost:4723/wd/hub
elementMapping = ios.map

[Device_abc]
platformName = iOS
serverURL = http://localhost:4723/wd/hub
elementMapping = ios.map

[Device_2]
platformName = windows
serverURL = http://localhost:4723/wd/hub
elementMapping = win.map

[Device_3]
platformName = Android
elementMapping = android.map

[Device_4]
platformName = Android
serverURL = http://localhost:4725/wd/hub
`)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}

	// Only the fully specified section survives.
	indices := r.Indices()
	if len(indices) != 1 || indices[0] != 1 {
		t.Errorf("Indices() = %v, want [1]", indices)
	}
}

func TestNegotiate_IOSDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	dev, _ := r.Get(1)
	caps := dev.SessionCaps
	if caps["platformName"] != "iOS" {
		t.Errorf("platformName = %v", caps["platformName"])
	}
	if caps["appium:automationName"] != "XCUITest" {
		t.Errorf("automationName = %v, want XCUITest default", caps["appium:automationName"])
	}
	if caps["appium:newCommandTimeout"] != 600 {
		t.Errorf("newCommandTimeout = %v, want 600 default", caps["appium:newCommandTimeout"])
	}
	if caps["appium:usePrebuiltWDA"] != "true" {
		t.Errorf("usePrebuiltWDA = %v", caps["appium:usePrebuiltWDA"])
	}
	if caps["appium:bundleId"] != "com.example.app" {
		t.Errorf("bundleId = %v", caps["appium:bundleId"])
	}

	// Connection-only keys never reach the session.
	for key := range caps {
		if strings.Contains(key, "serverURL") || strings.Contains(key, "elementMapping") {
			t.Errorf("connection key %q leaked into session capabilities", key)
		}
	}
}

func TestNegotiate_AndroidDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	dev, _ := r.Get(2)
	caps := dev.SessionCaps
	if caps["platformName"] != "Android" {
		t.Errorf("platformName = %v", caps["platformName"])
	}
	if caps["appium:automationName"] != "UiAutomator2" {
		t.Errorf("automationName = %v, want UiAutomator2 default", caps["appium:automationName"])
	}
	if caps["appium:appPackage"] != "com.example.app" {
		t.Errorf("appPackage = %v", caps["appium:appPackage"])
	}
}

func TestNegotiate_CarriesExtraKeys(t *testing.T) {
	path := writeConfig(t, `
[Device_1]
platformName = iOS
serverURL = http://localhost:4723/wd/hub
elementMapping = ios.map
customSetting = custom-value
`)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	dev, _ := r.Get(1)
	if dev.SessionCaps["appium:customSetting"] != "custom-value" {
		t.Errorf("extra key not carried: %v", dev.SessionCaps)
	}
}

func TestCapabilitiesLookup(t *testing.T) {
	caps := Capabilities{
		"appium:bundleId": "com.example",
		"devicename":      "lowercased",
		"udid":            "ABC",
	}

	if v := caps.Get("bundleId"); v != "com.example" {
		t.Errorf("bundleId = %q", v)
	}
	if v := caps.Get("deviceName"); v != "lowercased" {
		t.Errorf("deviceName = %q", v)
	}
	if v := caps.Get("udid"); v != "ABC" {
		t.Errorf("udid = %q", v)
	}
	if _, ok := caps.Lookup("missing"); ok {
		t.Error("Lookup(missing) = ok")
	}
}

func TestInitAndQuit(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	conn := mock.New(core.PlatformIOS, "<AppiumAUT><a/></AppiumAUT>")
	var dialedURL string
	r.SetDialer(func(serverURL string, caps map[string]interface{}, platform core.Platform) (driver.Conn, error) {
		dialedURL = serverURL
		return conn, nil
	})

	if _, err := r.Conn(1); !errors.Is(err, core.ErrSessionNotInitialized) {
		t.Errorf("Conn before Init = %v, want session-not-initialized", err)
	}

	if err := r.Init(1, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if dialedURL != "http://localhost:4723/wd/hub" {
		t.Errorf("dialed %q, want configured URL", dialedURL)
	}

	got, err := r.Conn(1)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	if got != conn {
		t.Error("Conn returned a different handle")
	}

	if err := r.Quit(1); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if !conn.Closed {
		t.Error("session not closed on Quit")
	}
	// Quit with no open session is a no-op.
	if err := r.Quit(1); err != nil {
		t.Errorf("second Quit: %v", err)
	}
}

func TestInit_OverrideURL(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	var dialedURL string
	r.SetDialer(func(serverURL string, caps map[string]interface{}, platform core.Platform) (driver.Conn, error) {
		dialedURL = serverURL
		return mock.New(core.PlatformIOS), nil
	})

	if err := r.Init(1, "http://override:9999"); err != nil {
		t.Fatal(err)
	}
	if dialedURL != "http://override:9999" {
		t.Errorf("dialed %q, want override", dialedURL)
	}
}

func TestUnknownDevice(t *testing.T) {
	r := NewRegistry(nil)

	if _, err := r.Conn(9); !errors.Is(err, core.ErrDeviceUnknown) {
		t.Errorf("Conn = %v, want device-unknown", err)
	}
	if err := r.Init(9, ""); !errors.Is(err, core.ErrDeviceUnknown) {
		t.Errorf("Init = %v, want device-unknown", err)
	}
	if err := r.Quit(9); !errors.Is(err, core.ErrDeviceUnknown) {
		t.Errorf("Quit = %v, want device-unknown", err)
	}
	if _, err := r.MappingPath(9); !errors.Is(err, core.ErrDeviceUnknown) {
		t.Errorf("MappingPath = %v, want device-unknown", err)
	}
}

func TestReload_KeepsOpenSession(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	r := NewRegistry(nil)
	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}

	conn := mock.New(core.PlatformIOS)
	r.SetDialer(func(string, map[string]interface{}, core.Platform) (driver.Conn, error) {
		return conn, nil
	})
	if err := r.Init(1, ""); err != nil {
		t.Fatal(err)
	}

	if err := r.LoadConfiguration(path); err != nil {
		t.Fatal(err)
	}
	got, err := r.Conn(1)
	if err != nil {
		t.Fatalf("Conn after reload: %v", err)
	}
	if got != conn {
		t.Error("reload dropped the open session")
	}
}
