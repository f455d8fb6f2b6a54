package engine_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/devicelab-dev/uibridge/pkg/core"
	"github.com/devicelab-dev/uibridge/pkg/device"
	"github.com/devicelab-dev/uibridge/pkg/driver"
	"github.com/devicelab-dev/uibridge/pkg/driver/mock"
	"github.com/devicelab-dev/uibridge/pkg/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeOCR is a TextFinder that always reports the same coordinates.
type fakeOCR struct{ x, y int }

func (f fakeOCR) FindText(png []byte, query string) (int, int, bool, error) {
	return f.x, f.y, true, nil
}

func withFakeOCR(x, y int) engine.Option {
	return engine.WithTextFinder(fakeOCR{x: x, y: y})
}

// Page sources used across the interaction tests. Coordinates live in
// a 1000x2000 viewport (the mock default).
const (
	emptySource = `<AppiumAUT><XCUIElementTypeWindow x="0" y="0" width="1000" height="2000"/></AppiumAUT>`

	loginSource = `<AppiumAUT><XCUIElementTypeWindow x="0" y="0" width="1000" height="2000">
		<XCUIElementTypeButton name="Login" x="10" y="100" width="100" height="40" enabled="true"/>
	</XCUIElementTypeWindow></AppiumAUT>`

	loginExpr = `//XCUIElementTypeButton[@name='Login']`
)

const defaultMapping = `LoginButton <=> //XCUIElementTypeButton[@name='Login']
Field <=> //XCUIElementTypeTextField[@name='user']
Status <=> //XCUIElementTypeStaticText[@name='Status']
StatusIcon <=> //XCUIElementTypeImage[@name='ble']
`

// newTestEngine wires a mock connection behind a registry loaded from a
// generated configuration file and opens the session for device 1.
func newTestEngine(t *testing.T, conn *mock.Conn, mapping, extraCaps string, opts ...engine.Option) *engine.Engine {
	t.Helper()
	dir := t.TempDir()

	if mapping == "" {
		mapping = defaultMapping
	}
	if err := os.WriteFile(filepath.Join(dir, "el.map"), []byte(mapping), 0644); err != nil {
		t.Fatal(err)
	}

	platformName := "iOS"
	if conn.PlatformKind == core.PlatformAndroid {
		platformName = "Android"
	}
	ini := fmt.Sprintf(`[Device_1]
platformName = %s
serverURL = http://test:4723/wd/hub
elementMapping = %%APP%%/el.map
%s`, platformName, extraCaps)
	iniPath := filepath.Join(dir, "devices.ini")
	if err := os.WriteFile(iniPath, []byte(ini), 0644); err != nil {
		t.Fatal(err)
	}

	reg := device.NewRegistry(zap.NewNop())
	reg.SetDialer(func(string, map[string]interface{}, core.Platform) (driver.Conn, error) {
		return conn, nil
	})

	base := []engine.Option{
		engine.WithPollInterval(5 * time.Millisecond),
		engine.WithPanelTimeout(100 * time.Millisecond),
		engine.WithSearchTimeout(150 * time.Millisecond),
	}
	eng := engine.New(reg, zap.NewNop(), append(base, opts...)...)

	if err := eng.LoadConfiguration(iniPath); err != nil {
		t.Fatalf("LoadConfiguration: %v", err)
	}
	if err := eng.Init(1, ""); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = eng.Quit(1) })
	return eng
}

func TestLifecycle(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	if err := eng.Quit(1); err != nil {
		t.Fatalf("Quit: %v", err)
	}
	if !conn.Closed {
		t.Error("session not closed")
	}

	// Operations after Quit fail with a precondition error.
	if err := eng.TapElement(1, "LoginButton"); err == nil {
		t.Error("expected error after Quit")
	}
}

func TestTakeScreenshot(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	conn.Png = []byte("fake png bytes")
	eng := newTestEngine(t, conn, "", "")

	path := filepath.Join(t.TempDir(), "shot.png")
	if err := eng.TakeScreenshot(1, path); err != nil {
		t.Fatalf("TakeScreenshot: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake png bytes" {
		t.Error("screenshot contents mismatch")
	}
}

func TestGetAllElementMap(t *testing.T) {
	conn := mock.New(core.PlatformIOS, loginSource)
	eng := newTestEngine(t, conn, "", "")

	contents, err := eng.GetAllElementMap(1)
	if err != nil {
		t.Fatalf("GetAllElementMap: %v", err)
	}
	if contents != defaultMapping {
		t.Errorf("mapping contents mismatch:\n%s", contents)
	}
}
