package driver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/uibridge/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// DefaultServerURL is used when a device section configures no endpoint.
const DefaultServerURL = "http://localhost:4723/wd/hub"

// Client implements Conn over HTTP against an Appium-compatible server.
type Client struct {
	serverURL string
	sessionID string
	platform  core.Platform
	client    *http.Client
}

// NewClient creates a client for the given server endpoint. The session
// is opened by Connect.
func NewClient(serverURL string) *Client {
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Minute, // session creation and screenshots are slow
		},
	}
}

// Connect opens a session with the given capabilities.
func (c *Client) Connect(capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	resp, err := c.post("/session", body)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}
	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	if caps, ok := value["capabilities"].(map[string]interface{}); ok {
		if platform, ok := caps["platformName"].(string); ok {
			c.platform = core.ParsePlatform(platform)
		}
	}
	return nil
}

// SessionID returns the open session identifier, or "" when closed.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the attribute schema reported by the server.
func (c *Client) Platform() core.Platform {
	return c.platform
}

// SetPlatform overrides the platform kind, for servers that omit
// platformName from the session response.
func (c *Client) SetPlatform(p core.Platform) {
	c.platform = p
}

// Close terminates the session. Idempotent.
func (c *Client) Close() error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(c.sessionPath())
	c.sessionID = ""
	return err
}

// Source fetches the page source XML.
func (c *Client) Source() (string, error) {
	resp, err := c.get(c.sessionPath() + "/source")
	if err != nil {
		return "", err
	}
	source, _ := resp["value"].(string)
	return source, nil
}

// WindowSize returns the viewport dimensions.
func (c *Client) WindowSize() (int, int, error) {
	resp, err := c.get(c.sessionPath() + "/window/rect")
	if err != nil {
		return 0, 0, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return 0, 0, fmt.Errorf("invalid window rect response")
	}
	w, _ := value["width"].(float64)
	h, _ := value["height"].(float64)
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid screen dimensions %dx%d", int(w), int(h))
	}
	return int(w), int(h), nil
}

// Screenshot returns the current screen as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	resp, err := c.get(c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// FindElement locates an element by XPath and returns its handle.
func (c *Client) FindElement(expr string) (string, error) {
	return c.findElement("xpath", expr)
}

// FindElementByID locates an element by accessibility identifier.
func (c *Client) FindElementByID(id string) (string, error) {
	return c.findElement("accessibility id", id)
}

func (c *Client) findElement(using, value string) (string, error) {
	body := map[string]interface{}{
		"using": using,
		"value": value,
	}
	resp, err := c.post(c.sessionPath()+"/element", body)
	if err != nil {
		return "", err
	}
	elem, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", &ProtocolError{Kind: "no such element", Message: value}
	}
	id := extractElementID(elem)
	if id == "" {
		return "", &ProtocolError{Kind: "no such element", Message: value}
	}
	return id, nil
}

// Click clicks an element through the standard element endpoint.
func (c *Client) Click(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/click", nil)
	return err
}

// Clear clears an element's text content.
func (c *Client) Clear(elementID string) error {
	_, err := c.post(c.elementPath(elementID)+"/clear", nil)
	return err
}

// SendKeys types text into an element.
func (c *Client) SendKeys(elementID, text string) error {
	_, err := c.post(c.elementPath(elementID)+"/value", map[string]interface{}{
		"text": text,
	})
	return err
}

// ElementRect returns an element's position and size.
func (c *Client) ElementRect(elementID string) (core.Bounds, error) {
	resp, err := c.get(c.elementPath(elementID) + "/rect")
	if err != nil {
		return core.Bounds{}, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return core.Bounds{}, fmt.Errorf("invalid rect response")
	}
	x, _ := value["x"].(float64)
	y, _ := value["y"].(float64)
	w, _ := value["width"].(float64)
	h, _ := value["height"].(float64)
	return core.Bounds{X: int(x), Y: int(y), Width: int(w), Height: int(h)}, nil
}

// ElementText returns an element's visible text.
func (c *Client) ElementText(elementID string) (string, error) {
	resp, err := c.get(c.elementPath(elementID) + "/text")
	if err != nil {
		return "", err
	}
	text, _ := resp["value"].(string)
	return text, nil
}

// ElementAttr returns a named attribute of an element.
func (c *Client) ElementAttr(elementID, name string) (string, error) {
	resp, err := c.get(c.elementPath(elementID) + "/attribute/" + name)
	if err != nil {
		return "", err
	}
	value, _ := resp["value"].(string)
	return value, nil
}

// Tap dispatches the platform-native coordinate tap: "mobile: tap" on
// iOS, "mobile: clickGesture" on Android.
func (c *Client) Tap(x, y int) error {
	args := map[string]interface{}{"x": x, "y": y}
	if c.platform == core.PlatformIOS {
		_, err := c.ExecuteMobile("tap", args)
		return err
	}
	_, err := c.ExecuteMobile("clickGesture", args)
	return err
}

// Swipe performs a pointer drag using W3C actions.
func (c *Client) Swipe(startX, startY, endX, endY, durationMs int) error {
	return c.performPointerAction([]map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": startX, "y": startY, "origin": "viewport"},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": durationMs, "x": endX, "y": endY, "origin": "viewport"},
		{"type": "pointerUp", "button": 0},
	})
}

// Back navigates back in the foreground app.
func (c *Client) Back() error {
	if c.platform == core.PlatformAndroid {
		return c.PressKeyCode(4) // KEYCODE_BACK
	}
	_, err := c.post(c.sessionPath()+"/back", nil)
	return err
}

// PressKeyCode sends a hardware keycode (Android).
func (c *Client) PressKeyCode(keycode int) error {
	_, err := c.post(c.sessionPath()+"/appium/device/press_keycode", map[string]interface{}{
		"keycode": keycode,
	})
	return err
}

// Lock locks the device screen.
func (c *Client) Lock() error {
	_, err := c.post(c.sessionPath()+"/appium/device/lock", nil)
	return err
}

// Unlock wakes and unlocks the device screen.
func (c *Client) Unlock() error {
	_, err := c.post(c.sessionPath()+"/appium/device/unlock", nil)
	return err
}

// IsLocked reports the device lock state.
func (c *Client) IsLocked() (bool, error) {
	resp, err := c.post(c.sessionPath()+"/appium/device/is_locked", nil)
	if err != nil {
		return false, err
	}
	locked, _ := resp["value"].(bool)
	return locked, nil
}

// ExecuteMobile executes a "mobile:" extension command.
func (c *Client) ExecuteMobile(command string, args map[string]interface{}) (interface{}, error) {
	resp, err := c.post(c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": "mobile: " + command,
		"args":   []interface{}{args},
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}

func (c *Client) performPointerAction(actions []map[string]interface{}) error {
	payload := []map[string]interface{}{
		{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]interface{}{"pointerType": "touch"},
			"actions":    actions,
		},
	}
	_, err := c.post(c.sessionPath()+"/actions", map[string]interface{}{"actions": payload})
	return err
}

// HTTP helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(path string) (map[string]interface{}, error) {
	return c.request("GET", path, nil)
}

func (c *Client) post(path string, body interface{}) (map[string]interface{}, error) {
	return c.request("POST", path, body)
}

func (c *Client) delete(path string) (map[string]interface{}, error) {
	return c.request("DELETE", path, nil)
}

func (c *Client) request(method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, core.ErrTransport.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.ErrTransport.WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrTransport.WithCause(err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, core.ErrTransport.WithMessage("unparsable response from %s %s", method, path).WithCause(err)
	}

	// W3C error responses carry value.error and value.message.
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if kind, ok := errValue["error"].(string); ok {
			message, _ := errValue["message"].(string)
			return result, &ProtocolError{Kind: kind, Message: message}
		}
	}
	return result, nil
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
