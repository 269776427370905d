package desktop

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testReadTimeout = 5 * time.Second

func testMonitors() []Monitor {
	return []Monitor{
		{ID: "A", Name: "Primary", Width: 64, Height: 48, X: 0, Y: 0, IsPrimary: true, Scale: 1},
		{ID: "B", Name: "Secondary", Width: 32, Height: 24, X: 64, Y: 0, Scale: 1},
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(ServerConfig{
		Hostname:   "testhost",
		Enumerator: &StaticEnumerator{Monitors: testMonitors()},
		NewInjector: func() SystemInjector {
			return &recordingInjector{}
		},
	})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	t.Cleanup(func() {
		srv.StopAllSessions()
		ts.Close()
	})
	return srv, ts
}

func dialTestServer(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTextOfType reads messages until a text message of the wanted type
// arrives, skipping binary frames and other text messages.
func readTextOfType(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(testReadTimeout)
	conn.SetReadDeadline(deadline)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", wantType, err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad JSON from server: %v", err)
		}
		if msg["type"] == wantType {
			return msg
		}
	}
}

// readBinaryFrame reads messages until a binary frame arrives.
func readBinaryFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testReadTimeout))
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for binary frame: %v", err)
		}
		if msgType == websocket.BinaryMessage {
			return data
		}
	}
}

// Cold start: server_info, then monitors, then a raw first frame describing
// the selected display with frame number zero.
func TestColdStartHandshakeAndFirstFrame(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "?monitor=0")

	info := readTextOfType(t, conn, "server_info")
	if info["width"] != float64(64) || info["height"] != float64(48) {
		t.Errorf("server_info geometry = %vx%v, want 64x48", info["width"], info["height"])
	}
	if info["hostname"] != "testhost" {
		t.Errorf("hostname = %v", info["hostname"])
	}

	monitors := readTextOfType(t, conn, "monitors")
	list, ok := monitors["monitors"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("monitors message = %v, want 2 entries", monitors["monitors"])
	}

	// Negotiate immediately so the first frame doesn't wait out the grace.
	if err := conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 1}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	frame := readBinaryFrame(t, conn)
	parsed, err := ParseRawFrame(frame)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if parsed.Width != 64 || parsed.Height != 48 {
		t.Errorf("first frame %dx%d, want 64x48", parsed.Width, parsed.Height)
	}
	if parsed.FrameNumber != 0 {
		t.Errorf("first frame number = %d, want 0", parsed.FrameNumber)
	}
	if dataLen := binary.LittleEndian.Uint32(frame[20:24]); dataLen != 64*48*4 {
		t.Errorf("data_length = %d, want %d", dataLen, 64*48*4)
	}
}

// An out-of-range monitor query falls back to the primary, no error.
func TestMonitorQueryOutOfRangeFallsBackToPrimary(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "?monitor=99")

	info := readTextOfType(t, conn, "server_info")
	if info["width"] != float64(64) || info["height"] != float64(48) {
		t.Errorf("geometry = %vx%v, want primary 64x48", info["width"], info["height"])
	}
	if info["monitor"] != float64(0) {
		t.Errorf("monitor index = %v, want 0", info["monitor"])
	}
}

func TestMonitorQuerySelectsSecondary(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "?monitor=1")

	info := readTextOfType(t, conn, "server_info")
	if info["width"] != float64(32) || info["height"] != float64(24) {
		t.Errorf("geometry = %vx%v, want secondary 32x24", info["width"], info["height"])
	}
}

// Two pings with distinct timestamps receive two pongs preserving them.
func TestPingPongPreservesTimestamps(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors") // consume the handshake

	for _, stamp := range []uint64{111, 222} {
		if err := conn.WriteJSON(map[string]any{"type": "ping", "timestamp": stamp}); err != nil {
			t.Fatalf("write ping: %v", err)
		}
		pong := readTextOfType(t, conn, "pong")
		if pong["timestamp"] != float64(stamp) {
			t.Errorf("pong timestamp = %v, want %d", pong["timestamp"], stamp)
		}
	}
}

func TestMalformedAndUnknownMessagesIgnored(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if err := conn.WriteJSON(map[string]any{"type": "definitely_not_a_thing"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}

	// The session must survive both; a ping still gets its pong.
	if err := conn.WriteJSON(map[string]any{"type": "ping", "timestamp": 7}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	pong := readTextOfType(t, conn, "pong")
	if pong["timestamp"] != float64(7) {
		t.Errorf("pong timestamp = %v, want 7", pong["timestamp"])
	}
}

func TestRequestKeyframeAcknowledged(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors")

	if err := conn.WriteJSON(map[string]any{"type": "request_keyframe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := readTextOfType(t, conn, "keyframe_response")
	if resp["status"] != "requested" {
		t.Errorf("status = %v, want requested", resp["status"])
	}
}

func TestQualitySettingAdvertised(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors")

	if err := conn.WriteJSON(map[string]any{"type": "quality_setting", "quality": 55}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// The adaptive controller may interleave its own quality advisories;
	// wait for the one acknowledging the explicit setting.
	deadline := time.Now().Add(testReadTimeout)
	for {
		msg := readTextOfType(t, conn, "quality")
		if msg["value"] == float64(55) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("never saw quality value 55, last = %v", msg["value"])
		}
	}
}

func TestSwitchCodecDeclinedForUnknownCodec(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors")

	if err := conn.WriteJSON(map[string]any{"type": "switch_codec", "codec": "h264"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := readTextOfType(t, conn, "codec_switch_response")
	if resp["success"] != false {
		t.Errorf("success = %v, want false for unsupported codec", resp["success"])
	}
}

// A disconnected viewer's session must leave the registry.
func TestSessionRemovedFromRegistryOnDisconnect(t *testing.T) {
	srv, ts := newTestServer(t)
	conn := dialTestServer(t, ts, "")

	readTextOfType(t, conn, "monitors")
	if srv.ActiveSessions() != 1 {
		t.Fatalf("active sessions = %d, want 1", srv.ActiveSessions())
	}

	conn.Close()

	deadline := time.Now().Add(testReadTimeout)
	for srv.ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionLimitRejectsExtraViewers(t *testing.T) {
	srv := NewServer(ServerConfig{
		MaxSessions: 1,
		Enumerator:  &StaticEnumerator{Monitors: testMonitors()},
		NewInjector: func() SystemInjector { return &recordingInjector{} },
	})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	defer func() {
		srv.StopAllSessions()
		ts.Close()
	}()

	conn := dialTestServer(t, ts, "")
	readTextOfType(t, conn, "monitors")

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second viewer to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}

// Input events ride the same socket and reach the injector translated into
// host-global coordinates.
func TestInputEventReachesInjector(t *testing.T) {
	captured := make(chan string, 16)
	srv := NewServer(ServerConfig{
		Enumerator: &StaticEnumerator{Monitors: testMonitors()},
		NewInjector: func() SystemInjector {
			return &channelInjector{calls: captured}
		},
	})
	ts := httptest.NewServer(http.HandlerFunc(srv.handleWS))
	defer func() {
		srv.StopAllSessions()
		ts.Close()
	}()

	conn := dialTestServer(t, ts, "")
	readTextOfType(t, conn, "monitors")

	err := conn.WriteJSON(map[string]any{
		"type": "mousedown", "button": "left", "x": 10, "y": 20, "monitor_id": "B",
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []string{"move(74,20)", "down(left)"}
	for _, expected := range want {
		select {
		case got := <-captured:
			if got != expected {
				t.Fatalf("injector call = %q, want %q", got, expected)
			}
		case <-time.After(testReadTimeout):
			t.Fatalf("timed out waiting for injector call %q", expected)
		}
	}
}

// channelInjector reports calls over a channel for cross-goroutine tests.
type channelInjector struct {
	calls chan string
}

func (c *channelInjector) push(s string) error {
	select {
	case c.calls <- s:
	default:
	}
	return nil
}

func (c *channelInjector) MoveTo(x, y int) error {
	return c.push(fmt.Sprintf("move(%d,%d)", x, y))
}
func (c *channelInjector) MouseDown(b MouseButton) error { return c.push("down(" + string(b) + ")") }
func (c *channelInjector) MouseUp(b MouseButton) error   { return c.push("up(" + string(b) + ")") }
func (c *channelInjector) Scroll(x, y int) error {
	return c.push(fmt.Sprintf("scroll(%d,%d)", x, y))
}
func (c *channelInjector) KeyDown(k string) error { return c.push("keydown(" + k + ")") }
func (c *channelInjector) KeyUp(k string) error   { return c.push("keyup(" + k + ")") }
