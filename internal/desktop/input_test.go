package desktop

import (
	"fmt"
	"reflect"
	"testing"
	"time"
)

// recordingInjector captures calls for assertion.
type recordingInjector struct {
	calls []string
}

func (r *recordingInjector) MoveTo(x, y int) error {
	r.calls = append(r.calls, fmt.Sprintf("move(%d,%d)", x, y))
	return nil
}

func (r *recordingInjector) MouseDown(button MouseButton) error {
	r.calls = append(r.calls, fmt.Sprintf("down(%s)", button))
	return nil
}

func (r *recordingInjector) MouseUp(button MouseButton) error {
	r.calls = append(r.calls, fmt.Sprintf("up(%s)", button))
	return nil
}

func (r *recordingInjector) Scroll(stepsX, stepsY int) error {
	r.calls = append(r.calls, fmt.Sprintf("scroll(%d,%d)", stepsX, stepsY))
	return nil
}

func (r *recordingInjector) KeyDown(key string) error {
	r.calls = append(r.calls, "keydown("+key+")")
	return nil
}

func (r *recordingInjector) KeyUp(key string) error {
	r.calls = append(r.calls, "keyup("+key+")")
	return nil
}

func dualMonitorLayout() []Monitor {
	return []Monitor{
		{ID: "A", Name: "A", Width: 1920, Height: 1080, X: 0, Y: 0, IsPrimary: true, Scale: 1},
		{ID: "B", Name: "B", Width: 1920, Height: 1080, X: 1920, Y: 0, Scale: 1},
	}
}

func newTestRelay() (*InputRelay, *recordingInjector) {
	inj := &recordingInjector{}
	relay := NewInputRelay(inj)
	relay.dwell = 0 // no hotkey dwell in tests
	relay.SetMonitors(dualMonitorLayout())
	return relay, inj
}

func TestMultiMonitorClickTranslatesOrigin(t *testing.T) {
	relay, inj := newTestRelay()

	err := relay.HandleEvent(InputEvent{
		Type: "mousedown", Button: "left", X: 100, Y: 50, MonitorID: "B",
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	want := []string{"move(2020,50)", "down(left)"}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("calls = %v, want %v", inj.calls, want)
	}
}

func TestCoordinateTranslationPerMonitor(t *testing.T) {
	relay, inj := newTestRelay()

	for _, tc := range []struct {
		monitor string
		x, y    int
		want    string
	}{
		{"A", 10, 20, "move(10,20)"},
		{"B", 10, 20, "move(1930,20)"},
	} {
		inj.calls = nil
		if err := relay.HandleEvent(InputEvent{Type: "mousemove", X: tc.x, Y: tc.y, MonitorID: tc.monitor}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if len(inj.calls) != 1 || inj.calls[0] != tc.want {
			t.Errorf("monitor %s: calls = %v, want [%s]", tc.monitor, inj.calls, tc.want)
		}
	}
}

func TestUnknownMonitorFallsBackToActive(t *testing.T) {
	relay, inj := newTestRelay()
	relay.SetActive("B")

	if err := relay.HandleEvent(InputEvent{Type: "mousemove", X: 5, Y: 5, MonitorID: "Z"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Falls back to the active monitor's origin; never rejected.
	if len(inj.calls) != 1 || inj.calls[0] != "move(1925,5)" {
		t.Errorf("calls = %v, want [move(1925,5)]", inj.calls)
	}
}

func TestHotkeyPressesInOrderReleasesInReverse(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.Hotkey([]string{"Control", "Alt", "Delete"}); err != nil {
		t.Fatalf("hotkey: %v", err)
	}

	want := []string{
		"keydown(Control)", "keydown(Alt)", "keydown(Delete)",
		"keyup(Delete)", "keyup(Alt)", "keyup(Control)",
	}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("calls = %v, want %v", inj.calls, want)
	}
}

func TestWheelBelowOneNotchProducesNoScroll(t *testing.T) {
	relay, inj := newTestRelay()

	for _, delta := range []float64{0, 60, -119, 119} {
		if err := relay.HandleEvent(InputEvent{Type: "wheel", DeltaY: delta}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(inj.calls) != 0 {
		t.Errorf("sub-notch deltas produced calls: %v", inj.calls)
	}
}

func TestWheelConvertsNotchesToSteps(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "wheel", DeltaY: -240}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(inj.calls) != 1 || inj.calls[0] != "scroll(0,-2)" {
		t.Errorf("calls = %v, want [scroll(0,-2)]", inj.calls)
	}
}

func TestKeyRepeatSuppressedWithinInitialDelay(t *testing.T) {
	relay, inj := newTestRelay()

	clock := time.Unix(1700000000, 0)
	relay.now = func() time.Time { return clock }

	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "a", Code: "KeyA"}); err != nil {
		t.Fatalf("first down: %v", err)
	}
	if len(inj.calls) != 1 {
		t.Fatalf("expected 1 call after first down, got %v", inj.calls)
	}

	// Repeat 100ms after first down: inside the 500ms initial delay.
	clock = clock.Add(100 * time.Millisecond)
	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "a", Code: "KeyA", Repeat: true}); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if len(inj.calls) != 1 {
		t.Errorf("repeat within initial delay must be suppressed, calls = %v", inj.calls)
	}

	// Past the initial delay, repeats are emitted.
	clock = clock.Add(500 * time.Millisecond)
	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "a", Code: "KeyA", Repeat: true}); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if len(inj.calls) != 2 {
		t.Errorf("repeat past initial delay must be emitted, calls = %v", inj.calls)
	}

	// But throttled to the repeat interval.
	clock = clock.Add(5 * time.Millisecond)
	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "a", Code: "KeyA", Repeat: true}); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if len(inj.calls) != 2 {
		t.Errorf("repeat inside the interval must be suppressed, calls = %v", inj.calls)
	}
}

func TestModifiersPressedBeforeAndReleasedAfterKey(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "c", Code: "KeyC", Modifiers: []string{"ctrl"}}); err != nil {
		t.Fatalf("keydown: %v", err)
	}
	if err := relay.HandleEvent(InputEvent{Type: "keyup", Key: "c", Code: "KeyC", Modifiers: []string{"ctrl"}}); err != nil {
		t.Fatalf("keyup: %v", err)
	}

	want := []string{"keydown(Control)", "keydown(c)", "keyup(c)", "keyup(Control)"}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("calls = %v, want %v", inj.calls, want)
	}
}

func TestModifierKeyDoesNotPressItselfTwice(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "Control", Code: "ControlLeft", Modifiers: []string{"ctrl"}}); err != nil {
		t.Fatalf("keydown: %v", err)
	}
	if len(inj.calls) != 1 || inj.calls[0] != "keydown(Control)" {
		t.Errorf("calls = %v, want single keydown(Control)", inj.calls)
	}
}

func TestUnmappedKeyDroppedWithoutError(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "keydown", Key: "MysteryKey"}); err != nil {
		t.Fatalf("unmapped key must not error: %v", err)
	}
	if len(inj.calls) != 0 {
		t.Errorf("unmapped key produced calls: %v", inj.calls)
	}
}

func TestUnknownEventTypeIgnored(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "telepathy"}); err != nil {
		t.Fatalf("unknown type must not error: %v", err)
	}
	if len(inj.calls) != 0 {
		t.Errorf("unknown type produced calls: %v", inj.calls)
	}
}

func TestPinchGestureZooms(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "gesture", Gesture: "pinch", Scale: 1.4}); err != nil {
		t.Fatalf("pinch: %v", err)
	}
	want := []string{"keydown(Control)", "keydown(+)", "keyup(+)", "keyup(Control)"}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("pinch out calls = %v, want %v", inj.calls, want)
	}

	inj.calls = nil
	if err := relay.HandleEvent(InputEvent{Type: "gesture", Gesture: "pinch", Scale: 0.7}); err != nil {
		t.Fatalf("pinch: %v", err)
	}
	want = []string{"keydown(Control)", "keydown(-)", "keyup(-)", "keyup(Control)"}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("pinch in calls = %v, want %v", inj.calls, want)
	}
}

func TestPanGestureTapsDominantAxis(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "gesture", Gesture: "pan", DeltaX: 10, DeltaY: -80}); err != nil {
		t.Fatalf("pan: %v", err)
	}
	want := []string{"keydown(ArrowUp)", "keyup(ArrowUp)"}
	if !reflect.DeepEqual(inj.calls, want) {
		t.Errorf("pan calls = %v, want %v", inj.calls, want)
	}
}

func TestRotateGestureIsNoOp(t *testing.T) {
	relay, inj := newTestRelay()

	if err := relay.HandleEvent(InputEvent{Type: "gesture", Gesture: "rotate", Rotation: 45}); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if len(inj.calls) != 0 {
		t.Errorf("rotate is reserved, produced calls: %v", inj.calls)
	}
}

func TestMultiTouchForwardsPrimaryTouch(t *testing.T) {
	relay, inj := newTestRelay()

	err := relay.HandleEvent(InputEvent{
		Type:    "mousemultitouch",
		Touches: []TouchPoint{{X: 40, Y: 60}, {X: 400, Y: 600}},
	})
	if err != nil {
		t.Fatalf("multitouch: %v", err)
	}
	if len(inj.calls) != 1 || inj.calls[0] != "move(40,60)" {
		t.Errorf("calls = %v, want [move(40,60)]", inj.calls)
	}
}

func TestResolveKeyPrecedence(t *testing.T) {
	cases := []struct {
		code, key string
		want      string
		ok        bool
	}{
		{"KeyQ", "q", "q", true},
		{"Digit7", "7", "7", true},
		{"Numpad3", "3", "3", true},
		{"F11", "F11", "F11", true},
		{"ArrowUp", "ArrowUp", "ArrowUp", true},
		{"ControlLeft", "Control", "Control", true},
		{"NumpadAdd", "+", "+", true},
		{"", "Enter", "Enter", true},
		{"", "Add", "+", true},
		{"", "x", "x", true},
		{"", "é", "é", true},
		{"", "Mystery", "", false},
		{"F13", "", "", false},
	}
	for _, tc := range cases {
		got, ok := resolveKey(tc.code, tc.key)
		if ok != tc.ok || got != tc.want {
			t.Errorf("resolveKey(%q,%q) = (%q,%v), want (%q,%v)", tc.code, tc.key, got, ok, tc.want, tc.ok)
		}
	}
}
