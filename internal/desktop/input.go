package desktop

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cleardesk/kvmd/internal/logging"
)

// MouseButton is a wire-level button name.
type MouseButton string

const (
	MouseLeft   MouseButton = "left"
	MouseMiddle MouseButton = "middle"
	MouseRight  MouseButton = "right"
)

// wheelNotch is the wire delta of one scroll notch.
const wheelNotch = 120

// Key-repeat policy: repeats are suppressed until the initial delay has
// elapsed since first down, then emitted at the repeat interval.
const (
	repeatInitialDelay = 500 * time.Millisecond
	repeatInterval     = 30 * time.Millisecond
)

// hotkeyDwell is the hold time between pressing and releasing a combination.
const hotkeyDwell = 50 * time.Millisecond

// InputEvent is a client input message. One struct covers all input types;
// the Type discriminator selects which fields are meaningful.
type InputEvent struct {
	Type      string   `json:"type"`
	X         int      `json:"x,omitempty"`
	Y         int      `json:"y,omitempty"`
	MonitorID string   `json:"monitor_id,omitempty"`
	Button    string   `json:"button,omitempty"`
	DeltaX    float64  `json:"delta_x,omitempty"`
	DeltaY    float64  `json:"delta_y,omitempty"`
	Key       string   `json:"key,omitempty"`
	Code      string   `json:"code,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Repeat    bool     `json:"repeat,omitempty"`

	// hotkey
	Combination []string `json:"combination,omitempty"`

	// gesture
	Gesture  string  `json:"gesture,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`

	// mousemultitouch
	Touches []TouchPoint `json:"touches,omitempty"`
}

// TouchPoint is one contact in a multi-touch event.
type TouchPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// isInputEventType reports whether a wire message type is routed to the
// input queue rather than control dispatch.
func isInputEventType(t string) bool {
	switch t {
	case "mousemove", "mousedown", "mouseup", "wheel",
		"keydown", "keyup", "hotkey", "gesture", "mousemultitouch":
		return true
	default:
		return false
	}
}

// SystemInjector synthesizes events at OS level in host-global coordinates.
// Implementations are per-platform; each call is synchronous and
// non-blocking at event granularity.
type SystemInjector interface {
	MoveTo(x, y int) error
	MouseDown(button MouseButton) error
	MouseUp(button MouseButton) error
	// Scroll takes signed steps (wire deltas already divided by the notch).
	Scroll(stepsX, stepsY int) error
	KeyDown(key string) error
	KeyUp(key string) error
}

type pressState struct {
	firstDown  time.Time
	lastRepeat time.Time
}

// InputRelay translates per-viewer input events into host-global injector
// calls: coordinate translation across monitors, key mapping, key-repeat
// suppression, modifier ordering, and gesture synthesis.
type InputRelay struct {
	inj SystemInjector
	log *slog.Logger

	mu       sync.Mutex
	monitors []Monitor
	active   Monitor
	pressed  map[string]pressState

	dwell time.Duration
	now   func() time.Time
}

func NewInputRelay(inj SystemInjector) *InputRelay {
	return &InputRelay{
		inj:     inj,
		log:     logging.L("input"),
		pressed: make(map[string]pressState),
		dwell:   hotkeyDwell,
		now:     time.Now,
	}
}

// SetMonitors records the active monitor set and origins.
func (r *InputRelay) SetMonitors(layout []Monitor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitors = make([]Monitor, len(layout))
	copy(r.monitors, layout)
	if r.active.ID == "" {
		if primary, ok := PrimaryMonitor(r.monitors); ok {
			r.active = primary
		}
	}
}

// SetActive selects the monitor used when events carry no monitor hint.
func (r *InputRelay) SetActive(monitorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := FindMonitor(r.monitors, monitorID); ok {
		r.active = m
	} else {
		r.log.Warn("unknown monitor for set_active", "monitorId", monitorID)
	}
}

// HandleEvent processes one input event. Errors are injector failures; an
// unmapped key or unknown event type is logged and dropped, never an error.
func (r *InputRelay) HandleEvent(ev InputEvent) error {
	switch ev.Type {
	case "mousemove":
		x, y := r.translate(ev.MonitorID, ev.X, ev.Y)
		return r.inj.MoveTo(x, y)
	case "mousedown":
		x, y := r.translate(ev.MonitorID, ev.X, ev.Y)
		if err := r.inj.MoveTo(x, y); err != nil {
			return err
		}
		return r.inj.MouseDown(parseButton(ev.Button))
	case "mouseup":
		return r.inj.MouseUp(parseButton(ev.Button))
	case "wheel":
		return r.handleWheel(ev)
	case "keydown":
		return r.handleKeyDown(ev)
	case "keyup":
		return r.handleKeyUp(ev)
	case "hotkey":
		return r.Hotkey(ev.Combination)
	case "gesture":
		return r.handleGesture(ev)
	case "mousemultitouch":
		// Only the primary touch point is forwarded; gesture synthesis
		// beyond pinch/pan/rotate is out of scope.
		if len(ev.Touches) > 0 {
			x, y := r.translate(ev.MonitorID, ev.Touches[0].X, ev.Touches[0].Y)
			return r.inj.MoveTo(x, y)
		}
		return nil
	default:
		r.log.Warn("unknown input event type", "type", ev.Type)
		return nil
	}
}

// translate converts monitor-local coordinates to host-global by adding the
// monitor's virtual desktop origin. An unknown monitor id falls back to the
// active monitor.
func (r *InputRelay) translate(monitorID string, x, y int) (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.active
	if monitorID != "" {
		if hinted, ok := FindMonitor(r.monitors, monitorID); ok {
			m = hinted
		} else {
			r.log.Warn("unknown monitor hint, using active monitor", "monitorId", monitorID)
		}
	}
	return x + m.X, y + m.Y
}

func (r *InputRelay) handleWheel(ev InputEvent) error {
	stepsX := int(ev.DeltaX) / wheelNotch
	stepsY := int(ev.DeltaY) / wheelNotch
	if stepsX == 0 && stepsY == 0 {
		return nil
	}
	return r.inj.Scroll(stepsX, stepsY)
}

func (r *InputRelay) handleKeyDown(ev InputEvent) error {
	key, ok := resolveKey(ev.Code, ev.Key)
	if !ok {
		r.log.Warn("unmapped key dropped", "key", ev.Key, "code", ev.Code)
		return nil
	}

	now := r.now()
	r.mu.Lock()
	if ev.Repeat {
		if st, held := r.pressed[key]; held {
			if now.Sub(st.firstDown) < repeatInitialDelay {
				r.mu.Unlock()
				return nil
			}
			if now.Sub(st.lastRepeat) < repeatInterval {
				r.mu.Unlock()
				return nil
			}
			st.lastRepeat = now
			r.pressed[key] = st
			r.mu.Unlock()
			return r.inj.KeyDown(key)
		}
	}
	r.pressed[key] = pressState{firstDown: now, lastRepeat: now}
	r.mu.Unlock()

	mods := r.filterModifiers(ev.Modifiers, key)
	for _, m := range mods {
		if err := r.inj.KeyDown(m); err != nil {
			return err
		}
	}
	return r.inj.KeyDown(key)
}

func (r *InputRelay) handleKeyUp(ev InputEvent) error {
	key, ok := resolveKey(ev.Code, ev.Key)
	if !ok {
		r.log.Warn("unmapped key dropped", "key", ev.Key, "code", ev.Code)
		return nil
	}

	r.mu.Lock()
	delete(r.pressed, key)
	r.mu.Unlock()

	if err := r.inj.KeyUp(key); err != nil {
		return err
	}
	// Modifiers accompanying the event are released after the key, in
	// reverse order.
	mods := r.filterModifiers(ev.Modifiers, key)
	for i := len(mods) - 1; i >= 0; i-- {
		if err := r.inj.KeyUp(mods[i]); err != nil {
			return err
		}
	}
	return nil
}

// filterModifiers canonicalizes the wire modifier list, dropping the event's
// own key so a modifier keydown doesn't press itself twice.
func (r *InputRelay) filterModifiers(names []string, key string) []string {
	var mods []string
	for _, n := range names {
		m, ok := canonicalModifier(n)
		if !ok || m == key {
			continue
		}
		mods = append(mods, m)
	}
	return mods
}

// Hotkey presses each key of the combination in order, dwells briefly, and
// releases in reverse order.
func (r *InputRelay) Hotkey(combination []string) error {
	keys := make([]string, 0, len(combination))
	for _, name := range combination {
		if m, ok := canonicalModifier(name); ok {
			keys = append(keys, m)
			continue
		}
		key, ok := resolveKey("", name)
		if !ok {
			r.log.Warn("unmapped key in hotkey dropped", "key", name)
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}

	for i, k := range keys {
		if err := r.inj.KeyDown(k); err != nil {
			// Release what we pressed so no key is left stuck.
			for j := i - 1; j >= 0; j-- {
				_ = r.inj.KeyUp(keys[j])
			}
			return err
		}
	}
	if r.dwell > 0 {
		time.Sleep(r.dwell)
	}
	var firstErr error
	for i := len(keys) - 1; i >= 0; i-- {
		if err := r.inj.KeyUp(keys[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *InputRelay) handleGesture(ev InputEvent) error {
	switch ev.Gesture {
	case "pinch":
		if ev.Scale > 1 {
			return r.Hotkey([]string{"Control", "+"})
		}
		return r.Hotkey([]string{"Control", "-"})
	case "pan":
		key := "ArrowRight"
		if absInt(int(ev.DeltaY)) >= absInt(int(ev.DeltaX)) {
			key = "ArrowDown"
			if ev.DeltaY < 0 {
				key = "ArrowUp"
			}
		} else if ev.DeltaX < 0 {
			key = "ArrowLeft"
		}
		if err := r.inj.KeyDown(key); err != nil {
			return err
		}
		return r.inj.KeyUp(key)
	case "rotate":
		// Reserved.
		return nil
	default:
		r.log.Warn("unknown gesture", "gesture", ev.Gesture)
		return nil
	}
}

func parseButton(s string) MouseButton {
	switch s {
	case "right":
		return MouseRight
	case "middle":
		return MouseMiddle
	default:
		return MouseLeft
	}
}
