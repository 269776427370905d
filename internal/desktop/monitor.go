package desktop

import "errors"

// Monitor describes a connected display output. Instances are read-only
// snapshots: re-enumerate rather than mutate.
type Monitor struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	X         int     `json:"position_x"`
	Y         int     `json:"position_y"`
	IsPrimary bool    `json:"is_primary"`
	Scale     float64 `json:"scale_factor"`
	Rotation  int     `json:"rotation"` // 0, 90, 180, 270
}

// MonitorEnumerator lists the host's displays. A returned list is
// snapshot-consistent: positions and sizes are mutually coherent.
type MonitorEnumerator interface {
	List() ([]Monitor, error)
}

// ErrEnumerationFailed is returned when the display subsystem is unavailable.
var ErrEnumerationFailed = errors.New("display enumeration failed")

// PrimaryMonitor returns the primary display, falling back to the first
// entry when no monitor carries the primary flag.
func PrimaryMonitor(monitors []Monitor) (Monitor, bool) {
	if len(monitors) == 0 {
		return Monitor{}, false
	}
	for _, m := range monitors {
		if m.IsPrimary {
			return m, true
		}
	}
	return monitors[0], true
}

// FindMonitor looks up a display by id.
func FindMonitor(monitors []Monitor, id string) (Monitor, bool) {
	for _, m := range monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// MonitorAt returns the display at the given enumeration index, falling back
// to the primary when the index is out of range.
func MonitorAt(monitors []Monitor, index int) (Monitor, bool) {
	if index >= 0 && index < len(monitors) {
		return monitors[index], true
	}
	return PrimaryMonitor(monitors)
}
