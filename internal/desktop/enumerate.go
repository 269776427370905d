package desktop

// StaticEnumerator serves a fixed display layout. It backs the reference
// server build, where the platform display stack is provided externally, and
// test setups that need multi-monitor geometry.
type StaticEnumerator struct {
	Monitors []Monitor
}

func (e *StaticEnumerator) List() ([]Monitor, error) {
	if len(e.Monitors) == 0 {
		return nil, ErrEnumerationFailed
	}
	out := make([]Monitor, len(e.Monitors))
	copy(out, e.Monitors)
	return out, nil
}

// DefaultEnumerator returns an enumerator with a single synthetic primary
// display, used when no platform display backend is wired in.
func DefaultEnumerator() *StaticEnumerator {
	return &StaticEnumerator{
		Monitors: []Monitor{
			{
				ID:        "display-0",
				Name:      "Virtual Display",
				Width:     1920,
				Height:    1080,
				IsPrimary: true,
				Scale:     1.0,
			},
		},
	}
}
