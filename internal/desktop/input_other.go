//go:build !linux

package desktop

import "github.com/cleardesk/kvmd/internal/logging"

// nullInjector logs events instead of injecting them. Platforms without a
// wired input backend still accept and order events so a session behaves
// identically apart from the final OS call.
type nullInjector struct{}

var nullLog = logging.L("input")

// NewSystemInjector creates the platform input backend.
func NewSystemInjector() SystemInjector {
	return &nullInjector{}
}

func (nullInjector) MoveTo(x, y int) error {
	nullLog.Debug("inject move", "x", x, "y", y)
	return nil
}

func (nullInjector) MouseDown(button MouseButton) error {
	nullLog.Debug("inject mouse down", "button", button)
	return nil
}

func (nullInjector) MouseUp(button MouseButton) error {
	nullLog.Debug("inject mouse up", "button", button)
	return nil
}

func (nullInjector) Scroll(stepsX, stepsY int) error {
	nullLog.Debug("inject scroll", "stepsX", stepsX, "stepsY", stepsY)
	return nil
}

func (nullInjector) KeyDown(key string) error {
	nullLog.Debug("inject key down", "key", key)
	return nil
}

func (nullInjector) KeyUp(key string) error {
	nullLog.Debug("inject key up", "key", key)
	return nil
}
