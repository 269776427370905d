//go:build !linux

package main

// firewallStatus reports the listen port's firewall state. No firewall
// diagnostics backend is wired on this platform.
func firewallStatus(int) string {
	return "not checked (no firewall diagnostics backend on this platform)"
}
