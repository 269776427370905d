//go:build linux

package main

import (
	"fmt"
	"os/exec"
	"strings"
)

// firewallStatus probes ufw for the listen port. Best-effort: without a
// usable firewall tool the port is reported as not checked.
func firewallStatus(port int) string {
	out, err := exec.Command("ufw", "status").Output()
	if err != nil {
		return "not checked (ufw unavailable or permission denied)"
	}

	status := strings.TrimSpace(string(out))
	if strings.HasPrefix(status, "Status: inactive") {
		return "firewall inactive"
	}
	needle := fmt.Sprintf("%d", port)
	for _, line := range strings.Split(status, "\n") {
		if strings.Contains(line, needle) {
			return "rule present: " + strings.TrimSpace(line)
		}
	}
	return "firewall active, no rule for this port"
}
