package sysinfo

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// SystemInfo describes the host serving the streams. Reported by the
// out-of-band status surface; not part of the wire protocol.
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	OS            string `json:"os"`
	Platform      string `json:"platform"`
	KernelVersion string `json:"kernel_version"`
	CPUModel      string `json:"cpu_model"`
	CPUCores      int    `json:"cpu_cores"`
	MemoryTotalMB uint64 `json:"memory_total_mb"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
}

// Collect gathers host facts. A host info failure fails the whole report;
// CPU and memory lookup failures degrade to empty fields.
func Collect() (*SystemInfo, error) {
	info := &SystemInfo{}

	hostInfo, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}
	info.Hostname = hostInfo.Hostname
	info.OS = hostInfo.OS
	info.Platform = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
	info.KernelVersion = hostInfo.KernelVersion
	info.UptimeSeconds = hostInfo.Uptime

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if counts, err := cpu.Counts(true); err == nil {
		info.CPUCores = counts
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotalMB = vm.Total / 1024 / 1024
	}

	return info, nil
}

// Interface is one network interface with its addresses, used by the URL
// report to list the reachable endpoints.
type Interface struct {
	Name      string   `json:"name"`
	MAC       string   `json:"mac"`
	Addresses []string `json:"addresses"`
	Up        bool     `json:"up"`
	Loopback  bool     `json:"loopback"`
}

// Interfaces lists the host's network interfaces.
func Interfaces() ([]Interface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("interfaces: %w", err)
	}

	out := make([]Interface, 0, len(raw))
	for _, iface := range raw {
		entry := Interface{
			Name: iface.Name,
			MAC:  iface.HardwareAddr,
		}
		for _, flag := range iface.Flags {
			switch flag {
			case "up":
				entry.Up = true
			case "loopback":
				entry.Loopback = true
			}
		}
		for _, addr := range iface.Addrs {
			entry.Addresses = append(entry.Addresses, addr.Addr)
		}
		out = append(out, entry)
	}
	return out, nil
}

// BootTime returns the host boot time.
func BootTime() (time.Time, error) {
	ts, err := host.BootTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(ts), 0), nil
}
