//go:build !windows

package main

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// processAlive probes a pid with signal 0.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// terminateProcess asks the process to shut down gracefully.
func terminateProcess(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}

// detachedSysProcAttr detaches the child into its own session so closing
// the launching terminal does not kill it.
func detachedSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
