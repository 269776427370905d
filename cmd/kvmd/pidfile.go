package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePIDFile(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// readRunningPID reads the pid file and checks the process is still alive.
// A stale pid file reads as not running.
func readRunningPID(path string) (int, bool) {
	if path == "" {
		return 0, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	if !processAlive(pid) {
		return 0, false
	}
	return pid, true
}

// spawnDetached re-executes this binary with the run command, detached from
// the current terminal.
func spawnDetached() (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	args := []string{"run"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer devNull.Close()

	proc, err := os.StartProcess(exe, append([]string{exe}, args...), &os.ProcAttr{
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   detachedSysProcAttr(),
	})
	if err != nil {
		return 0, err
	}
	pid := proc.Pid
	// The child outlives us; release so it isn't reaped through this handle.
	if err := proc.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}
