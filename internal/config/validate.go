package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

var validModes = map[string]bool{
	"ultra":    true,
	"gaming":   true,
	"balanced": true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates errors that must block startup from ones that
// are clamped to safe values and reported as warnings.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r *ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// Validate checks the config for invalid values. Dangerous zero-values that
// would break the streaming loop are clamped to safe defaults and reported as
// warnings; values that cannot be repaired (unparseable address, missing TLS
// pair) are fatal.
func (c *Config) Validate() ValidationResult {
	var result ValidationResult
	warn := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Errorf(format, args...))
	}
	fatal := func(format string, args ...any) {
		result.Fatals = append(result.Fatals, fmt.Errorf(format, args...))
	}

	if c.ListenAddr != "" && net.ParseIP(c.ListenAddr) == nil {
		fatal("listen_addr %q is not a valid IP address", c.ListenAddr)
	}

	if c.Port < 1 || c.Port > 65535 {
		warn("port %d out of range, using default 9921", c.Port)
		c.Port = 9921
	}

	// TLS cert and key must come as a pair, and both must exist.
	if (c.TLSCert == "") != (c.TLSKey == "") {
		fatal("tls_cert and tls_key must both be set or both be empty")
	}
	if c.TLSCert != "" {
		for _, p := range []string{c.TLSCert, c.TLSKey} {
			if _, err := os.Stat(p); err != nil {
				fatal("TLS file %q: %v", p, err)
			}
		}
	}

	if !validModes[strings.ToLower(c.PerformanceMode)] {
		warn("performance_mode %q is not valid (use ultra, gaming, balanced), using ultra", c.PerformanceMode)
		c.PerformanceMode = "ultra"
	}

	if c.Quality < 0 || c.Quality > 100 {
		warn("quality %d out of range 0-100, clamping", c.Quality)
		if c.Quality < 0 {
			c.Quality = 0
		} else {
			c.Quality = 100
		}
	}

	if c.DownsampleFactor < 1 {
		warn("downsample_factor %d below minimum 1, clamping", c.DownsampleFactor)
		c.DownsampleFactor = 1
	} else if c.DownsampleFactor > 8 {
		warn("downsample_factor %d exceeds maximum 8, clamping", c.DownsampleFactor)
		c.DownsampleFactor = 8
	}

	if c.InitialBitrate < 100_000 {
		warn("initial_bitrate %d below minimum 100000, clamping", c.InitialBitrate)
		c.InitialBitrate = 100_000
	} else if c.InitialBitrate > 50_000_000 {
		warn("initial_bitrate %d exceeds maximum 50000000, clamping", c.InitialBitrate)
		c.InitialBitrate = 50_000_000
	}

	if c.MaxSessions < 1 {
		warn("max_sessions %d below minimum 1, clamping", c.MaxSessions)
		c.MaxSessions = 1
	} else if c.MaxSessions > 64 {
		warn("max_sessions %d exceeds maximum 64, clamping", c.MaxSessions)
		c.MaxSessions = 64
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error), using info", c.LogLevel)
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json), using text", c.LogFormat)
		c.LogFormat = "text"
	}

	for _, err := range result.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return result
}
