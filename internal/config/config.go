package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	// Network
	ListenAddr string `mapstructure:"listen_addr"`
	Port       int    `mapstructure:"port"`
	TLSCert    string `mapstructure:"tls_cert"`
	TLSKey     string `mapstructure:"tls_key"`

	// Streaming defaults applied to new sessions
	PerformanceMode  string `mapstructure:"performance_mode"` // "ultra", "gaming", "balanced"
	Quality          int    `mapstructure:"quality"`          // 0-100
	DownsampleFactor int    `mapstructure:"downsample_factor"`
	InitialBitrate   int    `mapstructure:"initial_bitrate"` // bits per second
	MaxSessions      int    `mapstructure:"max_sessions"`

	// Static asset directory for the browser client (empty = not served)
	StaticDir string `mapstructure:"static_dir"`

	// Logging configuration
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Process lifecycle
	PIDFile string `mapstructure:"pid_file"`
}

func Default() *Config {
	return &Config{
		ListenAddr:       "0.0.0.0",
		Port:             9921,
		PerformanceMode:  "ultra",
		Quality:          80,
		DownsampleFactor: 2,
		InitialBitrate:   2_500_000,
		MaxSessions:      4,
		LogLevel:         "info",
		LogFormat:        "text",
		PIDFile:          filepath.Join(DataDir(), "kvmd.pid"),
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kvmd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("KVMD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Validation warnings are logged and clamped; fatals block startup.
	result := cfg.Validate()
	if result.HasFatals() {
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// DataDir returns the platform-specific data directory.
func DataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ClearDesk")
	case "darwin":
		return "/Library/Application Support/ClearDesk"
	default:
		return "/var/lib/cleardesk"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ClearDesk")
	case "darwin":
		return "/Library/Application Support/ClearDesk"
	default:
		return "/etc/cleardesk"
	}
}
