package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cleardesk/kvmd/internal/config"
	"github.com/cleardesk/kvmd/internal/desktop"
	"github.com/cleardesk/kvmd/internal/logging"
	"github.com/cleardesk/kvmd/internal/sysinfo"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "kvmd",
	Short: "ClearDesk KVM server",
	Long:  `kvmd streams the host's screen to browser viewers over WebSocket and relays their keyboard, mouse, and touch input back to the host.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the server in the foreground",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	Run: func(cmd *cobra.Command, args []string) {
		startDetached()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running server",
	Run: func(cmd *cobra.Command, args []string) {
		stopDetached()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report server and host status",
	Run: func(cmd *cobra.Command, args []string) {
		reportStatus()
	},
}

var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "List the reachable viewer URLs",
	Run: func(cmd *cobra.Command, args []string) {
		reportURLs()
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the log destination and recent log output",
	Run: func(cmd *cobra.Command, args []string) {
		reportLogs()
	},
}

var systemInfoCmd = &cobra.Command{
	Use:     "system-info",
	Aliases: []string{"system_info"},
	Short:   "Report host facts (OS, CPU, memory, uptime)",
	Run: func(cmd *cobra.Command, args []string) {
		reportSystemInfo()
	},
}

var networkInterfacesCmd = &cobra.Command{
	Use:     "network-interfaces",
	Aliases: []string{"network_interfaces"},
	Short:   "List the host's network interfaces and addresses",
	Run: func(cmd *cobra.Command, args []string) {
		reportNetworkInterfaces()
	},
}

var firewallStatusCmd = &cobra.Command{
	Use:     "firewall-status",
	Aliases: []string{"firewall_status"},
	Short:   "Report firewall state for the listen port",
	Run: func(cmd *cobra.Command, args []string) {
		reportFirewallStatus()
	},
}

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "List the displays available for streaming",
	Run: func(cmd *cobra.Command, args []string) {
		reportMonitors()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		dumpConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kvmd v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/cleardesk/kvmd.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(urlCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(systemInfoCmd)
	rootCmd.AddCommand(networkInterfacesCmd)
	rootCmd.AddCommand(firewallStatusCmd)
	rootCmd.AddCommand(monitorsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load.
func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = io.MultiWriter(os.Stdout, f)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func serverConfig(cfg *config.Config) desktop.ServerConfig {
	mode, _ := desktop.ParsePerformanceMode(cfg.PerformanceMode)
	return desktop.ServerConfig{
		ListenAddr:       cfg.ListenAddr,
		Port:             cfg.Port,
		TLSCert:          cfg.TLSCert,
		TLSKey:           cfg.TLSKey,
		StaticDir:        cfg.StaticDir,
		MaxSessions:      cfg.MaxSessions,
		Mode:             mode,
		Quality:          cfg.Quality,
		DownsampleFactor: cfg.DownsampleFactor,
		InitialBitrate:   cfg.InitialBitrate,
	}
}

func runServer() {
	cfg := loadConfig()
	initLogging(cfg)

	server := desktop.NewServer(serverConfig(cfg))
	if err := server.Start(); err != nil {
		log.Error("server failed to start", "error", err)
		os.Exit(1)
	}

	if err := writePIDFile(cfg.PIDFile); err != nil {
		log.Warn("could not write pid file", "path", cfg.PIDFile, "error", err)
	}
	defer removePIDFile(cfg.PIDFile)

	log.Info("kvmd running", "version", version, "url", server.URL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
}

func startDetached() {
	cfg := loadConfig()

	if pid, running := readRunningPID(cfg.PIDFile); running {
		fmt.Printf("kvmd already running (pid %d)\n", pid)
		return
	}

	pid, err := spawnDetached()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("kvmd started (pid %d)\n", pid)
}

func stopDetached() {
	cfg := loadConfig()

	pid, running := readRunningPID(cfg.PIDFile)
	if !running {
		fmt.Println("kvmd is not running")
		return
	}
	if err := terminateProcess(pid); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop pid %d: %v\n", pid, err)
		os.Exit(1)
	}
	fmt.Printf("kvmd stopped (pid %d)\n", pid)
}

func reportStatus() {
	cfg := loadConfig()

	if pid, running := readRunningPID(cfg.PIDFile); running {
		fmt.Printf("kvmd: running (pid %d)\n", pid)
		fmt.Printf("Listening on %s:%d\n", cfg.ListenAddr, cfg.Port)
	} else {
		fmt.Println("kvmd: not running")
	}
}

func reportURLs() {
	cfg := loadConfig()

	scheme := "ws"
	if cfg.TLSCert != "" {
		scheme = "wss"
	}

	interfaces, err := sysinfo.Interfaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list interfaces: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Viewer endpoints:")
	for _, iface := range interfaces {
		if !iface.Up || iface.Loopback {
			continue
		}
		for _, addr := range iface.Addresses {
			ip := addr
			if i := strings.IndexByte(ip, '/'); i >= 0 {
				ip = ip[:i]
			}
			if strings.Contains(ip, ":") {
				continue // skip IPv6 for the short report
			}
			fmt.Printf("  %s://%s:%d/ws  (%s)\n", scheme, ip, cfg.Port, iface.Name)
		}
	}
}

// logTailBytes bounds how much of the log file the logs command replays.
const logTailBytes = 16 * 1024

func reportLogs() {
	cfg := loadConfig()

	if cfg.LogFile == "" {
		fmt.Println("Log output: stdout (no log file configured)")
		return
	}
	fmt.Printf("Log file: %s\n", cfg.LogFile)

	f, err := os.Open(cfg.LogFile)
	if err != nil {
		fmt.Printf("Log not readable: %v\n", err)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fmt.Printf("Log not readable: %v\n", err)
		return
	}
	offset := int64(0)
	if stat.Size() > logTailBytes {
		offset = stat.Size() - logTailBytes
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		fmt.Printf("Log not readable: %v\n", err)
		return
	}
	if offset > 0 {
		fmt.Printf("--- last %d bytes ---\n", logTailBytes)
	}
	io.Copy(os.Stdout, f)
}

func reportSystemInfo() {
	info, err := sysinfo.Collect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "System info unavailable: %v\n", err)
		os.Exit(1)
	}
	printJSON(info)
}

func reportNetworkInterfaces() {
	interfaces, err := sysinfo.Interfaces()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list interfaces: %v\n", err)
		os.Exit(1)
	}
	printJSON(interfaces)
}

func reportFirewallStatus() {
	cfg := loadConfig()
	fmt.Printf("Port %d: %s\n", cfg.Port, firewallStatus(cfg.Port))
}

func reportMonitors() {
	monitors, err := desktop.DefaultEnumerator().List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enumerate displays: %v\n", err)
		os.Exit(1)
	}
	printJSON(monitors)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func dumpConfig() {
	cfg := loadConfig()
	out, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal config: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}
