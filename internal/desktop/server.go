package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cleardesk/kvmd/internal/logging"
)

// ServerConfig holds the server host's settings and the collaborator
// factories a session is assembled from.
type ServerConfig struct {
	ListenAddr string
	Port       int
	TLSCert    string
	TLSKey     string
	StaticDir  string
	Hostname   string

	MaxSessions      int
	Mode             PerformanceMode
	Quality          int
	DownsampleFactor int
	InitialBitrate   int

	Enumerator  MonitorEnumerator
	NewGrabber  func() FrameGrabber
	NewInjector func() SystemInjector
}

// Server accepts WebSocket upgrades and routes each viewer to its own
// streaming session. A global stop tears all sessions down in order.
type Server struct {
	cfg      ServerConfig
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session

	httpServer *http.Server
	listener   net.Listener
	startedAt  time.Time
	stopOnce   sync.Once
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 9921
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 4
	}
	if cfg.Quality == 0 {
		cfg.Quality = 80
	}
	if cfg.DownsampleFactor == 0 {
		cfg.DownsampleFactor = 2
	}
	if cfg.InitialBitrate == 0 {
		cfg.InitialBitrate = 2_500_000
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	if cfg.Enumerator == nil {
		cfg.Enumerator = DefaultEnumerator()
	}
	enumerator := cfg.Enumerator
	if cfg.NewGrabber == nil {
		cfg.NewGrabber = func() FrameGrabber { return NewPatternGrabber(enumerator) }
	}
	if cfg.NewInjector == nil {
		cfg.NewInjector = NewSystemInjector
	}

	return &Server{
		cfg:      cfg,
		log:      logging.L("server"),
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The server is reachable on the local network only; the
			// browser client may be opened from any origin on it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start binds the listen socket and begins serving. A bind failure is
// returned to the caller; the server is not started.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	if s.cfg.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.cfg.StaticDir))
		mux.Handle("/static/", http.StripPrefix("/static/", fs))
		mux.Handle("/kvm", fs)
	}

	addr := net.JoinHostPort(s.cfg.ListenAddr, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux}
	s.startedAt = time.Now()

	go func() {
		var serveErr error
		if s.cfg.TLSCert != "" {
			serveErr = s.httpServer.ServeTLS(listener, s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			serveErr = s.httpServer.Serve(listener)
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			s.log.Error("serve failed", "error", serveErr)
		}
	}()

	s.log.Info("server listening", "addr", addr, "tls", s.cfg.TLSCert != "")
	return nil
}

// Shutdown stops all sessions and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.StopAllSessions()
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		s.log.Info("server stopped")
	})
	return err
}

// Addr returns the bound listen address, usable after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL reports the WebSocket entrypoint for the bound address.
func (s *Server) URL() string {
	scheme := "ws"
	if s.cfg.TLSCert != "" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, s.Addr())
}

// ActiveSessions returns the number of connected viewers.
func (s *Server) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Uptime reports how long the server has been accepting connections.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// StopAllSessions tears down every active session.
func (s *Server) StopAllSessions() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
}

// handleWS upgrades one viewer connection and hands it a session.
// Query parameters: monitor (index), codec (advisory), audio (advisory).
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.ActiveSessions() >= s.cfg.MaxSessions {
		http.Error(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}

	monitors, err := s.cfg.Enumerator.List()
	if err != nil {
		s.log.Error("monitor enumeration failed", "error", err)
		http.Error(w, "display subsystem unavailable", http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	monitorIndex := 0
	if v := query.Get("monitor"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			monitorIndex = idx
		}
	}
	// An out-of-range index falls back to the primary monitor, no error.
	monitor, ok := MonitorAt(monitors, monitorIndex)
	if !ok {
		http.Error(w, "no monitors available", http.StatusInternalServerError)
		return
	}
	if monitorIndex < 0 || monitorIndex >= len(monitors) {
		monitorIndex = indexOfMonitor(monitors, monitor.ID)
	}

	cfg := SessionConfig{
		MonitorIndex:     monitorIndex,
		Codec:            query.Get("codec"),
		Audio:            query.Get("audio") == "true",
		Mode:             s.cfg.Mode,
		Quality:          s.cfg.Quality,
		DownsampleFactor: s.cfg.DownsampleFactor,
		InitialBitrate:   s.cfg.InitialBitrate,
		Hostname:         s.cfg.Hostname,
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	session := newSession(id, conn, monitors, monitor,
		s.cfg.NewGrabber(), s.cfg.NewInjector(), cfg, s.removeSession)

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.log.Info("viewer connected", "session", id, "remote", r.RemoteAddr, "monitor", monitor.ID)
	session.Run()
}

// removeSession is the session onClose callback: a closed session must no
// longer be referenced by the registry.
func (s *Server) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func indexOfMonitor(monitors []Monitor, id string) int {
	for i, m := range monitors {
		if m.ID == id {
			return i
		}
	}
	return 0
}
