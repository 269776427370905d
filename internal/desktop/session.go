package desktop

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cleardesk/kvmd/internal/logging"
)

const (
	writeWait        = 10 * time.Second
	maxMessageSize   = 512 * 1024
	negotiationGrace = 1 * time.Second
	joinTimeout      = 5 * time.Second
	grabRetrySleep   = 5 * time.Millisecond
	maxGrabFailures  = 5

	inputQueueSize   = 128
	controlQueueSize = 32
)

// SessionState tracks a session through its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateNegotiating
	StateStreaming
	StateDegraded
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateStreaming:
		return "streaming"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// SessionConfig holds the negotiated parameters for one viewer.
type SessionConfig struct {
	MonitorIndex     int
	Codec            string // advisory
	Audio            bool   // advisory
	Mode             PerformanceMode
	Quality          int
	DownsampleFactor int
	InitialBitrate   int
	Hostname         string
}

// Session owns one connected viewer: the capture-encode-send loop, the
// input loop, and control dispatch. Four tasks run per session; a single
// broadcast done channel terminates all of them.
type Session struct {
	id       string
	conn     *websocket.Conn
	grabber  FrameGrabber
	encoder  *FrameEncoder
	relay    *InputRelay
	sup      *Supervisor
	metrics  *StreamMetrics
	monitors []Monitor
	monitor  Monitor
	cfg      SessionConfig
	log      *slog.Logger

	// frames has capacity 1: if the sender is behind, the previous frame is
	// dropped and replaced (newest wins). Frames are never reordered.
	frames  chan *EncodedFrame
	control chan []byte
	input   chan InputEvent

	negotiated    chan struct{}
	negotiateOnce sync.Once

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	state    atomic.Int32

	grabFailures int

	onClose func(id string)
}

func newSession(id string, conn *websocket.Conn, monitors []Monitor, monitor Monitor,
	grabber FrameGrabber, injector SystemInjector, cfg SessionConfig, onClose func(string)) *Session {

	s := &Session{
		id:         id,
		conn:       conn,
		grabber:    grabber,
		encoder:    NewFrameEncoder(cfg.Quality, cfg.DownsampleFactor),
		relay:      NewInputRelay(injector),
		sup:        NewSupervisor(cfg.Mode, cfg.Quality, cfg.InitialBitrate),
		metrics:    newStreamMetrics(),
		monitors:   monitors,
		monitor:    monitor,
		cfg:        cfg,
		log:        logging.WithSession(logging.L("session"), id),
		frames:     make(chan *EncodedFrame, 1),
		control:    make(chan []byte, controlQueueSize),
		input:      make(chan InputEvent, inputQueueSize),
		negotiated: make(chan struct{}),
		done:       make(chan struct{}),
		onClose:    onClose,
	}
	s.encoder.SetKeyframeInterval(cfg.Mode.Budget().KeyframeInterval)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run performs the connect handshake and starts the session tasks. It
// returns immediately; the session terminates itself via Stop on any fatal
// condition.
func (s *Session) Run() {
	s.setState(StateConnecting)

	// The sender task is not running yet, so these direct writes do not race.
	info := serverInfoMsg{
		Type:     "server_info",
		Width:    s.monitor.Width,
		Height:   s.monitor.Height,
		Hostname: s.cfg.Hostname,
		Monitor:  s.cfg.MonitorIndex,
		Codec:    s.encoder.BackendName(),
		Audio:    s.cfg.Audio,
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, marshalMsg(info)); err != nil {
		s.log.Warn("failed to send server_info", "error", err)
		s.Stop()
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, marshalMsg(monitorsMsg{Type: "monitors", Monitors: s.monitors})); err != nil {
		s.log.Warn("failed to send monitors", "error", err)
		s.Stop()
		return
	}

	s.relay.SetMonitors(s.monitors)
	s.relay.SetActive(s.monitor.ID)

	if err := s.grabber.Open(s.monitor.ID); err != nil {
		s.log.Error("failed to open grabber", "monitor", s.monitor.ID, "error", err)
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.TextMessage, newErrorMsg("display unavailable"))
		s.Stop()
		return
	}

	s.setState(StateNegotiating)

	s.wg.Add(4)
	go s.captureTask()
	go s.senderTask()
	go s.receiverTask()
	go s.inputTask()

	s.log.Info("session started",
		"monitor", s.monitor.ID,
		"width", s.monitor.Width,
		"height", s.monitor.Height,
		"mode", s.cfg.Mode.String(),
		"quality", s.cfg.Quality,
	)
}

// markNegotiated releases the capture task from the negotiation grace wait.
func (s *Session) markNegotiated() {
	s.negotiateOnce.Do(func() { close(s.negotiated) })
}

// Stop terminates the session: one stop signal, then all four tasks are
// joined with a timeout before resources are released. Safe to call from
// any goroutine and idempotent; session tasks call it via `go s.Stop()`.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.setState(StateClosing)
		close(s.done)

		// Closing the socket unblocks the receiver's pending read.
		_ = s.conn.Close()

		joined := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(joinTimeout):
			s.log.Error("session tasks did not exit within join timeout")
		}

		if err := s.grabber.Close(); err != nil {
			s.log.Warn("grabber close failed", "error", err)
		}
		_ = s.encoder.Close()
		s.setState(StateClosed)

		snap := s.metrics.Snapshot()
		s.log.Info("session stopped",
			"framesCaptured", snap.FramesCaptured,
			"framesSent", snap.FramesSent,
			"framesDropped", snap.FramesDropped,
			"uptime", snap.Uptime.Round(time.Second),
		)

		if s.onClose != nil {
			s.onClose(s.id)
		}
	})
}

// senderTask is the only writer on the socket once Run has handed over:
// binary frames and text control messages serialize here.
func (s *Session) senderTask() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.frames:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame.Data); err != nil {
				s.log.Warn("frame write failed", "error", err)
				go s.Stop()
				return
			}
			s.metrics.RecordSend(len(frame.Data))
		case msg := <-s.control:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warn("control write failed", "error", err)
				go s.Stop()
				return
			}
		}
	}
}

// receiverTask reads the socket and routes text messages to input or
// control dispatch.
func (s *Session) receiverTask() {
	defer s.wg.Done()

	s.conn.SetReadLimit(maxMessageSize)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Info("client disconnected", "error", err)
			}
			go s.Stop()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.markNegotiated()
		s.dispatch(data)
	}
}

// enqueueControl queues a text message for the sender. Control responses are
// not ordered with respect to frames; a full queue drops the message rather
// than blocking the caller.
func (s *Session) enqueueControl(msg []byte) {
	select {
	case s.control <- msg:
	default:
		s.log.Warn("control queue full, dropping message")
	}
}
