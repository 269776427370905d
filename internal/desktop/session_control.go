package desktop

import (
	"encoding/json"
	"fmt"
)

// dispatch routes one inbound text message. Malformed JSON and unknown
// types are logged and ignored, never fatal.
func (s *Session) dispatch(data []byte) {
	var peek struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		s.log.Warn("malformed message ignored", "error", err)
		return
	}

	if isInputEventType(peek.Type) {
		var ev InputEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Warn("malformed input event ignored", "type", peek.Type, "error", err)
			return
		}
		select {
		case s.input <- ev:
		default:
			// A slow injector must not block frame sending; shed the event.
			s.log.Warn("input queue full, dropping event", "type", ev.Type)
		}
		return
	}

	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Warn("malformed control message ignored", "type", peek.Type, "error", err)
		return
	}
	s.handleControl(msg)
}

func (s *Session) handleControl(msg controlMessage) {
	switch msg.Type {
	case "ping":
		s.enqueueControl(newPong(msg.Timestamp))

	case "network_stats":
		d := s.sup.HandleNetworkStats(msg.Latency, msg.Bandwidth, msg.PacketLoss)
		if d.QualityChanged {
			s.encoder.SetQuality(d.Quality)
			s.enqueueControl(newQualityMsg(d.Quality))
		}

	case "request_keyframe":
		s.encoder.ForceKeyframe()
		s.enqueueControl(newKeyframeResponse())

	case "quality_setting":
		d := s.sup.SetQuality(msg.Quality)
		if d.QualityChanged {
			s.encoder.SetQuality(d.Quality)
		}
		s.enqueueControl(newQualityMsg(d.Quality))

	case "switch_codec":
		// The wire formats are self-describing and chosen by the server;
		// a request for the active codec is acknowledged, anything else
		// is declined.
		active := s.encoder.BackendName()
		if msg.Codec == active {
			s.enqueueControl(newCodecSwitchResponse(true, fmt.Sprintf("codec %s already active", active)))
		} else {
			s.enqueueControl(newCodecSwitchResponse(false, fmt.Sprintf("codec is negotiated by the server; active codec is %s", active)))
		}

	case "performance_mode":
		mode, ok := ParsePerformanceMode(msg.Mode)
		if !ok {
			s.log.Warn("unknown performance mode ignored", "mode", msg.Mode)
			return
		}
		d := s.sup.SetMode(mode)
		if d.ModeChanged {
			s.log.Info("performance mode set by client", "mode", mode.String())
			s.encoder.SetKeyframeInterval(mode.Budget().KeyframeInterval)
		}

	case "emergency_reset":
		d := s.sup.EmergencyReset()
		if s.encoder.FallbackActive() {
			s.encoder.RestoreRaw()
		}
		s.encoder.SetKeyframeInterval(d.Mode.Budget().KeyframeInterval)
		s.encoder.ForceKeyframe()
		if s.State() == StateDegraded {
			s.setState(StateStreaming)
		}
		s.log.Info("emergency reset", "mode", d.Mode.String())

	default:
		s.log.Warn("unknown message type ignored", "type", msg.Type)
	}
}

// inputTask consumes the bounded input queue and calls the relay. Events
// are processed strictly in receive order by this single worker.
func (s *Session) inputTask() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.input:
			if err := s.relay.HandleEvent(ev); err != nil {
				s.log.Warn("input injection failed", "type", ev.Type, "error", err)
			}
		}
	}
}
