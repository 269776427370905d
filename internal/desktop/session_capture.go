package desktop

import (
	"context"
	"errors"
	"time"
)

// captureTask runs the capture-encode loop at the active mode's cadence.
// Grab and encode are blocking work; they must complete within their budgets
// rather than yield.
func (s *Session) captureTask() {
	defer s.wg.Done()

	// Negotiation grace: wait for the first control message, or proceed
	// with defaults after one second.
	select {
	case <-s.negotiated:
	case <-time.After(negotiationGrace):
	case <-s.done:
		return
	}
	if s.State() == StateNegotiating {
		s.setState(StateStreaming)
	}

	interval := s.sup.Mode().Budget().TickInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-timer.C:
		}

		if fatal := s.captureAndSend(); fatal {
			go s.Stop()
			return
		}

		// The mode may have moved; re-read the cadence every tick.
		interval = s.sup.Mode().Budget().TickInterval
		timer.Reset(interval)
	}
}

// captureAndSend produces one frame. Returns true on a condition fatal for
// the session.
func (s *Session) captureAndSend() bool {
	budget := s.sup.Mode().Budget()

	ctx, cancel := context.WithTimeout(context.Background(), budget.Capture)
	captureStart := time.Now()
	buf, err := s.grabber.Grab(ctx)
	cancel()
	captureDur := time.Since(captureStart)

	if err != nil {
		switch {
		case errors.Is(err, ErrTransientUnavailable):
			// Not counted as a failure; retry on the next tick.
			s.metrics.RecordGrabRetry()
			time.Sleep(grabRetrySleep)
			return false
		case errors.Is(err, ErrDisplayGone):
			s.log.Error("display gone", "error", err)
			s.enqueueControl(newErrorMsg("display gone"))
			return true
		default:
			s.grabFailures++
			if s.grabFailures >= maxGrabFailures {
				s.log.Error("persistent grab failure", "failures", s.grabFailures, "error", err)
				s.enqueueControl(newErrorMsg("screen capture failed"))
				return true
			}
			s.log.Warn("grab failed", "failures", s.grabFailures, "error", err)
			return false
		}
	}
	s.grabFailures = 0
	s.metrics.RecordCapture(captureDur)

	encodeStart := time.Now()
	frame, err := s.encoder.Encode(buf)
	encodeDur := time.Since(encodeStart)
	if err != nil {
		d := s.sup.RecordEncodeFailure()
		if d.SwitchToFallback {
			s.log.Warn("encode failed, switching to fallback encoder", "error", err)
			s.encoder.SwitchToFallback()
			s.setState(StateDegraded)
			return false
		}
		// The fallback encoder itself failed; nothing left to degrade to.
		s.log.Error("fallback encode failed", "error", err)
		s.enqueueControl(newErrorMsg("encoder failed"))
		return true
	}
	s.metrics.RecordEncode(encodeDur, len(frame.Data))

	dropped := s.offerFrame(frame)

	s.applyDecision(s.sup.RecordFrame(captureDur, encodeDur, dropped))
	return false
}

// offerFrame hands the frame to the sender. With the capacity-1 channel,
// a slow sender costs the previous frame, never ordering. Reports whether a
// frame was dropped.
func (s *Session) offerFrame(frame *EncodedFrame) bool {
	select {
	case s.frames <- frame:
		return false
	default:
	}

	// Sender is behind: displace the stale frame.
	select {
	case <-s.frames:
	default:
	}
	s.metrics.RecordDrop()

	select {
	case s.frames <- frame:
	default:
		// The sender drained and refilled concurrently; the newer frame
		// in flight wins.
	}
	return true
}

// applyDecision applies a supervisor decision to the encoder and session
// state, and advertises quality changes to the viewer.
func (s *Session) applyDecision(d Decision) {
	if d.SwitchToFallback {
		s.log.Warn("budget violations, switching to fallback encoder")
		s.encoder.SwitchToFallback()
		s.setState(StateDegraded)
	}
	if d.ModeChanged {
		s.log.Info("performance mode changed", "mode", d.Mode.String())
		s.encoder.SetKeyframeInterval(d.Mode.Budget().KeyframeInterval)
	}
	if d.QualityChanged {
		s.encoder.SetQuality(d.Quality)
		s.enqueueControl(newQualityMsg(d.Quality))
	}
}
