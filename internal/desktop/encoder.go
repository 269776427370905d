package desktop

import (
	"errors"
	"sync"
	"time"
)

// EncodedFrame is one wire-ready frame. Produced by the encoder, consumed by
// the sender; single-writer, single-reader.
type EncodedFrame struct {
	Data        []byte
	FrameNumber uint64
	Keyframe    bool
	CapturedAt  time.Time
	EncodedAt   time.Time
}

// encoderBackend is the capability set shared by the raw and fallback
// encoders. The supervisor swaps backends without the session knowing.
type encoderBackend interface {
	Encode(buf *PixelBuffer, frameNumber uint64, keyframe bool) (*EncodedFrame, error)
	SetQuality(quality int)
	Name() string
	Close() error
}

// FrameEncoder wraps a swappable backend and owns the per-session frame
// counter and keyframe cadence. Frame numbers are strictly increasing and
// never reused, across backend switches included.
type FrameEncoder struct {
	mu               sync.Mutex
	backend          encoderBackend
	frameNumber      uint64
	lastKeyframe     uint64
	keyframeInterval int
	pendingKeyframe  bool
	fallback         bool
	fallbackFactor   int
	quality          int
}

func NewFrameEncoder(quality, fallbackFactor int) *FrameEncoder {
	if fallbackFactor < 1 {
		fallbackFactor = 2
	}
	return &FrameEncoder{
		backend:          newRawEncoder(),
		keyframeInterval: ModeUltraLowLatency.Budget().KeyframeInterval,
		pendingKeyframe:  true, // first frame is always a keyframe
		fallbackFactor:   fallbackFactor,
		quality:          quality,
	}
}

// Encode produces the next wire frame from buf.
func (e *FrameEncoder) Encode(buf *PixelBuffer) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return nil, errors.New("encoder closed")
	}

	n := e.frameNumber
	keyframe := e.pendingKeyframe || e.fallback ||
		(e.keyframeInterval > 0 && n-e.lastKeyframe >= uint64(e.keyframeInterval))

	frame, err := e.backend.Encode(buf, n, keyframe)
	if err != nil {
		return nil, err
	}
	e.frameNumber++
	e.pendingKeyframe = false
	if frame.Keyframe {
		e.lastKeyframe = n
	}
	return frame, nil
}

// ForceKeyframe marks the next emitted frame as a keyframe.
func (e *FrameEncoder) ForceKeyframe() {
	e.mu.Lock()
	e.pendingKeyframe = true
	e.mu.Unlock()
}

// SetKeyframeInterval updates the cadence (frames between keyframes) derived
// from the active performance mode.
func (e *FrameEncoder) SetKeyframeInterval(interval int) {
	e.mu.Lock()
	e.keyframeInterval = interval
	e.mu.Unlock()
}

// SetQuality propagates the supervisor's quality level to the backend.
func (e *FrameEncoder) SetQuality(quality int) {
	e.mu.Lock()
	e.quality = quality
	if e.backend != nil {
		e.backend.SetQuality(quality)
	}
	e.mu.Unlock()
}

// SwitchToFallback swaps the raw backend for the downsampled-RLE backend.
// Idempotent; the first frame on the new backend is a keyframe.
func (e *FrameEncoder) SwitchToFallback() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fallback || e.backend == nil {
		return
	}
	e.backend.Close()
	rle := newRLEEncoder(e.fallbackFactor)
	rle.SetQuality(e.quality)
	e.backend = rle
	e.fallback = true
	e.pendingKeyframe = true
}

// RestoreRaw swaps back to the raw backend after recovery. Idempotent.
func (e *FrameEncoder) RestoreRaw() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.fallback || e.backend == nil {
		return
	}
	e.backend.Close()
	e.backend = newRawEncoder()
	e.fallback = false
	e.pendingKeyframe = true
}

// FallbackActive reports whether the RLE backend is in use.
func (e *FrameEncoder) FallbackActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fallback
}

// BackendName returns the active backend's name ("raw" or "rle").
func (e *FrameEncoder) BackendName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return ""
	}
	return e.backend.Name()
}

// FrameCount returns the number of frames encoded so far.
func (e *FrameEncoder) FrameCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameNumber
}

func (e *FrameEncoder) Close() error {
	e.mu.Lock()
	backend := e.backend
	e.backend = nil
	e.mu.Unlock()
	if backend == nil {
		return nil
	}
	return backend.Close()
}
