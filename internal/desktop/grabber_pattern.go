package desktop

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// PatternGrabber is the reference FrameGrabber: it renders a moving test
// pattern sized to the bound monitor. It stands in for the platform capture
// backend in headless builds and drives the pipeline in tests.
type PatternGrabber struct {
	enumerator MonitorEnumerator

	mu      sync.Mutex
	open    bool
	monitor Monitor
	tick    uint64
	base    *image.RGBA // checkerboard scaled once to monitor size
}

func NewPatternGrabber(enumerator MonitorEnumerator) *PatternGrabber {
	return &PatternGrabber{enumerator: enumerator}
}

func (g *PatternGrabber) Open(monitorID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.open {
		return ErrGrabberBusy
	}

	monitors, err := g.enumerator.List()
	if err != nil {
		return ErrMonitorMissing
	}
	monitor, ok := FindMonitor(monitors, monitorID)
	if !ok {
		return ErrMonitorMissing
	}

	g.monitor = monitor
	g.base = renderCheckerboard(monitor.Width, monitor.Height)
	g.open = true
	g.tick = 0
	return nil
}

func (g *PatternGrabber) Grab(ctx context.Context) (*PixelBuffer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return nil, ErrDisplayGone
	}
	if err := ctx.Err(); err != nil {
		return nil, ErrTransientUnavailable
	}

	w, h := g.monitor.Width, g.monitor.Height
	buf := &PixelBuffer{
		Width:      w,
		Height:     h,
		Stride:     w * 4,
		Format:     PixelFormatRGBA,
		Pix:        make([]byte, w*h*4),
		CapturedAt: time.Now(),
	}
	copy(buf.Pix, g.base.Pix)

	// A small box orbiting the frame so consecutive grabs differ. The box
	// is clamped to half the frame so tiny fixture displays stay valid.
	boxSize := w / 16
	if boxSize < 4 {
		boxSize = 4
	}
	if boxSize > w/2 {
		boxSize = w / 2
	}
	if boxSize > h/2 {
		boxSize = h / 2
	}
	bx, by := 0, 0
	if w-boxSize > 0 {
		bx = int(g.tick*7) % (w - boxSize)
	}
	if h-boxSize > 0 {
		by = int(g.tick*3) % (h - boxSize)
	}
	for y := by; y < by+boxSize && y < h; y++ {
		row := y * buf.Stride
		for x := bx; x < bx+boxSize && x < w; x++ {
			pi := row + x*4
			buf.Pix[pi+0] = 0xFF
			buf.Pix[pi+1] = 0x40
			buf.Pix[pi+2] = 0x40
			buf.Pix[pi+3] = 0xFF
		}
	}
	g.tick++

	return buf, nil
}

func (g *PatternGrabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
	g.base = nil
	return nil
}

// renderCheckerboard scales an 8x8 two-tone tile up to the full display size.
func renderCheckerboard(width, height int) *image.RGBA {
	tile := image.NewRGBA(image.Rect(0, 0, 8, 8))
	dark := color.RGBA{0x28, 0x2C, 0x34, 0xFF}
	light := color.RGBA{0x3A, 0x40, 0x4A, 0xFF}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				tile.Set(x, y, dark)
			} else {
				tile.Set(x, y, light)
			}
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), tile, tile.Bounds(), draw.Src, nil)
	return dst
}
