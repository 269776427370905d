package desktop

import (
	"fmt"
	"time"
)

// rawEncoder is the minimum-latency path: the grabbed buffer is swizzled to
// RGBA order if necessary but not otherwise transformed.
type rawEncoder struct {
	scratch []byte
}

func newRawEncoder() *rawEncoder {
	return &rawEncoder{}
}

func (r *rawEncoder) Encode(buf *PixelBuffer, frameNumber uint64, keyframe bool) (*EncodedFrame, error) {
	if buf.Width <= 0 || buf.Height <= 0 {
		return nil, fmt.Errorf("raw encode: invalid dimensions %dx%d", buf.Width, buf.Height)
	}
	if buf.Stride < buf.Width*4 || len(buf.Pix) < buf.Stride*(buf.Height-1)+buf.Width*4 {
		return nil, fmt.Errorf("raw encode: buffer too small for %dx%d stride %d", buf.Width, buf.Height, buf.Stride)
	}

	pixels := r.packRGBA(buf)

	data := make([]byte, 0, rawHeaderSize+len(pixels))
	data = appendRawFrame(data, buf.Width, buf.Height, frameNumber, pixels)

	return &EncodedFrame{
		Data:        data,
		FrameNumber: frameNumber,
		Keyframe:    keyframe,
		CapturedAt:  buf.CapturedAt,
		EncodedAt:   time.Now(),
	}, nil
}

// packRGBA produces tightly packed RGBA8 from the buffer, dropping stride
// padding and swizzling BGRA input. The scratch slice is reused across
// frames; the result is only valid until the next call.
func (r *rawEncoder) packRGBA(buf *PixelBuffer) []byte {
	size := buf.Width * buf.Height * 4
	if cap(r.scratch) < size {
		r.scratch = make([]byte, size)
	}
	out := r.scratch[:size]

	rowBytes := buf.Width * 4
	for y := 0; y < buf.Height; y++ {
		src := buf.Pix[y*buf.Stride : y*buf.Stride+rowBytes]
		dst := out[y*rowBytes : (y+1)*rowBytes]
		if buf.Format == PixelFormatBGRA {
			for x := 0; x < rowBytes; x += 4 {
				dst[x+0] = src[x+2]
				dst[x+1] = src[x+1]
				dst[x+2] = src[x+0]
				dst[x+3] = src[x+3]
			}
		} else {
			copy(dst, src)
		}
	}
	return out
}

func (r *rawEncoder) SetQuality(int) {} // raw path has no quantization knob

func (r *rawEncoder) Name() string { return "raw" }

func (r *rawEncoder) Close() error {
	r.scratch = nil
	return nil
}
