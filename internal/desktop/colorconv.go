package desktop

import "sync"

// i420Pool pools I420 buffers for a fixed resolution.
var i420Pool = struct {
	pool sync.Pool
	w, h int
	mu   sync.Mutex
}{}

func getI420Buffer(w, h int) []byte {
	size := w*h + w*h/2 // Y + U + V
	i420Pool.mu.Lock()
	if i420Pool.w == w && i420Pool.h == h {
		i420Pool.mu.Unlock()
		if v := i420Pool.pool.Get(); v != nil {
			return v.([]byte)
		}
		return make([]byte, size)
	}
	i420Pool.w = w
	i420Pool.h = h
	i420Pool.pool = sync.Pool{}
	i420Pool.mu.Unlock()
	return make([]byte, size)
}

func putI420Buffer(buf []byte) {
	i420Pool.pool.Put(buf)
}

// rgbaToI420 converts RGBA pixel data to planar I420 for YUV transports.
// Layout: [Y plane: w*h] [U plane: w*h/4] [V plane: w*h/4].
// Uses BT.709 coefficients (screen content) with fixed-point integer
// arithmetic; 4:2:0 chroma is co-sited at the top-left of each 2x2 block.
func rgbaToI420(rgba []byte, width, height, stride int) []byte {
	i420 := getI420Buffer(width, height)
	yPlane := i420[:width*height]
	uPlane := i420[width*height : width*height+width*height/4]
	vPlane := i420[width*height+width*height/4:]

	chromaW := width / 2

	for y := 0; y < height; y++ {
		rowOff := y * stride
		yOff := y * width

		for x := 0; x < width; x++ {
			pi := rowOff + x*4
			r := int(rgba[pi+0])
			g := int(rgba[pi+1])
			b := int(rgba[pi+2])

			// BT.709: Y = (47*R + 157*G + 16*B) >> 8 + 16
			yVal := (47*r + 157*g + 16*b + 128) >> 8
			yVal += 16
			if yVal > 235 {
				yVal = 235
			}
			if yVal < 16 {
				yVal = 16
			}
			yPlane[yOff+x] = byte(yVal)

			// Chroma co-sited top-left: sample the top-left pixel of each
			// 2x2 block rather than averaging.
			if y%2 == 0 && x%2 == 0 {
				uVal := (-26*r - 86*g + 112*b + 128) >> 8
				uVal += 128
				if uVal > 240 {
					uVal = 240
				}
				if uVal < 16 {
					uVal = 16
				}

				vVal := (112*r - 102*g - 10*b + 128) >> 8
				vVal += 128
				if vVal > 240 {
					vVal = 240
				}
				if vVal < 16 {
					vVal = 16
				}

				ci := (y/2)*chromaW + x/2
				uPlane[ci] = byte(uVal)
				vPlane[ci] = byte(vVal)
			}
		}
	}
	return i420
}
