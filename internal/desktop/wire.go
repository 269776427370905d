package desktop

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Binary frame layouts. Both are little-endian.
//
// Raw frame (24-byte header + tightly packed RGBA8):
//
//	0  4  'R' 'G' 'B' 'A'
//	4  4  width
//	8  4  height
//	12 8  frame number
//	20 4  data length
//	24 N  pixels
//
// Fallback frame (27-byte header + 7-byte change records):
//
//	0  3  0xAA 0xBB 0x01
//	3  4  width (downsampled)
//	7  4  height (downsampled)
//	11 8  frame number
//	19 4  compressed length (4 + 7*C)
//	23 4  change count C
//	27 7C records: index(u32) R G B

const (
	rawHeaderSize      = 24
	fallbackHeaderSize = 27
	fallbackRecordSize = 7
)

var (
	rawMagic      = [4]byte{'R', 'G', 'B', 'A'}
	fallbackMagic = [3]byte{0xAA, 0xBB, 0x01}
)

var (
	ErrFrameTruncated = errors.New("frame truncated")
	ErrBadMagic       = errors.New("unrecognized frame header")
)

// appendRawFrame serializes a raw-mode frame onto dst and returns the
// extended slice. pixels must already be tightly packed RGBA8.
func appendRawFrame(dst []byte, width, height int, frameNumber uint64, pixels []byte) []byte {
	dst = append(dst, rawMagic[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(width))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(height))
	dst = binary.LittleEndian.AppendUint64(dst, frameNumber)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(pixels)))
	return append(dst, pixels...)
}

// ChangeRecord is one downsampled pixel in a fallback frame.
type ChangeRecord struct {
	Index   uint32
	R, G, B uint8
}

// appendFallbackFrame serializes a fallback-mode frame onto dst.
func appendFallbackFrame(dst []byte, width, height int, frameNumber uint64, changes []ChangeRecord) []byte {
	dst = append(dst, fallbackMagic[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(width))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(height))
	dst = binary.LittleEndian.AppendUint64(dst, frameNumber)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(4+fallbackRecordSize*len(changes)))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(changes)))
	for _, c := range changes {
		dst = binary.LittleEndian.AppendUint32(dst, c.Index)
		dst = append(dst, c.R, c.G, c.B)
	}
	return dst
}

// RawFrame is a parsed raw-mode frame.
type RawFrame struct {
	Width       uint32
	Height      uint32
	FrameNumber uint64
	Pixels      []byte
}

// ParseRawFrame decodes a raw-mode frame. The returned pixel slice aliases
// data.
func ParseRawFrame(data []byte) (*RawFrame, error) {
	if len(data) < rawHeaderSize {
		return nil, ErrFrameTruncated
	}
	if [4]byte(data[0:4]) != rawMagic {
		return nil, ErrBadMagic
	}
	f := &RawFrame{
		Width:       binary.LittleEndian.Uint32(data[4:8]),
		Height:      binary.LittleEndian.Uint32(data[8:12]),
		FrameNumber: binary.LittleEndian.Uint64(data[12:20]),
	}
	dataLen := binary.LittleEndian.Uint32(data[20:24])
	if uint64(dataLen) != uint64(f.Width)*uint64(f.Height)*4 {
		return nil, fmt.Errorf("raw frame: data length %d does not match %dx%d", dataLen, f.Width, f.Height)
	}
	if uint64(len(data)-rawHeaderSize) != uint64(dataLen) {
		return nil, ErrFrameTruncated
	}
	f.Pixels = data[rawHeaderSize:]
	return f, nil
}

// FallbackFrame is a parsed fallback-mode frame.
type FallbackFrame struct {
	Width       uint32
	Height      uint32
	FrameNumber uint64
	Changes     []ChangeRecord
}

// ParseFallbackFrame decodes a fallback-mode frame, validating that the
// compressed length is consistent with the change count.
func ParseFallbackFrame(data []byte) (*FallbackFrame, error) {
	if len(data) < fallbackHeaderSize {
		return nil, ErrFrameTruncated
	}
	if [3]byte(data[0:3]) != fallbackMagic {
		return nil, ErrBadMagic
	}
	f := &FallbackFrame{
		Width:       binary.LittleEndian.Uint32(data[3:7]),
		Height:      binary.LittleEndian.Uint32(data[7:11]),
		FrameNumber: binary.LittleEndian.Uint64(data[11:19]),
	}
	compressedLen := binary.LittleEndian.Uint32(data[19:23])
	count := binary.LittleEndian.Uint32(data[23:27])
	if uint64(compressedLen) != uint64(count)*fallbackRecordSize+4 {
		return nil, fmt.Errorf("fallback frame: compressed length %d inconsistent with change count %d", compressedLen, count)
	}
	if uint64(len(data)-fallbackHeaderSize) != uint64(count)*fallbackRecordSize {
		return nil, ErrFrameTruncated
	}
	f.Changes = make([]ChangeRecord, count)
	off := fallbackHeaderSize
	for i := range f.Changes {
		f.Changes[i] = ChangeRecord{
			Index: binary.LittleEndian.Uint32(data[off : off+4]),
			R:     data[off+4],
			G:     data[off+5],
			B:     data[off+6],
		}
		off += fallbackRecordSize
	}
	return f, nil
}
