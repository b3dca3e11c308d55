// Package appimage implements the flash-shared-region frame format and
// app header parsing, grounded on the teacher's uapi package's manual
// offset marshal/unmarshal idiom (internal/uapi/marshal.go) rather than
// reflection-based codecs - this is a custom wire format, not a kernel
// ABI struct, but the same "no struct tags, explicit byte offsets" style
// applies.
package appimage

import (
	"encoding/binary"
	"hash/crc32"
)

// BLFlashAppID is the reserved "bootloader flash app" id1 value: a frame
// with this id1 is always considered an app frame regardless of id2.
const BLFlashAppID = 0x0F

// FrameHeaderSize is the size in bytes of a frame's prefix header.
const FrameHeaderSize = 4

// Frame is one decoded record from the shared region.
type Frame struct {
	ID1     byte
	ID2     byte
	Payload []byte // length-prefixed payload, unpadded
	Offset  int    // byte offset of this frame's header within the region
	Size    int    // total on-wire size: header + padded payload + crc
}

// IsAppFrame reports whether the frame should be considered for app
// validity per the iterator rule in spec §4.4.
func (f Frame) IsAppFrame() bool {
	return f.ID1 == f.ID2 || f.ID1 == BLFlashAppID
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int {
	return (n + 3) &^ 3
}

// DecodeFrame decodes a single frame starting at offset 0 of data,
// validating its CRC-32 trailer. It returns ok=false if data is too short
// to contain a full frame or the CRC does not match - the latter is
// treated identically to "not an app": the iterator moves on silently.
func DecodeFrame(data []byte) (f Frame, ok bool) {
	if len(data) < FrameHeaderSize {
		return Frame{}, false
	}
	b0 := data[0]
	id1 := b0 & 0x0F
	id2 := b0 >> 4
	// bytes 1..3 are a 24-bit big-endian payload length.
	length := uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])

	paddedLen := align4(int(length))
	frameEnd := FrameHeaderSize + paddedLen
	total := frameEnd + 4 // + CRC-32 trailer
	if len(data) < total {
		return Frame{}, false
	}

	crcExpected := binary.BigEndian.Uint32(data[frameEnd : frameEnd+4])
	crcActual := crc32.ChecksumIEEE(data[:frameEnd])
	if crcExpected != crcActual {
		return Frame{}, false
	}

	return Frame{
		ID1:     id1,
		ID2:     id2,
		Payload: data[FrameHeaderSize : FrameHeaderSize+int(length)],
		Size:    total,
	}, true
}

// EncodeFrame builds the on-wire bytes for a frame with the given ids and
// payload, computing padding and the CRC-32 trailer. Used by tests and by
// MemRegion to synthesize fixtures.
func EncodeFrame(id1, id2 byte, payload []byte) []byte {
	length := len(payload)
	padded := align4(length)
	buf := make([]byte, FrameHeaderSize+padded+4)

	buf[0] = (id2 << 4) | (id1 & 0x0F)
	buf[1] = byte(length >> 16)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[FrameHeaderSize:], payload)

	crc := crc32.ChecksumIEEE(buf[:FrameHeaderSize+padded])
	binary.BigEndian.PutUint32(buf[FrameHeaderSize+padded:], crc)
	return buf
}
