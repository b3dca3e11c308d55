package appimage

import "encoding/binary"

// Marker enumerates the lifecycle state of an app frame's header.
type Marker uint8

const (
	MarkerInternal Marker = iota // internal-only sentinel, never mutated
	MarkerValid
	MarkerDeleted
)

// Magic is the fixed byte sequence every valid app header must start with.
var Magic = [4]byte{'S', 'E', 'O', 'S'}

// CurrentFormatVersion is the format version AII requires for a frame to
// be considered valid.
const CurrentFormatVersion = 1

// HeaderSize is the encoded size of Header, in bytes.
const HeaderSize = 4 + 1 + 1 + 8 + 4 + 4

// Header is the app header payload prefix (spec §3/§6): magic,
// format_version, marker, app_id (40-bit vendor : 24-bit seq), app_version,
// image_end_offset. Immutable except Marker, which may transition
// VALID -> DELETED via the protected-region writer.
type Header struct {
	FormatVersion  uint8
	Marker         Marker
	AppID          uint64
	AppVersion     uint32
	ImageEndOffset uint32
}

// Vendor returns the high 40 bits of AppID.
func (h Header) Vendor() uint64 { return h.AppID >> 24 }

// SeqID returns the low 24 bits of AppID.
func (h Header) SeqID() uint32 { return uint32(h.AppID & 0xFFFFFF) }

// MakeAppID packs a 40-bit vendor and 24-bit sequence id into an App ID.
func MakeAppID(vendor uint64, seq uint32) uint64 {
	return (vendor&0xFFFFFFFFFF)<<24 | uint64(seq&0xFFFFFF)
}

// DecodeHeader parses a Header from a frame's payload. ok is false if the
// payload is too short to contain a header, or the magic doesn't match.
// A format-version or marker mismatch is NOT rejected here - IsValid is
// the place that decides whether a decoded header is a valid app,
// matching the spec's separation between "too short/bad magic to parse
// at all" and "parses fine but isn't currently a valid app".
func DecodeHeader(payload []byte) (h Header, ok bool) {
	if len(payload) < HeaderSize {
		return Header{}, false
	}
	if payload[0] != Magic[0] || payload[1] != Magic[1] || payload[2] != Magic[2] || payload[3] != Magic[3] {
		return Header{}, false
	}
	h.FormatVersion = payload[4]
	h.Marker = Marker(payload[5])
	h.AppID = binary.BigEndian.Uint64(payload[6:14])
	h.AppVersion = binary.BigEndian.Uint32(payload[14:18])
	h.ImageEndOffset = binary.BigEndian.Uint32(payload[18:22])
	return h, true
}

// EncodeHeader serializes h into the payload format DecodeHeader reads.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic[:])
	buf[4] = h.FormatVersion
	buf[5] = byte(h.Marker)
	binary.BigEndian.PutUint64(buf[6:14], h.AppID)
	binary.BigEndian.PutUint32(buf[14:18], h.AppVersion)
	binary.BigEndian.PutUint32(buf[18:22], h.ImageEndOffset)
	return buf
}

// IsValid reports whether h is a currently-loadable app: correct format
// version and marker == VALID. (Magic was already checked by DecodeHeader
// to get this far.)
func (h Header) IsValid() bool {
	return h.FormatVersion == CurrentFormatVersion && h.Marker == MarkerValid
}
