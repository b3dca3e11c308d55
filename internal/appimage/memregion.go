package appimage

import "sync"

// MemRegion is an in-memory flash-shared region, standing in for the
// protected-region-writer capability (spec §1 scopes actual flash
// programming out of the kernel). Adapted from the teacher's sharded RAM
// backend (backend/mem.go): reads never need the lock since nothing
// mutates concurrently with iteration in this single-threaded kernel, but
// SetMarker takes it to stay honest about the one mutation path
// (erase_apps) being the only writer, mirroring the teacher's
// call-count-tracking mock backend for testability.
type MemRegion struct {
	mu         sync.Mutex
	data       []byte
	markerSets int
}

// NewMemRegion creates a region containing data verbatim. data is copied.
func NewMemRegion(data []byte) *MemRegion {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &MemRegion{data: cp}
}

// Bytes returns the region's current contents. Callers must not retain or
// mutate the slice past the next SetMarker call.
func (r *MemRegion) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// SetMarker flips the marker byte of the app header at the frame starting
// at frameOffset to m. It is the sole mutation path into the region,
// modeling the protected-region writer that erase_apps drives.
func (r *MemRegion) SetMarker(frameOffset int, m Marker) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameOffset < 0 || frameOffset+FrameHeaderSize > len(r.data) {
		return false
	}
	f, ok := DecodeFrame(r.data[frameOffset:])
	if !ok {
		return false
	}
	markerOffset := frameOffset + FrameHeaderSize + 5 // magic(4) + format_version(1)
	if markerOffset >= len(r.data) {
		return false
	}
	_ = f
	r.data[markerOffset] = byte(m)
	r.markerSets++
	return true
}

// MarkerSetCount reports how many times SetMarker has succeeded, for
// tests asserting on write traffic.
func (r *MemRegion) MarkerSetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markerSets
}
