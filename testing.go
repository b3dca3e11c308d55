package seos

import (
	"sync"

	"github.com/seoshub/seos/internal/seosif"
)

// MockAppHost is a test double for seosif.AppHost: it tracks call
// counts and lets tests script per-call failures, the same shape as
// the teacher's MockBackend.
type MockAppHost struct {
	mu sync.Mutex

	nextHandle seosif.Handle
	loaded     map[seosif.Handle][]byte
	live       map[seosif.Handle]bool

	loadCalls     int
	startCalls    int
	stopCalls     int
	unloadCalls   int
	dispatchCalls int

	dispatched []DispatchedEvent

	LoadErr     error
	StartErr    error
	StopErr     error
	UnloadErr   error
	DispatchErr error
}

// DispatchedEvent records one call to Dispatch, for test assertions.
type DispatchedEvent struct {
	Handle    seosif.Handle
	EventType uint32
	Data      any
}

// NewMockAppHost creates an empty MockAppHost.
func NewMockAppHost() *MockAppHost {
	return &MockAppHost{
		loaded: make(map[seosif.Handle][]byte),
		live:   make(map[seosif.Handle]bool),
	}
}

// Load implements seosif.AppHost.
func (m *MockAppHost) Load(appID uint64, payload []byte) (seosif.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	if m.LoadErr != nil {
		return seosif.NoHandle, m.LoadErr
	}
	m.nextHandle++
	h := m.nextHandle
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.loaded[h] = cp
	return h, nil
}

// Start implements seosif.AppHost.
func (m *MockAppHost) Start(h seosif.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.live[h] = true
	return nil
}

// Stop implements seosif.AppHost.
func (m *MockAppHost) Stop(h seosif.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	if m.StopErr != nil {
		return m.StopErr
	}
	delete(m.live, h)
	return nil
}

// Unload implements seosif.AppHost.
func (m *MockAppHost) Unload(h seosif.Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unloadCalls++
	if m.UnloadErr != nil {
		return m.UnloadErr
	}
	delete(m.loaded, h)
	delete(m.live, h)
	return nil
}

// Dispatch implements seosif.AppHost.
func (m *MockAppHost) Dispatch(h seosif.Handle, eventType uint32, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchCalls++
	if m.DispatchErr != nil {
		return m.DispatchErr
	}
	m.dispatched = append(m.dispatched, DispatchedEvent{Handle: h, EventType: eventType, Data: data})
	return nil
}

// IsLive reports whether h's app is currently started.
func (m *MockAppHost) IsLive(h seosif.Handle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[h]
}

// Dispatched returns a copy of every Dispatch call observed so far.
func (m *MockAppHost) Dispatched() []DispatchedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DispatchedEvent, len(m.dispatched))
	copy(out, m.dispatched)
	return out
}

// CallCounts returns the number of times each method has been called.
func (m *MockAppHost) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"load":     m.loadCalls,
		"start":    m.startCalls,
		"stop":     m.stopCalls,
		"unload":   m.unloadCalls,
		"dispatch": m.dispatchCalls,
	}
}

// Reset clears all call counters and recorded state.
func (m *MockAppHost) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls, m.startCalls, m.stopCalls, m.unloadCalls, m.dispatchCalls = 0, 0, 0, 0, 0
	m.loaded = make(map[seosif.Handle][]byte)
	m.live = make(map[seosif.Handle]bool)
	m.dispatched = nil
	m.nextHandle = 0
}

var _ seosif.AppHost = (*MockAppHost)(nil)
