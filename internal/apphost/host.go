// Package apphost implements the App Host capability (spec §1: "how an
// app's entry points actually execute is out of scope for the kernel
// itself"). Nanoapps here are compiled-in Go closures rather than a
// separate CPU/ABI target, registered by App ID the way the corpus's
// periph.io registers drivers by name in package init() functions
// (google-periph/periph.go's Driver/MustRegister/registeredDrivers): a
// package-level registry that the kernel only ever talks to through a
// handle.
package apphost

import (
	"fmt"
	"sort"
	"sync"

	"github.com/seoshub/seos/internal/seosif"
)

// App is a compiled-in nanoapp instance, already loaded and ready to
// run.
type App interface {
	// Start invokes the app's entry point.
	Start() error
	// Stop requests the running instance halt.
	Stop() error
	// HandleEvent delivers a single dispatched event to the app.
	HandleEvent(eventType uint32, data any) error
}

// Factory constructs a fresh App instance for the given App ID and
// validated image payload. Registered factories must be safe to call
// more than once, since start_apps may load and unload the same App ID
// repeatedly across its lifetime.
type Factory func(appID uint64, payload []byte) (App, error)

var (
	registryMu sync.Mutex
	registry   = map[uint64]Factory{}
)

// Register associates appID with factory in the package-level registry.
// Intended to be called from a nanoapp package's init() function, the
// same pattern as periph.io's MustRegister. Panics on a duplicate App
// ID, since that indicates two compiled-in apps claiming the same
// identity - a build-time mistake, not a runtime condition.
func Register(appID uint64, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[appID]; exists {
		panic(fmt.Sprintf("apphost: app id %d already registered", appID))
	}
	registry[appID] = factory
}

// RegisteredAppIDs returns every App ID with a registered factory, in
// ascending order. Exposed for diagnostics and tests.
func RegisteredAppIDs() []uint64 {
	registryMu.Lock()
	defer registryMu.Unlock()
	ids := make([]uint64, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func lookup(appID uint64) (Factory, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[appID]
	return f, ok
}

// Host is the seosif.AppHost implementation backed by the package-level
// registry. One Host is shared by the whole kernel instance; its
// internal map is guarded since ALM and the dispatcher both look up
// handle state through it.
type Host struct {
	mu        sync.Mutex
	next      seosif.Handle
	instances map[seosif.Handle]App
}

// NewHost creates an empty Host.
func NewHost() *Host {
	return &Host{instances: make(map[seosif.Handle]App)}
}

// Load constructs an App instance via the registered factory for appID.
func (h *Host) Load(appID uint64, payload []byte) (seosif.Handle, error) {
	factory, ok := lookup(appID)
	if !ok {
		return seosif.NoHandle, fmt.Errorf("apphost: no factory registered for app id %d", appID)
	}
	app, err := factory(appID, payload)
	if err != nil {
		return seosif.NoHandle, fmt.Errorf("apphost: factory failed for app id %d: %w", appID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	handle := h.next
	h.instances[handle] = app
	return handle, nil
}

// Start invokes the app's entry point.
func (h *Host) Start(handle seosif.Handle) error {
	app, ok := h.get(handle)
	if !ok {
		return fmt.Errorf("apphost: unknown handle %d", handle)
	}
	return app.Start()
}

// Stop requests the app halt.
func (h *Host) Stop(handle seosif.Handle) error {
	app, ok := h.get(handle)
	if !ok {
		return fmt.Errorf("apphost: unknown handle %d", handle)
	}
	return app.Stop()
}

// Dispatch delivers eventType/data to the app's running instance.
func (h *Host) Dispatch(handle seosif.Handle, eventType uint32, data any) error {
	app, ok := h.get(handle)
	if !ok {
		return fmt.Errorf("apphost: unknown handle %d", handle)
	}
	return app.HandleEvent(eventType, data)
}

// Unload releases the host-side instance for handle.
func (h *Host) Unload(handle seosif.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.instances[handle]; !ok {
		return fmt.Errorf("apphost: unknown handle %d", handle)
	}
	delete(h.instances, handle)
	return nil
}

func (h *Host) get(handle seosif.Handle) (App, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	app, ok := h.instances[handle]
	return app, ok
}

// Live returns the number of instances currently loaded, for tests and
// diagnostics.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.instances)
}
