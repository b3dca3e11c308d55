package apphost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubApp struct {
	startErr, stopErr error
	started, stopped  int
	events            []uint32
}

func (a *stubApp) Start() error { a.started++; return a.startErr }
func (a *stubApp) Stop() error  { a.stopped++; return a.stopErr }
func (a *stubApp) HandleEvent(eventType uint32, data any) error {
	a.events = append(a.events, eventType)
	return nil
}

func resetRegistry(t *testing.T) {
	t.Helper()
	registryMu.Lock()
	saved := registry
	registry = map[uint64]Factory{}
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		registry = saved
		registryMu.Unlock()
	})
}

func TestHost_LoadStartStopUnload(t *testing.T) {
	resetRegistry(t)
	app := &stubApp{}
	Register(42, func(appID uint64, payload []byte) (App, error) { return app, nil })

	h := NewHost()
	handle, err := h.Load(42, []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.Live())

	require.NoError(t, h.Start(handle))
	assert.Equal(t, 1, app.started)

	require.NoError(t, h.Stop(handle))
	assert.Equal(t, 1, app.stopped)

	require.NoError(t, h.Unload(handle))
	assert.Equal(t, 0, h.Live())
}

func TestHost_LoadUnregisteredAppIDFails(t *testing.T) {
	resetRegistry(t)
	h := NewHost()
	_, err := h.Load(99, nil)
	assert.Error(t, err)
}

func TestHost_FactoryErrorPropagates(t *testing.T) {
	resetRegistry(t)
	Register(7, func(uint64, []byte) (App, error) { return nil, errors.New("bad image") })

	h := NewHost()
	_, err := h.Load(7, nil)
	assert.Error(t, err)
	assert.Equal(t, 0, h.Live())
}

func TestHost_UnknownHandleOperationsFail(t *testing.T) {
	h := NewHost()
	assert.Error(t, h.Start(999))
	assert.Error(t, h.Stop(999))
	assert.Error(t, h.Unload(999))
}

func TestRegister_PanicsOnDuplicateAppID(t *testing.T) {
	resetRegistry(t)
	Register(1, func(uint64, []byte) (App, error) { return &stubApp{}, nil })
	assert.Panics(t, func() {
		Register(1, func(uint64, []byte) (App, error) { return &stubApp{}, nil })
	})
}

func TestRegisteredAppIDs_SortedAscending(t *testing.T) {
	resetRegistry(t)
	Register(5, func(uint64, []byte) (App, error) { return &stubApp{}, nil })
	Register(2, func(uint64, []byte) (App, error) { return &stubApp{}, nil })
	Register(9, func(uint64, []byte) (App, error) { return &stubApp{}, nil })

	assert.Equal(t, []uint64{2, 5, 9}, RegisteredAppIDs())
}
