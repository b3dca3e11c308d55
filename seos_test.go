package seos

import (
	"context"
	"testing"
	"time"

	"github.com/seoshub/seos/internal/appimage"
	"github.com/seoshub/seos/internal/seosif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKernel(t *testing.T) (*Kernel, *MockAppHost) {
	t.Helper()
	host := NewMockAppHost()
	k := NewKernel(Config{
		TaskTableCapacity: 4,
		AppHost:           host,
		Observer:          NoOpObserver{},
	})
	return k, host
}

func TestNewKernel_DefaultsAppHostWhenNil(t *testing.T) {
	k := NewKernel(Config{})
	require.NotNil(t, k.host)
	require.NotNil(t, k.metrics)
}

func TestKernel_EnqueueBroadcastsToSubscribedTask(t *testing.T) {
	k, host := newTestKernel(t)
	h, err := host.Load(1, nil)
	require.NoError(t, err)
	_, ok := k.tt.Add(1, nil, h)
	require.True(t, ok)

	require.True(t, k.Subscribe(1, 100))
	require.True(t, k.dispatcher.DispatchOne())

	freed := 0
	require.True(t, k.Enqueue(100, "payload", func(any) { freed++ }))
	require.True(t, k.dispatcher.DispatchOne())

	delivered := host.Dispatched()
	require.Len(t, delivered, 1)
	assert.EqualValues(t, 100, delivered[0].EventType)
	assert.Equal(t, 1, freed)
}

func TestKernel_EnqueueOrFreeRunsFreeOnFullQueue(t *testing.T) {
	k, _ := newTestKernel(t)
	for i := 0; i < EventQueueCapacity; i++ {
		require.True(t, k.Enqueue(200, i, nil))
	}
	freed := false
	assert.False(t, k.EnqueueOrFree(200, "overflow", func(any) { freed = true }))
	assert.True(t, freed)
}

func TestKernel_SubscribeExhaustsSlabAfterCapacity(t *testing.T) {
	k, _ := newTestKernel(t)
	for i := 0; i < SlabCapacity; i++ {
		require.True(t, k.Subscribe(int32(i), 1), "slot %d should still be available", i)
	}
	assert.False(t, k.Subscribe(999, 1), "slab should be exhausted past capacity")

	require.True(t, k.dispatcher.DispatchOne())
	assert.True(t, k.Subscribe(999, 1), "freeing one internal event should return its slot")
}

func TestKernel_EnqueuePrivateDeliversOnlyToTargetTID(t *testing.T) {
	k, host := newTestKernel(t)
	h, err := host.Load(1, nil)
	require.NoError(t, err)
	_, ok := k.tt.Add(5, nil, h)
	require.True(t, ok)

	require.True(t, k.EnqueuePrivate(300, "secret", nil, 5))
	require.True(t, k.dispatcher.DispatchOne())

	delivered := host.Dispatched()
	require.Len(t, delivered, 1)
	assert.Equal(t, h, delivered[0].Handle)
	assert.Equal(t, "secret", delivered[0].Data)
}

func TestKernel_DeferRunsCallbackOnDispatcherGoroutine(t *testing.T) {
	k, _ := newTestKernel(t)
	ran := false
	require.True(t, k.Defer(func(cookie any) { ran = true; assert.Equal(t, "c", cookie) }, "c", false))
	require.True(t, k.dispatcher.DispatchOne())
	assert.True(t, ran)
}

// retainingHost retains the event currently being dispatched from inside
// Dispatch, as an app handler calling RetainCurrentEvent would.
type retainingHost struct {
	*MockAppHost
	kernel     *Kernel
	retainedOK bool
}

func (h *retainingHost) Dispatch(handle seosif.Handle, eventType uint32, data any) error {
	_, _, ok := h.kernel.RetainCurrentEvent()
	h.retainedOK = ok
	return h.MockAppHost.Dispatch(handle, eventType, data)
}

func TestKernel_RetainCurrentEventSuppressesFreeUntilExplicit(t *testing.T) {
	rh := &retainingHost{MockAppHost: NewMockAppHost()}
	k := NewKernel(Config{TaskTableCapacity: 4, AppHost: rh, Observer: NoOpObserver{}})
	rh.kernel = k

	h, err := rh.Load(1, nil)
	require.NoError(t, err)
	_, ok := k.tt.Add(1, nil, h)
	require.True(t, ok)
	require.True(t, k.Subscribe(1, 500))
	require.True(t, k.dispatcher.DispatchOne())

	freed := 0
	require.True(t, k.Enqueue(500, "held", func(any) { freed++ }))
	require.True(t, k.dispatcher.DispatchOne())

	assert.True(t, rh.retainedOK)
	assert.Equal(t, 0, freed, "free must not run while the event is retained")
}

func TestKernel_AppInfoAndTIDLookups(t *testing.T) {
	k, host := newTestKernel(t)
	h, err := host.Load(42, nil)
	require.NoError(t, err)
	hdr := &appimage.Header{AppID: 42, AppVersion: 7, ImageEndOffset: 123}
	_, ok := k.tt.Add(9, hdr, h)
	require.True(t, ok)

	idx, version, size, found := k.AppInfoByID(42)
	require.True(t, found)
	assert.Equal(t, uint32(7), version)
	assert.Equal(t, uint32(123), size)

	appID, version2, size2, found2 := k.AppInfoByIndex(idx)
	require.True(t, found2)
	assert.Equal(t, uint64(42), appID)
	assert.Equal(t, version, version2)
	assert.Equal(t, size, size2)

	tid, found3 := k.TIDByID(42)
	require.True(t, found3)
	assert.EqualValues(t, 9, tid)

	_, _, _, notFound := k.AppInfoByID(999)
	assert.False(t, notFound)
}

func TestKernel_CalibrationPassthrough(t *testing.T) {
	k, _ := newTestKernel(t)
	cx, cy, cz := k.RemoveBias(1, 2, 3)
	assert.Equal(t, 1.0, cx)
	assert.Equal(t, 2.0, cy)
	assert.Equal(t, 3.0, cz)
	assert.False(t, k.NewBiasAvailable())

	k.SetBias([3]float64{0.01, 0.02, 0.03}, 25.0, 5000)
	bias, temp, calTime, _ := k.GetBias()
	assert.Equal(t, [3]float64{0.01, 0.02, 0.03}, bias)
	assert.Equal(t, 25.0, temp)
	assert.EqualValues(t, 5000, calTime)
}

func TestKernel_RunStopsOnContextCancel(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		k.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestKernel_AbortInvokesOnFatal(t *testing.T) {
	var reason string
	k := NewKernel(Config{OnFatal: func(r string) { reason = r }})
	k.Abort("test failure")
	assert.Equal(t, "test failure", reason)
}

func TestKernel_StepDebugReporterIsNoOpWhenDisabled(t *testing.T) {
	k, _ := newTestKernel(t)
	assert.NotPanics(t, func() { k.StepDebugReporter() })
}
