// Package integration exercises spec.md §8's literal scenarios end to
// end through the root seos.Kernel, spanning the app lifecycle manager,
// event dispatcher, task table, and calibration engine together rather
// than any one package in isolation.
package integration

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/seoshub/seos"
	"github.com/seoshub/seos/internal/alm"
	"github.com/seoshub/seos/internal/appimage"
	"github.com/seoshub/seos/internal/evqueue"
	"github.com/seoshub/seos/internal/seosif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appFrame(t *testing.T, id1 byte, appID uint64, version uint32) []byte {
	t.Helper()
	payload := appimage.EncodeHeader(appimage.Header{
		FormatVersion: appimage.CurrentFormatVersion,
		Marker:        appimage.MarkerValid,
		AppID:         appID,
		AppVersion:    version,
	})
	return appimage.EncodeFrame(id1, id1, payload)
}

// TestScenario4_DupAppStartPicksLatestFrame is spec scenario 4: two
// valid frames share an App ID; start_apps(any) hosts exactly one live
// task referencing the newer frame and erases the older one.
func TestScenario4_DupAppStartPicksLatestFrame(t *testing.T) {
	appID := appimage.MakeAppID(1, 1)
	var region []byte
	region = append(region, appFrame(t, 1, appID, 1)...)
	region = append(region, appFrame(t, 2, appID, 2)...)

	k := seos.NewKernel(seos.Config{
		TaskTableCapacity: 4,
		RegionData:        region,
		AppHost:           seos.NewMockAppHost(),
	})

	status := k.StartApps(alm.SelectorAny)
	assert.Equal(t, uint8(2), status.App())
	assert.Equal(t, uint8(1), status.Task())
	assert.Equal(t, uint8(1), status.Op())
	assert.Equal(t, uint8(1), status.Erase())

	tid, ok := k.TIDByID(appID)
	require.True(t, ok)
	_, version, _, ok2 := k.AppInfoByID(appID)
	require.True(t, ok2)
	assert.Equal(t, uint32(2), version)
	assert.NotZero(t, tid)
}

// TestScenario5_StopThenEraseIsIdempotent is spec scenario 5: erasing a
// live app's only frame removes its task and marks the frame DELETED;
// a second erase call on the same selector reports zero counters.
func TestScenario5_StopThenEraseIsIdempotent(t *testing.T) {
	appID := appimage.MakeAppID(2, 5)
	region := appFrame(t, 1, appID, 1)

	k := seos.NewKernel(seos.Config{
		TaskTableCapacity: 4,
		RegionData:        region,
		AppHost:           seos.NewMockAppHost(),
	})

	started := k.StartApps(alm.SelectorForAppID(appID))
	require.Equal(t, uint8(1), started.Op())

	first := k.EraseApps(alm.SelectorForAppID(appID))
	assert.Equal(t, uint8(1), first.App())
	assert.Equal(t, uint8(1), first.Task())
	assert.Equal(t, uint8(1), first.Op())
	assert.Equal(t, uint8(1), first.Erase())

	_, ok := k.TIDByID(appID)
	assert.False(t, ok)

	second := k.EraseApps(alm.SelectorForAppID(appID))
	assert.Equal(t, alm.MgmtStatus(0), second)
}

// retained pairs the free-info handle and data RetainCurrentEvent hands
// back to an app handler mid-dispatch.
type retained struct {
	h    evqueue.FreeInfo
	data any
}

// retainingHost retains the event currently being dispatched from
// inside Dispatch, as an app handler calling RetainCurrentEvent would,
// then signals back on a channel so the test can call
// FreeRetainedEvent once, matching spec scenario 6's "app later calls
// free_retained_event".
type retainingHost struct {
	*seos.MockAppHost
	kernel   *seos.Kernel
	retained chan retained
}

func (h *retainingHost) Dispatch(handle seosif.Handle, eventType uint32, data any) error {
	hn, d, ok := h.kernel.RetainCurrentEvent()
	if ok {
		h.retained <- retained{h: hn, data: d}
	}
	return h.MockAppHost.Dispatch(handle, eventType, data)
}

// TestScenario6_RetentionDefersFreeUntilExplicitRelease is spec scenario
// 6: an app subscribes to E, retains the event on receipt, and the
// dispatcher's own free is suppressed until the app later releases it
// via FreeRetainedEvent. The live task comes from a real start_apps
// call against a one-frame region, the same path ALM uses in
// production, rather than reaching into kernel internals.
func TestScenario6_RetentionDefersFreeUntilExplicitRelease(t *testing.T) {
	appID := appimage.MakeAppID(9, 9)
	region := appFrame(t, 1, appID, 1)

	rh := &retainingHost{MockAppHost: seos.NewMockAppHost(), retained: make(chan retained, 1)}
	k := seos.NewKernel(seos.Config{TaskTableCapacity: 4, RegionData: region, AppHost: rh})
	rh.kernel = k

	require.Equal(t, uint8(1), k.StartApps(alm.SelectorForAppID(appID)).Op())
	tid, ok := k.TIDByID(appID)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go k.Run(ctx)

	// Subscribe and Enqueue are both posted to the same FIFO queue from
	// this one goroutine, so the subscription is guaranteed to dispatch
	// before the event it must match, regardless of the dispatcher
	// goroutine's scheduling.
	require.True(t, k.Subscribe(tid, 42))

	freed := 0
	require.True(t, k.Enqueue(42, "payload", func(any) { freed++ }))

	select {
	case r := <-rh.retained:
		assert.Equal(t, 0, freed, "free must not run while the event is retained")
		k.FreeRetainedEvent(r.h, r.data)
		assert.Equal(t, 1, freed, "free must run exactly once, after the explicit release")
	case <-time.After(time.Second):
		t.Fatal("app handler never observed the dispatched event")
	}
}

// TestCalibration_EndToEndThroughKernel confirms UpdateGyro/NewBiasAvailable
// wiring survives the full Kernel, not just the calib package in
// isolation - spec scenario 1 driven through the public API.
func TestCalibration_EndToEndThroughKernel(t *testing.T) {
	cfg := seos.DefaultConfig()
	cfg.AppHost = seos.NewMockAppHost()
	k := seos.NewKernel(cfg)

	mean := [3]float64{0.001, 0.001, 0.001}
	const hz = 100.0
	periodNs := int64(float64(time.Second) / hz)
	// The gate only checks stillness when a 500ms window closes, so an
	// exact 10s feed's last check lands at t=9.5s - short of the 10s max
	// still duration - and never emits. Run past it so a check actually
	// observes elapsed > MaxStillDuration.
	samples := int(11 * time.Second / time.Duration(periodNs))
	tNs := int64(0)
	for i := 0; i < samples; i++ {
		n := 1e-5 * math.Sin(float64(i)*12.9898)
		k.UpdateAccel(tNs, 0, 0, 9.81)
		k.UpdateGyro(tNs, mean[0]+n, mean[1]+n, mean[2]+n, 25.0)
		tNs += periodNs
	}

	require.True(t, k.NewBiasAvailable())
	bias, _, _, _ := k.GetBias()
	assert.InDelta(t, mean[0], bias[0], 1e-4)
	assert.False(t, k.NewBiasAvailable(), "read-and-clear must not re-report the same emission")
}
