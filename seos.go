// Package seos implements SEOS: a cooperative, single-threaded
// sensor-hub micro-kernel (event queue, slab allocator, task table, app
// image iterator, app lifecycle manager, event dispatcher, public
// kernel API) plus a stillness-gated gyroscope bias calibration engine.
//
// Kernel is the root type wiring every component together, the same
// role the teacher's ublk.Device plays over its Controller/Runner/
// Backend/Metrics collaborators.
package seos

import (
	"context"

	"github.com/seoshub/seos/internal/alm"
	"github.com/seoshub/seos/internal/apphost"
	"github.com/seoshub/seos/internal/appimage"
	"github.com/seoshub/seos/internal/calib"
	"github.com/seoshub/seos/internal/debugreporter"
	"github.com/seoshub/seos/internal/dispatcher"
	"github.com/seoshub/seos/internal/evqueue"
	"github.com/seoshub/seos/internal/obslog"
	"github.com/seoshub/seos/internal/seosif"
	"github.com/seoshub/seos/internal/slab"
	"github.com/seoshub/seos/internal/tasktable"
)

// Config parameterizes a Kernel instance, following the teacher's
// ctrl.DeviceParams/DefaultDeviceParams shape: a plain struct literal
// plus a constructor, no flag parsing.
type Config struct {
	// TaskTableCapacity bounds MAX_TASKS; DefaultTaskTableCapacity if 0.
	TaskTableCapacity int
	// RegionData seeds the flash-shared app image region.
	RegionData []byte
	// InternalApps is the host-provided boot-time app list (spec §4.5).
	InternalApps []alm.InternalApp
	// Calibration parameterizes the stillness-gated bias engine.
	Calibration calib.Config
	// DebugReporter enables the DBG FSM (spec §4.10).
	DebugReporter bool

	// AppHost defaults to apphost.NewHost() if nil.
	AppHost seosif.AppHost
	// Logger defaults to obslog.Default() if nil.
	Logger seosif.Logger
	// Observer defaults to a MetricsObserver over a fresh Metrics if nil.
	Observer seosif.Observer
	// Metrics backs the default Observer; ignored if Observer is set.
	Metrics *Metrics
	// OnFatal is invoked by Abort - spec §9's fatal-error hook replacing
	// the original's spin loop. Defaults to a panic.
	OnFatal func(reason string)
}

// DefaultConfig returns a Kernel configuration with an empty app image
// region, no internal apps, default calibration parameters, and the
// debug reporter disabled.
func DefaultConfig() Config {
	return Config{
		TaskTableCapacity: tasktable.DefaultCapacity,
		Calibration:       calib.DefaultConfig(),
	}
}

// Kernel is SEOS: the wired-together EVQ, SLAB, TT, AII/ALM, ED, PK API,
// and calibration engine. Not safe for concurrent use from more than one
// goroutine except via its public Enqueue*/Subscribe*/Defer* methods,
// which may be called concurrently with the dispatcher's own goroutine
// (spec §5's interrupt-context producer boundary).
type Kernel struct {
	cfg Config

	queue      *evqueue.Queue
	tt         *tasktable.Table
	region     *appimage.MemRegion
	host       seosif.AppHost
	logger     seosif.Logger
	observer   seosif.Observer
	metrics    *Metrics
	lifecycle  *alm.Manager
	dispatcher *dispatcher.Dispatcher
	calib      *calib.Engine
	debug      *debugreporter.Reporter

	internalSlots *slab.Pool[struct{}]

	onFatal func(reason string)
}

// NewKernel wires a Kernel from cfg.
func NewKernel(cfg Config) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = obslog.Default()
	}

	var metrics *Metrics
	observer := cfg.Observer
	if observer == nil {
		metrics = cfg.Metrics
		if metrics == nil {
			metrics = NewMetrics()
		}
		observer = NewMetricsObserver(metrics)
	}

	host := cfg.AppHost
	if host == nil {
		host = apphost.NewHost()
	}

	onFatal := cfg.OnFatal
	if onFatal == nil {
		onFatal = func(reason string) { panic("seos: fatal: " + reason) }
	}

	queue := evqueue.New()
	tt := tasktable.New(cfg.TaskTableCapacity)
	region := appimage.NewMemRegion(cfg.RegionData)
	lifecycle := alm.New(region, tt, host, logger, observer)
	disp := dispatcher.New(queue, tt, host, logger, observer)
	engine := calib.NewEngine(cfg.Calibration, logger, observer)
	reporter := debugreporter.New(cfg.DebugReporter, logger)
	engine.SetOnBiasAccepted(func(bias [3]float64, tempC float64, calTime int64, conf float64) {
		if !reporter.Enabled() {
			return
		}
		reporter.Trigger(debugreporter.Snapshot{
			Bias:                bias,
			TemperatureCelsius:  tempC,
			StillnessConfidence: conf,
			CalibrationTimeNs:   calTime,
		})
	})

	k := &Kernel{
		cfg:           cfg,
		queue:         queue,
		tt:            tt,
		region:        region,
		host:          host,
		logger:        logger,
		observer:      observer,
		metrics:       metrics,
		lifecycle:     lifecycle,
		dispatcher:    disp,
		calib:         engine,
		debug:         reporter,
		internalSlots: slab.New[struct{}](),
		onFatal:       onFatal,
	}

	if len(cfg.InternalApps) > 0 {
		lifecycle.LoadInternalApps(cfg.InternalApps)
	}

	return k
}

// Metrics returns the kernel's metrics instance, or nil if the caller
// supplied a custom Observer in Config.
func (k *Kernel) Metrics() *Metrics { return k.metrics }

// Run blocks, dispatching events as they become available, until ctx is
// canceled or the event queue is closed. Intended to be run on its own
// goroutine; the cooperative dispatch loop itself is single-threaded.
func (k *Kernel) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		k.dispatcher.Run()
	}()

	select {
	case <-ctx.Done():
		k.queue.Close()
		<-done
	case <-done:
	}
}

// Abort is SEOS's catastrophic, unrecoverable sink (spec §7/§9): it
// invokes the configured fatal-error hook rather than propagating an
// exception across the dispatcher boundary.
func (k *Kernel) Abort(reason string) {
	k.onFatal(reason)
}

// --- App Lifecycle Manager passthrough ---

// StopApps stops every live task matching sel.
func (k *Kernel) StopApps(sel alm.AppSelector) alm.MgmtStatus { return k.lifecycle.StopApps(sel) }

// EraseApps stops matching apps then marks their frames DELETED.
func (k *Kernel) EraseApps(sel alm.AppSelector) alm.MgmtStatus { return k.lifecycle.EraseApps(sel) }

// StartApps loads and starts the latest valid frame per distinct App ID
// matching sel.
func (k *Kernel) StartApps(sel alm.AppSelector) alm.MgmtStatus { return k.lifecycle.StartApps(sel) }

// --- Calibration passthrough ---

// UpdateGyro feeds one gyroscope sample into the stillness gate.
func (k *Kernel) UpdateGyro(tNs int64, x, y, z, tempCelsius float64) {
	k.calib.UpdateGyro(tNs, x, y, z, tempCelsius)
}

// UpdateAccel feeds one accelerometer sample into the stillness gate.
func (k *Kernel) UpdateAccel(tNs int64, x, y, z float64) { k.calib.UpdateAccel(tNs, x, y, z) }

// UpdateMag feeds one magnetometer sample into the stillness gate.
func (k *Kernel) UpdateMag(tNs int64, x, y, z float64) { k.calib.UpdateMag(tNs, x, y, z) }

// GetBias returns the most recently accepted bias and its provenance.
func (k *Kernel) GetBias() (bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64, stillnessConfidence float64) {
	return k.calib.GetBias()
}

// SetBias overrides the current bias directly.
func (k *Kernel) SetBias(bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64) {
	k.calib.SetBias(bias, temperatureCelsius, calibrationTimeNs)
}

// NewBiasAvailable is the read-and-clear check for a fresh emission.
func (k *Kernel) NewBiasAvailable() bool { return k.calib.NewBiasAvailable() }

// RemoveBias applies the current bias correction to a raw gyro sample.
func (k *Kernel) RemoveBias(x, y, z float64) (cx, cy, cz float64) { return k.calib.RemoveBias(x, y, z) }

// StepDebugReporter advances the DBG FSM by one tick; callers with a
// debug reporter enabled should call this periodically while Run is
// dispatching; the kernel does not call it itself.
func (k *Kernel) StepDebugReporter() { k.debug.Step() }

// --- Public Kernel API (PK) ---

// Subscribe adds (tid, evt) to the task's subscription set, with
// deferred effect: the mutation happens when the posted internal event
// is later dispatched, never inline on the caller's goroutine (spec
// §4.6/§4.11). Returns false only on SLAB exhaustion or EVQ full.
func (k *Kernel) Subscribe(tid int32, evt uint32) bool {
	return k.postInternal(dispatcher.EvtSubscribe, dispatcher.SubscribePayload{TID: tid, EventType: evt}, false)
}

// Unsubscribe removes (tid, evt) from the task's subscription set, with
// the same deferred-effect contract as Subscribe.
func (k *Kernel) Unsubscribe(tid int32, evt uint32) bool {
	return k.postInternal(dispatcher.EvtUnsubscribe, dispatcher.SubscribePayload{TID: tid, EventType: evt}, false)
}

// Enqueue posts a user event for broadcast to every subscribed task.
// free is invoked exactly once unless the event is retained (spec §8).
func (k *Kernel) Enqueue(eventType uint32, data any, free func(data any)) bool {
	return k.enqueueUser(eventType, data, wrapFree(free), false)
}

// EnqueueOrFree behaves like Enqueue, additionally invoking free(data)
// immediately if the enqueue itself fails (queue full).
func (k *Kernel) EnqueueOrFree(eventType uint32, data any, free func(data any)) bool {
	if k.Enqueue(eventType, data, free) {
		return true
	}
	if free != nil {
		free(data)
	}
	return false
}

// EnqueueAsApp posts a user event whose free-info names fromTID: at
// release time the dispatcher delivers FreeEvtData to that app's
// handler instead of invoking a callback directly (spec §3).
func (k *Kernel) EnqueueAsApp(eventType uint32, data any, fromTID int32) bool {
	return k.enqueueUser(eventType, data, evqueue.FreeAsApp(fromTID), false)
}

// Defer posts a callback to run on the dispatcher goroutine, optionally
// ahead of already-queued non-urgent events.
func (k *Kernel) Defer(cb func(cookie any), cookie any, urgent bool) bool {
	return k.postInternal(dispatcher.EvtDeferredCallback, dispatcher.DeferredPayload{Callback: cb, Cookie: cookie}, urgent)
}

// EnqueuePrivate posts an event delivered only to toTID, bypassing
// subscription matching entirely.
func (k *Kernel) EnqueuePrivate(eventType uint32, data any, free func(data any), toTID int32) bool {
	return k.postInternal(dispatcher.EvtPrivate, dispatcher.PrivatePayload{
		InnerType: eventType, InnerData: data, InnerFree: wrapFree(free), ToTID: toTID,
	}, false)
}

// EnqueuePrivateAsApp behaves like EnqueuePrivate, with free-info naming
// fromTID instead of a callback (spec §3).
func (k *Kernel) EnqueuePrivateAsApp(eventType uint32, data any, fromTID, toTID int32) bool {
	return k.postInternal(dispatcher.EvtPrivate, dispatcher.PrivatePayload{
		InnerType: eventType, InnerData: data, InnerFree: evqueue.FreeAsApp(fromTID), ToTID: toTID,
	}, false)
}

// RetainCurrentEvent transfers ownership of the event currently being
// dispatched to the caller; must only be called from within an App Host
// handler invoked by the dispatcher.
func (k *Kernel) RetainCurrentEvent() (handle evqueue.FreeInfo, data any, ok bool) {
	return k.dispatcher.RetainCurrentEvent()
}

// FreeRetainedEvent performs the free action for an event retained
// earlier via RetainCurrentEvent.
func (k *Kernel) FreeRetainedEvent(handle evqueue.FreeInfo, data any) {
	k.dispatcher.FreeRetainedEvent(handle, data)
}

// AppInfoByID reports the task-table index, app version, and image size
// for the live task hosting appID.
func (k *Kernel) AppInfoByID(appID uint64) (idx int, version uint32, size uint32, ok bool) {
	for i, task := range k.tt.All() {
		if task.AppHeaderRef != nil && task.AppHeaderRef.AppID == appID {
			return i, task.AppHeaderRef.AppVersion, task.AppHeaderRef.ImageEndOffset, true
		}
	}
	return 0, 0, 0, false
}

// AppInfoByIndex reports the App ID, version, and image size for the
// task-table entry at idx.
func (k *Kernel) AppInfoByIndex(idx int) (appID uint64, version uint32, size uint32, ok bool) {
	all := k.tt.All()
	if idx < 0 || idx >= len(all) || all[idx].AppHeaderRef == nil {
		return 0, 0, 0, false
	}
	h := all[idx].AppHeaderRef
	return h.AppID, h.AppVersion, h.ImageEndOffset, true
}

// TIDByID reports the TID of the live task hosting appID.
func (k *Kernel) TIDByID(appID uint64) (tid int32, ok bool) {
	task, found := k.tt.FindByAppID(appID)
	if !found {
		return 0, false
	}
	return task.TID, true
}

func wrapFree(free func(data any)) evqueue.FreeInfo {
	if free == nil {
		return nil
	}
	return evqueue.FreeCallback(free)
}

// enqueueUser posts directly to the EVQ - user events aren't
// SLAB-gated, only the internal-event types are (spec §4.2's "sized
// for 64 concurrent internal events").
func (k *Kernel) enqueueUser(eventType uint32, data any, free evqueue.FreeInfo, urgent bool) bool {
	ok := k.queue.Enqueue(evqueue.Descriptor{Type: eventType, Data: data, Free: free}, urgent)
	k.observer.ObserveOp()
	return ok
}

// postInternal posts an internal-event descriptor, gated by the SLAB's
// 64-concurrent-internal-event capacity (spec §4.2): a nil token means
// exhaustion, degrading to a false return per spec §7 rather than
// enqueueing unconditionally.
func (k *Kernel) postInternal(eventType uint32, data any, urgent bool) bool {
	token := k.internalSlots.Get()
	if token == nil {
		return false
	}
	free := evqueue.FreeCallback(func(any) { k.internalSlots.Put(token) })
	ok := k.queue.Enqueue(evqueue.Descriptor{Type: eventType, Data: data, Free: free}, urgent)
	if !ok {
		k.internalSlots.Put(token)
	}
	k.observer.ObserveOp()
	return ok
}
