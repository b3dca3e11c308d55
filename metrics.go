package seos

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/seoshub/seos/internal/seosif"
)

// Metrics tracks kernel and calibration lifecycle statistics, the SEOS
// counterpart of the teacher's I/O-operation Metrics: the domain
// changes from read/write/discard/flush to dispatch/app-lifecycle/
// calibration events, but the atomic-counter-plus-Snapshot shape is
// unchanged.
type Metrics struct {
	DispatchCount    atomic.Uint64
	AppsStarted      atomic.Uint64
	AppsStopped      atomic.Uint64
	AppsErased       atomic.Uint64
	OpCount          atomic.Uint64
	BiasAccepted     atomic.Uint64
	BiasRejected     atomic.Uint64
	WatchdogResets   atomic.Uint64

	QueueDepthTotal atomic.Uint64
	QueueDepthCount atomic.Uint64
	MaxQueueDepth   atomic.Uint64

	mu            sync.Mutex
	dispatchByType map[uint32]uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{dispatchByType: make(map[uint32]uint64)}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordDispatch records one delivered event of the given type.
func (m *Metrics) RecordDispatch(eventType uint32) {
	m.DispatchCount.Add(1)
	m.mu.Lock()
	m.dispatchByType[eventType]++
	m.mu.Unlock()
}

// RecordQueueDepth records the EVQ depth observed after a dispatch.
func (m *Metrics) RecordQueueDepth(depth int) {
	d := uint64(depth)
	m.QueueDepthTotal.Add(d)
	m.QueueDepthCount.Add(1)
	for {
		current := m.MaxQueueDepth.Load()
		if d <= current {
			break
		}
		if m.MaxQueueDepth.CompareAndSwap(current, d) {
			break
		}
	}
}

// Stop marks the kernel as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	DispatchCount  uint64
	AppsStarted    uint64
	AppsStopped    uint64
	AppsErased     uint64
	OpCount        uint64
	BiasAccepted   uint64
	BiasRejected   uint64
	WatchdogResets uint64

	AvgQueueDepth float64
	MaxQueueDepth uint64

	DispatchByType map[uint32]uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		DispatchCount:  m.DispatchCount.Load(),
		AppsStarted:    m.AppsStarted.Load(),
		AppsStopped:    m.AppsStopped.Load(),
		AppsErased:     m.AppsErased.Load(),
		OpCount:        m.OpCount.Load(),
		BiasAccepted:   m.BiasAccepted.Load(),
		BiasRejected:   m.BiasRejected.Load(),
		WatchdogResets: m.WatchdogResets.Load(),
		MaxQueueDepth:  m.MaxQueueDepth.Load(),
	}

	depthTotal := m.QueueDepthTotal.Load()
	depthCount := m.QueueDepthCount.Load()
	if depthCount > 0 {
		snap.AvgQueueDepth = float64(depthTotal) / float64(depthCount)
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	m.mu.Lock()
	snap.DispatchByType = make(map[uint32]uint64, len(m.dispatchByType))
	for k, v := range m.dispatchByType {
		snap.DispatchByType[k] = v
	}
	m.mu.Unlock()

	return snap
}

// Reset resets all metrics counters; useful between tests.
func (m *Metrics) Reset() {
	m.DispatchCount.Store(0)
	m.AppsStarted.Store(0)
	m.AppsStopped.Store(0)
	m.AppsErased.Store(0)
	m.OpCount.Store(0)
	m.BiasAccepted.Store(0)
	m.BiasRejected.Store(0)
	m.WatchdogResets.Store(0)
	m.QueueDepthTotal.Store(0)
	m.QueueDepthCount.Store(0)
	m.MaxQueueDepth.Store(0)
	m.mu.Lock()
	m.dispatchByType = make(map[uint32]uint64)
	m.mu.Unlock()
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// MetricsObserver implements seosif.Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveDispatch(eventType uint32) { o.metrics.RecordDispatch(eventType) }
func (o *MetricsObserver) ObserveQueueDepth(depth int)       { o.metrics.RecordQueueDepth(depth) }
func (o *MetricsObserver) ObserveAppStarted(n int)           { o.metrics.AppsStarted.Add(uint64(n)) }
func (o *MetricsObserver) ObserveAppStopped(n int)           { o.metrics.AppsStopped.Add(uint64(n)) }
func (o *MetricsObserver) ObserveAppErased(n int)            { o.metrics.AppsErased.Add(uint64(n)) }
func (o *MetricsObserver) ObserveOp()                        { o.metrics.OpCount.Add(1) }
func (o *MetricsObserver) ObserveBiasAccepted()              { o.metrics.BiasAccepted.Add(1) }
func (o *MetricsObserver) ObserveBiasRejected()              { o.metrics.BiasRejected.Add(1) }
func (o *MetricsObserver) ObserveWatchdogReset()             { o.metrics.WatchdogResets.Add(1) }

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveDispatch(uint32)   {}
func (NoOpObserver) ObserveQueueDepth(int)    {}
func (NoOpObserver) ObserveAppStarted(int)    {}
func (NoOpObserver) ObserveAppStopped(int)    {}
func (NoOpObserver) ObserveAppErased(int)     {}
func (NoOpObserver) ObserveOp()               {}
func (NoOpObserver) ObserveBiasAccepted()     {}
func (NoOpObserver) ObserveBiasRejected()     {}
func (NoOpObserver) ObserveWatchdogReset()    {}

var (
	_ seosif.Observer = (*MetricsObserver)(nil)
	_ seosif.Observer = (*NoOpObserver)(nil)
)
