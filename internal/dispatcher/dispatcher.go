// Package dispatcher implements the Event Dispatcher: the dequeue loop,
// the current-event retention protocol, and internal-event routing.
// Grounded on the teacher's per-tag completion state machine in
// queue.Runner.handleCompletion (TagStateInFlightFetch / TagStateOwned /
// TagStateInFlightCommit) - the same "claim a slot, resolve it exactly
// once" discipline, reduced from per-tag to a single process-wide
// retention handle because SEOS is single-threaded cooperative rather
// than the teacher's io_uring-driven concurrent completion fan-in.
package dispatcher

import (
	"github.com/seoshub/seos/internal/evqueue"
	"github.com/seoshub/seos/internal/seosif"
	"github.com/seoshub/seos/internal/tasktable"
)

// Internal event types, always below FirstUserEvent.
const (
	EvtSubscribe        uint32 = iota
	EvtUnsubscribe
	EvtDeferredCallback
	EvtPrivate
)

// FirstUserEvent is the boundary below which a type is routed as an
// internal event rather than broadcast to subscribed tasks.
const FirstUserEvent uint32 = 16

// Discardable is a producer-settable bit that does not participate in
// subscription matching; it is masked off before the set lookup.
const Discardable uint32 = 1 << 31

// FreeEvtData is the event type delivered to an app's handler when its
// data must be freed via evqueue.FreeAsApp (spec §3: "a TID identifying
// an app that must be invoked with FREE_EVT_DATA to free the payload").
// It never flows through the queue itself - only through a direct
// App Host dispatch call at release time - so it deliberately sits
// outside the ordinary event-type space apps subscribe against.
const FreeEvtData uint32 = 0xFFFFFFFE

// SubscribePayload is the Data carried by EvtSubscribe/EvtUnsubscribe.
type SubscribePayload struct {
	TID       int32
	EventType uint32
}

// DeferredPayload is the Data carried by EvtDeferredCallback.
type DeferredPayload struct {
	Callback func(cookie any)
	Cookie   any
}

// PrivatePayload is the Data carried by EvtPrivate.
type PrivatePayload struct {
	InnerType uint32
	InnerData any
	InnerFree evqueue.FreeInfo
	ToTID     int32
}

// Dispatcher owns the dequeue loop and the single current-event
// retention handle (spec §4.6). Not safe for concurrent use - it is
// meant to run on one goroutine, matching the kernel's single-threaded
// cooperative scheduling model (spec §5).
type Dispatcher struct {
	queue    *evqueue.Queue
	tt       *tasktable.Table
	host     seosif.AppHost
	logger   seosif.Logger
	observer seosif.Observer

	retained     evqueue.FreeInfo
	retainedData any
}

// New creates a Dispatcher over the given collaborators.
func New(queue *evqueue.Queue, tt *tasktable.Table, host seosif.AppHost, logger seosif.Logger, observer seosif.Observer) *Dispatcher {
	return &Dispatcher{queue: queue, tt: tt, host: host, logger: logger, observer: observer}
}

// DispatchOne dequeues and processes a single descriptor without
// blocking. Returns false if the queue was empty.
func (d *Dispatcher) DispatchOne() bool {
	desc, ok := d.queue.Dequeue()
	if !ok {
		return false
	}
	d.dispatch(desc)
	return true
}

// Run blocks, dispatching descriptors as they become available, until
// the queue is closed (evqueue.Queue.Close). Intended to be the
// kernel's single dispatcher goroutine.
func (d *Dispatcher) Run() {
	for {
		desc, ok := d.queue.DequeueBlocking()
		if !ok {
			return
		}
		d.dispatch(desc)
	}
}

func (d *Dispatcher) dispatch(desc evqueue.Descriptor) {
	d.retained = desc.Free
	d.retainedData = desc.Data

	if desc.Type < FirstUserEvent {
		d.dispatchInternal(desc)
	} else {
		d.broadcastUser(desc)
	}

	if d.retained != nil {
		d.release(d.retained, d.retainedData)
	}
	d.retained = nil
	d.retainedData = nil

	d.observer.ObserveDispatch(desc.Type)
	d.observer.ObserveQueueDepth(d.queue.Len())
}

func (d *Dispatcher) dispatchInternal(desc evqueue.Descriptor) {
	switch desc.Type {
	case EvtSubscribe:
		d.handleSubscribe(desc.Data, true)
	case EvtUnsubscribe:
		d.handleSubscribe(desc.Data, false)
	case EvtDeferredCallback:
		d.handleDeferred(desc.Data)
	case EvtPrivate:
		d.handlePrivate(desc.Data)
	default:
		d.logger.Warn("dispatcher: unrecognized internal event type", "type", desc.Type)
	}
}

func (d *Dispatcher) handleSubscribe(data any, subscribe bool) {
	p, ok := data.(SubscribePayload)
	if !ok {
		return
	}
	task, ok := d.tt.FindByTID(p.TID)
	if !ok {
		return
	}
	if subscribe {
		task.Subscribe(p.EventType)
	} else {
		task.Unsubscribe(p.EventType)
	}
}

func (d *Dispatcher) handleDeferred(data any) {
	p, ok := data.(DeferredPayload)
	if !ok || p.Callback == nil {
		return
	}
	p.Callback(p.Cookie)
}

// handlePrivate resolves to_tid and invokes the App Host with retention
// disabled for the inner call - the handle is saved and nulled around
// it, then restored, so a retain_current_event during the inner
// dispatch has nothing to claim. inner_free_info is honored regardless
// of what the inner call did.
func (d *Dispatcher) handlePrivate(data any) {
	p, ok := data.(PrivatePayload)
	if !ok {
		return
	}
	if task, found := d.tt.FindByTID(p.ToTID); found {
		savedHandle, savedData := d.retained, d.retainedData
		d.retained, d.retainedData = nil, nil

		if err := d.host.Dispatch(task.Host, p.InnerType, p.InnerData); err != nil {
			d.logger.Warn("dispatcher: app host failed to handle private event", "tid", p.ToTID, "err", err)
		}

		d.retained, d.retainedData = savedHandle, savedData
	}
	if p.InnerFree != nil {
		d.release(p.InnerFree, p.InnerData)
	}
}

// release resolves f's free action against data, honoring the FreeAsApp
// tag (spec §3/§9): a TID free-info isn't itself callable, it names the
// app that must receive FreeEvtData so it can release its own payload.
// An unresolvable TID is a task-not-found-at-delivery case (spec §7):
// the event is simply dropped, matching the same silent-drop policy
// private-event delivery uses for an unknown to_tid.
func (d *Dispatcher) release(f evqueue.FreeInfo, data any) {
	if tid, ok := f.(evqueue.FreeAsApp); ok {
		if task, found := d.tt.FindByTID(int32(tid)); found {
			if err := d.host.Dispatch(task.Host, FreeEvtData, data); err != nil {
				d.logger.Warn("dispatcher: app host failed to free event data", "tid", int32(tid), "err", err)
			}
		}
		return
	}
	evqueue.Release(f, data)
}

// broadcastUser delivers desc to every task subscribed to its masked
// type, stopping each task's inner scan at the first match.
func (d *Dispatcher) broadcastUser(desc evqueue.Descriptor) {
	masked := desc.Type &^ Discardable
	for _, task := range d.tt.All() {
		if !task.Subscribed(masked) {
			continue
		}
		if err := d.host.Dispatch(task.Host, masked, desc.Data); err != nil {
			d.logger.Warn("dispatcher: app host failed to handle event", "tid", task.TID, "type", masked, "err", err)
		}
	}
}

// RetainCurrentEvent atomically transfers ownership of the event
// currently being dispatched to the caller: it copies the published
// retention handle out and clears it, so the dispatcher won't free the
// event itself. ok is false if there is nothing published - retention
// was already taken, or this is called outside a dispatch.
func (d *Dispatcher) RetainCurrentEvent() (handle evqueue.FreeInfo, data any, ok bool) {
	if d.retained == nil {
		return nil, nil, false
	}
	handle, data = d.retained, d.retainedData
	d.retained, d.retainedData = nil, nil
	return handle, data, true
}

// FreeRetainedEvent performs exactly the free action the dispatcher
// would have performed at dispatch time, for an event retained earlier
// via RetainCurrentEvent.
func (d *Dispatcher) FreeRetainedEvent(handle evqueue.FreeInfo, data any) {
	d.release(handle, data)
}
