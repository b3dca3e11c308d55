// Package evqueue implements the kernel's bounded event queue.
package evqueue

import "sync"

// Capacity is the number of event slots, fixed per spec.
const Capacity = 512

// FreeInfo is the tagged "how to release this event" union. A nil FreeInfo
// means the event owns no resource that needs releasing.
type FreeInfo interface {
	free(data any)
}

// FreeCallback invokes fn(data) when the event is released.
type FreeCallback func(data any)

func (fn FreeCallback) free(data any) {
	if fn != nil {
		fn(data)
	}
}

// FreeAsApp marks the event as owned by the task with the given TID; the
// dispatcher resolves the actual release against the task table.
type FreeAsApp int32

func (FreeAsApp) free(any) {}

// Descriptor is a single queued event.
type Descriptor struct {
	Type uint32
	Data any
	Free FreeInfo
}

// Queue is a bounded FIFO of event descriptors. Enqueue is safe for
// concurrent producer goroutines (modeling "interrupt context" producers,
// spec §5); Dequeue is for the single dispatcher goroutine only.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slots  [Capacity]Descriptor
	head   int // next to dequeue
	tail   int // next free slot
	length int
	closed bool
}

// New creates an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends d to the tail, or to the head if urgent. Returns false
// (and leaves d un-queued, freeing nothing - the caller still owns d) if
// the queue is full.
func (q *Queue) Enqueue(d Descriptor, urgent bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == Capacity {
		return false
	}

	if urgent {
		q.head = (q.head - 1 + Capacity) % Capacity
		q.slots[q.head] = d
	} else {
		q.slots[q.tail] = d
		q.tail = (q.tail + 1) % Capacity
	}
	q.length++
	q.cond.Signal()
	return true
}

// Dequeue removes and returns the head descriptor.
func (q *Queue) Dequeue() (Descriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == 0 {
		return Descriptor{}, false
	}
	d := q.slots[q.head]
	q.slots[q.head] = Descriptor{}
	q.head = (q.head + 1) % Capacity
	q.length--
	return d, true
}

// DequeueBlocking removes and returns the head descriptor, blocking the
// caller until one is available or the queue is closed. The second
// return is false only when the queue was closed with nothing left to
// drain - the cooperative dispatch loop's "block until an event is
// available or a driver-posted wake" suspension point (spec §5).
func (q *Queue) DequeueBlocking() (Descriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.length == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.length == 0 {
		return Descriptor{}, false
	}
	d := q.slots[q.head]
	q.slots[q.head] = Descriptor{}
	q.head = (q.head + 1) % Capacity
	q.length--
	return d, true
}

// Close unblocks any goroutine parked in DequeueBlocking once the queue
// drains, causing it to return ok=false. Does not discard queued
// descriptors - callers that want those freed should call Clear first.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len reports the current number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Release invokes f's free action against data. f may be nil, in which
// case Release is a no-op. Exported so the dispatcher - a different
// package - can resolve a descriptor's FreeInfo without reaching into
// the unexported free method directly.
func Release(f FreeInfo, data any) {
	if f != nil {
		f.free(data)
	}
}

// Clear drains the queue, invoking Free on every discarded descriptor
// exactly once.
func (q *Queue) Clear() {
	for {
		d, ok := q.Dequeue()
		if !ok {
			return
		}
		if d.Free != nil {
			d.Free.free(d.Data)
		}
	}
}
