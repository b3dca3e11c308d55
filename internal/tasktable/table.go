// Package tasktable implements the kernel's bounded task table,
// generalized from the teacher's per-tag parallel-array bookkeeping in
// queue.Runner (tagStates/tagMutexes/ioCmds indexed by tag) from a fixed
// queue depth to a fixed task capacity.
package tasktable

import (
	"github.com/seoshub/seos/internal/appimage"
	"github.com/seoshub/seos/internal/seosif"
)

// DefaultCapacity is MAX_TASKS when callers don't override it.
const DefaultCapacity = 16

// embeddedSubscriptionCap is the inline capacity of a Task's subscribed
// event list before it promotes to a heap-grown slice.
const embeddedSubscriptionCap = 8

// Task is one live application slot.
type Task struct {
	TID         int32
	AppHeaderRef *appimage.Header
	Host        seosif.Handle
	subscribed  []uint32
}

// Subscribe adds eventType to the task's subscription set if not already
// present. When the set is at capacity it grows by 1.5x (rounded up);
// embeddedSubscriptionCap is the initial capacity Table.Add allocates.
func (t *Task) Subscribe(eventType uint32) {
	for _, e := range t.subscribed {
		if e == eventType {
			return
		}
	}
	if n := len(t.subscribed); n == cap(t.subscribed) {
		grown := make([]uint32, n, max(n+(n+1)/2, n+1))
		copy(grown, t.subscribed)
		t.subscribed = grown
	}
	t.subscribed = append(t.subscribed, eventType)
}

// Unsubscribe removes eventType from the task's subscription set.
func (t *Task) Unsubscribe(eventType uint32) {
	for i, e := range t.subscribed {
		if e == eventType {
			t.subscribed = append(t.subscribed[:i], t.subscribed[i+1:]...)
			return
		}
	}
}

// Subscribed reports whether the task is subscribed to eventType.
func (t *Task) Subscribed(eventType uint32) bool {
	for _, e := range t.subscribed {
		if e == eventType {
			return true
		}
	}
	return false
}

// Table is the bounded task table (TT). Invariants (spec §3): tid != 0
// iff the slot is live; no two live slots share a tid; at most one live
// task per App ID.
type Table struct {
	capacity int
	tasks    []*Task
}

// New creates an empty table with the given capacity (DefaultCapacity if
// capacity <= 0).
func New(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{capacity: capacity, tasks: make([]*Task, 0, capacity)}
}

// Capacity returns MAX_TASKS for this table.
func (t *Table) Capacity() int { return t.capacity }

// Len returns the number of live tasks.
func (t *Table) Len() int { return len(t.tasks) }

// Add inserts a new task if capacity allows, allocating its embedded
// subscription storage. Returns false if the table is full.
func (t *Table) Add(tid int32, header *appimage.Header, host seosif.Handle) (*Task, bool) {
	if len(t.tasks) >= t.capacity {
		return nil, false
	}
	task := &Task{
		TID:          tid,
		AppHeaderRef: header,
		Host:         host,
		subscribed:   make([]uint32, 0, embeddedSubscriptionCap),
	}
	t.tasks = append(t.tasks, task)
	return task, true
}

// FindByTID returns the live task with the given TID, if any.
func (t *Table) FindByTID(tid int32) (*Task, bool) {
	for _, task := range t.tasks {
		if task.TID == tid {
			return task, true
		}
	}
	return nil, false
}

// FindByAppID returns the live task hosting the given App ID, if any.
func (t *Table) FindByAppID(appID uint64) (*Task, bool) {
	for _, task := range t.tasks {
		if task.AppHeaderRef != nil && task.AppHeaderRef.AppID == appID {
			return task, true
		}
	}
	return nil, false
}

// Remove deletes the task with the given TID via swap-with-last, in O(1).
func (t *Table) Remove(tid int32) bool {
	for i, task := range t.tasks {
		if task.TID == tid {
			last := len(t.tasks) - 1
			t.tasks[i] = t.tasks[last]
			t.tasks[last] = nil
			t.tasks = t.tasks[:last]
			return true
		}
	}
	return false
}

// All returns the live tasks in no particular order. Callers must not
// retain the slice across a subsequent Add/Remove.
func (t *Table) All() []*Task {
	return t.tasks
}
