package seos

import (
	"github.com/seoshub/seos/internal/calib"
	"github.com/seoshub/seos/internal/evqueue"
	"github.com/seoshub/seos/internal/slab"
	"github.com/seoshub/seos/internal/tasktable"
)

// Re-export component constants for the public API, following the
// teacher's package-level aggregation of its internal constants.
const (
	// EventQueueCapacity is the bounded EVQ capacity (spec §4.1).
	EventQueueCapacity = evqueue.Capacity
	// SlabCapacity is the fixed free-list capacity of the internal-event
	// slab allocator (spec §4.2).
	SlabCapacity = slab.Capacity
	// DefaultTaskTableCapacity is the bounded TT capacity (spec §4.3).
	DefaultTaskTableCapacity = tasktable.DefaultCapacity
	// MaxGyroBias is the BCC acceptance envelope, rad/s (spec §4.8).
	MaxGyroBias = calib.MaxGyroBias
)
