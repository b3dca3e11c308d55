// Package debugreporter implements the optional Debug Reporter (DBG):
// a pure-view finite state machine throttling calibration diagnostic
// output. It never feeds back into kernel or calibration behavior and
// is excluded from functional tests by design.
package debugreporter

import (
	"fmt"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/seoshub/seos/internal/seosif"
)

// state is the reporter's FSM position: IDLE -> PRINT_OFFSET -> WAIT ->
// PRINT_STILLNESS -> WAIT -> IDLE.
type state int

const (
	stateIdle state = iota
	statePrintOffset
	stateWaitAfterOffset
	statePrintStillness
	stateWaitAfterStillness
)

const waitCategory = "wait"

// Snapshot is the calibration data a report cycle prints. It is the
// "snapshot buffer" spec §4.10 says must not be written while
// debug_state != IDLE.
type Snapshot struct {
	Bias                [3]float64
	TemperatureCelsius   float64
	StillnessConfidence  float64
	CalibrationTimeNs    int64
}

// Reporter drives the DBG FSM. Safe to construct disabled (enabled
// false) - Trigger/Step become no-ops.
type Reporter struct {
	enabled bool
	logger  seosif.Logger
	limiter *catrate.Limiter

	state    state
	pending  bool
	snapshot Snapshot
}

// New constructs a Reporter. enabled mirrors the kernel's
// Config.DebugReporter field; when false, Trigger/Step do nothing.
func New(enabled bool, logger seosif.Logger) *Reporter {
	return &Reporter{
		enabled: enabled,
		logger:  logger,
		limiter: catrate.NewLimiter(map[time.Duration]int{300 * time.Millisecond: 1}),
	}
}

// Enabled reports whether the reporter is active.
func (r *Reporter) Enabled() bool { return r.enabled }

// Trigger sets the trigger bit and latches snap as the next snapshot
// to print, whenever a new calibration is emitted. Per spec §4.10,
// writes are suppressed while the FSM is mid-cycle (state != IDLE) so
// the reporter never reads a torn snapshot.
func (r *Reporter) Trigger(snap Snapshot) {
	if !r.enabled || r.state != stateIdle {
		return
	}
	r.snapshot = snap
	r.pending = true
}

// Step advances the FSM by one tick. The kernel exposes it as
// Kernel.StepDebugReporter for its caller to tick; it is a no-op on every
// tick that isn't a state transition.
func (r *Reporter) Step() {
	if !r.enabled {
		return
	}
	switch r.state {
	case stateIdle:
		if r.pending {
			r.pending = false
			r.state = statePrintOffset
		}
	case statePrintOffset:
		r.printOffset()
		// Register this print as the rate-limited event the WAIT state
		// below blocks on; catrate.Limiter.Allow returns true on an
		// unthrottled first call, so the gate has to be the *second*
		// call against the same registered event, not the first.
		r.limiter.Allow(waitCategory)
		r.state = stateWaitAfterOffset
	case stateWaitAfterOffset:
		if _, ok := r.limiter.Allow(waitCategory); ok {
			r.state = statePrintStillness
		}
	case statePrintStillness:
		r.printStillness()
		r.limiter.Allow(waitCategory)
		r.state = stateWaitAfterStillness
	case stateWaitAfterStillness:
		if _, ok := r.limiter.Allow(waitCategory); ok {
			r.state = stateIdle
		}
	}
}

func (r *Reporter) printOffset() {
	if r.logger == nil {
		return
	}
	r.logger.Debug(fmt.Sprintf("calib bias offset: x=%.6f y=%.6f z=%.6f T=%.2fC",
		r.snapshot.Bias[0], r.snapshot.Bias[1], r.snapshot.Bias[2], r.snapshot.TemperatureCelsius))
}

func (r *Reporter) printStillness() {
	if r.logger == nil {
		return
	}
	r.logger.Debug(fmt.Sprintf("calib stillness confidence=%.4f at t=%dns",
		r.snapshot.StillnessConfidence, r.snapshot.CalibrationTimeNs))
}
