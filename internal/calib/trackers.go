package calib

import "math"

// temperatureTracker is the command-driven (reset/update/store/evaluate)
// running temperature statistic spec §4.9 describes: a running mean plus
// min/max, gating on the temperature-delta-limit check during a
// stillness period.
type temperatureTracker struct {
	min, max float64
	sum      float64
	count    int
	last     float64
	hasLast  bool
}

// reset reinitializes the tracker: min to +inf, max to the most-negative
// finite value, exactly as spec §4.9 specifies.
func (tt *temperatureTracker) reset() {
	tt.min = math.Inf(1)
	tt.max = -math.MaxFloat64
	tt.sum = 0
	tt.count = 0
	tt.hasLast = false
}

// update accumulates T only when it differs from the last accumulated
// sample by more than the smallest representable positive float - spec
// §4.9's epsilon - so repeated identical readings don't skew the mean.
func (tt *temperatureTracker) update(tCelsius float64) {
	if tt.hasLast && math.Abs(tCelsius-tt.last) <= math.SmallestNonzeroFloat64 {
		return
	}
	tt.sum += tCelsius
	tt.count++
	if tCelsius < tt.min {
		tt.min = tCelsius
	}
	if tCelsius > tt.max {
		tt.max = tCelsius
	}
	tt.last = tCelsius
	tt.hasLast = true
}

// mean returns the running mean, or 0 if nothing has been accumulated.
func (tt *temperatureTracker) mean() float64 {
	if tt.count == 0 {
		return 0
	}
	return tt.sum / float64(tt.count)
}

// evaluate reports whether the observed temperature range exceeds limit.
func (tt *temperatureTracker) evaluate(limit float64) bool {
	if tt.count == 0 {
		return false
	}
	return tt.max-tt.min > limit
}

// gyroMeanTracker tracks the per-axis min/max across successive closed
// gyro window means (spec §4.9), gating stillness on how much the
// window-to-window mean has drifted during a stillness period.
type gyroMeanTracker struct {
	minX, maxX float64
	minY, maxY float64
	minZ, maxZ float64
	started    bool
}

func (gt *gyroMeanTracker) reset() {
	gt.minX, gt.maxX = math.Inf(1), math.Inf(-1)
	gt.minY, gt.maxY = math.Inf(1), math.Inf(-1)
	gt.minZ, gt.maxZ = math.Inf(1), math.Inf(-1)
	gt.started = false
}

func (gt *gyroMeanTracker) update(x, y, z float64) {
	if !gt.started {
		gt.minX, gt.maxX = x, x
		gt.minY, gt.maxY = y, y
		gt.minZ, gt.maxZ = z, z
		gt.started = true
		return
	}
	gt.minX, gt.maxX = math.Min(gt.minX, x), math.Max(gt.maxX, x)
	gt.minY, gt.maxY = math.Min(gt.minY, y), math.Max(gt.maxY, y)
	gt.minZ, gt.maxZ = math.Min(gt.minZ, z), math.Max(gt.maxZ, z)
}

// evaluate reports whether any axis's observed mean range exceeds limit.
func (gt *gyroMeanTracker) evaluate(limit float64) bool {
	if !gt.started {
		return false
	}
	return (gt.maxX-gt.minX) > limit || (gt.maxY-gt.minY) > limit || (gt.maxZ-gt.minZ) > limit
}
