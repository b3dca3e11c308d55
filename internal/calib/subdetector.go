package calib

// subdetector accumulates one sensor's windowed per-axis mean/variance
// via Welford's online algorithm and exposes exactly the input/output
// contract spec §1 scopes the real sub-detector statistics down to:
// Update feeds a sample, Ready/Confidence/WindowMean read the most
// recently closed window, Reset rearms for the next one.
type subdetector struct {
	windowDuration int64 // nanoseconds
	varThreshold   float64
	confDelta      float64

	started     bool
	windowStart int64
	n           int
	mean        [3]float64
	m2          [3]float64

	ready      bool
	confidence float64
	windowMean [3]float64
}

func newSubdetector(windowDuration int64, varThreshold, confDelta float64) *subdetector {
	return &subdetector{windowDuration: windowDuration, varThreshold: varThreshold, confDelta: confDelta}
}

// Update feeds one sample into the running window. If the window's
// elapsed duration has now reached windowDuration, the window closes:
// its mean/variance are finalized and Ready becomes true until the
// caller calls Reset.
func (s *subdetector) Update(t int64, x, y, z float64) {
	if !s.started {
		s.started = true
		s.windowStart = t
	}
	s.n++
	sample := [3]float64{x, y, z}
	for i, v := range sample {
		delta := v - s.mean[i]
		s.mean[i] += delta / float64(s.n)
		delta2 := v - s.mean[i]
		s.m2[i] += delta * delta2
	}

	if !s.ready && t-s.windowStart >= s.windowDuration {
		s.closeWindow()
	}
}

func (s *subdetector) closeWindow() {
	var maxVar float64
	for i := range s.mean {
		var v float64
		if s.n > 0 {
			v = s.m2[i] / float64(s.n)
		}
		if v > maxVar {
			maxVar = v
		}
	}
	s.windowMean = s.mean
	s.confidence = confidenceFromVariance(maxVar, s.varThreshold, s.confDelta)
	s.ready = true
}

// Ready reports whether the current window has closed (spec §4.7 step 2).
func (s *subdetector) Ready() bool { return s.ready }

// Confidence returns the closed window's stillness confidence in [0,1].
func (s *subdetector) Confidence() float64 { return s.confidence }

// WindowMean returns the closed window's per-axis mean.
func (s *subdetector) WindowMean() (x, y, z float64) {
	return s.windowMean[0], s.windowMean[1], s.windowMean[2]
}

// WindowStart returns the timestamp the currently-open (or just-closed)
// window began accumulating at - this is the "window_start_time" the
// device-stillness state machine measures elapsed stillness against.
func (s *subdetector) WindowStart() int64 { return s.windowStart }

// Reset rearms the detector for a new window starting at t. keepStats
// preserves the last closed window's confidence/mean (spec §4.7's
// "reset sub-detectors preserving stats", used while a stillness period
// is merely extending); when false, those are wiped too (spec's "reset
// with stats-reset", used on emission/watchdog - the detector returns
// to its just-initialized state).
func (s *subdetector) Reset(t int64, keepStats bool) {
	s.started = true
	s.windowStart = t
	s.n = 0
	s.mean = [3]float64{}
	s.m2 = [3]float64{}
	s.ready = false
	if !keepStats {
		s.confidence = 0
		s.windowMean = [3]float64{}
	}
}

// confidenceFromVariance maps a windowed variance to a stillness
// confidence in [0,1]: 1.0 at or below threshold, falling off linearly
// across the next confDelta of variance, 0 beyond that.
func confidenceFromVariance(variance, threshold, confDelta float64) float64 {
	if variance <= threshold {
		return 1.0
	}
	if confDelta <= 0 {
		return 0.0
	}
	c := 1.0 - (variance-threshold)/confDelta
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
