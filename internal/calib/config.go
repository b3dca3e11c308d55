// Package calib implements the stillness-gated gyroscope bias
// calibration engine: per-sensor windowed stillness detection (SG, spec
// §4.7), the bias computer that accepts or rejects a candidate bias at
// the end of a qualifying stillness period (BCC, spec §4.8), and the
// temperature/gyro-mean trackers that gate acceptance (spec §4.9).
//
// Sub-detector statistics (the windowed per-axis mean/variance engine
// feeding each sensor's confidence) are explicitly out of scope per
// spec §1 ("specified by its inputs/outputs only") - subdetector below
// implements exactly that input/output contract with a direct Welford
// running-variance accumulator, since no statistics library appears
// anywhere in the retrieval pack.
package calib

import "time"

// MaxGyroBias is the acceptance envelope for an emitted bias axis,
// spec §4.8: each axis must fall strictly within (-MaxGyroBias,
// +MaxGyroBias) rad/s.
const MaxGyroBias = 0.1

// Config parameterizes one Engine instance, mirroring the Init contract
// of spec §6 field for field.
type Config struct {
	MinStillDuration time.Duration
	MaxStillDuration time.Duration
	WindowDuration   time.Duration

	InitialBias               [3]float64
	InitialCalibrationTimeNs  int64

	GyroVarThreshold  float64
	GyroConfDelta     float64
	AccelVarThreshold float64
	AccelConfDelta    float64
	MagVarThreshold   float64
	MagConfDelta      float64

	StillnessThreshold    float64
	MeanDeltaLimit        float64 // rad/s, per axis
	TempDeltaLimitCelsius float64

	// UseMagSensor enables the magnetometer as a third required gate
	// input (spec §4.7 step 2). It may be disabled dynamically by the
	// watchdog if the mag window never becomes ready (spec §4.7.1).
	UseMagSensor bool

	// GyroCalibrationEnable gates RemoveBias (spec §4.8, §9's resolved
	// Open Question): disabled means RemoveBias is an identity
	// passthrough rather than a subtraction.
	GyroCalibrationEnable bool
}

// DefaultConfig returns parameters matching spec §8 scenario 1: a
// 500ms window, a 2s-10s stillness envelope, and thresholds loose
// enough to accept low-noise still data but reject a moving device.
func DefaultConfig() Config {
	return Config{
		MinStillDuration: 2 * time.Second,
		MaxStillDuration: 10 * time.Second,
		WindowDuration:   500 * time.Millisecond,

		GyroVarThreshold:  1e-8,
		GyroConfDelta:     1e-7,
		AccelVarThreshold: 1e-5,
		AccelConfDelta:    1e-4,
		MagVarThreshold:   1e-1,
		MagConfDelta:      1e-1,

		StillnessThreshold:    0.5,
		MeanDeltaLimit:        0.01,
		TempDeltaLimitCelsius: 2.0,

		UseMagSensor:          false,
		GyroCalibrationEnable: true,
	}
}
