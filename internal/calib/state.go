package calib

// State is the Calibration State data-model entity of spec §3: the
// current bias and its provenance, the stillness-period trackers, and
// the flags governing watchdog/mag-sensor/emission behavior. It has no
// hidden per-function statics (spec §9) - every field that the original
// kept as a static local lives here instead, so independent Engine
// instances never share state.
type State struct {
	// Bias is the most recently emitted gyroscope bias, rad/s.
	Bias [3]float64
	// BiasTemperature is the temperature (Celsius) at the time Bias was
	// computed.
	BiasTemperature float64
	// CalibrationTimeNs is the sample timestamp the emission that
	// produced Bias was computed at.
	CalibrationTimeNs int64
	// StillnessConfidence is the combined confidence recorded at the
	// point of the most recent emission, in [0,1].
	StillnessConfidence float64

	// newBiasAvailable is edge-triggered and read-and-clear (spec §4.8):
	// NewBiasAvailable() returns and clears it.
	newBiasAvailable bool

	// UsingMagSensor mirrors Config.UseMagSensor but can be disabled at
	// runtime by the watchdog (spec §4.7.1).
	UsingMagSensor bool

	// PrevStill is the device-stillness gate's previous-sample verdict,
	// driving the transition table of spec §4.7.
	PrevStill bool
	// WatchdogTimeout is set on the sample that triggers a watchdog
	// reset, cleared on the next successful device-stillness check.
	WatchdogTimeout bool

	// StartStillTime is the timestamp the current stillness period began.
	StartStillTime int64
	// WatchdogStartNs is the last gyro sample time the watchdog was
	// rearmed at. A zero value is a legitimate timestamp (the first
	// sample after init/reset may land at t=0), so arm/disarm is tracked
	// separately by Engine.armed rather than by this field being zero.
	WatchdogStartNs int64
	// LastSampleTimeNs is the most recent gyro sample's timestamp.
	LastSampleTimeNs int64

	tempTracker     temperatureTracker
	gyroMeanTracker gyroMeanTracker

	// TemperatureMean is the snapshot of the temperature tracker's
	// running mean at the point of the last "store" transition (spec
	// §4.7's store step, §4.9's store command).
	TemperatureMean float64

	// prevGyroMean/prevGyroConf/prevAccelConf/prevMagConf are the
	// snapshotted previous-window values (spec §3's "previous-window
	// copies ... preserved across reset to enable emit on motion"):
	// captured on every still-continuation, consumed by BCC when a
	// stillness period ends either by reaching max duration or by
	// motion following a long-enough still period.
	prevGyroMean  [3]float64
	prevGyroConf  float64
	prevAccelConf float64
	prevMagConf   float64
}
