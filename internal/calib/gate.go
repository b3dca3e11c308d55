package calib

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/seoshub/seos/internal/seosif"
)

// Engine is the Stillness Gate (spec §4.7) plus the Bias Calibration
// Computer it drives (spec §4.8): it consumes per-sensor samples,
// tracks per-sensor windowed stillness via three subdetectors, runs the
// device-stillness state machine, and emits an updated bias when a
// qualifying stillness period ends.
//
// Not safe for concurrent use - exactly like the rest of the kernel,
// calibration updates are expected to arrive from the single dispatcher
// goroutine's sensor-sample handling (spec §5).
type Engine struct {
	cfg   Config
	state State

	gyro, accel, mag *subdetector

	armed bool

	logger      seosif.Logger
	observer    seosif.Observer
	diagLimiter *catrate.Limiter

	onBiasAccepted func(bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64, stillnessConfidence float64)
}

// NewEngine constructs an Engine over cfg. logger/observer may be nil,
// in which case diagnostics and metrics observation are skipped.
func NewEngine(cfg Config, logger seosif.Logger, observer seosif.Observer) *Engine {
	e := &Engine{logger: logger, observer: observer}
	e.Reinit(cfg)
	return e
}

// Reinit re-initializes the engine to cfg, matching the spec §6 Init
// contract (min/max still duration, initial bias, window duration,
// thresholds, mean/temp limits, gyro_calibration_enable).
func (e *Engine) Reinit(cfg Config) {
	e.cfg = cfg
	e.state = State{
		Bias:              cfg.InitialBias,
		CalibrationTimeNs: cfg.InitialCalibrationTimeNs,
		UsingMagSensor:    cfg.UseMagSensor,
	}
	e.state.tempTracker.reset()
	e.state.gyroMeanTracker.reset()

	windowNs := cfg.WindowDuration.Nanoseconds()
	e.gyro = newSubdetector(windowNs, cfg.GyroVarThreshold, cfg.GyroConfDelta)
	e.accel = newSubdetector(windowNs, cfg.AccelVarThreshold, cfg.AccelConfDelta)
	e.mag = newSubdetector(windowNs, cfg.MagVarThreshold, cfg.MagConfDelta)
	e.armed = false

	if e.diagLimiter == nil {
		e.diagLimiter = catrate.NewLimiter(map[time.Duration]int{time.Second: 1})
	}
}

// UpdateGyro feeds one gyroscope sample (rad/s) plus its temperature
// (Celsius) into the engine, running the device-stillness check
// afterward (spec §4.7). Gyro sample cadence is what arms the window
// timer and the watchdog (spec: "on first gyro sample after init or
// reset...", §4.7.1's "gyro-sample inactivity") - accelerometer and
// magnetometer samples only feed their own subdetector's window
// statistics, piggy-backing their readiness onto the next gyro-driven
// check rather than each independently re-triggering the full gate.
func (e *Engine) UpdateGyro(tNs int64, x, y, z, tempCelsius float64) {
	if !e.armed {
		e.state.WatchdogStartNs = tNs
		e.armed = true
	}
	e.gyro.Update(tNs, x, y, z)
	e.state.tempTracker.update(tempCelsius)
	e.state.LastSampleTimeNs = tNs
	e.runCheck(tNs)
}

// UpdateAccel feeds one accelerometer sample (m/s^2).
func (e *Engine) UpdateAccel(tNs int64, x, y, z float64) {
	e.accel.Update(tNs, x, y, z)
}

// UpdateMag feeds one magnetometer sample (microtesla).
func (e *Engine) UpdateMag(tNs int64, x, y, z float64) {
	e.mag.Update(tNs, x, y, z)
}

func (e *Engine) runCheck(tNs int64) {
	if e.runWatchdog(tNs) {
		return
	}
	defer func() { e.state.WatchdogStartNs = tNs }()
	e.state.WatchdogTimeout = false

	if !e.gyro.Ready() || !e.accel.Ready() || (e.state.UsingMagSensor && !e.mag.Ready()) {
		return
	}

	confGyro := e.gyro.Confidence()
	confAccel := e.accel.Confidence()
	confMag := 1.0
	if e.state.UsingMagSensor {
		confMag = e.mag.Confidence()
	}

	gx, gy, gz := e.gyro.WindowMean()
	e.state.gyroMeanTracker.update(gx, gy, gz)

	confStill := confGyro * confAccel * confMag
	meanNotStable := e.state.gyroMeanTracker.evaluate(e.cfg.MeanDeltaLimit)
	tempExceeded := e.state.tempTracker.evaluate(e.cfg.TempDeltaLimitCelsius)
	deviceIsStill := confStill > e.cfg.StillnessThreshold && !meanNotStable && !tempExceeded

	e.transition(tNs, deviceIsStill, confGyro, confAccel, confMag)
}

// runWatchdog implements spec §4.7.1: if 2*windowDuration has elapsed
// since the last watchdog rearm, force every detector back to a known
// state, and drop mag participation if its window never closed while
// in use. Returns true if a reset fired this call.
func (e *Engine) runWatchdog(tNs int64) bool {
	if !e.armed {
		return false
	}
	timeout := 2 * e.cfg.WindowDuration.Nanoseconds()
	if tNs-e.state.WatchdogStartNs <= timeout {
		return false
	}

	magWasReady := e.mag.Ready()
	e.resetDetectors(tNs, false)
	e.state.gyroMeanTracker.reset()
	e.state.tempTracker.reset()
	e.state.PrevStill = false
	e.state.WatchdogTimeout = true
	e.armed = false
	e.state.WatchdogStartNs = 0

	if e.state.UsingMagSensor && !magWasReady {
		e.state.UsingMagSensor = false
	}

	if e.observer != nil {
		e.observer.ObserveWatchdogReset()
	}
	e.logThrottled("watchdog", "calib: watchdog reset - gyro sample inactivity exceeded 2x window duration")
	return true
}

func (e *Engine) resetDetectors(tNs int64, keepStats bool) {
	e.gyro.Reset(tNs, keepStats)
	e.accel.Reset(tNs, keepStats)
	e.mag.Reset(tNs, keepStats)
}

func (e *Engine) snapshotPrevWindow(confGyro, confAccel, confMag float64) {
	gx, gy, gz := e.gyro.WindowMean()
	e.state.prevGyroMean = [3]float64{gx, gy, gz}
	e.state.prevGyroConf = confGyro
	e.state.prevAccelConf = confAccel
	e.state.prevMagConf = confMag
	if e.state.tempTracker.count > 0 {
		e.state.TemperatureMean = e.state.tempTracker.mean()
	}
}

// transition implements the device-stillness state machine of spec
// §4.7, driven by (PrevStill, deviceIsStill).
func (e *Engine) transition(tNs int64, deviceIsStill bool, confGyro, confAccel, confMag float64) {
	windowStart := e.gyro.WindowStart()

	switch {
	case !e.state.PrevStill && deviceIsStill:
		e.state.StartStillTime = windowStart
		e.snapshotPrevWindow(confGyro, confAccel, confMag)
		e.resetDetectors(tNs, true)
		e.state.PrevStill = true

	case e.state.PrevStill && deviceIsStill:
		elapsed := e.state.LastSampleTimeNs - e.state.StartStillTime
		if elapsed > e.cfg.MaxStillDuration.Nanoseconds() {
			e.snapshotPrevWindow(confGyro, confAccel, confMag)
			e.emit(tNs)
			e.resetDetectors(tNs, false)
			e.state.gyroMeanTracker.reset()
			e.state.tempTracker.reset()
			e.state.PrevStill = false
		} else {
			e.snapshotPrevWindow(confGyro, confAccel, confMag)
			e.resetDetectors(tNs, true)
		}

	case e.state.PrevStill && !deviceIsStill:
		if windowStart-e.state.StartStillTime >= e.cfg.MinStillDuration.Nanoseconds() {
			e.emit(tNs)
		}
		e.resetDetectors(tNs, false)
		e.state.gyroMeanTracker.reset()
		e.state.tempTracker.reset()
		e.state.PrevStill = false

	default: // !PrevStill && !deviceIsStill
		e.resetDetectors(tNs, false)
		e.state.gyroMeanTracker.reset()
		e.state.tempTracker.reset()
		e.state.PrevStill = false
	}
}

func (e *Engine) logThrottled(category, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	if _, ok := e.diagLimiter.Allow(category); !ok {
		return
	}
	e.logger.Warn(msg, args...)
}
