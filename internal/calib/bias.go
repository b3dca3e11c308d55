package calib

// emit runs the Bias Calibration Computer (spec §4.8) over the
// snapshotted previous-window values captured by the stillness gate
// during the period that just ended, accepting or rejecting a
// candidate bias.
func (e *Engine) emit(tNs int64) {
	confStill := e.state.prevGyroConf * e.state.prevAccelConf * e.state.prevMagConf

	candidate := e.state.prevGyroMean
	if !withinEnvelope(candidate) {
		if e.observer != nil {
			e.observer.ObserveBiasRejected()
		}
		e.logThrottled("bias-rejected", "calib: candidate bias rejected - axis outside acceptance envelope")
		return
	}

	e.state.Bias = candidate
	e.state.BiasTemperature = e.state.TemperatureMean
	e.state.CalibrationTimeNs = tNs
	e.state.StillnessConfidence = confStill
	e.state.newBiasAvailable = true

	if e.observer != nil {
		e.observer.ObserveBiasAccepted()
	}
	if e.onBiasAccepted != nil {
		e.onBiasAccepted(e.state.Bias, e.state.BiasTemperature, e.state.CalibrationTimeNs, e.state.StillnessConfidence)
	}
}

// withinEnvelope reports whether every axis of bias falls strictly
// within (-MaxGyroBias, +MaxGyroBias), spec §4.8's acceptance envelope.
func withinEnvelope(bias [3]float64) bool {
	for _, v := range bias {
		if v <= -MaxGyroBias || v >= MaxGyroBias {
			return false
		}
	}
	return true
}

// GetBias returns the most recently accepted bias, its temperature,
// the sample time it was computed at, and the stillness confidence
// recorded at that point (spec §4.8).
func (e *Engine) GetBias() (bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64, stillnessConfidence float64) {
	return e.state.Bias, e.state.BiasTemperature, e.state.CalibrationTimeNs, e.state.StillnessConfidence
}

// SetBias overrides the current bias directly - used to seed the
// engine from a persisted calibration rather than waiting for a fresh
// stillness period (spec §4.8).
func (e *Engine) SetBias(bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64) {
	e.state.Bias = bias
	e.state.BiasTemperature = temperatureCelsius
	e.state.CalibrationTimeNs = calibrationTimeNs
}

// NewBiasAvailable reports whether a bias has been emitted since the
// last call, clearing the flag (spec §4.8's read-and-clear contract).
func (e *Engine) NewBiasAvailable() bool {
	v := e.state.newBiasAvailable
	e.state.newBiasAvailable = false
	return v
}

// SetOnBiasAccepted installs a hook invoked synchronously whenever a
// candidate bias is accepted, before NewBiasAvailable has been
// consumed - used by the kernel to feed the debug reporter's trigger
// bit (spec §4.10) without adding a second consumer of the
// read-and-clear flag itself.
func (e *Engine) SetOnBiasAccepted(fn func(bias [3]float64, temperatureCelsius float64, calibrationTimeNs int64, stillnessConfidence float64)) {
	e.onBiasAccepted = fn
}

// RemoveBias applies the current bias correction to a raw gyroscope
// sample. When GyroCalibrationEnable is false, it is an identity
// passthrough - the resolved form of spec §9's Open Question on
// disabled calibration.
func (e *Engine) RemoveBias(x, y, z float64) (cx, cy, cz float64) {
	if !e.cfg.GyroCalibrationEnable {
		return x, y, z
	}
	return x - e.state.Bias[0], y - e.state.Bias[1], z - e.state.Bias[2]
}
