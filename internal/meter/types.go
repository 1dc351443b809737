// Package meter estimates the current flowing through a circuit from a
// current-transformer sensor and decides whether the circuit is running.
// This package has NO hardware dependencies: samples come from an
// AnalogInput supplied by the caller.
package meter

// ADC and voltage scale. The saturation thresholds are raw counts derived
// from a 10-bit converter with a 5V reference; they must be recomputed if
// either changes.
const (
	ADCBits = 10
	ADCMax  = 1 << ADCBits // 1024 counts

	// UMax is the full-scale voltage in millivolt units (5.000 V).
	UMax = 5000

	// DefaultSamples covers several mains cycles at 50/60 Hz.
	DefaultSamples = 1480

	LowThreshold  = 20   // ~97 mV: wave flat low, circuit off
	HighThreshold = 1002 // ~4897 mV: wave pinned high, circuit on
)

// AnalogInput is the hardware collaborator the meter samples from.
type AnalogInput interface {
	// Configure sets the channel to input mode. Called once by Init.
	Configure(channel int) error

	// Read returns one raw sample in [0, ADCMax-1].
	Read(channel int) (int, error)
}

// Options holds the calibration constants of a meter.
type Options struct {
	Channel int

	// AmpsPerVolt is the current represented by 1V RMS
	// (20A for a YHDC SCT013-020).
	AmpsPerVolt float64

	// AmpsThreshold is the current above which the circuit is running.
	AmpsThreshold float64

	// CaptureWave keeps the raw samples of the last full pass.
	CaptureWave bool
}

// Path identifies which branch produced the last voltage.
type Path string

const (
	PathNone      Path = ""
	PathProbeLow  Path = "PROBE_LOW"
	PathProbeHigh Path = "PROBE_HIGH"
	PathPassLow   Path = "PASS_LOW"
	PathPassHigh  Path = "PASS_HIGH"
	PathRMS       Path = "RMS"
)

// Reading is a point-in-time copy of the meter state.
type Reading struct {
	Channel       int
	RMSVoltage    float64 // millivolt units, [0, UMax]
	Amps          float64
	AmpsThreshold float64
	Running       bool
	ZeroReference float64
	MinSample     int
	MaxSample     int
	Path          Path
}
