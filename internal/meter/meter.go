package meter

import (
	"fmt"
	"math"
)

// Meter samples one analog channel and derives a running state.
// Not safe for concurrent use.
type Meter struct {
	input AnalogInput
	opts  Options

	zeroRef   float64
	uRms      float64
	amps      float64
	running   bool
	minSample int
	maxSample int
	path      Path

	wave []int
}

// New creates a meter reading from input with the given calibration.
func New(input AnalogInput, opts Options) *Meter {
	return &Meter{
		input:     input,
		opts:      opts,
		zeroRef:   ADCMax >> 1,
		minSample: ADCMax - 1,
		maxSample: 0,
	}
}

// Init configures the analog channel as an input. Call once before Update.
func (m *Meter) Init() error {
	if err := m.input.Configure(m.opts.Channel); err != nil {
		return fmt.Errorf("configure channel %d: %w", m.opts.Channel, err)
	}
	return nil
}

// Update runs UpdateN with DefaultSamples.
func (m *Meter) Update() error {
	return m.UpdateN(DefaultSamples)
}

// UpdateN samples the wave, recomputes the RMS voltage and amps, and sets
// the running state from the threshold. It blocks until the whole pass has
// been sampled. n <= 0 means DefaultSamples.
//
// A read error aborts the pass and leaves the meter unchanged.
func (m *Meter) UpdateN(n int) error {
	if n <= 0 {
		n = DefaultSamples
	}
	if err := m.updateVoltage(n); err != nil {
		return err
	}

	m.amps = m.uRms / 1000 * m.opts.AmpsPerVolt
	m.running = m.amps > m.opts.AmpsThreshold
	return nil
}

func (m *Meter) updateVoltage(n int) error {
	// Saturated probe: skip the full pass.
	probe, err := m.read()
	if err != nil {
		return err
	}
	if probe < LowThreshold {
		m.uRms, m.path, m.wave = 0, PathProbeLow, nil
		return nil
	}
	if probe > HighThreshold {
		m.uRms, m.path, m.wave = UMax, PathProbeHigh, nil
		return nil
	}

	var wave []int
	if m.opts.CaptureWave {
		wave = make([]int, 0, n)
	}

	zero := m.zeroRef
	sMin, sMax := ADCMax-1, 0
	var sum float64
	for i := 0; i < n; i++ {
		s, err := m.read()
		if err != nil {
			return err
		}
		if wave != nil {
			wave = append(wave, s)
		}

		sMin = min(sMin, s)
		sMax = max(sMax, s)

		zero += (float64(s) - zero) / ADCMax
		filtered := float64(s) - zero
		sum += filtered * filtered
	}
	m.zeroRef = zero

	// The circuit may have switched during the pass.
	// Saturated passes drop the wave so it is never dumped under a row
	// it did not produce.
	if sMin < LowThreshold {
		m.uRms, m.path, m.wave = 0, PathPassLow, nil
		return nil
	}
	if sMax > HighThreshold {
		m.uRms, m.path, m.wave = UMax, PathPassHigh, nil
		return nil
	}

	rms := math.Sqrt(sum / float64(n))
	m.uRms = math.Min(rms*UMax/(ADCMax-1), UMax)
	m.path = PathRMS
	m.wave = wave

	m.minSample = min(sMin, m.minSample)
	m.maxSample = max(sMax, m.maxSample)
	return nil
}

func (m *Meter) read() (int, error) {
	s, err := m.input.Read(m.opts.Channel)
	if err != nil {
		return 0, fmt.Errorf("read channel %d: %w", m.opts.Channel, err)
	}
	return s, nil
}

// ForceIsRunning overwrites the running state until the next Update.
// Voltage and amps are left untouched.
func (m *Meter) ForceIsRunning(running bool) {
	m.running = running
}

// IsRunning reports the running state computed by the last Update.
func (m *Meter) IsRunning() bool {
	return m.running
}

// RMSVoltage returns the last RMS voltage in millivolt units.
func (m *Meter) RMSVoltage() float64 {
	return m.uRms
}

// Amps returns the last current estimate.
func (m *Meter) Amps() float64 {
	return m.amps
}

// ZeroReference returns the tracked electrical zero in raw counts.
func (m *Meter) ZeroReference() float64 {
	return m.zeroRef
}

// MinSample returns the lowest sample seen by a non-saturated pass.
func (m *Meter) MinSample() int {
	return m.minSample
}

// MaxSample returns the highest sample seen by a non-saturated pass.
func (m *Meter) MaxSample() int {
	return m.maxSample
}

// Channel returns the analog channel the meter samples.
func (m *Meter) Channel() int {
	return m.opts.Channel
}

// Threshold returns the amps above which the load counts as running.
func (m *Meter) Threshold() float64 {
	return m.opts.AmpsThreshold
}

// Path returns the branch taken by the last Update.
func (m *Meter) Path() Path {
	return m.path
}

// Wave returns a copy of the samples of the last pass. Empty unless
// Options.CaptureWave is set and the last pass was not saturated.
func (m *Meter) Wave() []int {
	out := make([]int, len(m.wave))
	copy(out, m.wave)
	return out
}

// Reading returns a snapshot of the meter state.
func (m *Meter) Reading() Reading {
	return Reading{
		Channel:       m.opts.Channel,
		RMSVoltage:    m.uRms,
		Amps:          m.amps,
		AmpsThreshold: m.opts.AmpsThreshold,
		Running:       m.running,
		ZeroReference: m.zeroRef,
		MinSample:     m.minSample,
		MaxSample:     m.maxSample,
		Path:          m.path,
	}
}
