package meter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

const headers = "Name         \tU rms\tAmps\tThres.\tRunning\tZero\tmin\tmax ever"

// FormatHeaders returns the column header line matching FormatRow.
func FormatHeaders() string {
	return headers
}

// FormatRow returns one tab-separated log line for the current state.
func (m *Meter) FormatRow(name string) string {
	return m.Reading().Row(name)
}

// Row formats the reading as a tab-separated log line.
func (r Reading) Row(name string) string {
	running := "--"
	if r.Running {
		running = "yes"
	}
	return fmt.Sprintf("%s\t%.2f\t%.2f\t%.2f\t%s\t%.2f\t%d\t%d",
		name, r.RMSVoltage, r.Amps, r.AmpsThreshold, running, r.ZeroReference, r.MinSample, r.MaxSample)
}

// LogHeaders writes the header line to w.
func (m *Meter) LogHeaders(w io.Writer) error {
	_, err := io.WriteString(w, headers+"\n")
	return err
}

// Log writes one data row to w.
func (m *Meter) Log(w io.Writer, name string) error {
	_, err := io.WriteString(w, m.FormatRow(name)+"\n")
	return err
}

// LogWave writes the captured samples of the last pass as one line.
// Nothing is written when no wave was captured.
func (m *Meter) LogWave(w io.Writer) error {
	if len(m.wave) == 0 {
		return nil
	}
	var b strings.Builder
	for _, s := range m.wave {
		b.WriteString(strconv.Itoa(s))
		b.WriteString(", ")
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}
