package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/ct-sensor/internal/adc"
	"github.com/sweeney/ct-sensor/internal/config"
	"github.com/sweeney/ct-sensor/internal/gpio"
	"github.com/sweeney/ct-sensor/internal/meter"
	"github.com/sweeney/ct-sensor/internal/mqtt"
)

const testHeader = "Name         \tU rms\tAmps\tThres.\tRunning\tZero\tmin\tmax ever"

func testMeterConfig() config.MeterConfig {
	return config.MeterConfig{
		Name:          "main",
		AmpsPerVolt:   20,
		AmpsThreshold: 2,
		Samples:       10,
	}
}

func newTestMeter(reader meter.AnalogInput, mc config.MeterConfig) *meter.Meter {
	return meter.New(reader, meter.Options{
		Channel:       mc.Channel,
		AmpsPerVolt:   mc.AmpsPerVolt,
		AmpsThreshold: mc.AmpsThreshold,
		CaptureWave:   mc.CaptureWave,
	})
}

// --- flag parsing tests ---

func TestParseFlagsDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	opts, err := parseFlags([]string{"-config", missing})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.printState {
		t.Error("print-state should default to false")
	}
	if opts.cfg.Meter.Name != "main" {
		t.Errorf("name: got %q, want main", opts.cfg.Meter.Name)
	}
	if opts.cfg.Meter.Samples != meter.DefaultSamples {
		t.Errorf("samples: got %d, want %d", opts.cfg.Meter.Samples, meter.DefaultSamples)
	}
}

func TestParseFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "meter:\n  name: dryer\n  samples: 500\n  amps_threshold: 3\npoll: 5s\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	opts, err := parseFlags([]string{"-config", path, "-samples", "800", "-broker", "tcp://localhost:1883", "-print-state"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := opts.cfg
	if cfg.Meter.Name != "dryer" {
		t.Errorf("name from file: got %q, want dryer", cfg.Meter.Name)
	}
	if cfg.Meter.Samples != 800 {
		t.Errorf("samples flag should win: got %d, want 800", cfg.Meter.Samples)
	}
	if cfg.Meter.AmpsThreshold != 3 {
		t.Errorf("threshold from file: got %v, want 3", cfg.Meter.AmpsThreshold)
	}
	if cfg.Poll != 5*time.Second {
		t.Errorf("poll from file: got %v, want 5s", cfg.Poll)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("broker flag: got %q", cfg.MQTT.Broker)
	}
	if !opts.printState {
		t.Error("expected print-state")
	}
}

func TestParseFlagsInvalid(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := parseFlags([]string{"-config", missing, "-samples", "0"}); err == nil {
		t.Error("expected validation error for zero samples")
	}
	if _, err := parseFlags([]string{"-no-such-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

// --- printOnce tests ---

func TestPrintOnce(t *testing.T) {
	reader := adc.NewFakeReader(1010)
	mc := testMeterConfig()
	m := newTestMeter(reader, mc)

	var out bytes.Buffer
	if err := printOnce(m, mc, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := testHeader + "\nmain\t5000.00\t100.00\t2.00\tyes\t512.00\t1023\t0\n"
	if out.String() != want {
		t.Errorf("output:\n got %q\nwant %q", out.String(), want)
	}
}

func TestPrintOnceWithWave(t *testing.T) {
	reader := adc.NewFakeReader(512, 500, 510, 520)
	mc := testMeterConfig()
	mc.Samples = 3
	mc.CaptureWave = true
	m := newTestMeter(reader, mc)

	var out bytes.Buffer
	if err := printOnce(m, mc, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out.String())
	}
	if lines[2] != "500, 510, 520, " {
		t.Errorf("wave line: got %q", lines[2])
	}
}

func TestPrintOnceReadError(t *testing.T) {
	reader := adc.NewFakeReader(512)
	reader.ReadError = errors.New("adc gone")
	mc := testMeterConfig()

	var out bytes.Buffer
	if err := printOnce(newTestMeter(reader, mc), mc, &out); err == nil {
		t.Error("expected error")
	}
	if out.Len() != 0 {
		t.Errorf("expected no output on error, got %q", out.String())
	}
}

// --- runLoop tests ---

// runRunLoop drives runLoop for nTicks and then sends signal, returning
// the error and everything written to the log sink.
func runRunLoop(t *testing.T, m *meter.Meter, sw gpio.Reader, pub mqtt.Publisher, mc config.MeterConfig, nTicks int) (string, error) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	var out bytes.Buffer

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(m, sw, pub, &out, mc, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		select {
		case tick <- time.Time{}:
		case err := <-errCh:
			return out.String(), err
		}
	}
	sig <- syscall.SIGTERM

	err := <-errCh
	return out.String(), err
}

func TestRunLoopWritesHeaderAndRows(t *testing.T) {
	reader := adc.NewFakeReader(19)
	mc := testMeterConfig()
	pub := mqtt.NewFakePublisher()

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, pub, mc, 3)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines: %q", len(lines), out)
	}
	if lines[0] != testHeader {
		t.Errorf("header: got %q", lines[0])
	}
	for i, l := range lines[1:] {
		if l != "main\t0.00\t0.00\t2.00\t--\t512.00\t1023\t0" {
			t.Errorf("row %d: got %q", i, l)
		}
	}

	if len(pub.Headers) != 1 || pub.Headers[0] != testHeader {
		t.Errorf("published headers: %q", pub.Headers)
	}
	if len(pub.Lines) != 3 {
		t.Fatalf("expected 3 published rows, got %d", len(pub.Lines))
	}
	if pub.Lines[0] != lines[1] {
		t.Errorf("published row %q differs from logged row %q", pub.Lines[0], lines[1])
	}
}

func TestRunLoopNoTicks(t *testing.T) {
	mc := testMeterConfig()
	out, err := runRunLoop(t, newTestMeter(adc.NewFakeReader(512), mc), nil, nil, mc, 0)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if out != testHeader+"\n" {
		t.Errorf("expected only the header, got %q", out)
	}
}

func TestRunLoopRunningFollowsInput(t *testing.T) {
	// Probe low, probe high, probe low: one sample each.
	reader := adc.NewFakeReader(10, 1015, 10)
	mc := testMeterConfig()

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, nil, mc, 3)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	want := []string{"--", "yes", "--"}
	for i, w := range want {
		cols := strings.Split(lines[i+1], "\t")
		if cols[4] != w {
			t.Errorf("row %d running: got %q, want %q", i, cols[4], w)
		}
	}
	if reader.Reads != 3 {
		t.Errorf("expected 3 reads, got %d", reader.Reads)
	}
}

func TestRunLoopOverrideSwitch(t *testing.T) {
	reader := adc.NewFakeReader(1015) // always running
	sw := gpio.NewFakeReader([]gpio.Sample{
		{},          // no override
		{Off: true}, // forced off
		{On: true},  // forced on
		{On: true, Off: true},
	})
	mc := testMeterConfig()

	out, err := runRunLoop(t, newTestMeter(reader, mc), sw, nil, mc, 4)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	want := []string{"yes", "--", "yes", "--"}
	for i, w := range want {
		cols := strings.Split(lines[i+1], "\t")
		if cols[4] != w {
			t.Errorf("row %d running: got %q, want %q", i, cols[4], w)
		}
		// Voltage is never touched by the override.
		if cols[1] != "5000.00" {
			t.Errorf("row %d rms: got %q, want 5000.00", i, cols[1])
		}
	}
}

func TestRunLoopSwitchErrorIgnored(t *testing.T) {
	reader := adc.NewFakeReader(1015)
	sw := gpio.NewFakeReader([]gpio.Sample{{Off: true}})
	sw.ReadError = errors.New("gpio fault")
	mc := testMeterConfig()

	out, err := runRunLoop(t, newTestMeter(reader, mc), sw, nil, mc, 1)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	cols := strings.Split(strings.Split(out, "\n")[1], "\t")
	if cols[4] != "yes" {
		t.Errorf("running: got %q, want yes (switch unreadable)", cols[4])
	}
}

func TestRunLoopReadErrorIsFatal(t *testing.T) {
	reader := adc.NewFakeReader(512)
	reader.ReadError = errors.New("adc gone")
	mc := testMeterConfig()

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, nil, mc, 5)
	if err == nil {
		t.Fatal("expected runLoop to return the read error")
	}
	if !errors.Is(err, reader.ReadError) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
	if out != testHeader+"\n" {
		t.Errorf("expected no rows after failure, got %q", out)
	}
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	reader := adc.NewFakeReader(19)
	pub := mqtt.NewFakePublisher()
	pub.PublishError = errors.New("broker down")
	pub.HeaderError = errors.New("broker down")
	mc := testMeterConfig()

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, pub, mc, 3)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if n := strings.Count(out, "\n"); n != 4 {
		t.Errorf("expected 4 logged lines, got %d", n)
	}
}

func TestRunLoopWave(t *testing.T) {
	reader := adc.NewFakeReader(512, 500, 501, 502)
	mc := testMeterConfig()
	mc.Samples = 3
	mc.CaptureWave = true

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, nil, mc, 1)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, row and wave, got %q", out)
	}
	if lines[2] != "500, 501, 502, " {
		t.Errorf("wave: got %q", lines[2])
	}
}

func TestRunLoopWaveSkippedAfterSaturatedPass(t *testing.T) {
	// tick 1: normal pass; tick 2: probe on the high rail
	reader := adc.NewFakeReader(512, 500, 501, 502, 1015)
	mc := testMeterConfig()
	mc.Samples = 3
	mc.CaptureWave = true

	out, err := runRunLoop(t, newTestMeter(reader, mc), nil, nil, mc, 2)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, row, wave and row, got %q", out)
	}
	if lines[2] != "500, 501, 502, " {
		t.Errorf("wave: got %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "main\t5000.00\t") {
		t.Errorf("saturated row: got %q", lines[3])
	}
	if strings.Count(out, "500, 501, 502, ") != 1 {
		t.Errorf("wave dumped more than once: %q", out)
	}
}

func TestApplyOverride(t *testing.T) {
	m := newTestMeter(adc.NewFakeReader(1015), testMeterConfig())
	if err := m.UpdateN(1); err != nil {
		t.Fatal(err)
	}

	applyOverride(m, gpio.OverrideNone)
	if !m.IsRunning() {
		t.Error("NONE should keep the estimate")
	}
	applyOverride(m, gpio.OverrideOff)
	if m.IsRunning() {
		t.Error("OFF should force stopped")
	}
	applyOverride(m, gpio.OverrideOn)
	if !m.IsRunning() {
		t.Error("ON should force running")
	}
}

func TestOpenADCUnknownDriver(t *testing.T) {
	if _, err := openADC(config.ADCConfig{Driver: "spi"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpenADCIIO(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "in_voltage0_raw"), []byte("512\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := openADC(config.ADCConfig{Driver: config.DriverIIO, IIO: config.IIOConfig{Device: dir, Bits: 10}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if err := r.Configure(0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	v, err := r.Read(0)
	if err != nil || v != 512 {
		t.Errorf("read: got %d, %v; want 512", v, err)
	}
}

func TestADCResolutionMatchesMeter(t *testing.T) {
	if adc.Bits != meter.ADCBits {
		t.Errorf("adc.Bits %d != meter.ADCBits %d", adc.Bits, meter.ADCBits)
	}
	if adc.MaxValue != meter.ADCMax-1 {
		t.Errorf("adc.MaxValue %d != meter.ADCMax-1 %d", adc.MaxValue, meter.ADCMax-1)
	}
}

func TestRunningString(t *testing.T) {
	if runningString(true) != "RUNNING" || runningString(false) != "STOPPED" {
		t.Error("unexpected running strings")
	}
}
