package meter

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogHeaders(t *testing.T) {
	m := New(constant(512), defaultOpts())
	var buf bytes.Buffer
	if err := m.LogHeaders(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Name         \tU rms\tAmps\tThres.\tRunning\tZero\tmin\tmax ever\n"
	if buf.String() != want {
		t.Errorf("headers:\n got %q\nwant %q", buf.String(), want)
	}
	if FormatHeaders()+"\n" != want {
		t.Errorf("FormatHeaders: got %q", FormatHeaders())
	}
}

func TestLogRowOff(t *testing.T) {
	m := New(constant(19), defaultOpts())
	if err := m.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Log(&buf, "main"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "main\t0.00\t0.00\t2.50\t--\t512.00\t1023\t0\n"
	if buf.String() != want {
		t.Errorf("row:\n got %q\nwant %q", buf.String(), want)
	}
}

func TestLogRowRunning(t *testing.T) {
	m := New(constant(1010), defaultOpts())
	if err := m.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "pump\t5000.00\t100.00\t2.50\tyes\t512.00\t1023\t0"
	if got := m.FormatRow("pump"); got != want {
		t.Errorf("row:\n got %q\nwant %q", got, want)
	}
}

func TestLogRowColumnsMatchHeaders(t *testing.T) {
	m := New(sine(512, 200, 40), defaultOpts())
	if err := m.Update(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := strings.Split(m.FormatRow("main"), "\t")
	hdr := strings.Split(FormatHeaders(), "\t")
	if len(row) != len(hdr) {
		t.Fatalf("columns: row has %d, headers have %d", len(row), len(hdr))
	}
	if row[4] != "yes" {
		t.Errorf("running column: got %q, want yes", row[4])
	}
	if row[6] != "312" || row[7] != "712" {
		t.Errorf("min/max columns: got %s/%s, want 312/712", row[6], row[7])
	}
}

func TestLogWave(t *testing.T) {
	opts := defaultOpts()
	opts.CaptureWave = true
	m := New(script(512, 500, 501, 502), opts)

	var buf bytes.Buffer
	if err := m.LogWave(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing before first pass, got %q", buf.String())
	}

	if err := m.UpdateN(3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.LogWave(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "500, 501, 502, \n"; buf.String() != want {
		t.Errorf("wave:\n got %q\nwant %q", buf.String(), want)
	}
}
