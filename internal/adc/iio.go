package adc

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultIIODevice is the first industrial-I/O device on Linux.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

// IIOReader reads an ADC exposed through the Linux industrial-I/O sysfs
// interface (MCP3008, ADS1015 and similar HATs).
type IIOReader struct {
	dir   string
	shift int
	files map[int]*os.File
	buf   []byte
}

// NewIIOReader creates a reader for the device directory. bits is the
// native resolution of the converter; values are scaled to Bits.
func NewIIOReader(dir string, bits int) (*IIOReader, error) {
	if bits <= 0 {
		return nil, fmt.Errorf("invalid resolution %d bits", bits)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open iio device: %w", err)
	}
	return &IIOReader{
		dir:   dir,
		shift: bits - Bits,
		files: make(map[int]*os.File),
		buf:   make([]byte, 32),
	}, nil
}

func (r *IIOReader) channelPath(channel int) string {
	return filepath.Join(r.dir, fmt.Sprintf("in_voltage%d_raw", channel))
}

// Configure opens the channel's raw value file.
func (r *IIOReader) Configure(channel int) error {
	if channel < 0 {
		return fmt.Errorf("invalid channel %d", channel)
	}
	if _, ok := r.files[channel]; ok {
		return nil
	}
	f, err := os.Open(r.channelPath(channel))
	if err != nil {
		return fmt.Errorf("open channel %d: %w", channel, err)
	}
	r.files[channel] = f
	return nil
}

// Read performs one conversion. Each read of the sysfs attribute from
// offset 0 triggers a new sample.
func (r *IIOReader) Read(channel int) (int, error) {
	f, ok := r.files[channel]
	if !ok {
		return 0, fmt.Errorf("channel %d not configured", channel)
	}

	n, err := f.ReadAt(r.buf, 0)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("read channel %d: %w", channel, err)
	}

	raw, err := strconv.Atoi(strings.TrimSpace(string(r.buf[:n])))
	if err != nil {
		return 0, fmt.Errorf("parse channel %d: %w", channel, err)
	}

	if r.shift > 0 {
		raw >>= r.shift
	} else if r.shift < 0 {
		raw <<= -r.shift
	}
	return checkRange(channel, raw)
}

// Close closes all opened channel files.
func (r *IIOReader) Close() error {
	var errs []error
	for ch, f := range r.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel %d: %w", ch, err))
		}
		delete(r.files, ch)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
