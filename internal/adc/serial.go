package adc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the companion firmware.
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds a single serial read.
	DefaultReadTimeout = 2 * time.Second

	// maxBadLines is how many consecutive unparsable lines Read skips
	// before giving up. The first line after opening is often partial.
	maxBadLines = 8
)

// ErrTimeout is returned when the device stops sending samples.
var ErrTimeout = errors.New("adc: serial read timeout")

// SerialReader reads raw samples streamed by a microcontroller.
//
// The firmware sends one sample per line, either "<value>" for channel 0 or
// "<channel>:<value>". Configure sends "A<channel>\n" to have the firmware
// set that pin to input and start streaming it.
type SerialReader struct {
	rw      io.ReadWriteCloser
	scanner *bufio.Scanner
}

// OpenSerial opens the serial port, retrying with exponential backoff
// while the device is not yet available (USB adapters enumerate late).
func OpenSerial(port string, baud int, maxRetries uint64) (*SerialReader, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	var p serial.Port
	err := backoff.Retry(func() error {
		var err error
		p, err = serial.Open(port, &serial.Mode{BaudRate: baud})
		if err != nil {
			log.Printf("adc: open %s: %v", port, err)
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, maxRetries))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}

	if err := p.SetReadTimeout(DefaultReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", port, err)
	}

	return newSerialReader(timeoutPort{p}), nil
}

func newSerialReader(rw io.ReadWriteCloser) *SerialReader {
	return &SerialReader{
		rw:      rw,
		scanner: bufio.NewScanner(rw),
	}
}

// Configure asks the firmware to sample channel.
func (r *SerialReader) Configure(channel int) error {
	if channel < 0 {
		return fmt.Errorf("invalid channel %d", channel)
	}
	if _, err := fmt.Fprintf(r.rw, "A%d\n", channel); err != nil {
		return fmt.Errorf("send configure command: %w", err)
	}
	return nil
}

// Read returns the next sample for channel, skipping lines for other
// channels.
func (r *SerialReader) Read(channel int) (int, error) {
	bad := 0
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		ch, v, err := parseLine(line)
		if err != nil {
			bad++
			if bad >= maxBadLines {
				return 0, fmt.Errorf("parse line %q: %w", line, err)
			}
			continue
		}
		bad = 0

		if ch != channel {
			continue
		}
		return checkRange(channel, v)
	}

	if err := r.scanner.Err(); err != nil {
		return 0, fmt.Errorf("read serial: %w", err)
	}
	return 0, fmt.Errorf("read serial: %w", io.EOF)
}

// Close closes the serial port.
func (r *SerialReader) Close() error {
	return r.rw.Close()
}

// parseLine parses "<value>" or "<channel>:<value>".
func parseLine(line string) (channel, value int, err error) {
	chPart, valPart, found := strings.Cut(line, ":")
	if !found {
		valPart = chPart
		chPart = "0"
	}

	channel, err = strconv.Atoi(strings.TrimSpace(chPart))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid channel: %w", err)
	}
	value, err = strconv.Atoi(strings.TrimSpace(valPart))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value: %w", err)
	}
	return channel, value, nil
}

// timeoutPort reports a read timeout as ErrTimeout instead of an empty read.
type timeoutPort struct {
	serial.Port
}

func (p timeoutPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
