// Package adc provides analog input reading with hardware abstraction.
// Real implementations read a microcontroller over a serial port or a Linux
// industrial-I/O device. The fake implementation allows testing without
// hardware.
package adc

import (
	"errors"
	"fmt"
)

// Resolution the rest of the program works in. Readers with a different
// native resolution scale their values to it.
const (
	Bits     = 10
	MaxValue = 1<<Bits - 1 // 1023
)

// ErrOutOfRange is returned when a device reports a value outside [0, MaxValue].
var ErrOutOfRange = errors.New("adc: value out of range")

// Reader reads raw analog samples.
type Reader interface {
	// Configure sets the channel to input mode. Called once before reading.
	Configure(channel int) error

	// Read returns one raw sample of channel in [0, MaxValue].
	Read(channel int) (int, error)

	// Close releases the device.
	Close() error
}

func checkRange(channel, v int) (int, error) {
	if v < 0 || v > MaxValue {
		return 0, fmt.Errorf("channel %d value %d: %w", channel, v, ErrOutOfRange)
	}
	return v, nil
}
