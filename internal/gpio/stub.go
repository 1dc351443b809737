//go:build !linux

package gpio

import "errors"

var errNoGPIO = errors.New("gpio: override switch needs the Linux GPIO character device")

// RealReader stands in for the override switch reader on platforms
// without a GPIO character device.
type RealReader struct{}

// NewRealReader always fails; run without switch pins on this platform.
func NewRealReader(chipName string, pinOn, pinOff int) (*RealReader, error) {
	return nil, errNoGPIO
}

// Read reports the switch as unavailable.
func (r *RealReader) Read() (forceOn, forceOff bool, err error) {
	return false, false, errNoGPIO
}

func (r *RealReader) Close() error {
	return nil
}
