//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the switch from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip   *gpiocdev.Chip
	onPin  *gpiocdev.Line
	offPin *gpiocdev.Line
}

// NewRealReader requests the force-on and force-off lines on chip.
func NewRealReader(chipName string, pinOn, pinOff int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Switch pulls the line to 3V3 when active.
	onLine, err := chip.RequestLine(pinOn, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request force-on pin %d: %w", pinOn, err)
	}

	offLine, err := chip.RequestLine(pinOff, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		onLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request force-off pin %d: %w", pinOff, err)
	}

	return &RealReader{
		chip:   chip,
		onPin:  onLine,
		offPin: offLine,
	}, nil
}

// Read returns whether the force-on and force-off lines are high.
func (r *RealReader) Read() (bool, bool, error) {
	on, err := r.onPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read force-on pin: %w", err)
	}

	off, err := r.offPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read force-off pin: %w", err)
	}

	return on == 1, off == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.onPin != nil {
		if err := r.onPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close force-on pin: %w", err))
		}
	}
	if r.offPin != nil {
		if err := r.offPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close force-off pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
