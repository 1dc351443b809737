// Package gpio reads the manual override switch with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the override switch inputs.
type Reader interface {
	// Read returns whether the force-on and force-off inputs are active.
	// Returns (forceOn, forceOff, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Override is the position of the switch.
type Override int

const (
	OverrideNone Override = iota
	OverrideOn
	OverrideOff
)

func (o Override) String() string {
	switch o {
	case OverrideOn:
		return "ON"
	case OverrideOff:
		return "OFF"
	default:
		return "NONE"
	}
}

// Position reads r and returns the switch position.
// Force-off wins when both inputs are active.
func Position(r Reader) (Override, error) {
	on, off, err := r.Read()
	if err != nil {
		return OverrideNone, err
	}
	switch {
	case off:
		return OverrideOff, nil
	case on:
		return OverrideOn, nil
	default:
		return OverrideNone, nil
	}
}
