// Package config loads the daemon configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ct-sensor/internal/adc"
	"github.com/sweeney/ct-sensor/internal/gpio"
	"github.com/sweeney/ct-sensor/internal/meter"
	"github.com/sweeney/ct-sensor/internal/mqtt"
)

// ADC drivers.
const (
	DriverSerial = "serial"
	DriverIIO    = "iio"
)

// Config represents the daemon configuration.
type Config struct {
	Meter  MeterConfig   `yaml:"meter"`
	ADC    ADCConfig     `yaml:"adc"`
	Switch SwitchConfig  `yaml:"switch"`
	MQTT   MQTTConfig    `yaml:"mqtt"`
	Poll   time.Duration `yaml:"poll"`
}

// MeterConfig contains the calibration of the monitored circuit.
type MeterConfig struct {
	Name          string  `yaml:"name"`
	Channel       int     `yaml:"channel"`
	AmpsPerVolt   float64 `yaml:"amps_per_volt"`  // amps represented by 1V RMS
	AmpsThreshold float64 `yaml:"amps_threshold"` // running above this
	Samples       int     `yaml:"samples"`        // samples per pass
	CaptureWave   bool    `yaml:"capture_wave"`   // dump raw samples after each pass
}

// ADCConfig selects and configures the analog reader.
type ADCConfig struct {
	Driver string       `yaml:"driver"`
	Serial SerialConfig `yaml:"serial"`
	IIO    IIOConfig    `yaml:"iio"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string `yaml:"port"`
	BaudRate    int    `yaml:"baud_rate"`
	OpenRetries uint64 `yaml:"open_retries"`
}

// IIOConfig contains Linux industrial-I/O device configuration.
type IIOConfig struct {
	Device string `yaml:"device"`
	Bits   int    `yaml:"bits"`
}

// SwitchConfig contains the override switch pins (BCM numbering).
// A negative pin disables the switch.
type SwitchConfig struct {
	Chip   string `yaml:"chip"`
	PinOn  int    `yaml:"pin_on"`
	PinOff int    `yaml:"pin_off"`
}

// MQTTConfig contains the log sink broker. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Meter: MeterConfig{
			Name:          "main",
			Channel:       0,
			AmpsPerVolt:   20, // YHDC SCT013-020
			AmpsThreshold: 1,
			Samples:       meter.DefaultSamples,
		},
		ADC: ADCConfig{
			Driver: DriverSerial,
			Serial: SerialConfig{
				Port:        "/dev/ttyACM0",
				BaudRate:    adc.DefaultBaudRate,
				OpenRetries: 5,
			},
			IIO: IIOConfig{
				Device: adc.DefaultIIODevice,
				Bits:   adc.Bits,
			},
		},
		Switch: SwitchConfig{
			Chip:   gpio.DefaultChip,
			PinOn:  -1,
			PinOff: -1,
		},
		MQTT: MQTTConfig{
			ClientID:   "ct-sensor",
			BufferSize: mqtt.DefaultBufferSize,
		},
		Poll: time.Second,
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults fills fields that an explicit empty value would break.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Meter.Name == "" {
		c.Meter.Name = def.Meter.Name
	}
	if c.Meter.Samples == 0 {
		c.Meter.Samples = def.Meter.Samples
	}
	if c.ADC.Driver == "" {
		c.ADC.Driver = def.ADC.Driver
	}
	if c.ADC.Serial.BaudRate == 0 {
		c.ADC.Serial.BaudRate = def.ADC.Serial.BaudRate
	}
	if c.ADC.IIO.Device == "" {
		c.ADC.IIO.Device = def.ADC.IIO.Device
	}
	if c.ADC.IIO.Bits == 0 {
		c.ADC.IIO.Bits = def.ADC.IIO.Bits
	}
	if c.Switch.Chip == "" {
		c.Switch.Chip = def.Switch.Chip
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = def.MQTT.BufferSize
	}
	if c.Poll == 0 {
		c.Poll = def.Poll
	}
}

// SwitchEnabled reports whether both override pins are set.
func (c *Config) SwitchEnabled() bool {
	return c.Switch.PinOn >= 0 && c.Switch.PinOff >= 0
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Meter.Channel < 0 {
		return fmt.Errorf("meter.channel must be >= 0, got %d", c.Meter.Channel)
	}
	if c.Meter.Samples < 1 {
		return fmt.Errorf("meter.samples must be >= 1, got %d", c.Meter.Samples)
	}
	if c.Meter.AmpsPerVolt <= 0 {
		return fmt.Errorf("meter.amps_per_volt must be > 0, got %v", c.Meter.AmpsPerVolt)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("poll must be > 0, got %v", c.Poll)
	}

	switch c.ADC.Driver {
	case DriverSerial:
		if c.ADC.Serial.Port == "" {
			return fmt.Errorf("adc.serial.port is required")
		}
	case DriverIIO:
		// Narrower converters are scaled up to adc.Bits, so any width works.
		if c.ADC.IIO.Bits < 1 {
			return fmt.Errorf("adc.iio.bits must be >= 1, got %d", c.ADC.IIO.Bits)
		}
	default:
		return fmt.Errorf("unknown adc.driver %q", c.ADC.Driver)
	}

	if (c.Switch.PinOn >= 0) != (c.Switch.PinOff >= 0) {
		return fmt.Errorf("switch.pin_on and switch.pin_off must both be set or both be negative")
	}
	if c.SwitchEnabled() && c.Switch.PinOn == c.Switch.PinOff {
		return fmt.Errorf("switch.pin_on and switch.pin_off must differ")
	}

	return nil
}
