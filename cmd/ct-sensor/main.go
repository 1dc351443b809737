// Command ct-sensor reads a current-transformer sensor, decides whether the
// monitored circuit is running and writes one tab-separated log row per
// measurement to stdout and, optionally, MQTT.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ct-sensor/internal/adc"
	"github.com/sweeney/ct-sensor/internal/config"
	"github.com/sweeney/ct-sensor/internal/gpio"
	"github.com/sweeney/ct-sensor/internal/meter"
	"github.com/sweeney/ct-sensor/internal/mqtt"
)

// options holds the parsed command line.
type options struct {
	cfg        *config.Config
	printState bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	if err := run(opts.cfg, opts.printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the YAML config named by -config and applies the flags
// that were set explicitly on top of it.
func parseFlags(args []string) (*options, error) {
	def := config.Default()

	fs := flag.NewFlagSet("ct-sensor", flag.ContinueOnError)
	configPath := fs.String("config", "/etc/ct-sensor.yaml", "YAML configuration file (defaults are used if missing)")
	name := fs.String("name", def.Meter.Name, "Meter name used in log rows and MQTT topics")
	poll := fs.Duration("poll", def.Poll, "Interval between measurements")
	samples := fs.Int("samples", def.Meter.Samples, "Samples per measurement pass")
	threshold := fs.Float64("threshold", def.Meter.AmpsThreshold, "Amps above which the circuit is running")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	wave := fs.Bool("wave", def.Meter.CaptureWave, "Dump raw samples after each measurement")
	printState := fs.Bool("print-state", false, "Measure once, print the reading and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			cfg.Meter.Name = *name
		case "poll":
			cfg.Poll = *poll
		case "samples":
			cfg.Meter.Samples = *samples
		case "threshold":
			cfg.Meter.AmpsThreshold = *threshold
		case "broker":
			cfg.MQTT.Broker = *broker
		case "wave":
			cfg.Meter.CaptureWave = *wave
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &options{cfg: cfg, printState: *printState}, nil
}

func run(cfg *config.Config, printState bool) error {
	// Initialize ADC
	reader, err := openADC(cfg.ADC)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	defer reader.Close()

	m := meter.New(reader, meter.Options{
		Channel:       cfg.Meter.Channel,
		AmpsPerVolt:   cfg.Meter.AmpsPerVolt,
		AmpsThreshold: cfg.Meter.AmpsThreshold,
		CaptureWave:   cfg.Meter.CaptureWave,
	})
	if err := m.Init(); err != nil {
		return fmt.Errorf("init meter: %w", err)
	}

	// Print state mode
	if printState {
		return printOnce(m, cfg.Meter, os.Stdout)
	}

	var sw gpio.Reader
	if cfg.SwitchEnabled() {
		r, err := gpio.NewRealReader(cfg.Switch.Chip, cfg.Switch.PinOn, cfg.Switch.PinOff)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		sw = r
	}

	var pub mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.Meter.Name, cfg.MQTT.BufferSize)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		pub = p
	}

	log.Printf("started: name=%s channel=%d poll=%v samples=%d threshold=%.2fA driver=%s broker=%q switch=%v",
		cfg.Meter.Name, cfg.Meter.Channel, cfg.Poll, cfg.Meter.Samples, cfg.Meter.AmpsThreshold,
		cfg.ADC.Driver, cfg.MQTT.Broker, cfg.SwitchEnabled())

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(m, sw, pub, os.Stdout, cfg.Meter, ticker.C, sigCh)
}

func openADC(c config.ADCConfig) (adc.Reader, error) {
	switch c.Driver {
	case config.DriverIIO:
		r, err := adc.NewIIOReader(c.IIO.Device, c.IIO.Bits)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.DriverSerial:
		r, err := adc.OpenSerial(c.Serial.Port, c.Serial.BaudRate, c.Serial.OpenRetries)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown adc driver %q", c.Driver)
	}
}

// printOnce measures once and writes the header and a single row.
func printOnce(m *meter.Meter, mc config.MeterConfig, out io.Writer) error {
	if err := m.UpdateN(mc.Samples); err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	if err := m.LogHeaders(out); err != nil {
		return err
	}
	if err := m.Log(out, mc.Name); err != nil {
		return err
	}
	if mc.CaptureWave {
		return m.LogWave(out)
	}
	return nil
}

// runLoop measures on every tick until a signal arrives. A failed
// measurement means the analog input is gone and ends the loop.
func runLoop(m *meter.Meter, sw gpio.Reader, pub mqtt.Publisher, out io.Writer, mc config.MeterConfig, tick <-chan time.Time, sig <-chan os.Signal) error {
	if err := m.LogHeaders(out); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if pub != nil {
		if err := pub.PublishHeader(meter.FormatHeaders()); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
			log.Printf("publish header error: %v", err)
		}
	}

	wasRunning := m.IsRunning()
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			if cs, ok := pub.(mqtt.ConnectionStatus); ok && !cs.IsConnected() {
				log.Printf("mqtt: not connected, buffered lines are dropped")
			}
			return nil

		case <-tick:
			if err := m.UpdateN(mc.Samples); err != nil {
				return fmt.Errorf("measure: %w", err)
			}

			if sw != nil {
				pos, err := gpio.Position(sw)
				if err != nil {
					log.Printf("gpio read error: %v", err)
				}
				applyOverride(m, pos)
			}

			if running := m.IsRunning(); running != wasRunning {
				log.Printf("state: %s (%.2fA, path=%s)", runningString(running), m.Amps(), m.Path())
				wasRunning = running
			}

			row := m.FormatRow(mc.Name)
			if _, err := io.WriteString(out, row+"\n"); err != nil {
				return fmt.Errorf("write log: %w", err)
			}
			if mc.CaptureWave {
				if err := m.LogWave(out); err != nil {
					return fmt.Errorf("write wave: %w", err)
				}
			}

			if pub != nil {
				if err := pub.PublishLine(row); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
					// Don't crash on publish failure
					log.Printf("publish error: %v", err)
				}
			}
		}
	}
}

// applyOverride forces the running state from the switch position.
func applyOverride(m *meter.Meter, pos gpio.Override) {
	switch pos {
	case gpio.OverrideOn:
		m.ForceIsRunning(true)
	case gpio.OverrideOff:
		m.ForceIsRunning(false)
	}
}

func runningString(running bool) string {
	if running {
		return "RUNNING"
	}
	return "STOPPED"
}
