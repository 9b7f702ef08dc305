package servo

import (
	"fmt"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/hw/gpio"
)

const (
	// TickHz is the PWM clock: one tick per microsecond.
	TickHz = 1_000_000
	// DefaultFrameUs is a 50 Hz servo frame.
	DefaultFrameUs = 20000
	// DefaultMinPulseUs and DefaultMaxPulseUs bound a standard hobby servo.
	DefaultMinPulseUs = 1000
	DefaultMaxPulseUs = 2000
)

// Config holds the hardware configuration of one servo.
type Config struct {
	Pin        int // BCM pin with hardware PWM (12, 13, 18 or 19)
	EnablePin  int // optional power rail enable (BCM). 0 = not used. Active HIGH.
	MinPulseUs int // pulse at the lower end of the travel
	MaxPulseUs int // pulse at the upper end of the travel
	FrameUs    int // PWM period
}

// Servo drives a hobby servo from an angle in tenths of a degree.
// It implements motion.Actuator.
type Servo struct {
	gpio  gpio.Driver
	cfg   Config
	name  string
	pulse int // last pulse written, in microseconds
}

// New sets up the PWM pin. The power rail stays off until Enable.
func New(g gpio.Driver, name string, cfg Config) (*Servo, error) {
	if cfg.MinPulseUs <= 0 {
		cfg.MinPulseUs = DefaultMinPulseUs
	}
	if cfg.MaxPulseUs <= 0 {
		cfg.MaxPulseUs = DefaultMaxPulseUs
	}
	if cfg.FrameUs <= 0 {
		cfg.FrameUs = DefaultFrameUs
	}
	if cfg.MaxPulseUs >= cfg.FrameUs {
		return nil, fmt.Errorf("servo %s: max pulse %dus does not fit a %dus frame", name, cfg.MaxPulseUs, cfg.FrameUs)
	}

	if err := g.SetupPWM(cfg.Pin, TickHz); err != nil {
		return nil, fmt.Errorf("servo %s: %w", name, err)
	}
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("servo %s enable pin: %w", name, err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.Low); err != nil {
			return nil, fmt.Errorf("servo %s enable pin: %w", name, err)
		}
	}

	debug.Info("Servo %s on pin %d (%d-%dus)", name, cfg.Pin, cfg.MinPulseUs, cfg.MaxPulseUs)
	return &Servo{gpio: g, cfg: cfg, name: name}, nil
}

// Drive maps angle linearly from [limitMin, limitMax] onto the pulse range.
// The travel may wrap through +/-180 degrees (limitMin > limitMax). Angles
// outside the travel are clamped to its nearest end.
func (s *Servo) Drive(angle, limitMin, limitMax int) {
	pulse := PulseFor(angle, limitMin, limitMax, s.cfg.MinPulseUs, s.cfg.MaxPulseUs)
	if pulse == s.pulse {
		return
	}
	s.pulse = pulse
	if err := s.gpio.WritePWM(s.cfg.Pin, uint32(pulse), uint32(s.cfg.FrameUs)); err != nil {
		debug.Error(fmt.Errorf("servo %s: %w", s.name, err))
	}
}

// Pulse returns the last pulse width written, in microseconds.
func (s *Servo) Pulse() int {
	return s.pulse
}

// Enable powers the servo rail, if any.
func (s *Servo) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}

// Disable cuts the servo power rail, if any.
func (s *Servo) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Verbose("Servo %s disabled", s.name)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// PulseFor computes the pulse width for angle within the travel
// [limitMin, limitMax] (tenths of a degree, wrapped travel allowed).
// A zero-width travel yields the middle pulse.
func PulseFor(angle, limitMin, limitMax, minPulse, maxPulse int) int {
	span := wrapPositive(limitMax - limitMin)
	if span == 0 {
		return (minPulse + maxPulse) / 2
	}
	offset := wrapPositive(angle - limitMin)
	if offset > span {
		// past the upper end: clamp to whichever end is closer
		if offset-span <= 3600-offset {
			offset = span
		} else {
			offset = 0
		}
	}
	return minPulse + offset*(maxPulse-minPulse)/span
}

func wrapPositive(tenths int) int {
	tenths %= 3600
	if tenths < 0 {
		tenths += 3600
	}
	return tenths
}
