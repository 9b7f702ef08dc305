package stepper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/hw/gpio"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper drives a step/dir motor driver as a mount axis. It implements
// motion.Actuator.
//
// Drive only records the target position; Run steps towards it in its own
// goroutine so the control cycle never waits for the motor. Position zero is
// the power-on position, which must be the axis at 0 degrees.
//
// Angles are laid out from the lower travel limit upwards, so a travel that
// wraps through +/-180 degrees is one continuous run of motor positions and
// the motor never crosses the arc outside the travel.
type Stepper struct {
	gpio         gpio.Driver
	cfg          Config
	name         string
	delay        time.Duration // delay between STEP pulse half-cycles
	stepsPerTurn int

	mu       sync.Mutex
	target   int // steps
	position int // steps
	wake     chan struct{}
}

// New sets up the pins. The driver stays disabled until Enable.
// cfg.StepDelay: if 0, defaults to 1ms.
func New(g gpio.Driver, name string, cfg Config) (*Stepper, error) {
	if cfg.StepsPerRev <= 0 {
		return nil, fmt.Errorf("stepper %s: steps per revolution must be positive", name)
	}
	if cfg.Microstepping <= 0 {
		cfg.Microstepping = 1
	}
	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	for _, pin := range []int{cfg.StepPin, cfg.DirPin} {
		if err := g.SetupPin(pin, gpio.Output); err != nil {
			return nil, fmt.Errorf("stepper %s: %w", name, err)
		}
	}
	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("stepper %s enable pin: %w", name, err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.High); err != nil {
			return nil, fmt.Errorf("stepper %s enable pin: %w", name, err)
		}
	}

	s := &Stepper{
		gpio:         g,
		cfg:          cfg,
		name:         name,
		delay:        delay,
		stepsPerTurn: cfg.StepsPerRev * cfg.Microstepping,
		wake:         make(chan struct{}, 1),
	}
	debug.Info("Stepper %s on pins step=%d dir=%d (%d steps/turn)", name, cfg.StepPin, cfg.DirPin, s.stepsPerTurn)
	return s, nil
}

// StepsFor converts an angle in tenths of a degree to a motor position.
func StepsFor(angle, stepsPerTurn int) int {
	return int(math.Round(float64(angle) * float64(stepsPerTurn) / 3600))
}

// Drive sets the target angle within the travel [limitMin, limitMax]. The
// limits arrive normalized; limitMin > limitMax means the travel wraps.
func (s *Stepper) Drive(angle, limitMin, limitMax int) {
	target := StepsFor(TravelAngle(angle, limitMin, limitMax), s.stepsPerTurn)

	s.mu.Lock()
	changed := target != s.target
	s.target = target
	s.mu.Unlock()

	if changed {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// TravelAngle returns angle measured along the travel from limitMin, in the
// range [limitMin, limitMin+span]. An angle past the end of the travel is
// clamped to the nearer limit. A zero span is a full turn.
func TravelAngle(angle, limitMin, limitMax int) int {
	lo := motion.NormalizeTenths(limitMin)
	span := wrapPositive(limitMax - limitMin)
	offset := wrapPositive(angle - lo)
	if span != 0 && offset > span {
		if offset-span <= 3600-offset {
			offset = span
		} else {
			offset = 0
		}
	}
	return lo + offset
}

func wrapPositive(tenths int) int {
	tenths %= 3600
	if tenths < 0 {
		tenths += 3600
	}
	return tenths
}

// Run moves the motor towards the latest target until ctx is done.
func (s *Stepper) Run(ctx context.Context) error {
	dir := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		s.mu.Lock()
		delta := s.target - s.position
		s.mu.Unlock()

		if delta == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-s.wake:
			}
			continue
		}

		step, level := 1, gpio.High
		if delta < 0 {
			step, level = -1, gpio.Low
		}
		if step != dir {
			if err := s.gpio.WritePin(s.cfg.DirPin, level); err != nil {
				return fmt.Errorf("stepper %s: %w", s.name, err)
			}
			dir = step
		}
		if err := s.stepPulse(); err != nil {
			return fmt.Errorf("stepper %s: %w", s.name, err)
		}

		s.mu.Lock()
		s.position += step
		s.mu.Unlock()
	}
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Position returns the current motor position in steps.
func (s *Stepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Target returns the position Run is moving to, in steps.
func (s *Stepper) Target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel, no holding torque.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	debug.Verbose("Stepper %s disabled", s.name)
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
