package gpio

import (
	"github.com/cjeanneret/MountGo/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates how a GPIO is used.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	// SetupPWM switches pin to hardware PWM with the given clock
	// frequency in Hz.
	SetupPWM(pin int, freq int) error
	// WritePWM sets the pulse to duty ticks out of cycle ticks.
	WritePWM(pin int, duty, cycle uint32) error
	Close() error
}

// pwmCapable lists the Raspberry Pi pins wired to a hardware PWM channel.
var pwmCapable = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// SupportsPWM reports whether pin can drive a servo.
func SupportsPWM(pin int) bool {
	return pwmCapable[pin]
}

// MockDriver is a test implementation that simply logs actions.
// Used for development on PC or testing.
type MockDriver struct{}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) SetupPWM(pin int, freq int) error {
	debug.GPIO("SetupPWM", pin, freq)
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.GPIO("WritePWM", pin, debug.Fmt("%d/%d", duty, cycle))
	return nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
