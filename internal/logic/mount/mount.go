package mount

import (
	"errors"
	"fmt"
	"math"

	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
)

// Config is the persisted mount configuration.
type Config struct {
	Mode    Mode
	Retract Angles // degrees
	Neutral Angles // degrees
	Control Angles // degrees
	Stab    StabFlags
	Axes    [3]AxisConfig // indexed by motion.Axis
}

// DefaultConfig returns a retracted mount with zero set-points, no manual
// channels and +/-45 degree travel on every axis.
func DefaultConfig() Config {
	limits := motion.AxisLimits{Min: -450, Max: 450}
	return Config{
		Mode: ModeRetract,
		Axes: [3]AxisConfig{{Limits: limits}, {Limits: limits}, {Limits: limits}},
	}
}

// Mount is the mode state machine of a stabilized camera mount.
//
// It is not safe for concurrent use: the cycle tick and every command must be
// serialized by the owner.
type Mount struct {
	mode    Mode
	retract Angles
	neutral Angles
	control Angles
	stab    StabFlags
	axes    [3]AxisConfig
	target  geometry.Location

	desired Angles // radians, Earth or body frame depending on mode
	angles  Angles // degrees, last computed body-relative orientation

	servos   *motion.Controller
	attitude AttitudeSource
	position PositionSource
	store    Store
}

// New creates a mount. Any collaborator may be nil: a nil attitude or position
// source disables stabilization or GPS pointing, a nil store disables
// persistence and a nil controller drives nothing.
func New(cfg Config, servos *motion.Controller, att AttitudeSource, pos PositionSource, store Store) *Mount {
	return &Mount{
		mode:     cfg.Mode,
		retract:  cfg.Retract,
		neutral:  cfg.Neutral,
		control:  cfg.Control,
		stab:     cfg.Stab,
		axes:     cfg.Axes,
		servos:   servos,
		attitude: att,
		position: pos,
		store:    store,
	}
}

// SetMode switches the operating mode. No validation is done; mode-specific
// work happens on the next UpdatePosition.
func (m *Mount) SetMode(mode Mode) {
	if mode != m.mode {
		debug.Mode(m.mode.String(), mode.String())
	}
	m.mode = mode
}

// Mode returns the current operating mode.
func (m *Mount) Mode() Mode { return m.mode }

// SetRetractAngles sets the retract set-point in degrees.
func (m *Mount) SetRetractAngles(roll, tilt, pan float64) {
	m.retract = Angles{Roll: roll, Tilt: tilt, Pan: pan}
}

// SetNeutralAngles sets the neutral set-point in degrees.
func (m *Mount) SetNeutralAngles(roll, tilt, pan float64) {
	m.neutral = Angles{Roll: roll, Tilt: tilt, Pan: pan}
}

// SetControlAngles sets the externally commanded set-point in degrees.
func (m *Mount) SetControlAngles(roll, tilt, pan float64) {
	m.control = Angles{Roll: roll, Tilt: tilt, Pan: pan}
}

// SetGPSTarget sets the location tracked in GPS point mode.
func (m *Mount) SetGPSTarget(loc geometry.Location) {
	m.target = loc
}

// GPSTarget returns the tracked location.
func (m *Mount) GPSTarget() geometry.Location { return m.target }

// SetStabilization sets the per-axis stabilization flags.
func (m *Mount) SetStabilization(flags StabFlags) {
	m.stab = flags
}

// Stabilization returns the per-axis stabilization flags.
func (m *Mount) Stabilization() StabFlags { return m.stab }

// SetAxis replaces the manual channel binding and limits of one axis.
func (m *Mount) SetAxis(axis motion.Axis, ac AxisConfig) {
	m.axes[axis] = ac
}

// Axis returns the manual channel binding and limits of one axis.
func (m *Mount) Axis(axis motion.Axis) AxisConfig { return m.axes[axis] }

// Setpoints returns the retract, neutral and control set-points.
func (m *Mount) Setpoints() (retract, neutral, control Angles) {
	return m.retract, m.neutral, m.control
}

// Orientation returns the last computed body-relative orientation in degrees.
func (m *Mount) Orientation() Angles { return m.angles }

// Kind reports the mount geometry inferred from the wired servos.
func (m *Mount) Kind() motion.MountKind { return m.servos.Kind() }

// UpdatePosition runs one control cycle: it resolves the target orientation
// for the active mode, stabilizes it, then drives each servo within its limits.
//
// The returned error is informational. Every failure holds the previous
// output for the affected axis and the servos are driven regardless.
func (m *Mount) UpdatePosition(bank ChannelBank) error {
	var errs []error
	prev := m.angles

	switch m.mode {
	case ModeRetract:
		m.angles = m.retract
	case ModeNeutral:
		m.angles = m.neutral
	case ModeMavlinkTargeting:
		m.desired = m.control.Radians()
		m.angles = Stabilize(m.desired, m.attitude, m.stab)
	case ModeRCTargeting:
		errs = append(errs, m.readManualInput(bank)...)
		m.angles = Stabilize(m.desired, m.attitude, m.stab)
	case ModeGPSPoint:
		if m.pointAtTarget() {
			m.angles = Stabilize(m.desired, m.attitude, m.stab)
		} else {
			debug.Verbose("No position fix, holding orientation")
		}
	default:
		errs = append(errs, fmt.Errorf("update mount position: %w %d", ErrUnknownMode, int(m.mode)))
	}

	errs = append(errs, m.holdInvalid(prev)...)
	debug.Angles("Computed orientation", m.angles.Roll, m.angles.Tilt, m.angles.Pan)
	m.drive()
	return errors.Join(errs...)
}

// maxOutputDegrees bounds a computed angle before it is converted to tenths.
const maxOutputDegrees = 1e6

// holdInvalid puts back the previous output of every axis whose computed angle
// is NaN, infinite or beyond maxOutputDegrees.
func (m *Mount) holdInvalid(prev Angles) []error {
	var errs []error
	for _, axis := range motion.Axes {
		v := m.angles.At(axis)
		if math.IsNaN(v) || math.Abs(v) > maxOutputDegrees {
			errs = append(errs, fmt.Errorf("%w: %s = %g", ErrInvalidAngle, axis, v))
			m.angles.set(axis, prev.At(axis))
		}
	}
	return errs
}

func (m *Mount) drive() {
	for _, axis := range motion.Axes {
		tenths := int(math.Round(m.angles.At(axis) * 10))
		m.servos.Move(axis, tenths, m.axes[axis].Limits)
	}
}
