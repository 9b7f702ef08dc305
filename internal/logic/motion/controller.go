package motion

import (
	"fmt"

	"github.com/cjeanneret/MountGo/internal/debug"
)

// Axis identifies one rotation axis of the mount.
type Axis int

const (
	Roll Axis = iota
	Tilt
	Pan
)

// Axes lists every axis in output order.
var Axes = [...]Axis{Roll, Tilt, Pan}

func (a Axis) String() string {
	switch a {
	case Roll:
		return "roll"
	case Tilt:
		return "tilt"
	case Pan:
		return "pan"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Actuator moves one axis of the mount. Angles are in tenths of a degree.
// The limits may change between calls; the actuator applies its own
// physical clamp consistent with them.
type Actuator interface {
	Drive(angle, limitMin, limitMax int)
}

// AxisLimits is the physical travel of an axis in tenths of a degree.
// Min and Max are not required to be ordered or inside [-1800, 1800).
type AxisLimits struct {
	Min int `yaml:"angle_min" json:"angle_min"`
	Max int `yaml:"angle_max" json:"angle_max"`
}

// Normalized returns both limits wrapped into [-1800, 1800).
func (l AxisLimits) Normalized() AxisLimits {
	return AxisLimits{Min: NormalizeTenths(l.Min), Max: NormalizeTenths(l.Max)}
}

// MountKind describes which axes are physically wired.
type MountKind int

const (
	KindUnknown MountKind = iota
	KindPanTilt
	KindTiltRoll
	KindPanTiltRoll
)

func (k MountKind) String() string {
	switch k {
	case KindPanTilt:
		return "pan-tilt"
	case KindTiltRoll:
		return "tilt-roll"
	case KindPanTiltRoll:
		return "pan-tilt-roll"
	default:
		return "unknown"
	}
}

// Controller forwards bounded angles to the actuator bound to each axis.
// It's the layer between the mount logic and the servo drivers.
type Controller struct {
	actuators [len(Axes)]Actuator
}

// NewController binds actuators to axes. A nil actuator means the axis is not wired.
func NewController(roll, tilt, pan Actuator) *Controller {
	return &Controller{actuators: [len(Axes)]Actuator{roll, tilt, pan}}
}

// Wired reports whether an actuator is bound to the axis.
func (c *Controller) Wired(axis Axis) bool {
	return c != nil && axis >= 0 && int(axis) < len(c.actuators) && c.actuators[axis] != nil
}

// Kind infers the mount geometry from the wired axes.
func (c *Controller) Kind() MountKind {
	roll, tilt, pan := c.Wired(Roll), c.Wired(Tilt), c.Wired(Pan)
	switch {
	case roll && tilt && pan:
		return KindPanTiltRoll
	case !roll && tilt && pan:
		return KindPanTilt
	case roll && tilt && !pan:
		return KindTiltRoll
	default:
		return KindUnknown
	}
}

// Move saturates angle to the axis limits and drives the actuator.
// Axes without an actuator are skipped. The saturated angle is returned.
func (c *Controller) Move(axis Axis, angle int, limits AxisLimits) int {
	out := Saturate(angle, limits.Min, limits.Max)
	if !c.Wired(axis) {
		return out
	}
	// limits are re-applied every time because they may change on the fly
	n := limits.Normalized()
	debug.Servo(axis.String(), out, n.Min, n.Max)
	c.actuators[axis].Drive(out, n.Min, n.Max)
	return out
}
