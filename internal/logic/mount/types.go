package mount

import (
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
)

// Angles is a roll/tilt/pan triple. Units depend on context: set-points and
// computed orientations are in degrees, desired orientations in radians.
type Angles struct {
	Roll float64 `json:"roll" yaml:"roll"`
	Tilt float64 `json:"tilt" yaml:"tilt"`
	Pan  float64 `json:"pan" yaml:"pan"`
}

// At returns the angle of one axis.
func (a Angles) At(axis motion.Axis) float64 {
	switch axis {
	case motion.Roll:
		return a.Roll
	case motion.Tilt:
		return a.Tilt
	default:
		return a.Pan
	}
}

func (a *Angles) set(axis motion.Axis, v float64) {
	switch axis {
	case motion.Roll:
		a.Roll = v
	case motion.Tilt:
		a.Tilt = v
	default:
		a.Pan = v
	}
}

// Radians converts a triple in degrees to radians.
func (a Angles) Radians() Angles {
	return Angles{Roll: geometry.Radians(a.Roll), Tilt: geometry.Radians(a.Tilt), Pan: geometry.Radians(a.Pan)}
}

// Degrees converts a triple in radians to degrees.
func (a Angles) Degrees() Angles {
	return Angles{Roll: geometry.Degrees(a.Roll), Tilt: geometry.Degrees(a.Tilt), Pan: geometry.Degrees(a.Pan)}
}

// StabFlags selects which axes compensate for the vehicle attitude.
type StabFlags struct {
	Roll bool `json:"roll" yaml:"roll"`
	Tilt bool `json:"tilt" yaml:"tilt"`
	Pan  bool `json:"pan" yaml:"pan"`
}

// Calibration is the raw range of a manual input channel.
type Calibration struct {
	Min      int  `json:"min" yaml:"min"`
	Center   int  `json:"center" yaml:"center"`
	Max      int  `json:"max" yaml:"max"`
	Reversed bool `json:"reversed" yaml:"reversed"`
}

// ManualChannel is one manual (RC) input channel.
type ManualChannel interface {
	RawValue() int
	Calibration() Calibration
}

// ChannelBank holds the manual input channels, indexed from 1.
type ChannelBank interface {
	Channel(index int) (ManualChannel, bool)
}

// AttitudeSource provides the vehicle attitude estimate.
// Rotation returns false while no estimate is available.
type AttitudeSource interface {
	Rotation() (geometry.Matrix3, bool)
	Roll() float64  // radians
	Pitch() float64 // radians
}

// PositionSource provides the vehicle position. Position returns false without a fix.
type PositionSource interface {
	Position() (geometry.Location, bool)
}

// Store persists set-points on explicit request.
type Store interface {
	SaveSetpoint(name string, a Angles) error
}

// AxisConfig binds one axis to its manual channel and travel limits.
type AxisConfig struct {
	RCIn   int               // 1-based manual channel index, 0 = no manual control
	Limits motion.AxisLimits // tenths of a degree
}
