package mount

import (
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
)

// Stabilize converts a desired orientation (radians) into the body-relative
// angles (degrees) the servos must reach.
//
// With pan stabilization the full rotation is solved: the desired camera
// rotation in the Earth frame is brought into the body frame by the inverse of
// the vehicle attitude. Roll and tilt then fall back to the raw desired angles
// when their flag is off. Without pan stabilization only the vehicle roll and
// pitch are subtracted, per flag.
//
// Without an attitude estimate the desired angles pass through unchanged.
func Stabilize(desired Angles, att AttitudeSource, flags StabFlags) Angles {
	raw := desired.Degrees()
	if att == nil {
		return raw
	}
	vehicle, ok := att.Rotation()
	if !ok {
		return raw
	}

	if flags.Pan {
		cam := geometry.FromEuler(desired.Roll, desired.Tilt, desired.Pan)
		roll, tilt, pan := vehicle.Transpose().Mul(cam).Euler()
		out := Angles{Roll: roll, Tilt: tilt, Pan: pan}.Degrees()
		if !flags.Roll {
			out.Roll = raw.Roll
		}
		if !flags.Tilt {
			out.Tilt = raw.Tilt
		}
		return out
	}

	out := raw
	if flags.Roll {
		out.Roll -= geometry.Degrees(att.Roll())
	}
	if flags.Tilt {
		out.Tilt -= geometry.Degrees(att.Pitch())
	}
	return out
}
