package mount

import (
	"fmt"

	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/motion"
)

// inputBound caps calibration values and limits so the AngleInput product
// stays well inside int64.
const inputBound = 1 << 30

// AngleInput maps a raw manual channel reading linearly onto [angleMin, angleMax]
// (tenths of a degree). A reversed channel maps its minimum onto angleMax.
// Readings outside the calibrated range are clamped to it.
func AngleInput(raw int, cal Calibration, angleMin, angleMax int) (int, error) {
	for _, v := range []int{cal.Min, cal.Max, angleMin, angleMax} {
		if v > inputBound || v < -inputBound {
			return 0, fmt.Errorf("%w: value %d out of range", ErrInvalidCalibration, v)
		}
	}
	width := cal.Max - cal.Min
	if width == 0 {
		return 0, fmt.Errorf("%w: raw range [%d, %d] has zero width", ErrInvalidCalibration, cal.Min, cal.Max)
	}
	raw = max(min(cal.Min, cal.Max), min(raw, max(cal.Min, cal.Max)))

	sign, base := int64(1), int64(angleMin)
	if cal.Reversed {
		sign, base = -1, int64(angleMax)
	}
	v := sign*int64(raw-cal.Min)*int64(angleMax-angleMin)/int64(width) + base
	return int(v), nil
}

// readManualInput updates the desired angle of every axis bound to a manual
// channel. Axes with a broken calibration keep their previous desired angle.
func (m *Mount) readManualInput(bank ChannelBank) []error {
	if bank == nil {
		return nil
	}
	var errs []error
	for _, axis := range motion.Axes {
		ac := m.axes[axis]
		if ac.RCIn == 0 {
			continue
		}
		ch, ok := bank.Channel(ac.RCIn)
		if !ok || ch == nil {
			continue
		}
		tenths, err := AngleInput(ch.RawValue(), ch.Calibration(), ac.Limits.Min, ac.Limits.Max)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s manual input on channel %d: %w", axis, ac.RCIn, err))
			continue
		}
		m.desired.set(axis, geometry.Radians(float64(tenths)/10.0))
	}
	return errs
}

// pointAtTarget sets the desired orientation towards the GPS target.
// It returns false when the vehicle has no position fix.
func (m *Mount) pointAtTarget() bool {
	if m.position == nil {
		return false
	}
	here, ok := m.position.Position()
	if !ok {
		return false
	}
	roll, tilt, pan := geometry.TargetAngles(here, m.target)
	m.desired = Angles{Roll: roll, Tilt: tilt, Pan: pan}
	return true
}
