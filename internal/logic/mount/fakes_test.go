package mount

import (
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
)

// fakeAttitude is a fixed attitude estimate.
type fakeAttitude struct {
	roll, pitch, yaw float64 // radians
	unavailable      bool
}

func (f *fakeAttitude) Rotation() (geometry.Matrix3, bool) {
	if f.unavailable {
		return geometry.Matrix3{}, false
	}
	return geometry.FromEuler(f.roll, f.pitch, f.yaw), true
}

func (f *fakeAttitude) Roll() float64  { return f.roll }
func (f *fakeAttitude) Pitch() float64 { return f.pitch }

// fakePosition is a fixed GPS fix.
type fakePosition struct {
	loc   geometry.Location
	noFix bool
}

func (f *fakePosition) Position() (geometry.Location, bool) {
	return f.loc, !f.noFix
}

type fakeChannel struct {
	raw int
	cal Calibration
}

func (c fakeChannel) RawValue() int            { return c.raw }
func (c fakeChannel) Calibration() Calibration { return c.cal }

// fakeBank maps 1-based indexes to channels.
type fakeBank map[int]fakeChannel

func (b fakeBank) Channel(index int) (ManualChannel, bool) {
	ch, ok := b[index]
	return ch, ok
}

// recordingStore records saved set-points.
type recordingStore struct {
	saved map[string]Angles
	err   error
}

func (s *recordingStore) SaveSetpoint(name string, a Angles) error {
	if s.err != nil {
		return s.err
	}
	if s.saved == nil {
		s.saved = make(map[string]Angles)
	}
	s.saved[name] = a
	return nil
}

// recordingActuator records the last Drive call.
type recordingActuator struct {
	calls              int
	angle              int
	limitMin, limitMax int
}

func (r *recordingActuator) Drive(angle, limitMin, limitMax int) {
	r.calls++
	r.angle, r.limitMin, r.limitMax = angle, limitMin, limitMax
}
