package mount

import "errors"

var (
	// ErrInvalidCalibration reports a manual channel whose raw range has zero width.
	ErrInvalidCalibration = errors.New("invalid channel calibration")

	// ErrInvalidAngle reports a computed orientation that is not finite or is
	// too large to drive. The affected axis holds its previous output.
	ErrInvalidAngle = errors.New("invalid computed angle")

	// ErrUnknownMode reports a mode value outside the known set. It is benign:
	// the mount holds its last output.
	ErrUnknownMode = errors.New("unknown mount mode")

	// ErrMissionUnsupported is returned by the mission-level configure and
	// control entry points, which carry no defined semantics yet.
	ErrMissionUnsupported = errors.New("mission mount command not supported")
)
