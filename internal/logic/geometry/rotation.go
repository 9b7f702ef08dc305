package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// Matrix3 is a 3x3 rotation matrix stored as three row vectors.
// As an attitude it rotates body-frame vectors into the Earth frame
// (north, east, down).
type Matrix3 struct {
	A, B, C r3.Vector
}

// Identity returns the identity rotation.
func Identity() Matrix3 {
	return Matrix3{
		A: r3.Vector{X: 1},
		B: r3.Vector{Y: 1},
		C: r3.Vector{Z: 1},
	}
}

// FromEuler builds the rotation for 3-2-1 (yaw, pitch, roll) Euler angles in radians.
func FromEuler(roll, pitch, yaw float64) Matrix3 {
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cr, sr := math.Cos(roll), math.Sin(roll)
	cy, sy := math.Cos(yaw), math.Sin(yaw)

	return Matrix3{
		A: r3.Vector{X: cp * cy, Y: sr*sp*cy - cr*sy, Z: cr*sp*cy + sr*sy},
		B: r3.Vector{X: cp * sy, Y: sr*sp*sy + cr*cy, Z: cr*sp*sy - sr*cy},
		C: r3.Vector{X: -sp, Y: sr * cp, Z: cr * cp},
	}
}

// Euler decomposes the rotation back into roll, pitch and yaw (radians).
// Pitch is limited to [-pi/2, pi/2]; roll and yaw are in (-pi, pi].
func (m Matrix3) Euler() (roll, pitch, yaw float64) {
	pitch = -safeAsin(m.C.X)
	roll = math.Atan2(m.C.Y, m.C.Z)
	yaw = math.Atan2(m.B.X, m.A.X)
	return roll, pitch, yaw
}

// Transpose returns the transposed matrix, which is the inverse of a rotation.
func (m Matrix3) Transpose() Matrix3 {
	return Matrix3{
		A: r3.Vector{X: m.A.X, Y: m.B.X, Z: m.C.X},
		B: r3.Vector{X: m.A.Y, Y: m.B.Y, Z: m.C.Y},
		C: r3.Vector{X: m.A.Z, Y: m.B.Z, Z: m.C.Z},
	}
}

// Mul returns the matrix product m * n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	row := func(r r3.Vector) r3.Vector {
		return n.A.Mul(r.X).Add(n.B.Mul(r.Y)).Add(n.C.Mul(r.Z))
	}
	return Matrix3{A: row(m.A), B: row(m.B), C: row(m.C)}
}

// MulVec returns m * v.
func (m Matrix3) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{X: m.A.Dot(v), Y: m.B.Dot(v), Z: m.C.Dot(v)}
}

// safeAsin clamps the input into asin's domain; NaN maps to zero.
func safeAsin(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.Pi / 2
	case v <= -1:
		return -math.Pi / 2
	}
	return math.Asin(v)
}
