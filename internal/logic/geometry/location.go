package geometry

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetersPerLatLonUnit is the length of 1e-7 degree of latitude (or of
// longitude at the equator).
const MetersPerLatLonUnit = 0.01113195

// Location is a GPS fix. Lat and Lon are in 1e-7 degrees, Alt in centimeters.
type Location struct {
	Lat int32 `json:"lat" yaml:"lat"`
	Lon int32 `json:"lon" yaml:"lon"`
	Alt int32 `json:"alt" yaml:"alt"`
}

// OffsetTo returns the vector from l to target in meters (X east, Y north, Z up).
// It uses an equirectangular approximation around the mean latitude, which is
// accurate enough over the distances a vehicle-mounted camera points at.
func (l Location) OffsetTo(target Location) r3.Vector {
	meanLat := (float64(l.Lat) + float64(target.Lat)) * 0.5e-7
	return r3.Vector{
		X: (float64(target.Lon) - float64(l.Lon)) * math.Cos(Radians(meanLat)) * MetersPerLatLonUnit,
		Y: (float64(target.Lat) - float64(l.Lat)) * MetersPerLatLonUnit,
		Z: (float64(target.Alt) - float64(l.Alt)) / 100.0,
	}
}

// TargetAngles returns the Earth-frame roll, tilt and pan (radians) that point
// from the vehicle position at target. Roll is always zero.
func TargetAngles(from, target Location) (roll, tilt, pan float64) {
	v := from.OffsetTo(target)
	horizontal := math.Hypot(v.X, v.Y)
	return 0, math.Atan2(v.Z, horizontal), math.Atan2(v.X, v.Y)
}
