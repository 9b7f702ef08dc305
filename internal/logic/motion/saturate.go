package motion

// Angles handled here are in tenths of a degree.
const (
	halfTurn = 1800
	fullTurn = 3600
)

// NormalizeTenths wraps an angle into [-1800, 1800).
func NormalizeTenths(angle int) int {
	angle %= fullTurn
	if angle >= halfTurn {
		angle -= fullTurn
	} else if angle < -halfTurn {
		angle += fullTurn
	}
	return angle
}

// Saturate returns angle if it lies inside the travel range [limitMin, limitMax],
// otherwise the limit that is circularly closest to it.
//
// The angle and both limits are first wrapped into [-1800, 1800). After wrapping
// limitMin may be greater than limitMax: the range then runs from limitMin
// through +/-180 degrees to limitMax. When both limits are equally far away
// limitMin wins.
func Saturate(angle, limitMin, limitMax int) int {
	angle = NormalizeTenths(angle)
	lo := NormalizeTenths(limitMin)
	hi := NormalizeTenths(limitMax)

	var outside bool
	if lo <= hi {
		outside = angle < lo || angle > hi
	} else {
		outside = angle < lo && angle > hi
	}
	if !outside {
		return angle
	}

	// distance going up from angle to lo, and going down from angle to hi
	errMin := lo - angle
	if errMin < 0 {
		errMin += fullTurn
	}
	errMax := angle - hi
	if errMax < 0 {
		errMax += fullTurn
	}
	if errMin <= errMax {
		return lo
	}
	return hi
}
