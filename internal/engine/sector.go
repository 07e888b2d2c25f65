package engine

import "github.com/piwi3910/GantryGuard/internal/model"

// ExtendedRangeSwap is the auto-sequencing code that engages the extended
// rotation range and swaps the rotation sectors.
const ExtendedRangeSwap = "EN"

// Direction is the side from which the gantry approaches the couch.
type Direction int

const (
	DirectionRight Direction = iota
	DirectionLeft
)

func (d Direction) String() string {
	if d == DirectionLeft {
		return "Left"
	}
	return "Right"
}

// ResolveSector returns the rotation sector for a gantry angle. Angles in
// [0, 180] are the right sector and the rest the left sector; code "EN"
// swaps the two. Other codes (NN, NE, EE, empty) leave them as they are.
func ResolveSector(gantryAngle float64, extendedRangeCode string) model.Sector {
	g := NormalizeAngle(gantryAngle)
	right := g >= 0 && g <= 180
	if extendedRangeCode == ExtendedRangeSwap {
		right = !right
	}
	return model.Sector{Left: !right, Right: right}
}

// SectorDirection returns the limit direction matching a sector.
func SectorDirection(s model.Sector) Direction {
	if s.Left {
		return DirectionLeft
	}
	return DirectionRight
}

// InCalcRange reports whether a couch rotation is close enough to 0 degrees
// for the geometric model, i.e. within [-max, +max] modulo 360.
func InCalcRange(couchRotation, max float64) bool {
	r := NormalizeAngle(couchRotation)
	return r <= max || r >= 360-max
}

// ExceedsWarningRotation reports whether a couch rotation lies strictly
// inside (max, 360-max).
func ExceedsWarningRotation(couchRotation, max float64) bool {
	r := NormalizeAngle(couchRotation)
	return r > max && r < 360-max
}
