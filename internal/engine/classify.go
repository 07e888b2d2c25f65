package engine

import (
	"math"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// ClassifyCouch turns a gantry angle, the directional couch limits and the
// couch margin into a couch-channel result.
//
// With L the limit of the gantry's sector and gA the gantry-angle safety
// margin, on the right sector (mirrored for the left):
//
//	angle <  L-gA                      None
//	L-gA <= angle < L                  Warning (approaching)
//	angle >= L, margin <= 0            Collision
//	angle >= L, 0 < margin <= dist     Warning (reduced margin)
//	angle >= L, margin > dist          None
func ClassifyCouch(gantryAngle float64, s model.Sector, limits CouchLimits, margin float64, cfg model.SafetyConfig) model.CollisionResult {
	limit := limits.For(s)
	res := model.CollisionResult{
		Limit:       limit,
		Margin:      margin,
		Level:       model.LevelNone,
		GantryAngle: gantryAngle,
	}
	if math.IsNaN(limit) || math.IsNaN(margin) {
		return res
	}

	gA := cfg.SafetyMarginGantryAngle
	var beforeBand, inBand bool
	if s.Left {
		beforeBand = gantryAngle > limit+gA
		inBand = gantryAngle > limit
	} else {
		beforeBand = gantryAngle < limit-gA
		inBand = gantryAngle < limit
	}

	switch {
	case beforeBand:
	case inBand:
		res.Level = model.LevelWarning
		res.Kind = model.WarningApproaching
	case margin <= 0:
		res.Level = model.LevelCollision
	case margin <= cfg.SafetyMarginDistance:
		res.Level = model.LevelWarning
		res.Kind = model.WarningReducedMargin
	}
	return res
}
