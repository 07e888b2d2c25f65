package engine

import (
	"fmt"
	"math"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// Patient model constants. The patient channel is only modelled for
// isocenters more than patientLateralThreshold mm off the couch centerline.
const (
	patientLateralThreshold = 70.0
	patientHalfWidth        = 260.0 // mm
	patientRightMinGantry   = 35.0  // degrees
	patientLeftMaxGantry    = 325.0 // degrees
	patientWarningBand      = 2.0   // degrees
)

// Couch limit angle bounds in degrees.
const (
	couchLeftBase  = 215.0
	couchLeftCap   = 260.0
	couchRightBase = 145.0
	couchRightMin  = 100.0
)

// rotationGrowth is the extra width in mm per unit tan(couch rotation).
const rotationGrowth = 40.0

// rotationWidth widens a lateral dimension for a rotated couch.
func rotationWidth(w, couchRotation float64) float64 {
	rot := degToRad(couchRotation)
	return w/math.Cos(rot) + rotationGrowth*math.Abs(math.Tan(rot))
}

// PatientCollisionLimit computes the gantry angle at which the gantry head
// reaches a laterally shifted patient and classifies the current angle.
// Limit and Margin (degrees) stay NaN when the case is not modelled.
func PatientCollisionLimit(iso model.Vector3, th, couchRotation, gantryAngle float64, s model.Sector) model.CollisionResult {
	res := model.CollisionResult{
		Limit:       math.NaN(),
		Margin:      math.NaN(),
		Level:       model.LevelNone,
		GantryAngle: gantryAngle,
	}

	a := patientHalfWidth + math.Abs(iso.X)
	aDif := rotationWidth(a, couchRotation) - a

	switch {
	case iso.X < -patientLateralThreshold:
		if s.Right && gantryAngle > patientRightMinGantry {
			res.Limit = (565 + th*0.65 + (iso.X-aDif)*1.1) / 10
			res.Margin = res.Limit - gantryAngle
		}
	case iso.X > patientLateralThreshold:
		if s.Left && gantryAngle < patientLeftMaxGantry {
			res.Limit = (3600 - (565 + th*0.65 - (iso.X+aDif)*1.1)) / 10
			res.Margin = gantryAngle - res.Limit
		}
	}

	if math.IsNaN(res.Margin) {
		return res
	}
	if res.Margin <= 0 {
		res.Level = model.LevelCollision
		return res
	}
	approaching := (s.Right && gantryAngle > res.Limit-patientWarningBand && gantryAngle < res.Limit) ||
		(s.Left && gantryAngle < res.Limit+patientWarningBand && gantryAngle > res.Limit)
	if approaching {
		res.Level = model.LevelWarning
		res.Kind = model.WarningApproaching
	}
	return res
}

// CouchCollisionLimit returns the gantry angle at which the gantry body
// first reaches the couch edge when approaching from dir. The envelope is
// the catalog reference envelope. Right limits stay within [100, 145] and
// left limits within [215, 260].
func CouchCollisionLimit(env model.CollisionEnvelope, th, isoX float64, dir Direction) float64 {
	height := th + float64(env.A)
	if dir == DirectionLeft {
		alpha := radToDeg(math.Atan((float64(env.B) + isoX) / height))
		return clamp(couchLeftBase+alpha, couchLeftBase, couchLeftCap)
	}
	alpha := radToDeg(math.Atan((float64(env.B) - isoX) / height))
	return clamp(couchRightBase-alpha, couchRightMin, couchRightBase)
}

// CouchLimits holds the couch limit angle for both approach directions.
type CouchLimits struct {
	Left  float64
	Right float64
}

// CouchCollisionLimits computes both directional couch limits.
func CouchCollisionLimits(env model.CollisionEnvelope, th, isoX float64) CouchLimits {
	return CouchLimits{
		Left:  CouchCollisionLimit(env, th, isoX, DirectionLeft),
		Right: CouchCollisionLimit(env, th, isoX, DirectionRight),
	}
}

// For returns the limit that applies to the given sector.
func (l CouchLimits) For(s model.Sector) float64 {
	if s.Left {
		return l.Left
	}
	return l.Right
}

// CouchCollisionMargin returns the clearance in mm between the gantry
// collision-free radius and the couch corner, using the machine's own
// envelopes. The smallest clearance over all envelopes wins; negative means
// intrusion.
func CouchCollisionMargin(def model.MachineDefinition, region model.CouchRegion, couchRotation, th float64, iso model.Vector3, s model.Sector) (float64, error) {
	want := def.CouchType.EnvelopeCount()
	if want == 0 {
		return math.NaN(), &model.UnsupportedCouchTypeError{MachineID: def.ID, CouchType: def.CouchType}
	}
	if len(region.Envelopes) != want {
		return math.NaN(), fmt.Errorf("couch region %q of %s has %d envelopes, want %d",
			region.Name, def.ID, len(region.Envelopes), want)
	}

	margin := math.Inf(1)
	for _, env := range region.Envelopes {
		b := float64(env.B)
		if s.Left {
			b += iso.X
		} else {
			b -= iso.X
		}
		b = rotationWidth(b, couchRotation)
		d := math.Hypot(float64(env.A)+th, b)
		margin = math.Min(margin, float64(env.R)-d)
	}
	return margin, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
