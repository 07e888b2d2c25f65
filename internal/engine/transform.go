// Package engine implements the gantry collision model: isocenter
// correction, rotation sectors, limit angles, classification and the
// plan-level evaluator.
package engine

import (
	"math"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// CorrectIsocenter maps a DICOM-frame isocenter into the patient-orientation
// corrected frame used by the distance formulas.
func CorrectIsocenter(raw model.Vector3, o model.PatientOrientation) (model.Vector3, error) {
	x, y, z := raw.X, raw.Y, raw.Z
	switch o {
	case model.HeadFirstSupine:
		return model.Vector3{X: x, Y: y, Z: z}, nil
	case model.HeadFirstProne:
		return model.Vector3{X: -x, Y: -y, Z: z}, nil
	case model.HeadFirstDecubitusRight:
		return model.Vector3{X: y, Y: -x, Z: z}, nil
	case model.HeadFirstDecubitusLeft:
		return model.Vector3{X: -y, Y: x, Z: z}, nil
	case model.FeetFirstSupine:
		return model.Vector3{X: -x, Y: y, Z: -z}, nil
	case model.FeetFirstProne:
		return model.Vector3{X: x, Y: -y, Z: -z}, nil
	case model.FeetFirstDecubitusRight:
		return model.Vector3{X: -y, Y: -x, Z: -z}, nil
	case model.FeetFirstDecubitusLeft:
		return model.Vector3{X: y, Y: x, Z: -z}, nil
	default:
		return raw, &model.UnsupportedOrientationError{Orientation: o}
	}
}

// VerticalSeparation returns TH, the couch top height relative to the
// isocenter in mm.
func VerticalSeparation(couchVertPosition float64, iso model.Vector3) float64 {
	return couchVertPosition - iso.Y
}

// Geometry builds the corrected beam geometry for one beam.
func Geometry(b model.Beam, o model.PatientOrientation) (model.BeamGeometry, error) {
	iso, err := CorrectIsocenter(b.Isocenter, o)
	if err != nil {
		return model.BeamGeometry{}, err
	}
	return model.BeamGeometry{
		BeamID:        b.ID,
		Isocenter:     iso,
		GantryStart:   NormalizeAngle(b.GantryStart),
		GantryEnd:     NormalizeAngle(b.GantryEnd),
		CouchRotation: b.CouchRotation,
		Technique:     b.Technique,
	}, nil
}

// NormalizeAngle maps an angle in degrees onto [0, 360).
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	// -1e-15 mod 360 lands on 360 after the shift
	if a >= 360 {
		a = 0
	}
	return a
}

func degToRad(deg float64) float64 { return deg * math.Pi / 180 }

func radToDeg(rad float64) float64 { return rad * 180 / math.Pi }
