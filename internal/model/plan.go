package model

import (
	"fmt"
	"math"
	"strings"
)

// Vector3 is a position in mm.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PatientOrientation is the treatment orientation recorded on a plan.
type PatientOrientation int

const (
	NoOrientation PatientOrientation = iota
	HeadFirstSupine
	HeadFirstProne
	HeadFirstDecubitusRight
	HeadFirstDecubitusLeft
	FeetFirstSupine
	FeetFirstProne
	FeetFirstDecubitusRight
	FeetFirstDecubitusLeft
	Sitting
)

var orientationCodes = []struct {
	o     PatientOrientation
	code  string
	names []string
}{
	{HeadFirstSupine, "HFS", []string{"HeadFirstSupine"}},
	{HeadFirstProne, "HFP", []string{"HeadFirstProne"}},
	{HeadFirstDecubitusRight, "HFDR", []string{"HeadFirstDecubitusRight"}},
	{HeadFirstDecubitusLeft, "HFDL", []string{"HeadFirstDecubitusLeft"}},
	{FeetFirstSupine, "FFS", []string{"FeetFirstSupine"}},
	{FeetFirstProne, "FFP", []string{"FeetFirstProne"}},
	{FeetFirstDecubitusRight, "FFDR", []string{"FeetFirstDecubitusRight"}},
	{FeetFirstDecubitusLeft, "FFDL", []string{"FeetFirstDecubitusLeft"}},
	{Sitting, "SITTING", []string{"Sitting"}},
	{NoOrientation, "NONE", []string{"NoOrientation", ""}},
}

// String returns the DICOM-style code, e.g. "HFS".
func (o PatientOrientation) String() string {
	for _, c := range orientationCodes {
		if c.o == o {
			return c.code
		}
	}
	return fmt.Sprintf("PatientOrientation(%d)", int(o))
}

// ParseOrientation accepts DICOM codes (HFS, FFDL, ...) and the long TPS
// names (HeadFirstSupine, ...), case-insensitively.
func ParseOrientation(s string) (PatientOrientation, error) {
	s = strings.TrimSpace(s)
	for _, c := range orientationCodes {
		if strings.EqualFold(s, c.code) {
			return c.o, nil
		}
		for _, n := range c.names {
			if strings.EqualFold(s, n) {
				return c.o, nil
			}
		}
	}
	return NoOrientation, fmt.Errorf("unknown patient orientation %q", s)
}

func (o PatientOrientation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *PatientOrientation) UnmarshalText(text []byte) error {
	v, err := ParseOrientation(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Technique is the gantry delivery technique of a beam.
type Technique int

const (
	TechniqueStatic Technique = iota
	TechniqueArc
)

func (t Technique) String() string {
	if t == TechniqueArc {
		return "ARC"
	}
	return "STATIC"
}

// ParseTechnique maps TPS technique ids onto Static or Arc. Rotational
// deliveries (ARC, VMAT, conformal arcs) are Arc; everything else is Static.
func ParseTechnique(s string) Technique {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ARC", "VMAT", "DYNAMIC ARC", "CONFORMAL ARC", "SRS ARC":
		return TechniqueArc
	default:
		return TechniqueStatic
	}
}

func (t Technique) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Technique) UnmarshalText(text []byte) error {
	*t = ParseTechnique(string(text))
	return nil
}

// Beam is one treatment field as exported from the TPS.
type Beam struct {
	ID            string    `json:"id"`
	MachineID     string    `json:"machine_id"`
	Technique     Technique `json:"technique"`
	GantryStart   float64   `json:"gantry_start"`             // degrees
	GantryEnd     float64   `json:"gantry_end"`               // degrees, arcs only
	CouchRotation float64   `json:"couch_rotation"`           // patient support angle, degrees
	Isocenter     Vector3   `json:"isocenter"`                // DICOM frame, mm
	ExtendedRange string    `json:"extended_range,omitempty"` // auto-sequencing code when known inline
}

// Structure is a contoured structure of the plan's structure set.
type Structure struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DicomType  string   `json:"dicom_type"`
	CenterY    float64  `json:"center_y"`              // mm, DICOM frame
	AssignedHU *float64 `json:"assigned_hu,omitempty"` // nil when no HU override is assigned
}

// SupportDicomType marks couch structures in a structure set.
const SupportDicomType = "SUPPORT"

// IsCouch reports whether the structure is an inserted couch structure.
func (s Structure) IsCouch() bool {
	return s.DicomType == SupportDicomType
}

// Plan is the read-only view of a treatment plan consumed by the checks.
type Plan struct {
	ID          string             `json:"id"`
	UID         string             `json:"uid"`
	PatientID   string             `json:"patient_id,omitempty"`
	Orientation PatientOrientation `json:"orientation"`
	CTSeriesUID string             `json:"ct_series_uid,omitempty"`
	Beams       []Beam             `json:"beams"`
	Structures  []Structure        `json:"structures,omitempty"`
}

// CouchStructure returns the first inserted couch structure, if any.
func (p Plan) CouchStructure() (Structure, bool) {
	for _, s := range p.Structures {
		if s.IsCouch() {
			return s, true
		}
	}
	return Structure{}, false
}

// CouchStructures returns every inserted couch structure.
func (p Plan) CouchStructures() []Structure {
	var out []Structure
	for _, s := range p.Structures {
		if s.IsCouch() {
			out = append(out, s)
		}
	}
	return out
}

// CouchRegionName returns the name of the inserted couch structure, or ""
// when no couch is inserted.
func (p Plan) CouchRegionName() string {
	s, ok := p.CouchStructure()
	if !ok {
		return ""
	}
	return s.Name
}

// PrimaryMachine returns the machine of the first beam.
func (p Plan) PrimaryMachine() string {
	if len(p.Beams) == 0 {
		return ""
	}
	return p.Beams[0].MachineID
}

// Validate checks the fields the collision model depends on.
func (p Plan) Validate() error {
	if len(p.Beams) == 0 {
		return fmt.Errorf("plan %q has no beams", p.ID)
	}
	seen := make(map[string]bool, len(p.Beams))
	for i, b := range p.Beams {
		if b.ID == "" {
			return fmt.Errorf("beam %d has no id", i+1)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate beam id %q", b.ID)
		}
		seen[b.ID] = true
		for _, v := range []float64{b.GantryStart, b.GantryEnd, b.CouchRotation, b.Isocenter.X, b.Isocenter.Y, b.Isocenter.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("beam %q has a non-finite geometry value", b.ID)
			}
		}
	}
	return nil
}

// BeamGeometry is the orientation-corrected geometry of one beam.
type BeamGeometry struct {
	BeamID        string
	Isocenter     Vector3 // patient-orientation-corrected, mm
	GantryStart   float64 // degrees
	GantryEnd     float64 // degrees
	CouchRotation float64 // degrees
	Technique     Technique
}

// ControlPoints returns the control points to evaluate: start and end for
// arcs, start only for static fields.
func (g BeamGeometry) ControlPoints() []ControlPoint {
	if g.Technique == TechniqueArc {
		return []ControlPoint{ControlPointStart, ControlPointEnd}
	}
	return []ControlPoint{ControlPointStart}
}

// GantryAngle returns the gantry angle at the given control point.
func (g BeamGeometry) GantryAngle(cp ControlPoint) float64 {
	if cp == ControlPointEnd {
		return g.GantryEnd
	}
	return g.GantryStart
}
