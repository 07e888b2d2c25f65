package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// CollisionLevel is the three-level outcome of a collision check.
type CollisionLevel int

const (
	LevelNone      CollisionLevel = iota // no risk
	LevelWarning                         // close to a limit or reduced margin
	LevelCollision                       // limit passed with no margin left
)

func (l CollisionLevel) String() string {
	switch l {
	case LevelWarning:
		return "Warning"
	case LevelCollision:
		return "Collision"
	default:
		return "None"
	}
}

// ControlPoint selects the start or end gantry angle of a beam.
type ControlPoint int

const (
	ControlPointStart ControlPoint = iota
	ControlPointEnd
)

// Label returns the short label used in report lines.
func (c ControlPoint) Label() string {
	if c == ControlPointEnd {
		return "End G"
	}
	return "Start G"
}

func (c ControlPoint) String() string {
	if c == ControlPointEnd {
		return "end"
	}
	return "start"
}

// WarningKind distinguishes the two couch warning branches.
type WarningKind int

const (
	WarningNone WarningKind = iota
	// WarningApproaching: gantry inside the angle band before the limit.
	WarningApproaching
	// WarningReducedMargin: limit passed, margin within the distance safety margin.
	WarningReducedMargin
)

func (w WarningKind) String() string {
	switch w {
	case WarningApproaching:
		return "approaching"
	case WarningReducedMargin:
		return "reduced margin"
	default:
		return ""
	}
}

// Sector is the rotational sector the gantry approaches the couch from.
type Sector struct {
	Left  bool
	Right bool
}

func (s Sector) String() string {
	if s.Left {
		return "Left"
	}
	return "Right"
}

// CollisionResult is the outcome of one channel (patient or couch) at one
// control point. Limit and Margin are NaN when undefined. Margin is in
// degrees for the patient channel and mm for the couch channel.
type CollisionResult struct {
	Limit       float64
	Margin      float64
	Level       CollisionLevel
	Kind        WarningKind
	GantryAngle float64
}

type collisionResultJSON struct {
	Limit       *float64 `json:"limit"`
	Margin      *float64 `json:"margin"`
	Level       string   `json:"level"`
	Kind        string   `json:"warning_kind,omitempty"`
	GantryAngle float64  `json:"gantry_angle"`
}

// MarshalJSON encodes NaN limits and margins as null.
func (r CollisionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(collisionResultJSON{
		Limit:       finiteOrNil(r.Limit),
		Margin:      finiteOrNil(r.Margin),
		Level:       r.Level.String(),
		Kind:        r.Kind.String(),
		GantryAngle: r.GantryAngle,
	})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// BeamCollisionResult holds both channels for one beam control point.
type BeamCollisionResult struct {
	BeamID       string          `json:"beam_id"`
	MachineID    string          `json:"machine_id"`
	ControlPoint ControlPoint    `json:"-"`
	Label        string          `json:"control_point"`
	Sector       string          `json:"sector"`
	TH           float64         `json:"th"` // couch to isocenter vertical separation, mm
	Patient      CollisionResult `json:"patient"`
	Couch        CollisionResult `json:"couch"`
}

// BeamFailure records a beam whose evaluation failed.
type BeamFailure struct {
	BeamID string `json:"beam_id"`
	Reason string `json:"reason"`
}

// PlanCheckReport is the plan-level verdict. It is built by the evaluator
// and aggregator and is not modified afterwards.
type PlanCheckReport struct {
	ID             string    `json:"id"`
	PlanID         string    `json:"plan_id"`
	CreatedAt      time.Time `json:"created_at"`
	CatalogVersion string    `json:"catalog_version"`

	// Evaluated is false when the whole collision check was skipped.
	Evaluated          bool    `json:"evaluated"`
	NotEvaluatedReason string  `json:"not_evaluated_reason,omitempty"`
	CouchVertical      float64 `json:"-"` // mm, NaN when undefined
	CouchVerticalFrom  string  `json:"couch_vertical_source,omitempty"`

	// PatientOK and CouchOK are true when no collision was found.
	PatientOK bool `json:"patient_ok"`
	CouchOK   bool `json:"couch_ok"`

	Results        []BeamCollisionResult `json:"results"`
	OutOfRange     []string              `json:"out_of_range,omitempty"` // beams skipped for couch rotation
	MaxCouchRot    float64               `json:"max_couch_rot_calc"`
	Failures       []BeamFailure         `json:"failures,omitempty"`
	Diagnostics    []string              `json:"diagnostics"`
	SetupWarnings  []string              `json:"setup_warnings,omitempty"`
	EvaluatedBeams int                   `json:"evaluated_beams"`
}

// NewPlanCheckReport returns an empty passing report for the plan.
func NewPlanCheckReport(planID string) PlanCheckReport {
	return PlanCheckReport{
		ID:            uuid.New().String(),
		PlanID:        planID,
		CreatedAt:     time.Now(),
		PatientOK:     true,
		CouchOK:       true,
		CouchVertical: math.NaN(),
	}
}

// MarshalJSON adds the couch vertical position, encoded as null when undefined.
func (r PlanCheckReport) MarshalJSON() ([]byte, error) {
	type plain PlanCheckReport
	return json.Marshal(struct {
		plain
		CouchVertical *float64 `json:"couch_vertical"`
	}{plain(r), finiteOrNil(r.CouchVertical)})
}

// Passed reports whether the plan was evaluated without any collision.
func (r PlanCheckReport) Passed() bool {
	return r.Evaluated && r.PatientOK && r.CouchOK && len(r.Failures) == 0
}

// Verdict returns a one-word summary: PASS, WARN, FAIL or NOT EVALUATED.
func (r PlanCheckReport) Verdict() string {
	switch {
	case !r.Evaluated:
		return "NOT EVALUATED"
	case !r.PatientOK || !r.CouchOK:
		return "FAIL"
	case r.HasWarnings() || len(r.Failures) > 0 || len(r.OutOfRange) > 0:
		return "WARN"
	default:
		return "PASS"
	}
}

// HasWarnings reports whether any channel of any control point is a warning.
func (r PlanCheckReport) HasWarnings() bool {
	for _, res := range r.Results {
		if res.Patient.Level == LevelWarning || res.Couch.Level == LevelWarning {
			return true
		}
	}
	return false
}

// CountLevel returns how many control points hit the given level on
// the patient and couch channel respectively.
func (r PlanCheckReport) CountLevel(level CollisionLevel) (patient, couch int) {
	for _, res := range r.Results {
		if res.Patient.Level == level {
			patient++
		}
		if res.Couch.Level == level {
			couch++
		}
	}
	return patient, couch
}

// Lines returns the full report text: setup warnings first, then the
// collision diagnostics.
func (r PlanCheckReport) Lines() []string {
	out := make([]string, 0, len(r.SetupWarnings)+len(r.Diagnostics))
	out = append(out, r.SetupWarnings...)
	return append(out, r.Diagnostics...)
}
