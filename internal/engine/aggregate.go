package engine

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// NotEvaluated marks the whole collision check as skipped. The pass/fail
// booleans keep their prior values.
func NotEvaluated(report model.PlanCheckReport, reason string) model.PlanCheckReport {
	report.Evaluated = false
	report.NotEvaluatedReason = reason
	report.Diagnostics = []string{"Collision not evaluated - " + reason + "."}
	return report
}

// Aggregate merges beam outcomes, in order, into the report. PatientOK and
// CouchOK become false only on a Collision level; warnings, skipped beams
// and failed beams never flip them. A failed beam that still carries
// results (couch channel failure) contributes its patient results.
func Aggregate(report model.PlanCheckReport, outcomes []BeamOutcome, cfg model.SafetyConfig) model.PlanCheckReport {
	report.Evaluated = true
	report.Results = nil
	report.OutOfRange = nil
	report.Failures = nil

	for _, o := range outcomes {
		switch {
		case errors.Is(o.Err, ErrCouchRotationOutOfRange):
			report.OutOfRange = append(report.OutOfRange, o.BeamID)
		case o.Err != nil:
			report.Failures = append(report.Failures, model.BeamFailure{BeamID: o.BeamID, Reason: o.Err.Error()})
			report.Results = append(report.Results, o.Results...)
		default:
			report.EvaluatedBeams++
			report.Results = append(report.Results, o.Results...)
		}
	}

	for _, r := range report.Results {
		if r.Patient.Level == model.LevelCollision {
			report.PatientOK = false
		}
		if r.Couch.Level == model.LevelCollision {
			report.CouchOK = false
		}
	}

	report.Diagnostics = FormatCollisionLines(report, cfg)
	return report
}

// FormatCollisionLines renders the collision diagnostics grouped by
// severity, followed by the beams that were not evaluated.
func FormatCollisionLines(report model.PlanCheckReport, cfg model.SafetyConfig) []string {
	if !report.Evaluated {
		return []string{"Collision not evaluated - " + report.NotEvaluatedReason + "."}
	}

	var lines []string
	group := func(title string, match func(model.BeamCollisionResult) bool, line func(model.BeamCollisionResult) string) {
		first := true
		for _, r := range report.Results {
			if !match(r) {
				continue
			}
			if first {
				lines = append(lines, "  - "+title+":")
				first = false
			}
			lines = append(lines, "\t"+r.BeamID+" ("+r.Label+")\t"+line(r))
		}
	}

	patientLimit := func(r model.BeamCollisionResult) string {
		return "Limit: " + round1(r.Patient.Limit) + " deg"
	}
	couchLimit := func(r model.BeamCollisionResult) string {
		return "Limit: " + round1(r.Couch.Limit) + " deg"
	}
	couchMargin := func(r model.BeamCollisionResult) string {
		s := "Margin: " + round1(r.Couch.Margin/10) + " cm"
		if nearLimit(r.Couch, cfg.SafetyMarginGantryAngle) {
			s += "\t(Limit: " + round1(r.Couch.Limit) + " deg)"
		}
		return s
	}

	group("COLLISION with PATIENT", func(r model.BeamCollisionResult) bool {
		return r.Patient.Level == model.LevelCollision
	}, patientLimit)
	group("Gantry close to PATIENT", func(r model.BeamCollisionResult) bool {
		return r.Patient.Level == model.LevelWarning
	}, patientLimit)
	group("COLLISION with couch", func(r model.BeamCollisionResult) bool {
		return r.Couch.Level == model.LevelCollision
	}, couchMargin)
	group("Gantry near couch", func(r model.BeamCollisionResult) bool {
		return r.Couch.Level == model.LevelWarning && r.Couch.Kind == model.WarningApproaching
	}, couchLimit)
	group("Reduced margin to couch", func(r model.BeamCollisionResult) bool {
		return r.Couch.Level == model.LevelWarning && r.Couch.Kind == model.WarningReducedMargin
	}, couchMargin)

	if len(lines) > 0 {
		lines = append([]string{"Collisions:"}, lines...)
	}

	if len(report.OutOfRange) > 0 {
		lines = append(lines, fmt.Sprintf("Collision not evaluated (Couch Rotation > %s degrees):", strconv.FormatFloat(report.MaxCouchRot, 'f', -1, 64)))
		for _, id := range report.OutOfRange {
			lines = append(lines, "  - "+id)
		}
	}
	if len(report.Failures) > 0 {
		lines = append(lines, "Collision not evaluated (error):")
		for _, f := range report.Failures {
			lines = append(lines, "  - "+f.BeamID+": "+f.Reason)
		}
	}
	return lines
}

// nearLimit reports whether the gantry angle is within the gantry-angle
// safety margin of the limit, compared at 0.1 degree resolution.
func nearLimit(r model.CollisionResult, gA float64) bool {
	return math.Abs(roundTo(r.Limit, 1)-roundTo(r.GantryAngle, 1)) < gA
}

func roundTo(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.RoundToEven(v*p) / p
}

// round1 formats a value rounded to one decimal, without trailing zeros.
func round1(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(roundTo(v, 1), 'f', -1, 64)
}
