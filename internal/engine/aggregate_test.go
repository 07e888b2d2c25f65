package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piwi3910/GantryGuard/internal/model"
)

func none() model.CollisionResult {
	return model.CollisionResult{Limit: math.NaN(), Margin: math.NaN()}
}

func result(id string, cp model.ControlPoint, patient, couch model.CollisionResult) model.BeamCollisionResult {
	return model.BeamCollisionResult{BeamID: id, ControlPoint: cp, Label: cp.Label(), Patient: patient, Couch: couch}
}

func TestAggregateFlagsOnlyOnCollision(t *testing.T) {
	cfg := model.DefaultSafetyConfig()
	warn := model.CollisionResult{Limit: 55, Margin: -1, Level: model.LevelWarning, Kind: model.WarningApproaching, GantryAngle: 54}

	report := Aggregate(model.NewPlanCheckReport("P1"), []BeamOutcome{
		{BeamID: "B1", Results: []model.BeamCollisionResult{result("B1", model.ControlPointStart, warn, none())}},
	}, cfg)
	assert.True(t, report.Evaluated)
	assert.True(t, report.PatientOK)
	assert.True(t, report.CouchOK)

	hit := model.CollisionResult{Limit: 55, Margin: -4, Level: model.LevelCollision, GantryAngle: 59}
	report = Aggregate(model.NewPlanCheckReport("P1"), []BeamOutcome{
		{BeamID: "B1", Results: []model.BeamCollisionResult{result("B1", model.ControlPointStart, hit, none())}},
	}, cfg)
	assert.False(t, report.PatientOK)
	assert.True(t, report.CouchOK)
}

func TestAggregateSortsOutcomes(t *testing.T) {
	report := Aggregate(model.NewPlanCheckReport("P1"), []BeamOutcome{
		{BeamID: "B1", Err: ErrCouchRotationOutOfRange},
		{BeamID: "B2", Err: errors.New("boom")},
		{BeamID: "B3", Results: []model.BeamCollisionResult{result("B3", model.ControlPointStart, none(), none())}},
	}, model.DefaultSafetyConfig())

	assert.Equal(t, []string{"B1"}, report.OutOfRange)
	assert.Equal(t, []model.BeamFailure{{BeamID: "B2", Reason: "boom"}}, report.Failures)
	assert.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.EvaluatedBeams)
}

func TestFormatCollisionLinesGroupsInOrder(t *testing.T) {
	cfg := model.DefaultSafetyConfig()
	report := model.NewPlanCheckReport("P1")
	report.Evaluated = true
	report.MaxCouchRot = 10
	report.Results = []model.BeamCollisionResult{
		result("B1", model.ControlPointStart, none(),
			model.CollisionResult{Limit: 102.29, Margin: 7.96, Level: model.LevelWarning, Kind: model.WarningReducedMargin, GantryAngle: 103}),
		result("B2", model.ControlPointStart, none(),
			model.CollisionResult{Limit: 102.29, Margin: 46, Level: model.LevelWarning, Kind: model.WarningApproaching, GantryAngle: 101}),
		result("B3", model.ControlPointEnd, none(),
			model.CollisionResult{Limit: 245.34, Margin: -75.08, Level: model.LevelCollision, GantryAngle: 200}),
		result("B4", model.ControlPointStart,
			model.CollisionResult{Limit: 304.75, Margin: 1.25, Level: model.LevelWarning, Kind: model.WarningApproaching, GantryAngle: 306},
			none()),
		result("B5", model.ControlPointStart,
			model.CollisionResult{Limit: 55.31, Margin: -4.69, Level: model.LevelCollision, GantryAngle: 60},
			none()),
	}
	report.OutOfRange = []string{"B6"}
	report.Failures = []model.BeamFailure{{BeamID: "B7", Reason: `machine "X" not found`}}

	assert.Equal(t, []string{
		"Collisions:",
		"  - COLLISION with PATIENT:",
		"\tB5 (Start G)\tLimit: 55.3 deg",
		"  - Gantry close to PATIENT:",
		"\tB4 (Start G)\tLimit: 304.8 deg",
		"  - COLLISION with couch:",
		"\tB3 (End G)\tMargin: -7.5 cm",
		"  - Gantry near couch:",
		"\tB2 (Start G)\tLimit: 102.3 deg",
		"  - Reduced margin to couch:",
		"\tB1 (Start G)\tMargin: 0.8 cm\t(Limit: 102.3 deg)",
		"Collision not evaluated (Couch Rotation > 10 degrees):",
		"  - B6",
		"Collision not evaluated (error):",
		`  - B7: machine "X" not found`,
	}, FormatCollisionLines(report, cfg))
}

func TestFormatCollisionLinesEmptyWhenClear(t *testing.T) {
	report := model.NewPlanCheckReport("P1")
	report.Evaluated = true
	report.Results = []model.BeamCollisionResult{result("B1", model.ControlPointStart, none(), none())}
	assert.Empty(t, FormatCollisionLines(report, model.DefaultSafetyConfig()))
}

func TestNotEvaluatedKeepsFlags(t *testing.T) {
	report := model.NewPlanCheckReport("P1")
	report.CouchOK = false
	report = NotEvaluated(report, "invalid couch position")
	assert.False(t, report.Evaluated)
	assert.False(t, report.CouchOK)
	assert.True(t, report.PatientOK)
	assert.Equal(t, []string{"Collision not evaluated - invalid couch position."}, FormatCollisionLines(report, model.DefaultSafetyConfig()))
}

func TestRound1(t *testing.T) {
	assert.Equal(t, "n/a", round1(math.NaN()))
	assert.Equal(t, "257.7", round1(257.70939))
	assert.Equal(t, "-7.5", round1(-7.507894))
	assert.Equal(t, "260", round1(260))
}
