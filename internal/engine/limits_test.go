package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/GantryGuard/internal/model"
)

var (
	right = model.Sector{Right: true}
	left  = model.Sector{Left: true}

	exactEnv = model.CollisionEnvelope{A: 110, B: 240, R: 400}

	exactMachine = model.MachineDefinition{
		ID:        "2100CD",
		CouchType: model.ExactCouch,
		Regions: []model.CouchRegion{{
			Name:      "Exact Couch with Flat panel",
			Envelopes: []model.CollisionEnvelope{exactEnv},
		}},
	}
	igrtMachine = model.MachineDefinition{
		ID:        "iX",
		CouchType: model.IGRTCouch,
		Regions: []model.CouchRegion{{
			Name: "Exact IGRT Couch, medium",
			Envelopes: []model.CollisionEnvelope{
				{A: 70, B: 215, R: 395},
				{A: 20, B: 270, R: 395},
			},
		}},
	}
)

func TestCouchCollisionLimitRegression(t *testing.T) {
	assert.InDelta(t, 257.70939, CouchCollisionLimit(exactEnv, 150, 0, DirectionLeft), 1e-4)
	assert.InDelta(t, 102.29061, CouchCollisionLimit(exactEnv, 150, 0, DirectionRight), 1e-4)

	// th = 0: alpha = atan(240/110) = 65.38 deg, capped on the left
	assert.InDelta(t, 260.0, CouchCollisionLimit(exactEnv, 0, 0, DirectionLeft), 1e-9)
	assert.InDelta(t, 100.0, CouchCollisionLimit(exactEnv, 0, 0, DirectionRight), 1e-9)
}

func TestCouchCollisionLimitRanges(t *testing.T) {
	for th := 0.0; th <= 400; th += 12.5 {
		for x := -200.0; x <= 200; x += 25 {
			l := CouchCollisionLimit(exactEnv, th, x, DirectionLeft)
			r := CouchCollisionLimit(exactEnv, th, x, DirectionRight)
			assert.GreaterOrEqual(t, l, 215.0)
			assert.LessOrEqual(t, l, 260.0)
			assert.GreaterOrEqual(t, r, 100.0)
			assert.LessOrEqual(t, r, 145.0)
		}
	}
}

func TestCouchCollisionLimitNegativeAlphaIsClamped(t *testing.T) {
	// isocenter lateral beyond the couch half width
	assert.InDelta(t, 145.0, CouchCollisionLimit(exactEnv, 150, 300, DirectionRight), 1e-9)
	assert.InDelta(t, 215.0, CouchCollisionLimit(exactEnv, 150, -300, DirectionLeft), 1e-9)
}

func TestCouchCollisionLimitsFor(t *testing.T) {
	l := CouchCollisionLimits(exactEnv, 150, 0)
	assert.Equal(t, l.Left, l.For(left))
	assert.Equal(t, l.Right, l.For(right))
}

func TestCouchCollisionMarginExactLiteral(t *testing.T) {
	m, err := CouchCollisionMargin(exactMachine, exactMachine.Regions[0], 0, 0, model.Vector3{}, left)
	require.NoError(t, err)
	assert.InDelta(t, 400-math.Sqrt(110*110+240*240), m, 1e-9)
	assert.InDelta(t, 136.0, m, 0.01)
}

func TestCouchCollisionMarginLateralShift(t *testing.T) {
	iso := model.Vector3{X: -100}
	// right sector: b = 240 - (-100) = 340
	m, err := CouchCollisionMargin(exactMachine, exactMachine.Regions[0], 0, 150, iso, right)
	require.NoError(t, err)
	assert.InDelta(t, -28.01869, m, 1e-4)

	// left sector: b = 240 + (-100) = 140
	m, err = CouchCollisionMargin(exactMachine, exactMachine.Regions[0], 0, 150, iso, left)
	require.NoError(t, err)
	assert.InDelta(t, 400-math.Hypot(260, 140), m, 1e-9)
}

func TestCouchCollisionMarginCouchRotation(t *testing.T) {
	m, err := CouchCollisionMargin(exactMachine, exactMachine.Regions[0], 5, 150, model.Vector3{}, left)
	require.NoError(t, err)
	assert.InDelta(t, 43.15363, m, 1e-4)

	mNeg, err := CouchCollisionMargin(exactMachine, exactMachine.Regions[0], -5, 150, model.Vector3{}, left)
	require.NoError(t, err)
	assert.InDelta(t, m, mNeg, 1e-9, "rotation growth is symmetric")
}

func TestCouchCollisionMarginIGRTTakesMinimum(t *testing.T) {
	m, err := CouchCollisionMargin(igrtMachine, igrtMachine.Regions[0], 0, 150, model.Vector3{}, left)
	require.NoError(t, err)
	inner := 395 - math.Hypot(220, 215)
	outer := 395 - math.Hypot(170, 270)
	assert.InDelta(t, math.Min(inner, outer), m, 1e-9)
	assert.InDelta(t, 75.93888, m, 1e-4)
}

func TestCouchCollisionMarginUnsupportedCouch(t *testing.T) {
	def := exactMachine
	def.CouchType = model.CouchUnknown
	m, err := CouchCollisionMargin(def, def.Regions[0], 0, 150, model.Vector3{}, left)
	var ue *model.UnsupportedCouchTypeError
	require.True(t, errors.As(err, &ue))
	assert.True(t, math.IsNaN(m))
}

func TestCouchCollisionMarginEnvelopeMismatch(t *testing.T) {
	_, err := CouchCollisionMargin(igrtMachine, exactMachine.Regions[0], 0, 150, model.Vector3{}, left)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 2")
}

func TestPatientCollisionLimitRightSector(t *testing.T) {
	iso := model.Vector3{X: -100}
	tests := []struct {
		gantry float64
		level  model.CollisionLevel
	}{
		{60, model.LevelCollision},
		{55.25, model.LevelCollision}, // margin exactly 0
		{54, model.LevelWarning},
		{50, model.LevelNone},
	}
	for _, tt := range tests {
		r := PatientCollisionLimit(iso, 150, 0, tt.gantry, right)
		assert.InDelta(t, 55.25, r.Limit, 1e-9)
		assert.InDelta(t, 55.25-tt.gantry, r.Margin, 1e-9)
		assert.Equal(t, tt.level, r.Level, "gantry %v", tt.gantry)
	}
}

func TestPatientCollisionLimitLeftSector(t *testing.T) {
	iso := model.Vector3{X: 100}
	tests := []struct {
		gantry float64
		level  model.CollisionLevel
	}{
		{300, model.LevelCollision},
		{306, model.LevelWarning},
		{310, model.LevelNone},
	}
	for _, tt := range tests {
		r := PatientCollisionLimit(iso, 150, 0, tt.gantry, left)
		assert.InDelta(t, 304.75, r.Limit, 1e-9)
		assert.InDelta(t, tt.gantry-304.75, r.Margin, 1e-9)
		assert.Equal(t, tt.level, r.Level, "gantry %v", tt.gantry)
	}
}

func TestPatientCollisionLimitNotModelled(t *testing.T) {
	cases := []struct {
		name   string
		iso    model.Vector3
		gantry float64
		s      model.Sector
	}{
		{"near centerline", model.Vector3{X: 50}, 300, left},
		{"boundary 70 mm", model.Vector3{X: -70}, 60, right},
		{"right side below 35 deg", model.Vector3{X: -100}, 30, right},
		{"wrong sector", model.Vector3{X: -100}, 200, left},
		{"left side beyond 325 deg", model.Vector3{X: 100}, 330, left},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := PatientCollisionLimit(c.iso, 150, 0, c.gantry, c.s)
			assert.True(t, math.IsNaN(r.Limit))
			assert.True(t, math.IsNaN(r.Margin))
			assert.Equal(t, model.LevelNone, r.Level)
			assert.Equal(t, c.gantry, r.GantryAngle)
		})
	}
}

func TestPatientCollisionLimitCouchRotation(t *testing.T) {
	r := PatientCollisionLimit(model.Vector3{X: -100}, 150, 5, 50, right)
	assert.InDelta(t, 54.71378, r.Limit, 1e-4)
	assert.Equal(t, model.LevelNone, r.Level)
}
