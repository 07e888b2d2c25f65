package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/piwi3910/GantryGuard/internal/model"
)

func TestClassifyCouch(t *testing.T) {
	cfg := model.DefaultSafetyConfig()
	limits := CouchLimits{Left: 250, Right: 110}

	tests := []struct {
		name   string
		gantry float64
		s      model.Sector
		margin float64
		level  model.CollisionLevel
		kind   model.WarningKind
	}{
		{"right before band", 100, right, -50, model.LevelNone, model.WarningNone},
		{"right band start", 108, right, 0, model.LevelWarning, model.WarningApproaching},
		{"right just before band", 107.999, right, 0, model.LevelNone, model.WarningNone},
		{"right in band ignores margin", 109.5, right, -5, model.LevelWarning, model.WarningApproaching},
		{"right at limit, no margin", 110, right, 0, model.LevelCollision, model.WarningNone},
		{"right past limit, negative margin", 150, right, -1, model.LevelCollision, model.WarningNone},
		{"right reduced margin", 150, right, 0.001, model.LevelWarning, model.WarningReducedMargin},
		{"right margin equals distance", 150, right, 10, model.LevelWarning, model.WarningReducedMargin},
		{"right margin clear", 150, right, 10.01, model.LevelNone, model.WarningNone},

		{"left before band", 260, left, -50, model.LevelNone, model.WarningNone},
		{"left band start", 252, left, 0, model.LevelWarning, model.WarningApproaching},
		{"left just before band", 252.001, left, 0, model.LevelNone, model.WarningNone},
		{"left at limit, no margin", 250, left, 0, model.LevelCollision, model.WarningNone},
		{"left reduced margin", 200, left, 5, model.LevelWarning, model.WarningReducedMargin},
		{"left margin clear", 200, left, 46, model.LevelNone, model.WarningNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ClassifyCouch(tt.gantry, tt.s, limits, tt.margin, cfg)
			assert.Equal(t, tt.level, r.Level)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, limits.For(tt.s), r.Limit)
			assert.Equal(t, tt.margin, r.Margin)
			assert.Equal(t, tt.gantry, r.GantryAngle)
		})
	}
}

func TestClassifyCouchNaNMargin(t *testing.T) {
	r := ClassifyCouch(150, right, CouchLimits{Left: 250, Right: 110}, math.NaN(), model.DefaultSafetyConfig())
	assert.Equal(t, model.LevelNone, r.Level)
	assert.True(t, math.IsNaN(r.Margin))
}

func TestClassifyCouchRespectsConfig(t *testing.T) {
	cfg := model.DefaultSafetyConfig()
	cfg.SafetyMarginGantryAngle = 5
	cfg.SafetyMarginDistance = 50

	limits := CouchLimits{Left: 250, Right: 110}
	assert.Equal(t, model.LevelWarning, ClassifyCouch(106, right, limits, 0, cfg).Level)
	r := ClassifyCouch(150, right, limits, 46, cfg)
	assert.Equal(t, model.LevelWarning, r.Level)
	assert.Equal(t, model.WarningReducedMargin, r.Kind)
}
