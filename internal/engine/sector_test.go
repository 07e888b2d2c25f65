package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveSector(t *testing.T) {
	tests := []struct {
		name  string
		angle float64
		code  string
		left  bool
	}{
		{"right sector", 90, "", false},
		{"extended swap", 90, "EN", true},
		{"zero is right", 0, "", false},
		{"180 is right", 180, "", false},
		{"just past 180 is left", 180.1, "", true},
		{"left sector", 270, "", true},
		{"left swapped", 270, "EN", false},
		{"360 wraps to right", 360, "", false},
		{"NE does not swap", 90, "NE", false},
		{"EE does not swap", 200, "EE", true},
		{"NN does not swap", 200, "NN", true},
		{"lowercase en does not swap", 90, "en", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ResolveSector(tt.angle, tt.code)
			assert.Equal(t, tt.left, s.Left)
			assert.NotEqual(t, s.Left, s.Right, "sectors must be mutually exclusive")
		})
	}
}

func TestSectorDirection(t *testing.T) {
	assert.Equal(t, DirectionLeft, SectorDirection(ResolveSector(200, "")))
	assert.Equal(t, DirectionRight, SectorDirection(ResolveSector(20, "")))
	assert.Equal(t, "Left", DirectionLeft.String())
}

func TestInCalcRange(t *testing.T) {
	for _, rot := range []float64{0, 5, 10, 350, 355, -5, -10} {
		assert.True(t, InCalcRange(rot, 10), "rotation %v", rot)
	}
	for _, rot := range []float64{10.5, 45, 90, 270, 349} {
		assert.False(t, InCalcRange(rot, 10), "rotation %v", rot)
	}
}

func TestExceedsWarningRotation(t *testing.T) {
	assert.False(t, ExceedsWarningRotation(10, 10))
	assert.False(t, ExceedsWarningRotation(350, 10))
	assert.True(t, ExceedsWarningRotation(11, 10))
	assert.True(t, ExceedsWarningRotation(-45, 10))
}
