package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/GantryGuard/internal/model"
)

func TestCorrectIsocenterAllOrientations(t *testing.T) {
	raw := model.Vector3{X: 10, Y: 20, Z: 30}
	tests := []struct {
		o    model.PatientOrientation
		want model.Vector3
	}{
		{model.HeadFirstSupine, model.Vector3{X: 10, Y: 20, Z: 30}},
		{model.HeadFirstProne, model.Vector3{X: -10, Y: -20, Z: 30}},
		{model.HeadFirstDecubitusRight, model.Vector3{X: 20, Y: -10, Z: 30}},
		{model.HeadFirstDecubitusLeft, model.Vector3{X: -20, Y: 10, Z: 30}},
		{model.FeetFirstSupine, model.Vector3{X: -10, Y: 20, Z: -30}},
		{model.FeetFirstProne, model.Vector3{X: 10, Y: -20, Z: -30}},
		{model.FeetFirstDecubitusRight, model.Vector3{X: -20, Y: -10, Z: -30}},
		{model.FeetFirstDecubitusLeft, model.Vector3{X: 20, Y: 10, Z: -30}},
	}
	for _, tt := range tests {
		t.Run(tt.o.String(), func(t *testing.T) {
			got, err := CorrectIsocenter(raw, tt.o)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCorrectIsocenterUnsupported(t *testing.T) {
	for _, o := range []model.PatientOrientation{model.NoOrientation, model.Sitting} {
		_, err := CorrectIsocenter(model.Vector3{X: 1}, o)
		var ue *model.UnsupportedOrientationError
		require.True(t, errors.As(err, &ue), "orientation %s", o)
		assert.Equal(t, o, ue.Orientation)
	}
}

func TestVerticalSeparation(t *testing.T) {
	assert.InDelta(t, 150.0, VerticalSeparation(150, model.Vector3{}), 1e-12)
	assert.InDelta(t, 120.0, VerticalSeparation(150, model.Vector3{Y: 30}), 1e-12)
	assert.InDelta(t, 180.0, VerticalSeparation(150, model.Vector3{Y: -30}), 1e-12)
}

func TestNormalizeAngle(t *testing.T) {
	tests := map[float64]float64{
		0:    0,
		359:  359,
		360:  0,
		725:  5,
		-90:  270,
		-360: 0,
	}
	for in, want := range tests {
		assert.InDelta(t, want, NormalizeAngle(in), 1e-9, "NormalizeAngle(%v)", in)
	}
	assert.Less(t, NormalizeAngle(-1e-15), 360.0)
}

func TestGeometryCorrectsAndNormalizes(t *testing.T) {
	b := model.Beam{
		ID:            "B1",
		Technique:     model.TechniqueArc,
		GantryStart:   -179,
		GantryEnd:     540,
		CouchRotation: 355,
		Isocenter:     model.Vector3{X: 10, Y: 20, Z: 30},
	}
	g, err := Geometry(b, model.HeadFirstProne)
	require.NoError(t, err)
	assert.Equal(t, model.Vector3{X: -10, Y: -20, Z: 30}, g.Isocenter)
	assert.InDelta(t, 181.0, g.GantryStart, 1e-9)
	assert.InDelta(t, 180.0, g.GantryEnd, 1e-9)
	assert.Equal(t, 355.0, g.CouchRotation)
	assert.Equal(t, "B1", g.BeamID)

	_, err = Geometry(b, model.Sitting)
	assert.Error(t, err)
}
