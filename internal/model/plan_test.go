package model

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrientation(t *testing.T) {
	tests := []struct {
		in   string
		want PatientOrientation
	}{
		{"HFS", HeadFirstSupine},
		{"hfp", HeadFirstProne},
		{"HeadFirstDecubitusRight", HeadFirstDecubitusRight},
		{"FFDL", FeetFirstDecubitusLeft},
		{"feetfirstprone", FeetFirstProne},
		{"Sitting", Sitting},
	}
	for _, tt := range tests {
		got, err := ParseOrientation(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseOrientation("upside down")
	assert.Error(t, err)
}

func TestParseTechnique(t *testing.T) {
	if ParseTechnique("ARC") != TechniqueArc {
		t.Error("ARC should be an arc technique")
	}
	if ParseTechnique("vmat") != TechniqueArc {
		t.Error("VMAT should be an arc technique")
	}
	if ParseTechnique("IMRT") != TechniqueStatic {
		t.Error("IMRT should be static")
	}
	if ParseTechnique("") != TechniqueStatic {
		t.Error("empty technique should default to static")
	}
}

func TestPlanJSONRoundTripKeepsEnums(t *testing.T) {
	raw := `{
		"id": "P1", "uid": "1.2.3", "orientation": "FFS",
		"beams": [{"id": "B1", "machine_id": "iX", "technique": "ARC",
		           "gantry_start": 181, "gantry_end": 179, "couch_rotation": 0,
		           "isocenter": {"x": 1, "y": 2, "z": 3}}]
	}`
	var p Plan
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, FeetFirstSupine, p.Orientation)
	require.Len(t, p.Beams, 1)
	assert.Equal(t, TechniqueArc, p.Beams[0].Technique)
	assert.Equal(t, Vector3{X: 1, Y: 2, Z: 3}, p.Beams[0].Isocenter)
}

func TestCouchStructure(t *testing.T) {
	p := Plan{Structures: []Structure{
		{ID: "BODY", Name: "Body", DicomType: "EXTERNAL"},
		{ID: "CouchSurface", Name: "Exact IGRT Couch, thin", DicomType: "SUPPORT", CenterY: 120},
		{ID: "CouchInterior", Name: "Exact IGRT Couch, thin", DicomType: "SUPPORT", CenterY: 140},
	}}

	s, ok := p.CouchStructure()
	require.True(t, ok)
	assert.Equal(t, "CouchSurface", s.ID)
	assert.Equal(t, "Exact IGRT Couch, thin", p.CouchRegionName())
	assert.Len(t, p.CouchStructures(), 2)

	empty := Plan{}
	_, ok = empty.CouchStructure()
	assert.False(t, ok)
	assert.Equal(t, "", empty.CouchRegionName())
}

func TestPlanValidate(t *testing.T) {
	ok := Plan{ID: "P", Beams: []Beam{{ID: "B1"}, {ID: "B2"}}}
	assert.NoError(t, ok.Validate())

	assert.Error(t, Plan{ID: "P"}.Validate())
	assert.Error(t, Plan{ID: "P", Beams: []Beam{{ID: "B1"}, {ID: "B1"}}}.Validate())
	assert.Error(t, Plan{ID: "P", Beams: []Beam{{ID: ""}}}.Validate())
	assert.Error(t, Plan{ID: "P", Beams: []Beam{{ID: "B1", GantryStart: math.NaN()}}}.Validate())
}

func TestBeamGeometryControlPoints(t *testing.T) {
	arc := BeamGeometry{Technique: TechniqueArc, GantryStart: 181, GantryEnd: 179}
	assert.Equal(t, []ControlPoint{ControlPointStart, ControlPointEnd}, arc.ControlPoints())
	assert.Equal(t, 179.0, arc.GantryAngle(ControlPointEnd))

	static := BeamGeometry{Technique: TechniqueStatic, GantryStart: 90, GantryEnd: 90}
	assert.Equal(t, []ControlPoint{ControlPointStart}, static.ControlPoints())
	assert.Equal(t, 90.0, static.GantryAngle(ControlPointStart))
}
