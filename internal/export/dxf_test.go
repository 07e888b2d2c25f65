package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yofu/dxf"
	"github.com/yofu/dxf/entity"

	"github.com/piwi3910/GantryGuard/internal/model"
)

var testEnvelopes = []model.CollisionEnvelope{{A: 110, B: 240, R: 400}}

func countEntities(t *testing.T, path string) (lines, circles int) {
	t.Helper()
	d, err := dxf.Open(path)
	require.NoError(t, err)
	for _, e := range d.Entities() {
		switch e.(type) {
		case *entity.Line:
			lines++
		case *entity.Circle:
			circles++
		}
	}
	return lines, circles
}

func TestExportDXF_SketchPerControlPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.dxf")
	require.NoError(t, ExportDXF(path, buildTestReport(), testEnvelopes))

	lines, circles := countEntities(t, path)
	// per point: 4 couch edges, 1 couch limit ray, 1 gantry ray
	assert.Equal(t, 3, circles)
	assert.Equal(t, 3*6, lines)
}

func TestExportDXF_PatientLimitAddsRay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.dxf")
	r := buildTestReport()
	r.Results = r.Results[:1]
	r.Results[0].Patient.Limit = 55.25

	require.NoError(t, ExportDXF(path, r, testEnvelopes))
	lines, circles := countEntities(t, path)
	assert.Equal(t, 1, circles)
	assert.Equal(t, 7, lines)
}

func TestExportDXF_TwoEnvelopes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "igrt.dxf")
	r := buildTestReport()
	r.Results = r.Results[:1]
	envs := []model.CollisionEnvelope{{A: 70, B: 215, R: 395}, {A: 20, B: 270, R: 395}}

	require.NoError(t, ExportDXF(path, r, envs))
	lines, circles := countEntities(t, path)
	assert.Equal(t, 2, circles)
	assert.Equal(t, 2*4+2, lines)
}

func TestExportDXF_CouchGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.dxf")
	r := buildTestReport()
	r.Results = r.Results[:1]
	require.NoError(t, ExportDXF(path, r, testEnvelopes))

	d, err := dxf.Open(path)
	require.NoError(t, err)
	var found bool
	for _, e := range d.Entities() {
		if c, ok := e.(*entity.Circle); ok {
			assert.InDelta(t, 400.0, c.Radius, 1e-9)
			assert.InDelta(t, 0.0, c.Center[0], 1e-9)
		}
		if l, ok := e.(*entity.Line); ok && l.Start[0] == -240 && l.End[0] == 240 {
			assert.InDelta(t, -150.0, l.Start[1], 1e-9, "couch top at -TH")
			found = true
		}
	}
	assert.True(t, found, "couch top edge not found")
}

func TestExportDXF_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketch.dxf")
	assert.Error(t, ExportDXF(path, model.NewPlanCheckReport("P1"), testEnvelopes))
	assert.Error(t, ExportDXF(path, buildTestReport(), nil))
	assert.Error(t, ExportDXF(path, buildTestReport(), []model.CollisionEnvelope{{A: 110, B: 240}}))
}
