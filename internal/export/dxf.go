package export

import (
	"fmt"
	"math"

	"github.com/yofu/dxf"
	"github.com/yofu/dxf/color"
	"github.com/yofu/dxf/drawing"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// DXF layer names of the geometry sketch.
const (
	LayerCouch     = "COUCH"
	LayerClearance = "CLEARANCE"
	LayerLimit     = "LIMIT"
	LayerGantry    = "GANTRY"
	LayerLabel     = "LABEL"
)

// sketchSpacing is the gap between neighbouring control point sketches, mm.
const sketchSpacing = 200.0

// ExportDXF writes a transverse sketch of every evaluated control point:
// the couch cross-section of each envelope at the control point's TH, the
// collision-free circles around the isocenter, the gantry direction and the
// couch and patient limit directions. Sketches are placed side by side in
// result order, isocenter at y = 0.
func ExportDXF(path string, report model.PlanCheckReport, envs []model.CollisionEnvelope) error {
	if len(report.Results) == 0 {
		return fmt.Errorf("no control points to sketch")
	}
	if len(envs) == 0 {
		return fmt.Errorf("no collision envelope to sketch")
	}
	maxR := 0.0
	for _, env := range envs {
		if env.R <= 0 {
			return fmt.Errorf("invalid collision envelope radius %d", env.R)
		}
		maxR = math.Max(maxR, float64(env.R))
	}

	d := dxf.NewDrawing()
	layers := []struct {
		name  string
		color color.ColorNumber
	}{
		{LayerCouch, color.White},
		{LayerClearance, color.Cyan},
		{LayerLimit, color.Red},
		{LayerGantry, color.Green},
		{LayerLabel, color.Yellow},
	}
	for _, l := range layers {
		if _, err := d.AddLayer(l.name, l.color, dxf.DefaultLineType, false); err != nil {
			return fmt.Errorf("failed to add layer %s: %w", l.name, err)
		}
	}

	pitch := 2*maxR + sketchSpacing
	for i, res := range report.Results {
		if err := sketchControlPoint(d, res, envs, maxR, float64(i)*pitch); err != nil {
			return fmt.Errorf("failed to sketch %s %s: %w", res.BeamID, res.ControlPoint, err)
		}
	}

	if err := d.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save DXF: %w", err)
	}
	return nil
}

func sketchControlPoint(d *drawing.Drawing, res model.BeamCollisionResult, envs []model.CollisionEnvelope, r, ox float64) error {
	for _, env := range envs {
		b := float64(env.B)
		top := -res.TH
		bottom := -(res.TH + float64(env.A))

		if err := d.ChangeLayer(LayerCouch); err != nil {
			return err
		}
		corners := [][2]float64{{ox - b, top}, {ox + b, top}, {ox + b, bottom}, {ox - b, bottom}}
		for i := range corners {
			p, q := corners[i], corners[(i+1)%len(corners)]
			if _, err := d.Line(p[0], p[1], 0, q[0], q[1], 0); err != nil {
				return err
			}
		}

		if err := d.ChangeLayer(LayerClearance); err != nil {
			return err
		}
		if _, err := d.Circle(ox, 0, 0, float64(env.R)); err != nil {
			return err
		}
	}

	if err := d.ChangeLayer(LayerLimit); err != nil {
		return err
	}
	for _, limit := range []float64{res.Couch.Limit, res.Patient.Limit} {
		if math.IsNaN(limit) {
			continue
		}
		if err := ray(d, ox, limit, r); err != nil {
			return err
		}
	}

	if err := d.ChangeLayer(LayerGantry); err != nil {
		return err
	}
	if err := ray(d, ox, res.Patient.GantryAngle, r); err != nil {
		return err
	}

	if err := d.ChangeLayer(LayerLabel); err != nil {
		return err
	}
	label := fmt.Sprintf("%s %s TH %.0f", res.BeamID, res.Label, res.TH)
	_, err := d.Text(label, ox-r, r+40, 0, 25)
	return err
}

// ray draws a line from the isocenter at (ox, 0) to radius r in the
// direction of the IEC gantry angle.
func ray(d *drawing.Drawing, ox, angle, r float64) error {
	rad := angle * math.Pi / 180
	_, err := d.Line(ox, 0, 0, ox+r*math.Sin(rad), r*math.Cos(rad), 0)
	return err
}
