package engine

import (
	"context"
	"math"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// Couch position sources recorded on the report.
const (
	CouchFromCT        = "CT"
	CouchFromStructure = "structure"
)

// ExtendedRangeSource looks up the auto-sequencing extended range code of a
// beam. An empty code means the default range.
type ExtendedRangeSource interface {
	ExtendedRangeCode(ctx context.Context, planUID, beamID string) (string, error)
}

// SliceCouchSource returns the couch vertical readout (cm, TPS sign
// convention) recorded on the slices of a CT series.
type SliceCouchSource interface {
	SliceCouchVertical(ctx context.Context, seriesUID string) (float64, error)
}

// CouchVerticalPosition resolves the couch vertical position in mm. The CT
// slice readout is preferred, corrected by the configured CT offset; the
// inserted couch structure is the fallback, corrected by its region offset.
// ErrUndefinedCouchPosition is returned when neither yields a value.
func CouchVerticalPosition(ctx context.Context, plan model.Plan, catalog *model.Catalog, cfg model.SafetyConfig, slices SliceCouchSource) (float64, string, error) {
	if v, ok := couchVerticalFromCT(ctx, plan, cfg, slices); ok {
		return v, CouchFromCT, nil
	}
	if v, ok := couchVerticalFromStructure(plan, catalog); ok {
		return v, CouchFromStructure, nil
	}
	return math.NaN(), "", model.ErrUndefinedCouchPosition
}

func couchVerticalFromCT(ctx context.Context, plan model.Plan, cfg model.SafetyConfig, slices SliceCouchSource) (float64, bool) {
	if slices == nil || plan.CTSeriesUID == "" {
		return 0, false
	}
	vrt, err := slices.SliceCouchVertical(ctx, plan.CTSeriesUID)
	if err != nil || math.IsNaN(vrt) {
		return 0, false
	}
	return vrt*-10 - cfg.CouchVertPositionCTCorrection, true
}

func couchVerticalFromStructure(plan model.Plan, catalog *model.Catalog) (float64, bool) {
	s, ok := plan.CouchStructure()
	if !ok || catalog == nil {
		return 0, false
	}
	def, err := catalog.Lookup(plan.PrimaryMachine())
	if err != nil {
		return 0, false
	}
	region, err := catalog.FindRegion(def, s.Name)
	if err != nil {
		return 0, false
	}
	return s.CenterY - region.VerticalCorrection, true
}
