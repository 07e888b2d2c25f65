package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// ErrCouchRotationOutOfRange marks a beam whose couch rotation is beyond
// MaxCouchRotCalc. Such beams are listed but not evaluated.
var ErrCouchRotationOutOfRange = errors.New("couch rotation out of range")

// Recorder receives evaluation events. metrics.Collector implements it.
type Recorder interface {
	ObserveResult(channel string, level model.CollisionLevel)
	ObserveSkipped(reason string)
	ObserveDuration(d time.Duration)
}

// Evaluator runs the collision model over the beams of a plan.
type Evaluator struct {
	Config  model.SafetyConfig
	Catalog *model.Catalog

	// Optional collaborators.
	Ranges  ExtendedRangeSource
	Slices  SliceCouchSource
	Log     logrus.FieldLogger
	Metrics Recorder
}

// New creates an evaluator with a discarding logger.
func New(cfg model.SafetyConfig, catalog *model.Catalog) *Evaluator {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Evaluator{Config: cfg, Catalog: catalog, Log: l}
}

// BeamOutcome is the evaluation outcome of one beam.
type BeamOutcome struct {
	BeamID  string
	Results []model.BeamCollisionResult
	Err     error
}

// EvaluatePlan evaluates every beam and aggregates the results into a
// report. Beams run in parallel; the merge keeps plan beam order.
func (e *Evaluator) EvaluatePlan(ctx context.Context, plan model.Plan) model.PlanCheckReport {
	start := time.Now()
	report := model.NewPlanCheckReport(plan.ID)
	report.MaxCouchRot = e.Config.MaxCouchRotCalc
	if e.Catalog != nil {
		report.CatalogVersion = e.Catalog.Version()
	}
	log := e.logger().WithField("plan", plan.ID)

	if _, err := CorrectIsocenter(model.Vector3{}, plan.Orientation); err != nil {
		log.WithError(err).Warn("collision check skipped")
		e.observeSkipped("orientation")
		return NotEvaluated(report, err.Error())
	}

	couchVert, source, err := CouchVerticalPosition(ctx, plan, e.Catalog, e.Config, e.Slices)
	if err != nil {
		log.WithError(err).Warn("collision check skipped")
		e.observeSkipped("couch_position")
		return NotEvaluated(report, "invalid couch position")
	}
	report.CouchVertical = couchVert
	report.CouchVerticalFrom = source
	log.WithFields(logrus.Fields{"couch_vertical": couchVert, "source": source}).Debug("couch vertical position resolved")

	outcomes := make([]BeamOutcome, len(plan.Beams))
	var wg sync.WaitGroup
	for i, b := range plan.Beams {
		wg.Add(1)
		go func(i int, b model.Beam) {
			defer wg.Done()
			results, err := e.EvaluateBeam(ctx, plan, b, couchVert)
			outcomes[i] = BeamOutcome{BeamID: b.ID, Results: results, Err: err}
		}(i, b)
	}
	wg.Wait()

	for _, o := range outcomes {
		switch {
		case errors.Is(o.Err, ErrCouchRotationOutOfRange):
			log.WithField("beam", o.BeamID).Warn("beam not evaluated: couch rotation out of range")
			e.observeSkipped("couch_rotation")
		case o.Err != nil:
			log.WithField("beam", o.BeamID).WithError(o.Err).Warn("beam not evaluated")
			e.observeSkipped("beam_error")
		}
		for _, r := range o.Results {
			e.observeResult("patient", r.Patient.Level)
			if o.Err == nil {
				e.observeResult("couch", r.Couch.Level)
			}
		}
	}

	report = Aggregate(report, outcomes, e.Config)
	if e.Metrics != nil {
		e.Metrics.ObserveDuration(time.Since(start))
	}
	log.WithFields(logrus.Fields{
		"verdict":    report.Verdict(),
		"patient_ok": report.PatientOK,
		"couch_ok":   report.CouchOK,
	}).Info("collision check finished")
	return report
}

// EvaluateBeam evaluates one beam at its start control point, and at its end
// control point for arcs. couchVert is the resolved couch vertical position.
// When only the couch channel fails (unknown couch region, unsupported couch
// type), the patient results are returned together with the error.
func (e *Evaluator) EvaluateBeam(ctx context.Context, plan model.Plan, b model.Beam, couchVert float64) ([]model.BeamCollisionResult, error) {
	if !InCalcRange(b.CouchRotation, e.Config.MaxCouchRotCalc) {
		return nil, ErrCouchRotationOutOfRange
	}
	if e.Catalog == nil {
		return nil, fmt.Errorf("no machine catalog configured")
	}

	def, err := e.Catalog.Lookup(b.MachineID)
	if err != nil {
		return nil, err
	}
	geo, err := Geometry(b, plan.Orientation)
	if err != nil {
		return nil, err
	}

	iso := geo.Isocenter
	th := VerticalSeparation(couchVert, iso)
	limits := CouchCollisionLimits(e.Catalog.ReferenceEnvelope(), th, iso.X)
	code := e.extendedRange(ctx, plan, b)

	// The patient channel does not depend on the couch region, so a couch
	// failure still reports it.
	region, couchErr := e.region(plan, def)

	var results []model.BeamCollisionResult
	for _, cp := range geo.ControlPoints() {
		g := geo.GantryAngle(cp)
		s := ResolveSector(g, code)

		margin := math.NaN()
		if couchErr == nil {
			margin, couchErr = CouchCollisionMargin(def, region, geo.CouchRotation, th, iso, s)
		}
		couch := ClassifyCouch(g, s, limits, margin, e.Config)
		r := model.BeamCollisionResult{
			BeamID:       b.ID,
			MachineID:    def.ID,
			ControlPoint: cp,
			Label:        cp.Label(),
			Sector:       s.String(),
			TH:           th,
			Patient:      PatientCollisionLimit(iso, th, geo.CouchRotation, g, s),
			Couch:        couch,
		}
		e.logger().WithFields(logrus.Fields{
			"beam":    b.ID,
			"cp":      cp.String(),
			"gantry":  g,
			"sector":  r.Sector,
			"th":      th,
			"limit":   r.Couch.Limit,
			"margin":  r.Couch.Margin,
			"couch":   r.Couch.Level.String(),
			"patient": r.Patient.Level.String(),
		}).Debug("control point evaluated")
		results = append(results, r)
	}
	if couchErr != nil {
		// Patient results are kept; the couch channel is reported as failed.
		return results, couchErr
	}
	return results, nil
}

// region picks the couch region matching the inserted couch structure, or
// the machine's first region when no couch is inserted.
func (e *Evaluator) region(plan model.Plan, def model.MachineDefinition) (model.CouchRegion, error) {
	name := plan.CouchRegionName()
	if name == "" {
		return def.Regions[0], nil
	}
	return e.Catalog.FindRegion(def, name)
}

// extendedRange returns the beam's extended range code. Lookup failures
// fall back to the inline code on the beam.
func (e *Evaluator) extendedRange(ctx context.Context, plan model.Plan, b model.Beam) string {
	if e.Ranges == nil {
		return b.ExtendedRange
	}
	code, err := e.Ranges.ExtendedRangeCode(ctx, plan.UID, b.ID)
	if err != nil {
		e.logger().WithFields(logrus.Fields{"plan": plan.ID, "beam": b.ID}).WithError(err).
			Warn("extended range lookup failed, using default range")
		return b.ExtendedRange
	}
	if code == "" {
		return b.ExtendedRange
	}
	return code
}

func (e *Evaluator) logger() logrus.FieldLogger {
	if e.Log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}
	return e.Log
}

func (e *Evaluator) observeResult(channel string, level model.CollisionLevel) {
	if e.Metrics != nil {
		e.Metrics.ObserveResult(channel, level)
	}
}

func (e *Evaluator) observeSkipped(reason string) {
	if e.Metrics != nil {
		e.Metrics.ObserveSkipped(reason)
	}
}
