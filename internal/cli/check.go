package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/piwi3910/GantryGuard/internal/engine"
	"github.com/piwi3910/GantryGuard/internal/export"
	"github.com/piwi3910/GantryGuard/internal/importer"
	"github.com/piwi3910/GantryGuard/internal/metrics"
	"github.com/piwi3910/GantryGuard/internal/model"
	"github.com/piwi3910/GantryGuard/internal/project"
	"github.com/piwi3910/GantryGuard/internal/setup"
)

// ErrCollision is returned by check --strict when the plan fails.
var ErrCollision = errors.New("collision detected")

// planSource describes where a plan comes from: a JSON plan document, or a
// beam table plus the plan-level fields a beam table cannot carry.
type planSource struct {
	planPath     string
	beamsPath    string
	planID       string
	planUID      string
	orientation  string
	couch        string
	couchCenterY float64
	ctSeries     string
}

func (s *planSource) register(cmd *cobra.Command, withPlan bool) {
	f := cmd.Flags()
	if withPlan {
		f.StringVar(&s.planPath, "plan", "", "JSON plan document")
		f.StringVar(&s.beamsPath, "beams", "", "CSV or XLSX beam table (instead of --plan)")
	}
	f.StringVar(&s.planID, "plan-id", "", "Plan ID for a beam table (default: file name)")
	f.StringVar(&s.planUID, "plan-uid", "", "Plan UID for a beam table, used for database lookups")
	f.StringVar(&s.orientation, "orientation", "HFS", "Patient orientation for a beam table")
	f.StringVar(&s.couch, "couch", "", "Inserted couch structure name for a beam table")
	f.Float64Var(&s.couchCenterY, "couch-center-y", 0, "Couch structure center Y in mm for a beam table")
	f.StringVar(&s.ctSeries, "ct-series", "", "CT series UID for a beam table, used for database lookups")
}

// load returns the plan and any importer warnings.
func (s *planSource) load() (model.Plan, []string, error) {
	switch {
	case s.planPath != "" && s.beamsPath != "":
		return model.Plan{}, nil, fmt.Errorf("--plan and --beams are mutually exclusive")
	case s.planPath != "":
		plan, err := project.LoadPlan(s.planPath)
		return plan, nil, err
	case s.beamsPath != "":
		return s.fromBeams(s.beamsPath)
	default:
		return model.Plan{}, nil, fmt.Errorf("one of --plan or --beams is required")
	}
}

func (s *planSource) fromBeams(path string) (model.Plan, []string, error) {
	res := importer.ImportBeams(path)
	if len(res.Errors) > 0 {
		return model.Plan{}, res.Warnings, fmt.Errorf("failed to import beams: %s", strings.Join(res.Errors, "; "))
	}
	orientation, err := model.ParseOrientation(s.orientation)
	if err != nil {
		return model.Plan{}, res.Warnings, err
	}

	plan := model.Plan{
		ID:          s.planID,
		UID:         s.planUID,
		Orientation: orientation,
		CTSeriesUID: s.ctSeries,
		Beams:       res.Beams,
	}
	if plan.ID == "" {
		plan.ID = baseName(path)
	}
	if s.couch != "" {
		plan.Structures = append(plan.Structures, model.Structure{
			ID:        "Couch",
			Name:      s.couch,
			DicomType: model.SupportDicomType,
			CenterY:   s.couchCenterY,
		})
	}
	if err := plan.Validate(); err != nil {
		return model.Plan{}, res.Warnings, err
	}
	return plan, res.Warnings, nil
}

type checkOptions struct {
	source       planSource
	profile      string
	jsonOut      bool
	strict       bool
	ignore       []string
	pdfPath      string
	labelsPath   string
	xlsxPath     string
	dxfPath      string
	archivePath  string
	serveMetrics string
}

func newCheckCommand(a *app) *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the collision and setup checks on a plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), a, opts, cmd.OutOrStdout())
		},
	}

	opts.source.register(cmd, true)
	f := cmd.Flags()
	f.StringVar(&opts.profile, "profile", "", "Safety profile to apply")
	f.BoolVar(&opts.jsonOut, "json", false, "Print the report as JSON")
	f.BoolVar(&opts.strict, "strict", false, "Exit with an error when a collision is found")
	f.StringSliceVar(&opts.ignore, "ignore-structure", nil, "Structure name pattern left out of the assigned HU listing (repeatable)")
	f.StringVar(&opts.pdfPath, "pdf", "", "Write the PDF report to this path")
	f.StringVar(&opts.labelsPath, "labels", "", "Write QR beam labels to this path")
	f.StringVar(&opts.xlsxPath, "xlsx", "", "Write the XLSX workbook to this path")
	f.StringVar(&opts.dxfPath, "dxf", "", "Write the DXF geometry sketch to this path")
	f.StringVar(&opts.archivePath, "archive", "", "Write the check archive to this path")
	f.StringVar(&opts.serveMetrics, "serve-metrics", "", "Serve /metrics on this address after the check until interrupted")
	return cmd
}

func runCheck(ctx context.Context, a *app, opts checkOptions, out io.Writer) error {
	plan, warnings, err := opts.source.load()
	for _, w := range warnings {
		a.log.Warn(w)
	}
	if err != nil {
		return err
	}

	safety, err := a.safety(opts.profile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}

	ev := engine.New(safety, a.catalog)
	ev.Log = a.log
	ev.Metrics = collector

	setupOpts := setup.Options{
		IgnoreStructures: append(append([]string{}, a.cfg.IgnoreStructures...), opts.ignore...),
	}

	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		ev.Ranges = store
		ev.Slices = store
		setupOpts.Ranges = store
	}

	report := ev.EvaluatePlan(ctx, plan)
	report.SetupWarnings = setup.Run(ctx, plan, a.catalog, safety, setupOpts)

	a.log.WithFields(logrus.Fields{
		"plan":    plan.ID,
		"verdict": report.Verdict(),
		"report":  report.ID,
	}).Info("plan checked")

	if err := writeReport(out, report, opts.jsonOut); err != nil {
		return err
	}
	if err := writeExports(a, opts, plan, safety, report); err != nil {
		return err
	}

	addr := opts.serveMetrics
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr != "" {
		if err := serveMetrics(ctx, a.log, addr, collector); err != nil {
			return err
		}
	}

	if opts.strict && (!report.PatientOK || !report.CouchOK) {
		return fmt.Errorf("%w in plan %s", ErrCollision, plan.ID)
	}
	return nil
}

// writeReport prints the report as text or JSON.
func writeReport(out io.Writer, report model.PlanCheckReport, asJSON bool) error {
	if asJSON {
		return writeJSON(out, report)
	}
	fmt.Fprintf(out, "Plan %s: %s\n", report.PlanID, report.Verdict())
	for _, line := range report.Lines() {
		fmt.Fprintln(out, line)
	}
	return nil
}

func writeExports(a *app, opts checkOptions, plan model.Plan, safety model.SafetyConfig, report model.PlanCheckReport) error {
	exports := []struct {
		path string
		name string
		fn   func(string) error
	}{
		{opts.pdfPath, "PDF report", func(p string) error { return export.ExportPDF(p, plan, report) }},
		{opts.labelsPath, "beam labels", func(p string) error { return export.ExportLabels(p, plan, report) }},
		{opts.xlsxPath, "workbook", func(p string) error { return export.ExportXLSX(p, plan, report) }},
		{opts.dxfPath, "DXF sketch", func(p string) error { return export.ExportDXF(p, report, sketchEnvelopes(a.catalog, plan)) }},
		{opts.archivePath, "check archive", func(p string) error { return project.ExportArchive(p, safety, plan, report) }},
	}
	for _, e := range exports {
		if e.path == "" {
			continue
		}
		if err := e.fn(e.path); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.name, err)
		}
		a.log.WithField("path", e.path).Infof("%s written", e.name)
	}
	return nil
}

// sketchEnvelopes returns the envelopes of the plan's couch region, or the
// catalog reference envelope when the region is unknown.
func sketchEnvelopes(catalog *model.Catalog, plan model.Plan) []model.CollisionEnvelope {
	def, err := catalog.Lookup(plan.PrimaryMachine())
	if err == nil {
		if region, err := catalog.FindRegion(def, plan.CouchRegionName()); err == nil && len(region.Envelopes) > 0 {
			return region.Envelopes
		}
	}
	return []model.CollisionEnvelope{catalog.ReferenceEnvelope()}
}

// serveMetrics serves the collector on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, log logrus.FieldLogger, addr string, collector *metrics.Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithField("addr", addr).Info("serving metrics, interrupt to stop")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
