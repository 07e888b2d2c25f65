// Package export provides functionality for exporting collision check
// reports to various file formats.
package export

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// rgb is an RGB fill or text color.
type rgb struct {
	R, G, B int
}

var (
	colorPass    = rgb{R: 76, G: 175, B: 80}  // green
	colorWarn    = rgb{R: 255, G: 152, B: 0}  // orange
	colorFail    = rgb{R: 244, G: 67, B: 54}  // red
	colorNeutral = rgb{R: 120, G: 120, B: 120} // grey
)

// levelFills are the light row backgrounds of the results table.
var levelFills = map[model.CollisionLevel]rgb{
	model.LevelNone:      {R: 255, G: 255, B: 255},
	model.LevelWarning:   {R: 255, G: 243, B: 205},
	model.LevelCollision: {R: 255, G: 205, B: 210},
}

// Page layout constants (A4 landscape in mm).
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	headerHeight = 12.0
	rowHeight    = 6.0
	lineHeight   = 4.5
	reportQRSize = 35.0
)

// verdictColor maps a plan or beam verdict to its display color.
func verdictColor(verdict string) rgb {
	switch verdict {
	case "PASS", BeamVerdictClear:
		return colorPass
	case "WARN", "WARNING":
		return colorWarn
	case "FAIL", "COLLISION", BeamVerdictError:
		return colorFail
	default:
		return colorNeutral
	}
}

// ExportPDF generates a PDF document for a collision check: a summary page
// with the verdict and a QR stamp, the per control point results table and
// the full report text.
func ExportPDF(path string, plan model.Plan, report model.PlanCheckReport) error {
	if report.PlanID == "" {
		return fmt.Errorf("no report to export")
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetFooterFunc(func() {
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.SetXY(marginLeft, pageHeight-marginBottom)
		footer := fmt.Sprintf("Generated by GantryGuard - report %s - page %d", report.ID, pdf.PageNo())
		pdf.CellFormat(pageWidth-marginLeft-marginRight, 4, footer, "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pdf.AddPage()
	y, err := renderSummary(pdf, plan, report)
	if err != nil {
		return err
	}
	if len(report.Results) > 0 {
		y = renderResultsTable(pdf, report.Results, y+6)
	}
	renderReportText(pdf, report.Lines(), y+6)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return pdf.OutputFileAndClose(path)
}

// renderSummary draws the title, the verdict box, the key figures and the
// QR stamp. It returns the y position below the block.
func renderSummary(pdf *fpdf.Fpdf, plan model.Plan, report model.PlanCheckReport) (float64, error) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(pageWidth-marginLeft-marginRight, 10, "Gantry Collision Check: "+report.PlanID, "", 0, "L", false, 0, "")

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.5)
	pdf.Line(marginLeft, marginTop+headerHeight, pageWidth-marginRight, marginTop+headerHeight)

	y := marginTop + headerHeight + 5

	// Verdict box
	verdict := report.Verdict()
	c := verdictColor(verdict)
	pdf.SetFillColor(c.R, c.G, c.B)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(60, 10, verdict, "", 0, "C", true, 0, "")
	pdf.SetTextColor(0, 0, 0)
	y += 14

	couchPos := "undefined"
	if !math.IsNaN(report.CouchVertical) {
		couchPos = fmt.Sprintf("%.1f mm (%s)", report.CouchVertical, report.CouchVerticalFrom)
	}
	patientPts, couchPts := report.CountLevel(model.LevelCollision)

	summaryItems := []struct {
		label string
		value string
	}{
		{"Plan UID", plan.UID},
		{"Orientation", plan.Orientation.String()},
		{"Machine", plan.PrimaryMachine()},
		{"Couch", plan.CouchRegionName()},
		{"Couch Vertical Position", couchPos},
		{"Evaluated Beams", fmt.Sprintf("%d of %d", report.EvaluatedBeams, len(plan.Beams))},
		{"Patient Collisions", fmt.Sprintf("%d", patientPts)},
		{"Couch Collisions", fmt.Sprintf("%d", couchPts)},
		{"Catalog Version", report.CatalogVersion},
		{"Checked At", report.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if !report.Evaluated {
		summaryItems = append(summaryItems, struct {
			label string
			value string
		}{"Not Evaluated", report.NotEvaluatedReason})
	}

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range summaryItems {
		pdf.SetXY(marginLeft+5, y)
		pdf.CellFormat(55, 6, item.label+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(120, 6, item.value, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		y += 6
	}

	// QR stamp in the top right corner
	png, err := EncodeQR(NewReportStamp(plan, report), 256)
	if err != nil {
		return 0, err
	}
	pdf.RegisterImageOptionsReader("qr_report", fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(png))
	pdf.ImageOptions("qr_report", pageWidth-marginRight-reportQRSize, marginTop+headerHeight+5,
		reportQRSize, reportQRSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	return y, nil
}

// renderResultsTable draws one row per evaluated control point, starting new
// pages as needed. It returns the y position below the table.
func renderResultsTable(pdf *fpdf.Fpdf, results []model.BeamCollisionResult, y float64) float64 {
	colWidths := []float64{28, 20, 24, 16, 20, 18, 24, 26, 34, 26, 26}
	headers := []string{"Beam", "Point", "Machine", "Sector", "TH (mm)", "Gantry", "Patient", "Patient Limit", "Couch", "Couch Limit", "Margin (cm)"}

	header := func(y float64) float64 {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(100, 7, "Control Point Results", "", 0, "L", false, 0, "")
		y += 9

		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(230, 230, 230)
		x := marginLeft
		for i, h := range headers {
			pdf.SetXY(x, y)
			pdf.CellFormat(colWidths[i], rowHeight, h, "1", 0, "C", true, 0, "")
			x += colWidths[i]
		}
		return y + rowHeight
	}

	if y+9+2*rowHeight > pageHeight-marginBottom-5 {
		pdf.AddPage()
		y = marginTop
	}
	y = header(y)

	pdf.SetFont("Helvetica", "", 8)
	for _, r := range results {
		if y+rowHeight > pageHeight-marginBottom-5 {
			pdf.AddPage()
			y = header(marginTop)
			pdf.SetFont("Helvetica", "", 8)
		}

		worst := r.Patient.Level
		if r.Couch.Level > worst {
			worst = r.Couch.Level
		}
		fill := levelFills[worst]
		pdf.SetFillColor(fill.R, fill.G, fill.B)

		row := []string{
			r.BeamID,
			r.ControlPoint.String(),
			r.MachineID,
			r.Sector,
			formatValue(r.TH, 1),
			formatValue(r.Patient.GantryAngle, 1),
			r.Patient.Level.String(),
			formatValue(r.Patient.Limit, 1),
			couchLevel(r.Couch),
			formatValue(r.Couch.Limit, 1),
			formatValue(r.Couch.Margin/10, 1),
		}
		x := marginLeft
		for j, cell := range row {
			pdf.SetXY(x, y)
			pdf.CellFormat(colWidths[j], rowHeight, cell, "1", 0, "C", true, 0, "")
			x += colWidths[j]
		}
		y += rowHeight
	}
	return y
}

// renderReportText prints the report lines in a fixed-width font.
func renderReportText(pdf *fpdf.Fpdf, lines []string, y float64) {
	if len(lines) == 0 {
		return
	}
	if y+7+lineHeight > pageHeight-marginBottom-5 {
		pdf.AddPage()
		y = marginTop
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(100, 7, "Report", "", 0, "L", false, 0, "")
	y += 9

	pdf.SetFont("Courier", "", 9)
	for _, line := range lines {
		if y+lineHeight > pageHeight-marginBottom-5 {
			pdf.AddPage()
			y = marginTop
			pdf.SetFont("Courier", "", 9)
		}
		if strings.Contains(line, "COLLISION") {
			pdf.SetTextColor(colorFail.R, colorFail.G, colorFail.B)
		} else {
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(pageWidth-marginLeft-marginRight, lineHeight, expandTabs(line), "", 0, "L", false, 0, "")
		y += lineHeight
	}
	pdf.SetTextColor(0, 0, 0)
}

// couchLevel renders the couch level with its warning kind.
func couchLevel(r model.CollisionResult) string {
	if r.Kind == model.WarningNone {
		return r.Level.String()
	}
	return r.Level.String() + " (" + r.Kind.String() + ")"
}

// formatValue formats v with the given precision, or "n/a" when undefined.
func formatValue(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.*f", prec, v)
}

// expandTabs replaces tabs with spaces to the next multiple of four columns.
func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := 4 - col%4
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
