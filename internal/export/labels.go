package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// Beam verdicts used on labels.
const (
	BeamVerdictClear        = "CLEAR"
	BeamVerdictNotEvaluated = "NOT EVALUATED"
	BeamVerdictError        = "ERROR"
)

// ReportStamp is the data encoded into the report QR code. It lets a printed
// report be matched against the stored check archive.
type ReportStamp struct {
	ReportID       string `json:"report_id"`
	PlanID         string `json:"plan_id"`
	PlanUID        string `json:"plan_uid,omitempty"`
	Verdict        string `json:"verdict"`
	PatientOK      bool   `json:"patient_ok"`
	CouchOK        bool   `json:"couch_ok"`
	CatalogVersion string `json:"catalog_version,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// LabelInfo holds the data encoded into each beam label's QR code.
type LabelInfo struct {
	PlanID    string  `json:"plan_id"`
	ReportID  string  `json:"report_id"`
	BeamID    string  `json:"beam_id"`
	MachineID string  `json:"machine_id,omitempty"`
	Verdict   string  `json:"verdict"`
	Sector    string  `json:"sector,omitempty"`
	TH        float64 `json:"th_mm"`
}

// Label layout constants for Avery 5160-compatible labels (3 columns, 10 rows per page).
// Each label cell is approximately 66.7mm x 25.4mm on US Letter paper.
const (
	labelPageWidth  = 215.9 // US Letter width in mm
	labelPageHeight = 279.4 // US Letter height in mm
	labelMarginTop  = 12.7  // mm
	labelMarginLeft = 4.8   // mm
	labelWidth      = 66.7  // mm per label
	labelHeight     = 25.4  // mm per label
	labelCols       = 3
	labelRows       = 10
	labelsPerPage   = labelCols * labelRows
	qrSize          = 20.0 // QR code size in mm
	labelPadding    = 2.0  // mm internal padding
)

// NewReportStamp builds the QR payload for a report.
func NewReportStamp(plan model.Plan, report model.PlanCheckReport) ReportStamp {
	return ReportStamp{
		ReportID:       report.ID,
		PlanID:         report.PlanID,
		PlanUID:        plan.UID,
		Verdict:        report.Verdict(),
		PatientOK:      report.PatientOK,
		CouchOK:        report.CouchOK,
		CatalogVersion: report.CatalogVersion,
		CreatedAt:      report.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// EncodeQR marshals v to JSON and renders it as a PNG QR code.
func EncodeQR(v any, size int) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal QR payload: %w", err)
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}
	return png, nil
}

// ExportLabels generates a PDF of QR-coded labels, one per beam of the plan.
// Labels are laid out on a standard label sheet format (Avery 5160 / 3
// columns x 10 rows on US Letter).
func ExportLabels(path string, plan model.Plan, report model.PlanCheckReport) error {
	labels := CollectLabelInfos(plan, report)
	if len(labels) == 0 {
		return fmt.Errorf("no beams to generate labels for")
	}

	pdf := fpdf.New("P", "mm", "Letter", "")
	pdf.SetAutoPageBreak(false, 0)

	for i, label := range labels {
		if i%labelsPerPage == 0 {
			pdf.AddPage()
		}

		posOnPage := i % labelsPerPage
		col := posOnPage % labelCols
		row := posOnPage / labelCols

		x := labelMarginLeft + float64(col)*labelWidth
		y := labelMarginTop + float64(row)*labelHeight

		if err := renderLabel(pdf, x, y, i, label); err != nil {
			return fmt.Errorf("failed to render label for %q: %w", label.BeamID, err)
		}
	}

	return pdf.OutputFileAndClose(path)
}

// renderLabel draws a single label at the given position.
func renderLabel(pdf *fpdf.Fpdf, x, y float64, idx int, info LabelInfo) error {
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.1)
	pdf.Rect(x, y, labelWidth, labelHeight, "D")

	qrPNG, err := EncodeQR(info, 256)
	if err != nil {
		return err
	}

	imgName := fmt.Sprintf("qr_beam_%d", idx)
	pdf.RegisterImageOptionsReader(imgName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qrPNG))

	qrX := x + labelWidth - qrSize - labelPadding
	qrY := y + (labelHeight-qrSize)/2
	pdf.ImageOptions(imgName, qrX, qrY, qrSize, qrSize, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	textX := x + labelPadding
	textW := labelWidth - qrSize - 3*labelPadding

	// Beam ID (bold, larger)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(textX, y+labelPadding)
	pdf.CellFormat(textW, 4.5, truncate(pdf, info.BeamID, textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.SetXY(textX, y+labelPadding+5)
	pdf.CellFormat(textW, 3.5, truncate(pdf, "Plan "+info.PlanID, textW), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 6)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetXY(textX, y+labelPadding+9)
	pdf.CellFormat(textW, 3, truncate(pdf, info.MachineID, textW), "", 1, "L", false, 0, "")

	pdf.SetXY(textX, y+labelPadding+12.5)
	pdf.SetFont("Helvetica", "B", 7)
	c := verdictColor(info.Verdict)
	pdf.SetTextColor(c.R, c.G, c.B)
	pdf.CellFormat(textW, 3, info.Verdict, "", 0, "L", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	return nil
}

// truncate shortens s with an ellipsis until it fits w.
func truncate(pdf *fpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > w {
		s = s[:len(s)-1]
	}
	return s + "..."
}

// CollectLabelInfos returns one label per beam in plan order. The verdict
// is the worst level over both channels and all control points of the beam.
func CollectLabelInfos(plan model.Plan, report model.PlanCheckReport) []LabelInfo {
	worst := make(map[string]model.CollisionLevel)
	first := make(map[string]model.BeamCollisionResult)
	for _, r := range report.Results {
		if _, ok := first[r.BeamID]; !ok {
			first[r.BeamID] = r
		}
		lvl := r.Patient.Level
		if r.Couch.Level > lvl {
			lvl = r.Couch.Level
		}
		if lvl > worst[r.BeamID] {
			worst[r.BeamID] = lvl
		}
	}
	skipped := make(map[string]bool, len(report.OutOfRange))
	for _, id := range report.OutOfRange {
		skipped[id] = true
	}
	failed := make(map[string]bool, len(report.Failures))
	for _, f := range report.Failures {
		failed[f.BeamID] = true
	}

	var labels []LabelInfo
	for _, b := range plan.Beams {
		info := LabelInfo{
			PlanID:    report.PlanID,
			ReportID:  report.ID,
			BeamID:    b.ID,
			MachineID: b.MachineID,
		}
		r, evaluated := first[b.ID]
		switch {
		case failed[b.ID]:
			info.Verdict = BeamVerdictError
		case skipped[b.ID] || !evaluated:
			info.Verdict = BeamVerdictNotEvaluated
		case worst[b.ID] == model.LevelNone:
			info.Verdict = BeamVerdictClear
		default:
			info.Verdict = strings.ToUpper(worst[b.ID].String())
		}
		if evaluated {
			info.Sector = r.Sector
			info.TH = r.TH
		}
		labels = append(labels, info)
	}
	return labels
}
