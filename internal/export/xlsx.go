package export

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// Sheet names of the workbook export.
const (
	SheetSummary    = "Summary"
	SheetCollisions = "Collisions"
	SheetReport     = "Report"
)

// CollisionHeaders are the column headers of the Collisions sheet.
var CollisionHeaders = []string{
	"Beam", "Control Point", "Machine", "Sector", "TH (mm)", "Gantry (deg)",
	"Patient Level", "Patient Limit (deg)", "Patient Margin (deg)",
	"Couch Level", "Couch Warning", "Couch Limit (deg)", "Couch Margin (mm)",
}

// ExportXLSX writes the report as a workbook with a summary sheet, one row
// per control point and the report text. Undefined limits and margins are
// left empty.
func ExportXLSX(path string, plan model.Plan, report model.PlanCheckReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetCollisions, SheetReport} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}
	fills := make(map[model.CollisionLevel]int)
	for level, c := range levelFills {
		if level == model.LevelNone {
			continue
		}
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B)}},
		})
		if err != nil {
			return fmt.Errorf("failed to create style: %w", err)
		}
		fills[level] = id
	}

	if err := writeSummarySheet(f, plan, report, bold); err != nil {
		return err
	}
	if err := writeCollisionSheet(f, report.Results, bold, fills); err != nil {
		return err
	}
	for i, line := range report.Lines() {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetCellValue(SheetReport, cell, line); err != nil {
			return fmt.Errorf("failed to write report line %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, plan model.Plan, report model.PlanCheckReport, bold int) error {
	patientPts, couchPts := report.CountLevel(model.LevelCollision)
	rows := [][]interface{}{
		{"Plan", report.PlanID},
		{"Plan UID", plan.UID},
		{"Report ID", report.ID},
		{"Verdict", report.Verdict()},
		{"Evaluated", report.Evaluated},
		{"Patient OK", report.PatientOK},
		{"Couch OK", report.CouchOK},
		{"Couch Vertical (mm)", cellValue(report.CouchVertical)},
		{"Evaluated Beams", report.EvaluatedBeams},
		{"Patient Collisions", patientPts},
		{"Couch Collisions", couchPts},
		{"Catalog Version", report.CatalogVersion},
		{"Checked At", report.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if !report.Evaluated {
		rows = append(rows, []interface{}{"Not Evaluated", report.NotEvaluatedReason})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(1, len(rows))
	if err := f.SetCellStyle(SheetSummary, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(SheetSummary, "A", "A", 22)
}

func writeCollisionSheet(f *excelize.File, results []model.BeamCollisionResult, bold int, fills map[model.CollisionLevel]int) error {
	header := make([]interface{}, len(CollisionHeaders))
	for i, h := range CollisionHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetCollisions, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(CollisionHeaders), 1)
	if err := f.SetCellStyle(SheetCollisions, "A1", lastHeader, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range results {
		rowNum := i + 2
		row := []interface{}{
			r.BeamID,
			r.ControlPoint.String(),
			r.MachineID,
			r.Sector,
			cellValue(r.TH),
			r.Patient.GantryAngle,
			r.Patient.Level.String(),
			cellValue(r.Patient.Limit),
			cellValue(r.Patient.Margin),
			r.Couch.Level.String(),
			r.Couch.Kind.String(),
			cellValue(r.Couch.Limit),
			cellValue(r.Couch.Margin),
		}
		start, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := f.SetSheetRow(SheetCollisions, start, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}

		worst := r.Patient.Level
		if r.Couch.Level > worst {
			worst = r.Couch.Level
		}
		if style, ok := fills[worst]; ok {
			end, _ := excelize.CoordinatesToCellName(len(CollisionHeaders), rowNum)
			if err := f.SetCellStyle(SheetCollisions, start, end, style); err != nil {
				return fmt.Errorf("failed to style row %d: %w", rowNum, err)
			}
		}
	}
	return nil
}

// cellValue returns v, or an empty string when v is undefined.
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}
