package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/piwi3910/GantryGuard/internal/model"
)

func samplePlan() model.Plan {
	huBolus := 0.0
	return model.Plan{
		ID:          "Prostate_1",
		UID:         "1.2.246.352.71.5.1",
		PatientID:   "123456",
		Orientation: model.HeadFirstSupine,
		CTSeriesUID: "1.2.246.352.61.2.1",
		Beams: []model.Beam{
			{ID: "G181", MachineID: "2100CD", Technique: model.TechniqueArc, GantryStart: 181, GantryEnd: 179, Isocenter: model.Vector3{X: 1.5, Y: -20, Z: 300}},
			{ID: "G90", MachineID: "2100CD", Technique: model.TechniqueStatic, GantryStart: 90, ExtendedRange: "EN"},
		},
		Structures: []model.Structure{
			{ID: "BODY", Name: "BODY", DicomType: "EXTERNAL"},
			{ID: "Bolus", Name: "Bolus", DicomType: "ORGAN", AssignedHU: &huBolus},
			{ID: "CouchRailLeft", Name: "Exact Couch with Flat panel", DicomType: model.SupportDicomType, CenterY: 163.8},
		},
	}
}

func TestExportAndImportArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive", "check.json")

	safety := model.DefaultSafetyConfig()
	safety.SafetyMarginDistance = 12
	report := model.NewPlanCheckReport("Prostate_1")
	report.Evaluated = true
	report.CatalogVersion = "2.1"

	if err := ExportArchive(path, safety, samplePlan(), report); err != nil {
		t.Fatalf("ExportArchive failed: %v", err)
	}

	archive, err := ImportArchive(path)
	if err != nil {
		t.Fatalf("ImportArchive failed: %v", err)
	}

	if archive.Version != ArchiveVersion {
		t.Errorf("expected version %s, got %s", ArchiveVersion, archive.Version)
	}
	if archive.CreatedAt == "" {
		t.Error("expected non-empty CreatedAt")
	}
	if archive.CatalogVersion != "2.1" {
		t.Errorf("expected catalog version 2.1, got %s", archive.CatalogVersion)
	}
	if archive.Safety.SafetyMarginDistance != 12 {
		t.Errorf("expected SafetyMarginDistance=12, got %f", archive.Safety.SafetyMarginDistance)
	}
	if len(archive.Plan.Beams) != 2 || archive.Plan.Beams[0].Technique != model.TechniqueArc {
		t.Errorf("plan beams not preserved: %+v", archive.Plan.Beams)
	}

	var rep map[string]interface{}
	if err := json.Unmarshal(archive.Report, &rep); err != nil {
		t.Fatalf("archived report is not JSON: %v", err)
	}
	if rep["id"] != report.ID {
		t.Errorf("expected report id %s, got %v", report.ID, rep["id"])
	}
	if rep["couch_vertical"] != nil {
		t.Errorf("expected null couch_vertical, got %v", rep["couch_vertical"])
	}
}

func TestImportArchiveMissingFile(t *testing.T) {
	_, err := ImportArchive(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestImportArchiveInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportArchive(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestImportArchiveMissingVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noversion.json")
	if err := os.WriteFile(path, []byte(`{"plan": {"id": "x"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportArchive(path); err == nil {
		t.Error("expected error for missing version")
	}
}
