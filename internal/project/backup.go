package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// ArchiveVersion is the current check archive format version.
const ArchiveVersion = "1.0.0"

// Archive bundles a checked plan with the settings it was checked under and
// the resulting report, so the check can be reviewed or replayed later.
type Archive struct {
	Version        string             `json:"version"`
	CreatedAt      string             `json:"created_at"`
	CatalogVersion string             `json:"catalog_version"`
	Safety         model.SafetyConfig `json:"safety"`
	Plan           model.Plan         `json:"plan"`
	Report         json.RawMessage    `json:"report"`
}

// ExportArchive writes the plan, thresholds and report to a single JSON file
// at the specified path.
func ExportArchive(exportPath string, safety model.SafetyConfig, plan model.Plan, report model.PlanCheckReport) error {
	rep, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	archive := Archive{
		Version:        ArchiveVersion,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		CatalogVersion: report.CatalogVersion,
		Safety:         safety,
		Plan:           plan,
		Report:         rep,
	}
	data, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal archive: %w", err)
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if err := os.WriteFile(exportPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write archive file: %w", err)
	}
	return nil
}

// ImportArchive reads a check archive. The caller decides whether to replay
// the plan against the archived thresholds.
func ImportArchive(importPath string) (Archive, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return Archive{}, fmt.Errorf("failed to read archive file: %w", err)
	}
	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return Archive{}, fmt.Errorf("failed to parse archive file: %w", err)
	}
	if archive.Version == "" {
		return Archive{}, fmt.Errorf("invalid archive file: missing version field")
	}
	if err := archive.Safety.Validate(); err != nil {
		return Archive{}, fmt.Errorf("invalid archive file: %w", err)
	}
	return archive, nil
}
