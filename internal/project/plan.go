// Package project loads and stores the documents the CLI works with: the
// application config, safety profiles, plans, catalog overrides and check
// archives.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// LoadPlan reads a JSON plan document and validates it.
func LoadPlan(path string) (model.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan model.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return model.Plan{}, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if err := plan.Validate(); err != nil {
		return model.Plan{}, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return plan, nil
}

// SavePlan writes the plan as indented JSON.
func SavePlan(path string, plan model.Plan) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
