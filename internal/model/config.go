package model

import "fmt"

// SafetyConfig holds the process-wide collision thresholds. It is loaded
// once and read-only afterwards.
type SafetyConfig struct {
	MaxCouchRotCalc               float64 `json:"max_couch_rot_calc"`                // degrees; beams beyond are not evaluated
	MaxCouchRotWarning            float64 `json:"max_couch_rot_warning"`             // degrees; setup warning threshold
	SafetyMarginDistance          float64 `json:"safety_margin_distance"`            // mm
	SafetyMarginGantryAngle       float64 `json:"safety_margin_gantry_angle"`        // degrees
	CouchVertPositionCTCorrection float64 `json:"couch_vert_position_ct_correction"` // mm
}

// DefaultSafetyConfig returns the clinical defaults.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		MaxCouchRotCalc:               10,
		MaxCouchRotWarning:            10,
		SafetyMarginDistance:          10,
		SafetyMarginGantryAngle:       2,
		CouchVertPositionCTCorrection: 69.3,
	}
}

// Validate rejects thresholds the collision model cannot work with.
func (c SafetyConfig) Validate() error {
	if c.MaxCouchRotCalc < 0 || c.MaxCouchRotCalc >= 180 {
		return fmt.Errorf("max_couch_rot_calc must be in [0, 180), got %g", c.MaxCouchRotCalc)
	}
	if c.MaxCouchRotWarning < 0 || c.MaxCouchRotWarning >= 180 {
		return fmt.Errorf("max_couch_rot_warning must be in [0, 180), got %g", c.MaxCouchRotWarning)
	}
	if c.SafetyMarginDistance < 0 {
		return fmt.Errorf("safety_margin_distance must not be negative, got %g", c.SafetyMarginDistance)
	}
	if c.SafetyMarginGantryAngle < 0 {
		return fmt.Errorf("safety_margin_gantry_angle must not be negative, got %g", c.SafetyMarginGantryAngle)
	}
	return nil
}
