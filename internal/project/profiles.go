package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// SafetyProfile is a named set of collision thresholds.
type SafetyProfile struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	IsBuiltIn   bool               `json:"-"`
	Safety      model.SafetyConfig `json:"safety"`
}

// BuiltInProfiles returns the profiles shipped with the application.
func BuiltInProfiles() []SafetyProfile {
	conservative := model.DefaultSafetyConfig()
	conservative.SafetyMarginDistance = 20
	conservative.SafetyMarginGantryAngle = 5
	conservative.MaxCouchRotWarning = 5

	return []SafetyProfile{
		{
			Name:        "default",
			Description: "Clinical default thresholds",
			IsBuiltIn:   true,
			Safety:      model.DefaultSafetyConfig(),
		},
		{
			Name:        "conservative",
			Description: "Wider distance and gantry angle margins",
			IsBuiltIn:   true,
			Safety:      conservative,
		},
	}
}

// DefaultProfilesPath returns the default file path for custom profiles.
func DefaultProfilesPath() string {
	return filepath.Join(DefaultConfigDir(), "profiles.json")
}

// SaveCustomProfiles saves custom profiles to a JSON file.
func SaveCustomProfiles(path string, profiles []SafetyProfile) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadCustomProfiles loads custom profiles from a JSON file.
// Returns an empty slice if the file does not exist.
func LoadCustomProfiles(path string) ([]SafetyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SafetyProfile{}, nil
		}
		return nil, err
	}

	var profiles []SafetyProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles %s: %w", path, err)
	}
	for i := range profiles {
		if err := profiles[i].Safety.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", profiles[i].Name, err)
		}
	}
	return profiles, nil
}

// AllProfiles returns the built-in profiles followed by the custom ones,
// sorted by name within each group. Custom profiles shadow built-ins of the
// same name.
func AllProfiles(custom []SafetyProfile) []SafetyProfile {
	byName := make(map[string]bool, len(custom))
	for _, p := range custom {
		byName[p.Name] = true
	}
	var out []SafetyProfile
	for _, p := range BuiltInProfiles() {
		if !byName[p.Name] {
			out = append(out, p)
		}
	}
	sorted := append([]SafetyProfile(nil), custom...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return append(out, sorted...)
}

// FindProfile returns the named profile from the built-in and custom sets.
func FindProfile(name string, custom []SafetyProfile) (SafetyProfile, error) {
	for _, p := range AllProfiles(custom) {
		if p.Name == name {
			return p, nil
		}
	}
	return SafetyProfile{}, &model.NotFoundError{Kind: "safety profile", Name: name}
}

// ExportProfile exports a single profile to a JSON file (for sharing).
func ExportProfile(path string, profile SafetyProfile) error {
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ImportProfile imports a single profile from a JSON file.
func ImportProfile(path string) (SafetyProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SafetyProfile{}, err
	}

	var profile SafetyProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return SafetyProfile{}, err
	}

	if profile.Name == "" {
		return SafetyProfile{}, errors.New("imported profile has no name")
	}
	if err := profile.Safety.Validate(); err != nil {
		return SafetyProfile{}, fmt.Errorf("imported profile %q: %w", profile.Name, err)
	}
	return profile, nil
}
