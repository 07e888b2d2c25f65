package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GANTRYGUARD_"

// AppConfig holds the persisted application settings.
type AppConfig struct {
	Safety           model.SafetyConfig `json:"safety"`
	Profile          string             `json:"profile,omitempty"` // named safety profile applied over Safety
	LogLevel         string             `json:"log_level"`
	LogFormat        string             `json:"log_format"`              // "text" or "json"
	DatabasePath     string             `json:"database_path,omitempty"` // empty disables database lookups
	CatalogPath      string             `json:"catalog_path,omitempty"`  // YAML override of the embedded catalog
	MetricsAddr      string             `json:"metrics_addr,omitempty"`  // e.g. ":9464"
	IgnoreStructures []string           `json:"ignore_structures"`       // Like patterns left out of the HU listing
}

// DefaultAppConfig returns the built-in settings.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Safety:           model.DefaultSafetyConfig(),
		LogLevel:         "info",
		LogFormat:        "text",
		DatabasePath:     filepath.Join(DefaultConfigDir(), "gantryguard.db"),
		IgnoreStructures: []string{},
	}
}

// DefaultConfigDir returns the default directory for application configuration.
// On all platforms this is ~/.gantryguard/
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".gantryguard")
}

// DefaultConfigPath returns the default path for the application config file.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// SaveAppConfig persists an AppConfig to the given path as JSON.
// It creates any missing parent directories automatically.
func SaveAppConfig(path string, config AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadAppConfig reads an AppConfig from the given path and applies the
// environment overrides. If the file does not exist, the defaults are used.
func LoadAppConfig(path string) (AppConfig, error) {
	config := DefaultAppConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return AppConfig{}, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return AppConfig{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	// Ensure IgnoreStructures is never nil
	if config.IgnoreStructures == nil {
		config.IgnoreStructures = []string{}
	}

	if err := ApplyEnv(&config); err != nil {
		return AppConfig{}, err
	}
	if err := config.Safety.Validate(); err != nil {
		return AppConfig{}, fmt.Errorf("invalid safety settings: %w", err)
	}
	return config, nil
}

// LoadDotEnv loads environment variables from the given .env files (".env"
// when none is given). Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides config fields from GANTRYGUARD_* environment variables.
func ApplyEnv(config *AppConfig) error {
	config.LogLevel = getEnv(EnvPrefix+"LOG_LEVEL", config.LogLevel)
	config.LogFormat = getEnv(EnvPrefix+"LOG_FORMAT", config.LogFormat)
	config.DatabasePath = getEnv(EnvPrefix+"DB", config.DatabasePath)
	config.CatalogPath = getEnv(EnvPrefix+"CATALOG", config.CatalogPath)
	config.MetricsAddr = getEnv(EnvPrefix+"METRICS_ADDR", config.MetricsAddr)
	config.Profile = getEnv(EnvPrefix+"PROFILE", config.Profile)
	if v, ok := os.LookupEnv(EnvPrefix + "IGNORE_STRUCTURES"); ok {
		config.IgnoreStructures = splitList(v)
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"MAX_COUCH_ROT_CALC", &config.Safety.MaxCouchRotCalc},
		{"MAX_COUCH_ROT_WARNING", &config.Safety.MaxCouchRotWarning},
		{"SAFETY_MARGIN_DISTANCE", &config.Safety.SafetyMarginDistance},
		{"SAFETY_MARGIN_GANTRY_ANGLE", &config.Safety.SafetyMarginGantryAngle},
		{"CT_CORRECTION", &config.Safety.CouchVertPositionCTCorrection},
	}
	for _, f := range floats {
		v, err := getEnvAsFloat(EnvPrefix+f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = v
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
