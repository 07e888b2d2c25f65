// Package cli implements the gantryguard command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/piwi3910/GantryGuard/internal/logging"
	"github.com/piwi3910/GantryGuard/internal/model"
	"github.com/piwi3910/GantryGuard/internal/project"
	"github.com/piwi3910/GantryGuard/internal/repository"
)

// Options holds CLI-level configuration.
type Options struct {
	// EnvFiles are loaded before the config. Missing files are ignored.
	EnvFiles []string
}

// app carries the state shared by all commands once the root pre-run has
// loaded the configuration.
type app struct {
	configPath   string
	profilesPath string

	cfg     project.AppConfig
	log     *logrus.Logger
	catalog *model.Catalog
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(opts Options) *cobra.Command {
	a := &app{}
	var (
		logLevel    string
		logFormat   string
		dbPath      string
		catalogPath string
	)

	root := &cobra.Command{
		Use:   "gantryguard",
		Short: "GantryGuard - gantry collision check for treatment plans",
		Long: "GantryGuard predicts gantry collisions with the patient and the treatment couch " +
			"for every beam of a plan and runs the accompanying setup checks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := project.LoadDotEnv(opts.EnvFiles...); err != nil {
				return err
			}
			cfg, err := project.LoadAppConfig(a.configPath)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if flags.Changed("db") {
				cfg.DatabasePath = dbPath
			}
			if flags.Changed("catalog") {
				cfg.CatalogPath = catalogPath
			}
			a.cfg = cfg
			a.log = logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cmd.ErrOrStderr()})

			a.catalog, err = project.LoadCatalogFile(cfg.CatalogPath)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"config":  a.configPath,
				"catalog": a.catalog.Version(),
			}).Debug("configuration loaded")
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", project.DefaultConfigPath(), "Path to the config file")
	pf.StringVar(&a.profilesPath, "profiles", project.DefaultProfilesPath(), "Path to the custom safety profiles file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, off)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (text or json)")
	pf.StringVar(&dbPath, "db", "", "SQLite database path, empty to disable lookups")
	pf.StringVar(&catalogPath, "catalog", "", "YAML machine catalog replacing the built-in one")

	root.AddCommand(
		newCheckCommand(a),
		newReplayCommand(a),
		newCatalogCommand(a),
		newConfigCommand(a),
		newDBCommand(a),
		newProfileCommand(a),
		newPlanCommand(a),
	)
	return root
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context, opts Options, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// openStore opens the configured database, or returns nil when lookups are
// disabled.
func (a *app) openStore() (*repository.SQLiteStore, error) {
	if a.cfg.DatabasePath == "" {
		return nil, nil
	}
	store, err := repository.Open(a.cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// safety resolves the thresholds: the named profile when one is given or
// configured, otherwise the config's own values.
func (a *app) safety(profileName string) (model.SafetyConfig, error) {
	if profileName == "" {
		profileName = a.cfg.Profile
	}
	if profileName == "" {
		return a.cfg.Safety, nil
	}
	custom, err := project.LoadCustomProfiles(a.profilesPath)
	if err != nil {
		return model.SafetyConfig{}, err
	}
	p, err := project.FindProfile(profileName, custom)
	if err != nil {
		return model.SafetyConfig{}, err
	}
	return p.Safety, nil
}
