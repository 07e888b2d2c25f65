package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/piwi3910/GantryGuard/internal/engine"
	"github.com/piwi3910/GantryGuard/internal/model"
	"github.com/piwi3910/GantryGuard/internal/project"
)

const (
	msgNoCustomProfiles = "No custom profiles saved yet."
)

// newReplayCommand re-runs an archived check with the archived thresholds
// and compares the outcome with the archived verdict.
func newReplayCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay ARCHIVE",
		Short: "Replay an archived check and compare the verdict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := project.ImportArchive(args[0])
			if err != nil {
				return err
			}
			var archived struct {
				Evaluated         bool     `json:"evaluated"`
				PatientOK         bool     `json:"patient_ok"`
				CouchOK           bool     `json:"couch_ok"`
				CouchVertical     *float64 `json:"couch_vertical"`
				CouchVerticalFrom string   `json:"couch_vertical_source"`
			}
			if err := json.Unmarshal(archive.Report, &archived); err != nil {
				return fmt.Errorf("failed to parse archived report: %w", err)
			}

			if archive.CatalogVersion != a.catalog.Version() {
				a.log.WithField("archived", archive.CatalogVersion).
					WithField("current", a.catalog.Version()).
					Warn("catalog version differs from the archived check")
			}

			ev := engine.New(archive.Safety, a.catalog)
			ev.Log = a.log

			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				ev.Ranges = store
				ev.Slices = store
			} else if archived.CouchVerticalFrom == engine.CouchFromCT {
				return errors.New("archived check took the couch position from CT, set --db or database_path to replay it")
			}
			report := ev.EvaluatePlan(cmd.Context(), archive.Plan)

			if archived.CouchVertical != nil && report.CouchVertical != *archived.CouchVertical {
				a.log.WithFields(logrus.Fields{
					"archived": *archived.CouchVertical,
					"current":  report.CouchVertical,
				}).Warn("couch vertical position differs from the archived check")
			}

			out := cmd.OutOrStdout()
			if err := writeReport(out, report, false); err != nil {
				return err
			}
			if report.Evaluated != archived.Evaluated || report.PatientOK != archived.PatientOK || report.CouchOK != archived.CouchOK {
				return fmt.Errorf("replay of plan %s differs from the archive: evaluated=%t patient_ok=%t couch_ok=%t, archived evaluated=%t patient_ok=%t couch_ok=%t",
					archive.Plan.ID, report.Evaluated, report.PatientOK, report.CouchOK,
					archived.Evaluated, archived.PatientOK, archived.CouchOK)
			}
			fmt.Fprintln(out, "Replay matches the archived verdict.")
			return nil
		},
	}
}

func newCatalogCommand(a *app) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the machine catalog",
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List machines and couch regions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog version %s\n", a.catalog.Version())
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, m := range a.catalog.Machines() {
				fmt.Fprintf(w, "%s\t%s couch\n", m.ID, m.CouchType)
				for _, r := range m.Regions {
					fmt.Fprintf(w, "  - %s\tcorrection %.1f mm, %d envelope(s), %d part(s)\n",
						r.Name, r.VerticalCorrection, len(r.Envelopes), len(r.Parts))
				}
			}
			return w.Flush()
		},
	})

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the built-in catalog YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write(model.DefaultCatalogYAML())
			return err
		},
	})
	return catalogCmd
}

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), a.cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(a.configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists, use --force to overwrite", a.configPath)
			}
			if err := project.SaveAppConfig(a.configPath, project.DefaultAppConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", a.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(initCmd)
	return configCmd
}

func newDBCommand(a *app) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the lookup database",
	}

	dbCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import extended-range codes and CT slice couch positions from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no database configured, set --db or database_path")
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			stats, err := store.ImportCSV(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d field(s) and %d slice(s) into %s\n", stats.Fields, stats.Slices, store.Path())
			return nil
		},
	})
	return dbCmd
}

func newProfileCommand(a *app) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage safety profiles",
	}

	profileCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in and custom safety profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			custom, err := project.LoadCustomProfiles(a.profilesPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, p := range project.AllProfiles(custom) {
				kind := "custom"
				if p.IsBuiltIn {
					kind = "built-in"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, kind, p.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if len(custom) == 0 {
				fmt.Fprintln(out, msgNoCustomProfiles)
			}
			return nil
		},
	})

	profileCmd.AddCommand(&cobra.Command{
		Use:   "export NAME FILE",
		Short: "Export a profile to a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			custom, err := project.LoadCustomProfiles(a.profilesPath)
			if err != nil {
				return err
			}
			p, err := project.FindProfile(args[0], custom)
			if err != nil {
				return err
			}
			if err := project.ExportProfile(args[1], p); err != nil {
				return fmt.Errorf("failed to export profile: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported profile %q to %s\n", p.Name, args[1])
			return nil
		},
	})

	profileCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import a profile from a JSON file, replacing a custom profile of the same name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := project.ImportProfile(args[0])
			if err != nil {
				return fmt.Errorf("failed to import profile: %w", err)
			}
			custom, err := project.LoadCustomProfiles(a.profilesPath)
			if err != nil {
				return err
			}
			replaced := false
			for i := range custom {
				if custom[i].Name == p.Name {
					custom[i] = p
					replaced = true
				}
			}
			if !replaced {
				custom = append(custom, p)
			}
			if err := project.SaveCustomProfiles(a.profilesPath, custom); err != nil {
				return fmt.Errorf("failed to save profiles: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported profile %q\n", p.Name)
			return nil
		},
	})
	return profileCmd
}

func newPlanCommand(a *app) *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Convert beam tables into plan documents",
	}

	var (
		src    planSource
		output string
	)
	importCmd := &cobra.Command{
		Use:   "import BEAMS",
		Short: "Build a JSON plan document from a CSV or XLSX beam table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, warnings, err := src.fromBeams(args[0])
			for _, w := range warnings {
				a.log.Warn(w)
			}
			if err != nil {
				return err
			}
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			if err := project.SavePlan(output, plan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote plan %s with %d beam(s) to %s\n", plan.ID, len(plan.Beams), output)
			return nil
		},
	}
	src.register(importCmd, false)
	importCmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	planCmd.AddCommand(importCmd)
	return planCmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
