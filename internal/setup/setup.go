// Package setup runs the plan setup checks that accompany the collision
// check: machine consistency, couch rotation, couch insertion and the
// gantry rotation direction.
package setup

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/piwi3910/GantryGuard/internal/engine"
	"github.com/piwi3910/GantryGuard/internal/model"
)

// Warning texts.
const (
	MsgDifferentMachines = "Different machines assigned in the plan."
	MsgCouchNotInserted  = "Couch structure not inserted."
	MsgCouchMismatch     = "The couch model inserted doesn't correspond to the machine used."
	MsgCouchHU           = "Verify the couch HUs assigned:"
	MsgAssignedHU        = "Volumes with assigned HUs:"
	MsgGantryDirection   = "Check extended gantry option in:"
)

// gantryDirection bounds: an isocenter more than gantryDirectionOffset mm
// off the centerline should be reached from its own side when the gantry
// is near 180 degrees.
const (
	gantryDirectionOffset = 20.0
	gantryDirectionLow    = 175.0
	gantryDirectionHigh   = 185.0
)

// Options tunes the setup checks.
type Options struct {
	// IgnoreStructures holds Like patterns of structures left out of the
	// assigned-HU listing.
	IgnoreStructures []string

	// Ranges resolves extended range codes for the gantry direction check.
	// Beams fall back to their inline code when it is nil.
	Ranges engine.ExtendedRangeSource
}

// Run returns the setup warnings for the plan, in a fixed order.
func Run(ctx context.Context, plan model.Plan, catalog *model.Catalog, cfg model.SafetyConfig, opts Options) []string {
	var warnings []string

	if !sameMachine(plan) {
		warnings = append(warnings, MsgDifferentMachines)
	}
	if couchRotationWarning(plan, cfg) {
		warnings = append(warnings, "Couch Rotation > "+strconv.FormatFloat(cfg.MaxCouchRotWarning, 'f', -1, 64)+" degrees.")
	}
	warnings = append(warnings, couchWarnings(plan, catalog)...)
	if msg := assignedHUWarning(plan, opts.IgnoreStructures); msg != "" {
		warnings = append(warnings, msg)
	}
	if msg := gantryDirectionWarning(ctx, plan, cfg, opts.Ranges); msg != "" {
		warnings = append(warnings, msg)
	}
	return warnings
}

// gantryDirectionWarning lists control points with the gantry near 180
// degrees whose rotation sector is on the far side of a lateral isocenter.
// Beams beyond MaxCouchRotCalc are listed separately, and only when some
// beam is flagged.
func gantryDirectionWarning(ctx context.Context, plan model.Plan, cfg model.SafetyConfig, ranges engine.ExtendedRangeSource) string {
	var flagged, notChecked []string
	for _, b := range plan.Beams {
		if !engine.InCalcRange(b.CouchRotation, cfg.MaxCouchRotCalc) {
			notChecked = append(notChecked, "  - "+b.ID)
			continue
		}
		geo, err := engine.Geometry(b, plan.Orientation)
		if err != nil {
			continue
		}
		code := extendedRange(ctx, plan, b, ranges)
		x := geo.Isocenter.X
		for _, cp := range geo.ControlPoints() {
			g := geo.GantryAngle(cp)
			if g <= gantryDirectionLow || g >= gantryDirectionHigh {
				continue
			}
			s := engine.ResolveSector(g, code)
			if (x > gantryDirectionOffset && s.Left) || (x < -gantryDirectionOffset && s.Right) {
				flagged = append(flagged, "  - "+b.ID+" ("+cp.Label()+")")
			}
		}
	}
	if len(flagged) == 0 {
		return ""
	}
	lines := append([]string{MsgGantryDirection}, flagged...)
	if len(notChecked) > 0 {
		lines = append(lines, "Gantry direction not checked (Couch Rotation > "+
			strconv.FormatFloat(cfg.MaxCouchRotCalc, 'f', -1, 64)+" degrees):")
		lines = append(lines, notChecked...)
	}
	return strings.Join(lines, "\n")
}

func extendedRange(ctx context.Context, plan model.Plan, b model.Beam, ranges engine.ExtendedRangeSource) string {
	if ranges == nil {
		return b.ExtendedRange
	}
	code, err := ranges.ExtendedRangeCode(ctx, plan.UID, b.ID)
	if err != nil || code == "" {
		return b.ExtendedRange
	}
	return code
}

func sameMachine(plan model.Plan) bool {
	for _, b := range plan.Beams {
		if b.MachineID != plan.PrimaryMachine() {
			return false
		}
	}
	return true
}

func couchRotationWarning(plan model.Plan, cfg model.SafetyConfig) bool {
	for _, b := range plan.Beams {
		if engine.ExceedsWarningRotation(b.CouchRotation, cfg.MaxCouchRotWarning) {
			return true
		}
	}
	return false
}

// couchWarnings checks that a couch is inserted, that it is one of the
// machine's couch regions and that its parts carry the catalog HU values.
func couchWarnings(plan model.Plan, catalog *model.Catalog) []string {
	couches := plan.CouchStructures()
	if len(couches) == 0 {
		return []string{MsgCouchNotInserted}
	}
	if catalog == nil {
		return nil
	}
	def, err := catalog.Lookup(plan.PrimaryMachine())
	if err != nil {
		return []string{MsgCouchMismatch}
	}

	var region model.CouchRegion
	matched := false
	for _, s := range couches {
		if r, err := catalog.FindRegion(def, s.Name); err == nil {
			region, matched = r, true
			break
		}
	}
	if !matched {
		return []string{MsgCouchMismatch}
	}

	var lines []string
	for _, s := range couches {
		if s.Name != region.Name || s.AssignedHU == nil {
			continue
		}
		for _, part := range region.Parts {
			if part.Name == s.ID && round1(part.HU) != round1(*s.AssignedHU) {
				lines = append(lines, "  - "+s.ID+": "+strconv.FormatFloat(*s.AssignedHU, 'f', -1, 64)+" HU")
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return []string{MsgCouchHU + "\n" + strings.Join(lines, "\n")}
}

// assignedHUWarning lists non-couch structures carrying an HU override.
func assignedHUWarning(plan model.Plan, ignore []string) string {
	var lines []string
	for _, s := range plan.Structures {
		if s.IsCouch() || s.AssignedHU == nil || ignored(s.ID, ignore) {
			continue
		}
		lines = append(lines, "  - "+s.ID+": "+strconv.FormatFloat(math.RoundToEven(*s.AssignedHU), 'f', 0, 64)+" HU.")
	}
	if len(lines) == 0 {
		return ""
	}
	return MsgAssignedHU + "\n" + strings.Join(lines, "\n")
}

func ignored(id string, patterns []string) bool {
	for _, p := range patterns {
		if Like(id, p) {
			return true
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

// Like reports whether str matches pattern, where "*" matches any sequence
// of characters and "?" a single character. Matching ignores case.
func Like(str, pattern string) bool {
	expr := "^" + strings.NewReplacer(`\*`, ".*", `\?`, ".").Replace(regexp.QuoteMeta(pattern)) + "$"
	re, err := regexp.Compile("(?is)" + expr)
	if err != nil {
		return false
	}
	return re.MatchString(str)
}
