// Package importer provides CSV and Excel import of beam tables.
// It supports automatic delimiter detection, flexible column mapping, and
// case-insensitive header recognition.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/GantryGuard/internal/model"
)

// ImportResult holds the results of an import operation.
type ImportResult struct {
	Beams    []model.Beam
	Errors   []string
	Warnings []string
}

// ColumnMapping maps semantic column roles to their indices in the data.
type ColumnMapping struct {
	ID            int
	Machine       int
	Technique     int
	GantryStart   int
	GantryEnd     int
	Couch         int
	IsoX          int
	IsoY          int
	IsoZ          int
	ExtendedRange int
}

// headerAliases maps canonical column names to their accepted aliases (all lowercase).
var headerAliases = map[string][]string{
	"id":        {"beam id", "beam", "field", "field id", "id", "name"},
	"machine":   {"machine", "machine id", "treatment unit", "unit", "linac"},
	"technique": {"technique", "type", "delivery"},
	"start":     {"gantry start", "gantry", "gantry rtn", "start angle", "gantry angle"},
	"end":       {"gantry end", "gantry stop", "stop angle", "end angle"},
	"couch":     {"couch", "couch rtn", "couch rotation", "couch angle", "table", "table angle"},
	"isox":      {"iso x", "isocenter x", "x"},
	"isoy":      {"iso y", "isocenter y", "y"},
	"isoz":      {"iso z", "isocenter z", "z"},
	"extended":  {"extended range", "extended", "gantry rtn ext", "ext"},
}

// knownTechniques lists the technique names that map without a warning.
var knownTechniques = map[string]bool{
	"":              true,
	"static":        true,
	"srs static":    true,
	"arc":           true,
	"vmat":          true,
	"dynamic arc":   true,
	"conformal arc": true,
	"srs arc":       true,
}

// DetectCSVDelimiter reads the file content and determines the most likely CSV delimiter.
// It tries comma, semicolon, tab, and pipe. The delimiter that produces the most
// consistent (non-one) column count across lines wins.
func DetectCSVDelimiter(data []byte) rune {
	candidates := []rune{',', ';', '\t', '|'}
	bestDelimiter := ','
	bestScore := 0

	for _, delim := range candidates {
		reader := csv.NewReader(bytes.NewReader(data))
		reader.Comma = delim
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		records, err := reader.ReadAll()
		if err != nil || len(records) < 1 {
			continue
		}

		firstCols := len(records[0])
		if firstCols < 2 {
			continue
		}

		score := 0
		for _, row := range records {
			if len(row) == firstCols {
				score++
			}
		}

		weighted := score*10 + firstCols
		if weighted > bestScore {
			bestScore = weighted
			bestDelimiter = delim
		}
	}

	return bestDelimiter
}

// DetectColumns examines a header row and returns a ColumnMapping.
// Returns the mapping and true if a header was detected, or the positional
// mapping (ID, Machine, Technique, Gantry Start, Gantry End, Couch, Iso X,
// Iso Y, Iso Z, Extended Range) and false if no header was found.
func DetectColumns(row []string) (ColumnMapping, bool) {
	mapping := ColumnMapping{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	slots := map[string]*int{
		"id":        &mapping.ID,
		"machine":   &mapping.Machine,
		"technique": &mapping.Technique,
		"start":     &mapping.GantryStart,
		"end":       &mapping.GantryEnd,
		"couch":     &mapping.Couch,
		"isox":      &mapping.IsoX,
		"isoy":      &mapping.IsoY,
		"isoz":      &mapping.IsoZ,
		"extended":  &mapping.ExtendedRange,
	}

	isHeader := false
	for i, cell := range row {
		normalized := normalizeHeader(cell)
		for role, aliases := range headerAliases {
			for _, alias := range aliases {
				if normalized == alias && *slots[role] == -1 {
					*slots[role] = i
					isHeader = true
				}
			}
		}
	}

	if !isHeader {
		return ColumnMapping{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, false
	}
	return mapping, true
}

// normalizeHeader lowercases a header cell and drops a trailing unit
// suffix such as "(deg)" or "[mm]".
func normalizeHeader(cell string) string {
	s := strings.ToLower(strings.TrimSpace(cell))
	if i := strings.IndexAny(s, "(["); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), " ")
}

// getCell safely retrieves a cell value from a row by column index.
// Returns empty string if the index is out of range or negative.
func getCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseFloat parses a number, accepting a decimal comma.
func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

// parseRow extracts a Beam from a row using the given column mapping.
// Returns the beam, any error message, and any warning messages.
func parseRow(row []string, mapping ColumnMapping, rowLabel string) (model.Beam, string, []string) {
	var warnings []string

	id := getCell(row, mapping.ID)
	if id == "" {
		return model.Beam{}, fmt.Sprintf("%s: Missing beam ID", rowLabel), nil
	}
	machine := getCell(row, mapping.Machine)
	if machine == "" {
		return model.Beam{}, fmt.Sprintf("%s: Missing machine for beam '%s'", rowLabel, id), nil
	}

	b := model.Beam{ID: id, MachineID: machine}

	techStr := getCell(row, mapping.Technique)
	if !knownTechniques[strings.ToLower(techStr)] {
		warnings = append(warnings, fmt.Sprintf("%s: Unknown technique '%s', treating as STATIC", rowLabel, techStr))
	}
	b.Technique = model.ParseTechnique(techStr)

	required := []struct {
		name string
		idx  int
		dst  *float64
	}{
		{"gantry start", mapping.GantryStart, &b.GantryStart},
		{"iso X", mapping.IsoX, &b.Isocenter.X},
		{"iso Y", mapping.IsoY, &b.Isocenter.Y},
		{"iso Z", mapping.IsoZ, &b.Isocenter.Z},
	}
	for _, f := range required {
		s := getCell(row, f.idx)
		if s == "" {
			return model.Beam{}, fmt.Sprintf("%s: Missing %s value", rowLabel, f.name), nil
		}
		v, err := parseFloat(s)
		if err != nil {
			return model.Beam{}, fmt.Sprintf("%s: Invalid %s '%s'", rowLabel, f.name, s), nil
		}
		*f.dst = v
	}

	if s := getCell(row, mapping.Couch); s != "" {
		v, err := parseFloat(s)
		if err != nil {
			return model.Beam{}, fmt.Sprintf("%s: Invalid couch '%s'", rowLabel, s), nil
		}
		b.CouchRotation = v
	}

	endStr := getCell(row, mapping.GantryEnd)
	switch {
	case b.Technique == model.TechniqueArc && endStr == "":
		return model.Beam{}, fmt.Sprintf("%s: Arc beam '%s' has no gantry end", rowLabel, id), nil
	case endStr != "":
		v, err := parseFloat(endStr)
		if err != nil {
			return model.Beam{}, fmt.Sprintf("%s: Invalid gantry end '%s'", rowLabel, endStr), nil
		}
		if b.Technique == model.TechniqueArc {
			b.GantryEnd = v
		} else if v != b.GantryStart {
			warnings = append(warnings, fmt.Sprintf("%s: Gantry end ignored for static beam '%s'", rowLabel, id))
		}
	}
	if b.Technique != model.TechniqueArc {
		b.GantryEnd = b.GantryStart
	}

	b.ExtendedRange = strings.ToUpper(getCell(row, mapping.ExtendedRange))
	return b, "", warnings
}

// isEmptyRow returns true if the row has no meaningful content.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ImportBeams imports beams from a CSV or Excel file, chosen by extension.
func ImportBeams(path string) ImportResult {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xls":
		return ImportExcel(path)
	default:
		return ImportCSV(path)
	}
}

// ImportCSV imports beams from a CSV file.
// It automatically detects the delimiter and maps columns by header names.
func ImportCSV(path string) ImportResult {
	result := ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open file: %v", err))
		return result
	}

	if len(bytes.TrimSpace(data)) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	delimiter := DetectCSVDelimiter(data)
	if delimiter != ',' {
		delimName := map[rune]string{';': "semicolon", '\t': "tab", '|': "pipe"}[delimiter]
		result.Warnings = append(result.Warnings, fmt.Sprintf("Detected %s delimiter", delimName))
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line", result.Warnings)
}

// ImportCSVFromReader imports beams from a CSV reader with a specific delimiter.
func ImportCSVFromReader(reader io.Reader, delimiter rune) ImportResult {
	result := ImportResult{}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = delimiter
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read CSV: %v", err))
		return result
	}

	return importFromRows(records, "Line", nil)
}

// ImportExcel imports beams from an Excel file.
// Reads the first sheet and auto-detects column mapping from headers.
func ImportExcel(path string) ImportResult {
	result := ImportResult{}

	f, err := excelize.OpenFile(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot open Excel file: %v", err))
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.Errors = append(result.Errors, "Excel file has no sheets")
		return result
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Cannot read Excel data: %v", err))
		return result
	}

	return importFromRows(rows, "Row", nil)
}

// importFromRows is the shared import logic for both CSV and Excel data.
// It detects headers, maps columns, and parses each row into beams.
func importFromRows(rows [][]string, rowPrefix string, initialWarnings []string) ImportResult {
	result := ImportResult{
		Warnings: initialWarnings,
	}

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "File is empty")
		return result
	}

	mapping, hasHeader := DetectColumns(rows[0])
	startRow := 0
	if hasHeader {
		startRow = 1
		result.Warnings = append(result.Warnings, "Detected header row, skipping")

		missing := []string{}
		for _, c := range []struct {
			name string
			idx  int
		}{
			{"Beam ID", mapping.ID},
			{"Machine", mapping.Machine},
			{"Gantry Start", mapping.GantryStart},
			{"Iso X", mapping.IsoX},
			{"Iso Y", mapping.IsoY},
			{"Iso Z", mapping.IsoZ},
		} {
			if c.idx == -1 {
				missing = append(missing, c.name)
			}
		}
		if len(missing) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("Required columns not found in header: %s", strings.Join(missing, ", ")))
			return result
		}
	}

	seen := map[string]bool{}
	for i := startRow; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		rowLabel := fmt.Sprintf("%s %d", rowPrefix, i+1)
		beam, errMsg, warnings := parseRow(row, mapping, rowLabel)
		if errMsg != "" {
			result.Errors = append(result.Errors, errMsg)
			continue
		}
		if seen[beam.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: Duplicate beam ID '%s'", rowLabel, beam.ID))
			continue
		}
		seen[beam.ID] = true
		result.Warnings = append(result.Warnings, warnings...)
		result.Beams = append(result.Beams, beam)
	}

	if len(result.Beams) == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, "No data rows found")
	}
	return result
}
