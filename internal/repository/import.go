package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ImportStats counts the rows written by ImportCSV.
type ImportStats struct {
	Fields int
	Slices int
}

// ImportCSV seeds the store from a CSV export with rows of the form
//
//	field,<plan uid>,<beam id>,<extended range code>
//	slice,<series uid>,<slice number>,<couch vertical cm>
//
// A leading header row starting with "kind" is skipped. Import stops at the
// first malformed row.
func (s *SQLiteStore) ImportCSV(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return stats, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if len(rec) == 0 || (line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "kind")) {
			continue
		}
		if len(rec) < 3 {
			return stats, fmt.Errorf("row %d: expected at least 3 columns, got %d", line, len(rec))
		}
		value := ""
		if len(rec) > 3 {
			value = strings.TrimSpace(rec[3])
		}

		switch strings.ToLower(strings.TrimSpace(rec[0])) {
		case "field":
			if err := s.UpsertExtendedRange(ctx, rec[1], rec[2], value); err != nil {
				return stats, err
			}
			stats.Fields++
		case "slice":
			sliceNo, err := strconv.Atoi(strings.TrimSpace(rec[2]))
			if err != nil {
				return stats, fmt.Errorf("row %d: invalid slice number %q", line, rec[2])
			}
			vrt, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return stats, fmt.Errorf("row %d: invalid couch vertical %q", line, value)
			}
			if err := s.UpsertSliceCouchVertical(ctx, rec[1], sliceNo, vrt); err != nil {
				return stats, err
			}
			stats.Slices++
		default:
			return stats, fmt.Errorf("row %d: unknown row kind %q", line, rec[0])
		}
	}
	return stats, nil
}
