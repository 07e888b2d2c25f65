// Package repository provides the read-only lookups the collision engine
// needs from the treatment planning database, backed by SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS external_field (
	plan_uid       TEXT NOT NULL,
	field_id       TEXT NOT NULL,
	gantry_rtn_ext TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (plan_uid, field_id)
);
CREATE TABLE IF NOT EXISTS image_slice (
	series_uid TEXT NOT NULL,
	slice_no   INTEGER NOT NULL DEFAULT 0,
	couch_vrt  REAL,
	PRIMARY KEY (series_uid, slice_no)
);`

// SQLiteStore serves extended-range codes and CT couch positions from a
// SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ExtendedRangeCode returns the auto-sequencing extended range code of a
// beam, or "" when none is recorded.
func (s *SQLiteStore) ExtendedRangeCode(ctx context.Context, planUID, beamID string) (string, error) {
	var code string
	err := s.db.QueryRowContext(ctx,
		`SELECT gantry_rtn_ext FROM external_field WHERE plan_uid = ? AND field_id = ?`,
		planUID, beamID,
	).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query extended range of %s/%s: %w", planUID, beamID, err)
	}
	return code, nil
}

// SliceCouchVertical returns the couch vertical readout (cm) of the first
// slice of the series carrying one, or NaN when there is none.
func (s *SQLiteStore) SliceCouchVertical(ctx context.Context, seriesUID string) (float64, error) {
	var vrt sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT couch_vrt FROM image_slice
		 WHERE series_uid = ? AND couch_vrt IS NOT NULL
		 ORDER BY slice_no LIMIT 1`,
		seriesUID,
	).Scan(&vrt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !vrt.Valid) {
		return math.NaN(), nil
	}
	if err != nil {
		return math.NaN(), fmt.Errorf("failed to query couch position of series %s: %w", seriesUID, err)
	}
	return vrt.Float64, nil
}

// UpsertExtendedRange records the extended range code of a beam.
func (s *SQLiteStore) UpsertExtendedRange(ctx context.Context, planUID, beamID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO external_field (plan_uid, field_id, gantry_rtn_ext) VALUES (?, ?, ?)
		 ON CONFLICT(plan_uid, field_id) DO UPDATE SET gantry_rtn_ext = excluded.gantry_rtn_ext`,
		planUID, beamID, code,
	)
	if err != nil {
		return fmt.Errorf("failed to store extended range of %s/%s: %w", planUID, beamID, err)
	}
	return nil
}

// UpsertSliceCouchVertical records the couch vertical readout (cm) of one
// slice of a CT series.
func (s *SQLiteStore) UpsertSliceCouchVertical(ctx context.Context, seriesUID string, sliceNo int, vrt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_slice (series_uid, slice_no, couch_vrt) VALUES (?, ?, ?)
		 ON CONFLICT(series_uid, slice_no) DO UPDATE SET couch_vrt = excluded.couch_vrt`,
		seriesUID, sliceNo, vrt,
	)
	if err != nil {
		return fmt.Errorf("failed to store couch position of series %s: %w", seriesUID, err)
	}
	return nil
}
