// Package storage provides SQLite-backed checkpointing for sweep results.
// Each completed coverage value is persisted as one row keyed by sweep ID,
// so a long study can resume without re-running finished levels.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/epistoch/seirsweep/internal/sweep"
)

// Open opens (creating if needed) the SQLite database at path and applies
// pending schema migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("open checkpoint db: path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY and keeps ":memory:" stores
	// on one database.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Store persists the rows of one sweep, identified by its sweep ID.
type Store struct {
	db      *sql.DB
	sweepID string
}

// New returns a Store bound to an existing database handle.
func New(db *sql.DB, sweepID string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is nil")
	}
	if sweepID == "" {
		return nil, fmt.Errorf("store: sweep ID is empty")
	}
	return &Store{db: db, sweepID: sweepID}, nil
}

// coverageKey formats a coverage value for exact primary-key matching.
func coverageKey(coverage float64) string {
	return strconv.FormatFloat(coverage, 'g', -1, 64)
}

// Save upserts one completed row. A NaN mean size is stored as NULL.
func (s *Store) Save(row sweep.Row) error {
	var meanSize any
	if !math.IsNaN(row.MeanSize) {
		meanSize = row.MeanSize
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.Exec(`
		INSERT INTO sweep_rows (sweep_id, coverage, probability, mean_size, epidemics, failures, replications, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sweep_id, coverage) DO UPDATE SET
			probability = excluded.probability,
			mean_size = excluded.mean_size,
			epidemics = excluded.epidemics,
			failures = excluded.failures,
			replications = excluded.replications,
			completed_at = excluded.completed_at;`,
		s.sweepID, coverageKey(row.Coverage), row.Probability, meanSize,
		row.Epidemics, row.Failures, row.Replications, now)
	if err != nil {
		return fmt.Errorf("save row p=%g: %w", row.Coverage, err)
	}
	return nil
}

// Lookup returns the completed row for a coverage value, if present.
func (s *Store) Lookup(coverage float64) (sweep.Row, bool, error) {
	row := sweep.Row{Coverage: coverage}
	var meanSize sql.NullFloat64

	err := s.db.QueryRow(`
		SELECT probability, mean_size, epidemics, failures, replications
		FROM sweep_rows WHERE sweep_id = ? AND coverage = ?;`,
		s.sweepID, coverageKey(coverage)).
		Scan(&row.Probability, &meanSize, &row.Epidemics, &row.Failures, &row.Replications)
	if errors.Is(err, sql.ErrNoRows) {
		return sweep.Row{}, false, nil
	}
	if err != nil {
		return sweep.Row{}, false, fmt.Errorf("lookup row p=%g: %w", coverage, err)
	}

	row.MeanSize = math.NaN()
	if meanSize.Valid {
		row.MeanSize = meanSize.Float64
	}
	return row, true, nil
}

// Rows returns every completed row of the sweep ordered by coverage.
func (s *Store) Rows() ([]sweep.Row, error) {
	result, err := s.db.Query(`
		SELECT coverage, probability, mean_size, epidemics, failures, replications
		FROM sweep_rows WHERE sweep_id = ? ORDER BY CAST(coverage AS REAL);`, s.sweepID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer result.Close()

	var rows []sweep.Row
	for result.Next() {
		var row sweep.Row
		var coverage string
		var meanSize sql.NullFloat64
		if err := result.Scan(&coverage, &row.Probability, &meanSize, &row.Epidemics, &row.Failures, &row.Replications); err != nil {
			return nil, fmt.Errorf("list rows: scan: %w", err)
		}
		row.Coverage, err = strconv.ParseFloat(coverage, 64)
		if err != nil {
			return nil, fmt.Errorf("list rows: bad coverage %q: %w", coverage, err)
		}
		row.MeanSize = math.NaN()
		if meanSize.Valid {
			row.MeanSize = meanSize.Float64
		}
		rows = append(rows, row)
	}
	return rows, result.Err()
}
