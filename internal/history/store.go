// Package history persists the nightly tuning history: one candidate per
// invocation, evaluated on the following invocation.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chkao831/Autotuning/internal/ctest"
	"github.com/chkao831/Autotuning/internal/results"
	"github.com/chkao831/Autotuning/internal/sweep"
	"github.com/chkao831/Autotuning/internal/timeutil"
)

var (
	// ErrEmpty is returned when a case has no history yet.
	ErrEmpty = errors.New("history is empty")
	// ErrNotFound is returned when a specific iteration does not exist.
	ErrNotFound = errors.New("iteration not found")
	// ErrAlreadyEvaluated is returned when recording an outcome twice.
	ErrAlreadyEvaluated = errors.New("iteration already evaluated")
	// ErrNoPassed is returned by Best when no evaluated iteration passed.
	ErrNoPassed = errors.New("no passed iteration")
)

// Record is one nightly candidate.
type Record struct {
	CaseName   string
	IterID     int
	RunID      string
	Assignment sweep.Assignment
	// Outcome is nil until the candidate has been evaluated.
	Outcome     *ctest.Measurement
	CreatedAt   time.Time
	EvaluatedAt time.Time
}

// Pending reports whether the record still awaits evaluation.
func (r *Record) Pending() bool { return r.Outcome == nil }

// Store is the sqlite-backed history.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the history database at path and applies
// schema migrations.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an explicit time source.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history %s: %w", path, err)
	}
	s := &Store{db: db, clock: clock}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts a new pending candidate. IterID must exceed every existing
// iteration of the case. RunID and CreatedAt are filled in when empty.
func (s *Store) Append(r *Record) error {
	if r.CaseName == "" {
		return fmt.Errorf("append history: case name is required")
	}
	if r.IterID < 0 {
		return fmt.Errorf("append history: negative iter_id %d", r.IterID)
	}
	if r.RunID == "" {
		r.RunID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now()
	}
	params, err := json.Marshal(r.Assignment)
	if err != nil {
		return fmt.Errorf("append history: encode params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(iter_id) FROM tuning_history WHERE case_name = ?`, r.CaseName).Scan(&maxID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if maxID.Valid && int64(r.IterID) <= maxID.Int64 {
		return fmt.Errorf("append history: iter_id %d does not follow %d", r.IterID, maxID.Int64)
	}

	if _, err := tx.Exec(`
		INSERT INTO tuning_history (case_name, iter_id, run_id, params_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.CaseName, r.IterID, r.RunID, string(params), r.CreatedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return tx.Commit()
}

// RecordOutcome evaluates a pending iteration. Non-finite durations are
// stored as NULL, and a pass without a finite primary duration is stored
// as failed.
func (s *Store) RecordOutcome(caseName string, iterID int, m ctest.Measurement) error {
	// a pass without a usable duration cannot be ranked
	passed := m.Passed && finiteOrNull(m.Primary) != nil
	res, err := s.db.Exec(`
		UPDATE tuning_history
		SET time_primary = ?, time_total = ?, passed = ?, evaluated_at = ?
		WHERE case_name = ? AND iter_id = ? AND passed IS NULL`,
		finiteOrNull(m.Primary), finiteOrNull(m.Total), passed, s.clock.Now().UnixNano(),
		caseName, iterID,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.get(caseName, iterID); err != nil {
		return err
	}
	return fmt.Errorf("iteration %d of %s: %w", iterID, caseName, ErrAlreadyEvaluated)
}

// Latest returns the highest iteration of the case.
func (s *Store) Latest(caseName string) (*Record, error) {
	row := s.db.QueryRow(selectRecord+`
		WHERE case_name = ?
		ORDER BY iter_id DESC
		LIMIT 1`, caseName)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caseName, ErrEmpty)
	}
	return r, err
}

// Best returns the passed iteration with the smallest primary duration,
// lowest iter_id first on ties.
func (s *Store) Best(caseName string) (*Record, error) {
	row := s.db.QueryRow(selectRecord+`
		WHERE case_name = ? AND passed = 1 AND time_primary IS NOT NULL
		ORDER BY time_primary ASC, iter_id ASC
		LIMIT 1`, caseName)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", caseName, ErrNoPassed)
	}
	return r, err
}

// List returns every iteration of the case in iter_id order.
func (s *Store) List(caseName string) ([]*Record, error) {
	rows, err := s.db.Query(selectRecord+`
		WHERE case_name = ?
		ORDER BY iter_id ASC`, caseName)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cases lists every case with history.
func (s *Store) Cases() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT case_name FROM tuning_history ORDER BY case_name`)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Table converts the case history into a results table in iter_id order.
// Pending iterations are flagged so they export with empty outcome columns.
func (s *Store) Table(caseName string) (*results.Table, error) {
	records, err := s.List(caseName)
	if err != nil {
		return nil, err
	}
	t := &results.Table{}
	seen := make(map[string]bool)
	for _, r := range records {
		for _, col := range r.Assignment.Columns() {
			if !seen[col] {
				seen[col] = true
				t.Columns = append(t.Columns, col)
			}
		}
		row := results.Row{ID: r.IterID, Assignment: r.Assignment, Pending: r.Pending()}
		if r.Outcome != nil {
			row.Primary = r.Outcome.Primary
			row.Total = r.Outcome.Total
			row.Passed = r.Outcome.Passed
			row.Rounds = 1
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ExportCSV writes the case history as CSV.
func (s *Store) ExportCSV(w io.Writer, caseName string) error {
	t, err := s.Table(caseName)
	if err != nil {
		return err
	}
	return results.WriteCSV(w, t)
}

func (s *Store) get(caseName string, iterID int) (*Record, error) {
	row := s.db.QueryRow(selectRecord+`
		WHERE case_name = ? AND iter_id = ?`, caseName, iterID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("iteration %d of %s: %w", iterID, caseName, ErrNotFound)
	}
	return r, err
}

const selectRecord = `
	SELECT case_name, iter_id, run_id, params_json,
	       time_primary, time_total, passed, created_at, evaluated_at
	FROM tuning_history`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r           Record
		params      string
		primary     sql.NullFloat64
		total       sql.NullFloat64
		passed      sql.NullBool
		createdAt   int64
		evaluatedAt sql.NullInt64
	)
	if err := row.Scan(&r.CaseName, &r.IterID, &r.RunID, &params,
		&primary, &total, &passed, &createdAt, &evaluatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan history: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &r.Assignment); err != nil {
		return nil, fmt.Errorf("decode params of iteration %d: %w", r.IterID, err)
	}
	r.CreatedAt = time.Unix(0, createdAt)
	if passed.Valid {
		r.Outcome = &ctest.Measurement{
			Passed:  passed.Bool,
			Primary: nullToInf(primary),
			Total:   nullToInf(total),
		}
		if evaluatedAt.Valid {
			r.EvaluatedAt = time.Unix(0, evaluatedAt.Int64)
		}
	}
	return &r, nil
}

func finiteOrNull(v float64) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return v
}

func nullToInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}
