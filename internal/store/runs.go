package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ForecastRun is the audit row for one pipeline execution.
type ForecastRun struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Seed         uint64
	Success      bool
	ErrorMessage sql.NullString
}

// StartRun records a new run and returns it.
func (s *Store) StartRun(seed uint64) (*ForecastRun, error) {
	run := &ForecastRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Seed:      seed,
	}

	// sqlite integers are signed; the seed round-trips through its bit pattern.
	_, err := s.db.Exec(`
		INSERT INTO forecast_runs (id, started_at, seed, success)
		VALUES (?, ?, ?, FALSE)
	`, run.ID, run.StartedAt, int64(run.Seed))
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun marks the run finished, recording runErr when it failed.
func (s *Store) CompleteRun(run *ForecastRun, runErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE forecast_runs SET
			finished_at = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Success, run.ErrorMessage, run.ID)
	return err
}

// LatestRun returns the most recent successful run, or nil if none exists.
func (s *Store) LatestRun() (*ForecastRun, error) {
	row := s.db.QueryRow(`
		SELECT id, started_at, finished_at, seed, success, error_message
		FROM forecast_runs
		WHERE success = TRUE
		ORDER BY started_at DESC
		LIMIT 1
	`)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// RecentRuns returns the last limit runs, successful or not, newest first.
func (s *Store) RecentRuns(limit int) ([]ForecastRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, seed, success, error_message
		FROM forecast_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ForecastRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func scanRun(row scanner) (*ForecastRun, error) {
	var r ForecastRun
	var seed int64
	if err := row.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &seed, &r.Success, &r.ErrorMessage); err != nil {
		return nil, err
	}
	r.Seed = uint64(seed)
	return &r, nil
}
