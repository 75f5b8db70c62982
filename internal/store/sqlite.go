package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/chamberodds/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens the sqlite database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveChamberResult stores a chamber's current-day result and its per-seat
// rows for a run. Saving again for the same run and chamber replaces it.
func (s *Store) SaveChamberResult(runID string, r models.ChamberResult) error {
	hist, err := json.Marshal(r.Histogram)
	if err != nil {
		return fmt.Errorf("marshal histogram: %w", err)
	}

	var indDem, indRep sql.NullFloat64
	if r.Indicator != nil {
		indDem = sql.NullFloat64{Float64: r.Indicator.Dem, Valid: true}
		indRep = sql.NullFloat64{Float64: r.Indicator.Rep, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO chamber_results (run_id, chamber_id, as_of, control_probability, expected_seats, trial_count, neutral_seats, indicator_dem, indicator_rep, histogram_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, chamber_id) DO UPDATE SET
			as_of = excluded.as_of,
			control_probability = excluded.control_probability,
			expected_seats = excluded.expected_seats,
			trial_count = excluded.trial_count,
			neutral_seats = excluded.neutral_seats,
			indicator_dem = excluded.indicator_dem,
			indicator_rep = excluded.indicator_rep,
			histogram_json = excluded.histogram_json
	`, runID, r.ChamberID, r.AsOf.Format(time.DateOnly), r.ControlProbability, r.ExpectedSeats,
		r.TrialCount, r.NeutralSeats, indDem, indRep, string(hist)); err != nil {
		return fmt.Errorf("insert chamber result: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM seat_results WHERE run_id = ? AND chamber_id = ?`, runID, r.ChamberID); err != nil {
		return fmt.Errorf("clear seat results: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO seat_results (run_id, chamber_id, seat_id, win_probability, margin)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for seatID, sr := range r.PerSeat {
		if _, err := stmt.Exec(runID, r.ChamberID, seatID, sr.WinProbability, sr.Margin); err != nil {
			return fmt.Errorf("insert seat result %s: %w", seatID, err)
		}
	}

	return tx.Commit()
}

// GetChamberResult returns a chamber's result for a run, or nil if absent.
func (s *Store) GetChamberResult(runID, chamberID string) (*models.ChamberResult, error) {
	row := s.db.QueryRow(`
		SELECT chamber_id, as_of, control_probability, expected_seats, trial_count, neutral_seats, indicator_dem, indicator_rep, histogram_json
		FROM chamber_results
		WHERE run_id = ? AND chamber_id = ?
	`, runID, chamberID)

	r, err := scanChamberResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.PerSeat, err = s.seatResults(runID, chamberID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListChamberResults returns every chamber result for a run without per-seat
// detail, ordered by chamber id.
func (s *Store) ListChamberResults(runID string) ([]models.ChamberResult, error) {
	rows, err := s.db.Query(`
		SELECT chamber_id, as_of, control_probability, expected_seats, trial_count, neutral_seats, indicator_dem, indicator_rep, histogram_json
		FROM chamber_results
		WHERE run_id = ?
		ORDER BY chamber_id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.ChamberResult
	for rows.Next() {
		r, err := scanChamberResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChamberResult(row scanner) (*models.ChamberResult, error) {
	var r models.ChamberResult
	var asOf, hist string
	var indDem, indRep sql.NullFloat64
	if err := row.Scan(&r.ChamberID, &asOf, &r.ControlProbability, &r.ExpectedSeats, &r.TrialCount,
		&r.NeutralSeats, &indDem, &indRep, &hist); err != nil {
		return nil, err
	}

	var err error
	if r.AsOf, err = parseDay(asOf); err != nil {
		return nil, err
	}
	if indDem.Valid && indRep.Valid {
		r.Indicator = &models.PartisanPair{Dem: indDem.Float64, Rep: indRep.Float64}
	}
	if err := json.Unmarshal([]byte(hist), &r.Histogram); err != nil {
		return nil, fmt.Errorf("unmarshal histogram: %w", err)
	}
	return &r, nil
}

func (s *Store) seatResults(runID, chamberID string) (map[string]models.SeatResult, error) {
	rows, err := s.db.Query(`
		SELECT seat_id, win_probability, margin
		FROM seat_results
		WHERE run_id = ? AND chamber_id = ?
	`, runID, chamberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.SeatResult)
	for rows.Next() {
		var id string
		var sr models.SeatResult
		if err := rows.Scan(&id, &sr.WinProbability, &sr.Margin); err != nil {
			return nil, err
		}
		out[id] = sr
	}
	return out, rows.Err()
}

// SaveChamberSeries replaces the stored chamber-level series for a run.
func (s *Store) SaveChamberSeries(runID, chamberID string, points []models.ChamberPoint) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chamber_series WHERE run_id = ? AND chamber_id = ?`, runID, chamberID); err != nil {
		return fmt.Errorf("clear chamber series: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO chamber_series (run_id, chamber_id, date, control_probability, expected_seats)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, p := range points {
		if _, err := stmt.Exec(runID, chamberID, p.Date.Format(time.DateOnly), p.ControlProbability, p.ExpectedSeats); err != nil {
			return fmt.Errorf("insert series point: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetChamberSeries(runID, chamberID string) ([]models.ChamberPoint, error) {
	rows, err := s.db.Query(`
		SELECT date, control_probability, expected_seats
		FROM chamber_series
		WHERE run_id = ? AND chamber_id = ?
		ORDER BY date
	`, runID, chamberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.ChamberPoint
	for rows.Next() {
		var p models.ChamberPoint
		var date string
		if err := rows.Scan(&date, &p.ControlProbability, &p.ExpectedSeats); err != nil {
			return nil, err
		}
		if p.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// parseDay accepts the plain date the store writes and the timestamp form
// the driver may hand back for DATE columns.
func parseDay(s string) (time.Time, error) {
	if len(s) >= len(time.DateOnly) {
		return time.Parse(time.DateOnly, s[:len(time.DateOnly)])
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
