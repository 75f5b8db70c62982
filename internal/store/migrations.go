package store

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS forecast_runs (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    seed INTEGER NOT NULL,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS chamber_results (
    run_id TEXT NOT NULL REFERENCES forecast_runs(id),
    chamber_id TEXT NOT NULL,
    as_of DATE NOT NULL,
    control_probability REAL NOT NULL,
    expected_seats REAL NOT NULL,
    trial_count INTEGER NOT NULL,
    neutral_seats INTEGER NOT NULL,
    indicator_dem REAL,
    indicator_rep REAL,
    histogram_json TEXT NOT NULL,
    PRIMARY KEY (run_id, chamber_id)
);

CREATE TABLE IF NOT EXISTS seat_results (
    run_id TEXT NOT NULL,
    chamber_id TEXT NOT NULL,
    seat_id TEXT NOT NULL,
    win_probability REAL NOT NULL,
    margin REAL NOT NULL,
    PRIMARY KEY (run_id, chamber_id, seat_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON forecast_runs(started_at);
`,
	},
	{
		Version:     2,
		Description: "Add chamber time series tables",
		SQL: `
CREATE TABLE IF NOT EXISTS chamber_series (
    run_id TEXT NOT NULL,
    chamber_id TEXT NOT NULL,
    date DATE NOT NULL,
    control_probability REAL NOT NULL,
    expected_seats REAL NOT NULL,
    PRIMARY KEY (run_id, chamber_id, date)
);

CREATE TABLE IF NOT EXISTS compact_series (
    run_id TEXT NOT NULL,
    chamber_id TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, chamber_id)
);

CREATE INDEX IF NOT EXISTS idx_compact_hash ON compact_series(payload_hash);
`,
	},
	{
		Version:     3,
		Description: "Add poll fetch audit table",
		SQL: `
CREATE TABLE IF NOT EXISTS poll_fetches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    range_start DATE NOT NULL,
    range_end DATE NOT NULL,
    polls_fetched INTEGER,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		zap.S().Infow("migrations: applying", "version", m.Version, "description", m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		zap.S().Infow("migrations: completed", "version", m.Version)
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
