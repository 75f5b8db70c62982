package store

import (
	"database/sql"
	"time"
)

// PollFetch is the audit row for one poll API acquisition.
type PollFetch struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	RangeStart   time.Time
	RangeEnd     time.Time
	PollsFetched sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

func (s *Store) StartPollFetch(start, end time.Time) (*PollFetch, error) {
	f := &PollFetch{
		StartedAt:  time.Now().UTC(),
		RangeStart: start,
		RangeEnd:   end,
	}

	result, err := s.db.Exec(`
		INSERT INTO poll_fetches (started_at, range_start, range_end, success)
		VALUES (?, ?, ?, FALSE)
	`, f.StartedAt, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}

	f.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) CompletePollFetch(f *PollFetch, polls int, fetchErr error) error {
	if f == nil {
		return nil
	}

	f.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	f.Success = fetchErr == nil
	if fetchErr != nil {
		f.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	} else {
		f.PollsFetched = sql.NullInt64{Int64: int64(polls), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE poll_fetches SET
			finished_at = ?,
			polls_fetched = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, f.FinishedAt, f.PollsFetched, f.Success, f.ErrorMessage, f.ID)
	return err
}

// LastSuccessfulPollFetch returns the latest completed fetch, or nil.
func (s *Store) LastSuccessfulPollFetch() (*PollFetch, error) {
	var f PollFetch
	var start, end string
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, range_start, range_end, polls_fetched, success, error_message
		FROM poll_fetches
		WHERE success = TRUE
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&f.ID, &f.StartedAt, &f.FinishedAt, &start, &end, &f.PollsFetched, &f.Success, &f.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if f.RangeStart, err = parseDay(start); err != nil {
		return nil, err
	}
	if f.RangeEnd, err = parseDay(end); err != nil {
		return nil, err
	}
	return &f, nil
}
