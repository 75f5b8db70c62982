package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lox/chamberodds/internal/compact"
)

// SaveCompactSeries stores a chamber's columnar seat series as gzipped JSON.
func (s *Store) SaveCompactSeries(runID, chamberID string, c *compact.Columnar) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal compact series: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)

	_, err = s.db.Exec(`
		INSERT INTO compact_series (run_id, chamber_id, payload_compressed, payload_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, chamber_id) DO UPDATE SET
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			created_at = excluded.created_at
	`, runID, chamberID, buf.Bytes(), hex.EncodeToString(hash[:]), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert compact series: %w", err)
	}
	return nil
}

// GetCompactSeries returns the stored columnar series, or nil if absent.
func (s *Store) GetCompactSeries(runID, chamberID string) (*compact.Columnar, error) {
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT payload_compressed FROM compact_series WHERE run_id = ? AND chamber_id = ?
	`, runID, chamberID).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}

	var c compact.Columnar
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("unmarshal compact series: %w", err)
	}
	return &c, nil
}

// CompactStats summarises stored compact payloads.
type CompactStats struct {
	Count          int
	TotalSizeBytes int64
	DistinctHashes int
}

func (s *Store) GetCompactStats() (*CompactStats, error) {
	var st CompactStats
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(LENGTH(payload_compressed)), 0), COUNT(DISTINCT payload_hash)
		FROM compact_series
	`).Scan(&st.Count, &st.TotalSizeBytes, &st.DistinctHashes)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
