// Package store persists signal history, narrative baselines, and report
// archives in SQLite. The canonical consumer contract stays the JSON report
// file; this store backs trend baselines and run history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/narradar/pkg/signal"
)

// Store is the persistence interface.
type Store interface {
	SaveSignals(ctx context.Context, runID string, sigs []signal.Signal) error
	ListSignals(ctx context.Context, runID string) ([]signal.Signal, error)

	Baseline(ctx context.Context, slug string) (float64, bool, error)
	SaveBaseline(ctx context.Context, slug string, mean float64) error

	SaveReport(ctx context.Context, runID string, generatedAt time.Time, periodDays int, document []byte) error
	LatestReport(ctx context.Context) ([]byte, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database at path and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSignals(ctx context.Context, runID string, sigs []signal.Signal) error {
	for i := range sigs {
		sig := &sigs[i]
		dataJSON, _ := json.Marshal(sig.Data)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO signals (id, run_id, source, signal_type, subject, description, observed_at, raw_metric, authority, score, scored, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, id) DO NOTHING
		`, sig.ID, runID, sig.Source, sig.Type, sig.Subject, sig.Description,
			sig.ObservedAt, sig.RawMetric, sig.Authority, sig.Score, sig.Scored, string(dataJSON))
		if err != nil {
			return fmt.Errorf("save signal %s: %w", sig.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListSignals(ctx context.Context, runID string) ([]signal.Signal, error) {
	var sigs []signal.Signal
	err := s.db.SelectContext(ctx, &sigs, `
		SELECT id, source, signal_type, subject, description, observed_at, raw_metric, authority, score, scored, data
		FROM signals WHERE run_id = ? ORDER BY observed_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list signals for run %s: %w", runID, err)
	}
	for i := range sigs {
		json.Unmarshal([]byte(sigs[i].DataJSON), &sigs[i].Data)
	}
	return sigs, nil
}

func (s *SQLiteStore) Baseline(ctx context.Context, slug string) (float64, bool, error) {
	var mean float64
	err := s.db.GetContext(ctx, &mean,
		"SELECT mean_score FROM narrative_baselines WHERE slug = ?", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("baseline %s: %w", slug, err)
	}
	return mean, true, nil
}

func (s *SQLiteStore) SaveBaseline(ctx context.Context, slug string, mean float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO narrative_baselines (slug, mean_score, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET mean_score = excluded.mean_score, updated_at = excluded.updated_at
	`, slug, mean, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save baseline %s: %w", slug, err)
	}
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, runID string, generatedAt time.Time, periodDays int, document []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (run_id, generated_at, period_days, document)
		VALUES (?, ?, ?, ?)
	`, runID, generatedAt, periodDays, string(document))
	if err != nil {
		return fmt.Errorf("save report %s: %w", runID, err)
	}
	return nil
}

func (s *SQLiteStore) LatestReport(ctx context.Context) ([]byte, error) {
	var document string
	err := s.db.GetContext(ctx, &document,
		"SELECT document FROM reports ORDER BY generated_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return []byte(document), nil
}
