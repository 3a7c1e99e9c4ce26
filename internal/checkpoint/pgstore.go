package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps one row per (provider, job). A row UPSERT is atomic,
// which satisfies the same contract as the file store's rename.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore ensures the checkpoints table exists.
func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	ddl := `
        CREATE TABLE IF NOT EXISTS triage_checkpoints (
            provider        TEXT NOT NULL,
            job             TEXT NOT NULL,
            cursor          TEXT NOT NULL DEFAULT '',
            processed_count BIGINT NOT NULL DEFAULT 0,
            label_counts    JSONB NOT NULL DEFAULT '{}',
            last_run        TIMESTAMPTZ,
            PRIMARY KEY (provider, job)
        )
    `
	if _, err := db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to ensure checkpoint table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Load reads the checkpoint row, or (nil, nil) when absent.
func (s *PostgresStore) Load(ctx context.Context, key Key) (*Checkpoint, error) {
	query := `
        SELECT cursor, processed_count, label_counts, last_run
        FROM triage_checkpoints
        WHERE provider = $1 AND job = $2
    `
	var (
		cp      Checkpoint
		counts  []byte
		lastRun *time.Time
	)
	err := s.db.QueryRow(ctx, query, key.Provider, key.Job).
		Scan(&cp.Cursor, &cp.ProcessedCount, &counts, &lastRun)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	cp.Provider = key.Provider
	if lastRun != nil {
		cp.LastRun = lastRun.UTC()
	}
	cp.LabelCounts = make(map[string]int)
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &cp.LabelCounts); err != nil {
			return nil, fmt.Errorf("corrupt label_counts for %s/%s: %w", key.Provider, key.Job, err)
		}
	}
	return &cp, nil
}

// Save upserts the checkpoint row.
func (s *PostgresStore) Save(ctx context.Context, key Key, cp *Checkpoint) error {
	counts, err := json.Marshal(cp.LabelCounts)
	if err != nil {
		return fmt.Errorf("failed to encode label_counts: %w", err)
	}
	query := `
        INSERT INTO triage_checkpoints (provider, job, cursor, processed_count, label_counts, last_run)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (provider, job) DO UPDATE SET
            cursor = EXCLUDED.cursor,
            processed_count = EXCLUDED.processed_count,
            label_counts = EXCLUDED.label_counts,
            last_run = EXCLUDED.last_run
    `
	_, err = s.db.Exec(ctx, query,
		key.Provider, key.Job, cp.Cursor, cp.ProcessedCount, counts, cp.LastRun.UTC())
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Clear deletes the checkpoint row.
func (s *PostgresStore) Clear(ctx context.Context, key Key) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM triage_checkpoints WHERE provider = $1 AND job = $2`,
		key.Provider, key.Job)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}
