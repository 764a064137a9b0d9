// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SourceSync is the ledger entry of one source.
type SourceSync struct {
	Name     string    `json:"name" yaml:"name"`
	LastSync time.Time `json:"last_sync" yaml:"last_sync"`
	LastRun  string    `json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Batches  int       `json:"batches" yaml:"batches"`
}

// RecordSync stores at as the last successful sync of source.
func (s *Store) RecordSync(ctx context.Context, source string, at time.Time, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, last_sync, last_run, batches) VALUES (?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET
			last_sync=excluded.last_sync, last_run=excluded.last_run, batches=sources.batches+1`,
		source, at.UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("recording sync of %s: %w", source, err)
	}
	return nil
}

// LastSync returns the ledger entry of source. ok is false when the source
// has never synced.
func (s *Store) LastSync(ctx context.Context, source string) (SourceSync, bool, error) {
	var (
		sync    = SourceSync{Name: source}
		last    string
		lastRun sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync, last_run, batches FROM sources WHERE name = ?`, source,
	).Scan(&last, &lastRun, &sync.Batches)
	if errors.Is(err, sql.ErrNoRows) {
		return sync, false, nil
	}
	if err != nil {
		return sync, false, fmt.Errorf("reading sync of %s: %w", source, err)
	}
	sync.LastRun = lastRun.String
	if sync.LastSync, err = time.Parse(time.RFC3339, last); err != nil {
		return sync, false, fmt.Errorf("parsing sync time of %s: %w", source, err)
	}
	return sync, true, nil
}

// Sources lists every source in the ledger by name.
func (s *Store) Sources(ctx context.Context) ([]SourceSync, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SourceSync, 0, len(names))
	for _, n := range names {
		sync, _, err := s.LastSync(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, sync)
	}
	return out, nil
}

// ForgetSource drops source from the ledger.
func (s *Store) ForgetSource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE name = ?`, source); err != nil {
		return fmt.Errorf("forgetting %s: %w", source, err)
	}
	return nil
}

// MarkInboxFile records that the inbox file at path was processed.
func (s *Store) MarkInboxFile(ctx context.Context, path, source, runID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inbox_files (path, source, processed_at, run_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			source=excluded.source, processed_at=excluded.processed_at, run_id=excluded.run_id`,
		path, source, at.UTC().Format(time.RFC3339), runID)
	if err != nil {
		return fmt.Errorf("marking %s: %w", path, err)
	}
	return nil
}

// InboxFileProcessed reports whether path was already processed.
func (s *Store) InboxFileProcessed(ctx context.Context, path string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM inbox_files WHERE path = ?`, path).Scan(&n); err != nil {
		return false, fmt.Errorf("checking %s: %w", path, err)
	}
	return n > 0, nil
}
