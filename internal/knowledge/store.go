// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge maintains the SQLite index over the persisted entities
// and the ledgers that track per-source syncs and processed inbox files.
// The entity files stay authoritative: the index can be deleted and rebuilt
// from them at any time.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/pkg/types"
)

const (
	dbFile            = "kb.db"
	defaultMaxResults = 20
)

// Store manages the index database of one knowledge base.
type Store struct {
	db         *sql.DB
	root       string
	maxResults int
}

// Open opens or creates root/index/kb.db and its schema.
func Open(cfg types.KnowledgeBaseConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.OutputPath, kbcontext.IndexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, types.StoreIOError("creating index directory", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dbDir, dbFile)+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	s := &Store{db: db, root: cfg.OutputPath, maxResults: maxResults}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			author TEXT,
			person TEXT,
			date TEXT,
			area TEXT,
			topics TEXT,
			tags TEXT,
			source TEXT,
			answers_question TEXT,
			answered_by TEXT,
			quality REAL,
			text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_source ON entities(source)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			name TEXT PRIMARY KEY,
			last_sync TEXT NOT NULL,
			last_run TEXT,
			batches INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS inbox_files (
			path TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			run_id TEXT
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='entities_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE entities_fts USING fts5(text, content=entities, content_rowid=rowid)`,
			`CREATE TRIGGER entities_ai AFTER INSERT ON entities BEGIN
				INSERT INTO entities_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER entities_ad AFTER DELETE ON entities BEGIN
				INSERT INTO entities_fts(entities_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
			`CREATE TRIGGER entities_au AFTER UPDATE ON entities BEGIN
				INSERT INTO entities_fts(entities_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO entities_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// SyncSummary holds counts from an indexing run.
type SyncSummary struct {
	Indexed int
	Updated int
	Skipped int
	Removed int
	Failed  int
}

// Total returns the number of entity files looked at.
func (s SyncSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// Sync brings the index up to date with the entity files. Files whose
// modification time matches the recorded one are skipped, changed files are
// re-indexed and rows of deleted files are dropped. Progress lines go to w.
func (s *Store) Sync(ctx context.Context, w io.Writer) (SyncSummary, error) {
	var summary SyncSummary
	onDisk := make(map[string]bool)

	for _, kind := range types.Kinds {
		dir := filepath.Join(s.root, kind.Dir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return summary, types.StoreIOError("reading "+kind.Dir(), err)
		}

		for _, e := range entries {
			if e.IsDir() || !entity.IsEntityFile(e.Name()) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			path := filepath.Join(dir, e.Name())

			info, err := e.Info()
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", e.Name(), err)
				summary.Failed++
				continue
			}
			modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

			doc, err := entity.ParseFile(path)
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", e.Name(), err)
				summary.Failed++
				continue
			}
			onDisk[doc.ID] = true

			var stored string
			err = s.db.QueryRowContext(ctx,
				`SELECT file_mod_time FROM indexing_status WHERE id = ?`, doc.ID,
			).Scan(&stored)
			if err == nil && stored == modTime {
				summary.Skipped++
				continue
			}
			isUpdate := err == nil

			if err := s.indexDocument(ctx, doc, modTime); err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", doc.ID, err)
				summary.Failed++
				continue
			}
			if isUpdate {
				fmt.Fprintf(w, "updated %s\n", doc.ID)
				summary.Updated++
			} else {
				summary.Indexed++
			}
		}
	}

	removed, err := s.removeMissing(ctx, onDisk)
	if err != nil {
		return summary, err
	}
	summary.Removed = removed

	fmt.Fprintf(w, "indexed: %d, updated: %d, skipped: %d, removed: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Removed, summary.Failed)
	return summary, nil
}

// Rebuild drops every indexed entity and indexes the store from scratch.
// The source and inbox ledgers are kept.
func (s *Store) Rebuild(ctx context.Context, w io.Writer) (SyncSummary, error) {
	for _, stmt := range []string{`DELETE FROM entities`, `DELETE FROM indexing_status`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return SyncSummary{}, fmt.Errorf("clearing index: %w", err)
		}
	}
	return s.Sync(ctx, w)
}

func (s *Store) indexDocument(ctx context.Context, doc entity.Document, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	topicsJSON, _ := json.Marshal(doc.Topics)
	tagsJSON, _ := json.Marshal(doc.Tags)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, type, author, person, date, area, topics, tags, source,
			answers_question, answered_by, quality, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, author=excluded.author, person=excluded.person, date=excluded.date,
			area=excluded.area, topics=excluded.topics, tags=excluded.tags, source=excluded.source,
			answers_question=excluded.answers_question, answered_by=excluded.answered_by,
			quality=excluded.quality, text=excluded.text`,
		doc.ID, string(doc.Kind), doc.Author, entity.NormalizePerson(doc.Author), doc.Date, doc.Area,
		string(topicsJSON), string(tagsJSON), doc.Source,
		doc.AnswersQuestion, doc.AnsweredBy, doc.Quality, doc.Text,
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", doc.ID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		doc.ID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return tx.Commit()
}

func (s *Store) removeMissing(ctx context.Context, onDisk map[string]bool) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM entities`)
	if err != nil {
		return 0, fmt.Errorf("listing indexed entities: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning row: %w", err)
		}
		if !onDisk[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("removing %s: %w", id, err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM indexing_status WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("removing %s: %w", id, err)
		}
	}
	return len(stale), nil
}
