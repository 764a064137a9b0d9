// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rollback records the files a batch writes so that a failed batch
// can be undone. Undo is best-effort: individual failures are logged and
// the remaining files are still processed.
package rollback

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pdiddy/kb-builder/internal/logging"
)

// Tracker writes and removes files on behalf of a batch and remembers how to
// reverse each change. A nil *Tracker performs the operations untracked.
type Tracker struct {
	mu      sync.Mutex
	created []string
	dirs    []string
	backups map[string][]byte
	order   []string
	log     *logging.Logger
}

// NewTracker returns an empty Tracker.
func NewTracker(log *logging.Logger) *Tracker {
	return &Tracker{backups: make(map[string][]byte), log: logging.OrNop(log)}
}

// WriteFile writes data to path, creating parent directories. Unchanged
// content is left alone so modification times stay stable.
func (t *Tracker) WriteFile(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, data) {
			return nil
		}
		t.backup(path, existing)
	case errors.Is(err, os.ErrNotExist):
		if err := t.mkdirAll(filepath.Dir(path)); err != nil {
			return err
		}
		t.recordCreated(path)
	default:
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Remove deletes path, keeping its content for rollback. A missing file is not an error.
func (t *Tracker) Remove(path string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	t.backup(path, existing)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// Created returns the files created through the tracker, in creation order.
func (t *Tracker) Created() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.created...)
}

// Modified returns the pre-existing files that were overwritten or removed, sorted.
func (t *Tracker) Modified() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.order...)
	sort.Strings(out)
	return out
}

// Report summarizes a rollback.
type Report struct {
	Deleted  int
	Restored int
	Failures []error
}

// Rollback deletes created files, restores overwritten or removed files and
// removes directories it created when they are empty.
func (t *Tracker) Rollback() Report {
	if t == nil {
		return Report{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	report := RollbackCreatedFiles(t.created, t.log)
	for _, path := range t.order {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.log.Warn("restore failed", "path", path, "error", err)
			report.Failures = append(report.Failures, err)
			continue
		}
		if err := os.WriteFile(path, t.backups[path], 0o644); err != nil {
			t.log.Warn("restore failed", "path", path, "error", err)
			report.Failures = append(report.Failures, err)
			continue
		}
		report.Restored++
	}
	for i := len(t.dirs) - 1; i >= 0; i-- {
		// Fails harmlessly when the directory still has content.
		os.Remove(t.dirs[i])
	}
	t.log.Info("rolled back batch", "deleted", report.Deleted, "restored", report.Restored,
		"failures", len(report.Failures))
	return report
}

// RollbackCreatedFiles deletes each file if present. Failures are logged and
// collected; the remaining files are still deleted.
func RollbackCreatedFiles(files []string, log *logging.Logger) Report {
	log = logging.OrNop(log)
	var r Report
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			log.Warn("rollback could not delete file", "path", f, "error", err)
			r.Failures = append(r.Failures, err)
			continue
		}
		r.Deleted++
	}
	return r
}

func (t *Tracker) backup(path string, data []byte) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.backups[path]; ok {
		return
	}
	for _, c := range t.created {
		if c == path {
			return
		}
	}
	t.backups[path] = data
	t.order = append(t.order, path)
}

func (t *Tracker) recordCreated(path string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.backups[path]; ok {
		// Removed earlier in this batch and now recreated: restoring the
		// backup already undoes it.
		return
	}
	t.created = append(t.created, path)
}

func (t *Tracker) mkdirAll(dir string) error {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(missing) - 1; i >= 0; i-- {
		t.dirs = append(t.dirs, missing[i])
	}
	return nil
}
