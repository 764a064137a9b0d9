// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pdiddy/kb-builder/internal/kbcontext"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 2 * time.Second

// Watch processes the inbox once, then again whenever files appear or
// change under inbox/raw, until ctx is done. Bursts of events within
// debounce collapse into one pass.
func (p *Processor) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	rawDir := filepath.Join(p.root, kbcontext.InboxDir, "raw")
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(rawDir); err != nil {
		return err
	}
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.Add(filepath.Join(rawDir, e.Name())); err != nil {
				return err
			}
		}
	}

	p.pass(ctx)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.Add(ev.Name); err != nil {
						p.log.Warn("watching inbox folder failed", "path", ev.Name, "error", err)
					}
				}
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.log.Warn("inbox watcher error", "error", err)
		case <-timer.C:
			p.pass(ctx)
		}
	}
}

func (p *Processor) pass(ctx context.Context) {
	summary, err := p.ProcessInbox(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Error("inbox pass failed", "error", err)
		return
	}
	p.log.Info("inbox pass finished", "processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
}
