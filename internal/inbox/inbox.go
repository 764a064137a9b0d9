// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inbox processes files dropped under inbox/raw/<source>/. Each
// unprocessed file becomes one PROCESS_ONLY batch tagged with the folder
// name as source; one aggregation pass over the store follows. A file counts
// as processed once its analyzed snapshot exists or the ledger lists it.
package inbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/orchestrator"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Runner executes batches. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, cfg types.BuildConfig) (*types.BuildResult, error)
	Aggregate(ctx context.Context, root, source, instructions string) (*types.BuildResult, error)
}

// Ledger remembers processed inbox files. *knowledge.Store implements it.
type Ledger interface {
	InboxFileProcessed(ctx context.Context, path string) (bool, error)
	MarkInboxFile(ctx context.Context, path, source, runID string, at time.Time) error
}

// Options configures a Processor.
type Options struct {
	AnalysisInstructions    string
	AggregationInstructions string

	// SkipAggregation disables the aggregation pass after processing.
	SkipAggregation bool
}

// Processor scans one store's inbox.
type Processor struct {
	root   string
	runner Runner
	ledger Ledger
	opts   Options
	out    io.Writer
	log    *logging.Logger
	now    func() time.Time
}

// New returns a Processor. ledger may be nil; progress lines go to out.
func New(root string, runner Runner, ledger Ledger, opts Options, out io.Writer, log *logging.Logger) *Processor {
	if out == nil {
		out = io.Discard
	}
	return &Processor{root: root, runner: runner, ledger: ledger, opts: opts, out: out, log: logging.OrNop(log), now: time.Now}
}

// Summary holds counts from one inbox pass.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int

	// Sources lists the sources that had files processed, sorted.
	Sources []string

	// Aggregation is the result of the aggregation pass, if one ran.
	Aggregation *types.BuildResult
}

// Total returns the number of files considered.
func (s Summary) Total() int {
	return s.Processed + s.Skipped + s.Failed
}

// HasFailures reports whether any file failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// File is one inbox entry.
type File struct {
	Source string
	Name   string
	Path   string

	// ModTime is used as the batch timestamp, so the source's last sync
	// reflects when the export was dropped rather than when it was processed.
	ModTime time.Time
}

// Scan lists inbox files grouped by source folder, folders and files in
// name order. Hidden files are ignored.
func (p *Processor) Scan() ([]File, error) {
	rawDir := filepath.Join(p.root, kbcontext.InboxDir, "raw")
	sources, err := os.ReadDir(rawDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("reading inbox", err)
	}
	var files []File
	for _, s := range sources {
		if !s.IsDir() || strings.HasPrefix(s.Name(), ".") {
			continue
		}
		dir := filepath.Join(rawDir, s.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, types.StoreIOError("reading inbox "+s.Name(), err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				return nil, types.StoreIOError("reading inbox "+s.Name(), err)
			}
			files = append(files, File{Source: s.Name(), Name: e.Name(), Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()})
		}
	}
	return files, nil
}

func (p *Processor) processed(ctx context.Context, f File) (bool, error) {
	if _, err := os.Stat(orchestrator.SnapshotPath(p.root, f.Source, f.Name)); err == nil {
		return true, nil
	}
	if p.ledger == nil {
		return false, nil
	}
	return p.ledger.InboxFileProcessed(ctx, p.ledgerKey(f))
}

func (p *Processor) ledgerKey(f File) string {
	return filepath.ToSlash(filepath.Join(kbcontext.InboxDir, "raw", f.Source, f.Name))
}

// ProcessInbox runs a batch for every unprocessed file, then one
// aggregation pass when anything was processed. A failed file is reported
// and left for the next pass; the remaining files are still processed.
func (p *Processor) ProcessInbox(ctx context.Context) (Summary, error) {
	var summary Summary
	files, err := p.Scan()
	if err != nil {
		return summary, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		done, err := p.processed(ctx, f)
		if err != nil {
			return summary, err
		}
		if done {
			fmt.Fprintf(p.out, "skipped   %s/%s\n", f.Source, f.Name)
			summary.Skipped++
			continue
		}

		res, err := p.runner.Run(ctx, types.BuildConfig{
			SourceName:           f.Source,
			InputFile:            f.Path,
			Timestamp:            f.ModTime,
			OutputPath:           p.root,
			AnalysisInstructions: p.opts.AnalysisInstructions,
			Mode:                 types.ModeProcessOnly,
		})
		if err != nil {
			fmt.Fprintf(p.out, "failed    %s/%s: %v\n", f.Source, f.Name, err)
			p.log.Warn("inbox file failed", "source", f.Source, "file", f.Name, "error", err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(p.out, "processed %s/%s (%d questions, %d answers, %d notes)\n",
			f.Source, f.Name, res.Batch.Questions, res.Batch.Answers, res.Batch.Notes)
		summary.Processed++
		if !slices.Contains(summary.Sources, f.Source) {
			summary.Sources = append(summary.Sources, f.Source)
		}
		if p.ledger != nil {
			if err := p.ledger.MarkInboxFile(ctx, p.ledgerKey(f), f.Source, res.RunID, p.now()); err != nil {
				p.log.Warn("recording inbox file failed", "file", f.Name, "error", err)
			}
		}
	}
	slices.Sort(summary.Sources)

	if summary.Processed > 0 && !p.opts.SkipAggregation {
		res, err := p.runner.Aggregate(ctx, p.root, "", p.opts.AggregationInstructions)
		summary.Aggregation = res
		if err != nil {
			return summary, fmt.Errorf("aggregating after inbox: %w", err)
		}
	}

	fmt.Fprintf(p.out, "\nprocessed: %d, skipped: %d, failed: %d\n", summary.Processed, summary.Skipped, summary.Failed)
	return summary, nil
}
