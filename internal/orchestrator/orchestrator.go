// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator runs one batch through the build state machine:
// load the context, analyze, validate, map IDs, link answers, persist,
// describe and index. Every file the batch writes goes through a rollback
// tracker, so a failure at any stage leaves the store as it was.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/internal/aggregate"
	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/analyze"
	"github.com/pdiddy/kb-builder/internal/cleaner"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/idmap"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/internal/knowledge"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/qamap"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// ErrNoSource is returned when a processing run has no source name.
var ErrNoSource = errors.New("source name is required")

// Collaborators are the AI services a batch uses. Merger may be nil.
// Describer may be nil when no run aggregates.
type Collaborators struct {
	Analyzer  ai.Analyzer
	Merger    ai.Merger
	Matcher   ai.Matcher
	Describer ai.Describer
}

// Index receives the store after a successful batch. *knowledge.Store
// implements it.
type Index interface {
	Sync(ctx context.Context, w io.Writer) (knowledge.SyncSummary, error)
	RecordSync(ctx context.Context, source string, at time.Time, runID string) error
}

// Config holds the tunables of every stage.
type Config struct {
	Chunk       types.ChunkConfig
	Mapping     types.MappingConfig
	Aggregation types.AggregationConfig
}

// Orchestrator runs batches. It holds no state between runs.
type Orchestrator struct {
	collab Collaborators
	cfg    Config
	index  Index
	log    *logging.Logger

	now   func() time.Time
	runID func() string
}

// New returns an Orchestrator. index may be nil.
func New(collab Collaborators, cfg Config, index Index, log *logging.Logger) *Orchestrator {
	return &Orchestrator{
		collab: collab,
		cfg:    cfg,
		index:  index,
		log:    logging.OrNop(log),
		now:    time.Now,
		runID:  uuid.NewString,
	}
}

// run carries the state of one batch.
type run struct {
	o       *Orchestrator
	id      string
	cfg     types.BuildConfig
	root    string
	at      time.Time
	state   types.BuildState
	tracker *rollback.Tracker
	log     *logging.Logger
	res     *types.BuildResult
}

func (r *run) enter(s types.BuildState) {
	r.state = s
	r.log.Debug("state", "state", string(s))
}

// fail rolls the batch back and records the stage that failed.
func (r *run) fail(stage types.BuildState, err error) (*types.BuildResult, error) {
	report := r.tracker.Rollback()
	r.state = types.StateFailed
	r.res.Success = false
	r.res.FailedStage = stage
	r.res.Message = err.Error()
	if len(report.Failures) > 0 {
		r.res.Message += fmt.Sprintf(" (rollback incomplete: %d failures, run regenerate)", len(report.Failures))
	}
	r.log.Error("batch failed", "stage", string(stage), "error", err,
		"rolledBack", report.Deleted, "restored", report.Restored)
	return r.res, &types.StageError{Stage: stage, Err: err}
}

// Run processes one batch according to cfg.Mode.
func (o *Orchestrator) Run(ctx context.Context, cfg types.BuildConfig) (*types.BuildResult, error) {
	if cfg.Mode == types.ModeAggregateOnly {
		return o.Aggregate(ctx, cfg.OutputPath, cfg.SourceName, cfg.AggregationInstructions)
	}

	r := o.newRun(cfg)
	if cfg.SourceName == "" {
		return r.fail(types.StateIdle, ErrNoSource)
	}
	r.log.Info("batch started", "source", cfg.SourceName, "mode", string(r.cfg.Mode))

	input, err := readInput(cfg)
	if err != nil {
		return r.fail(types.StateIdle, err)
	}

	if cfg.CleanOutput {
		if err := kbcontext.ClearStore(r.root, r.tracker); err != nil {
			return r.fail(types.StateIdle, err)
		}
		r.log.Info("store cleared")
	} else if cfg.CleanSourceBeforeProcessing {
		cleaned, err := cleaner.CleanSource(r.root, cfg.SourceName, r.tracker, r.log)
		if err != nil {
			return r.fail(types.StateIdle, err)
		}
		r.res.Deleted = cleaned.Deleted
	}

	r.enter(types.StateContextLoaded)
	if err := kbcontext.InitStore(r.root); err != nil {
		return r.fail(types.StateContextLoaded, err)
	}
	kctx, err := kbcontext.Load(r.root)
	if err != nil {
		return r.fail(types.StateContextLoaded, err)
	}
	snapshot, err := r.copyRawInput(input)
	if err != nil {
		return r.fail(types.StateContextLoaded, err)
	}

	r.enter(types.StateAnalyzed)
	analyzer := analyze.New(o.collab.Analyzer, o.collab.Merger, o.cfg.Chunk, r.log)
	chunks := analyzer.Chunks(analyze.NormalizeInput(input))
	r.log.Info("input chunked", "chunks", len(chunks), "chars", len(input))
	result, err := analyzer.AnalyzeAndMerge(ctx, chunks, cfg.SourceName, kctx, cfg.AnalysisInstructions)
	if err != nil {
		return r.fail(types.StateAnalyzed, err)
	}
	if err := r.writeSnapshot(snapshot, result); err != nil {
		return r.fail(types.StateAnalyzed, err)
	}

	r.enter(types.StateValidated)
	r.res.Batch.Discarded = analyze.ValidateAndClean(result, r.log).Total()

	r.enter(types.StateIDMapped)
	idmap.MapAndUpdate(result, kctx)

	r.enter(types.StateQAMapped)
	outcome, err := qamap.New(o.collab.Matcher, o.cfg.Mapping, r.log).Apply(ctx, result, kctx, cfg.AnalysisInstructions)
	if err != nil {
		return r.fail(types.StateQAMapped, err)
	}
	r.res.Batch.Linked = outcome.Linked
	r.res.Batch.Promoted = len(outcome.Promoted)

	r.enter(types.StateStructureBuilt)
	sum, err := structure.New(r.root, r.tracker, r.log).Build(result, cfg.SourceName, structure.Contributions(result))
	if err != nil {
		return r.fail(types.StateStructureBuilt, err)
	}
	r.res.Batch.Questions, r.res.Batch.Answers, r.res.Batch.Notes = sum.Questions, sum.Answers, sum.Notes

	if r.cfg.Mode == types.ModeFull {
		r.enter(types.StateAggregated)
		targets := aggregate.Targets(sum.People, sum.Topics, sum.Areas)
		if err := r.describe(ctx, targets, false); err != nil {
			return r.fail(types.StateAggregated, err)
		}
	}

	if res, err := r.finish(ctx); err != nil {
		return res, err
	}
	if o.index != nil {
		if err := o.index.RecordSync(ctx, cfg.SourceName, r.at, r.id); err != nil {
			r.log.Warn("recording source sync failed", "source", cfg.SourceName, "error", err)
		}
	}
	return r.res, nil
}

// Aggregate regenerates descriptions over the persisted store without new
// input. A non-empty source limits the pass to groupings that contain
// entities of that source. Smart mode follows the aggregation config.
func (o *Orchestrator) Aggregate(ctx context.Context, root, source, instructions string) (*types.BuildResult, error) {
	r := o.newRun(types.BuildConfig{OutputPath: root, SourceName: source, Mode: types.ModeAggregateOnly,
		AggregationInstructions: instructions})
	r.log.Info("aggregation started", "source", source, "smart", o.cfg.Aggregation.Smart)

	r.enter(types.StateContextLoaded)
	store, err := entity.ReadStore(root)
	if err != nil {
		return r.fail(types.StateContextLoaded, err)
	}

	r.enter(types.StateAggregated)
	if err := r.describe(ctx, aggregate.StoreTargets(store, source), o.cfg.Aggregation.Smart); err != nil {
		return r.fail(types.StateAggregated, err)
	}
	return r.finish(ctx)
}

func (o *Orchestrator) newRun(cfg types.BuildConfig) *run {
	if cfg.Mode == "" {
		cfg.Mode = types.ModeFull
	}
	id := o.runID()
	at := cfg.Timestamp
	if at.IsZero() {
		at = o.now()
	}
	log := o.log.With("run", id)
	r := &run{
		o:       o,
		id:      id,
		cfg:     cfg,
		root:    cfg.OutputPath,
		at:      at,
		state:   types.StateIdle,
		tracker: rollback.NewTracker(log),
		log:     log,
		res:     &types.BuildResult{RunID: id},
	}
	return r
}

func (r *run) describe(ctx context.Context, targets []aggregate.Target, smart bool) error {
	if r.o.collab.Describer == nil {
		r.log.Warn("no describer configured, skipping descriptions", "targets", len(targets))
		return nil
	}
	helper := aggregate.NewHelper(r.root, r.o.collab.Describer, r.o.cfg.Aggregation, r.tracker, r.log)
	report, err := aggregate.NewBatch(helper, smart, r.log).Run(ctx, targets, r.cfg.AggregationInstructions)
	r.res.Descriptions += len(report.Generated)
	r.res.DescriptionsSkipped += len(report.Skipped)
	return err
}

// finish regenerates the indexes, syncs the search index and fills totals.
func (r *run) finish(ctx context.Context) (*types.BuildResult, error) {
	r.enter(types.StateIndexesRegenerated)
	m := structure.New(r.root, r.tracker, r.log)
	if err := m.RegenerateIndexes(); err != nil {
		return r.fail(types.StateIndexesRegenerated, err)
	}
	if r.o.index != nil {
		if _, err := r.o.index.Sync(ctx, io.Discard); err != nil {
			return r.fail(types.StateIndexesRegenerated, err)
		}
	}
	counts, err := m.Counts()
	if err != nil {
		return r.fail(types.StateIndexesRegenerated, err)
	}
	counts.Fill(r.res)

	r.enter(types.StateDone)
	r.res.Success = true
	r.log.Info("batch finished", "questions", r.res.Batch.Questions, "answers", r.res.Batch.Answers,
		"notes", r.res.Batch.Notes, "discarded", r.res.Batch.Discarded, "promoted", r.res.Batch.Promoted,
		"descriptions", r.res.Descriptions, "files", len(r.tracker.Created()), "overwritten", len(r.tracker.Modified()))
	return r.res, nil
}

func readInput(cfg types.BuildConfig) (string, error) {
	if cfg.InputText != "" || cfg.InputFile == "" {
		return cfg.InputText, nil
	}
	data, err := os.ReadFile(cfg.InputFile)
	if err != nil {
		return "", types.StoreIOError("reading input", err)
	}
	return string(data), nil
}

const stampLayout = "20060102T150405Z"

// copyRawInput keeps a copy of the batch input under inbox/raw/<source>/
// and returns where the analyzed snapshot belongs. Input that already lives
// in the inbox is not copied again.
func (r *run) copyRawInput(input string) (string, error) {
	source := sourceDir(r.cfg.SourceName)
	rawDir := filepath.Join(r.root, kbcontext.InboxDir, "raw")

	if r.cfg.InputFile != "" && r.cfg.InputText == "" && within(rawDir, r.cfg.InputFile) {
		return SnapshotPath(r.root, r.cfg.SourceName, filepath.Base(r.cfg.InputFile)), nil
	}

	name := "input.txt"
	if r.cfg.InputFile != "" {
		name = filepath.Base(r.cfg.InputFile)
	}
	name = r.at.UTC().Format(stampLayout) + "_" + shortRunID(r.id) + "_" + name
	if err := r.tracker.WriteFile(filepath.Join(rawDir, source, name), []byte(input)); err != nil {
		return "", types.StoreIOError("copying input to inbox", err)
	}
	return SnapshotPath(r.root, r.cfg.SourceName, name), nil
}

// shortRunID keeps raw copies of runs sharing a timestamp apart.
func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SnapshotPath returns where the analyzed snapshot of the inbox file name
// of source is written.
func SnapshotPath(root, source, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name)) + "_analyzed.yaml"
	return filepath.Join(root, kbcontext.InboxDir, "analyzed", sourceDir(source), base)
}

func sourceDir(source string) string {
	if s := entity.Slugify(source); s != "" {
		return s
	}
	return "default"
}

func within(dir, path string) bool {
	absDir, err1 := filepath.Abs(dir)
	absPath, err2 := filepath.Abs(path)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// snapshot is the analyzed form of a batch, kept for audit and reprocessing.
type snapshot struct {
	RunID     string                `yaml:"run_id"`
	Source    string                `yaml:"source"`
	Timestamp time.Time             `yaml:"timestamp"`
	Result    *types.AnalysisResult `yaml:"result"`
}

func (r *run) writeSnapshot(path string, result *types.AnalysisResult) error {
	data, err := yaml.Marshal(snapshot{RunID: r.id, Source: r.cfg.SourceName, Timestamp: r.at.UTC(), Result: result})
	if err != nil {
		return fmt.Errorf("encoding analyzed snapshot: %w", err)
	}
	if err := r.tracker.WriteFile(path, data); err != nil {
		return types.StoreIOError("writing analyzed snapshot", err)
	}
	return nil
}
