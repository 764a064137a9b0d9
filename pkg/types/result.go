// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrStoreIO marks a filesystem failure that aborts the current batch.
var ErrStoreIO = errors.New("store I/O failure")

// ErrCollaborator marks an AI collaborator error or timeout.
var ErrCollaborator = errors.New("collaborator failure")

// StoreIOError wraps err so that errors.Is(err, ErrStoreIO) holds.
func StoreIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreIO, err)
}

// CollaboratorError wraps err so that errors.Is(err, ErrCollaborator) holds.
func CollaboratorError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrCollaborator, err)
}

// BuildState is a step of the batch state machine.
type BuildState string

const (
	StateIdle               BuildState = "Idle"
	StateContextLoaded      BuildState = "ContextLoaded"
	StateAnalyzed           BuildState = "Analyzed"
	StateValidated          BuildState = "Validated"
	StateIDMapped           BuildState = "IdMapped"
	StateQAMapped           BuildState = "QAMapped"
	StateStructureBuilt     BuildState = "StructureBuilt"
	StateAggregated         BuildState = "Aggregated"
	StateIndexesRegenerated BuildState = "IndexesRegenerated"
	StateDone               BuildState = "Done"
	StateFailed             BuildState = "Failed"
)

// StageError records the stage a batch failed in.
type StageError struct {
	Stage BuildState
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// BuildResult summarizes a batch, cleanup or regeneration run. Counts are the
// totals in the store after the run.
type BuildResult struct {
	RunID   string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Success bool   `json:"success" yaml:"success"`

	// FailedStage is set when Success is false.
	FailedStage BuildState `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Message     string     `json:"message,omitempty" yaml:"message,omitempty"`

	Questions int `json:"questions" yaml:"questions"`
	Answers   int `json:"answers" yaml:"answers"`
	Notes     int `json:"notes" yaml:"notes"`
	People    int `json:"people" yaml:"people"`
	Topics    int `json:"topics" yaml:"topics"`
	Areas     int `json:"areas" yaml:"areas"`

	// Batch counts entities this run added.
	Batch BatchCounts `json:"batch" yaml:"batch"`

	// Deleted lists entity IDs removed by source cleanup.
	Deleted []string `json:"deleted,omitempty" yaml:"deleted,omitempty"`

	// Descriptions counts narrative artifacts (re)generated.
	Descriptions int `json:"descriptions" yaml:"descriptions"`
	// DescriptionsSkipped counts artifacts a smart pass left alone.
	DescriptionsSkipped int `json:"descriptions_skipped" yaml:"descriptions_skipped"`
}

// BatchCounts holds the per-batch entity counts.
type BatchCounts struct {
	Questions int `json:"questions" yaml:"questions"`
	Answers   int `json:"answers" yaml:"answers"`
	Notes     int `json:"notes" yaml:"notes"`
	Discarded int `json:"discarded" yaml:"discarded"`
	Linked    int `json:"linked" yaml:"linked"`
	Promoted  int `json:"promoted" yaml:"promoted"`
}
