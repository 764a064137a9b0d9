// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package regen rebuilds every derived artifact from the persisted entity
// files alone. It is the recovery path after a partially failed rollback
// and after changes to the derived formats.
package regen

import (
	"fmt"

	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Regenerate recomputes topics, areas, people and indexes under root. When
// sourceName is set, the batch counts report that source's entities; the
// rebuild itself always covers the whole store.
func Regenerate(root, sourceName string, log *logging.Logger) (*types.BuildResult, error) {
	log = logging.OrNop(log)
	m := structure.New(root, nil, log)

	rebuilt, err := m.RebuildDerived()
	if err != nil {
		return &types.BuildResult{Message: err.Error()}, fmt.Errorf("regenerating %s: %w", root, err)
	}
	counts, err := m.Counts()
	if err != nil {
		return &types.BuildResult{Message: err.Error()}, fmt.Errorf("counting %s: %w", root, err)
	}

	res := &types.BuildResult{Success: true}
	counts.Fill(res)
	if sourceName != "" {
		res.Batch, err = sourceCounts(root, sourceName)
		if err != nil {
			return res, err
		}
	}
	res.Message = fmt.Sprintf("regenerated %d topics, %d areas, %d people; removed %d stale artifacts",
		len(rebuilt.Topics), len(rebuilt.Areas), len(rebuilt.People), len(rebuilt.Removed))
	log.Info("regeneration finished", "source", sourceName, "questions", res.Questions,
		"answers", res.Answers, "notes", res.Notes)
	return res, nil
}
