// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cleaner removes every entity that came from one source and then
// recomputes the derived artifacts from what remains. Entities of other
// sources are never opened for writing.
package cleaner

import (
	"slices"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Dangling is a reference from a surviving entity to a deleted one.
type Dangling struct {
	ID     string `json:"id"`
	Field  string `json:"field"`
	Target string `json:"target"`
}

// Result lists what CleanSource removed.
type Result struct {
	Deleted  []string   `json:"deleted"`
	Dangling []Dangling `json:"dangling,omitempty"`
}

// CleanSource deletes the entity files whose source is source and rebuilds
// topics, areas, profiles and indexes. References from other sources to the
// deleted entities are left in place and reported.
func CleanSource(root, source string, tracker *rollback.Tracker, log *logging.Logger) (*Result, error) {
	log = logging.OrNop(log)
	res := &Result{}
	if source == "" {
		return res, nil
	}

	store, err := entity.ReadStore(root)
	if err != nil {
		return nil, err
	}
	deleted := make(map[string]bool)
	for _, d := range store.All() {
		if d.Source != source {
			continue
		}
		if err := tracker.Remove(d.Path); err != nil {
			return nil, types.StoreIOError("removing "+d.ID, err)
		}
		deleted[d.ID] = true
		res.Deleted = append(res.Deleted, d.ID)
	}
	slices.Sort(res.Deleted)

	for _, d := range store.All() {
		if deleted[d.ID] {
			continue
		}
		if deleted[d.AnsweredBy] {
			res.Dangling = append(res.Dangling, Dangling{ID: d.ID, Field: "answeredBy", Target: d.AnsweredBy})
		}
		if deleted[d.AnswersQuestion] {
			res.Dangling = append(res.Dangling, Dangling{ID: d.ID, Field: "answersQuestion", Target: d.AnswersQuestion})
		}
	}
	for _, dg := range res.Dangling {
		log.Warn("reference to cleaned source left in place", "id", dg.ID, "field", dg.Field, "target", dg.Target)
	}

	if _, err := structure.New(root, tracker, log).RebuildDerived(); err != nil {
		return nil, err
	}
	log.Info("source cleaned", "source", source, "deleted", len(res.Deleted), "dangling", len(res.Dangling))
	return res, nil
}
