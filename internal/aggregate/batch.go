// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"slices"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/structure"
)

// Report counts the outcome of a batch of descriptions.
type Report struct {
	Generated []string `json:"generated"`
	Skipped   []string `json:"skipped"`
}

// Batch describes many targets. In smart mode a target is skipped when its
// description is newer than every entity it covers.
type Batch struct {
	helper *Helper
	smart  bool
	log    *logging.Logger
}

// NewBatch returns a Batch over helper.
func NewBatch(helper *Helper, smart bool, log *logging.Logger) *Batch {
	return &Batch{helper: helper, smart: smart, log: logging.OrNop(log)}
}

// Run describes every target in order. The first failure stops the run.
func (b *Batch) Run(ctx context.Context, targets []Target, instructions string) (Report, error) {
	var r Report
	store, err := entity.ReadStore(b.helper.root)
	if err != nil {
		return r, err
	}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		if b.smart {
			stale, err := b.stale(store, t)
			if err != nil {
				return r, err
			}
			if !stale {
				b.log.Debug("description up to date", "target", t.String())
				r.Skipped = append(r.Skipped, t.String())
				continue
			}
		}
		written, err := b.helper.Generate(ctx, store, t, instructions)
		if err != nil {
			return r, err
		}
		if written {
			r.Generated = append(r.Generated, t.String())
		} else {
			r.Skipped = append(r.Skipped, t.String())
		}
	}
	b.log.Info("aggregation finished", "generated", len(r.Generated), "skipped", len(r.Skipped), "smart", b.smart)
	return r, nil
}

func (b *Batch) stale(store *entity.Store, t Target) (bool, error) {
	docs, err := b.helper.Members(store, t)
	if err != nil {
		return false, err
	}
	deps := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Path != "" {
			deps = append(deps, d.Path)
		}
	}
	stale, err := NeedsRegeneration(b.helper.DescriptionPath(t), deps)
	if stale && err == nil {
		b.log.Debug("description stale", "target", t.String(), "newestEntity", newest(deps))
	}
	return stale, err
}

// Targets lists people, then topics, then areas.
func Targets(people, topics, areas []string) []Target {
	var out []Target
	for _, id := range people {
		out = append(out, Target{ai.DescribePerson, id})
	}
	for _, id := range topics {
		out = append(out, Target{ai.DescribeTopic, id})
	}
	for _, id := range areas {
		out = append(out, Target{ai.DescribeArea, id})
	}
	return out
}

// StoreTargets lists every person, topic and area in the store. A non-empty
// source restricts the list to groupings containing entities of that source.
func StoreTargets(store *entity.Store, source string) []Target {
	scoped := store
	if source != "" {
		scoped = &entity.Store{
			Questions: bySource(store.Questions, source),
			Answers:   bySource(store.Answers, source),
			Notes:     bySource(store.Notes, source),
		}
	}
	topics, areas := structure.StoreGroupings(scoped)
	people := structure.CollectPeople(scoped)
	return Targets(sortedKeys(people), sortedKeys(topics), sortedKeys(areas))
}

func bySource(docs []entity.Document, source string) []entity.Document {
	var out []entity.Document
	for _, d := range docs {
		if d.Source == source {
			out = append(out, d)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
