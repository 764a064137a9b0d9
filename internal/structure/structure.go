// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package structure persists a mapped AnalysisResult and maintains every
// artifact derived from the entity files: topic and area groupings, person
// profiles, and the stats and index pages. Derived artifacts are a
// deterministic projection of the entity files; they carry no timestamps
// and list members in ID order.
package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/idmap"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Manager owns the write side of one store root.
type Manager struct {
	root    string
	tracker *rollback.Tracker
	log     *logging.Logger
}

// New returns a Manager for root. Writes go through tracker so a failed
// batch can be rolled back; a nil tracker writes untracked.
func New(root string, tracker *rollback.Tracker, log *logging.Logger) *Manager {
	return &Manager{root: root, tracker: tracker, log: logging.OrNop(log)}
}

// Root returns the store root.
func (m *Manager) Root() string { return m.root }

// Summary describes what Build wrote.
type Summary struct {
	// IDMap maps the IDs the result carried on entry to their final form.
	IDMap map[string]string

	Questions, Answers, Notes int

	// People, Topics and Areas list what the batch touched, sorted.
	People []string
	Topics []string
	Areas  []string

	// Pruned counts cross-references cleared because their target does not exist.
	Pruned int
}

// Build persists result and updates the derived artifacts it touches.
//
// The result is re-mapped against a freshly loaded context first; this is
// the authoritative ID assignment. Answers are written before questions so
// a question can embed the answers that resolve it, then notes follow.
// When contributions is nil every person profile is recomputed and
// profiles without remaining contributions are removed; otherwise only the
// listed people are rewritten. Either way the counts come from a scan of the
// persisted files, which already include this batch.
func (m *Manager) Build(result *types.AnalysisResult, sourceName string, contributions types.PersonContributions) (*Summary, error) {
	if err := kbcontext.InitStore(m.root); err != nil {
		return nil, err
	}

	kctx, err := kbcontext.Load(m.root)
	if err != nil {
		return nil, err
	}
	result.SetSource(sourceName)
	rekeyPromoted(result)
	sum := &Summary{IDMap: idmap.MapAndUpdate(result, kctx)}

	linkPairs(result)
	sum.Pruned = m.pruneDangling(result)

	if err := m.writeEntities(result); err != nil {
		return nil, err
	}
	sum.Questions, sum.Answers, sum.Notes = len(result.Questions), len(result.Answers), len(result.Notes)
	if err := m.raiseWatermark(result); err != nil {
		return nil, err
	}

	topics, areas := Groupings(result)
	if err := m.mergeGroupings(topics, areas); err != nil {
		return nil, err
	}
	for slug := range topics {
		sum.Topics = append(sum.Topics, slug)
	}
	for slug := range areas {
		sum.Areas = append(sum.Areas, slug)
	}
	slices.Sort(sum.Topics)
	slices.Sort(sum.Areas)

	store, err := entity.ReadStore(m.root)
	if err != nil {
		return nil, err
	}
	people := CollectPeople(store)
	if contributions == nil {
		if err := m.writeAllProfiles(people); err != nil {
			return nil, err
		}
		for id := range Contributions(result) {
			sum.People = append(sum.People, id)
		}
	} else {
		for id := range contributions {
			sum.People = append(sum.People, id)
		}
		if err := m.writeProfiles(people, sum.People); err != nil {
			return nil, err
		}
	}
	slices.Sort(sum.People)

	m.log.Info("structure built", "questions", sum.Questions, "answers", sum.Answers, "notes", sum.Notes,
		"topics", len(sum.Topics), "areas", len(sum.Areas), "people", len(sum.People), "pruned", sum.Pruned)
	return sum, nil
}

// Contributions counts the entities each person added in result.
func Contributions(result *types.AnalysisResult) types.PersonContributions {
	c := make(types.PersonContributions)
	for _, e := range result.Entities() {
		if id := entity.NormalizePerson(e.Author); id != "" {
			c[id]++
		}
	}
	return c
}

// rekeyPromoted gives answers promoted from notes a key of their own, so the
// final mapping allocates them a fresh answer number instead of reusing the
// number derived from the note.
func rekeyPromoted(result *types.AnalysisResult) {
	for i := range result.Answers {
		if a := &result.Answers[i]; a.PromotedFrom != "" {
			a.ID = "promoted:" + a.PromotedFrom
		}
	}
}

// linkPairs completes one-sided links between two entities of the batch.
func linkPairs(result *types.AnalysisResult) {
	answers := make(map[string]*types.Answer, len(result.Answers))
	for i := range result.Answers {
		answers[result.Answers[i].ID] = &result.Answers[i]
	}
	questions := make(map[string]*types.Question, len(result.Questions))
	for i := range result.Questions {
		questions[result.Questions[i].ID] = &result.Questions[i]
	}
	for _, q := range questions {
		if a, ok := answers[q.AnsweredBy]; ok && a.AnswersQuestion == "" {
			a.AnswersQuestion = q.ID
		}
	}
	for _, a := range answers {
		if q, ok := questions[a.AnswersQuestion]; ok && q.AnsweredBy == "" {
			q.AnsweredBy = a.ID
		}
	}
}

// pruneDangling clears references whose target is neither in the batch nor
// persisted, and returns how many were cleared.
func (m *Manager) pruneDangling(result *types.AnalysisResult) int {
	batch := make(map[string]bool)
	for _, e := range result.Entities() {
		batch[e.ID] = true
	}
	valid := func(id string, kind types.EntityKind) bool {
		if types.KindOf(id) != kind {
			return false
		}
		return batch[id] || m.exists(kind, id)
	}

	pruned := 0
	for i := range result.Questions {
		q := &result.Questions[i]
		if q.AnsweredBy != "" && !valid(q.AnsweredBy, types.KindAnswer) {
			m.log.Warn("clearing dangling reference", "id", q.ID, "answeredBy", q.AnsweredBy)
			q.AnsweredBy = ""
			pruned++
		}
	}
	for i := range result.Answers {
		a := &result.Answers[i]
		if a.AnswersQuestion != "" && !valid(a.AnswersQuestion, types.KindQuestion) {
			m.log.Warn("clearing dangling reference", "id", a.ID, "answersQuestion", a.AnswersQuestion)
			a.AnswersQuestion = ""
			pruned++
		}
	}
	return pruned
}

func (m *Manager) exists(kind types.EntityKind, id string) bool {
	_, err := os.Stat(m.entityPath(kind, id))
	return err == nil
}

func (m *Manager) entityPath(kind types.EntityKind, id string) string {
	return filepath.Join(m.root, kind.Dir(), id+".md")
}

func (m *Manager) writeEntities(result *types.AnalysisResult) error {
	for _, a := range result.Answers {
		data, err := entity.RenderAnswer(a)
		if err != nil {
			return err
		}
		if err := m.write(m.entityPath(types.KindAnswer, a.ID), data); err != nil {
			return err
		}
	}

	embeds := make(map[string][]string)
	for _, a := range result.Answers {
		if a.AnswersQuestion != "" && !slices.Contains(embeds[a.AnswersQuestion], a.ID) {
			embeds[a.AnswersQuestion] = append(embeds[a.AnswersQuestion], a.ID)
		}
	}
	for _, q := range result.Questions {
		ids := embeds[q.ID]
		if q.AnsweredBy != "" && !slices.Contains(ids, q.AnsweredBy) {
			ids = append([]string{q.AnsweredBy}, ids...)
		}
		data, err := entity.RenderQuestion(q, ids)
		if err != nil {
			return err
		}
		if err := m.write(m.entityPath(types.KindQuestion, q.ID), data); err != nil {
			return err
		}
	}

	for _, n := range result.Notes {
		data, err := entity.RenderNote(n)
		if err != nil {
			return err
		}
		if err := m.write(m.entityPath(types.KindNote, n.ID), data); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) raiseWatermark(result *types.AnalysisResult) error {
	w, err := kbcontext.ReadWatermark(m.root)
	if err != nil {
		return err
	}
	for _, e := range result.Entities() {
		if n, ok := entity.IDNumber(e.ID); ok {
			w = w.Raise(types.KindOf(e.ID), n)
		}
	}
	data, err := w.Marshal()
	if err != nil {
		return fmt.Errorf("encoding id watermark: %w", err)
	}
	return m.write(kbcontext.WatermarkPath(m.root), data)
}

func (m *Manager) write(path string, data []byte) error {
	if err := m.tracker.WriteFile(path, data); err != nil {
		return types.StoreIOError("writing "+relPath(m.root, path), err)
	}
	return nil
}

func (m *Manager) remove(path string) error {
	if err := m.tracker.Remove(path); err != nil {
		return types.StoreIOError("removing "+relPath(m.root, path), err)
	}
	return nil
}

// removeDirIfEmpty drops dir when nothing is left in it.
func removeDirIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
