// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Index and stats artifacts, relative to the store root.
const (
	IndexFile        = "INDEX.md"
	TimelineFile     = "activity_timeline.md"
	TopicsOverview   = "topics_overview.md"
	PeopleOverview   = "people_overview.md"
	unknownDateLabel = "unknown"
)

// Counts are the store totals reported after a run.
type Counts struct {
	Questions int `json:"questions"`
	Answers   int `json:"answers"`
	Notes     int `json:"notes"`
	People    int `json:"people"`
	Topics    int `json:"topics"`
	Areas     int `json:"areas"`
}

// Fill copies the totals into r.
func (c Counts) Fill(r *types.BuildResult) {
	r.Questions, r.Answers, r.Notes = c.Questions, c.Answers, c.Notes
	r.People, r.Topics, r.Areas = c.People, c.Topics, c.Areas
}

// Count computes the totals of the persisted store.
func Count(store *entity.Store) Counts {
	topics, areas := StoreGroupings(store)
	return Counts{
		Questions: len(store.Questions),
		Answers:   len(store.Answers),
		Notes:     len(store.Notes),
		People:    len(CollectPeople(store)),
		Topics:    len(topics),
		Areas:     len(areas),
	}
}

// Counts reads the store and returns its totals.
func (m *Manager) Counts() (Counts, error) {
	store, err := entity.ReadStore(m.root)
	if err != nil {
		return Counts{}, err
	}
	return Count(store), nil
}

// RegenerateIndexes rewrites the stats pages and INDEX.md from the
// persisted entities.
func (m *Manager) RegenerateIndexes() error {
	store, err := entity.ReadStore(m.root)
	if err != nil {
		return err
	}
	topics, areas := StoreGroupings(store)
	people := CollectPeople(store)

	pages := []struct {
		path string
		body string
	}{
		{filepath.Join(m.root, kbcontext.StatsDir, TimelineFile), renderTimeline(store)},
		{filepath.Join(m.root, kbcontext.StatsDir, TopicsOverview), renderTopicsOverview(topics)},
		{filepath.Join(m.root, kbcontext.StatsDir, PeopleOverview), renderPeopleOverview(people)},
		{filepath.Join(m.root, IndexFile), renderIndex(store, topics, areas, people)},
	}
	for _, p := range pages {
		if err := m.write(p.path, []byte(p.body)); err != nil {
			return err
		}
	}
	m.log.Debug("indexes regenerated", "topics", len(topics), "areas", len(areas), "people", len(people))
	return nil
}

type dayActivity struct {
	questions, answers, notes int
}

func renderTimeline(store *entity.Store) string {
	days := make(map[string]*dayActivity)
	for _, d := range store.All() {
		day := d.Date
		if day == "" {
			day = unknownDateLabel
		}
		a, ok := days[day]
		if !ok {
			a = &dayActivity{}
			days[day] = a
		}
		switch d.Kind {
		case types.KindQuestion:
			a.questions++
		case types.KindAnswer:
			a.answers++
		case types.KindNote:
			a.notes++
		}
	}

	var b strings.Builder
	b.WriteString("# Activity Timeline\n\n")
	b.WriteString("| Date | Questions | Answers | Notes | Total |\n|---|---|---|---|---|\n")
	keys := sortedKeys(days)
	slices.Reverse(keys)
	for _, day := range keys {
		a := days[day]
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d |\n", day, a.questions, a.answers, a.notes,
			a.questions+a.answers+a.notes)
	}
	return b.String()
}

func renderTopicsOverview(topics map[string]*types.TopicStatistics) string {
	list := make([]*types.TopicStatistics, 0, len(topics))
	for _, t := range topics {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Total() != list[j].Total() {
			return list[i].Total() > list[j].Total()
		}
		return list[i].Slug < list[j].Slug
	})

	var b strings.Builder
	b.WriteString("# Topics Overview\n\n")
	b.WriteString("| Topic | Questions | Answers | Notes | Contributors |\n|---|---|---|---|---|\n")
	for _, t := range list {
		fmt.Fprintf(&b, "| [[../topics/%s|%s]] | %d | %d | %d | %d |\n", t.Slug, t.Title,
			len(t.Questions), len(t.Answers), len(t.Notes), len(t.Contributors))
	}
	return b.String()
}

func renderPeopleOverview(people map[string]*types.PersonStats) string {
	var b strings.Builder
	b.WriteString("# People\n\n")
	b.WriteString("| Person | Questions | Answers | Notes | Total |\n|---|---|---|---|---|\n")
	for _, id := range sortedKeys(people) {
		p := people[id]
		fmt.Fprintf(&b, "| [[../people/%s/%s|%s]] | %d | %d | %d | %d |\n", id, id, p.Name,
			p.QuestionsAsked(), p.AnswersProvided(), p.NotesContributed(), p.Total())
	}
	return b.String()
}

func renderIndex(store *entity.Store, topics map[string]*types.TopicStatistics,
	areas map[string]*types.AreaStatistics, people map[string]*types.PersonStats) string {

	named := make(map[string]bool)
	for _, a := range store.Answers {
		named[a.AnswersQuestion] = true
	}
	answered := 0
	for _, q := range store.Questions {
		if q.Answered || q.AnsweredBy != "" || named[q.ID] {
			answered++
		}
	}

	var b strings.Builder
	b.WriteString("# Knowledge Base\n\n")
	fmt.Fprintf(&b, "- Questions: %d (%d answered)\n", len(store.Questions), answered)
	fmt.Fprintf(&b, "- Answers: %d\n", len(store.Answers))
	fmt.Fprintf(&b, "- Notes: %d\n", len(store.Notes))
	fmt.Fprintf(&b, "- People: %d\n", len(people))
	fmt.Fprintf(&b, "- Topics: %d\n", len(topics))
	fmt.Fprintf(&b, "- Areas: %d\n\n", len(areas))

	if len(areas) > 0 {
		b.WriteString("## Areas\n\n")
		for _, slug := range sortedKeys(areas) {
			a := areas[slug]
			fmt.Fprintf(&b, "- [[areas/%s/%s|%s]] (%d)\n", slug, slug, a.Title,
				len(a.Questions)+len(a.Answers)+len(a.Notes))
		}
		b.WriteString("\n")
	}
	if len(topics) > 0 {
		b.WriteString("## Topics\n\n")
		for _, slug := range sortedKeys(topics) {
			fmt.Fprintf(&b, "- [[topics/%s|%s]] (%d)\n", slug, topics[slug].Title, topics[slug].Total())
		}
		b.WriteString("\n")
	}
	b.WriteString("## Statistics\n\n")
	fmt.Fprintf(&b, "- [[stats/%s|Activity timeline]]\n", strings.TrimSuffix(TimelineFile, ".md"))
	fmt.Fprintf(&b, "- [[stats/%s|Topics overview]]\n", strings.TrimSuffix(TopicsOverview, ".md"))
	fmt.Fprintf(&b, "- [[stats/%s|People]]\n", strings.TrimSuffix(PeopleOverview, ".md"))
	return b.String()
}
