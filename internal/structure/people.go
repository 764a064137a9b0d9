// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// CollectPeople computes every person's profile from the persisted entities.
func CollectPeople(store *entity.Store) map[string]*types.PersonStats {
	people := make(map[string]*types.PersonStats)
	for _, d := range store.All() {
		id := entity.NormalizePerson(d.Author)
		if id == "" {
			continue
		}
		p, ok := people[id]
		if !ok {
			p = &types.PersonStats{ID: id, Name: strings.TrimSpace(d.Author), Topics: make(map[string]int)}
			people[id] = p
		}
		p.Name = pickTitle(p.Name, d.Author)
		ref := types.EntityRef{ID: d.ID, Date: d.Date}
		switch d.Kind {
		case types.KindQuestion:
			p.Questions = append(p.Questions, ref)
		case types.KindAnswer:
			p.Answers = append(p.Answers, ref)
		case types.KindNote:
			p.Notes = append(p.Notes, ref)
		}
		seen := make(map[string]bool)
		for _, t := range d.Topics {
			if slug := entity.Slugify(t); slug != "" && !seen[slug] {
				seen[slug] = true
				p.Topics[slug]++
			}
		}
		if d.Source != "" && !slices.Contains(p.Sources, d.Source) {
			p.Sources = append(p.Sources, d.Source)
		}
	}
	for _, p := range people {
		slices.Sort(p.Sources)
	}
	return people
}

// ProfilePath returns the profile artifact path of a person.
func ProfilePath(root, id string) string {
	return filepath.Join(root, kbcontext.PeopleDir, id, id+".md")
}

type profileFrontmatter struct {
	ID        string         `yaml:"id"`
	Name      string         `yaml:"name"`
	Type      string         `yaml:"type"`
	Questions int            `yaml:"questionsAsked"`
	Answers   int            `yaml:"answersProvided"`
	Notes     int            `yaml:"notesContributed"`
	Topics    map[string]int `yaml:"topics"`
	Sources   []string       `yaml:"sources,flow"`
}

// RenderProfile renders a person profile.
func RenderProfile(p *types.PersonStats) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", p.Name, autoStart)
	fmt.Fprintf(&b, "**Questions asked:** %d | **Answers provided:** %d | **Notes contributed:** %d\n\n",
		p.QuestionsAsked(), p.AnswersProvided(), p.NotesContributed())

	if len(p.Topics) > 0 {
		b.WriteString("## Topics\n\n")
		for _, slug := range topicsByCount(p.Topics) {
			fmt.Fprintf(&b, "- [[../../topics/%s|%s]] (%d)\n", slug, slug, p.Topics[slug])
		}
		b.WriteString("\n")
	}
	writeRefs(&b, "Questions", "questions", p.Questions)
	writeRefs(&b, "Answers", "answers", p.Answers)
	writeRefs(&b, "Notes", "notes", p.Notes)
	fmt.Fprintf(&b, "%s\n\n## Description\n\n![[%s-desc]]\n", autoEnd, p.ID)

	topics := p.Topics
	if topics == nil {
		topics = map[string]int{}
	}
	return withFrontmatter(profileFrontmatter{
		ID: p.ID, Name: p.Name, Type: "person",
		Questions: p.QuestionsAsked(), Answers: p.AnswersProvided(), Notes: p.NotesContributed(),
		Topics: topics, Sources: nonNil(p.Sources),
	}, b.String())
}

func topicsByCount(topics map[string]int) []string {
	slugs := sortedKeys(topics)
	sort.SliceStable(slugs, func(i, j int) bool { return topics[slugs[i]] > topics[slugs[j]] })
	return slugs
}

func writeRefs(b *strings.Builder, title, dir string, refs []types.EntityRef) {
	if len(refs) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, r := range refs {
		fmt.Fprintf(b, "- [[../../%s/%s|%s]] - %s\n", dir, r.ID, r.ID, r.Date)
	}
	b.WriteString("\n")
}

// writeProfiles rewrites the profiles of ids. A listed person with no
// persisted contributions has the profile removed.
func (m *Manager) writeProfiles(people map[string]*types.PersonStats, ids []string) error {
	for _, id := range ids {
		p, ok := people[id]
		if !ok {
			if err := m.removeProfile(id); err != nil {
				return err
			}
			continue
		}
		data, err := RenderProfile(p)
		if err != nil {
			return err
		}
		if err := m.write(ProfilePath(m.root, id), data); err != nil {
			return err
		}
	}
	return nil
}

// writeAllProfiles rewrites every profile and removes the ones whose person
// has nothing left in the store.
func (m *Manager) writeAllProfiles(people map[string]*types.PersonStats) error {
	if err := m.writeProfiles(people, sortedKeys(people)); err != nil {
		return err
	}
	existing, err := listDirs(filepath.Join(m.root, kbcontext.PeopleDir))
	if err != nil {
		return err
	}
	for _, id := range existing {
		if _, ok := people[id]; !ok {
			if err := m.removeProfile(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) removeProfile(id string) error {
	dir := filepath.Join(m.root, kbcontext.PeopleDir, id)
	for _, path := range []string{ProfilePath(m.root, id), DescriptionPath(ProfilePath(m.root, id))} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := m.remove(path); err != nil {
			return err
		}
	}
	m.log.Debug("removed profile", "person", id)
	removeDirIfEmpty(dir)
	return nil
}

func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("listing "+dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}
