// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/pkg/types"
)

const (
	autoStart = "<!-- AUTO_GENERATED_START -->"
	autoEnd   = "<!-- AUTO_GENERATED_END -->"
)

// member is the part of an entity that groupings need.
type member struct {
	kind   types.EntityKind
	id     string
	author string
	area   string
	topics []string
}

func membersOf(result *types.AnalysisResult) []member {
	var ms []member
	for _, q := range result.Questions {
		ms = append(ms, member{types.KindQuestion, q.ID, q.Author, q.Area, q.Topics})
	}
	for _, a := range result.Answers {
		ms = append(ms, member{types.KindAnswer, a.ID, a.Author, a.Area, a.Topics})
	}
	for _, n := range result.Notes {
		ms = append(ms, member{types.KindNote, n.ID, n.Author, n.Area, n.Topics})
	}
	return ms
}

func membersOfStore(store *entity.Store) []member {
	var ms []member
	for _, d := range store.All() {
		ms = append(ms, member{d.Kind, d.ID, d.Author, d.Area, d.Topics})
	}
	return ms
}

// Groupings computes topic and area membership of result, keyed by slug.
func Groupings(result *types.AnalysisResult) (map[string]*types.TopicStatistics, map[string]*types.AreaStatistics) {
	return group(membersOf(result))
}

// StoreGroupings computes topic and area membership of every persisted entity.
func StoreGroupings(store *entity.Store) (map[string]*types.TopicStatistics, map[string]*types.AreaStatistics) {
	return group(membersOfStore(store))
}

func group(ms []member) (map[string]*types.TopicStatistics, map[string]*types.AreaStatistics) {
	topics := make(map[string]*types.TopicStatistics)
	areas := make(map[string]*types.AreaStatistics)

	for _, m := range ms {
		person := entity.NormalizePerson(m.author)
		var topicSlugs []string
		for _, title := range m.topics {
			slug := entity.Slugify(title)
			if slug == "" || slices.Contains(topicSlugs, slug) {
				continue
			}
			topicSlugs = append(topicSlugs, slug)
			t, ok := topics[slug]
			if !ok {
				t = &types.TopicStatistics{Slug: slug, Title: strings.TrimSpace(title)}
				topics[slug] = t
			}
			t.Title = pickTitle(t.Title, title)
			addMember(&t.Questions, &t.Answers, &t.Notes, m)
			t.Contributors = addUnique(t.Contributors, person)
		}

		slug := entity.Slugify(m.area)
		if slug == "" {
			continue
		}
		a, ok := areas[slug]
		if !ok {
			a = &types.AreaStatistics{Slug: slug, Title: strings.TrimSpace(m.area)}
			areas[slug] = a
		}
		a.Title = pickTitle(a.Title, m.area)
		addMember(&a.Questions, &a.Answers, &a.Notes, m)
		a.Contributors = addUnique(a.Contributors, person)
		for _, ts := range topicSlugs {
			a.Topics = addUnique(a.Topics, ts)
		}
	}

	for _, t := range topics {
		normalizeTopic(t)
	}
	for _, a := range areas {
		normalizeArea(a)
	}
	return topics, areas
}

// pickTitle chooses between title variants of one slug independently of
// the order they were seen in.
func pickTitle(current, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if current == "" || (candidate != "" && candidate < current) {
		return candidate
	}
	return current
}

func addMember(qs, as, ns *[]string, m member) {
	switch m.kind {
	case types.KindQuestion:
		*qs = addUnique(*qs, m.id)
	case types.KindAnswer:
		*as = addUnique(*as, m.id)
	case types.KindNote:
		*ns = addUnique(*ns, m.id)
	}
}

func addUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

// sortIDs orders IDs by numeric suffix, then lexically.
func sortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		ni, oki := entity.IDNumber(ids[i])
		nj, okj := entity.IDNumber(ids[j])
		if oki && okj && ni != nj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func normalizeTopic(t *types.TopicStatistics) {
	sortIDs(t.Questions)
	sortIDs(t.Answers)
	sortIDs(t.Notes)
	slices.Sort(t.Contributors)
	t.Questions, t.Answers, t.Notes, t.Contributors = nonNil(t.Questions), nonNil(t.Answers), nonNil(t.Notes), nonNil(t.Contributors)
}

func normalizeArea(a *types.AreaStatistics) {
	sortIDs(a.Questions)
	sortIDs(a.Answers)
	sortIDs(a.Notes)
	slices.Sort(a.Contributors)
	slices.Sort(a.Topics)
	a.Questions, a.Answers, a.Notes = nonNil(a.Questions), nonNil(a.Answers), nonNil(a.Notes)
	a.Contributors, a.Topics = nonNil(a.Contributors), nonNil(a.Topics)
}

// MergeTopic folds batch into existing. Membership and contributors are
// unions, so merging the same batch twice changes nothing.
func MergeTopic(existing, batch *types.TopicStatistics) *types.TopicStatistics {
	if existing == nil {
		return batch
	}
	out := &types.TopicStatistics{Slug: batch.Slug, Title: pickTitle(existing.Title, batch.Title)}
	out.Questions = union(existing.Questions, batch.Questions)
	out.Answers = union(existing.Answers, batch.Answers)
	out.Notes = union(existing.Notes, batch.Notes)
	out.Contributors = union(existing.Contributors, batch.Contributors)
	normalizeTopic(out)
	return out
}

// MergeArea folds batch into existing like MergeTopic.
func MergeArea(existing, batch *types.AreaStatistics) *types.AreaStatistics {
	if existing == nil {
		return batch
	}
	out := &types.AreaStatistics{Slug: batch.Slug, Title: pickTitle(existing.Title, batch.Title)}
	out.Questions = union(existing.Questions, batch.Questions)
	out.Answers = union(existing.Answers, batch.Answers)
	out.Notes = union(existing.Notes, batch.Notes)
	out.Contributors = union(existing.Contributors, batch.Contributors)
	out.Topics = union(existing.Topics, batch.Topics)
	normalizeArea(out)
	return out
}

func union(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, v := range b {
		out = addUnique(out, v)
	}
	return out
}

// topicFrontmatter is the header of topics/<slug>.md.
type topicFrontmatter struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Type         string   `yaml:"type"`
	Questions    []string `yaml:"questions,flow"`
	Answers      []string `yaml:"answers,flow"`
	Notes        []string `yaml:"notes,flow"`
	Contributors []string `yaml:"contributors,flow"`
}

// areaFrontmatter is the header of areas/<slug>/<slug>.md.
type areaFrontmatter struct {
	ID           string   `yaml:"id"`
	Title        string   `yaml:"title"`
	Type         string   `yaml:"type"`
	Topics       []string `yaml:"topics,flow"`
	Questions    []string `yaml:"questions,flow"`
	Answers      []string `yaml:"answers,flow"`
	Notes        []string `yaml:"notes,flow"`
	Contributors []string `yaml:"contributors,flow"`
}

// TopicPath returns the artifact path of a topic.
func TopicPath(root, slug string) string {
	return filepath.Join(root, kbcontext.TopicsDir, slug+".md")
}

// AreaPath returns the artifact path of an area.
func AreaPath(root, slug string) string {
	return filepath.Join(root, kbcontext.AreasDir, slug, slug+".md")
}

// DescriptionPath returns the narrative file that sits next to an artifact.
func DescriptionPath(artifact string) string {
	return strings.TrimSuffix(artifact, ".md") + "-desc.md"
}

// ReadTopic loads a topic artifact. A missing file yields nil.
func ReadTopic(path string) (*types.TopicStatistics, error) {
	var fm topicFrontmatter
	ok, err := readFrontmatter(path, &fm)
	if err != nil || !ok {
		return nil, err
	}
	t := &types.TopicStatistics{Slug: fm.ID, Title: fm.Title, Questions: fm.Questions,
		Answers: fm.Answers, Notes: fm.Notes, Contributors: fm.Contributors}
	normalizeTopic(t)
	return t, nil
}

// ReadArea loads an area artifact. A missing file yields nil.
func ReadArea(path string) (*types.AreaStatistics, error) {
	var fm areaFrontmatter
	ok, err := readFrontmatter(path, &fm)
	if err != nil || !ok {
		return nil, err
	}
	a := &types.AreaStatistics{Slug: fm.ID, Title: fm.Title, Topics: fm.Topics, Questions: fm.Questions,
		Answers: fm.Answers, Notes: fm.Notes, Contributors: fm.Contributors}
	normalizeArea(a)
	return a, nil
}

func readFrontmatter(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, types.StoreIOError("reading "+path, err)
	}
	data = bytes.TrimPrefix(data, []byte("---\n"))
	end := bytes.Index(data, []byte("\n---"))
	if end < 0 {
		return false, nil
	}
	if err := yaml.Unmarshal(data[:end+1], out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// RenderTopic renders a topic artifact.
func RenderTopic(t *types.TopicStatistics) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", t.Title, autoStart)
	fmt.Fprintf(&b, "**Questions:** %d | **Answers:** %d | **Notes:** %d | **Contributors:** %d\n\n",
		len(t.Questions), len(t.Answers), len(t.Notes), len(t.Contributors))
	writePeopleLinks(&b, "Contributors", "../people", t.Contributors)
	writeEmbeds(&b, "Questions", t.Questions)
	writeEmbeds(&b, "Answers", t.Answers)
	writeEmbeds(&b, "Notes", t.Notes)
	fmt.Fprintf(&b, "%s\n\n## Description\n\n![[%s-desc]]\n", autoEnd, t.Slug)

	return withFrontmatter(topicFrontmatter{
		ID: t.Slug, Title: t.Title, Type: "topic",
		Questions: nonNil(t.Questions), Answers: nonNil(t.Answers), Notes: nonNil(t.Notes),
		Contributors: nonNil(t.Contributors),
	}, b.String())
}

// RenderArea renders an area artifact.
func RenderArea(a *types.AreaStatistics) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", a.Title, autoStart)
	fmt.Fprintf(&b, "**Questions:** %d | **Answers:** %d | **Notes:** %d | **Contributors:** %d\n\n",
		len(a.Questions), len(a.Answers), len(a.Notes), len(a.Contributors))
	if len(a.Topics) > 0 {
		b.WriteString("## Topics\n\n")
		for _, t := range a.Topics {
			fmt.Fprintf(&b, "- [[../../topics/%s|%s]]\n", t, t)
		}
		b.WriteString("\n")
	}
	writePeopleLinks(&b, "Contributors", "../../people", a.Contributors)
	writeLinks(&b, "Questions", "../../questions", a.Questions)
	writeLinks(&b, "Answers", "../../answers", a.Answers)
	writeLinks(&b, "Notes", "../../notes", a.Notes)
	fmt.Fprintf(&b, "%s\n\n## Description\n\n![[%s-desc]]\n", autoEnd, a.Slug)

	return withFrontmatter(areaFrontmatter{
		ID: a.Slug, Title: a.Title, Type: "area", Topics: nonNil(a.Topics),
		Questions: nonNil(a.Questions), Answers: nonNil(a.Answers), Notes: nonNil(a.Notes),
		Contributors: nonNil(a.Contributors),
	}, b.String())
}

func writePeopleLinks(b *strings.Builder, title, base string, people []string) {
	if len(people) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, p := range people {
		fmt.Fprintf(b, "- [[%s/%s/%s|%s]]\n", base, p, p, p)
	}
	b.WriteString("\n")
}

func writeEmbeds(b *strings.Builder, title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, id := range ids {
		fmt.Fprintf(b, "![[%s]]\n\n", id)
	}
}

func writeLinks(b *strings.Builder, title, base string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, id := range ids {
		fmt.Fprintf(b, "- [[%s/%s|%s]]\n", base, id, id)
	}
	b.WriteString("\n")
}

func withFrontmatter(fm any, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// mergeGroupings merges the batch's topic and area membership into the
// persisted artifacts.
func (m *Manager) mergeGroupings(topics map[string]*types.TopicStatistics, areas map[string]*types.AreaStatistics) error {
	for _, slug := range sortedKeys(topics) {
		path := TopicPath(m.root, slug)
		existing, err := ReadTopic(path)
		if err != nil {
			return err
		}
		data, err := RenderTopic(MergeTopic(existing, topics[slug]))
		if err != nil {
			return err
		}
		if err := m.write(path, data); err != nil {
			return err
		}
	}
	for _, slug := range sortedKeys(areas) {
		path := AreaPath(m.root, slug)
		existing, err := ReadArea(path)
		if err != nil {
			return err
		}
		data, err := RenderArea(MergeArea(existing, areas[slug]))
		if err != nil {
			return err
		}
		if err := m.write(path, data); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
