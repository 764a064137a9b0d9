// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/pkg/types"
)

func ent(id, author, area string, topics ...string) types.Entity {
	return types.Entity{ID: id, Author: author, Date: "2024-01-15", Area: area, Topics: topics, Text: "text of " + id}
}

func firstBatch() *types.AnalysisResult {
	return &types.AnalysisResult{
		Questions: []types.Question{{Entity: ent("q_1", "Alice", "docker", "containers")}},
		Answers:   []types.Answer{{Entity: ent("a_1", "Bob", "docker", "containers", "volumes"), Quality: 0.8}},
	}
}

func readDoc(t *testing.T, root string, kind types.EntityKind, id string) entity.Document {
	t.Helper()
	doc, err := entity.ParseFile(filepath.Join(root, kind.Dir(), id+".md"))
	require.NoError(t, err)
	return doc
}

// snapshot returns the content of every file under root except descriptions.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, "-desc.md") {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[relPath(root, path)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestBuildFirstBatch(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)

	result := firstBatch()
	sum, err := m.Build(result, "slack", nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"q_1": "q_0001", "a_1": "a_0001"}, sum.IDMap)
	assert.Equal(t, 1, sum.Questions)
	assert.Equal(t, 1, sum.Answers)
	assert.Equal(t, []string{"Alice", "Bob"}, sum.People)
	assert.Equal(t, []string{"containers", "volumes"}, sum.Topics)
	assert.Equal(t, []string{"docker"}, sum.Areas)

	q := readDoc(t, root, types.KindQuestion, "q_0001")
	assert.Equal(t, "slack", q.Source)
	assert.Equal(t, "Alice", q.Author)
	a := readDoc(t, root, types.KindAnswer, "a_0001")
	assert.Empty(t, a.AnswersQuestion)

	topic, err := ReadTopic(TopicPath(root, "containers"))
	require.NoError(t, err)
	assert.Equal(t, []string{"q_0001"}, topic.Questions)
	assert.Equal(t, []string{"a_0001"}, topic.Answers)
	assert.Equal(t, []string{"Alice", "Bob"}, topic.Contributors)

	area, err := ReadArea(AreaPath(root, "docker"))
	require.NoError(t, err)
	assert.Equal(t, []string{"containers", "volumes"}, area.Topics)

	assert.FileExists(t, ProfilePath(root, "Alice"))
	assert.FileExists(t, ProfilePath(root, "Bob"))
}

func TestBuildContinuesIDsAndPromotes(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)
	_, err := m.Build(firstBatch(), "slack", nil)
	require.NoError(t, err)

	promoted := types.Answer{Entity: ent("a_0001", "Charlie", "docker", "containers"), Quality: 0.9,
		AnswersQuestion: "q_0001", PromotedFrom: "n_0001"}
	sum, err := m.Build(&types.AnalysisResult{Answers: []types.Answer{promoted}}, "teams", nil)
	require.NoError(t, err)
	assert.Equal(t, "a_0002", sum.IDMap["promoted:n_0001"])

	a := readDoc(t, root, types.KindAnswer, "a_0002")
	assert.Equal(t, "q_0001", a.AnswersQuestion)
	assert.Equal(t, 0.9, a.Quality)
	assert.Equal(t, "teams", a.Source)

	first := readDoc(t, root, types.KindAnswer, "a_0001")
	assert.Equal(t, "Bob", first.Author)

	notes, err := entity.ReadDir(root, types.KindNote)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestBuildLinksAndPrunes(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)

	result := &types.AnalysisResult{
		Questions: []types.Question{
			{Entity: ent("q_1", "Alice", "docker"), AnsweredBy: "a_1"},
			{Entity: ent("q_2", "Alice", "docker"), AnsweredBy: "a_9"},
		},
		Answers: []types.Answer{
			{Entity: ent("a_1", "Bob", "docker")},
			{Entity: ent("a_2", "Bob", "docker"), AnswersQuestion: "q_0042"},
		},
	}
	sum, err := m.Build(result, "slack", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Pruned)

	assert.Equal(t, "q_0001", readDoc(t, root, types.KindAnswer, "a_0001").AnswersQuestion)
	assert.Empty(t, readDoc(t, root, types.KindAnswer, "a_0002").AnswersQuestion)
	assert.Equal(t, "a_0001", readDoc(t, root, types.KindQuestion, "q_0001").AnsweredBy)
	assert.Empty(t, readDoc(t, root, types.KindQuestion, "q_0002").AnsweredBy)

	data, err := os.ReadFile(filepath.Join(root, "questions", "q_0001.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "![[a_0001]]")
}

func TestBuildMergesTopicMembership(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)
	_, err := m.Build(firstBatch(), "slack", nil)
	require.NoError(t, err)

	second := &types.AnalysisResult{Notes: []types.Note{{Entity: ent("n_1", "Dana", "docker", "Containers")}}}
	_, err = m.Build(second, "teams", types.PersonContributions{"Dana": 1})
	require.NoError(t, err)

	topic, err := ReadTopic(TopicPath(root, "containers"))
	require.NoError(t, err)
	assert.Equal(t, []string{"q_0001"}, topic.Questions)
	assert.Equal(t, []string{"n_0001"}, topic.Notes)
	assert.Equal(t, []string{"Alice", "Bob", "Dana"}, topic.Contributors)
	assert.Equal(t, "Containers", topic.Title)
	assert.FileExists(t, ProfilePath(root, "Dana"))
}

func TestCollectPeopleNormalizesNames(t *testing.T) {
	store := &entity.Store{
		Questions: []entity.Document{{Kind: types.KindQuestion, Entity: ent("q_0001", "Alice  Smith", "docker", "x")}},
		Notes:     []entity.Document{{Kind: types.KindNote, Entity: ent("n_0001", "Alice Smith", "docker", "x")}},
	}
	people := CollectPeople(store)
	require.Len(t, people, 1)
	p := people["Alice_Smith"]
	assert.Equal(t, 1, p.QuestionsAsked())
	assert.Equal(t, 1, p.NotesContributed())
	assert.Equal(t, 2, p.Topics["x"])
}

func TestMergeTopicIsIdempotent(t *testing.T) {
	existing := &types.TopicStatistics{Slug: "x", Title: "X", Questions: []string{"q_0002"}, Contributors: []string{"Bob"}}
	batch := &types.TopicStatistics{Slug: "x", Title: "x", Questions: []string{"q_0010", "q_0002"}, Contributors: []string{"Alice"}}

	once := MergeTopic(existing, batch)
	twice := MergeTopic(once, batch)
	assert.Equal(t, []string{"q_0002", "q_0010"}, once.Questions)
	assert.Equal(t, []string{"Alice", "Bob"}, once.Contributors)
	assert.Empty(t, cmp.Diff(once, twice))
}

func TestRebuildDerivedIsIdempotent(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)
	_, err := m.Build(firstBatch(), "slack", nil)
	require.NoError(t, err)
	require.NoError(t, m.RegenerateIndexes())

	_, err = m.RebuildDerived()
	require.NoError(t, err)
	first := snapshot(t, root)

	_, err = m.RebuildDerived()
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(first, snapshot(t, root)))
}

func TestRebuildDerivedRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)
	_, err := m.Build(firstBatch(), "slack", nil)
	require.NoError(t, err)
	desc := DescriptionPath(TopicPath(root, "volumes"))
	require.NoError(t, os.WriteFile(desc, []byte("narrative"), 0o644))
	keep := DescriptionPath(TopicPath(root, "containers"))
	require.NoError(t, os.WriteFile(keep, []byte("narrative"), 0o644))

	require.NoError(t, os.Remove(filepath.Join(root, "answers", "a_0001.md")))
	out, err := m.RebuildDerived()
	require.NoError(t, err)

	assert.Equal(t, []string{"containers"}, out.Topics)
	assert.Equal(t, []string{"Alice"}, out.People)
	assert.NoFileExists(t, TopicPath(root, "volumes"))
	assert.NoFileExists(t, desc)
	assert.FileExists(t, keep)
	assert.NoDirExists(t, filepath.Join(root, "people", "Bob"))

	topic, err := ReadTopic(TopicPath(root, "containers"))
	require.NoError(t, err)
	assert.Empty(t, topic.Answers)
	assert.Equal(t, []string{"Alice"}, topic.Contributors)
}

func TestRegenerateIndexes(t *testing.T) {
	root := t.TempDir()
	m := New(root, nil, nil)
	_, err := m.Build(firstBatch(), "slack", nil)
	require.NoError(t, err)
	require.NoError(t, m.RegenerateIndexes())

	index, err := os.ReadFile(filepath.Join(root, IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "- Questions: 1 (0 answered)")
	assert.Contains(t, string(index), "- People: 2")

	timeline, err := os.ReadFile(filepath.Join(root, "stats", TimelineFile))
	require.NoError(t, err)
	assert.Contains(t, string(timeline), "| 2024-01-15 | 1 | 1 | 0 | 2 |")

	counts, err := m.Counts()
	require.NoError(t, err)
	assert.Equal(t, Counts{Questions: 1, Answers: 1, People: 2, Topics: 2, Areas: 1}, counts)
}

func TestBuildIsTracked(t *testing.T) {
	root := t.TempDir()
	tracker := rollback.NewTracker(nil)
	_, err := New(root, tracker, nil).Build(firstBatch(), "slack", nil)
	require.NoError(t, err)
	assert.Contains(t, tracker.Created(), filepath.Join(root, "questions", "q_0001.md"))

	tracker.Rollback()
	assert.NoFileExists(t, filepath.Join(root, "questions", "q_0001.md"))
	assert.NoFileExists(t, TopicPath(root, "containers"))
}
