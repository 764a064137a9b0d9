// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cleaner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

func e(id, author, area string, topics ...string) types.Entity {
	return types.Entity{ID: id, Author: author, Date: "2024-03-01", Area: area, Topics: topics, Text: "about " + id}
}

// countBySource tallies persisted entities per kind for one source.
func countBySource(t *testing.T, root, source string) map[types.EntityKind]int {
	t.Helper()
	store, err := entity.ReadStore(root)
	require.NoError(t, err)
	counts := make(map[types.EntityKind]int)
	for _, d := range store.All() {
		if d.Source == source {
			counts[d.Kind]++
		}
	}
	return counts
}

func seed(t *testing.T) (string, *structure.Manager) {
	t.Helper()
	root := t.TempDir()
	m := structure.New(root, nil, nil)
	_, err := m.Build(&types.AnalysisResult{
		Questions: []types.Question{{Entity: e("q_1", "Alice", "docker", "containers")}},
		Answers:   []types.Answer{{Entity: e("a_1", "Bob", "docker", "containers")}},
	}, "A", nil)
	require.NoError(t, err)
	_, err = m.Build(&types.AnalysisResult{
		Answers: []types.Answer{{Entity: e("a_1", "Carol", "docker", "containers"), AnswersQuestion: "q_0001"}},
		Notes:   []types.Note{{Entity: e("n_1", "Carol", "billing", "invoices")}},
	}, "B", nil)
	require.NoError(t, err)
	return root, m
}

func TestCleanSourceIsolation(t *testing.T) {
	root, _ := seed(t)
	beforeB := countBySource(t, root, "B")
	survivor := filepath.Join(root, "answers", "a_0002.md")
	before, err := os.ReadFile(survivor)
	require.NoError(t, err)

	res, err := CleanSource(root, "A", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_0001", "q_0001"}, res.Deleted)

	assert.Equal(t, beforeB, countBySource(t, root, "B"))
	assert.Empty(t, countBySource(t, root, "A"))
	after, err := os.ReadFile(survivor)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.Equal(t, []Dangling{{ID: "a_0002", Field: "answersQuestion", Target: "q_0001"}}, res.Dangling)
}

func TestCleanSourceRebuildsDerived(t *testing.T) {
	root, _ := seed(t)
	_, err := CleanSource(root, "A", nil, nil)
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(root, "people", "Alice"))
	assert.NoDirExists(t, filepath.Join(root, "people", "Bob"))
	assert.FileExists(t, structure.ProfilePath(root, "Carol"))

	topic, err := structure.ReadTopic(structure.TopicPath(root, "containers"))
	require.NoError(t, err)
	assert.Empty(t, topic.Questions)
	assert.Equal(t, []string{"a_0002"}, topic.Answers)
	assert.Equal(t, []string{"Carol"}, topic.Contributors)
	assert.FileExists(t, filepath.Join(root, structure.IndexFile))
}

func TestCleanSourceUnknownSource(t *testing.T) {
	root, _ := seed(t)
	res, err := CleanSource(root, "nope", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, 2, countBySource(t, root, "A")[types.KindQuestion]+countBySource(t, root, "A")[types.KindAnswer])
}

func TestCleanSourceDoesNotFreeIDs(t *testing.T) {
	root, m := seed(t)
	_, err := CleanSource(root, "B", nil, nil)
	require.NoError(t, err)

	sum, err := m.Build(&types.AnalysisResult{
		Answers: []types.Answer{{Entity: e("a_1", "Carol", "docker")}},
		Notes:   []types.Note{{Entity: e("n_1", "Carol", "billing")}},
	}, "B", nil)
	require.NoError(t, err)
	assert.Equal(t, "a_0003", sum.IDMap["a_1"])
	assert.Equal(t, "n_0002", sum.IDMap["n_1"])
}
