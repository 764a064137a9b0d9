// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kbcontext

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/pkg/types"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFindMaxID(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"q_0001.md", "q_0012.md", "q_0003.md", "q_abc.md", "q_.md", "a_0099.md", "q_0050.txt", "q_0007-desc.md"} {
		writeFile(t, filepath.Join(dir, name), []byte("x"))
	}

	n, err := FindMaxID("q_", dir)
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = FindMaxID("a_", dir)
	require.NoError(t, err)
	assert.Equal(t, 99, n)
}

func TestFindMaxIDMissingOrEmpty(t *testing.T) {
	n, err := FindMaxID("q_", filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = FindMaxID("q_", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLoadEmptyStore(t *testing.T) {
	ctx, err := Load(filepath.Join(t.TempDir(), "kb"))
	require.NoError(t, err)
	assert.Empty(t, ctx.ExistingQuestions)
	assert.Equal(t, 0, ctx.MaxQuestionID)
}

func TestLoadRejectsFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	writeFile(t, path, []byte("x"))
	_, err := Load(path)
	assert.ErrorIs(t, err, types.ErrStoreIO)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitStore(root))

	q1 := types.Question{Entity: types.Entity{ID: "q_0001", Author: "Alice", Date: "2024-01-01", Area: "docker", Text: "How?", Source: "s"}}
	q2 := types.Question{Entity: types.Entity{ID: "q_0004", Author: "Bob", Date: "2024-01-02", Area: "k8s", Text: "Why?", Source: "s"}}
	a1 := types.Answer{Entity: types.Entity{ID: "a_0002", Author: "Bob", Date: "2024-01-03", Area: "docker", Source: "s"}, AnswersQuestion: "q_0001"}

	data, err := entity.RenderQuestion(q1, nil)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, QuestionsDir, "q_0001.md"), data)
	data, err = entity.RenderQuestion(q2, nil)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, QuestionsDir, "q_0004.md"), data)
	data, err = entity.RenderAnswer(a1)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, AnswersDir, "a_0002.md"), data)
	writeFile(t, filepath.Join(root, NotesDir, "n_0009.md"), []byte("---\nid: n_0009\ntype: note\n---\n"))

	require.NoError(t, os.MkdirAll(filepath.Join(root, PeopleDir, "Bob"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, PeopleDir, "Alice"), 0o755))
	writeFile(t, filepath.Join(root, TopicsDir, "volumes.md"), []byte("x"))
	writeFile(t, filepath.Join(root, TopicsDir, "volumes-desc.md"), []byte("x"))

	ctx, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Bob"}, ctx.ExistingPeople)
	assert.Equal(t, []string{"volumes"}, ctx.ExistingTopics)
	assert.Equal(t, 4, ctx.MaxQuestionID)
	assert.Equal(t, 2, ctx.MaxAnswerID)
	assert.Equal(t, 9, ctx.MaxNoteID)

	require.Len(t, ctx.ExistingQuestions, 2)
	assert.Equal(t, "q_0001", ctx.ExistingQuestions[0].ID)
	assert.True(t, ctx.ExistingQuestions[0].Answered, "linked from a persisted answer")
	assert.False(t, ctx.ExistingQuestions[1].Answered)
	assert.True(t, ctx.HasPerson("Bob"))
	assert.True(t, ctx.HasTopic("volumes"))
}

func TestLoadIsReadOnly(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root)
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearStoreKeepsInboxAndIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitStore(root))
	writeFile(t, filepath.Join(root, QuestionsDir, "q_0001.md"), []byte("x"))
	writeFile(t, filepath.Join(root, "INDEX.md"), []byte("x"))
	writeFile(t, filepath.Join(root, InboxDir, "raw", "slack", "in.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, IndexDir, "kb.db"), []byte("x"))

	require.NoError(t, ClearStore(root, nil))
	assert.NoDirExists(t, filepath.Join(root, QuestionsDir))
	assert.NoFileExists(t, filepath.Join(root, "INDEX.md"))
	assert.FileExists(t, filepath.Join(root, InboxDir, "raw", "slack", "in.txt"))
	assert.FileExists(t, filepath.Join(root, IndexDir, "kb.db"))

	require.NoError(t, ClearStore(filepath.Join(root, "missing"), nil))
}

func TestClearStoreRollsBack(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitStore(root))
	writeFile(t, filepath.Join(root, QuestionsDir, "q_0001.md"), []byte("question"))
	writeFile(t, filepath.Join(root, PeopleDir, "Alice", "Alice.md"), []byte("profile"))

	tracker := rollback.NewTracker(nil)
	require.NoError(t, ClearStore(root, tracker))
	assert.NoDirExists(t, filepath.Join(root, PeopleDir))

	report := tracker.Rollback()
	assert.Equal(t, 2, report.Restored)
	data, err := os.ReadFile(filepath.Join(root, PeopleDir, "Alice", "Alice.md"))
	require.NoError(t, err)
	assert.Equal(t, "profile", string(data))
	assert.FileExists(t, filepath.Join(root, QuestionsDir, "q_0001.md"))
}

func TestLoadHonorsWatermark(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, InitStore(root))
	writeFile(t, filepath.Join(root, QuestionsDir, "q_0002.md"), []byte("x"))

	w := Watermark{}.Raise(types.KindQuestion, 5).Raise(types.KindNote, 3).Raise(types.KindQuestion, 4)
	data, err := w.Marshal()
	require.NoError(t, err)
	writeFile(t, WatermarkPath(root), data)

	ctx, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 5, ctx.MaxQuestionID)
	assert.Equal(t, 0, ctx.MaxAnswerID)
	assert.Equal(t, 3, ctx.MaxNoteID)
}
