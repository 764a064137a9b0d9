// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package regen

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// derived returns the derived artifacts under root keyed by relative path.
// Narrative descriptions are excluded.
func derived(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	for _, dir := range []string{"topics", "areas", "people", "stats"} {
		err := filepath.WalkDir(filepath.Join(root, dir), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || strings.HasSuffix(path, "-desc.md") {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			out[rel] = string(data)
			return nil
		})
		require.NoError(t, err)
	}
	return out
}

func seed(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	m := structure.New(root, nil, nil)
	_, err := m.Build(&types.AnalysisResult{
		Questions: []types.Question{{Entity: types.Entity{ID: "q_1", Author: "Alice", Date: "2024-01-15", Area: "Docker", Topics: []string{"Containers", "Volumes"}, Text: "How?"}}},
		Answers:   []types.Answer{{Entity: types.Entity{ID: "a_1", Author: "Bob Smith", Date: "2024-01-16", Area: "Docker", Topics: []string{"Containers"}, Text: "Like this."}, AnswersQuestion: "q_1"}},
	}, "slack", nil)
	require.NoError(t, err)
	_, err = m.Build(&types.AnalysisResult{
		Notes: []types.Note{{Entity: types.Entity{ID: "n_1", Author: "Carol", Date: "2024-02-01", Area: "Billing", Topics: []string{"Invoices"}, Text: "Net 30."}}},
	}, "teams", nil)
	require.NoError(t, err)
	return root
}

func TestRegenerateIsIdempotent(t *testing.T) {
	root := seed(t)

	first, err := Regenerate(root, "", nil)
	require.NoError(t, err)
	assert.True(t, first.Success)
	snap := derived(t, root)

	second, err := Regenerate(root, "", nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(snap, derived(t, root)))
	assert.Equal(t, first.Message, second.Message)
}

func TestRegenerateRecoversDeletedArtifacts(t *testing.T) {
	root := seed(t)
	_, err := Regenerate(root, "", nil)
	require.NoError(t, err)
	want := derived(t, root)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "topics")))
	require.NoError(t, os.RemoveAll(filepath.Join(root, "people")))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "topics"), 0o755))
	require.NoError(t, os.WriteFile(structure.TopicPath(root, "stale"), []byte("---\nid: stale\n---\n"), 0o644))

	res, err := Regenerate(root, "slack", nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, derived(t, root)))
	assert.Equal(t, 1, res.Questions)
	assert.Equal(t, 1, res.Answers)
	assert.Equal(t, 1, res.Notes)
	assert.Equal(t, 3, res.People)
	assert.Equal(t, 3, res.Topics)
	assert.Equal(t, 2, res.Areas)
	assert.Equal(t, types.BatchCounts{Questions: 1, Answers: 1}, res.Batch)
}
