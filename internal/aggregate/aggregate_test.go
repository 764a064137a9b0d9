// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

type mockDescriber struct {
	calls    []string
	contents []string
	err      error
}

func (m *mockDescriber) Describe(_ context.Context, kind ai.DescriptionKind, id, content, _ string) (string, error) {
	m.calls = append(m.calls, string(kind)+":"+id)
	m.contents = append(m.contents, content)
	if m.err != nil {
		return "", m.err
	}
	return "Narrative about " + id + ".", nil
}

func seedStore(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	result := &types.AnalysisResult{
		Questions: []types.Question{{Entity: types.Entity{ID: "q_1", Author: "Alice", Date: "2024-01-15", Area: "docker", Topics: []string{"containers"}, Text: "How do I persist data?"}}},
		Answers:   []types.Answer{{Entity: types.Entity{ID: "a_1", Author: "Bob", Date: "2024-01-15", Area: "docker", Topics: []string{"containers"}, Text: "Use volumes."}, AnswersQuestion: "q_1"}},
	}
	_, err := structure.New(root, nil, nil).Build(result, "slack", nil)
	require.NoError(t, err)
	return root
}

func setMtime(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestHelperWritesWrappedDescription(t *testing.T) {
	root := seedStore(t)
	d := &mockDescriber{}
	h := NewHelper(root, d, types.AggregationConfig{}, nil, nil)

	require.NoError(t, h.Topic(context.Background(), "containers", ""))
	require.Equal(t, []string{"topic:containers"}, d.calls)
	assert.Contains(t, d.contents[0], "How do I persist data?")
	assert.Contains(t, d.contents[0], "Use volumes.")

	data, err := os.ReadFile(filepath.Join(root, "topics", "containers-desc.md"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), ContentStart))
	assert.Equal(t, "Narrative about containers.", Unwrap(string(data)))
}

func TestHelperPersonAndArea(t *testing.T) {
	root := seedStore(t)
	d := &mockDescriber{}
	h := NewHelper(root, d, types.AggregationConfig{}, nil, nil)

	require.NoError(t, h.Person(context.Background(), "Bob", ""))
	require.NoError(t, h.Area(context.Background(), "docker", ""))
	assert.FileExists(t, filepath.Join(root, "people", "Bob", "Bob-desc.md"))
	assert.FileExists(t, filepath.Join(root, "areas", "docker", "docker-desc.md"))
	assert.NotContains(t, d.contents[0], "How do I persist data?")
}

func TestHelperBoundsContent(t *testing.T) {
	root := seedStore(t)
	h := NewHelper(root, &mockDescriber{}, types.AggregationConfig{MaxInputChars: 150}, nil, nil)
	store, err := entity.ReadStore(root)
	require.NoError(t, err)

	target := Target{ai.DescribeTopic, "containers"}
	docs, err := h.Members(store, target)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	content := h.Content(target, docs)
	assert.LessOrEqual(t, len(content), 150+40)
	assert.Contains(t, content, "more entries omitted")
}

func TestHelperCollaboratorFailure(t *testing.T) {
	root := seedStore(t)
	h := NewHelper(root, &mockDescriber{err: errors.New("overloaded")}, types.AggregationConfig{}, nil, nil)

	err := h.Person(context.Background(), "Alice", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCollaborator)
	assert.NoFileExists(t, filepath.Join(root, "people", "Alice", "Alice-desc.md"))
}

func TestSmartBatchSkipsFreshDescriptions(t *testing.T) {
	root := seedStore(t)
	d := &mockDescriber{}
	h := NewHelper(root, d, types.AggregationConfig{}, nil, nil)
	alice := Target{ai.DescribePerson, "Alice"}

	_, err := NewBatch(h, false, nil).Run(context.Background(), []Target{alice}, "")
	require.NoError(t, err)
	require.Len(t, d.calls, 1)

	past := time.Now().Add(-time.Hour)
	question := filepath.Join(root, "questions", "q_0001.md")
	setMtime(t, question, past)
	setMtime(t, h.DescriptionPath(alice), past.Add(time.Minute))

	report, err := NewBatch(h, true, nil).Run(context.Background(), []Target{alice}, "")
	require.NoError(t, err)
	assert.Len(t, d.calls, 1)
	assert.Equal(t, []string{"person:Alice"}, report.Skipped)

	setMtime(t, question, past.Add(2*time.Minute))
	report, err = NewBatch(h, true, nil).Run(context.Background(), []Target{alice}, "")
	require.NoError(t, err)
	assert.Len(t, d.calls, 2)
	assert.Equal(t, []string{"person:Alice"}, report.Generated)
}

func TestNeedsRegeneration(t *testing.T) {
	dir := t.TempDir()
	desc := filepath.Join(dir, "x-desc.md")
	dep := filepath.Join(dir, "q_0001.md")
	require.NoError(t, os.WriteFile(dep, []byte("q"), 0o644))

	stale, err := NeedsRegeneration(desc, []string{dep})
	require.NoError(t, err)
	assert.True(t, stale, "missing description")

	require.NoError(t, os.WriteFile(desc, []byte("d"), 0o644))
	now := time.Now()
	setMtime(t, dep, now)
	setMtime(t, desc, now)
	stale, err = NeedsRegeneration(desc, []string{dep})
	require.NoError(t, err)
	assert.True(t, stale, "equal mtimes")

	setMtime(t, desc, now.Add(time.Second))
	stale, err = NeedsRegeneration(desc, []string{dep})
	require.NoError(t, err)
	assert.False(t, stale)

	stale, err = NeedsRegeneration(desc, []string{filepath.Join(dir, "gone.md")})
	require.NoError(t, err)
	assert.True(t, stale, "missing dependency")
}

func TestStoreTargets(t *testing.T) {
	root := seedStore(t)
	_, err := structure.New(root, nil, nil).Build(&types.AnalysisResult{
		Notes: []types.Note{{Entity: types.Entity{ID: "n_1", Author: "Dana", Date: "2024-02-01", Area: "billing", Topics: []string{"invoices"}, Text: "Net 30."}}},
	}, "teams", nil)
	require.NoError(t, err)
	store, err := entity.ReadStore(root)
	require.NoError(t, err)

	all := StoreTargets(store, "")
	assert.Len(t, all, 3+2+2)

	teams := StoreTargets(store, "teams")
	assert.Equal(t, []Target{
		{ai.DescribePerson, "Dana"},
		{ai.DescribeTopic, "invoices"},
		{ai.DescribeArea, "billing"},
	}, teams)
}
