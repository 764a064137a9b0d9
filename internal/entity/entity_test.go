// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package entity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/pkg/types"
)

func sampleQuestion() types.Question {
	return types.Question{
		Entity: types.Entity{
			ID:     "q_0001",
			Author: "Alice Smith",
			Date:   "2024-01-15T10:22:00Z",
			Area:   "Docker",
			Topics: []string{"Containers", "Compose Files"},
			Tags:   []string{"docker-compose"},
			Text:   "How do I mount a volume?\nIt keeps failing.",
			Source: "slack",
		},
		AnsweredBy: "a_0001",
	}
}

func TestRenderParseQuestion(t *testing.T) {
	data, err := RenderQuestion(sampleQuestion(), []string{"a_0001"})
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "# Question: q_0001")
	assert.Contains(t, content, "**Asked by:** [[Alice_Smith]]")
	assert.Contains(t, content, "**Area:** [[docker|Docker]]")
	assert.Contains(t, content, "[[compose-files|Compose Files]]")
	assert.Contains(t, content, "answered: true")
	assert.Contains(t, content, "![[a_0001]]")

	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, types.KindQuestion, doc.Kind)
	assert.Equal(t, "q_0001", doc.ID)
	assert.Equal(t, "Alice Smith", doc.Author)
	assert.Equal(t, "2024-01-15", doc.Date)
	assert.Equal(t, "Docker", doc.Area)
	assert.Equal(t, []string{"Containers", "Compose Files"}, doc.Topics)
	assert.Equal(t, []string{"docker-compose"}, doc.Tags, "system tags are stripped")
	assert.Equal(t, "slack", doc.Source)
	assert.Equal(t, "How do I mount a volume?\nIt keeps failing.", doc.Text)
	assert.True(t, doc.Answered)
	assert.Equal(t, "a_0001", doc.AnsweredBy)
}

func TestRenderParseAnswer(t *testing.T) {
	a := types.Answer{
		Entity: types.Entity{
			ID: "a_0002", Author: "Bob", Date: "2024-02-01", Area: "docker",
			Text: "Use a named volume.", Source: "wiki",
		},
		Quality:         0.85,
		AnswersQuestion: "q_0001",
	}
	data, err := RenderAnswer(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), "**Quality Score:** 0.85")
	assert.Contains(t, string(data), "**Answers:** [[q_0001]]")

	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, types.KindAnswer, doc.Kind)
	assert.Equal(t, a, doc.Answer())
}

func TestRenderParseNote(t *testing.T) {
	n := types.Note{Entity: types.Entity{
		ID: "n_0003", Author: "Charlie", Date: "2024-03-01", Area: "k8s",
		Topics: []string{"helm"}, Text: "Helm charts live in charts/.", Source: "teams",
	}}
	data, err := RenderNote(n)
	require.NoError(t, err)

	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, types.KindNote, doc.Kind)
	assert.Equal(t, n, doc.Note())
}

func TestParseKeepsFooterLikeText(t *testing.T) {
	base := types.Entity{Author: "Charlie", Date: "2024-03-01", Area: "ops", Source: "teams"}
	tests := []struct {
		name   string
		render func(types.Entity) ([]byte, error)
		text   string
	}{
		{"note with date line", func(e types.Entity) ([]byte, error) {
			e.ID = "n_0001"
			return RenderNote(types.Note{Entity: e})
		}, "Meeting recap from the standup.\n**Date:** moved to Friday\nPlease bring the logs."},
		{"question quoting attribution", func(e types.Entity) ([]byte, error) {
			e.ID = "q_0001"
			return RenderQuestion(types.Question{Entity: e}, []string{"a_0001"})
		}, "Who wrote this?\n**Asked by:** someone in the thread\n**By:** nobody knows"},
		{"answer with provided by", func(e types.Entity) ([]byte, error) {
			e.ID = "a_0001"
			return RenderAnswer(types.Answer{Entity: e, AnswersQuestion: "q_0001"})
		}, "**Provided by:** the vendor\nThen restart the agent."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := base
			e.Text = tt.text
			data, err := tt.render(e)
			require.NoError(t, err)
			doc, err := Parse(data)
			require.NoError(t, err)
			assert.Equal(t, tt.text, doc.Text)
		})
	}
}

func TestParseWithoutAttribution(t *testing.T) {
	data := []byte("---\nid: n_0002\ntype: note\nauthor: Dana\ndate: 2024-01-01\narea: ops\n---\n\n# Note: n_0002\n\nHand written.\n\n**Date:** 2024-01-01\n**Area:** [[ops|ops]]\n")
	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "Hand written.", doc.Text)
}

func TestParseSourceFromTag(t *testing.T) {
	data := []byte("---\nid: q_0004\ntype: question\nauthor: Dana\ndate: 2024-01-01\narea: ops\ntags: [\"#question\", \"#source_jira\", infra]\n---\n\n# Question: q_0004\n\nWhy?\n\n**Asked by:** [[Dana]]\n")
	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "jira", doc.Source)
	assert.Equal(t, []string{"infra"}, doc.Tags)
	assert.Equal(t, "Why?", doc.Text)
	assert.False(t, doc.Answered)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no frontmatter", "# Question: q_1\n"},
		{"unterminated", "---\nid: q_1\n"},
		{"unknown type", "---\nid: x_1\ntype: widget\n---\n"},
		{"bad yaml", "---\nid: [\n---\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestReadDirOrdersByNumber(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "questions")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	for _, id := range []string{"q_0010", "q_0002", "q_0001"} {
		q := sampleQuestion()
		q.ID = id
		data, err := RenderQuestion(q, nil)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+".md"), data, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	docs, err := ReadDir(root, types.KindQuestion)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "q_0001", docs[0].ID)
	assert.Equal(t, "q_0002", docs[1].ID)
	assert.Equal(t, "q_0010", docs[2].ID)
}

func TestReadDirMissing(t *testing.T) {
	docs, err := ReadDir(t.TempDir(), types.KindNote)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Alice_Smith", NormalizePerson("  Alice \t Smith "))
	assert.Equal(t, NormalizePerson("Alice Smith"), NormalizePerson("Alice  Smith"))
	assert.Equal(t, "a_b", NormalizePerson("a/b"))
	assert.Equal(t, "__", NormalizePerson(".."))
	assert.Equal(t, "_", NormalizePerson("."))
	assert.Equal(t, "_hidden", NormalizePerson(".hidden"))
	assert.Equal(t, "J.R.", NormalizePerson("J.R."))
	assert.Equal(t, "_", NormalizePerson("/"))
	assert.Equal(t, "ci-cd-pipelines", Slugify("CI/CD  Pipelines!"))
	assert.Equal(t, "2024-01-15", TruncateDate("2024-01-15T10:00:00Z"))
	assert.Equal(t, "2024-01", TruncateDate("2024-01"))

	n, ok := IDNumber("q_0042")
	assert.True(t, ok)
	assert.Equal(t, 42, n)
	_, ok = IDNumber("q_x")
	assert.False(t, ok)
	assert.True(t, IsEntityFile("a_0001.md"))
	assert.False(t, IsEntityFile("a_0001-desc.md"))
}
