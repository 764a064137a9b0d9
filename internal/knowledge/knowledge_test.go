package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := Open(types.KnowledgeBaseConfig{OutputPath: root, MaxResults: 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store, root
}

func seed(t *testing.T, root, source string, result *types.AnalysisResult) {
	t.Helper()
	if _, err := structure.New(root, nil, nil).Build(result, source, nil); err != nil {
		t.Fatal(err)
	}
}

func dockerBatch() *types.AnalysisResult {
	return &types.AnalysisResult{
		Questions: []types.Question{{Entity: types.Entity{
			ID: "q_1", Author: "Alice", Date: "2024-01-15", Area: "docker", Topics: []string{"containers"},
			Tags: []string{"compose"}, Text: "How do I persist database files between container restarts?",
		}}},
		Answers: []types.Answer{{Entity: types.Entity{
			ID: "a_1", Author: "Bob Smith", Date: "2024-01-15", Area: "docker", Topics: []string{"containers"},
			Text: "Mount a named volume at the data directory.",
		}, Quality: 0.8, AnswersQuestion: "q_1"}},
	}
}

func billingBatch() *types.AnalysisResult {
	return &types.AnalysisResult{Notes: []types.Note{{Entity: types.Entity{
		ID: "n_1", Author: "Carol", Date: "2024-02-01", Area: "billing", Topics: []string{"invoices"},
		Text: "Invoices are issued net 30.",
	}}}}
}

func syncQuiet(t *testing.T, s *Store) SyncSummary {
	t.Helper()
	var buf bytes.Buffer
	summary, err := s.Sync(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	return summary
}

// --- indexing ---

func TestOpenCreatesDatabase(t *testing.T) {
	_, root := testSetup(t)
	if _, err := os.Stat(filepath.Join(root, "index", dbFile)); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestSyncIndexesAndSkipsUnchanged(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())

	first := syncQuiet(t, s)
	if first.Indexed != 2 || first.Failed != 0 {
		t.Fatalf("first sync = %+v, want 2 indexed", first)
	}

	second := syncQuiet(t, s)
	if second.Skipped != 2 || second.Indexed != 0 || second.Updated != 0 {
		t.Fatalf("second sync = %+v, want 2 skipped", second)
	}
	if second.Total() != 2 {
		t.Errorf("Total() = %d, want 2", second.Total())
	}
}

func TestSyncUpdatesAndRemoves(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	seed(t, root, "teams", billingBatch())
	syncQuiet(t, s)

	answer := filepath.Join(root, "answers", "a_0001.md")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(answer, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "notes", "n_0001.md")); err != nil {
		t.Fatal(err)
	}

	summary := syncQuiet(t, s)
	if summary.Updated != 1 || summary.Removed != 1 || summary.Skipped != 1 {
		t.Fatalf("sync = %+v, want 1 updated, 1 removed, 1 skipped", summary)
	}

	results, err := s.Retrieve(context.Background(), QueryOptions{Type: types.KindNote})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("removed note still indexed: %+v", results)
	}
}

func TestRebuildKeepsLedger(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	ctx := context.Background()
	if err := s.RecordSync(ctx, "slack", time.Now(), "run-1"); err != nil {
		t.Fatal(err)
	}
	syncQuiet(t, s)

	var buf bytes.Buffer
	summary, err := s.Rebuild(ctx, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 2 {
		t.Errorf("rebuild indexed %d, want 2", summary.Indexed)
	}
	if _, ok, err := s.LastSync(ctx, "slack"); err != nil || !ok {
		t.Errorf("ledger lost after rebuild: ok=%v err=%v", ok, err)
	}
}

// --- retrieval ---

func TestRetrieveFullText(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	seed(t, root, "teams", billingBatch())
	syncQuiet(t, s)

	results, err := s.Retrieve(context.Background(), QueryOptions{Query: "volume"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "a_0001" {
		t.Fatalf("results = %+v, want a_0001", results)
	}
	if results[0].AnswersQuestion != "q_0001" || results[0].Quality != 0.8 {
		t.Errorf("answer fields not indexed: %+v", results[0])
	}
}

func TestRetrieveFilters(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	seed(t, root, "teams", billingBatch())
	syncQuiet(t, s)

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{"by source", QueryOptions{Source: "teams"}, []string{"n_0001"}},
		{"by type", QueryOptions{Type: types.KindQuestion}, []string{"q_0001"}},
		{"by person", QueryOptions{Person: "Bob  Smith"}, []string{"a_0001"}},
		{"by area", QueryOptions{Area: "Docker"}, []string{"a_0001", "q_0001"}},
		{"by tag", QueryOptions{Tags: []string{"compose"}}, []string{"q_0001"}},
		{"system tags are not indexed", QueryOptions{Tags: []string{"question"}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Retrieve(context.Background(), tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, r := range results {
				got = append(got, r.ID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestThread(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	syncQuiet(t, s)

	thread, err := s.Thread(context.Background(), "q_0001")
	if err != nil {
		t.Fatal(err)
	}
	if len(thread) != 2 || thread[0].ID != "q_0001" || thread[1].ID != "a_0001" {
		t.Fatalf("thread = %+v", thread)
	}

	if _, err := s.Thread(context.Background(), "q_0099"); err == nil {
		t.Error("expected error for unknown question")
	}
}

// --- export ---

func TestExport(t *testing.T) {
	s, root := testSetup(t)
	seed(t, root, "slack", dockerBatch())
	syncQuiet(t, s)
	ctx := context.Background()

	yamlPath, err := s.ExportYAML(ctx, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML []QueryResult
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatal(err)
	}
	if len(fromYAML) != 2 {
		t.Errorf("yaml export has %d entries, want 2", len(fromYAML))
	}

	jsonPath, err := s.ExportJSON(ctx, QueryOptions{Source: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON []QueryResult
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatal(err)
	}
	if fromJSON == nil || len(fromJSON) != 0 {
		t.Errorf("empty export should be an empty array, got %s", data)
	}
}

// --- ledgers ---

func TestSourceLedger(t *testing.T) {
	s, _ := testSetup(t)
	ctx := context.Background()

	if _, ok, err := s.LastSync(ctx, "slack"); err != nil || ok {
		t.Fatalf("unexpected entry: ok=%v err=%v", ok, err)
	}

	first := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	if err := s.RecordSync(ctx, "slack", first, "run-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSync(ctx, "slack", second, "run-2"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordSync(ctx, "teams", first, "run-3"); err != nil {
		t.Fatal(err)
	}

	sync, ok, err := s.LastSync(ctx, "slack")
	if err != nil || !ok {
		t.Fatalf("LastSync: ok=%v err=%v", ok, err)
	}
	if !sync.LastSync.Equal(second) || sync.LastRun != "run-2" || sync.Batches != 2 {
		t.Errorf("sync = %+v", sync)
	}

	all, err := s.Sources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Name != "slack" || all[1].Name != "teams" {
		t.Errorf("sources = %+v", all)
	}

	if err := s.ForgetSource(ctx, "teams"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.LastSync(ctx, "teams"); ok {
		t.Error("teams still in ledger")
	}
}

func TestInboxLedger(t *testing.T) {
	s, _ := testSetup(t)
	ctx := context.Background()
	path := "inbox/raw/slack/export.txt"

	done, err := s.InboxFileProcessed(ctx, path)
	if err != nil || done {
		t.Fatalf("fresh ledger: done=%v err=%v", done, err)
	}
	if err := s.MarkInboxFile(ctx, path, "slack", "run-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	done, err = s.InboxFileProcessed(ctx, path)
	if err != nil || !done {
		t.Errorf("after mark: done=%v err=%v", done, err)
	}
}
