// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kbcontext builds the read-only snapshot of the store that every
// batch starts from. The snapshot is recomputed from disk on each call and
// never cached, so allocated IDs always continue from what is persisted.
package kbcontext

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Store subdirectories.
const (
	QuestionsDir = "questions"
	AnswersDir   = "answers"
	NotesDir     = "notes"
	PeopleDir    = "people"
	TopicsDir    = "topics"
	AreasDir     = "areas"
	StatsDir     = "stats"
	InboxDir     = "inbox"
	IndexDir     = "index"
)

// StoreDirs lists the directories created for a new store.
var StoreDirs = []string{
	QuestionsDir, AnswersDir, NotesDir, PeopleDir, TopicsDir, AreasDir, StatsDir,
	filepath.Join(InboxDir, "raw"), filepath.Join(InboxDir, "analyzed"),
}

// InitStore creates the store layout under root. Existing directories are kept.
func InitStore(root string) error {
	for _, d := range StoreDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return types.StoreIOError("creating "+d, err)
		}
	}
	return nil
}

// ClearStore removes every entity and derived artifact under root. The
// inbox and the index directory survive: the inbox holds inputs rather than
// output, and the index ledgers outlive any single build. Files are removed
// through tracker so a failed batch can restore them.
func ClearStore(root string, tracker *rollback.Tracker) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.StoreIOError("reading store root", err)
	}
	for _, e := range entries {
		if e.Name() == InboxDir || e.Name() == IndexDir {
			continue
		}
		var dirs []string
		err := filepath.WalkDir(filepath.Join(root, e.Name()), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				dirs = append(dirs, path)
				return nil
			}
			return tracker.Remove(path)
		})
		if err != nil {
			return types.StoreIOError("clearing "+e.Name(), err)
		}
		for i := len(dirs) - 1; i >= 0; i-- {
			// Left in place when something could not be removed.
			os.Remove(dirs[i])
		}
	}
	return nil
}

// Load scans root and returns a fresh KnowledgeContext. A store that does
// not exist yet yields an empty context.
func Load(root string) (*types.KnowledgeContext, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.KnowledgeContext{}, nil
		}
		return nil, types.StoreIOError("reading store root", err)
	}
	if !info.IsDir() {
		return nil, types.StoreIOError("reading store root", fmt.Errorf("%s is not a directory", root))
	}

	ctx := &types.KnowledgeContext{}

	if ctx.ExistingPeople, err = listPeople(filepath.Join(root, PeopleDir)); err != nil {
		return nil, err
	}
	if ctx.ExistingTopics, err = listTopics(filepath.Join(root, TopicsDir)); err != nil {
		return nil, err
	}
	if ctx.ExistingQuestions, err = loadQuestions(root); err != nil {
		return nil, err
	}

	if ctx.MaxQuestionID, err = FindMaxID("q_", filepath.Join(root, QuestionsDir)); err != nil {
		return nil, err
	}
	if ctx.MaxAnswerID, err = FindMaxID("a_", filepath.Join(root, AnswersDir)); err != nil {
		return nil, err
	}
	if ctx.MaxNoteID, err = FindMaxID("n_", filepath.Join(root, NotesDir)); err != nil {
		return nil, err
	}
	w, err := ReadWatermark(root)
	if err != nil {
		return nil, err
	}
	applyWatermark(ctx, w)
	return ctx, nil
}

// FindMaxID returns the largest N among files named <prefix><N>.md in dir.
// It returns 0 when dir is absent or holds no matching files.
func FindMaxID(prefix, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, types.StoreIOError("scanning "+dir, err)
	}

	maxID := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".md") {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".md")
		if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			continue
		}
		if n > maxID {
			maxID = n
		}
	}
	return maxID, nil
}

func listPeople(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("scanning people", err)
	}
	var people []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			people = append(people, e.Name())
		}
	}
	sort.Strings(people)
	return people, nil
}

func listTopics(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("scanning topics", err)
	}
	var topics []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasSuffix(name, "-desc.md") {
			continue
		}
		topics = append(topics, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(topics)
	return topics, nil
}

// loadQuestions summarizes persisted questions. A question counts as
// answered when its own file says so or when a persisted answer names it.
func loadQuestions(root string) ([]types.QuestionSummary, error) {
	questions, err := entity.ReadDir(root, types.KindQuestion)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, nil
	}
	answers, err := entity.ReadDir(root, types.KindAnswer)
	if err != nil {
		return nil, err
	}
	linked := make(map[string]bool)
	for _, a := range answers {
		if a.AnswersQuestion != "" {
			linked[a.AnswersQuestion] = true
		}
	}

	summaries := make([]types.QuestionSummary, 0, len(questions))
	for _, q := range questions {
		summaries = append(summaries, types.QuestionSummary{
			ID:       q.ID,
			Author:   q.Author,
			Text:     q.Text,
			Area:     q.Area,
			Topics:   q.Topics,
			Answered: q.Answered || q.AnsweredBy != "" || linked[q.ID],
		})
	}
	return summaries, nil
}
