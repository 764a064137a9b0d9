// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate writes the narrative descriptions of people, topics and
// areas. Each description is produced by the Describer from the text of the
// entities the artifact covers and stored between AI content markers next
// to the artifact, so the next run can replace it wholesale.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/rollback"
	"github.com/pdiddy/kb-builder/internal/structure"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// DefaultMaxInputChars bounds the content handed to the describer.
const DefaultMaxInputChars = 60000

// Markers delimiting generated narrative.
const (
	ContentStart = "<!-- AI_CONTENT_START -->"
	ContentEnd   = "<!-- AI_CONTENT_END -->"
)

// Helper gathers content and writes single descriptions.
type Helper struct {
	root      string
	describer ai.Describer
	maxChars  int
	tracker   *rollback.Tracker
	log       *logging.Logger
}

// NewHelper returns a Helper for the store at root.
func NewHelper(root string, describer ai.Describer, cfg types.AggregationConfig, tracker *rollback.Tracker, log *logging.Logger) *Helper {
	maxChars := cfg.MaxInputChars
	if maxChars <= 0 {
		maxChars = DefaultMaxInputChars
	}
	return &Helper{root: root, describer: describer, maxChars: maxChars, tracker: tracker, log: logging.OrNop(log)}
}

// Target is one artifact whose description can be generated.
type Target struct {
	Kind ai.DescriptionKind
	ID   string
}

func (t Target) String() string { return string(t.Kind) + ":" + t.ID }

// ArtifactPath returns the structural artifact of the target.
func (h *Helper) ArtifactPath(t Target) string {
	switch t.Kind {
	case ai.DescribePerson:
		return structure.ProfilePath(h.root, t.ID)
	case ai.DescribeArea:
		return structure.AreaPath(h.root, t.ID)
	default:
		return structure.TopicPath(h.root, t.ID)
	}
}

// DescriptionPath returns where the target's narrative is written.
func (h *Helper) DescriptionPath(t Target) string {
	return structure.DescriptionPath(h.ArtifactPath(t))
}

// Members returns the persisted entities the target covers, in ID order.
// Topics and areas follow the ID lists recorded in their artifact; people
// are matched by normalized author.
func (h *Helper) Members(store *entity.Store, t Target) ([]entity.Document, error) {
	var ids []string
	switch t.Kind {
	case ai.DescribePerson:
		var out []entity.Document
		for _, d := range store.All() {
			if entity.NormalizePerson(d.Author) == t.ID {
				out = append(out, d)
			}
		}
		return out, nil
	case ai.DescribeTopic:
		topic, err := structure.ReadTopic(h.ArtifactPath(t))
		if err != nil || topic == nil {
			return nil, err
		}
		ids = concat(topic.Questions, topic.Answers, topic.Notes)
	case ai.DescribeArea:
		area, err := structure.ReadArea(h.ArtifactPath(t))
		if err != nil || area == nil {
			return nil, err
		}
		ids = concat(area.Questions, area.Answers, area.Notes)
	default:
		return nil, fmt.Errorf("unknown description kind %q", t.Kind)
	}

	byID := make(map[string]entity.Document)
	for _, d := range store.All() {
		byID[d.ID] = d
	}
	var out []entity.Document
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Content assembles the describer input from docs, stopping before it
// exceeds the helper's character bound.
func (h *Helper) Content(t Target, docs []entity.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s\n\n", t.Kind, t.ID)
	for i, d := range docs {
		block := fmt.Sprintf("## %s (%s) by %s, %s\nArea: %s\nTopics: %s\n\n%s\n\n",
			d.ID, d.Kind, d.Author, d.Date, d.Area, strings.Join(d.Topics, ", "), strings.TrimSpace(d.Text))
		if b.Len()+len(block) > h.maxChars {
			fmt.Fprintf(&b, "[%d more entries omitted]\n", len(docs)-i)
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

// Generate describes t and writes the result. Targets with no members are
// skipped and reported as not written.
func (h *Helper) Generate(ctx context.Context, store *entity.Store, t Target, instructions string) (bool, error) {
	docs, err := h.Members(store, t)
	if err != nil {
		return false, err
	}
	if len(docs) == 0 {
		h.log.Debug("nothing to describe", "target", t.String())
		return false, nil
	}
	text, err := h.describer.Describe(ctx, t.Kind, t.ID, h.Content(t, docs), instructions)
	if err != nil {
		return false, types.CollaboratorError("describing "+t.String(), err)
	}
	path := h.DescriptionPath(t)
	if err := h.tracker.WriteFile(path, []byte(Wrap(text))); err != nil {
		return false, types.StoreIOError("writing description "+t.String(), err)
	}
	h.log.Info("description written", "target", t.String(), "entities", len(docs))
	return true, nil
}

// Person describes one person.
func (h *Helper) Person(ctx context.Context, id, instructions string) error {
	return h.generateOne(ctx, Target{ai.DescribePerson, id}, instructions)
}

// Topic describes one topic.
func (h *Helper) Topic(ctx context.Context, slug, instructions string) error {
	return h.generateOne(ctx, Target{ai.DescribeTopic, slug}, instructions)
}

// Area describes one area.
func (h *Helper) Area(ctx context.Context, slug, instructions string) error {
	return h.generateOne(ctx, Target{ai.DescribeArea, slug}, instructions)
}

func (h *Helper) generateOne(ctx context.Context, t Target, instructions string) error {
	store, err := entity.ReadStore(h.root)
	if err != nil {
		return err
	}
	_, err = h.Generate(ctx, store, t, instructions)
	return err
}

// Wrap places text between the AI content markers.
func Wrap(text string) string {
	return ContentStart + "\n" + strings.TrimSpace(text) + "\n" + ContentEnd + "\n"
}

// Unwrap returns the text between the AI content markers, or the whole
// input when the markers are absent.
func Unwrap(data string) string {
	start := strings.Index(data, ContentStart)
	end := strings.LastIndex(data, ContentEnd)
	if start < 0 || end < start {
		return strings.TrimSpace(data)
	}
	return strings.TrimSpace(data[start+len(ContentStart) : end])
}

// NeedsRegeneration reports whether the description at descPath is missing
// or not strictly newer than every file in deps.
func NeedsRegeneration(descPath string, deps []string) (bool, error) {
	info, err := os.Stat(descPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, types.StoreIOError("checking "+descPath, err)
	}
	descTime := info.ModTime()
	for _, dep := range deps {
		di, err := os.Stat(dep)
		if err != nil {
			if os.IsNotExist(err) {
				return true, nil
			}
			return false, types.StoreIOError("checking "+dep, err)
		}
		if !descTime.After(di.ModTime()) {
			return true, nil
		}
	}
	return false, nil
}

// newest is used in logs to explain a regeneration.
func newest(deps []string) time.Time {
	var t time.Time
	for _, d := range deps {
		if info, err := os.Stat(d); err == nil && info.ModTime().After(t) {
			t = info.ModTime()
		}
	}
	return t
}
