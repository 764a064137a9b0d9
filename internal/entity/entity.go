// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package entity reads and writes the markdown files that hold questions,
// answers and notes. Each file is YAML frontmatter followed by a rendered
// body; the frontmatter is authoritative and the body text is recovered
// from between the title heading and the attribution footer.
package entity

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/pkg/types"
)

// ErrNoFrontmatter is returned when a file does not open with a "---" block.
var ErrNoFrontmatter = errors.New("missing frontmatter")

// frontmatter is the on-disk header of an entity file.
type frontmatter struct {
	ID              string   `yaml:"id"`
	Type            string   `yaml:"type"`
	Author          string   `yaml:"author"`
	Date            string   `yaml:"date"`
	Area            string   `yaml:"area"`
	Topics          []string `yaml:"topics,flow"`
	Answered        *bool    `yaml:"answered,omitempty"`
	AnsweredBy      string   `yaml:"answeredBy,omitempty"`
	Quality         *float64 `yaml:"quality,omitempty"`
	AnswersQuestion string   `yaml:"answersQuestion,omitempty"`
	Source          string   `yaml:"source"`
	Tags            []string `yaml:"tags,flow"`
}

// Document is a parsed entity file. Fields that only apply to one kind are
// zero for the others.
type Document struct {
	Kind types.EntityKind
	types.Entity

	// Answered is the flag recorded in a question's frontmatter.
	Answered   bool
	AnsweredBy string

	Quality         float64
	AnswersQuestion string

	// Path is the file the document was read from, if any.
	Path string
}

// Question converts the document to a Question.
func (d Document) Question() types.Question {
	return types.Question{Entity: d.Entity, AnsweredBy: d.AnsweredBy}
}

// Answer converts the document to an Answer.
func (d Document) Answer() types.Answer {
	return types.Answer{Entity: d.Entity, Quality: d.Quality, AnswersQuestion: d.AnswersQuestion}
}

// Note converts the document to a Note.
func (d Document) Note() types.Note {
	return types.Note{Entity: d.Entity}
}

// attribution is the first footer line written after the body text of each kind.
var attribution = map[types.EntityKind]string{
	types.KindQuestion: "**Asked by:**",
	types.KindAnswer:   "**Provided by:**",
	types.KindNote:     "**By:**",
}

// metaPrefixes start the footer lines written after the attribution.
var metaPrefixes = []string{"**Date:**", "**Area:**", "**Topics:**", "**Quality Score:**", "**Answers:**", "## Answers", "![["}

// Parse decodes an entity file.
func Parse(data []byte) (Document, error) {
	header, body, err := splitFrontmatter(data)
	if err != nil {
		return Document{}, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return Document{}, fmt.Errorf("parsing frontmatter: %w", err)
	}

	kind := types.EntityKind(fm.Type)
	if kind == "" {
		kind = types.KindOf(fm.ID)
	}
	switch kind {
	case types.KindQuestion, types.KindAnswer, types.KindNote:
	default:
		return Document{}, fmt.Errorf("unknown entity type %q", fm.Type)
	}

	tags, tagSource := splitTags(fm.Tags)
	topics := fm.Topics
	if len(topics) == 0 {
		topics = nil
	}
	source := fm.Source
	if source == "" {
		source = tagSource
	}

	doc := Document{
		Kind: kind,
		Entity: types.Entity{
			ID:     fm.ID,
			Author: fm.Author,
			Date:   TruncateDate(fm.Date),
			Area:   fm.Area,
			Topics: topics,
			Tags:   tags,
			Text:   bodyText(kind, body),
			Source: source,
		},
		AnsweredBy:      fm.AnsweredBy,
		AnswersQuestion: fm.AnswersQuestion,
	}
	if fm.Answered != nil {
		doc.Answered = *fm.Answered
	}
	if fm.Quality != nil {
		doc.Quality = *fm.Quality
	}
	return doc, nil
}

// ParseFile reads and parses the entity file at path.
func ParseFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	doc, err := Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	doc.Path = path
	if doc.ID == "" {
		doc.ID = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	return doc, nil
}

func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return nil, nil, ErrNoFrontmatter
	}
	rest := data[len("---\n"):]
	if bytes.HasPrefix(rest, []byte("---")) {
		rest = append([]byte("\n"), rest...)
	}
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, ErrNoFrontmatter
	}
	header := rest[:end+1]
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	return header, body, nil
}

// bodyText returns the free text between the "# Kind: id" heading and the
// footer. The footer starts at the last attribution line of kind, so body
// text that happens to contain footer-like lines survives. Without an
// attribution line, trailing footer-like lines are dropped.
func bodyText(kind types.EntityKind, body []byte) string {
	lines := strings.Split(string(body), "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[start]), "# ") {
		start++
	}
	lines = lines[start:]

	end := -1
	if prefix := attribution[kind]; prefix != "" {
		for i := len(lines) - 1; i >= 0; i-- {
			if strings.HasPrefix(strings.TrimSpace(lines[i]), prefix) {
				end = i
				break
			}
		}
	}
	if end < 0 {
		end = len(lines)
		for end > 0 {
			trimmed := strings.TrimSpace(lines[end-1])
			if trimmed != "" && !isMeta(trimmed) {
				break
			}
			end--
		}
	}
	return strings.TrimSpace(strings.Join(lines[:end], "\n"))
}

func isMeta(line string) bool {
	for _, p := range metaPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// splitTags separates user tags from system tags and returns the source
// recorded in a source_<name> tag, if any.
func splitTags(all []string) ([]string, string) {
	var tags []string
	source := ""
	for _, t := range all {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		switch {
		case t == "":
		case t == string(types.KindQuestion), t == string(types.KindAnswer), t == string(types.KindNote):
		case strings.HasPrefix(t, "source_"):
			source = strings.TrimPrefix(t, "source_")
		default:
			tags = append(tags, t)
		}
	}
	return tags, source
}

var idFileRe = regexp.MustCompile(`^([a-z])_(\d+)\.md$`)

// IDNumber extracts the numeric suffix of a permanent ID such as q_0012.
func IDNumber(id string) (int, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsEntityFile reports whether name looks like q_0001.md, a_12.md or n_3.md.
func IsEntityFile(name string) bool {
	return idFileRe.MatchString(name)
}

// ReadDir parses every entity file of kind under root, ordered by ID number.
// A missing directory yields no documents.
func ReadDir(root string, kind types.EntityKind) ([]Document, error) {
	dir := filepath.Join(root, kind.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("reading "+dir, err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !IsEntityFile(e.Name()) {
			continue
		}
		doc, err := ParseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if errors.Is(err, ErrNoFrontmatter) {
				continue
			}
			return nil, types.StoreIOError("parsing entity", err)
		}
		doc.Kind = kind
		docs = append(docs, doc)
	}
	sort.SliceStable(docs, func(i, j int) bool {
		ni, _ := IDNumber(docs[i].ID)
		nj, _ := IDNumber(docs[j].ID)
		if ni != nj {
			return ni < nj
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// Store is every persisted entity, grouped by kind.
type Store struct {
	Questions []Document
	Answers   []Document
	Notes     []Document
}

// ReadStore parses all entity files under root.
func ReadStore(root string) (*Store, error) {
	s := &Store{}
	var err error
	if s.Questions, err = ReadDir(root, types.KindQuestion); err != nil {
		return nil, err
	}
	if s.Answers, err = ReadDir(root, types.KindAnswer); err != nil {
		return nil, err
	}
	if s.Notes, err = ReadDir(root, types.KindNote); err != nil {
		return nil, err
	}
	return s, nil
}

// All returns every document, questions then answers then notes.
func (s *Store) All() []Document {
	out := make([]Document, 0, len(s.Questions)+len(s.Answers)+len(s.Notes))
	out = append(out, s.Questions...)
	out = append(out, s.Answers...)
	return append(out, s.Notes...)
}

// IDs returns the set of every persisted entity ID.
func (s *Store) IDs() map[string]bool {
	ids := make(map[string]bool)
	for _, d := range s.All() {
		ids[d.ID] = true
	}
	return ids
}
