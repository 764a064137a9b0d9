// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the entities, snapshots, configuration and results
// shared by every stage of the knowledge-base builder.
package types

import (
	"fmt"
	"strings"
)

// EntityKind distinguishes the three persisted entity types.
type EntityKind string

const (
	KindQuestion EntityKind = "question"
	KindAnswer   EntityKind = "answer"
	KindNote     EntityKind = "note"
)

// Prefix returns the ID prefix used for the kind ("q_", "a_", "n_").
func (k EntityKind) Prefix() string {
	switch k {
	case KindQuestion:
		return "q_"
	case KindAnswer:
		return "a_"
	case KindNote:
		return "n_"
	}
	return ""
}

// Dir returns the store subdirectory holding entities of this kind.
func (k EntityKind) Dir() string {
	return string(k) + "s"
}

// Kinds lists the entity kinds in persistence order.
var Kinds = []EntityKind{KindAnswer, KindQuestion, KindNote}

// KindOf returns the kind implied by an ID prefix, or "" when the prefix is unknown.
func KindOf(id string) EntityKind {
	switch {
	case strings.HasPrefix(id, "q_"):
		return KindQuestion
	case strings.HasPrefix(id, "a_"):
		return KindAnswer
	case strings.HasPrefix(id, "n_"):
		return KindNote
	}
	return ""
}

// PermanentID formats a permanent identifier such as q_0007.
func PermanentID(kind EntityKind, n int) string {
	return fmt.Sprintf("%s%04d", kind.Prefix(), n)
}

// Entity carries the metadata common to questions, answers and notes.
type Entity struct {
	// ID is a temporary chunk-local ID (q_1) before mapping and a
	// permanent ID (q_0001) afterwards.
	ID string `json:"id" yaml:"id"`

	// Author is the display name of the person who wrote the entity.
	Author string `json:"author" yaml:"author"`

	// Date is an ISO date truncated to the day (2024-01-15).
	Date string `json:"date" yaml:"date"`

	// Area is the broad subject the entity belongs to.
	Area string `json:"area" yaml:"area"`

	// Topics is ordered for rendering but treated as a set.
	Topics []string `json:"topics,omitempty" yaml:"topics,omitempty"`

	// Tags holds free-form labels. System tags are not stored here.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	Text string `json:"text" yaml:"text"`

	// Source names the origin of the batch that produced the entity.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// HasRequiredMetadata reports whether author, date and area are all present.
func (e Entity) HasRequiredMetadata() bool {
	return strings.TrimSpace(e.Author) != "" &&
		strings.TrimSpace(e.Date) != "" &&
		strings.TrimSpace(e.Area) != ""
}

// MissingField names the first absent mandatory field, or "" when none is missing.
func (e Entity) MissingField() string {
	switch {
	case strings.TrimSpace(e.Author) == "":
		return "author"
	case strings.TrimSpace(e.Date) == "":
		return "date"
	case strings.TrimSpace(e.Area) == "":
		return "area"
	}
	return ""
}

// Question is a request for information raised in a conversation.
type Question struct {
	Entity `yaml:",inline"`

	// AnsweredBy optionally names the Answer that resolves this question.
	AnsweredBy string `json:"answeredBy,omitempty" yaml:"answeredBy,omitempty"`
}

// Answer is a response, either analyzed directly or promoted from a Note.
type Answer struct {
	Entity `yaml:",inline"`

	// Quality is a score in [0,1]. Promoted answers carry the match confidence.
	Quality float64 `json:"quality" yaml:"quality"`

	// AnswersQuestion optionally names the Question this answer resolves.
	AnswersQuestion string `json:"answersQuestion,omitempty" yaml:"answersQuestion,omitempty"`

	// PromotedFrom is the ID of the Note this answer replaced, if any.
	// It lives only for the batch and is not persisted.
	PromotedFrom string `json:"-" yaml:"-"`
}

// Note is a standalone piece of knowledge with no cross-links.
type Note struct {
	Entity `yaml:",inline"`
}

// AnalysisResult holds the entities analyzed from one batch (or one chunk).
type AnalysisResult struct {
	Questions []Question `json:"questions" yaml:"questions"`
	Answers   []Answer   `json:"answers" yaml:"answers"`
	Notes     []Note     `json:"notes" yaml:"notes"`
}

// Len returns the total number of entities in the result.
func (r *AnalysisResult) Len() int {
	return len(r.Questions) + len(r.Answers) + len(r.Notes)
}

// IsEmpty reports whether the result carries no entities.
func (r *AnalysisResult) IsEmpty() bool {
	return r.Len() == 0
}

// Entities returns the shared metadata of every entity, questions first.
func (r *AnalysisResult) Entities() []Entity {
	out := make([]Entity, 0, r.Len())
	for _, q := range r.Questions {
		out = append(out, q.Entity)
	}
	for _, a := range r.Answers {
		out = append(out, a.Entity)
	}
	for _, n := range r.Notes {
		out = append(out, n.Entity)
	}
	return out
}

// SetSource stamps source on every entity that does not already carry one.
func (r *AnalysisResult) SetSource(source string) {
	for i := range r.Questions {
		if r.Questions[i].Source == "" {
			r.Questions[i].Source = source
		}
	}
	for i := range r.Answers {
		if r.Answers[i].Source == "" {
			r.Answers[i].Source = source
		}
	}
	for i := range r.Notes {
		if r.Notes[i].Source == "" {
			r.Notes[i].Source = source
		}
	}
}
