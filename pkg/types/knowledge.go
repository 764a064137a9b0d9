// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "slices"

// QuestionSummary is the compact form of a persisted question offered to the
// matching collaborator.
type QuestionSummary struct {
	ID       string   `json:"id" yaml:"id"`
	Author   string   `json:"author" yaml:"author"`
	Text     string   `json:"text" yaml:"text"`
	Area     string   `json:"area" yaml:"area"`
	Topics   []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	Answered bool     `json:"answered" yaml:"answered"`
}

// KnowledgeContext is a read-only snapshot of the store taken at the start
// of a batch. It is rebuilt from disk every time and never persisted.
type KnowledgeContext struct {
	// ExistingPeople holds normalized person identifiers, sorted.
	ExistingPeople []string `json:"existingPeople" yaml:"existingPeople"`

	// ExistingTopics holds topic slugs, sorted.
	ExistingTopics []string `json:"existingTopics" yaml:"existingTopics"`

	// ExistingQuestions is ordered by question ID.
	ExistingQuestions []QuestionSummary `json:"existingQuestions" yaml:"existingQuestions"`

	MaxQuestionID int `json:"maxQuestionId" yaml:"maxQuestionId"`
	MaxAnswerID   int `json:"maxAnswerId" yaml:"maxAnswerId"`
	MaxNoteID     int `json:"maxNoteId" yaml:"maxNoteId"`
}

// MaxID returns the highest allocated number for kind.
func (c *KnowledgeContext) MaxID(kind EntityKind) int {
	switch kind {
	case KindQuestion:
		return c.MaxQuestionID
	case KindAnswer:
		return c.MaxAnswerID
	case KindNote:
		return c.MaxNoteID
	}
	return 0
}

// HasPerson reports whether id is a known normalized person identifier.
func (c *KnowledgeContext) HasPerson(id string) bool {
	_, ok := slices.BinarySearch(c.ExistingPeople, id)
	return ok
}

// HasTopic reports whether slug is a known topic.
func (c *KnowledgeContext) HasTopic(slug string) bool {
	_, ok := slices.BinarySearch(c.ExistingTopics, slug)
	return ok
}

// PendingItem is an answer or note awaiting a question link. Exactly one of
// Answer and Note is set.
type PendingItem struct {
	Answer *Answer `json:"-" yaml:"-"`
	Note   *Note   `json:"-" yaml:"-"`
}

// Kind returns KindAnswer or KindNote.
func (p PendingItem) Kind() EntityKind {
	if p.Answer != nil {
		return KindAnswer
	}
	return KindNote
}

// Base returns the shared metadata of the wrapped entity.
func (p PendingItem) Base() Entity {
	if p.Answer != nil {
		return p.Answer.Entity
	}
	if p.Note != nil {
		return p.Note.Entity
	}
	return Entity{}
}

// Match is one link proposed by the matching collaborator.
type Match struct {
	ItemID     string  `json:"itemId" yaml:"itemId"`
	QuestionID string  `json:"questionId" yaml:"questionId"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// EntityRef points at a persisted entity with its date, for profile listings.
type EntityRef struct {
	ID   string `json:"id" yaml:"id"`
	Date string `json:"date" yaml:"date"`
}

// PersonStats is the derived profile of one contributor. It is always a pure
// function of the persisted entity files.
type PersonStats struct {
	// ID is the normalized person identifier used as directory name.
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	Questions []EntityRef `json:"questions" yaml:"questions"`
	Answers   []EntityRef `json:"answers" yaml:"answers"`
	Notes     []EntityRef `json:"notes" yaml:"notes"`

	// Topics counts contributions per topic slug.
	Topics map[string]int `json:"topics" yaml:"topics"`

	// Sources lists the source names the person contributed through, sorted.
	Sources []string `json:"sources" yaml:"sources"`
}

// QuestionsAsked returns the number of questions authored.
func (p *PersonStats) QuestionsAsked() int { return len(p.Questions) }

// AnswersProvided returns the number of answers authored.
func (p *PersonStats) AnswersProvided() int { return len(p.Answers) }

// NotesContributed returns the number of notes authored.
func (p *PersonStats) NotesContributed() int { return len(p.Notes) }

// Total returns the number of contributions of every kind.
func (p *PersonStats) Total() int {
	return len(p.Questions) + len(p.Answers) + len(p.Notes)
}

// PersonContributions maps a normalized person identifier to the number of
// entities the current batch contributed. It names the profiles a batch touches.
type PersonContributions map[string]int

// TopicStatistics is the derived membership of one topic.
type TopicStatistics struct {
	Slug  string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	Questions []string `json:"questions" yaml:"questions"`
	Answers   []string `json:"answers" yaml:"answers"`
	Notes     []string `json:"notes" yaml:"notes"`

	// Contributors holds deduplicated normalized person identifiers, sorted.
	Contributors []string `json:"contributors" yaml:"contributors"`
}

// Total returns the number of entities in the topic.
func (t *TopicStatistics) Total() int {
	return len(t.Questions) + len(t.Answers) + len(t.Notes)
}

// AreaStatistics is the derived membership of one area.
type AreaStatistics struct {
	Slug  string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`

	Questions []string `json:"questions" yaml:"questions"`
	Answers   []string `json:"answers" yaml:"answers"`
	Notes     []string `json:"notes" yaml:"notes"`

	Topics       []string `json:"topics" yaml:"topics"`
	Contributors []string `json:"contributors" yaml:"contributors"`
}
