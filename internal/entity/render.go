// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package entity

import (
	"bytes"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/pkg/types"
)

// RenderQuestion renders a question file. answerIDs are embedded under an
// "Answers" section.
func RenderQuestion(q types.Question, answerIDs []string) ([]byte, error) {
	answered := q.AnsweredBy != "" || len(answerIDs) > 0
	fm := baseFrontmatter(types.KindQuestion, q.Entity)
	fm.Answered = &answered
	fm.AnsweredBy = q.AnsweredBy

	var b strings.Builder
	writeTitleAndText(&b, "Question", q.Entity)
	fmt.Fprintf(&b, "**Asked by:** [[%s]]\n", NormalizePerson(q.Author))
	writeMetaFooter(&b, q.Entity)
	if len(answerIDs) > 0 {
		b.WriteString("\n## Answers\n\n")
		for _, id := range answerIDs {
			fmt.Fprintf(&b, "![[%s]]\n\n", id)
		}
	}
	return assemble(fm, b.String())
}

// RenderAnswer renders an answer file.
func RenderAnswer(a types.Answer) ([]byte, error) {
	fm := baseFrontmatter(types.KindAnswer, a.Entity)
	quality := a.Quality
	fm.Quality = &quality
	fm.AnswersQuestion = a.AnswersQuestion

	var b strings.Builder
	writeTitleAndText(&b, "Answer", a.Entity)
	fmt.Fprintf(&b, "**Provided by:** [[%s]]\n", NormalizePerson(a.Author))
	fmt.Fprintf(&b, "**Date:** %s\n", TruncateDate(a.Date))
	fmt.Fprintf(&b, "**Quality Score:** %.2f\n", a.Quality)
	writeAreaTopics(&b, a.Entity)
	if a.AnswersQuestion != "" {
		fmt.Fprintf(&b, "\n**Answers:** [[%s]]\n", a.AnswersQuestion)
	}
	return assemble(fm, b.String())
}

// RenderNote renders a note file.
func RenderNote(n types.Note) ([]byte, error) {
	fm := baseFrontmatter(types.KindNote, n.Entity)

	var b strings.Builder
	writeTitleAndText(&b, "Note", n.Entity)
	fmt.Fprintf(&b, "**By:** [[%s]]\n", NormalizePerson(n.Author))
	writeMetaFooter(&b, n.Entity)
	return assemble(fm, b.String())
}

// SystemTags returns the tags added on write for kind and source.
func SystemTags(kind types.EntityKind, source string) []string {
	tags := []string{string(kind)}
	if source != "" {
		tags = append(tags, "source_"+source)
	}
	return tags
}

func baseFrontmatter(kind types.EntityKind, e types.Entity) frontmatter {
	tags := SystemTags(kind, e.Source)
	tags = append(tags, e.Tags...)
	topics := e.Topics
	if topics == nil {
		topics = []string{}
	}
	return frontmatter{
		ID:     e.ID,
		Type:   string(kind),
		Author: e.Author,
		Date:   TruncateDate(e.Date),
		Area:   e.Area,
		Topics: topics,
		Source: e.Source,
		Tags:   tags,
	}
}

func writeTitleAndText(b *strings.Builder, title string, e types.Entity) {
	fmt.Fprintf(b, "# %s: %s\n\n", title, e.ID)
	if text := strings.TrimSpace(e.Text); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
}

func writeMetaFooter(b *strings.Builder, e types.Entity) {
	fmt.Fprintf(b, "**Date:** %s\n", TruncateDate(e.Date))
	writeAreaTopics(b, e)
}

func writeAreaTopics(b *strings.Builder, e types.Entity) {
	if e.Area != "" {
		fmt.Fprintf(b, "**Area:** [[%s|%s]]\n", Slugify(e.Area), e.Area)
	}
	if len(e.Topics) > 0 {
		links := make([]string, len(e.Topics))
		for i, t := range e.Topics {
			links[i] = fmt.Sprintf("[[%s|%s]]", Slugify(t), t)
		}
		fmt.Fprintf(b, "**Topics:** %s\n", strings.Join(links, ", "))
	}
}

func assemble(fm frontmatter, body string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
