// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"bytes"
	"text/template"
)

var analysisPromptTmpl = template.Must(template.New("analysis").Parse(`You are a knowledge-base curator. Read the conversation excerpt below, taken from source "{{.Source}}", and extract questions, answers and notes.

For every entity provide:
- id: a temporary id unique in this response: q_1, q_2 for questions, a_1 for answers, n_1 for notes
- author: the person who wrote it, exactly as named in the text
- date: ISO date (YYYY-MM-DD) of the message
- area: one broad subject area (e.g. "docker", "billing")
- topics: a few specific topics
- tags: optional lowercase hyphenated labels
- text: the content, cleaned of chat noise but not summarized

Questions may set "answeredBy" to the id of an answer in this response.
Answers carry "quality" (0.0-1.0) and may set "answersQuestion" to the id of a question in this response.
Anything useful that is neither a question nor an answer is a note.
{{if .People}}
Known people (reuse these spellings): {{range $i, $p := .People}}{{if $i}}, {{end}}{{$p}}{{end}}
{{end}}{{if .Topics}}
Known topics (reuse when they fit): {{range $i, $t := .Topics}}{{if $i}}, {{end}}{{$t}}{{end}}
{{end}}{{if .Instructions}}
Additional instructions:
{{.Instructions}}
{{end}}
Respond with a single JSON object {"questions": [...], "answers": [...], "notes": [...]} and nothing else.

Excerpt:
{{.Text}}
`))

var mergePromptTmpl = template.Must(template.New("merge").Parse(`You are merging knowledge extracted from consecutive chunks of one conversation.
Each element of the JSON array below is the result for one chunk. Temporary ids are only unique within a chunk.

Produce one result that:
- keeps every distinct question, answer and note
- collapses entities that appear in several chunks into one
- renumbers temporary ids so they are unique (q_1.., a_1.., n_1..)
- rewrites answeredBy and answersQuestion to the new ids

Respond with a single JSON object {"questions": [...], "answers": [...], "notes": [...]} and nothing else.

Chunk results:
{{.Results}}
`))

var matchPromptTmpl = template.Must(template.New("match").Parse(`You link answers and notes to the existing questions they answer.

Existing questions (JSON):
{{.Questions}}

New answers and notes (JSON):
{{.Items}}

For each new item that answers one of the questions, return {"itemId", "questionId", "confidence"} where confidence is 0.0-1.0.
Skip items that answer nothing. Prefer unanswered questions when several fit.
{{if .Instructions}}
Additional instructions:
{{.Instructions}}
{{end}}
Respond with a single JSON object {"mappings": [...]} and nothing else.
`))

var describePromptTmpl = template.Must(template.New("describe").Parse(`Write a concise markdown description of the {{.Kind}} "{{.ID}}" for a team knowledge base, based only on the material below.
Summarize recurring themes, notable questions and the knowledge shared. Do not invent facts. Do not add a top-level heading.
{{if .Instructions}}
Additional instructions:
{{.Instructions}}
{{end}}
Material:
{{.Content}}
`))

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
