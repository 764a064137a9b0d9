// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// QueryOptions holds parameters for index queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string.
	Query string

	// Type filters by entity kind.
	Type types.EntityKind

	// Tags filters by one or more user tags with AND semantics.
	Tags []string

	Source string
	Area   string

	// Person filters by author; the name is normalized before matching.
	Person string

	// MaxResults limits result count. Zero uses store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Type == "" && len(q.Tags) == 0 && q.Source == "" && q.Area == "" && q.Person == ""
}

// QueryResult is one indexed entity.
type QueryResult struct {
	ID              string           `json:"id" yaml:"id"`
	Type            types.EntityKind `json:"type" yaml:"type"`
	Author          string           `json:"author" yaml:"author"`
	Date            string           `json:"date" yaml:"date"`
	Area            string           `json:"area" yaml:"area"`
	Topics          []string         `json:"topics" yaml:"topics"`
	Tags            []string         `json:"tags" yaml:"tags"`
	Source          string           `json:"source" yaml:"source"`
	AnswersQuestion string           `json:"answers_question,omitempty" yaml:"answers_question,omitempty"`
	AnsweredBy      string           `json:"answered_by,omitempty" yaml:"answered_by,omitempty"`
	Quality         float64          `json:"quality,omitempty" yaml:"quality,omitempty"`
	Text            string           `json:"text" yaml:"text"`
}

const selectColumns = `e.id, e.type, e.author, e.date, e.area, e.topics, e.tags, e.source,
	e.answers_question, e.answered_by, e.quality, e.text`

// Retrieve queries the index with optional full-text search and structured
// filters. Full-text results are ranked by relevance; structured-only
// queries are ordered by type then ID.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)
	if useFTS {
		qb.WriteString(`SELECT ` + selectColumns + `
			FROM entities_fts
			JOIN entities e ON e.rowid = entities_fts.rowid
			WHERE entities_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(`SELECT ` + selectColumns + ` FROM entities e WHERE 1=1`)
	}

	if opts.Type != "" {
		qb.WriteString(` AND e.type = ?`)
		args = append(args, string(opts.Type))
	}
	if opts.Source != "" {
		qb.WriteString(` AND e.source = ?`)
		args = append(args, opts.Source)
	}
	if opts.Area != "" {
		qb.WriteString(` AND lower(e.area) = lower(?)`)
		args = append(args, opts.Area)
	}
	if opts.Person != "" {
		qb.WriteString(` AND e.person = ?`)
		args = append(args, entity.NormalizePerson(opts.Person))
	}
	for _, tag := range opts.Tags {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(e.tags) WHERE value = ?)`)
		args = append(args, tag)
	}

	if useFTS {
		qb.WriteString(` ORDER BY entities_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY e.type, e.id`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// Thread returns a question followed by every indexed answer linked to it,
// in either direction.
func (s *Store) Thread(ctx context.Context, questionID string) ([]QueryResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM entities e WHERE e.id = ? AND e.type = ?`,
		questionID, string(types.KindQuestion))
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", questionID, err)
	}
	question, err := scanResults(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(question) == 0 {
		return nil, fmt.Errorf("question %s not found", questionID)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM entities e
		 WHERE e.type = ? AND (e.answers_question = ? OR e.id = ?)
		 ORDER BY e.id`,
		string(types.KindAnswer), questionID, question[0].AnsweredBy)
	if err != nil {
		return nil, fmt.Errorf("looking up answers of %s: %w", questionID, err)
	}
	defer rows.Close()
	answers, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	return append(question, answers...), nil
}

func scanResults(rows *sql.Rows) ([]QueryResult, error) {
	var results []QueryResult
	for rows.Next() {
		var (
			qr                 QueryResult
			kind               string
			topicsJSON, tagsJS sql.NullString
			author, date, area sql.NullString
			source, aq, ab     sql.NullString
			quality            sql.NullFloat64
		)
		if err := rows.Scan(&qr.ID, &kind, &author, &date, &area, &topicsJSON, &tagsJS, &source,
			&aq, &ab, &quality, &qr.Text); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		qr.Type = types.EntityKind(kind)
		qr.Author, qr.Date, qr.Area, qr.Source = author.String, date.String, area.String, source.String
		qr.AnswersQuestion, qr.AnsweredBy, qr.Quality = aq.String, ab.String, quality.Float64
		if topicsJSON.Valid {
			json.Unmarshal([]byte(topicsJSON.String), &qr.Topics)
		}
		if tagsJS.Valid {
			json.Unmarshal([]byte(tagsJS.String), &qr.Tags)
		}
		results = append(results, qr)
	}
	return results, rows.Err()
}
