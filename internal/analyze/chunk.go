// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"encoding/json"
	"strings"
)

// DefaultMaxChars is the chunk size used when none is configured.
const DefaultMaxChars = 40000

// Chunks splits text into pieces of at most maxChars characters. Boundaries
// fall on markdown headings or blank lines when possible; a single block
// longer than maxChars is split on line breaks, then hard-cut. A JSON array
// input is flattened to one block per element first.
func Chunks(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	text = NormalizeInput(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if strings.TrimSpace(cur.String()) != "" {
			chunks = append(chunks, strings.TrimSpace(cur.String()))
		}
		cur.Reset()
	}

	for _, block := range splitBlocks(text) {
		for _, piece := range splitOversized(block, maxChars) {
			if cur.Len() > 0 && cur.Len()+len(piece)+2 > maxChars {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteString("\n\n")
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

// splitBlocks breaks text at blank lines and before headings.
func splitBlocks(text string) []string {
	var blocks []string
	var lines []string
	flush := func() {
		if b := strings.TrimSpace(strings.Join(lines, "\n")); b != "" {
			blocks = append(blocks, b)
		}
		lines = nil
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case isHeading(trimmed):
			flush()
			lines = append(lines, line)
		default:
			lines = append(lines, line)
		}
	}
	flush()
	return blocks
}

// isHeading returns true if the line starts with #, ## or ###.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

func splitOversized(block string, maxChars int) []string {
	if len(block) <= maxChars {
		return []string{block}
	}
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(block, "\n") {
		for len(line) > maxChars {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			out = append(out, line[:maxChars])
			line = line[maxChars:]
		}
		if cur.Len() > 0 && cur.Len()+len(line)+1 > maxChars {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// NormalizeInput flattens a JSON array (a common chat or ticket export
// shape) into blank-line separated blocks. Other input is returned as is.
func NormalizeInput(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") {
		return text
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return text
	}
	blocks := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			blocks = append(blocks, strings.TrimSpace(s))
			continue
		}
		blocks = append(blocks, string(raw))
	}
	return strings.Join(blocks, "\n\n")
}
