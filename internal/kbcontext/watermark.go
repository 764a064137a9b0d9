// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kbcontext

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/kb-builder/pkg/types"
)

// WatermarkFile records the highest number ever allocated per kind, so
// numbers freed by a source cleanup are not handed out again.
const WatermarkFile = "id_watermark.yaml"

// Watermark is the content of WatermarkFile.
type Watermark struct {
	Question int `yaml:"question"`
	Answer   int `yaml:"answer"`
	Note     int `yaml:"note"`
}

// WatermarkPath returns the watermark location under root.
func WatermarkPath(root string) string {
	return filepath.Join(root, StatsDir, WatermarkFile)
}

// ReadWatermark loads the watermark. A missing file yields zeros.
func ReadWatermark(root string) (Watermark, error) {
	var w Watermark
	data, err := os.ReadFile(WatermarkPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return w, nil
		}
		return w, types.StoreIOError("reading id watermark", err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("parsing id watermark: %w", err)
	}
	return w, nil
}

// Raise lifts the counter of kind to at least n.
func (w Watermark) Raise(kind types.EntityKind, n int) Watermark {
	switch kind {
	case types.KindQuestion:
		w.Question = max(w.Question, n)
	case types.KindAnswer:
		w.Answer = max(w.Answer, n)
	case types.KindNote:
		w.Note = max(w.Note, n)
	}
	return w
}

// Marshal encodes the watermark.
func (w Watermark) Marshal() ([]byte, error) {
	return yaml.Marshal(w)
}

func applyWatermark(ctx *types.KnowledgeContext, w Watermark) {
	ctx.MaxQuestionID = max(ctx.MaxQuestionID, w.Question)
	ctx.MaxAnswerID = max(ctx.MaxAnswerID, w.Answer)
	ctx.MaxNoteID = max(ctx.MaxNoteID, w.Note)
}
