// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package regen

import (
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/pkg/types"
)

func sourceCounts(root, source string) (types.BatchCounts, error) {
	store, err := entity.ReadStore(root)
	if err != nil {
		return types.BatchCounts{}, err
	}
	var c types.BatchCounts
	for _, d := range store.All() {
		if d.Source != source {
			continue
		}
		switch d.Kind {
		case types.KindQuestion:
			c.Questions++
		case types.KindAnswer:
			c.Answers++
		case types.KindNote:
			c.Notes++
		}
	}
	return c, nil
}
