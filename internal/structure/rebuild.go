// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package structure

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Rebuilt describes a full rebuild of the derived artifacts.
type Rebuilt struct {
	Topics  []string
	Areas   []string
	People  []string
	Removed []string
}

// RebuildDerived recomputes every topic, area and person artifact plus the
// indexes from the persisted entity files. Artifacts whose grouping no
// longer has members are removed together with their description; the
// descriptions of surviving groupings are kept.
func (m *Manager) RebuildDerived() (*Rebuilt, error) {
	if err := kbcontext.InitStore(m.root); err != nil {
		return nil, err
	}
	store, err := entity.ReadStore(m.root)
	if err != nil {
		return nil, err
	}
	topics, areas := StoreGroupings(store)
	people := CollectPeople(store)
	out := &Rebuilt{Topics: sortedKeys(topics), Areas: sortedKeys(areas), People: sortedKeys(people)}

	existingTopics, err := listTopicSlugs(filepath.Join(m.root, kbcontext.TopicsDir))
	if err != nil {
		return nil, err
	}
	for _, slug := range existingTopics {
		if _, ok := topics[slug]; ok {
			continue
		}
		path := TopicPath(m.root, slug)
		for _, p := range []string{path, DescriptionPath(path)} {
			if err := m.remove(p); err != nil {
				return nil, err
			}
		}
		out.Removed = append(out.Removed, relPath(m.root, path))
	}
	for _, slug := range out.Topics {
		data, err := RenderTopic(topics[slug])
		if err != nil {
			return nil, err
		}
		if err := m.write(TopicPath(m.root, slug), data); err != nil {
			return nil, err
		}
	}

	existingAreas, err := listDirs(filepath.Join(m.root, kbcontext.AreasDir))
	if err != nil {
		return nil, err
	}
	for _, slug := range existingAreas {
		if _, ok := areas[slug]; ok {
			continue
		}
		path := AreaPath(m.root, slug)
		for _, p := range []string{path, DescriptionPath(path)} {
			if err := m.remove(p); err != nil {
				return nil, err
			}
		}
		removeDirIfEmpty(filepath.Dir(path))
		out.Removed = append(out.Removed, relPath(m.root, path))
	}
	for _, slug := range out.Areas {
		data, err := RenderArea(areas[slug])
		if err != nil {
			return nil, err
		}
		if err := m.write(AreaPath(m.root, slug), data); err != nil {
			return nil, err
		}
	}

	if err := m.writeAllProfiles(people); err != nil {
		return nil, err
	}
	if err := m.RegenerateIndexes(); err != nil {
		return nil, err
	}
	m.log.Info("derived artifacts rebuilt", "topics", len(out.Topics), "areas", len(out.Areas),
		"people", len(out.People), "removed", len(out.Removed))
	return out, nil
}

// RegenerateProfiles rewrites every person profile from the store and drops
// profiles of people with no remaining contributions.
func (m *Manager) RegenerateProfiles() error {
	store, err := entity.ReadStore(m.root)
	if err != nil {
		return err
	}
	return m.writeAllProfiles(CollectPeople(store))
}

func listTopicSlugs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, types.StoreIOError("listing "+dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || strings.HasSuffix(name, "-desc.md") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".md"))
	}
	return out, nil
}
