// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/knowledge"
	"github.com/pdiddy/kb-builder/internal/orchestrator"
	"github.com/pdiddy/kb-builder/internal/secrets"
	"github.com/pdiddy/kb-builder/pkg/types"
)

func storeRoot() string {
	return viper.GetString("output_path")
}

func aiConfig() (types.AIConfig, error) {
	var cfg types.AIConfig
	if err := viper.UnmarshalKey("ai", &cfg); err != nil {
		return cfg, fmt.Errorf("reading ai config: %w", err)
	}
	cfg.APIKey = loadedSecrets.Get(secrets.AnthropicAPIKey, cfg.APIKey)
	return cfg, nil
}

func orchestratorConfig() (orchestrator.Config, error) {
	var cfg orchestrator.Config
	if err := viper.UnmarshalKey("chunk", &cfg.Chunk); err != nil {
		return cfg, fmt.Errorf("reading chunk config: %w", err)
	}
	if err := viper.UnmarshalKey("mapping", &cfg.Mapping); err != nil {
		return cfg, fmt.Errorf("reading mapping config: %w", err)
	}
	if err := viper.UnmarshalKey("aggregation", &cfg.Aggregation); err != nil {
		return cfg, fmt.Errorf("reading aggregation config: %w", err)
	}
	return cfg, nil
}

func knowledgeConfig() types.KnowledgeBaseConfig {
	return types.KnowledgeBaseConfig{
		OutputPath:   storeRoot(),
		IndexEnabled: viper.GetBool("index.enabled"),
		MaxResults:   viper.GetInt("index.max_results"),
	}
}

// openIndex opens the search index, or returns nil when indexing is disabled.
func openIndex() (*knowledge.Store, error) {
	cfg := knowledgeConfig()
	if !cfg.IndexEnabled {
		return nil, nil
	}
	return knowledge.Open(cfg)
}

// pipeline bundles an orchestrator with the index it writes to.
type pipeline struct {
	orch  *orchestrator.Orchestrator
	index *knowledge.Store
}

func (p *pipeline) Close() {
	if p.index != nil {
		p.index.Close()
	}
}

// newPipeline wires the Claude backend, the index and the orchestrator.
func newPipeline() (*pipeline, error) {
	aiCfg, err := aiConfig()
	if err != nil {
		return nil, err
	}
	if aiCfg.APIKey == "" {
		return nil, fmt.Errorf("no API key: write it to %s/%s or set ai.api_key", viper.GetString("secrets_dir"), secrets.AnthropicAPIKey)
	}
	cfg, err := orchestratorConfig()
	if err != nil {
		return nil, err
	}
	backend := ai.NewClaudeBackend(aiCfg, log)

	var merger ai.Merger = backend
	if viper.GetString("chunk.merger") == "concat" {
		merger = ai.ConcatMerger{}
	}
	collab := orchestrator.Collaborators{
		Analyzer:  backend,
		Merger:    merger,
		Matcher:   backend,
		Describer: backend,
	}

	index, err := openIndex()
	if err != nil {
		return nil, err
	}
	p := &pipeline{index: index}
	if index != nil {
		p.orch = orchestrator.New(collab, cfg, index, log)
	} else {
		p.orch = orchestrator.New(collab, cfg, nil, log)
	}
	return p, nil
}
