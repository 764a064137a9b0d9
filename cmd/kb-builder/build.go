// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-builder/pkg/types"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run one batch against the knowledge base",
	Long: `Build analyzes one input, maps its entities to the next free IDs, links
answers to existing questions and persists everything under the store root.
In FULL mode it also regenerates the descriptions of every person, topic and
area the batch touched.

A failed batch is rolled back: the store is left exactly as it was.
The result is printed as JSON.`,
	Example: `  kb-builder build --source slack --input export.txt
  cat thread.md | kb-builder build --source mail --input -
  kb-builder build --source slack --input export.txt --clean-source`,
	RunE: runBuild,
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a batch without generating descriptions",
	Long:  `Process is build in PROCESS_ONLY mode. Follow it with aggregate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, types.ModeProcessOnly)
	},
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Regenerate descriptions from the stored entities",
	Long: `Aggregate runs in AGGREGATE_ONLY mode. With --source only the people,
topics and areas holding that source's entities are considered. When smart
aggregation is enabled (aggregation.smart) descriptions newer than every
entity they cover are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatch(cmd, types.ModeAggregateOnly)
	},
}

func runBuild(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")
	m, err := parseMode(mode)
	if err != nil {
		return err
	}
	return runBatch(cmd, m)
}

func parseMode(s string) (types.ProcessingMode, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "_")) {
	case "", "FULL":
		return types.ModeFull, nil
	case "PROCESS", "PROCESS_ONLY":
		return types.ModeProcessOnly, nil
	case "AGGREGATE", "AGGREGATE_ONLY":
		return types.ModeAggregateOnly, nil
	}
	return "", fmt.Errorf("unknown mode %q: use full, process-only or aggregate-only", s)
}

func runBatch(cmd *cobra.Command, mode types.ProcessingMode) error {
	cfg, err := buildConfigFromFlags(cmd, mode)
	if err != nil {
		return err
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.orch.Run(cmd.Context(), cfg)
	if res != nil {
		if perr := printJSON(res); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func buildConfigFromFlags(cmd *cobra.Command, mode types.ProcessingMode) (types.BuildConfig, error) {
	f := cmd.Flags()
	source, _ := f.GetString("source")
	input, _ := f.GetString("input")
	instructions, _ := f.GetString("instructions")
	aggInstructions, _ := f.GetString("aggregation-instructions")

	cfg := types.BuildConfig{
		SourceName:              source,
		OutputPath:              storeRoot(),
		AnalysisInstructions:    instructions,
		AggregationInstructions: aggInstructions,
		Mode:                    mode,
	}
	if f.Lookup("clean-output") != nil {
		cfg.CleanOutput, _ = f.GetBool("clean-output")
		cfg.CleanSourceBeforeProcessing, _ = f.GetBool("clean-source")
	}

	if ts, _ := f.GetString("timestamp"); ts != "" {
		at, err := parseTimestamp(ts)
		if err != nil {
			return cfg, err
		}
		cfg.Timestamp = at
	}

	if mode == types.ModeAggregateOnly {
		return cfg, nil
	}
	switch input {
	case "":
		return cfg, fmt.Errorf("--input is required")
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return cfg, fmt.Errorf("reading stdin: %w", err)
		}
		cfg.InputText = string(data)
	default:
		cfg.InputFile = input
	}
	return cfg, nil
}

// parseTimestamp accepts RFC3339 or a plain YYYY-MM-DD date (UTC midnight).
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --timestamp %q: use RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func addBatchFlags(cmd *cobra.Command, withInput bool) {
	f := cmd.Flags()
	f.String("source", "", "source name tagged on every entity")
	if withInput {
		f.String("input", "", "input file, or - for stdin")
		f.String("instructions", "", "extra analysis instructions")
		f.Bool("clean-output", false, "wipe the store (except inbox and index) before the batch")
		f.Bool("clean-source", false, "remove the source's entities before the batch")
		f.String("timestamp", "", "batch time recorded as the source's last sync (RFC3339 or YYYY-MM-DD)")
	}
	f.String("aggregation-instructions", "", "extra instructions for description generation")
}

func init() {
	addBatchFlags(buildCmd, true)
	buildCmd.Flags().String("mode", "full", "full, process-only or aggregate-only")
	addBatchFlags(processCmd, true)
	addBatchFlags(aggregateCmd, false)

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(aggregateCmd)
}
