// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-builder/internal/cleaner"
	"github.com/pdiddy/kb-builder/internal/kbcontext"
	"github.com/pdiddy/kb-builder/internal/regen"
	"github.com/pdiddy/kb-builder/internal/rollback"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the knowledge base directory layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := storeRoot()
		if err := kbcontext.InitStore(root); err != nil {
			return err
		}
		fmt.Printf("Initialized knowledge base at %s\n", root)
		return nil
	},
}

var cleanSourceCmd = &cobra.Command{
	Use:   "clean-source <name>",
	Short: "Remove every entity of one source",
	Long: `Clean-source deletes the questions, answers and notes tagged with the
source, then rebuilds topics, areas, people pages and statistics from what
remains. References from other sources to the deleted entities are kept and
listed as dangling. Deleted IDs are never handed out again.

The search index is synced and the source is dropped from the sync ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: runCleanSource,
}

func runCleanSource(cmd *cobra.Command, args []string) error {
	source := args[0]
	root := storeRoot()

	tracker := rollback.NewTracker(log)
	res, err := cleaner.CleanSource(root, source, tracker, log)
	if err != nil {
		tracker.Rollback()
		return err
	}

	index, err := openIndex()
	if err != nil {
		return err
	}
	if index != nil {
		defer index.Close()
		if _, err := index.Sync(cmd.Context(), os.Stderr); err != nil {
			return err
		}
		if err := index.ForgetSource(cmd.Context(), source); err != nil {
			return err
		}
	}
	return printJSON(res)
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rebuild topics, areas, people pages and statistics from the entities",
	Long: `Regenerate rewrites every derived artifact from the entity files alone.
Running it twice produces byte-identical output. Descriptions are kept;
use aggregate to refresh them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		res, err := regen.Regenerate(storeRoot(), source, log)
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

func init() {
	regenerateCmd.Flags().String("source", "", "report batch counts for this source")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(cleanSourceCmd)
	rootCmd.AddCommand(regenerateCmd)
}
