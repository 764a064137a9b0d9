// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-builder/internal/knowledge"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Show the per-source sync ledger",
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every source with its last successful sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := knowledge.Open(knowledgeConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		sources, err := store.Sources(cmd.Context())
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources synced yet.")
			return nil
		}
		fmt.Fprintf(os.Stdout, "%-20s  %-20s  %-7s  %s\n", "Source", "Last sync", "Batches", "Last run")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
		for _, s := range sources {
			fmt.Fprintf(os.Stdout, "%-20s  %-20s  %-7d  %s\n", s.Name, s.LastSync.Format(time.RFC3339), s.Batches, s.LastRun)
		}
		return nil
	},
}

var sourceGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print the ledger entry of one source as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := knowledge.Open(knowledgeConfig())
		if err != nil {
			return err
		}
		defer store.Close()

		s, ok, err := store.LastSync(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("source %q has never synced", args[0])
		}
		return printJSON(s)
	},
}

func init() {
	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceGetCmd)
	rootCmd.AddCommand(sourceCmd)
}
