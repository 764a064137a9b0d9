// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kb-builder/internal/inbox"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Process files dropped under inbox/raw/<source>/",
	Long: `Inbox runs one PROCESS_ONLY batch per new file found in
inbox/raw/<source>/, using the folder name as the source, then one
aggregation pass. Files with an analyzed snapshot, or recorded in the index
ledger, are skipped.`,
}

var inboxProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process the inbox once",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, proc, err := newInboxProcessor(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		summary, err := proc.ProcessInbox(cmd.Context())
		if err != nil {
			return err
		}
		if summary.HasFailures() {
			return fmt.Errorf("%d inbox file(s) failed", summary.Failed)
		}
		return nil
	},
}

var inboxWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process the inbox whenever files arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, proc, err := newInboxProcessor(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info("watching inbox", "root", storeRoot())
		return proc.Watch(ctx, viper.GetDuration("inbox.debounce"))
	},
}

func newInboxProcessor(cmd *cobra.Command) (*pipeline, *inbox.Processor, error) {
	p, err := newPipeline()
	if err != nil {
		return nil, nil, err
	}
	instructions, _ := cmd.Flags().GetString("instructions")
	aggInstructions, _ := cmd.Flags().GetString("aggregation-instructions")
	skip, _ := cmd.Flags().GetBool("no-aggregate")
	opts := inbox.Options{
		AnalysisInstructions:    instructions,
		AggregationInstructions: aggInstructions,
		SkipAggregation:         skip,
	}

	var proc *inbox.Processor
	if p.index != nil {
		proc = inbox.New(storeRoot(), p.orch, p.index, opts, os.Stdout, log)
	} else {
		proc = inbox.New(storeRoot(), p.orch, nil, opts, os.Stdout, log)
	}
	return p, proc, nil
}

func init() {
	for _, c := range []*cobra.Command{inboxProcessCmd, inboxWatchCmd} {
		c.Flags().String("instructions", "", "extra analysis instructions")
		c.Flags().String("aggregation-instructions", "", "extra instructions for description generation")
		c.Flags().Bool("no-aggregate", false, "skip the aggregation pass")
		inboxCmd.AddCommand(c)
	}
	inboxWatchCmd.Flags().Duration("debounce", 0, "wait for writes to settle (default inbox.debounce)")
	viper.BindPFlag("inbox.debounce", inboxWatchCmd.Flags().Lookup("debounce"))

	rootCmd.AddCommand(inboxCmd)
}

