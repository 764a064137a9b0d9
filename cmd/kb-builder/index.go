// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-builder/internal/knowledge"
	"github.com/pdiddy/kb-builder/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the SQLite search index",
	Long: `Index manages index/kb.db, a full-text index derived from the entity
files. The markdown files stay authoritative; the index can be rebuilt at
any time.`,
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index new and changed entities, drop removed ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, false)
	},
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-index every entity from scratch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex(cmd, true)
	},
}

func runIndex(cmd *cobra.Command, rebuild bool) error {
	store, err := knowledge.Open(knowledgeConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	var summary knowledge.SyncSummary
	if rebuild {
		summary, err = store.Rebuild(cmd.Context(), os.Stdout)
	} else {
		summary, err = store.Sync(cmd.Context(), os.Stdout)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d entit(ies) failed indexing", summary.Failed)
	}
	return nil
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the index with full-text search and filters",
	Long: `Search uses FTS5 full-text search, structured filters (type, tag,
source, area, person), or both. Use --thread with a question ID to list the
question and every answer linked to it.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	threadID, _ := cmd.Flags().GetString("thread")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := knowledge.Open(knowledgeConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	if threadID != "" {
		results, err := store.Thread(cmd.Context(), threadID)
		if err != nil {
			return err
		}
		return formatSearchOutput(results, jsonOutput)
	}

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide a search query, --type, --tag, --source, --area or --person")
	}
	results, err := store.Retrieve(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return formatSearchOutput(results, jsonOutput)
}

func formatSearchOutput(results []knowledge.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-8s  %-8s  %-50s  %-16s  %-12s  %s\n",
		"Rank", "ID", "Type", "Text", "Author", "Source", "Date")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))
	for i, r := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %-8s  %-8s  %-50s  %-16s  %-12s  %s\n",
			i+1, r.ID, r.Type, clip(oneLine(r.Text), 50), clip(r.Author, 16), clip(r.Source, 12), r.Date)
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the index to YAML or JSON",
	Long: `Export writes the indexed entities (or a filtered subset) to
index/export.yaml or index/export.json. Supports the same filter flags as
search.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := knowledge.Open(knowledgeConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	kind, _ := cmd.Flags().GetString("type")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	source, _ := cmd.Flags().GetString("source")
	area, _ := cmd.Flags().GetString("area")
	person, _ := cmd.Flags().GetString("person")
	limit, _ := cmd.Flags().GetInt("limit")

	return knowledge.QueryOptions{
		Query:      queryText,
		Type:       types.EntityKind(kind),
		Tags:       tags,
		Source:     source,
		Area:       area,
		Person:     person,
		MaxResults: limit,
	}
}

func addQueryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("query", "", "full-text search query")
	f.String("type", "", "filter by kind: question, answer, note")
	f.StringSlice("tag", nil, "filter by tag (repeatable, all must match)")
	f.String("source", "", "filter by source")
	f.String("area", "", "filter by area")
	f.String("person", "", "filter by author")
	f.Int("limit", 0, "maximum results (0 = use default)")
}

func init() {
	addQueryFlags(searchCmd)
	searchCmd.Flags().String("thread", "", "show a question and its answers")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	addQueryFlags(exportCmd)
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	indexCmd.AddCommand(indexSyncCmd)
	indexCmd.AddCommand(indexRebuildCmd)

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(exportCmd)
}
