// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the kb-builder CLI. Subcommands run
// batches, maintain the store, process the inbox and query the search index.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets secrets.Secrets

	// log is configured in PersistentPreRunE.
	log = logging.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "kb-builder",
	Short: "Build a knowledge base incrementally from conversations",
	Long: `kb-builder turns raw conversational text into a knowledge base of
questions, answers and notes stored as markdown files with YAML frontmatter.
Each batch extends the store: new entities get the next free IDs, answers are
linked to earlier questions, and topic, area and people pages are merged.

Use build to run one batch, inbox to process dropped files, and search or
export to query the SQLite index kept alongside the store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(viper.GetString("log.format"), viper.GetBool("log.verbose"))
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		log = l

		s, err := secrets.Load(viper.GetString("secrets_dir"), log)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if keys := s.Keys(); len(keys) > 0 {
			log.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./kb-builder.yaml or ~/.config/kb-builder/config.yaml)")
	pf.StringP("output", "o", "", "knowledge base root directory (default: kb)")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.String("log-format", "", "log encoding: console or json")

	viper.BindPFlag("output_path", pf.Lookup("output"))
	viper.BindPFlag("log.verbose", pf.Lookup("verbose"))
	viper.BindPFlag("log.format", pf.Lookup("log-format"))

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("output_path", "kb")
	viper.SetDefault("secrets_dir", ".secrets")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("chunk.max_chars", 40000)
	viper.SetDefault("chunk.workers", 4)
	viper.SetDefault("chunk.merger", "claude")
	viper.SetDefault("mapping.confidence_threshold", 0.6)
	viper.SetDefault("mapping.candidate_limit", 50)
	viper.SetDefault("aggregation.max_input_chars", 60000)
	viper.SetDefault("aggregation.smart", true)
	viper.SetDefault("index.enabled", true)
	viper.SetDefault("index.max_results", 20)
	viper.SetDefault("inbox.debounce", "2s")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("kb-builder")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "kb-builder"))
		}
	}

	viper.SetEnvPrefix("KB_BUILDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
