package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/ragloop/internal/cli"
	"github.com/aretw0/ragloop/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ragloop",
	Short: "ragloop answers questions with a self-correcting retrieval graph",
	Long: `ragloop routes each question either to the language model or to a document corpus,
grades what it retrieves and what it generates, and rewrites or regenerates within
bounded loops until it has a grounded answer or gives up explicitly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (YAML or JSON); defaults to ./"+config.DefaultPath+" when present")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging and run audit hooks")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// buildApp loads the configuration and assembles the engine.
func buildApp(ctx context.Context, cmd *cobra.Command, opts cli.BuildOptions) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	opts.Debug, _ = cmd.Flags().GetBool("debug")
	return cli.Build(ctx, cfg, opts)
}
