package main

import (
	"fmt"

	"github.com/aretw0/ragloop/internal/presentation/graph"
	"github.com/aretw0/ragloop/internal/runtime"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the topology, with the loop bounds from the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		bounds := map[domain.LoopID]int{
			domain.LoopRewrite:    cfg.Engine.RewriteBound,
			domain.LoopRegenerate: cfg.Engine.RegenerateBound,
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(runtime.CorrectiveRAG(), bounds, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
