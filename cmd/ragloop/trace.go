package main

import (
	"github.com/aretw0/ragloop/internal/cli"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace [run-id]",
	Short: "Inspect run traces stored in Redis",
	Long: `Without arguments, lists the finished runs still held by the trace store.
With a run id, replays that run as text, JSON Lines or a Mermaid diagram with the visited path highlighted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		offline := cli.OfflineCollaborators()
		app, err := buildApp(cmd.Context(), cmd, cli.BuildOptions{Collaborators: &offline})
		if err != nil {
			return err
		}
		defer app.Close()

		if len(args) == 0 {
			return cli.ListTraces(cmd.Context(), app, cmd.OutOrStdout())
		}
		return cli.ShowTrace(cmd.Context(), app, args[0], format, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.Flags().StringP("format", "f", cli.TraceFormatText, "Output format: text, json or mermaid")
}
