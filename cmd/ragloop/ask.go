package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aretw0/ragloop/internal/cli"
	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question, or start an interactive session",
	Long: `Answers the question given as arguments and exits.
Without arguments, reads one question per line from stdin until EOF (Ctrl+D).
In an interactive session Ctrl+C cancels the running question only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		trace, _ := cmd.Flags().GetBool("trace")
		question := strings.Join(args, " ")

		ctx := context.Background()
		interactive := question == ""
		if !interactive {
			var stop context.CancelFunc
			ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
		}

		app, err := buildApp(ctx, cmd, cli.BuildOptions{})
		if err != nil {
			return err
		}
		defer app.Close()

		return cli.Ask(ctx, app, cli.AskOptions{
			Question: question,
			JSON:     jsonMode,
			Trace:    trace,
			Signals:  interactive,
			In:       os.Stdin,
			Out:      os.Stdout,
		})
	},
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().Bool("json", false, "Run in JSON mode (JSON Lines input/output)")
	askCmd.Flags().BoolP("trace", "t", false, "Print one line per graph step while the run progresses")
}
