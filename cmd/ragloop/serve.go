package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/ragloop/internal/cli"
	httpAdapter "github.com/aretw0/ragloop/pkg/adapters/http"
	"github.com/aretw0/ragloop/pkg/ports"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the engine in stateless server mode, exposing a JSON and SSE API over HTTP.
GET /v1/events streams the events of every run handled by this process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		streams := httpAdapter.NewStreamManager(nil)
		app, err := buildApp(ctx, cmd, cli.BuildOptions{Sinks: []ports.TraceSink{streams}})
		if err != nil {
			return err
		}
		defer app.Close()

		addr := app.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}
		if metrics, _ := cmd.Flags().GetBool("metrics"); metrics {
			app.Config.Server.Metrics = true
		}

		return cli.Serve(ctx, cli.NewHTTPHandler(app, streams), addr, app)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
}
