package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/internal/presentation/tui"
	"github.com/aretw0/ragloop/pkg/runner"
)

// AskOptions contains the configuration of the ask command.
type AskOptions struct {
	// Question is asked once. When empty, questions are read from In until EOF.
	Question string
	JSON     bool
	Trace    bool
	// Signals lets an interrupt cancel the current run instead of the process.
	Signals bool

	In  io.Reader
	Out io.Writer
}

// Ask answers one question or runs the interactive session.
func Ask(ctx context.Context, app *App, opts AskOptions) error {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	r := runner.NewRunner(
		runner.WithLogger(app.Logger),
		runner.WithInputHandler(newHandler(opts)),
		runner.WithSignals(opts.Signals),
	)

	if strings.TrimSpace(opts.Question) != "" {
		_, err := r.Ask(ctx, app.Engine, opts.Question)
		return err
	}

	if !opts.JSON && tui.IsTerminal(opts.In) {
		tui.PrintBanner(opts.Out, strings.TrimSpace(ragloop.Version))
	}
	return r.Run(ctx, app.Engine)
}

func newHandler(opts AskOptions) runner.IOHandler {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out)
	}

	handlerOpts := []runner.TextHandlerOption{runner.WithTextHandlerTrace(opts.Trace)}
	if tui.IsTerminal(opts.Out) {
		handlerOpts = append(handlerOpts, runner.WithTextHandlerRenderer(tui.NewRenderer(tui.Width(opts.Out))))
	}
	return runner.NewTextHandler(opts.In, opts.Out, handlerOpts...)
}
