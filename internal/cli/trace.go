package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/ragloop/internal/presentation/graph"
	"github.com/aretw0/ragloop/pkg/runner"
)

// ErrTracesDisabled is returned by trace commands when no Redis sink is configured.
var ErrTracesDisabled = errors.New("trace store is not configured (set trace.redis_addr)")

// Trace output formats.
const (
	TraceFormatText    = "text"
	TraceFormatJSON    = "json"
	TraceFormatMermaid = "mermaid"
)

// ListTraces prints the ids of finished runs still held by the trace store.
func ListTraces(ctx context.Context, app *App, w io.Writer) error {
	if app.Traces == nil {
		return ErrTracesDisabled
	}
	runs, err := app.Traces.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range runs {
		fmt.Fprintln(w, id)
	}
	return nil
}

// ShowTrace replays a stored run in the requested format.
func ShowTrace(ctx context.Context, app *App, runID, format string, w io.Writer) error {
	if app.Traces == nil {
		return ErrTracesDisabled
	}
	events, err := app.Traces.Load(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	switch format {
	case TraceFormatJSON:
		enc := json.NewEncoder(w)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	case TraceFormatMermaid:
		topo := app.Engine.Inspect()
		_, err := io.WriteString(w, graph.GenerateMermaid(topo.Graph, topo.Bounds, graph.OverlayFromTrace(events)))
		return err
	case TraceFormatText, "":
		h := runner.NewTextHandler(strings.NewReader(""), w, runner.WithTextHandlerTrace(true))
		for _, ev := range events {
			if err := h.Event(ctx, ev); err != nil {
				return err
			}
		}
		if !events[len(events)-1].IsTerminal() {
			return h.SystemOutput(ctx, "run did not finish")
		}
		return h.Answer(ctx, app.Engine.Collect("", events))
	default:
		return fmt.Errorf("unknown format %q. Supported: text, json, mermaid", format)
	}
}
