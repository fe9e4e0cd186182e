package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/pkg/domain"
	"golang.org/x/term"
)

// TextHandler implements the standard text-based interface.
type TextHandler struct {
	interactive bool
	Reader      *bufio.Reader
	Writer      io.Writer
	Renderer    ContentRenderer
	// ShowTrace prints one line per trace event while a run progresses.
	ShowTrace bool

	inputChan chan inputResult
	startOnce sync.Once
}

type inputResult struct {
	text string
	err  error
}

// TextHandlerOption defines configuration for TextHandler.
type TextHandlerOption func(*TextHandler)

// WithTextHandlerRenderer configures the content renderer.
func WithTextHandlerRenderer(renderer ContentRenderer) TextHandlerOption {
	return func(h *TextHandler) {
		h.Renderer = renderer
	}
}

// WithTextHandlerTrace prints trace events as they happen.
func WithTextHandlerTrace(show bool) TextHandlerOption {
	return func(h *TextHandler) {
		h.ShowTrace = show
	}
}

// NewTextHandler creates a handler for standard text IO.
// The "> " prompt is only printed when r is a terminal.
func NewTextHandler(r io.Reader, w io.Writer, opts ...TextHandlerOption) *TextHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	h := &TextHandler{
		Reader:      bufio.NewReader(r),
		Writer:      w,
		interactive: isTerminal(r),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (h *TextHandler) initPump() {
	h.startOnce.Do(func() {
		h.inputChan = make(chan inputResult)
		go h.pump()
	})
}

// pump reads lines in the background so that Input can honour context cancellation.
func (h *TextHandler) pump() {
	for {
		text, err := h.Reader.ReadString('\n')

		if text != "" {
			h.inputChan <- inputResult{text: text}
		}

		if err != nil {
			if err == io.EOF {
				close(h.inputChan)
				return
			}
			h.inputChan <- inputResult{err: err}
			// Backoff for non-fatal errors to prevent CPU spikes on persistent failure
			time.Sleep(50 * time.Millisecond)
		}
	}
}

func (h *TextHandler) Input(ctx context.Context) (string, error) {
	h.initPump()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
			if h.interactive {
				fmt.Fprint(h.Writer, "> ")
			}
		}

		select {
		case <-ctx.Done():
			// Important: don't print anything here, just exit silently
			return "", ctx.Err()
		case res, ok := <-h.inputChan:
			if !ok {
				return "", io.EOF
			}
			if res.err != nil {
				return "", res.err
			}

			clean, err := SanitizeInput(res.text)
			if err != nil {
				fmt.Fprintf(h.Writer, "Error: %v. Please try again.\n", err)
				continue
			}
			if clean == "" {
				continue
			}
			return clean, nil
		}
	}
}

func (h *TextHandler) Event(ctx context.Context, ev domain.Event) error {
	if !h.ShowTrace {
		return nil
	}
	if ev.IsTerminal() {
		_, err := fmt.Fprintf(h.Writer, "  [%d] %s (%s)\n", ev.Step, ev.Node, ev.Outcome)
		return err
	}
	keys := ev.Patch.Keys()
	if len(keys) == 0 {
		_, err := fmt.Fprintf(h.Writer, "  [%d] %s\n", ev.Step, ev.Node)
		return err
	}
	_, err := fmt.Fprintf(h.Writer, "  [%d] %s -> %s\n", ev.Step, ev.Node, strings.Join(keys, ", "))
	return err
}

// NoAnswerMessage is printed instead of the sentinel on a no-answer outcome.
const NoAnswerMessage = "Sorry, I couldn't find an answer to that question."

func (h *TextHandler) Answer(ctx context.Context, ans *ragloop.Answer) error {
	if ans.NoAnswer {
		if _, err := fmt.Fprintf(h.Writer, "%s (%s)\n", NoAnswerMessage, ans.Reason); err != nil {
			return err
		}
	} else {
		output := ans.Text
		if h.Renderer != nil {
			if rendered, err := h.Renderer(output); err == nil {
				output = rendered
			}
		}
		if _, err := fmt.Fprintln(h.Writer, strings.TrimSpace(output)); err != nil {
			return err
		}
	}

	if ans.Exceeded != nil {
		fmt.Fprintf(h.Writer, "\n[System] stopped after %d traversals of loop '%s' (bound %d)\n",
			ans.Exceeded.Count, ans.Exceeded.Edge, ans.Exceeded.Bound)
	}
	return nil
}

func (h *TextHandler) SystemOutput(ctx context.Context, msg string) error {
	_, err := fmt.Fprintf(h.Writer, "\n[System] %s\n", msg)
	return err
}
