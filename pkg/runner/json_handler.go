package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/pkg/domain"
)

// Message types emitted by JSONHandler, one JSON object per line.
const (
	MessageEvent  = "event"
	MessageAnswer = "answer"
	MessageSystem = "system"
)

// Message is one line of JSONHandler output.
type Message struct {
	Type    string          `json:"type"`
	Event   *domain.Event   `json:"event,omitempty"`
	Answer  *ragloop.Answer `json:"answer,omitempty"`
	Message string          `json:"message,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

// Input reads one line holding either {"question": "..."}, a JSON string, or plain text.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := h.Reader.ReadString('\n')
		text = strings.TrimSpace(text)
		if text == "" {
			if err != nil {
				return "", err
			}
			continue
		}

		question := decodeQuestion(text)
		clean, serr := SanitizeInput(question)
		if serr != nil {
			if werr := h.SystemOutput(ctx, serr.Error()); werr != nil {
				return "", werr
			}
			continue
		}
		return clean, nil
	}
}

func decodeQuestion(line string) string {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal([]byte(line), &req); err == nil {
		return req.Question
	}

	var val string
	if err := json.Unmarshal([]byte(line), &val); err == nil {
		return val
	}

	return line
}

func (h *JSONHandler) Event(ctx context.Context, ev domain.Event) error {
	return h.Encoder.Encode(Message{Type: MessageEvent, Event: &ev})
}

func (h *JSONHandler) Answer(ctx context.Context, ans *ragloop.Answer) error {
	return h.Encoder.Encode(Message{Type: MessageAnswer, Answer: ans})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.Encoder.Encode(Message{Type: MessageSystem, Message: msg})
}
