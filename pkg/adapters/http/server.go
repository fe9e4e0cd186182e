package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/internal/presentation/graph"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine defines the part of the ragloop engine served over HTTP.
type Engine interface {
	runner.Engine
	RunToCompletion(ctx context.Context, question string) (*ragloop.Answer, error)
	Inspect() ragloop.Topology
}

var _ Engine = (*ragloop.Engine)(nil)

// Server holds the HTTP handlers of the engine.
type Server struct {
	Engine   Engine
	Streams  *StreamManager
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer

	validate *validator.Validate
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.Gatherer = g
	}
}

// WithStreams serves GET /v1/events from sm. The same manager must be installed as
// a trace sink on the engine for events to flow.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// AskRequest is the body of POST /v1/ask and POST /v1/ask/stream.
type AskRequest struct {
	Question string `json:"question" validate:"required,maxbytes"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	server := &Server{
		Engine:   engine,
		Logger:   slog.Default(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", server.GetHealth)
	r.Get("/info", server.GetInfo)
	if server.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(server.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", server.Ask)
		r.Post("/ask/stream", server.AskStream)
		r.Get("/graph", server.GetGraph)
		if server.Streams != nil {
			r.Get("/events", server.SubscribeEvents)
		}
	})

	return enableCORS(r)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= runner.MaxInputSize()
	})
	return v
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeQuestion reads, validates and sanitizes the request body.
func (s *Server) decodeQuestion(r *http.Request) (string, error) {
	var body AskRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, int64(runner.MaxInputSize())*4+1024)).Decode(&body); err != nil {
		return "", &domain.ConfigurationError{Where: "request", Reason: "invalid request body"}
	}
	if !utf8.ValidString(body.Question) {
		return "", &domain.ConfigurationError{Where: "request", Reason: runner.ErrInvalidUTF8.Error()}
	}
	if err := s.validate.Struct(body); err != nil {
		return "", &domain.ConfigurationError{Where: "request", Reason: validationReason(err)}
	}
	clean, err := runner.SanitizeInput(body.Question)
	if err != nil {
		return "", &domain.ConfigurationError{Where: "request", Reason: err.Error()}
	}
	return clean, nil
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			reasons = append(reasons, "question is required")
		case "maxbytes":
			reasons = append(reasons, fmt.Sprintf("question exceeds %d bytes", runner.MaxInputSize()))
		default:
			reasons = append(reasons, fe.Error())
		}
	}
	return strings.Join(reasons, "; ")
}

// Ask handles the POST /v1/ask request.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	question, err := s.decodeQuestion(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ans, err := s.Engine.RunToCompletion(r.Context(), question)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ans); err != nil {
		s.Logger.Error("Ask response encode failed", "err", err)
	}
}

// AskStream handles the POST /v1/ask/stream request (SSE).
// Each trace event is sent as "event: node"; the stream ends with "event: answer"
// or "event: error".
func (s *Server) AskStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.Logger.Error("AskStream: Streaming not supported")
		return
	}

	question, err := s.decodeQuestion(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var trace []domain.Event
	for ev, err := range s.Engine.Run(r.Context(), question) {
		if err != nil {
			s.Logger.Warn("AskStream: run failed", "err", err)
			writeSSE(w, "error", ErrorResponse{Error: err.Error(), Kind: errorKind(err)})
			flusher.Flush()
			return
		}
		trace = append(trace, ev)
		writeSSE(w, "node", ev)
		flusher.Flush()
	}

	writeSSE(w, "answer", s.Engine.Collect(question, trace))
	flusher.Flush()
}

func writeSSE(w io.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// GetGraph handles the GET /v1/graph request.
// With ?format=mermaid the graph is rendered as a Mermaid flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	topo := s.Engine.Inspect()

	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, graph.GenerateMermaid(topo.Graph, topo.Bounds, nil))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(topo); err != nil {
		s.Logger.Error("GetGraph response encode failed", "err", err)
	}
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"app":     "ragloop-http",
		"version": strings.TrimSpace(ragloop.Version),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// StatusFor maps engine errors to HTTP status codes. Only configuration errors
// about the request itself are the caller's fault; a classifier label outside its
// set or an incomplete engine setup is reported as a server error.
func StatusFor(err error) int {
	var cfgErr *domain.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		if cfgErr.Where == "request" || cfgErr.Where == "run" {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrNodeExecution):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrNodeExecution):
		return "node_execution"
	case errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	default:
		return "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", "err", err, "status", status)
	} else {
		s.Logger.Warn("request rejected", "err", err, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Kind: errorKind(err)})
}
