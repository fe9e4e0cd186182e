package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/internal/presentation/graph"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/runner"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	graphURI        = "ragloop://graph"
	graphMermaidURI = "ragloop://graph.mmd"
)

// AskArgs are the arguments of the ask tool.
type AskArgs struct {
	Question string `json:"question"`
}

// AskResponse is the structured output of the ask tool.
type AskResponse struct {
	Answer     string         `json:"answer" jsonschema_description:"The answer, or a no-answer sentinel"`
	Outcome    domain.Outcome `json:"outcome" jsonschema_description:"answered or bounded"`
	NoAnswer   bool           `json:"no_answer" jsonschema_description:"True when answer is a sentinel rather than a generation"`
	BestEffort string         `json:"best_effort,omitempty" jsonschema_description:"Last ungrounded draft of a bounded run"`
	Question   string         `json:"question" jsonschema_description:"The question as finally used for retrieval"`
	Path       []string       `json:"path" jsonschema_description:"Nodes visited in order"`
	Sources    []string       `json:"sources,omitempty" jsonschema_description:"Sources of the documents the answer was generated from"`
}

// Engine defines the interface required by the MCP server.
type Engine interface {
	RunToCompletion(ctx context.Context, question string) (*ragloop.Answer, error)
	Inspect() ragloop.Topology
}

var _ Engine = (*ragloop.Engine)(nil)

// Server wraps the ragloop Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("ragloop-mcp", strings.TrimSpace(ragloop.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Answer a question from the document store, retrying retrieval and generation until the answer is grounded."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithOutputSchema[AskResponse](),
	)
	s.mcpServer.AddTool(askTool, mcp.NewStructuredToolHandler(s.handleAsk))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the graph topology and loop bounds for introspection."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, err := json.Marshal(s.engine.Inspect())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest, args AskArgs) (AskResponse, error) {
	clean, err := runner.SanitizeInput(args.Question)
	if err != nil {
		s.logger.Warn("MCP Ask: Input rejected", "err", err, "size", len(args.Question))
		return AskResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	ans, err := s.engine.RunToCompletion(ctx, clean)
	if err != nil {
		s.logger.Error("MCP Ask: run failed", "err", err)
		return AskResponse{}, fmt.Errorf("ask failed: %w", err)
	}

	return toResponse(ans), nil
}

func toResponse(ans *ragloop.Answer) AskResponse {
	resp := AskResponse{
		Answer:     ans.Text,
		Outcome:    ans.Outcome,
		NoAnswer:   ans.NoAnswer,
		BestEffort: ans.BestEffort,
		Question:   ans.Question,
		Path:       make([]string, 0, len(ans.Trace)),
	}

	var docs []domain.Document
	for _, ev := range ans.Trace {
		resp.Path = append(resp.Path, string(ev.Node))
		if ev.Node == domain.NodeGradeDocuments && ev.Patch.Documents != nil {
			docs = *ev.Patch.Documents
		}
	}
	if ans.NoAnswer {
		return resp
	}
	for _, d := range docs {
		resp.Sources = append(resp.Sources, d.Source)
	}
	return resp
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Graph Topology",
		mcp.WithMIMEType("application/json"),
	), s.readGraph)

	s.mcpServer.AddResource(mcp.NewResource(graphMermaidURI, "Graph Diagram",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), s.readGraph)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	topo := s.engine.Inspect()

	if request.Params.URI == graphMermaidURI {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphMermaidURI,
				MIMEType: "text/vnd.mermaid",
				Text:     graph.GenerateMermaid(topo.Graph, topo.Bounds, nil),
			},
		}, nil
	}

	jsonBytes, err := json.Marshal(topo)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect graph: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      graphURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
