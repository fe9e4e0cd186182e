package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/ragloop"
	"github.com/aretw0/ragloop/internal/testutils"
	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, rig *testutils.Rig) *Server {
	t.Helper()
	eng, err := ragloop.New(rig.Collaborators())
	require.NoError(t, err)
	return NewServer(eng, nil)
}

func TestHandleAsk(t *testing.T) {
	rig := testutils.NewRig()
	rig.RelevanceGrader = testutils.RelevantSources(testutils.DocX200Spec)
	s := newServer(t, rig)

	resp, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{Question: " Spec of model X200 lamp "})
	require.NoError(t, err)

	assert.Equal(t, "The X200 draws 12 W.", resp.Answer)
	assert.Equal(t, domain.OutcomeAnswered, resp.Outcome)
	assert.False(t, resp.NoAnswer)
	assert.Equal(t, "Spec of model X200 lamp", resp.Question)
	assert.Equal(t, []string{"retrieve", "grade_documents", "generate", "END"}, resp.Path)
	assert.Equal(t, []string{testutils.DocX200Spec.Source}, resp.Sources)
}

func TestHandleAsk_NoAnswer(t *testing.T) {
	rig := testutils.NewRig()
	rig.Retriever = testutils.NewRetriever([]domain.Document{})
	s := newServer(t, rig)

	resp, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{Question: "Spec of model X200 lamp"})
	require.NoError(t, err)

	assert.True(t, resp.NoAnswer)
	assert.Equal(t, domain.NoAnswerUnableToRetrieve, resp.Answer)
	assert.Equal(t, domain.OutcomeBounded, resp.Outcome)
	assert.Empty(t, resp.Sources)
}

func TestHandleAsk_Errors(t *testing.T) {
	t.Run("Empty Question", func(t *testing.T) {
		s := newServer(t, testutils.NewRig())
		_, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("Oversized Question", func(t *testing.T) {
		s := newServer(t, testutils.NewRig())
		_, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{Question: strings.Repeat("a", 5000)})
		assert.ErrorContains(t, err, "input rejected")
	})

	t.Run("Node Failure", func(t *testing.T) {
		rig := testutils.NewRig()
		rig.Retriever.Err = assert.AnError
		s := newServer(t, rig)
		_, err := s.handleAsk(context.Background(), mcp.CallToolRequest{}, AskArgs{Question: "Spec of model X200 lamp"})
		assert.ErrorIs(t, err, domain.ErrNodeExecution)
	})
}

func TestReadGraph(t *testing.T) {
	s := newServer(t, testutils.NewRig())

	t.Run("JSON", func(t *testing.T) {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = graphURI

		contents, err := s.readGraph(context.Background(), req)
		require.NoError(t, err)
		require.Len(t, contents, 1)

		text := contents[0].(mcp.TextResourceContents)
		assert.Equal(t, "application/json", text.MIMEType)

		var topo ragloop.Topology
		require.NoError(t, json.Unmarshal([]byte(text.Text), &topo))
		assert.Equal(t, 3, topo.Bounds[domain.LoopRewrite])
	})

	t.Run("Mermaid", func(t *testing.T) {
		req := mcp.ReadResourceRequest{}
		req.Params.URI = graphMermaidURI

		contents, err := s.readGraph(context.Background(), req)
		require.NoError(t, err)

		text := contents[0].(mcp.TextResourceContents)
		assert.True(t, strings.HasPrefix(text.Text, "graph TD\n"))
	})
}
