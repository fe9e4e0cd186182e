package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection refused")

	nodeErr := fmt.Errorf("run failed: %w", &NodeExecutionError{Node: string(NodeRetrieve), Cause: cause})
	assert.ErrorIs(t, nodeErr, ErrNodeExecution)
	assert.ErrorIs(t, nodeErr, cause)
	assert.Contains(t, nodeErr.Error(), "retrieve")

	var target *NodeExecutionError
	assert.True(t, errors.As(nodeErr, &target))
	assert.Equal(t, "retrieve", target.Node)

	cfgErr := UnknownLabel(string(RouterRouteQuestion), "web_search", RouteQuestionLabels)
	assert.ErrorIs(t, cfgErr, ErrConfiguration)
	assert.Contains(t, cfgErr.Error(), "web_search")
	assert.NotErrorIs(t, cfgErr, ErrNodeExecution)

	bound := &LoopBoundExceededError{Edge: LoopRewrite, Count: 4, Bound: 3}
	assert.ErrorIs(t, bound, ErrLoopBoundExceeded)

	cancelled := &CancelledError{Node: NodeGenerate, Cause: context.Canceled}
	assert.ErrorIs(t, cancelled, ErrCancelled)
	assert.ErrorIs(t, cancelled, context.Canceled)
}

func TestLabelSet_Contains(t *testing.T) {
	assert.True(t, RouteQuestionLabels.Contains(LabelVectorstore))
	assert.False(t, RouteQuestionLabels.Contains("vector_store"))
	assert.False(t, GradeGenerationLabels.Contains("not supported"))
}

func TestLifecycleHooks_Merge(t *testing.T) {
	var calls []string
	a := LifecycleHooks{OnNodeEnter: func(context.Context, *NodeEvent) { calls = append(calls, "a") }}
	b := LifecycleHooks{
		OnNodeEnter: func(context.Context, *NodeEvent) { calls = append(calls, "b") },
		OnRunEnd:    func(context.Context, *RunEvent) { calls = append(calls, "end") },
	}

	merged := a.Merge(b)
	merged.OnNodeEnter(context.Background(), &NodeEvent{})
	merged.OnRunEnd(context.Background(), &RunEvent{})

	assert.Equal(t, []string{"a", "b", "end"}, calls)
	assert.Nil(t, merged.OnRoute)
}
