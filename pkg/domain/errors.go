package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNodeExecution     = errors.New("node execution failed")
	ErrLoopBoundExceeded = errors.New("loop bound exceeded")
	ErrCancelled         = errors.New("run cancelled")

	// ErrTraceNotFound is returned by trace stores for unknown run ids.
	ErrTraceNotFound = errors.New("trace not found")
)

// ConfigurationError reports a missing run input, an incomplete engine setup, or a
// classifier returning a label outside its closed set.
type ConfigurationError struct {
	// Where names the component that detected the problem (a router, "run", "engine").
	Where  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error at '%s': %s", e.Where, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnknownLabel builds the ConfigurationError raised when a classifier yields a
// label outside its closed set. where names the decision point or grading node.
func UnknownLabel(where string, label string, allowed LabelSet) *ConfigurationError {
	return &ConfigurationError{
		Where:  where,
		Reason: fmt.Sprintf("label %q is not one of %v", label, []string(allowed)),
	}
}

// NodeExecutionError reports a collaborator failure inside a node or a router:
// timeout, transport failure, or malformed structured output. It is fatal to the run.
type NodeExecutionError struct {
	Node  string
	Cause error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node '%s' failed: %v", e.Node, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

func (e *NodeExecutionError) Is(target error) bool {
	return target == ErrNodeExecution
}

// LoopBoundExceededError describes a loop edge that hit its traversal bound.
// The engine reports it as a bounded outcome, not as a failure.
type LoopBoundExceededError struct {
	Edge  LoopID `json:"edge"`
	Count int    `json:"count"`
	Bound int    `json:"bound"`
}

func (e *LoopBoundExceededError) Error() string {
	return fmt.Sprintf("loop '%s' exceeded its bound: %d traversals (bound %d)", e.Edge, e.Count, e.Bound)
}

func (e *LoopBoundExceededError) Is(target error) bool {
	return target == ErrLoopBoundExceeded
}

// CancelledError reports that the caller cancelled the run. Node is the node that
// was about to run (or running) when cancellation was observed.
type CancelledError struct {
	Node  NodeID
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("run cancelled before node '%s': %v", e.Node, e.Cause)
}

func (e *CancelledError) Unwrap() error {
	return e.Cause
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}
