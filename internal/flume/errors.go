package flume

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing workflow, node, or execution.
var ErrNotFound = errors.New("not found")

// ValidationError means the graph cannot run as specified. It is surfaced
// before any run starts and never retried.
type ValidationError struct {
	NodeID  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("validation failed for node %s: %s", e.NodeID, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError constructs a ValidationError scoped to a node. nodeID
// may be empty for graph-level findings.
func NewValidationError(nodeID, message string) *ValidationError {
	return &ValidationError{NodeID: nodeID, Message: message}
}

// ConnectorConfigError means a node's config failed the connector's own
// schema. Treated as a validation failure: never retried.
type ConnectorConfigError struct {
	ValidationError
	Connector string
}

func NewConnectorConfigError(nodeID, connector, message string) *ConnectorConfigError {
	return &ConnectorConfigError{
		ValidationError: ValidationError{NodeID: nodeID, Message: message},
		Connector:       connector,
	}
}

// NodeExecutionError wraps a failure raised inside a connector's Execute
// call. Retried per policy, then escalated to run failure.
type NodeExecutionError struct {
	NodeID  string
	Message string
	Err     error
}

func (e *NodeExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Message, e.Err)
	}
	return fmt.Sprintf("node %s: %s", e.NodeID, e.Message)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

func NewNodeExecutionError(nodeID, message string, err error) *NodeExecutionError {
	return &NodeExecutionError{NodeID: nodeID, Message: message, Err: err}
}

// TimeoutError reports that the whole-run ceiling elapsed.
type TimeoutError struct {
	Seconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("workflow execution timed out after %d seconds", e.Seconds)
}

func NewTimeoutError(seconds int) *TimeoutError {
	return &TimeoutError{Seconds: seconds}
}

// CancelledError reports a user-initiated cancellation. Not a failure.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "workflow execution was cancelled" }

// InvalidStateError reports an operation against a run in the wrong state,
// such as cancelling an already-terminal execution.
type InvalidStateError struct {
	ExecutionID string
	Status      ExecutionStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("execution %s is already %s", e.ExecutionID, e.Status)
}
