// Package repository abstracts persistence for workflows and executions. The
// engine depends on these interfaces only; in-memory implementations back
// tests and single-process deployments, the db package backs PostgreSQL.
package repository

import (
	"context"
	"errors"

	"github.com/calder-io/flume/internal/flume"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// WorkflowRepository stores workflow definitions and their graphs.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *flume.Workflow) error
	Get(ctx context.Context, id string) (*flume.Workflow, error)
	Update(ctx context.Context, wf *flume.Workflow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*flume.Workflow, error)

	// Snapshot returns the workflow plus its current nodes and connections
	// as one frozen view. The engine captures this at run start so edits
	// during a run never affect it.
	Snapshot(ctx context.Context, workflowID string) (*flume.GraphSnapshot, error)

	// ReplaceGraph atomically swaps the workflow's node and connection sets.
	ReplaceGraph(ctx context.Context, workflowID string, nodes []*flume.WorkflowNode, connections []*flume.WorkflowConnection) error
}

// ExecutionRepository stores run records. Executions are append-only once
// created: Update is only legal while the run is non-terminal.
type ExecutionRepository interface {
	Create(ctx context.Context, ex *flume.WorkflowExecution) error
	Get(ctx context.Context, id string) (*flume.WorkflowExecution, error)
	Update(ctx context.Context, ex *flume.WorkflowExecution) error
	ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*flume.WorkflowExecution, int, error)
}
