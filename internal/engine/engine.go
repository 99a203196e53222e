// Package engine executes workflow graphs: topological scheduling with
// bounded parallelism, per-node retries with linear backoff, a whole-run
// timeout, cooperative cancellation, and an append-only execution log.
//
// One Engine serves many concurrent runs. Runs share nothing mutable except
// the connector registry, which is read-only after startup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
	"github.com/calder-io/flume/internal/validator"
)

const defaultTimeoutSeconds = 3600

// Options tunes engine behavior.
type Options struct {
	// MaxParallel bounds how many nodes of one run execute concurrently.
	MaxParallel int
	// Limits bounds how many runs execute concurrently.
	Limits ConcurrencyLimits
}

// Engine validates and executes workflows.
type Engine struct {
	workflows   repository.WorkflowRepository
	executions  repository.ExecutionRepository
	registry    *connector.Registry
	validator   *validator.Validator
	limiter     *ConcurrencyLimiter
	runs        *runRegistry
	schemas     *SchemaCache
	maxParallel int
}

// New creates an Engine. The registry must be fully populated before the
// first run starts; the engine never registers connectors itself.
func New(workflows repository.WorkflowRepository, executions repository.ExecutionRepository, registry *connector.Registry, opts Options) *Engine {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 10
	}
	return &Engine{
		workflows:   workflows,
		executions:  executions,
		registry:    registry,
		validator:   validator.New(registry),
		limiter:     NewConcurrencyLimiter(opts.Limits),
		runs:        newRunRegistry(),
		schemas:     NewSchemaCache(5*time.Minute, 1000),
		maxParallel: opts.MaxParallel,
	}
}

// Registry returns the connector registry the engine executes against.
func (e *Engine) Registry() *connector.Registry { return e.registry }

// Limiter exposes run-level concurrency statistics.
func (e *Engine) Limiter() *ConcurrencyLimiter { return e.limiter }

// InvalidateSchemas drops cached introspection results for a workflow. Call
// after any graph edit.
func (e *Engine) InvalidateSchemas(workflowID string) {
	e.schemas.InvalidateWorkflow(workflowID)
}

// ValidateWorkflow re-runs the static check against the workflow's current
// graph. No side effects; safe to call on an active workflow at any time.
func (e *Engine) ValidateWorkflow(ctx context.Context, workflowID string) (*flume.ValidationResult, error) {
	snap, err := e.workflows.Snapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, flume.ErrNotFound)
		}
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	return e.validator.Validate(snap), nil
}

// StartExecution captures a frozen graph snapshot, validates it, creates the
// execution record, and launches the run goroutine. The execution id is
// returned immediately; progress is observable through GetExecution.
//
// An invalid graph still produces an execution record (already failed, with
// the findings as its error message) alongside the returned ValidationError.
func (e *Engine) StartExecution(ctx context.Context, workflowID string) (*flume.WorkflowExecution, error) {
	snap, err := e.workflows.Snapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", workflowID, flume.ErrNotFound)
		}
		return nil, fmt.Errorf("load workflow: %w", err)
	}
	wf := snap.Workflow

	if !wf.Active {
		return nil, flume.NewValidationError("", "workflow is not active")
	}

	ex := &flume.WorkflowExecution{
		ID:         flume.GenerateID("exec"),
		WorkflowID: workflowID,
		Status:     flume.StatusRunning,
		StartTime:  time.Now(),
		Logs:       []flume.ExecutionLog{},
	}

	result := e.validator.Validate(snap)
	if !result.Valid {
		errMsg := fmt.Sprintf("workflow validation failed: %s", strings.Join(result.Errors, "; "))
		ex.Status = flume.StatusFailed
		ex.ErrorMessage = errMsg
		now := time.Now()
		ex.EndTime = &now
		for _, msg := range result.Errors {
			ex.Logs = append(ex.Logs, flume.ExecutionLog{Timestamp: now, Level: flume.LogError, Message: msg})
		}
		if err := e.executions.Create(ctx, ex); err != nil {
			slog.Error("create failed-validation execution", "workflow_id", workflowID, "err", err)
		}
		return ex, flume.NewValidationError("", errMsg)
	}

	if err := e.executions.Create(ctx, ex); err != nil {
		return nil, fmt.Errorf("create execution record: %w", err)
	}

	timeout := wf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	runCtx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)

	rlog := newRunLog(ex.ID, e.executions)
	e.runs.register(ex.ID, cancel, rlog)

	for _, warning := range result.Warnings {
		rlog.warn(warning)
	}

	go e.runWorkflow(runCtx, cancel, snap, ex.ID, rlog)

	return ex, nil
}

// CancelExecution requests cancellation of a running execution. The status
// transitions to cancelled; in-flight connectors are signaled through their
// context and any late output is discarded. Cancelling a terminal execution
// returns an InvalidStateError.
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	ex, err := e.executions.Get(ctx, executionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("execution %s: %w", executionID, flume.ErrNotFound)
		}
		return err
	}
	if ex.Status.Terminal() {
		return &flume.InvalidStateError{ExecutionID: executionID, Status: ex.Status}
	}

	h, ok := e.runs.get(executionID)
	if !ok {
		// no live run in this process (e.g. restart with a stale record):
		// finalize the record directly
		now := time.Now()
		ex.Status = flume.StatusCancelled
		ex.ErrorMessage = (&flume.CancelledError{}).Error()
		ex.EndTime = &now
		ex.Duration = now.Sub(ex.StartTime).Milliseconds()
		return e.executions.Update(ctx, ex)
	}

	h.cancel()
	return nil
}

// GetExecution returns the execution record, overlaying live logs while the
// run is still in flight.
func (e *Engine) GetExecution(ctx context.Context, executionID string) (*flume.WorkflowExecution, error) {
	ex, err := e.executions.Get(ctx, executionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("execution %s: %w", executionID, flume.ErrNotFound)
		}
		return nil, err
	}
	if h, ok := e.runs.get(executionID); ok && !ex.Status.Terminal() {
		ex.Logs = h.log.snapshot()
	}
	return ex, nil
}

// ListExecutions returns the run history for a workflow, newest first.
func (e *Engine) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*flume.WorkflowExecution, int, error) {
	return e.executions.ListByWorkflow(ctx, workflowID, limit, offset)
}
