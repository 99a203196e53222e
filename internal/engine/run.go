package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/graph"
	"github.com/calder-io/flume/internal/schema"
	"github.com/calder-io/flume/internal/validator"
)

// runWorkflow drives one execution to a terminal state. It owns the run's
// context (timeout) and is the only writer of the final execution record.
func (e *Engine) runWorkflow(ctx context.Context, cancel context.CancelFunc, snap *flume.GraphSnapshot, executionID string, rlog *runLog) {
	defer cancel()
	defer e.runs.unregister(executionID)

	wf := snap.Workflow
	start := time.Now()

	if err := e.limiter.Acquire(ctx, wf.ID); err != nil {
		e.finalize(wf, executionID, start, nil, err, rlog)
		return
	}
	defer e.limiter.Release(wf.ID)

	rlog.info(fmt.Sprintf("Starting execution of workflow %s (%d nodes, %d connections)", wf.Name, len(snap.Nodes), len(snap.Connections)))

	g, err := graph.Build(snap.Nodes, snap.Connections)
	if err != nil {
		e.finalize(wf, executionID, start, nil, err, rlog)
		return
	}

	results, err := e.executeGraph(ctx, g, wf, rlog)
	e.finalize(wf, executionID, start, results, err, rlog)
}

// finalize resolves the terminal status, writes the record once, and logs the
// outcome. Timeout and cancellation are discriminated through the error chain
// rather than by racing on ctx.
func (e *Engine) finalize(wf *flume.Workflow, executionID string, start time.Time, results map[string]*flume.DataEnvelope, runErr error, rlog *runLog) {
	ctx := context.Background()

	status := flume.StatusCompleted
	errMsg := ""
	switch {
	case runErr == nil:
		rlog.info("Workflow execution completed successfully")
	case errors.Is(runErr, context.DeadlineExceeded):
		timeout := wf.Timeout
		if timeout <= 0 {
			timeout = defaultTimeoutSeconds
		}
		status = flume.StatusFailed
		errMsg = flume.NewTimeoutError(timeout).Error()
		rlog.error(errMsg)
	case errors.Is(runErr, context.Canceled):
		status = flume.StatusCancelled
		errMsg = (&flume.CancelledError{}).Error()
		rlog.warn(errMsg)
	default:
		status = flume.StatusFailed
		errMsg = runErr.Error()
		rlog.error(fmt.Sprintf("Workflow execution failed: %s", errMsg))
	}

	ex, err := e.executions.Get(ctx, executionID)
	if err != nil {
		slog.Error("load execution for finalize", "execution_id", executionID, "err", err)
		return
	}
	if ex.Status.Terminal() {
		// cancelled out from under us (e.g. CancelExecution finalized a
		// record it thought was orphaned); keep the first terminal state
		return
	}

	now := time.Now()
	ex.Status = status
	ex.ErrorMessage = errMsg
	ex.EndTime = &now
	ex.Duration = now.Sub(start).Milliseconds()
	ex.Logs = rlog.snapshot()
	if status == flume.StatusCompleted {
		ex.Results = results
		for _, env := range results {
			if env == nil {
				continue
			}
			if id, ok := env.Metadata.Custom["file_id"].(string); ok && id != "" {
				ex.ResultFileIDs = append(ex.ResultFileIDs, id)
			}
		}
	}

	if err := e.executions.Update(ctx, ex); err != nil {
		slog.Error("persist execution result", "execution_id", executionID, "err", err)
	}
}

// executeGraph runs every node in dependency order, at most maxParallel at a
// time. Each node gets a goroutine that blocks on its predecessors' done
// channels; a done channel closes only on success, so a waiter that wakes up
// normally is guaranteed its inputs exist. The first failure cancels the
// shared node context, which unblocks every remaining waiter.
func (e *Engine) executeGraph(ctx context.Context, g *graph.Graph, wf *flume.Workflow, rlog *runLog) (map[string]*flume.DataEnvelope, error) {
	if cyclic := g.DetectCycles(); len(cyclic) > 0 {
		return nil, fmt.Errorf("workflow contains a cycle involving nodes %v", cyclic)
	}
	order := g.TopologicalOrder()

	grp, nodeCtx := errgroup.WithContext(ctx)

	done := make(map[string]chan struct{}, len(order))
	for _, id := range order {
		done[id] = make(chan struct{})
	}

	var (
		mu        sync.Mutex
		envelopes = make(map[string]*flume.DataEnvelope, len(order))
	)
	sem := make(chan struct{}, e.maxParallel)

	for _, nodeID := range order {
		node := g.Node(nodeID)
		grp.Go(func() error {
			for _, pred := range g.Predecessors(node.ID) {
				select {
				case <-done[pred]:
				case <-nodeCtx.Done():
					return nil
				}
			}

			select {
			case sem <- struct{}{}:
			case <-nodeCtx.Done():
				return nil
			}
			defer func() { <-sem }()

			preds := g.Predecessors(node.ID)
			mu.Lock()
			inputs := make([]*flume.DataEnvelope, 0, len(preds))
			for _, pred := range preds {
				inputs = append(inputs, envelopes[pred])
			}
			mu.Unlock()

			env, err := e.executeNodeWithRetry(nodeCtx, wf, node, inputs, rlog)
			if err != nil {
				// when a sibling already failed and the context died under
				// this node, only a real context error is worth reporting
				if nodeCtx.Err() != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}

			env.Metadata.Sources = preds
			mu.Lock()
			envelopes[node.ID] = env
			mu.Unlock()
			close(done[node.ID])
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make(map[string]*flume.DataEnvelope)
	for _, id := range g.Destinations() {
		mu.Lock()
		env := envelopes[id]
		mu.Unlock()
		if env != nil {
			results[id] = env
		}
	}
	return results, nil
}

// executeNodeWithRetry attempts a node up to 1+MaxRetries times with linear
// backoff: the wait before attempt n+1 is n * RetryDelay seconds. Context
// errors are never retried.
func (e *Engine) executeNodeWithRetry(ctx context.Context, wf *flume.Workflow, node *flume.WorkflowNode, inputs []*flume.DataEnvelope, rlog *runLog) (*flume.DataEnvelope, error) {
	maxRetries := wf.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := wf.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 1
	}
	attempts := maxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			delay := time.Duration((attempt-1)*retryDelay) * time.Second
			rlog.nodeWarn(node, fmt.Sprintf("Retrying node %s in %s (attempt %d/%d)", node.Label, delay, attempt, attempts))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		rlog.nodeInfo(node, fmt.Sprintf("Executing node %s (attempt %d/%d)", node.Label, attempt, attempts))
		env, err := e.executeNode(ctx, node, inputs, rlog)
		if err == nil {
			return env, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
		rlog.nodeWarn(node, fmt.Sprintf("Node %s attempt %d/%d failed: %s", node.Label, attempt, attempts, err))
	}

	err := &flume.NodeExecutionError{
		NodeID:  node.ID,
		Message: fmt.Sprintf("node %s failed after %d attempts", node.Label, attempts),
		Err:     lastErr,
	}
	rlog.nodeError(node, err.Error())
	return nil, err
}

// executeNode runs one connector instance: instantiate, configure, check the
// incoming schema, execute, stamp metadata.
func (e *Engine) executeNode(ctx context.Context, node *flume.WorkflowNode, inputs []*flume.DataEnvelope, rlog *runLog) (*flume.DataEnvelope, error) {
	conn, err := e.registry.New(node.NodeType)
	if err != nil {
		return nil, &flume.NodeExecutionError{NodeID: node.ID, Message: "failed to create connector instance", Err: err}
	}
	if err := conn.Configure(node.Config); err != nil {
		return nil, &flume.NodeExecutionError{NodeID: node.ID, Message: "failed to configure connector", Err: err}
	}

	// run-time schema check is advisory: the data is already here, so a
	// mismatch is logged, never fatal
	if consumer, ok := conn.(validator.RequiresInput); ok && len(inputs) > 0 {
		if want := consumer.InputSchema(); want != nil {
			got := mergeInputSchemas(inputs)
			if compat := schema.Check(got, want); !compat.OK {
				for _, msg := range compat.Problems() {
					rlog.nodeWarn(node, fmt.Sprintf("Schema mismatch at node %s: %s", node.Label, msg))
				}
			}
		}
	}

	start := time.Now()
	env, err := conn.Execute(ctx, inputs)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &flume.NodeExecutionError{NodeID: node.ID, Message: "connector execution failed", Err: err}
	}
	if env == nil {
		env = flume.NewEnvelope(nil)
	}

	env.Metadata.NodeID = node.ID
	env.Metadata.NodeType = node.NodeType
	env.Metadata.Duration = elapsed
	if env.Metadata.RecordCount == 0 {
		env.Metadata.RecordCount = len(env.Records)
	}
	if len(env.Metadata.Schema.Fields) == 0 && len(env.Records) > 0 {
		env.Metadata.Schema = schema.Infer(env.Records)
	}
	if len(env.Metadata.Schema.SourceNodes) == 0 && len(env.Metadata.Schema.Fields) > 0 {
		env.Metadata.Schema.SourceNodes = []string{node.ID}
	}
	for i := range env.Metadata.Schema.Fields {
		if env.Metadata.Schema.Fields[i].SourceNode == "" {
			env.Metadata.Schema.Fields[i].SourceNode = node.ID
		}
	}

	rlog.nodeInfo(node, fmt.Sprintf("Node %s completed: %d records in %s", node.Label, len(env.Records), elapsed.Round(time.Millisecond)))
	return env, nil
}

// mergeInputSchemas combines the schemas of the upstream envelopes so the
// consumer's declared input can be checked against what actually arrived.
func mergeInputSchemas(inputs []*flume.DataEnvelope) *flume.DataSchema {
	schemas := make([]flume.DataSchema, 0, len(inputs))
	labels := make(map[string]string)
	for _, in := range inputs {
		if in == nil {
			continue
		}
		s := in.Metadata.Schema
		if len(s.Fields) == 0 && len(in.Records) > 0 {
			s = schema.Infer(in.Records)
		}
		if len(s.Fields) > 0 {
			schemas = append(schemas, s)
			labels[in.Metadata.NodeID] = in.Metadata.NodeID
		}
	}
	if len(schemas) == 0 {
		return nil
	}
	merged := schema.Merge(schemas, labels)
	return &merged
}
