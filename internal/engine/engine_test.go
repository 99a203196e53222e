package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calder-io/flume/internal/connector"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
)

// fakeConn delegates Execute to a closure so tests can script node behavior.
type fakeConn struct {
	connector.Base
	execute func(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error)
}

func (f *fakeConn) Execute(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	return f.execute(ctx, inputs)
}

func register(r *connector.Registry, id string, kind flume.NodeRole, execute func(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error)) {
	r.Register(id, func() connector.Connector {
		return &fakeConn{
			Base:    connector.Base{ConnID: id, ConnName: id, ConnKind: kind},
			execute: execute,
		}
	})
}

func emitRecords(n int) func(ctx context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	return func(_ context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		records := make([]map[string]any, n)
		for i := range records {
			records[i] = map[string]any{"i": i}
		}
		return flume.NewEnvelope(records), nil
	}
}

// customInt reads a numeric receipt value from a stored result. Envelopes
// round-trip through the repository's JSON deep copy, so a count stored as
// int comes back as float64.
func customInt(t *testing.T, env *flume.DataEnvelope, key string) int {
	t.Helper()
	switch v := env.Metadata.Custom[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		t.Fatalf("%s = %v (%T), want a number", key, v, v)
		return 0
	}
}

func passthrough(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
	var records []map[string]any
	for _, in := range inputs {
		records = append(records, in.Records...)
	}
	return flume.NewEnvelope(records), nil
}

type testEnv struct {
	engine     *Engine
	workflows  repository.WorkflowRepository
	executions repository.ExecutionRepository
	registry   *connector.Registry
}

func newTestEnv(opts Options) *testEnv {
	reg := connector.NewRegistry()
	workflows := repository.NewMemoryWorkflowRepository()
	executions := repository.NewMemoryExecutionRepository()
	return &testEnv{
		engine:     New(workflows, executions, reg, opts),
		workflows:  workflows,
		executions: executions,
		registry:   reg,
	}
}

func (te *testEnv) seed(t *testing.T, wf *flume.Workflow, nodes []*flume.WorkflowNode, conns []*flume.WorkflowConnection) {
	t.Helper()
	ctx := context.Background()
	if wf.Name == "" {
		wf.Name = wf.ID
	}
	if err := te.workflows.Create(ctx, wf); err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	if err := te.workflows.ReplaceGraph(ctx, wf.ID, nodes, conns); err != nil {
		t.Fatalf("replace graph: %v", err)
	}
}

func waitTerminal(t *testing.T, e *Engine, executionID string) *flume.WorkflowExecution {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		ex, err := e.GetExecution(context.Background(), executionID)
		if err != nil {
			t.Fatalf("get execution: %v", err)
		}
		if ex.Status.Terminal() {
			return ex
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("execution did not reach a terminal state")
	return nil
}

func wnode(id string, role flume.NodeRole, nodeType string) *flume.WorkflowNode {
	return &flume.WorkflowNode{ID: id, Role: role, NodeType: nodeType, Label: id}
}

func wedge(id, from, to string) *flume.WorkflowConnection {
	return &flume.WorkflowConnection{ID: id, SourceID: from, TargetID: to}
}

func TestStartExecutionCompletes(t *testing.T) {
	te := newTestEnv(Options{})
	var destInputs atomic.Int32
	register(te.registry, "src", flume.RoleSource, emitRecords(3))
	register(te.registry, "double", flume.RoleProcessor, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		var out []map[string]any
		for _, in := range inputs {
			for _, rec := range in.Records {
				rec["i"] = rec["i"].(int) * 2
				out = append(out, rec)
			}
		}
		return flume.NewEnvelope(out), nil
	})
	register(te.registry, "sink", flume.RoleDestination, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		total := 0
		for _, in := range inputs {
			destInputs.Add(1)
			total += len(in.Records)
		}
		return flume.Receipt(map[string]any{"records_seen": total}), nil
	})

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleProcessor, "double"),
			wnode("c", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b"), wedge("e2", "b", "c")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ex.Status != flume.StatusRunning {
		t.Fatalf("initial status = %s", ex.Status)
	}

	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusCompleted {
		t.Fatalf("status = %s, error = %s", final.Status, final.ErrorMessage)
	}
	if final.EndTime == nil || final.Duration < 0 {
		t.Fatal("terminal record must carry end time and duration")
	}
	if len(final.Logs) == 0 {
		t.Fatal("expected execution logs")
	}
	receipt, ok := final.Results["c"]
	if !ok {
		t.Fatalf("results = %v", final.Results)
	}
	if got := customInt(t, receipt, "records_seen"); got != 3 {
		t.Fatalf("records_seen = %d", got)
	}
	if got := destInputs.Load(); got != 1 {
		t.Fatalf("destination saw %d input envelopes, want 1", got)
	}
}

func TestStartExecutionInactiveWorkflow(t *testing.T) {
	te := newTestEnv(Options{})
	register(te.registry, "src", flume.RoleSource, emitRecords(1))
	register(te.registry, "sink", flume.RoleDestination, passthrough)
	te.seed(t, &flume.Workflow{ID: "wf1", Active: false},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b")},
	)

	_, err := te.engine.StartExecution(context.Background(), "wf1")
	var verr *flume.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestStartExecutionUnknownWorkflow(t *testing.T) {
	te := newTestEnv(Options{})
	_, err := te.engine.StartExecution(context.Background(), "missing")
	if !errors.Is(err, flume.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// An invalid graph must produce an already-failed execution record carrying
// the findings, alongside the validation error.
func TestStartExecutionInvalidGraph(t *testing.T) {
	te := newTestEnv(Options{})
	register(te.registry, "src", flume.RoleSource, emitRecords(1))
	register(te.registry, "proc", flume.RoleProcessor, passthrough)
	register(te.registry, "sink", flume.RoleDestination, passthrough)
	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleProcessor, "proc"),
			wnode("c", flume.RoleProcessor, "proc"),
			wnode("d", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{
			wedge("e1", "a", "b"),
			wedge("e2", "b", "c"),
			wedge("e3", "c", "b"),
			wedge("e4", "c", "d"),
		},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	var verr *flume.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if ex == nil {
		t.Fatal("expected an execution record for the failed validation")
	}
	if ex.Status != flume.StatusFailed {
		t.Fatalf("status = %s", ex.Status)
	}
	if !strings.HasPrefix(ex.ErrorMessage, "workflow validation failed:") {
		t.Fatalf("error message = %q", ex.ErrorMessage)
	}

	stored, err := te.engine.GetExecution(context.Background(), ex.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Status != flume.StatusFailed || len(stored.Logs) == 0 {
		t.Fatalf("stored = %+v", stored)
	}
}

// A node that keeps failing is retried MaxRetries times and then fails the
// run; its downstream nodes never execute.
func TestNodeFailureRetriesThenFailsRun(t *testing.T) {
	te := newTestEnv(Options{})
	var attempts, downstream atomic.Int32
	register(te.registry, "src", flume.RoleSource, emitRecords(1))
	register(te.registry, "broken", flume.RoleProcessor, func(_ context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		attempts.Add(1)
		return nil, fmt.Errorf("upstream API unavailable")
	})
	register(te.registry, "sink", flume.RoleDestination, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		downstream.Add(1)
		return passthrough(context.Background(), inputs)
	})

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true, MaxRetries: 2, RetryDelay: 1},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleProcessor, "broken"),
			wnode("c", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b"), wedge("e2", "b", "c")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitTerminal(t, te.engine, ex.ID)

	if final.Status != flume.StatusFailed {
		t.Fatalf("status = %s", final.Status)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	if downstream.Load() != 0 {
		t.Fatal("downstream node must not execute after an upstream failure")
	}
	if !strings.Contains(final.ErrorMessage, "failed after 3 attempts") {
		t.Fatalf("error message = %q", final.ErrorMessage)
	}
	if len(final.Results) != 0 {
		t.Fatalf("failed run must not publish results, got %v", final.Results)
	}
}

// Both branches of a diamond deliver their envelope to the join node.
func TestDiamondJoin(t *testing.T) {
	te := newTestEnv(Options{})
	var joinInputs atomic.Int32
	register(te.registry, "src", flume.RoleSource, emitRecords(2))
	register(te.registry, "proc", flume.RoleProcessor, passthrough)
	register(te.registry, "join_sink", flume.RoleDestination, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		joinInputs.Store(int32(len(inputs)))
		total := 0
		for _, in := range inputs {
			total += len(in.Records)
		}
		return flume.Receipt(map[string]any{"total": total}), nil
	})

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("src", flume.RoleSource, "src"),
			wnode("left", flume.RoleProcessor, "proc"),
			wnode("right", flume.RoleProcessor, "proc"),
			wnode("out", flume.RoleDestination, "join_sink"),
		},
		[]*flume.WorkflowConnection{
			wedge("e1", "src", "left"),
			wedge("e2", "src", "right"),
			wedge("e3", "left", "out"),
			wedge("e4", "right", "out"),
		},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusCompleted {
		t.Fatalf("status = %s, error = %s", final.Status, final.ErrorMessage)
	}
	if got := joinInputs.Load(); got != 2 {
		t.Fatalf("join received %d envelopes, want 2", got)
	}
	if got := customInt(t, final.Results["out"], "total"); got != 4 {
		t.Fatalf("total = %d", got)
	}
}

func TestCancelExecution(t *testing.T) {
	te := newTestEnv(Options{})
	started := make(chan struct{})
	var downstream atomic.Int32
	register(te.registry, "src", flume.RoleSource, emitRecords(1))
	register(te.registry, "slow", flume.RoleProcessor, func(ctx context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	register(te.registry, "sink", flume.RoleDestination, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		downstream.Add(1)
		return passthrough(context.Background(), inputs)
	})

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleProcessor, "slow"),
			wnode("c", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b"), wedge("e2", "b", "c")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	if err := te.engine.CancelExecution(context.Background(), ex.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusCancelled {
		t.Fatalf("status = %s", final.Status)
	}
	if downstream.Load() != 0 {
		t.Fatal("downstream node must not run after cancellation")
	}

	// a second cancel hits a terminal record
	err = te.engine.CancelExecution(context.Background(), ex.ID)
	var stateErr *flume.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("want InvalidStateError, got %v", err)
	}
}

// Cancelling while the upstream node is still finishing means the downstream
// node never starts: its launch is gated on the run context, so the log must
// not carry a start entry for it.
func TestCancelBeforeDownstreamStarts(t *testing.T) {
	te := newTestEnv(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var downstream atomic.Int32
	register(te.registry, "gated_src", flume.RoleSource, func(_ context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		close(started)
		<-release
		return flume.NewEnvelope([]map[string]any{{"i": 0}}), nil
	})
	register(te.registry, "sink", flume.RoleDestination, func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		downstream.Add(1)
		return passthrough(context.Background(), inputs)
	})

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "gated_src"),
			wnode("b", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	// cancel lands before a returns, so it is settled before b could launch
	if err := te.engine.CancelExecution(context.Background(), ex.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	close(release)

	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusCancelled {
		t.Fatalf("status = %s", final.Status)
	}
	if downstream.Load() != 0 {
		t.Fatal("downstream connector must not run after cancellation")
	}
	var sawA bool
	for _, entry := range final.Logs {
		if strings.Contains(entry.Message, "Executing node b") {
			t.Fatalf("log carries a start entry for the downstream node: %q", entry.Message)
		}
		if strings.Contains(entry.Message, "Node a completed") {
			sawA = true
		}
	}
	if !sawA {
		t.Fatal("upstream node should have completed before cancellation settled")
	}
}

func TestRunTimeout(t *testing.T) {
	te := newTestEnv(Options{})
	register(te.registry, "src", flume.RoleSource, emitRecords(1))
	register(te.registry, "hang", flume.RoleProcessor, func(ctx context.Context, _ []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	register(te.registry, "sink", flume.RoleDestination, passthrough)

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true, Timeout: 1},
		[]*flume.WorkflowNode{
			wnode("a", flume.RoleSource, "src"),
			wnode("b", flume.RoleProcessor, "hang"),
			wnode("c", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "a", "b"), wedge("e2", "b", "c")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusFailed {
		t.Fatalf("status = %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "timed out") {
		t.Fatalf("error message = %q", final.ErrorMessage)
	}
}

// With MaxParallel 1 the two source branches must never overlap.
func TestMaxParallelBoundsNodeConcurrency(t *testing.T) {
	te := newTestEnv(Options{MaxParallel: 1})
	var current, peak atomic.Int32
	track := func(_ context.Context, inputs []*flume.DataEnvelope) (*flume.DataEnvelope, error) {
		cur := current.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return passthrough(context.Background(), inputs)
	}
	register(te.registry, "src", flume.RoleSource, track)
	register(te.registry, "sink", flume.RoleDestination, track)

	te.seed(t, &flume.Workflow{ID: "wf1", Active: true},
		[]*flume.WorkflowNode{
			wnode("s1", flume.RoleSource, "src"),
			wnode("s2", flume.RoleSource, "src"),
			wnode("out", flume.RoleDestination, "sink"),
		},
		[]*flume.WorkflowConnection{wedge("e1", "s1", "out"), wedge("e2", "s2", "out")},
	)

	ex, err := te.engine.StartExecution(context.Background(), "wf1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitTerminal(t, te.engine, ex.ID)
	if final.Status != flume.StatusCompleted {
		t.Fatalf("status = %s, error = %s", final.Status, final.ErrorMessage)
	}
	if got := peak.Load(); got > 1 {
		t.Fatalf("observed %d concurrent nodes, want at most 1", got)
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	te := newTestEnv(Options{})
	_, err := te.engine.GetExecution(context.Background(), "missing")
	if !errors.Is(err, flume.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
