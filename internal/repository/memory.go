package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/calder-io/flume/internal/flume"
)

// MemoryWorkflowRepository stores workflows and their graphs in memory.
type MemoryWorkflowRepository struct {
	mu          sync.RWMutex
	workflows   map[string]*flume.Workflow
	nodes       map[string][]*flume.WorkflowNode       // by workflow id
	connections map[string][]*flume.WorkflowConnection // by workflow id
}

func NewMemoryWorkflowRepository() *MemoryWorkflowRepository {
	return &MemoryWorkflowRepository{
		workflows:   make(map[string]*flume.Workflow),
		nodes:       make(map[string][]*flume.WorkflowNode),
		connections: make(map[string][]*flume.WorkflowConnection),
	}
}

func (r *MemoryWorkflowRepository) Create(_ context.Context, wf *flume.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if wf.ID == "" {
		wf.ID = flume.GenerateID("wf")
	}
	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	r.workflows[wf.ID] = wf
	return nil
}

func (r *MemoryWorkflowRepository) Get(_ context.Context, id string) (*flume.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return wf, nil
}

func (r *MemoryWorkflowRepository) Update(_ context.Context, wf *flume.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	wf.UpdatedAt = time.Now()
	r.workflows[wf.ID] = wf
	return nil
}

func (r *MemoryWorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(r.workflows, id)
	delete(r.nodes, id)
	delete(r.connections, id)
	return nil
}

func (r *MemoryWorkflowRepository) List(_ context.Context) ([]*flume.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*flume.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Snapshot deep-copies the workflow graph so a running execution is isolated
// from concurrent edits.
func (r *MemoryWorkflowRepository) Snapshot(_ context.Context, workflowID string) (*flume.GraphSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[workflowID]
	if !ok {
		return nil, ErrNotFound
	}

	snap := &flume.GraphSnapshot{
		Workflow:    copyValue(wf),
		Nodes:       make([]*flume.WorkflowNode, 0, len(r.nodes[workflowID])),
		Connections: make([]*flume.WorkflowConnection, 0, len(r.connections[workflowID])),
	}
	for _, n := range r.nodes[workflowID] {
		snap.Nodes = append(snap.Nodes, copyValue(n))
	}
	for _, c := range r.connections[workflowID] {
		snap.Connections = append(snap.Connections, copyValue(c))
	}
	return snap, nil
}

func (r *MemoryWorkflowRepository) ReplaceGraph(_ context.Context, workflowID string, nodes []*flume.WorkflowNode, connections []*flume.WorkflowConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[workflowID]; !ok {
		return ErrNotFound
	}
	for _, n := range nodes {
		n.WorkflowID = workflowID
		if n.ID == "" {
			n.ID = flume.GenerateID("node")
		}
	}
	for _, c := range connections {
		c.WorkflowID = workflowID
		if c.ID == "" {
			c.ID = flume.GenerateID("conn")
		}
	}
	r.nodes[workflowID] = nodes
	r.connections[workflowID] = connections
	return nil
}

// copyValue round-trips v through JSON. Graph and execution records are plain
// data, so this is a safe deep copy.
func copyValue[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		out := *v
		return &out
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		out = *v
	}
	return &out
}

const maxExecutionRecords = 1000

// MemoryExecutionRepository stores execution records in memory with FIFO
// eviction once maxExecutionRecords is reached.
type MemoryExecutionRepository struct {
	mu      sync.RWMutex
	records map[string]*flume.WorkflowExecution
	order   []string // insertion order for FIFO eviction
}

func NewMemoryExecutionRepository() *MemoryExecutionRepository {
	return &MemoryExecutionRepository{
		records: make(map[string]*flume.WorkflowExecution),
	}
}

func (r *MemoryExecutionRepository) Create(_ context.Context, ex *flume.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) >= maxExecutionRecords {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.records, oldest)
	}

	r.records[ex.ID] = copyValue(ex)
	r.order = append(r.order, ex.ID)
	return nil
}

func (r *MemoryExecutionRepository) Get(_ context.Context, id string) (*flume.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyValue(ex), nil
}

func (r *MemoryExecutionRepository) Update(_ context.Context, ex *flume.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[ex.ID]; !ok {
		return ErrNotFound
	}
	r.records[ex.ID] = copyValue(ex)
	return nil
}

func (r *MemoryExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit, offset int) ([]*flume.WorkflowExecution, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*flume.WorkflowExecution
	for _, ex := range r.records {
		if ex.WorkflowID == workflowID {
			filtered = append(filtered, ex)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartTime.After(filtered[j].StartTime)
	})

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	out := make([]*flume.WorkflowExecution, 0, end-offset)
	for _, ex := range filtered[offset:end] {
		out = append(out, copyValue(ex))
	}
	return out, total, nil
}
