package engine

import (
	"context"
	"sync"
)

// runHandle tracks one in-flight execution: its cancel function and live log
// writer. Handles exist only while the run is non-terminal.
type runHandle struct {
	executionID string
	cancel      context.CancelFunc
	log         *runLog
}

// runRegistry tracks active executions so cancellation and live log queries
// can reach them. Terminal runs are unregistered.
type runRegistry struct {
	mu      sync.RWMutex
	handles map[string]*runHandle
}

func newRunRegistry() *runRegistry {
	return &runRegistry{handles: make(map[string]*runHandle)}
}

func (r *runRegistry) register(executionID string, cancel context.CancelFunc, log *runLog) *runHandle {
	h := &runHandle{executionID: executionID, cancel: cancel, log: log}
	r.mu.Lock()
	r.handles[executionID] = h
	r.mu.Unlock()
	return h
}

func (r *runRegistry) get(executionID string) (*runHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[executionID]
	return h, ok
}

func (r *runRegistry) unregister(executionID string) {
	r.mu.Lock()
	delete(r.handles, executionID)
	r.mu.Unlock()
}
