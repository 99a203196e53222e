package engine

import (
	"context"
	"sync"
	"sync/atomic"
)

// ConcurrencyLimits controls how many runs may execute simultaneously.
type ConcurrencyLimits struct {
	GlobalMax   int `json:"global_max" yaml:"global_max"`
	PerWorkflow int `json:"per_workflow" yaml:"per_workflow"`
}

// DefaultConcurrencyLimits returns sensible defaults.
func DefaultConcurrencyLimits() ConcurrencyLimits {
	return ConcurrencyLimits{GlobalMax: 10, PerWorkflow: 3}
}

// ConcurrencyLimiter bounds concurrent runs with channel-based counting
// semaphores at two levels: global and per-workflow.
type ConcurrencyLimiter struct {
	global      chan struct{}
	perWorkflow map[string]chan struct{}
	mu          sync.Mutex
	limits      ConcurrencyLimits
	activeCount atomic.Int64
}

// NewConcurrencyLimiter creates a limiter with the given limits.
func NewConcurrencyLimiter(limits ConcurrencyLimits) *ConcurrencyLimiter {
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = 10
	}
	if limits.PerWorkflow <= 0 {
		limits.PerWorkflow = 3
	}
	return &ConcurrencyLimiter{
		global:      make(chan struct{}, limits.GlobalMax),
		perWorkflow: make(map[string]chan struct{}),
		limits:      limits,
	}
}

// Acquire blocks until both global and per-workflow slots are available, or
// returns the context error.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, workflowID string) error {
	select {
	case c.global <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	wfCh := c.workflowChan(workflowID)
	select {
	case wfCh <- struct{}{}:
		c.activeCount.Add(1)
		return nil
	case <-ctx.Done():
		<-c.global
		return ctx.Err()
	}
}

// Release returns both slots.
func (c *ConcurrencyLimiter) Release(workflowID string) {
	c.activeCount.Add(-1)

	c.mu.Lock()
	if ch, ok := c.perWorkflow[workflowID]; ok {
		select {
		case <-ch:
		default:
		}
	}
	c.mu.Unlock()

	select {
	case <-c.global:
	default:
	}
}

// ConcurrencyStats reports current usage.
type ConcurrencyStats struct {
	ActiveRuns  int `json:"active_runs"`
	GlobalMax   int `json:"global_max"`
	PerWorkflow int `json:"per_workflow"`
}

// Stats returns current concurrency statistics.
func (c *ConcurrencyLimiter) Stats() ConcurrencyStats {
	return ConcurrencyStats{
		ActiveRuns:  int(c.activeCount.Load()),
		GlobalMax:   c.limits.GlobalMax,
		PerWorkflow: c.limits.PerWorkflow,
	}
}

func (c *ConcurrencyLimiter) workflowChan(workflowID string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.perWorkflow[workflowID]
	if !ok {
		ch = make(chan struct{}, c.limits.PerWorkflow)
		c.perWorkflow[workflowID] = ch
	}
	return ch
}
