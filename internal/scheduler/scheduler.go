// Package scheduler triggers workflow runs on cron schedules. A workflow
// opts in by being active and carrying a "schedule" cron expression in its
// config; the scheduler re-syncs its entries whenever workflows change.
package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/calder-io/flume/internal/engine"
	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
)

// Scheduler wraps robfig/cron over the workflow store.
type Scheduler struct {
	cron      *cron.Cron
	workflows repository.WorkflowRepository
	engine    *engine.Engine
	mu        sync.Mutex
	entries   map[string]cron.EntryID // workflow ID → cron entry
}

func New(workflows repository.WorkflowRepository, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		workflows: workflows,
		engine:    eng,
		entries:   make(map[string]cron.EntryID),
	}
}

// parseCronExpr tries 6-field (with seconds) then 5-field (standard) parsing.
func parseCronExpr(expr string) (cron.Schedule, error) {
	parser6 := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser6.Parse(expr)
	if err == nil {
		return sched, nil
	}
	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser5.Parse(expr)
}

// Start registers entries for every scheduled workflow and starts the cron
// loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		slog.Warn("scheduler: initial load failed", "err", err)
	}
	s.cron.Start()
	slog.Info("scheduler: started")
	return nil
}

// Stop halts the cron loop and waits for in-flight trigger callbacks. Runs
// already started keep going; only new triggers stop.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("scheduler: stopped")
}

// Refresh re-syncs cron entries with the workflow store: new schedules are
// registered, changed ones re-registered, removed or deactivated ones
// dropped. Called on startup and after workflow mutations.
func (s *Scheduler) Refresh(ctx context.Context) error {
	workflows, err := s.workflows.List(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool)
	for _, wf := range workflows {
		expr := scheduleExpr(wf)
		if !wf.Active || expr == "" {
			continue
		}
		keep[wf.ID] = true
		if _, registered := s.entries[wf.ID]; registered {
			// re-register so expression edits take effect
			s.cron.Remove(s.entries[wf.ID])
			delete(s.entries, wf.ID)
		}
		if err := s.registerLocked(wf, expr); err != nil {
			slog.Warn("scheduler: skipping workflow with bad schedule",
				"workflow_id", wf.ID, "schedule", expr, "err", err)
		}
	}

	for id, entry := range s.entries {
		if !keep[id] {
			s.cron.Remove(entry)
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *Scheduler) registerLocked(wf *flume.Workflow, expr string) error {
	sched, err := parseCronExpr(expr)
	if err != nil {
		return err
	}

	workflowID := wf.ID
	entryID := s.cron.Schedule(sched, cron.FuncJob(func() {
		s.trigger(workflowID)
	}))
	s.entries[workflowID] = entryID

	slog.Info("scheduler: registered workflow", "workflow_id", workflowID, "schedule", expr)
	return nil
}

func (s *Scheduler) trigger(workflowID string) {
	ex, err := s.engine.StartExecution(context.Background(), workflowID)
	if err != nil {
		slog.Warn("scheduler: scheduled run refused", "workflow_id", workflowID, "err", err)
		return
	}
	slog.Info("scheduler: started scheduled run", "workflow_id", workflowID, "execution_id", ex.ID)
}

func scheduleExpr(wf *flume.Workflow) string {
	if wf.Config == nil {
		return ""
	}
	expr, _ := wf.Config["schedule"].(string)
	return expr
}
