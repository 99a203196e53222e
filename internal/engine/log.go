package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
)

// flush policy: write through to the execution record when the buffer grows
// past flushThreshold entries or flushInterval has elapsed since the last
// write, so GetExecution sees near-live logs without a store write per entry.
const (
	flushThreshold = 10
	flushInterval  = 2 * time.Second
)

// runLog is the single append-only log writer owned by one run. Node
// executions happen in parallel but every append is serialized through the
// mutex, and timestamps are clamped to be monotonically non-decreasing.
type runLog struct {
	executionID string
	executions  repository.ExecutionRepository

	mu        sync.Mutex
	entries   []flume.ExecutionLog
	unflushed int
	lastWrite time.Time
	lastStamp time.Time
}

func newRunLog(executionID string, executions repository.ExecutionRepository) *runLog {
	return &runLog{
		executionID: executionID,
		executions:  executions,
		entries:     make([]flume.ExecutionLog, 0, 16),
		lastWrite:   time.Now(),
	}
}

// append records one entry. node may be nil for run-level events.
func (l *runLog) append(level flume.LogLevel, message string, node *flume.WorkflowNode, status string) {
	l.mu.Lock()

	now := time.Now()
	if now.Before(l.lastStamp) {
		now = l.lastStamp
	}
	l.lastStamp = now

	entry := flume.ExecutionLog{
		Timestamp: now,
		Level:     level,
		Message:   message,
		Status:    status,
	}
	if node != nil {
		entry.NodeID = node.ID
		entry.NodeType = string(node.Role)
		entry.Connector = node.NodeType
	}
	l.entries = append(l.entries, entry)
	l.unflushed++
	l.mu.Unlock()

	l.maybeFlush(context.Background(), false)
}

func (l *runLog) info(message string)  { l.append(flume.LogInfo, message, nil, "") }
func (l *runLog) warn(message string)  { l.append(flume.LogWarn, message, nil, "") }
func (l *runLog) error(message string) { l.append(flume.LogError, message, nil, "") }

func (l *runLog) nodeInfo(node *flume.WorkflowNode, message string) {
	l.append(flume.LogInfo, message, node, "")
}

func (l *runLog) nodeWarn(node *flume.WorkflowNode, message string) {
	l.append(flume.LogWarn, message, node, "")
}

func (l *runLog) nodeError(node *flume.WorkflowNode, message string) {
	l.append(flume.LogError, message, node, "failed")
}

// snapshot returns a copy of all entries so far.
func (l *runLog) snapshot() []flume.ExecutionLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]flume.ExecutionLog, len(l.entries))
	copy(out, l.entries)
	return out
}

// maybeFlush writes buffered entries to the execution record when the flush
// policy says so. force bypasses the policy (used at run transitions and by
// live log queries).
func (l *runLog) maybeFlush(ctx context.Context, force bool) {
	l.mu.Lock()
	if l.unflushed == 0 {
		l.mu.Unlock()
		return
	}
	if !force && l.unflushed < flushThreshold && time.Since(l.lastWrite) < flushInterval {
		l.mu.Unlock()
		return
	}
	logs := make([]flume.ExecutionLog, len(l.entries))
	copy(logs, l.entries)
	l.unflushed = 0
	l.lastWrite = time.Now()
	l.mu.Unlock()

	ex, err := l.executions.Get(ctx, l.executionID)
	if err != nil {
		slog.Error("flush logs: load execution", "execution_id", l.executionID, "err", err)
		return
	}
	if ex.Status.Terminal() {
		// log already frozen with the terminal update
		return
	}
	ex.Logs = logs
	if err := l.executions.Update(ctx, ex); err != nil {
		slog.Error("flush logs: update execution", "execution_id", l.executionID, "err", err)
	}
}
