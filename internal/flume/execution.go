package flume

import "time"

// ExecutionStatus is the lifecycle state of a workflow run.
// running is the only non-terminal state; terminal states are final.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// LogLevel classifies an execution log entry.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ExecutionLog is one append-only log entry scoped to a single execution.
// The node fields are empty for run-level entries.
type ExecutionLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	NodeID    string    `json:"node_id,omitempty"`
	NodeType  string    `json:"node_type,omitempty"`
	Connector string    `json:"connector,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// WorkflowExecution records one run attempt. Created in running state when a
// run starts and immutable once a terminal status is set.
type WorkflowExecution struct {
	ID            string                   `json:"id"`
	WorkflowID    string                   `json:"workflow_id"`
	Status        ExecutionStatus          `json:"status"`
	StartTime     time.Time                `json:"start_time"`
	EndTime       *time.Time               `json:"end_time,omitempty"`
	Duration      int64                    `json:"duration_ms"`
	Logs          []ExecutionLog           `json:"logs"`
	Results       map[string]*DataEnvelope `json:"results,omitempty"` // keyed by destination node id
	ResultFileIDs []string                 `json:"result_file_ids,omitempty"`
	ErrorMessage  string                   `json:"error_message,omitempty"`
}

// ValidationResult is the outcome of a static graph check. It is recomputed
// on every call and never persisted as authoritative state. Any error blocks
// execution; warnings alone do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewValidationResult returns a passing result with empty finding lists.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
}

// AddError records a blocking finding and marks the result invalid.
func (r *ValidationResult) AddError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// AddWarning records a non-blocking finding.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
