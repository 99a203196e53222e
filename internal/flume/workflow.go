package flume

import "time"

// NodeRole is the structural role a node plays in the graph.
type NodeRole string

const (
	RoleSource      NodeRole = "source"
	RoleProcessor   NodeRole = "processor"
	RoleDestination NodeRole = "destination"
)

// Valid reports whether r is one of the three known roles.
func (r NodeRole) Valid() bool {
	switch r {
	case RoleSource, RoleProcessor, RoleDestination:
		return true
	}
	return false
}

// Workflow is a stored pipeline definition. It owns a set of nodes and
// connections; run-level policy (timeout, retries) lives here rather than on
// individual nodes.
type Workflow struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Active      bool           `json:"active"`
	Config      map[string]any `json:"config,omitempty"`
	Timeout     int            `json:"timeout"`     // seconds, whole-run ceiling
	MaxRetries  int            `json:"max_retries"` // per-node retry budget
	RetryDelay  int            `json:"retry_delay"` // seconds, linear backoff unit
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// WorkflowNode is one node of a workflow graph. Role is the structural
// category; NodeType names the specific connector ("http_fetch",
// "expr_filter", ...). Config is opaque to the engine and validated only by
// the owning connector. Position is persisted for the editor and never
// consumed by execution.
type WorkflowNode struct {
	ID         string         `json:"id"`
	WorkflowID string         `json:"workflow_id"`
	Role       NodeRole       `json:"type"`
	NodeType   string         `json:"node_type"`
	Label      string         `json:"label"`
	Config     map[string]any `json:"config,omitempty"`
	PositionX  int            `json:"position_x"`
	PositionY  int            `json:"position_y"`
}

// WorkflowConnection is a directed edge between two nodes of the same
// workflow. Self-loops are rejected at build time.
type WorkflowConnection struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
}

// GraphSnapshot is the frozen node/connection set captured when a run starts.
// Mutating the stored workflow while a run is in flight does not affect the
// running execution.
type GraphSnapshot struct {
	Workflow    *Workflow             `json:"workflow"`
	Nodes       []*WorkflowNode       `json:"nodes"`
	Connections []*WorkflowConnection `json:"connections"`
}
