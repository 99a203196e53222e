package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calder-io/flume/internal/flume"
	"github.com/calder-io/flume/internal/repository"
)

// WorkflowRepository is the PostgreSQL-backed workflow store.
type WorkflowRepository struct {
	db *DB
}

func NewWorkflowRepository(db *DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

var _ repository.WorkflowRepository = (*WorkflowRepository)(nil)

const workflowColumns = `id, user_id, name, description, active, config, timeout, max_retries, retry_delay, created_at, updated_at`

func (r *WorkflowRepository) Create(ctx context.Context, wf *flume.Workflow) error {
	configJSON, _ := json.Marshal(wf.Config)
	_, err := r.db.Pool.ExecContext(ctx,
		`INSERT INTO workflows (`+workflowColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		wf.ID, wf.UserID, wf.Name, wf.Description, wf.Active, configJSON,
		wf.Timeout, wf.MaxRetries, wf.RetryDelay, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func (r *WorkflowRepository) Get(ctx context.Context, id string) (*flume.Workflow, error) {
	row := r.db.Pool.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

func (r *WorkflowRepository) Update(ctx context.Context, wf *flume.Workflow) error {
	configJSON, _ := json.Marshal(wf.Config)
	res, err := r.db.Pool.ExecContext(ctx,
		`UPDATE workflows
		 SET user_id = $1, name = $2, description = $3, active = $4, config = $5,
		     timeout = $6, max_retries = $7, retry_delay = $8, updated_at = $9
		 WHERE id = $10`,
		wf.UserID, wf.Name, wf.Description, wf.Active, configJSON,
		wf.Timeout, wf.MaxRetries, wf.RetryDelay, wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s: %w", wf.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.Pool.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workflow %s: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (r *WorkflowRepository) List(ctx context.Context) ([]*flume.Workflow, error) {
	rows, err := r.db.Pool.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var result []*flume.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		result = append(result, wf)
	}
	return result, rows.Err()
}

func (r *WorkflowRepository) Snapshot(ctx context.Context, workflowID string) (*flume.GraphSnapshot, error) {
	wf, err := r.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	nodes, err := r.nodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	connections, err := r.connections(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return &flume.GraphSnapshot{Workflow: wf, Nodes: nodes, Connections: connections}, nil
}

// ReplaceGraph swaps the node and connection sets in one transaction, so a
// concurrent Snapshot sees either the old graph or the new one, never a mix.
func (r *WorkflowRepository) ReplaceGraph(ctx context.Context, workflowID string, nodes []*flume.WorkflowNode, connections []*flume.WorkflowConnection) error {
	tx, err := r.db.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace graph: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)`, workflowID).Scan(&exists); err != nil {
		return fmt.Errorf("check workflow: %w", err)
	}
	if !exists {
		return fmt.Errorf("workflow %s: %w", workflowID, repository.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_connections WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("clear connections: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_nodes WHERE workflow_id = $1`, workflowID); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}

	for _, n := range nodes {
		configJSON, _ := json.Marshal(n.Config)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_nodes (id, workflow_id, role, node_type, label, config, position_x, position_y)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			n.ID, workflowID, string(n.Role), n.NodeType, n.Label, configJSON, n.PositionX, n.PositionY,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}
	for _, c := range connections {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_connections (id, workflow_id, source_id, target_id)
			 VALUES ($1, $2, $3, $4)`,
			c.ID, workflowID, c.SourceID, c.TargetID,
		); err != nil {
			return fmt.Errorf("insert connection %s: %w", c.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE workflows SET updated_at = NOW() WHERE id = $1`, workflowID); err != nil {
		return fmt.Errorf("touch workflow: %w", err)
	}

	return tx.Commit()
}

func (r *WorkflowRepository) nodes(ctx context.Context, workflowID string) ([]*flume.WorkflowNode, error) {
	rows, err := r.db.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, role, node_type, label, config, position_x, position_y
		 FROM workflow_nodes WHERE workflow_id = $1 ORDER BY id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var result []*flume.WorkflowNode
	for rows.Next() {
		n := &flume.WorkflowNode{}
		var role string
		var configJSON []byte
		if err := rows.Scan(&n.ID, &n.WorkflowID, &role, &n.NodeType, &n.Label, &configJSON, &n.PositionX, &n.PositionY); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Role = flume.NodeRole(role)
		json.Unmarshal(configJSON, &n.Config)
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *WorkflowRepository) connections(ctx context.Context, workflowID string) ([]*flume.WorkflowConnection, error) {
	rows, err := r.db.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, source_id, target_id
		 FROM workflow_connections WHERE workflow_id = $1 ORDER BY id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var result []*flume.WorkflowConnection
	for rows.Next() {
		c := &flume.WorkflowConnection{}
		if err := rows.Scan(&c.ID, &c.WorkflowID, &c.SourceID, &c.TargetID); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*flume.Workflow, error) {
	wf := &flume.Workflow{}
	var configJSON []byte
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &wf.Description, &wf.Active, &configJSON,
		&wf.Timeout, &wf.MaxRetries, &wf.RetryDelay, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	json.Unmarshal(configJSON, &wf.Config)
	return wf, nil
}
