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

// ExecutionRepository is the PostgreSQL-backed execution store.
type ExecutionRepository struct {
	db *DB
}

func NewExecutionRepository(db *DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

var _ repository.ExecutionRepository = (*ExecutionRepository)(nil)

const executionColumns = `id, workflow_id, status, start_time, end_time, duration_ms, logs, results, result_file_ids, error_message`

func (r *ExecutionRepository) Create(ctx context.Context, ex *flume.WorkflowExecution) error {
	logsJSON, _ := json.Marshal(ex.Logs)
	resultsJSON, _ := json.Marshal(ex.Results)
	fileIDsJSON, _ := json.Marshal(ex.ResultFileIDs)

	_, err := r.db.Pool.ExecContext(ctx,
		`INSERT INTO workflow_executions (`+executionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ex.ID, ex.WorkflowID, string(ex.Status), ex.StartTime, ex.EndTime,
		ex.Duration, logsJSON, resultsJSON, fileIDsJSON, ex.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) Get(ctx context.Context, id string) (*flume.WorkflowExecution, error) {
	row := r.db.Pool.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)
	ex, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return ex, nil
}

func (r *ExecutionRepository) Update(ctx context.Context, ex *flume.WorkflowExecution) error {
	logsJSON, _ := json.Marshal(ex.Logs)
	resultsJSON, _ := json.Marshal(ex.Results)
	fileIDsJSON, _ := json.Marshal(ex.ResultFileIDs)

	res, err := r.db.Pool.ExecContext(ctx,
		`UPDATE workflow_executions
		 SET status = $1, end_time = $2, duration_ms = $3, logs = $4,
		     results = $5, result_file_ids = $6, error_message = $7
		 WHERE id = $8`,
		string(ex.Status), ex.EndTime, ex.Duration, logsJSON,
		resultsJSON, fileIDsJSON, ex.ErrorMessage, ex.ID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s: %w", ex.ID, repository.ErrNotFound)
	}
	return nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*flume.WorkflowExecution, int, error) {
	var total int
	err := r.db.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_executions WHERE workflow_id = $1`, workflowID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := r.db.Pool.QueryContext(ctx,
		`SELECT `+executionColumns+`
		 FROM workflow_executions WHERE workflow_id = $1
		 ORDER BY start_time DESC LIMIT $2 OFFSET $3`,
		workflowID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []*flume.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		result = append(result, ex)
	}
	return result, total, rows.Err()
}

func scanExecution(row rowScanner) (*flume.WorkflowExecution, error) {
	ex := &flume.WorkflowExecution{}
	var status string
	var logsJSON, resultsJSON, fileIDsJSON []byte
	if err := row.Scan(&ex.ID, &ex.WorkflowID, &status, &ex.StartTime, &ex.EndTime,
		&ex.Duration, &logsJSON, &resultsJSON, &fileIDsJSON, &ex.ErrorMessage); err != nil {
		return nil, err
	}
	ex.Status = flume.ExecutionStatus(status)
	json.Unmarshal(logsJSON, &ex.Logs)
	json.Unmarshal(resultsJSON, &ex.Results)
	json.Unmarshal(fileIDsJSON, &ex.ResultFileIDs)
	return ex, nil
}
