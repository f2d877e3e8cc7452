package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Execution statuses.
const (
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// Execution records one simulation run of a single workflow.
type Execution struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	Status     string    `json:"status"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateExecution inserts e, assigning the creation timestamp.
func (s *Store) CreateExecution(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		return fmt.Errorf("create execution: empty id")
	}
	e.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, status, input, output, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.WorkflowID, e.Status, e.Input, e.Output, e.Error,
		e.DurationMs, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	return nil
}

// GetExecution returns one execution by id or ErrNotFound.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, input, output, error, duration_ms, created_at
		FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns the newest executions of a workflow, capped at
// limit (0 means a default of 50).
func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, input, output, error, duration_ms, created_at
		FROM executions WHERE workflow_id = ?
		ORDER BY created_at DESC LIMIT ?`, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("list executions: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(r rowScanner) (*Execution, error) {
	var e Execution
	var createdAt string
	err := r.Scan(&e.ID, &e.WorkflowID, &e.Status, &e.Input, &e.Output,
		&e.Error, &e.DurationMs, &createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
