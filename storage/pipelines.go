package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Pipeline execution statuses.
const (
	PipelineStatusPending   = "pending"
	PipelineStatusRunning   = "running"
	PipelineStatusCompleted = "completed"
	PipelineStatusFailed    = "failed"
	PipelineStatusPartial   = "partial"
)

// Pipeline is a stored pipeline definition. Steps holds the JSON-encoded
// step configuration array; it is parsed by the pipeline package, not here.
type Pipeline struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	OwnerAddress   string    `json:"ownerAddress"`
	Steps          string    `json:"steps"`
	Active         bool      `json:"active"`
	ExecutionCount int64     `json:"executionCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PipelineExecution is one run of a pipeline. StepResults and TriggerInput
// hold JSON documents owned by the pipeline executor.
type PipelineExecution struct {
	ID           string    `json:"id"`
	PipelineID   string    `json:"pipelineId"`
	Status       string    `json:"status"`
	StepResults  string    `json:"stepResults"`
	TriggerInput string    `json:"triggerInput"`
	FinalOutput  string    `json:"finalOutput,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CreatePipeline inserts p with fresh timestamps.
func (s *Store) CreatePipeline(ctx context.Context, p *Pipeline) error {
	if p.ID == "" {
		return fmt.Errorf("create pipeline: empty id")
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipelines (id, name, description, owner_address, steps, active, execution_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.OwnerAddress, p.Steps,
		boolToInt(p.Active), p.ExecutionCount, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}
	return nil
}

// GetPipeline returns one pipeline by id or ErrNotFound.
func (s *Store) GetPipeline(ctx context.Context, id string) (*Pipeline, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, owner_address, steps, active, execution_count, created_at, updated_at
		FROM pipelines WHERE id = ?`, id)
	p, err := scanPipeline(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline: %w", err)
	}
	return p, nil
}

// ListPipelines returns pipelines newest-first. When activeOnly is set,
// deactivated pipelines are excluded.
func (s *Store) ListPipelines(ctx context.Context, activeOnly bool, limit int) ([]*Pipeline, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, name, description, owner_address, steps, active, execution_count, created_at, updated_at
		FROM pipelines`
	if activeOnly {
		q += ` WHERE active = 1`
	}
	q += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var out []*Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("list pipelines: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePipeline rewrites name, description and steps, bumping updated_at.
func (s *Store) UpdatePipeline(ctx context.Context, p *Pipeline) error {
	p.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipelines SET name = ?, description = ?, steps = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Steps, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update pipeline: %w", err)
	}
	return requireRow(res, "update pipeline")
}

// DeactivatePipeline soft-deletes a pipeline; history rows stay intact.
func (s *Store) DeactivatePipeline(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipelines SET active = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("deactivate pipeline: %w", err)
	}
	return requireRow(res, "deactivate pipeline")
}

// BumpPipelineExecutionCount increments the advisory execution counter and
// touches updated_at. Callers treat this as best-effort.
func (s *Store) BumpPipelineExecutionCount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipelines SET execution_count = execution_count + 1, updated_at = ?
		WHERE id = ?`, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("bump pipeline execution count: %w", err)
	}
	return nil
}

// CreatePipelineExecution inserts e with a fresh creation timestamp.
func (s *Store) CreatePipelineExecution(ctx context.Context, e *PipelineExecution) error {
	if e.ID == "" {
		return fmt.Errorf("create pipeline execution: empty id")
	}
	e.CreatedAt = time.Now()
	if e.StepResults == "" {
		e.StepResults = "[]"
	}
	if e.TriggerInput == "" {
		e.TriggerInput = "{}"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_executions (id, pipeline_id, status, step_results, trigger_input, final_output, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PipelineID, e.Status, e.StepResults, e.TriggerInput,
		e.FinalOutput, e.DurationMs, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("create pipeline execution: %w", err)
	}
	return nil
}

// GetPipelineExecution returns one execution row by id or ErrNotFound.
func (s *Store) GetPipelineExecution(ctx context.Context, id string) (*PipelineExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline_id, status, step_results, trigger_input, final_output, duration_ms, created_at
		FROM pipeline_executions WHERE id = ?`, id)
	e, err := scanPipelineExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pipeline execution: %w", err)
	}
	return e, nil
}

// FinishPipelineExecution writes the terminal state of an execution row.
// This is the durable-first update the executor awaits; losing it would
// lose user-visible history.
func (s *Store) FinishPipelineExecution(ctx context.Context, id, status, stepResults, finalOutput string, durationMs int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_executions
		SET status = ?, step_results = ?, final_output = ?, duration_ms = ?
		WHERE id = ?`,
		status, stepResults, finalOutput, durationMs, id)
	if err != nil {
		return fmt.Errorf("finish pipeline execution: %w", err)
	}
	return requireRow(res, "finish pipeline execution")
}

// ListPipelineExecutions returns the newest executions of one pipeline.
func (s *Store) ListPipelineExecutions(ctx context.Context, pipelineID string, limit int) ([]*PipelineExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pipeline_id, status, step_results, trigger_input, final_output, duration_ms, created_at
		FROM pipeline_executions WHERE pipeline_id = ?
		ORDER BY created_at DESC LIMIT ?`, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline executions: %w", err)
	}
	defer rows.Close()

	var out []*PipelineExecution
	for rows.Next() {
		e, err := scanPipelineExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("list pipeline executions: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SweepStaleRunningExecutions fails pipeline executions stuck in "running"
// for longer than maxAge, at most limit rows. Returns rows updated and
// whether more stale rows remain.
func (s *Store) SweepStaleRunningExecutions(ctx context.Context, maxAge time.Duration, limit int) (int, bool, error) {
	cutoff := formatTime(time.Now().Add(-maxAge))
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_executions SET status = ?
		WHERE id IN (
			SELECT id FROM pipeline_executions
			WHERE status = ? AND created_at < ?
			ORDER BY created_at ASC LIMIT ?
		)`,
		PipelineStatusFailed, PipelineStatusRunning, cutoff, limit)
	if err != nil {
		return 0, false, fmt.Errorf("sweep running executions: %w", err)
	}
	n, _ := res.RowsAffected()

	var remaining int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pipeline_executions
		WHERE status = ? AND created_at < ?`,
		PipelineStatusRunning, cutoff).Scan(&remaining)
	if err != nil {
		return int(n), false, fmt.Errorf("count stale executions: %w", err)
	}
	return int(n), remaining > 0, nil
}

func scanPipeline(r rowScanner) (*Pipeline, error) {
	var p Pipeline
	var active int
	var createdAt, updatedAt string
	err := r.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerAddress, &p.Steps,
		&active, &p.ExecutionCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

func scanPipelineExecution(r rowScanner) (*PipelineExecution, error) {
	var e PipelineExecution
	var createdAt string
	err := r.Scan(&e.ID, &e.PipelineID, &e.Status, &e.StepResults,
		&e.TriggerInput, &e.FinalOutput, &e.DurationMs, &createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	return &e, nil
}
