package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DeployStatus enumerates the workflow deploy lifecycle.
const (
	DeployStatusDraft    = "draft"
	DeployStatusPending  = "pending"
	DeployStatusDeployed = "deployed"
	DeployStatusFailed   = "failed"
)

// Workflow is a stored workflow row. Code and Config hold the generated
// TypeScript source and its JSON config; InputSchema and OutputSchema, when
// non-empty, hold restricted-dialect JSON-Schema documents.
type Workflow struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Prompt       string    `json:"prompt"`
	Code         string    `json:"code"`
	Config       string    `json:"config"`
	InputSchema  string    `json:"inputSchema,omitempty"`
	OutputSchema string    `json:"outputSchema,omitempty"`
	OwnerAddress string    `json:"ownerAddress"`
	PriceUSDC    int64     `json:"priceUsdc"`
	DeployStatus string    `json:"deployStatus"`
	Published    bool      `json:"published"`
	Category     string    `json:"category"`
	TemplateID   int       `json:"templateId"`
	Fallback     bool      `json:"fallback"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

const workflowColumns = `id, name, description, prompt, code, config,
	input_schema, output_schema, owner_address, price_usdc, deploy_status,
	published, category, template_id, fallback, created_at, updated_at`

// CreateWorkflow inserts w. Timestamps are assigned here; an empty deploy
// status defaults to draft.
func (s *Store) CreateWorkflow(ctx context.Context, w *Workflow) error {
	if w.ID == "" {
		return fmt.Errorf("create workflow: empty id")
	}
	if w.DeployStatus == "" {
		w.DeployStatus = DeployStatusDraft
	}
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.Prompt, w.Code, w.Config,
		w.InputSchema, w.OutputSchema, w.OwnerAddress, w.PriceUSDC,
		w.DeployStatus, boolToInt(w.Published), w.Category, w.TemplateID,
		boolToInt(w.Fallback), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create workflow: %w", err)
	}
	return nil
}

// GetWorkflow returns the workflow with the given id or ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	w, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return w, nil
}

// GetWorkflows batch-loads the given ids in one query. Missing ids are
// simply absent from the result map; the caller decides whether that is an
// error.
func (s *Store) GetWorkflows(ctx context.Context, ids []string) (map[string]*Workflow, error) {
	out := make(map[string]*Workflow, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("batch get workflows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("batch get workflows: %w", err)
		}
		out[w.ID] = w
	}
	return out, rows.Err()
}

// ListPublishedWorkflows returns published workflows newest-first, capped at
// limit (0 means a default of 100).
func (s *Store) ListPublishedWorkflows(ctx context.Context, limit int) ([]*Workflow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workflowColumns+` FROM workflows
		 WHERE published = 1 ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list published workflows: %w", err)
	}
	defer rows.Close()
	return collectWorkflows(rows)
}

// UpdateWorkflow rewrites the mutable columns of w and bumps updated_at.
func (s *Store) UpdateWorkflow(ctx context.Context, w *Workflow) error {
	w.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET name = ?, description = ?, code = ?, config = ?,
			input_schema = ?, output_schema = ?, price_usdc = ?,
			deploy_status = ?, published = ?, category = ?, updated_at = ?
		WHERE id = ?`,
		w.Name, w.Description, w.Code, w.Config, w.InputSchema,
		w.OutputSchema, w.PriceUSDC, w.DeployStatus, boolToInt(w.Published),
		w.Category, formatTime(w.UpdatedAt), w.ID)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	return requireRow(res, "update workflow")
}

// SweepStalePendingWorkflows marks workflows stuck in "pending" for longer
// than maxAge as failed, at most limit rows per call. It returns the number
// of rows updated and whether more stale rows remain beyond the cap.
func (s *Store) SweepStalePendingWorkflows(ctx context.Context, maxAge time.Duration, limit int) (int, bool, error) {
	cutoff := formatTime(time.Now().Add(-maxAge))
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET deploy_status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM workflows
			WHERE deploy_status = ? AND updated_at < ?
			ORDER BY updated_at ASC LIMIT ?
		)`,
		DeployStatusFailed, formatTime(time.Now()),
		DeployStatusPending, cutoff, limit)
	if err != nil {
		return 0, false, fmt.Errorf("sweep pending workflows: %w", err)
	}
	n, _ := res.RowsAffected()

	var remaining int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM workflows
		WHERE deploy_status = ? AND updated_at < ?`,
		DeployStatusPending, cutoff).Scan(&remaining)
	if err != nil {
		return int(n), false, fmt.Errorf("count stale workflows: %w", err)
	}
	return int(n), remaining > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(r rowScanner) (*Workflow, error) {
	var w Workflow
	var published, fallback int
	var createdAt, updatedAt string
	err := r.Scan(&w.ID, &w.Name, &w.Description, &w.Prompt, &w.Code,
		&w.Config, &w.InputSchema, &w.OutputSchema, &w.OwnerAddress,
		&w.PriceUSDC, &w.DeployStatus, &published, &w.Category,
		&w.TemplateID, &fallback, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	w.Published = published != 0
	w.Fallback = fallback != 0
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	return &w, nil
}

func collectWorkflows(rows *sql.Rows) ([]*Workflow, error) {
	var out []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
