package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// TemplateRepository handles task template database operations. Durations
// are stored as whole seconds.
type TemplateRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB, logger *zap.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id, code, title, base_points, frequency, max_per_day,
	sla_seconds, claim_timeout_seconds, kind, penalty, created_at, updated_at
`

// Create inserts a template
func (r *TemplateRepository) Create(ctx context.Context, t *entity.TaskTemplate) error {
	query := `
		INSERT INTO task_templates (
			code, title, base_points, frequency, max_per_day,
			sla_seconds, claim_timeout_seconds, kind, penalty, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	result, err := r.db.ExecContext(ctx, query,
		t.Code, t.Title, t.BasePoints, string(t.Frequency), t.MaxPerDay,
		int64(t.SLA.Seconds()), int64(t.ClaimTimeout.Seconds()),
		string(t.Kind), t.Penalty, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create template", zap.String("code", t.Code), zap.Error(err))
		return fmt.Errorf("failed to create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	return nil
}

// Update rewrites a template's definition; changes apply at next generation
func (r *TemplateRepository) Update(ctx context.Context, t *entity.TaskTemplate) error {
	query := `
		UPDATE task_templates
		SET title = ?, base_points = ?, frequency = ?, max_per_day = ?,
			sla_seconds = ?, claim_timeout_seconds = ?, kind = ?, penalty = ?, updated_at = ?
		WHERE id = ?
	`

	t.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		t.Title, t.BasePoints, string(t.Frequency), t.MaxPerDay,
		int64(t.SLA.Seconds()), int64(t.ClaimTimeout.Seconds()),
		string(t.Kind), t.Penalty, t.UpdatedAt, t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update template", zap.Int64("id", t.ID), zap.Error(err))
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*entity.TaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM task_templates WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByCode retrieves a template by its unique code
func (r *TemplateRepository) GetByCode(ctx context.Context, code string) (*entity.TaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM task_templates WHERE code = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

// List retrieves all templates
func (r *TemplateRepository) List(ctx context.Context) ([]*entity.TaskTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM task_templates ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list templates", zap.Error(err))
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []*entity.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepository) scanOne(row *sql.Row) (*entity.TaskTemplate, error) {
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get template", zap.Error(err))
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*entity.TaskTemplate, error) {
	var t entity.TaskTemplate
	var frequency, kind string
	var slaSeconds, claimTimeoutSeconds int64

	err := row.Scan(
		&t.ID, &t.Code, &t.Title, &t.BasePoints, &frequency, &t.MaxPerDay,
		&slaSeconds, &claimTimeoutSeconds, &kind, &t.Penalty, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Frequency = entity.Frequency(frequency)
	t.Kind = entity.TaskKind(kind)
	t.SLA = time.Duration(slaSeconds) * time.Second
	t.ClaimTimeout = time.Duration(claimTimeoutSeconds) * time.Second
	return &t, nil
}
