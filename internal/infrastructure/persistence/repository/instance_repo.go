package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

const dayFormat = "2006-01-02"

// InstanceRepository handles task instance database operations. The day
// column is stored as an ISO date string so equality and range queries
// stay independent of timezone encoding.
type InstanceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `
	id, template_id, day, slot, status, claimant_id, effective_points,
	deferrals, attempts, announce_round, version, created_at,
	claim_deadline, sla_deadline, report_id, closed_at
`

// Create inserts a task instance
func (r *InstanceRepository) Create(ctx context.Context, i *entity.TaskInstance) error {
	query := `
		INSERT INTO task_instances (
			template_id, day, slot, status, claimant_id, effective_points,
			deferrals, attempts, announce_round, version, created_at,
			claim_deadline, sla_deadline, report_id, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		i.TemplateID, i.Day.Format(dayFormat), i.Slot, i.Status,
		nullInt64(i.ClaimantID), i.EffectivePoints,
		i.Deferrals, i.Attempts, i.AnnounceRound, i.Version, i.CreatedAt,
		nullTime(i.ClaimDeadline), nullTime(i.SLADeadline),
		nullInt64(i.ReportID), nullTime(i.ClosedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	i.ID = id
	return nil
}

// GetByID retrieves a task instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id int64) (*entity.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances WHERE id = ?`

	inst, err := scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// Update rewrites the mutable instance fields
func (r *InstanceRepository) Update(ctx context.Context, i *entity.TaskInstance) error {
	query := `
		UPDATE task_instances
		SET status = ?, claimant_id = ?, deferrals = ?, attempts = ?,
			announce_round = ?, version = ?, claim_deadline = ?,
			sla_deadline = ?, report_id = ?, closed_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		i.Status, nullInt64(i.ClaimantID), i.Deferrals, i.Attempts,
		i.AnnounceRound, i.Version, nullTime(i.ClaimDeadline),
		nullTime(i.SLADeadline), nullInt64(i.ReportID), nullTime(i.ClosedAt),
		i.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.Int64("id", i.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return nil
}

// ListByDay retrieves all instances of one day
func (r *InstanceRepository) ListByDay(ctx context.Context, day time.Time) ([]*entity.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances WHERE day = ? ORDER BY id`
	return r.list(ctx, query, day.Format(dayFormat))
}

// ListByStatus retrieves all instances in one state
func (r *InstanceRepository) ListByStatus(ctx context.Context, status string) ([]*entity.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances WHERE status = ? ORDER BY id`
	return r.list(ctx, query, status)
}

// ListOpenBefore retrieves open instances from days before the given one
func (r *InstanceRepository) ListOpenBefore(ctx context.Context, day time.Time) ([]*entity.TaskInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM task_instances WHERE status = 'OPEN' AND day < ? ORDER BY id`
	return r.list(ctx, query, day.Format(dayFormat))
}

// CountForTemplateOnDay counts instances already generated for a template
// on one day
func (r *InstanceRepository) CountForTemplateOnDay(ctx context.Context, templateID int64, day time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM task_instances WHERE template_id = ? AND day = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, templateID, day.Format(dayFormat)).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count instances", zap.Int64("template_id", templateID), zap.Error(err))
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return count, nil
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.TaskInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var out []*entity.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func scanInstance(row rowScanner) (*entity.TaskInstance, error) {
	var i entity.TaskInstance
	var day string
	var claimantID, reportID sql.NullInt64
	var claimDeadline, slaDeadline, closedAt sql.NullTime

	err := row.Scan(
		&i.ID, &i.TemplateID, &day, &i.Slot, &i.Status, &claimantID, &i.EffectivePoints,
		&i.Deferrals, &i.Attempts, &i.AnnounceRound, &i.Version, &i.CreatedAt,
		&claimDeadline, &slaDeadline, &reportID, &closedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := time.Parse(dayFormat, day)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance day %q: %w", day, err)
	}
	i.Day = parsed

	if claimantID.Valid {
		i.ClaimantID = &claimantID.Int64
	}
	if reportID.Valid {
		i.ReportID = &reportID.Int64
	}
	if claimDeadline.Valid {
		i.ClaimDeadline = &claimDeadline.Time
	}
	if slaDeadline.Valid {
		i.SLADeadline = &slaDeadline.Time
	}
	if closedAt.Valid {
		i.ClosedAt = &closedAt.Time
	}
	return &i, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
