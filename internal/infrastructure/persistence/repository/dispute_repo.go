package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// DisputeRepository handles dispute database operations
type DisputeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDisputeRepository creates a new dispute repository
func NewDisputeRepository(db *sql.DB, logger *zap.Logger) *DisputeRepository {
	return &DisputeRepository{db: db, logger: logger}
}

const disputeColumns = `
	id, task_instance_id, report_id, reason, status, note, resolved_by, created_at, resolved_at
`

// Create inserts a dispute
func (r *DisputeRepository) Create(ctx context.Context, d *entity.Dispute) error {
	query := `
		INSERT INTO disputes (task_instance_id, report_id, reason, status, note, resolved_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		d.TaskInstanceID, d.ReportID, d.Reason, string(d.Status), d.Note, d.ResolvedBy, d.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create dispute", zap.Error(err))
		return fmt.Errorf("failed to create dispute: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// GetByID retrieves a dispute by ID
func (r *DisputeRepository) GetByID(ctx context.Context, id int64) (*entity.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = ?`

	d, err := scanDispute(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get dispute", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get dispute: %w", err)
	}
	return d, nil
}

// GetOpenByInstance retrieves the open dispute of an instance, if any
func (r *DisputeRepository) GetOpenByInstance(ctx context.Context, instanceID int64) (*entity.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE task_instance_id = ? AND status = 'open' LIMIT 1`

	d, err := scanDispute(r.db.QueryRowContext(ctx, query, instanceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get open dispute", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get open dispute: %w", err)
	}
	return d, nil
}

// ListOpen retrieves all unresolved disputes, oldest first
func (r *DisputeRepository) ListOpen(ctx context.Context) ([]*entity.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE status = 'open' ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list open disputes", zap.Error(err))
		return nil, fmt.Errorf("failed to list open disputes: %w", err)
	}
	defer rows.Close()

	var out []*entity.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Resolve closes a dispute with the admin's note
func (r *DisputeRepository) Resolve(ctx context.Context, id int64, note, resolvedBy string, at time.Time) error {
	query := `
		UPDATE disputes
		SET status = 'resolved', note = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query, note, resolvedBy, at, id)
	if err != nil {
		r.logger.Error("Failed to resolve dispute", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve dispute: %w", err)
	}
	return nil
}

func scanDispute(row rowScanner) (*entity.Dispute, error) {
	var d entity.Dispute
	var status string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.TaskInstanceID, &d.ReportID, &d.Reason, &status,
		&d.Note, &d.ResolvedBy, &d.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}

	d.Status = entity.DisputeStatus(status)
	if resolvedAt.Valid {
		d.ResolvedAt = &resolvedAt.Time
	}
	return &d, nil
}
