package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// ReportRepository handles completion report database operations
type ReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

// Create inserts a report
func (r *ReportRepository) Create(ctx context.Context, rep *entity.Report) error {
	query := `
		INSERT INTO reports (task_instance_id, participant_id, evidence_ref, superseded, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		rep.TaskInstanceID, rep.ParticipantID, rep.EvidenceRef, rep.Superseded, rep.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create report", zap.Error(err))
		return fmt.Errorf("failed to create report: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rep.ID = id
	return nil
}

// GetByID retrieves a report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id int64) (*entity.Report, error) {
	query := `
		SELECT id, task_instance_id, participant_id, evidence_ref, superseded, created_at
		FROM reports
		WHERE id = ?
	`

	var rep entity.Report
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rep.ID, &rep.TaskInstanceID, &rep.ParticipantID, &rep.EvidenceRef, &rep.Superseded, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get report", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return &rep, nil
}

// GetActiveByInstance retrieves the one non-superseded report of an instance
func (r *ReportRepository) GetActiveByInstance(ctx context.Context, instanceID int64) (*entity.Report, error) {
	query := `
		SELECT id, task_instance_id, participant_id, evidence_ref, superseded, created_at
		FROM reports
		WHERE task_instance_id = ? AND superseded = 0
		ORDER BY id DESC
		LIMIT 1
	`

	var rep entity.Report
	err := r.db.QueryRowContext(ctx, query, instanceID).Scan(
		&rep.ID, &rep.TaskInstanceID, &rep.ParticipantID, &rep.EvidenceRef, &rep.Superseded, &rep.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active report", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get active report: %w", err)
	}
	return &rep, nil
}

// Supersede marks a report as replaced by a resubmission
func (r *ReportRepository) Supersede(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reports SET superseded = 1 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to supersede report", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to supersede report: %w", err)
	}
	return nil
}
