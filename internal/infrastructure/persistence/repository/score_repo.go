package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// ScoreRepository handles the append-only score ledger. Rows are never
// updated or deleted; season boundaries are marker rows.
type ScoreRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *sql.DB, logger *zap.Logger) *ScoreRepository {
	return &ScoreRepository{db: db, logger: logger}
}

// Append inserts one ledger entry
func (r *ScoreRepository) Append(ctx context.Context, e *entity.ScoreEvent) error {
	query := `
		INSERT INTO score_events (participant_id, delta, reason, task_instance_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		e.ParticipantID, e.Delta, string(e.Reason), nullInt64(e.TaskInstanceID), e.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to append score event", zap.Error(err))
		return fmt.Errorf("failed to append score event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// SumSince sums a participant's deltas recorded at or after since. A nil
// since sums the full history.
func (r *ScoreRepository) SumSince(ctx context.Context, participantID int64, since *time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(delta), 0) FROM score_events WHERE participant_id = ?`
	args := []interface{}{participantID}
	if since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *since)
	}

	var sum int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum score events", zap.Int64("participant_id", participantID), zap.Error(err))
		return 0, fmt.Errorf("failed to sum score events: %w", err)
	}
	return sum, nil
}

// ListSince lists ledger entries recorded at or after since, oldest first
func (r *ScoreRepository) ListSince(ctx context.Context, since *time.Time) ([]*entity.ScoreEvent, error) {
	query := `
		SELECT id, participant_id, delta, reason, task_instance_id, created_at
		FROM score_events
	`
	var args []interface{}
	if since != nil {
		query += ` WHERE created_at >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list score events", zap.Error(err))
		return nil, fmt.Errorf("failed to list score events: %w", err)
	}
	defer rows.Close()

	var out []*entity.ScoreEvent
	for rows.Next() {
		var e entity.ScoreEvent
		var reason string
		var instanceID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.Delta, &reason, &instanceID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan score event: %w", err)
		}
		e.Reason = entity.ScoreReason(reason)
		if instanceID.Valid {
			e.TaskInstanceID = &instanceID.Int64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LatestMarkerAt returns when the current season started, nil if no reset
// has ever happened
func (r *ScoreRepository) LatestMarkerAt(ctx context.Context) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM score_events WHERE reason = ?`

	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, query, string(entity.ReasonSeasonReset)).Scan(&at)
	if err != nil {
		r.logger.Error("Failed to locate season marker", zap.Error(err))
		return nil, fmt.Errorf("failed to locate season marker: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}
