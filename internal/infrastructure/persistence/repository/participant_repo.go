package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// ParticipantRepository handles participant database operations
type ParticipantRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *sql.DB, logger *zap.Logger) *ParticipantRepository {
	return &ParticipantRepository{db: db, logger: logger}
}

// Create inserts a participant
func (r *ParticipantRepository) Create(ctx context.Context, p *entity.Participant) error {
	query := `
		INSERT INTO participants (handle, name, active, joined_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query, p.Handle, p.Name, p.Active, p.JoinedAt)
	if err != nil {
		r.logger.Error("Failed to create participant", zap.Error(err))
		return fmt.Errorf("failed to create participant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetByID retrieves a participant by ID
func (r *ParticipantRepository) GetByID(ctx context.Context, id int64) (*entity.Participant, error) {
	query := `
		SELECT id, handle, name, active, joined_at
		FROM participants
		WHERE id = ?
	`

	var p entity.Participant
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Handle, &p.Name, &p.Active, &p.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get participant", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return &p, nil
}

// ListActive retrieves the active roster in join order
func (r *ParticipantRepository) ListActive(ctx context.Context) ([]*entity.Participant, error) {
	query := `
		SELECT id, handle, name, active, joined_at
		FROM participants
		WHERE active = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list participants", zap.Error(err))
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []*entity.Participant
	for rows.Next() {
		var p entity.Participant
		if err := rows.Scan(&p.ID, &p.Handle, &p.Name, &p.Active, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
