package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// CoefficientRepository handles reward coefficient and settings storage.
// Settings live in a single fixed row so runtime overrides survive
// restarts.
type CoefficientRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCoefficientRepository creates a new coefficient repository
func NewCoefficientRepository(db *sql.DB, logger *zap.Logger) *CoefficientRepository {
	return &CoefficientRepository{db: db, logger: logger}
}

// Get retrieves one participant's coefficient
func (r *CoefficientRepository) Get(ctx context.Context, participantID int64) (*entity.RewardCoefficient, error) {
	query := `
		SELECT participant_id, value, updated_at
		FROM reward_coefficients
		WHERE participant_id = ?
	`

	var c entity.RewardCoefficient
	err := r.db.QueryRowContext(ctx, query, participantID).Scan(&c.ParticipantID, &c.Value, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get coefficient", zap.Int64("participant_id", participantID), zap.Error(err))
		return nil, fmt.Errorf("failed to get coefficient: %w", err)
	}
	return &c, nil
}

// Upsert stores a participant's coefficient
func (r *CoefficientRepository) Upsert(ctx context.Context, c *entity.RewardCoefficient) error {
	query := `
		INSERT INTO reward_coefficients (participant_id, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, c.ParticipantID, c.Value, c.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert coefficient", zap.Int64("participant_id", c.ParticipantID), zap.Error(err))
		return fmt.Errorf("failed to upsert coefficient: %w", err)
	}
	return nil
}

// List retrieves all stored coefficients
func (r *CoefficientRepository) List(ctx context.Context) ([]*entity.RewardCoefficient, error) {
	query := `
		SELECT participant_id, value, updated_at
		FROM reward_coefficients
		ORDER BY participant_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list coefficients", zap.Error(err))
		return nil, fmt.Errorf("failed to list coefficients: %w", err)
	}
	defer rows.Close()

	var out []*entity.RewardCoefficient
	for rows.Next() {
		var c entity.RewardCoefficient
		if err := rows.Scan(&c.ParticipantID, &c.Value, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coefficient: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetSettings retrieves the reward settings row
func (r *CoefficientRepository) GetSettings(ctx context.Context) (*entity.RewardSettings, error) {
	query := `
		SELECT min_value, max_value, default_value, bonus_step, penalty_step
		FROM reward_settings
		WHERE id = 1
	`

	var s entity.RewardSettings
	err := r.db.QueryRowContext(ctx, query).Scan(&s.Min, &s.Max, &s.Default, &s.BonusStep, &s.PenaltyStep)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get reward settings", zap.Error(err))
		return nil, fmt.Errorf("failed to get reward settings: %w", err)
	}
	return &s, nil
}

// SaveSettings replaces the reward settings row
func (r *CoefficientRepository) SaveSettings(ctx context.Context, s *entity.RewardSettings) error {
	query := `
		INSERT INTO reward_settings (id, min_value, max_value, default_value, bonus_step, penalty_step)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			min_value = excluded.min_value,
			max_value = excluded.max_value,
			default_value = excluded.default_value,
			bonus_step = excluded.bonus_step,
			penalty_step = excluded.penalty_step
	`

	_, err := r.db.ExecContext(ctx, query, s.Min, s.Max, s.Default, s.BonusStep, s.PenaltyStep)
	if err != nil {
		r.logger.Error("Failed to save reward settings", zap.Error(err))
		return fmt.Errorf("failed to save reward settings: %w", err)
	}
	return nil
}
