package reward

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"go.uber.org/zap"
)

var (
	// ErrCoefficientRange indicates reward settings that do not form a
	// valid [min, max] range
	ErrCoefficientRange = errors.New("coefficient settings out of range")
)

// Controller maintains the per-participant reward coefficients. Awards
// nudge a coefficient toward the maximum by bonus_step, penalties toward
// the minimum by penalty_step, always clamped to [min, max]. The generator
// consumes the household average as a snapshot; it never reads live state.
type Controller struct {
	coeffs port.CoefficientRepository
	clock  port.Clock
	logger *zap.Logger

	mu sync.Mutex
}

// NewController creates a reward controller
func NewController(coeffs port.CoefficientRepository, clock port.Clock, logger *zap.Logger) *Controller {
	return &Controller{
		coeffs: coeffs,
		clock:  clock,
		logger: logger,
	}
}

// Subscribe hooks the controller into the ledger's score events
func (c *Controller) Subscribe(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeScoreRecorded, "reward-controller", c.onScoreRecorded)
}

func (c *Controller) onScoreRecorded(ctx context.Context, evt *event.Event) error {
	reason := entity.ScoreReason(evt.GetPayloadString("reason"))
	participantID := evt.GetPayloadInt("participant_id")

	switch {
	case reason.IsAward():
		return c.nudge(ctx, participantID, +1)
	case reason.IsPenalty():
		return c.nudge(ctx, participantID, -1)
	default:
		// Season markers and unknown reasons do not move coefficients
		return nil
	}
}

// nudge moves one coefficient a single step in the given direction
func (c *Controller) nudge(ctx context.Context, participantID int64, direction int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings, err := c.settingsLocked(ctx)
	if err != nil {
		return err
	}

	coeff, err := c.coeffs.Get(ctx, participantID)
	if err != nil {
		return fmt.Errorf("failed to load coefficient: %w", err)
	}
	if coeff == nil {
		coeff = &entity.RewardCoefficient{
			ParticipantID: participantID,
			Value:         settings.Default,
		}
	}

	before := coeff.Value
	if direction > 0 {
		coeff.Value = settings.Clamp(coeff.Value + settings.BonusStep)
	} else {
		coeff.Value = settings.Clamp(coeff.Value - settings.PenaltyStep)
	}
	coeff.UpdatedAt = c.clock.Now()

	if err := c.coeffs.Upsert(ctx, coeff); err != nil {
		return fmt.Errorf("failed to store coefficient: %w", err)
	}

	c.logger.Debug("Coefficient adjusted",
		zap.Int64("participant_id", participantID),
		zap.Float64("before", before),
		zap.Float64("after", coeff.Value))
	return nil
}

// Average returns the household average coefficient over the given
// participants. Participants without a stored coefficient count at the
// default; an empty roster yields the default.
func (c *Controller) Average(ctx context.Context, participantIDs []int64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings, err := c.settingsLocked(ctx)
	if err != nil {
		return 0, err
	}
	if len(participantIDs) == 0 {
		return settings.Default, nil
	}

	sum := 0.0
	for _, id := range participantIDs {
		coeff, err := c.coeffs.Get(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to load coefficient: %w", err)
		}
		if coeff == nil {
			sum += settings.Default
		} else {
			sum += coeff.Value
		}
	}
	return sum / float64(len(participantIDs)), nil
}

// Coefficients lists all stored coefficients
func (c *Controller) Coefficients(ctx context.Context) ([]*entity.RewardCoefficient, error) {
	return c.coeffs.List(ctx)
}

// Settings returns the active reward settings
func (c *Controller) Settings(ctx context.Context) (*entity.RewardSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settingsLocked(ctx)
}

// UpdateSettings replaces the reward settings at runtime. Changes apply
// prospectively only; existing coefficients are re-clamped on their next
// adjustment, not rewritten here.
func (c *Controller) UpdateSettings(ctx context.Context, s entity.RewardSettings) error {
	if err := validateSettings(s); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.coeffs.SaveSettings(ctx, &s); err != nil {
		return fmt.Errorf("failed to store reward settings: %w", err)
	}

	c.logger.Info("Reward settings updated",
		zap.Float64("min", s.Min),
		zap.Float64("max", s.Max),
		zap.Float64("default", s.Default),
		zap.Float64("bonus_step", s.BonusStep),
		zap.Float64("penalty_step", s.PenaltyStep))
	return nil
}

func (c *Controller) settingsLocked(ctx context.Context) (*entity.RewardSettings, error) {
	settings, err := c.coeffs.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reward settings: %w", err)
	}
	if settings == nil {
		return nil, fmt.Errorf("reward settings not initialized")
	}
	return settings, nil
}

func validateSettings(s entity.RewardSettings) error {
	if s.Min <= 0 || s.Max <= 0 {
		return fmt.Errorf("%w: bounds must be positive", ErrCoefficientRange)
	}
	if s.Min > s.Max {
		return fmt.Errorf("%w: min %.2f exceeds max %.2f", ErrCoefficientRange, s.Min, s.Max)
	}
	if s.Default < s.Min || s.Default > s.Max {
		return fmt.Errorf("%w: default %.2f outside [%.2f, %.2f]", ErrCoefficientRange, s.Default, s.Min, s.Max)
	}
	if s.BonusStep < 0 || s.PenaltyStep < 0 {
		return fmt.Errorf("%w: steps must be non-negative", ErrCoefficientRange)
	}
	return nil
}
