package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"go.uber.org/zap"
)

var (
	// ErrInvalidEvent indicates a delta whose sign contradicts its reason
	ErrInvalidEvent = errors.New("invalid score event")
)

// Ledger is the append-only score store. Balances are derived by summing
// deltas since the latest season reset marker; nothing is ever updated in
// place and resets do not erase history.
type Ledger struct {
	scores     port.ScoreRepository
	dispatcher dispatcher.Dispatcher
	clock      port.Clock
	logger     *zap.Logger
}

// Standing is one scoreboard row
type Standing struct {
	ParticipantID int64 `json:"participant_id"`
	Points        int   `json:"points"`
}

// NewLedger creates a score ledger
func NewLedger(scores port.ScoreRepository, disp dispatcher.Dispatcher, clock port.Clock, logger *zap.Logger) *Ledger {
	return &Ledger{
		scores:     scores,
		dispatcher: disp,
		clock:      clock,
		logger:     logger,
	}
}

// Record appends one delta to the ledger. Award reasons require a positive
// delta and penalty reasons a negative one; markers go through ResetSeason.
func (l *Ledger) Record(ctx context.Context, participantID int64, delta int, reason entity.ScoreReason, instanceID *int64) (*entity.ScoreEvent, error) {
	switch {
	case reason.IsAward() && delta <= 0:
		return nil, fmt.Errorf("%w: award reason %s with delta %d", ErrInvalidEvent, reason, delta)
	case reason.IsPenalty() && delta >= 0:
		return nil, fmt.Errorf("%w: penalty reason %s with delta %d", ErrInvalidEvent, reason, delta)
	case reason.IsMarker():
		return nil, fmt.Errorf("%w: markers are written by season reset", ErrInvalidEvent)
	case !reason.IsValid():
		return nil, fmt.Errorf("%w: unknown reason %q", ErrInvalidEvent, reason)
	}

	evt := &entity.ScoreEvent{
		ParticipantID:  participantID,
		Delta:          delta,
		Reason:         reason,
		TaskInstanceID: instanceID,
		CreatedAt:      l.clock.Now(),
	}
	if err := l.scores.Append(ctx, evt); err != nil {
		return nil, fmt.Errorf("failed to append score event: %w", err)
	}

	l.logger.Info("Score recorded",
		zap.Int64("participant_id", participantID),
		zap.Int("delta", delta),
		zap.String("reason", string(reason)))

	balance, err := l.BalanceOf(ctx, participantID)
	if err != nil {
		l.logger.Warn("Failed to compute balance for score event",
			zap.Int64("participant_id", participantID),
			zap.Error(err))
		balance = 0
	}

	var notifyInstance int64
	if instanceID != nil {
		notifyInstance = *instanceID
	}
	l.dispatcher.DispatchAsync(ctx, event.New(event.TypeScoreRecorded, notifyInstance, map[string]interface{}{
		"participant_id": participantID,
		"delta":          delta,
		"reason":         string(reason),
		"balance":        balance,
	}))

	return evt, nil
}

// BalanceOf returns the participant's season balance: the sum of deltas
// appended after the latest season reset marker
func (l *Ledger) BalanceOf(ctx context.Context, participantID int64) (int, error) {
	since, err := l.scores.LatestMarkerAt(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to locate season marker: %w", err)
	}
	sum, err := l.scores.SumSince(ctx, participantID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to sum score events: %w", err)
	}
	return sum, nil
}

// Scoreboard aggregates season balances per participant, highest first
func (l *Ledger) Scoreboard(ctx context.Context) ([]Standing, error) {
	since, err := l.scores.LatestMarkerAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to locate season marker: %w", err)
	}
	events, err := l.scores.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list score events: %w", err)
	}

	totals := make(map[int64]int)
	for _, e := range events {
		if e.Reason.IsMarker() {
			continue
		}
		totals[e.ParticipantID] += e.Delta
	}

	standings := make([]Standing, 0, len(totals))
	for id, points := range totals {
		standings = append(standings, Standing{ParticipantID: id, Points: points})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return standings[i].ParticipantID < standings[j].ParticipantID
	})
	return standings, nil
}

// EventsSince lists raw ledger entries, oldest first. A nil since returns
// the full history.
func (l *Ledger) EventsSince(ctx context.Context, since *time.Time) ([]*entity.ScoreEvent, error) {
	return l.scores.ListSince(ctx, since)
}

// ResetSeason writes a zeroing marker for every given participant. Markers
// start the next season; prior events stay in the ledger for audit.
func (l *Ledger) ResetSeason(ctx context.Context, participantIDs []int64) error {
	now := l.clock.Now()
	for _, id := range participantIDs {
		evt := &entity.ScoreEvent{
			ParticipantID: id,
			Delta:         0,
			Reason:        entity.ReasonSeasonReset,
			CreatedAt:     now,
		}
		if err := l.scores.Append(ctx, evt); err != nil {
			return fmt.Errorf("failed to write season marker for participant %d: %w", id, err)
		}
	}

	l.logger.Info("Season reset markers written", zap.Int("participants", len(participantIDs)))
	return nil
}
