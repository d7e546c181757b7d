package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"go.uber.org/zap"
)

// SeasonExporter writes the end-of-season report and returns its path
type SeasonExporter interface {
	WriteSeasonReport(ctx context.Context, standings []scoring.Standing, events []*entity.ScoreEvent, resetAt time.Time) (string, error)
}

// SeasonSummary is the outcome of an end-of-month reset
type SeasonSummary struct {
	Winner     *scoring.Standing  `json:"winner,omitempty"`
	Standings  []scoring.Standing `json:"standings"`
	Retired    int                `json:"retired_instances"`
	ReportPath string             `json:"report_path,omitempty"`
	ResetAt    time.Time          `json:"reset_at"`
}

// ForceAnnounce re-announces an open instance immediately, bypassing both
// the re-announce delay and quiet hours
func (e *Engine) ForceAnnounce(ctx context.Context, instanceID int64) error {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}
	if inst.Status != string(workflow.StateOpen) {
		return fmt.Errorf("force announce instance %d in state %s: %w",
			instanceID, inst.Status, workflow.ErrInvalidTransition)
	}

	e.scheduler.Cancel(announceJobID(instanceID))
	e.scheduler.Cancel(claimTimeoutJobID(instanceID))
	e.announceLocked(ctx, inst, tmpl)
	return nil
}

// Retire closes an open instance as timed out. The generator uses this on
// day rollover to supersede stale instances.
func (e *Engine) Retire(ctx context.Context, instanceID int64, reason string) error {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("failed to load instance: %w", err)
	}
	if inst == nil {
		return fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}

	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerRetire); err != nil {
		return fmt.Errorf("retire instance %d: %w", instanceID, err)
	}

	e.retireLocked(ctx, inst, reason)
	return nil
}

// EndMonth closes the season: every non-terminal instance is retired with
// its timers cancelled, the winner is read off the scoreboard, the season
// report is exported, and reset markers start the next season.
func (e *Engine) EndMonth(ctx context.Context) (*SeasonSummary, error) {
	standings, err := e.ledger.Scoreboard(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read scoreboard: %w", err)
	}

	events, err := e.seasonEvents(ctx)
	if err != nil {
		return nil, err
	}

	retired, err := e.retireAllActive(ctx)
	if err != nil {
		return nil, err
	}

	resetAt := e.clock.Now()
	summary := &SeasonSummary{
		Standings: standings,
		Retired:   retired,
		ResetAt:   resetAt,
	}
	if len(standings) > 0 {
		winner := standings[0]
		summary.Winner = &winner
	}

	if e.exporter != nil {
		path, err := e.exporter.WriteSeasonReport(ctx, standings, events, resetAt)
		if err != nil {
			e.logger.Error("Failed to export season report", zap.Error(err))
		} else {
			summary.ReportPath = path
		}
	}

	roster, err := e.participants.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants for reset: %w", err)
	}
	ids := make([]int64, 0, len(roster))
	for _, p := range roster {
		ids = append(ids, p.ID)
	}
	if err := e.ledger.ResetSeason(ctx, ids); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"reset_at":    resetAt,
		"retired":     retired,
		"report_path": summary.ReportPath,
	}
	if summary.Winner != nil {
		payload["winner_id"] = summary.Winner.ParticipantID
		payload["winner_points"] = summary.Winner.Points
	}
	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeSeasonEnded, 0, payload))

	e.logger.Info("Season ended",
		zap.Int("retired_instances", retired),
		zap.Int("standings", len(standings)))

	return summary, nil
}

// seasonEvents lists the ledger entries of the closing season
func (e *Engine) seasonEvents(ctx context.Context) ([]*entity.ScoreEvent, error) {
	events, err := e.ledger.EventsSince(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list season events: %w", err)
	}
	// Keep only entries after the most recent marker
	lastMarker := -1
	for i, ev := range events {
		if ev.Reason.IsMarker() {
			lastMarker = i
		}
	}
	return events[lastMarker+1:], nil
}

// retireAllActive force-closes every non-terminal instance, cancelling all
// of its pending timers under the instance lock
func (e *Engine) retireAllActive(ctx context.Context) (int, error) {
	active := []workflow.State{
		workflow.StateOpen,
		workflow.StateClaimed,
		workflow.StateInReview,
		workflow.StateClosedRejected,
	}

	retired := 0
	for _, state := range active {
		instances, err := e.instances.ListByStatus(ctx, string(state))
		if err != nil {
			return retired, fmt.Errorf("failed to list %s instances: %w", state, err)
		}
		for _, inst := range instances {
			unlock := e.locks.Lock(instanceKey(inst.ID))
			current, err := e.instances.GetByID(ctx, inst.ID)
			if err == nil && current != nil && !workflow.State(current.Status).IsTerminal() {
				e.retireLocked(ctx, current, "season_ended")
				retired++
			}
			unlock()
		}
	}
	return retired, nil
}
