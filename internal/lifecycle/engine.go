package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"github.com/pavelsemenov/choreboard/internal/scheduler"
	"github.com/pavelsemenov/choreboard/internal/scoring"
	"github.com/pavelsemenov/choreboard/internal/voting"
	"github.com/pavelsemenov/choreboard/pkg/utils"
	"go.uber.org/zap"
)

// Config carries the lifecycle knobs
type Config struct {
	// ReannounceDelay is how long after an unclaimed timeout the next
	// announcement is attempted (before quiet-hours adjustment)
	ReannounceDelay time.Duration

	// ReannounceCap bounds announcement rounds per instance; 0 means
	// unbounded, day rollover retires stale instances instead
	ReannounceCap int

	// ResubmitSLAFactor shortens the SLA granted after a rejected report
	ResubmitSLAFactor float64

	// QuietWindow defers announcements falling inside it
	QuietWindow scheduler.QuietWindow

	// Location is the household timezone for quiet-hours arithmetic
	Location *time.Location
}

// Engine owns every task instance's lifecycle. All mutation of one
// instance, whether from a participant action or a firing timer, is
// serialized on the instance id; timer callbacks additionally carry the
// instance version captured at scheduling time and no-op on mismatch.
type Engine struct {
	cfg Config

	templates    port.TemplateRepository
	instances    port.InstanceRepository
	reports      port.ReportRepository
	participants port.ParticipantRepository
	disputes     port.DisputeRepository

	voting     *voting.Engine
	ledger     *scoring.Ledger
	scheduler  port.Scheduler
	dispatcher dispatcher.Dispatcher
	clock      port.Clock
	logger     *zap.Logger
	locks      *utils.KeyedMutex

	exporter SeasonExporter
}

// NewEngine wires the lifecycle engine and registers it as the voting
// engine's verdict consumer. exporter may be nil to skip season exports.
func NewEngine(
	cfg Config,
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	reports port.ReportRepository,
	participants port.ParticipantRepository,
	disputes port.DisputeRepository,
	votingEngine *voting.Engine,
	ledger *scoring.Ledger,
	sched port.Scheduler,
	disp dispatcher.Dispatcher,
	clock port.Clock,
	exporter SeasonExporter,
	logger *zap.Logger,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	e := &Engine{
		cfg:          cfg,
		templates:    templates,
		instances:    instances,
		reports:      reports,
		participants: participants,
		disputes:     disputes,
		voting:       votingEngine,
		ledger:       ledger,
		scheduler:    sched,
		dispatcher:   disp,
		clock:        clock,
		logger:       logger,
		locks:        utils.NewKeyedMutex(),
		exporter:     exporter,
	}
	votingEngine.OnVerdict(e.onVerdict)
	return e
}

// ScheduleAnnouncement arms the announce timer for an instance, pushing
// the candidate instant out of quiet hours first
func (e *Engine) ScheduleAnnouncement(ctx context.Context, inst *entity.TaskInstance, candidate time.Time) {
	at := scheduler.NextAllowed(candidate, e.cfg.QuietWindow, e.cfg.Location)
	version := inst.Version
	id := inst.ID
	e.scheduler.ScheduleAt(announceJobID(id), instanceOwner(id), at, func(ctx context.Context) {
		e.fireAnnounce(ctx, id, version)
	})
	e.logger.Debug("Announcement scheduled",
		zap.Int64("instance_id", id),
		zap.Time("at", at))
}

// fireAnnounce opens (or re-opens) the claim window: fresh claim deadline,
// claim-timeout timer armed, announcement event out
func (e *Engine) fireAnnounce(ctx context.Context, instanceID, version int64) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		e.logger.Error("Announce fire failed to load instance",
			zap.Int64("instance_id", instanceID), zap.Error(err))
		return
	}
	if inst == nil || inst.Version != version || inst.Status != string(workflow.StateOpen) {
		return
	}

	e.announceLocked(ctx, inst, tmpl)
}

// announceLocked performs the announce under the instance lock
func (e *Engine) announceLocked(ctx context.Context, inst *entity.TaskInstance, tmpl *entity.TaskTemplate) {
	now := e.clock.Now()
	deadline := now.Add(tmpl.ClaimTimeout)
	inst.AnnounceRound++
	inst.ClaimDeadline = &deadline
	inst.Version++

	if err := e.instances.Update(ctx, inst); err != nil {
		e.logger.Error("Failed to persist announced instance",
			zap.Int64("instance_id", inst.ID), zap.Error(err))
		return
	}

	version := inst.Version
	id := inst.ID
	e.scheduler.ScheduleAt(claimTimeoutJobID(id), instanceOwner(id), deadline, func(ctx context.Context) {
		e.fireClaimTimeout(ctx, id, version)
	})

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeInstanceAnnounced, id, map[string]interface{}{
		"template_code":    tmpl.Code,
		"title":            tmpl.Title,
		"effective_points": inst.EffectivePoints,
		"round":            inst.AnnounceRound,
		"claim_deadline":   deadline,
	}))

	e.logger.Info("Instance announced",
		zap.Int64("instance_id", id),
		zap.Int("round", inst.AnnounceRound),
		zap.Time("claim_deadline", deadline))
}

// fireClaimTimeout handles an expired claim window: everyone is penalized,
// then the instance either retires (cap reached) or queues the next
// announcement through quiet hours
func (e *Engine) fireClaimTimeout(ctx context.Context, instanceID, version int64) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		e.logger.Error("Claim timeout failed to load instance",
			zap.Int64("instance_id", instanceID), zap.Error(err))
		return
	}
	if inst == nil || inst.Version != version || inst.Status != string(workflow.StateOpen) {
		return
	}

	e.penalizeAllParticipants(ctx, tmpl.Penalty, inst.ID)

	if e.cfg.ReannounceCap > 0 && inst.AnnounceRound >= e.cfg.ReannounceCap {
		e.retireLocked(ctx, inst, "reannounce_cap_reached")
		return
	}

	inst.ClaimDeadline = nil
	inst.Version++
	if err := e.instances.Update(ctx, inst); err != nil {
		e.logger.Error("Failed to persist timed-out instance",
			zap.Int64("instance_id", inst.ID), zap.Error(err))
		return
	}

	e.ScheduleAnnouncement(ctx, inst, e.clock.Now().Add(e.cfg.ReannounceDelay))

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeInstanceReopened, inst.ID, map[string]interface{}{
		"reason": "claim_timeout",
		"round":  inst.AnnounceRound,
	}))
}

// fireSLAExpire handles a claimed task whose work was never reported: the
// claimant takes a double penalty and the task reverts to open
func (e *Engine) fireSLAExpire(ctx context.Context, instanceID, version int64) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		e.logger.Error("SLA expire failed to load instance",
			zap.Int64("instance_id", instanceID), zap.Error(err))
		return
	}
	if inst == nil || inst.Version != version || inst.Status != string(workflow.StateClaimed) {
		return
	}

	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerSLAExpire); err != nil {
		e.logger.Error("SLA expire transition rejected",
			zap.Int64("instance_id", inst.ID), zap.Error(err))
		return
	}

	claimant := *inst.ClaimantID
	if tmpl.Penalty > 0 {
		instID := inst.ID
		if _, err := e.ledger.Record(ctx, claimant, -2*tmpl.Penalty, entity.ReasonSLAMissPenalty, &instID); err != nil {
			e.logger.Error("Failed to record SLA miss penalty",
				zap.Int64("participant_id", claimant), zap.Error(err))
		}
	}

	// Claim history resets for the new open period
	inst.Status = string(machine.State())
	inst.ClaimantID = nil
	inst.SLADeadline = nil
	inst.Deferrals = 0
	inst.Version++
	if err := e.instances.Update(ctx, inst); err != nil {
		e.logger.Error("Failed to persist reverted instance",
			zap.Int64("instance_id", inst.ID), zap.Error(err))
		return
	}

	e.ScheduleAnnouncement(ctx, inst, e.clock.Now())

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeInstanceReopened, inst.ID, map[string]interface{}{
		"reason":         "sla_missed",
		"participant_id": claimant,
	}))

	e.logger.Info("SLA missed, instance reverted to open",
		zap.Int64("instance_id", inst.ID),
		zap.Int64("claimant_id", claimant))
}

// penalizeAllParticipants records a claim-miss penalty for every active
// participant
func (e *Engine) penalizeAllParticipants(ctx context.Context, penalty int, instanceID int64) {
	if penalty <= 0 {
		return
	}
	roster, err := e.participants.ListActive(ctx)
	if err != nil {
		e.logger.Error("Failed to list participants for penalty", zap.Error(err))
		return
	}
	for _, p := range roster {
		instID := instanceID
		if _, err := e.ledger.Record(ctx, p.ID, -penalty, entity.ReasonClaimMissPenalty, &instID); err != nil {
			e.logger.Error("Failed to record claim miss penalty",
				zap.Int64("participant_id", p.ID), zap.Error(err))
		}
	}
}

// retireLocked closes an instance as timed out and drops its timers.
// Caller holds the instance lock.
func (e *Engine) retireLocked(ctx context.Context, inst *entity.TaskInstance, reason string) {
	now := e.clock.Now()
	inst.Status = string(workflow.StateClosedTimedOut)
	inst.ClaimDeadline = nil
	inst.SLADeadline = nil
	inst.ClosedAt = &now
	inst.Version++

	e.scheduler.CancelByOwner(instanceOwner(inst.ID))
	if inst.ReportID != nil {
		e.voting.CancelTally(*inst.ReportID)
	}

	if err := e.instances.Update(ctx, inst); err != nil {
		e.logger.Error("Failed to persist retired instance",
			zap.Int64("instance_id", inst.ID), zap.Error(err))
		return
	}

	e.logger.Info("Instance retired",
		zap.Int64("instance_id", inst.ID),
		zap.String("reason", reason))
}

// loadPair fetches an instance and its template
func (e *Engine) loadPair(ctx context.Context, instanceID int64) (*entity.TaskInstance, *entity.TaskTemplate, error) {
	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load instance: %w", err)
	}
	if inst == nil {
		return nil, nil, nil
	}
	tmpl, err := e.templates.GetByID(ctx, inst.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}
	if tmpl == nil {
		return nil, nil, fmt.Errorf("template %d missing for instance %d", inst.TemplateID, inst.ID)
	}
	return inst, tmpl, nil
}

func instanceKey(id int64) string {
	return fmt.Sprintf("instance:%d", id)
}

func instanceOwner(id int64) string {
	return fmt.Sprintf("instance:%d", id)
}

func announceJobID(id int64) string {
	return fmt.Sprintf("announce:%d", id)
}

func claimTimeoutJobID(id int64) string {
	return fmt.Sprintf("claim_timeout:%d", id)
}

func slaJobID(id int64) string {
	return fmt.Sprintf("sla:%d", id)
}
