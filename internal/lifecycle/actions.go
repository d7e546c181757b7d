package lifecycle

import (
	"context"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"go.uber.org/zap"
)

// Claim gives the open instance to the first participant asking for it.
// The claim-timeout timer is cancelled under the same lock that guards the
// transition, so a timer firing concurrently sees the bumped version and
// backs off.
func (e *Engine) Claim(ctx context.Context, instanceID, participantID int64) (*entity.TaskInstance, error) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}

	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerClaim); err != nil {
		return nil, fmt.Errorf("claim instance %d: %w", instanceID, err)
	}

	now := e.clock.Now()
	slaDeadline := now.Add(tmpl.SLA)

	inst.Status = string(machine.State())
	inst.ClaimantID = &participantID
	inst.ClaimDeadline = nil
	inst.SLADeadline = &slaDeadline
	inst.Version++

	e.scheduler.Cancel(announceJobID(instanceID))
	e.scheduler.Cancel(claimTimeoutJobID(instanceID))

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to persist claimed instance: %w", err)
	}

	version := inst.Version
	e.scheduler.ScheduleAt(slaJobID(instanceID), instanceOwner(instanceID), slaDeadline, func(ctx context.Context) {
		e.fireSLAExpire(ctx, instanceID, version)
	})

	e.logger.Info("Instance claimed",
		zap.Int64("instance_id", instanceID),
		zap.Int64("participant_id", participantID),
		zap.Time("sla_deadline", slaDeadline))

	return inst, nil
}

// Defer pushes the claim deadline back by one extension. Past the deferral
// cap the action is a silent no-op; the award multiplier schedule is
// applied at award time, never to the stored effective points.
func (e *Engine) Defer(ctx context.Context, instanceID, participantID int64) (*entity.TaskInstance, error) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, _, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}

	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerDefer); err != nil {
		return nil, fmt.Errorf("defer instance %d: %w", instanceID, err)
	}

	if !inst.CanDefer() {
		e.logger.Debug("Deferral cap reached, ignoring",
			zap.Int64("instance_id", instanceID),
			zap.Int64("participant_id", participantID))
		return inst, nil
	}

	base := e.clock.Now()
	if inst.ClaimDeadline != nil {
		base = *inst.ClaimDeadline
	}
	deadline := base.Add(entity.DeferralExtension)

	inst.Deferrals++
	inst.ClaimDeadline = &deadline
	inst.Version++

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to persist deferred instance: %w", err)
	}

	version := inst.Version
	e.scheduler.ScheduleAt(claimTimeoutJobID(instanceID), instanceOwner(instanceID), deadline, func(ctx context.Context) {
		e.fireClaimTimeout(ctx, instanceID, version)
	})

	e.logger.Info("Instance deferred",
		zap.Int64("instance_id", instanceID),
		zap.Int64("participant_id", participantID),
		zap.Int("deferrals", inst.Deferrals),
		zap.Time("claim_deadline", deadline))

	return inst, nil
}

// SubmitReport files the claimant's completion evidence. Photo-report
// kinds enter peer review with a vote tally; quick kinds close approved on
// the spot with the full deferral-adjusted award.
func (e *Engine) SubmitReport(ctx context.Context, instanceID, participantID int64, evidenceRef string) (*entity.TaskInstance, error) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}
	if !inst.ClaimedBy(participantID) {
		return nil, fmt.Errorf("%w: instance %d", ErrNotClaimant, instanceID)
	}

	fireCtx := workflow.WithPhotoReport(ctx, tmpl.RequiresPhotoReport())
	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(fireCtx, workflow.TriggerSubmitReport); err != nil {
		return nil, fmt.Errorf("submit report for instance %d: %w", instanceID, err)
	}

	e.scheduler.Cancel(slaJobID(instanceID))

	// A resubmission supersedes the previous report
	if prev, err := e.reports.GetActiveByInstance(ctx, instanceID); err != nil {
		return nil, fmt.Errorf("failed to check active report: %w", err)
	} else if prev != nil {
		if err := e.reports.Supersede(ctx, prev.ID); err != nil {
			return nil, fmt.Errorf("failed to supersede report: %w", err)
		}
	}

	report := &entity.Report{
		TaskInstanceID: instanceID,
		ParticipantID:  participantID,
		EvidenceRef:    evidenceRef,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.reports.Create(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report: %w", err)
	}

	inst.Status = string(machine.State())
	inst.ReportID = &report.ID
	inst.SLADeadline = nil
	inst.Version++

	if inst.Status == string(workflow.StateClosedApproved) {
		return e.closeApprovedLocked(ctx, inst, participantID, awardReasonFor(inst))
	}

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to persist instance in review: %w", err)
	}

	if _, err := e.voting.Open(ctx, report.ID, instanceOwner(instanceID)); err != nil {
		return nil, fmt.Errorf("failed to open vote tally: %w", err)
	}

	candidates, err := e.candidateVoters(ctx, participantID)
	if err != nil {
		e.logger.Warn("Failed to resolve candidate voters",
			zap.Int64("instance_id", instanceID), zap.Error(err))
	}

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeReportSubmitted, instanceID, map[string]interface{}{
		"report_id":        report.ID,
		"participant_id":   participantID,
		"evidence_ref":     evidenceRef,
		"candidate_voters": candidates,
	}))

	e.logger.Info("Report submitted for review",
		zap.Int64("instance_id", instanceID),
		zap.Int64("report_id", report.ID))

	return inst, nil
}

// CancelClaim releases a claimed instance back to open. Giving up after
// claiming costs the template penalty.
func (e *Engine) CancelClaim(ctx context.Context, instanceID, participantID int64) (*entity.TaskInstance, error) {
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: instance %d", ErrUnknownEntity, instanceID)
	}
	if !inst.ClaimedBy(participantID) {
		return nil, fmt.Errorf("%w: instance %d", ErrNotClaimant, instanceID)
	}

	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerCancelClaim); err != nil {
		return nil, fmt.Errorf("cancel claim for instance %d: %w", instanceID, err)
	}

	e.scheduler.Cancel(slaJobID(instanceID))

	if tmpl.Penalty > 0 {
		instID := instanceID
		if _, err := e.ledger.Record(ctx, participantID, -tmpl.Penalty, entity.ReasonLateCancelPenalty, &instID); err != nil {
			e.logger.Error("Failed to record late cancel penalty",
				zap.Int64("participant_id", participantID), zap.Error(err))
		}
	}

	inst.Status = string(machine.State())
	inst.ClaimantID = nil
	inst.SLADeadline = nil
	inst.Deferrals = 0
	inst.Version++

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to persist released instance: %w", err)
	}

	e.ScheduleAnnouncement(ctx, inst, e.clock.Now())

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeInstanceReopened, instanceID, map[string]interface{}{
		"reason":         "claim_cancelled",
		"participant_id": participantID,
	}))

	e.logger.Info("Claim cancelled",
		zap.Int64("instance_id", instanceID),
		zap.Int64("participant_id", participantID))

	return inst, nil
}

// candidateVoters returns the active roster minus the report author,
// capped at the tally size
func (e *Engine) candidateVoters(ctx context.Context, claimantID int64) ([]int64, error) {
	roster, err := e.participants.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	candidates := make([]int64, 0, entity.MaxVoters)
	for _, p := range roster {
		if p.ID == claimantID {
			continue
		}
		candidates = append(candidates, p.ID)
		if len(candidates) == entity.MaxVoters {
			break
		}
	}
	return candidates, nil
}
