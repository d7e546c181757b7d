package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/pavelsemenov/choreboard/internal/domain/workflow"
	"go.uber.org/zap"
)

// onVerdict consumes a finalized tally from the voting engine. Verdict
// flow is strictly report to instance, so taking the instance lock here
// can never deadlock with a vote holding the report lock.
func (e *Engine) onVerdict(ctx context.Context, tally *entity.VoteTally) error {
	report, err := e.reports.GetByID(ctx, tally.ReportID)
	if err != nil {
		return fmt.Errorf("failed to load report for verdict: %w", err)
	}
	if report == nil {
		return fmt.Errorf("%w: report %d", ErrUnknownEntity, tally.ReportID)
	}

	instanceID := report.TaskInstanceID
	unlock := e.locks.Lock(instanceKey(instanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst == nil || inst.Status != string(workflow.StateInReview) ||
		inst.ReportID == nil || *inst.ReportID != report.ID {
		// Instance moved on (admin resolution or retirement); stale verdict
		return nil
	}

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeVerdictReached, instanceID, map[string]interface{}{
		"report_id": report.ID,
		"verdict":   string(tally.Result),
		"votes":     len(tally.Votes),
	}))

	switch tally.Result {
	case entity.VerdictApprove:
		machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
		if err := machine.Fire(ctx, workflow.TriggerApprove); err != nil {
			return fmt.Errorf("approve instance %d: %w", instanceID, err)
		}
		inst.Status = string(machine.State())
		inst.Version++
		_, err := e.closeApprovedLocked(ctx, inst, report.ParticipantID, awardReasonFor(inst))
		return err

	case entity.VerdictReject:
		return e.rejectLocked(ctx, inst, tmpl, report)

	default:
		return e.openDisputeLocked(ctx, inst, report, tally)
	}
}

// closeApprovedLocked finishes an approved instance: award recorded,
// timers dropped, instance persisted terminal. Caller holds the lock and
// has already driven the machine to CLOSED_APPROVED.
func (e *Engine) closeApprovedLocked(ctx context.Context, inst *entity.TaskInstance, claimantID int64, reason entity.ScoreReason) (*entity.TaskInstance, error) {
	now := e.clock.Now()
	inst.ClosedAt = &now

	e.scheduler.CancelByOwner(instanceOwner(inst.ID))

	if err := e.instances.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to persist approved instance: %w", err)
	}

	award := inst.AwardPoints()
	if award > 0 {
		instID := inst.ID
		if _, err := e.ledger.Record(ctx, claimantID, award, reason, &instID); err != nil {
			e.logger.Error("Failed to record award",
				zap.Int64("participant_id", claimantID), zap.Error(err))
		}
	}

	e.logger.Info("Instance closed approved",
		zap.Int64("instance_id", inst.ID),
		zap.Int64("participant_id", claimantID),
		zap.Int("award", award),
		zap.Int("deferrals", inst.Deferrals))

	return inst, nil
}

// rejectLocked drives a rejected report through the transient reopened
// state back to claimed with a shortened SLA
func (e *Engine) rejectLocked(ctx context.Context, inst *entity.TaskInstance, tmpl *entity.TaskTemplate, report *entity.Report) error {
	machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
	if err := machine.Fire(ctx, workflow.TriggerReject); err != nil {
		return fmt.Errorf("reject instance %d: %w", inst.ID, err)
	}
	if err := machine.Fire(ctx, workflow.TriggerResume); err != nil {
		return fmt.Errorf("resume instance %d: %w", inst.ID, err)
	}

	if tmpl.Penalty > 0 {
		instID := inst.ID
		if _, err := e.ledger.Record(ctx, report.ParticipantID, -tmpl.Penalty, entity.ReasonReportRejectedPenalty, &instID); err != nil {
			e.logger.Error("Failed to record rejection penalty",
				zap.Int64("participant_id", report.ParticipantID), zap.Error(err))
		}
	}

	resubmitSLA := time.Duration(float64(tmpl.SLA) * e.cfg.ResubmitSLAFactor)
	deadline := e.clock.Now().Add(resubmitSLA)

	inst.Status = string(machine.State())
	inst.SLADeadline = &deadline
	inst.Attempts++
	inst.Version++

	if err := e.instances.Update(ctx, inst); err != nil {
		return fmt.Errorf("failed to persist reopened instance: %w", err)
	}

	instanceID := inst.ID
	version := inst.Version
	e.scheduler.ScheduleAt(slaJobID(instanceID), instanceOwner(instanceID), deadline, func(ctx context.Context) {
		e.fireSLAExpire(ctx, instanceID, version)
	})

	e.logger.Info("Report rejected, work reopened",
		zap.Int64("instance_id", inst.ID),
		zap.Int64("participant_id", report.ParticipantID),
		zap.Int("attempts", inst.Attempts),
		zap.Time("sla_deadline", deadline))

	return nil
}

// openDisputeLocked records a disputed verdict for admin attention; the
// instance stays in review until resolution
func (e *Engine) openDisputeLocked(ctx context.Context, inst *entity.TaskInstance, report *entity.Report, tally *entity.VoteTally) error {
	reason := "split_verdict"
	if len(tally.Votes) == 0 {
		reason = "no_votes"
	}

	dispute := &entity.Dispute{
		TaskInstanceID: inst.ID,
		ReportID:       report.ID,
		Reason:         reason,
		Status:         entity.DisputeOpen,
		CreatedAt:      e.clock.Now(),
	}
	if err := e.disputes.Create(ctx, dispute); err != nil {
		return fmt.Errorf("failed to open dispute: %w", err)
	}

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeDisputeOpened, inst.ID, map[string]interface{}{
		"dispute_id": dispute.ID,
		"report_id":  report.ID,
		"reason":     reason,
	}))

	e.logger.Info("Dispute opened",
		zap.Int64("instance_id", inst.ID),
		zap.Int64("dispute_id", dispute.ID),
		zap.String("reason", reason))

	return nil
}

// ResolveDispute is the admin override for a disputed review: the forced
// verdict drives the same approve or reject path the voters would have
func (e *Engine) ResolveDispute(ctx context.Context, disputeID int64, verdict entity.Verdict, note, resolvedBy string) error {
	if !verdict.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidVerdict, verdict)
	}

	dispute, err := e.disputes.GetByID(ctx, disputeID)
	if err != nil {
		return fmt.Errorf("failed to load dispute: %w", err)
	}
	if dispute == nil {
		return fmt.Errorf("%w: dispute %d", ErrUnknownEntity, disputeID)
	}
	if dispute.Status == entity.DisputeResolved {
		return ErrDisputeResolved
	}

	unlock := e.locks.Lock(instanceKey(dispute.TaskInstanceID))
	defer unlock()

	inst, tmpl, err := e.loadPair(ctx, dispute.TaskInstanceID)
	if err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w: instance %d", ErrUnknownEntity, dispute.TaskInstanceID)
	}

	report, err := e.reports.GetByID(ctx, dispute.ReportID)
	if err != nil {
		return fmt.Errorf("failed to load disputed report: %w", err)
	}
	if report == nil {
		return fmt.Errorf("%w: report %d", ErrUnknownEntity, dispute.ReportID)
	}

	if inst.Status == string(workflow.StateInReview) {
		switch verdict {
		case entity.VerdictApprove:
			machine := workflow.NewTaskLifecycle(workflow.State(inst.Status))
			if err := machine.Fire(ctx, workflow.TriggerApprove); err != nil {
				return fmt.Errorf("resolve dispute %d: %w", disputeID, err)
			}
			inst.Status = string(machine.State())
			inst.Version++
			if _, err := e.closeApprovedLocked(ctx, inst, report.ParticipantID, entity.ReasonDisputeResolutionAward); err != nil {
				return err
			}
		case entity.VerdictReject:
			if err := e.rejectLocked(ctx, inst, tmpl, report); err != nil {
				return err
			}
		}
	}

	if err := e.disputes.Resolve(ctx, disputeID, note, resolvedBy, e.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark dispute resolved: %w", err)
	}

	e.dispatcher.DispatchAsync(ctx, event.New(event.TypeVerdictReached, inst.ID, map[string]interface{}{
		"report_id":   report.ID,
		"verdict":     string(verdict),
		"resolved_by": resolvedBy,
		"dispute_id":  disputeID,
	}))

	e.logger.Info("Dispute resolved",
		zap.Int64("dispute_id", disputeID),
		zap.String("verdict", string(verdict)),
		zap.String("resolved_by", resolvedBy))

	return nil
}

// awardReasonFor distinguishes a clean award from one reduced by the
// deferral schedule
func awardReasonFor(inst *entity.TaskInstance) entity.ScoreReason {
	if inst.Deferrals > 0 {
		return entity.ReasonDeferralAdjustedAward
	}
	return entity.ReasonReportApprovedAward
}
