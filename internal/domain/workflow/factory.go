package workflow

import "context"

type contextKey string

const photoReportKey contextKey = "photo_report"

// WithPhotoReport marks the firing context with the template kind so the
// SUBMIT_REPORT trigger can route to review or straight to approval.
func WithPhotoReport(ctx context.Context, required bool) context.Context {
	return context.WithValue(ctx, photoReportKey, required)
}

func photoReportRequired(ctx context.Context) bool {
	required, ok := ctx.Value(photoReportKey).(bool)
	return ok && required
}

// NewTaskLifecycle creates a state machine configured for the chore task lifecycle
func NewTaskLifecycle(initialState State) StateMachine {
	builder := NewBuilder()

	// OPEN: claim wins the slot; deferrals and claim timeouts keep it open;
	// the generator retires instances it supersedes on day rollover.
	builder.Configure(StateOpen).
		Permit(TriggerClaim, StateClaimed).
		PermitReentry(TriggerDefer).
		PermitReentry(TriggerClaimTimeout).
		Permit(TriggerRetire, StateClosedTimedOut)

	// CLAIMED: a report either goes to peer review (photo kinds) or closes
	// the task outright; an expired SLA reopens it.
	builder.Configure(StateClaimed).
		PermitIf(TriggerSubmitReport, StateInReview, photoReportRequired).
		PermitIf(TriggerSubmitReport, StateClosedApproved, func(ctx context.Context) bool {
			return !photoReportRequired(ctx)
		}).
		Permit(TriggerSLAExpire, StateOpen).
		Permit(TriggerCancelClaim, StateOpen)

	builder.Configure(StateInReview).
		Permit(TriggerApprove, StateClosedApproved).
		Permit(TriggerReject, StateClosedRejected)

	// Rejected reports immediately restart the work with a shortened SLA
	builder.Configure(StateClosedRejected).
		Permit(TriggerResume, StateClaimed)

	// CLOSED_APPROVED and CLOSED_TIMED_OUT are terminal - no outgoing transitions

	return builder.Build(initialState)
}
