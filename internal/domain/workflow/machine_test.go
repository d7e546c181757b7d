package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskLifecycle_HappyPath(t *testing.T) {
	ctx := WithPhotoReport(context.Background(), true)
	sm := NewTaskLifecycle(StateOpen)

	require.NoError(t, sm.Fire(ctx, TriggerClaim))
	assert.Equal(t, StateClaimed, sm.State())

	require.NoError(t, sm.Fire(ctx, TriggerSubmitReport))
	assert.Equal(t, StateInReview, sm.State())

	require.NoError(t, sm.Fire(ctx, TriggerApprove))
	assert.Equal(t, StateClosedApproved, sm.State())
}

func TestTaskLifecycle_QuickKindClosesOnSubmit(t *testing.T) {
	ctx := WithPhotoReport(context.Background(), false)
	sm := NewTaskLifecycle(StateClaimed)

	require.NoError(t, sm.Fire(ctx, TriggerSubmitReport))
	assert.Equal(t, StateClosedApproved, sm.State())
}

func TestTaskLifecycle_RejectAndResume(t *testing.T) {
	ctx := context.Background()
	sm := NewTaskLifecycle(StateInReview)

	require.NoError(t, sm.Fire(ctx, TriggerReject))
	assert.Equal(t, StateClosedRejected, sm.State())

	require.NoError(t, sm.Fire(ctx, TriggerResume))
	assert.Equal(t, StateClaimed, sm.State())
}

func TestTaskLifecycle_DeferKeepsOpen(t *testing.T) {
	ctx := context.Background()
	sm := NewTaskLifecycle(StateOpen)

	require.NoError(t, sm.Fire(ctx, TriggerDefer))
	assert.Equal(t, StateOpen, sm.State())

	require.NoError(t, sm.Fire(ctx, TriggerClaimTimeout))
	assert.Equal(t, StateOpen, sm.State())
}

func TestTaskLifecycle_SLAExpireReopens(t *testing.T) {
	ctx := context.Background()
	sm := NewTaskLifecycle(StateClaimed)

	require.NoError(t, sm.Fire(ctx, TriggerSLAExpire))
	assert.Equal(t, StateOpen, sm.State())
}

func TestTaskLifecycle_CancelClaimReopens(t *testing.T) {
	ctx := context.Background()
	sm := NewTaskLifecycle(StateClaimed)

	require.NoError(t, sm.Fire(ctx, TriggerCancelClaim))
	assert.Equal(t, StateOpen, sm.State())
}

func TestTaskLifecycle_RetireOnlyFromOpen(t *testing.T) {
	ctx := context.Background()

	sm := NewTaskLifecycle(StateOpen)
	require.NoError(t, sm.Fire(ctx, TriggerRetire))
	assert.Equal(t, StateClosedTimedOut, sm.State())

	sm = NewTaskLifecycle(StateClaimed)
	err := sm.Fire(ctx, TriggerRetire)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTaskLifecycle_TerminalStatesHaveNoTriggers(t *testing.T) {
	for _, state := range []State{StateClosedApproved, StateClosedTimedOut} {
		sm := NewTaskLifecycle(state)
		assert.Empty(t, sm.PermittedTriggers(), "state %s", state)
		assert.ErrorIs(t, sm.Fire(context.Background(), TriggerClaim), ErrInvalidTransition)
	}
}

func TestTaskLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    State
		trigger Trigger
	}{
		{"approve from open", StateOpen, TriggerApprove},
		{"claim while claimed", StateClaimed, TriggerClaim},
		{"defer while claimed", StateClaimed, TriggerDefer},
		{"submit while in review", StateInReview, TriggerSubmitReport},
		{"sla expire in review", StateInReview, TriggerSLAExpire},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewTaskLifecycle(tt.from)
			err := sm.Fire(context.Background(), tt.trigger)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, sm.State())
		})
	}
}

func TestTaskLifecycle_SubmitReportGuardRouting(t *testing.T) {
	// Without the photo-report mark the submit trigger must not land in review
	sm := NewTaskLifecycle(StateClaimed)
	require.NoError(t, sm.Fire(context.Background(), TriggerSubmitReport))
	assert.Equal(t, StateClosedApproved, sm.State())
}

func TestTaskLifecycle_CanFire(t *testing.T) {
	sm := NewTaskLifecycle(StateOpen)

	assert.True(t, sm.CanFire(TriggerClaim))
	assert.True(t, sm.CanFire(TriggerDefer))
	assert.False(t, sm.CanFire(TriggerApprove))
}
