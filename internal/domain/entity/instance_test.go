package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAwardPoints_DeferralSchedule(t *testing.T) {
	tests := []struct {
		name      string
		points    int
		deferrals int
		want      int
	}{
		{"no deferrals", 10, 0, 10},
		{"one deferral", 10, 1, 8},
		{"two deferrals", 10, 2, 6},
		{"deferrals clamped at schedule end", 10, 5, 6},
		{"rounds to nearest", 5, 1, 4},
		{"small award floors at zero", 0, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &TaskInstance{EffectivePoints: tt.points, Deferrals: tt.deferrals}
			assert.Equal(t, tt.want, inst.AwardPoints())
		})
	}
}

func TestCanDefer(t *testing.T) {
	inst := &TaskInstance{}
	assert.True(t, inst.CanDefer())

	inst.Deferrals = MaxDeferrals
	assert.False(t, inst.CanDefer())
}

func TestClaimedBy(t *testing.T) {
	inst := &TaskInstance{}
	assert.False(t, inst.ClaimedBy(1))

	claimant := int64(1)
	inst.ClaimantID = &claimant
	assert.True(t, inst.ClaimedBy(1))
	assert.False(t, inst.ClaimedBy(2))
}

func TestScoreReason_Classification(t *testing.T) {
	assert.True(t, ReasonReportApprovedAward.IsAward())
	assert.True(t, ReasonDeferralAdjustedAward.IsAward())
	assert.True(t, ReasonDisputeResolutionAward.IsAward())
	assert.True(t, ReasonSLAMissPenalty.IsPenalty())
	assert.True(t, ReasonLateCancelPenalty.IsPenalty())
	assert.True(t, ReasonSeasonReset.IsMarker())
	assert.False(t, ReasonSeasonReset.IsAward())
	assert.False(t, ScoreReason("made_up").IsValid())
}
