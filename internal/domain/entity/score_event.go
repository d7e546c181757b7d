package entity

import "time"

// ScoreReason classifies a ledger entry
type ScoreReason string

const (
	ReasonClaimMissPenalty       ScoreReason = "claim_miss_penalty"
	ReasonSLAMissPenalty         ScoreReason = "sla_miss_penalty"
	ReasonDeferralAdjustedAward  ScoreReason = "deferral_adjusted_award"
	ReasonReportApprovedAward    ScoreReason = "report_approved_award"
	ReasonDisputeResolutionAward ScoreReason = "dispute_resolution_award"
	ReasonReportRejectedPenalty  ScoreReason = "report_rejected_penalty"
	ReasonLateCancelPenalty      ScoreReason = "late_cancel_penalty"

	// ReasonSeasonReset is a zeroing boundary marker; history before it is
	// kept for audit but excluded from season balances
	ReasonSeasonReset ScoreReason = "season_reset"
)

var awardReasons = map[ScoreReason]bool{
	ReasonDeferralAdjustedAward:  true,
	ReasonReportApprovedAward:    true,
	ReasonDisputeResolutionAward: true,
}

var penaltyReasons = map[ScoreReason]bool{
	ReasonClaimMissPenalty:      true,
	ReasonSLAMissPenalty:        true,
	ReasonReportRejectedPenalty: true,
	ReasonLateCancelPenalty:     true,
}

// IsAward reports whether the reason requires a positive delta
func (r ScoreReason) IsAward() bool {
	return awardReasons[r]
}

// IsPenalty reports whether the reason requires a negative delta
func (r ScoreReason) IsPenalty() bool {
	return penaltyReasons[r]
}

// IsMarker reports whether the reason is a season boundary marker
func (r ScoreReason) IsMarker() bool {
	return r == ReasonSeasonReset
}

// IsValid checks the reason value
func (r ScoreReason) IsValid() bool {
	return r.IsAward() || r.IsPenalty() || r.IsMarker()
}

// ScoreEvent is one append-only point delta in the ledger
type ScoreEvent struct {
	ID             int64       `json:"id"`
	ParticipantID  int64       `json:"participant_id"`
	Delta          int         `json:"delta"`
	Reason         ScoreReason `json:"reason"`
	TaskInstanceID *int64      `json:"task_instance_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
