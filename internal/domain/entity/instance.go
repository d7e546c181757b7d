package entity

import (
	"math"
	"time"
)

// MaxDeferrals caps how many times the claim deadline of one open period
// can be pushed back
const MaxDeferrals = 2

// DeferralExtension is added to the claim deadline on each deferral
const DeferralExtension = 30 * time.Minute

// deferralMultipliers maps deferral count to the award multiplier applied
// against the original effective points (not compounding per click)
var deferralMultipliers = [MaxDeferrals + 1]float64{1.0, 0.8, 0.6}

// TaskInstance is one dated occurrence of a template tracked through its
// lifecycle. EffectivePoints is fixed at generation time and never changes;
// only the award path applies deferral adjustments.
type TaskInstance struct {
	ID              int64      `json:"id"`
	TemplateID      int64      `json:"template_id"`
	Day             time.Time  `json:"day"`
	Slot            int        `json:"slot"`
	Status          string     `json:"status"`
	ClaimantID      *int64     `json:"claimant_id,omitempty"`
	EffectivePoints int        `json:"effective_points"`
	Deferrals       int        `json:"deferrals"`
	Attempts        int        `json:"attempts"`
	AnnounceRound   int        `json:"announce_round"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`
	ClaimDeadline   *time.Time `json:"claim_deadline,omitempty"`
	SLADeadline     *time.Time `json:"sla_deadline,omitempty"`
	ReportID        *int64     `json:"report_id,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// AwardPoints returns the points to award on approval: the fixed effective
// points reduced by the deferral schedule (x0.8 after one deferral, x0.6
// of the original after two).
func (i *TaskInstance) AwardPoints() int {
	deferrals := i.Deferrals
	if deferrals > MaxDeferrals {
		deferrals = MaxDeferrals
	}
	award := int(math.Round(float64(i.EffectivePoints) * deferralMultipliers[deferrals]))
	if award < 0 {
		award = 0
	}
	return award
}

// CanDefer reports whether another deferral is allowed in this open period
func (i *TaskInstance) CanDefer() bool {
	return i.Deferrals < MaxDeferrals
}

// ClaimedBy reports whether the instance is held by the given participant
func (i *TaskInstance) ClaimedBy(participantID int64) bool {
	return i.ClaimantID != nil && *i.ClaimantID == participantID
}
