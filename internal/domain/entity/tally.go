package entity

import "time"

// Verdict is the outcome of peer voting on a report
type Verdict string

const (
	VerdictApprove  Verdict = "approve"
	VerdictReject   Verdict = "reject"
	VerdictDisputed Verdict = "disputed"
)

// IsValid checks the verdict value as cast by a voter (disputed is only a
// resolution outcome, never a ballot)
func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictReject
}

// MaxVoters bounds how many distinct voters participate in one tally
const MaxVoters = 2

// VoteWindow is how long a tally stays open before the deadline finalizes it
const VoteWindow = 15 * time.Minute

// Vote is a single (voter, verdict) pair
type Vote struct {
	VoterID int64     `json:"voter_id"`
	Verdict Verdict   `json:"verdict"`
	CastAt  time.Time `json:"cast_at"`
}

// VoteTally collects up to MaxVoters verdicts on one report
type VoteTally struct {
	ID               int64     `json:"id"`
	ReportID         int64     `json:"report_id"`
	Votes            []Vote    `json:"votes"`
	FinalizeDeadline time.Time `json:"finalize_deadline"`
	Finalized        bool      `json:"finalized"`
	Result           Verdict   `json:"result,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// HasVoter reports whether the given participant already voted
func (t *VoteTally) HasVoter(voterID int64) bool {
	for _, v := range t.Votes {
		if v.VoterID == voterID {
			return true
		}
	}
	return false
}

// Resolve derives the tally verdict from the cast votes. Two agreeing votes
// resolve to that verdict, two disagreeing votes to disputed. At the
// deadline a single vote stands alone and zero votes escalate to disputed
// for admin attention.
func (t *VoteTally) Resolve() Verdict {
	switch len(t.Votes) {
	case 0:
		return VerdictDisputed
	case 1:
		return t.Votes[0].Verdict
	default:
		if t.Votes[0].Verdict == t.Votes[1].Verdict {
			return t.Votes[0].Verdict
		}
		return VerdictDisputed
	}
}
