package entity

import "time"

// DisputeStatus tracks whether an admin has resolved a dispute
type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputeResolved DisputeStatus = "resolved"
)

// Dispute is opened automatically when a vote tally ends in disagreement
// (or with no votes at all). It holds lookup-only references to the report
// and instance; ownership stays with the instance chain.
type Dispute struct {
	ID             int64         `json:"id"`
	TaskInstanceID int64         `json:"task_instance_id"`
	ReportID       int64         `json:"report_id"`
	Reason         string        `json:"reason"`
	Status         DisputeStatus `json:"status"`
	Note           string        `json:"note,omitempty"`
	ResolvedBy     string        `json:"resolved_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}
