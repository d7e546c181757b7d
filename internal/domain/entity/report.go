package entity

import "time"

// Report is a completion claim backed by an opaque evidence reference.
// Exactly one active report exists per task instance; a rejected report is
// superseded when the claimant resubmits.
type Report struct {
	ID             int64     `json:"id"`
	TaskInstanceID int64     `json:"task_instance_id"`
	ParticipantID  int64     `json:"participant_id"`
	EvidenceRef    string    `json:"evidence_ref"`
	Superseded     bool      `json:"superseded"`
	CreatedAt      time.Time `json:"created_at"`
}
