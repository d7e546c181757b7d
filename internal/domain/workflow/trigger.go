package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerClaim        Trigger = "CLAIM"
	TriggerDefer        Trigger = "DEFER"
	TriggerClaimTimeout Trigger = "CLAIM_TIMEOUT"
	TriggerCancelClaim  Trigger = "CANCEL_CLAIM"
	TriggerSubmitReport Trigger = "SUBMIT_REPORT"
	TriggerSLAExpire    Trigger = "SLA_EXPIRE"
	TriggerApprove      Trigger = "APPROVE"
	TriggerReject       Trigger = "REJECT"
	TriggerResume       Trigger = "RESUME"
	TriggerRetire       Trigger = "RETIRE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
