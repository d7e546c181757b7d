package event

// Type identifies the type of domain event emitted to the transport layer
type Type string

const (
	TypeInstanceAnnounced Type = "instance.announced"
	TypeInstanceReopened  Type = "instance.reopened"
	TypeReportSubmitted   Type = "report.submitted"
	TypeVerdictReached    Type = "verdict.reached"
	TypeScoreRecorded     Type = "score.recorded"
	TypeDisputeOpened     Type = "dispute.opened"
	TypeSeasonEnded       Type = "season.ended"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInstanceAnnounced,
		TypeInstanceReopened,
		TypeReportSubmitted,
		TypeVerdictReached,
		TypeScoreRecorded,
		TypeDisputeOpened,
		TypeSeasonEnded:
		return true
	default:
		return false
	}
}
