package voting

import "errors"

var (
	// ErrTallyNotFound indicates no open tally exists for the report
	ErrTallyNotFound = errors.New("vote tally not found")

	// ErrTallyFinalized indicates the tally already produced a verdict
	ErrTallyFinalized = errors.New("vote tally already finalized")

	// ErrDuplicateVoter indicates the participant already voted on this tally
	ErrDuplicateVoter = errors.New("participant already voted")

	// ErrSelfVote indicates the report author tried to vote on their own work
	ErrSelfVote = errors.New("cannot vote on own report")

	// ErrInvalidBallot indicates a verdict value that is not a castable ballot
	ErrInvalidBallot = errors.New("invalid ballot verdict")
)
