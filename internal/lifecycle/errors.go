package lifecycle

import "errors"

var (
	// ErrUnknownEntity indicates a reference to an instance, report or
	// dispute that does not exist
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNotClaimant indicates an action reserved for the participant
	// holding the claim
	ErrNotClaimant = errors.New("participant does not hold the claim")

	// ErrDisputeResolved indicates a dispute that was already resolved
	ErrDisputeResolved = errors.New("dispute already resolved")

	// ErrInvalidVerdict indicates a dispute resolution verdict that is
	// neither approve nor reject
	ErrInvalidVerdict = errors.New("invalid resolution verdict")
)
