package port

import (
	"context"
	"time"
)

// Scheduler fires callbacks at specific instants. It is the sole component
// allowed to block on wall-clock waits; everything else is reactive.
// Job IDs are unique per pending timer; owners group jobs so all timers of
// one task instance can be cancelled in a batch.
type Scheduler interface {
	// ScheduleAt registers fn to run at the given instant, replacing any
	// pending job with the same id
	ScheduleAt(id, owner string, at time.Time, fn func(ctx context.Context))

	// ScheduleAfter registers fn to run after the given delay
	ScheduleAfter(id, owner string, delay time.Duration, fn func(ctx context.Context))

	// Cancel removes a pending job; returns false if no such job exists
	// (already fired or never scheduled)
	Cancel(id string) bool

	// CancelByOwner removes every pending job for an owner and returns
	// how many were cancelled
	CancelByOwner(owner string) int
}

// Clock abstracts wall-clock reads so deadline arithmetic is testable
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}
