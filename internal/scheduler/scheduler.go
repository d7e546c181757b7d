package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/port"
	"go.uber.org/zap"
)

// TimerScheduler fires callbacks at wall-clock instants. Jobs are keyed by
// id (replace-on-reschedule) and grouped by owner for batch cancellation.
// A job that is cancelled while its timer goroutine is already running
// finds its entry gone and turns into a no-op.
type TimerScheduler struct {
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*timerEntry
	owners map[string]map[string]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

type timerEntry struct {
	owner string
	timer *time.Timer
}

// New creates a timer scheduler
func New(logger *zap.Logger) *TimerScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &TimerScheduler{
		logger: logger,
		timers: make(map[string]*timerEntry),
		owners: make(map[string]map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ScheduleAt registers fn to run at the given instant
func (s *TimerScheduler) ScheduleAt(id, owner string, at time.Time, fn func(ctx context.Context)) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.ScheduleAfter(id, owner, delay, fn)
}

// ScheduleAfter registers fn to run after the given delay, replacing any
// pending job with the same id
func (s *TimerScheduler) ScheduleAfter(id, owner string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.logger.Warn("Scheduler stopped, dropping job", zap.String("job_id", id))
		return
	}

	s.removeLocked(id)

	entry := &timerEntry{owner: owner}
	entry.timer = time.AfterFunc(delay, func() {
		s.fire(id, fn)
	})
	s.timers[id] = entry

	if s.owners[owner] == nil {
		s.owners[owner] = make(map[string]struct{})
	}
	s.owners[owner][id] = struct{}{}

	s.logger.Debug("Job scheduled",
		zap.String("job_id", id),
		zap.String("owner", owner),
		zap.Duration("delay", delay))
}

// Cancel removes a pending job; returns false if no such job exists
func (s *TimerScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

// CancelByOwner removes every pending job for an owner
func (s *TimerScheduler) CancelByOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for id := range s.owners[owner] {
		if s.removeLocked(id) {
			cancelled++
		}
	}
	if cancelled > 0 {
		s.logger.Debug("Cancelled jobs by owner",
			zap.String("owner", owner),
			zap.Int("count", cancelled))
	}
	return cancelled
}

// Stop cancels all pending jobs and the context passed to callbacks
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for id := range s.timers {
		s.removeLocked(id)
	}
	s.cancel()
	s.logger.Info("Scheduler stopped")
}

// fire runs in the timer goroutine. The entry check makes a cancel that
// raced with the timer firing win: no entry, no callback.
func (s *TimerScheduler) fire(id string, fn func(ctx context.Context)) {
	s.mu.Lock()
	entry, ok := s.timers[id]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	delete(s.owners[entry.owner], id)
	if len(s.owners[entry.owner]) == 0 {
		delete(s.owners, entry.owner)
	}
	s.mu.Unlock()

	fn(s.ctx)
}

func (s *TimerScheduler) removeLocked(id string) bool {
	entry, ok := s.timers[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(s.timers, id)
	delete(s.owners[entry.owner], id)
	if len(s.owners[entry.owner]) == 0 {
		delete(s.owners, entry.owner)
	}
	return true
}

// Verify interface compliance
var _ port.Scheduler = (*TimerScheduler)(nil)
