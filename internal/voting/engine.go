package voting

import (
	"context"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/application/port"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/pkg/utils"
	"go.uber.org/zap"
)

// VerdictFunc receives the finalized tally exactly once per report
type VerdictFunc func(ctx context.Context, tally *entity.VoteTally) error

// Engine runs peer voting on submitted reports. One tally per active
// report, at most two distinct voters, finalized by the second vote or by
// the deadline timer, whichever comes first. All mutation of one tally is
// serialized on a per-report lock, so the deadline callback and a
// concurrent vote cannot both finalize.
type Engine struct {
	tallies   port.TallyRepository
	reports   port.ReportRepository
	scheduler port.Scheduler
	clock     port.Clock
	logger    *zap.Logger
	locks     *utils.KeyedMutex

	verdictFn VerdictFunc
}

// NewEngine creates a voting engine
func NewEngine(
	tallies port.TallyRepository,
	reports port.ReportRepository,
	scheduler port.Scheduler,
	clock port.Clock,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		tallies:   tallies,
		reports:   reports,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		locks:     utils.NewKeyedMutex(),
	}
}

// OnVerdict registers the callback invoked when a tally finalizes. Must be
// called before the first Open.
func (e *Engine) OnVerdict(fn VerdictFunc) {
	e.verdictFn = fn
}

// Open creates a tally for the report and arms the finalize deadline.
// Timer jobs are registered under the given owner so the caller can batch
// cancel them together with the rest of the instance's timers.
func (e *Engine) Open(ctx context.Context, reportID int64, owner string) (*entity.VoteTally, error) {
	unlock := e.locks.Lock(reportKey(reportID))
	defer unlock()

	existing, err := e.tallies.GetByReportID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing tally: %w", err)
	}
	if existing != nil && !existing.Finalized {
		return existing, nil
	}

	now := e.clock.Now()
	tally := &entity.VoteTally{
		ReportID:         reportID,
		FinalizeDeadline: now.Add(entity.VoteWindow),
		CreatedAt:        now,
	}
	if err := e.tallies.Create(ctx, tally); err != nil {
		return nil, fmt.Errorf("failed to create tally: %w", err)
	}

	e.scheduler.ScheduleAt(finalizeJobID(reportID), owner, tally.FinalizeDeadline, func(ctx context.Context) {
		e.finalizeAtDeadline(ctx, reportID)
	})

	e.logger.Info("Vote tally opened",
		zap.Int64("report_id", reportID),
		zap.Int64("tally_id", tally.ID),
		zap.Time("finalize_deadline", tally.FinalizeDeadline))

	return tally, nil
}

// Cast records one ballot. The second distinct vote finalizes the tally
// immediately and the deadline timer is cancelled.
func (e *Engine) Cast(ctx context.Context, reportID, voterID int64, verdict entity.Verdict) (*entity.VoteTally, error) {
	if !verdict.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBallot, verdict)
	}

	unlock := e.locks.Lock(reportKey(reportID))
	defer unlock()

	tally, err := e.tallies.GetByReportID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tally: %w", err)
	}
	if tally == nil {
		return nil, ErrTallyNotFound
	}
	if tally.Finalized {
		return nil, ErrTallyFinalized
	}

	report, err := e.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	if report != nil && report.ParticipantID == voterID {
		return nil, ErrSelfVote
	}

	if tally.HasVoter(voterID) {
		return nil, ErrDuplicateVoter
	}
	if len(tally.Votes) >= entity.MaxVoters {
		return nil, ErrTallyFinalized
	}

	vote := entity.Vote{VoterID: voterID, Verdict: verdict, CastAt: e.clock.Now()}
	if err := e.tallies.AddVote(ctx, tally.ID, vote); err != nil {
		return nil, fmt.Errorf("failed to record vote: %w", err)
	}
	tally.Votes = append(tally.Votes, vote)

	e.logger.Info("Vote cast",
		zap.Int64("report_id", reportID),
		zap.Int64("voter_id", voterID),
		zap.String("verdict", string(verdict)),
		zap.Int("votes", len(tally.Votes)))

	if len(tally.Votes) == entity.MaxVoters {
		if err := e.finalizeLocked(ctx, tally); err != nil {
			return nil, err
		}
	}

	return tally, nil
}

// CancelTally drops the pending finalize timer for a report. Used when the
// instance retires out from under an open tally.
func (e *Engine) CancelTally(reportID int64) {
	e.scheduler.Cancel(finalizeJobID(reportID))
}

// finalizeAtDeadline is the timer callback. A tally finalized by a second
// vote in the meantime makes this a no-op.
func (e *Engine) finalizeAtDeadline(ctx context.Context, reportID int64) {
	unlock := e.locks.Lock(reportKey(reportID))
	defer unlock()

	tally, err := e.tallies.GetByReportID(ctx, reportID)
	if err != nil {
		e.logger.Error("Failed to load tally at deadline",
			zap.Int64("report_id", reportID),
			zap.Error(err))
		return
	}
	if tally == nil || tally.Finalized {
		return
	}

	if err := e.finalizeLocked(ctx, tally); err != nil {
		e.logger.Error("Failed to finalize tally at deadline",
			zap.Int64("report_id", reportID),
			zap.Error(err))
	}
}

// finalizeLocked resolves and persists the verdict, then notifies the
// registered callback. Caller holds the per-report lock.
func (e *Engine) finalizeLocked(ctx context.Context, tally *entity.VoteTally) error {
	result := tally.Resolve()
	if err := e.tallies.MarkFinalized(ctx, tally.ID, result); err != nil {
		return fmt.Errorf("failed to finalize tally: %w", err)
	}
	tally.Finalized = true
	tally.Result = result

	e.scheduler.Cancel(finalizeJobID(tally.ReportID))

	e.logger.Info("Vote tally finalized",
		zap.Int64("report_id", tally.ReportID),
		zap.String("result", string(result)),
		zap.Int("votes", len(tally.Votes)))

	if e.verdictFn != nil {
		if err := e.verdictFn(ctx, tally); err != nil {
			return fmt.Errorf("verdict handler failed: %w", err)
		}
	}
	return nil
}

func reportKey(reportID int64) string {
	return fmt.Sprintf("report:%d", reportID)
}

func finalizeJobID(reportID int64) string {
	return fmt.Sprintf("vote_finalize:%d", reportID)
}
