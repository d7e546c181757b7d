package port

import (
	"context"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
)

// ParticipantRepository provides access to the household roster
type ParticipantRepository interface {
	Create(ctx context.Context, p *entity.Participant) error
	GetByID(ctx context.Context, id int64) (*entity.Participant, error)
	ListActive(ctx context.Context) ([]*entity.Participant, error)
}

// TemplateRepository provides read access for the core and admin-driven
// create/update for the template collaborator
type TemplateRepository interface {
	Create(ctx context.Context, t *entity.TaskTemplate) error
	Update(ctx context.Context, t *entity.TaskTemplate) error
	GetByID(ctx context.Context, id int64) (*entity.TaskTemplate, error)
	GetByCode(ctx context.Context, code string) (*entity.TaskTemplate, error)
	List(ctx context.Context) ([]*entity.TaskTemplate, error)
}

// InstanceRepository stores task instances. Instances are never deleted;
// terminal states are retained for history.
type InstanceRepository interface {
	Create(ctx context.Context, i *entity.TaskInstance) error
	GetByID(ctx context.Context, id int64) (*entity.TaskInstance, error)
	Update(ctx context.Context, i *entity.TaskInstance) error
	ListByDay(ctx context.Context, day time.Time) ([]*entity.TaskInstance, error)
	ListByStatus(ctx context.Context, status string) ([]*entity.TaskInstance, error)
	ListOpenBefore(ctx context.Context, day time.Time) ([]*entity.TaskInstance, error)
	CountForTemplateOnDay(ctx context.Context, templateID int64, day time.Time) (int, error)
}

// ReportRepository stores completion reports
type ReportRepository interface {
	Create(ctx context.Context, r *entity.Report) error
	GetByID(ctx context.Context, id int64) (*entity.Report, error)
	GetActiveByInstance(ctx context.Context, instanceID int64) (*entity.Report, error)
	Supersede(ctx context.Context, id int64) error
}

// TallyRepository stores vote tallies and their votes
type TallyRepository interface {
	Create(ctx context.Context, t *entity.VoteTally) error
	GetByID(ctx context.Context, id int64) (*entity.VoteTally, error)
	GetByReportID(ctx context.Context, reportID int64) (*entity.VoteTally, error)
	AddVote(ctx context.Context, tallyID int64, v entity.Vote) error
	MarkFinalized(ctx context.Context, tallyID int64, result entity.Verdict) error
}

// ScoreRepository is the append-only ledger store
type ScoreRepository interface {
	Append(ctx context.Context, e *entity.ScoreEvent) error
	SumSince(ctx context.Context, participantID int64, since *time.Time) (int, error)
	ListSince(ctx context.Context, since *time.Time) ([]*entity.ScoreEvent, error)
	LatestMarkerAt(ctx context.Context) (*time.Time, error)
}

// DisputeRepository stores disputes
type DisputeRepository interface {
	Create(ctx context.Context, d *entity.Dispute) error
	GetByID(ctx context.Context, id int64) (*entity.Dispute, error)
	GetOpenByInstance(ctx context.Context, instanceID int64) (*entity.Dispute, error)
	ListOpen(ctx context.Context) ([]*entity.Dispute, error)
	Resolve(ctx context.Context, id int64, note, resolvedBy string, at time.Time) error
}

// CoefficientRepository stores per-participant reward coefficients and the
// adaptive reward settings
type CoefficientRepository interface {
	Get(ctx context.Context, participantID int64) (*entity.RewardCoefficient, error)
	Upsert(ctx context.Context, c *entity.RewardCoefficient) error
	List(ctx context.Context) ([]*entity.RewardCoefficient, error)
	GetSettings(ctx context.Context) (*entity.RewardSettings, error)
	SaveSettings(ctx context.Context, s *entity.RewardSettings) error
}
