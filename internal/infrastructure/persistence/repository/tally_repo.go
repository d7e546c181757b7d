package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"go.uber.org/zap"
)

// TallyRepository handles vote tally database operations. Votes live in
// their own table keyed by tally, one row per voter.
type TallyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTallyRepository creates a new tally repository
func NewTallyRepository(db *sql.DB, logger *zap.Logger) *TallyRepository {
	return &TallyRepository{db: db, logger: logger}
}

// Create inserts a tally
func (r *TallyRepository) Create(ctx context.Context, t *entity.VoteTally) error {
	query := `
		INSERT INTO vote_tallies (report_id, finalize_deadline, finalized, result, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		t.ReportID, t.FinalizeDeadline, t.Finalized, string(t.Result), t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create tally", zap.Int64("report_id", t.ReportID), zap.Error(err))
		return fmt.Errorf("failed to create tally: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	return nil
}

// GetByID retrieves a tally with its votes
func (r *TallyRepository) GetByID(ctx context.Context, id int64) (*entity.VoteTally, error) {
	query := `
		SELECT id, report_id, finalize_deadline, finalized, result, created_at
		FROM vote_tallies
		WHERE id = ?
	`
	return r.getOne(ctx, query, id)
}

// GetByReportID retrieves the tally of a report
func (r *TallyRepository) GetByReportID(ctx context.Context, reportID int64) (*entity.VoteTally, error) {
	query := `
		SELECT id, report_id, finalize_deadline, finalized, result, created_at
		FROM vote_tallies
		WHERE report_id = ?
		ORDER BY id DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, reportID)
}

// AddVote appends one ballot to a tally
func (r *TallyRepository) AddVote(ctx context.Context, tallyID int64, v entity.Vote) error {
	query := `
		INSERT INTO votes (tally_id, voter_id, verdict, cast_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, tallyID, v.VoterID, string(v.Verdict), v.CastAt)
	if err != nil {
		r.logger.Error("Failed to add vote", zap.Int64("tally_id", tallyID), zap.Error(err))
		return fmt.Errorf("failed to add vote: %w", err)
	}
	return nil
}

// MarkFinalized stores the resolved verdict
func (r *TallyRepository) MarkFinalized(ctx context.Context, tallyID int64, result entity.Verdict) error {
	query := `UPDATE vote_tallies SET finalized = 1, result = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, string(result), tallyID)
	if err != nil {
		r.logger.Error("Failed to finalize tally", zap.Int64("tally_id", tallyID), zap.Error(err))
		return fmt.Errorf("failed to finalize tally: %w", err)
	}
	return nil
}

func (r *TallyRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.VoteTally, error) {
	var t entity.VoteTally
	var result string

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID, &t.ReportID, &t.FinalizeDeadline, &t.Finalized, &result, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get tally", zap.Error(err))
		return nil, fmt.Errorf("failed to get tally: %w", err)
	}
	t.Result = entity.Verdict(result)

	votes, err := r.loadVotes(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Votes = votes
	return &t, nil
}

func (r *TallyRepository) loadVotes(ctx context.Context, tallyID int64) ([]entity.Vote, error) {
	query := `
		SELECT voter_id, verdict, cast_at
		FROM votes
		WHERE tally_id = ?
		ORDER BY cast_at, rowid
	`

	rows, err := r.db.QueryContext(ctx, query, tallyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}
	defer rows.Close()

	var votes []entity.Vote
	for rows.Next() {
		var v entity.Vote
		var verdict string
		if err := rows.Scan(&v.VoterID, &verdict, &v.CastAt); err != nil {
			return nil, fmt.Errorf("failed to scan vote: %w", err)
		}
		v.Verdict = entity.Verdict(verdict)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
