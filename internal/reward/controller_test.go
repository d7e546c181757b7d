package reward

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCoeffRepo struct {
	mu       sync.Mutex
	coeffs   map[int64]*entity.RewardCoefficient
	settings *entity.RewardSettings
}

func newMemCoeffRepo() *memCoeffRepo {
	return &memCoeffRepo{
		coeffs: make(map[int64]*entity.RewardCoefficient),
		settings: &entity.RewardSettings{
			Min:         0.5,
			Max:         2.0,
			Default:     1.0,
			BonusStep:   0.1,
			PenaltyStep: 0.2,
		},
	}
}

func (m *memCoeffRepo) Get(_ context.Context, participantID int64) (*entity.RewardCoefficient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coeffs[participantID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memCoeffRepo) Upsert(_ context.Context, c *entity.RewardCoefficient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.coeffs[c.ParticipantID] = &cp
	return nil
}

func (m *memCoeffRepo) List(_ context.Context) ([]*entity.RewardCoefficient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.RewardCoefficient, 0, len(m.coeffs))
	for _, c := range m.coeffs {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memCoeffRepo) GetSettings(_ context.Context) (*entity.RewardSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, nil
	}
	cp := *m.settings
	return &cp, nil
}

func (m *memCoeffRepo) SaveSettings(_ context.Context, s *entity.RewardSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings = &cp
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestController() (*Controller, *memCoeffRepo) {
	repo := newMemCoeffRepo()
	clock := fixedClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewController(repo, clock, zap.NewNop()), repo
}

func scoreEvent(participantID int64, reason entity.ScoreReason) *event.Event {
	return event.New(event.TypeScoreRecorded, 0, map[string]interface{}{
		"participant_id": participantID,
		"reason":         string(reason),
	})
}

func TestOnScoreRecorded_AwardNudgesUp(t *testing.T) {
	ctrl, repo := newTestController()
	ctx := context.Background()

	err := ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward))
	require.NoError(t, err)

	c, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 1.1, c.Value, 1e-9)
}

func TestOnScoreRecorded_PenaltyNudgesDown(t *testing.T) {
	ctrl, repo := newTestController()
	ctx := context.Background()

	err := ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonSLAMissPenalty))
	require.NoError(t, err)

	c, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 0.8, c.Value, 1e-9)
}

func TestOnScoreRecorded_MarkerIgnored(t *testing.T) {
	ctrl, repo := newTestController()
	ctx := context.Background()

	err := ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonSeasonReset))
	require.NoError(t, err)

	c, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNudge_ClampsAtBounds(t *testing.T) {
	ctrl, repo := newTestController()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward)))
		require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(2, entity.ReasonClaimMissPenalty)))
	}

	up, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, up.Value, 1e-9)

	down, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, down.Value, 1e-9)
}

func TestAverage_MixesStoredAndDefault(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	// Participant 1 moves to 1.2, participant 2 stays at the default 1.0
	require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward)))
	require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward)))

	avg, err := ctrl.Average(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.1, avg, 1e-9)
}

func TestAverage_EmptyRosterYieldsDefault(t *testing.T) {
	ctrl, _ := newTestController()

	avg, err := ctrl.Average(context.Background(), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, avg, 1e-9)
}

func TestUpdateSettings_Validation(t *testing.T) {
	ctrl, _ := newTestController()
	ctx := context.Background()

	tests := []struct {
		name     string
		settings entity.RewardSettings
		wantErr  bool
	}{
		{
			name:     "valid",
			settings: entity.RewardSettings{Min: 0.4, Max: 3.0, Default: 1.5, BonusStep: 0.05, PenaltyStep: 0.1},
		},
		{
			name:     "min above max",
			settings: entity.RewardSettings{Min: 2.0, Max: 1.0, Default: 1.5, BonusStep: 0.1, PenaltyStep: 0.1},
			wantErr:  true,
		},
		{
			name:     "default outside range",
			settings: entity.RewardSettings{Min: 0.5, Max: 2.0, Default: 2.5, BonusStep: 0.1, PenaltyStep: 0.1},
			wantErr:  true,
		},
		{
			name:     "negative step",
			settings: entity.RewardSettings{Min: 0.5, Max: 2.0, Default: 1.0, BonusStep: -0.1, PenaltyStep: 0.1},
			wantErr:  true,
		},
		{
			name:     "non-positive bound",
			settings: entity.RewardSettings{Min: 0, Max: 2.0, Default: 1.0, BonusStep: 0.1, PenaltyStep: 0.1},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctrl.UpdateSettings(ctx, tt.settings)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrCoefficientRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateSettings_AppliesProspectively(t *testing.T) {
	ctrl, repo := newTestController()
	ctx := context.Background()

	require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward)))

	err := ctrl.UpdateSettings(ctx, entity.RewardSettings{
		Min: 0.9, Max: 1.05, Default: 1.0, BonusStep: 0.1, PenaltyStep: 0.1,
	})
	require.NoError(t, err)

	// Existing value 1.1 is untouched until the next adjustment re-clamps it
	c, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, c.Value, 1e-9)

	require.NoError(t, ctrl.onScoreRecorded(ctx, scoreEvent(1, entity.ReasonReportApprovedAward)))
	c, err = repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.05, c.Value, 1e-9)
}
