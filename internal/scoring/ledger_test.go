package scoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pavelsemenov/choreboard/internal/application/dispatcher"
	"github.com/pavelsemenov/choreboard/internal/domain/entity"
	"github.com/pavelsemenov/choreboard/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memScoreRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*entity.ScoreEvent
}

func (m *memScoreRepo) Append(_ context.Context, e *entity.ScoreEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *memScoreRepo) SumSince(_ context.Context, participantID int64, since *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, e := range m.events {
		if e.ParticipantID != participantID {
			continue
		}
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		sum += e.Delta
	}
	return sum, nil
}

func (m *memScoreRepo) ListSince(_ context.Context, since *time.Time) ([]*entity.ScoreEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ScoreEvent
	for _, e := range m.events {
		if since != nil && e.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memScoreRepo) LatestMarkerAt(_ context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, e := range m.events {
		if !e.Reason.IsMarker() {
			continue
		}
		if latest == nil || e.CreatedAt.After(*latest) {
			at := e.CreatedAt
			latest = &at
		}
	}
	return latest, nil
}

type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestLedger() (*Ledger, *memScoreRepo, dispatcher.Dispatcher) {
	repo := &memScoreRepo{}
	disp := dispatcher.New(zap.NewNop())
	clock := &tickingClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewLedger(repo, disp, clock, zap.NewNop()), repo, disp
}

func TestRecord_AppendsAndNotifies(t *testing.T) {
	ledger, repo, disp := newTestLedger()
	ctx := context.Background()

	var (
		mu       sync.Mutex
		received []*event.Event
	)
	disp.Subscribe(event.TypeScoreRecorded, "capture", func(_ context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, evt)
		return nil
	})

	instanceID := int64(42)
	evt, err := ledger.Record(ctx, 1, 5, entity.ReasonReportApprovedAward, &instanceID)
	require.NoError(t, err)
	assert.NotZero(t, evt.ID)

	require.NoError(t, disp.Close())

	require.Len(t, repo.events, 1)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, int64(1), received[0].GetPayloadInt("participant_id"))
	assert.Equal(t, int64(5), received[0].GetPayloadInt("delta"))
	assert.Equal(t, int64(5), received[0].GetPayloadInt("balance"))
}

func TestRecord_SignValidation(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	tests := []struct {
		name   string
		delta  int
		reason entity.ScoreReason
	}{
		{"award with negative delta", -3, entity.ReasonReportApprovedAward},
		{"award with zero delta", 0, entity.ReasonDeferralAdjustedAward},
		{"penalty with positive delta", 3, entity.ReasonSLAMissPenalty},
		{"penalty with zero delta", 0, entity.ReasonClaimMissPenalty},
		{"marker via record", 0, entity.ReasonSeasonReset},
		{"unknown reason", 1, entity.ScoreReason("bogus")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Record(ctx, 1, tt.delta, tt.reason, nil)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestBalanceOf_SumsOnlyCurrentSeason(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Record(ctx, 1, 10, entity.ReasonReportApprovedAward, nil)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, 1, -4, entity.ReasonSLAMissPenalty, nil)
	require.NoError(t, err)

	balance, err := ledger.BalanceOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, balance)

	require.NoError(t, ledger.ResetSeason(ctx, []int64{1}))

	balance, err = ledger.BalanceOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance, "reset must zero the visible balance")

	_, err = ledger.Record(ctx, 1, 3, entity.ReasonDisputeResolutionAward, nil)
	require.NoError(t, err)

	balance, err = ledger.BalanceOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestResetSeason_KeepsHistory(t *testing.T) {
	ledger, repo, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Record(ctx, 1, 7, entity.ReasonReportApprovedAward, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.ResetSeason(ctx, []int64{1, 2}))

	all, err := ledger.EventsSince(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "reset appends markers without deleting prior events")
	require.Len(t, repo.events, 3)
}

func TestScoreboard_OrdersByPoints(t *testing.T) {
	ledger, _, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.Record(ctx, 1, 5, entity.ReasonReportApprovedAward, nil)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, 2, 9, entity.ReasonReportApprovedAward, nil)
	require.NoError(t, err)
	_, err = ledger.Record(ctx, 3, -2, entity.ReasonLateCancelPenalty, nil)
	require.NoError(t, err)

	standings, err := ledger.Scoreboard(ctx)
	require.NoError(t, err)

	require.Len(t, standings, 3)
	assert.Equal(t, Standing{ParticipantID: 2, Points: 9}, standings[0])
	assert.Equal(t, Standing{ParticipantID: 1, Points: 5}, standings[1])
	assert.Equal(t, Standing{ParticipantID: 3, Points: -2}, standings[2])
}
