package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pavelsemenov/choreboard/internal/domain/event"
)

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	var order []string
	d.Subscribe(event.TypeScoreRecorded, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(event.TypeScoreRecorded, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})

	evt := event.New(event.TypeScoreRecorded, 1, nil)
	require.NoError(t, d.Dispatch(context.Background(), evt))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatch_OnlyMatchingType(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	var called atomic.Int32
	d.Subscribe(event.TypeSeasonEnded, "season", func(ctx context.Context, evt *event.Event) error {
		called.Add(1)
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), event.New(event.TypeScoreRecorded, 1, nil)))
	assert.Equal(t, int32(0), called.Load())
}

func TestDispatch_HandlerErrorStopsChain(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	var secondCalled atomic.Int32
	d.Subscribe(event.TypeVerdictReached, "failing", func(ctx context.Context, evt *event.Event) error {
		return errors.New("handler broke")
	})
	d.Subscribe(event.TypeVerdictReached, "after", func(ctx context.Context, evt *event.Event) error {
		secondCalled.Add(1)
		return nil
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeVerdictReached, 1, nil))
	assert.Error(t, err)
	assert.Equal(t, int32(0), secondCalled.Load())
}

func TestDispatch_HandlerPanicIsRecovered(t *testing.T) {
	d := New(zap.NewNop())
	defer d.Close()

	d.Subscribe(event.TypeDisputeOpened, "panicking", func(ctx context.Context, evt *event.Event) error {
		panic("boom")
	})

	err := d.Dispatch(context.Background(), event.New(event.TypeDisputeOpened, 1, nil))
	assert.Error(t, err)
}

func TestDispatchAsync_CloseWaitsForHandlers(t *testing.T) {
	d := New(zap.NewNop())

	var called atomic.Int32
	d.Subscribe(event.TypeInstanceAnnounced, "async", func(ctx context.Context, evt *event.Event) error {
		called.Add(1)
		return nil
	})

	d.DispatchAsync(context.Background(), event.New(event.TypeInstanceAnnounced, 1, nil))
	require.NoError(t, d.Close())
	assert.Equal(t, int32(1), called.Load())
}

func TestDispatch_AfterCloseFails(t *testing.T) {
	d := New(zap.NewNop())
	require.NoError(t, d.Close())

	err := d.Dispatch(context.Background(), event.New(event.TypeScoreRecorded, 1, nil))
	assert.Error(t, err)
	assert.Error(t, d.Close())
}
