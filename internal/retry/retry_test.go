package retry

import (
	"context"
	"testing"
	"time"

	"github.com/citegraph/layout-engine/internal/breaker"
	appErrors "github.com/citegraph/layout-engine/pkg/errors"
	"github.com/citegraph/layout-engine/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_SucceedsWithoutRetry(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(5, 60*time.Second, clock)
	env := New(3, 1, b, clock, nil, nil)

	calls := 0
	err := env.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestEnvelope_RetriesTransientThenSucceeds(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(5, 60*time.Second, clock)
	reconnects := 0
	env := New(3, 1, b, clock, nil, func(ctx context.Context) error {
		reconnects++
		return nil
	})

	calls := 0
	err := env.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return appErrors.ErrTransientStore
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, reconnects)
}

func TestEnvelope_ExhaustsRetries(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(100, 60*time.Second, clock)
	env := New(2, 1, b, clock, nil, nil)

	calls := 0
	err := env.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return appErrors.ErrTransientStore
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestEnvelope_NonTransientErrorNotRetried(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(5, 60*time.Second, clock)
	env := New(3, 1, b, clock, nil, nil)

	calls := 0
	err := env.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return appErrors.ErrInvalidInput
	})

	assert.ErrorIs(t, err, appErrors.ErrInvalidInput)
	assert.Equal(t, 1, calls)
}

func TestEnvelope_CircuitOpenPropagatesWithoutRetry(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(1, 60*time.Second, clock)
	env := New(3, 1, b, clock, nil, nil)

	_ = env.Do(context.Background(), "op", func(ctx context.Context) error {
		return appErrors.ErrDatabaseError
	})
	require.Equal(t, breaker.Open, b.State())

	calls := 0
	err := env.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, appErrors.ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestEnvelope_ContextCancelledBeforeAttempt(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	b := breaker.New(5, 60*time.Second, clock)
	env := New(3, 1, b, clock, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.Do(ctx, "op", func(ctx context.Context) error {
		return nil
	})
	assert.Error(t, err)
}

func TestBackoffDuration(t *testing.T) {
	assert.Equal(t, 60*time.Second, backoffDuration(60, 0))
	assert.Equal(t, 120*time.Second, backoffDuration(60, 1))
	assert.Equal(t, 240*time.Second, backoffDuration(60, 2))
}

func TestProgressSink_ThrottlesEmissions(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	sink := NewProgressSink(time.Second, 10, 5, clock, nil)

	sink.Emit("phase", "first", 1, 10)
	sink.Emit("phase", "second", 2, 10) // within throttle window, dropped

	select {
	case ev := <-sink.Events():
		assert.Equal(t, "first", ev.Message)
	default:
		t.Fatal("expected first event")
	}

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestProgressSink_StallDetection(t *testing.T) {
	clock := utils.NewMockClock(time.Unix(0, 0))
	stalled := false
	sink := NewProgressSink(0, 10, 3, clock, func() { stalled = true })

	sink.NoteStall(false)
	sink.NoteStall(false)
	assert.False(t, stalled)
	sink.NoteStall(false)
	assert.True(t, stalled)
}
