package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxreader/internal/stages"
)

func testPolicy() Policy {
	return Policy{
		MaxRateLimitRetries: 3,
		MaxTransientRetries: 3,
		BaseDelay:           time.Millisecond,
		MaxDelay:            4 * time.Millisecond,
	}
}

func TestPolicy_Next_RateLimitBackoffDoubles(t *testing.T) {
	p := Policy{MaxRateLimitRetries: 4, BaseDelay: time.Second, MaxDelay: time.Minute}

	testCases := []struct {
		attempt int
		ok      bool
		delay   time.Duration
	}{
		{1, true, time.Second},
		{2, true, 2 * time.Second},
		{3, true, 4 * time.Second},
		{4, true, 8 * time.Second},
		{5, false, 0},
	}
	for _, tc := range testCases {
		ok, delay := p.Next(tc.attempt, stages.KindRateLimited)
		assert.Equal(t, tc.ok, ok, "attempt %d", tc.attempt)
		assert.Equal(t, tc.delay, delay, "attempt %d", tc.attempt)
	}
}

func TestPolicy_Next_BackoffIsCapped(t *testing.T) {
	p := Policy{MaxRateLimitRetries: 10, BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	ok, delay := p.Next(5, stages.KindRateLimited)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)
}

func TestPolicy_Next_TransientIsImmediate(t *testing.T) {
	p := testPolicy()

	ok, delay := p.Next(1, stages.KindTransient)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), delay)

	ok, _ = p.Next(4, stages.KindTransient)
	assert.False(t, ok, "transient budget is three retries")
}

func TestPolicy_Next_UnrecoverableNeverRetries(t *testing.T) {
	ok, _ := testPolicy().Next(1, stages.KindUnrecoverable)
	assert.False(t, ok)
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return stages.NewError(stages.KindTransient, errors.New("flaky"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ReturnsLastErrorWhenBudgetExhausted(t *testing.T) {
	calls := 0
	sentinel := errors.New("still broken")
	err := Do(context.Background(), testPolicy(), "op", func(ctx context.Context) error {
		calls++
		return stages.NewError(stages.KindTransient, sentinel)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 4, calls, "one initial attempt plus three retries")
}

func TestDo_UnrecoverableReturnsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), testPolicy(), "op", func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SeparateBudgetsPerClass(t *testing.T) {
	// Alternating failure classes: each class gets its own full budget,
	// so seven attempts run before the transient budget trips.
	calls := 0
	err := Do(context.Background(), testPolicy(), "op", func(ctx context.Context) error {
		calls++
		if calls%2 == 1 {
			return stages.NewError(stages.KindTransient, errors.New("t"))
		}
		return stages.NewError(stages.KindRateLimited, errors.New("r"))
	})
	require.Error(t, err)
	assert.Equal(t, 7, calls)
}

func TestDo_BackoffHonorsCancellation(t *testing.T) {
	p := Policy{MaxRateLimitRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, "op", func(ctx context.Context) error {
			return stages.NewError(stages.KindRateLimited, errors.New("429"))
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}
