package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time      { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

type fixedRand struct{ v float64 }

func (r fixedRand) Float64() float64 { return r.v }

func testConfig() Config {
	cfg := NewConfig()
	cfg.Clock = &fakeClock{now: time.Unix(0, 0)}
	cfg.Rand = fixedRand{v: 0.5} // no jitter when v == 0.5 (midpoint)
	return cfg
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), testConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesConcurrencyError(t *testing.T) {
	calls := 0
	result, err := WithRetry(context.Background(), testConfig(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errs.NewConcurrency(int64(calls), int64(calls+1))
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 3, calls)
}

func TestWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 2
	calls := 0
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errs.NewConcurrency(1, 2)
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestWithRetryDoesNotRetryPermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := WithRetry(context.Background(), testConfig(), func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryCustomIsRetryable(t *testing.T) {
	cfg := testConfig()
	sentinel := errors.New("custom retryable")
	cfg.IsRetryable = func(err error) bool { return errors.Is(err, sentinel) }

	calls := 0
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, sentinel
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithRetry(ctx, testConfig(), func(ctx context.Context) (int, error) {
		return 1, nil
	})
	assert.Error(t, err)
	var abortErr *errs.AbortError
	assert.ErrorAs(t, err, &abortErr)
}

func TestWithRetryMetricsTracksAttemptsAndRetries(t *testing.T) {
	calls := 0
	_, metrics, err := WithRetryMetrics(context.Background(), testConfig(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errs.NewConcurrency(1, 2)
		}
		return 1, nil
	})
	require.NoError(t, err)
	assert.True(t, metrics.Succeeded)
	assert.Equal(t, 2, metrics.Attempts)
	assert.Equal(t, 1, metrics.Retries)
}

func TestOnRetryCanShortCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 5
	retryCount := 0
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) bool {
		retryCount++
		return false // stop after first retry notification
	}
	calls := 0
	_, err := WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		calls++
		return 0, errs.NewConcurrency(1, 2)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, retryCount)
	assert.Equal(t, 2, calls) // one retry attempted, then short-circuited
}

func TestScheduleBackOffRespectsMaxDelay(t *testing.T) {
	cfg := Config{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   2 * time.Second,
		Multiplier: 2,
		Jitter:     false,
	}.withDefaults()
	sched := &scheduleBackOff{cfg: cfg}
	for i := 0; i < 5; i++ {
		d := sched.NextBackOff()
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}
