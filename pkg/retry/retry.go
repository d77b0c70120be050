// Package retry implements the engine's exponential-backoff-with-jitter
// retry policy. The attempt loop, permanent-error short-circuiting, and
// notification hook are driven by github.com/cenkalti/backoff/v4, while
// the actual delay/jitter schedule is a custom BackOff implementation:
// jitter is applied before the MaxDelay cap rather than after (unlike
// cenkalti's own RandomizationFactor jitter), so the realized delay never
// exceeds MaxDelay. The jitter formula itself is the familiar
// backoff *= 1 + jitter*(rand.Float64()*2-1).
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dot-do/deltalake-sub000/pkg/errs"
)

// Clock and RandSource are explicit seams for deterministic tests: a real
// dependency, not a hidden field.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type RandSource interface {
	Float64() float64
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

type realRand struct{ r *rand.Rand }

func (rr realRand) Float64() float64 { return rr.r.Float64() }

// NewRealRand returns a RandSource seeded from the current time, suitable
// for production use; tests should inject a deterministic RandSource.
func NewRealRand() RandSource {
	return realRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Config configures the retry policy. Zero values for BaseDelay, MaxDelay
// and Multiplier (and JitterFactor, when Jitter is set) fall back to the
// defaults in NewConfig; a zero MaxRetries means no retries.
type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
	JitterFactor float64

	// IsRetryable additionally classifies errors as retryable, beyond the
	// built-in rule (ConcurrencyError, or any error exposing a truthy
	// Retryable() bool method).
	IsRetryable func(error) bool

	// OnRetry is invoked before each wait; returning false short-circuits
	// remaining retries.
	OnRetry func(attempt int, err error, delay time.Duration) bool
	// OnSuccess and OnFailure are invoked exactly once at the terminal
	// outcome.
	OnSuccess func()
	OnFailure func(err error)

	Clock Clock
	Rand  RandSource
}

// NewConfig returns a Config with sensible defaults: 3 retries (4
// attempts total), 100ms base delay, 10s max delay, 2x multiplier, jitter
// on with factor 0.5.
func NewConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		JitterFactor: 0.5,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseDelay == 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.JitterFactor == 0 && c.Jitter {
		c.JitterFactor = 0.5
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Rand == nil {
		c.Rand = NewRealRand()
	}
	return c
}

// retryableError is satisfied by errors that know their own retryability
// (e.g. *errs.ConcurrencyError); avoids an import cycle with pkg/errs for
// every error type that might want to opt in.
type retryableError interface {
	Retryable() bool
}

func isRetryable(cfg Config, err error) bool {
	if err == nil {
		return false
	}
	if errs.IsConcurrency(err) {
		return true
	}
	if re, ok := err.(retryableError); ok && re.Retryable() {
		return true
	}
	if cfg.IsRetryable != nil && cfg.IsRetryable(err) {
		return true
	}
	return false
}

// Metrics summarizes one WithRetry invocation. Attached to the returned
// error on failure, and returned alongside the result on success, when the
// caller asks via WithRetryMetrics.
type Metrics struct {
	Attempts     int
	Retries      int
	Succeeded    bool
	TotalDelayMs int64
	ElapsedMs    int64
	Delays       []time.Duration
	Errors       []error
}

// MetricsError wraps a terminal failure with the accumulated Metrics.
type MetricsError struct {
	Err     error
	Metrics Metrics
}

func (e *MetricsError) Error() string { return e.Err.Error() }
func (e *MetricsError) Unwrap() error { return e.Err }

// scheduleBackOff implements cenkalti/backoff/v4's BackOff interface with
// the formula delay_i = min(base*multiplier^i, maxDelay), with
// multiplicative jitter in [1-jitterFactor, 1+jitterFactor] applied BEFORE
// the maxDelay cap.
type scheduleBackOff struct {
	cfg     Config
	attempt int
	metrics *Metrics
}

func (s *scheduleBackOff) Reset() { s.attempt = 0 }

func (s *scheduleBackOff) NextBackOff() time.Duration {
	if s.attempt >= s.cfg.MaxRetries {
		return backoff.Stop
	}
	raw := float64(s.cfg.BaseDelay) * pow(s.cfg.Multiplier, s.attempt)
	if s.cfg.Jitter {
		raw *= 1 + s.cfg.JitterFactor*(s.cfg.Rand.Float64()*2-1)
		if raw < 0 {
			raw = 0
		}
	}
	if raw > float64(s.cfg.MaxDelay) {
		raw = float64(s.cfg.MaxDelay)
	}
	s.attempt++
	delay := time.Duration(raw)
	if s.metrics != nil {
		s.metrics.Delays = append(s.metrics.Delays, delay)
		s.metrics.TotalDelayMs += delay.Milliseconds()
	}
	return delay
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// WithRetry runs op, retrying it per cfg on retryable errors. ctx
// cancellation aborts between attempts (and mid-sleep) with an
// *errs.AbortError.
func WithRetry[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	result, _, err := withRetryMetrics(ctx, cfg, op)
	return result, err
}

// WithRetryMetrics behaves like WithRetry but always returns the populated
// Metrics alongside the result, win or lose (on loss, the same Metrics is
// also attached to the returned error via MetricsError).
func WithRetryMetrics[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, Metrics, error) {
	return withRetryMetrics(ctx, cfg, op)
}

func withRetryMetrics[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, Metrics, error) {
	cfg = cfg.withDefaults()
	var zero T
	metrics := Metrics{}
	start := cfg.Clock.Now()

	if err := ctx.Err(); err != nil {
		return zero, metrics, errs.NewAbort(err.Error())
	}

	sched := &scheduleBackOff{cfg: cfg, metrics: &metrics}
	bctx := backoff.WithContext(sched, ctx)

	var result T
	var lastErr error
	attempt := 0
	opErr := backoff.RetryNotify(func() error {
		attempt++
		metrics.Attempts = attempt
		var err error
		result, err = op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		metrics.Errors = append(metrics.Errors, err)
		if !isRetryable(cfg, err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx, func(err error, delay time.Duration) {
		metrics.Retries++
		if cfg.OnRetry != nil {
			if !cfg.OnRetry(attempt, err, delay) {
				sched.attempt = cfg.MaxRetries // short-circuit: next NextBackOff returns Stop
			}
		}
	})

	metrics.ElapsedMs = cfg.Clock.Now().Sub(start).Milliseconds()

	if opErr == nil {
		metrics.Succeeded = true
		if cfg.OnSuccess != nil {
			cfg.OnSuccess()
		}
		return result, metrics, nil
	}

	if ctx.Err() != nil {
		abortErr := errs.NewAbort(ctx.Err().Error())
		if cfg.OnFailure != nil {
			cfg.OnFailure(abortErr)
		}
		return zero, metrics, &MetricsError{Err: abortErr, Metrics: metrics}
	}

	finalErr := lastErr
	if finalErr == nil {
		finalErr = opErr
	}
	if cfg.OnFailure != nil {
		cfg.OnFailure(finalErr)
	}
	return zero, metrics, &MetricsError{Err: finalErr, Metrics: metrics}
}
