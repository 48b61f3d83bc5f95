// Package retry implements the shared resilient-call wrapper every
// network-facing client binds to. Backoff math lives here once; callers
// supply only the operation and its failure classification.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 8 * time.Second
	defaultJitterFactor = 0.2
)

// StatusError carries an HTTP-style status for classification. A 429
// with RetryAfter set overrides the computed backoff entirely.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *StatusError) Error() string {
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("retry: status %d: %s", e.StatusCode, message)
}

// TransportError marks timeouts, DNS failures, lost connections and
// generic I/O failures. Always retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("retry: transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Retryable classifies a single failure:
//   - status 429 and 500-599 retry; 400-428 and 430-499 do not
//   - transport-level failures retry
//   - anything unclassified does not
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		switch {
		case code == http.StatusTooManyRequests:
			return true
		case code >= 500 && code <= 599:
			return true
		default:
			return false
		}
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// retryAfterOverride surfaces a server-provided wait hint. Only a 429
// carries one.
func retryAfterOverride(err error) (time.Duration, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) &&
		statusErr.StatusCode == http.StatusTooManyRequests &&
		statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter, true
	}
	return 0, false
}

type Config struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  defaultMaxAttempts,
		BaseDelay:    defaultBaseDelay,
		MaxDelay:     defaultMaxDelay,
		JitterFactor: defaultJitterFactor,
	}
}

func (c Config) normalized() Config {
	out := c
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = defaultBaseDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = defaultMaxDelay
	}
	if out.JitterFactor < 0 {
		out.JitterFactor = defaultJitterFactor
	}
	return out
}

// Executor runs an operation with bounded exponential backoff. Each
// Execute invocation is independent; no backoff state survives a call.
type Executor struct {
	config Config
	// Rand yields a uniform value in [0, 1) for the jitter term. Test
	// hook; defaults to math/rand.
	Rand func() float64
	// Sleep waits out a backoff delay. Test hook; the default honors
	// context cancellation.
	Sleep func(ctx context.Context, delay time.Duration) error
}

func New(cfg Config) *Executor {
	return &Executor{
		config: cfg.normalized(),
		Rand:   rand.Float64,
		Sleep:  waitWithContext,
	}
}

// Execute invokes op until it succeeds, fails non-retryably, or runs out
// of attempts. The last error is propagated unchanged.
func (e *Executor) Execute(ctx context.Context, op func(attempt int) error) error {
	if e == nil {
		return fmt.Errorf("retry: executor is not configured")
	}
	if op == nil {
		return fmt.Errorf("retry: operation is required")
	}
	cfg := e.config.normalized()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) || attempt == cfg.MaxAttempts {
			return lastErr
		}

		delay := e.nextDelay(err, attempt, cfg)
		if waitErr := e.sleep(ctx, delay); waitErr != nil {
			return lastErr
		}
	}
	return lastErr
}

// Do is Execute for operations that produce a value.
func Do[T any](ctx context.Context, e *Executor, op func(attempt int) (T, error)) (T, error) {
	var out T
	err := e.Execute(ctx, func(attempt int) error {
		value, opErr := op(attempt)
		if opErr != nil {
			return opErr
		}
		out = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// nextDelay computes the wait before the next attempt: a Retry-After
// hint wins outright; otherwise capped exponential backoff plus a
// uniformly random jitter in [0, delay*jitterFactor], always added.
func (e *Executor) nextDelay(err error, attempt int, cfg Config) time.Duration {
	if override, ok := retryAfterOverride(err); ok {
		return override
	}

	multiplier := math.Pow(2, float64(attempt-1))
	delay := time.Duration(float64(cfg.BaseDelay) * multiplier)
	if delay <= 0 || delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.JitterFactor > 0 {
		randFn := e.Rand
		if randFn == nil {
			randFn = rand.Float64
		}
		jitter := time.Duration(randFn() * cfg.JitterFactor * float64(delay))
		delay += jitter
	}
	return delay
}

func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	sleepFn := e.Sleep
	if sleepFn == nil {
		sleepFn = waitWithContext
	}
	return sleepFn(ctx, delay)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
