// Package gojob bridges the cleanup sweep onto go-job queue contracts
// so deployments that already run a job worker can schedule sweeps
// through it instead of the in-process scheduler.
package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-callpass/adapters/gologger"
	"github.com/goliatone/go-callpass/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

const JobIDSweep = "callpass.sweep"

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts int
	MaxDelay    time.Duration
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation:
// an unset disposition retries, and once the attempt count reaches
// MaxAttempts a retry disposition is forced over to dead-letter.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	var unset queue.NackDisposition
	if out.Disposition == unset {
		out.Disposition = queue.NackDispositionRetry
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts && out.Disposition == queue.NackDispositionRetry {
		out.Disposition = queue.NackDispositionDeadLetter
	}
	return out
}

// NewSweepMessage builds the queue message for one sweep run. The
// idempotency key buckets by minute so a re-armed schedule and an admin
// trigger landing together dedupe to one execution.
func NewSweepMessage(at time.Time) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          JobIDSweep,
		IdempotencyKey: JobIDSweep + "@" + at.UTC().Truncate(time.Minute).Format(time.RFC3339),
	}
}

// SweepEnqueuer schedules sweep runs through a go-job queue.
type SweepEnqueuer struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewSweepEnqueuer(enqueuer queue.Enqueuer) *SweepEnqueuer {
	return &SweepEnqueuer{
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

// WithClock overrides the enqueue timestamp source. Test hook.
func (e *SweepEnqueuer) WithClock(now func() time.Time) *SweepEnqueuer {
	if e != nil && now != nil {
		e.now = now
	}
	return e
}

// EnqueueSweep schedules one sweep run and returns the queue receipt so
// callers can observe deduplication against the minute bucket.
func (e *SweepEnqueuer) EnqueueSweep(ctx context.Context) (queue.EnqueueReceipt, error) {
	if e == nil || e.enqueuer == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: enqueuer is not configured")
	}
	return e.enqueuer.Enqueue(ctx, NewSweepMessage(e.now()))
}

// SweepProcessor executes sweep deliveries pulled off a go-job queue.
type SweepProcessor struct {
	sweeper core.Sweeper
	policy  RetryPolicy
	now     func() time.Time
	logger  glog.Logger
}

func NewSweepProcessor(sweeper core.Sweeper, policy RetryPolicy, logger glog.Logger) (*SweepProcessor, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("gojob: sweeper is required")
	}
	return &SweepProcessor{
		sweeper: sweeper,
		policy:  policy,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// WithClock overrides the sweep reference time. Test hook.
func (p *SweepProcessor) WithClock(now func() time.Time) *SweepProcessor {
	if p != nil && now != nil {
		p.now = now
	}
	return p
}

// Process runs the sweep for one delivery. A sweep already running
// elsewhere acks the delivery; the scheduled run it lost to covers the
// same work. Failures nack under the bounded retry policy.
func (p *SweepProcessor) Process(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if p == nil || p.sweeper == nil {
		return fmt.Errorf("gojob: sweep processor is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}

	result, err := p.sweeper.Sweep(ctx, p.now())
	if err != nil {
		if errors.Is(err, core.ErrSweepInProgress) {
			return delivery.Ack(ctx)
		}
		if p.logger != nil {
			p.logger.Error("sweep delivery failed", "error", err, "attempt", attempt)
		}
		nack := p.policy.NormalizeAttempt(queue.NackOptions{
			Disposition: queue.NackDispositionRetry,
			Reason:      err.Error(),
		}, attempt)
		return delivery.Nack(ctx, nack)
	}

	if p.logger != nil {
		p.logger.Info("sweep delivery completed",
			"passes_removed", result.PassesRemoved,
			"tokens_expired", result.TokensExpired,
			"tokens_removed", result.TokensRemoved,
		)
	}
	return delivery.Ack(ctx)
}

// NewWorkerLogging resolves the sweep worker's logging in one place: the
// lifecycle hook logs through glog while the returned go-job handles give
// the queue worker itself the same destination.
func NewWorkerLogging(provider glog.LoggerProvider, logger glog.Logger) (*LoggingWorkerHook, job.LoggerProvider, job.Logger) {
	bridge := gologger.NewBridge("callpass.sweep", provider, logger)
	return NewLoggingWorkerHook(bridge.Logger), bridge.JobProvider, bridge.JobLogger
}

// LoggingWorkerHook reports sweep worker lifecycle events through glog.
type LoggingWorkerHook struct {
	logger glog.Logger
}

func NewLoggingWorkerHook(logger glog.Logger) *LoggingWorkerHook {
	return &LoggingWorkerHook{logger: logger}
}

func (h *LoggingWorkerHook) OnStart(_ context.Context, event worker.Event) {
	h.log("sweep job started", event, nil)
}

func (h *LoggingWorkerHook) OnSuccess(_ context.Context, event worker.Event) {
	h.log("sweep job succeeded", event, nil)
}

func (h *LoggingWorkerHook) OnFailure(_ context.Context, event worker.Event) {
	h.log("sweep job failed", event, event.Err)
}

func (h *LoggingWorkerHook) OnRetry(_ context.Context, event worker.Event) {
	h.log("sweep job retrying", event, event.Err)
}

func (h *LoggingWorkerHook) log(message string, event worker.Event, err error) {
	if h == nil || h.logger == nil {
		return
	}
	args := []any{"attempt", event.Attempt}
	if msg := event.Message; msg != nil {
		args = append(args, "job_id", msg.JobID)
	}
	if err != nil {
		args = append(args, "error", err)
		h.logger.Error(message, args...)
		return
	}
	h.logger.Info(message, args...)
}

var _ worker.Hook = (*LoggingWorkerHook)(nil)
