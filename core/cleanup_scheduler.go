package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultSweepFloorInterval = time.Hour

// ErrSweepInProgress reports that a sweep is already in flight. The
// single-flight guard is global: the scheduler and the administrative
// trigger share it.
var ErrSweepInProgress = errors.New("core: sweep already running")

// NextRunDelay decides when the next cleanup run must fire. Pure
// function of its inputs so the re-arm decision is unit-testable without
// a running scheduler: the sooner of the floor interval and, when a
// window is active, one minute past its remaining time.
func NextRunDelay(window ExpectingWindowSnapshot, floor time.Duration, now time.Time) time.Duration {
	if floor <= 0 {
		floor = defaultSweepFloorInterval
	}
	if !window.ActiveAt(now) {
		return floor
	}
	windowDelay := time.Duration(window.RemainingMinutes(now)+1) * time.Minute
	if windowDelay < floor {
		return windowDelay
	}
	return floor
}

// Sweep evicts expired state across every store, best effort per store:
// a failing store is logged and does not block the others. Counts in the
// result reflect successes only. Order: passes, expecting window, then
// verification attempts, then snapshot republication.
func (s *Service) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if s == nil {
		return SweepResult{}, fmt.Errorf("core: service is nil")
	}
	if !s.sweepGuard.TryLock() {
		return SweepResult{}, s.mapError(ErrSweepInProgress)
	}
	defer s.sweepGuard.Unlock()

	startedAt := s.clock()
	now = now.UTC()
	result := SweepResult{RanAt: now}
	var sweepErr error

	passCutoff := now.Add(-s.config.Sweep.PassGrace)
	if removed, err := s.passStore.SweepExpired(ctx, passCutoff); err != nil {
		sweepErr = joinSweepErrors(sweepErr, fmt.Errorf("core: pass sweep: %w", err))
	} else {
		result.PassesRemoved = removed
	}

	result.WindowCleared = s.expectingWindow.Sweep(ctx, now)

	if expired, err := s.verificationStore.ExpirePending(ctx, now); err != nil {
		sweepErr = joinSweepErrors(sweepErr, fmt.Errorf("core: token expiry sweep: %w", err))
	} else {
		result.TokensExpired = expired
	}
	tokenCutoff := now.Add(-s.config.Sweep.TokenRetention)
	if removed, err := s.verificationStore.DeleteTerminalBefore(ctx, tokenCutoff); err != nil {
		sweepErr = joinSweepErrors(sweepErr, fmt.Errorf("core: token retention sweep: %w", err))
	} else {
		result.TokensRemoved = removed
	}

	if err := s.snapshotPublisher.Publish(ctx, now); err != nil {
		sweepErr = joinSweepErrors(sweepErr, fmt.Errorf("core: snapshot publish: %w", err))
	} else {
		result.SnapshotWritten = s.snapshotPublisher.HasSink()
	}

	s.observeOperation(ctx, startedAt, "sweep.run", sweepErr, map[string]any{
		"passes_removed": result.PassesRemoved,
		"tokens_expired": result.TokensExpired,
		"tokens_removed": result.TokensRemoved,
		"window_cleared": result.WindowCleared,
	})
	return result, sweepErr
}

func joinSweepErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}

// CleanupScheduler re-arms a single logical recurring sweep. Every run
// recomputes the next delay from a fresh window snapshot, so an active
// window pulls the next run forward instead of waiting for the floor
// interval. Overlapping runs are skipped, never queued.
type CleanupScheduler struct {
	sweeper Sweeper
	window  *ExpectingWindow
	floor   time.Duration
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running bool
}

type CleanupSchedulerConfig struct {
	FloorInterval time.Duration
	Logger        Logger
	Now           func() time.Time
}

func NewCleanupScheduler(sweeper Sweeper, window *ExpectingWindow, cfg CleanupSchedulerConfig) (*CleanupScheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("core: sweeper is required")
	}
	if window == nil {
		window = NewExpectingWindow(nil)
	}
	floor := cfg.FloorInterval
	if floor <= 0 {
		floor = defaultSweepFloorInterval
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &CleanupScheduler{
		sweeper: sweeper,
		window:  window,
		floor:   floor,
		logger:  cfg.Logger,
		now:     nowFn,
		wake:    make(chan struct{}, 1),
	}, nil
}

// Start launches the scheduling loop. Returns an error when the
// scheduler is already running.
func (c *CleanupScheduler) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("core: cleanup scheduler is not configured")
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("core: cleanup scheduler already running")
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	go c.loop(ctx, stop, done)
	return nil
}

// Stop cancels the loop and waits for any in-flight run to finish, so a
// later Start cannot race a sweep from the previous generation.
func (c *CleanupScheduler) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	<-done
}

// Kick forces the loop to recompute its delay from a fresh window
// snapshot. Called after window open or close instead of restarting the
// scheduler; safe against an in-flight run because the run reads state
// at execution time, not at arm time.
func (c *CleanupScheduler) Kick() {
	if c == nil {
		return
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *CleanupScheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		delay := NextRunDelay(c.window.Snapshot(), c.floor, c.now().UTC())
		timer := time.NewTimer(delay)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-c.wake:
			timer.Stop()
			continue
		case <-timer.C:
			c.runOnce(ctx)
		}
	}
}

func (c *CleanupScheduler) runOnce(ctx context.Context) {
	result, err := c.sweeper.Sweep(ctx, c.now().UTC())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			c.logSchedulerInfo("sweep skipped, previous run still in flight", nil)
			return
		}
		// Failures retry on the next tick; the loop never dies.
		c.logSchedulerError("sweep run failed", err)
		return
	}
	c.logSchedulerInfo("sweep run completed", map[string]any{
		"passes_removed": result.PassesRemoved,
		"tokens_expired": result.TokensExpired,
		"tokens_removed": result.TokensRemoved,
		"window_cleared": result.WindowCleared,
	})
}

func (c *CleanupScheduler) logSchedulerInfo(message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if fieldsLogger, ok := logger.(FieldsLogger); ok && len(fields) > 0 {
		logger = fieldsLogger.WithFields(cloneMap(fields))
	}
	logger.Info(message, flattenFields(fields)...)
}

func (c *CleanupScheduler) logSchedulerError(message string, err error) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Error(message, "error", err.Error())
}

var _ Sweeper = (*Service)(nil)
