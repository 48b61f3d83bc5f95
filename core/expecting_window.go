package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExpectingWindow is the single device-local "I anticipate an incoming
// call" value. At most one window exists per process; opening a new one
// replaces the old. It is owned by the local device domain and never
// shared across devices.
type ExpectingWindow struct {
	mu        sync.Mutex
	window    ExpectingWindowSnapshot
	canceller NotificationCanceller
	nowFn     func() time.Time
}

func NewExpectingWindow(canceller NotificationCanceller) *ExpectingWindow {
	return &ExpectingWindow{
		canceller: canceller,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock. Test hook, same shape the sql stores use.
func (w *ExpectingWindow) WithNow(now func() time.Time) *ExpectingWindow {
	if w == nil || now == nil {
		return w
	}
	w.mu.Lock()
	w.nowFn = now
	w.mu.Unlock()
	return w
}

func (w *ExpectingWindow) Open(duration time.Duration) (ExpectingWindowSnapshot, error) {
	if w == nil {
		return ExpectingWindowSnapshot{}, fmt.Errorf("core: expecting window is not configured")
	}
	if duration <= 0 {
		return ExpectingWindowSnapshot{}, fmt.Errorf("%w: duration must be positive", ErrInvalidExpectingWindow)
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.nowFn().UTC()
	w.window = ExpectingWindowSnapshot{
		OpensAt:  now,
		ClosesAt: now.Add(duration),
	}
	return w.window, nil
}

func (w *ExpectingWindow) IsActive() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window.ActiveAt(w.nowFn().UTC())
}

func (w *ExpectingWindow) RemainingMinutes() int {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window.RemainingMinutes(w.nowFn().UTC())
}

// Snapshot hands the scheduler an immutable view so the re-arm decision
// stays a pure function of its inputs.
func (w *ExpectingWindow) Snapshot() ExpectingWindowSnapshot {
	if w == nil {
		return ExpectingWindowSnapshot{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.window
}

// Close drops the window immediately, regardless of expiry.
func (w *ExpectingWindow) Close(ctx context.Context) {
	if w == nil {
		return
	}
	w.mu.Lock()
	hadWindow := !w.window.Zero()
	w.window = ExpectingWindowSnapshot{}
	canceller := w.canceller
	w.mu.Unlock()

	if hadWindow && canceller != nil {
		canceller.CancelExpectingNotification(ctx)
	}
}

// Sweep clears an expired window and cancels the dependent notification.
// Reports whether anything was cleared. Called proactively by the
// scheduler so dependent state converges even with no further reads.
func (w *ExpectingWindow) Sweep(ctx context.Context, now time.Time) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	if w.window.Zero() || w.window.ActiveAt(now) {
		w.mu.Unlock()
		return false
	}
	w.window = ExpectingWindowSnapshot{}
	canceller := w.canceller
	w.mu.Unlock()

	if canceller != nil {
		canceller.CancelExpectingNotification(ctx)
	}
	return true
}

// OpenExpectingWindow opens the device window for the given number of
// minutes, replacing any existing window.
func (s *Service) OpenExpectingWindow(ctx context.Context, minutes int) (ExpectingWindowSnapshot, error) {
	if s == nil {
		return ExpectingWindowSnapshot{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()

	snapshot, err := s.expectingWindow.Open(time.Duration(minutes) * time.Minute)
	s.observeOperation(ctx, startedAt, "window.open", err, map[string]any{
		"minutes": minutes,
	})
	if err != nil {
		return ExpectingWindowSnapshot{}, s.mapError(err)
	}
	return snapshot, nil
}
