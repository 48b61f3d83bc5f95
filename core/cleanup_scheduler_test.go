package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

func TestNextRunDelay(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		window ExpectingWindowSnapshot
		floor  time.Duration
		want   time.Duration
	}{
		{
			name:  "no window sleeps the floor",
			floor: time.Hour,
			want:  time.Hour,
		},
		{
			name: "active window pulls the run forward",
			window: ExpectingWindowSnapshot{
				OpensAt:  now.Add(-time.Minute),
				ClosesAt: now.Add(5 * time.Minute),
			},
			floor: time.Hour,
			want:  6 * time.Minute,
		},
		{
			name: "partial minute rounds up before the buffer",
			window: ExpectingWindowSnapshot{
				OpensAt:  now.Add(-time.Minute),
				ClosesAt: now.Add(4*time.Minute + 30*time.Second),
			},
			floor: time.Hour,
			want:  6 * time.Minute,
		},
		{
			name: "floor wins over a distant window",
			window: ExpectingWindowSnapshot{
				OpensAt:  now,
				ClosesAt: now.Add(3 * time.Hour),
			},
			floor: time.Hour,
			want:  time.Hour,
		},
		{
			name: "expired window falls back to the floor",
			window: ExpectingWindowSnapshot{
				OpensAt:  now.Add(-2 * time.Hour),
				ClosesAt: now.Add(-time.Hour),
			},
			floor: 30 * time.Minute,
			want:  30 * time.Minute,
		},
		{
			name:  "non-positive floor uses the default",
			floor: 0,
			want:  defaultSweepFloorInterval,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextRunDelay(tc.window, tc.floor, now); got != tc.want {
				t.Fatalf("NextRunDelay = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestServiceSweep(t *testing.T) {
	verifications := NewMemoryVerificationStore()
	passes := NewMemoryPassStore()
	canceller := &recordingCanceller{}
	window := NewExpectingWindow(canceller)
	sink := NewMemorySnapshotSink()

	service, clock := newTestService(t, Config{},
		WithVerificationStore(verifications),
		WithPassStore(passes),
		WithExpectingWindow(window),
		WithSnapshotSink(sink),
	)
	window.WithNow(clock.Now)
	ctx := context.Background()

	if _, err := window.Open(10 * time.Minute); err != nil {
		t.Fatalf("open window: %v", err)
	}
	clock.Advance(11 * time.Minute)
	now := clock.Now()

	// Expired pass for the physical sweep plus an active one for the
	// snapshot.
	if _, err := passes.Create(ctx, CreatePassInput{
		PhoneNumber: "+15550001111",
		Scope:       PassScope30Minutes,
		CreatedAt:   now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("create expired pass: %v", err)
	}
	if _, err := passes.Create(ctx, CreatePassInput{
		PhoneNumber:   "+15551234567",
		Scope:         PassScope24Hours,
		GrantedToName: "Dana",
		CreatedAt:     now.Add(-time.Minute),
	}); err != nil {
		t.Fatalf("create active pass: %v", err)
	}

	// A stale pending token for the expiry pass and an old terminal one
	// for the retention pass.
	if _, err := verifications.Create(ctx, CreateVerificationInput{
		Token:       "tok-stale",
		PhoneNumber: "+15550001111",
		Name:        "Stale",
		CreatedAt:   now.Add(-20 * time.Minute),
		ExpiresAt:   now.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("create stale token: %v", err)
	}
	if _, err := verifications.Create(ctx, CreateVerificationInput{
		Token:       "tok-ancient",
		PhoneNumber: "+15550002222",
		Name:        "Ancient",
		CreatedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:   now.Add(-47 * time.Hour),
	}); err != nil {
		t.Fatalf("create ancient token: %v", err)
	}
	if err := verifications.MarkExpired(ctx, "tok-ancient", now.Add(-47*time.Hour)); err != nil {
		t.Fatalf("expire ancient token: %v", err)
	}

	result, err := service.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.PassesRemoved != 1 {
		t.Fatalf("passes removed = %d, want 1", result.PassesRemoved)
	}
	if result.TokensExpired != 1 {
		t.Fatalf("tokens expired = %d, want 1", result.TokensExpired)
	}
	if result.TokensRemoved != 1 {
		t.Fatalf("tokens removed = %d, want 1", result.TokensRemoved)
	}
	if !result.WindowCleared {
		t.Fatal("expected window cleared")
	}
	if !result.SnapshotWritten {
		t.Fatal("expected snapshot written")
	}
	if !result.RanAt.Equal(now) {
		t.Fatalf("ran_at = %v, want %v", result.RanAt, now)
	}
	if canceller.count() != 1 {
		t.Fatalf("canceller calls = %d, want 1", canceller.count())
	}

	var entries []SnapshotEntry
	if err := json.Unmarshal(sink.Latest(), &entries); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].PhoneNumber != "+15551234567" {
		t.Fatalf("unexpected snapshot entries: %+v", entries)
	}

	// The stale pending token is now terminal, not deleted: retention
	// keeps it for a day.
	attempt, err := verifications.Get(ctx, "tok-stale")
	if err != nil {
		t.Fatalf("read stale token: %v", err)
	}
	if attempt.Status != VerificationStatusExpired {
		t.Fatalf("stale token status = %q, want expired", attempt.Status)
	}
	if _, err := verifications.Get(ctx, "tok-ancient"); err == nil {
		t.Fatal("expected ancient token to be deleted")
	}
}

func TestServiceSweep_BestEffortPerStore(t *testing.T) {
	passes := &faultyPassStore{
		MemoryPassStore: NewMemoryPassStore(),
		sweepErr:        fmt.Errorf("disk full"),
	}
	verifications := &faultyVerificationStore{
		MemoryVerificationStore: NewMemoryVerificationStore(),
		expirePendingErr:        fmt.Errorf("lock timeout"),
	}
	service, clock := newTestService(t, Config{},
		WithPassStore(passes),
		WithVerificationStore(verifications),
	)
	ctx := context.Background()
	now := clock.Now()

	if _, err := verifications.Create(ctx, CreateVerificationInput{
		Token:     "tok-ancient",
		Name:      "Ancient",
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-47 * time.Hour),
	}); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if err := verifications.MarkExpired(ctx, "tok-ancient", now.Add(-47*time.Hour)); err != nil {
		t.Fatalf("expire token: %v", err)
	}

	result, err := service.Sweep(ctx, now)
	if err == nil {
		t.Fatal("expected aggregated sweep error")
	}
	message := err.Error()
	if !strings.Contains(message, "disk full") || !strings.Contains(message, "lock timeout") {
		t.Fatalf("error missing store failures: %v", err)
	}
	// Failing stores contribute nothing; the retention pass still ran.
	if result.PassesRemoved != 0 || result.TokensExpired != 0 {
		t.Fatalf("failed stores reported counts: %+v", result)
	}
	if result.TokensRemoved != 1 {
		t.Fatalf("tokens removed = %d, want 1", result.TokensRemoved)
	}
}

type blockingPassStore struct {
	*MemoryPassStore
	enterOnce sync.Once
	entered   chan struct{}
	release   chan struct{}
}

// SweepExpired blocks the first sweep until released; later sweeps pass
// straight through.
func (s *blockingPassStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.enterOnce.Do(func() { close(s.entered) })
	<-s.release
	return s.MemoryPassStore.SweepExpired(ctx, cutoff)
}

func TestServiceSweep_SingleFlight(t *testing.T) {
	passes := &blockingPassStore{
		MemoryPassStore: NewMemoryPassStore(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	service, clock := newTestService(t, Config{}, WithPassStore(passes))
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := service.Sweep(ctx, clock.Now())
		firstDone <- err
	}()

	select {
	case <-passes.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep never reached the pass store")
	}

	_, err := service.Sweep(ctx, clock.Now())
	if code := serviceTextCode(t, err); code != ServiceErrorSweepInProgress {
		t.Fatalf("text code = %q, want %q", code, ServiceErrorSweepInProgress)
	}
	if !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected overlap error to keep sentinel identity, got %v", err)
	}

	close(passes.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first sweep: %v", err)
	}

	// The guard releases once the run finishes.
	if _, err := service.Sweep(ctx, clock.Now()); err != nil {
		t.Fatalf("follow-up sweep: %v", err)
	}
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	err   error
	ran   chan struct{}
}

func (s *countingSweeper) Sweep(_ context.Context, now time.Time) (SweepResult, error) {
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	select {
	case s.ran <- struct{}{}:
	default:
	}
	if err != nil {
		return SweepResult{}, err
	}
	return SweepResult{RanAt: now}, nil
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func waitForSweep(t *testing.T, ran <-chan struct{}) {
	t.Helper()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never ran a sweep")
	}
}

func TestCleanupScheduler_RunsAndStops(t *testing.T) {
	sweeper := &countingSweeper{ran: make(chan struct{}, 1)}
	scheduler, err := NewCleanupScheduler(sweeper, nil, CleanupSchedulerConfig{
		FloorInterval: 5 * time.Millisecond,
		Logger:        glog.Nop(),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := scheduler.Start(context.Background()); err == nil {
		t.Fatal("expected second start to fail")
	}

	waitForSweep(t, sweeper.ran)
	scheduler.Stop()
	// Stop is idempotent and a stopped scheduler can be restarted.
	scheduler.Stop()

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitForSweep(t, sweeper.ran)
	scheduler.Stop()
}

func TestCleanupScheduler_SurvivesFailuresAndOverlap(t *testing.T) {
	sweeper := &countingSweeper{ran: make(chan struct{}, 1), err: ErrSweepInProgress}
	scheduler, err := NewCleanupScheduler(sweeper, nil, CleanupSchedulerConfig{
		FloorInterval: 5 * time.Millisecond,
		Logger:        glog.Nop(),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	// A skipped run keeps the loop alive for the next tick.
	waitForSweep(t, sweeper.ran)
	waitForSweep(t, sweeper.ran)

	sweeper.mu.Lock()
	sweeper.err = fmt.Errorf("backend unavailable")
	sweeper.mu.Unlock()

	// Same for a hard failure.
	waitForSweep(t, sweeper.ran)
	waitForSweep(t, sweeper.ran)

	if sweeper.count() < 4 {
		t.Fatalf("calls = %d, want at least 4", sweeper.count())
	}
}

func TestCleanupScheduler_KickNeverBlocks(t *testing.T) {
	sweeper := &countingSweeper{ran: make(chan struct{}, 1)}
	scheduler, err := NewCleanupScheduler(sweeper, nil, CleanupSchedulerConfig{
		FloorInterval: time.Hour,
		Logger:        glog.Nop(),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	// Safe before Start.
	scheduler.Kick()
	scheduler.Kick()

	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			scheduler.Kick()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("kick blocked")
	}
}

func TestNewCleanupSchedulerRequiresSweeper(t *testing.T) {
	if _, err := NewCleanupScheduler(nil, nil, CleanupSchedulerConfig{}); err == nil {
		t.Fatal("expected error for nil sweeper")
	}
}
