package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func newManualClock(at time.Time) *manualClock {
	return &manualClock{at: at.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

type sequenceTokenGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequenceTokenGenerator) NewToken() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("tok-%03d", g.next), nil
}

type capturingSender struct {
	mu      sync.Mutex
	invites []VerificationInvite
	err     error
}

func (s *capturingSender) SendVerificationInvite(_ context.Context, invite VerificationInvite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.invites = append(s.invites, invite)
	return nil
}

func (s *capturingSender) sent() []VerificationInvite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]VerificationInvite(nil), s.invites...)
}

type stubPhoneValidator struct {
	valid bool
	err   error
	calls int
}

func (v *stubPhoneValidator) ValidateNumber(context.Context, string) (bool, error) {
	v.calls++
	if v.err != nil {
		return false, v.err
	}
	return v.valid, nil
}

type recordingCanceller struct {
	mu    sync.Mutex
	calls int
}

func (c *recordingCanceller) CancelExpectingNotification(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *recordingCanceller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// faultyPassStore wraps the memory store and fails selected operations.
type faultyPassStore struct {
	*MemoryPassStore
	resolveErr error
	sweepErr   error
}

func (s *faultyPassStore) Resolve(ctx context.Context, phoneNumber string, now time.Time) (Pass, error) {
	if s.resolveErr != nil {
		return Pass{}, s.resolveErr
	}
	return s.MemoryPassStore.Resolve(ctx, phoneNumber, now)
}

func (s *faultyPassStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	return s.MemoryPassStore.SweepExpired(ctx, cutoff)
}

// faultyVerificationStore fails selected sweep operations.
type faultyVerificationStore struct {
	*MemoryVerificationStore
	expirePendingErr error
}

func (s *faultyVerificationStore) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	if s.expirePendingErr != nil {
		return 0, s.expirePendingErr
	}
	return s.MemoryVerificationStore.ExpirePending(ctx, now)
}

func newTestService(t *testing.T, runtime Config, options ...Option) (*Service, *manualClock) {
	t.Helper()
	clock := newManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	base := []Option{
		WithLogger(glog.Nop()),
		WithClock(clock.Now),
		WithTokenGenerator(&sequenceTokenGenerator{}),
	}
	service, err := NewService(runtime, append(base, options...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service, clock
}

func serviceTextCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected service error envelope, got %T: %v", err, err)
	}
	return richErr.TextCode
}

func intPtr(value int) *int {
	return &value
}
