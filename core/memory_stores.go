package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryVerificationStore backs the device-local and test configurations.
// The mutex provides the same exactly-once claim semantics the sql store
// gets from its compare-and-set update.
type MemoryVerificationStore struct {
	mu      sync.Mutex
	entries map[string]VerificationAttempt
}

func NewMemoryVerificationStore() *MemoryVerificationStore {
	return &MemoryVerificationStore{entries: map[string]VerificationAttempt{}}
}

func (s *MemoryVerificationStore) Create(_ context.Context, in CreateVerificationInput) (VerificationAttempt, error) {
	if s == nil {
		return VerificationAttempt{}, fmt.Errorf("core: verification store is not configured")
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return VerificationAttempt{}, fmt.Errorf("core: verification token is required")
	}
	attempt := VerificationAttempt{
		Token:        token,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Name:         strings.TrimSpace(in.Name),
		Reason:       strings.TrimSpace(in.Reason),
		VoicePingRef: strings.TrimSpace(in.VoicePingRef),
		Status:       VerificationStatusPending,
		CreatedAt:    in.CreatedAt.UTC(),
		ExpiresAt:    in.ExpiresAt.UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[token]; exists {
		return VerificationAttempt{}, fmt.Errorf("core: verification token collision")
	}
	s.entries[token] = attempt
	return attempt, nil
}

func (s *MemoryVerificationStore) Get(_ context.Context, token string) (VerificationAttempt, error) {
	if s == nil {
		return VerificationAttempt{}, fmt.Errorf("core: verification store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[strings.TrimSpace(token)]
	if !ok {
		return VerificationAttempt{}, ErrTokenNotFound
	}
	return attempt, nil
}

func (s *MemoryVerificationStore) Claim(_ context.Context, token string, now time.Time) (VerificationAttempt, error) {
	if s == nil {
		return VerificationAttempt{}, fmt.Errorf("core: verification store is not configured")
	}
	token = strings.TrimSpace(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[token]
	if !ok {
		return VerificationAttempt{}, ErrTokenNotFound
	}
	if attempt.Status != VerificationStatusPending {
		return VerificationAttempt{}, ErrTokenConsumed
	}
	if attempt.ExpiredAt(now) {
		// Expiry is discovered lazily here when the sweep has not run
		// yet; the status flip persists.
		if err := attempt.TransitionTo(VerificationStatusExpired, now.UTC()); err != nil {
			return VerificationAttempt{}, err
		}
		s.entries[token] = attempt
		return VerificationAttempt{}, ErrTokenExpired
	}
	if err := attempt.TransitionTo(VerificationStatusCompleted, now.UTC()); err != nil {
		return VerificationAttempt{}, err
	}
	s.entries[token] = attempt
	return attempt, nil
}

func (s *MemoryVerificationStore) MarkExpired(_ context.Context, token string, now time.Time) error {
	if s == nil {
		return fmt.Errorf("core: verification store is not configured")
	}
	token = strings.TrimSpace(token)

	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.entries[token]
	if !ok {
		return ErrTokenNotFound
	}
	if attempt.Status != VerificationStatusPending {
		return ErrTokenConsumed
	}
	if err := attempt.TransitionTo(VerificationStatusExpired, now.UTC()); err != nil {
		return err
	}
	s.entries[token] = attempt
	return nil
}

func (s *MemoryVerificationStore) ExpirePending(_ context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: verification store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expired := 0
	for token, attempt := range s.entries {
		if attempt.Status != VerificationStatusPending || !attempt.ExpiredAt(now) {
			continue
		}
		if err := attempt.TransitionTo(VerificationStatusExpired, now.UTC()); err != nil {
			continue
		}
		s.entries[token] = attempt
		expired++
	}
	return expired, nil
}

func (s *MemoryVerificationStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: verification store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, attempt := range s.entries {
		if attempt.Status == VerificationStatusPending {
			continue
		}
		if attempt.CreatedAt.Before(cutoff) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed, nil
}

// MemoryPassStore mirrors the sql pass store semantics for local and
// test use: insert-always history, resolution at read time, soft revoke,
// physical delete only on sweep.
type MemoryPassStore struct {
	mu      sync.Mutex
	entries map[string]Pass
}

func NewMemoryPassStore() *MemoryPassStore {
	return &MemoryPassStore{entries: map[string]Pass{}}
}

func (s *MemoryPassStore) Create(_ context.Context, in CreatePassInput) (Pass, error) {
	if s == nil {
		return Pass{}, fmt.Errorf("core: pass store is not configured")
	}
	if err := in.Scope.Validate(); err != nil {
		return Pass{}, err
	}
	createdAt := in.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	pass := Pass{
		ID:            uuid.NewString(),
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		Scope:         in.Scope,
		GrantedBy:     strings.TrimSpace(in.GrantedBy),
		GrantedToName: strings.TrimSpace(in.GrantedToName),
		MaxUses:       copyIntPtr(in.MaxUses),
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(in.Scope.Duration()),
	}

	s.mu.Lock()
	s.entries[pass.ID] = pass
	s.mu.Unlock()
	return pass, nil
}

func (s *MemoryPassStore) Get(_ context.Context, id string) (Pass, error) {
	if s == nil {
		return Pass{}, fmt.Errorf("core: pass store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return Pass{}, ErrPassNotFound
	}
	return pass, nil
}

func (s *MemoryPassStore) Resolve(_ context.Context, phoneNumber string, now time.Time) (Pass, error) {
	if s == nil {
		return Pass{}, fmt.Errorf("core: pass store is not configured")
	}
	number := strings.TrimSpace(phoneNumber)

	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Pass
	for id := range s.entries {
		pass := s.entries[id]
		if pass.PhoneNumber != number || !pass.ActiveAt(now) {
			continue
		}
		if best == nil || laterGrant(pass, *best) {
			candidate := pass
			best = &candidate
		}
	}
	if best == nil {
		return Pass{}, ErrPassNotFound
	}
	return *best, nil
}

func (s *MemoryPassStore) RecordUse(_ context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: pass store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return ErrPassNotFound
	}
	pass.UsedCount++
	s.entries[pass.ID] = pass
	return nil
}

func (s *MemoryPassStore) Revoke(_ context.Context, id string, now time.Time) error {
	if s == nil {
		return fmt.Errorf("core: pass store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.entries[strings.TrimSpace(id)]
	if !ok {
		return ErrPassNotFound
	}
	if pass.RevokedAt == nil {
		revokedAt := now.UTC()
		pass.RevokedAt = &revokedAt
		s.entries[pass.ID] = pass
	}
	return nil
}

func (s *MemoryPassStore) ListActive(_ context.Context, now time.Time) ([]Pass, error) {
	if s == nil {
		return nil, fmt.Errorf("core: pass store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pass, 0, len(s.entries))
	for id := range s.entries {
		pass := s.entries[id]
		if pass.ActiveAt(now) {
			out = append(out, pass)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PhoneNumber == out[j].PhoneNumber {
			return laterGrant(out[i], out[j])
		}
		return out[i].PhoneNumber < out[j].PhoneNumber
	})
	return out, nil
}

func (s *MemoryPassStore) SweepExpired(_ context.Context, cutoff time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: pass store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, pass := range s.entries {
		if !pass.ExpiresAt.After(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// laterGrant orders by expiresAt descending, createdAt descending on
// ties: the most permissive remaining grant wins, not the most recent.
func laterGrant(a, b Pass) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.After(b.ExpiresAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func copyIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

var (
	_ VerificationStore = (*MemoryVerificationStore)(nil)
	_ PassStore         = (*MemoryPassStore)(nil)
)
