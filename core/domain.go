package core

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidPassScope                   = errors.New("core: invalid pass scope")
	ErrInvalidVerificationStatusTransition = errors.New("core: invalid verification status transition")
	ErrInvalidExpectingWindow             = errors.New("core: invalid expecting window")
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// IsE164 reports ITU-T E.164 compliance of a phone number.
func IsE164(number string) bool {
	return e164Pattern.MatchString(strings.TrimSpace(number))
}

type PassScope string

const (
	PassScope30Minutes PassScope = "30m"
	PassScope24Hours   PassScope = "24h"
	PassScope30Days    PassScope = "30d"
)

// DefaultPassScope applies when a redemption does not select one.
const DefaultPassScope = PassScope24Hours

func (s PassScope) Duration() time.Duration {
	switch s {
	case PassScope30Minutes:
		return 30 * time.Minute
	case PassScope24Hours:
		return 24 * time.Hour
	case PassScope30Days:
		return 30 * 24 * time.Hour
	}
	return 0
}

func (s PassScope) Validate() error {
	switch s {
	case PassScope30Minutes, PassScope24Hours, PassScope30Days:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPassScope, string(s))
}

func ParsePassScope(value string) (PassScope, error) {
	scope := PassScope(strings.TrimSpace(strings.ToLower(value)))
	if err := scope.Validate(); err != nil {
		return "", err
	}
	return scope, nil
}

type PassStatus string

const (
	PassStatusActive    PassStatus = "active"
	PassStatusExpired   PassStatus = "expired"
	PassStatusRevoked   PassStatus = "revoked"
	PassStatusExhausted PassStatus = "exhausted"
)

// Pass is a time-scoped grant letting one phone number reach a recipient
// without being screened. Status is never stored; it is derived from the
// row fields at read time.
type Pass struct {
	ID            string
	PhoneNumber   string
	Scope         PassScope
	GrantedBy     string
	GrantedToName string
	UsedCount     int
	MaxUses       *int
	RevokedAt     *time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// StatusAt derives the pass status. Revocation wins over expiry so audit
// reads report why the pass stopped resolving.
func (p Pass) StatusAt(now time.Time) PassStatus {
	if p.RevokedAt != nil {
		return PassStatusRevoked
	}
	if !now.Before(p.ExpiresAt) {
		return PassStatusExpired
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return PassStatusExhausted
	}
	return PassStatusActive
}

func (p Pass) ActiveAt(now time.Time) bool {
	return p.StatusAt(now) == PassStatusActive
}

type VerificationStatus string

const (
	VerificationStatusPending   VerificationStatus = "pending"
	VerificationStatusCompleted VerificationStatus = "completed"
	VerificationStatusExpired   VerificationStatus = "expired"
)

// VerificationAttempt is a short-lived credential for an in-progress
// caller identity request. Transitions are monotonic: pending ->
// completed | expired, never back.
type VerificationAttempt struct {
	Token        string
	PhoneNumber  string
	Name         string
	Reason       string
	VoicePingRef string
	Status       VerificationStatus
	CreatedAt    time.Time
	ExpiresAt    time.Time
	CompletedAt  *time.Time
}

func (a *VerificationAttempt) TransitionTo(status VerificationStatus, now time.Time) error {
	if a == nil {
		return nil
	}
	if a.Status == status {
		return nil
	}
	if a.Status != VerificationStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidVerificationStatusTransition, a.Status, status)
	}
	switch status {
	case VerificationStatusCompleted:
		completedAt := now
		a.CompletedAt = &completedAt
	case VerificationStatusExpired:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidVerificationStatusTransition, a.Status, status)
	}
	a.Status = status
	return nil
}

// ExpiredAt reports whether the attempt's TTL has lapsed, independent of
// whether the stored status caught up yet.
func (a VerificationAttempt) ExpiredAt(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// ExpectingWindowSnapshot is the immutable view of the device-local
// expecting window handed to the cleanup scheduler each tick.
type ExpectingWindowSnapshot struct {
	OpensAt  time.Time
	ClosesAt time.Time
}

func (w ExpectingWindowSnapshot) Zero() bool {
	return w.OpensAt.IsZero() && w.ClosesAt.IsZero()
}

func (w ExpectingWindowSnapshot) ActiveAt(now time.Time) bool {
	if w.Zero() {
		return false
	}
	return now.Before(w.ClosesAt)
}

// RemainingMinutes rounds up so a window with any time left reports at
// least one minute.
func (w ExpectingWindowSnapshot) RemainingMinutes(now time.Time) int {
	if !w.ActiveAt(now) {
		return 0
	}
	remaining := w.ClosesAt.Sub(now)
	return int(math.Ceil(remaining.Minutes()))
}

func (w ExpectingWindowSnapshot) Validate() error {
	if w.Zero() {
		return nil
	}
	if !w.ClosesAt.After(w.OpensAt) {
		return fmt.Errorf("%w: closes_at must be after opens_at", ErrInvalidExpectingWindow)
	}
	return nil
}

// SnapshotEntry is one row of the materialized pass export consumed by
// OS-level lookup collaborators. Ordered by number, read-only.
type SnapshotEntry struct {
	PhoneNumber string    `json:"phoneNumber"`
	Name        string    `json:"name"`
	Scope       PassScope `json:"scope"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// MaskNumber redacts the middle digits of an E.164 number for log and
// metric fields.
func MaskNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 5 {
		return number
	}
	return number[:3] + strings.Repeat("*", len(number)-5) + number[len(number)-2:]
}
