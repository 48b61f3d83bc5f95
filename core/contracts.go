package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CreateVerificationInput struct {
	Token        string
	PhoneNumber  string
	Name         string
	Reason       string
	VoicePingRef string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// VerificationStore owns VerificationAttempt rows. Claim must be an
// atomic compare-and-set on pending status so concurrent redemptions of
// one token admit exactly one winner.
type VerificationStore interface {
	Create(ctx context.Context, in CreateVerificationInput) (VerificationAttempt, error)
	Get(ctx context.Context, token string) (VerificationAttempt, error)
	// Claim flips a pending attempt to completed iff it is still pending
	// and unexpired at now. Losers observe ErrTokenConsumed; callers of
	// tokens past TTL observe ErrTokenExpired after the status is lazily
	// flipped to expired.
	Claim(ctx context.Context, token string, now time.Time) (VerificationAttempt, error)
	// MarkExpired flips a pending attempt to expired. A no-op when the
	// attempt already left pending.
	MarkExpired(ctx context.Context, token string, now time.Time) error
	// ExpirePending flips every pending attempt past TTL and returns how
	// many changed.
	ExpirePending(ctx context.Context, now time.Time) (int, error)
	// DeleteTerminalBefore physically removes completed and expired
	// attempts created before the cutoff, returning the count removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type CreatePassInput struct {
	PhoneNumber   string
	Scope         PassScope
	GrantedBy     string
	GrantedToName string
	MaxUses       *int
	CreatedAt     time.Time
}

// PassStore owns Pass rows. Resolution semantics live in a single read
// path so no caller infers status from raw rows.
type PassStore interface {
	Create(ctx context.Context, in CreatePassInput) (Pass, error)
	Get(ctx context.Context, id string) (Pass, error)
	// Resolve returns the active pass for number with the latest
	// expiresAt, ties broken by latest createdAt, or ErrPassNotFound.
	Resolve(ctx context.Context, phoneNumber string, now time.Time) (Pass, error)
	// RecordUse increments usedCount. Only called when maxUses is set.
	RecordUse(ctx context.Context, id string) error
	Revoke(ctx context.Context, id string, now time.Time) error
	// ListActive returns every active pass ordered by phone number, for
	// snapshot publication.
	ListActive(ctx context.Context, now time.Time) ([]Pass, error)
	// SweepExpired physically deletes rows with expiresAt at or before
	// the cutoff, returning the count removed.
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// MessageSender delivers the verification invite to the recipient over
// SMS or WhatsApp. Implementations handle their own retry policy.
type MessageSender interface {
	SendVerificationInvite(ctx context.Context, invite VerificationInvite) error
}

type VerificationInvite struct {
	To           string
	CallerName   string
	Reason       string
	VanityURL    string
	VoicePingRef string
}

// PhoneValidator checks a number beyond the local E.164 syntax gate,
// typically against a carrier lookup service.
type PhoneValidator interface {
	ValidateNumber(ctx context.Context, number string) (bool, error)
}

// SnapshotSink receives the serialized pass snapshot. Implementations
// must replace the previous snapshot atomically from the reader's point
// of view.
type SnapshotSink interface {
	WriteSnapshot(ctx context.Context, payload []byte) error
}

// NotificationCanceller is told to drop the persistent "expecting a
// call" notification once the window lapses.
type NotificationCanceller interface {
	CancelExpectingNotification(ctx context.Context)
}

type SweepResult struct {
	PassesRemoved   int
	TokensExpired   int
	TokensRemoved   int
	WindowCleared   bool
	SnapshotWritten bool
	RanAt           time.Time
}

// Sweeper is the operation the scheduler re-arms around; the admin
// trigger shares the same single-flight guard.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
}
