package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-callpass/core"
)

func newVerificationRecord(in core.CreateVerificationInput) *verificationAttemptRecord {
	return &verificationAttemptRecord{
		Token:        strings.TrimSpace(in.Token),
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Name:         strings.TrimSpace(in.Name),
		Reason:       strings.TrimSpace(in.Reason),
		VoicePingRef: strings.TrimSpace(in.VoicePingRef),
		Status:       string(core.VerificationStatusPending),
		CreatedAt:    in.CreatedAt.UTC(),
		ExpiresAt:    in.ExpiresAt.UTC(),
	}
}

func (r *verificationAttemptRecord) toDomain() core.VerificationAttempt {
	if r == nil {
		return core.VerificationAttempt{}
	}
	return core.VerificationAttempt{
		Token:        r.Token,
		PhoneNumber:  r.PhoneNumber,
		Name:         r.Name,
		Reason:       r.Reason,
		VoicePingRef: r.VoicePingRef,
		Status:       core.VerificationStatus(r.Status),
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		CompletedAt:  copyTimePtr(r.CompletedAt),
	}
}

func newPassRecord(in core.CreatePassInput) *passRecord {
	createdAt := in.CreatedAt.UTC()
	if in.CreatedAt.IsZero() {
		// Without this the expiry would anchor to the epoch while the
		// column default fills created_at with the current timestamp.
		createdAt = time.Now().UTC()
	}
	return &passRecord{
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		Scope:         string(in.Scope),
		GrantedBy:     strings.TrimSpace(in.GrantedBy),
		GrantedToName: strings.TrimSpace(in.GrantedToName),
		MaxUses:       copyIntPtr(in.MaxUses),
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt.Add(in.Scope.Duration()),
	}
}

func (r *passRecord) toDomain() core.Pass {
	if r == nil {
		return core.Pass{}
	}
	return core.Pass{
		ID:            r.ID,
		PhoneNumber:   r.PhoneNumber,
		Scope:         core.PassScope(r.Scope),
		GrantedBy:     r.GrantedBy,
		GrantedToName: r.GrantedToName,
		UsedCount:     r.UsedCount,
		MaxUses:       copyIntPtr(r.MaxUses),
		RevokedAt:     copyTimePtr(r.RevokedAt),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
	}
}

func copyIntPtr(in *int) *int {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}
