package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

type CreatePassRequest struct {
	PhoneNumber   string
	Scope         string
	GrantedBy     string
	GrantedToName string
	MaxUses       *int
}

type CheckNumberResult struct {
	Allowed   bool
	Scope     PassScope
	ExpiresAt *time.Time
}

// CreatePass mints a pass directly, outside the redemption flow. Always
// inserts; existing passes for the number are left alone and resolution
// happens at query time.
func (s *Service) CreatePass(ctx context.Context, req CreatePassRequest) (Pass, error) {
	if s == nil {
		return Pass{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()

	pass, err := s.createPass(ctx, req)
	s.observeOperation(ctx, startedAt, "pass.create", err, map[string]any{
		"caller": MaskNumber(req.PhoneNumber),
		"scope":  req.Scope,
	})
	if err != nil {
		return Pass{}, s.mapError(err)
	}
	return pass, nil
}

func (s *Service) createPass(ctx context.Context, req CreatePassRequest) (Pass, error) {
	number := strings.TrimSpace(req.PhoneNumber)
	if !IsE164(number) {
		return Pass{}, fmt.Errorf("core: pass number must be E.164, got invalid value")
	}
	scope, err := ParsePassScope(req.Scope)
	if err != nil {
		return Pass{}, err
	}
	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return Pass{}, ErrInvalidMaxUses
	}
	return s.passStore.Create(ctx, CreatePassInput{
		PhoneNumber:   number,
		Scope:         scope,
		GrantedBy:     strings.TrimSpace(req.GrantedBy),
		GrantedToName: strings.TrimSpace(req.GrantedToName),
		MaxUses:       req.MaxUses,
		CreatedAt:     s.clock(),
	})
}

// ResolvePass is the single read path for pass status. It returns the
// active pass with the longest remaining grant, or ErrPassNotFound.
func (s *Service) ResolvePass(ctx context.Context, phoneNumber string) (Pass, error) {
	if s == nil {
		return Pass{}, fmt.Errorf("core: service is nil")
	}
	number := strings.TrimSpace(phoneNumber)
	if !IsE164(number) {
		return Pass{}, s.mapError(fmt.Errorf("core: number must be E.164, got invalid value"))
	}

	now := s.clock()
	pass, err := s.passStore.Resolve(ctx, number, now)
	if err != nil {
		return Pass{}, s.mapError(err)
	}
	if pass.MaxUses != nil {
		if useErr := s.passStore.RecordUse(ctx, pass.ID); useErr != nil {
			s.logError(ctx, "pass use count update failed", map[string]any{
				"pass_id": pass.ID,
				"error":   useErr.Error(),
			})
		} else {
			pass.UsedCount++
		}
	}
	return pass, nil
}

// CheckNumber is the call-screening read path. It never surfaces an
// internal error: any failure other than "no pass" reports allowed=false.
func (s *Service) CheckNumber(ctx context.Context, phoneNumber string) CheckNumberResult {
	if s == nil {
		return CheckNumberResult{}
	}
	pass, err := s.ResolvePass(ctx, phoneNumber)
	if err != nil {
		if !errors.Is(err, ErrPassNotFound) {
			s.logError(ctx, "number check failed closed", map[string]any{
				"caller": MaskNumber(phoneNumber),
				"error":  err.Error(),
			})
		}
		return CheckNumberResult{Allowed: false}
	}
	expiresAt := pass.ExpiresAt
	return CheckNumberResult{
		Allowed:   true,
		Scope:     pass.Scope,
		ExpiresAt: &expiresAt,
	}
}

// RevokePass marks a pass revoked. The row stays until the next sweep so
// audit reads still see it; resolution excludes it immediately.
func (s *Service) RevokePass(ctx context.Context, id string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()

	id = strings.TrimSpace(id)
	var err error
	if id == "" {
		err = fmt.Errorf("core: pass id is required")
	} else {
		err = s.passStore.Revoke(ctx, id, s.clock())
	}
	s.observeOperation(ctx, startedAt, "pass.revoke", err, map[string]any{
		"pass_id": id,
	})
	return s.mapError(err)
}

// ListActivePasses returns the snapshot content: active passes ordered
// by phone number.
func (s *Service) ListActivePasses(ctx context.Context) ([]SnapshotEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	passes, err := s.passStore.ListActive(ctx, s.clock())
	if err != nil {
		return nil, s.mapError(err)
	}
	entries := make([]SnapshotEntry, 0, len(passes))
	for _, pass := range passes {
		entries = append(entries, SnapshotEntry{
			PhoneNumber: pass.PhoneNumber,
			Name:        pass.GrantedToName,
			Scope:       pass.Scope,
			ExpiresAt:   pass.ExpiresAt,
		})
	}
	return entries, nil
}
