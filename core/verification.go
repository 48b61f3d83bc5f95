package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

const tokenByteLength = 24

type TokenGenerator interface {
	NewToken() (string, error)
}

type RandomTokenGenerator struct{}

func (RandomTokenGenerator) NewToken() (string, error) {
	raw := make([]byte, tokenByteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate verification token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

type StartVerificationRequest struct {
	PhoneNumber  string
	Name         string
	Reason       string
	VoicePingRef string
	// RecipientNumber, when set, receives the invite message.
	RecipientNumber string
}

type StartVerificationResponse struct {
	Token       string
	VanityURL   string
	PhoneNumber string
	ExpiresAt   time.Time
}

type RedeemTokenRequest struct {
	Token          string
	RecipientPhone string
	GrantPass      bool
	// Scope selects the granted pass tier; empty means the configured
	// default.
	Scope string
}

type RedeemTokenResponse struct {
	CallerName  string
	PassGranted bool
	PassID      string
}

// StartVerification issues a fresh pending attempt. Concurrent pending
// tokens for one caller are allowed; no dedup happens here.
func (s *Service) StartVerification(ctx context.Context, req StartVerificationRequest) (StartVerificationResponse, error) {
	if s == nil {
		return StartVerificationResponse{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()

	resp, err := s.startVerification(ctx, req)
	s.observeOperation(ctx, startedAt, "verification.start", err, map[string]any{
		"caller": MaskNumber(req.PhoneNumber),
	})
	if err != nil {
		return StartVerificationResponse{}, s.mapError(err)
	}
	return resp, nil
}

func (s *Service) startVerification(ctx context.Context, req StartVerificationRequest) (StartVerificationResponse, error) {
	number := strings.TrimSpace(req.PhoneNumber)
	if !IsE164(number) {
		return StartVerificationResponse{}, fmt.Errorf("core: caller number must be E.164, got invalid value")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return StartVerificationResponse{}, fmt.Errorf("core: caller name is required")
	}

	if s.phoneValidator != nil {
		ok, err := s.phoneValidator.ValidateNumber(ctx, number)
		if err != nil {
			return StartVerificationResponse{}, err
		}
		if !ok {
			return StartVerificationResponse{}, fmt.Errorf("core: caller number failed validation")
		}
	}

	token, err := s.tokenGenerator.NewToken()
	if err != nil {
		return StartVerificationResponse{}, err
	}

	now := s.clock()
	attempt, err := s.verificationStore.Create(ctx, CreateVerificationInput{
		Token:        token,
		PhoneNumber:  number,
		Name:         name,
		Reason:       strings.TrimSpace(req.Reason),
		VoicePingRef: strings.TrimSpace(req.VoicePingRef),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.config.TokenTTL),
	})
	if err != nil {
		return StartVerificationResponse{}, err
	}

	vanityURL := s.vanityURL(attempt.Token)
	if recipient := strings.TrimSpace(req.RecipientNumber); recipient != "" && s.messageSender != nil {
		if sendErr := s.messageSender.SendVerificationInvite(ctx, VerificationInvite{
			To:           recipient,
			CallerName:   attempt.Name,
			Reason:       attempt.Reason,
			VanityURL:    vanityURL,
			VoicePingRef: attempt.VoicePingRef,
		}); sendErr != nil {
			return StartVerificationResponse{}, sendErr
		}
	}

	return StartVerificationResponse{
		Token:       attempt.Token,
		VanityURL:   vanityURL,
		PhoneNumber: attempt.PhoneNumber,
		ExpiresAt:   attempt.ExpiresAt,
	}, nil
}

// RedeemToken completes a pending attempt exactly once. On success it
// optionally mints a pass for the caller's number.
func (s *Service) RedeemToken(ctx context.Context, req RedeemTokenRequest) (RedeemTokenResponse, error) {
	if s == nil {
		return RedeemTokenResponse{}, fmt.Errorf("core: service is nil")
	}
	startedAt := s.clock()

	resp, err := s.redeemToken(ctx, req)
	s.observeOperation(ctx, startedAt, "verification.redeem", err, map[string]any{
		"recipient": MaskNumber(req.RecipientPhone),
		"scope":     req.Scope,
	})
	if err != nil {
		return RedeemTokenResponse{}, s.mapError(err)
	}
	return resp, nil
}

func (s *Service) redeemToken(ctx context.Context, req RedeemTokenRequest) (RedeemTokenResponse, error) {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return RedeemTokenResponse{}, fmt.Errorf("core: verification token is required")
	}
	recipient := strings.TrimSpace(req.RecipientPhone)
	if !IsE164(recipient) {
		return RedeemTokenResponse{}, fmt.Errorf("core: recipient number must be E.164, got invalid value")
	}

	scope := DefaultPassScope
	if configured := strings.TrimSpace(s.config.DefaultScope); configured != "" {
		if parsed, err := ParsePassScope(configured); err == nil {
			scope = parsed
		}
	}
	if requested := strings.TrimSpace(req.Scope); requested != "" {
		parsed, err := ParsePassScope(requested)
		if err != nil {
			return RedeemTokenResponse{}, err
		}
		scope = parsed
	}

	attempt, err := s.verificationStore.Claim(ctx, token, s.clock())
	if err != nil {
		return RedeemTokenResponse{}, err
	}

	resp := RedeemTokenResponse{CallerName: attempt.Name}
	if !req.GrantPass {
		return resp, nil
	}

	pass, err := s.passStore.Create(ctx, CreatePassInput{
		PhoneNumber:   attempt.PhoneNumber,
		Scope:         scope,
		GrantedBy:     recipient,
		GrantedToName: attempt.Name,
		CreatedAt:     s.clock(),
	})
	if err != nil {
		return RedeemTokenResponse{}, err
	}
	resp.PassGranted = true
	resp.PassID = pass.ID
	return resp, nil
}

// TokenStatus reads an attempt's status with the same lazy-expiry
// discovery redeem applies: a pending token past TTL flips to expired on
// this read even when the sweep has not run yet.
func (s *Service) TokenStatus(ctx context.Context, token string) (VerificationStatus, error) {
	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", s.mapError(fmt.Errorf("core: verification token is required"))
	}

	attempt, err := s.verificationStore.Get(ctx, token)
	if err != nil {
		return "", s.mapError(err)
	}
	now := s.clock()
	if attempt.Status == VerificationStatusPending && attempt.ExpiredAt(now) {
		if markErr := s.verificationStore.MarkExpired(ctx, token, now); markErr != nil && !errors.Is(markErr, ErrTokenConsumed) {
			return "", s.mapError(markErr)
		}
		return VerificationStatusExpired, nil
	}
	return attempt.Status, nil
}

func (s *Service) vanityURL(token string) string {
	base := strings.TrimSuffix(strings.TrimSpace(s.config.VanityBaseURL), "/")
	return base + "/v/" + token
}
