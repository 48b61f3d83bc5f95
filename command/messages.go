package command

import (
	"strings"

	"github.com/goliatone/go-callpass/core"
)

const (
	TypeStartVerification   = "callpass.command.verification.start"
	TypeRedeemToken         = "callpass.command.verification.redeem"
	TypeCreatePass          = "callpass.command.pass.create"
	TypeRevokePass          = "callpass.command.pass.revoke"
	TypeOpenExpectingWindow = "callpass.command.expecting_window.open"
	TypeRunSweep            = "callpass.command.sweep.run"
)

type StartVerificationMessage struct {
	Request core.StartVerificationRequest
}

func (StartVerificationMessage) Type() string { return TypeStartVerification }

func (m StartVerificationMessage) Validate() error {
	if !core.IsE164(strings.TrimSpace(m.Request.PhoneNumber)) {
		return commandValidationError("phone_number", "phone number must be E.164")
	}
	if strings.TrimSpace(m.Request.Name) == "" {
		return commandValidationError("name", "caller name is required")
	}
	return nil
}

type RedeemTokenMessage struct {
	Request core.RedeemTokenRequest
}

func (RedeemTokenMessage) Type() string { return TypeRedeemToken }

func (m RedeemTokenMessage) Validate() error {
	if strings.TrimSpace(m.Request.Token) == "" {
		return commandValidationError("token", "token is required")
	}
	if scope := strings.TrimSpace(m.Request.Scope); scope != "" {
		if _, err := core.ParsePassScope(scope); err != nil {
			return commandValidationError("scope", "unknown pass scope")
		}
	}
	return nil
}

type CreatePassMessage struct {
	Request core.CreatePassRequest
}

func (CreatePassMessage) Type() string { return TypeCreatePass }

func (m CreatePassMessage) Validate() error {
	if !core.IsE164(strings.TrimSpace(m.Request.PhoneNumber)) {
		return commandValidationError("phone_number", "phone number must be E.164")
	}
	if scope := strings.TrimSpace(m.Request.Scope); scope != "" {
		if _, err := core.ParsePassScope(scope); err != nil {
			return commandValidationError("scope", "unknown pass scope")
		}
	}
	if m.Request.MaxUses != nil && *m.Request.MaxUses <= 0 {
		return commandValidationError("max_uses", "max uses must be positive")
	}
	return nil
}

type RevokePassMessage struct {
	PassID string
}

func (RevokePassMessage) Type() string { return TypeRevokePass }

func (m RevokePassMessage) Validate() error {
	if strings.TrimSpace(m.PassID) == "" {
		return commandValidationError("pass_id", "pass id is required")
	}
	return nil
}

type OpenExpectingWindowMessage struct {
	Minutes int
}

func (OpenExpectingWindowMessage) Type() string { return TypeOpenExpectingWindow }

func (m OpenExpectingWindowMessage) Validate() error {
	if m.Minutes <= 0 {
		return commandValidationError("minutes", "window minutes must be positive")
	}
	return nil
}

type RunSweepMessage struct{}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (RunSweepMessage) Validate() error { return nil }
