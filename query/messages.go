package query

import (
	"strings"

	"github.com/goliatone/go-callpass/core"
)

const (
	TypeTokenStatus      = "callpass.query.verification.status"
	TypeCheckNumber      = "callpass.query.pass.check"
	TypeListActivePasses = "callpass.query.pass.list_active"
	TypeExpectingWindow  = "callpass.query.expecting_window.snapshot"
)

type TokenStatusMessage struct {
	Token string
}

func (TokenStatusMessage) Type() string { return TypeTokenStatus }

func (m TokenStatusMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return queryValidationError("token", "token is required")
	}
	return nil
}

type CheckNumberMessage struct {
	PhoneNumber string
}

func (CheckNumberMessage) Type() string { return TypeCheckNumber }

func (m CheckNumberMessage) Validate() error {
	if !core.IsE164(strings.TrimSpace(m.PhoneNumber)) {
		return queryValidationError("phone_number", "phone number must be E.164")
	}
	return nil
}

type ListActivePassesMessage struct{}

func (ListActivePassesMessage) Type() string { return TypeListActivePasses }

func (ListActivePassesMessage) Validate() error { return nil }

type ExpectingWindowMessage struct{}

func (ExpectingWindowMessage) Type() string { return TypeExpectingWindow }

func (ExpectingWindowMessage) Validate() error { return nil }
