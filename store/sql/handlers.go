package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func verificationHandlers() repository.ModelHandlers[*verificationAttemptRecord] {
	return repository.ModelHandlers[*verificationAttemptRecord]{
		NewRecord: func() *verificationAttemptRecord {
			return &verificationAttemptRecord{}
		},
		GetID: func(record *verificationAttemptRecord) uuid.UUID {
			return uuid.Nil
		},
		SetID: func(record *verificationAttemptRecord, _ uuid.UUID) {},
		GetIdentifier: func() string {
			return "token"
		},
		GetIdentifierValue: func(record *verificationAttemptRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.Token)
		},
	}
}

func passHandlers() repository.ModelHandlers[*passRecord] {
	return repository.ModelHandlers[*passRecord]{
		NewRecord: func() *passRecord {
			return &passRecord{}
		},
		GetID: func(record *passRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *passRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *passRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
