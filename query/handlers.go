package query

import (
	"context"

	"github.com/goliatone/go-callpass/core"
)

type VerificationReader interface {
	TokenStatus(ctx context.Context, token string) (core.VerificationStatus, error)
}

type PassReader interface {
	CheckNumber(ctx context.Context, phoneNumber string) core.CheckNumberResult
	ListActivePasses(ctx context.Context) ([]core.SnapshotEntry, error)
}

type WindowReader interface {
	ExpectingWindow() *core.ExpectingWindow
}

type TokenStatusQuery struct {
	reader VerificationReader
}

func NewTokenStatusQuery(reader VerificationReader) *TokenStatusQuery {
	return &TokenStatusQuery{reader: reader}
}

func (q *TokenStatusQuery) Query(ctx context.Context, msg TokenStatusMessage) (core.VerificationStatus, error) {
	if q == nil || q.reader == nil {
		return "", queryDependencyError("query: verification reader is required")
	}
	return q.reader.TokenStatus(ctx, msg.Token)
}

type CheckNumberQuery struct {
	reader PassReader
}

func NewCheckNumberQuery(reader PassReader) *CheckNumberQuery {
	return &CheckNumberQuery{reader: reader}
}

func (q *CheckNumberQuery) Query(ctx context.Context, msg CheckNumberMessage) (core.CheckNumberResult, error) {
	if q == nil || q.reader == nil {
		return core.CheckNumberResult{}, queryDependencyError("query: pass reader is required")
	}
	return q.reader.CheckNumber(ctx, msg.PhoneNumber), nil
}

type ListActivePassesQuery struct {
	reader PassReader
}

func NewListActivePassesQuery(reader PassReader) *ListActivePassesQuery {
	return &ListActivePassesQuery{reader: reader}
}

func (q *ListActivePassesQuery) Query(ctx context.Context, msg ListActivePassesMessage) ([]core.SnapshotEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pass reader is required")
	}
	return q.reader.ListActivePasses(ctx)
}

type ExpectingWindowQuery struct {
	reader WindowReader
}

func NewExpectingWindowQuery(reader WindowReader) *ExpectingWindowQuery {
	return &ExpectingWindowQuery{reader: reader}
}

func (q *ExpectingWindowQuery) Query(ctx context.Context, msg ExpectingWindowMessage) (core.ExpectingWindowSnapshot, error) {
	if q == nil || q.reader == nil {
		return core.ExpectingWindowSnapshot{}, queryDependencyError("query: window reader is required")
	}
	window := q.reader.ExpectingWindow()
	if window == nil {
		return core.ExpectingWindowSnapshot{}, queryDependencyError("query: expecting window is not configured")
	}
	return window.Snapshot(), nil
}
