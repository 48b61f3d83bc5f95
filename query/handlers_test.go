package query

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-callpass/core"
)

type stubReaders struct {
	tokenStatusFn      func(context.Context, string) (core.VerificationStatus, error)
	checkNumberFn      func(context.Context, string) core.CheckNumberResult
	listActivePassesFn func(context.Context) ([]core.SnapshotEntry, error)
	window             *core.ExpectingWindow
}

func (s stubReaders) TokenStatus(ctx context.Context, token string) (core.VerificationStatus, error) {
	if s.tokenStatusFn == nil {
		return "", fmt.Errorf("unexpected TokenStatus call")
	}
	return s.tokenStatusFn(ctx, token)
}

func (s stubReaders) CheckNumber(ctx context.Context, phoneNumber string) core.CheckNumberResult {
	if s.checkNumberFn == nil {
		return core.CheckNumberResult{}
	}
	return s.checkNumberFn(ctx, phoneNumber)
}

func (s stubReaders) ListActivePasses(ctx context.Context) ([]core.SnapshotEntry, error) {
	if s.listActivePassesFn == nil {
		return nil, fmt.Errorf("unexpected ListActivePasses call")
	}
	return s.listActivePassesFn(ctx)
}

func (s stubReaders) ExpectingWindow() *core.ExpectingWindow {
	return s.window
}

func TestTokenStatusQuery_Delegates(t *testing.T) {
	reader := stubReaders{
		tokenStatusFn: func(_ context.Context, token string) (core.VerificationStatus, error) {
			if token != "tok-1" {
				t.Fatalf("unexpected token: %q", token)
			}
			return core.VerificationStatusCompleted, nil
		},
	}

	status, err := NewTokenStatusQuery(reader).Query(context.Background(), TokenStatusMessage{Token: "tok-1"})
	if err != nil {
		t.Fatalf("query token status: %v", err)
	}
	if status != core.VerificationStatusCompleted {
		t.Fatalf("status = %q, want completed", status)
	}
}

func TestTokenStatusQuery_ErrorPropagates(t *testing.T) {
	reader := stubReaders{
		tokenStatusFn: func(context.Context, string) (core.VerificationStatus, error) {
			return "", core.ErrTokenNotFound
		},
	}
	if _, err := NewTokenStatusQuery(reader).Query(context.Background(), TokenStatusMessage{Token: "tok-1"}); err != core.ErrTokenNotFound {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestCheckNumberQuery_NeverErrors(t *testing.T) {
	expiresAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reader := stubReaders{
		checkNumberFn: func(_ context.Context, number string) core.CheckNumberResult {
			if number != "+15551234567" {
				t.Fatalf("unexpected number: %q", number)
			}
			return core.CheckNumberResult{Allowed: true, Scope: core.PassScope24Hours, ExpiresAt: &expiresAt}
		},
	}

	result, err := NewCheckNumberQuery(reader).Query(context.Background(), CheckNumberMessage{PhoneNumber: "+15551234567"})
	if err != nil {
		t.Fatalf("query check number: %v", err)
	}
	if !result.Allowed || result.Scope != core.PassScope24Hours {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestListActivePassesQuery_Delegates(t *testing.T) {
	entries := []core.SnapshotEntry{
		{PhoneNumber: "+15551234567", Name: "Dana", Scope: core.PassScope30Days},
	}
	reader := stubReaders{
		listActivePassesFn: func(context.Context) ([]core.SnapshotEntry, error) {
			return entries, nil
		},
	}

	got, err := NewListActivePassesQuery(reader).Query(context.Background(), ListActivePassesMessage{})
	if err != nil {
		t.Fatalf("query active passes: %v", err)
	}
	if len(got) != 1 || got[0].PhoneNumber != "+15551234567" {
		t.Fatalf("unexpected entries: %#v", got)
	}
}

func TestExpectingWindowQuery_ReturnsSnapshot(t *testing.T) {
	window := core.NewExpectingWindow(nil)
	if _, err := window.Open(30 * time.Minute); err != nil {
		t.Fatalf("open window: %v", err)
	}
	reader := stubReaders{window: window}

	snapshot, err := NewExpectingWindowQuery(reader).Query(context.Background(), ExpectingWindowMessage{})
	if err != nil {
		t.Fatalf("query window: %v", err)
	}
	if snapshot.Zero() {
		t.Fatal("expected open snapshot")
	}
	if !snapshot.ClosesAt.After(snapshot.OpensAt) {
		t.Fatalf("invalid snapshot: %#v", snapshot)
	}
}

func TestExpectingWindowQuery_MissingWindowIsDependencyError(t *testing.T) {
	if _, err := NewExpectingWindowQuery(stubReaders{}).Query(context.Background(), ExpectingWindowMessage{}); err == nil {
		t.Fatal("expected dependency error for nil window")
	}
}

func TestQueryMessageTypes(t *testing.T) {
	cases := []struct {
		msg  interface{ Type() string }
		want string
	}{
		{msg: TokenStatusMessage{}, want: TypeTokenStatus},
		{msg: CheckNumberMessage{}, want: TypeCheckNumber},
		{msg: ListActivePassesMessage{}, want: TypeListActivePasses},
		{msg: ExpectingWindowMessage{}, want: TypeExpectingWindow},
	}
	for _, tc := range cases {
		if got := tc.msg.Type(); got != tc.want {
			t.Fatalf("Type() = %q, want %q", got, tc.want)
		}
	}
}
