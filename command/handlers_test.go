package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-callpass/core"
	gocmd "github.com/goliatone/go-command"
)

type stubMutatingService struct {
	startVerificationFn   func(context.Context, core.StartVerificationRequest) (core.StartVerificationResponse, error)
	redeemTokenFn         func(context.Context, core.RedeemTokenRequest) (core.RedeemTokenResponse, error)
	createPassFn          func(context.Context, core.CreatePassRequest) (core.Pass, error)
	revokePassFn          func(context.Context, string) error
	openExpectingWindowFn func(context.Context, int) (core.ExpectingWindowSnapshot, error)
}

func (s stubMutatingService) StartVerification(ctx context.Context, req core.StartVerificationRequest) (core.StartVerificationResponse, error) {
	if s.startVerificationFn == nil {
		return core.StartVerificationResponse{}, fmt.Errorf("unexpected StartVerification call")
	}
	return s.startVerificationFn(ctx, req)
}

func (s stubMutatingService) RedeemToken(ctx context.Context, req core.RedeemTokenRequest) (core.RedeemTokenResponse, error) {
	if s.redeemTokenFn == nil {
		return core.RedeemTokenResponse{}, fmt.Errorf("unexpected RedeemToken call")
	}
	return s.redeemTokenFn(ctx, req)
}

func (s stubMutatingService) CreatePass(ctx context.Context, req core.CreatePassRequest) (core.Pass, error) {
	if s.createPassFn == nil {
		return core.Pass{}, fmt.Errorf("unexpected CreatePass call")
	}
	return s.createPassFn(ctx, req)
}

func (s stubMutatingService) RevokePass(ctx context.Context, id string) error {
	if s.revokePassFn == nil {
		return fmt.Errorf("unexpected RevokePass call")
	}
	return s.revokePassFn(ctx, id)
}

func (s stubMutatingService) OpenExpectingWindow(ctx context.Context, minutes int) (core.ExpectingWindowSnapshot, error) {
	if s.openExpectingWindowFn == nil {
		return core.ExpectingWindowSnapshot{}, fmt.Errorf("unexpected OpenExpectingWindow call")
	}
	return s.openExpectingWindowFn(ctx, minutes)
}

type stubSweeper struct {
	result core.SweepResult
	err    error
	gotNow time.Time
}

func (s *stubSweeper) Sweep(_ context.Context, now time.Time) (core.SweepResult, error) {
	s.gotNow = now
	return s.result, s.err
}

func TestStartVerificationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.StartVerificationResponse{
		Token:       "tok-1",
		VanityURL:   "https://vpass.link/v/tok-1",
		PhoneNumber: "+15551234567",
	}
	called := false
	svc := stubMutatingService{
		startVerificationFn: func(_ context.Context, req core.StartVerificationRequest) (core.StartVerificationResponse, error) {
			called = true
			if req.PhoneNumber != "+15551234567" || req.Name != "Dana" {
				t.Fatalf("unexpected request: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewStartVerificationCommand(svc)
	collector := gocmd.NewResult[core.StartVerificationResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, StartVerificationMessage{Request: core.StartVerificationRequest{
		PhoneNumber: "+15551234567",
		Name:        "Dana",
	}}); err != nil {
		t.Fatalf("execute start verification: %v", err)
	}
	if !called {
		t.Fatalf("expected service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Token != expected.Token || result.VanityURL != expected.VanityURL {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRedeemTokenCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.RedeemTokenResponse{CallerName: "Dana", PassGranted: true, PassID: "pass-1"}
	svc := stubMutatingService{
		redeemTokenFn: func(_ context.Context, req core.RedeemTokenRequest) (core.RedeemTokenResponse, error) {
			if req.Token != "tok-1" || !req.GrantPass {
				t.Fatalf("unexpected request: %#v", req)
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.RedeemTokenResponse]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewRedeemTokenCommand(svc).Execute(ctx, RedeemTokenMessage{Request: core.RedeemTokenRequest{
		Token:          "tok-1",
		RecipientPhone: "+15557654321",
		GrantPass:      true,
	}}); err != nil {
		t.Fatalf("execute redeem token: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.PassID != expected.PassID {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRedeemTokenCommand_ServiceErrorPropagates(t *testing.T) {
	svc := stubMutatingService{
		redeemTokenFn: func(context.Context, core.RedeemTokenRequest) (core.RedeemTokenResponse, error) {
			return core.RedeemTokenResponse{}, core.ErrTokenConsumed
		},
	}
	err := NewRedeemTokenCommand(svc).Execute(context.Background(), RedeemTokenMessage{
		Request: core.RedeemTokenRequest{Token: "tok-1", RecipientPhone: "+15557654321"},
	})
	if err != core.ErrTokenConsumed {
		t.Fatalf("expected ErrTokenConsumed, got %v", err)
	}
}

func TestPassCommands_DelegateToService(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		expected := core.Pass{ID: "pass-1", PhoneNumber: "+15551234567", Scope: core.PassScope24Hours}
		svc := stubMutatingService{
			createPassFn: func(_ context.Context, req core.CreatePassRequest) (core.Pass, error) {
				if req.Scope != "24h" {
					t.Fatalf("unexpected scope: %q", req.Scope)
				}
				return expected, nil
			},
		}

		collector := gocmd.NewResult[core.Pass]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewCreatePassCommand(svc).Execute(ctx, CreatePassMessage{Request: core.CreatePassRequest{
			PhoneNumber: "+15551234567",
			Scope:       "24h",
		}}); err != nil {
			t.Fatalf("execute create pass: %v", err)
		}
		result, ok := collector.Load()
		if !ok {
			t.Fatalf("expected pass result")
		}
		if result.ID != expected.ID {
			t.Fatalf("unexpected pass: %#v", result)
		}
	})

	t.Run("revoke", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			revokePassFn: func(_ context.Context, id string) error {
				called = true
				if id != "pass-1" {
					t.Fatalf("unexpected pass id: %q", id)
				}
				return nil
			},
		}
		if err := NewRevokePassCommand(svc).Execute(context.Background(), RevokePassMessage{PassID: "pass-1"}); err != nil {
			t.Fatalf("execute revoke pass: %v", err)
		}
		if !called {
			t.Fatalf("expected revoke invocation")
		}
	})
}

func TestOpenExpectingWindowCommand_ExecuteStoresSnapshot(t *testing.T) {
	opensAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expected := core.ExpectingWindowSnapshot{OpensAt: opensAt, ClosesAt: opensAt.Add(45 * time.Minute)}
	svc := stubMutatingService{
		openExpectingWindowFn: func(_ context.Context, minutes int) (core.ExpectingWindowSnapshot, error) {
			if minutes != 45 {
				t.Fatalf("unexpected minutes: %d", minutes)
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.ExpectingWindowSnapshot]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewOpenExpectingWindowCommand(svc).Execute(ctx, OpenExpectingWindowMessage{Minutes: 45}); err != nil {
		t.Fatalf("execute open window: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected snapshot result")
	}
	if !result.ClosesAt.Equal(expected.ClosesAt) {
		t.Fatalf("unexpected snapshot: %#v", result)
	}
}

func TestRunSweepCommand_ExecuteUsesInjectedClock(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{result: core.SweepResult{PassesRemoved: 2, RanAt: at}}

	cmd := NewRunSweepCommand(sweeper).WithSweepClock(func() time.Time { return at })
	collector := gocmd.NewResult[core.SweepResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RunSweepMessage{}); err != nil {
		t.Fatalf("execute sweep: %v", err)
	}
	if !sweeper.gotNow.Equal(at) {
		t.Fatalf("sweep time = %v, want %v", sweeper.gotNow, at)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected sweep result")
	}
	if result.PassesRemoved != 2 {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestRunSweepCommand_OverlapErrorPropagates(t *testing.T) {
	sweeper := &stubSweeper{err: core.ErrSweepInProgress}
	err := NewRunSweepCommand(sweeper).Execute(context.Background(), RunSweepMessage{})
	if err != core.ErrSweepInProgress {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
}

func TestMessageTypes(t *testing.T) {
	cases := []struct {
		msg  interface{ Type() string }
		want string
	}{
		{msg: StartVerificationMessage{}, want: TypeStartVerification},
		{msg: RedeemTokenMessage{}, want: TypeRedeemToken},
		{msg: CreatePassMessage{}, want: TypeCreatePass},
		{msg: RevokePassMessage{}, want: TypeRevokePass},
		{msg: OpenExpectingWindowMessage{}, want: TypeOpenExpectingWindow},
		{msg: RunSweepMessage{}, want: TypeRunSweep},
	}
	for _, tc := range cases {
		if got := tc.msg.Type(); got != tc.want {
			t.Fatalf("Type() = %q, want %q", got, tc.want)
		}
	}
}
