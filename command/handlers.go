package command

import (
	"context"
	"time"

	"github.com/goliatone/go-callpass/core"
	gocmd "github.com/goliatone/go-command"
)

type MutatingService interface {
	StartVerification(ctx context.Context, req core.StartVerificationRequest) (core.StartVerificationResponse, error)
	RedeemToken(ctx context.Context, req core.RedeemTokenRequest) (core.RedeemTokenResponse, error)
	CreatePass(ctx context.Context, req core.CreatePassRequest) (core.Pass, error)
	RevokePass(ctx context.Context, id string) error
	OpenExpectingWindow(ctx context.Context, minutes int) (core.ExpectingWindowSnapshot, error)
}

type StartVerificationCommand struct {
	service MutatingService
}

func NewStartVerificationCommand(service MutatingService) *StartVerificationCommand {
	return &StartVerificationCommand{service: service}
}

func (c *StartVerificationCommand) Execute(ctx context.Context, msg StartVerificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: verification service is required")
	}
	out, err := c.service.StartVerification(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RedeemTokenCommand struct {
	service MutatingService
}

func NewRedeemTokenCommand(service MutatingService) *RedeemTokenCommand {
	return &RedeemTokenCommand{service: service}
}

func (c *RedeemTokenCommand) Execute(ctx context.Context, msg RedeemTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: verification service is required")
	}
	out, err := c.service.RedeemToken(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreatePassCommand struct {
	service MutatingService
}

func NewCreatePassCommand(service MutatingService) *CreatePassCommand {
	return &CreatePassCommand{service: service}
}

func (c *CreatePassCommand) Execute(ctx context.Context, msg CreatePassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pass service is required")
	}
	out, err := c.service.CreatePass(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokePassCommand struct {
	service MutatingService
}

func NewRevokePassCommand(service MutatingService) *RevokePassCommand {
	return &RevokePassCommand{service: service}
}

func (c *RevokePassCommand) Execute(ctx context.Context, msg RevokePassMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pass service is required")
	}
	return c.service.RevokePass(ctx, msg.PassID)
}

type OpenExpectingWindowCommand struct {
	service MutatingService
}

func NewOpenExpectingWindowCommand(service MutatingService) *OpenExpectingWindowCommand {
	return &OpenExpectingWindowCommand{service: service}
}

func (c *OpenExpectingWindowCommand) Execute(ctx context.Context, msg OpenExpectingWindowMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: expecting window service is required")
	}
	out, err := c.service.OpenExpectingWindow(ctx, msg.Minutes)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSweepCommand struct {
	sweeper core.Sweeper
	now     func() time.Time
}

func NewRunSweepCommand(sweeper core.Sweeper) *RunSweepCommand {
	return &RunSweepCommand{
		sweeper: sweeper,
		now:     time.Now,
	}
}

// WithSweepClock overrides the sweep reference time. Test hook.
func (c *RunSweepCommand) WithSweepClock(now func() time.Time) *RunSweepCommand {
	if c != nil && now != nil {
		c.now = now
	}
	return c
}

func (c *RunSweepCommand) Execute(ctx context.Context, msg RunSweepMessage) error {
	if c == nil || c.sweeper == nil {
		return commandDependencyError("command: sweeper is required")
	}
	out, err := c.sweeper.Sweep(ctx, c.now())
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
