package callpass

import (
	"fmt"

	callpasscommand "github.com/goliatone/go-callpass/command"
	"github.com/goliatone/go-callpass/core"
	callpassquery "github.com/goliatone/go-callpass/query"
)

// CommandQueryService is what the facade needs from the underlying
// service: every mutating operation plus the read paths.
type CommandQueryService interface {
	callpasscommand.MutatingService
	callpassquery.VerificationReader
	callpassquery.PassReader
	callpassquery.WindowReader
	core.Sweeper
}

type Commands struct {
	StartVerification   *callpasscommand.StartVerificationCommand
	RedeemToken         *callpasscommand.RedeemTokenCommand
	CreatePass          *callpasscommand.CreatePassCommand
	RevokePass          *callpasscommand.RevokePassCommand
	OpenExpectingWindow *callpasscommand.OpenExpectingWindowCommand
	RunSweep            *callpasscommand.RunSweepCommand
}

type Queries struct {
	TokenStatus      *callpassquery.TokenStatusQuery
	CheckNumber      *callpassquery.CheckNumberQuery
	ListActivePasses *callpassquery.ListActivePassesQuery
	ExpectingWindow  *callpassquery.ExpectingWindowQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("callpass: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		StartVerification:   callpasscommand.NewStartVerificationCommand(service),
		RedeemToken:         callpasscommand.NewRedeemTokenCommand(service),
		CreatePass:          callpasscommand.NewCreatePassCommand(service),
		RevokePass:          callpasscommand.NewRevokePassCommand(service),
		OpenExpectingWindow: callpasscommand.NewOpenExpectingWindowCommand(service),
		RunSweep:            callpasscommand.NewRunSweepCommand(service),
	}
	facade.queries = Queries{
		TokenStatus:      callpassquery.NewTokenStatusQuery(service),
		CheckNumber:      callpassquery.NewCheckNumberQuery(service),
		ListActivePasses: callpassquery.NewListActivePassesQuery(service),
		ExpectingWindow:  callpassquery.NewExpectingWindowQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*core.Service)(nil)
