package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartVerificationMessage]   = (*StartVerificationCommand)(nil)
	_ gocmd.Commander[RedeemTokenMessage]         = (*RedeemTokenCommand)(nil)
	_ gocmd.Commander[CreatePassMessage]          = (*CreatePassCommand)(nil)
	_ gocmd.Commander[RevokePassMessage]          = (*RevokePassCommand)(nil)
	_ gocmd.Commander[OpenExpectingWindowMessage] = (*OpenExpectingWindowCommand)(nil)
	_ gocmd.Commander[RunSweepMessage]            = (*RunSweepCommand)(nil)
)
