package query

import (
	"github.com/goliatone/go-callpass/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[TokenStatusMessage, core.VerificationStatus]          = (*TokenStatusQuery)(nil)
	_ gocmd.Querier[CheckNumberMessage, core.CheckNumberResult]           = (*CheckNumberQuery)(nil)
	_ gocmd.Querier[ListActivePassesMessage, []core.SnapshotEntry]        = (*ListActivePassesQuery)(nil)
	_ gocmd.Querier[ExpectingWindowMessage, core.ExpectingWindowSnapshot] = (*ExpectingWindowQuery)(nil)
)
