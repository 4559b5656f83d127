package outstation

import (
	"context"

	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/points"
	"avaneesh/md3-go/pkg/types"
)

// PointStore is the point state the outstation reads while building replies
// and updates after a reply has been sent. *points.Store implements it.
type PointStore interface {
	View(fn func(points.Reader))
	ClearDigital(module uint8, reported uint16)
	CommitAnalog(module, channel uint8, reported uint16)
	CommitCounter(module, channel uint8)
	FreezeCounters(module uint8, reset bool) bool
	ControlIndex(kind points.ControlKind, addr points.Address) (uint16, bool)
}

// Sender transmits a reply. *channel.Channel implements it.
type Sender interface {
	Send(ctx context.Context, msg md3.Message) error
}

// FlagSource provides the two computed bits of the system flag word.
type FlagSource interface {
	DigitalChangePending() bool
	TimeTaggedEventPending() bool
}

// ControlHandler executes controls received from the master
type ControlHandler interface {
	Operate(ctx context.Context, ctl types.Control) types.CommandStatus
}

// ControlHandlerFunc adapts a function to ControlHandler
type ControlHandlerFunc func(ctx context.Context, ctl types.Control) types.CommandStatus

// Operate calls f
func (f ControlHandlerFunc) Operate(ctx context.Context, ctl types.Control) types.CommandStatus {
	return f(ctx, ctl)
}
