package pool

import (
	"context"

	"github.com/echowing/smsgw/internal/modem"
)

// SessionHandle is the subset of *modem.Session the pool depends on. It
// exists so tests can exercise arbitration and eviction logic against a
// fake, without dialing real serial ports (the same shape modem.Session
// already exposes).
type SessionHandle interface {
	Descriptor() modem.Descriptor
	State() modem.State
	MarkInUse(bool)
	Eligible() bool
	Faulted() bool
	HealthCheck(ctx context.Context) error
	Send(ctx context.Context, destination, body string) modem.SendResult
	Close() error
}
