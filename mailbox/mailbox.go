// Package mailbox implements the Mailbox Resilience layer (C7, spec.md
// §4.6): per-CoE-slave toggle-bit tracking against the wire driver's
// resilient checkMailbox primitive, publishing mailboxError events on
// exhausted retries or transient failure. It generalizes the teacher's
// ecmd retry-until-exhausted convention (ExecuteReadOptions.Retry) from a
// fixed-count register retry into the toggle-bit state machine spec.md
// §4.6 describes.
package mailbox

import (
	"context"

	"github.com/distributed/ecatmaster/wire"
)

// Poller tracks one CoE-capable slave's toggle bit and mailbox status
// register address across polls.
type Poller struct {
	SlaveIndex int
	Addr       wire.SlaveAddr
	StatusReg  uint16

	lastToggle int
}

// NewPoller starts a poller with the toggle bit unknown (spec.md §9(c):
// wire.ToggleUnknown, so the first observed value is always treated as
// new).
func NewPoller(slaveIndex int, addr wire.SlaveAddr, statusReg uint16) *Poller {
	return &Poller{SlaveIndex: slaveIndex, Addr: addr, StatusReg: statusReg, lastToggle: wire.ToggleUnknown}
}

// LastToggle exposes the current tracked toggle value, for tests and
// diagnostics.
func (p *Poller) LastToggle() int { return p.lastToggle }

// Event is published on new mail, exhausted retries, or any other
// transient failure (spec.md §4.6's outcome table).
type Event struct {
	SlaveIndex int
	NewMail    bool
	Err        error
}

// Poll runs one checkMailbox round for this slave and returns the event to
// publish, if any (spec.md §4.6):
//
//	 1  -> new mail: flip local toggle (unknown->0, otherwise 0<->1),
//	       signal new-mail, no error event.
//	 0  -> empty; toggle unchanged, no event.
//	-2  -> retries exhausted; publish mailboxError{"resilient-read-failed"}.
//	 other negative -> transient error; publish mailboxError with the code.
func (p *Poller) Poll(ctx context.Context, driver wire.Driver) (*Event, error) {
	sentToggle := p.lastToggle
	result, err := driver.CheckMailbox(ctx, p.Addr, p.StatusReg, sentToggle)
	if err != nil {
		return &Event{SlaveIndex: p.SlaveIndex, Err: err}, nil
	}

	switch {
	case result == 1:
		if p.lastToggle == wire.ToggleUnknown {
			p.lastToggle = 0
		} else {
			p.lastToggle ^= 1
		}
		return &Event{SlaveIndex: p.SlaveIndex, NewMail: true}, nil
	case result == 0:
		return nil, nil
	case result == -2:
		return &Event{SlaveIndex: p.SlaveIndex, Err: errResilientReadFailed}, nil
	default:
		return &Event{SlaveIndex: p.SlaveIndex, Err: &TransientError{Code: result}}, nil
	}
}
