// Package emergency implements the CoE Emergency Channel (C8, spec.md
// §4.7): polling the wire driver's "last global emergency" slot and
// deduplicating repeated events per slave by (errorCode, errorRegister).
package emergency

import (
	"context"
	"time"

	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/wire"
)

// DefaultPollPeriod is spec.md §4.7's "every 10 ms (configurable)".
const DefaultPollPeriod = 10 * time.Millisecond

// Event is the emergency event published to subscribers.
type Event struct {
	SlaveIndex    int
	ErrorCode     uint16
	ErrorRegister uint8
}

type key struct {
	code uint16
	reg  uint8
}

// Channel tracks the last emitted event per CoE-capable slave, dropping
// non-CoE slaves and duplicates silently (spec.md §4.7).
type Channel struct {
	coeCapable map[int]bool
	lastByIdx  map[int]key
}

// NewChannel builds a Channel scoped to the CoE-capable slaves in nd.
func NewChannel(nd netdesc.NetworkDescription) *Channel {
	c := &Channel{coeCapable: make(map[int]bool), lastByIdx: make(map[int]key)}
	for i, s := range nd.Slaves {
		if !s.Invalid && s.Mailbox.SupportsCoE {
			c.coeCapable[i] = true
		}
	}
	return c
}

// Poll reads the driver's last-global-emergency slot once and returns the
// event to publish, or nil if there is nothing new to report.
func (c *Channel) Poll(ctx context.Context, driver wire.Driver) (*Event, error) {
	slaveIndex, code, reg, ok, err := driver.LastEmergency(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if !c.coeCapable[slaveIndex] {
		return nil, nil
	}

	k := key{code: code, reg: reg}
	if prev, seen := c.lastByIdx[slaveIndex]; seen && prev == k {
		return nil, nil
	}
	c.lastByIdx[slaveIndex] = k

	return &Event{SlaveIndex: slaveIndex, ErrorCode: code, ErrorRegister: reg}, nil
}
