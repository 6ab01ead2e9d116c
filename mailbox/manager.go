package mailbox

import (
	"context"
	"time"

	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/wire"
)

// DefaultPollPeriod is spec.md §4.6's ceiling: "min(slave.pollPeriodMs for
// CoE slaves, 20 ms)".
const DefaultPollPeriod = 20 * time.Millisecond

// Manager runs one Poller per CoE-capable slave at a single shared period.
type Manager struct {
	Period  time.Duration
	pollers []*Poller
}

// NewManager builds a Manager for every CoE-capable slave in the Network
// Description, in slave order.
func NewManager(nd netdesc.NetworkDescription) *Manager {
	m := &Manager{Period: DefaultPollPeriod}
	for i, s := range nd.Slaves {
		if s.Invalid || !s.Mailbox.SupportsCoE {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		m.pollers = append(m.pollers, NewPoller(i, addr, s.Mailbox.StatusRegisterAddress))
		if s.Mailbox.PollPeriodMs > 0 && time.Duration(s.Mailbox.PollPeriodMs)*time.Millisecond < m.Period {
			m.Period = time.Duration(s.Mailbox.PollPeriodMs) * time.Millisecond
		}
	}
	return m
}

// Pollers exposes the poller list for tests.
func (m *Manager) Pollers() []*Poller { return m.pollers }

// PollAll runs one round across every CoE-capable slave and returns the
// events to publish, in slave order.
func (m *Manager) PollAll(ctx context.Context, driver wire.Driver) []*Event {
	var events []*Event
	for _, p := range m.pollers {
		if ev, err := p.Poll(ctx, driver); err == nil && ev != nil {
			events = append(events, ev)
		}
	}
	return events
}
