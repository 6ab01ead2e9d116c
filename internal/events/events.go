// Package events is the master's fan-out from spec.md §4.8: state changes,
// emergencies, and mailbox errors are published to zero or more subscribers
// through a small callback registry. It has no direct teacher analogue —
// the ecmd package pushes results back over per-request response channels
// rather than broadcasting — so this is built from the standard library
// alone: a sync.Mutex guarding a plain slice of handlers.
package events

import "sync"

// Kind identifies what a published Event carries.
type Kind int

const (
	// StateChange fires whenever the ESM orchestrator reaches a new state.
	StateChange Kind = iota
	// Emergency fires on a deduplicated CoE emergency event.
	Emergency
	// MailboxError fires when a mailbox poll resolves to an error.
	MailboxError
)

func (k Kind) String() string {
	switch k {
	case StateChange:
		return "state-change"
	case Emergency:
		return "emergency"
	case MailboxError:
		return "mailbox-error"
	default:
		return "unknown"
	}
}

// Event is the payload delivered to subscribers. Only the field matching
// Kind is populated.
type Event struct {
	Kind Kind

	StateFrom, StateTo uint16
	SlaveIndex         int
	ErrorCode          uint16
	ErrorRegister      uint8
	Err                error
}

// Handler receives a published Event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus is a concurrency-safe registry of subscribers.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h to receive every future published Event. It
// returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := len(b.handlers)
	b.handlers = append(b.handlers, h)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Publish delivers ev to every live subscriber, in subscription order.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(ev)
		}
	}
}
