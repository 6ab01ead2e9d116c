// Package masterloop is the single-owner bus-thread scheduler spec.md §5
// requires: exactly one goroutine ever touches the wire driver, and cyclic
// exchange requests take priority over mailbox/emergency poll requests. It
// generalizes the teacher's ecmd.Multiplexer — a single goroutine draining
// a request channel under gopkg.in/tomb.v2 supervision — from multiplexing
// concurrent "commander" channels into a two-tier priority queue.
package masterloop

import (
	"context"
	"errors"

	"gopkg.in/tomb.v2"
)

// ErrClosed is returned by Submit once the loop has been stopped.
var ErrClosed = errors.New("masterloop: loop is closed")

type job struct {
	fn   func(ctx context.Context) (interface{}, error)
	resp chan result
}

type result struct {
	val interface{}
	err error
}

// Loop runs one goroutine that drains a high-priority channel (cyclic
// exchange) ahead of a low-priority one (mailbox/emergency polls, state
// requests, SDO/EEPROM calls), per spec.md §5's "priority queue (cycles
// beat polls)".
type Loop struct {
	t      tomb.Tomb
	highCh chan job
	lowCh  chan job
}

// New starts the loop goroutine.
func New() *Loop {
	l := &Loop{
		highCh: make(chan job),
		lowCh:  make(chan job),
	}
	l.t.Go(l.run)
	return l
}

func (l *Loop) run() error {
	for {
		// Drain any pending high-priority job before considering low
		// priority ones, without busy-spinning when none is ready.
		select {
		case j := <-l.highCh:
			l.execute(j)
			continue
		default:
		}

		select {
		case j := <-l.highCh:
			l.execute(j)
		case j := <-l.lowCh:
			l.execute(j)
		case <-l.t.Dying():
			return nil
		}
	}
}

func (l *Loop) execute(j job) {
	val, err := j.fn(l.t.Context(nil))
	j.resp <- result{val: val, err: err}
}

// SubmitHigh runs fn on the loop goroutine ahead of any queued low-priority
// work; used for RunCycle.
func (l *Loop) SubmitHigh(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return l.submit(ctx, l.highCh, fn)
}

// SubmitLow runs fn on the loop goroutine after any pending high-priority
// work; used for mailbox polls, emergency polls, state requests, and
// register/SDO/EEPROM calls issued outside a cycle.
func (l *Loop) SubmitLow(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return l.submit(ctx, l.lowCh, fn)
}

func (l *Loop) submit(ctx context.Context, ch chan job, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	j := job{fn: fn, resp: make(chan result, 1)}
	select {
	case ch <- j:
	case <-l.t.Dying():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the loop and waits for the goroutine to exit. Idempotent.
func (l *Loop) Close() error {
	l.t.Kill(nil)
	return l.t.Wait()
}
