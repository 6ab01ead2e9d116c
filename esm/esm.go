package esm

import (
	"context"
	"time"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/internal/wirefmt"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
	"github.com/sirupsen/logrus"
)

// pollInterval is how often AL-status is re-read while waiting for a
// transition to complete. spec.md does not name a value; 5ms keeps the
// poll well under the default 3s state-transition timeout without busy
// spinning.
const pollInterval = 5 * time.Millisecond

// Orchestrator is the C5 component: it drives every slave through ordered
// ESM transitions against a wire.Driver. It holds no bus state of its own —
// current/target state and the slave list are the caller's (the master
// facade's), matching spec.md §4.7's "the driver owns the AL-state global
// under a mutex it owns."
type Orchestrator struct {
	Driver wire.Driver
	Log    logrus.FieldLogger

	// OnStateChange, if non-nil, is invoked after each successfully applied
	// step with the before/after global state (spec.md §4.4 step 5).
	OnStateChange func(previous, current State)
}

// New builds an Orchestrator.
func New(driver wire.Driver, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{Driver: driver, Log: log}
}

// RequestState implements spec.md §4.4's requestState(target): it computes
// the legal path from current to target and walks it one step at a time,
// applying init commands, the SafeOp watchdog pre-gate, and the AL-control
// write/poll for each step in turn.
func (o *Orchestrator) RequestState(ctx context.Context, slaves []netdesc.SlaveDescriptor, current, target State, cfg netdesc.Config) (State, error) {
	if current == target {
		return current, nil
	}

	steps, err := path(current, target)
	if err != nil {
		return current, err
	}

	reached := current
	for _, next := range steps {
		code, ok := transitionOf(reached, next)
		if !ok {
			return reached, &TransitionError{From: reached, To: next, Slave: -1, Reason: "no transition code for computed path step"}
		}

		if err := o.applyInitCommands(ctx, slaves, code); err != nil {
			return reached, err
		}

		if code == netdesc.PS && cfg.WatchdogTimeout > 0 {
			writeWatchdogs(ctx, o.Driver, slaves, int(cfg.WatchdogTimeout/time.Millisecond), o.Log)
		}

		if err := o.applyALState(ctx, slaves, reached, next, cfg.StateTransitionTimeout); err != nil {
			return reached, err
		}

		previous := reached
		reached = next
		if o.OnStateChange != nil {
			o.OnStateChange(previous, reached)
		}
	}

	return reached, nil
}

func (o *Orchestrator) applyInitCommands(ctx context.Context, slaves []netdesc.SlaveDescriptor, step netdesc.TransitionCode) error {
	for i, s := range slaves {
		if s.Invalid || s.ManualConfigurationRequired {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		for _, cmd := range s.InitCommands {
			if !cmd.AppliesTo(step) {
				continue
			}
			if err := runInitCommand(ctx, o.Driver, addr, cmd); err != nil {
				return &TransitionError{Slave: i, Reason: "init command failed", Err: err}
			}
		}
	}
	return nil
}

// applyALState issues the AL-control write for the target state on every
// slave, then polls AL-status until it matches or the state-transition
// timeout elapses (spec.md §4.4 step 4).
func (o *Orchestrator) applyALState(ctx context.Context, slaves []netdesc.SlaveDescriptor, from, to State, timeout time.Duration) error {
	value := []byte{byte(to), byte(uint16(to) >> 8)}

	for i, s := range slaves {
		if s.Invalid || s.ManualConfigurationRequired {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		if _, err := o.Driver.WriteRegister(ctx, addr, wire.FPWR, ecaddr.ALControl, value); err != nil {
			return &TransitionError{From: from, To: to, Slave: i, Reason: "AL-control write failed", Err: err}
		}
	}

	deadline := time.Now().Add(timeout)
	for i, s := range slaves {
		if s.Invalid || s.ManualConfigurationRequired {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		if err := o.pollALStatus(ctx, addr, to, deadline); err != nil {
			alCode := o.readALStatusCode(ctx, addr)
			o.Log.WithField("slave", wirefmt.Dump(addr)).Debug("esm: address that failed to reach target AL state")
			return &TransitionError{From: from, To: to, Slave: i, Reason: "AL-status did not reach target before timeout", ALCode: alCode, Err: err}
		}
	}
	return nil
}

func (o *Orchestrator) pollALStatus(ctx context.Context, addr wire.SlaveAddr, target State, deadline time.Time) error {
	for {
		data, wkc, err := o.Driver.ReadRegister(ctx, addr, wire.FPRD, ecaddr.ALStatus, 2)
		if err == nil && wkc.Valid() {
			got := State(uint16(data[0]) | uint16(data[1])<<8)
			if got == target {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (o *Orchestrator) readALStatusCode(ctx context.Context, addr wire.SlaveAddr) uint16 {
	data, wkc, err := o.Driver.ReadRegister(ctx, addr, wire.FPRD, ecaddr.ALStatusCode, 2)
	if err != nil || !wkc.Valid() || len(data) < 2 {
		return 0
	}
	return uint16(data[0]) | uint16(data[1])<<8
}

// VerifyTopology implements Feature 302 (spec.md §4.4): re-read every
// slave's SII identity in slave order and compare against the Network
// Description's expected values (invariant I4), reporting the first
// mismatch.
func (o *Orchestrator) VerifyTopology(ctx context.Context, acc *regaccess.Accessor, slaves []netdesc.SlaveDescriptor) error {
	for i, s := range slaves {
		if s.Invalid {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		actual, err := acc.ReadIdentity(ctx, addr)
		if err != nil {
			return &TopologyMismatchError{Index: i, Expected: s.Identity, Actual: netdesc.Identity{}}
		}
		if actual != s.Identity {
			return &TopologyMismatchError{Index: i, Expected: s.Identity, Actual: actual}
		}
	}
	return nil
}
