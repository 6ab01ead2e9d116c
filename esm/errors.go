package esm

import (
	"fmt"

	"github.com/distributed/ecatmaster/netdesc"
)

// TransitionError reports a fatal state-transition failure (spec.md §4.4
// step 2/4): an init command exhausted its retries, or AL-status never
// reached the target state within the state-transition timeout. ALCode, if
// non-zero, is the AL-status-code register value read when the failure was
// detected.
type TransitionError struct {
	From, To State
	Slave    int // -1 when the failure is not attributable to one slave
	Reason   string
	ALCode   uint16
	Err      error
}

func (e *TransitionError) Error() string {
	if e.ALCode != 0 {
		return fmt.Sprintf("esm: %s->%s failed: %s (AL status code %#04x)", e.From, e.To, e.Reason, e.ALCode)
	}
	return fmt.Sprintf("esm: %s->%s failed: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// TopologyMismatchError reports Feature 302's identity-verification
// failure: the actual bus does not match the Network Description's
// expected slave order/identities (spec.md §4.4).
type TopologyMismatchError struct {
	Index    int
	Expected netdesc.Identity
	Actual   netdesc.Identity
}

func (e *TopologyMismatchError) Error() string {
	return fmt.Sprintf("esm: topology mismatch at slave %d: expected %+v, got %+v", e.Index, e.Expected, e.Actual)
}
