package regaccess

import (
	"fmt"

	"github.com/distributed/ecatmaster/wire"
)

// TimeoutError is returned when a register/SII operation's PDU never
// arrived within the retry budget (spec.md §4.1 "timeout" category).
// It generalizes the teacher's ecmd.NoFrame sentinel into a typed error
// carrying enough context to log.
type TimeoutError struct {
	Slave wire.SlaveAddr
	Reg   uint16
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("regaccess: PDU timeout addressing %+v register %#04x", e.Slave, e.Reg)
}

// WKCMismatchError is returned when a datagram arrived but its working
// counter did not match what was expected, generalizing the teacher's
// ecmd.WorkingCounterError.
type WKCMismatchError struct {
	Slave      wire.SlaveAddr
	Reg        uint16
	Want, Have wire.WorkingCounter
}

func (e *WKCMismatchError) Error() string {
	return fmt.Sprintf("regaccess: working counter mismatch on register %#04x, want %d have %d", e.Reg, e.Want, e.Have)
}

// UnreachableError wraps a driver-internal failure (spec.md §4.1
// "unreachable" category): the driver itself errored, not merely a
// missed/mismatched datagram.
type UnreachableError struct {
	Slave wire.SlaveAddr
	Reg   uint16
	Err   error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("regaccess: slave %+v unreachable accessing register %#04x: %v", e.Slave, e.Reg, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }
