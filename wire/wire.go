// Package wire defines the boundary between the master core and the raw
// L2 Ethernet driver (C1 in spec.md §2). The driver itself — socket
// handling, frame construction, EtherType 0x88A4 framing — is an external
// collaborator and out of scope here (spec.md §1); this package only
// states the contract the core relies on.
//
// It generalizes the teacher's ecfr.CommandType/DatagramHeader vocabulary:
// where the teacher packed command, address and length into a raw 10-byte
// datagram header for a real byte-level wire encoder, this contract lets
// the driver do that encoding internally and hand back structured results,
// per the "trait-style abstraction... methods returning a structured
// result value rather than a sentinel" reshaping spec.md §9 calls for.
package wire

import (
	"context"
	"errors"
	"fmt"
)

// ErrBusBusy is returned by SlaveCount (and, at a driver's discretion,
// other calls) when the bus is locked by a concurrent cyclic exchange —
// discovery is mutually exclusive with cyclic exchange (spec.md §4.3).
// Discovery retries on this with exponential backoff; it is not itself a
// fatal condition.
var ErrBusBusy = errors.New("wire: bus busy")

// ErrPermission is returned when the driver cannot access the underlying
// transport (e.g. missing CAP_NET_RAW). Discovery aborts immediately on
// this, per spec.md §4.3.
var ErrPermission = errors.New("wire: permission denied")

// CommandType mirrors the ETG.1000.4 EtherCAT datagram commands (spec.md
// §6), unchanged from the teacher's ecfr.CommandType enumeration.
type CommandType uint8

const (
	NOP  CommandType = 0
	APRD CommandType = 1
	APWR CommandType = 2
	APRW CommandType = 3
	FPRD CommandType = 4
	FPWR CommandType = 5
	FPRW CommandType = 6
	BRD  CommandType = 7
	BWR  CommandType = 8
	BRW  CommandType = 9
	LRD  CommandType = 10
	LWR  CommandType = 11
	LRW  CommandType = 12
	ARMW CommandType = 13
	FRMW CommandType = 14
)

var commandTypeName = map[CommandType]string{
	NOP: "NOP", APRD: "APRD", APWR: "APWR", APRW: "APRW",
	FPRD: "FPRD", FPWR: "FPWR", FPRW: "FPRW",
	BRD: "BRD", BWR: "BWR", BRW: "BRW",
	LRD: "LRD", LWR: "LWR", LRW: "LRW",
	ARMW: "ARMW", FRMW: "FRMW",
}

func (c CommandType) String() string {
	if s, ok := commandTypeName[c]; ok {
		return s
	}
	return fmt.Sprintf("CommandType(%d)", uint8(c))
}

// SlaveAddr carries every addressing scheme the driver might need for a
// given call: configured-station (FPRD/FPWR), auto-increment (APRD/APWR),
// and logical (LRD/LWR/LRW for the cyclic frame). Only the field the
// chosen CommandType needs is read.
type SlaveAddr struct {
	Configured    uint16
	AutoIncrement int16
	Logical       uint32
}

// WorkingCounter is the ETG working-counter convention (spec.md §6):
// non-negative is a valid WKC, -2 is a PDU timeout, -4 is a WKC mismatch,
// any other negative value is a fatal driver failure. Using a distinct
// type (rather than a bare int, as the teacher's underlying protocol did)
// forces call sites to go through the named predicates below instead of
// re-deriving the sentinel meanings ad hoc.
type WorkingCounter int32

const (
	// WKCPDUTimeout is returned when the datagram never arrived within
	// the PDU timeout.
	WKCPDUTimeout WorkingCounter = -2
	// WKCMismatch is returned when a datagram arrived but its working
	// counter did not match what was expected.
	WKCMismatch WorkingCounter = -4
)

// Transient reports whether wc is one of the two ride-through-eligible
// codes (spec.md §4.5).
func (wc WorkingCounter) Transient() bool {
	return wc == WKCPDUTimeout || wc == WKCMismatch
}

// Fatal reports whether wc is a driver failure outside the two known
// transient codes and outside the non-negative valid range.
func (wc WorkingCounter) Fatal() bool {
	return wc < 0 && !wc.Transient()
}

// Valid reports whether wc represents a completed exchange (spec.md §6:
// "non-negative = valid WKC").
func (wc WorkingCounter) Valid() bool {
	return wc >= 0
}

// ToggleUnknown is the mailbox toggle-bit sentinel documented at this
// driver boundary by spec.md §9(c): the driver has not yet observed a
// toggle transition for this slave, so any observed value must be treated
// as new.
const ToggleUnknown = 2

// Driver is the abstraction the rest of this module builds on. A real
// implementation drives a raw L2 socket; internal/simdriver is the
// in-memory fake used by this module's own tests.
type Driver interface {
	// ReadRegister issues one (or, under the retry policy of the caller,
	// several) datagrams reading width bytes from an ESC register.
	ReadRegister(ctx context.Context, addr SlaveAddr, cmd CommandType, reg uint16, width int) (data []byte, wkc WorkingCounter, err error)
	// WriteRegister writes data to an ESC register.
	WriteRegister(ctx context.Context, addr SlaveAddr, cmd CommandType, reg uint16, data []byte) (wkc WorkingCounter, err error)
	// RunCycle transmits out (the full PDI outputs+inputs region logically
	// addressed via LRW) and returns the received inputs. expectedWKC is
	// the number of slaves the caller expects to acknowledge the frame.
	RunCycle(ctx context.Context, out []byte, expectedWKC int) (in []byte, wkc WorkingCounter, err error)

	// CheckMailbox polls a slave's mailbox status register and, according
	// to spec.md §4.6, internally retries until the toggle bit flips or a
	// bounded retry budget is exhausted. lastToggle is 0, 1, or
	// ToggleUnknown. Return values follow spec.md §4.6's table: 1 = new
	// mail (toggle flipped), 0 = empty, -2 = retries exhausted, other
	// negative = transient error.
	CheckMailbox(ctx context.Context, addr SlaveAddr, statusReg uint16, lastToggle int) (result int, err error)

	// LastEmergency returns the most recent CoE emergency the driver has
	// observed, if any, along with the originating slave index.
	LastEmergency(ctx context.Context) (slaveIndex int, errorCode uint16, errorRegister uint8, ok bool, err error)

	// SDOUpload/SDODownload perform a CoE mailbox SDO transfer.
	SDOUpload(ctx context.Context, addr SlaveAddr, index uint16, subIndex uint8) (data []byte, err error)
	SDODownload(ctx context.Context, addr SlaveAddr, index uint16, subIndex uint8, data []byte) error

	// SlaveCount walks the bus (BRD) and reports how many slaves answered.
	SlaveCount(ctx context.Context) (int, error)

	// Close releases the driver. Implementations should be idempotent.
	Close() error
}
