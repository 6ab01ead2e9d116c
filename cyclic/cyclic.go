// Package cyclic implements the Cyclic Exchange engine (C6, spec.md §4.5):
// one runCycle() call serializes pending output changes, hands the whole
// PDI to the wire driver for a Tx/Rx round trip, applies the ride-through
// policy against transient working-counter failures, and deserializes
// inputs on success. It generalizes the teacher's raw frame-per-cycle loop
// (ecmd's per-request Tx/Rx pairing) into the mapping-table-driven
// serialize/deserialize step spec.md §4.5 describes.
package cyclic

import (
	"context"
	"sync/atomic"

	"github.com/distributed/ecatmaster/pdi"
	"github.com/distributed/ecatmaster/wire"
)

// missedCycleThreshold is spec.md §4.5's "5 (100 ms at 20 ms cycle)".
const missedCycleThreshold = 5

// Exchange is the C6 component. It holds no PDI/mapping state of its own
// beyond the ride-through counter; the Network Description's PDI image and
// mapping table are supplied by the caller (the master facade), which keeps
// the same pointers for its own byte accessors.
type Exchange struct {
	Driver      wire.Driver
	Image       *pdi.Image
	Table       *pdi.MappingTable
	ExpectedWKC int

	missedCycles atomic.Int32
}

// New builds an Exchange.
func New(driver wire.Driver, image *pdi.Image, table *pdi.MappingTable, expectedWKC int) *Exchange {
	return &Exchange{Driver: driver, Image: image, Table: table, ExpectedWKC: expectedWKC}
}

// MissedCycles reports the current consecutive-transient-failure count, for
// diagnostics and tests.
func (e *Exchange) MissedCycles() int { return int(e.missedCycles.Load()) }

// RunCycle implements spec.md §4.5's four steps: pre-transmit serialize,
// transmit/receive, ride-through policy, post-receive deserialize. It
// returns the signed working counter the driver reported (even on a
// ride-through-absorbed transient failure) so the caller can log it; err is
// non-nil only for a fatal outcome.
func (e *Exchange) RunCycle(ctx context.Context) (wire.WorkingCounter, error) {
	e.preTransmit()

	out := e.Image.Bytes()
	in, wkc, err := e.Driver.RunCycle(ctx, out, e.ExpectedWKC)
	if err != nil {
		return wkc, &DriverFaultError{Code: int32(wkc), Err: err}
	}

	switch {
	case wkc.Valid():
		e.missedCycles.Store(0)
		e.postReceive(in)
		return wkc, nil

	case wkc.Transient():
		// spec.md §4.5: missedCycles increments on -2/-4 without raising;
		// only once it has already reached the threshold does the *next*
		// -2/-4 escalate (S3: five silent misses, the sixth call escalates).
		before := e.missedCycles.Load()
		if before >= missedCycleThreshold {
			e.missedCycles.Store(0)
			if wkc == wire.WKCPDUTimeout {
				return wkc, &CommsLostError{MissedCycles: int(before) + 1}
			}
			return wkc, &PdoIntegrityError{MissedCycles: int(before) + 1}
		}
		e.missedCycles.Add(1)
		return wkc, nil

	default:
		return wkc, &DriverFaultError{Code: int32(wkc)}
	}
}

// preTransmit walks the cached output mappings and serializes any whose
// pending value differs from its last-known value (spec.md §4.5
// "Pre-transmit").
func (e *Exchange) preTransmit() {
	e.Image.WithOutputs(func(buf []byte) {
		for _, m := range e.Table.Outputs {
			pending := m.Pending()
			if pending.Uint64() == m.LastKnown().Uint64() {
				continue
			}
			if err := pdi.Encode(buf, m.PDIByteOffset, m.BitOffset, m.DataType, pending); err != nil {
				continue
			}
			m.MarkSent(pending)
		}
	})
}

// postReceive walks the cached input mappings and deserializes each one out
// of the freshly received inputs half (spec.md §4.5 "Post-receive").
func (e *Exchange) postReceive(in []byte) {
	e.Image.WithInputs(func(buf []byte) {
		copy(buf, in)
		outputSize := e.Image.OutputSize()
		for _, m := range e.Table.Inputs {
			localOffset := m.PDIByteOffset - outputSize
			v, err := pdi.Decode(buf, localOffset, m.BitOffset, m.DataType)
			if err != nil {
				continue
			}
			m.SetCurrent(v)
		}
	})
}
