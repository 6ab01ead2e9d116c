// Package pdi implements the Mapping Engine (C3, spec.md §4.2) and the
// Process Data Image buffer (spec.md §3) it binds variables into.
package pdi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/distributed/ecatmaster/netdesc"
)

// ErrMixedOffsetScheme is returned when a single slave's PDO entries mix
// the legacy explicit-PdoByteOffset scheme with the standard
// process-image bit-offset scheme, per spec.md §9(a).
var ErrMixedOffsetScheme = errors.New("pdi: slave mixes legacy PdoByteOffset entries with process-image bit-offset entries")

// Mapping binds one named process-image variable to its owning slave and
// PDI byte range (spec.md §3's Variable Mapping).
type Mapping struct {
	Name             string
	DataType         netdesc.DataType
	IsInput          bool
	BitSize          int
	PDIByteOffset    int
	BitOffset        int // valid only when DataType == netdesc.Bool; 0-7
	OwningSlaveIndex int

	// current holds the last successfully deserialized value for input
	// mappings. lastKnown/pending implement the "pending newValue differs
	// from last known value" comparison spec.md §4.5 describes for
	// outputs. All three are lock-free words so user goroutines can write
	// pending / read current without suspending (spec.md §5).
	current   atomic.Uint64
	lastKnown atomic.Uint64
	pending   atomic.Uint64
}

// SetValue stages a new value for an output mapping. It is a no-op call
// site correctness issue (not a panic) to call this on an input mapping;
// the cyclic engine only reads pending for outputs.
func (m *Mapping) SetValue(v Value) {
	m.pending.Store(v.bits)
}

// Pending returns the most recently staged output value.
func (m *Mapping) Pending() Value { return Value{Type: m.DataType, bits: m.pending.Load()} }

// LastKnown returns the value most recently serialized onto the wire for
// an output mapping.
func (m *Mapping) LastKnown() Value { return Value{Type: m.DataType, bits: m.lastKnown.Load()} }

// MarkSent records that v has just been serialized onto the wire; only the
// cyclic exchange engine calls this (spec.md's Lifecycles: "PDI bytes are
// mutated only by C6").
func (m *Mapping) MarkSent(v Value) { m.lastKnown.Store(v.bits) }

// CurrentValue returns the last value deserialized for an input mapping
// (spec.md §4.5 "post-receive"). Between cycles this is a "monotonically
// refreshed snapshot" per spec.md §5, not a live view of the wire.
func (m *Mapping) CurrentValue() Value { return Value{Type: m.DataType, bits: m.current.Load()} }

// SetCurrent records a freshly deserialized input value; only the cyclic
// exchange engine calls this.
func (m *Mapping) SetCurrent(v Value) { m.current.Store(v.bits) }

// MappingTable is the mapping engine's output: two flat, order-preserving
// sequences for branch-free iteration by the cyclic exchange engine
// (spec.md §4.2, last paragraph).
type MappingTable struct {
	Outputs []*Mapping
	Inputs  []*Mapping
	byName  map[string]*Mapping
}

// Lookup finds a mapping by variable name, for readVariable/writeVariable
// style facade operations.
func (t *MappingTable) Lookup(name string) (*Mapping, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// BuildMappings implements the mapping engine algorithm of spec.md §4.2:
// for each process-image variable, compute its global bit offset and find
// the slave whose same-half range strictly (half-open) contains it. A
// variable with no containing slave is dropped, not an error (spec.md
// §4.2 "no cumulative-drift arithmetic, no fuzzy matching").
func BuildMappings(nd netdesc.NetworkDescription) (*MappingTable, error) {
	if err := checkOffsetSchemes(nd.Slaves); err != nil {
		return nil, err
	}

	outputSize := nd.OutputSize()

	table := &MappingTable{byName: make(map[string]*Mapping)}

	for _, v := range nd.ProcessImage {
		slaveIdx, ok := findOwningSlave(nd.Slaves, v)
		if !ok {
			continue
		}

		m := &Mapping{
			Name:             v.Name,
			DataType:         v.DataType,
			IsInput:          v.IsInput,
			BitSize:          v.BitSize,
			OwningSlaveIndex: slaveIdx,
		}

		if v.IsInput {
			m.PDIByteOffset = outputSize + v.BitOffset/8
		} else {
			m.PDIByteOffset = v.BitOffset / 8
		}

		if v.DataType == netdesc.Bool {
			m.BitOffset = v.BitOffset % 8
		}

		if err := validateInHalf(nd, m); err != nil {
			return nil, err
		}

		if v.IsInput {
			table.Inputs = append(table.Inputs, m)
		} else {
			table.Outputs = append(table.Outputs, m)
		}
		table.byName[v.Name] = m
	}

	return table, nil
}

// findOwningSlave applies spec.md §4.2's strict half-open containment
// test in slave-array order (spec.md invariant I3: exactly one slave, by
// containment).
func findOwningSlave(slaves []netdesc.SlaveDescriptor, v netdesc.Variable) (int, bool) {
	for i, s := range slaves {
		var r *netdesc.ProcessDataRange
		if v.IsInput {
			r = s.Inputs
		} else {
			r = s.Outputs
		}
		if r == nil {
			continue
		}
		if v.BitOffset >= r.StartBit() && v.BitOffset < r.EndBit() {
			return i, true
		}
	}
	return 0, false
}

// validateInHalf enforces invariant I2 of spec.md §8: the mapping's byte
// span must lie entirely inside its half and inside the PDI.
func validateInHalf(nd netdesc.NetworkDescription, m *Mapping) error {
	total := nd.OutputSize() + nd.InputSize()
	bitsInByte := m.BitOffset
	if m.DataType != netdesc.Bool {
		bitsInByte = 0
	}
	endByte := m.PDIByteOffset + ceilBits(bitsInByte+m.BitSize)
	if endByte > total {
		return fmt.Errorf("pdi: mapping %q spans past end of PDI (end byte %d, PDI length %d)", m.Name, endByte, total)
	}

	outputSize := nd.OutputSize()
	if m.IsInput {
		if m.PDIByteOffset < outputSize {
			return fmt.Errorf("pdi: input mapping %q starts inside the outputs half", m.Name)
		}
	} else {
		if endByte > outputSize {
			return fmt.Errorf("pdi: output mapping %q spans past end of the outputs half", m.Name)
		}
	}
	return nil
}

func ceilBits(bits int) int {
	return (bits + 7) / 8
}

// checkOffsetSchemes rejects a slave whose PDO entries mix explicit
// PdoByteOffset values with process-image-relative entries (spec.md
// §9(a)).
func checkOffsetSchemes(slaves []netdesc.SlaveDescriptor) error {
	for i, s := range slaves {
		if len(s.Entries) == 0 {
			continue
		}
		explicit := 0
		implicit := 0
		for _, e := range s.Entries {
			if e.PdoByteOffset != nil {
				explicit++
			} else {
				implicit++
			}
		}
		if explicit > 0 && implicit > 0 {
			return fmt.Errorf("%w: slave %d", ErrMixedOffsetScheme, i)
		}
	}
	return nil
}
