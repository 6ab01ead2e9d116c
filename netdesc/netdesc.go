// Package netdesc defines the Network Description value (spec.md §3): the
// authoritative, immutable-after-construction configuration of one
// EtherCAT bus. It is produced either by discovery.Discover or by an
// external ENI parser (out of scope here, spec.md §1) and consumed by
// esm, cyclic, mailbox, emergency and pdi.
package netdesc

import "time"

// DataType enumerates the scalar wire/PDI representations spec.md §4.2
// requires: signed/unsigned 8/16/32-bit integers, 32- and 64-bit IEEE-754
// floats, 64-bit signed integers, and single-bit booleans.
type DataType uint8

const (
	Bool DataType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Float32
	Float64
)

// BitSize returns the wire bit width of the type.
func (t DataType) BitSize() int {
	switch t {
	case Bool:
		return 1
	case Int8, Uint8:
		return 8
	case Int16, Uint16:
		return 16
	case Int32, Uint32, Float32:
		return 32
	case Int64, Float64:
		return 64
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Bool:
		return "BOOL"
	case Int8:
		return "SINT"
	case Uint8:
		return "USINT"
	case Int16:
		return "INT"
	case Uint16:
		return "UINT"
	case Int32:
		return "DINT"
	case Uint32:
		return "UDINT"
	case Int64:
		return "LINT"
	case Float32:
		return "REAL"
	case Float64:
		return "LREAL"
	default:
		return "UNKNOWN"
	}
}

// TransitionCode names the nine legal ESM transitions (spec.md §4.4).
type TransitionCode string

const (
	IP TransitionCode = "IP"
	PI TransitionCode = "PI"
	PS TransitionCode = "PS"
	SP TransitionCode = "SP"
	SO TransitionCode = "SO"
	OS TransitionCode = "OS"
	SI TransitionCode = "SI"
	OI TransitionCode = "OI"
	OP TransitionCode = "OP"
)

// InitCommandKind selects the variant of an init command (spec.md §3).
type InitCommandKind uint8

const (
	RegisterWrite InitCommandKind = iota
	CoESDODownload
	SoEWrite
)

// InitCommand is one ordered step applied during a subset of ESM
// transitions. Data is []byte rather than a fixed-width integer so that a
// CoE SDO download is not forced through the legacy 32-bit value field;
// spec.md §9(b) requires the historical width limitation be documented,
// not silently reimposed by truncating an arbitrary-length payload.
type InitCommand struct {
	Kind InitCommandKind

	// RegisterWrite fields.
	RegisterAddr uint16

	// CoESDODownload fields.
	Index    uint16
	SubIndex uint8

	// SoEWrite fields.
	SoEOpCode  uint8
	SoEDriveNo uint8
	SoEIDN     uint16

	// Data is the payload for RegisterWrite/CoESDODownload/SoEWrite alike.
	// The legacy driver limited this to 32 bits; that limitation is
	// intentionally not reintroduced here (spec.md §9(b)) — callers that
	// need to preserve it can simply not supply more than 4 bytes.
	Data []byte

	Transitions []TransitionCode

	// Validate, if non-nil, is run after the command executes; a non-nil
	// return aborts the transition after Retries is exhausted.
	Validate func(result []byte) error

	Retries        int
	ExpectedWKC    int
}

// AppliesTo reports whether this command runs during the named step.
func (c InitCommand) AppliesTo(step TransitionCode) bool {
	for _, t := range c.Transitions {
		if t == step {
			return true
		}
	}
	return false
}

// ProcessDataRange describes one contiguous half (outputs or inputs) of a
// slave's process data inside the PDI (spec.md §3).
type ProcessDataRange struct {
	ByteOffset int
	BitLength  int
}

// StartBit is the global bit offset of this range's first bit within its
// half, used by the mapping engine's containment test (spec.md §4.2).
func (r ProcessDataRange) StartBit() int { return r.ByteOffset * 8 }

// EndBit is the (exclusive) global bit offset one past this range.
func (r ProcessDataRange) EndBit() int { return r.StartBit() + r.BitLength }

// PDOEntry is per-slave PDO metadata discovered from CoE 0x1C12/0x1C13 or
// SII categories 50/51 (spec.md §4.3 step 4). PdoByteOffset, when set, is
// the legacy explicit per-entry byte offset; when unset, the entry's
// placement is governed by the slave's ProcessDataRange and the top-level
// ProcessImage instead. Mixing the two schemes within one slave is
// invalid (spec.md §9(a)).
type PDOEntry struct {
	Name          string
	Index         uint16
	SubIndex      uint8
	BitLength     uint8
	DataType      DataType
	IsInput       bool
	PdoByteOffset *int
	PdiByteOffset int
}

// Mailbox holds a slave's mailbox capability and polling policy.
type Mailbox struct {
	StatusRegisterAddress uint16
	PollPeriodMs          int
	SupportsCoE           bool
	SupportsEoE           bool
	SupportsFoE           bool
}

// Identity is the four 32-bit SII identity words (spec.md §3). Serial may
// legitimately be 0.
type Identity struct {
	VendorID       uint32
	ProductCode    uint32
	RevisionNumber uint32
	SerialNumber   uint32
}

// SlaveDescriptor is one bus position's discovered or supplied
// configuration (spec.md §3). Its index in NetworkDescription.Slaves is
// the stable "slave index" used everywhere else in this module.
type SlaveDescriptor struct {
	Identity Identity

	ConfiguredAddress    uint16
	AutoIncrementAddress int16

	Outputs *ProcessDataRange
	Inputs  *ProcessDataRange
	Entries []PDOEntry

	Mailbox Mailbox

	InitCommands []InitCommand

	// Invalid is set by discovery when this slave's SII could not be
	// read; the slave is still present in the list (spec.md §4.3 step 2)
	// but excluded from mapping and cyclic exchange.
	Invalid bool
	// ManualConfigurationRequired is set when neither CoE PDO assignment
	// upload nor SII PDO categories could be read (spec.md §4.3 step 4);
	// the slave is excluded from the cyclic frame.
	ManualConfigurationRequired bool
	// DiscoveryError records why Invalid/ManualConfigurationRequired was
	// set, for diagnostics.
	DiscoveryError error

	SupportsDC bool
}

// Variable is one named entry of the top-level process image the mapping
// engine (pdi.BuildMappings) resolves to an owning slave (spec.md §4.2).
// BitOffset is relative to its own half (outputs or inputs), not global.
type Variable struct {
	Name      string
	DataType  DataType
	BitSize   int
	BitOffset int
	IsInput   bool
}

// Config is the master block of the Network Description (spec.md §3).
type Config struct {
	CyclePeriod time.Duration

	// WatchdogTimeout, when non-zero, is written to every slave's SM
	// watchdog register before the PreOp→SafeOp transition (spec.md
	// §4.4 step 3).
	WatchdogTimeout time.Duration

	PDUTimeout            time.Duration
	StateTransitionTimeout time.Duration
	MailboxTimeout        time.Duration
	EEPROMTimeout         time.Duration

	PDURetryCount int
	DCSupport     bool
}

// DefaultConfig matches spec.md §4.3 step 7's Class B defaults.
func DefaultConfig() Config {
	return Config{
		CyclePeriod:            10 * time.Millisecond,
		PDUTimeout:             5 * time.Millisecond,
		StateTransitionTimeout: 3 * time.Second,
		MailboxTimeout:         100 * time.Millisecond,
		EEPROMTimeout:          250 * time.Millisecond,
		PDURetryCount:          3,
	}
}

// NetworkDescription is the authoritative configuration of one bus
// (spec.md §3). It is immutable after construction; SlaveDescriptor
// mutation only happens during discovery, before the value is handed to
// the rest of the module.
type NetworkDescription struct {
	Master       Config
	Slaves       []SlaveDescriptor
	ProcessImage []Variable
}

// OutputSize is the total bytes of the outputs half of the PDI, derived
// from the highest slave output range.
func (n NetworkDescription) OutputSize() int {
	return halfSize(n.Slaves, func(s SlaveDescriptor) *ProcessDataRange { return s.Outputs })
}

// InputSize is the total bytes of the inputs half of the PDI.
func (n NetworkDescription) InputSize() int {
	return halfSize(n.Slaves, func(s SlaveDescriptor) *ProcessDataRange { return s.Inputs })
}

func halfSize(slaves []SlaveDescriptor, pick func(SlaveDescriptor) *ProcessDataRange) int {
	max := 0
	for _, s := range slaves {
		r := pick(s)
		if r == nil {
			continue
		}
		end := r.ByteOffset + bytesForBits(r.BitLength)
		if end > max {
			max = end
		}
	}
	return max
}

func bytesForBits(bits int) int {
	return (bits + 7) / 8
}
