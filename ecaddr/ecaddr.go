// Package ecaddr names the ESC and SII register addresses this master
// touches, per ETG.1000.4. It replaces the teacher's ecad package, which
// carried only the ESC feature/FMMU/sync-manager block; this adds the
// AL-control/status, watchdog, mailbox and SII-identity addresses the
// state machine and discovery engine need.
package ecaddr

// ESC information block.
const (
	Type                 uint16 = 0x0000
	Revision             uint16 = 0x0001
	Build                uint16 = 0x0002
	FMMUsSupported       uint16 = 0x0004
	RAMSize              uint16 = 0x0006
	PortDescriptor       uint16 = 0x0007
	ESCFeaturesSupported uint16 = 0x0008
)

// Station addressing.
const (
	ConfiguredStationAddress uint16 = 0x0010
	ConfiguredStationAlias   uint16 = 0x0012
)

// SII identity region — read via SII word access, not register access, but
// documented here since they share the ETG.1000.4 address space and
// spec.md §6 lists them alongside the register block.
const (
	SIIVendorID       uint16 = 0x0008
	SIIProductCode    uint16 = 0x000A
	SIIRevisionNumber uint16 = 0x000C
	SIISerialNumber   uint16 = 0x000E
)

// SII category numbers used by discovery step 3/4, per spec.md §4.3's own
// numbering ("category 10 ('General')... category 60... categories
// (50/51)").
const (
	SIICategoryGeneral uint16 = 10
	SIICategoryTxPDO   uint16 = 50
	SIICategoryRxPDO   uint16 = 51
	SIICategoryDClock  uint16 = 60

	// SIICategoryEnd is the ETG.2000 end-of-category-list marker.
	SIICategoryEnd uint16 = 0xFFFF

	// SIICategoryTableStart is the first SII word address after the
	// fixed identity/configuration block where the category table
	// begins.
	SIICategoryTableStart uint16 = 0x0040
)

// Distributed clocks capability, fallback register per spec.md §4.3 step 3.
const DCSupportRegister uint16 = 0x0980

// Data-link layer.
const (
	DLControl uint16 = 0x0100
	DLStatus  uint16 = 0x0110
)

// Application layer control/status, spec.md §6.
const (
	ALControl    uint16 = 0x0120
	ALStatus     uint16 = 0x0130
	ALStatusCode uint16 = 0x0134
	PDIControl   uint16 = 0x0140
)

// Watchdogs, spec.md §6. SMWatchdog default divider yields ≈100ms from the
// default register value of 1000 (spec.md §6: "0x0420 SM-WD (default ≈
// 1000 → ≈ 100 ms)").
const (
	WatchdogDivider uint16 = 0x0400
	PDIWatchdog     uint16 = 0x0410
	SMWatchdog      uint16 = 0x0420
	WatchdogStatus  uint16 = 0x0440

	// SMWatchdogUnitsPerMillisecond converts a millisecond timeout into the
	// register's native units, per spec.md §4.4 step 3: "value = ms × 10".
	SMWatchdogUnitsPerMillisecond = 10
)

const ECATEventMask uint16 = 0x0200

// SII/EEPROM control interface, mirrors the teacher's ecad block.
const (
	ESIEEPROMInterface   uint16 = 0x0500
	EEPROMConfiguration  uint16 = 0x0500
	EEPROMPDIAccessState uint16 = 0x0501
	EEPROMControlStatus  uint16 = 0x0502
	EEPROMAddress        uint16 = 0x0504
	EEPROMData           uint16 = 0x0508
)

const FMMUBase uint16 = 0x0600

const (
	SyncManagerBase                 uint16 = 0x0800
	SyncManagerChannelLen           uint16 = 0x08
	SyncManagerPhysStartAddrOffset  uint16 = 0x00
	SyncManagerLengthOffset         uint16 = 0x02
	SyncManagerControlOffset        uint16 = 0x04
	SyncManagerStatusOffset         uint16 = 0x05
	SyncManagerActivateOffset       uint16 = 0x06
	SyncManagerPDIControlOffset     uint16 = 0x07
)

// MailboxStatusRegisterAddress is the Class B recommended default
// (spec.md §4.3 step 6, §6).
const MailboxStatusRegisterAddress uint16 = 0x080D

// CoE object dictionary indices used by discovery step 4 (spec.md §4.3).
const (
	ObjRxPDOAssign uint16 = 0x1C12
	ObjTxPDOAssign uint16 = 0x1C13
)
