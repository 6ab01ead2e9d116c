package regaccess

import (
	"context"
	"fmt"
	"time"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/wire"
)

// eepromReadCommand/eepromWriteCommand are the control-status command
// words, unchanged from the teacher's ecee.blindEEPROM sequencing:
// write the target address, issue the command, poll the busy bit, check
// the error bits, then read the 4-byte data register.
var (
	eepromReadCommand  = []byte{0x00, 0x01}
	eepromWriteCommand = []byte{0x01, 0x02}
)

const (
	eepromBusyBit  = 0x80
	eepromErrorMask = 0xE0
)

// ReadSII reads words consecutive 16-bit words from the slave's SII store
// starting at wordAddr (spec.md §4.1's readSII operation), via the same
// address/command/busy-poll/data sequence as the teacher's
// ecee.blindEEPROM.ReadWord, generalized from one word to a run of words.
func (a *Accessor) ReadSII(ctx context.Context, addr wire.SlaveAddr, wordAddr uint16, words int) ([]byte, error) {
	out := make([]byte, 0, words*2)
	for i := 0; i < words; i++ {
		w, err := a.readSIIWord(ctx, addr, uint32(wordAddr)+uint32(i))
		if err != nil {
			return nil, fmt.Errorf("regaccess: read SII word %#04x: %w", uint32(wordAddr)+uint32(i), err)
		}
		out = append(out, byte(w), byte(w>>8))
	}
	return out, nil
}

func (a *Accessor) readSIIWord(ctx context.Context, addr wire.SlaveAddr, word uint32) (uint16, error) {
	if err := a.waitEEPROMIdle(ctx, addr, 250*time.Millisecond); err != nil {
		return 0, err
	}

	wb := []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
	if err := a.WriteRegister(ctx, addr, wire.FPWR, ecaddr.EEPROMAddress, wb, 1); err != nil {
		return 0, err
	}

	if err := a.WriteRegister(ctx, addr, wire.FPWR, ecaddr.EEPROMControlStatus, eepromReadCommand, 1); err != nil {
		return 0, err
	}

	if err := a.waitEEPROMIdle(ctx, addr, 250*time.Millisecond); err != nil {
		return 0, err
	}

	if err := a.checkEEPROMErrorBits(ctx, addr); err != nil {
		return 0, err
	}

	rb, err := a.ReadRegister(ctx, addr, wire.FPRD, ecaddr.EEPROMData, 4, 1)
	if err != nil {
		return 0, err
	}

	return uint16(rb[0]) | uint16(rb[1])<<8, nil
}

// WriteSIIWord writes one SII word, mirroring
// ecee.blindEEPROM.WriteWord.
func (a *Accessor) WriteSIIWord(ctx context.Context, addr wire.SlaveAddr, word uint32, value uint16) error {
	if err := a.waitEEPROMIdle(ctx, addr, 250*time.Millisecond); err != nil {
		return err
	}

	wb := []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
	if err := a.WriteRegister(ctx, addr, wire.FPWR, ecaddr.EEPROMAddress, wb, 1); err != nil {
		return err
	}

	dataWord := []byte{byte(value), byte(value >> 8)}
	if err := a.WriteRegister(ctx, addr, wire.FPWR, ecaddr.EEPROMData, dataWord, 1); err != nil {
		return err
	}

	if err := a.WriteRegister(ctx, addr, wire.FPWR, ecaddr.EEPROMControlStatus, eepromWriteCommand, 1); err != nil {
		return err
	}

	if err := a.waitEEPROMIdle(ctx, addr, 250*time.Millisecond); err != nil {
		return err
	}

	return a.checkEEPROMErrorBits(ctx, addr)
}

// ReadIdentity reads the four fixed SII identity words (spec.md §4.3 step
// 2); shared by discovery (first read) and the ESM orchestrator's topology
// verification (Feature 302 re-read).
func (a *Accessor) ReadIdentity(ctx context.Context, addr wire.SlaveAddr) (netdesc.Identity, error) {
	vendor, err := a.ReadSII(ctx, addr, ecaddr.SIIVendorID, 2)
	if err != nil {
		return netdesc.Identity{}, err
	}
	product, err := a.ReadSII(ctx, addr, ecaddr.SIIProductCode, 2)
	if err != nil {
		return netdesc.Identity{}, err
	}
	revision, err := a.ReadSII(ctx, addr, ecaddr.SIIRevisionNumber, 2)
	if err != nil {
		return netdesc.Identity{}, err
	}
	serial, err := a.ReadSII(ctx, addr, ecaddr.SIISerialNumber, 2)
	if err != nil {
		return netdesc.Identity{}, err
	}
	return netdesc.Identity{
		VendorID:       le32(vendor),
		ProductCode:    le32(product),
		RevisionNumber: le32(revision),
		SerialNumber:   le32(serial),
	}, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func (a *Accessor) waitEEPROMIdle(ctx context.Context, addr wire.SlaveAddr, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		rb, err := a.ReadRegister(ctx, addr, wire.FPRD, ecaddr.EEPROMControlStatus, 2, 1)
		if err != nil {
			return err
		}
		if rb[1]&eepromBusyBit == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("regaccess: EEPROM busy timeout on slave %+v", addr)
		}
	}
}

func (a *Accessor) checkEEPROMErrorBits(ctx context.Context, addr wire.SlaveAddr) error {
	rb, err := a.ReadRegister(ctx, addr, wire.FPRD, ecaddr.EEPROMControlStatus, 2, 1)
	if err != nil {
		return err
	}
	if rb[1]&eepromErrorMask != 0 {
		return fmt.Errorf("regaccess: EEPROM control-status error bits set, bytes % x", rb)
	}
	return nil
}
