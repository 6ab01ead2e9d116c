package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
)

var errTruncatedPDOBlob = errors.New("discovery: truncated PDO assignment blob")

// decodePDOAssignmentBlob decodes the compact PDO-entry encoding this
// module's simulated CoE object dictionary and SII PDO categories both
// use: a run of [nameLen byte][name][index u16 LE][subIndex u8]
// [bitLength u8][dataType u8] records. The real ETG.1000.6 SDO-info
// binary layout and ETG.2000 PDO category layout are considerably more
// elaborate (they carry FMMU/SM assignment, PDO indices vs. entry
// indices, complete-access flags); this module only needs name, address,
// width and type to build a Mapping, so both code paths speak this one
// simplified shape.
func decodePDOAssignmentBlob(data []byte, isInput bool) ([]netdesc.PDOEntry, error) {
	var entries []netdesc.PDOEntry
	i := 0
	for i < len(data) {
		if i+1 > len(data) {
			return nil, errTruncatedPDOBlob
		}
		nameLen := int(data[i])
		i++
		if i+nameLen+5 > len(data) {
			return nil, errTruncatedPDOBlob
		}
		name := string(data[i : i+nameLen])
		i += nameLen
		index := uint16(data[i]) | uint16(data[i+1])<<8
		i += 2
		subIndex := data[i]
		i++
		bitLength := data[i]
		i++
		dataType := netdesc.DataType(data[i])
		i++
		entries = append(entries, netdesc.PDOEntry{
			Name:      name,
			Index:     index,
			SubIndex:  subIndex,
			BitLength: bitLength,
			DataType:  dataType,
			IsInput:   isInput,
		})
	}
	return entries, nil
}

// enumeratePDOs implements spec.md §4.3 step 4: prefer CoE SDO upload of
// 0x1C12 (RxPDO assign, i.e. master outputs)/0x1C13 (TxPDO assign, i.e.
// master inputs); fall back to SII PDO categories 50/51. When both fail,
// the caller flags the slave manual-configuration-required.
func enumeratePDOs(ctx context.Context, driver wire.Driver, acc *regaccess.Accessor, addr wire.SlaveAddr, supportsCoE bool) ([]netdesc.PDOEntry, error) {
	if supportsCoE {
		entries, err := enumeratePDOsViaCoE(ctx, driver, addr)
		if err == nil {
			return entries, nil
		}
	}
	return enumeratePDOsViaSII(ctx, acc, addr)
}

func enumeratePDOsViaCoE(ctx context.Context, driver wire.Driver, addr wire.SlaveAddr) ([]netdesc.PDOEntry, error) {
	var all []netdesc.PDOEntry

	rx, err := driver.SDOUpload(ctx, addr, ecaddr.ObjRxPDOAssign, 0)
	if err != nil {
		return nil, fmt.Errorf("discovery: SDO upload 0x1C12: %w", err)
	}
	rxEntries, err := decodePDOAssignmentBlob(rx, false)
	if err != nil {
		return nil, err
	}
	all = append(all, rxEntries...)

	tx, err := driver.SDOUpload(ctx, addr, ecaddr.ObjTxPDOAssign, 0)
	if err != nil {
		return nil, fmt.Errorf("discovery: SDO upload 0x1C13: %w", err)
	}
	txEntries, err := decodePDOAssignmentBlob(tx, true)
	if err != nil {
		return nil, err
	}
	all = append(all, txEntries...)

	return all, nil
}

func enumeratePDOsViaSII(ctx context.Context, acc *regaccess.Accessor, addr wire.SlaveAddr) ([]netdesc.PDOEntry, error) {
	cats, err := scanCategories(ctx, acc, addr)
	if err != nil {
		return nil, err
	}

	var all []netdesc.PDOEntry
	if rxCat, ok := findCategory(cats, ecaddr.SIICategoryRxPDO); ok {
		entries, err := decodePDOAssignmentBlob(rxCat.Data, false)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	if txCat, ok := findCategory(cats, ecaddr.SIICategoryTxPDO); ok {
		entries, err := decodePDOAssignmentBlob(txCat.Data, true)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("discovery: no PDO categories present")
	}
	return all, nil
}

// allocatePDISlots implements spec.md §4.3 step 5: two running bit
// cursors advance across the whole slave list, in order; each slave's
// entries in one direction are laid out contiguously and the cursor is
// byte-aligned once that slave's entries in that direction are done.
func allocatePDISlots(slaves []netdesc.SlaveDescriptor) {
	outCursor, inCursor := 0, 0

	for i := range slaves {
		s := &slaves[i]
		if s.Invalid || s.ManualConfigurationRequired {
			continue
		}

		outStart := outCursor
		inStart := inCursor

		for j := range s.Entries {
			e := &s.Entries[j]
			if e.PdoByteOffset != nil {
				// Legacy explicit-offset entries are placed by the
				// caller, not the running cursor.
				e.PdiByteOffset = *e.PdoByteOffset
				continue
			}
			if e.IsInput {
				e.PdiByteOffset = inCursor / 8
				inCursor += int(e.BitLength)
			} else {
				e.PdiByteOffset = outCursor / 8
				outCursor += int(e.BitLength)
			}
		}

		outCursor = roundUpToByte(outCursor)
		inCursor = roundUpToByte(inCursor)

		if outCursor > outStart {
			s.Outputs = &netdesc.ProcessDataRange{ByteOffset: outStart / 8, BitLength: outCursor - outStart}
		}
		if inCursor > inStart {
			s.Inputs = &netdesc.ProcessDataRange{ByteOffset: inStart / 8, BitLength: inCursor - inStart}
		}
	}
}

func roundUpToByte(bits int) int {
	return (bits + 7) &^ 7
}
