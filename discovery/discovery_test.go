package discovery_test

import (
	"context"
	"testing"

	"github.com/distributed/ecatmaster/discovery"
	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/internal/simdriver"
	"github.com/distributed/ecatmaster/wire"
	"github.com/stretchr/testify/require"
)

// encodePDOBlob builds the simplified PDO-entry wire format
// decodePDOAssignmentBlob expects: see discovery/pdoassign.go.
func encodePDOBlob(entries []struct {
	name      string
	index     uint16
	subIndex  uint8
	bitLength uint8
	dataType  uint8
}) []byte {
	var out []byte
	for _, e := range entries {
		out = append(out, byte(len(e.name)))
		out = append(out, []byte(e.name)...)
		out = append(out, byte(e.index), byte(e.index>>8))
		out = append(out, e.subIndex, e.bitLength, e.dataType)
	}
	return out
}

// siiWithCategoryTable builds an SII word image: the identity words, then
// at ecaddr.SIICategoryTableStart a General category carrying the
// protocol bitmask, then the end marker.
func siiWithCategoryTable(identityWords []uint16, generalProtocolByte byte) []uint16 {
	sii := make([]uint16, ecaddr.SIICategoryTableStart)
	copy(sii, identityWords)

	// General category: type=10, length=1 word, data byte0=protocols.
	sii = append(sii, ecaddr.SIICategoryGeneral, 1, uint16(generalProtocolByte))
	// End marker.
	sii = append(sii, ecaddr.SIICategoryEnd)
	return sii
}

func baseIdentityWords(vendor, product, revision, serial uint32) []uint16 {
	words := make([]uint16, 16)
	putLE32 := func(wordOffset uint16, v uint32) {
		words[wordOffset] = uint16(v)
		words[wordOffset+1] = uint16(v >> 16)
	}
	putLE32(ecaddr.SIIVendorID, vendor)
	putLE32(ecaddr.SIIProductCode, product)
	putLE32(ecaddr.SIIRevisionNumber, revision)
	putLE32(ecaddr.SIISerialNumber, serial)
	return words
}

// TestDiscoverySmoke implements scenario S1 from spec.md §8.
func TestDiscoverySmoke(t *testing.T) {
	identity1 := baseIdentityWords(0x001, 0x101, 0x1, 0)
	identity2 := baseIdentityWords(0x002, 0x102, 0x1, 0)

	sii1 := siiWithCategoryTable(identity1, 0x01) // CoE only
	sii2 := siiWithCategoryTable(identity2, 0x01)

	slave1 := simdriver.NewSlave(0x1000, 0, sii1)
	slave2 := simdriver.NewSlave(0x1001, -1, sii2)

	rxBlob := encodePDOBlob([]struct {
		name      string
		index     uint16
		subIndex  uint8
		bitLength uint8
		dataType  uint8
	}{{"Out1", 0x7000, 1, 8, 2}})
	txBlob := encodePDOBlob([]struct {
		name      string
		index     uint16
		subIndex  uint8
		bitLength uint8
		dataType  uint8
	}{{"In1", 0x6000, 1, 16, 4}})

	slave1.SetSDO(ecaddr.ObjRxPDOAssign, 0, rxBlob)
	slave1.SetSDO(ecaddr.ObjTxPDOAssign, 0, txBlob)
	slave2.SetSDO(ecaddr.ObjRxPDOAssign, 0, rxBlob)
	slave2.SetSDO(ecaddr.ObjTxPDOAssign, 0, txBlob)

	drv := simdriver.New(slave1, slave2)

	nd, err := discovery.Discover(context.Background(), drv, discovery.Options{}, nil)
	require.NoError(t, err)
	require.Len(t, nd.Slaves, 2)

	for i, s := range nd.Slaves {
		require.False(t, s.Invalid, "slave %d", i)
		require.False(t, s.ManualConfigurationRequired, "slave %d", i)
		require.True(t, s.Mailbox.SupportsCoE, "slave %d", i)
		require.Equal(t, uint16(0x080D), s.Mailbox.StatusRegisterAddress, "slave %d", i)
		require.Equal(t, 20, s.Mailbox.PollPeriodMs, "slave %d", i)
	}

	// PDI byte offsets are monotonically non-decreasing across slaves.
	require.LessOrEqual(t, nd.Slaves[0].Outputs.ByteOffset, nd.Slaves[1].Outputs.ByteOffset)
	require.LessOrEqual(t, nd.Slaves[0].Inputs.ByteOffset, nd.Slaves[1].Inputs.ByteOffset)
}

func TestDiscoveryFlagsUnreadableSlaveButReturnsPartialList(t *testing.T) {
	goodID := baseIdentityWords(0x1, 0x1, 0x1, 0)
	goodSII := siiWithCategoryTable(goodID, 0x01)
	good := simdriver.NewSlave(0x1000, 0, goodSII)
	good.SetSDO(ecaddr.ObjRxPDOAssign, 0, encodePDOBlob([]struct {
		name      string
		index     uint16
		subIndex  uint8
		bitLength uint8
		dataType  uint8
	}{{"Out1", 0x7000, 1, 8, 2}}))
	good.SetSDO(ecaddr.ObjTxPDOAssign, 0, nil)

	broken := simdriver.NewSlave(0x1001, -1, nil)

	drv := simdriver.New(good, broken)
	plain := simdriver.New(good, broken) // unmodified default simulation, for delegation below

	// Every register access addressed at the broken slave's configured
	// station address reports a WKC mismatch, simulating a slave that
	// never answers the SII identity read.
	drv.ReadRegisterFunc = func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, width int) ([]byte, wire.WorkingCounter, error) {
		if addr.Configured == broken.Configured {
			return nil, wire.WKCMismatch, nil
		}
		return plain.ReadRegister(ctx, addr, cmd, reg, width)
	}
	drv.WriteRegisterFunc = func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, data []byte) (wire.WorkingCounter, error) {
		if addr.Configured == broken.Configured {
			return wire.WKCMismatch, nil
		}
		return plain.WriteRegister(ctx, addr, cmd, reg, data)
	}

	nd, err := discovery.Discover(context.Background(), drv, discovery.Options{}, nil)
	require.NoError(t, err)
	require.Len(t, nd.Slaves, 2)

	require.False(t, nd.Slaves[0].Invalid)
	require.True(t, nd.Slaves[1].Invalid)
	require.Error(t, nd.Slaves[1].DiscoveryError)
}
