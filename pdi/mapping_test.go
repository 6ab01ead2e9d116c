package pdi

import (
	"testing"

	"github.com/distributed/ecatmaster/netdesc"
	"github.com/stretchr/testify/require"
)

// TestMappingByExplicitRange implements scenario S2 from spec.md §8.
func TestMappingByExplicitRange(t *testing.T) {
	nd := netdesc.NetworkDescription{
		Slaves: []netdesc.SlaveDescriptor{
			{
				Outputs: &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 8},
				Inputs:  &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 32},
			},
		},
		ProcessImage: []netdesc.Variable{
			{Name: "Out", DataType: netdesc.Uint8, BitSize: 8, BitOffset: 0, IsInput: false},
			{Name: "In_U16", DataType: netdesc.Uint16, BitSize: 16, BitOffset: 0, IsInput: true},
			{Name: "In_Bool", DataType: netdesc.Bool, BitSize: 1, BitOffset: 24, IsInput: true},
		},
	}

	table, err := BuildMappings(nd)
	require.NoError(t, err)

	out, ok := table.Lookup("Out")
	require.True(t, ok)
	require.Equal(t, 0, out.PDIByteOffset)

	inU16, ok := table.Lookup("In_U16")
	require.True(t, ok)
	require.Equal(t, 1, inU16.PDIByteOffset)

	inBool, ok := table.Lookup("In_Bool")
	require.True(t, ok)
	require.Equal(t, 4, inBool.PDIByteOffset)
	require.Equal(t, 0, inBool.BitOffset)
}

func TestBuildMappingsDropsUnownedVariable(t *testing.T) {
	nd := netdesc.NetworkDescription{
		Slaves: []netdesc.SlaveDescriptor{
			{Outputs: &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 8}},
		},
		ProcessImage: []netdesc.Variable{
			{Name: "Orphan", DataType: netdesc.Uint8, BitSize: 8, BitOffset: 64, IsInput: false},
		},
	}

	table, err := BuildMappings(nd)
	require.NoError(t, err)
	_, ok := table.Lookup("Orphan")
	require.False(t, ok)
	require.Empty(t, table.Outputs)
}

func TestBuildMappingsRejectsMixedOffsetScheme(t *testing.T) {
	legacyOffset := 4
	nd := netdesc.NetworkDescription{
		Slaves: []netdesc.SlaveDescriptor{
			{
				Outputs: &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 64},
				Entries: []netdesc.PDOEntry{
					{Name: "A", PdoByteOffset: &legacyOffset},
					{Name: "B"},
				},
			},
		},
	}

	_, err := BuildMappings(nd)
	require.ErrorIs(t, err, ErrMixedOffsetScheme)
}

func TestSelectsFirstContainingSlaveInArrayOrder(t *testing.T) {
	nd := netdesc.NetworkDescription{
		Slaves: []netdesc.SlaveDescriptor{
			{Outputs: &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 8}},
			{Outputs: &netdesc.ProcessDataRange{ByteOffset: 1, BitLength: 8}},
		},
		ProcessImage: []netdesc.Variable{
			{Name: "V", DataType: netdesc.Uint8, BitSize: 8, BitOffset: 8, IsInput: false},
		},
	}

	table, err := BuildMappings(nd)
	require.NoError(t, err)
	m, ok := table.Lookup("V")
	require.True(t, ok)
	require.Equal(t, 1, m.OwningSlaveIndex)
}
