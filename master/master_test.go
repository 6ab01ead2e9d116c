package master_test

import (
	"context"
	"testing"
	"time"

	"github.com/distributed/ecatmaster/esm"
	"github.com/distributed/ecatmaster/internal/events"
	"github.com/distributed/ecatmaster/internal/simdriver"
	"github.com/distributed/ecatmaster/master"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/stretchr/testify/require"
)

func twoSlaveNetworkDescription() (netdesc.NetworkDescription, *simdriver.Driver) {
	s0 := simdriver.NewSlave(0x1000, 0, []uint16{0xAAAA, 0, 0xBBBB, 0, 0xCCCC, 0, 0xDDDD, 0})
	s1 := simdriver.NewSlave(0x1001, -1, nil)
	drv := simdriver.New(s0, s1)

	nd := netdesc.NetworkDescription{
		Master: netdesc.DefaultConfig(),
		Slaves: []netdesc.SlaveDescriptor{
			{
				ConfiguredAddress: 0x1000,
				Outputs:           &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 8},
				Inputs:            &netdesc.ProcessDataRange{ByteOffset: 0, BitLength: 8},
				Mailbox:           netdesc.Mailbox{SupportsCoE: true, StatusRegisterAddress: 0x080D, PollPeriodMs: 5},
			},
			{
				ConfiguredAddress:    0x1001,
				AutoIncrementAddress: -1,
				Outputs:              &netdesc.ProcessDataRange{ByteOffset: 1, BitLength: 8},
				Inputs:               &netdesc.ProcessDataRange{ByteOffset: 1, BitLength: 8},
			},
		},
		ProcessImage: []netdesc.Variable{
			{Name: "out0", DataType: netdesc.Uint8, BitSize: 8, BitOffset: 0, IsInput: false},
			{Name: "in0", DataType: netdesc.Uint8, BitSize: 8, BitOffset: 0, IsInput: true},
		},
	}
	return nd, drv
}

func TestInitializeAllocatesPDIAndStartsLoops(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)

	require.NoError(t, m.Initialize(context.Background()))
	require.NotNil(t, m.PDI())
	require.Equal(t, 2, m.PDI().OutputSize())
	require.Equal(t, 2, m.PDI().InputSize())

	require.NoError(t, m.Close())
}

func TestRequestStateEmitsStateChangeEvents(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	var seen []events.Event
	m.Subscribe(func(ev events.Event) {
		if ev.Kind == events.StateChange {
			seen = append(seen, ev)
		}
	})

	reached, err := m.RequestState(context.Background(), esm.Op)
	require.NoError(t, err)
	require.Equal(t, esm.Op, reached)
	require.Equal(t, esm.Op, m.State())

	require.Len(t, seen, 3)
	require.Equal(t, uint16(esm.Init), seen[0].StateFrom)
	require.Equal(t, uint16(esm.PreOp), seen[0].StateTo)
	require.Equal(t, uint16(esm.Op), seen[2].StateTo)
}

func TestRunCycleRoundTripsOutputsAndInputs(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	drv.SetInputImage([]byte{0x00, 0x7B})

	require.NoError(t, m.WritePdoByte(0, 0, 0x42))

	wkc, err := m.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, wkc.Valid())

	b, err := m.ReadPdoByte(1, 0)
	require.NoError(t, err)
	require.Equal(t, byte(0x7B), b)
}

func TestReadPdoByteRejectsOutOfRangeSlaveIndex(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	_, err := m.ReadPdoByte(5, 0)
	require.Error(t, err)
	var invalid *master.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestGetLastEmergencyReflectsBackgroundPoll(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	nd.Slaves[0].Mailbox.SupportsCoE = true
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	drv.SetLastEmergency(0, 0x2000, 0x01)

	require.Eventually(t, func() bool {
		return m.GetLastEmergency() != nil
	}, time.Second, 5*time.Millisecond)

	ev := m.GetLastEmergency()
	require.Equal(t, uint16(0x2000), ev.ErrorCode)
}

func TestCloseIsIdempotentAndStopsDriverUse(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	require.True(t, drv.Closed())

	_, err := m.RunCycle(context.Background())
	require.Error(t, err)
}

func TestVerifyTopologySucceedsWhenIdentityMatches(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	require.NoError(t, m.VerifyTopology(context.Background()))
}

func TestVerifyTopologyDetectsMismatch(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	nd.Slaves[0].Identity = netdesc.Identity{VendorID: 0x00000001}
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	err := m.VerifyTopology(context.Background())
	require.Error(t, err)
	var mismatch *esm.TopologyMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 0, mismatch.Index)
}

func TestReadEEPROMRoundTrip(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	data, err := m.ReadEEPROM(context.Background(), 0, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xAA, 0x00, 0x00, 0xBB, 0xBB, 0x00, 0x00}, data)
}

func TestReadEEPROMRejectsOutOfRangeSlaveIndex(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	_, err := m.ReadEEPROM(context.Background(), 9, 0, 1)
	require.Error(t, err)
	var invalid *master.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestWritePdoByteRejectsOutOfRangeSlaveIndex(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	err := m.WritePdoByte(9, 0, 0x01)
	require.Error(t, err)
	var invalid *master.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestWritePdoByteRejectsSlaveWithNoOutputs(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	nd.Slaves[1].Outputs = nil
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	err := m.WritePdoByte(1, 0, 0x01)
	require.Error(t, err)
	var invalid *master.InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestSDOReadWriteRoundTrip(t *testing.T) {
	nd, drv := twoSlaveNetworkDescription()
	m := master.New(drv, nd, nil)
	require.NoError(t, m.Initialize(context.Background()))
	defer m.Close()

	require.NoError(t, m.SDOWrite(context.Background(), 0, 0x6000, 1, []byte{0x01, 0x02}))
	data, err := m.SDORead(context.Background(), 0, 0x6000, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02}, data)
}
