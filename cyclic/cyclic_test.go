package cyclic_test

import (
	"context"
	"testing"

	"github.com/distributed/ecatmaster/cyclic"
	"github.com/distributed/ecatmaster/internal/simdriver"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/pdi"
	"github.com/distributed/ecatmaster/wire"
	"github.com/stretchr/testify/require"
)

// TestRideThrough implements scenario S3 from spec.md §8.
func TestRideThrough(t *testing.T) {
	codes := []wire.WorkingCounter{
		wire.WKCPDUTimeout, wire.WKCPDUTimeout, wire.WKCPDUTimeout, wire.WKCPDUTimeout,
		1,
	}
	i := 0
	drv := simdriver.New()
	drv.RunCycleFunc = func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
		wkc := codes[i]
		i++
		return make([]byte, 1), wkc, nil
	}

	image := pdi.NewImage(0, 1)
	table := &pdi.MappingTable{}
	ex := cyclic.New(drv, image, table, 1)

	for n := 0; n < 4; n++ {
		wkc, err := ex.RunCycle(context.Background())
		require.NoError(t, err)
		require.Equal(t, wire.WKCPDUTimeout, wkc)
		require.Equal(t, n+1, ex.MissedCycles())
	}

	wkc, err := ex.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, wire.WorkingCounter(1), wkc)
	require.Equal(t, 0, ex.MissedCycles())
}

// TestRideThroughEscalatesOnSixthMiss covers the second half of S3: six
// consecutive -2s raise CommsLost only on the sixth call.
func TestRideThroughEscalatesOnSixthMiss(t *testing.T) {
	drv := simdriver.New()
	drv.RunCycleFunc = func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
		return make([]byte, 1), wire.WKCPDUTimeout, nil
	}

	image := pdi.NewImage(0, 1)
	table := &pdi.MappingTable{}
	ex := cyclic.New(drv, image, table, 1)

	for n := 0; n < 5; n++ {
		_, err := ex.RunCycle(context.Background())
		require.NoError(t, err, "call %d should not raise", n+1)
	}

	_, err := ex.RunCycle(context.Background())
	require.Error(t, err)
	var commsLost *cyclic.CommsLostError
	require.ErrorAs(t, err, &commsLost)
}

// TestRideThroughEscalatesPdoIntegrityOnWKCMismatch mirrors S3 for the -4
// code, which escalates to PdoIntegrityError instead of CommsLost.
func TestRideThroughEscalatesPdoIntegrityOnWKCMismatch(t *testing.T) {
	drv := simdriver.New()
	drv.RunCycleFunc = func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
		return make([]byte, 1), wire.WKCMismatch, nil
	}

	image := pdi.NewImage(0, 1)
	table := &pdi.MappingTable{}
	ex := cyclic.New(drv, image, table, 1)

	for n := 0; n < 5; n++ {
		_, err := ex.RunCycle(context.Background())
		require.NoError(t, err)
	}
	_, err := ex.RunCycle(context.Background())
	require.Error(t, err)
	var integrity *cyclic.PdoIntegrityError
	require.ErrorAs(t, err, &integrity)
}

func TestPreTransmitOnlySerializesChangedMappings(t *testing.T) {
	drv := simdriver.New()
	var lastOut []byte
	drv.RunCycleFunc = func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
		lastOut = append([]byte(nil), out...)
		return make([]byte, 0), 1, nil
	}

	image := pdi.NewImage(1, 0)
	m := &pdi.Mapping{Name: "Out1", DataType: netdesc.Uint8, BitSize: 8, PDIByteOffset: 0}
	table := &pdi.MappingTable{Outputs: []*pdi.Mapping{m}}
	ex := cyclic.New(drv, image, table, 1)

	m.SetValue(pdi.Uint8Value(0x42))
	_, err := ex.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(0x42), lastOut[0])
	require.Equal(t, uint64(0x42), m.LastKnown().Uint64())

	// Unchanged pending value: byte stays put, no re-encode needed to prove
	// correctness (still true since nothing else can write it), but
	// LastKnown must remain stable.
	_, err = ex.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, byte(0x42), lastOut[0])
}

func TestPostReceiveDeserializesInputMappings(t *testing.T) {
	drv := simdriver.New()
	drv.RunCycleFunc = func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
		return []byte{0x07}, 1, nil
	}

	image := pdi.NewImage(0, 1)
	m := &pdi.Mapping{Name: "In1", DataType: netdesc.Uint8, IsInput: true, BitSize: 8, PDIByteOffset: 0}
	table := &pdi.MappingTable{Inputs: []*pdi.Mapping{m}}
	ex := cyclic.New(drv, image, table, 1)

	_, err := ex.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0x07), m.CurrentValue().Uint64())
}
