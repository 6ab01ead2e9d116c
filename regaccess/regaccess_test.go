package regaccess_test

import (
	"context"
	"testing"

	"github.com/distributed/ecatmaster/internal/simdriver"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
	"github.com/stretchr/testify/require"
)

func TestReadSIIRoundTrip(t *testing.T) {
	sii := []uint16{0x1234, 0x5678, 0xABCD, 0x0001}
	slave := simdriver.NewSlave(1001, 0, sii)
	drv := simdriver.New(slave)

	acc := regaccess.New(drv, 3, nil)
	addr := wire.SlaveAddr{Configured: 1001}

	data, err := acc.ReadSII(context.Background(), addr, 0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x34, 0x12, 0x78, 0x56, 0xCD, 0xAB, 0x01, 0x00}, data)
}

func TestWriteSIIWordThenRead(t *testing.T) {
	slave := simdriver.NewSlave(1001, 0, make([]uint16, 4))
	drv := simdriver.New(slave)
	acc := regaccess.New(drv, 3, nil)
	addr := wire.SlaveAddr{Configured: 1001}

	require.NoError(t, acc.WriteSIIWord(context.Background(), addr, 2, 0xBEEF))

	data, err := acc.ReadSII(context.Background(), addr, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBE}, data)
}

func TestReadRegisterRetriesThenReportsTimeout(t *testing.T) {
	drv := simdriver.New()
	calls := 0
	drv.ReadRegisterFunc = func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, width int) ([]byte, wire.WorkingCounter, error) {
		calls++
		return nil, wire.WKCPDUTimeout, nil
	}

	acc := regaccess.New(drv, 2, nil)
	_, err := acc.ReadRegister(context.Background(), wire.SlaveAddr{Configured: 1}, wire.FPRD, 0x130, 2, 1)
	require.Error(t, err)
	var timeoutErr *regaccess.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestReadRegisterWKCMismatch(t *testing.T) {
	drv := simdriver.New()
	drv.ReadRegisterFunc = func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, width int) ([]byte, wire.WorkingCounter, error) {
		return []byte{0, 0}, 0, nil
	}
	acc := regaccess.New(drv, 0, nil)
	_, err := acc.ReadRegister(context.Background(), wire.SlaveAddr{Configured: 1}, wire.FPRD, 0x130, 2, 1)
	require.Error(t, err)
	var mismatch *regaccess.WKCMismatchError
	require.ErrorAs(t, err, &mismatch)
}
