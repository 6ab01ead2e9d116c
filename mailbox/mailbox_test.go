package mailbox_test

import (
	"context"
	"testing"

	"github.com/distributed/ecatmaster/internal/simdriver"
	"github.com/distributed/ecatmaster/mailbox"
	"github.com/distributed/ecatmaster/wire"
	"github.com/stretchr/testify/require"
)

// TestToggleSequence implements scenario S4 from spec.md §8.
func TestToggleSequence(t *testing.T) {
	var seenToggles []int
	drv := simdriver.New()
	drv.CheckMailboxFunc = func(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error) {
		seenToggles = append(seenToggles, lastToggle)
		return 1, nil
	}

	p := mailbox.NewPoller(0, wire.SlaveAddr{Configured: 0x1000}, 0x080D)
	for i := 0; i < 5; i++ {
		ev, err := p.Poll(context.Background(), drv)
		require.NoError(t, err)
		require.NotNil(t, ev)
		require.True(t, ev.NewMail)
	}

	require.Equal(t, []int{wire.ToggleUnknown, 0, 1, 0, 1}, seenToggles)
}

func TestPollReturnsNoEventWhenEmpty(t *testing.T) {
	drv := simdriver.New()
	drv.CheckMailboxFunc = func(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error) {
		return 0, nil
	}
	p := mailbox.NewPoller(0, wire.SlaveAddr{Configured: 0x1000}, 0x080D)
	ev, err := p.Poll(context.Background(), drv)
	require.NoError(t, err)
	require.Nil(t, ev)
}

func TestPollRetriesExhaustedPublishesResilientReadFailed(t *testing.T) {
	drv := simdriver.New()
	drv.CheckMailboxFunc = func(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error) {
		return -2, nil
	}
	p := mailbox.NewPoller(0, wire.SlaveAddr{Configured: 0x1000}, 0x080D)
	ev, err := p.Poll(context.Background(), drv)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.EqualError(t, ev.Err, "resilient-read-failed")
}

func TestPollOtherNegativeIsTransient(t *testing.T) {
	drv := simdriver.New()
	drv.CheckMailboxFunc = func(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error) {
		return -7, nil
	}
	p := mailbox.NewPoller(0, wire.SlaveAddr{Configured: 0x1000}, 0x080D)
	ev, err := p.Poll(context.Background(), drv)
	require.NoError(t, err)
	require.NotNil(t, ev)
	var transient *mailbox.TransientError
	require.ErrorAs(t, ev.Err, &transient)
	require.Equal(t, -7, transient.Code)
}
