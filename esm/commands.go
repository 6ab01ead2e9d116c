package esm

import (
	"context"
	"fmt"

	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/wire"
)

// runInitCommand executes one init command against one slave, retrying up
// to cmd.Retries additional times on failure (spec.md §4.4 step 2). SoE
// transport has no dedicated method on wire.Driver — this module routes it
// through the same CoE SDO mailbox channel, keyed by IDN/drive number
// instead of object index/subindex, since a full SoE mailbox codec is out
// of scope for the drivers this module ships against.
func runInitCommand(ctx context.Context, driver wire.Driver, addr wire.SlaveAddr, cmd netdesc.InitCommand) error {
	var lastErr error
	for attempt := 0; attempt <= cmd.Retries; attempt++ {
		var result []byte
		var err error

		switch cmd.Kind {
		case netdesc.RegisterWrite:
			var wkc wire.WorkingCounter
			wkc, err = driver.WriteRegister(ctx, addr, wire.FPWR, cmd.RegisterAddr, cmd.Data)
			if err == nil && cmd.ExpectedWKC != 0 && int(wkc) != cmd.ExpectedWKC {
				err = fmt.Errorf("esm: init command register write %#04x: wkc %d, want %d", cmd.RegisterAddr, wkc, cmd.ExpectedWKC)
			}
		case netdesc.CoESDODownload:
			err = driver.SDODownload(ctx, addr, cmd.Index, cmd.SubIndex, cmd.Data)
		case netdesc.SoEWrite:
			err = driver.SDODownload(ctx, addr, cmd.SoEIDN, cmd.SoEDriveNo, cmd.Data)
		default:
			err = fmt.Errorf("esm: unknown init command kind %d", cmd.Kind)
		}

		if err == nil && cmd.Validate != nil {
			err = cmd.Validate(result)
		}
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}
