package esm

import (
	"context"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/wire"
	"github.com/sirupsen/logrus"
)

// writeWatchdogs implements spec.md §4.4 step 3: before PreOp→SafeOp, if a
// watchdog timeout is configured, write the SM watchdog register on every
// slave. A slave that rejects the write is warned about but does not fail
// the transition.
func writeWatchdogs(ctx context.Context, driver wire.Driver, slaves []netdesc.SlaveDescriptor, timeoutMs int, log logrus.FieldLogger) {
	value := uint16(timeoutMs * ecaddr.SMWatchdogUnitsPerMillisecond)
	data := []byte{byte(value), byte(value >> 8)}

	for i, s := range slaves {
		if s.Invalid || s.ManualConfigurationRequired {
			continue
		}
		addr := wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}
		if _, err := driver.WriteRegister(ctx, addr, wire.FPWR, ecaddr.SMWatchdog, data); err != nil {
			log.WithFields(logrus.Fields{"slave": i, "err": err}).Warn("esm: SM watchdog write rejected, continuing")
		}
	}
}
