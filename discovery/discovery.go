// Package discovery implements the Discovery Engine (C4, spec.md §4.3):
// walking the bus topology, reading each slave's identity and
// capabilities, enumerating its process data, and assembling a
// netdesc.NetworkDescription. It is grounded on the teacher's ecee
// (SII/EEPROM access sequencing, reused via regaccess) and on
// samsamfire/gocanopen's pkg/sdo for the CoE-SDO-upload shape used to
// read the PDO assignment objects.
package discovery

import (
	"context"
	"fmt"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/internal/wirefmt"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
	"github.com/sirupsen/logrus"
)

// Options configures one discovery run.
type Options struct {
	// PDURetryCount is passed to the regaccess.Accessor built for this
	// run; defaults to netdesc.DefaultConfig().PDURetryCount when zero.
	PDURetryCount int
	// FirstConfiguredAddress is the configured station address assigned
	// to slave 0; subsequent slaves increment from it. Defaults to
	// 0x1000.
	FirstConfiguredAddress uint16
}

func (o Options) withDefaults() Options {
	if o.PDURetryCount == 0 {
		o.PDURetryCount = netdesc.DefaultConfig().PDURetryCount
	}
	if o.FirstConfiguredAddress == 0 {
		o.FirstConfiguredAddress = 0x1000
	}
	return o
}

// Discover implements spec.md §4.3's seven steps. It returns a partial,
// best-effort NetworkDescription even when individual slaves fail SII or
// PDO enumeration (spec.md §4.3 step 2: "discovery returns the partial
// list and a per-slave error") — only a topology-walk failure is fatal to
// the whole call; a wire.ErrPermission there ends the walk without retry,
// while errors on later per-slave reads only flag that slave.
func Discover(ctx context.Context, driver wire.Driver, opts Options, log logrus.FieldLogger) (netdesc.NetworkDescription, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts = opts.withDefaults()
	acc := regaccess.New(driver, opts.PDURetryCount, log)

	var count int
	err := withBusyRetry(ctx, func() error {
		var err error
		count, err = driver.SlaveCount(ctx)
		return err
	})
	if err != nil {
		return netdesc.NetworkDescription{}, fmt.Errorf("discovery: topology walk failed: %w", err)
	}

	slaves := make([]netdesc.SlaveDescriptor, count)
	anyDC := false

	for i := 0; i < count; i++ {
		addr := wire.SlaveAddr{
			Configured:    opts.FirstConfiguredAddress + uint16(i),
			AutoIncrement: int16(-i),
		}

		s := netdesc.SlaveDescriptor{
			ConfiguredAddress:    addr.Configured,
			AutoIncrementAddress: addr.AutoIncrement,
		}

		identity, err := acc.ReadIdentity(ctx, addr)
		if err != nil {
			s.Invalid = true
			s.DiscoveryError = fmt.Errorf("discovery: slave %d: SII identity unreadable: %w", i, err)
			log.WithFields(logrus.Fields{"slave": i, "err": err}).Warn("discovery: SII unreadable, slave flagged invalid")
			log.WithField("addr", wirefmt.Dump(addr)).Debug("discovery: address that failed identity read")
			slaves[i] = s
			continue
		}
		s.Identity = identity

		cats, err := scanCategories(ctx, acc, addr)
		if err != nil {
			log.WithFields(logrus.Fields{"slave": i, "err": err}).Warn("discovery: SII category scan failed")
		}

		coe, foe, eoe, soe := generalCategoryProtocols(cats)
		s.Mailbox.SupportsCoE = coe
		s.Mailbox.SupportsFoE = foe
		s.Mailbox.SupportsEoE = eoe
		_ = soe // SoE support has no dedicated Mailbox field; SoE init commands work off Identity alone.

		dc, dcErr := dcCapableFromRegister(ctx, acc, addr)
		if dcErr != nil {
			dc = dcCapableFromCategory(cats)
		}
		s.SupportsDC = dc
		if dc {
			anyDC = true
		}

		entries, err := enumeratePDOs(ctx, driver, acc, addr, s.Mailbox.SupportsCoE)
		if err != nil {
			s.ManualConfigurationRequired = true
			s.DiscoveryError = fmt.Errorf("discovery: slave %d: %w", i, err)
			log.WithFields(logrus.Fields{"slave": i, "err": err}).Warn("discovery: no PDO mapping available, manual configuration required")
			slaves[i] = s
			continue
		}
		s.Entries = entries

		if s.Mailbox.SupportsCoE {
			s.Mailbox.StatusRegisterAddress = ecaddr.MailboxStatusRegisterAddress
			s.Mailbox.PollPeriodMs = 20
		}

		slaves[i] = s
	}

	allocatePDISlots(slaves)

	nd := netdesc.NetworkDescription{
		Master: netdesc.Config{
			CyclePeriod:            netdesc.DefaultConfig().CyclePeriod,
			PDUTimeout:             netdesc.DefaultConfig().PDUTimeout,
			StateTransitionTimeout: netdesc.DefaultConfig().StateTransitionTimeout,
			MailboxTimeout:         netdesc.DefaultConfig().MailboxTimeout,
			EEPROMTimeout:          netdesc.DefaultConfig().EEPROMTimeout,
			PDURetryCount:          opts.PDURetryCount,
			DCSupport:              anyDC,
		},
		Slaves: slaves,
	}

	return nd, nil
}

