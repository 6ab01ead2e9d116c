// Package master implements the Master Facade (C9, spec.md §4.8): the
// single entry point wiring the Network Description, PDI, mapping tables,
// ESM orchestrator, cyclic exchange engine, and mailbox/emergency pollers
// together behind one single-owner bus thread (internal/masterloop).
//
// It has no direct teacher analogue as one file — distributed-ecat spreads
// this role across ecmd's Multiplexer and per-package public API — so its
// shape is grounded piecewise on the components it wires: ecmd.Multiplexer
// for the single-owner scheduling discipline, and the same
// logrus.FieldLogger/context.Context conventions every other package here
// already follows.
package master

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distributed/ecatmaster/cyclic"
	"github.com/distributed/ecatmaster/emergency"
	"github.com/distributed/ecatmaster/esm"
	"github.com/distributed/ecatmaster/internal/events"
	"github.com/distributed/ecatmaster/internal/masterloop"
	"github.com/distributed/ecatmaster/mailbox"
	"github.com/distributed/ecatmaster/netdesc"
	"github.com/distributed/ecatmaster/pdi"
	"github.com/distributed/ecatmaster/regaccess"
	"github.com/distributed/ecatmaster/wire"
	"github.com/sirupsen/logrus"
)

// Master is the C9 component.
type Master struct {
	driver wire.Driver
	log    logrus.FieldLogger
	nd     netdesc.NetworkDescription

	acc          *regaccess.Accessor
	image        *pdi.Image
	table        *pdi.MappingTable
	orchestrator *esm.Orchestrator
	exchange     *cyclic.Exchange
	mailboxMgr   *mailbox.Manager
	emergencyCh  *emergency.Channel

	loop *masterloop.Loop
	bus  *events.Bus

	mu            sync.Mutex
	state         esm.State
	initialized   bool
	lastEmergency *emergency.Event

	closed   atomic.Bool
	pollStop chan struct{}
	pollDone chan struct{}
	closeOnce sync.Once
}

// New builds a Master for the given driver and Network Description. The
// Network Description is expected to have already been produced by
// discovery.Discover or an external ENI parser (spec.md §1).
func New(driver wire.Driver, nd netdesc.NetworkDescription, log logrus.FieldLogger) *Master {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if nd.Master.PDURetryCount == 0 {
		defaults := netdesc.DefaultConfig()
		defaults.CyclePeriod, defaults.WatchdogTimeout = nd.Master.CyclePeriod, nd.Master.WatchdogTimeout
		nd.Master = defaults
	}
	return &Master{
		driver: driver,
		log:    log,
		nd:     nd,
		acc:    regaccess.New(driver, nd.Master.PDURetryCount, log),
		loop:   masterloop.New(),
		bus:    events.NewBus(),
		state:  esm.Init,
	}
}

// Subscribe registers h for every future published event (spec.md §4.8:
// stateChange, emergency, mailboxError). It returns an unsubscribe func.
func (m *Master) Subscribe(h events.Handler) func() { return m.bus.Subscribe(h) }

// PDI exposes the process data image for direct byte/bulk access
// (spec.md §5's memory-only operations, which never suspend).
func (m *Master) PDI() *pdi.Image { return m.image }

// Logger exposes the facade's logger, e.g. for a caller wiring its own
// component loggers to match.
func (m *Master) Logger() logrus.FieldLogger { return m.log }

// State reports the last-known global ESM state.
func (m *Master) State() esm.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize allocates the PDI and mapping tables, builds the cyclic
// exchange engine, and starts the mailbox and emergency poll loops
// (spec.md §4.8's `initialize` operation).
func (m *Master) Initialize(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed{}
	}

	table, err := pdi.BuildMappings(m.nd)
	if err != nil {
		return fmt.Errorf("master: initialize: %w", err)
	}

	image := pdi.NewImage(m.nd.OutputSize(), m.nd.InputSize())

	m.mu.Lock()
	m.image = image
	m.table = table
	m.exchange = cyclic.New(m.driver, image, table, validSlaveCount(m.nd))
	m.mailboxMgr = mailbox.NewManager(m.nd)
	m.emergencyCh = emergency.NewChannel(m.nd)
	m.orchestrator = &esm.Orchestrator{
		Driver: m.driver,
		Log:    m.log,
		OnStateChange: func(previous, current esm.State) {
			m.mu.Lock()
			m.state = current
			m.mu.Unlock()
			m.bus.Publish(events.Event{Kind: events.StateChange, StateFrom: uint16(previous), StateTo: uint16(current)})
		},
	}
	m.initialized = true
	m.pollStop = make(chan struct{})
	m.pollDone = make(chan struct{})
	m.mu.Unlock()

	go m.pollLoop()

	return nil
}

func validSlaveCount(nd netdesc.NetworkDescription) int {
	n := 0
	for _, s := range nd.Slaves {
		if !s.Invalid {
			n++
		}
	}
	return n
}

// VerifyTopology implements spec.md §4.8's `verifyTopology` operation.
func (m *Master) VerifyTopology(ctx context.Context) error {
	if err := m.checkReady(); err != nil {
		return err
	}
	_, err := m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, m.orchestrator.VerifyTopology(ctx, m.acc, m.nd.Slaves)
	})
	return err
}

// RequestState implements spec.md §4.8's `requestState` operation. State
// requests share the low-priority queue with mailbox/emergency polls and
// SDO/EEPROM calls; only runCycle is high-priority (spec.md §5).
func (m *Master) RequestState(ctx context.Context, target esm.State) (esm.State, error) {
	if err := m.checkReady(); err != nil {
		return esm.Init, err
	}
	current := m.State()
	val, err := m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		return m.orchestrator.RequestState(ctx, m.nd.Slaves, current, target, m.nd.Master)
	})
	if err != nil {
		return current, err
	}
	return val.(esm.State), nil
}

// RunCycle implements spec.md §4.8's `runCycle` operation: one PDI
// transmit/receive round trip, high-priority over any queued poll.
func (m *Master) RunCycle(ctx context.Context) (wire.WorkingCounter, error) {
	if err := m.checkReady(); err != nil {
		return 0, err
	}
	val, err := m.loop.SubmitHigh(ctx, func(ctx context.Context) (interface{}, error) {
		return m.exchange.RunCycle(ctx)
	})
	if val == nil {
		return 0, err
	}
	return val.(wire.WorkingCounter), err
}

// ReadPdoByte reads one byte of the input half of a slave's process data
// range, or of its output half when the slave has no input range
// (spec.md §4.8's `readPdoByte`), a memory-only operation.
func (m *Master) ReadPdoByte(slaveIndex, offset int) (byte, error) {
	s, err := m.slaveAt(slaveIndex)
	if err != nil {
		return 0, err
	}
	if s.Inputs != nil {
		return m.image.ByteAt(m.nd.OutputSize() + s.Inputs.ByteOffset + offset)
	}
	if s.Outputs != nil {
		return m.image.ByteAt(s.Outputs.ByteOffset + offset)
	}
	return 0, &InvalidArgumentError{Reason: fmt.Sprintf("slave %d has no process data range", slaveIndex)}
}

// WritePdoByte writes one byte of the output half of a slave's process
// data range (spec.md §4.8's `writePdoByte`).
func (m *Master) WritePdoByte(slaveIndex, offset int, value byte) error {
	s, err := m.slaveAt(slaveIndex)
	if err != nil {
		return err
	}
	r := s.Outputs
	if r == nil {
		return &InvalidArgumentError{Reason: fmt.Sprintf("slave %d has no output range", slaveIndex)}
	}
	return m.image.SetByteAt(r.ByteOffset+offset, value)
}

func (m *Master) slaveAt(slaveIndex int) (netdesc.SlaveDescriptor, error) {
	if slaveIndex < 0 || slaveIndex >= len(m.nd.Slaves) {
		return netdesc.SlaveDescriptor{}, &InvalidArgumentError{Reason: fmt.Sprintf("slave index %d out of range", slaveIndex)}
	}
	return m.nd.Slaves[slaveIndex], nil
}

func (m *Master) addrOf(slaveIndex int) (wire.SlaveAddr, error) {
	s, err := m.slaveAt(slaveIndex)
	if err != nil {
		return wire.SlaveAddr{}, err
	}
	return wire.SlaveAddr{Configured: s.ConfiguredAddress, AutoIncrement: s.AutoIncrementAddress}, nil
}

// SDORead implements spec.md §4.8's `sdoRead` operation.
func (m *Master) SDORead(ctx context.Context, slaveIndex int, index uint16, subIndex uint8) ([]byte, error) {
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	addr, err := m.addrOf(slaveIndex)
	if err != nil {
		return nil, err
	}
	val, err := m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		return m.driver.SDOUpload(ctx, addr, index, subIndex)
	})
	if val == nil {
		return nil, err
	}
	return val.([]byte), err
}

// SDOWrite implements spec.md §4.8's `sdoWrite` operation.
func (m *Master) SDOWrite(ctx context.Context, slaveIndex int, index uint16, subIndex uint8, data []byte) error {
	if err := m.checkReady(); err != nil {
		return err
	}
	addr, err := m.addrOf(slaveIndex)
	if err != nil {
		return err
	}
	_, err = m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, m.driver.SDODownload(ctx, addr, index, subIndex, data)
	})
	return err
}

// ReadEEPROM implements spec.md §4.8's `readEEPROM` operation.
func (m *Master) ReadEEPROM(ctx context.Context, slaveIndex int, wordAddr uint16, words int) ([]byte, error) {
	if err := m.checkReady(); err != nil {
		return nil, err
	}
	addr, err := m.addrOf(slaveIndex)
	if err != nil {
		return nil, err
	}
	val, err := m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		return m.acc.ReadSII(ctx, addr, wordAddr, words)
	})
	if val == nil {
		return nil, err
	}
	return val.([]byte), err
}

// GetLastEmergency implements spec.md §4.8's `getLastEmergency` operation:
// a memory-only read of the event slot the background poll loop last
// populated.
func (m *Master) GetLastEmergency() *emergency.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEmergency
}

// Close implements spec.md §4.8's `close` operation: it stops the
// mailbox/emergency poll loop, stops the bus-thread scheduler, and
// releases the driver. Idempotent (spec.md §5).
func (m *Master) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.mu.Lock()
		stop, done := m.pollStop, m.pollDone
		m.mu.Unlock()
		if stop != nil {
			close(stop)
			<-done
		}
		if loopErr := m.loop.Close(); loopErr != nil {
			err = loopErr
		}
		if driverErr := m.driver.Close(); driverErr != nil && err == nil {
			err = driverErr
		}
	})
	return err
}

func (m *Master) checkReady() error {
	if m.closed.Load() {
		return ErrClosed{}
	}
	m.mu.Lock()
	ready := m.initialized
	m.mu.Unlock()
	if !ready {
		return fmt.Errorf("master: not initialized")
	}
	return nil
}

// pollLoop is the periodic mailbox/emergency scheduler spec.md §4.8
// describes as "internal": it submits one low-priority poll round per
// mailbox.Manager.Period, checking the closed flag first so Close aborts
// any in-flight or pending poll without a further driver call (spec.md
// §5's cancellation guarantee).
func (m *Master) pollLoop() {
	defer close(m.pollDone)

	period := m.mailboxMgr.Period
	if period <= 0 {
		period = mailbox.DefaultPollPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-m.pollStop:
			return
		case <-ticker.C:
			if m.closed.Load() {
				return
			}
			m.pollOnce()
		}
	}
}

func (m *Master) pollOnce() {
	ctx := context.Background()
	_, _ = m.loop.SubmitLow(ctx, func(ctx context.Context) (interface{}, error) {
		if m.closed.Load() {
			return nil, nil
		}

		for _, ev := range m.mailboxMgr.PollAll(ctx, m.driver) {
			if ev.Err != nil {
				m.bus.Publish(events.Event{Kind: events.MailboxError, SlaveIndex: ev.SlaveIndex, Err: ev.Err})
			}
		}

		emEv, err := m.emergencyCh.Poll(ctx, m.driver)
		if err == nil && emEv != nil {
			m.mu.Lock()
			m.lastEmergency = emEv
			m.mu.Unlock()
			m.bus.Publish(events.Event{Kind: events.Emergency, SlaveIndex: emEv.SlaveIndex, ErrorCode: emEv.ErrorCode, ErrorRegister: emEv.ErrorRegister})
		}
		return nil, nil
	})
}
