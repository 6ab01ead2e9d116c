// Package simdriver is an in-memory wire.Driver used by this module's own
// tests. It plays the role the teacher's sim package (l2slave.go,
// l2eeprom.go, mem.go, mmdevice.go) played for distributed-ecat: a
// software slave/bus good enough to exercise the layers above the wire
// without real hardware. There being no raw socket in this module (it is
// an explicit external collaborator, spec.md §1), this is also the only
// wire.Driver implementation the module ships.
//
// Every method has an optional override hook (the FooFunc fields) so
// tests can script exact sequences — e.g. cyclic's ride-through scenario
// needs RunCycle to return -2 four times then a valid WKC — while still
// getting a working default simulation for everything else.
package simdriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/distributed/ecatmaster/ecaddr"
	"github.com/distributed/ecatmaster/wire"
)

// Slave is one simulated bus position: a flat ESC register bank (mirrors
// the teacher's sim.L2Bus/MMDevice memory-mapped model), a run of SII
// words, and CoE mailbox/emergency/SDO state.
type Slave struct {
	Configured    uint16
	AutoIncrement int16

	mu        sync.Mutex
	registers map[uint16][]byte
	sii       []uint16

	eepromBusy    bool
	mailboxToggle int
	hasMail       bool
	sdo           map[sdoKey][]byte
}

type sdoKey struct {
	index    uint16
	subIndex uint8
}

// NewSlave builds a slave with a minimal register bank pre-populated with
// AL state Init and zeroed SM watchdog/mailbox status registers.
func NewSlave(configured uint16, autoIncrement int16, sii []uint16) *Slave {
	s := &Slave{
		Configured:    configured,
		AutoIncrement: autoIncrement,
		registers:     make(map[uint16][]byte),
		sii:           sii,
		sdo:           make(map[sdoKey][]byte),
	}
	s.setRegister(ecaddr.ALStatus, []byte{0x01, 0x00})
	s.setRegister(ecaddr.ALControl, []byte{0x01, 0x00})
	s.setRegister(ecaddr.EEPROMControlStatus, []byte{0x00, 0x00})
	return s
}

func (s *Slave) setRegister(addr uint16, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.registers[addr] = buf
}

func (s *Slave) readRegister(addr uint16, width int) []byte {
	buf, ok := s.registers[addr]
	if !ok {
		return make([]byte, width)
	}
	out := make([]byte, width)
	copy(out, buf)
	return out
}

// SetALStatus lets tests drive a slave directly into a reported AL state.
func (s *Slave) SetALStatus(state uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setRegister(ecaddr.ALStatus, []byte{byte(state), byte(state >> 8)})
}

// SetSDO seeds an object dictionary entry for SDOUpload to return.
func (s *Slave) SetSDO(index uint16, subIndex uint8, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sdo[sdoKey{index, subIndex}] = append([]byte(nil), data...)
}

// QueueMail marks the slave as having new mail; the next CheckMailbox
// flips the simulated toggle.
func (s *Slave) QueueMail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasMail = true
}

// Driver is the shared fake used across this module's package tests.
type Driver struct {
	mu     sync.Mutex
	slaves []*Slave
	closed bool

	inputImage []byte

	lastEmergSlave int
	lastEmergCode  uint16
	lastEmergReg   uint8
	lastEmergSet   bool

	// Override hooks; nil means "use the built-in simulation".
	ReadRegisterFunc  func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, width int) ([]byte, wire.WorkingCounter, error)
	WriteRegisterFunc func(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, data []byte) (wire.WorkingCounter, error)
	RunCycleFunc      func(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error)
	CheckMailboxFunc  func(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error)
	LastEmergencyFunc func(ctx context.Context) (int, uint16, uint8, bool, error)
	SDOUploadFunc     func(ctx context.Context, addr wire.SlaveAddr, index uint16, subIndex uint8) ([]byte, error)
	SDODownloadFunc   func(ctx context.Context, addr wire.SlaveAddr, index uint16, subIndex uint8, data []byte) error
	SlaveCountFunc    func(ctx context.Context) (int, error)
}

var _ wire.Driver = (*Driver)(nil)

// New builds a Driver simulating the given slaves.
func New(slaves ...*Slave) *Driver {
	return &Driver{slaves: slaves}
}

// AddSlave appends a slave, e.g. for tests that build the bus
// incrementally.
func (d *Driver) AddSlave(s *Slave) { d.slaves = append(d.slaves, s) }

// SetLastEmergency lets emergency-channel tests drive the "last global
// emergency" slot the driver reports.
func (d *Driver) SetLastEmergency(slaveIndex int, code uint16, reg uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastEmergSlave, d.lastEmergCode, d.lastEmergReg, d.lastEmergSet = slaveIndex, code, reg, true
}

func (d *Driver) findSlave(addr wire.SlaveAddr, cmd wire.CommandType) *Slave {
	switch cmd {
	case wire.FPRD, wire.FPWR, wire.FPRW, wire.FRMW:
		for _, s := range d.slaves {
			if s.Configured == addr.Configured {
				return s
			}
		}
	case wire.APRD, wire.APWR, wire.APRW, wire.ARMW:
		for _, s := range d.slaves {
			if s.AutoIncrement == addr.AutoIncrement {
				return s
			}
		}
	}
	return nil
}

func (d *Driver) ReadRegister(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, width int) ([]byte, wire.WorkingCounter, error) {
	if d.ReadRegisterFunc != nil {
		return d.ReadRegisterFunc(ctx, addr, cmd, reg, width)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findSlave(addr, cmd)
	if s == nil {
		return nil, 0, nil
	}
	return s.readRegister(reg, width), 1, nil
}

func (d *Driver) WriteRegister(ctx context.Context, addr wire.SlaveAddr, cmd wire.CommandType, reg uint16, data []byte) (wire.WorkingCounter, error) {
	if d.WriteRegisterFunc != nil {
		return d.WriteRegisterFunc(ctx, addr, cmd, reg, data)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findSlave(addr, cmd)
	if s == nil {
		return 0, nil
	}
	s.setRegister(reg, data)
	if reg == ecaddr.ALControl {
		s.setRegister(ecaddr.ALStatus, data)
	}
	if reg == ecaddr.EEPROMControlStatus {
		s.runEEPROMCommand(data)
	}
	return 1, nil
}

// eepromReadCmd/eepromWriteCmd mirror the command words regaccess writes
// to EEPROMControlStatus (regaccess/sii.go); simulating them here lets
// regaccess.ReadSII/WriteSIIWord exercise the same control-status
// handshake the teacher's ecee.blindEEPROM used against real hardware.
var (
	eepromReadCmd  = []byte{0x00, 0x01}
	eepromWriteCmd = []byte{0x01, 0x02}
)

// runEEPROMCommand simulates the EEPROM interface synchronously: the
// simulated slave never reports busy, so regaccess's poll loop returns
// immediately.
func (s *Slave) runEEPROMCommand(cmd []byte) {
	if len(cmd) < 2 {
		return
	}
	addrBytes := s.readRegister(ecaddr.EEPROMAddress, 4)
	word := uint32(addrBytes[0]) | uint32(addrBytes[1])<<8 | uint32(addrBytes[2])<<16 | uint32(addrBytes[3])<<24

	switch {
	case cmd[0] == eepromReadCmd[0] && cmd[1] == eepromReadCmd[1]:
		var value uint16
		if int(word) < len(s.sii) {
			value = s.sii[word]
		}
		s.setRegister(ecaddr.EEPROMData, []byte{byte(value), byte(value >> 8), 0, 0})
		s.setRegister(ecaddr.EEPROMControlStatus, []byte{0x00, 0x00})
	case cmd[0] == eepromWriteCmd[0] && cmd[1] == eepromWriteCmd[1]:
		dataBytes := s.readRegister(ecaddr.EEPROMData, 2)
		value := uint16(dataBytes[0]) | uint16(dataBytes[1])<<8
		for int(word) >= len(s.sii) {
			s.sii = append(s.sii, 0)
		}
		s.sii[word] = value
		s.setRegister(ecaddr.EEPROMControlStatus, []byte{0x00, 0x00})
	}
}

func (d *Driver) RunCycle(ctx context.Context, out []byte, expectedWKC int) ([]byte, wire.WorkingCounter, error) {
	if d.RunCycleFunc != nil {
		return d.RunCycleFunc(ctx, out, expectedWKC)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	in := make([]byte, len(d.inputImage))
	copy(in, d.inputImage)
	return in, wire.WorkingCounter(expectedWKC), nil
}

// SetInputImage lets tests control what the default RunCycle simulation
// returns as inputs.
func (d *Driver) SetInputImage(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputImage = append([]byte(nil), b...)
}

func (d *Driver) CheckMailbox(ctx context.Context, addr wire.SlaveAddr, statusReg uint16, lastToggle int) (int, error) {
	if d.CheckMailboxFunc != nil {
		return d.CheckMailboxFunc(ctx, addr, statusReg, lastToggle)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findSlave(addr, wire.FPRD)
	if s == nil {
		return -2, fmt.Errorf("simdriver: no slave at %+v", addr)
	}
	if !s.hasMail {
		return 0, nil
	}
	s.hasMail = false
	s.mailboxToggle ^= 1
	return 1, nil
}

func (d *Driver) LastEmergency(ctx context.Context) (int, uint16, uint8, bool, error) {
	if d.LastEmergencyFunc != nil {
		return d.LastEmergencyFunc(ctx)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastEmergSlave, d.lastEmergCode, d.lastEmergReg, d.lastEmergSet, nil
}

func (d *Driver) SDOUpload(ctx context.Context, addr wire.SlaveAddr, index uint16, subIndex uint8) ([]byte, error) {
	if d.SDOUploadFunc != nil {
		return d.SDOUploadFunc(ctx, addr, index, subIndex)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findSlave(addr, wire.FPRD)
	if s == nil {
		return nil, fmt.Errorf("simdriver: no slave at %+v", addr)
	}
	data, ok := s.sdo[sdoKey{index, subIndex}]
	if !ok {
		return nil, fmt.Errorf("simdriver: no SDO object %#04x:%d", index, subIndex)
	}
	return append([]byte(nil), data...), nil
}

func (d *Driver) SDODownload(ctx context.Context, addr wire.SlaveAddr, index uint16, subIndex uint8, data []byte) error {
	if d.SDODownloadFunc != nil {
		return d.SDODownloadFunc(ctx, addr, index, subIndex, data)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.findSlave(addr, wire.FPWR)
	if s == nil {
		return fmt.Errorf("simdriver: no slave at %+v", addr)
	}
	s.sdo[sdoKey{index, subIndex}] = append([]byte(nil), data...)
	return nil
}

func (d *Driver) SlaveCount(ctx context.Context) (int, error) {
	if d.SlaveCountFunc != nil {
		return d.SlaveCountFunc(ctx)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slaves), nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close has been called, for idempotence tests.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
