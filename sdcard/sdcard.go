// Package sdcard implements an SD/MMC card driver over a byte oriented SPI bus.
// The Device type satisfies blkdev.Device and serves drive 0.
package sdcard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/soypat/fatfs/blkdev"
)

// Bus is a full-duplex SPI bus. Chip select is driven separately.
type Bus interface {
	// Transfer writes b and returns the byte read at the same time.
	Transfer(b byte) (byte, error)
	// Tx writes w while reading into r. Either may be nil; if both are
	// non-nil they have equal length. A nil w transmits 0xFF bytes.
	Tx(w, r []byte) error
}

// FrequencySetter is implemented by buses whose clock can be changed.
// Cards are initialized at a slow clock and then switched to a fast one.
type FrequencySetter interface {
	SetFrequency(hz uint32) error
}

// Clock is the time source used for protocol deadlines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config configures a Device. The zero value is usable.
type Config struct {
	// SlowFrequency is used during initialization. Defaults to 400kHz.
	SlowFrequency uint32
	// FastFrequency is used after initialization. Defaults to 20MHz.
	FastFrequency uint32
	// Clock measures timeouts. Defaults to the system clock.
	Clock Clock
	// CardDetect reports whether a card is inserted. Nil means always present.
	CardDetect func() bool
	// WriteProtect reports the write protect switch. Nil means never protected.
	WriteProtect func() bool
	Logger       *slog.Logger
}

// Type holds card type flags.
type Type uint8

const (
	TypeMMC   Type = 1 << iota // MMC ver 3.
	TypeSD1                    // SD ver 1.
	TypeSD2                    // SD ver 2+.
	TypeBlock                  // Block addressing (SDHC/SDXC).

	TypeSDC = TypeSD1 | TypeSD2
)

func (t Type) String() string {
	var s string
	switch {
	case t&TypeSD2 != 0:
		s = "SDv2"
	case t&TypeSD1 != 0:
		s = "SDv1"
	case t&TypeMMC != 0:
		s = "MMCv3"
	default:
		return "unknown"
	}
	if t&TypeBlock != 0 {
		s += "+block"
	}
	return s
}

var (
	ErrTimeout        = errors.New("sdcard: timeout")
	ErrNoResponse     = errors.New("sdcard: no command response")
	ErrDataToken      = errors.New("sdcard: bad data token")
	ErrWriteRejected  = errors.New("sdcard: data block rejected")
	ErrNotInitialized = errors.New("sdcard: not initialized")
	ErrWriteProtected = errors.New("sdcard: write protected")
)

// CommandError is returned when a card answers a command with a non-zero R1.
type CommandError struct {
	Cmd uint8
	R1  byte
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("sdcard: %s rejected, r1=%#02x", cmdName(e.Cmd), e.R1)
}

type state uint8

const (
	stateUninitialized state = iota
	stateIdle
	stateVoltageChecked
	stateACMD41Polling
	stateTypeResolved
	stateReady
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateIdle:
		return "idle"
	case stateVoltageChecked:
		return "voltage-checked"
	case stateACMD41Polling:
		return "op-cond-polling"
	case stateTypeResolved:
		return "type-resolved"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	}
	return "state?"
}

const sectorSize = 512

// Device is an SD/MMC card on a SPI bus.
type Device struct {
	bus    Bus
	cs     func(level bool)
	cfg    Config
	clock  Clock
	stat   blkdev.Status
	typ    Type
	state  state
	buserr error
	err    error
	ffbuf  [sectorSize]byte
}

var _ blkdev.Device = (*Device)(nil)

// New returns a Device over bus. cs drives the chip select line, low selects the card.
func New(bus Bus, cs func(level bool), cfg Config) *Device {
	if cfg.SlowFrequency == 0 {
		cfg.SlowFrequency = 400_000
	}
	if cfg.FastFrequency == 0 {
		cfg.FastFrequency = 20_000_000
	}
	d := &Device{
		bus:   bus,
		cs:    cs,
		cfg:   cfg,
		clock: cfg.Clock,
		stat:  blkdev.StatusNoInit,
	}
	if d.clock == nil {
		d.clock = systemClock{}
	}
	if d.cs == nil {
		d.cs = func(bool) {}
	}
	for i := range d.ffbuf {
		d.ffbuf[i] = 0xff
	}
	return d
}

// CardType returns the card type flags resolved by Initialize.
func (d *Device) CardType() Type { return d.typ }

// Err returns the error of the last failed operation.
func (d *Device) Err() error { return d.err }

// Initialize runs the card identification sequence. It returns StatusNoInit on failure.
func (d *Device) Initialize(drv uint8) blkdev.Status {
	if drv != 0 {
		return blkdev.StatusNoInit
	}
	d.checkSwitches()
	if d.stat&blkdev.StatusNoDisk != 0 {
		return d.stat
	}
	err := d.init()
	if err != nil {
		d.setState(stateFailed)
		d.typ = 0
		d.stat |= blkdev.StatusNoInit
		d.fail("init", err)
		return d.stat
	}
	d.stat &^= blkdev.StatusNoInit
	return d.stat
}

func (d *Device) Status(drv uint8) blkdev.Status {
	if drv != 0 {
		return blkdev.StatusNoInit
	}
	d.checkSwitches()
	return d.stat
}

func (d *Device) checkSwitches() {
	if d.cfg.CardDetect != nil && !d.cfg.CardDetect() {
		d.stat |= blkdev.StatusNoDisk | blkdev.StatusNoInit
		d.state = stateUninitialized
	} else {
		d.stat &^= blkdev.StatusNoDisk
	}
	if d.cfg.WriteProtect != nil && d.cfg.WriteProtect() {
		d.stat |= blkdev.StatusProtect
	} else {
		d.stat &^= blkdev.StatusProtect
	}
}

func (d *Device) init() error {
	d.buserr = nil
	d.setState(stateUninitialized)
	if err := d.setFrequency(d.cfg.SlowFrequency); err != nil {
		return err
	}
	d.cs(true)
	for n := 0; n < 10; n++ {
		d.xchg(0xff) // 80 dummy clocks.
	}
	defer d.deselect()
	r1, err := d.sendCommand(cmdGoIdleState, 0)
	if err != nil {
		return err
	} else if r1 != 1 {
		return fmt.Errorf("%w: CMD0 r1=%#02x", ErrNoResponse, r1)
	}
	d.setState(stateIdle)
	deadline := d.clock.Now().Add(time.Second)
	var ty Type
	r1, err = d.sendCommand(cmdSendIfCond, 0x1AA)
	if err != nil {
		return err
	}
	if r1 == 1 {
		// SDv2.
		var ocr [4]byte
		d.rxMulti(ocr[:])
		if ocr[2] != 0x01 || ocr[3] != 0xAA {
			return fmt.Errorf("sdcard: unsupported voltage range, R7=%x", ocr)
		}
		d.setState(stateVoltageChecked)
		d.setState(stateACMD41Polling)
		if err = d.pollOpCond(acmdSDSendOpCond, 1<<30, deadline); err != nil {
			return err
		}
		r1, err = d.sendCommand(cmdReadOCR, 0)
		if err != nil {
			return err
		} else if r1 != 0 {
			return &CommandError{Cmd: cmdReadOCR, R1: r1}
		}
		d.rxMulti(ocr[:])
		ty = TypeSD2
		if ocr[0]&0x40 != 0 {
			ty |= TypeBlock
		}
	} else {
		// SDv1 or MMCv3.
		cmd := uint8(acmdSDSendOpCond)
		r1, err = d.sendCommand(acmdSDSendOpCond, 0)
		if err != nil {
			return err
		}
		if r1 <= 1 {
			ty = TypeSD1
		} else {
			ty = TypeMMC
			cmd = cmdSendOpCond
		}
		d.setState(stateACMD41Polling)
		if err = d.pollOpCond(cmd, 0, deadline); err != nil {
			return err
		}
		r1, err = d.sendCommand(cmdSetBlockLen, sectorSize)
		if err != nil {
			return err
		} else if r1 != 0 {
			return &CommandError{Cmd: cmdSetBlockLen, R1: r1}
		}
	}
	d.typ = ty
	d.setState(stateTypeResolved)
	if err := d.setFrequency(d.cfg.FastFrequency); err != nil {
		return err
	}
	d.setState(stateReady)
	d.debug("sdcard:init", slog.String("type", ty.String()))
	return nil
}

// pollOpCond issues cmd until the card leaves the idle state or the deadline passes.
func (d *Device) pollOpCond(cmd uint8, arg uint32, deadline time.Time) error {
	for {
		r1, err := d.sendCommand(cmd, arg)
		if err != nil {
			return err
		} else if r1 == 0 {
			return nil
		}
		if !d.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: %s still idle, r1=%#02x", ErrTimeout, cmdName(cmd), r1)
		}
	}
}

func (d *Device) ReadSectors(drv uint8, dst []byte, sector uint64, count int) blkdev.Result {
	addr, res := d.checkTransfer(drv, dst, sector, count)
	if res != blkdev.ResultOK {
		return res
	}
	if err := d.readSectors(dst, addr, count); err != nil {
		d.fail("read", fmt.Errorf("read %d sectors at %d: %w", count, sector, err))
		return blkdev.ResultError
	}
	return blkdev.ResultOK
}

func (d *Device) WriteSectors(drv uint8, src []byte, sector uint64, count int) blkdev.Result {
	addr, res := d.checkTransfer(drv, src, sector, count)
	if res != blkdev.ResultOK {
		return res
	} else if d.stat&blkdev.StatusProtect != 0 {
		d.err = ErrWriteProtected
		return blkdev.ResultWriteProtected
	}
	if err := d.writeSectors(src, addr, count); err != nil {
		d.fail("write", fmt.Errorf("write %d sectors at %d: %w", count, sector, err))
		return blkdev.ResultError
	}
	return blkdev.ResultOK
}

func (d *Device) checkTransfer(drv uint8, buf []byte, sector uint64, count int) (uint32, blkdev.Result) {
	if drv != 0 || count <= 0 || len(buf) < count*sectorSize {
		return 0, blkdev.ResultParError
	} else if d.stat&blkdev.StatusNoInit != 0 {
		d.err = ErrNotInitialized
		return 0, blkdev.ResultNotReady
	}
	d.buserr = nil
	addr, ok := d.address(sector)
	if !ok {
		return 0, blkdev.ResultParError
	}
	return addr, blkdev.ResultOK
}

// address converts a sector number to the card's command argument.
func (d *Device) address(sector uint64) (uint32, bool) {
	if d.typ&TypeBlock == 0 {
		sector *= sectorSize // Byte addressing cards.
	}
	if sector > math.MaxUint32 {
		return 0, false
	}
	return uint32(sector), true
}

func (d *Device) setState(s state) {
	if d.state == s {
		return
	}
	d.debug("sdcard:state", slog.String("from", d.state.String()), slog.String("to", s.String()))
	d.state = s
}

func (d *Device) setFrequency(hz uint32) error {
	if fs, ok := d.bus.(FrequencySetter); ok {
		return fs.SetFrequency(hz)
	}
	return nil
}

func (d *Device) fail(op string, err error) {
	d.err = err
	if d.cfg.Logger != nil {
		d.cfg.Logger.Error("sdcard:"+op, slog.String("err", err.Error()))
	}
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	if d.cfg.Logger != nil {
		d.cfg.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}
