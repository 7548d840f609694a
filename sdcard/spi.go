package sdcard

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// Command indices. ACMDs have bit 7 set and are prefixed with CMD55.
const (
	cmdGoIdleState         = 0
	cmdSendOpCond          = 1
	cmdSendIfCond          = 8
	cmdSendCSD             = 9
	cmdSendCID             = 10
	cmdStopTransmission    = 12
	cmdSetBlockLen         = 16
	cmdReadSingle          = 17
	cmdReadMultiple        = 18
	cmdWriteSingle         = 24
	cmdWriteMultiple       = 25
	cmdEraseStart          = 32
	cmdEraseEnd            = 33
	cmdErase               = 38
	cmdAppCmd              = 55
	cmdReadOCR             = 58
	acmdSDStatus           = 13 | 0x80
	acmdSetWrBlkEraseCount = 23 | 0x80
	acmdSDSendOpCond       = 41 | 0x80
)

// Data tokens.
const (
	tokenStartBlock      = 0xFE
	tokenStartBlockMulti = 0xFC
	tokenStopTran        = 0xFD
)

const (
	timeoutReady = 500 * time.Millisecond
	timeoutToken = 200 * time.Millisecond
	timeoutErase = 30 * time.Second
)

func cmdName(cmd uint8) string {
	if cmd&0x80 != 0 {
		return "ACMD" + strconv.Itoa(int(cmd&0x7f))
	}
	return "CMD" + strconv.Itoa(int(cmd))
}

// xchg exchanges a byte. Bus failures are latched in buserr and read back as 0xFF.
func (d *Device) xchg(b byte) byte {
	if d.buserr != nil {
		return 0xff
	}
	r, err := d.bus.Transfer(b)
	if err != nil {
		d.buserr = err
		return 0xff
	}
	return r
}

// rxMulti receives len(buf) bytes while transmitting 0xFF.
func (d *Device) rxMulti(buf []byte) {
	if d.buserr != nil {
		return
	}
	for len(buf) > 0 {
		n := min(len(buf), len(d.ffbuf))
		if err := d.bus.Tx(d.ffbuf[:n], buf[:n]); err != nil {
			d.buserr = err
			return
		}
		buf = buf[n:]
	}
}

func (d *Device) txMulti(buf []byte) {
	if d.buserr != nil {
		return
	}
	if err := d.bus.Tx(buf, nil); err != nil {
		d.buserr = err
	}
}

// waitReady polls the card until it releases DO high or the timeout elapses.
func (d *Device) waitReady(timeout time.Duration) error {
	deadline := d.clock.Now().Add(timeout)
	for {
		b := d.xchg(0xff)
		if d.buserr != nil {
			return d.buserr
		} else if b == 0xff {
			return nil
		}
		if !d.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: card busy after %v", ErrTimeout, timeout)
		}
	}
}

func (d *Device) deselect() {
	d.cs(true)
	d.xchg(0xff) // Dummy clock to force DO hi-z on shared buses.
}

func (d *Device) selectCard() error {
	d.cs(false)
	d.xchg(0xff) // Dummy clock to force DO enabled.
	if err := d.waitReady(timeoutReady); err != nil {
		d.deselect()
		return err
	}
	return nil
}

// sendCommand sends a command frame and returns the R1 response. A response
// with bit 7 set after 10 polls is reported as is with a nil error; callers
// decide whether it is acceptable.
func (d *Device) sendCommand(cmd uint8, arg uint32) (byte, error) {
	if cmd&0x80 != 0 {
		cmd &= 0x7f
		r1, err := d.sendCommand(cmdAppCmd, 0)
		if err != nil || r1 > 1 {
			return r1, err
		}
	}
	if cmd != cmdStopTransmission {
		d.deselect()
		if err := d.selectCard(); err != nil {
			return 0xff, fmt.Errorf("select for %s: %w", cmdName(cmd), err)
		}
	}
	crc := byte(0x01) // Dummy CRC + stop bit.
	switch cmd {
	case cmdGoIdleState:
		crc = 0x95
	case cmdSendIfCond:
		crc = 0x87
	}
	frame := [6]byte{0x40 | cmd, byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg), crc}
	d.txMulti(frame[:])
	if cmd == cmdStopTransmission {
		d.xchg(0xff) // Discard stuff byte.
	}
	var r1 byte
	for n := 10; n > 0; n-- {
		r1 = d.xchg(0xff)
		if r1&0x80 == 0 {
			break
		}
	}
	if d.buserr != nil {
		return 0xff, d.buserr
	}
	return r1, nil
}

// receiveDataBlock waits for a start token and reads len(buf) bytes of payload and the CRC.
func (d *Device) receiveDataBlock(buf []byte) error {
	deadline := d.clock.Now().Add(timeoutToken)
	var token byte
	for {
		token = d.xchg(0xff)
		if token != 0xff || d.buserr != nil || !d.clock.Now().Before(deadline) {
			break
		}
	}
	if d.buserr != nil {
		return d.buserr
	} else if token == 0xff {
		return fmt.Errorf("%w: no data token in %v", ErrTimeout, timeoutToken)
	} else if token != tokenStartBlock {
		return fmt.Errorf("%w: %#02x", ErrDataToken, token)
	}
	d.rxMulti(buf)
	d.xchg(0xff)
	d.xchg(0xff) // Discard CRC.
	return d.buserr
}

// transmitDataBlock sends a 512 byte block preceded by token. The stop
// token is sent alone.
func (d *Device) transmitDataBlock(buf []byte, token byte) error {
	if err := d.waitReady(timeoutReady); err != nil {
		return err
	}
	d.xchg(token)
	if token == tokenStopTran {
		return d.buserr
	}
	d.txMulti(buf[:sectorSize])
	d.xchg(0xff)
	d.xchg(0xff) // Dummy CRC.
	resp := d.xchg(0xff)
	if d.buserr != nil {
		return d.buserr
	} else if resp&0x1f != 0x05 {
		return fmt.Errorf("%w: data response %#02x", ErrWriteRejected, resp)
	}
	return nil
}

func (d *Device) readSectors(dst []byte, addr uint32, count int) (err error) {
	defer d.deselect()
	if count == 1 {
		r1, err := d.sendCommand(cmdReadSingle, addr)
		if err != nil {
			return err
		} else if r1 != 0 {
			return &CommandError{Cmd: cmdReadSingle, R1: r1}
		}
		return d.receiveDataBlock(dst[:sectorSize])
	}
	r1, err := d.sendCommand(cmdReadMultiple, addr)
	if err != nil {
		return err
	} else if r1 != 0 {
		return &CommandError{Cmd: cmdReadMultiple, R1: r1}
	}
	defer func() {
		// The transfer is always stopped, even when a block failed.
		_, serr := d.sendCommand(cmdStopTransmission, 0)
		werr := d.waitReady(timeoutReady)
		err = multierr.Combine(err, serr, werr)
	}()
	for i := 0; i < count; i++ {
		if err = d.receiveDataBlock(dst[i*sectorSize : (i+1)*sectorSize]); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}

func (d *Device) writeSectors(src []byte, addr uint32, count int) (err error) {
	defer d.deselect()
	if count == 1 {
		r1, err := d.sendCommand(cmdWriteSingle, addr)
		if err != nil {
			return err
		} else if r1 != 0 {
			return &CommandError{Cmd: cmdWriteSingle, R1: r1}
		}
		return d.transmitDataBlock(src[:sectorSize], tokenStartBlock)
	}
	if d.typ&TypeSDC != 0 {
		// Pre-erase hint, result ignored.
		if _, err := d.sendCommand(acmdSetWrBlkEraseCount, uint32(count)); err != nil {
			return err
		}
	}
	r1, err := d.sendCommand(cmdWriteMultiple, addr)
	if err != nil {
		return err
	} else if r1 != 0 {
		return &CommandError{Cmd: cmdWriteMultiple, R1: r1}
	}
	defer func() {
		err = multierr.Append(err, d.transmitDataBlock(nil, tokenStopTran))
	}()
	for i := 0; i < count; i++ {
		if err = d.transmitDataBlock(src[i*sectorSize:(i+1)*sectorSize], tokenStartBlockMulti); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return nil
}
