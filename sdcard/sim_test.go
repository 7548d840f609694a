package sdcard

import (
	"errors"
	"time"
)

type simKind uint8

const (
	simSDHC  simKind = iota // SDv2, block addressing.
	simSDv2                 // SDv2, byte addressing.
	simSDv1                 // SDv1.
	simMMC                  // MMCv3.
	simDead                 // Never answers.
	simStuck                // SDv2 that never leaves idle.
)

// simCard emulates the SPI side of an SD/MMC card byte by byte.
// Its clock advances with every byte exchanged.
type simCard struct {
	kind     simKind
	mem      []byte
	now      time.Time
	selected bool
	idle     bool
	appcmd   bool
	polls    int // op-cond polls answered idle before ready.

	cmd []byte
	out []byte

	// Multi-block read streaming.
	reading  bool
	readAddr uint64

	// Write reception.
	writing   int // 0 none, 1 single, 2 multi.
	writeAddr uint64
	rx        []byte
	rxActive  bool

	rejectWrites bool
	failBus      bool
	busyBytes    int
	log          []uint8 // command indices received.
	stops        int     // CMD12 and stop tokens received.
	erased       [2]uint64
	freq         uint32
}

const simByteTime = 10 * time.Microsecond

func newSimCard(kind simKind, sectors int) *simCard {
	return &simCard{
		kind:      kind,
		mem:       make([]byte, sectors*512),
		now:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		polls:     3,
		busyBytes: 4,
	}
}

func (c *simCard) Now() time.Time { return c.now }

func (c *simCard) SetFrequency(hz uint32) error { c.freq = hz; return nil }

func (c *simCard) CS(level bool) {
	c.selected = !level
	if level {
		c.cmd = c.cmd[:0]
	}
}

func (c *simCard) Tx(w, r []byte) error {
	n := len(w)
	if n == 0 {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		b := byte(0xff)
		if w != nil {
			b = w[i]
		}
		got, err := c.Transfer(b)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = got
		}
	}
	return nil
}

var errSimBus = errors.New("sim: bus fault")

func (c *simCard) Transfer(b byte) (byte, error) {
	c.now = c.now.Add(simByteTime)
	if c.failBus {
		return 0, errSimBus
	}
	if !c.selected || c.kind == simDead {
		return 0xff, nil
	}
	if c.rxActive {
		c.rx = append(c.rx, b)
		if len(c.rx) == 512+2 {
			c.rxActive = false
			c.finishWriteBlock()
		}
		return 0xff, nil
	}
	if len(c.cmd) > 0 {
		c.cmd = append(c.cmd, b)
		if len(c.cmd) == 6 {
			c.command()
			c.cmd = c.cmd[:0]
		}
		return 0xff, nil
	}
	if b&0xc0 == 0x40 {
		c.cmd = append(c.cmd, b)
		return 0xff, nil
	}
	if c.writing != 0 && len(c.out) == 0 {
		switch {
		case b == tokenStartBlock && c.writing == 1, b == tokenStartBlockMulti && c.writing == 2:
			c.rxActive = true
			c.rx = c.rx[:0]
			return 0xff, nil
		case b == tokenStopTran && c.writing == 2:
			c.writing = 0
			c.stops++
			c.queueBusy()
			return 0xff, nil
		}
	}
	if len(c.out) == 0 && c.reading {
		if c.readAddr+512 > uint64(len(c.mem)) {
			c.out = append(c.out, 0xff, 0x08) // Out of range error token.
			c.reading = false
		} else {
			c.queueBlock(c.mem[c.readAddr : c.readAddr+512])
			c.readAddr += 512
		}
	}
	if len(c.out) == 0 {
		return 0xff, nil
	}
	r := c.out[0]
	c.out = c.out[1:]
	return r, nil
}

func (c *simCard) queueBusy() {
	for i := 0; i < c.busyBytes; i++ {
		c.out = append(c.out, 0x00)
	}
}

func (c *simCard) queueBlock(data []byte) {
	c.out = append(c.out, 0xff, tokenStartBlock)
	c.out = append(c.out, data...)
	c.out = append(c.out, 0x00, 0x00)
}

func (c *simCard) finishWriteBlock() {
	if c.rejectWrites || c.writeAddr+512 > uint64(len(c.mem)) {
		c.out = append(c.out, 0x0D) // Write error.
		if c.writing == 1 {
			c.writing = 0
		}
		return
	}
	copy(c.mem[c.writeAddr:], c.rx[:512])
	c.writeAddr += 512
	c.out = append(c.out, 0x05)
	c.queueBusy()
	if c.writing == 1 {
		c.writing = 0
	}
}

func (c *simCard) r1() byte {
	if c.idle {
		return 0x01
	}
	return 0x00
}

func (c *simCard) addr(arg uint32) uint64 {
	if c.kind == simSDHC {
		return uint64(arg) * 512
	}
	return uint64(arg)
}

func (c *simCard) command() {
	idx := c.cmd[0] & 0x3f
	arg := uint32(c.cmd[1])<<24 | uint32(c.cmd[2])<<16 | uint32(c.cmd[3])<<8 | uint32(c.cmd[4])
	app := c.appcmd
	c.appcmd = false
	if app {
		c.log = append(c.log, idx|0x80)
	} else {
		c.log = append(c.log, idx)
	}
	c.out = c.out[:0]
	if idx == cmdStopTransmission {
		c.reading = false
		c.stops++
		c.out = append(c.out, 0xff, 0xff, 0x00) // Stuff byte, NCR, R1.
		return
	}
	c.out = append(c.out, 0xff) // NCR.
	illegal := byte(0x04) | c.r1()
	switch {
	case idx == cmdGoIdleState:
		c.idle = true
		c.out = append(c.out, 0x01)
	case idx == cmdSendIfCond:
		if c.kind != simSDHC && c.kind != simSDv2 && c.kind != simStuck {
			c.out = append(c.out, illegal)
			return
		}
		c.out = append(c.out, c.r1(), 0x00, 0x00, byte(arg>>8)&0x0f, byte(arg))
	case idx == cmdAppCmd:
		if c.kind == simMMC {
			c.out = append(c.out, illegal)
			return
		}
		c.appcmd = true
		c.out = append(c.out, c.r1())
	case app && idx == 41, !app && idx == cmdSendOpCond:
		if app == (c.kind == simMMC) {
			c.out = append(c.out, illegal)
			return
		}
		if c.kind != simStuck {
			if c.polls > 0 {
				c.polls--
			} else {
				c.idle = false
			}
		}
		c.out = append(c.out, c.r1())
	case idx == cmdReadOCR:
		ocr0 := byte(0x80)
		if c.kind == simSDHC {
			ocr0 |= 0x40
		}
		c.out = append(c.out, c.r1(), ocr0, 0xff, 0x80, 0x00)
	case idx == cmdSetBlockLen:
		c.out = append(c.out, c.r1())
	case idx == cmdSendCSD:
		c.out = append(c.out, c.r1())
		csd := c.csd()
		c.queueBlock(csd[:])
	case idx == cmdSendCID:
		c.out = append(c.out, c.r1())
		cid := [16]byte{0x03, 'S', 'D', 'S', 'I', 'M', '0', '1'}
		c.queueBlock(cid[:])
	case app && idx == 13:
		c.out = append(c.out, c.r1(), 0x00)
		var status [64]byte
		status[10] = 0x90 // AU_SIZE=9.
		c.queueBlock(status[:])
	case app && idx == 23:
		c.out = append(c.out, c.r1())
	case idx == cmdReadSingle, idx == cmdReadMultiple:
		a := c.addr(arg)
		if a+512 > uint64(len(c.mem)) {
			c.out = append(c.out, 0x40) // Parameter error.
			return
		}
		c.out = append(c.out, c.r1())
		if idx == cmdReadSingle {
			c.queueBlock(c.mem[a : a+512])
		} else {
			c.reading = true
			c.readAddr = a
		}
	case idx == cmdWriteSingle, idx == cmdWriteMultiple:
		a := c.addr(arg)
		if a+512 > uint64(len(c.mem)) {
			c.out = append(c.out, 0x40)
			return
		}
		c.out = append(c.out, c.r1())
		c.writeAddr = a
		c.writing = 1
		if idx == cmdWriteMultiple {
			c.writing = 2
		}
	case idx == cmdEraseStart:
		c.erased[0] = c.addr(arg)
		c.out = append(c.out, c.r1())
	case idx == cmdEraseEnd:
		c.erased[1] = c.addr(arg)
		c.out = append(c.out, c.r1())
	case idx == cmdErase:
		c.out = append(c.out, c.r1())
		clear(c.mem[c.erased[0] : c.erased[1]+512])
		c.queueBusy()
	default:
		c.out = append(c.out, illegal)
	}
}

// csd builds a CSD register describing the card memory.
func (c *simCard) csd() (csd [16]byte) {
	sectors := uint64(len(c.mem) / 512)
	switch c.kind {
	case simSDHC, simSDv2:
		csd[0] = 0x40
		csize := sectors/1024 - 1
		csd[7] = byte(csize>>16) & 63
		csd[8] = byte(csize >> 8)
		csd[9] = byte(csize)
	default:
		// READ_BL_LEN=9, C_SIZE_MULT=3: sectors = (C_SIZE+1) << 5.
		csize := sectors>>5 - 1
		csd[5] = 9
		csd[6] = byte(csize>>10) & 3
		csd[7] = byte(csize >> 2)
		csd[8] = byte(csize&3) << 6
		csd[9] = 0x01
		csd[10] = 0x80 | 0x40 | 0x1f // C_SIZE_MULT low bit, ERASE_BLK_EN, SECTOR_SIZE high bits.
		csd[11] = 0x80
		csd[13] = 0x40
	}
	return csd
}
