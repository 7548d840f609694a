package sdcard

import (
	"fmt"

	"github.com/soypat/fatfs/blkdev"
)

func (d *Device) Control(drv uint8, ctl blkdev.Control) blkdev.Result {
	if drv != 0 {
		return blkdev.ResultParError
	} else if d.stat&blkdev.StatusNoInit != 0 {
		d.err = ErrNotInitialized
		return blkdev.ResultNotReady
	}
	d.buserr = nil
	var err error
	switch c := ctl.(type) {
	case *blkdev.Sync:
		err = d.selectCard()
		d.deselect()
	case *blkdev.SectorCount:
		var csd [16]byte
		if err = d.readRegister(cmdSendCSD, csd[:]); err == nil {
			c.Count = csdSectorCount(csd)
		}
	case *blkdev.SectorSize:
		c.Size = sectorSize
	case *blkdev.BlockSize:
		c.Sectors, err = d.eraseBlockSize()
	case *blkdev.Trim:
		err = d.trim(c.Start, c.End)
	case *blkdev.CardType:
		c.Type = uint8(d.typ)
	case *blkdev.CSD:
		err = d.readRegister(cmdSendCSD, c.Reg[:])
	case *blkdev.CID:
		err = d.readRegister(cmdSendCID, c.Reg[:])
	case *blkdev.OCR:
		err = d.readOCR(c.Reg[:])
	default:
		return blkdev.ResultParError
	}
	if err != nil {
		d.fail("control", fmt.Errorf("%T: %w", ctl, err))
		return blkdev.ResultError
	}
	return blkdev.ResultOK
}

// readRegister reads the 16 byte CSD or CID register.
func (d *Device) readRegister(cmd uint8, reg []byte) error {
	defer d.deselect()
	r1, err := d.sendCommand(cmd, 0)
	if err != nil {
		return err
	} else if r1 != 0 {
		return &CommandError{Cmd: cmd, R1: r1}
	}
	return d.receiveDataBlock(reg[:16])
}

func (d *Device) readOCR(ocr []byte) error {
	defer d.deselect()
	r1, err := d.sendCommand(cmdReadOCR, 0)
	if err != nil {
		return err
	} else if r1 != 0 {
		return &CommandError{Cmd: cmdReadOCR, R1: r1}
	}
	d.rxMulti(ocr[:4])
	return d.buserr
}

// eraseBlockSize returns the erase block size in sectors.
func (d *Device) eraseBlockSize() (uint32, error) {
	if d.typ&TypeSD2 != 0 {
		// Read the AU size from the SD status.
		defer d.deselect()
		r1, err := d.sendCommand(acmdSDStatus, 0)
		if err != nil {
			return 0, err
		} else if r1 != 0 {
			return 0, &CommandError{Cmd: acmdSDStatus, R1: r1}
		}
		d.xchg(0xff) // Second byte of R2.
		var status [16]byte
		if err := d.receiveDataBlock(status[:]); err != nil {
			return 0, err
		}
		for n := 64 - 16; n > 0; n-- {
			d.xchg(0xff) // Purge trailing data.
		}
		return 16 << (status[10] >> 4), d.buserr
	}
	var csd [16]byte
	if err := d.readRegister(cmdSendCSD, csd[:]); err != nil {
		return 0, err
	}
	return csdEraseBlock(csd, d.typ), nil
}

func (d *Device) trim(start, end uint64) error {
	if d.typ&TypeSDC == 0 {
		return fmt.Errorf("sdcard: trim unsupported by %v", d.typ)
	} else if end < start {
		return fmt.Errorf("sdcard: invalid trim range [%d, %d]", start, end)
	}
	var csd [16]byte
	if err := d.readRegister(cmdSendCSD, csd[:]); err != nil {
		return err
	}
	if csd[0]>>6 == 0 && csd[10]&0x40 == 0 {
		return fmt.Errorf("sdcard: card does not support sector erase")
	}
	st, ok1 := d.address(start)
	ed, ok2 := d.address(end)
	if !ok1 || !ok2 {
		return fmt.Errorf("sdcard: trim range [%d, %d] out of address space", start, end)
	}
	defer d.deselect()
	for _, c := range [...]struct {
		cmd uint8
		arg uint32
	}{{cmdEraseStart, st}, {cmdEraseEnd, ed}, {cmdErase, 0}} {
		r1, err := d.sendCommand(c.cmd, c.arg)
		if err != nil {
			return err
		} else if r1 != 0 {
			return &CommandError{Cmd: c.cmd, R1: r1}
		}
	}
	return d.waitReady(timeoutErase)
}

// csdSectorCount decodes the device capacity in 512 byte sectors.
func csdSectorCount(csd [16]byte) uint64 {
	if csd[0]>>6 == 1 {
		// SDC ver 2.00.
		csize := uint64(csd[9]) + uint64(csd[8])<<8 + uint64(csd[7]&63)<<16 + 1
		return csize << 10
	}
	// SDC ver 1.XX or MMC ver 3.
	n := uint(csd[5]&15) + uint(csd[10]&128)>>7 + uint(csd[9]&3)<<1 + 2
	csize := uint64(csd[8]>>6) + uint64(csd[7])<<2 + uint64(csd[6]&3)<<10 + 1
	if n < 9 {
		return csize >> (9 - n)
	}
	return csize << (n - 9)
}

// csdEraseBlock decodes the erase block size in sectors of SDv1 and MMC cards.
func csdEraseBlock(csd [16]byte, typ Type) uint32 {
	if typ&TypeSD1 != 0 {
		size := uint32(csd[10]&63)<<1 + uint32(csd[11]&128)>>7 + 1
		shift := int(csd[13]>>6) - 1
		if shift < 0 {
			shift = 0
		}
		return size << shift
	}
	return (uint32(csd[10]&124)>>2 + 1) * (uint32(csd[11]&3)<<3 + uint32(csd[11]&224)>>5 + 1)
}
