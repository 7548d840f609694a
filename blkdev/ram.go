package blkdev

import (
	"github.com/pkg/errors"
)

var (
	// ErrSectorSize indicates a sector size that is not one of 512, 1024, 2048 or 4096.
	ErrSectorSize = errors.New("sector size must be 512, 1024, 2048 or 4096")

	// ErrOutOfBounds indicates a transfer touching sectors beyond the end of the device.
	ErrOutOfBounds = errors.New("sector range is out of bounds")
)

// RAMConfig configures a RAM device.
type RAMConfig struct {
	// SectorSize in bytes. 0 defaults to 512.
	SectorSize int
	// SectorCount is the number of sectors of the device.
	SectorCount int
	// ReadOnly marks the medium as write protected.
	ReadOnly bool
	// Data optionally provides the backing memory. It must be at least
	// SectorSize*SectorCount bytes long. If nil memory is allocated on Initialize.
	Data []byte
}

// RAM is a volatile sector device kept in memory. It serves drive 0 only.
type RAM struct {
	data     []byte
	ssize    int
	count    int
	status   Status
	readonly bool
}

var _ Device = (*RAM)(nil)

// NewRAM returns a RAM device. The device must be initialized before use.
func NewRAM(cfg RAMConfig) (*RAM, error) {
	if cfg.SectorSize == 0 {
		cfg.SectorSize = 512
	}
	if !validSectorSize(cfg.SectorSize) {
		return nil, errors.WithStack(ErrSectorSize)
	} else if cfg.SectorCount <= 0 {
		return nil, errors.New("sector count must be positive")
	}
	if cfg.Data != nil && len(cfg.Data) < cfg.SectorSize*cfg.SectorCount {
		return nil, errors.Wrapf(ErrOutOfBounds, "backing memory %d bytes < %d sectors of %d bytes",
			len(cfg.Data), cfg.SectorCount, cfg.SectorSize)
	}
	return &RAM{
		data:     cfg.Data,
		ssize:    cfg.SectorSize,
		count:    cfg.SectorCount,
		status:   StatusNoInit,
		readonly: cfg.ReadOnly,
	}, nil
}

// Initialize allocates the backing memory on first call.
func (r *RAM) Initialize(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	}
	if r.data == nil {
		r.data = make([]byte, r.ssize*r.count)
	}
	r.status = 0
	if r.readonly {
		r.status |= StatusProtect
	}
	return r.status
}

func (r *RAM) Status(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	}
	return r.status
}

func (r *RAM) ReadSectors(drv uint8, dst []byte, sector uint64, count int) Result {
	off, res := r.check(drv, dst, sector, count)
	if res != ResultOK {
		return res
	}
	copy(dst[:count*r.ssize], r.data[off:])
	return ResultOK
}

func (r *RAM) WriteSectors(drv uint8, src []byte, sector uint64, count int) Result {
	off, res := r.check(drv, src, sector, count)
	if res != ResultOK {
		return res
	}
	if r.status&StatusProtect != 0 {
		return ResultWriteProtected
	}
	copy(r.data[off:], src[:count*r.ssize])
	return ResultOK
}

func (r *RAM) Control(drv uint8, ctl Control) Result {
	if drv != 0 {
		return ResultParError
	} else if r.status&StatusNoInit != 0 {
		return ResultNotReady
	}
	switch c := ctl.(type) {
	case *Sync:
	case *SectorCount:
		c.Count = uint64(r.count)
	case *SectorSize:
		c.Size = uint16(r.ssize)
	case *BlockSize:
		c.Sectors = 1
	case *Trim:
		if c.End < c.Start || c.End >= uint64(r.count) {
			return ResultParError
		}
		if r.status&StatusProtect != 0 {
			return ResultWriteProtected
		}
		clear(r.data[c.Start*uint64(r.ssize) : (c.End+1)*uint64(r.ssize)])
	default:
		return ResultParError
	}
	return ResultOK
}

// Bytes returns the backing memory of the device. It is nil before Initialize.
func (r *RAM) Bytes() []byte { return r.data }

func (r *RAM) check(drv uint8, buf []byte, sector uint64, count int) (int, Result) {
	if drv != 0 {
		return 0, ResultParError
	} else if r.status&StatusNoInit != 0 {
		return 0, ResultNotReady
	}
	if res := checkTransfer(buf, count, r.ssize); res != ResultOK {
		return 0, res
	}
	if sector >= uint64(r.count) || uint64(count) > uint64(r.count)-sector {
		return 0, ResultError
	}
	return int(sector) * r.ssize, ResultOK
}

func validSectorSize(ss int) bool {
	return ss == 512 || ss == 1024 || ss == 2048 || ss == 4096
}
