package blkdev

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// FileConfig configures a File device.
type FileConfig struct {
	// SectorSize in bytes. 0 queries the OS for block devices and defaults to 512 otherwise.
	SectorSize int
	// ReadOnly opens the file read only and reports the medium as write protected.
	ReadOnly bool
	Logger   *slog.Logger
}

// File is a sector device backed by an OS file, either a regular disk image
// or a block device node such as /dev/sdb.
type File struct {
	f       *os.File
	path    string
	cfg     FileConfig
	ssize   int
	count   uint64
	isBlock bool
	status  Status
	err     error
}

var _ Device = (*File)(nil)

// OpenFile opens the file at path as a block device. The file is opened
// lazily by Initialize so a missing file reports StatusNoDisk.
func OpenFile(path string, cfg FileConfig) (*File, error) {
	if cfg.SectorSize != 0 && !validSectorSize(cfg.SectorSize) {
		return nil, errors.WithStack(ErrSectorSize)
	}
	return &File{path: path, cfg: cfg, status: StatusNoInit}, nil
}

func (f *File) Initialize(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	} else if f.f != nil {
		return f.status
	}
	flag := os.O_RDWR
	if f.cfg.ReadOnly {
		flag = os.O_RDONLY
	}
	fp, err := os.OpenFile(f.path, flag, 0)
	if err != nil {
		f.fail("open", errors.Wrap(err, "open device file"))
		f.status = StatusNoInit | StatusNoDisk
		return f.status
	}
	size, ssize, isBlock, err := fileGeometry(fp)
	if err != nil {
		fp.Close()
		f.fail("geometry", err)
		f.status = StatusNoInit | StatusNoDisk
		return f.status
	}
	if f.cfg.SectorSize != 0 {
		ssize = f.cfg.SectorSize
	} else if !validSectorSize(ssize) {
		ssize = 512
	}
	f.f = fp
	f.ssize = ssize
	f.isBlock = isBlock
	f.count = uint64(size) / uint64(ssize)
	f.status = 0
	if f.cfg.ReadOnly {
		f.status |= StatusProtect
	}
	if f.cfg.Logger != nil {
		f.cfg.Logger.Debug("blkdev:file-open", slog.String("path", f.path),
			slog.Int64("size", size), slog.Int("ssize", ssize), slog.Bool("blockdev", isBlock))
	}
	return f.status
}

func (f *File) Status(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	}
	return f.status
}

func (f *File) ReadSectors(drv uint8, dst []byte, sector uint64, count int) Result {
	off, n, res := f.check(drv, dst, sector, count)
	if res != ResultOK {
		return res
	}
	if err := pread(f.f, dst[:n], off); err != nil {
		f.fail("read", errors.Wrapf(err, "read sectors [%d, %d)", sector, sector+uint64(count)))
		return ResultError
	}
	return ResultOK
}

func (f *File) WriteSectors(drv uint8, src []byte, sector uint64, count int) Result {
	off, n, res := f.check(drv, src, sector, count)
	if res != ResultOK {
		return res
	} else if f.status&StatusProtect != 0 {
		return ResultWriteProtected
	}
	if err := pwrite(f.f, src[:n], off); err != nil {
		f.fail("write", errors.Wrapf(err, "write sectors [%d, %d)", sector, sector+uint64(count)))
		return ResultError
	}
	return ResultOK
}

func (f *File) Control(drv uint8, ctl Control) Result {
	if drv != 0 {
		return ResultParError
	} else if f.status&StatusNoInit != 0 {
		return ResultNotReady
	}
	switch c := ctl.(type) {
	case *Sync:
		if f.status&StatusProtect != 0 {
			break
		}
		if err := fdatasync(f.f); err != nil {
			f.fail("sync", errors.Wrap(err, "sync"))
			return ResultError
		}
	case *SectorCount:
		c.Count = f.count
	case *SectorSize:
		c.Size = uint16(f.ssize)
	case *BlockSize:
		c.Sectors = 1
	case *Trim:
		if c.End < c.Start || c.End >= f.count {
			return ResultParError
		} else if f.status&StatusProtect != 0 {
			break
		}
		ss := int64(f.ssize)
		err := discard(f.f, f.isBlock, int64(c.Start)*ss, int64(c.End-c.Start+1)*ss)
		if err != nil {
			// Trim is advisory.
			f.fail("trim", errors.Wrap(err, "discard"))
		}
	default:
		return ResultParError
	}
	return ResultOK
}

// Close syncs and closes the underlying file. The device returns to the
// uninitialized state.
func (f *File) Close() error {
	if f.f == nil {
		return nil
	}
	var err error
	if f.status&StatusProtect == 0 {
		err = fdatasync(f.f)
	}
	if cerr := f.f.Close(); err == nil {
		err = cerr
	}
	f.f = nil
	f.status = StatusNoInit
	return errors.Wrap(err, "close device file")
}

// Err returns the last error encountered by the device.
func (f *File) Err() error { return f.err }

func (f *File) check(drv uint8, buf []byte, sector uint64, count int) (off int64, n int, res Result) {
	if drv != 0 {
		return 0, 0, ResultParError
	} else if f.status&StatusNoInit != 0 {
		return 0, 0, ResultNotReady
	}
	if res = checkTransfer(buf, count, f.ssize); res != ResultOK {
		return 0, 0, res
	}
	if sector >= f.count || uint64(count) > f.count-sector {
		f.fail("bounds", errors.Wrapf(ErrOutOfBounds, "[%d, %d)", sector, sector+uint64(count)))
		return 0, 0, ResultError
	}
	return int64(sector) * int64(f.ssize), count * f.ssize, ResultOK
}

func (f *File) fail(op string, err error) {
	f.err = err
	if f.cfg.Logger != nil {
		f.cfg.Logger.Error("blkdev:file", slog.String("op", op), slog.String("path", f.path), slog.String("err", err.Error()))
	}
}
