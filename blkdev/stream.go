package blkdev

import (
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
)

// ReadWriterAt is the byte-addressed storage a Stream device runs over,
// typically an *os.File holding a disk image.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Syncer is implemented by streams that buffer writes.
type Syncer interface {
	Sync() error
}

// Discarder is implemented by streams able to release a byte range.
type Discarder interface {
	Discard(off, length int64) error
}

// StreamConfig configures a Stream device.
type StreamConfig struct {
	// SectorSize in bytes. 0 defaults to 512.
	SectorSize int
	// SectorCount of the device. If zero it is derived from the stream size
	// on Initialize, which requires the stream to implement Size, Stat or io.Seeker.
	SectorCount uint64
	// ReadOnly marks the medium as write protected.
	ReadOnly bool
	// Begin is called on Initialize. A non-nil error reports no disk.
	Begin  func() error
	Logger *slog.Logger
}

// Stream adapts a ReadWriterAt into a sector device for drive 0.
type Stream struct {
	rw     ReadWriterAt
	cfg    StreamConfig
	status Status
	count  uint64
	err    error
}

var _ Device = (*Stream)(nil)

// NewStream returns a Stream device over rw.
func NewStream(rw ReadWriterAt, cfg StreamConfig) (*Stream, error) {
	if cfg.SectorSize == 0 {
		cfg.SectorSize = 512
	}
	if rw == nil {
		return nil, errors.New("nil stream")
	} else if !validSectorSize(cfg.SectorSize) {
		return nil, errors.WithStack(ErrSectorSize)
	}
	return &Stream{rw: rw, cfg: cfg, status: StatusNoInit}, nil
}

func (s *Stream) Initialize(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	}
	if s.cfg.Begin != nil {
		if err := s.cfg.Begin(); err != nil {
			s.fail("begin", errors.Wrap(err, "stream begin"))
			s.status = StatusNoInit | StatusNoDisk
			return s.status
		}
	}
	s.count = s.cfg.SectorCount
	if s.count == 0 {
		size, err := streamSize(s.rw)
		if err != nil {
			s.fail("size", err)
			s.status = StatusNoInit | StatusNoDisk
			return s.status
		}
		s.count = uint64(size) / uint64(s.cfg.SectorSize)
	}
	s.status = 0
	if s.cfg.ReadOnly {
		s.status |= StatusProtect
	}
	return s.status
}

func (s *Stream) Status(drv uint8) Status {
	if drv != 0 {
		return StatusNoDisk
	}
	return s.status
}

func (s *Stream) ReadSectors(drv uint8, dst []byte, sector uint64, count int) Result {
	off, n, res := s.check(drv, dst, sector, count)
	if res != ResultOK {
		return res
	}
	_, err := s.rw.ReadAt(dst[:n], off)
	if err != nil && !(err == io.EOF && s.cfg.SectorCount != 0) {
		s.fail("read", errors.Wrapf(err, "read sectors [%d, %d)", sector, sector+uint64(count)))
		return ResultError
	}
	return ResultOK
}

func (s *Stream) WriteSectors(drv uint8, src []byte, sector uint64, count int) Result {
	off, n, res := s.check(drv, src, sector, count)
	if res != ResultOK {
		return res
	} else if s.status&StatusProtect != 0 {
		return ResultWriteProtected
	}
	_, err := s.rw.WriteAt(src[:n], off)
	if err != nil {
		s.fail("write", errors.Wrapf(err, "write sectors [%d, %d)", sector, sector+uint64(count)))
		return ResultError
	}
	return ResultOK
}

func (s *Stream) Control(drv uint8, ctl Control) Result {
	if drv != 0 {
		return ResultParError
	} else if s.status&StatusNoInit != 0 {
		return ResultNotReady
	}
	switch c := ctl.(type) {
	case *Sync:
		if syncer, ok := s.rw.(Syncer); ok {
			if err := syncer.Sync(); err != nil {
				s.fail("sync", errors.Wrap(err, "sync"))
				return ResultError
			}
		}
	case *SectorCount:
		c.Count = s.count
	case *SectorSize:
		c.Size = uint16(s.cfg.SectorSize)
	case *BlockSize:
		c.Sectors = 1
	case *Trim:
		if c.End < c.Start || c.End >= s.count {
			return ResultParError
		}
		d, ok := s.rw.(Discarder)
		if !ok || s.status&StatusProtect != 0 {
			break // Advisory.
		}
		ss := int64(s.cfg.SectorSize)
		if err := d.Discard(int64(c.Start)*ss, int64(c.End-c.Start+1)*ss); err != nil {
			s.fail("trim", errors.Wrap(err, "discard"))
			return ResultError
		}
	default:
		return ResultParError
	}
	return ResultOK
}

// Err returns the last error encountered by the device.
func (s *Stream) Err() error { return s.err }

func (s *Stream) check(drv uint8, buf []byte, sector uint64, count int) (off int64, n int, res Result) {
	if drv != 0 {
		return 0, 0, ResultParError
	} else if s.status&StatusNoInit != 0 {
		return 0, 0, ResultNotReady
	}
	if res = checkTransfer(buf, count, s.cfg.SectorSize); res != ResultOK {
		return 0, 0, res
	}
	if sector >= s.count || uint64(count) > s.count-sector {
		s.fail("bounds", errors.Wrapf(ErrOutOfBounds, "[%d, %d)", sector, sector+uint64(count)))
		return 0, 0, ResultError
	}
	return int64(sector) * int64(s.cfg.SectorSize), count * s.cfg.SectorSize, ResultOK
}

func (s *Stream) fail(op string, err error) {
	s.err = err
	if s.cfg.Logger != nil {
		s.cfg.Logger.Error("blkdev:stream", slog.String("op", op), slog.String("err", err.Error()))
	}
}

func streamSize(rw any) (int64, error) {
	switch v := rw.(type) {
	case interface{ Size() int64 }:
		return v.Size(), nil
	case interface{ Stat() (os.FileInfo, error) }:
		info, err := v.Stat()
		if err != nil {
			return 0, errors.Wrap(err, "stat stream")
		}
		return info.Size(), nil
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, errors.Wrap(err, "seek stream")
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, errors.Wrap(err, "seek stream end")
		}
		_, err = v.Seek(cur, io.SeekStart)
		return end, errors.Wrap(err, "seek stream back")
	}
	return 0, errors.New("stream size unknown: set StreamConfig.SectorCount")
}
