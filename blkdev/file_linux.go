package blkdev

import (
	"io"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func fileGeometry(f *os.File) (size int64, ssize int, isBlock bool, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, false, errors.Wrap(err, "stat")
	}
	if info.Mode()&os.ModeDevice == 0 {
		return info.Size(), 512, false, nil
	}
	fd := f.Fd()
	var sz uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&sz))); errno != 0 {
		return 0, 0, true, errors.Wrap(errno, "ioctl BLKGETSIZE64")
	}
	ss, err := unix.IoctlGetInt(int(fd), unix.BLKSSZGET)
	if err != nil {
		return 0, 0, true, errors.Wrap(err, "ioctl BLKSSZGET")
	}
	return int64(sz), ss, true, nil
}

func pread(f *os.File, p []byte, off int64) error {
	fd := int(f.Fd())
	for len(p) > 0 {
		n, err := unix.Pread(fd, p, off)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return err
		} else if n == 0 {
			return io.ErrUnexpectedEOF
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func pwrite(f *os.File, p []byte, off int64) error {
	fd := int(f.Fd())
	for len(p) > 0 {
		n, err := unix.Pwrite(fd, p, off)
		if err == unix.EINTR {
			continue
		} else if err != nil {
			return err
		}
		p = p[n:]
		off += int64(n)
	}
	return nil
}

func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}

func discard(f *os.File, isBlock bool, off, length int64) error {
	fd := f.Fd()
	if isBlock {
		r := [2]uint64{uint64(off), uint64(length)}
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, unix.BLKDISCARD, uintptr(unsafe.Pointer(&r[0]))); errno != 0 {
			return errno
		}
		return nil
	}
	return unix.Fallocate(int(fd), unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, off, length)
}
