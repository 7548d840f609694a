//go:build !linux

package blkdev

import (
	"os"

	"github.com/pkg/errors"
)

func fileGeometry(f *os.File) (size int64, ssize int, isBlock bool, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, 0, false, errors.Wrap(err, "stat")
	}
	return info.Size(), 512, false, nil
}

func pread(f *os.File, p []byte, off int64) error {
	_, err := f.ReadAt(p, off)
	return err
}

func pwrite(f *os.File, p []byte, off int64) error {
	_, err := f.WriteAt(p, off)
	return err
}

func fdatasync(f *os.File) error { return f.Sync() }

func discard(f *os.File, isBlock bool, off, length int64) error {
	return nil // Not supported, trim is advisory.
}
