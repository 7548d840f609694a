// Package blkdevtest is a test library for implementations of blkdev.Device.
package blkdevtest

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/soypat/fatfs/blkdev"
)

const numIterations = 100

// geometry queries the sector size and count of an initialized drive.
func geometry(t *testing.T, dev blkdev.Device, drv uint8) (ssize int, count uint64) {
	t.Helper()
	var sz blkdev.SectorSize
	var cnt blkdev.SectorCount
	if res := dev.Control(drv, &sz); res != blkdev.ResultOK {
		t.Fatalf("SectorSize control: %v", res)
	}
	if res := dev.Control(drv, &cnt); res != blkdev.ResultOK {
		t.Fatalf("SectorCount control: %v", res)
	}
	if cnt.Count == 0 {
		t.Fatal("device reports zero sectors")
	}
	return int(sz.Size), cnt.Count
}

// maxCount limits random transfers so large devices stay fast to test.
const maxCount = 64

func randomRange(r *rand.Rand, count uint64) (sector uint64, n int) {
	sector = uint64(r.Int63n(int64(count)))
	left := count - sector
	if left > maxCount {
		left = maxCount
	}
	n = int(r.Int63n(int64(left))) + 1
	return sector, n
}

// ReadSectors tests ReadSectors of an initialized drive. buf must hold the
// same contents as the drive.
func ReadSectors(t *testing.T, dev blkdev.Device, drv uint8, r *rand.Rand, buf []byte) {
	ssize, count := geometry(t, dev, drv)
	if uint64(len(buf)) != count*uint64(ssize) {
		t.Fatalf("len(buf) = %v; want %v", len(buf), count*uint64(ssize))
	}
	for i := 0; i < numIterations; i++ {
		sector, n := randomRange(r, count)
		off := int(sector) * ssize
		expected := buf[off : off+n*ssize]
		actual := make([]byte, n*ssize)
		if res := dev.ReadSectors(drv, actual, sector, n); res != blkdev.ResultOK {
			t.Errorf("reading %v sectors from %v: %v", n, sector, res)
			continue
		}
		if !bytes.Equal(actual, expected) {
			t.Errorf("mismatched data for %v sector read from %v", n, sector)
		}
	}
}

// WriteSectors tests that sectors written are read back unchanged and that
// sectors outside the written range are untouched. buf must hold the same
// contents as the drive and is updated to match it.
func WriteSectors(t *testing.T, dev blkdev.Device, drv uint8, r *rand.Rand, buf []byte) {
	ssize, count := geometry(t, dev, drv)
	if uint64(len(buf)) != count*uint64(ssize) {
		t.Fatalf("len(buf) = %v; want %v", len(buf), count*uint64(ssize))
	}
	for i := 0; i < numIterations; i++ {
		sector, n := randomRange(r, count)
		expected := make([]byte, n*ssize)
		r.Read(expected)
		if res := dev.WriteSectors(drv, expected, sector, n); res != blkdev.ResultOK {
			t.Errorf("writing %v sectors to %v: %v", n, sector, res)
			continue
		}
		copy(buf[int(sector)*ssize:], expected)
	}
	actual := make([]byte, ssize)
	for s := uint64(0); s < count; s++ {
		if res := dev.ReadSectors(drv, actual, s, 1); res != blkdev.ResultOK {
			t.Fatalf("reading back sector %v: %v", s, res)
		}
		if !bytes.Equal(actual, buf[int(s)*ssize:int(s+1)*ssize]) {
			t.Fatalf("device contents differ from expected at sector %v", s)
		}
	}
}

// ErrorPaths tests that invalid arguments are rejected with the contract's results.
func ErrorPaths(t *testing.T, dev blkdev.Device, drv uint8) {
	ssize, count := geometry(t, dev, drv)
	p := make([]byte, 2*ssize)
	if res := dev.ReadSectors(drv, p, 0, 0); res != blkdev.ResultParError {
		t.Errorf("read of zero sectors = %v; want %v", res, blkdev.ResultParError)
	}
	if res := dev.WriteSectors(drv, p, 0, 0); res != blkdev.ResultParError {
		t.Errorf("write of zero sectors = %v; want %v", res, blkdev.ResultParError)
	}
	if res := dev.ReadSectors(drv, p[:ssize-1], 0, 1); res != blkdev.ResultParError {
		t.Errorf("read into short buffer = %v; want %v", res, blkdev.ResultParError)
	}
	if res := dev.ReadSectors(drv, p, count-1, 2); res == blkdev.ResultOK {
		t.Error("read of out of bounds range succeeded")
	}
	if res := dev.WriteSectors(drv, p, count-1, 2); res == blkdev.ResultOK {
		t.Error("write of out of bounds range succeeded")
	}
	if res := dev.Control(drv, unknownControl{}); res != blkdev.ResultParError {
		t.Errorf("unknown control = %v; want %v", res, blkdev.ResultParError)
	}
}

// BadDrive tests that transfers and controls addressed to drv, a drive
// number dev does not serve, fail with ResultParError.
func BadDrive(t *testing.T, dev blkdev.Device, drv uint8) {
	p := make([]byte, 4096)
	if res := dev.ReadSectors(drv, p, 0, 1); res != blkdev.ResultParError {
		t.Errorf("read of drive %d = %v; want %v", drv, res, blkdev.ResultParError)
	}
	if res := dev.WriteSectors(drv, p, 0, 1); res != blkdev.ResultParError {
		t.Errorf("write of drive %d = %v; want %v", drv, res, blkdev.ResultParError)
	}
	if res := dev.Control(drv, &blkdev.Sync{}); res != blkdev.ResultParError {
		t.Errorf("sync of drive %d = %v; want %v", drv, res, blkdev.ResultParError)
	}
}

type unknownControl struct{ blkdev.Control }
