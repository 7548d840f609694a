package blkdev_test

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/fatfs/blkdev"
	"github.com/soypat/fatfs/blkdev/blkdevtest"
	"github.com/spf13/afero"
)

func newRAM(t *testing.T, ssize, count int) *blkdev.RAM {
	t.Helper()
	ram, err := blkdev.NewRAM(blkdev.RAMConfig{SectorSize: ssize, SectorCount: count})
	if err != nil {
		t.Fatal(err)
	}
	if st := ram.Initialize(0); st != 0 {
		t.Fatalf("initialize status %v", st)
	}
	return ram
}

func TestRAM(t *testing.T) {
	for _, ssize := range []int{512, 4096} {
		ram := newRAM(t, ssize, 64)
		r := rand.New(rand.NewSource(int64(ssize)))
		buf := make([]byte, ssize*64)
		blkdevtest.ReadSectors(t, ram, 0, r, buf)
		blkdevtest.WriteSectors(t, ram, 0, r, buf)
		blkdevtest.ReadSectors(t, ram, 0, r, buf)
		blkdevtest.ErrorPaths(t, ram, 0)
		blkdevtest.BadDrive(t, ram, 1)
	}
}

func TestRAMStates(t *testing.T) {
	ram, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 8})
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 512)
	if st := ram.Status(0); st&blkdev.StatusNoInit == 0 {
		t.Errorf("status before init = %v; want noinit", st)
	}
	if res := ram.ReadSectors(0, buf, 0, 1); res != blkdev.ResultNotReady {
		t.Errorf("read before init = %v", res)
	}
	if st := ram.Initialize(1); st != blkdev.StatusNoDisk {
		t.Errorf("initialize drive 1 = %v", st)
	}
	if st := ram.Initialize(0); st != 0 {
		t.Errorf("initialize = %v", st)
	}
	if st := ram.Initialize(0); st != 0 {
		t.Errorf("second initialize = %v", st)
	}
	if res := ram.ReadSectors(1, buf, 0, 1); res != blkdev.ResultParError {
		t.Errorf("read drive 1 = %v", res)
	}
	if res := ram.WriteSectors(1, buf, 0, 1); res != blkdev.ResultParError {
		t.Errorf("write drive 1 = %v", res)
	}
	if res := ram.Control(1, &blkdev.Sync{}); res != blkdev.ResultParError {
		t.Errorf("control drive 1 = %v", res)
	}
}

func TestRAMTrim(t *testing.T) {
	ram := newRAM(t, 512, 8)
	data := ram.Bytes()
	for i := range data {
		data[i] = 0xff
	}
	if res := ram.Control(0, &blkdev.Trim{Start: 2, End: 4}); res != blkdev.ResultOK {
		t.Fatal(res)
	}
	for s := 0; s < 8; s++ {
		want := byte(0xff)
		if s >= 2 && s <= 4 {
			want = 0
		}
		for _, b := range data[s*512 : (s+1)*512] {
			if b != want {
				t.Fatalf("sector %d byte %#x; want %#x", s, b, want)
			}
		}
	}
	if res := ram.Control(0, &blkdev.Trim{Start: 4, End: 2}); res != blkdev.ResultParError {
		t.Errorf("inverted trim = %v", res)
	}
}

func TestRAMReadOnly(t *testing.T) {
	ram, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 4, ReadOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if st := ram.Initialize(0); st != blkdev.StatusProtect {
		t.Fatalf("status = %v; want protect", st)
	}
	buf := make([]byte, 512)
	if res := ram.WriteSectors(0, buf, 0, 1); res != blkdev.ResultWriteProtected {
		t.Errorf("write = %v", res)
	}
	if res := ram.ReadSectors(0, buf, 0, 1); res != blkdev.ResultOK {
		t.Errorf("read = %v", res)
	}
}

func TestResultError(t *testing.T) {
	var err error = blkdev.ResultWriteProtected
	if !errors.Is(err, blkdev.ResultWriteProtected) {
		t.Error("errors.Is failed")
	}
	if blkdev.ResultOK.Err() != nil {
		t.Error("ResultOK.Err() != nil")
	}
	if got := (blkdev.StatusNoInit | blkdev.StatusProtect).String(); got != "noinit|protect" {
		t.Errorf("status string %q", got)
	}
}

func TestStream(t *testing.T) {
	const nsect = 32
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, nsect*512), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dev, err := blkdev.NewStream(f, blkdev.StreamConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if st := dev.Initialize(0); st != 0 {
		t.Fatalf("initialize = %v err=%v", st, dev.Err())
	}
	r := rand.New(rand.NewSource(1))
	buf := make([]byte, nsect*512)
	blkdevtest.WriteSectors(t, dev, 0, r, buf)
	blkdevtest.ReadSectors(t, dev, 0, r, buf)
	blkdevtest.ErrorPaths(t, dev, 0)
	blkdevtest.BadDrive(t, dev, 1)
	if res := dev.Control(0, &blkdev.Sync{}); res != blkdev.ResultOK {
		t.Errorf("sync = %v", res)
	}
	if res := dev.ReadSectors(1, buf, 0, 1); res != blkdev.ResultParError {
		t.Errorf("read drive 1 = %v", res)
	}
}

func TestStreamAfero(t *testing.T) {
	// Any afero file serves as a stream, its size taken from Stat.
	const nsect = 24
	memfs := afero.NewMemMapFs()
	if err := afero.WriteFile(memfs, "/card.img", make([]byte, nsect*512), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := memfs.OpenFile("/card.img", os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dev, err := blkdev.NewStream(f, blkdev.StreamConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if st := dev.Initialize(0); st != 0 {
		t.Fatalf("initialize = %v err=%v", st, dev.Err())
	}
	var cnt blkdev.SectorCount
	if res := dev.Control(0, &cnt); res != blkdev.ResultOK || cnt.Count != nsect {
		t.Fatalf("sector count = %d (%v)", cnt.Count, res)
	}
	r := rand.New(rand.NewSource(4))
	buf := make([]byte, nsect*512)
	blkdevtest.WriteSectors(t, dev, 0, r, buf)
	blkdevtest.ReadSectors(t, dev, 0, r, buf)
	blkdevtest.BadDrive(t, dev, 1)
	if res := dev.Control(0, &blkdev.Sync{}); res != blkdev.ResultOK {
		t.Errorf("sync = %v", res)
	}
	onDisk, err := afero.ReadFile(memfs, "/card.img")
	if err != nil {
		t.Fatal(err)
	}
	if string(onDisk) != string(buf) {
		t.Error("stream contents differ from written sectors")
	}
}

func TestStreamBeginFailure(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x.img"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dev, err := blkdev.NewStream(f, blkdev.StreamConfig{
		SectorCount: 4,
		Begin:       func() error { return errors.New("card absent") },
	})
	if err != nil {
		t.Fatal(err)
	}
	if st := dev.Initialize(0); st&blkdev.StatusNoDisk == 0 {
		t.Errorf("initialize = %v; want nodisk", st)
	}
	if dev.Err() == nil {
		t.Error("expected recorded error")
	}
}

func TestFile(t *testing.T) {
	const nsect = 48
	path := filepath.Join(t.TempDir(), "file.img")
	if err := os.WriteFile(path, make([]byte, nsect*512), 0o644); err != nil {
		t.Fatal(err)
	}
	dev, err := blkdev.OpenFile(path, blkdev.FileConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if st := dev.Initialize(0); st != 0 {
		t.Fatalf("initialize = %v err=%v", st, dev.Err())
	}
	r := rand.New(rand.NewSource(2))
	buf := make([]byte, nsect*512)
	blkdevtest.WriteSectors(t, dev, 0, r, buf)
	blkdevtest.ReadSectors(t, dev, 0, r, buf)
	blkdevtest.ErrorPaths(t, dev, 0)
	blkdevtest.BadDrive(t, dev, 1)
	if res := dev.Control(0, &blkdev.Trim{Start: 0, End: 3}); res != blkdev.ResultOK {
		t.Errorf("trim = %v", res)
	}

	missing, _ := blkdev.OpenFile(filepath.Join(t.TempDir(), "missing.img"), blkdev.FileConfig{})
	if st := missing.Initialize(0); st&blkdev.StatusNoDisk == 0 {
		t.Errorf("missing file status = %v", st)
	}
}

func TestMulti(t *testing.T) {
	a := newRAM(t, 512, 16)
	b, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 8})
	if err != nil {
		t.Fatal(err)
	}
	m := blkdev.NewMulti(a)
	if drv := m.Add(b); drv != 1 {
		t.Fatalf("drive = %d", drv)
	}
	if st := m.Initialize(1); st != 0 {
		t.Fatalf("initialize drive 1 = %v", st)
	}
	if st := m.Initialize(2); st != blkdev.StatusNoDisk {
		t.Errorf("initialize drive 2 = %v", st)
	}
	if st := m.Status(7); st != blkdev.StatusNoDisk {
		t.Errorf("status drive 7 = %v", st)
	}
	buf := make([]byte, 512)
	if res := m.ReadSectors(2, buf, 0, 1); res != blkdev.ResultParError {
		t.Errorf("read drive 2 = %v", res)
	}
	if res := m.WriteSectors(2, buf, 0, 1); res != blkdev.ResultParError {
		t.Errorf("write drive 2 = %v", res)
	}
	if res := m.Control(2, &blkdev.Sync{}); res != blkdev.ResultParError {
		t.Errorf("control drive 2 = %v", res)
	}
	buf[0] = 0xAB
	if res := m.WriteSectors(1, buf, 3, 1); res != blkdev.ResultOK {
		t.Fatal(res)
	}
	if b.Bytes()[3*512] != 0xAB || a.Bytes()[3*512] != 0 {
		t.Error("write routed to wrong drive")
	}
	r := rand.New(rand.NewSource(3))
	blkdevtest.ReadSectors(t, m, 0, r, make([]byte, 16*512))
	blkdevtest.BadDrive(t, m, 2)
	if err := m.SyncAll(); err != nil {
		t.Error(err)
	}
}
