package sdcard

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/fatfs/blkdev"
	"github.com/soypat/fatfs/blkdev/blkdevtest"
)

func newTestDevice(t *testing.T, kind simKind, sectors int) (*Device, *simCard) {
	t.Helper()
	card := newSimCard(kind, sectors)
	dev := New(card, card.CS, Config{Clock: card})
	return dev, card
}

func TestInitializeCardTypes(t *testing.T) {
	for _, tc := range []struct {
		name string
		kind simKind
		want Type
	}{
		{"SDHC", simSDHC, TypeSD2 | TypeBlock},
		{"SDv2", simSDv2, TypeSD2},
		{"SDv1", simSDv1, TypeSD1},
		{"MMC", simMMC, TypeMMC},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev, card := newTestDevice(t, tc.kind, 2048)
			st := dev.Initialize(0)
			require.Equal(t, blkdev.Status(0), st, "init error: %v", dev.Err())
			assert.Equal(t, tc.want, dev.CardType())
			assert.Equal(t, stateReady, dev.state)
			assert.Equal(t, uint32(20_000_000), card.freq, "fast clock after init")
			assert.Equal(t, uint8(cmdGoIdleState), card.log[0])

			var ct blkdev.CardType
			require.Equal(t, blkdev.ResultOK, dev.Control(0, &ct))
			assert.Equal(t, uint8(tc.want), ct.Type)
		})
	}
}

func TestInitializeFailures(t *testing.T) {
	dev, _ := newTestDevice(t, simDead, 64)
	st := dev.Initialize(0)
	assert.NotZero(t, st&blkdev.StatusNoInit)
	assert.ErrorIs(t, dev.Err(), ErrNoResponse)
	assert.Equal(t, stateFailed, dev.state)

	dev, card := newTestDevice(t, simStuck, 2048)
	start := card.now
	st = dev.Initialize(0)
	assert.NotZero(t, st&blkdev.StatusNoInit)
	assert.ErrorIs(t, dev.Err(), ErrTimeout)
	elapsed := card.now.Sub(start)
	assert.True(t, elapsed >= 1e9 && elapsed < 2e9, "init gave up after %v", elapsed)

	assert.Equal(t, blkdev.StatusNoInit, dev.Initialize(1))

	buf := make([]byte, 512)
	assert.Equal(t, blkdev.ResultNotReady, dev.ReadSectors(0, buf, 0, 1))
	assert.Equal(t, blkdev.ResultNotReady, dev.Control(0, &blkdev.Sync{}))
}

func TestCardDetectAndWriteProtect(t *testing.T) {
	card := newSimCard(simSDHC, 2048)
	present, protect := false, true
	dev := New(card, card.CS, Config{
		Clock:        card,
		CardDetect:   func() bool { return present },
		WriteProtect: func() bool { return protect },
	})
	assert.NotZero(t, dev.Initialize(0)&blkdev.StatusNoDisk)
	present = true
	st := dev.Initialize(0)
	require.Equal(t, blkdev.StatusProtect, st)
	buf := make([]byte, 512)
	assert.Equal(t, blkdev.ResultWriteProtected, dev.WriteSectors(0, buf, 0, 1))
	assert.Equal(t, blkdev.ResultOK, dev.ReadSectors(0, buf, 0, 1))
}

func TestReadWriteRoundTrip(t *testing.T) {
	for _, kind := range []simKind{simSDHC, simSDv2, simSDv1, simMMC} {
		dev, card := newTestDevice(t, kind, 1024)
		require.Zero(t, dev.Initialize(0))
		r := rand.New(rand.NewSource(int64(kind)))
		buf := make([]byte, len(card.mem))
		blkdevtest.WriteSectors(t, dev, 0, r, buf)
		blkdevtest.ReadSectors(t, dev, 0, r, buf)
		assert.True(t, bytes.Equal(buf, card.mem))
		blkdevtest.ErrorPaths(t, dev, 0)
		blkdevtest.BadDrive(t, dev, 1)
	}
}

func TestMultiBlockStop(t *testing.T) {
	dev, card := newTestDevice(t, simSDHC, 1024)
	require.Zero(t, dev.Initialize(0))
	for i := range card.mem {
		card.mem[i] = byte(i / 512)
	}
	buf := make([]byte, 4*512)
	require.Equal(t, blkdev.ResultOK, dev.ReadSectors(0, buf, 10, 4))
	assert.Equal(t, byte(13), buf[3*512])
	assert.Equal(t, 1, card.stops, "CMD12 after multi-block read")
	assert.False(t, card.reading)

	require.Equal(t, blkdev.ResultOK, dev.WriteSectors(0, buf, 100, 4))
	assert.Equal(t, 2, card.stops, "stop token after multi-block write")
	assert.Equal(t, byte(11), card.mem[101*512])
	assert.Contains(t, card.log, uint8(acmdSetWrBlkEraseCount))
}

func TestMultiBlockFailureStillStops(t *testing.T) {
	dev, card := newTestDevice(t, simSDHC, 1024)
	require.Zero(t, dev.Initialize(0))
	card.rejectWrites = true
	buf := make([]byte, 3*512)
	res := dev.WriteSectors(0, buf, 0, 3)
	assert.Equal(t, blkdev.ResultError, res)
	assert.ErrorIs(t, dev.Err(), ErrWriteRejected)
	assert.Equal(t, 1, card.stops, "stop token sent after rejected block")

	card.rejectWrites = false
	card.failBus = true
	res = dev.ReadSectors(0, buf, 0, 3)
	assert.Equal(t, blkdev.ResultError, res)
	assert.True(t, errors.Is(dev.Err(), errSimBus))
}

func TestControls(t *testing.T) {
	for _, tc := range []struct {
		kind      simKind
		sectors   int
		eraseSize uint32
	}{
		{simSDHC, 4096, 8192},
		{simSDv1, 4096, 64},
		{simMMC, 2048, 120},
	} {
		dev, card := newTestDevice(t, tc.kind, tc.sectors)
		require.Zero(t, dev.Initialize(0))

		var cnt blkdev.SectorCount
		require.Equal(t, blkdev.ResultOK, dev.Control(0, &cnt), "err: %v", dev.Err())
		assert.Equal(t, uint64(tc.sectors), cnt.Count)

		var ss blkdev.SectorSize
		require.Equal(t, blkdev.ResultOK, dev.Control(0, &ss))
		assert.Equal(t, uint16(512), ss.Size)

		var bs blkdev.BlockSize
		require.Equal(t, blkdev.ResultOK, dev.Control(0, &bs), "err: %v", dev.Err())
		assert.Equal(t, tc.eraseSize, bs.Sectors)

		var cid blkdev.CID
		require.Equal(t, blkdev.ResultOK, dev.Control(0, &cid))
		assert.Equal(t, "SDSIM01", string(cid.Reg[1:8]))

		var ocr blkdev.OCR
		require.Equal(t, blkdev.ResultOK, dev.Control(0, &ocr))
		assert.NotZero(t, ocr.Reg[0]&0x80, "power up status bit")

		require.Equal(t, blkdev.ResultOK, dev.Control(0, &blkdev.Sync{}))

		for i := range card.mem {
			card.mem[i] = 0xaa
		}
		trim := blkdev.Trim{Start: 2, End: 5}
		res := dev.Control(0, &trim)
		if tc.kind == simMMC {
			assert.Equal(t, blkdev.ResultError, res, "MMC cards do not support trim")
			continue
		}
		require.Equal(t, blkdev.ResultOK, res, "err: %v", dev.Err())
		assert.Equal(t, byte(0xaa), card.mem[2*512-1])
		assert.Equal(t, byte(0), card.mem[2*512])
		assert.Equal(t, byte(0), card.mem[6*512-1])
		assert.Equal(t, byte(0xaa), card.mem[6*512])
	}
}

func TestCSDDecode(t *testing.T) {
	card := newSimCard(simSDHC, 1<<20)
	assert.Equal(t, uint64(1<<20), csdSectorCount(card.csd()))
	card = newSimCard(simSDv1, 1<<12)
	assert.Equal(t, uint64(1<<12), csdSectorCount(card.csd()))
}

func TestCommandFrames(t *testing.T) {
	var rec recordingBus
	dev := New(&rec, nil, Config{Clock: &rec})
	dev.sendCommand(cmdGoIdleState, 0)
	dev.sendCommand(cmdSendIfCond, 0x1AA)
	dev.sendCommand(cmdReadSingle, 0x01020304)
	frames := rec.frames()
	require.Len(t, frames, 3)
	assert.Equal(t, []byte{0x40, 0, 0, 0, 0, 0x95}, frames[0])
	assert.Equal(t, []byte{0x48, 0, 0, 0x01, 0xAA, 0x87}, frames[1])
	assert.Equal(t, []byte{0x51, 1, 2, 3, 4, 0x01}, frames[2])
}

// recordingBus answers 0xFF to everything and records written bytes.
type recordingBus struct {
	written []byte
	ticks   int64
}

func (r *recordingBus) Transfer(b byte) (byte, error) {
	r.written = append(r.written, b)
	r.ticks++
	return 0xff, nil
}

func (r *recordingBus) Tx(w, rd []byte) error {
	for i := range w {
		got, _ := r.Transfer(w[i])
		if rd != nil {
			rd[i] = got
		}
	}
	return nil
}

func (r *recordingBus) Now() time.Time { return time.Unix(0, r.ticks*int64(time.Microsecond)) }

// frames extracts command frames, which are the only non 0xFF bytes written.
func (r *recordingBus) frames() (f [][]byte) {
	for i := 0; i < len(r.written); i++ {
		if r.written[i]&0xc0 == 0x40 && i+6 <= len(r.written) {
			f = append(f, r.written[i:i+6])
			i += 5
		}
	}
	return f
}
