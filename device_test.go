package fat

import (
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/soypat/fatfs/blkdev"
	"github.com/soypat/fatfs/blkdev/blkdevmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delegate routes every call on mock to dev. failRead and failWrite make the
// corresponding transfers fail while set.
func delegate(mock *blkdevmock.MockDevice, dev blkdev.Device, failRead, failWrite *bool) {
	mock.EXPECT().Initialize(gomock.Any()).DoAndReturn(dev.Initialize).AnyTimes()
	mock.EXPECT().Status(gomock.Any()).DoAndReturn(dev.Status).AnyTimes()
	mock.EXPECT().Control(gomock.Any(), gomock.Any()).DoAndReturn(dev.Control).AnyTimes()
	mock.EXPECT().ReadSectors(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(drv uint8, dst []byte, sector uint64, n int) blkdev.Result {
			if *failRead {
				return blkdev.ResultError
			}
			return dev.ReadSectors(drv, dst, sector, n)
		}).AnyTimes()
	mock.EXPECT().WriteSectors(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(drv uint8, src []byte, sector uint64, n int) blkdev.Result {
			if *failWrite {
				return blkdev.ResultError
			}
			return dev.WriteSectors(drv, src, sector, n)
		}).AnyTimes()
}

func TestMountStatus(t *testing.T) {
	tests := []struct {
		name   string
		status blkdev.Status
		mode   Mode
		want   error
	}{
		{name: "not initialized", status: blkdev.StatusNoInit, mode: ModeRead, want: frNotReady},
		{name: "no disk", status: blkdev.StatusNoInit | blkdev.StatusNoDisk, mode: ModeRW, want: frNotReady},
		{name: "write protected", status: blkdev.StatusProtect, mode: ModeRW, want: frWriteProtected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()
			dev := blkdevmock.NewMockDevice(ctrl)
			dev.EXPECT().Initialize(uint8(0)).Return(tt.status)

			var fsys FS
			err := fsys.Mount(dev, 512, tt.mode)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Equal(t, FormatAuto, fsys.Type())
		})
	}
}

func TestMountWriteProtectedReadOnly(t *testing.T) {
	ram, err := newTestVolume(4096, FormatConfig{})
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	dev := blkdevmock.NewMockDevice(ctrl)
	// A write protected medium still mounts read only.
	dev.EXPECT().Initialize(uint8(0)).Return(blkdev.StatusProtect)
	dev.EXPECT().ReadSectors(uint8(0), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ram.ReadSectors).MinTimes(1)

	var fsys FS
	require.NoError(t, fsys.Mount(dev, 512, ModeRead))
	assert.Equal(t, FormatFAT12, fsys.Type())
}

func TestMountDiskErrors(t *testing.T) {
	ram, err := newTestVolume(4096, FormatConfig{})
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	dev := blkdevmock.NewMockDevice(ctrl)
	failRead, failWrite := true, false
	delegate(dev, ram, &failRead, &failWrite)

	var fsys FS
	err = fsys.Mount(dev, 0, ModeRW)
	assert.True(t, errors.Is(err, frDiskErr), "mount with failing reads: %v", err)

	blank, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 4096})
	require.NoError(t, err)
	err = fsys.Mount(blank, 0, ModeRW)
	assert.True(t, errors.Is(err, frNoFilesystem), "mount of blank device: %v", err)
}

func TestWriteFailure(t *testing.T) {
	ram, err := newTestVolume(4096, FormatConfig{})
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	dev := blkdevmock.NewMockDevice(ctrl)
	failRead, failWrite := false, false
	delegate(dev, ram, &failRead, &failWrite)

	fsys := mountTest(t, dev, Config{})
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "/data.bin", ModeCreateAlways|ModeWrite))
	n, err := fp.Write([]byte("buffered"))
	require.NoError(t, err)
	require.Equal(t, 8, n)

	failWrite = true
	err = fp.Close()
	assert.True(t, errors.Is(err, frDiskErr), "close with failing writes: %v", err)
	// The handle stays open and dirty so the close can be retried.
	failWrite = false
	require.NoError(t, fp.Close())
	assert.Equal(t, []byte("buffered"), readFile(t, fsys, "/data.bin"))

	failRead = true
	var fi FileInfo
	fsys.invalidate_window()
	err = fsys.Stat("/data.bin", &fi)
	assert.True(t, errors.Is(err, frDiskErr), "stat with failing reads: %v", err)
}

func TestDeviceRemoved(t *testing.T) {
	ram, err := newTestVolume(4096, FormatConfig{})
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	dev := blkdevmock.NewMockDevice(ctrl)
	dev.EXPECT().Initialize(gomock.Any()).DoAndReturn(ram.Initialize).AnyTimes()
	dev.EXPECT().Control(gomock.Any(), gomock.Any()).DoAndReturn(ram.Control).AnyTimes()
	dev.EXPECT().ReadSectors(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ram.ReadSectors).AnyTimes()
	dev.EXPECT().WriteSectors(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ram.WriteSectors).AnyTimes()
	removed := false
	dev.EXPECT().Status(uint8(0)).DoAndReturn(func(uint8) blkdev.Status {
		if removed {
			return blkdev.StatusNoInit | blkdev.StatusNoDisk
		}
		return 0
	}).AnyTimes()

	fsys := mountTest(t, dev, Config{})
	writeFile(t, fsys, "/a.txt", []byte("a"))
	var fp File
	require.NoError(t, fsys.OpenFile(&fp, "/a.txt", ModeRead))
	buf := make([]byte, 1)
	_, err = fp.Read(buf)
	require.NoError(t, err)

	removed = true
	_, err = fp.Read(buf)
	assert.True(t, errors.Is(err, frNotReady), "read from removed medium: %v", err)
}
