package fat

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/soypat/fatfs/blkdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Large enough for go-diskfs to lay out more than 65525 one sector clusters.
const interopImageSize = 40 << 20

func createDiskfsImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interop.img")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(interopImageSize))

	vol, err := fat32.Create(f, interopImageSize, 0, 512, "INTEROP")
	require.NoError(t, err)
	require.NoError(t, vol.Mkdir("/DOCS"))
	w, err := vol.OpenFile("/DOCS/HELLO.TXT", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = w.Write([]byte("written by go-diskfs"))
	require.NoError(t, err)
	return path
}

func mountImage(t *testing.T, path string, mode Mode) (*FS, *blkdev.File) {
	t.Helper()
	dev, err := blkdev.OpenFile(path, blkdev.FileConfig{ReadOnly: mode&ModeWrite == 0})
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	var fsys FS
	fsys.Configure(Config{Logger: testLogger()})
	require.NoError(t, fsys.Mount(dev, 0, mode))
	return &fsys, dev
}

func TestReadDiskfsImage(t *testing.T) {
	path := createDiskfsImage(t)
	fsys, _ := mountImage(t, path, ModeRead)
	assert.Equal(t, FormatFAT32, fsys.Type())

	var fi FileInfo
	require.NoError(t, fsys.Stat("/DOCS", &fi))
	assert.True(t, fi.IsDir())
	assert.Equal(t, []byte("written by go-diskfs"), readFile(t, fsys, "/docs/hello.txt"))
	assert.NoError(t, fsys.Unmount())
}

func TestWriteDiskfsImage(t *testing.T) {
	path := createDiskfsImage(t)
	fsys, dev := mountImage(t, path, ModeRW)
	data := patternData(3000, 9)
	writeFile(t, fsys, "/DOCS/NOTES.BIN", data)
	require.NoError(t, fsys.Mkdir("/LOGS"))
	require.NoError(t, fsys.Unmount())
	require.NoError(t, dev.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	vol, err := fat32.Read(f, interopImageSize, 0, 512)
	require.NoError(t, err)
	r, err := vol.OpenFile("/DOCS/NOTES.BIN", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	infos, err := vol.ReadDir("/")
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	assert.Contains(t, names, "LOGS")
}
