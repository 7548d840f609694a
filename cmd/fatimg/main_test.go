package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, host afero.Fs, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(host, &stdout, &stderr)
	err := app.Run(append([]string{"fatimg"}, args...))
	if stderr.Len() > 0 {
		t.Logf("stderr: %s", stderr.String())
	}
	return stdout.String(), err
}

func mustRun(t *testing.T, host afero.Fs, args ...string) string {
	t.Helper()
	out, err := run(t, host, args...)
	require.NoError(t, err, "fatimg %s", strings.Join(args, " "))
	return out
}

func TestFormatPutCat(t *testing.T) {
	host := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(host, "/hello.txt", []byte("hello from the host\n"), 0o644))

	mustRun(t, host, "--image", "/disk.img", "format", "--size", "4MiB", "--label", "test")
	info, err := host.Stat("/disk.img")
	require.NoError(t, err)
	assert.EqualValues(t, 4<<20, info.Size())

	mustRun(t, host, "-i", "/disk.img", "put", "/hello.txt", "/hello.txt")
	assert.Equal(t, "hello from the host\n", mustRun(t, host, "-i", "/disk.img", "cat", "/hello.txt"))
	assert.Contains(t, mustRun(t, host, "-i", "/disk.img", "ls"), "hello.txt")
	assert.Equal(t, "TEST\n", mustRun(t, host, "-i", "/disk.img", "label"))
	assert.Contains(t, mustRun(t, host, "-i", "/disk.img", "info"), "label:        TEST")
	assert.Contains(t, mustRun(t, host, "-i", "/disk.img", "df"), "FAT")
}

func TestFormatTypes(t *testing.T) {
	for _, typ := range []string{"fat32", "exfat"} {
		host := afero.NewMemMapFs()
		mustRun(t, host, "-i", "/disk.img", "format", "--size", "80MiB", "--type", typ)
		out := mustRun(t, host, "-i", "/disk.img", "info")
		assert.Contains(t, strings.ToLower(out), "type:         "+typ)
	}
	_, err := run(t, afero.NewMemMapFs(), "-i", "/disk.img", "format", "--size", "1MiB", "--type", "ntfs")
	assert.Error(t, err)
}

func TestTreeOps(t *testing.T) {
	host := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(host, "/data.bin", bytes.Repeat([]byte("0123456789"), 700), 0o644))
	img := []string{"--image", "/disk.img"}
	mustRun(t, host, append(img, "format", "--size", "2MiB")...)
	mustRun(t, host, append(img, "mkdir", "-p", "/a/b/c")...)
	mustRun(t, host, append(img, "mkdir", "-p", "/a/b")...)
	_, err := run(t, host, append(img, "mkdir", "/a")...)
	assert.Error(t, err, "mkdir of an existing directory")

	mustRun(t, host, append(img, "put", "/data.bin", "/a/b/c/")...)
	mustRun(t, host, append(img, "mv", "/a/b/c/data.bin", "/a/moved.bin")...)
	assert.Contains(t, mustRun(t, host, append(img, "ls", "/a")...), "moved.bin")
	assert.NotContains(t, mustRun(t, host, append(img, "ls", "/a/b/c")...), "data.bin")

	mustRun(t, host, append(img, "get", "/a/moved.bin", "/out.bin")...)
	want, err := afero.ReadFile(host, "/data.bin")
	require.NoError(t, err)
	got, err := afero.ReadFile(host, "/out.bin")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	mustRun(t, host, append(img, "rm", "/a/moved.bin", "/a/b/c")...)
	assert.NotContains(t, mustRun(t, host, append(img, "ls", "/a/b")...), "c/")
	_, err = run(t, host, append(img, "cat", "/a/moved.bin")...)
	assert.Error(t, err)
}

func TestLabelSetClear(t *testing.T) {
	host := afero.NewMemMapFs()
	mustRun(t, host, "-i", "/disk.img", "format", "--size", "2MiB", "--label", "first")
	mustRun(t, host, "-i", "/disk.img", "label", "second")
	assert.Equal(t, "SECOND\n", mustRun(t, host, "-i", "/disk.img", "label"))
	mustRun(t, host, "-i", "/disk.img", "label", "--clear")
	assert.Equal(t, "\n", mustRun(t, host, "-i", "/disk.img", "label"))
}

func TestReadOnly(t *testing.T) {
	host := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(host, "/f.txt", []byte("x"), 0o644))
	mustRun(t, host, "-i", "/disk.img", "format", "--size", "2MiB")
	before, err := afero.ReadFile(host, "/disk.img")
	require.NoError(t, err)

	_, err = run(t, host, "-i", "/disk.img", "--readonly", "put", "/f.txt", "/f.txt")
	assert.Error(t, err)
	_, err = run(t, host, "-i", "/disk.img", "--readonly", "format")
	assert.Error(t, err)
	mustRun(t, host, "-i", "/disk.img", "--readonly", "ls")

	after, err := afero.ReadFile(host, "/disk.img")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(before, after), "read only run modified the image")
}

func TestDriveTable(t *testing.T) {
	host := afero.NewMemMapFs()
	for _, name := range []string{"/boot.img", "/data.img"} {
		require.NoError(t, afero.WriteFile(host, name, make([]byte, 2<<20), 0o644))
	}
	require.NoError(t, afero.WriteFile(host, "/drives.yaml", []byte(`drives:
  - image: /boot.img
  - image: /data.img
    sector_size: 512
`), 0o644))
	require.NoError(t, afero.WriteFile(host, "/f.txt", []byte("on drive one"), 0o644))

	cfg := []string{"--config", "/drives.yaml"}
	mustRun(t, host, append(cfg, "--drive", "1", "format", "--label", "data")...)
	mustRun(t, host, append(cfg, "-d", "1", "put", "/f.txt", "/f.txt")...)
	assert.Equal(t, "on drive one", mustRun(t, host, append(cfg, "-d", "1", "cat", "/f.txt")...))

	// Drive 0 was never formatted.
	_, err := run(t, host, append(cfg, "ls")...)
	assert.Error(t, err)
	_, err = run(t, host, append(cfg, "-d", "2", "ls")...)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(host, "/bad.yaml", []byte("drives:\n  - sector_size: 512\n"), 0o644))
	_, err = run(t, host, "--config", "/bad.yaml", "ls")
	assert.Error(t, err)
}

func TestNoImage(t *testing.T) {
	_, err := run(t, afero.NewMemMapFs(), "ls")
	assert.True(t, errors.Is(err, errNoImage), "got %v", err)
}
