package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	fat "github.com/soypat/fatfs"
	"github.com/soypat/fatfs/blkdev"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

type options struct {
	image      string
	config     string
	drive      uint8
	partition  int
	sectorSize int
	readonly   bool
}

// driveTable is the --config file format:
//
//	drives:
//	  - image: boot.img
//	  - image: /dev/sdb
//	    sector_size: 4096
//	    readonly: true
type driveTable struct {
	Drives []driveEntry `yaml:"drives"`
}

type driveEntry struct {
	Image      string `yaml:"image"`
	SectorSize int    `yaml:"sector_size"`
	ReadOnly   bool   `yaml:"readonly"`
}

var errNoImage = errors.New("no image: set --image or --config")

type tool struct {
	host afero.Fs
	out  io.Writer
	log  *slog.Logger
	opts options

	drives  *blkdev.Multi
	closers []io.Closer
	fsys    fat.FS
	mounted bool
}

func loadDriveTable(host afero.Fs, path string) ([]driveEntry, error) {
	data, err := afero.ReadFile(host, path)
	if err != nil {
		return nil, err
	}
	var table driveTable
	if err := yaml.UnmarshalStrict(data, &table); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(table.Drives) == 0 {
		return nil, fmt.Errorf("%s: no drives", path)
	}
	for i, d := range table.Drives {
		if d.Image == "" {
			return nil, fmt.Errorf("%s: drive %d has no image", path, i)
		}
	}
	return table.Drives, nil
}

// driveList returns the drive list from the flags.
func (t *tool) driveList() ([]driveEntry, error) {
	if t.opts.config != "" {
		entries, err := loadDriveTable(t.host, t.opts.config)
		if err != nil {
			return nil, err
		}
		if t.opts.readonly {
			for i := range entries {
				entries[i].ReadOnly = true
			}
		}
		return entries, nil
	}
	if t.opts.image == "" {
		return nil, errNoImage
	}
	return []driveEntry{{Image: t.opts.image, SectorSize: t.opts.sectorSize, ReadOnly: t.opts.readonly}}, nil
}

// device assembles the drive table on first use.
func (t *tool) device() (*blkdev.Multi, error) {
	if t.drives != nil {
		return t.drives, nil
	}
	entries, err := t.driveList()
	if err != nil {
		return nil, err
	}
	if int(t.opts.drive) >= len(entries) {
		return nil, fmt.Errorf("drive %d not in table of %d", t.opts.drive, len(entries))
	}
	m := blkdev.NewMulti()
	for _, e := range entries {
		dev, err := t.open(e)
		if err != nil {
			return nil, multierr.Append(err, t.close())
		}
		m.Add(dev)
	}
	t.drives = m
	return m, nil
}

// open opens block device nodes directly and images through the host file system.
func (t *tool) open(e driveEntry) (blkdev.Device, error) {
	if strings.HasPrefix(e.Image, "/dev/") {
		dev, err := blkdev.OpenFile(e.Image, blkdev.FileConfig{
			SectorSize: e.SectorSize,
			ReadOnly:   e.ReadOnly,
			Logger:     t.log,
		})
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, dev)
		return dev, nil
	}
	flag := os.O_RDWR
	if e.ReadOnly {
		flag = os.O_RDONLY
	}
	f, err := t.host.OpenFile(e.Image, flag, 0)
	if err != nil {
		return nil, err
	}
	t.closers = append(t.closers, f)
	return blkdev.NewStream(f, blkdev.StreamConfig{
		SectorSize: e.SectorSize,
		ReadOnly:   e.ReadOnly,
		Logger:     t.log,
	})
}

// mount mounts the selected drive, read-write unless write is false or the
// tool runs read only.
func (t *tool) mount(write bool) (*fat.FS, error) {
	if t.mounted {
		return &t.fsys, nil
	}
	dev, err := t.device()
	if err != nil {
		return nil, err
	}
	mode := fat.ModeRead
	if write {
		if t.opts.readonly {
			return nil, errors.New("image opened read only")
		}
		mode = fat.ModeRW
	}
	t.fsys.Configure(fat.Config{
		Logger:    t.log,
		Drive:     t.opts.drive,
		Partition: t.opts.partition,
	})
	if err := t.fsys.Mount(dev, t.opts.sectorSize, mode); err != nil {
		return nil, fmt.Errorf("mount drive %d: %w", t.opts.drive, err)
	}
	t.mounted = true
	return &t.fsys, nil
}

func (t *tool) close() (err error) {
	if t.mounted {
		err = t.fsys.Unmount()
		t.mounted = false
	}
	if t.drives != nil {
		err = multierr.Append(err, t.drives.SyncAll())
	}
	for _, c := range t.closers {
		err = multierr.Append(err, c.Close())
	}
	t.closers = nil
	t.drives = nil
	return err
}
