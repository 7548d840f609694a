package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	fat "github.com/soypat/fatfs"
	"github.com/urfave/cli/v2"
)

func (t *tool) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "format",
			Usage: "create a new volume, destroying existing data",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "type", Value: "auto", Usage: "volume `TYPE`: auto, fat12, fat16, fat32 or exfat"},
				&cli.StringFlag{Name: "label", Usage: "volume `LABEL`"},
				&cli.StringFlag{Name: "cluster", Usage: "cluster `SIZE` such as 4KiB, chosen by volume size if unset"},
				&cli.IntFlag{Name: "fats", Usage: "number of FAT copies, 1 or 2"},
				&cli.IntFlag{Name: "root-entries", Usage: "FAT12/16 root directory entries"},
				&cli.IntFlag{Name: "align", Usage: "data area alignment in sectors, 0 queries the device"},
				&cli.BoolFlag{Name: "partitioned", Usage: "write an MBR partition table"},
				&cli.StringFlag{Name: "size", Usage: "create or resize the image to `SIZE` first"},
			},
			Action: t.format,
		},
		{
			Name:      "ls",
			Usage:     "list a directory",
			ArgsUsage: "[DIR]",
			Action:    t.ls,
		},
		{
			Name:      "cat",
			Usage:     "print files to stdout",
			ArgsUsage: "FILE...",
			Action:    t.cat,
		},
		{
			Name:      "put",
			Usage:     "copy a host file into the volume",
			ArgsUsage: "SRC DST",
			Action:    t.put,
		},
		{
			Name:      "get",
			Usage:     "copy a file out of the volume",
			ArgsUsage: "SRC DST",
			Action:    t.get,
		},
		{
			Name:      "rm",
			Usage:     "remove files or empty directories",
			ArgsUsage: "PATH...",
			Action:    t.rm,
		},
		{
			Name:      "mkdir",
			Usage:     "create directories",
			ArgsUsage: "DIR...",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents, existing directories are not an error"},
			},
			Action: t.mkdir,
		},
		{
			Name:      "mv",
			Usage:     "rename or move a file or directory",
			ArgsUsage: "OLD NEW",
			Action:    t.mv,
		},
		{
			Name:   "df",
			Usage:  "show volume capacity and free space",
			Action: t.df,
		},
		{
			Name:   "info",
			Usage:  "show volume geometry",
			Action: t.info,
		},
		{
			Name:      "label",
			Usage:     "show or set the volume label",
			ArgsUsage: "[LABEL]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "clear", Usage: "remove the label"},
			},
			Action: t.label,
		},
	}
}

func parseFormat(s string) (fat.Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return fat.FormatAuto, nil
	case "fat12":
		return fat.FormatFAT12, nil
	case "fat16":
		return fat.FormatFAT16, nil
	case "fat32":
		return fat.FormatFAT32, nil
	case "exfat":
		return fat.FormatExFAT, nil
	}
	return fat.FormatAuto, fmt.Errorf("unknown volume type %q", s)
}

func wantArgs(c *cli.Context, lo, hi int) error {
	n := c.NArg()
	if n < lo || (hi >= 0 && n > hi) {
		return fmt.Errorf("%s: wrong number of arguments, usage: %s %s", c.Command.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}

func (t *tool) format(c *cli.Context) error {
	if err := wantArgs(c, 0, 0); err != nil {
		return err
	}
	if t.opts.readonly {
		return errors.New("format: image opened read only")
	}
	typ, err := parseFormat(c.String("type"))
	if err != nil {
		return err
	}
	ssize := t.opts.sectorSize
	if ssize == 0 {
		ssize = 512
	}
	cfg := fat.FormatConfig{
		Label:        c.String("label"),
		Format:       typ,
		NumberOfFATs: c.Int("fats"),
		RootEntries:  c.Int("root-entries"),
		Partitioned:  c.Bool("partitioned"),
		Align:        c.Int("align"),
		Drive:        t.opts.drive,
		Logger:       t.log,
	}
	if s := c.String("cluster"); s != "" {
		bytes, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("format: cluster size: %w", err)
		}
		if bytes == 0 || bytes%uint64(ssize) != 0 {
			return fmt.Errorf("format: cluster size %s is not a multiple of the %d byte sector", s, ssize)
		}
		cfg.ClusterSize = int(bytes / uint64(ssize))
	}
	if s := c.String("size"); s != "" {
		if err := t.resizeImage(s); err != nil {
			return fmt.Errorf("format: %w", err)
		}
	}
	dev, err := t.device()
	if err != nil {
		return err
	}
	var f fat.Formatter
	if err := f.Format(dev, t.opts.sectorSize, 0, cfg); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	t.log.Info("formatted", "image", t.opts.image, "drive", t.opts.drive, "type", typ.String())
	return nil
}

// resizeImage creates the --image file if needed and sets its size.
func (t *tool) resizeImage(size string) error {
	if t.opts.config != "" || t.opts.image == "" || strings.HasPrefix(t.opts.image, "/dev/") {
		return errors.New("--size needs a regular --image file")
	}
	n, err := humanize.ParseBytes(size)
	if err != nil {
		return err
	}
	f, err := t.host.OpenFile(t.opts.image, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	err = f.Truncate(int64(n))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (t *tool) ls(c *cli.Context) error {
	if err := wantArgs(c, 0, 1); err != nil {
		return err
	}
	fsys, err := t.mount(false)
	if err != nil {
		return err
	}
	dir := c.Args().First()
	if dir == "" {
		dir = "/"
	}
	var dp fat.Dir
	if err := fsys.OpenDir(&dp, dir); err != nil {
		return fmt.Errorf("ls %s: %w", dir, err)
	}
	defer dp.Close()
	return dp.ForEachFile(func(fi *fat.FileInfo) error {
		size := "-"
		if !fi.IsDir() {
			size = humanize.IBytes(uint64(fi.Size()))
		}
		name := fi.Name()
		if fi.IsDir() {
			name += "/"
		}
		_, err := fmt.Fprintf(t.out, "%s %10s %s %s\n", fi.Mode(), size, fi.ModTime().Format("2006-01-02 15:04"), name)
		return err
	})
}

func (t *tool) cat(c *cli.Context) error {
	if err := wantArgs(c, 1, -1); err != nil {
		return err
	}
	fsys, err := t.mount(false)
	if err != nil {
		return err
	}
	for _, name := range c.Args().Slice() {
		if err := copyOut(fsys, name, t.out); err != nil {
			return fmt.Errorf("cat %s: %w", name, err)
		}
	}
	return nil
}

func copyOut(fsys *fat.FS, name string, w io.Writer) error {
	var fp fat.File
	if err := fsys.OpenFile(&fp, name, fat.ModeRead); err != nil {
		return err
	}
	defer fp.Close()
	_, err := io.Copy(w, &fp)
	return err
}

func (t *tool) put(c *cli.Context) error {
	if err := wantArgs(c, 2, 2); err != nil {
		return err
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)
	fsys, err := t.mount(true)
	if err != nil {
		return err
	}
	in, err := t.host.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if strings.HasSuffix(dst, "/") {
		dst += path.Base(src)
	}
	var fp fat.File
	if err := fsys.OpenFile(&fp, dst, fat.ModeCreateAlways|fat.ModeWrite); err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}
	n, err := io.Copy(&fp, in)
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}
	t.log.Debug("put", "src", src, "dst", dst, "bytes", n)
	return nil
}

func (t *tool) get(c *cli.Context) error {
	if err := wantArgs(c, 2, 2); err != nil {
		return err
	}
	src, dst := c.Args().Get(0), c.Args().Get(1)
	fsys, err := t.mount(false)
	if err != nil {
		return err
	}
	out, err := t.host.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	err = copyOut(fsys, src, out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", src, err)
	}
	return nil
}

func (t *tool) rm(c *cli.Context) error {
	if err := wantArgs(c, 1, -1); err != nil {
		return err
	}
	fsys, err := t.mount(true)
	if err != nil {
		return err
	}
	for _, name := range c.Args().Slice() {
		if err := fsys.Remove(name); err != nil {
			return fmt.Errorf("rm %s: %w", name, err)
		}
	}
	return nil
}

func (t *tool) mkdir(c *cli.Context) error {
	if err := wantArgs(c, 1, -1); err != nil {
		return err
	}
	fsys, err := t.mount(true)
	if err != nil {
		return err
	}
	parents := c.Bool("parents")
	for _, name := range c.Args().Slice() {
		if !parents {
			if err := fsys.Mkdir(name); err != nil {
				return fmt.Errorf("mkdir %s: %w", name, err)
			}
			continue
		}
		if err := mkdirAll(fsys, name); err != nil {
			return fmt.Errorf("mkdir %s: %w", name, err)
		}
	}
	return nil
}

func mkdirAll(fsys *fat.FS, name string) error {
	p := ""
	for _, elem := range strings.Split(strings.Trim(name, "/"), "/") {
		if elem == "" {
			continue
		}
		p += "/" + elem
		err := fsys.Mkdir(p)
		if err == nil {
			continue
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}
		var fi fat.FileInfo
		if err := fsys.Stat(p, &fi); err != nil {
			return err
		} else if !fi.IsDir() {
			return fmt.Errorf("%s is not a directory", p)
		}
	}
	return nil
}

func (t *tool) mv(c *cli.Context) error {
	if err := wantArgs(c, 2, 2); err != nil {
		return err
	}
	fsys, err := t.mount(true)
	if err != nil {
		return err
	}
	oldpath, newpath := c.Args().Get(0), c.Args().Get(1)
	if err := fsys.Rename(oldpath, newpath); err != nil {
		return fmt.Errorf("mv %s: %w", oldpath, err)
	}
	return nil
}

func (t *tool) df(c *cli.Context) error {
	fsys, err := t.mount(false)
	if err != nil {
		return err
	}
	free, err := fsys.FreeBytes()
	if err != nil {
		return err
	}
	total := fsys.Clusters() * int64(fsys.ClusterSize())
	used := total - free
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(used) / float64(total)
	}
	_, err = fmt.Fprintf(t.out, "%-6s %10s %10s %10s %5.1f%%\n", fsys.Type(),
		humanize.IBytes(uint64(total)), humanize.IBytes(uint64(used)), humanize.IBytes(uint64(free)), pct)
	return err
}

func (t *tool) info(c *cli.Context) error {
	fsys, err := t.mount(false)
	if err != nil {
		return err
	}
	label, serial, err := fsys.Label()
	if err != nil {
		return err
	}
	free, err := fsys.Free()
	if err != nil {
		return err
	}
	w := t.out
	fmt.Fprintf(w, "type:         %s\n", fsys.Type())
	fmt.Fprintf(w, "label:        %s\n", label)
	fmt.Fprintf(w, "serial:       %04X-%04X\n", serial>>16, serial&0xffff)
	fmt.Fprintf(w, "sector size:  %d\n", fsys.SectorSize())
	fmt.Fprintf(w, "cluster size: %s\n", humanize.IBytes(uint64(fsys.ClusterSize())))
	fmt.Fprintf(w, "clusters:     %s\n", humanize.Comma(fsys.Clusters()))
	_, err = fmt.Fprintf(w, "free:         %s\n", humanize.Comma(free))
	return err
}

func (t *tool) label(c *cli.Context) error {
	if err := wantArgs(c, 0, 1); err != nil {
		return err
	}
	if c.NArg() == 0 && !c.Bool("clear") {
		fsys, err := t.mount(false)
		if err != nil {
			return err
		}
		label, _, err := fsys.Label()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(t.out, label)
		return err
	}
	fsys, err := t.mount(true)
	if err != nil {
		return err
	}
	return fsys.SetLabel(c.Args().First())
}
