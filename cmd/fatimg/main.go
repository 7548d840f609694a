// Command fatimg inspects and modifies FAT12/16/32 and exFAT volumes held in
// disk images or block devices.
//
//	fatimg --image sd.img format --size 64MiB --label DATA
//	fatimg --image sd.img put notes.txt /docs/notes.txt
//	fatimg --image sd.img ls /docs
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatimg:", err)
		os.Exit(1)
	}
}

func newApp(host afero.Fs, stdout, stderr io.Writer) *cli.App {
	t := &tool{host: host, out: stdout}
	return &cli.App{
		Name:      "fatimg",
		Usage:     "inspect and modify FAT and exFAT disk images",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "disk image or block device `PATH`",
				EnvVars: []string{"FATIMG_IMAGE"},
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML drive table `FILE`, used instead of --image",
			},
			&cli.UintFlag{
				Name:    "drive",
				Aliases: []string{"d"},
				Usage:   "drive `NUMBER` within the drive table",
			},
			&cli.IntFlag{
				Name:    "partition",
				Aliases: []string{"p"},
				Usage:   "partition `NUMBER`, 0 uses the first FAT volume found",
			},
			&cli.IntFlag{
				Name:  "sector-size",
				Usage: "sector size in `BYTES`, 0 queries the device",
			},
			&cli.BoolFlag{
				Name:  "readonly",
				Usage: "never write to the image",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log filesystem activity to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			level := slog.LevelWarn
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			t.log = slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
			t.opts = options{
				image:      c.String("image"),
				config:     c.String("config"),
				drive:      uint8(c.Uint("drive")),
				partition:  c.Int("partition"),
				sectorSize: c.Int("sector-size"),
				readonly:   c.Bool("readonly"),
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return t.close()
		},
		Commands: t.commands(),
	}
}
