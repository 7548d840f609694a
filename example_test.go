package fat_test

import (
	"fmt"
	"io"

	fat "github.com/soypat/fatfs"
	"github.com/soypat/fatfs/blkdev"
)

func ExampleFS_basic_usage() {
	// device could be an SD card, RAM, or anything that implements the BlockDevice interface.
	device, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 8192})
	if err != nil {
		panic(err)
	}
	var formatter fat.Formatter
	err = formatter.Format(device, 512, 8192, fat.FormatConfig{Label: "example"})
	if err != nil {
		panic(err)
	}
	var fs fat.FS
	err = fs.Mount(device, 512, fat.ModeRW)
	if err != nil {
		panic(err)
	}
	var file fat.File
	err = fs.OpenFile(&file, "newfile.txt", fat.ModeCreateAlways|fat.ModeWrite)
	if err != nil {
		panic(err)
	}

	_, err = file.Write([]byte("Hello, World!"))
	if err != nil {
		panic(err)
	}
	err = file.Close()
	if err != nil {
		panic(err)
	}

	// Read back the file:
	err = fs.OpenFile(&file, "newfile.txt", fat.ModeRead)
	if err != nil {
		panic(err)
	}
	data, err := io.ReadAll(&file)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(data))
	file.Close()
	label, _, _ := fs.Label()
	fmt.Println(label)
	// Output:
	// Hello, World!
	// EXAMPLE
}

func ExampleFormatter_Format() {
	device, err := blkdev.NewRAM(blkdev.RAMConfig{SectorCount: 8192})
	if err != nil {
		panic(err)
	}
	var formatter fat.Formatter
	err = formatter.Format(device, 0, 0, fat.FormatConfig{Format: fat.FormatExFAT, Label: "Photos"})
	if err != nil {
		panic(err)
	}
	var fs fat.FS
	if err := fs.Mount(device, 0, fat.ModeRW); err != nil {
		panic(err)
	}
	if err := fs.Mkdir("/2024"); err != nil {
		panic(err)
	}
	var file fat.File
	if err := fs.OpenFile(&file, "/2024/Beach Day.jpg", fat.ModeCreateNew|fat.ModeWrite); err != nil {
		panic(err)
	}
	file.Write(make([]byte, 3000))
	file.Close()

	var dir fat.Dir
	if err := fs.OpenDir(&dir, "/2024"); err != nil {
		panic(err)
	}
	dir.ForEachFile(func(fi *fat.FileInfo) error {
		fmt.Println(fi.Name(), fi.Size())
		return nil
	})
	dir.Close()
	label, _, _ := fs.Label()
	fmt.Println(fs.Type(), label)
	fs.Unmount()
	// Output:
	// Beach Day.jpg 3000
	// exFAT Photos
}
