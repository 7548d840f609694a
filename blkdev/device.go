// Package blkdev defines the sector-addressed block device contract used by
// the FAT engine and provides RAM, stream, OS file and multi-drive backends.
package blkdev

import "strconv"

//go:generate mockgen -destination=blkdevmock/device.go -package=blkdevmock github.com/soypat/fatfs/blkdev Device

// Device is a sector addressed storage medium. All methods take the physical
// drive number so a single value may serve several drives.
type Device interface {
	// Initialize brings the drive up. It is idempotent.
	Initialize(drv uint8) Status
	Status(drv uint8) Status
	// ReadSectors reads count sectors starting at sector into dst.
	ReadSectors(drv uint8, dst []byte, sector uint64, count int) Result
	// WriteSectors writes count sectors starting at sector from src.
	WriteSectors(drv uint8, src []byte, sector uint64, count int) Result
	// Control performs a device specific control operation. Unknown
	// control values yield ResultParError.
	Control(drv uint8, ctl Control) Result
}

// Status is a drive status bitset. The zero value means the drive is ready.
type Status uint8

const (
	StatusNoInit  Status = 1 << iota // Drive not initialized.
	StatusNoDisk                     // No medium in the drive.
	StatusProtect                    // Medium is write protected.
)

func (s Status) String() string {
	if s == 0 {
		return "ready"
	}
	var b []byte
	add := func(name string) {
		if len(b) > 0 {
			b = append(b, '|')
		}
		b = append(b, name...)
	}
	if s&StatusNoInit != 0 {
		add("noinit")
	}
	if s&StatusNoDisk != 0 {
		add("nodisk")
	}
	if s&StatusProtect != 0 {
		add("protect")
	}
	if rest := s &^ (StatusNoInit | StatusNoDisk | StatusProtect); rest != 0 {
		add("0x" + strconv.FormatUint(uint64(rest), 16))
	}
	return string(b)
}

// Result is the outcome of a sector transfer or control operation.
// Non-OK values implement error.
type Result uint8

const (
	ResultOK             Result = iota // Successful.
	ResultError                        // R/W error.
	ResultWriteProtected               // Write protected.
	ResultNotReady                     // Not ready.
	ResultParError                     // Invalid parameter.
)

func (r Result) Error() string {
	switch r {
	case ResultOK:
		return "blkdev: ok"
	case ResultError:
		return "blkdev: i/o error"
	case ResultWriteProtected:
		return "blkdev: write protected"
	case ResultNotReady:
		return "blkdev: not ready"
	case ResultParError:
		return "blkdev: invalid parameter"
	}
	return "blkdev: result " + strconv.Itoa(int(r))
}

// Err returns nil for ResultOK and r otherwise.
func (r Result) Err() error {
	if r == ResultOK {
		return nil
	}
	return r
}

// Control is a device control request. Implementations switch on the concrete
// type and fill in the result fields.
type Control interface {
	isControl()
}

// Sync flushes cached writes to the medium.
type Sync struct{}

// SectorCount reports the number of addressable sectors.
type SectorCount struct{ Count uint64 }

// SectorSize reports the sector size in bytes.
type SectorSize struct{ Size uint16 }

// BlockSize reports the erase block size in units of sectors. 1 means unknown.
type BlockSize struct{ Sectors uint32 }

// Trim informs the device that sectors Start through End inclusive hold no
// useful data. Devices may ignore it.
type Trim struct{ Start, End uint64 }

// CardType reports MMC/SD card type flags.
type CardType struct{ Type uint8 }

// CSD reads the card specific data register.
type CSD struct{ Reg [16]byte }

// CID reads the card identification register.
type CID struct{ Reg [16]byte }

// OCR reads the operation conditions register.
type OCR struct{ Reg [4]byte }

func (*Sync) isControl()        {}
func (*SectorCount) isControl() {}
func (*SectorSize) isControl()  {}
func (*BlockSize) isControl()   {}
func (*Trim) isControl()        {}
func (*CardType) isControl()    {}
func (*CSD) isControl()         {}
func (*CID) isControl()         {}
func (*OCR) isControl()         {}

// checkTransfer validates the common transfer arguments.
func checkTransfer(buf []byte, count int, ssize int) Result {
	if count <= 0 || len(buf) < count*ssize {
		return ResultParError
	}
	return ResultOK
}
