package fat

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"math/bits"
	"time"
	"unsafe"

	"github.com/soypat/fatfs/blkdev"
	"github.com/soypat/fatfs/internal/gpt"
	"github.com/soypat/fatfs/internal/mbr"
)

// BlockDevice is the sector device a volume lives on.
type BlockDevice = blkdev.Device

// sector index type.
type lba uint64

const badLBA = ^lba(0)

// Config holds FS settings applied by Configure. The zero value is usable.
type Config struct {
	Logger *slog.Logger
	// MaxOpenFiles is the size of the file lock table. 0 disables
	// open file tracking and sharing checks.
	MaxOpenFiles int
	// Now returns timestamps for directory entries. Defaults to time.Now.
	Now func() time.Time
	// Drive is the physical drive number passed to the block device.
	Drive uint8
	// Partition selects a partition: 0 scans for the first FAT volume,
	// 1..4 forces an MBR entry (or the nth basic data GPT partition).
	Partition int
}

// FS is a mounted FAT12/16/32 or exFAT volume. It is not safe for concurrent use.
type FS struct {
	fstype   fstype
	nFATs    uint8
	wflag    uint8  // b0:dirty
	fsi_flag uint8  // FSInfo dirty flag. b7:disabled, b0:dirty.
	nrootdir uint16 // Number of root directory entries.
	drv      uint8

	blk    blkIdxer
	csize  uint16                 // Cluster size in sectors.
	ssize  uint16                 // Sector size in bytes.
	lfnbuf [lfnBufSize + 1]uint16 // Long file name working buffer.

	dirbuf    [maxDirbuf]byte // Directory entry block scratchpad for exFAT.
	device    BlockDevice
	last_clst uint32 // Last allocated clusters.
	free_clst uint32 // Number of free clusters.

	// No relative pathing, we can always use a [fs.FS] wrapper.

	n_fatent uint32 // Number of FAT entries (= number of clusters + 2)
	fsize    uint32 // Number of sectors per FAT.

	volbase  lba // Volume base sector.
	fatbase  lba // FAT base sector.
	dirbase  lba // Root directory base sector/cluster.
	database lba // Data base sector.
	bitbase  lba // Allocation bitmap base sector (exFAT only)

	winsect lba    // Current sector appearing in the win[].
	win     []byte // Disk access window for Directory/FAT/File.
	id      uint16 // Filesystem mount ID. Serves to invalidate open files after mount.
	perm    Mode

	cfg   Config
	locks lockTable
}

type objid struct {
	fs      *FS
	id      uint16 // Corresponds to FS.id.
	attr    uint8
	stat    uint8 // exFAT: b1-0 allocation status, b2 directory stretched.
	objsize int64
	sclust  uint32
	lockid  int

	// exFAT only:
	n_cont, n_frag, c_scl, c_size, c_ofs uint32
}

type fstype byte

const (
	fstypeUnknown fstype = iota
	fstypeFAT12
	fstypeFAT16
	fstypeFAT32
	fstypeExFAT
)

// FileResult is the result of a filesystem operation. Non-OK values are
// returned as errors and match the io/fs sentinel errors with errors.Is.
type FileResult int

const (
	frOK               FileResult = iota // succeeded
	frDiskErr                            // a hard error occurred in the low level disk I/O layer
	frIntErr                             // assertion failed
	frNotReady                           // the physical drive cannot work
	frNoFile                             // could not find the file
	frNoPath                             // could not find the path
	frInvalidName                        // the path name format is invalid
	frDenied                             // access denied due to prohibited access or directory full
	frExist                              // access denied due to prohibited access
	frInvalidObject                      // the file/directory object is invalid
	frWriteProtected                     // the physical drive is write protected
	frInvalidDrive                       // the logical drive number is invalid
	frNotEnabled                         // the volume has no work area
	frNoFilesystem                       // there is no valid FAT volume
	frMkfsAborted                        // the f_mkfs() aborted due to any problem
	frTimeout                            // could not get a grant to access the volume within defined period
	frLocked                             // the operation is rejected according to the file sharing policy
	frNotEnoughCore                      // LFN working buffer could not be allocated
	frTooManyOpenFiles                   // number of open files > FF_FS_LOCK
	frInvalidParameter                   // given parameter is invalid
	frUnsupported                        // the operation is not supported
)

var frNames = [...]string{
	frOK:               "ok",
	frDiskErr:          "disk error",
	frIntErr:           "internal error",
	frNotReady:         "not ready",
	frNoFile:           "no file",
	frNoPath:           "no path",
	frInvalidName:      "invalid name",
	frDenied:           "denied",
	frExist:            "exists",
	frInvalidObject:    "invalid object",
	frWriteProtected:   "write protected",
	frInvalidDrive:     "invalid drive",
	frNotEnabled:       "not enabled",
	frNoFilesystem:     "no filesystem",
	frMkfsAborted:      "mkfs aborted",
	frTimeout:          "timeout",
	frLocked:           "locked",
	frNotEnoughCore:    "not enough core",
	frTooManyOpenFiles: "too many open files",
	frInvalidParameter: "invalid parameter",
	frUnsupported:      "unsupported",
}

func (fr FileResult) String() string {
	if fr >= 0 && int(fr) < len(frNames) {
		return frNames[fr]
	}
	return "fr?"
}

func (fr FileResult) Error() string {
	return "fat: " + fr.String()
}

// Is maps results onto the io/fs error sentinels.
func (fr FileResult) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return fr == frNoFile || fr == frNoPath
	case fs.ErrExist:
		return fr == frExist
	case fs.ErrPermission:
		return fr == frDenied || fr == frWriteProtected || fr == frLocked
	case fs.ErrClosed:
		return fr == frInvalidObject
	case fs.ErrInvalid:
		return fr == frInvalidName || fr == frInvalidParameter
	}
	return false
}

// bootsectorstatus is the return code of check_fs and find_volume.
type bootsectorstatus uint

const (
	bootsectorstatusFAT             bootsectorstatus = iota // FAT/FAT32 VBR
	bootsectorstatusExFAT                                   // exFAT VBR
	bootsectorstatusNotFATValidBS                           // Not FAT and valid BS
	bootsectorstatusNotFATInvalidBS                         // Not FAT and invalid BS
	bootsectorstatusDiskError                               // Disk error
)

// Configure sets the FS configuration. It takes effect on the next Mount.
func (fsys *FS) Configure(cfg Config) {
	fsys.cfg = cfg
}

// mount_volume initializes the FS with the given BlockDevice.
func (fsys *FS) mount_volume(bd BlockDevice, ssize uint16, mode uint8) (fr FileResult) {
	if fsys.fstype != fstypeUnknown {
		fsys.locks.clear()
	}
	fsys.fstype = fstypeUnknown // Invalidate any previous mount.
	fsys.device = bd
	fsys.drv = fsys.cfg.Drive
	fsys.locks.init(fsys.cfg.MaxOpenFiles)
	// From here on out we call mount_volume since we don't care about
	// mutexes or file path handling. File path handling is left to
	// the Go standard library which does a much better job than us.
	// See `filepath` and `fs` standard library packages.
	stat := bd.Initialize(fsys.drv)
	if stat&blkdev.StatusNoInit != 0 {
		return frNotReady
	} else if mode&faWrite != 0 && stat&blkdev.StatusProtect != 0 {
		return frWriteProtected
	}
	if ssize == 0 {
		var ss blkdev.SectorSize
		if bd.Control(fsys.drv, &ss) != blkdev.ResultOK {
			return frDiskErr
		}
		ssize = ss.Size
	}
	blk, err := makeBlockIndexer(int(ssize))
	if err != nil || ssize < 512 || ssize > 4096 {
		return frInvalidParameter
	}
	fsys.blk = blk
	fsys.ssize = ssize
	if cap(fsys.win) < int(ssize) {
		fsys.win = make([]byte, ssize)
	}
	fsys.win = fsys.win[:ssize]
	fsys.perm = Mode(mode) & ModeRW

	fmt := fsys.find_volume(fsys.cfg.Partition)
	if fmt == bootsectorstatusDiskError {
		return frDiskErr
	} else if fmt == bootsectorstatusNotFATInvalidBS || fmt == bootsectorstatusNotFATValidBS {
		return frNoFilesystem
	}

	if fmt == bootsectorstatusExFAT {
		fr = fsys.init_exfat()
	} else {
		fr = fsys.init_fat()
	}
	if fr != frOK {
		return fr
	}
	fsys.id++ // Increment filesystem ID, invalidates open files.
	fsys.info("mount_volume", slog.String("type", fsys.fstype.String()),
		slog.Uint64("clusters", uint64(fsys.n_fatent-2)), slog.Int("csize", int(fsys.csize)))
	return frOK
}

func (t fstype) String() string {
	switch t {
	case fstypeFAT12:
		return "FAT12"
	case fstypeFAT16:
		return "FAT16"
	case fstypeFAT32:
		return "FAT32"
	case fstypeExFAT:
		return "exFAT"
	}
	return "unknown"
}

func (fsys *FS) init_fat() FileResult { // Part of mount_volume.
	bsect := fsys.winsect
	ss := fsys.ssize
	bpb := biosParamBlock{data: fsys.win}
	if bpb.SectorSize() != ss {
		return frNoFilesystem
	}
	fsys.debug("init_fat", slog.Any("bpb", &bpb))
	// Number of sectors per FAT.
	fatsize := bpb.SectorsPerFAT()
	fsys.fsize = fatsize
	fsys.nFATs = bpb.NumberOfFATs()
	if fsys.nFATs != 1 && fsys.nFATs != 2 {
		return frNoFilesystem
	}
	fatsize *= uint32(fsys.nFATs)

	fsys.csize = bpb.SectorsPerCluster()
	if fsys.csize == 0 || (fsys.csize&(fsys.csize-1)) != 0 {
		// Zero or not power of two.
		return frNoFilesystem
	}

	fsys.nrootdir = bpb.RootDirEntries()
	if fsys.nrootdir%(ss/sizeDirEntry) != 0 {
		// Is not sector aligned.
		return frNoFilesystem
	}

	totalSectors := bpb.TotalSectors()
	totalReserved := bpb.ReservedSectors()
	if totalReserved == 0 {
		return frNoFilesystem
	}

	// Determine the FAT subtype. RSV+FAT+DIR
	sysect := uint32(totalReserved) + fatsize + uint32(fsys.nrootdir)/(uint32(ss)/sizeDirEntry)
	if totalSectors < sysect {
		return frNoFilesystem
	}
	totalClusters := (totalSectors - sysect) / uint32(fsys.csize)
	if totalClusters == 0 {
		return frNoFilesystem
	}
	var fmt fstype = fstypeFAT12
	switch {
	case totalClusters > clustMaxFAT32:
		return frNoFilesystem // Too many clusters for FAT32.
	case totalClusters > clustMaxFAT16:
		fmt = fstypeFAT32
	case totalClusters > clustMaxFAT12:
		fmt = fstypeFAT16
	}

	// Boundaries and limits.
	fsys.n_fatent = totalClusters + 2
	fsys.volbase = bsect
	fsys.fatbase = bsect + lba(totalReserved)
	fsys.database = bsect + lba(sysect)
	var sizebFAT uint32
	if fmt == fstypeFAT32 {
		if major, minor := bpb.Version(); major != 0 || minor != 0 {
			return frNoFilesystem // Unsupported FAT subversion, must be 0.0.
		} else if fsys.nrootdir != 0 {
			return frNoFilesystem // Root directory entry count must be 0.
		}
		fsys.dirbase = lba(bpb.RootCluster())
		sizebFAT = fsys.n_fatent * 4
	} else {
		if fsys.nrootdir == 0 {
			return frNoFilesystem // Root directory entry count must not be 0.
		}
		fsys.dirbase = fsys.fatbase + lba(fatsize)
		if fmt == fstypeFAT16 {
			sizebFAT = fsys.n_fatent * 2
		} else {
			sizebFAT = fsys.n_fatent*3/2 + fsys.n_fatent&1
		}
	}
	if fsys.fsize < (sizebFAT+uint32(ss-1))/uint32(ss) {
		return frNoFilesystem // FAT size must not be less than FAT sectors.
	}
	// Initialize cluster allocation information for write ops.
	fsys.last_clst = clstUnknown
	fsys.free_clst = clstUnknown
	fsys.fsi_flag = 1 << 7

	// Load FSInfo.
	if fmt == fstypeFAT32 && bpb.FSInfo() == 1 && fsys.move_window(bsect+1) == frOK {
		fsys.fsi_flag = 0
		fsi := fsinfoSector{data: fsys.win}
		lo, mid, _ := fsi.Signatures()
		if fsys.window_u16(bs55AA) == 0xaa55 && lo == 0x41615252 && mid == 0x61417272 {
			fsys.free_clst = fsi.FreeClusterCount()
			fsys.last_clst = fsi.LastAllocatedCluster()
			fsys.debug("init_fat:fsinfo", slog.Any("fsinfo", &fsi))
		}
	}
	fsys.fstype = fmt // Validate the filesystem.
	return frOK
}

func (fsys *FS) init_exfat() FileResult {
	bsect := fsys.winsect
	for i := bpbZeroedEx; i < bpbZeroedEx+53; i++ {
		if fsys.win[i] != 0 {
			return frNoFilesystem // Check zero filler.
		}
	}
	if fsys.window_u16(bpbFSVerEx) != 0x100 {
		return frNoFilesystem // Check exFAT version (must be version 1.0).
	} else if 1<<fsys.win[bpbBytsPerSecEx] != int(fsys.ssize) {
		return frNoFilesystem // Sector size mismatch.
	}
	maxlba := lba(binary.LittleEndian.Uint64(fsys.win[bpbTotSecEx:])) + bsect

	fsys.fsize = fsys.window_u32(bpbFatSzEx)
	fsys.nFATs = fsys.win[bpbNumFATsEx]
	if fsys.nFATs != 1 {
		return frNoFilesystem // Supports only 1 FAT.
	}
	fsys.csize = uint16(1) << fsys.win[bpbSecPerClusEx]
	if fsys.csize == 0 {
		return frNoFilesystem // Must be 1..32768 sectors.
	}
	nclst := fsys.window_u32(bpbNumClusEx)
	if nclst > clustMaxExFAT {
		return frNoFilesystem
	}
	fsys.n_fatent = nclst + 2
	fsys.nrootdir = 0

	fsys.volbase = bsect
	fsys.database = bsect + lba(fsys.window_u32(bpbDataOfsEx))
	fsys.fatbase = bsect + lba(fsys.window_u32(bpbFatOfsEx))
	if maxlba < fsys.database+lba(nclst)*lba(fsys.csize) {
		return frNoFilesystem // Volume size must not be smaller than the size required.
	}
	fsys.dirbase = lba(fsys.window_u32(bpbRootClusEx))

	// Find the allocation bitmap entry in the root directory (first cluster only).
	var so, i uint32
	for {
		if i == 0 {
			if so >= uint32(fsys.csize) {
				return frNoFilesystem
			}
			if fsys.move_window(fsys.clst2sect(uint32(fsys.dirbase))+lba(so)) != frOK {
				return frDiskErr
			}
			so++
		}
		if fsys.win[i] == etBITMAP {
			break
		}
		i = (i + sizeDirEntry) % uint32(fsys.ssize)
	}
	bcl := fsys.window_u32(uint16(i) + 20)
	if bcl < 2 || bcl >= fsys.n_fatent {
		return frNoFilesystem
	}
	fsys.bitbase = fsys.database + lba(fsys.csize)*lba(bcl-2)
	for {
		// Check if the bitmap is contiguous.
		if fsys.move_window(fsys.fatbase+lba(bcl/(uint32(fsys.ssize)/4))) != frOK {
			return frDiskErr
		}
		cv := binary.LittleEndian.Uint32(fsys.win[bcl%(uint32(fsys.ssize)/4)*4:])
		if cv == 0xFFFF_FFFF {
			break
		}
		bcl++
		if cv != bcl {
			return frNoFilesystem // Fragmented bitmap.
		}
	}
	fsys.last_clst = clstUnknown
	fsys.free_clst = clstUnknown
	fsys.fsi_flag = 0
	fsys.fstype = fstypeExFAT
	return frOK
}

func (fsys *FS) disk_status() blkdev.Status {
	return fsys.device.Status(fsys.drv)
}

// find_volume finds a FAT volume on sector 0, the MBR partitions or the GPT.
func (fsys *FS) find_volume(part int) bootsectorstatus {
	fmt := fsys.check_fs(0)
	if fmt != bootsectorstatusNotFATValidBS && (fmt >= bootsectorstatusNotFATInvalidBS || part == 0) {
		// Returns if it is an FAT VBR as auto scan, not a BS or disk error.
		return fmt
	}
	bs, _ := mbr.ToBootSector(fsys.win)
	var starts [mbr.NumPartitions]uint32
	for i := range starts {
		pte := bs.PartitionTable(i)
		if pte.PartitionType() == mbr.PartitionTypeGPTProtective {
			return fsys.find_gpt_volume(part)
		}
		starts[i] = pte.StartLBA()
	}
	if part > mbr.NumPartitions {
		return bootsectorstatusNotFATInvalidBS
	}
	i := 0
	if part > 0 {
		i = part - 1
	}
	for {
		fmt = bootsectorstatusNotFATInvalidBS
		if starts[i] > 0 {
			fmt = fsys.check_fs(lba(starts[i]))
		}
		i++
		if !(part == 0 && fmt >= bootsectorstatusNotFATValidBS && i < mbr.NumPartitions) {
			break
		}
	}
	return fmt
}

// find_gpt_volume scans the basic data partitions of a GPT disk. part selects
// the nth basic data partition, 0 picks the first holding a FAT volume.
func (fsys *FS) find_gpt_volume(part int) bootsectorstatus {
	if fsys.move_window(1) != frOK {
		return bootsectorstatusDiskError
	}
	hdr, err := gpt.ToHeader(fsys.win)
	if err == nil {
		err = hdr.Validate()
	}
	if err != nil {
		fsys.warn("find_gpt_volume:header", slog.String("err", err.Error()))
		return bootsectorstatusNotFATInvalidBS
	}
	nent := hdr.NumberOfPartitionEntries()
	ptlba := lba(hdr.PartitionEntryLBA())
	ss := uint32(fsys.ssize)
	valid := 0
	for i := uint32(0); i < nent; i++ {
		if fsys.move_window(ptlba+lba(i*gpt.EntrySize/ss)) != frOK {
			return bootsectorstatusDiskError
		}
		pte, err := gpt.ToPartitionEntry(fsys.win[i*gpt.EntrySize%ss:])
		if err != nil {
			return bootsectorstatusNotFATInvalidBS
		}
		if pte.PartitionTypeGUID() != gpt.BasicDataGUID {
			continue
		}
		valid++
		guid := pte.UniquePartitionGUID()
		fsys.debug("find_gpt_volume", slog.Int("n", valid), slog.Int64("lba", pte.FirstLBA()),
			slog.String("guid", hex.EncodeToString(guid[:])))
		if part != 0 && valid != part {
			continue
		}
		fmt := fsys.check_fs(lba(pte.FirstLBA()))
		if part != 0 || fmt <= bootsectorstatusExFAT {
			return fmt
		}
	}
	return bootsectorstatusNotFATInvalidBS
}

// check_fs loads sect into the window and identifies a FAT or exFAT VBR.
func (fsys *FS) check_fs(sect lba) bootsectorstatus {
	fsys.invalidate_window()
	fr := fsys.move_window(sect)
	if fr != frOK {
		return bootsectorstatusDiskError
	}
	bsValid := fsys.window_u16(bs55AA) == 0xaa55
	if bsValid && fsys.window_memcmp(bsJmpBoot, "\xEB\x76\x90EXFAT   ") {
		return bootsectorstatusExFAT // exFAT VBR.
	}
	b := fsys.win[bsJmpBoot]
	if b == 0xEB || b == 0xE9 || b == 0xE8 {
		if bsValid && fsys.window_memcmp(bsFilSysType32, "FAT32   ") {
			return bootsectorstatusFAT // FAT32 VBR.
		}
		// Early MS-DOS or FAT12/16 VBR, validate the BPB.
		bpb := biosParamBlock{data: fsys.win}
		w := bpb.SectorSize()
		spc := fsys.win[bpbSecPerClus]
		if w&(w-1) == 0 && w >= 512 && w <= 4096 &&
			spc != 0 && spc&(spc-1) == 0 &&
			bpb.ReservedSectors() != 0 &&
			uint(bpb.NumberOfFATs())-1 <= 1 &&
			bpb.RootDirEntries() != 0 &&
			(fsys.window_u16(bpbTotSec16) >= 128 || fsys.window_u32(bpbTotSec32) >= 0x10000) &&
			fsys.window_u16(bpbFATSz16) != 0 {
			return bootsectorstatusFAT
		}
	}
	return bootsectorstatusNotFATInvalidBS - b2i[bootsectorstatus](bsValid)
}

func (fsys *FS) move_window(sector lba) (fr FileResult) {
	if sector == fsys.winsect {
		return frOK // Do nothing if window offset not changed.
	}
	fr = fsys.sync_window() // Flush window.
	if fr != frOK {
		return fr
	}
	dr := fsys.disk_read(fsys.win, sector, 1)
	if dr != blkdev.ResultOK {
		fsys.logerror("move_window:dr", slog.Uint64("sect", uint64(sector)), slog.String("dr", dr.Error()))
		sector = badLBA // Invalidate window offset if disk error occured.
		fr = frDiskErr
	}
	fsys.winsect = sector
	return fr
}

func (fsys *FS) invalidate_window() {
	fsys.wflag = 0
	fsys.winsect = badLBA
}

func (fsys *FS) window_memcmp(off uint16, data string) bool {
	return int(off)+len(data) <= len(fsys.win) && unsafe.String((*byte)(unsafe.Pointer(&fsys.win[off])), len(data)) == data
}

func (fsys *FS) window_u32(off uint16) uint32 {
	fsys.window_boundscheck(off + 4)
	return binary.LittleEndian.Uint32(fsys.win[off:]) // DWORD size.
}

func (fsys *FS) window_u16(off uint16) uint16 {
	fsys.window_boundscheck(off + 2)
	return binary.LittleEndian.Uint16(fsys.win[off:]) // WORD size.
}

func (fsys *FS) window_boundscheck(lim uint16) {
	if int(lim) > len(fsys.win) {
		panic("window_boundscheck: out of bounds")
	}
}

func (fsys *FS) sync_window() (fr FileResult) {
	if fsys.wflag == 0 {
		return frOK // Disk access window not dirty.
	}
	ret := fsys.disk_write(fsys.win, fsys.winsect, 1)
	if ret != blkdev.ResultOK {
		fsys.logerror("sync_window:dw", slog.Uint64("sect", uint64(fsys.winsect)), slog.String("dr", ret.Error()))
		return frDiskErr
	}
	if fsys.nFATs == 2 && fsys.winsect-fsys.fatbase < lba(fsys.fsize) { // Is in 1st FAT?
		// Reflect it to second FAT if needed.
		fsys.disk_write(fsys.win, fsys.winsect+lba(fsys.fsize), 1) // Redundancy write, ignore error.
	}
	fsys.wflag = 0
	return frOK
}

// sync_fs flushes the window and FSInfo and asks the device to flush its caches.
func (fsys *FS) sync_fs() FileResult {
	fr := fsys.sync_window()
	if fr != frOK {
		return fr
	}
	if fsys.fstype == fstypeFAT32 && fsys.fsi_flag == 1 {
		clear(fsys.win)
		fsi := fsinfoSector{data: fsys.win}
		fsi.SetSignatures(0x41615252, 0x61417272, 0xAA550000)
		fsi.SetFreeClusterCount(fsys.free_clst)
		fsi.SetLastAllocatedCluster(fsys.last_clst)
		fsys.winsect = fsys.volbase + 1
		fsys.disk_write(fsys.win, fsys.winsect, 1)
		fsys.fsi_flag = 0
	}
	if fsys.device.Control(fsys.drv, &blkdev.Sync{}) != blkdev.ResultOK {
		return frDiskErr
	}
	return frOK
}

func (fsys *FS) disk_write(buf []byte, sector lba, numsectors int) blkdev.Result {
	return fsys.device.WriteSectors(fsys.drv, buf[:numsectors*int(fsys.ssize)], uint64(sector), numsectors)
}

func (fsys *FS) disk_read(dst []byte, sector lba, numsectors int) blkdev.Result {
	return fsys.device.ReadSectors(fsys.drv, dst[:numsectors*int(fsys.ssize)], uint64(sector), numsectors)
}

// disk_trim hints the device that sectors start..end hold no data. Errors are ignored.
func (fsys *FS) disk_trim(start, end lba) {
	fsys.device.Control(fsys.drv, &blkdev.Trim{Start: uint64(start), End: uint64(end)})
}

// fattime returns the current time packed as FAT date<<16 | time.
func (fsys *FS) fattime() uint32 {
	now := time.Now
	if fsys.cfg.Now != nil {
		now = fsys.cfg.Now
	}
	dt := newDatetime(now())
	return uint32(dt.date)<<16 | uint32(dt.time)
}

// validate checks the object belongs to the current mount of a ready volume.
func (obj *objid) validate() FileResult {
	fsys := obj.fs
	if fsys == nil || fsys.fstype == fstypeUnknown || obj.id != fsys.id {
		return frInvalidObject
	} else if fsys.disk_status()&blkdev.StatusNoInit != 0 {
		return frNotReady
	}
	return frOK
}

// Sector size divide and modulus.

func (fsys *FS) divSS(n uint32) uint32 { return uint32(fsys.blk.idx(int64(n))) }
func (fsys *FS) modSS(n uint32) uint32 { return uint32(fsys.blk.off(int64(n))) }

// clst2sect returns the physical sector number from a cluster number.
// Returns 0 if the cluster is invalid.
func (fsys *FS) clst2sect(clst uint32) lba {
	clst -= 2
	if clst >= fsys.n_fatent-2 {
		return 0
	}
	return fsys.database + lba(fsys.csize)*lba(clst)
}

// bytesPerCluster returns the cluster size in bytes.
func (fsys *FS) bytesPerCluster() uint32 {
	return uint32(fsys.csize) * uint32(fsys.ssize)
}

func (fsys *FS) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if fsys.cfg.Logger != nil {
		fsys.cfg.Logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func (fsys *FS) debug(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelDebug, msg, attrs...)
}
func (fsys *FS) info(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelInfo, msg, attrs...)
}
func (fsys *FS) warn(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelWarn, msg, attrs...)
}
func (fsys *FS) logerror(msg string, attrs ...slog.Attr) {
	fsys.logattrs(slog.LevelError, msg, attrs...)
}

// blkIdxer is a helper for calculating block indexes and offsets.
type blkIdxer struct {
	blockshift int64
	blockmask  int64
}

func makeBlockIndexer(blockSize int) (blkIdxer, error) {
	if blockSize <= 0 {
		return blkIdxer{}, errors.New("blockSize must be positive and non-zero")
	}
	tz := bits.TrailingZeros(uint(blockSize))
	if blockSize>>tz != 1 {
		return blkIdxer{}, errors.New("blockSize must be a power of 2")
	}
	blk := blkIdxer{
		blockshift: int64(tz),
		blockmask:  (1 << tz) - 1,
	}
	return blk, nil
}

// off gets the offset of the byte at byteIdx from the start of its block.
func (blk *blkIdxer) off(byteIdx int64) int64 { return byteIdx & blk.blockmask }

// idx gets the block index that contains the byte at byteIdx.
func (blk *blkIdxer) idx(byteIdx int64) int64 { return byteIdx >> blk.blockshift }

type _integer interface {
	~uint8 | ~uint16 | ~uint32 | ~int32 | ~int | ~uint
}

func b2i[T _integer](b bool) T {
	if b {
		return 1
	}
	return 0
}

func trimSeparatorPrefix(s string) string {
	for len(s) > 0 && isSep(s[0]) {
		s = s[1:]
	}
	return s
}

func isUpper[T _integer](c T) bool { return 'A' <= c && c <= 'Z' }
func isLower[T _integer](c T) bool { return 'a' <= c && c <= 'z' }
func isSep[T _integer](c T) bool { return c == '/' || c == '\\' }
func isTermLFN[T _integer](c T) bool { return c < ' ' }
func isSurrogate(c uint16) bool { return c >= 0xd800 && c <= 0xdfff }

// str returns the NUL terminated string in b.
func str(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// clipname removes trailing spaces and NULs.
func clipname(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == 0) {
		b = b[:len(b)-1]
	}
	return b
}
