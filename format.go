package fat

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math/bits"
	"time"

	"github.com/soypat/fatfs/blkdev"
	"github.com/soypat/fatfs/internal/mbr"
)

// Format is a FAT sub-type selectable when formatting a volume.
type Format uint8

const (
	// FormatAuto picks FAT12/16, FAT32 or exFAT from the volume size.
	FormatAuto Format = iota
	FormatFAT12
	FormatFAT16
	FormatFAT32
	FormatExFAT
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatFAT12:
		return "FAT12"
	case FormatFAT16:
		return "FAT16"
	case FormatFAT32:
		return "FAT32"
	case FormatExFAT:
		return "exFAT"
	}
	return "Format?"
}

// mkfs format option bits.
const (
	fmFAT   = 0x01
	fmFAT32 = 0x02
	fmExFAT = 0x04
	fmAny   = fmFAT | fmFAT32 | fmExFAT
)

// Sectors per track used for the partition offset and CHS geometry.
const nSecTrack = 63

// Cluster size boundaries for FAT12/16 (4k sector units) and FAT32 (128k sector units).
var (
	cst   = [...]uint32{1, 4, 16, 64, 256, 512}
	cst32 = [...]uint32{1, 2, 4, 8, 16, 32}
)

// Formatter creates FAT and exFAT volumes on a block device. The zero value is
// ready to use and reuses its work buffer across calls.
type Formatter struct {
	buf []byte
	bd  BlockDevice
	drv uint8
	ss  int
	log *slog.Logger
}

// FormatConfig configures a Format call. The zero value formats an
// unpartitioned volume choosing the type and cluster size automatically.
type FormatConfig struct {
	// Label is the volume label. Empty leaves the volume unlabeled.
	Label string
	// ClusterSize is the size of a cluster in sectors. 0 selects by volume size.
	// FAT12/16/32 volumes are limited to 128 sectors per cluster.
	ClusterSize int
	// Format selects the FAT sub-type. FormatFAT12 and FormatFAT16 both
	// allow either sub-type, the cluster count decides which one is used.
	Format Format
	// NumberOfFATs is 1 or 2 for FAT12/16/32. 0 defaults to 1. exFAT always has 1.
	NumberOfFATs int
	// RootEntries is the number of FAT12/16 root directory entries. 0 defaults to 512.
	RootEntries int
	// Partitioned writes an MBR with a single partition holding the volume.
	// When false the volume starts at sector 0 (super floppy).
	Partitioned bool
	// Align is the erase block size in sectors the data area is aligned to.
	// 0 queries the device and falls back to 1.
	Align int
	// Drive is the physical drive number passed to the device.
	Drive uint8
	// Now supplies the time used for the volume serial number. Defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

var errFormatArgs = errors.New("fat: invalid format arguments")

// Format creates a new volume on bd, destroying any data on it. blocksize is
// the sector size in bytes and sizeInBlocks the number of sectors to use. Either
// may be 0 in which case the device is queried.
func (f *Formatter) Format(bd BlockDevice, blocksize, sizeInBlocks int, cfg FormatConfig) error {
	if bd == nil || blocksize < 0 || sizeInBlocks < 0 || cfg.ClusterSize < 0 {
		return errFormatArgs
	}
	f.bd = bd
	f.drv = cfg.Drive
	f.log = cfg.Logger
	stat := bd.Initialize(f.drv)
	if stat&blkdev.StatusNoInit != 0 {
		return frNotReady
	} else if stat&blkdev.StatusProtect != 0 {
		return frWriteProtected
	}
	if blocksize == 0 {
		var ss blkdev.SectorSize
		if bd.Control(f.drv, &ss) != blkdev.ResultOK {
			return frDiskErr
		}
		blocksize = int(ss.Size)
	}
	if blocksize < 512 || blocksize > 4096 || blocksize&(blocksize-1) != 0 {
		return frInvalidParameter
	}
	f.ss = blocksize
	if sizeInBlocks == 0 {
		var sc blkdev.SectorCount
		if bd.Control(f.drv, &sc) != blkdev.ResultOK {
			return frDiskErr
		}
		sizeInBlocks = int(sc.Count)
	}
	// Work buffer of up to 32 sectors.
	const maxBufSectors = 32
	if cap(f.buf) < maxBufSectors*blocksize {
		f.buf = make([]byte, maxBufSectors*blocksize)
	}
	f.buf = f.buf[:maxBufSectors*blocksize]

	fr := f.mkfs(uint64(sizeInBlocks), &cfg)
	if fr != frOK {
		f.logattrs(slog.LevelError, "mkfs:failed", slog.String("fr", fr.String()))
		return fr
	}
	if cfg.Label != "" {
		var fsys FS
		fsys.Configure(Config{Logger: cfg.Logger, Drive: cfg.Drive, Now: cfg.Now})
		if err := fsys.Mount(bd, blocksize, ModeRW); err != nil {
			return err
		}
		if err := fsys.SetLabel(cfg.Label); err != nil {
			fsys.Unmount()
			return err
		}
		return fsys.Unmount()
	}
	return nil
}

func (f *Formatter) mkfs(szDrv uint64, cfg *FormatConfig) FileResult {
	ss := uint32(f.ss)
	szBuf := uint32(len(f.buf)) / ss

	szBlk := uint32(cfg.Align)
	if szBlk == 0 {
		var bs blkdev.BlockSize
		if f.bd.Control(f.drv, &bs) == blkdev.ResultOK {
			szBlk = bs.Sectors
		}
	}
	if szBlk == 0 || szBlk > 0x8000 || szBlk&(szBlk-1) != 0 {
		szBlk = 1
	}
	var fsopt uint8
	switch cfg.Format {
	case FormatAuto:
		fsopt = fmAny
	case FormatFAT12, FormatFAT16:
		fsopt = fmFAT
	case FormatFAT32:
		fsopt = fmFAT32
	case FormatExFAT:
		fsopt = fmExFAT
	default:
		return frInvalidParameter
	}
	nFAT := uint32(1)
	if cfg.NumberOfFATs == 2 {
		nFAT = 2
	} else if cfg.NumberOfFATs > 2 {
		return frInvalidParameter
	}
	nRoot := uint32(512)
	if cfg.RootEntries != 0 {
		nRoot = uint32(cfg.RootEntries)
		if nRoot > 32768 || nRoot%(ss/sizeDirEntry) != 0 {
			return frInvalidParameter
		}
	}
	szAU := uint32(cfg.ClusterSize)
	if szAU&(szAU-1) != 0 || uint64(szAU)*uint64(ss) > 0x2000000 {
		return frInvalidParameter
	}

	var bVol lba
	szVol := szDrv
	if cfg.Partitioned && szVol > nSecTrack {
		bVol = nSecTrack
		szVol -= nSecTrack
	}
	if szVol < 128 {
		return frMkfsAborted
	}
	if szVol > 0xFFFF_FFFF && fsopt&fmExFAT == 0 {
		return frMkfsAborted // Too large for FAT/FAT32 and no MBR partition could hold it.
	}

	var fsty fstype
	switch {
	case fsopt&fmExFAT != 0 && (fsopt == fmExFAT || szVol >= 0x4000000 || szAU > 128):
		fsty = fstypeExFAT
	default:
		if szAU > 128 {
			szAU = 128
		}
		if fsopt&fmFAT32 != 0 && fsopt&fmFAT == 0 {
			fsty = fstypeFAT32
		} else {
			fsty = fstypeFAT16
		}
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	dt := newDatetime(now())
	vsn := uint32(szVol) + dt.packed()

	var fr FileResult
	if fsty == fstypeExFAT {
		fr = f.mkexfat(bVol, szVol, szAU, szBlk, szBuf, vsn)
	} else {
		fsty, fr = f.mkfat(fsty, fsopt, bVol, szVol, szAU, szBlk, nFAT, nRoot, vsn)
	}
	if fr != frOK {
		return fr
	}
	f.logattrs(slog.LevelInfo, "mkfs:created", slog.String("type", fsty.String()),
		slog.Uint64("base", uint64(bVol)), slog.Uint64("sectors", szVol))

	if cfg.Partitioned {
		var sys mbr.PartitionType
		switch {
		case fsty == fstypeExFAT:
			sys = mbr.PartitionTypeExFAT
		case fsty == fstypeFAT32:
			sys = mbr.PartitionTypeFAT32LBA
		case szVol >= 0x10000:
			sys = mbr.PartitionTypeFAT16B
		case fsty == fstypeFAT16:
			sys = mbr.PartitionTypeFAT16
		default:
			sys = mbr.PartitionTypeFAT12
		}
		if fr := f.createPartition(szDrv, bVol, szVol, sys); fr != frOK {
			return fr
		}
	}
	if f.bd.Control(f.drv, &blkdev.Sync{}) != blkdev.ResultOK {
		return frDiskErr
	}
	return frOK
}

// mkexfat writes an exFAT volume of szVol sectors at bVol.
func (f *Formatter) mkexfat(bVol lba, szVol uint64, szAU, szBlk, szBuf, vsn uint32) FileResult {
	ss := uint32(f.ss)
	buf := f.buf
	le := binary.LittleEndian
	if szVol < 0x1000 {
		return frMkfsAborted
	}
	f.trim(bVol, bVol+lba(szVol)-1)
	if szAU == 0 {
		szAU = 8
		if szVol >= 0x80000 {
			szAU = 64
		}
		if szVol >= 0x4000000 {
			szAU = 256
		}
	}
	bFAT := bVol + 32
	szFAT := uint32((szVol/uint64(szAU)+2)*4+uint64(ss)-1) / ss
	bData := (bFAT + lba(szFAT) + lba(szBlk) - 1) &^ (lba(szBlk) - 1)
	if uint64(bData-bVol) >= szVol/2 {
		return frMkfsAborted
	}
	nClst := (szVol - uint64(bData-bVol)) / uint64(szAU)
	if nClst < 16 || nClst > clustMaxExFAT {
		return frMkfsAborted
	}
	clusterBytes := szAU * ss
	szbBit := uint32(nClst+7) / 8
	var clen [3]uint32
	clen[0] = (szbBit + clusterBytes - 1) / clusterBytes

	// Compressed up-case table: runs of 128 or more unchanged characters
	// are stored as 0xFFFF followed by the run length.
	sect := bData + lba(szAU*clen[0])
	var (
		sum     uint32
		st      int
		si      uint16
		j       uint32
		i       int
		szbCase uint32
	)
	clear(buf)
	for {
		var ch uint16
		switch st {
		case 0:
			ch = wtoupper(si)
			if ch != si {
				si++
				break
			}
			for j = 1; si+uint16(j) != 0 && si+uint16(j) == wtoupper(si+uint16(j)); j++ {
			}
			if j >= 128 {
				ch = 0xFFFF
				st = 2
				break
			}
			st = 1
			fallthrough
		case 1:
			ch = si
			si++
			j--
			if j == 0 {
				st = 0
			}
		default:
			ch = uint16(j)
			si += uint16(j)
			st = 0
		}
		buf[i] = byte(ch)
		buf[i+1] = byte(ch >> 8)
		sum = xsum32(buf[i], sum)
		sum = xsum32(buf[i+1], sum)
		i += 2
		szbCase += 2
		if si == 0 || i == len(buf) {
			n := (uint32(i) + ss - 1) / ss
			if fr := f.write(sect, n); fr != frOK {
				return fr
			}
			sect += lba(n)
			clear(buf)
			i = 0
		}
		if si == 0 {
			break
		}
	}
	clen[1] = (szbCase + clusterBytes - 1) / clusterBytes
	clen[2] = 1 // Root directory.

	// Allocation bitmap with the system clusters marked in use.
	sect = bData
	nsect := (szbBit + ss - 1) / ss
	nbit := clen[0] + clen[1] + clen[2]
	for nsect > 0 {
		clear(buf)
		for i := 0; nbit != 0 && i/8 < len(buf); i++ {
			buf[i/8] |= 1 << (i % 8)
			nbit--
		}
		n := min(nsect, szBuf)
		if fr := f.write(sect, n); fr != frOK {
			return fr
		}
		sect += lba(n)
		nsect -= n
	}

	// FAT with the chains of the bitmap, up-case table and root directory.
	sect = bFAT
	nsect = szFAT
	var clu uint32
	nbit = 0
	j = 0
	for nsect > 0 {
		clear(buf)
		i := 0
		if clu == 0 {
			le.PutUint32(buf[0:], 0xFFFFFFF8)
			le.PutUint32(buf[4:], 0xFFFFFFFF)
			i, clu = 8, 2
		}
		for {
			for nbit != 0 && i < len(buf) {
				next := clu + 1
				if nbit == 1 {
					next = 0xFFFFFFFF
				}
				le.PutUint32(buf[i:], next)
				i += 4
				clu++
				nbit--
			}
			if nbit == 0 && j < 3 {
				nbit = clen[j]
				j++
			}
			if nbit == 0 || i >= len(buf) {
				break
			}
		}
		n := min(nsect, szBuf)
		if fr := f.write(sect, n); fr != frOK {
			return fr
		}
		sect += lba(n)
		nsect -= n
	}

	// Root directory: empty label, bitmap and up-case table entries.
	clear(buf)
	buf[0] = etVLABEL
	buf[sizeDirEntry] = etBITMAP
	le.PutUint32(buf[sizeDirEntry+20:], 2)
	le.PutUint64(buf[sizeDirEntry+24:], uint64(szbBit))
	buf[2*sizeDirEntry] = etUPCASE
	le.PutUint32(buf[2*sizeDirEntry+4:], sum)
	le.PutUint32(buf[2*sizeDirEntry+20:], 2+clen[0])
	le.PutUint64(buf[2*sizeDirEntry+24:], uint64(szbCase))
	sect = bData + lba(szAU*(clen[0]+clen[1]))
	nsect = szAU
	for nsect > 0 {
		n := min(nsect, szBuf)
		if fr := f.write(sect, n); fr != frOK {
			return fr
		}
		clear(buf[:ss])
		sect += lba(n)
		nsect -= n
	}

	// Main and backup boot regions, 12 sectors each.
	sect = bVol
	for n := 0; n < 2; n++ {
		clear(buf[:ss])
		copy(buf[bsJmpBoot:], "\xEB\x76\x90EXFAT   ")
		le.PutUint64(buf[bpbVolOfsEx:], uint64(bVol))
		le.PutUint64(buf[bpbTotSecEx:], szVol)
		le.PutUint32(buf[bpbFatOfsEx:], uint32(bFAT-bVol))
		le.PutUint32(buf[bpbFatSzEx:], szFAT)
		le.PutUint32(buf[bpbDataOfsEx:], uint32(bData-bVol))
		le.PutUint32(buf[bpbNumClusEx:], uint32(nClst))
		le.PutUint32(buf[bpbRootClusEx:], 2+clen[0]+clen[1])
		le.PutUint32(buf[bpbVolIDEx:], vsn)
		le.PutUint16(buf[bpbFSVerEx:], 0x100)
		buf[bpbBytsPerSecEx] = byte(bits.TrailingZeros32(ss))
		buf[bpbSecPerClusEx] = byte(bits.TrailingZeros32(szAU))
		buf[bpbNumFATsEx] = 1
		buf[bpbDrvNumEx] = 0x80
		le.PutUint16(buf[bsBootCodeEx:], 0xFEEB)
		le.PutUint16(buf[bs55AA:], 0xAA55)
		sum = 0
		for i := uint32(0); i < ss; i++ {
			if i != bpbVolFlagEx && i != bpbVolFlagEx+1 && i != bpbPercInUseEx {
				sum = xsum32(buf[i], sum)
			}
		}
		if fr := f.write(sect, 1); fr != frOK {
			return fr
		}
		sect++
		// Extended boot sectors.
		clear(buf[:ss])
		le.PutUint16(buf[ss-2:], 0xAA55)
		for k := 1; k < 9; k++ {
			for i := uint32(0); i < ss; i++ {
				sum = xsum32(buf[i], sum)
			}
			if fr := f.write(sect, 1); fr != frOK {
				return fr
			}
			sect++
		}
		// OEM parameters and reserved sector.
		clear(buf[:ss])
		for k := 9; k < 11; k++ {
			for i := uint32(0); i < ss; i++ {
				sum = xsum32(buf[i], sum)
			}
			if fr := f.write(sect, 1); fr != frOK {
				return fr
			}
			sect++
		}
		// Checksum sector.
		for i := uint32(0); i < ss; i += 4 {
			le.PutUint32(buf[i:], sum)
		}
		if fr := f.write(sect, 1); fr != frOK {
			return fr
		}
		sect++
	}
	return frOK
}

// mkfat writes a FAT12/16/32 volume of szVol sectors at bVol and returns the
// sub-type it settled on.
func (f *Formatter) mkfat(fsty fstype, fsopt uint8, bVol lba, szVol uint64, szAU, szBlk, nFAT, nRoot, vsn uint32) (fstype, FileResult) {
	ss := uint32(f.ss)
	vol := uint32(szVol)
	var (
		pau, nClst, szFAT, szRsv, szDir uint32
		bFAT, bData                     lba
	)
	for {
		pau = szAU
		if fsty == fstypeFAT32 {
			if pau == 0 {
				n := vol / 0x20000
				pau = 1
				for i := 0; i < len(cst32) && cst32[i] <= n; i++ {
					pau <<= 1
				}
			}
			nClst = vol / pau
			szFAT = (nClst*4 + 8 + ss - 1) / ss
			szRsv = 32
			szDir = 0
			if nClst <= clustMaxFAT16 || nClst > clustMaxFAT32 {
				return fsty, frMkfsAborted
			}
		} else {
			if pau == 0 {
				n := vol / 0x1000
				pau = 1
				for i := 0; i < len(cst) && cst[i] <= n; i++ {
					pau <<= 1
				}
			}
			nClst = vol / pau
			var n uint32
			if nClst > clustMaxFAT12 {
				n = nClst*2 + 4
			} else {
				fsty = fstypeFAT12
				n = (nClst*3+1)/2 + 3
			}
			szFAT = (n + ss - 1) / ss
			szRsv = 1
			szDir = nRoot * sizeDirEntry / ss
		}
		bFAT = bVol + lba(szRsv)
		bData = bFAT + lba(szFAT*nFAT+szDir)

		// Align the data area to the erase block boundary.
		n := uint32(((bData + lba(szBlk) - 1) &^ (lba(szBlk) - 1)) - bData)
		if fsty == fstypeFAT32 {
			szRsv += n
			bFAT += lba(n)
		} else {
			if n%nFAT != 0 {
				n--
				szRsv++
				bFAT++
			}
			szFAT += n / nFAT
		}

		if uint64(vol) < uint64(bData-bVol)+uint64(pau)*16 {
			return fsty, frMkfsAborted
		}
		nClst = (vol - szRsv - szFAT*nFAT - szDir) / pau
		if fsty == fstypeFAT32 && nClst <= clustMaxFAT16 {
			if szAU == 0 {
				if szAU = pau / 2; szAU != 0 {
					continue
				}
			}
			return fsty, frMkfsAborted
		}
		if fsty == fstypeFAT16 {
			if nClst > clustMaxFAT16 {
				if szAU == 0 && pau*2 <= 64 {
					szAU = pau * 2
					continue
				}
				if fsopt&fmFAT32 != 0 {
					fsty = fstypeFAT32
					continue
				}
				if szAU == 0 {
					if szAU = pau * 2; szAU <= 128 {
						continue
					}
				}
				return fsty, frMkfsAborted
			}
			if nClst <= clustMaxFAT12 {
				if szAU == 0 {
					if szAU = pau * 2; szAU <= 128 {
						continue
					}
				}
				return fsty, frMkfsAborted
			}
		}
		if fsty == fstypeFAT12 && nClst > clustMaxFAT12 {
			return fsty, frMkfsAborted
		}
		break
	}
	f.trim(bVol, bVol+lba(szVol)-1)

	buf := f.buf
	le := binary.LittleEndian
	fat32 := fsty == fstypeFAT32
	clear(buf[:ss])
	bs := biosParamBlock{data: buf[:ss]}
	copy(buf[bsJmpBoot:], "\xEB\xFE\x90")
	bs.SetOEMName("MSDOS5.0")
	bs.SetSectorSize(uint16(ss))
	bs.SetSectorsPerCluster(uint16(pau))
	bs.SetReservedSectors(uint16(szRsv))
	bs.SetNumberOfFATs(uint8(nFAT))
	if !fat32 {
		bs.SetRootDirEntries(uint16(nRoot))
	}
	bs.SetTotalSectors(vol)
	buf[bpbMedia] = 0xF8
	le.PutUint16(buf[bpbSecPerTrk:], nSecTrack)
	le.PutUint16(buf[bpbNumHeads:], 255)
	le.PutUint32(buf[bpbHiddSec:], uint32(bVol))
	bs.SetSectorsPerFAT(szFAT, fat32)
	if fat32 {
		bs.SetRootCluster(2)
		le.PutUint16(buf[bpbFSInfo32:], 1)
		le.PutUint16(buf[bpbBkBootSec32:], 6)
		bs.setExtended(true, 0x80, vsn, "FAT32   ")
	} else {
		bs.setExtended(false, 0x80, vsn, "FAT     ")
	}
	le.PutUint16(buf[bs55AA:], 0xAA55)
	if fr := f.write(bVol, 1); fr != frOK {
		return fsty, fr
	}

	if fat32 {
		f.write(bVol+6, 1) // Backup boot sector.
		clear(buf[:ss])
		fsi := fsinfoSector{data: buf[:ss]}
		fsi.SetSignatures(0x41615252, 0x61417272, 0xAA550000)
		fsi.SetFreeClusterCount(nClst - 1)
		fsi.SetLastAllocatedCluster(2)
		f.write(bVol+7, 1) // Backup FSInfo.
		f.write(bVol+1, 1)
	}

	// FAT area.
	szBuf := uint32(len(buf)) / ss
	clear(buf)
	sect := bFAT
	for i := uint32(0); i < nFAT; i++ {
		switch fsty {
		case fstypeFAT32:
			le.PutUint32(buf[0:], 0xFFFFFFF8)
			le.PutUint32(buf[4:], 0xFFFFFFFF)
			le.PutUint32(buf[8:], 0x0FFFFFFF) // Root directory.
		case fstypeFAT16:
			le.PutUint32(buf[0:], 0xFFFFFFF8)
		default:
			le.PutUint32(buf[0:], 0x00FFFFF8)
		}
		for nsect := szFAT; nsect > 0; {
			n := min(nsect, szBuf)
			if fr := f.write(sect, n); fr != frOK {
				return fsty, fr
			}
			clear(buf[:ss])
			sect += lba(n)
			nsect -= n
		}
	}

	// Root directory, static area on FAT12/16 or cluster 2 on FAT32.
	nsect := szDir
	if fat32 {
		nsect = pau
	}
	for nsect > 0 {
		n := min(nsect, szBuf)
		if fr := f.write(sect, n); fr != frOK {
			return fsty, fr
		}
		sect += lba(n)
		nsect -= n
	}
	return fsty, frOK
}

// createPartition writes an MBR with a single partition of szVol sectors at bVol.
func (f *Formatter) createPartition(szDrv uint64, bVol lba, szVol uint64, sys mbr.PartitionType) FileResult {
	drv32 := uint32(min(szDrv, 0xFFFF_FFFF))
	heads := uint32(8)
	for heads != 0 && drv32/heads/nSecTrack > 1024 {
		heads *= 2
		if heads > 128 {
			heads = 0
		}
	}
	if heads == 0 {
		heads = 255
	}
	start := uint32(bVol)
	n := uint32(min(szVol, uint64(drv32-start)))
	buf := f.buf[:f.ss]
	clear(buf)
	bs, err := mbr.ToBootSector(buf)
	if err != nil {
		return frIntErr
	}
	pte := mbr.MakePTE(0, sys, start, n,
		mbr.LBAToCHS(start, uint8(heads), nSecTrack), mbr.LBAToCHS(start+n-1, uint8(heads), nSecTrack))
	bs.SetPartitionTable(0, pte)
	bs.SetBootSignature()
	return f.write(0, 1)
}

func (f *Formatter) write(sect lba, n uint32) FileResult {
	if f.bd.WriteSectors(f.drv, f.buf[:int(n)*f.ss], uint64(sect), int(n)) != blkdev.ResultOK {
		return frDiskErr
	}
	return frOK
}

func (f *Formatter) trim(start, end lba) {
	f.bd.Control(f.drv, &blkdev.Trim{Start: uint64(start), End: uint64(end)})
}

func (f *Formatter) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if f.log != nil {
		f.log.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
