package fat

import (
	"encoding/binary"
	"log/slog"
	"strconv"
	"time"
)

// biosParamBlock a.k.a BPB is the BIOS Parameter Block of FAT12/16/32 volumes.
// It provides details on the filesystem type (FAT12, FAT16, FAT32),
// sectors per cluster, total sectors, FAT size, and more, which are essential
// for understanding the filesystem layout and capacity.
type biosParamBlock struct {
	data []byte
}

// fsinfoSector is the FS Information Sector for FAT32 volumes.
type fsinfoSector struct {
	data []byte
}

// dirSector is a single 32 byte short file name directory entry.
type dirSector struct {
	data []byte
}

type datetime struct {
	time uint16
	date uint16
	fine uint8
}

func newDatetime(t time.Time) datetime {
	hour, min, sec := t.Clock()
	year := t.Year() - 1980
	if year < 0 {
		return datetime{date: 1<<5 | 1} // 1980-01-01
	} else if year > 127 {
		year = 127
	}
	return datetime{
		time: uint16(hour<<11 | min<<5 | sec/2),
		date: uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day()),
		fine: uint8(t.Nanosecond()/10e6) + 100*uint8(sec%2),
	}
}

// fatDatetime unpacks a FAT timestamp packed as date<<16 | time.
func (dt datetime) packed() uint32 { return uint32(dt.date)<<16 | uint32(dt.time) }

func (dt datetime) Milliseconds() int {
	if dt.fine >= 100 {
		return 10 * int(dt.fine-100)
	}
	return 10 * int(dt.fine)
}

func (dt datetime) Date() (year int, month time.Month, day int) {
	yearSince1980 := int(dt.date >> 9)
	month = time.Month((dt.date >> 5) & 0xf)
	day = int(dt.date & 0x1f)
	return 1980 + yearSince1980, month, day
}

func (dt datetime) Clock() (hour, min, sec int) {
	hour = int(dt.time >> 11)
	min = int((dt.time >> 5) & 0x3f)
	sec = 2 * int(dt.time&0x1f)
	if dt.fine >= 100 {
		sec += 1
	}
	return hour, min, sec
}

func (dt datetime) Time() time.Time {
	// https://www.win.tue.nl/~aeb/linux/fs/fat/fat-1.html
	hour, min, sec := dt.Clock()
	year, month, day := dt.Date()
	return time.Date(year, month, day, hour, min, sec, 1e6*dt.Milliseconds(), time.UTC)
}

// SectorSize returns the size of a sector in bytes.
func (bs *biosParamBlock) SectorSize() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbBytsPerSec:])
}

// SetSectorSize sets the size of a sector in bytes.
func (bs *biosParamBlock) SetSectorSize(size uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbBytsPerSec:], size)
}

// SectorsPerFAT returns the number of sectors per File Allocation Table.
func (bs *biosParamBlock) SectorsPerFAT() uint32 {
	fatsz := uint32(binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]))
	if fatsz == 0 {
		fatsz = binary.LittleEndian.Uint32(bs.data[bpbFATSz32:])
	}
	return fatsz
}

// SetSectorsPerFAT sets the number of sectors per File Allocation Table.
// FAT12/16 volumes store the 16 bit field.
func (bs *biosParamBlock) SetSectorsPerFAT(fatsz uint32, fat32 bool) {
	if fat32 {
		binary.LittleEndian.PutUint16(bs.data[bpbFATSz16:], 0)
		binary.LittleEndian.PutUint32(bs.data[bpbFATSz32:], fatsz)
		return
	}
	binary.LittleEndian.PutUint16(bs.data[bpbFATSz16:], uint16(fatsz))
}

// NumberOfFATs returns the number of File Allocation Tables. Should be 1 or 2.
func (bs *biosParamBlock) NumberOfFATs() uint8 {
	return bs.data[bpbNumFATs]
}

// SetNumberOfFATs sets the number of FATs.
func (bs *biosParamBlock) SetNumberOfFATs(nfats uint8) {
	bs.data[bpbNumFATs] = nfats
}

// SectorsPerCluster returns the number of sectors per cluster.
// Should be a power of 2 and not larger than 128.
func (bs *biosParamBlock) SectorsPerCluster() uint16 {
	return uint16(bs.data[bpbSecPerClus])
}

// SetSectorsPerCluster sets the number of sectors per cluster. Should be power of 2.
func (bs *biosParamBlock) SetSectorsPerCluster(spclus uint16) {
	bs.data[bpbSecPerClus] = byte(spclus)
}

// ReservedSectors returns the number of reserved sectors at the beginning of the volume.
// Should be at least 1. Reserved sectors include the boot sector, FS information sector and
// redundant sectors with these first two. The number of reserved sectors is usually
// 32 for FAT32 systems (~16k for 512 byte sectors).
// Sectors 6 and 7 are usually the backup boot sector and the FS information sector, respectively.
func (bs *biosParamBlock) ReservedSectors() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRsvdSecCnt:])
}

// SetReservedSectors sets the number of reserved sectors at the beginning of the volume.
func (bs *biosParamBlock) SetReservedSectors(rsvd uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbRsvdSecCnt:], rsvd)
}

// TotalSectors returns the total number of sectors in the volume that
// can be used by the filesystem.
func (bs *biosParamBlock) TotalSectors() uint32 {
	totsec := uint32(binary.LittleEndian.Uint16(bs.data[bpbTotSec16:]))
	if totsec == 0 {
		totsec = binary.LittleEndian.Uint32(bs.data[bpbTotSec32:])
	}
	return totsec
}

// SetTotalSectors sets the total number of sectors in the volume. Counts that
// fit in 16 bits use the 16 bit field.
func (bs *biosParamBlock) SetTotalSectors(totsec uint32) {
	if totsec < 0x10000 {
		binary.LittleEndian.PutUint16(bs.data[bpbTotSec16:], uint16(totsec))
		binary.LittleEndian.PutUint32(bs.data[bpbTotSec32:], 0)
		return
	}
	binary.LittleEndian.PutUint16(bs.data[bpbTotSec16:], 0)
	binary.LittleEndian.PutUint32(bs.data[bpbTotSec32:], totsec)
}

// RootDirEntries returns the number of entries in the FAT12/16 root directory.
// Should be divisible by SectorSize/32.
func (bs *biosParamBlock) RootDirEntries() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbRootEntCnt:])
}

// SetRootDirEntries sets the number of entries in the root directory.
func (bs *biosParamBlock) SetRootDirEntries(entries uint16) {
	binary.LittleEndian.PutUint16(bs.data[bpbRootEntCnt:], entries)
}

// RootCluster returns the first cluster of the root directory.
func (bs *biosParamBlock) RootCluster() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbRootClus32:])
}

// SetRootCluster sets the first cluster of the root directory.
func (bs *biosParamBlock) SetRootCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(bs.data[bpbRootClus32:], cluster)
}

// Version returns the filesystem version, should be 0.0 for FAT32.
func (bs *biosParamBlock) Version() (major, minor uint8) {
	return bs.data[bpbFSVer32+1], bs.data[bpbFSVer32]
}

func (bs *biosParamBlock) is32() bool {
	return binary.LittleEndian.Uint16(bs.data[bpbFATSz16:]) == 0
}

// ExtendedBootSignature returns 0x29 when the volume ID, label and type fields are valid.
func (bs *biosParamBlock) ExtendedBootSignature() uint8 {
	if bs.is32() {
		return bs.data[bsBootSig32]
	}
	return bs.data[bsBootSig]
}

// BootSignature returns the boot signature at offset 510 which should be 0xAA55.
func (bs *biosParamBlock) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bs55AA:])
}

// FSInfo returns the sector number of the FS Information Sector.
// Expect =1 for FAT32.
func (bs *biosParamBlock) FSInfo() uint16 {
	return binary.LittleEndian.Uint16(bs.data[bpbFSInfo32:])
}

// DriveNumber returns the drive number.
func (bs *biosParamBlock) DriveNumber() uint8 {
	if bs.is32() {
		return bs.data[bsDrvNum32]
	}
	return bs.data[bsDrvNum]
}

// VolumeSerialNumber returns the volume serial number.
func (bs *biosParamBlock) VolumeSerialNumber() uint32 {
	if bs.is32() {
		return binary.LittleEndian.Uint32(bs.data[bsVolID32:])
	}
	return binary.LittleEndian.Uint32(bs.data[bsVolID:])
}

// VolumeLabel returns the volume label string.
func (bs *biosParamBlock) VolumeLabel() [11]byte {
	var label [11]byte
	off := bsVolLab
	if bs.is32() {
		off = bsVolLab32
	}
	copy(label[:], bs.data[off:])
	return label
}

// FilesystemType returns the filesystem type string, i.e: "FAT32   ".
func (bs *biosParamBlock) FilesystemType() [8]byte {
	var label [8]byte
	off := bsFilSysType
	if bs.is32() {
		off = bsFilSysType32
	}
	copy(label[:], bs.data[off:])
	return label
}

// OEMName returns the Original Equipment Manufacturer name at the start of the bootsector.
func (bs *biosParamBlock) OEMName() [8]byte {
	var oemname [8]byte
	copy(oemname[:], bs.data[bsOEMName:])
	return oemname
}

// SetOEMName sets the Original Equipment Manufacturer name at the start of the bootsector.
// Will clip off any characters beyond the 8th.
func (bs *biosParamBlock) SetOEMName(name string) {
	n := copy(bs.data[bsOEMName:bsOEMName+8], name)
	for i := n; i < 8; i++ {
		bs.data[bsOEMName+i] = ' '
	}
}

func (bs *biosParamBlock) VolumeOffset() uint32 {
	return binary.LittleEndian.Uint32(bs.data[bpbHiddSec:])
}

// setExtended writes the extended boot record of FAT12/16 or FAT32 volumes.
func (bs *biosParamBlock) setExtended(fat32 bool, drive uint8, serial uint32, fstype string) {
	drv, id, lab, typ := bsDrvNum, bsVolID, bsVolLab, bsFilSysType
	if fat32 {
		drv, id, lab, typ = bsDrvNum32, bsVolID32, bsVolLab32, bsFilSysType32
	}
	bs.data[drv] = drive
	bs.data[drv+2] = 0x29 // Extended boot signature.
	binary.LittleEndian.PutUint32(bs.data[id:], serial)
	copy(bs.data[lab:lab+11], "NO NAME    ")
	copy(bs.data[typ:typ+8], fstype)
}

// LogValue groups the geometry fields for structured logging.
func (bs *biosParamBlock) LogValue() slog.Value {
	oem, fstype, label := bs.OEMName(), bs.FilesystemType(), bs.VolumeLabel()
	attrs := []slog.Attr{
		slog.String("oem", string(clipname(oem[:]))),
		slog.String("fstype", string(clipname(fstype[:]))),
		slog.String("label", string(clipname(label[:]))),
		slog.Uint64("serial", uint64(bs.VolumeSerialNumber())),
		slog.Uint64("hidden", uint64(bs.VolumeOffset())),
		slog.Int("ss", int(bs.SectorSize())),
		slog.Int("csize", int(bs.SectorsPerCluster())),
		slog.Int("rsvd", int(bs.ReservedSectors())),
		slog.Int("nfats", int(bs.NumberOfFATs())),
		slog.Int("nroot", int(bs.RootDirEntries())),
		slog.Uint64("totsec", uint64(bs.TotalSectors())),
		slog.Uint64("fatsz", uint64(bs.SectorsPerFAT())),
		slog.Int("drv", int(bs.DriveNumber())),
		slog.Int("bootsig", int(bs.ExtendedBootSignature())),
	}
	if bs.is32() {
		major, minor := bs.Version()
		attrs = append(attrs,
			slog.Uint64("rootclus", uint64(bs.RootCluster())),
			slog.Int("fsinfo", int(bs.FSInfo())),
			slog.String("version", strconv.Itoa(int(major))+"."+strconv.Itoa(int(minor))),
		)
	}
	return slog.GroupValue(attrs...)
}

// Signatures returns the 3 signatures at the beginning, middle and end of the sector.
// Expect them to be 0x41615252, 0x61417272, 0xAA550000 respectively.
func (fsi *fsinfoSector) Signatures() (sigStart, sigMid, sigEnd uint32) {
	return binary.LittleEndian.Uint32(fsi.data[fsiLeadSig:]),
		binary.LittleEndian.Uint32(fsi.data[fsiStrucSig:]),
		binary.LittleEndian.Uint32(fsi.data[0x1fc:])
}

// SetSignatures sets the 3 signatures at the beginning, middle and end of the sector.
// Should be called as follows to set valid signatures expected by most implementations:
//
//	fsi.SetSignatures(0x41615252, 0x61417272, 0xAA550000)
func (fsi *fsinfoSector) SetSignatures(sigStart, sigMid, sigEnd uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiLeadSig:], sigStart)
	binary.LittleEndian.PutUint32(fsi.data[fsiStrucSig:], sigMid)
	binary.LittleEndian.PutUint32(fsi.data[0x1fc:], sigEnd)
}

// FreeClusterCount is the last known number of free data clusters on the volume,
// or 0xFFFFFFFF if unknown. Must not be absolutely relied upon to be correct in all scenarios.
func (fsi *fsinfoSector) FreeClusterCount() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiFree_Count:])
}

// SetFreeClusterCount sets the last known number of free data clusters on the volume.
func (fsi *fsinfoSector) SetFreeClusterCount(count uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiFree_Count:], count)
}

// LastAllocatedCluster is the number of the most recently known to be allocated data cluster.
// With 0xFFFFFFFF the system should start at cluster 0x00000002.
func (fsi *fsinfoSector) LastAllocatedCluster() uint32 {
	return binary.LittleEndian.Uint32(fsi.data[fsiNxt_Free:])
}

// SetLastAllocatedCluster sets the number of the most recently known to be allocated data cluster.
func (fsi *fsinfoSector) SetLastAllocatedCluster(cluster uint32) {
	binary.LittleEndian.PutUint32(fsi.data[fsiNxt_Free:], cluster)
}

func (fsi *fsinfoSector) LogValue() slog.Value {
	lo, mid, hi := fsi.Signatures()
	return slog.GroupValue(
		slog.Bool("valid", lo == 0x41615252 && mid == 0x61417272 && hi == 0xAA550000),
		slog.Uint64("free", uint64(fsi.FreeClusterCount())),
		slog.Uint64("next", uint64(fsi.LastAllocatedCluster())),
	)
}

// Attr holds FAT file attribute bits.
type Attr byte

const (
	AttrReadOnly  Attr = amRDO
	AttrHidden    Attr = amHID
	AttrSystem    Attr = amSYS
	AttrDirectory Attr = amDIR
	AttrArchive   Attr = amARC
)

// IsLFN indicates that the entry is a Long File Name entry.
func (attr Attr) IsLFN() bool { return attr&amMASK == amLFN }

// IsReadonly indicates that the file is read-only and must not be written to.
func (attr Attr) IsReadonly() bool { return attr&amRDO != 0 }

// IsHidden indicates that the file is hidden and should not be shown in directory listings.
func (attr Attr) IsHidden() bool { return attr&amHID != 0 }

// IsSystem indicates that the file belongs to the system and must not be physically moved.
func (attr Attr) IsSystem() bool { return attr&amSYS != 0 }

// IsVolumeLabel indicates an optional directory volume label, normally only residing in a volume's root directory.
func (attr Attr) IsVolumeLabel() bool { return attr&amVOL != 0 }

// IsSubdirectory indicates that the cluster-chain associated with this entry gets
// interpreted as subdirectory instead of as a file. Subdirectories have a filesize entry of zero.
func (attr Attr) IsSubdirectory() bool { return attr&amDIR != 0 }

// IsArchive returns bit used to indicate whether or not the file has been backed up (archived).
func (attr Attr) IsArchive() bool { return attr&amARC != 0 }

func (attr Attr) String() string {
	b := [5]byte{'-', '-', '-', '-', '-'}
	for i, c := range [5]struct {
		a Attr
		c byte
	}{{amDIR, 'd'}, {amRDO, 'r'}, {amHID, 'h'}, {amSYS, 's'}, {amARC, 'a'}} {
		if attr&c.a != 0 {
			b[i] = c.c
		}
	}
	return string(b[:])
}

// name returns the raw 11 byte 8.3 name padded with spaces.
func (ds *dirSector) name() []byte {
	return ds.data[dirNameOff : dirNameOff+11]
}

func (ds *dirSector) modifiedAt() datetime {
	return datetime{
		time: binary.LittleEndian.Uint16(ds.data[dirModTimeOff:]),
		date: binary.LittleEndian.Uint16(ds.data[dirModTimeOff+2:]),
	}
}

func (ds *dirSector) setCreated(tm uint32) {
	binary.LittleEndian.PutUint32(ds.data[dirCrtTimeOff:], tm)
}

func (ds *dirSector) setModified(tm uint32) {
	binary.LittleEndian.PutUint32(ds.data[dirModTimeOff:], tm)
}

func (ds *dirSector) setAccessed(tm uint32) {
	binary.LittleEndian.PutUint16(ds.data[dirLstAccDateOff:], uint16(tm>>16))
}

// cluster returns the first cluster of the entry. The high word is only used by FAT32.
func (ds *dirSector) cluster(fstype fstype) uint32 {
	cl := uint32(binary.LittleEndian.Uint16(ds.data[dirFstClusLOOff:]))
	if fstype == fstypeFAT32 {
		cl |= uint32(binary.LittleEndian.Uint16(ds.data[dirFstClusHIOff:])) << 16
	}
	return cl
}

func (ds *dirSector) setCluster(fstype fstype, cl uint32) {
	binary.LittleEndian.PutUint16(ds.data[dirFstClusLOOff:], uint16(cl))
	if fstype == fstypeFAT32 {
		binary.LittleEndian.PutUint16(ds.data[dirFstClusHIOff:], uint16(cl>>16))
	}
}

func (ds *dirSector) size() uint32 {
	return binary.LittleEndian.Uint32(ds.data[dirFileSizeOff:])
}

func (ds *dirSector) setSize(sz uint32) {
	binary.LittleEndian.PutUint32(ds.data[dirFileSizeOff:], sz)
}

type longFilenameEntry struct {
	data []byte
}

type lfnSeq byte

// SequenceNumber returns the sequence number of this LFN entry (1..20).
// The entry representing the end of the filename comes first and will
// have the highest sequence number. The entry representing the start
// of the filename has sequence number 1.
func (lsq lfnSeq) SequenceNumber() uint8 {
	return uint8(lsq &^ llef)
}

// IsLast returns true if this is the last LFN entry in the sequence.
func (lsq lfnSeq) IsLast() bool { return lsq&llef != 0 }

func (lfn *longFilenameEntry) Sequence() lfnSeq {
	return lfnSeq(lfn.data[ldirOrdOff])
}

// Attributes is always 0x0F for LFN.
func (lfnt *longFilenameEntry) Attributes() byte {
	return lfnt.data[ldirAttrOff]
}

// Type should always be 0 for LFN.
func (lfnt *longFilenameEntry) Type() byte {
	return lfnt.data[ldirTypeOff]
}

func (lfnt *longFilenameEntry) Checksum() byte {
	return lfnt.data[ldirChksumOff]
}

// FirstCluster should always be 0 for LFN.
func (lfnt *longFilenameEntry) FirstCluster() uint16 {
	return binary.LittleEndian.Uint16(lfnt.data[ldirFstClusLO_Off:])
}

// char returns the i'th of the 13 UTF-16 characters in the entry.
func (lfnt *longFilenameEntry) char(i int) uint16 {
	return binary.LittleEndian.Uint16(lfnt.data[lfnOffsets[i]:])
}

func (lfnt *longFilenameEntry) setChar(i int, c uint16) {
	binary.LittleEndian.PutUint16(lfnt.data[lfnOffsets[i]:], c)
}
