package fat

// Boot sector and BPB field offsets.
const (
	bsJmpBoot      = 0   // x86 jump instruction (3-byte)
	bsOEMName      = 3   // OEM name (8-byte)
	bpbBytsPerSec  = 11  // Sector size [byte] (WORD)
	bpbSecPerClus  = 13  // Cluster size [sector] (BYTE)
	bpbRsvdSecCnt  = 14  // Size of reserved area [sector] (WORD)
	bpbNumFATs     = 16  // Number of FATs (BYTE)
	bpbRootEntCnt  = 17  // Size of root directory area for FAT [entry] (WORD)
	bpbTotSec16    = 19  // Volume size (16-bit) [sector] (WORD)
	bpbMedia       = 21  // Media descriptor byte (BYTE)
	bpbFATSz16     = 22  // FAT size (16-bit) [sector] (WORD)
	bpbSecPerTrk   = 24  // Number of sectors per track for int13h [sector] (WORD)
	bpbNumHeads    = 26  // Number of heads for int13h (WORD)
	bpbHiddSec     = 28  // Volume offset from top of the drive (DWORD)
	bpbTotSec32    = 32  // Volume size (32-bit) [sector] (DWORD)
	bsDrvNum       = 36  // Physical drive number for int13h (BYTE)
	bsNTres        = 37  // WindowsNT error flag (BYTE)
	bsBootSig      = 38  // Extended boot signature (BYTE)
	bsVolID        = 39  // Volume serial number (DWORD)
	bsVolLab       = 43  // Volume label string (8-byte)
	bsFilSysType   = 54  // Filesystem type string (8-byte)
	bsBootCode     = 62  // Boot code (448-byte)
	bs55AA         = 510 // Signature word (WORD)
	bpbFATSz32     = 36  // FAT32: FAT size [sector] (DWORD)
	bpbExtFlags32  = 40  // FAT32: Extended flags (WORD)
	bpbFSVer32     = 42  // FAT32: Filesystem version (WORD)
	bpbRootClus32  = 44  // FAT32: Root directory cluster (DWORD)
	bpbFSInfo32    = 48  // FAT32: Offset of FSINFO sector (WORD)
	bpbBkBootSec32 = 50  // FAT32: Offset of backup boot sector (WORD)
	bsDrvNum32     = 64  // FAT32: Physical drive number for int13h (BYTE)
	bsNTres32      = 65  // FAT32: Error flag (BYTE)
	bsBootSig32    = 66  // FAT32: Extended boot signature (BYTE)
	bsVolID32      = 67  // FAT32: Volume serial number (DWORD)
	bsVolLab32     = 71  // FAT32: Volume label string (8-byte)
	bsFilSysType32 = 82  // FAT32: Filesystem type string (8-byte)
	bsBootCode32   = 90  // FAT32: Boot code (420-byte)

	bpbZeroedEx     = 11  // exFAT: MBZ field (53-byte)
	bpbVolOfsEx     = 64  // exFAT: Volume offset from top of the drive [sector] (QWORD)
	bpbTotSecEx     = 72  // exFAT: Volume size [sector] (QWORD)
	bpbFatOfsEx     = 80  // exFAT: FAT offset from top of the volume [sector] (DWORD)
	bpbFatSzEx      = 84  // exFAT: FAT size [sector] (DWORD)
	bpbDataOfsEx    = 88  // exFAT: Data offset from top of the volume [sector] (DWORD)
	bpbNumClusEx    = 92  // exFAT: Number of clusters (DWORD)
	bpbRootClusEx   = 96  // exFAT: Root directory start cluster (DWORD)
	bpbVolIDEx      = 100 // exFAT: Volume serial number (DWORD)
	bpbFSVerEx      = 104 // exFAT: Filesystem version (WORD)
	bpbVolFlagEx    = 106 // exFAT: Volume flags (WORD)
	bpbBytsPerSecEx = 108 // exFAT: Log2 of sector size in unit of byte (BYTE)
	bpbSecPerClusEx = 109 // exFAT: Log2 of cluster size in unit of sector (BYTE)
	bpbNumFATsEx    = 110 // exFAT: Number of FATs (BYTE)
	bpbDrvNumEx     = 111 // exFAT: Physical drive number for int13h (BYTE)
	bpbPercInUseEx  = 112 // exFAT: Percent in use (BYTE)
	bsBootCodeEx    = 120 // exFAT: Boot code (390-byte)

	fsiLeadSig    = 0   // FAT32 FSI: Leading signature (DWORD)
	fsiStrucSig   = 484 // FAT32 FSI: Structure signature (DWORD)
	fsiFree_Count = 488 // FAT32 FSI: Number of free clusters (DWORD)
	fsiNxt_Free   = 492 // FAT32 FSI: Last allocated cluster (DWORD)
)

// Directory entry field offsets.
const (
	dirNameOff        = 0  // Short file name (11-byte)
	dirAttrOff        = 11 // Attribute (BYTE)
	dirNTresOff       = 12 // Lower case flag (BYTE)
	dirCrtTime10Off   = 13 // Created time sub-second (BYTE)
	dirCrtTimeOff     = 14 // Created time (DWORD)
	dirLstAccDateOff  = 18 // Last accessed date (WORD)
	dirFstClusHIOff   = 20 // Higher 16-bit of first cluster (WORD)
	dirModTimeOff     = 22 // Modified time (DWORD)
	dirFstClusLOOff   = 26 // Lower 16-bit of first cluster (WORD)
	dirFileSizeOff    = 28 // File size (DWORD)
	ldirOrdOff        = 0  // LFN: LFN order and LLE flag (BYTE)
	ldirAttrOff       = 11 // LFN: LFN attribute (BYTE)
	ldirTypeOff       = 12 // LFN: Entry type (BYTE)
	ldirChksumOff     = 13 // LFN: Checksum of the SFN (BYTE)
	ldirFstClusLO_Off = 26 // LFN: MBZ field (WORD)

	xdirType          = 0  // exFAT: Type of exFAT directory entry (BYTE)
	xdirNumLabel      = 1  // exFAT: Number of volume label characters (BYTE)
	xdirLabel         = 2  // exFAT: Volume label (11-WORD)
	xdirNumSec        = 1  // exFAT: Number of secondary entries (BYTE)
	xdirSetSum        = 2  // exFAT: Sum of the set of directory entries (WORD)
	xdirAttr          = 4  // exFAT: File attribute (WORD)
	xdirCrtTime       = 8  // exFAT: Created time (DWORD)
	xdirModTime       = 12 // exFAT: Modified time (DWORD)
	xdirAccTime       = 16 // exFAT: Last accessed time (DWORD)
	xdirCrtTime10     = 20 // exFAT: Created time subsecond (BYTE)
	xdirModTime10     = 21 // exFAT: Modified time subsecond (BYTE)
	xdirGenFlags      = 33 // exFAT: General secondary flags (BYTE)
	xdirNumName       = 35 // exFAT: Number of file name characters (BYTE)
	xdirNameHash      = 36 // exFAT: Hash of file name (WORD)
	xdirValidFileSize = 40 // exFAT: Valid file size (QWORD)
	xdirFstClus       = 52 // exFAT: First cluster of the file data (DWORD)
	xdirFileSize      = 56 // exFAT: File/Directory size (QWORD)

	sizeDirEntry = 32
)

// exFAT directory entry types.
const (
	etBITMAP   = 0x81 // Allocation bitmap.
	etUPCASE   = 0x82 // Up-case table.
	etVLABEL   = 0x83 // Volume label.
	etFILEDIR  = 0x85 // File and directory.
	etSTREAM   = 0xC0 // Stream extension.
	etFILENAME = 0xC1 // Name extension.
)

const (
	ddem  = 0xE5 // Deleted directory entry mark set to DIR_Name[0].
	rddem = 0x05 // Replacement of the character collides with DDEM.
	llef  = 0x40 // Last long entry flag in LDIR_Ord.
)

// Limits.
const (
	clustMaxFAT12 = 0xFF5
	clustMaxFAT16 = 0xFFF5
	clustMaxFAT32 = 0x0FFFFFF5
	clustMaxExFAT = 0x7FFFFFFD
	mask28bits    = 0x0FFF_FFFF

	maxDIR   = 0x200000   // Max size of FAT directory.
	maxDIREx = 0x10000000 // Max size of exFAT directory.

	lfnBufSize = 255 // Maximum LFN length in UTF-16 code units.
	sfnBufSize = 12
	// UTF-8 buffer for a file name. Each UTF-16 unit expands to 3 bytes at most.
	fnameBufSize = lfnBufSize*3 + 1
	maxDirbuf    = (lfnBufSize + 44) / 15 * sizeDirEntry

	clstDiskErr = 0xFFFF_FFFF // get_fat/create_chain value on disk error.
	clstUnknown = 0xFFFF_FFFF // free_clst/last_clst not known.
)

// Name status flags in fn[nsFLAG].
const (
	nsFLAG = 11

	nsLOSS   = 0x01 // Out of 8.3 format.
	nsLFN    = 0x02 // Force to create LFN entry.
	nsLAST   = 0x04 // Last segment.
	nsBODY   = 0x08 // Lower case flag (body).
	nsEXT    = 0x10 // Lower case flag (ext).
	nsDOT    = 0x20 // Dot entry.
	nsNOLFN  = 0x40 // Do not find LFN.
	nsNONAME = 0x80 // Not followed.
)

// File attribute bits for directory entries.
const (
	amRDO  = 0x01 // Read only.
	amHID  = 0x02 // Hidden.
	amSYS  = 0x04 // System.
	amVOL  = 0x08 // Volume label.
	amLFN  = 0x0F // LFN entry.
	amDIR  = 0x10 // Directory.
	amARC  = 0x20 // Archive.
	amMASK = 0x3F // Mask of defined bits in FAT.
)

// File access mode and open method flags.
const (
	faRead         = 0x01
	faWrite        = 0x02
	faOpenExisting = 0x00
	faCreateNew    = 0x04
	faCreateAlways = 0x08
	faOpenAlways   = 0x10
	faOpenAppend   = 0x30

	faSeekEnd  = 0x20 // Seek to end of the file on file open.
	faModified = 0x40 // File has been modified.
	faDirty    = 0x80 // File buffer is dirty.
)

// lfnOffsets are the offsets of the 13 UTF-16 characters of an LFN entry.
var lfnOffsets = [13]uint8{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
