/*
package mbr implements a Master Boot Record parser and writer.
*/
package mbr

import (
	"encoding/binary"
	"errors"
)

const (
	bootstrapLen     = 440
	uniqueDiskIDOff  = bootstrapLen
	pteOffset        = 446
	pteLen           = 16 // partition table entry length
	bootSignatureOff = 510
	BootSignature    = 0xAA55
	// NumPartitions is the number of primary partition entries in an MBR.
	NumPartitions = 4
)

var errShort = errors.New("mbr: boot sector too short")

// ToBootSector converts a byte slice to an MBR BootSector while maintaining a
// reference to the original byte slice. The byte slice must be at least 512
// bytes long and the first byte of the slice must be the first byte of the MBR.
func ToBootSector(start []byte) (BootSector, error) {
	if len(start) < 512 {
		return BootSector{}, errShort
	}
	return BootSector{data: start[:512:512]}, nil
}

// BootSector is a Master Boot Record. It contains the bootstrap code, the partition table and a boot signature.
type BootSector struct {
	data []byte
}

// PartitionTableEntry is a copy of one of the four partition table entries in the MBR.
// See https://en.wikipedia.org/wiki/Master_boot_record#PTE for more information.
type PartitionTableEntry struct {
	data [pteLen]byte
}

func (mbr *BootSector) UniqueDiskID() uint32 {
	return binary.LittleEndian.Uint32(mbr.data[uniqueDiskIDOff:])
}

func (mbr *BootSector) SetUniqueDiskID(id uint32) {
	binary.LittleEndian.PutUint32(mbr.data[uniqueDiskIDOff:], id)
}

// BootSignature returns the boot signature of the MBR, [BootSignature] on a valid sector.
func (mbr *BootSector) BootSignature() uint16 {
	return binary.LittleEndian.Uint16(mbr.data[bootSignatureOff:])
}

// SetBootSignature writes the 0x55 0xAA signature.
func (mbr *BootSector) SetBootSignature() {
	binary.LittleEndian.PutUint16(mbr.data[bootSignatureOff:], BootSignature)
}

// PartitionTable returns the idx'th partition table entry of the MBR.
func (mbr *BootSector) PartitionTable(idx int) PartitionTableEntry {
	if uint(idx) >= NumPartitions {
		panic("invalid partition table index")
	}
	off := pteOffset + idx*pteLen
	return PartitionTableEntry{data: [pteLen]byte(mbr.data[off : off+pteLen])}
}

// SetPartitionTable sets the idx'th partition table entry of the MBR.
func (mbr *BootSector) SetPartitionTable(idx int, pte PartitionTableEntry) {
	if uint(idx) >= NumPartitions {
		panic("invalid partition table index")
	}
	copy(mbr.data[pteOffset+idx*pteLen:], pte.data[:])
}

// MakePTE creates a new partition table entry from the given parameters.
func MakePTE(attrs DriveAttributes, Type PartitionType, startLBA, numLBA uint32, startCHS, lastCHS CHS) PartitionTableEntry {
	pte := PartitionTableEntry{}
	pte.data[0] = byte(attrs)
	pte.data[4] = byte(Type)
	binary.LittleEndian.PutUint32(pte.data[8:12], startLBA)
	binary.LittleEndian.PutUint32(pte.data[12:16], numLBA)
	pte.data[1], pte.data[2], pte.data[3] = startCHS.Tuple()
	pte.data[5], pte.data[6], pte.data[7] = lastCHS.Tuple()
	return pte
}

// Attributes returns the attributes of the partition the PTE refers to.
func (pte *PartitionTableEntry) Attributes() DriveAttributes {
	return DriveAttributes(pte.data[0])
}

// CHSStart returns the starting sector of the partition in CHS format. Is not used by modern operating systems.
func (pte *PartitionTableEntry) CHSStart() CHS {
	return NewCHS(pte.data[1], pte.data[2], pte.data[3])
}

// PartitionType returns the system ID of the partition, such as FAT32 or exFAT.
func (pte *PartitionTableEntry) PartitionType() PartitionType {
	return PartitionType(pte.data[4])
}

// CHSLast returns the last sector of the partition in CHS format.
func (pte *PartitionTableEntry) CHSLast() CHS {
	return NewCHS(pte.data[5], pte.data[6], pte.data[7])
}

// StartLBA returns the starting sector of the partition in LBA format (logical block address).
func (pte *PartitionTableEntry) StartLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[8:12])
}

// NumberOfLBA returns the number of sectors (logical block addresses) in the partition.
func (pte *PartitionTableEntry) NumberOfLBA() uint32 {
	return binary.LittleEndian.Uint32(pte.data[12:16])
}

// IsBootable returns true if the partition the PTE refers to is bootable.
func (attrs DriveAttributes) IsBootable() bool {
	return attrs&DriveAttrsBootable != 0
}

// CHS is a packed cylinder-head-sector address as stored in a PTE. This addressing
// scheme is deprecated by modern operating systems in favor of LBA.
type CHS uint32

// Tuple returns the three PTE bytes of the address.
func (chs CHS) Tuple() (head, sectorCylHi, cylLo uint8) {
	return uint8(chs), uint8(chs >> 8), uint8(chs >> 16)
}

// NewCHS packs the three PTE bytes of an address.
func NewCHS(head, sectorCylHi, cylLo uint8) CHS {
	return CHS(head) | CHS(sectorCylHi)<<8 | CHS(cylLo)<<16
}

// LBAToCHS converts an LBA to a CHS address with the given drive geometry.
// Addresses beyond the CHS range saturate to 1023/heads-1/sectors.
func LBAToCHS(lba uint32, heads, sectors uint8) CHS {
	if heads == 0 || sectors == 0 {
		return NewCHS(0xFE, 0xFF, 0xFF)
	}
	cyl := lba / (uint32(heads) * uint32(sectors))
	rem := lba % (uint32(heads) * uint32(sectors))
	h := rem / uint32(sectors)
	s := rem%uint32(sectors) + 1
	if cyl > 1023 {
		cyl, h, s = 1023, uint32(heads)-1, uint32(sectors)
	}
	return NewCHS(uint8(h), uint8(s)|uint8(cyl>>2)&0xC0, uint8(cyl))
}

// PartitionType refers to the type of partition the Partition Table Entry refers to.
type PartitionType byte

const (
	PartitionTypeUnused        PartitionType = 0x00
	PartitionTypeFAT12         PartitionType = 0x01
	PartitionTypeFAT16         PartitionType = 0x04 // FAT16 under 32MiB.
	PartitionTypeExtended      PartitionType = 0x05
	PartitionTypeFAT16B        PartitionType = 0x06
	PartitionTypeExFAT         PartitionType = 0x07 // Shared with NTFS.
	PartitionTypeFAT32CHS      PartitionType = 0x0B
	PartitionTypeFAT32LBA      PartitionType = 0x0C
	PartitionTypeLinux         PartitionType = 0x83
	PartitionTypeFreeBSD       PartitionType = 0xA5
	PartitionTypeAppleHFS      PartitionType = 0xAF
	PartitionTypeGPTProtective PartitionType = 0xEE
	PartitionTypeNTFS          PartitionType = PartitionTypeExFAT
)

// DriveAttributes refers to the first byte of a Partition Table Entry. It specifies
// if the partition is bootable.
type DriveAttributes byte

const (
	DriveAttrsBootable DriveAttributes = 0x80
)
