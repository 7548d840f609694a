// Package gpt reads and writes GUID Partition Table headers and entries in place.
package gpt

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/soypat/fatfs/internal/utf16x"
)

const (
	// Signature is "EFI PART" read as a little-endian uint64.
	Signature = 0x5452415020494645
	// Revision1 is the header revision used by UEFI 2.x.
	Revision1 = 0x00010000
	// HeaderSize is the size of the header fields covered by the CRC.
	HeaderSize = 92
	// EntrySize is the partition entry size this package supports.
	EntrySize = 128
)

// Header field offsets.
const (
	hdrSignature = 0
	hdrRevision  = 8
	hdrSize      = 12
	hdrCRC       = 16
	hdrCurrent   = 24
	hdrBackup    = 32
	hdrFirstUse  = 40
	hdrLastUse   = 48
	hdrDiskGUID  = 56
	hdrEntryLBA  = 72
	hdrNumEntry  = 80
	hdrEntrySize = 84
	hdrEntryCRC  = 88
)

// Partition entry field offsets.
const (
	pteTypeGUID   = 0
	pteUniqueGUID = 16
	pteFirstLBA   = 32
	pteLastLBA    = 40
	pteAttrs      = 48
	pteNameOff    = 56
	pteNameLen    = 72
)

// BasicDataGUID is the partition type of Microsoft basic data partitions
// (EBD0A0A2-B9E5-4433-87C0-68B6B72699C7) in on-disk byte order. FAT and exFAT
// volumes live in these.
var BasicDataGUID = [16]byte{0xA2, 0xA0, 0xD0, 0xEB, 0xE5, 0xB9, 0x33, 0x44, 0x87, 0xC0, 0x68, 0xB6, 0xB7, 0x26, 0x99, 0xC7}

var (
	errShort      = errors.New("gpt: buffer too short")
	errSignature  = errors.New("gpt: bad header signature")
	errRevision   = errors.New("gpt: unsupported header revision")
	errHeaderSize = errors.New("gpt: bad header size")
	errHeaderCRC  = errors.New("gpt: header CRC mismatch")
	errEntrySize  = errors.New("gpt: unsupported partition entry size")
)

// Header is a view over the 92 byte GPT header at LBA 1.
type Header struct {
	data []byte
}

// ToHeader returns a Header backed by start.
func ToHeader(start []byte) (Header, error) {
	if len(start) < HeaderSize {
		return Header{}, errShort
	}
	return Header{data: start[:HeaderSize:HeaderSize]}, nil
}

func (h *Header) u32(off int) uint32 { return binary.LittleEndian.Uint32(h.data[off:]) }
func (h *Header) u64(off int) uint64 { return binary.LittleEndian.Uint64(h.data[off:]) }

// Signature returns the header signature, expected to equal [Signature].
func (h *Header) Signature() uint64 { return h.u64(hdrSignature) }

// Revision returns the header revision number.
func (h *Header) Revision() uint32 { return h.u32(hdrRevision) }

// Size returns the size of the header in bytes, usually 92.
func (h *Header) Size() uint32 { return h.u32(hdrSize) }

// CRC returns the stored CRC32 of the header.
func (h *Header) CRC() uint32 { return h.u32(hdrCRC) }

// CurrentLBA returns the LBA holding this header.
func (h *Header) CurrentLBA() int64 { return int64(h.u64(hdrCurrent)) }

// BackupLBA returns the LBA of the backup header.
func (h *Header) BackupLBA() int64 { return int64(h.u64(hdrBackup)) }

// FirstUsableLBA returns the first LBA available to partitions.
func (h *Header) FirstUsableLBA() int64 { return int64(h.u64(hdrFirstUse)) }

// LastUsableLBA returns the last LBA available to partitions (inclusive).
func (h *Header) LastUsableLBA() int64 { return int64(h.u64(hdrLastUse)) }

// DiskGUID returns the GUID of the disk.
func (h *Header) DiskGUID() (guid [16]byte) {
	copy(guid[:], h.data[hdrDiskGUID:])
	return guid
}

// PartitionEntryLBA returns the LBA of the partition entry array, usually 2.
func (h *Header) PartitionEntryLBA() int64 { return int64(h.u64(hdrEntryLBA)) }

// NumberOfPartitionEntries returns the number of entries in the partition entry array.
func (h *Header) NumberOfPartitionEntries() uint32 { return h.u32(hdrNumEntry) }

// SizeOfPartitionEntry returns the size of each partition entry, usually 128.
func (h *Header) SizeOfPartitionEntry() uint32 { return h.u32(hdrEntrySize) }

// CRCOfPartitionEntries returns the CRC32 of the partition entry array.
func (h *Header) CRCOfPartitionEntries() uint32 { return h.u32(hdrEntryCRC) }

// Validate checks the signature, revision, sizes and header CRC.
func (h *Header) Validate() error {
	switch {
	case h.Signature() != Signature:
		return errSignature
	case h.Revision() != Revision1:
		return errRevision
	case h.Size() != HeaderSize:
		return errHeaderSize
	case h.SizeOfPartitionEntry() != EntrySize:
		return errEntrySize
	case h.computeCRC() != h.CRC():
		return errHeaderCRC
	}
	return nil
}

func (h *Header) computeCRC() uint32 {
	var tmp [HeaderSize]byte
	copy(tmp[:], h.data)
	binary.LittleEndian.PutUint32(tmp[hdrCRC:], 0)
	return crc32.ChecksumIEEE(tmp[:])
}

// HeaderConfig describes a header written by [Header.Init].
type HeaderConfig struct {
	CurrentLBA, BackupLBA         int64
	FirstUsableLBA, LastUsableLBA int64
	DiskGUID                      [16]byte
	PartitionEntryLBA             int64
	NumberOfPartitionEntries      uint32
	// EntriesCRC is the CRC32 of the partition entry array, see [EntriesCRC].
	EntriesCRC uint32
}

// Init writes a complete header described by cfg and seals it with its CRC.
func (h *Header) Init(cfg HeaderConfig) {
	clear(h.data)
	le := binary.LittleEndian
	le.PutUint64(h.data[hdrSignature:], Signature)
	le.PutUint32(h.data[hdrRevision:], Revision1)
	le.PutUint32(h.data[hdrSize:], HeaderSize)
	le.PutUint64(h.data[hdrCurrent:], uint64(cfg.CurrentLBA))
	le.PutUint64(h.data[hdrBackup:], uint64(cfg.BackupLBA))
	le.PutUint64(h.data[hdrFirstUse:], uint64(cfg.FirstUsableLBA))
	le.PutUint64(h.data[hdrLastUse:], uint64(cfg.LastUsableLBA))
	copy(h.data[hdrDiskGUID:hdrDiskGUID+16], cfg.DiskGUID[:])
	le.PutUint64(h.data[hdrEntryLBA:], uint64(cfg.PartitionEntryLBA))
	le.PutUint32(h.data[hdrNumEntry:], cfg.NumberOfPartitionEntries)
	le.PutUint32(h.data[hdrEntrySize:], EntrySize)
	le.PutUint32(h.data[hdrEntryCRC:], cfg.EntriesCRC)
	le.PutUint32(h.data[hdrCRC:], h.computeCRC())
}

// EntriesCRC returns the CRC32 of a partition entry array.
func EntriesCRC(entries []byte) uint32 { return crc32.ChecksumIEEE(entries) }

// PartitionEntry is a view over a single 128 byte partition entry.
type PartitionEntry struct {
	data []byte
}

// ToPartitionEntry returns a PartitionEntry backed by start.
func ToPartitionEntry(start []byte) (PartitionEntry, error) {
	if len(start) < EntrySize {
		return PartitionEntry{}, errShort
	}
	return PartitionEntry{data: start[:EntrySize:EntrySize]}, nil
}

// PartitionTypeGUID returns the partition type, compare against [BasicDataGUID].
func (p *PartitionEntry) PartitionTypeGUID() (guid [16]byte) {
	copy(guid[:], p.data[pteTypeGUID:])
	return guid
}

// SetPartitionTypeGUID sets the partition type.
func (p *PartitionEntry) SetPartitionTypeGUID(guid [16]byte) {
	copy(p.data[pteTypeGUID:pteTypeGUID+16], guid[:])
}

// UniquePartitionGUID returns the GUID of the partition.
func (p *PartitionEntry) UniquePartitionGUID() (guid [16]byte) {
	copy(guid[:], p.data[pteUniqueGUID:])
	return guid
}

// SetUniquePartitionGUID sets the GUID of the partition.
func (p *PartitionEntry) SetUniquePartitionGUID(guid [16]byte) {
	copy(p.data[pteUniqueGUID:pteUniqueGUID+16], guid[:])
}

// FirstLBA returns the first LBA of the partition.
func (p *PartitionEntry) FirstLBA() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[pteFirstLBA:]))
}

// LastLBA returns the last LBA of the partition (inclusive).
func (p *PartitionEntry) LastLBA() int64 {
	return int64(binary.LittleEndian.Uint64(p.data[pteLastLBA:]))
}

// SetExtent sets the first and last (inclusive) LBA of the partition.
func (p *PartitionEntry) SetExtent(first, last int64) {
	binary.LittleEndian.PutUint64(p.data[pteFirstLBA:], uint64(first))
	binary.LittleEndian.PutUint64(p.data[pteLastLBA:], uint64(last))
}

// ReadName writes the partition name as UTF-8 into b.
func (p *PartitionEntry) ReadName(b []byte) (int, error) {
	raw := p.data[pteNameOff : pteNameOff+pteNameLen]
	n := 0
	for n < len(raw) && (raw[n] != 0 || raw[n+1] != 0) {
		n += 2
	}
	return utf16x.ToUTF8(b, raw[:n], binary.LittleEndian)
}

// WriteName sets the partition name from UTF-8. Names longer than 36 UTF-16 units fail.
func (p *PartitionEntry) WriteName(name []byte) error {
	raw := p.data[pteNameOff : pteNameOff+pteNameLen]
	n, err := utf16x.FromUTF8(raw, name, binary.LittleEndian)
	if err != nil {
		return err
	}
	clear(raw[n:])
	return nil
}
