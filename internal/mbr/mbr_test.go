package mbr

import "testing"

func TestPartitionTableRoundTrip(t *testing.T) {
	var sector [512]byte
	bs, err := ToBootSector(sector[:])
	if err != nil {
		t.Fatal(err)
	}
	pte := MakePTE(DriveAttrsBootable, PartitionTypeFAT32LBA, 2048, 1<<20, LBAToCHS(2048, 255, 63), LBAToCHS(2048+1<<20-1, 255, 63))
	bs.SetPartitionTable(1, pte)
	bs.SetBootSignature()
	bs.SetUniqueDiskID(0xdeadbeef)

	if bs.BootSignature() != BootSignature || sector[510] != 0x55 || sector[511] != 0xAA {
		t.Fatal("bad boot signature")
	}
	got := bs.PartitionTable(1)
	if got.PartitionType() != PartitionTypeFAT32LBA || got.StartLBA() != 2048 || got.NumberOfLBA() != 1<<20 {
		t.Errorf("entry mismatch: type=%#x start=%d n=%d", got.PartitionType(), got.StartLBA(), got.NumberOfLBA())
	}
	if got.CHSStart() != LBAToCHS(2048, 255, 63) || got.CHSLast() != LBAToCHS(2048+1<<20-1, 255, 63) {
		t.Errorf("CHS mismatch: start=%#x last=%#x", got.CHSStart(), got.CHSLast())
	}
	if !got.Attributes().IsBootable() {
		t.Error("want bootable")
	}
	empty := bs.PartitionTable(0)
	if empty.PartitionType() != PartitionTypeUnused || empty.Attributes().IsBootable() {
		t.Error("entry 0 should be unused")
	}
	if bs.UniqueDiskID() != 0xdeadbeef {
		t.Error("disk id mismatch")
	}
}

func TestLBAToCHS(t *testing.T) {
	// LBA 63 with 255 heads and 63 sectors is cylinder 0, head 1, sector 1.
	h, s, c := LBAToCHS(63, 255, 63).Tuple()
	if h != 1 || s != 1 || c != 0 {
		t.Errorf("got h=%d s=%d c=%d", h, s, c)
	}
	h, s, c = LBAToCHS(1<<30, 255, 63).Tuple()
	if h != 254 || s != 63|0xC0 || c != 0xFF {
		t.Errorf("saturation: got h=%d s=%#x c=%#x", h, s, c)
	}
}
