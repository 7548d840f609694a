package gpt

import (
	"testing"
)

func TestHeaderInitValidate(t *testing.T) {
	var sector [512]byte
	var entries [4 * EntrySize]byte
	pte, err := ToPartitionEntry(entries[:])
	if err != nil {
		t.Fatal(err)
	}
	pte.SetPartitionTypeGUID(BasicDataGUID)
	pte.SetExtent(2048, 4095)
	if err := pte.WriteName([]byte("data")); err != nil {
		t.Fatal(err)
	}

	h, err := ToHeader(sector[:])
	if err != nil {
		t.Fatal(err)
	}
	h.Init(HeaderConfig{
		CurrentLBA:               1,
		BackupLBA:                8191,
		FirstUsableLBA:           34,
		LastUsableLBA:            8158,
		PartitionEntryLBA:        2,
		NumberOfPartitionEntries: 4,
		EntriesCRC:               EntriesCRC(entries[:]),
	})
	if err := h.Validate(); err != nil {
		t.Fatal(err)
	}
	if h.CRCOfPartitionEntries() != EntriesCRC(entries[:]) {
		t.Error("entries CRC not stored")
	}

	sector[40]++ // Corrupt FirstUsableLBA.
	if err := h.Validate(); err != errHeaderCRC {
		t.Errorf("want CRC mismatch, got %v", err)
	}
	sector[40]--
	sector[0] = 'X'
	if err := h.Validate(); err != errSignature {
		t.Errorf("want signature error, got %v", err)
	}

	if pte.FirstLBA() != 2048 || pte.LastLBA() != 4095 {
		t.Errorf("extent mismatch: %d..%d", pte.FirstLBA(), pte.LastLBA())
	}
	var name [64]byte
	n, err := pte.ReadName(name[:])
	if err != nil || string(name[:n]) != "data" {
		t.Errorf("name: got %q err=%v", name[:n], err)
	}
}
