package utf16x

import (
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"
)

func TestUnitsRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello.txt", "Ärger über Öl", "日本語のファイル", "emoji 😀 name", "\U0010FFFF"} {
		var units [64]uint16
		n, err := UnitsFromUTF8(units[:], s)
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		want := utf16.Encode([]rune(s))
		if n != len(want) {
			t.Fatalf("%q: got %d units, want %d", s, n, len(want))
		}
		var buf [256]byte
		m, err := UnitsToUTF8(buf[:], units[:n])
		if err != nil {
			t.Fatalf("%q: %v", s, err)
		}
		if got := string(buf[:m]); got != s {
			t.Errorf("round trip: got %q, want %q", got, s)
		}
	}
}

func TestUnitsToUTF8Errors(t *testing.T) {
	var buf [16]byte
	_, err := UnitsToUTF8(buf[:], []uint16{'a', 0xd800})
	if !errors.Is(err, ErrInvalidUTF16) {
		t.Errorf("trailing high surrogate: got %v", err)
	}
	_, err = UnitsToUTF8(buf[:], []uint16{0xdc00, 'a'})
	if !errors.Is(err, ErrInvalidUTF16) {
		t.Errorf("lone low surrogate: got %v", err)
	}
	n, err := UnitsToUTF8(buf[:2], []uint16{'a', 'b', 'c'})
	if !errors.Is(err, ErrShortDst) || n != 2 {
		t.Errorf("short dst: got n=%d err=%v", n, err)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	const name = "EFI system partition 😀"
	var raw [72]byte
	n, err := FromUTF8(raw[:], []byte(name), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	var out [128]byte
	m, err := ToUTF8(out[:], raw[:n], binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if string(out[:m]) != name {
		t.Errorf("got %q, want %q", out[:m], name)
	}
	if _, err := ToUTF8(out[:], raw[:n-2], binary.LittleEndian); !errors.Is(err, ErrInvalidUTF16) {
		t.Errorf("truncated pair: got %v", err)
	}
	if _, err := ToUTF8(out[:], raw[:3], binary.LittleEndian); !errors.Is(err, ErrOddLength) {
		t.Errorf("odd length: got %v", err)
	}
}
