// Package utf16x converts between UTF-8 and UTF-16 without allocating. UTF-16
// text is held either as raw bytes in a given byte order (on-disk names) or
// as a slice of code units (long file name buffers).
package utf16x

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	// 0xd800-0xdc00 encodes the high 10 bits of a pair.
	// 0xdc00-0xe000 encodes the low 10 bits of a pair.
	// the value is those 20 bits plus 0x10000.
	surr1 = 0xd800
	surr2 = 0xdc00
	surr3 = 0xe000

	surrSelf = 0x10000
	maxRune  = '\U0010FFFF'
)

var (
	ErrOddLength    = errors.New("utf16x: odd UTF-16 byte length")
	ErrShortDst     = errors.New("utf16x: short destination buffer")
	ErrInvalidUTF8  = errors.New("utf16x: invalid UTF-8 sequence")
	ErrInvalidUTF16 = errors.New("utf16x: invalid UTF-16 sequence")
)

// UnitsToUTF8 encodes the UTF-16 code units in src as UTF-8 into dst.
// Unpaired surrogates are an error.
func UnitsToUTF8(dst []byte, src []uint16) (n int, err error) {
	for len(src) > 0 {
		r, size := decodeUnits(src[0], src[1:])
		if size == 0 {
			return n, ErrInvalidUTF16
		} else if utf8.RuneLen(r) > len(dst)-n {
			return n, ErrShortDst
		}
		n += utf8.EncodeRune(dst[n:], r)
		src = src[size:]
	}
	return n, nil
}

// UnitsFromUTF8 encodes the UTF-8 string src as UTF-16 code units into dst.
func UnitsFromUTF8(dst []uint16, src string) (n int, err error) {
	for len(src) > 0 {
		r, size := utf8.DecodeRuneInString(src)
		if r == utf8.RuneError && size <= 1 {
			return n, ErrInvalidUTF8
		}
		if r >= surrSelf {
			if len(dst)-n < 2 {
				return n, ErrShortDst
			}
			r1, r2 := utf16.EncodeRune(r)
			dst[n], dst[n+1] = uint16(r1), uint16(r2)
			n += 2
		} else {
			if len(dst)-n < 1 {
				return n, ErrShortDst
			}
			dst[n] = uint16(r)
			n++
		}
		src = src[size:]
	}
	return n, nil
}

// ToUTF8 encodes the UTF-16 bytes in srcUTF16 as UTF-8 into dstUTF8.
func ToUTF8(dstUTF8, srcUTF16 []byte, order16 binary.ByteOrder) (int, error) {
	if len(srcUTF16)%2 != 0 {
		return 0, ErrOddLength
	}
	n := 0
	for len(srcUTF16) > 0 {
		r, size := DecodeRune(srcUTF16, order16)
		if size == 0 {
			return n, ErrInvalidUTF16
		} else if utf8.RuneLen(r) > len(dstUTF8)-n {
			return n, ErrShortDst
		}
		srcUTF16 = srcUTF16[size:]
		n += utf8.EncodeRune(dstUTF8[n:], r)
	}
	return n, nil
}

// FromUTF8 encodes the UTF-8 in src8 as UTF-16 bytes into dst16.
func FromUTF8(dst16, src8 []byte, order16 binary.ByteOrder) (int, error) {
	n := 0
	for len(src8) > 0 {
		r, size := utf8.DecodeRune(src8)
		if r == utf8.RuneError && size <= 1 {
			return n, ErrInvalidUTF8
		}
		need := 2
		if r >= surrSelf {
			need = 4
		}
		if len(dst16)-n < need {
			return n, ErrShortDst
		}
		n += EncodeRune(dst16[n:], r, order16)
		src8 = src8[size:]
	}
	return n, nil
}

// EncodeRune writes v as UTF-16 into dst16 and returns the number of bytes
// written (2 or 4). Invalid runes are written as U+FFFD.
func EncodeRune(dst16 []byte, v rune, order16 binary.ByteOrder) (sizeBytes int) {
	switch {
	case 0 <= v && v < surr1, surr3 <= v && v < surrSelf:
		order16.PutUint16(dst16, uint16(v))
		return 2

	case surrSelf <= v && v <= maxRune:
		_ = dst16[3] // Eliminate bounds check.
		r1, r2 := utf16.EncodeRune(v)
		order16.PutUint16(dst16, uint16(r1))
		order16.PutUint16(dst16[2:], uint16(r2))
		return 4

	default:
		order16.PutUint16(dst16, uint16(utf8.RuneError))
		return 2
	}
}

// DecodeRune decodes the first UTF-16 character in srcUTF16. It returns
// size 0 if the input is truncated or holds an unpaired surrogate.
func DecodeRune(srcUTF16 []byte, order16 binary.ByteOrder) (r rune, size int) {
	if len(srcUTF16) < 2 {
		return utf8.RuneError, 0
	}
	c := order16.Uint16(srcUTF16)
	if c >= surr1 && c < surr2 {
		if len(srcUTF16) < 4 {
			return utf8.RuneError, 0
		}
		r, n := decodeUnits(c, []uint16{order16.Uint16(srcUTF16[2:])})
		return r, 2 * n
	}
	r, n := decodeUnits(c, nil)
	return r, 2 * n
}

// decodeUnits decodes a character starting with code unit c followed by
// rest. Returns the number of units consumed, 0 if invalid.
func decodeUnits(c uint16, rest []uint16) (rune, int) {
	switch {
	case c < surr1, c >= surr3:
		return rune(c), 1
	case c < surr2 && len(rest) > 0 && rest[0] >= surr2 && rest[0] < surr3:
		return utf16.DecodeRune(rune(c), rune(rest[0])), 2
	}
	return utf8.RuneError, 0
}
