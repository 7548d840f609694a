package fat

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/soypat/fatfs/internal/utf16x"
)

// oemCodePage is the code page used for short file names.
var oemCodePage = charmap.CodePage437

// uni2oem converts an upper cased BMP character to OEM code. Returns 0 if unmappable.
func uni2oem(wc uint16) byte {
	if wc < 0x80 {
		return byte(wc)
	}
	b, ok := oemCodePage.EncodeRune(rune(wtoupper(wc)))
	if !ok {
		return 0
	}
	return b
}

func oem2uni(c byte) rune {
	if c < 0x80 {
		return rune(c)
	}
	return oemCodePage.DecodeByte(c)
}

// create_name parses the first segment of path into the LFN working buffer and
// the directory form short name in dp.fn. It returns the rest of the path.
func (dp *dir) create_name(path string) (string, FileResult) {
	fsys := dp.obj.fs
	lfn := fsys.lfnbuf[:]
	di := 0
	p := path
	var wc uint16
	for {
		if len(p) == 0 {
			wc = 0
			break
		}
		uc, size := utf8.DecodeRuneInString(p)
		if uc == utf8.RuneError && size <= 1 {
			return path, frInvalidName
		}
		if uc < ' ' || isSep(uc) {
			wc = uint16(uc)
			break
		}
		p = p[size:]
		if uc < 0x80 && strings.ContainsRune("*:<>|\"?\x7f", uc) {
			return path, frInvalidName
		}
		if uc >= 0x10000 {
			if di >= lfnBufSize-1 {
				return path, frInvalidName
			}
			hi, lo := utf16.EncodeRune(uc)
			lfn[di] = uint16(hi)
			lfn[di+1] = uint16(lo)
			di += 2
			continue
		}
		if di >= lfnBufSize {
			return path, frInvalidName
		}
		lfn[di] = uint16(uc)
		di++
	}
	var cf byte
	if wc < ' ' {
		cf = nsLAST // Last segment.
	} else {
		p = trimSeparatorPrefix(p)
		if len(p) == 0 || p[0] < ' ' {
			cf = nsLAST
		}
	}
	rest := p

	// Strip trailing spaces and dots.
	for di > 0 && (lfn[di-1] == ' ' || lfn[di-1] == '.') {
		di--
	}
	lfn[di] = 0
	if di == 0 {
		return rest, frInvalidName // Reject null name.
	}

	// Create SFN in directory form.
	si := 0
	for lfn[si] == ' ' {
		si++
	}
	if si > 0 || lfn[si] == '.' {
		cf |= nsLOSS | nsLFN // Leading spaces or dots.
	}
	for di > 0 && lfn[di-1] != '.' {
		di-- // Find the last dot (di <= si: no extension).
	}

	fn := dp.fn[:11]
	for i := range fn {
		fn[i] = ' '
	}
	var b byte
	i, ni := 0, 8
	for {
		wc = lfn[si]
		si++
		if wc == 0 {
			break
		}
		if wc == ' ' || (wc == '.' && si != di) {
			cf |= nsLOSS | nsLFN // Embedded spaces and dots.
			continue
		}
		if i >= ni || si == di {
			// End of body or field overflow.
			if ni == 11 {
				cf |= nsLOSS | nsLFN
				break
			}
			if si != di {
				cf |= nsLOSS | nsLFN // Name body overflow.
			}
			if si > di {
				break // No name extension.
			}
			si, i, ni = di, 8, 11 // Enter name extension.
			b <<= 2
			continue
		}
		if wc >= 0x80 {
			cf |= nsLFN
			wc = uint16(uni2oem(wc))
		}
		if wc == 0 || (wc < 0x80 && strings.ContainsRune("+,;=[]", rune(wc))) {
			wc = '_' // Illegal character for SFN.
			cf |= nsLOSS | nsLFN
		} else {
			if isUpper(wc) {
				b |= 2
			}
			if isLower(wc) {
				b |= 1
				wc -= 0x20
			}
		}
		fn[i] = byte(wc)
		i++
	}
	if fn[0] == ddem {
		fn[0] = rddem
	}
	if ni == 8 {
		b <<= 2
	}
	if b&0x0c == 0x0c || b&0x03 == 0x03 {
		cf |= nsLFN // Mixed case in body or extension.
	}
	if cf&nsLFN == 0 {
		if b&0x01 != 0 {
			cf |= nsEXT
		}
		if b&0x04 != 0 {
			cf |= nsBODY
		}
	}
	dp.fn[nsFLAG] = cf
	return rest, frOK
}

// follow_path resolves path from the root directory. On success dp points
// at the terminal object, or at the root directory when the path is empty (nsNONAME).
func (dp *dir) follow_path(path string) (fr FileResult) {
	fsys := dp.obj.fs
	path = trimSeparatorPrefix(path)
	dp.obj.sclust = 0 // Start from the root directory.
	dp.obj.n_frag = 0
	dp.obj.stat = 0
	dp.obj.objsize = 0

	if len(path) == 0 || path[0] < ' ' {
		dp.fn[nsFLAG] = nsNONAME
		return dp.sdi(0)
	}
	for {
		path, fr = dp.create_name(path)
		if fr != frOK {
			break
		}
		fr = dp.find()
		ns := dp.fn[nsFLAG]
		if fr != frOK {
			if fr == frNoFile && ns&nsLAST == 0 {
				fr = frNoPath // Intermediate directory missing.
			}
			break
		}
		if ns&nsLAST != 0 {
			break
		}
		if dp.obj.attr&amDIR == 0 {
			fr = frNoPath
			break
		}
		if fsys.fstype == fstypeExFAT {
			// Save containing directory information for the sub-directory.
			dp.obj.c_scl = dp.obj.sclust
			dp.obj.c_size = uint32(dp.obj.objsize)&0xFFFFFF00 | uint32(dp.obj.stat)
			dp.obj.c_ofs = dp.blk_ofs
			dp.obj.init_alloc_info()
		} else {
			ds := dirSector{data: dp.entry()}
			dp.obj.sclust = ds.cluster(fsys.fstype)
		}
		if dp.guard != 0 && dp.obj.sclust == dp.guard {
			fr = frInvalidName
			break
		}
	}
	return fr
}

// sum_sfn returns the checksum of an 11 byte SFN, stored in each of its LFN entries.
func sum_sfn(dir []byte) byte {
	var sum byte
	for _, c := range dir[:11] {
		sum = sum>>1 + sum<<7 + c
	}
	return sum
}

// cmp_lfn compares the part of the LFN working buffer held in the LFN entry case insensitively.
func cmp_lfn(lfnbuf []uint16, entry []byte) bool {
	lfe := longFilenameEntry{data: entry}
	if lfe.FirstCluster() != 0 {
		return false
	}
	i := int(entry[ldirOrdOff]&0x3f-1) * 13
	wc := uint16(1)
	for s := 0; s < 13; s++ {
		uc := lfe.char(s)
		if wc != 0 {
			if i >= lfnBufSize+1 || wtoupper(uc) != wtoupper(lfnbuf[i]) {
				return false
			}
			i++
			wc = uc
		} else if uc != 0xffff {
			return false // Check filler.
		}
	}
	if lfe.Sequence().IsLast() && wc != 0 && (i >= len(lfnbuf) || lfnbuf[i] != 0) {
		return false // Last segment matched but different length.
	}
	return true
}

// pick_lfn copies the part of an LFN held in the entry into lfnbuf.
func pick_lfn(lfnbuf []uint16, entry []byte) bool {
	lfe := longFilenameEntry{data: entry}
	if lfe.FirstCluster() != 0 {
		return false
	}
	i := int(lfe.Sequence().SequenceNumber()-1) * 13
	wc := uint16(1)
	for s := 0; s < 13; s++ {
		uc := lfe.char(s)
		if wc != 0 {
			if i >= lfnBufSize+1 {
				return false
			}
			wc = uc
			lfnbuf[i] = wc
			i++
		} else if uc != 0xffff {
			return false
		}
	}
	if lfe.Sequence().IsLast() && wc != 0 {
		if i >= lfnBufSize+1 {
			return false
		}
		lfnbuf[i] = 0 // Put terminator if last LFN part without one.
	}
	return true
}

// put_lfn stores part ord of the LFN into an LFN entry.
func put_lfn(lfn []uint16, entry []byte, ord, sum byte) {
	lfe := longFilenameEntry{data: entry}
	entry[ldirChksumOff] = sum
	entry[ldirAttrOff] = amLFN
	entry[ldirTypeOff] = 0
	entry[ldirFstClusLO_Off] = 0
	entry[ldirFstClusLO_Off+1] = 0

	i := int(ord-1) * 13
	var wc uint16
	for s := 0; s < 13; s++ {
		if wc != 0xffff {
			wc = lfn[i]
			i++
		}
		lfe.setChar(s, wc)
		if wc == 0 {
			wc = 0xffff // Padding characters after the terminator.
		}
	}
	if wc == 0xffff || lfn[i] == 0 {
		ord |= llef
	}
	entry[ldirOrdOff] = ord
}

// gen_numname creates a numbered SFN ("NAME~N") in dst from src.
func gen_numname(dst, src []byte, lfn []uint16, seq uint32) {
	copy(dst[:11], src[:11])
	if seq > 5 {
		// On many collisions, generate a hash number instead of sequential number.
		sreg := seq
		for _, wc := range lfn {
			if wc == 0 {
				break
			}
			for i := 0; i < 16; i++ {
				sreg = sreg<<1 + uint32(wc&1)
				wc >>= 1
				if sreg&0x10000 != 0 {
					sreg ^= 0x11021
				}
			}
		}
		seq = sreg
	}

	var ns [8]byte
	i := 7
	for {
		c := byte(seq%16) + '0'
		seq /= 16
		if c > '9' {
			c += 7
		}
		ns[i] = c
		i--
		if i == 0 || seq == 0 {
			break
		}
	}
	ns[i] = '~'

	j := 0
	for j < i && dst[j] != ' ' {
		j++
	}
	for j < 8 {
		if i < 8 {
			dst[j] = ns[i]
			i++
		} else {
			dst[j] = ' '
		}
		j++
	}
}

// lfnToUTF8 writes the NUL terminated LFN as UTF-8 into dst. Returns 0 if the
// name cannot be represented.
func lfnToUTF8(dst []byte, lfn []uint16) int {
	n := 0
	for n < len(lfn) && lfn[n] != 0 {
		n++
	}
	di, err := utf16x.UnitsToUTF8(dst, lfn[:n])
	if err != nil {
		return 0
	}
	return di
}
