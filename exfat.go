package fat

import (
	"encoding/binary"
	"unicode"

	"github.com/soypat/fatfs/internal/utf16x"
)

const (
	xdirCrtTZ = 22 // exFAT: Created timezone (BYTE)
	xdirModTZ = 23 // exFAT: Modified timezone (BYTE)

	amMASKX = 0x37 // Mask of defined bits in exFAT.
)

// maxdirb returns the size of an entry set that holds nc name characters.
func maxdirb(nc int) int { return (nc + 44) / 15 * sizeDirEntry }

// xdir_sum returns the SetChecksum of the entry set in dirb.
func xdir_sum(dirb []byte) uint16 {
	szblk := (int(dirb[xdirNumSec]) + 1) * sizeDirEntry
	var sum uint16
	for i := 0; i < szblk; i++ {
		if i == xdirSetSum {
			i++ // Skip the checksum field itself.
			continue
		}
		sum = sum>>1 | sum<<15 + uint16(dirb[i])
	}
	return sum
}

// xname_sum returns the up-cased name hash of a NUL terminated UTF-16 name.
func xname_sum(name []uint16) uint16 {
	var sum uint16
	for _, chr := range name {
		if chr == 0 {
			break
		}
		chr = wtoupper(chr)
		sum = sum>>1 | sum<<15 + chr&0xff
		sum = sum>>1 | sum<<15 + chr>>8
	}
	return sum
}

func xsum32(dat byte, sum uint32) uint32 {
	return sum>>1 | sum<<31 + uint32(dat)
}

// wtoupper converts a BMP character to upper case. Characters whose upper
// case is outside the BMP are left untouched.
func wtoupper(c uint16) uint16 {
	if c < 'a' {
		return c
	} else if c <= 'z' {
		return c - 0x20
	} else if c < 0x80 || isSurrogate(c) {
		return c
	}
	r := unicode.ToUpper(rune(c))
	if r > 0xffff {
		return c
	}
	return uint16(r)
}

// get_xfileinfo fills fno from the entry set in the FS dirbuf.
func (fsys *FS) get_xfileinfo(fno *FileInfo) {
	dirb := fsys.dirbuf[:]
	nc := int(dirb[xdirNumName])
	var units [lfnBufSize]uint16
	si := sizeDirEntry * 2
	n := 0
	for n < nc && si < len(dirb) {
		if si%sizeDirEntry == 0 {
			si += 2 // Skip entry type and flags.
		}
		units[n] = binary.LittleEndian.Uint16(dirb[si:])
		si += 2
		n++
	}
	di := 0
	if n == nc {
		var err error
		di, err = utf16x.UnitsToUTF8(fno.fname[:len(fno.fname)-1], units[:n])
		if err != nil {
			di = 0
		}
	}
	if di == 0 {
		fno.fname[di] = '?' // Inaccessible object name.
		di++
	}
	fno.fname[di] = 0
	fno.altname[0] = 0
	fno.fattrib = dirb[xdirAttr] & amMASKX
	if fno.fattrib&amDIR != 0 {
		fno.fsize = 0
	} else {
		fno.fsize = int64(binary.LittleEndian.Uint64(dirb[xdirFileSize:]))
	}
	fno.ftime = binary.LittleEndian.Uint16(dirb[xdirModTime:])
	fno.fdate = binary.LittleEndian.Uint16(dirb[xdirModTime+2:])
}

// load_xdir loads the entry set at the current directory index into the FS dirbuf.
func (dp *dir) load_xdir() FileResult {
	fsys := dp.obj.fs
	dirb := fsys.dirbuf[:]
	fr := fsys.move_window(dp.sect)
	if fr != frOK {
		return fr
	}
	if fsys.win[dp.dirOff+xdirType] != etFILEDIR {
		return frIntErr
	}
	copy(dirb[0:sizeDirEntry], dp.entry())
	szEnt := (int(dirb[xdirNumSec]) + 1) * sizeDirEntry
	if szEnt < 3*sizeDirEntry || szEnt > 19*sizeDirEntry {
		return frIntErr
	}

	// Stream extension entry.
	fr = dp.next(false)
	if fr == frNoFile {
		fr = frIntErr
	}
	if fr != frOK {
		return fr
	}
	fr = fsys.move_window(dp.sect)
	if fr != frOK {
		return fr
	}
	if fsys.win[dp.dirOff+xdirType] != etSTREAM {
		return frIntErr
	}
	copy(dirb[sizeDirEntry:2*sizeDirEntry], dp.entry())
	if maxdirb(int(dirb[xdirNumName])) > szEnt {
		return frIntErr
	}

	// File name entries.
	i := 2 * sizeDirEntry
	for {
		fr = dp.next(false)
		if fr == frNoFile {
			fr = frIntErr
		}
		if fr != frOK {
			return fr
		}
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			return fr
		}
		if fsys.win[dp.dirOff+xdirType] != etFILENAME {
			return frIntErr
		}
		if i < maxDirbuf {
			copy(dirb[i:i+sizeDirEntry], dp.entry())
		}
		i += sizeDirEntry
		if i >= szEnt {
			break
		}
	}
	if i <= maxDirbuf && xdir_sum(dirb) != binary.LittleEndian.Uint16(dirb[xdirSetSum:]) {
		return frIntErr
	}
	return frOK
}

// init_alloc_info loads the allocation information of an object from the entry set in dirbuf.
func (obj *objid) init_alloc_info() {
	dirb := obj.fs.dirbuf[:]
	obj.sclust = binary.LittleEndian.Uint32(dirb[xdirFstClus:])
	obj.objsize = int64(binary.LittleEndian.Uint64(dirb[xdirFileSize:]))
	obj.stat = dirb[xdirGenFlags] & 2
	obj.n_frag = 0
}

// load_obj_xdir loads the entry set of obj using its containing directory info.
func (dp *dir) load_obj_xdir(obj *objid) FileResult {
	dp.obj.fs = obj.fs
	dp.obj.sclust = obj.c_scl
	dp.obj.stat = uint8(obj.c_size)
	dp.obj.objsize = int64(obj.c_size & 0xFFFFFF00)
	dp.obj.n_frag = 0
	dp.blk_ofs = obj.c_ofs
	fr := dp.sdi(dp.blk_ofs)
	if fr == frOK {
		fr = dp.load_xdir()
	}
	return fr
}

// store_xdir writes the entry set in dirbuf back to the directory at blk_ofs.
func (dp *dir) store_xdir() FileResult {
	fsys := dp.obj.fs
	dirb := fsys.dirbuf[:]
	binary.LittleEndian.PutUint16(dirb[xdirSetSum:], xdir_sum(dirb))
	nent := int(dirb[xdirNumSec]) + 1
	fr := dp.sdi(dp.blk_ofs)
	for fr == frOK {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			break
		}
		copy(dp.entry(), dirb[:sizeDirEntry])
		fsys.wflag = 1
		nent--
		if nent == 0 {
			break
		}
		dirb = dirb[sizeDirEntry:]
		fr = dp.next(false)
	}
	if fr == frOK || fr == frDiskErr {
		return fr
	}
	return frIntErr
}

// create_xdir builds an entry set for the NUL terminated name lfn in dirb.
func create_xdir(dirb []byte, lfn []uint16) {
	clear(dirb[:2*sizeDirEntry])
	dirb[0*sizeDirEntry+xdirType] = etFILEDIR
	dirb[1*sizeDirEntry+xdirType] = etSTREAM

	i := sizeDirEntry * 2
	var nlen, nc1 int
	wc := uint16(1)
	for {
		dirb[i] = etFILENAME
		dirb[i+1] = 0
		i += 2
		for {
			if wc != 0 {
				wc = lfn[nlen]
				if wc != 0 {
					nlen++
				}
			}
			binary.LittleEndian.PutUint16(dirb[i:], wc)
			i += 2
			if i%sizeDirEntry == 0 {
				break
			}
		}
		nc1++
		if lfn[nlen] == 0 {
			break
		}
	}
	dirb[xdirNumName] = byte(nlen)
	dirb[xdirNumSec] = byte(1 + nc1)
	binary.LittleEndian.PutUint16(dirb[xdirNameHash:], xname_sum(lfn))
}
