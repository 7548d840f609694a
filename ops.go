package fat

import (
	"encoding/binary"
	"log/slog"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/soypat/fatfs/internal/utf16x"
)

// Maximum wildcard depth used by pattern matching in FindFirst/FindNext.
const findRecursion = 4

func (fsys *FS) f_opendir(dp *dir, path string) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	*dp = dir{obj: objid{fs: fsys}, pat: dp.pat}
	defer func() {
		if fr == frNoFile {
			fr = frNoPath
		}
		if fr != frOK {
			dp.obj.fs = nil
		}
	}()
	fr = dp.follow_path(path)
	if fr != frOK {
		return fr
	}
	obj := &dp.obj
	if dp.fn[nsFLAG]&nsNONAME == 0 {
		// Not the origin directory itself.
		if obj.attr&amDIR == 0 {
			return frNoPath // The object is a file.
		}
		if fsys.locks.enabled() {
			obj.lockid = fsys.locks.inc(dp, lockRead)
			if obj.lockid == 0 {
				return frTooManyOpenFiles
			}
		}
		if fsys.fstype == fstypeExFAT {
			obj.c_scl = obj.sclust
			obj.c_size = uint32(obj.objsize)&0xFFFFFF00 | uint32(obj.stat)
			obj.c_ofs = dp.blk_ofs
			obj.init_alloc_info()
		} else {
			ds := dirSector{data: dp.entry()}
			obj.sclust = ds.cluster(fsys.fstype)
		}
	}
	obj.id = fsys.id
	fr = dp.sdi(0) // Rewind directory.
	if fr != frOK && obj.lockid != 0 {
		fsys.locks.dec(obj.lockid)
		obj.lockid = 0
	}
	return fr
}

func (dp *dir) f_closedir() FileResult {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	}
	if dp.obj.lockid != 0 {
		fr = dp.obj.fs.locks.dec(dp.obj.lockid)
		if fr != frOK {
			return fr
		}
	}
	dp.obj.fs = nil // Invalidate directory object.
	return frOK
}

// f_readdir reads the next directory item into fno. At the end of the
// directory fno's name is empty.
func (dp *dir) f_readdir(fno *FileInfo) FileResult {
	fr := dp.read(false)
	if fr == frNoFile {
		fr = frOK // Ignore end of directory.
	}
	if fr != frOK {
		return fr
	}
	dp.get_fileinfo(fno)
	fr = dp.next(false)
	if fr == frNoFile {
		fr = frOK // Ignore end of directory now, it is caught on the next read.
	}
	return fr
}

func (dp *dir) f_findnext(fno *FileInfo) (fr FileResult) {
	for {
		fr = dp.f_readdir(fno)
		if fr != frOK || fno.fname[0] == 0 {
			return fr
		}
		if pattern_match(dp.pat, str(fno.fname[:]), 0, findRecursion) ||
			pattern_match(dp.pat, str(fno.altname[:]), 0, findRecursion) {
			return frOK
		}
	}
}

func (fsys *FS) f_findfirst(dp *dir, fno *FileInfo, path, pattern string) FileResult {
	dp.pat = pattern
	fr := fsys.f_opendir(dp, path)
	if fr == frOK {
		fr = dp.f_findnext(fno)
	}
	return fr
}

func (fsys *FS) f_stat(path string, fno *FileInfo) FileResult {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	dj := dir{obj: objid{fs: fsys}}
	fr := dj.follow_path(path)
	if fr != frOK {
		return fr
	} else if dj.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName // The root directory has no entry.
	}
	dj.get_fileinfo(fno)
	return frOK
}

// f_unlink removes a file or an empty directory.
func (fsys *FS) f_unlink(path string) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	dj := dir{obj: objid{fs: fsys}}
	fr = dj.follow_path(path)
	if fr == frOK {
		fr = fsys.locks.check(&dj, lockRemove)
	}
	if fr != frOK {
		return fr
	}
	if dj.fn[nsFLAG]&nsNONAME != 0 {
		return frInvalidName // Cannot remove the origin directory.
	} else if dj.obj.attr&amRDO != 0 {
		return frDenied
	}
	obj := objid{fs: fsys}
	var dclst uint32
	if fsys.fstype == fstypeExFAT {
		obj.init_alloc_info()
		dclst = obj.sclust
	} else {
		ds := dirSector{data: dj.entry()}
		dclst = ds.cluster(fsys.fstype)
	}
	if dj.obj.attr&amDIR != 0 {
		// Make sure the sub-directory is empty.
		sdj := dir{obj: objid{fs: fsys, sclust: dclst}}
		if fsys.fstype == fstypeExFAT {
			sdj.obj.objsize = obj.objsize
			sdj.obj.stat = obj.stat
		}
		fr = sdj.sdi(0)
		if fr == frOK {
			fr = sdj.read(false)
			if fr == frOK {
				fr = frDenied // Not empty.
			} else if fr == frNoFile {
				fr = frOK
			}
		}
		if fr != frOK {
			return fr
		}
	}
	fr = dj.remove()
	if fr == frOK && dclst != 0 {
		if fsys.fstype == fstypeExFAT {
			fr = obj.remove_chain(dclst, 0)
		} else {
			fr = dj.obj.remove_chain(dclst, 0)
		}
	}
	if fr == frOK {
		fr = fsys.sync_fs()
	}
	return fr
}

// f_mkdir creates a directory with its dot entries.
func (fsys *FS) f_mkdir(path string) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	dj := dir{obj: objid{fs: fsys}}
	fr = dj.follow_path(path)
	if fr == frOK {
		return frExist // Name collision.
	} else if fr != frNoFile {
		return fr
	}
	sobj := objid{fs: fsys}
	dcl := sobj.create_chain(0) // Allocate a cluster for the new directory.
	switch dcl {
	case 0:
		return frDenied // No space to allocate a new cluster.
	case 1:
		return frIntErr
	case clstDiskErr:
		return frDiskErr
	}
	tm := fsys.fattime()
	fr = fsys.dir_clear(dcl)
	if fr == frOK {
		if fsys.fstype != fstypeExFAT {
			// Create the dot entries in the cleared window.
			dot := dirSector{data: fsys.win[:sizeDirEntry]}
			copy(dot.data[dirNameOff:], ".          ")
			dot.data[dirAttrOff] = amDIR
			dot.setModified(tm)
			dot.setCluster(fsys.fstype, dcl)
			dotdot := dirSector{data: fsys.win[sizeDirEntry : 2*sizeDirEntry]}
			copy(dotdot.data, dot.data)
			dotdot.data[1] = '.'
			dotdot.setCluster(fsys.fstype, dj.obj.sclust)
			fsys.wflag = 1
		}
		fr = dj.register()
	}
	if fr != frOK {
		sobj.remove_chain(dcl, 0) // Could not register, remove the allocated cluster.
		return fr
	}
	if fsys.fstype == fstypeExFAT {
		// Initialize the entry set of the new directory.
		dirb := fsys.dirbuf[:]
		bcs := uint64(fsys.bytesPerCluster())
		binary.LittleEndian.PutUint32(dirb[xdirModTime:], tm)
		binary.LittleEndian.PutUint32(dirb[xdirFstClus:], dcl)
		binary.LittleEndian.PutUint64(dirb[xdirFileSize:], bcs)
		binary.LittleEndian.PutUint64(dirb[xdirValidFileSize:], bcs)
		dirb[xdirGenFlags] = 3 // Initialize the object flag.
		dirb[xdirAttr] = amDIR
		fr = dj.store_xdir()
	} else {
		ds := dirSector{data: dj.entry()}
		ds.setModified(tm)
		ds.setCluster(fsys.fstype, dcl)
		ds.data[dirAttrOff] = amDIR
		fsys.wflag = 1
	}
	if fr == frOK {
		fr = fsys.sync_fs()
	}
	return fr
}

// f_rename renames or moves an object. The destination must not exist.
func (fsys *FS) f_rename(oldpath, newpath string) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	djo := dir{obj: objid{fs: fsys}}
	fr = djo.follow_path(oldpath)
	if fr == frOK && djo.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		fr = frInvalidName
	}
	if fr == frOK {
		fr = fsys.locks.check(&djo, lockRemove)
	}
	if fr != frOK {
		return fr
	}

	var buf [2 * sizeDirEntry]byte
	djn := djo
	if fsys.fstype == fstypeExFAT {
		copy(buf[:], fsys.dirbuf[:2*sizeDirEntry]) // Save the file and stream entries.
		if buf[xdirAttr]&amDIR != 0 {
			djn.guard = binary.LittleEndian.Uint32(buf[xdirFstClus:])
		}
	} else {
		copy(buf[:sizeDirEntry], djo.entry())
		if buf[dirAttrOff]&amDIR != 0 {
			src := dirSector{data: buf[:sizeDirEntry]}
			djn.guard = src.cluster(fsys.fstype)
		}
	}
	// A directory cannot be moved into its own subtree.
	fr = djn.follow_path(newpath)
	if fr == frOK {
		// Renaming to itself (case change on FAT) is allowed, anything else collides.
		if djn.obj.sclust == djo.obj.sclust && djn.dptr == djo.dptr {
			fr = frNoFile
		} else {
			fr = frExist
		}
	}
	if fr != frNoFile {
		return fr
	}
	fr = djn.register()
	if fr != frOK {
		return fr
	}

	if fsys.fstype == fstypeExFAT {
		dirb := fsys.dirbuf[:]
		nf, nn := dirb[xdirNumSec], dirb[xdirNumName]
		nh := binary.LittleEndian.Uint16(dirb[xdirNameHash:])
		copy(dirb, buf[:]) // Restore the entries with the new name fields.
		dirb[xdirNumSec] = nf
		dirb[xdirNumName] = nn
		binary.LittleEndian.PutUint16(dirb[xdirNameHash:], nh)
		if dirb[xdirAttr]&amDIR == 0 {
			dirb[xdirAttr] |= amARC
		}
		fr = djn.store_xdir()
	} else {
		ent := djn.entry()
		copy(ent[13:], buf[13:sizeDirEntry]) // Copy information about the object except the name.
		ent[dirAttrOff] = buf[dirAttrOff]
		if ent[dirAttrOff]&amDIR == 0 {
			ent[dirAttrOff] |= amARC
		}
		fsys.wflag = 1
		if ent[dirAttrOff]&amDIR != 0 && djo.obj.sclust != djn.obj.sclust {
			// Moved to another directory, update the .. entry.
			ds := dirSector{data: ent}
			sect := fsys.clst2sect(ds.cluster(fsys.fstype))
			if sect == 0 {
				return frIntErr
			}
			fr = fsys.move_window(sect)
			dotdot := fsys.win[sizeDirEntry : 2*sizeDirEntry]
			if fr == frOK && dotdot[1] == '.' {
				dd := dirSector{data: dotdot}
				dd.setCluster(fsys.fstype, djn.obj.sclust)
				fsys.wflag = 1
			}
		}
	}
	if fr == frOK {
		fr = djo.remove() // Remove the old entry.
	}
	if fr == frOK {
		fr = fsys.sync_fs()
	}
	return fr
}

// f_chmod changes the attribute bits selected by mask.
func (fsys *FS) f_chmod(path string, attr, mask byte) (fr FileResult) {
	dj, fr := fsys.lookupEntry(path)
	if fr != frOK {
		return fr
	}
	mask &= amRDO | amHID | amSYS | amARC
	if fsys.fstype == fstypeExFAT {
		dirb := fsys.dirbuf[:]
		dirb[xdirAttr] = attr&mask | dirb[xdirAttr]&^mask
		fr = dj.store_xdir()
	} else {
		ent := dj.entry()
		ent[dirAttrOff] = attr&mask | ent[dirAttrOff]&^mask
		fsys.wflag = 1
	}
	if fr == frOK {
		fr = fsys.sync_fs()
	}
	return fr
}

// f_utime sets the modification timestamp of an object.
func (fsys *FS) f_utime(path string, dt datetime) (fr FileResult) {
	dj, fr := fsys.lookupEntry(path)
	if fr != frOK {
		return fr
	}
	if fsys.fstype == fstypeExFAT {
		binary.LittleEndian.PutUint32(fsys.dirbuf[xdirModTime:], dt.packed())
		fr = dj.store_xdir()
	} else {
		ds := dirSector{data: dj.entry()}
		ds.setModified(dt.packed())
		fsys.wflag = 1
	}
	if fr == frOK {
		fr = fsys.sync_fs()
	}
	return fr
}

// lookupEntry resolves path to an existing object other than the root directory.
func (fsys *FS) lookupEntry(path string) (dir, FileResult) {
	dj := dir{obj: objid{fs: fsys}}
	if fsys.fstype == fstypeUnknown {
		return dj, frNotEnabled
	}
	fr := dj.follow_path(path)
	if fr == frOK && dj.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		fr = frInvalidName
	}
	return dj, fr
}

// f_getlabel returns the volume label and volume serial number.
func (fsys *FS) f_getlabel() (label string, vsn uint32, fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return "", 0, frNotEnabled
	}
	dj := dir{obj: objid{fs: fsys}}
	fr = dj.sdi(0)
	if fr == frOK {
		fr = dj.read(true)
	}
	if fr == frOK {
		ent := dj.entry()
		if fsys.fstype == fstypeExFAT {
			n := int(ent[xdirNumLabel])
			if n > 11 {
				n = 11
			}
			var units [11]uint16
			for i := range units[:n] {
				units[i] = binary.LittleEndian.Uint16(ent[xdirLabel+2*i:])
			}
			var buf [11 * 3]byte
			k, err := utf16x.UnitsToUTF8(buf[:], units[:n])
			if err == nil {
				label = string(buf[:k])
			}
		} else {
			var sb strings.Builder
			for _, c := range clipname(ent[dirNameOff : dirNameOff+11]) {
				sb.WriteRune(oem2uni(c))
			}
			label = sb.String()
		}
	} else if fr == frNoFile {
		fr = frOK // No label entry.
	}
	if fr != frOK {
		return "", 0, fr
	}
	fr = fsys.move_window(fsys.volbase)
	if fr != frOK {
		return label, 0, fr
	}
	switch fsys.fstype {
	case fstypeExFAT:
		vsn = fsys.window_u32(bpbVolIDEx)
	case fstypeFAT32:
		vsn = fsys.window_u32(bsVolID32)
	default:
		vsn = fsys.window_u32(bsVolID)
	}
	return label, vsn, frOK
}

// f_setlabel sets the volume label. An empty label removes it.
func (fsys *FS) f_setlabel(label string) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	var dirvn [22]byte
	di := 0
	if fsys.fstype == fstypeExFAT {
		for _, r := range label {
			if r < ' ' || r == utf8.RuneError || strings.ContainsRune("/*:<>|\\\"?\x7f", r) {
				return frInvalidName
			}
			if r >= 0x10000 {
				if di >= 10 {
					return frInvalidName
				}
				hi, lo := utf16.EncodeRune(r)
				binary.LittleEndian.PutUint16(dirvn[di*2:], uint16(hi))
				binary.LittleEndian.PutUint16(dirvn[di*2+2:], uint16(lo))
				di += 2
				continue
			}
			if di >= 11 {
				return frInvalidName
			}
			binary.LittleEndian.PutUint16(dirvn[di*2:], uint16(r))
			di++
		}
	} else {
		for i := range dirvn[:11] {
			dirvn[i] = ' '
		}
		for _, r := range label {
			var c byte
			if r < 0x10000 && r >= ' ' {
				c = uni2oem(wtoupper(uint16(r)))
			}
			if c == 0 || strings.IndexByte("+.,;=[]/*:<>|\\\"?\x7f", c) >= 0 || di >= 11 {
				return frInvalidName
			}
			dirvn[di] = c
			di++
		}
		if dirvn[0] == ddem {
			return frInvalidName // Reject an illegal name (heading DDEM).
		}
		for di > 0 && dirvn[di-1] == ' ' {
			di-- // Snip trailing spaces.
		}
	}

	dj := dir{obj: objid{fs: fsys}}
	fr = dj.sdi(0)
	if fr != frOK {
		return fr
	}
	fr = dj.read(true)
	if fr == frOK {
		ent := dj.entry()
		if fsys.fstype == fstypeExFAT {
			ent[xdirNumLabel] = byte(di)
			copy(ent[xdirLabel:], dirvn[:])
		} else if di != 0 {
			copy(ent[dirNameOff:], dirvn[:11])
		} else {
			ent[dirNameOff] = ddem // Remove the volume label.
		}
		fsys.wflag = 1
		return fsys.sync_fs()
	} else if fr != frNoFile {
		return fr
	}
	if di == 0 {
		return frOK // No label entry and nothing to set.
	}
	fr = dj.alloc(1)
	if fr != frOK {
		return fr
	}
	ent := dj.entry()
	clear(ent)
	if fsys.fstype == fstypeExFAT {
		ent[xdirType] = etVLABEL
		ent[xdirNumLabel] = byte(di)
		copy(ent[xdirLabel:], dirvn[:])
	} else {
		ent[dirAttrOff] = amVOL
		copy(ent[dirNameOff:], dirvn[:11])
	}
	fsys.wflag = 1
	return fsys.sync_fs()
}

// f_unmount flushes the volume and detaches it from the FS. Open objects become invalid.
func (fsys *FS) f_unmount() FileResult {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	fr := fsys.sync_fs()
	fsys.locks.clear()
	fsys.fstype = fstypeUnknown
	fsys.id++
	fsys.invalidate_window()
	fsys.info("unmount", slog.String("fr", fr.String()))
	return fr
}
