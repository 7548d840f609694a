package fat

import (
	"encoding/binary"
	"unicode"
	"unicode/utf8"
)

// dir is a directory object. It is the cursor used by all directory operations.
type dir struct {
	obj     objid
	dptr    uint32 // Current read/write offset.
	clust   uint32 // Current cluster.
	sect    lba    // Current sector (0:Read operation has terminated).
	dirOff  uint16 // Offset of the current entry in the FS window.
	fn      [12]byte
	blk_ofs uint32 // Offset of current entry block being processed (0xFFFFFFFF:Invalid).
	pat     string // Pattern to match for FindNext.
	// guard, if not zero, is a directory start cluster follow_path refuses to enter.
	guard uint32
}

// entry returns the current 32 byte entry in the FS window. The window
// must hold dp.sect.
func (dp *dir) entry() []byte {
	return dp.obj.fs.win[dp.dirOff : dp.dirOff+sizeDirEntry]
}

func (fsys *FS) maxDirSize() uint32 {
	if fsys.fstype == fstypeExFAT {
		return maxDIREx
	}
	return maxDIR
}

// sdi sets the directory index to ofs bytes from the directory start.
func (dp *dir) sdi(ofs uint32) FileResult {
	fsys := dp.obj.fs
	if ofs >= fsys.maxDirSize() || ofs%sizeDirEntry != 0 {
		return frIntErr
	}
	dp.dptr = ofs
	clst := dp.obj.sclust
	if clst == 0 && fsys.fstype >= fstypeFAT32 {
		// Root directory of FAT32/exFAT lives in the data area.
		clst = uint32(fsys.dirbase)
		if fsys.fstype == fstypeExFAT {
			dp.obj.stat = 0
		}
	}
	if clst == 0 {
		// Static FAT12/16 root directory.
		if ofs/sizeDirEntry >= uint32(fsys.nrootdir) {
			return frIntErr
		}
		dp.sect = fsys.dirbase
	} else {
		csz := fsys.bytesPerCluster()
		for ofs >= csz {
			clst = dp.obj.clusterstat(clst)
			if clst == clstDiskErr {
				return frDiskErr
			} else if clst < 2 || clst >= fsys.n_fatent {
				return frIntErr
			}
			ofs -= csz
		}
		dp.sect = fsys.clst2sect(clst)
	}
	dp.clust = clst
	if dp.sect == 0 {
		return frIntErr
	}
	dp.sect += lba(fsys.divSS(ofs))
	dp.dirOff = uint16(fsys.modSS(ofs))
	return frOK
}

// next moves the directory index to the next entry. If stretch is set the
// directory is extended with a new zeroed cluster when the end is reached.
func (dp *dir) next(stretch bool) FileResult {
	fsys := dp.obj.fs
	ofs := dp.dptr + sizeDirEntry
	if ofs >= fsys.maxDirSize() {
		dp.sect = 0
	}
	if dp.sect == 0 {
		return frNoFile
	}
	if fsys.modSS(ofs) == 0 {
		// Sector changed.
		dp.sect++
		if dp.clust == 0 {
			if ofs/sizeDirEntry >= uint32(fsys.nrootdir) {
				dp.sect = 0 // Reached end of static table.
				return frNoFile
			}
		} else if fsys.divSS(ofs)&uint32(fsys.csize-1) == 0 {
			// Cluster changed.
			clst := dp.obj.clusterstat(dp.clust)
			if clst <= 1 {
				return frIntErr
			} else if clst == clstDiskErr {
				return frDiskErr
			}
			if clst >= fsys.n_fatent {
				// End of dynamic table.
				if !stretch {
					dp.sect = 0
					return frNoFile
				}
				clst = dp.obj.create_chain(dp.clust)
				switch clst {
				case 0:
					return frDenied // No free cluster.
				case 1:
					return frIntErr
				case clstDiskErr:
					return frDiskErr
				}
				if fsys.dir_clear(clst) != frOK {
					return frDiskErr
				}
				dp.obj.stat |= 4 // Directory has been stretched.
			}
			dp.clust = clst
			dp.sect = fsys.clst2sect(clst)
		}
	}
	dp.dptr = ofs
	dp.dirOff = uint16(fsys.modSS(ofs))
	return frOK
}

// alloc reserves nent contiguous free entries, stretching the directory if needed.
func (dp *dir) alloc(nent uint) FileResult {
	fsys := dp.obj.fs
	fr := dp.sdi(0)
	var n uint
	for fr == frOK {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			break
		}
		var free bool
		if fsys.fstype == fstypeExFAT {
			free = fsys.win[dp.dirOff+xdirType]&0x80 == 0
		} else {
			c := fsys.win[dp.dirOff+dirNameOff]
			free = c == ddem || c == 0
		}
		if free {
			n++
			if n == nent {
				break
			}
		} else {
			n = 0
		}
		fr = dp.next(true)
	}
	if fr == frNoFile {
		fr = frDenied // No directory entry to allocate.
	}
	return fr
}

// read reads the next file object (or the volume label if vol is set) in the directory.
func (dp *dir) read(vol bool) FileResult {
	fsys := dp.obj.fs
	fr := frNoFile
	ord, sum := byte(0xff), byte(0xff)
	for dp.sect != 0 {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			break
		}
		ent := dp.entry()
		b := ent[dirNameOff]
		if b == 0 {
			fr = frNoFile // Reached end of directory.
			break
		}
		if fsys.fstype == fstypeExFAT {
			if vol {
				if b == etVLABEL {
					break
				}
			} else if b == etFILEDIR {
				dp.blk_ofs = dp.dptr
				fr = dp.load_xdir()
				if fr == frOK {
					dp.obj.attr = fsys.dirbuf[xdirAttr] & amMASK
				}
				break
			}
		} else {
			attr := ent[dirAttrOff] & amMASK
			dp.obj.attr = attr
			isVol := attr&^amARC == amVOL
			if b == ddem || b == '.' || isVol != vol {
				ord = 0xff // Entry without valid data.
			} else if attr == amLFN {
				lfe := longFilenameEntry{data: ent}
				if b&llef != 0 {
					// Start of an LFN sequence.
					sum = lfe.Checksum()
					b &^= llef
					ord = b
					dp.blk_ofs = dp.dptr
				}
				if b == ord && sum == lfe.Checksum() && pick_lfn(fsys.lfnbuf[:], ent) {
					ord--
				} else {
					ord = 0xff
				}
			} else {
				if ord != 0 || sum != sum_sfn(ent) {
					dp.blk_ofs = 0xFFFF_FFFF // No valid LFN.
				}
				break
			}
		}
		fr = dp.next(false)
		if fr != frOK {
			break
		}
	}
	if fr != frOK {
		dp.sect = 0 // Terminate the read operation on EOT or error.
	}
	return fr
}

// find searches the directory for the name in the LFN working buffer and dp.fn.
func (dp *dir) find() FileResult {
	fsys := dp.obj.fs
	fr := dp.sdi(0)
	if fr != frOK {
		return fr
	}
	if fsys.fstype == fstypeExFAT {
		lfn := fsys.lfnbuf[:]
		hash := xname_sum(lfn)
		for {
			fr = dp.read(false)
			if fr != frOK {
				return fr
			}
			dirb := fsys.dirbuf[:]
			if binary.LittleEndian.Uint16(dirb[xdirNameHash:]) != hash {
				continue // Skip comparison if hash mismatched.
			}
			nc := int(dirb[xdirNumName])
			di, ni := sizeDirEntry*2, 0
			for ; nc > 0; nc-- {
				if di%sizeDirEntry == 0 {
					di += 2
				}
				if wtoupper(binary.LittleEndian.Uint16(dirb[di:])) != wtoupper(lfn[ni]) {
					break
				}
				di += 2
				ni++
			}
			if nc == 0 && lfn[ni] == 0 {
				return frOK // Name matched.
			}
		}
	}

	ord, sum := byte(0xff), byte(0xff)
	dp.blk_ofs = 0xFFFF_FFFF
	for {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			break
		}
		ent := dp.entry()
		c := ent[dirNameOff]
		if c == 0 {
			fr = frNoFile // Reached end of directory table.
			break
		}
		a := ent[dirAttrOff] & amMASK
		dp.obj.attr = a
		if c == ddem || (a&amVOL != 0 && a != amLFN) {
			ord = 0xff
			dp.blk_ofs = 0xFFFF_FFFF
		} else if a == amLFN {
			if dp.fn[nsFLAG]&nsNOLFN == 0 {
				lfe := longFilenameEntry{data: ent}
				if c&llef != 0 {
					sum = lfe.Checksum()
					c &^= llef
					ord = c
					dp.blk_ofs = dp.dptr
				}
				if c == ord && sum == lfe.Checksum() && cmp_lfn(fsys.lfnbuf[:], ent) {
					ord--
				} else {
					ord = 0xff
				}
			}
		} else {
			if ord == 0 && sum == sum_sfn(ent) {
				break // LFN matched.
			}
			ds := dirSector{data: ent}
			if dp.fn[nsFLAG]&nsLOSS == 0 && string(ds.name()) == string(dp.fn[:11]) {
				break // SFN matched.
			}
			ord = 0xff
			dp.blk_ofs = 0xFFFF_FFFF
		}
		fr = dp.next(false)
		if fr != frOK {
			break
		}
	}
	return fr
}

// register creates the directory entries for the name in dp.fn and the LFN working buffer.
// For exFAT the entry set is left in dirbuf and must be written with store_xdir.
func (dp *dir) register() FileResult {
	fsys := dp.obj.fs
	if dp.fn[nsFLAG]&(nsDOT|nsNONAME) != 0 {
		return frInvalidName
	}
	lfn := fsys.lfnbuf[:]
	nlen := 0
	for lfn[nlen] != 0 {
		nlen++
	}

	if fsys.fstype == fstypeExFAT {
		nent := uint((nlen+14)/15 + 2)
		fr := dp.alloc(nent)
		if fr != frOK {
			return fr
		}
		dp.blk_ofs = dp.dptr - sizeDirEntry*uint32(nent-1)
		if dp.obj.stat&4 != 0 {
			// The directory was stretched, update its allocation info.
			dp.obj.stat &^= 4
			fr = dp.obj.fill_first_frag()
			if fr != frOK {
				return fr
			}
			fr = dp.obj.fill_last_frag(dp.clust, 0xFFFF_FFFF)
			if fr != frOK {
				return fr
			}
			if dp.obj.sclust != 0 {
				// Not the root directory, update the parent's entry set.
				var dj dir
				fr = dj.load_obj_xdir(&dp.obj)
				if fr != frOK {
					return fr
				}
				dp.obj.objsize += int64(fsys.bytesPerCluster())
				dirb := fsys.dirbuf[:]
				binary.LittleEndian.PutUint64(dirb[xdirFileSize:], uint64(dp.obj.objsize))
				binary.LittleEndian.PutUint64(dirb[xdirValidFileSize:], uint64(dp.obj.objsize))
				dirb[xdirGenFlags] = dp.obj.stat | 1
				fr = dj.store_xdir()
				if fr != frOK {
					return fr
				}
			}
		}
		create_xdir(fsys.dirbuf[:], lfn)
		return frOK
	}

	sn := dp.fn
	var fr FileResult
	if sn[nsFLAG]&nsLOSS != 0 {
		// Lossy conversion to SFN, find a free numbered name.
		dp.fn[nsFLAG] = nsNOLFN
		var n uint32
		for n = 1; n < 100; n++ {
			gen_numname(dp.fn[:], sn[:], lfn, n)
			fr = dp.find()
			if fr != frOK {
				break
			}
		}
		if n == 100 {
			return frDenied // Too many collisions.
		} else if fr != frNoFile {
			return fr
		}
		dp.fn[nsFLAG] = sn[nsFLAG]
	}

	nent := uint(1)
	if sn[nsFLAG]&nsLFN != 0 {
		nent = uint((nlen+12)/13 + 1)
	}
	fr = dp.alloc(nent)
	nent--
	if fr == frOK && nent > 0 {
		// Write the LFN entries in front of the SFN entry.
		fr = dp.sdi(dp.dptr - uint32(nent)*sizeDirEntry)
		if fr == frOK {
			sum := sum_sfn(dp.fn[:])
			for {
				fr = fsys.move_window(dp.sect)
				if fr != frOK {
					break
				}
				put_lfn(lfn, dp.entry(), byte(nent), sum)
				fsys.wflag = 1
				fr = dp.next(false)
				nent--
				if fr != frOK || nent == 0 {
					break
				}
			}
		}
	}
	if fr == frOK {
		fr = fsys.move_window(dp.sect)
		if fr == frOK {
			ent := dp.entry()
			clear(ent)
			copy(ent[dirNameOff:], dp.fn[:11])
			ent[dirNTresOff] = dp.fn[nsFLAG] & (nsBODY | nsEXT)
			fsys.wflag = 1
		}
	}
	return fr
}

// remove marks the entries of the current object as deleted.
func (dp *dir) remove() FileResult {
	fsys := dp.obj.fs
	last := dp.dptr
	fr := frOK
	if dp.blk_ofs != 0xFFFF_FFFF {
		fr = dp.sdi(dp.blk_ofs) // Go to the top of the entry block.
	}
	if fr != frOK {
		return fr
	}
	for {
		fr = fsys.move_window(dp.sect)
		if fr != frOK {
			break
		}
		if fsys.fstype == fstypeExFAT {
			fsys.win[dp.dirOff+xdirType] &= 0x7f // Clear the InUse bit.
		} else {
			fsys.win[dp.dirOff+dirNameOff] = ddem
		}
		fsys.wflag = 1
		if dp.dptr >= last {
			break
		}
		fr = dp.next(false)
		if fr != frOK {
			break
		}
	}
	if fr == frNoFile {
		fr = frIntErr
	}
	return fr
}

// get_fileinfo fills fno with the object at the current directory index.
func (dp *dir) get_fileinfo(fno *FileInfo) {
	fsys := dp.obj.fs
	fno.fname[0] = 0
	if dp.sect == 0 {
		return // End of directory.
	}
	if fsys.fstype == fstypeExFAT {
		fsys.get_xfileinfo(fno)
		return
	}
	if dp.blk_ofs != 0xFFFF_FFFF {
		// Valid LFN.
		di := lfnToUTF8(fno.fname[:len(fno.fname)-1], fsys.lfnbuf[:])
		fno.fname[di] = 0
	}

	ent := dp.entry()
	di := 0
	for si := 0; si < 11; si++ {
		c := ent[si]
		if c == ' ' {
			continue
		}
		if c == rddem {
			c = ddem
		}
		if si == 8 && di < len(fno.altname)-1 {
			fno.altname[di] = '.' // Insert a . if extension exists.
			di++
		}
		r := oem2uni(c)
		if utf8.RuneLen(r) > len(fno.altname)-1-di {
			di = 0
			break
		}
		di += utf8.EncodeRune(fno.altname[di:], r)
	}
	fno.altname[di] = 0

	if fno.fname[0] == 0 {
		// No LFN, use the SFN with lower case flags applied.
		if di == 0 {
			fno.fname[di] = '?'
			di++
		} else {
			lcf := byte(nsBODY)
			for si := 0; si < di; si++ {
				c := fno.altname[si]
				if c == '.' {
					lcf = nsEXT
				}
				if isUpper(c) && ent[dirNTresOff]&lcf != 0 {
					c += 0x20
				}
				fno.fname[si] = c
			}
		}
		fno.fname[di] = 0
		if ent[dirNTresOff] == 0 {
			fno.altname[0] = 0 // Altname is not needed if neither LFN nor case info exists.
		}
	}
	ds := dirSector{data: ent}
	fno.fattrib = ent[dirAttrOff] & amMASK
	fno.fsize = int64(ds.size())
	mt := ds.modifiedAt()
	fno.ftime = mt.time
	fno.fdate = mt.date
}

func get_achar(s *string) rune {
	if len(*s) == 0 {
		return 0
	}
	r, size := utf8.DecodeRuneInString(*s)
	*s = (*s)[size:]
	if r == utf8.RuneError && size <= 1 {
		return 0
	}
	return unicode.ToUpper(r)
}

func isWild(c byte) bool { return c == '?' || c == '*' }

// pattern_match matches nam against pat with '?' and '*' wildcards, case insensitive.
func pattern_match(pat, nam string, skip uint, recur int) bool {
	for skip&0xff != 0 {
		// Pre-skip name chars.
		if get_achar(&nam) == 0 {
			return false
		}
		skip--
	}
	if len(pat) == 0 && skip != 0 {
		return true // Matched at the end of the pattern with '*'.
	}
	for {
		pptr, nptr := pat, nam
		var more bool
		for {
			if len(pptr) > 0 && isWild(pptr[0]) {
				if recur == 0 {
					return false // Too many wildcards.
				}
				var sk uint
				for len(pptr) > 0 && isWild(pptr[0]) {
					if pptr[0] == '?' {
						sk++
					} else {
						sk |= 0x100
					}
					pptr = pptr[1:]
				}
				if pattern_match(pptr, nptr, sk, recur-1) {
					return true
				}
				more = len(nptr) > 0
				break
			}
			pchr := get_achar(&pptr)
			nchr := get_achar(&nptr)
			more = nchr != 0
			if pchr != nchr {
				break
			}
			if pchr == 0 {
				return true
			}
		}
		get_achar(&nam)
		if skip == 0 || !more {
			return false
		}
	}
}
