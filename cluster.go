package fat

import (
	"encoding/binary"
	"log/slog"
	"math/bits"

	"github.com/soypat/fatfs/blkdev"
)

// clusterstat returns the FAT entry value of clst. 0 means free cluster,
// 1 an internal error (or invalid cluster), 0xFFFFFFFF a disk error.
// Any other value is the next cluster in the chain or an end-of-chain mark.
func (obj *objid) clusterstat(clst uint32) (val uint32) {
	fsys := obj.fs
	if clst < 2 || clst >= fsys.n_fatent {
		return 1
	}
	val = clstDiskErr
	switch fsys.fstype {
	case fstypeFAT12:
		bc := clst + clst/2
		if fsys.move_window(fsys.fatbase+lba(fsys.divSS(bc))) != frOK {
			break
		}
		wc := uint32(fsys.win[fsys.modSS(bc)])
		bc++
		if fsys.move_window(fsys.fatbase+lba(fsys.divSS(bc))) != frOK {
			break
		}
		wc |= uint32(fsys.win[fsys.modSS(bc)]) << 8
		if clst&1 != 0 {
			val = wc >> 4
		} else {
			val = wc & 0xfff
		}

	case fstypeFAT16:
		if fsys.move_window(fsys.fatbase+lba(fsys.divSS(clst*2))) != frOK {
			break
		}
		val = uint32(binary.LittleEndian.Uint16(fsys.win[fsys.modSS(clst*2):]))

	case fstypeFAT32:
		if fsys.move_window(fsys.fatbase+lba(fsys.divSS(clst*4))) != frOK {
			break
		}
		val = binary.LittleEndian.Uint32(fsys.win[fsys.modSS(clst*4):]) & mask28bits

	case fstypeExFAT:
		if (obj.objsize != 0 && obj.sclust != 0) || obj.stat == 0 {
			cofs := clst - obj.sclust // Offset from start cluster.
			var clen uint32           // Number of clusters - 1.
			if obj.objsize > 0 {
				clen = uint32((obj.objsize - 1) / int64(fsys.bytesPerCluster()))
			}
			if obj.stat == 2 && cofs <= clen {
				// Contiguous chain, no data on the FAT.
				if cofs == clen {
					return 0x7FFFFFFF
				}
				return clst + 1
			}
			if obj.stat == 3 && cofs < obj.n_cont {
				return clst + 1 // In the first fragment.
			}
			if obj.stat != 2 {
				if obj.n_frag != 0 {
					return 0x7FFFFFFF // On the growing edge.
				}
				if fsys.move_window(fsys.fatbase+lba(fsys.divSS(clst*4))) != frOK {
					break
				}
				return binary.LittleEndian.Uint32(fsys.win[fsys.modSS(clst*4):]) & 0x7FFFFFFF
			}
		}
		val = 1
	default:
		val = 1
	}
	return val
}

// put_clusterstat sets the FAT entry of clst to val.
func (fsys *FS) put_clusterstat(clst, val uint32) (fr FileResult) {
	if clst < 2 || clst >= fsys.n_fatent {
		return frIntErr
	}
	switch fsys.fstype {
	case fstypeFAT12:
		bc := clst + clst/2
		fr = fsys.move_window(fsys.fatbase + lba(fsys.divSS(bc)))
		if fr != frOK {
			break
		}
		p := &fsys.win[fsys.modSS(bc)]
		if clst&1 != 0 {
			*p = (*p & 0x0f) | byte(val)<<4
		} else {
			*p = byte(val)
		}
		fsys.wflag = 1
		bc++
		fr = fsys.move_window(fsys.fatbase + lba(fsys.divSS(bc)))
		if fr != frOK {
			break
		}
		p = &fsys.win[fsys.modSS(bc)]
		if clst&1 != 0 {
			*p = byte(val >> 4)
		} else {
			*p = (*p & 0xf0) | byte(val>>8)&0x0f
		}
		fsys.wflag = 1

	case fstypeFAT16:
		fr = fsys.move_window(fsys.fatbase + lba(fsys.divSS(clst*2)))
		if fr != frOK {
			break
		}
		binary.LittleEndian.PutUint16(fsys.win[fsys.modSS(clst*2):], uint16(val))
		fsys.wflag = 1

	case fstypeFAT32, fstypeExFAT:
		fr = fsys.move_window(fsys.fatbase + lba(fsys.divSS(clst*4)))
		if fr != frOK {
			break
		}
		p := fsys.win[fsys.modSS(clst*4):]
		if fsys.fstype != fstypeExFAT {
			// Upper 4 bits of FAT32 entries are reserved.
			val = val&mask28bits | binary.LittleEndian.Uint32(p)&^mask28bits
		}
		binary.LittleEndian.PutUint32(p, val)
		fsys.wflag = 1
	default:
		fr = frIntErr
	}
	return fr
}

// find_bitmap searches the exFAT allocation bitmap for ncl contiguous free
// clusters starting at clst. Returns the first cluster of the run, 0 if there
// is no run long enough or 0xFFFFFFFF on disk error.
func (fsys *FS) find_bitmap(clst, ncl uint32) uint32 {
	ss := uint32(fsys.ssize)
	clst -= 2 // The first bit in the bitmap corresponds to cluster #2.
	if clst >= fsys.n_fatent-2 {
		clst = 0
	}
	scl, val := clst, clst
	var ctr uint32
	for {
		if fsys.move_window(fsys.bitbase+lba(val/8/ss)) != frOK {
			return clstDiskErr
		}
		i := val / 8 % ss
		bm := byte(1) << (val % 8)
		for {
			for {
				bv := fsys.win[i] & bm
				bm <<= 1
				val++
				if val >= fsys.n_fatent-2 {
					// Wrap around to the start of the bitmap.
					val, bm, i = 0, 0, ss
				}
				if bv == 0 {
					ctr++
					if ctr == ncl {
						return scl + 2
					}
				} else {
					scl, ctr = val, 0
				}
				if val == clst {
					return 0 // All clusters scanned.
				}
				if bm == 0 {
					break
				}
			}
			bm = 1
			i++
			if i >= ss {
				break
			}
		}
	}
}

// change_bitmap sets (set=true) or clears ncl bits of the exFAT allocation
// bitmap starting at cluster clst. Bits already in the target state are an internal error.
func (fsys *FS) change_bitmap(clst, ncl uint32, set bool) FileResult {
	ss := uint32(fsys.ssize)
	clst -= 2
	sect := fsys.bitbase + lba(clst/8/ss)
	i := clst / 8 % ss
	bm := byte(1) << (clst % 8)
	for {
		if fsys.move_window(sect) != frOK {
			return frDiskErr
		}
		sect++
		for {
			for {
				if set == (fsys.win[i]&bm != 0) {
					return frIntErr
				}
				fsys.win[i] ^= bm
				fsys.wflag = 1
				ncl--
				if ncl == 0 {
					return frOK
				}
				bm <<= 1
				if bm == 0 {
					break
				}
			}
			bm = 1
			i++
			if i >= ss {
				break
			}
		}
		i = 0
	}
}

// fill_first_frag writes the FAT entries of the first fragment of an object
// that was contiguous until now.
func (obj *objid) fill_first_frag() FileResult {
	if obj.stat == 3 {
		cl := obj.sclust
		for n := obj.n_cont; n > 0; n-- {
			fr := obj.fs.put_clusterstat(cl, cl+1)
			if fr != frOK {
				return fr
			}
			cl++
		}
		obj.stat = 0 // Change status 'FAT chain is valid'.
	}
	return frOK
}

// fill_last_frag writes the FAT entries of the growing fragment ending at lcl and terminates it with term.
func (obj *objid) fill_last_frag(lcl, term uint32) FileResult {
	for obj.n_frag > 0 {
		next := term
		if obj.n_frag > 1 {
			next = lcl - obj.n_frag + 2
		}
		fr := obj.fs.put_clusterstat(lcl-obj.n_frag+1, next)
		if fr != frOK {
			return fr
		}
		obj.n_frag--
	}
	return frOK
}

// remove_chain frees the chain starting at clst. If pclst is not zero it is
// marked as the new end of the chain. Free clusters in the chain are skipped.
func (obj *objid) remove_chain(clst, pclst uint32) (fr FileResult) {
	fsys := obj.fs
	if clst < 2 || clst >= fsys.n_fatent {
		return frIntErr
	}
	defer func() {
		if fr != frOK {
			// Chain was left partially freed; free count is no longer trustworthy.
			fsys.free_clst = clstUnknown
			fsys.logerror("remove_chain", slog.Uint64("clst", uint64(clst)), slog.String("fr", fr.String()))
		}
	}()
	if pclst != 0 && (fsys.fstype != fstypeExFAT || obj.stat != 2) {
		fr = fsys.put_clusterstat(pclst, 0xFFFF_FFFF)
		if fr != frOK {
			return fr
		}
	}
	scl, ecl := clst, clst // Start and end of contiguous run.
	var steps uint32
	for {
		nxt := obj.clusterstat(clst)
		if nxt == 0 {
			break // Empty cluster, chain already freed.
		} else if nxt == 1 {
			return frIntErr
		} else if nxt == clstDiskErr {
			return frDiskErr
		}
		steps++
		if steps > fsys.n_fatent {
			return frIntErr // Cross linked or looping chain.
		}
		if fsys.fstype != fstypeExFAT {
			fr = fsys.put_clusterstat(clst, 0)
			if fr != frOK {
				return fr
			}
		}
		if fsys.free_clst < fsys.n_fatent-2 {
			fsys.free_clst++
			fsys.fsi_flag |= 1
		}
		if ecl+1 == nxt {
			ecl = nxt
		} else {
			if fsys.fstype == fstypeExFAT {
				fr = fsys.change_bitmap(scl, ecl-scl+1, false)
				if fr != frOK {
					return fr
				}
			}
			fsys.disk_trim(fsys.clst2sect(scl), fsys.clst2sect(ecl)+lba(fsys.csize)-1)
			scl, ecl = nxt, nxt
		}
		clst = nxt
		if clst >= fsys.n_fatent {
			break
		}
	}

	if fsys.fstype == fstypeExFAT {
		// Update contiguous status of the remaining chain.
		if pclst == 0 {
			obj.stat = 0
		} else if obj.stat == 0 {
			clst = obj.sclust
			for clst != pclst {
				nxt := obj.clusterstat(clst)
				if nxt < 2 {
					return frIntErr
				} else if nxt == clstDiskErr {
					return frDiskErr
				} else if nxt != clst+1 {
					break
				}
				clst++
			}
			if clst == pclst {
				obj.stat = 2 // Chain became contiguous.
			}
		} else if obj.stat == 3 && pclst >= obj.sclust && pclst <= obj.sclust+obj.n_cont {
			obj.stat = 2 // Fragmented part was removed.
		}
	}
	return frOK
}

// create_chain stretches the chain ending at clst, or creates a new chain if clst is 0.
// Returns the new cluster, 0 if the disk is full, 1 on internal error, 0xFFFFFFFF on disk error.
// If clst is already followed by another cluster that cluster is returned.
func (obj *objid) create_chain(clst uint32) uint32 {
	fsys := obj.fs
	var scl uint32
	if clst == 0 {
		scl = fsys.last_clst // Suggested cluster to start to find.
		if scl == 0 || scl >= fsys.n_fatent {
			scl = 1
		}
	} else {
		cs := obj.clusterstat(clst)
		if cs < 2 {
			return 1
		} else if cs == clstDiskErr || cs < fsys.n_fatent {
			return cs // Disk error or already followed by next cluster.
		}
		scl = clst
	}
	if fsys.free_clst == 0 {
		return 0 // No free cluster.
	}

	var ncl uint32
	fr := frOK
	if fsys.fstype == fstypeExFAT {
		ncl = fsys.find_bitmap(scl, 1)
		if ncl == 0 || ncl == clstDiskErr {
			return ncl
		}
		fr = fsys.change_bitmap(ncl, 1, true)
		if fr == frIntErr {
			return 1
		} else if fr == frDiskErr {
			return clstDiskErr
		}
		if clst == 0 {
			obj.stat = 2 // New chain is contiguous.
		} else if obj.stat == 2 && ncl != scl+1 {
			// Contiguous chain got fragmented.
			obj.n_cont = scl - obj.sclust
			obj.stat = 3
		}
		if obj.stat != 2 {
			if ncl == clst+1 {
				if obj.n_frag == 0 {
					obj.n_frag = 2
				} else {
					obj.n_frag++
				}
			} else {
				if obj.n_frag == 0 {
					obj.n_frag = 1
				}
				fr = obj.fill_last_frag(clst, ncl)
				if fr == frOK {
					obj.n_frag = 1
				}
			}
		}
	} else {
		if scl == clst {
			// Stretching an existing chain, try the next cluster first.
			ncl = scl + 1
			if ncl >= fsys.n_fatent {
				ncl = 2
			}
			cs := obj.clusterstat(ncl)
			if cs == 1 || cs == clstDiskErr {
				return cs
			}
			if cs != 0 {
				// Not free, start at the allocation hint.
				cs = fsys.last_clst
				if cs >= 2 && cs < fsys.n_fatent {
					scl = cs
				}
				ncl = 0
			}
		}
		if ncl == 0 {
			ncl = scl
			for {
				ncl++
				if ncl >= fsys.n_fatent {
					ncl = 2
					if ncl > scl {
						return 0 // No free cluster.
					}
				}
				cs := obj.clusterstat(ncl)
				if cs == 0 {
					break
				} else if cs == 1 || cs == clstDiskErr {
					return cs
				} else if ncl == scl {
					return 0 // Full circle.
				}
			}
		}
		fr = fsys.put_clusterstat(ncl, 0xFFFF_FFFF)
		if fr == frOK && clst != 0 {
			fr = fsys.put_clusterstat(clst, ncl)
		}
	}

	if fr != frOK {
		fsys.free_clst = clstUnknown
		if fr == frDiskErr {
			return clstDiskErr
		}
		return 1
	}
	fsys.last_clst = ncl
	if fsys.free_clst <= fsys.n_fatent-2 {
		fsys.free_clst--
	}
	fsys.fsi_flag |= 1
	return ncl
}

// clmt_clust converts a file offset to a cluster number using the link map table.
func (fp *File) clmt_clust(ofs int64) uint32 {
	tbl := fp.cltbl[1:]
	cl := uint32(ofs / int64(fp.obj.fs.bytesPerCluster()))
	for {
		ncl := tbl[0] // Number of clusters in the fragment.
		if ncl == 0 {
			return 0 // End of table.
		}
		if cl < ncl {
			break
		}
		cl -= ncl
		tbl = tbl[2:]
	}
	return cl + tbl[1]
}

// dir_clear fills a directory cluster with zeros.
func (fsys *FS) dir_clear(clst uint32) FileResult {
	if fsys.sync_window() != frOK {
		return frDiskErr
	}
	sect := fsys.clst2sect(clst)
	fsys.winsect = sect
	clear(fsys.win)
	for n := lba(0); n < lba(fsys.csize); n++ {
		if fsys.disk_write(fsys.win, sect+n, 1) != blkdev.ResultOK {
			return frDiskErr
		}
	}
	return frOK
}

// getFree returns the number of free clusters, scanning the FAT or bitmap
// when the cached count is not valid.
func (fsys *FS) getFree() (uint32, FileResult) {
	if fsys.free_clst <= fsys.n_fatent-2 {
		return fsys.free_clst, frOK
	}
	var nfree uint32
	switch fsys.fstype {
	case fstypeFAT12:
		obj := objid{fs: fsys}
		for clst := uint32(2); clst < fsys.n_fatent; clst++ {
			stat := obj.clusterstat(clst)
			if stat == clstDiskErr {
				return 0, frDiskErr
			} else if stat == 1 {
				return 0, frIntErr
			} else if stat == 0 {
				nfree++
			}
		}

	case fstypeExFAT:
		clst := fsys.n_fatent - 2
		sect := fsys.bitbase
		for clst > 0 {
			if fsys.move_window(sect) != frOK {
				return 0, frDiskErr
			}
			sect++
			for i := 0; i < len(fsys.win) && clst > 0; i++ {
				bm := ^fsys.win[i]
				if clst < 8 {
					bm &= 1<<clst - 1
					clst = 0
				} else {
					clst -= 8
				}
				nfree += uint32(bits.OnesCount8(bm))
			}
		}

	default:
		clst := fsys.n_fatent
		sect := fsys.fatbase
		i := 0
		for ; clst > 0; clst-- {
			if i == 0 {
				if fsys.move_window(sect) != frOK {
					return 0, frDiskErr
				}
				sect++
			}
			if fsys.fstype == fstypeFAT16 {
				if binary.LittleEndian.Uint16(fsys.win[i:]) == 0 {
					nfree++
				}
				i += 2
			} else {
				if binary.LittleEndian.Uint32(fsys.win[i:])&mask28bits == 0 {
					nfree++
				}
				i += 4
			}
			i %= len(fsys.win)
		}
	}
	fsys.free_clst = nfree
	fsys.fsi_flag |= 1
	return nfree, frOK
}
