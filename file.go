package fat

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/soypat/fatfs/blkdev"
)

// File is an open file on a FAT volume.
type File struct {
	obj      objid
	flag     uint8      // File status flags.
	err      FileResult // Abort flag (error code).
	fptr     int64      // File read/write pointer.
	clust    uint32     // Current cluster of fptr (invalid when fptr is 0).
	sect     lba        // Sector number appearing in buf[] (0:invalid).
	dir_sect lba        // Sector number containing the directory entry (not used at exFAT).
	dir_ofs  uint16     // Offset of the directory entry in dir_sect.
	cltbl    []uint32   // Cluster link map table, nil when not in use.
	buf      []byte     // File private data read/write window.
}

func (fsys *FS) f_open(fp *File, path string, mode uint8) (fr FileResult) {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	}
	dj := dir{obj: objid{fs: fsys}}
	defer func() {
		if fr != frOK {
			fp.obj.fs = nil
		}
	}()
	fr = dj.follow_path(path)
	acc := lockRead
	if mode&^faRead != 0 {
		acc = lockWrite
	}
	if fr == frOK {
		if dj.fn[nsFLAG]&nsNONAME != 0 {
			fr = frInvalidName // Origin directory itself.
		} else {
			fr = fsys.locks.check(&dj, acc)
		}
	}

	if mode&(faCreateAlways|faOpenAlways|faCreateNew) != 0 {
		// Any object with this name is going to be created.
		if fr != frOK {
			if fr == frNoFile {
				if fsys.locks.enabled() && !fsys.locks.hasFree() {
					fr = frTooManyOpenFiles
				} else {
					fr = dj.register()
				}
			}
			mode |= faCreateAlways // File is created.
		} else if dj.obj.attr&(amRDO|amDIR) != 0 {
			fr = frDenied // Cannot overwrite it (R/O or DIR).
		} else if mode&faCreateNew != 0 {
			fr = frExist
		}
		if fr == frOK && mode&faCreateAlways != 0 {
			fr = fsys.truncate_entry(fp, &dj)
		}
	} else if fr == frOK {
		// Open an existing file.
		if dj.obj.attr&amDIR != 0 {
			fr = frNoFile
		} else if mode&faWrite != 0 && dj.obj.attr&amRDO != 0 {
			fr = frDenied
		}
	}
	if fr != frOK {
		return fr
	}

	if mode&faCreateAlways != 0 {
		mode |= faModified
	}
	fp.dir_sect = fsys.winsect
	fp.dir_ofs = dj.dirOff
	fp.obj.lockid = fsys.locks.inc(&dj, acc)
	if fsys.locks.enabled() && fp.obj.lockid == 0 {
		return frIntErr
	}

	if fsys.fstype == fstypeExFAT {
		fp.obj.c_scl = dj.obj.sclust
		fp.obj.c_size = uint32(dj.obj.objsize)&0xFFFFFF00 | uint32(dj.obj.stat)
		fp.obj.c_ofs = dj.blk_ofs
		fp.obj.fs = fsys
		fp.obj.init_alloc_info()
	} else {
		ds := dirSector{data: dj.entry()}
		fp.obj.sclust = ds.cluster(fsys.fstype)
		fp.obj.objsize = int64(ds.size())
	}
	fp.cltbl = nil
	fp.obj.fs = fsys
	fp.obj.id = fsys.id
	fp.flag = mode
	fp.err = frOK
	fp.sect = 0
	fp.fptr = 0
	fp.clust = 0
	if cap(fp.buf) < int(fsys.ssize) {
		fp.buf = make([]byte, fsys.ssize)
	}
	fp.buf = fp.buf[:fsys.ssize]
	clear(fp.buf)

	if mode&faSeekEnd != 0 && fp.obj.objsize > 0 {
		fr = fp.seekEnd()
		if fr != frOK {
			fsys.locks.dec(fp.obj.lockid)
		}
	}
	return fr
}

// truncate_entry resets the entry found by dj to an empty archive file, freeing its chain.
func (fsys *FS) truncate_entry(fp *File, dj *dir) (fr FileResult) {
	tm := fsys.fattime()
	if fsys.fstype == fstypeExFAT {
		// Get current allocation info and reset the entry set.
		fp.obj.fs = fsys
		fp.obj.init_alloc_info()
		dirb := fsys.dirbuf[:]
		clear(dirb[2:32])
		clear(dirb[38:64])
		dirb[xdirAttr] = amARC
		binary.LittleEndian.PutUint32(dirb[xdirCrtTime:], tm)
		binary.LittleEndian.PutUint32(dirb[xdirModTime:], tm)
		dirb[xdirGenFlags] = 1
		fr = dj.store_xdir()
		if fr == frOK && fp.obj.sclust != 0 {
			fr = fp.obj.remove_chain(fp.obj.sclust, 0)
			fsys.last_clst = fp.obj.sclust - 1 // Reuse the cluster hole.
		}
		return fr
	}
	ds := dirSector{data: dj.entry()}
	ds.setCreated(tm)
	ds.setModified(tm)
	cl := ds.cluster(fsys.fstype)
	ds.data[dirAttrOff] = amARC
	ds.setCluster(fsys.fstype, 0)
	ds.setSize(0)
	fsys.wflag = 1
	if cl != 0 {
		sc := fsys.winsect
		fr = dj.obj.remove_chain(cl, 0)
		if fr == frOK {
			fr = fsys.move_window(sc)
			fsys.last_clst = cl - 1 // Reuse the cluster hole.
		}
	}
	return fr
}

// seekEnd moves the file pointer to the end of the file, used by append mode.
func (fp *File) seekEnd() FileResult {
	fsys := fp.obj.fs
	fp.fptr = fp.obj.objsize
	bcs := int64(fsys.bytesPerCluster())
	clst := fp.obj.sclust
	ofs := fp.obj.objsize
	for ; ofs > bcs; ofs -= bcs {
		clst = fp.obj.clusterstat(clst)
		if clst == clstDiskErr {
			return frDiskErr
		} else if clst <= 1 {
			return frIntErr
		}
	}
	fp.clust = clst
	if fsys.blk.off(ofs) != 0 {
		sc := fsys.clst2sect(clst)
		if sc == 0 {
			return frIntErr
		}
		fp.sect = sc + lba(fsys.blk.idx(ofs))
		if fsys.disk_read(fp.buf, fp.sect, 1) != blkdev.ResultOK {
			return frDiskErr
		}
	}
	return frOK
}

func (fp *File) abort(fr FileResult) FileResult {
	fp.err = fr
	fp.obj.fs.logerror("file:abort", slog.String("fr", fr.String()), slog.Int64("fptr", fp.fptr))
	return fr
}

// f_read reads up to len(buf) bytes. A short count means the end of the file was reached.
func (fp *File) f_read(buf []byte) (br int, fr FileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return 0, fp.err
	} else if fp.flag&faRead == 0 {
		return 0, frDenied
	}
	ss := int64(fsys.ssize)
	remain := fp.obj.objsize - fp.fptr
	btr := int64(len(buf))
	if btr > remain {
		btr = remain
	}
	for btr > 0 {
		var rcnt int64
		if fsys.blk.off(fp.fptr) == 0 {
			// On the sector boundary.
			csect := uint32(fsys.blk.idx(fp.fptr)) & uint32(fsys.csize-1)
			if csect == 0 {
				// On the cluster boundary.
				var clst uint32
				if fp.fptr == 0 {
					clst = fp.obj.sclust
				} else if fp.cltbl != nil {
					clst = fp.clmt_clust(fp.fptr)
				} else {
					clst = fp.obj.clusterstat(fp.clust)
				}
				if clst < 2 {
					return br, fp.abort(frIntErr)
				} else if clst == clstDiskErr {
					return br, fp.abort(frDiskErr)
				}
				fp.clust = clst
			}
			sect := fsys.clst2sect(fp.clust)
			if sect == 0 {
				return br, fp.abort(frIntErr)
			}
			sect += lba(csect)
			cc := uint32(btr / ss)
			if cc > 0 {
				// Read whole sectors directly into the destination.
				if csect+cc > uint32(fsys.csize) {
					cc = uint32(fsys.csize) - csect
				}
				dst := buf[br:]
				if fsys.disk_read(dst, sect, int(cc)) != blkdev.ResultOK {
					return br, fp.abort(frDiskErr)
				}
				if fp.flag&faDirty != 0 && fp.sect-sect < lba(cc) {
					// Replace stale data with the dirty sector in the file buffer.
					copy(dst[int64(fp.sect-sect)*ss:], fp.buf)
				}
				rcnt = ss * int64(cc)
				br += int(rcnt)
				btr -= rcnt
				fp.fptr += rcnt
				continue
			}
			if fp.sect != sect {
				if fp.flag&faDirty != 0 {
					if fsys.disk_write(fp.buf, fp.sect, 1) != blkdev.ResultOK {
						return br, fp.abort(frDiskErr)
					}
					fp.flag &^= faDirty
				}
				if fsys.disk_read(fp.buf, sect, 1) != blkdev.ResultOK {
					return br, fp.abort(frDiskErr)
				}
			}
			fp.sect = sect
		}
		off := fsys.blk.off(fp.fptr)
		rcnt = ss - off
		if rcnt > btr {
			rcnt = btr
		}
		copy(buf[br:br+int(rcnt)], fp.buf[off:])
		br += int(rcnt)
		btr -= rcnt
		fp.fptr += rcnt
	}
	return br, frOK
}

// f_write writes buf at the file pointer, extending the file as needed. If the
// volume fills up the write stops short and bw < len(buf) with frOK.
func (fp *File) f_write(buf []byte) (bw int, fr FileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return 0, fp.err
	} else if fp.flag&faWrite == 0 {
		return 0, frDenied
	}
	ss := int64(fsys.ssize)
	btw := int64(len(buf))
	if fsys.fstype != fstypeExFAT && fp.fptr+btw > math.MaxUint32 {
		btw = math.MaxUint32 - fp.fptr // File size cannot reach 4 GiB on FAT.
	}
	defer func() {
		if bw > 0 || fr == frOK {
			fp.flag |= faModified
		}
	}()
	for btw > 0 {
		var wcnt int64
		if fsys.blk.off(fp.fptr) == 0 {
			// On the sector boundary.
			csect := uint32(fsys.blk.idx(fp.fptr)) & uint32(fsys.csize-1)
			if csect == 0 {
				var clst uint32
				if fp.fptr == 0 {
					clst = fp.obj.sclust
					if clst == 0 {
						clst = fp.obj.create_chain(0) // No cluster allocated yet.
					}
				} else if fp.cltbl != nil {
					clst = fp.clmt_clust(fp.fptr)
				} else {
					clst = fp.obj.create_chain(fp.clust)
				}
				if clst == 0 {
					break // Disk full.
				} else if clst == 1 {
					return bw, fp.abort(frIntErr)
				} else if clst == clstDiskErr {
					return bw, fp.abort(frDiskErr)
				}
				fp.clust = clst
				if fp.obj.sclust == 0 {
					fp.obj.sclust = clst // First cluster of the file.
				}
			}
			if fp.flag&faDirty != 0 {
				if fsys.disk_write(fp.buf, fp.sect, 1) != blkdev.ResultOK {
					return bw, fp.abort(frDiskErr)
				}
				fp.flag &^= faDirty
			}
			sect := fsys.clst2sect(fp.clust)
			if sect == 0 {
				return bw, fp.abort(frIntErr)
			}
			sect += lba(csect)
			cc := uint32(btw / ss)
			if cc > 0 {
				// Write whole sectors directly from the source.
				if csect+cc > uint32(fsys.csize) {
					cc = uint32(fsys.csize) - csect
				}
				src := buf[bw:]
				if fsys.disk_write(src, sect, int(cc)) != blkdev.ResultOK {
					return bw, fp.abort(frDiskErr)
				}
				if fp.sect-sect < lba(cc) {
					// Refill the file buffer with the data just written.
					copy(fp.buf, src[int64(fp.sect-sect)*ss:])
					fp.flag &^= faDirty
				}
				wcnt = ss * int64(cc)
				fp.advanceWrite(wcnt)
				bw += int(wcnt)
				btw -= wcnt
				continue
			}
			if fp.sect != sect && fp.fptr < fp.obj.objsize {
				// Fill the sector buffer with file data.
				if fsys.disk_read(fp.buf, sect, 1) != blkdev.ResultOK {
					return bw, fp.abort(frDiskErr)
				}
			}
			fp.sect = sect
		}
		off := fsys.blk.off(fp.fptr)
		wcnt = ss - off
		if wcnt > btw {
			wcnt = btw
		}
		copy(fp.buf[off:], buf[bw:bw+int(wcnt)])
		fp.flag |= faDirty
		fp.advanceWrite(wcnt)
		bw += int(wcnt)
		btw -= wcnt
	}
	return bw, frOK
}

func (fp *File) advanceWrite(n int64) {
	fp.fptr += n
	if fp.fptr > fp.obj.objsize {
		fp.obj.objsize = fp.fptr
	}
}

// f_sync flushes cached data and writes back the directory entry.
func (fp *File) f_sync() (fr FileResult) {
	fsys := fp.obj.fs
	if fp.flag&faModified == 0 {
		return frOK
	}
	if fp.flag&faDirty != 0 {
		if fsys.disk_write(fp.buf, fp.sect, 1) != blkdev.ResultOK {
			return frDiskErr
		}
		fp.flag &^= faDirty
	}
	tm := fsys.fattime()
	if fsys.fstype == fstypeExFAT {
		fr = fp.obj.fill_first_frag()
		if fr == frOK {
			fr = fp.obj.fill_last_frag(fp.clust, 0xFFFF_FFFF)
		}
		if fr != frOK {
			return fr
		}
		var dj dir
		fr = dj.load_obj_xdir(&fp.obj)
		if fr != frOK {
			return fr
		}
		dirb := fsys.dirbuf[:]
		dirb[xdirAttr] |= amARC
		dirb[xdirGenFlags] = fp.obj.stat | 1
		binary.LittleEndian.PutUint32(dirb[xdirFstClus:], fp.obj.sclust)
		binary.LittleEndian.PutUint64(dirb[xdirFileSize:], uint64(fp.obj.objsize))
		binary.LittleEndian.PutUint64(dirb[xdirValidFileSize:], uint64(fp.obj.objsize))
		binary.LittleEndian.PutUint32(dirb[xdirModTime:], tm)
		dirb[xdirModTime10] = 0
		dirb[xdirModTZ] = 0
		binary.LittleEndian.PutUint32(dirb[xdirAccTime:], 0)
		fr = dj.store_xdir()
		if fr != frOK {
			return fr
		}
	} else {
		fr = fsys.move_window(fp.dir_sect)
		if fr != frOK {
			return fr
		}
		ds := dirSector{data: fsys.win[fp.dir_ofs : fp.dir_ofs+sizeDirEntry]}
		ds.data[dirAttrOff] |= amARC
		ds.setCluster(fsys.fstype, fp.obj.sclust)
		ds.setSize(uint32(fp.obj.objsize))
		ds.setModified(tm)
		ds.setAccessed(0)
		fsys.wflag = 1
	}
	fr = fsys.sync_fs()
	fp.flag &^= faModified
	return fr
}

func (fp *File) f_close() FileResult {
	fr := fp.f_sync()
	if fr != frOK {
		return fr
	}
	fr = fp.obj.validate()
	if fr != frOK {
		return fr
	}
	if fp.obj.fs.locks.enabled() {
		fr = fp.obj.fs.locks.dec(fp.obj.lockid)
		if fr != frOK {
			return fr
		}
	}
	fp.obj.fs = nil // Invalidate file object.
	return frOK
}

// f_lseek moves the file pointer to ofs. On writable files seeking past the
// end of the file extends it.
func (fp *File) f_lseek(ofs int64) (fr FileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return fp.err
	}
	if fsys.fstype == fstypeExFAT {
		fr = fp.obj.fill_last_frag(fp.clust, 0xFFFF_FFFF)
		if fr != frOK {
			return fr
		}
	}
	if ofs < 0 {
		return frInvalidParameter
	}
	if fp.cltbl != nil {
		return fp.lseekLinkMap(ofs)
	}

	if fsys.fstype != fstypeExFAT && ofs > math.MaxUint32 {
		ofs = math.MaxUint32 // Clip at 4 GiB - 1 if at FATxx.
	}
	if ofs > fp.obj.objsize && fp.flag&faWrite == 0 {
		ofs = fp.obj.objsize // In read-only mode, clip offset with the file size.
	}
	ifptr := fp.fptr
	fp.fptr = 0
	var nsect lba
	if ofs > 0 {
		bcs := int64(fsys.bytesPerCluster())
		var clst uint32
		if ifptr > 0 && (ofs-1)/bcs >= (ifptr-1)/bcs {
			// When seeking to the same or following cluster, start from the current cluster.
			fp.fptr = (ifptr - 1) &^ (bcs - 1)
			ofs -= fp.fptr
			clst = fp.clust
		} else {
			// When seeking back, start from the first cluster.
			clst = fp.obj.sclust
			if clst == 0 {
				// No cluster chain, create a new chain.
				clst = fp.obj.create_chain(0)
				if clst == 1 {
					return fp.abort(frIntErr)
				} else if clst == clstDiskErr {
					return fp.abort(frDiskErr)
				}
				fp.obj.sclust = clst
			}
			fp.clust = clst
		}
		if clst != 0 {
			for ofs > bcs {
				ofs -= bcs
				fp.fptr += bcs
				if fp.flag&faWrite != 0 {
					// Check if in write mode or not.
					if fp.fptr > fp.obj.objsize {
						fp.obj.objsize = fp.fptr
						fp.flag |= faModified
					}
					clst = fp.obj.create_chain(clst) // Force stretch if in write mode.
					if clst == 0 {
						ofs = 0 // Clip file size in case of disk full.
						break
					}
				} else {
					clst = fp.obj.clusterstat(clst)
				}
				if clst == clstDiskErr {
					return fp.abort(frDiskErr)
				} else if clst <= 1 || clst >= fsys.n_fatent {
					return fp.abort(frIntErr)
				}
				fp.clust = clst
			}
			fp.fptr += ofs
			if fsys.blk.off(ofs) != 0 {
				nsect = fsys.clst2sect(clst)
				if nsect == 0 {
					return fp.abort(frIntErr)
				}
				nsect += lba(fsys.blk.idx(ofs))
			}
		}
	}
	if fp.fptr > fp.obj.objsize {
		// Set file change flag if the file size is extended.
		fp.obj.objsize = fp.fptr
		fp.flag |= faModified
	}
	if fsys.blk.off(fp.fptr) != 0 && nsect != fp.sect {
		fr = fp.loadSector(nsect)
		if fr != frOK {
			return fp.abort(fr)
		}
	}
	return frOK
}

// loadSector flushes the file buffer if dirty and loads sect into it.
func (fp *File) loadSector(sect lba) FileResult {
	fsys := fp.obj.fs
	if fp.flag&faDirty != 0 {
		if fsys.disk_write(fp.buf, fp.sect, 1) != blkdev.ResultOK {
			return frDiskErr
		}
		fp.flag &^= faDirty
	}
	if fsys.disk_read(fp.buf, sect, 1) != blkdev.ResultOK {
		return frDiskErr
	}
	fp.sect = sect
	return frOK
}

func (fp *File) lseekLinkMap(ofs int64) FileResult {
	fsys := fp.obj.fs
	if ofs > fp.obj.objsize {
		ofs = fp.obj.objsize // Clip offset with the file size.
	}
	fp.fptr = ofs
	if ofs == 0 {
		return frOK
	}
	fp.clust = fp.clmt_clust(ofs - 1)
	dsc := fsys.clst2sect(fp.clust)
	if dsc == 0 {
		return fp.abort(frIntErr)
	}
	dsc += lba(uint32(fsys.blk.idx(ofs-1)) & uint32(fsys.csize-1))
	if fsys.blk.off(fp.fptr) != 0 && dsc != fp.sect {
		fr := fp.loadSector(dsc)
		if fr != frOK {
			return fp.abort(fr)
		}
	}
	return frOK
}

// create_linkmap fills tbl with the fragment list of the file. tbl[0] holds the
// table length on return; frNotEnoughCore means tbl was too short.
func (fp *File) create_linkmap(tbl []uint32) FileResult {
	fsys := fp.obj.fs
	tlen := uint32(len(tbl))
	ulen := uint32(2)
	w := 1
	cl := fp.obj.sclust
	if cl != 0 {
		for {
			// Get a fragment.
			tcl := cl
			var ncl uint32
			ulen += 2
			for {
				pcl := cl
				ncl++
				cl = fp.obj.clusterstat(cl)
				if cl == clstDiskErr {
					return fp.abort(frDiskErr)
				} else if cl <= 1 {
					return fp.abort(frIntErr)
				}
				if cl != pcl+1 {
					break
				}
			}
			if ulen <= tlen {
				tbl[w] = ncl
				tbl[w+1] = tcl
				w += 2
			}
			if cl >= fsys.n_fatent {
				break
			}
		}
	}
	if tlen > 0 {
		tbl[0] = ulen
	}
	if ulen > tlen {
		return frNotEnoughCore
	}
	tbl[w] = 0 // Terminate table.
	return frOK
}

// f_truncate truncates the file at the file pointer.
func (fp *File) f_truncate() (fr FileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return fp.err
	} else if fp.flag&faWrite == 0 {
		return frDenied
	}
	if fp.fptr >= fp.obj.objsize {
		return frOK
	}
	if fp.fptr == 0 {
		// Truncate to zero, remove entire chain.
		fr = fp.obj.remove_chain(fp.obj.sclust, 0)
		if fr == frOK {
			fp.obj.sclust = 0
		}
	} else {
		// Truncate a part of the file, remove the remaining chain.
		ncl := fp.obj.clusterstat(fp.clust)
		if ncl == clstDiskErr {
			fr = frDiskErr
		} else if ncl == 1 {
			fr = frIntErr
		}
		if fr == frOK && ncl < fsys.n_fatent {
			fr = fp.obj.remove_chain(ncl, fp.clust)
		}
	}
	if fr == frOK {
		fp.obj.objsize = fp.fptr // Set file size to current read/write point.
		fp.flag |= faModified
		if fp.flag&faDirty != 0 {
			if fsys.disk_write(fp.buf, fp.sect, 1) != blkdev.ResultOK {
				fr = frDiskErr
			} else {
				fp.flag &^= faDirty
			}
		}
	}
	if fr != frOK {
		return fp.abort(fr)
	}
	return frOK
}

// f_expand allocates a contiguous area of fsz bytes to an empty file. If
// allocate is false the area is only searched for and the hint updated.
func (fp *File) f_expand(fsz int64, allocate bool) (fr FileResult) {
	fsys := fp.obj.fs
	if fp.err != frOK {
		return fp.err
	}
	if fsz <= 0 || fp.obj.objsize != 0 || fp.flag&faWrite == 0 {
		return frDenied
	} else if fsys.fstype != fstypeExFAT && fsz > math.MaxUint32 {
		return frDenied // Check if in size limit.
	}
	n := int64(fsys.bytesPerCluster())
	tcl := uint32((fsz + n - 1) / n) // Number of clusters required.
	stcl := fsys.last_clst
	if stcl < 2 || stcl >= fsys.n_fatent {
		stcl = 2
	}
	var scl, lclst uint32
	if fsys.fstype == fstypeExFAT {
		scl = fsys.find_bitmap(stcl, tcl) // Find a contiguous cluster block.
		if scl == 0 {
			fr = frDenied
		} else if scl == clstDiskErr {
			fr = frDiskErr
		}
		if fr == frOK {
			if allocate {
				fr = fsys.change_bitmap(scl, tcl, true)
				lclst = scl + tcl - 1
			} else {
				lclst = scl - 1
			}
		}
	} else {
		clst := stcl
		scl = stcl
		var ncl uint32
		for {
			v := fp.obj.clusterstat(clst)
			clst++
			if clst >= fsys.n_fatent {
				clst = 2
			}
			if v == 1 {
				fr = frIntErr
				break
			} else if v == clstDiskErr {
				fr = frDiskErr
				break
			}
			if v == 0 {
				ncl++
				if ncl == tcl {
					break // Found a contiguous block.
				}
			} else {
				scl, ncl = clst, 0
			}
			if clst == stcl {
				fr = frDenied // No contiguous block.
				break
			}
		}
		if fr == frOK {
			if allocate {
				// Create a cluster chain on the FAT.
				for clst, k := scl, tcl; k > 0; clst, k = clst+1, k-1 {
					next := clst + 1
					if k == 1 {
						next = 0xFFFF_FFFF
					}
					fr = fsys.put_clusterstat(clst, next)
					if fr != frOK {
						break
					}
					lclst = clst
				}
			} else {
				lclst = scl - 1
			}
		}
	}
	if fr != frOK {
		return fr
	}
	fsys.last_clst = lclst // Set suggested start cluster to start next.
	if allocate {
		fp.obj.sclust = scl
		fp.obj.objsize = fsz
		fp.obj.stat = 2 // Contiguous allocation.
		fp.flag |= faModified
		if fsys.free_clst <= fsys.n_fatent-2 {
			fsys.free_clst -= tcl
			fsys.fsi_flag |= 1
		}
	}
	return frOK
}
