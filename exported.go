package fat

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"time"
)

// Mode represents the file access mode used in Open.
type Mode uint8

// File access modes for calling Open.
const (
	ModeRead  Mode = Mode(faRead)
	ModeWrite Mode = Mode(faWrite)
	ModeRW    Mode = ModeRead | ModeWrite

	ModeCreateNew    Mode = Mode(faCreateNew)
	ModeCreateAlways Mode = Mode(faCreateAlways)
	ModeOpenExisting Mode = Mode(faOpenExisting)
	ModeOpenAlways   Mode = Mode(faOpenAlways)
	ModeOpenAppend   Mode = Mode(faOpenAppend)

	allowedModes = ModeRead | ModeWrite | ModeCreateNew | ModeCreateAlways | ModeOpenExisting | ModeOpenAlways | ModeOpenAppend
)

var (
	errInvalidMode   = errors.New("invalid fat access mode")
	errForbiddenMode = errors.New("forbidden fat access mode")
)

// FileInfo describes a file or directory entry. *FileInfo implements [fs.FileInfo].
type FileInfo struct {
	fsize   int64
	fdate   uint16
	ftime   uint16
	fattrib byte
	altname [sfnBufSize*3 + 1]byte
	fname   [fnameBufSize]byte
}

var _ fs.FileInfo = (*FileInfo)(nil)

// Dir represents an open FAT directory.
type Dir struct {
	dir
	inlineInfo FileInfo
}

// Mount mounts the FAT file system on the given block device and sector size.
// It immediately invalidates previously open files and directories pointing to the same FS.
// Mode should be ModeRead, ModeWrite, or both. A blockSize of 0 queries the device.
func (fsys *FS) Mount(bd BlockDevice, blockSize int, mode Mode) error {
	if mode&^(ModeRead|ModeWrite) != 0 {
		return errInvalidMode
	} else if blockSize > math.MaxUint16 || blockSize < 0 {
		return errors.New("sector size out of range")
	}
	fr := fsys.mount_volume(bd, uint16(blockSize), uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// Unmount flushes pending changes and detaches the volume. Open files and
// directories become invalid.
func (fsys *FS) Unmount() error {
	fr := fsys.f_unmount()
	if fr != frOK {
		return fr
	}
	return nil
}

// Type returns the FAT sub-type of the mounted volume, or FormatAuto when unmounted.
func (fsys *FS) Type() Format {
	switch fsys.fstype {
	case fstypeFAT12:
		return FormatFAT12
	case fstypeFAT16:
		return FormatFAT16
	case fstypeFAT32:
		return FormatFAT32
	case fstypeExFAT:
		return FormatExFAT
	}
	return FormatAuto
}

// ClusterSize returns the size of a cluster in bytes.
func (fsys *FS) ClusterSize() int { return int(fsys.bytesPerCluster()) }

// SectorSize returns the sector size of the mounted volume in bytes.
func (fsys *FS) SectorSize() int { return int(fsys.ssize) }

// Clusters returns the number of data clusters on the volume.
func (fsys *FS) Clusters() int64 {
	if fsys.fstype == fstypeUnknown {
		return 0
	}
	return int64(fsys.n_fatent - 2)
}

// writable returns a non-nil error if mutating the volume is not allowed.
func (fsys *FS) writable() error {
	if fsys.fstype == fstypeUnknown {
		return frNotEnabled
	} else if fsys.perm&ModeWrite == 0 {
		return errForbiddenMode
	}
	return nil
}

// OpenFile opens the named file for reading or writing, depending on the mode.
// Paths are resolved from the volume root and both '/' and '\' separate elements.
func (fsys *FS) OpenFile(fp *File, path string, mode Mode) error {
	prohibited := (mode & ModeRW) &^ fsys.perm
	if mode&(ModeCreateNew|ModeCreateAlways|ModeOpenAlways) != 0 {
		prohibited |= ModeWrite &^ fsys.perm // Creating modifies the volume.
	}
	if mode&^allowedModes != 0 {
		return errInvalidMode
	} else if prohibited != 0 {
		return errForbiddenMode
	}
	fr := fsys.f_open(fp, path, uint8(mode))
	if fr != frOK {
		return fr
	}
	return nil
}

// Stat fills fi with the directory entry of the named object.
func (fsys *FS) Stat(path string, fi *FileInfo) error {
	fr := fsys.f_stat(path, fi)
	if fr != frOK {
		return fr
	}
	return nil
}

// Mkdir creates a new directory.
func (fsys *FS) Mkdir(path string) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_mkdir(path)
	if fr != frOK {
		return fr
	}
	return nil
}

// Remove removes a file or an empty directory. Removing a directory
// that still holds entries or an open object fails.
func (fsys *FS) Remove(path string) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_unlink(path)
	if fr != frOK {
		return fr
	}
	return nil
}

// Rename renames or moves an object. The destination must not exist.
func (fsys *FS) Rename(oldpath, newpath string) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_rename(oldpath, newpath)
	if fr != frOK {
		return fr
	}
	return nil
}

// Chmod sets the attribute bits of an object selected by mask. Only the
// read-only, hidden, system and archive bits can be changed.
func (fsys *FS) Chmod(path string, attr, mask Attr) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_chmod(path, byte(attr), byte(mask))
	if fr != frOK {
		return fr
	}
	return nil
}

// Chtimes sets the modification time of an object. FAT timestamps have a
// two second resolution and cover years 1980 to 2107.
func (fsys *FS) Chtimes(path string, mtime time.Time) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_utime(path, newDatetime(mtime))
	if fr != frOK {
		return fr
	}
	return nil
}

// Label returns the volume label and the volume serial number.
func (fsys *FS) Label() (label string, serial uint32, err error) {
	label, serial, fr := fsys.f_getlabel()
	if fr != frOK {
		return "", 0, fr
	}
	return label, serial, nil
}

// SetLabel sets the volume label. An empty label removes it. FAT labels are
// stored upper case in the OEM code page, up to 11 characters.
func (fsys *FS) SetLabel(label string) error {
	if err := fsys.writable(); err != nil {
		return err
	}
	fr := fsys.f_setlabel(label)
	if fr != frOK {
		return fr
	}
	return nil
}

// Free returns the number of free clusters on the volume.
func (fsys *FS) Free() (int64, error) {
	if fsys.fstype == fstypeUnknown {
		return 0, frNotEnabled
	}
	n, fr := fsys.getFree()
	if fr != frOK {
		return 0, fr
	}
	return int64(n), nil
}

// FreeBytes returns the free space on the volume in bytes.
func (fsys *FS) FreeBytes() (int64, error) {
	n, err := fsys.Free()
	return n * int64(fsys.bytesPerCluster()), err
}

// Read reads up to len(buf) bytes from the File. It implements the [io.Reader] interface.
func (fp *File) Read(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	br, fr := fp.f_read(buf)
	if fr != frOK {
		return br, fr
	} else if br == 0 && len(buf) > 0 {
		return br, io.EOF
	}
	return br, nil
}

// Write writes len(buf) bytes to the File. It implements the [io.Writer] interface.
// When the volume is full the write stops short and the returned error
// matches [fs.ErrPermission].
func (fp *File) Write(buf []byte) (int, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return 0, fr
	}
	bw, fr := fp.f_write(buf)
	if fr != frOK {
		return bw, fr
	} else if bw < len(buf) {
		return bw, frDenied
	}
	return bw, nil
}

// Seek sets the offset for the next Read or Write. It implements [io.Seeker].
// Seeking past the end of a file opened for writing extends it. Files open
// read-only clip the offset to the file size.
func (fp *File) Seek(offset int64, whence int) (int64, error) {
	fr := fp.obj.validate()
	if fr != frOK {
		return fp.fptr, fr
	}
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += fp.fptr
	case io.SeekEnd:
		offset += fp.obj.objsize
	default:
		return fp.fptr, frInvalidParameter
	}
	if offset < 0 {
		return fp.fptr, frInvalidParameter
	}
	fr = fp.f_lseek(offset)
	if fr != frOK {
		return fp.fptr, fr
	}
	return fp.fptr, nil
}

// Close closes the file and syncs any unwritten data to the underlying device.
func (fp *File) Close() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = fp.f_close()
	if fr != frOK {
		return fr
	}
	return nil
}

// Sync commits the current contents of the file to the filesystem immediately.
func (fp *File) Sync() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = fp.f_sync()
	if fr != frOK {
		return fr
	}
	return nil
}

// Truncate truncates the file at the current file pointer.
func (fp *File) Truncate() error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = fp.f_truncate()
	if fr != frOK {
		return fr
	}
	return nil
}

// Expand allocates a contiguous data area of size bytes to an empty file.
// If allocate is false the area is only located and reserved as the next
// allocation hint. The file pointer is not moved.
func (fp *File) Expand(size int64, allocate bool) error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = fp.f_expand(size, allocate)
	if fr != frOK {
		return fr
	}
	return nil
}

// BuildLinkMap attaches a cluster link map to the file so seeks, reads and
// writes do not follow the FAT. tbl[0] receives the number of elements the
// map needs. If tbl is too short an error is returned and tbl[0] holds the
// required length. A nil tbl detaches the map.
// The file must not grow while the map is attached.
func (fp *File) BuildLinkMap(tbl []uint32) error {
	fr := fp.obj.validate()
	if fr != frOK {
		return fr
	}
	if tbl == nil {
		fp.cltbl = nil
		return nil
	}
	fr = fp.create_linkmap(tbl)
	if fr != frOK {
		return fr
	}
	fp.cltbl = tbl
	return nil
}

// Size returns the size of the file in bytes.
func (fp *File) Size() int64 { return fp.obj.objsize }

// Tell returns the current file pointer.
func (fp *File) Tell() int64 { return fp.fptr }

// Mode returns the lowest 2 bits of the file's permission (read, write or both).
func (fp *File) Mode() Mode {
	return Mode(fp.flag & 3)
}

// OpenDir opens the named directory for reading. An empty path or "/" opens
// the root directory.
func (fsys *FS) OpenDir(dp *Dir, path string) error {
	dp.pat = ""
	fr := fsys.f_opendir(&dp.dir, path)
	if fr != frOK {
		return fr
	}
	return nil
}

// FindFirst opens the directory at path and finds the first entry whose long
// or short name matches pattern. '?' matches one character and '*' any run.
// At the end of the directory io.EOF is returned.
func (fsys *FS) FindFirst(dp *Dir, fi *FileInfo, path, pattern string) error {
	fr := fsys.f_findfirst(&dp.dir, fi, path, pattern)
	if fr != frOK {
		return fr
	} else if fi.fname[0] == 0 {
		return io.EOF
	}
	return nil
}

// FindNext finds the next entry matching the pattern given to FindFirst.
func (dp *Dir) FindNext(fi *FileInfo) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = dp.f_findnext(fi)
	if fr != frOK {
		return fr
	} else if fi.fname[0] == 0 {
		return io.EOF
	}
	return nil
}

// ReadDir reads the next directory entry into fi. Dot entries are skipped.
// At the end of the directory io.EOF is returned.
func (dp *Dir) ReadDir(fi *FileInfo) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = dp.f_readdir(fi)
	if fr != frOK {
		return fr
	} else if fi.fname[0] == 0 {
		return io.EOF
	}
	return nil
}

// Rewind resets the read position to the first entry of the directory.
func (dp *Dir) Rewind() error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	}
	fr = dp.sdi(0)
	if fr != frOK {
		return fr
	}
	return nil
}

// Close releases the directory. Further use of dp fails.
func (dp *Dir) Close() error {
	fr := dp.f_closedir()
	if fr != frOK {
		return fr
	}
	return nil
}

// ForEachFile calls the callback function for each file in the directory.
func (dp *Dir) ForEachFile(callback func(*FileInfo) error) error {
	fr := dp.obj.validate()
	if fr != frOK {
		return fr
	} else if dp.obj.fs.perm&ModeRead == 0 {
		return errForbiddenMode
	}

	fr = dp.sdi(0) // Rewind directory.
	if fr != frOK {
		return fr
	}
	for {
		fr := dp.f_readdir(&dp.inlineInfo)
		if fr != frOK {
			return fr
		} else if dp.inlineInfo.fname[0] == 0 {
			return nil // End of directory.
		}
		err := callback(&dp.inlineInfo)
		if err != nil {
			return err
		}
	}
}

// AlternateName returns the short 8.3 name of the file, empty when the
// name itself is a valid short name.
func (finfo *FileInfo) AlternateName() string {
	return str(finfo.altname[:])
}

// Name returns the name of the file.
func (finfo *FileInfo) Name() string {
	return str(finfo.fname[:])
}

// Size returns the size of the file in bytes.
func (finfo *FileInfo) Size() int64 {
	return finfo.fsize
}

// Attr returns the FAT attribute bits of the entry.
func (finfo *FileInfo) Attr() Attr { return Attr(finfo.fattrib) }

// Mode derives permission bits from the read-only attribute.
func (finfo *FileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(0o666)
	if finfo.fattrib&amRDO != 0 {
		mode = 0o444
	}
	if finfo.fattrib&amDIR != 0 {
		mode |= fs.ModeDir | 0o111
	}
	return mode
}

// ModTime returns the modification time of the file.
func (finfo *FileInfo) ModTime() time.Time {
	return datetime{date: finfo.fdate, time: finfo.ftime}.Time()
}

// IsDir returns true if the file is a directory.
func (finfo *FileInfo) IsDir() bool {
	return finfo.fattrib&amDIR != 0
}

// Sys returns the FAT attributes.
func (finfo *FileInfo) Sys() any { return finfo.Attr() }
