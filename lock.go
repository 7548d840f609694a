package fat

// fileLock identifies an open object by the directory holding it and the
// offset of its entry in that directory.
type fileLock struct {
	used bool
	clu  uint32 // Containing directory start cluster (0: root).
	ofs  uint32 // Object entry offset in the containing directory.
	ctr  uint16 // Open count. 0x100 means opened for writing.
}

const lockWriter = 0x100

// Lock access kinds.
const (
	lockRead = iota
	lockWrite
	lockRemove // Delete or rename.
)

// lockTable implements file sharing rules: many readers or a single writer per object.
// A table of size zero disables sharing control.
type lockTable struct {
	files []fileLock
}

func (lt *lockTable) init(n int) {
	if n < 0 {
		n = 0
	}
	if cap(lt.files) >= n {
		lt.files = lt.files[:n]
		clear(lt.files)
		return
	}
	lt.files = make([]fileLock, n)
}

func (lt *lockTable) enabled() bool { return len(lt.files) > 0 }

func (lt *lockTable) lookup(dp *dir) int {
	for i := range lt.files {
		f := &lt.files[i]
		if f.used && f.clu == dp.obj.sclust && f.ofs == dp.dptr {
			return i
		}
	}
	return -1
}

// check reports whether the object at dp can be accessed with acc.
func (lt *lockTable) check(dp *dir, acc int) FileResult {
	if !lt.enabled() {
		return frOK
	}
	i := lt.lookup(dp)
	if i < 0 {
		if !lt.hasFree() && acc != lockRemove {
			return frTooManyOpenFiles
		}
		return frOK
	}
	if acc != lockRead || lt.files[i].ctr == lockWriter {
		return frLocked
	}
	return frOK
}

func (lt *lockTable) hasFree() bool {
	for i := range lt.files {
		if !lt.files[i].used {
			return true
		}
	}
	return false
}

// inc registers an open of the object at dp. It returns the lock id (index+1),
// or 0 on failure. With the table disabled the lock id is always 0.
func (lt *lockTable) inc(dp *dir, acc int) int {
	i := lt.lookup(dp)
	if i < 0 {
		for i = 0; i < len(lt.files) && lt.files[i].used; i++ {
		}
		if i == len(lt.files) {
			return 0 // Table full.
		}
		lt.files[i] = fileLock{used: true, clu: dp.obj.sclust, ofs: dp.dptr}
	}
	f := &lt.files[i]
	if acc >= lockWrite && f.ctr != 0 {
		return 0 // Access violation.
	}
	if acc != lockRead {
		f.ctr = lockWriter
	} else {
		f.ctr++
	}
	return i + 1
}

// dec releases a lock obtained with inc.
func (lt *lockTable) dec(id int) FileResult {
	id--
	if id < 0 || id >= len(lt.files) {
		return frIntErr
	}
	f := &lt.files[id]
	n := f.ctr
	if n == lockWriter {
		n = 0
	}
	if n > 0 {
		n--
	}
	f.ctr = n
	if n == 0 {
		f.used = false
	}
	return frOK
}

// clear drops every lock, used on remount.
func (lt *lockTable) clear() {
	for i := range lt.files {
		lt.files[i].used = false
	}
}
