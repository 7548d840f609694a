package fat

import (
	"bytes"
	"io"
	"strconv"
	"testing"
)

// FuzzFS interprets its input as a program of 4 byte instructions run
// against a fresh volume while a shadow copy of every file is kept in memory.
// Reads are checked against the shadow and after the program ends the volume
// is remounted and every file compared in full.
//
//	byte 0: opcode (mod fuzzNumOps)
//	byte 1: target file slot
//	byte 2-3: little endian argument (size or offset)
func FuzzFS(f *testing.F) {
	const (
		opCreate = iota
		opWrite
		opRead
		opSeek
		opTruncate
		opSync
		opClose
		opReopen
		opRemove
		fuzzNumOps

		volumeSize = 4096 * 512
		dataBudget = volumeSize / 4
	)
	ins := func(op, who byte, arg uint16) []byte { return []byte{op, who, byte(arg), byte(arg >> 8)} }
	prog := func(instrs ...[]byte) []byte { return bytes.Join(instrs, nil) }
	f.Add(prog(
		ins(opCreate, 0, 0), ins(opWrite, 0, 1000), ins(opSeek, 0, 10), ins(opRead, 0, 64),
		ins(opClose, 0, 0), ins(opReopen, 0, 0), ins(opRead, 0, 2000),
	))
	f.Add(prog(
		ins(opCreate, 1, 0), ins(opCreate, 9, 0), ins(opWrite, 1, 5000), ins(opWrite, 9, 700),
		ins(opSeek, 1, 4000), ins(opTruncate, 1, 0), ins(opSync, 1, 0), ins(opClose, 9, 0),
		ins(opRemove, 9, 0), ins(opCreate, 9, 0), ins(opWrite, 9, 513),
	))
	f.Add(prog(ins(opCreate, 3, 0), ins(opWrite, 3, 0x1fff), ins(opSeek, 3, 0), ins(opWrite, 3, 16), ins(opRead, 3, 100)))

	type shadow struct {
		name string
		fp   File
		open bool
		data []byte
		ptr  int64
	}
	source := patternData(1<<13, 1)
	buf := make([]byte, 1<<13)
	logger := testLogger()

	f.Fuzz(func(t *testing.T, program []byte) {
		fsys, dev := initTestFATWithLogger(volumeSize, logger)
		if err := fsys.Mkdir("/rootdir"); err != nil {
			t.Fatal(err)
		}
		// Slots 0-7 live in the root, 8-15 in /rootdir.
		var slots [16]*shadow
		used := 0
		for ; len(program) >= 4; program = program[4:] {
			op := program[0] % fuzzNumOps
			who := program[1] % byte(len(slots))
			arg := int(program[2]) | int(program[3])<<8
			s := slots[who]
			switch {
			case op == opCreate:
				if s != nil && s.open {
					break
				}
				if s == nil {
					name := "/file" + strconv.Itoa(int(who)) + ".bin"
					if who >= 8 {
						name = "/rootdir" + name
					}
					s = &shadow{name: name}
					slots[who] = s
				}
				if err := fsys.OpenFile(&s.fp, s.name, ModeRW|ModeCreateAlways); err != nil {
					t.Fatalf("create %s: %v", s.name, err)
				}
				used -= len(s.data)
				s.open, s.data, s.ptr = true, nil, 0

			case s == nil:
				// Every other operation needs an existing file.

			case op == opReopen:
				if s.open {
					break
				}
				if err := fsys.OpenFile(&s.fp, s.name, ModeRW|ModeOpenExisting); err != nil {
					t.Fatalf("reopen %s: %v", s.name, err)
				}
				s.open, s.ptr = true, 0

			case op == opRemove:
				if s.open {
					break
				}
				if err := fsys.Remove(s.name); err != nil {
					t.Fatalf("remove %s: %v", s.name, err)
				}
				used -= len(s.data)
				slots[who] = nil

			case !s.open:

			case op == opWrite:
				n := arg & 0x1fff
				end := s.ptr + int64(n)
				if grow := int(end) - len(s.data); grow > 0 {
					if used+grow > dataBudget {
						break
					}
					used += grow
					s.data = append(s.data, make([]byte, grow)...)
				}
				got, err := s.fp.Write(source[:n])
				if err != nil || got != n {
					t.Fatalf("write %s: n=%d err=%v", s.name, got, err)
				}
				copy(s.data[s.ptr:], source[:n])
				s.ptr = end

			case op == opRead:
				n := arg & 0x1fff
				if n == 0 {
					break
				}
				want := s.data[s.ptr:min(s.ptr+int64(n), int64(len(s.data)))]
				got, err := s.fp.Read(buf[:n])
				if len(want) == 0 {
					if got != 0 || err != io.EOF {
						t.Fatalf("read at EOF of %s: n=%d err=%v", s.name, got, err)
					}
					break
				}
				if err != nil || !bytes.Equal(buf[:got], want) {
					t.Fatalf("read %s at %d: n=%d want %d err=%v", s.name, s.ptr, got, len(want), err)
				}
				s.ptr += int64(got)

			case op == opSeek:
				off := int64(arg) % int64(len(s.data)+1)
				pos, err := s.fp.Seek(off, io.SeekStart)
				if err != nil || pos != off {
					t.Fatalf("seek %s to %d: pos=%d err=%v", s.name, off, pos, err)
				}
				s.ptr = off

			case op == opTruncate:
				if err := s.fp.Truncate(); err != nil {
					t.Fatalf("truncate %s: %v", s.name, err)
				}
				used -= len(s.data) - int(s.ptr)
				s.data = s.data[:s.ptr]

			case op == opSync:
				if err := s.fp.Sync(); err != nil {
					t.Fatalf("sync %s: %v", s.name, err)
				}

			case op == opClose:
				if err := s.fp.Close(); err != nil {
					t.Fatalf("close %s: %v", s.name, err)
				}
				s.open = false
			}
		}
		for _, s := range slots {
			if s != nil && s.open {
				if err := s.fp.Close(); err != nil {
					t.Fatalf("close %s: %v", s.name, err)
				}
			}
		}
		if err := fsys.Unmount(); err != nil {
			t.Fatal(err)
		}
		fsys = mountTest(t, dev, Config{})
		for _, s := range slots {
			if s == nil {
				continue
			}
			if got := readFile(t, fsys, s.name); !bytes.Equal(got, s.data) {
				t.Fatalf("%s after remount: got %d bytes, want %d", s.name, len(got), len(s.data))
			}
		}
	})
}
