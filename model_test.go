package fat

import (
	"io"
	"math/rand"
	"os"
	"path"
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

// modelEntry is the observable state of a file or directory.
type modelEntry struct {
	Dir  bool
	Data string
}

// TestAgainstModel runs random operations against a FAT volume and an
// in-memory reference file system and compares the resulting trees.
func TestAgainstModel(t *testing.T) {
	for _, tc := range testVolumes {
		t.Run(tc.name, func(t *testing.T) {
			fsys, dev := initTestVolume(t, tc.format, tc.sectors)
			model := afero.NewMemMapFs()
			r := rand.New(rand.NewSource(int64(tc.sectors)))
			dirs := []string{"/"}
			var files []string
			for i := 0; i < 300; i++ {
				switch op := r.Intn(6); {
				case op == 0 && len(dirs) < 8:
					p := path.Join(dirs[r.Intn(len(dirs))], "dir "+strconv.Itoa(i))
					if err := fsys.Mkdir(p); err != nil {
						t.Fatalf("mkdir %s: %v", p, err)
					}
					if err := model.Mkdir(p, 0o777); err != nil {
						t.Fatal(err)
					}
					dirs = append(dirs, p)

				case op <= 2 || len(files) == 0:
					p := path.Join(dirs[r.Intn(len(dirs))], "file."+strconv.Itoa(i)+".dat")
					data := patternData(r.Intn(3*fsys.ClusterSize()), int64(i))
					writeFile(t, fsys, p, data)
					if err := afero.WriteFile(model, p, data, 0o666); err != nil {
						t.Fatal(err)
					}
					files = append(files, p)

				case op == 3:
					// Append to an existing file.
					p := files[r.Intn(len(files))]
					data := patternData(r.Intn(2000), int64(i))
					var fp File
					if err := fsys.OpenFile(&fp, p, ModeOpenAppend|ModeWrite); err != nil {
						t.Fatalf("append open %s: %v", p, err)
					}
					if _, err := fp.Write(data); err != nil {
						t.Fatal(err)
					}
					if err := fp.Close(); err != nil {
						t.Fatal(err)
					}
					mf, err := model.OpenFile(p, os.O_APPEND|os.O_WRONLY, 0)
					if err != nil {
						t.Fatal(err)
					}
					mf.Write(data)
					mf.Close()

				case op == 4:
					// Truncate at a random offset.
					p := files[r.Intn(len(files))]
					var fp File
					if err := fsys.OpenFile(&fp, p, ModeRW); err != nil {
						t.Fatal(err)
					}
					size := fp.Size()
					off := int64(0)
					if size > 0 {
						off = r.Int63n(size)
					}
					fp.Seek(off, io.SeekStart)
					if err := fp.Truncate(); err != nil {
						t.Fatal(err)
					}
					fp.Close()
					mf, err := model.OpenFile(p, os.O_RDWR, 0)
					if err != nil {
						t.Fatal(err)
					}
					mf.Truncate(off)
					mf.Close()

				default:
					k := r.Intn(len(files))
					p := files[k]
					files = append(files[:k], files[k+1:]...)
					if err := fsys.Remove(p); err != nil {
						t.Fatalf("remove %s: %v", p, err)
					}
					if err := model.Remove(p); err != nil {
						t.Fatal(err)
					}
				}
			}
			if err := fsys.Unmount(); err != nil {
				t.Fatal(err)
			}
			fsys = mountTest(t, dev, Config{})
			got := snapshotFAT(t, fsys, "/")
			want := snapshotModel(t, model)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("tree mismatch (-model +fat):\n%s", diff)
			}
		})
	}
}

func snapshotFAT(t *testing.T, fsys *FS, dir string) map[string]modelEntry {
	t.Helper()
	tree := make(map[string]modelEntry)
	var dp Dir
	if err := fsys.OpenDir(&dp, dir); err != nil {
		t.Fatal(err)
	}
	var subdirs []string
	err := dp.ForEachFile(func(fi *FileInfo) error {
		p := path.Join(dir, fi.Name())
		if fi.IsDir() {
			tree[p] = modelEntry{Dir: true}
			subdirs = append(subdirs, p)
		} else {
			tree[p] = modelEntry{}
		}
		return nil
	})
	dp.Close()
	if err != nil {
		t.Fatal(err)
	}
	for p, e := range tree {
		if !e.Dir {
			tree[p] = modelEntry{Data: string(readFile(t, fsys, p))}
		}
	}
	sort.Strings(subdirs)
	for _, sub := range subdirs {
		for p, e := range snapshotFAT(t, fsys, sub) {
			tree[p] = e
		}
	}
	return tree
}

func snapshotModel(t *testing.T, model afero.Fs) map[string]modelEntry {
	t.Helper()
	tree := make(map[string]modelEntry)
	err := afero.Walk(model, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil || p == "/" {
			return err
		}
		if info.IsDir() {
			tree[p] = modelEntry{Dir: true}
			return nil
		}
		data, err := afero.ReadFile(model, p)
		tree[p] = modelEntry{Data: string(data)}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return tree
}
