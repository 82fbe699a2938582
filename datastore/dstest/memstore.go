// Package dstest provides an in-memory datastore.FileStore test double,
// grounded on the teacher's fs/inmemory_fs_for_test.go in-memory filesystem
// fixture, so snapshot/diff/mirror/offsite tests can exercise the fixture in
// spec §8a without touching the real filesystem.
package dstest

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
)

// Store is an in-memory datastore.FileStore. Construct it with New; the zero
// value has no backing maps and panics on its first write.
type Store struct {
	mu           sync.Mutex
	files        map[string][]byte
	dirs         map[string]bool
	parallel     bool
	workingDir   string
	bytesAvail   *uint64
	isLocalDisk  bool
}

var _ datastore.FileStore = (*Store)(nil)

// New creates an empty in-memory store. parallel controls
// ExecuteInParallel(); isLocal controls IsLocalFilesystem().
func New(parallel, isLocal bool) *Store {
	return &Store{
		files:       map[string][]byte{},
		dirs:        map[string]bool{"": true},
		parallel:    parallel,
		isLocalDisk: isLocal,
	}
}

func clean(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}

	return p
}

func (s *Store) ExecuteInParallel() bool { return s.parallel }
func (s *Store) IsLocalFilesystem() bool { return s.isLocalDisk }
func (s *Store) WorkingDir() string      { return s.workingDir }
func (s *Store) SetWorkingDir(d string)  { s.workingDir = d }

func (s *Store) SetBytesAvailable(n uint64) { s.bytesAvail = &n }

func (s *Store) ValidateBackupInputs(_ context.Context, paths []string) error {
	seen := map[string]bool{}

	for _, p := range paths {
		c := clean(p)
		if seen[c] {
			return backuperrors.NewUsageError("duplicate backup input " + p)
		}

		seen[c] = true
	}

	return nil
}

func (s *Store) SnapshotFilenameToDestinationName(p string) string {
	return strings.TrimPrefix(p, "/")
}

func (s *Store) BytesAvailable(_ context.Context) (*uint64, error) {
	return s.bytesAvail, nil
}

func (s *Store) ItemType(_ context.Context, p string) (*datastore.ItemType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clean(p)

	if _, ok := s.files[c]; ok {
		t := datastore.ItemTypeFile
		return &t, nil
	}

	if s.dirs[c] {
		t := datastore.ItemTypeDir
		return &t, nil
	}

	return nil, nil //nolint:nilnil
}

func (s *Store) FileSize(_ context.Context, p string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[clean(p)]
	if !ok {
		return 0, backuperrors.WrapIoError(nil, "no such file "+p)
	}

	return int64(len(data)), nil
}

func (s *Store) RemoveDir(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clean(p)
	prefix := c + "/"

	for f := range s.files {
		if f == c || strings.HasPrefix(f, prefix) {
			delete(s.files, f)
		}
	}

	for d := range s.dirs {
		if d == c || strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
		}
	}

	return nil
}

func (s *Store) RemoveFile(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.files, clean(p))

	return nil
}

func (s *Store) RemoveItem(ctx context.Context, p string) error {
	t, err := s.ItemType(ctx, p)
	if err != nil || t == nil {
		return err
	}

	if *t == datastore.ItemTypeDir {
		return s.RemoveDir(ctx, p)
	}

	return s.RemoveFile(ctx, p)
}

func (s *Store) MakeDirs(_ context.Context, p string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := clean(p)
	for c != "" {
		s.dirs[c] = true
		c = clean(path.Dir(c))
	}

	s.dirs[""] = true

	return nil
}

type memWriter struct {
	store *Store
	path  string
	buf   bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	w.store.files[clean(w.path)] = append([]byte(nil), w.buf.Bytes()...)

	for d := clean(path.Dir(w.path)); d != ""; d = clean(path.Dir(d)) {
		w.store.dirs[d] = true
	}

	w.store.dirs[""] = true

	return nil
}

type memReader struct{ io.Reader }

func (memReader) Write([]byte) (int, error) { panic("dstest: write on a read-only stream") }
func (memReader) Close() error              { return nil }

func (s *Store) Open(_ context.Context, p string, mode datastore.OpenMode) (datastore.Stream, error) {
	if mode == datastore.OpenWrite {
		return &memWriter{store: s, path: p}, nil
	}

	s.mu.Lock()
	data, ok := s.files[clean(p)]
	s.mu.Unlock()

	if !ok {
		return nil, backuperrors.WrapIoError(nil, "no such file "+p)
	}

	return memReader{bytes.NewReader(data)}, nil
}

func (s *Store) Rename(_ context.Context, oldpath, newpath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oc, nc := clean(oldpath), clean(newpath)

	if data, ok := s.files[oc]; ok {
		delete(s.files, oc)
		s.files[nc] = data

		for d := clean(path.Dir(nc)); d != ""; d = clean(path.Dir(d)) {
			s.dirs[d] = true
		}

		return nil
	}

	if s.dirs[oc] {
		prefix := oc + "/"

		for f, data := range s.files {
			if strings.HasPrefix(f, prefix) {
				delete(s.files, f)
				s.files[nc+"/"+strings.TrimPrefix(f, prefix)] = data
			}
		}

		for d := range s.dirs {
			if d == oc || strings.HasPrefix(d, prefix) {
				delete(s.dirs, d)

				if d == oc {
					s.dirs[nc] = true
				} else {
					s.dirs[nc+"/"+strings.TrimPrefix(d, prefix)] = true
				}
			}
		}

		s.dirs[nc] = true

		return nil
	}

	return backuperrors.WrapIoError(nil, "rename: no such item "+oldpath)
}

// Walk performs a top-down traversal of every directory at or under root,
// reporting each directory's immediate file and subdirectory children.
func (s *Store) Walk(_ context.Context, root string, fn datastore.WalkFunc) error {
	s.mu.Lock()

	c := clean(root)

	// allDirs is every directory reachable under c: explicit dirs, plus
	// every ancestor directory implied by a file or dir path.
	allDirs := map[string]bool{c: true}

	addAncestors := func(leaf string) {
		for d := clean(path.Dir(leaf)); ; d = clean(path.Dir(d)) {
			allDirs[d] = true

			if d == c || d == "" {
				break
			}
		}
	}

	isUnder := func(p string) bool {
		return p == c || c == "" || strings.HasPrefix(p, c+"/")
	}

	for f := range s.files {
		if isUnder(f) {
			addAncestors(f)
		}
	}

	for d := range s.dirs {
		if d != "" && isUnder(d) {
			allDirs[d] = true
			addAncestors(d)
		}
	}

	childDirs := map[string][]string{}
	childFiles := map[string][]string{}

	for d := range allDirs {
		if d != c {
			parent := clean(path.Dir(d))
			childDirs[parent] = append(childDirs[parent], path.Base(d))
		}
	}

	for f := range s.files {
		if !isUnder(f) {
			continue
		}

		parent := clean(path.Dir(f))
		childFiles[parent] = append(childFiles[parent], path.Base(f))
	}

	dirList := make([]string, 0, len(allDirs))
	for d := range allDirs {
		dirList = append(dirList, d)
	}

	sort.Strings(dirList)

	s.mu.Unlock()

	// Callers (discovery in particular) build child paths as
	// entry.Root+"/"+name and compare the result against the literal root
	// argument's prefix form, the same way localfs.Store.Walk's entry.Root
	// is always exactly the path filepath.WalkDir visited. Reconstruct that
	// same prefix form here instead of handing back the internally-cleaned
	// path, which may have had root's leading slash stripped.
	rootPrefix := strings.TrimSuffix(root, "/")
	if rootPrefix == "" {
		rootPrefix = root
	}

	for _, d := range dirList {
		dirs := append([]string(nil), childDirs[d]...)
		files := append([]string(nil), childFiles[d]...)
		sort.Strings(dirs)
		sort.Strings(files)

		entryRoot := rootPrefix
		if d != c {
			suffix := d
			if c != "" {
				suffix = strings.TrimPrefix(d, c+"/")
			}

			entryRoot = rootPrefix + "/" + suffix
		}

		if err := fn(datastore.WalkEntry{Root: entryRoot, Dirs: dirs, Files: files}); err != nil {
			return err
		}
	}

	return nil
}
