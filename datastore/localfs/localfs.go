// Package localfs implements datastore.FileStore over the local filesystem,
// grounded on the teacher's blob/filesystem.go fsStorage (os.MkdirAll-on-
// demand directories) generalized from sharded content blocks to whole
// files at caller-supplied paths. Open for writing truncates and writes the
// named path directly; staging through temporary names is left to callers.
package localfs

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/atomicfile"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
)

var log = blog.GetContextLoggerFunc("datastore.localfs")

// Store is a datastore.FileStore rooted at the local filesystem. Root is
// the destination path used by ValidateBackupInputs to reject overlapping
// inputs and the initial working directory; paths passed to the other
// methods are used as given and are not resolved against it.
type Store struct {
	root       string
	workingDir string
}

var _ datastore.FileStore = (*Store)(nil)

// New creates a Store rooted at root, which should be an absolute path.
func New(root string) *Store {
	return &Store{root: root, workingDir: root}
}

func (s *Store) ExecuteInParallel() bool { return true }

func (s *Store) IsLocalFilesystem() bool { return true }

func (s *Store) WorkingDir() string { return s.workingDir }

func (s *Store) SetWorkingDir(dir string) { s.workingDir = dir }

// ValidateBackupInputs rejects any path equal to, an ancestor of, or a
// descendant of s.root.
func (s *Store) ValidateBackupInputs(_ context.Context, paths []string) error {
	root := filepath.Clean(s.root)

	for _, p := range paths {
		clean := filepath.Clean(p)

		if clean == root || isAncestor(clean, root) || isAncestor(root, clean) {
			return backuperrors.NewUsageError("backup input " + p + " overlaps destination " + s.root)
		}
	}

	return nil
}

func isAncestor(candidate, of string) bool {
	rel, err := filepath.Rel(candidate, of)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SnapshotFilenameToDestinationName maps an absolute root to the
// platform-neutral destination name used under Content/: drive letters
// become "C_" on Windows, a leading separator is stripped on POSIX.
func (s *Store) SnapshotFilenameToDestinationName(path string) string {
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		return strings.ToUpper(string(path[0])) + "_"
	}

	return strings.TrimPrefix(path, "/")
}

func (s *Store) BytesAvailable(_ context.Context) (*uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(s.workingDir, &stat); err != nil {
		return nil, nil //nolint:nilnil
	}

	avail := uint64(stat.Bavail) * uint64(stat.Bsize) //nolint:unconvert

	return &avail, nil
}

func (s *Store) ItemType(_ context.Context, path string) (*datastore.ItemType, error) {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil, nil //nolint:nilnil
	}

	if err != nil {
		return nil, backuperrors.WrapIoError(err, "stat "+path)
	}

	var t datastore.ItemType

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		t = datastore.ItemTypeSymLink
	case fi.IsDir():
		t = datastore.ItemTypeDir
	default:
		t = datastore.ItemTypeFile
	}

	return &t, nil
}

func (s *Store) FileSize(_ context.Context, path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, backuperrors.WrapIoError(err, "stat "+path)
	}

	return fi.Size(), nil
}

func (s *Store) RemoveDir(_ context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return backuperrors.WrapIoError(err, "remove dir "+path)
	}

	return nil
}

func (s *Store) RemoveFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return backuperrors.WrapIoError(err, "remove file "+path)
	}

	return nil
}

func (s *Store) RemoveItem(ctx context.Context, path string) error {
	t, err := s.ItemType(ctx, path)
	if err != nil {
		return err
	}

	if t == nil {
		return nil
	}

	if *t == datastore.ItemTypeDir {
		return s.RemoveDir(ctx, path)
	}

	return s.RemoveFile(ctx, path)
}

func (s *Store) MakeDirs(_ context.Context, path string) error {
	if err := os.MkdirAll(path, 0o775); err != nil {
		return backuperrors.WrapIoError(err, "mkdir "+path)
	}

	return nil
}

func (s *Store) Open(_ context.Context, path string, mode datastore.OpenMode) (datastore.Stream, error) {
	switch mode {
	case datastore.OpenRead:
		f, err := os.Open(path)
		if err != nil {
			return nil, backuperrors.WrapIoError(err, "open "+path)
		}

		return f, nil

	case datastore.OpenWrite:
		if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
			return nil, backuperrors.WrapIoError(err, "mkdir "+filepath.Dir(path))
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o664)
		if err != nil {
			return nil, backuperrors.WrapIoError(err, "open "+path+" for write")
		}

		return f, nil

	default:
		return nil, errors.Errorf("unknown open mode %v", mode)
	}
}

func (s *Store) Rename(ctx context.Context, oldpath, newpath string) error {
	if err := os.MkdirAll(filepath.Dir(newpath), 0o775); err != nil {
		return backuperrors.WrapIoError(err, "mkdir "+filepath.Dir(newpath))
	}

	if err := atomicfile.Rename(oldpath, newpath); err != nil {
		// Some platforms (and cross-device renames) cannot replace an
		// existing destination atomically; fall back to remove-then-rename.
		log(ctx).Debug().Str("old", oldpath).Str("new", newpath).Err(err).Msg("atomic rename failed, falling back")

		if removeErr := os.RemoveAll(newpath); removeErr == nil {
			if err2 := atomicfile.Rename(oldpath, newpath); err2 == nil {
				return nil
			}
		}

		return backuperrors.WrapIoError(err, "rename "+oldpath+" to "+newpath)
	}

	return nil
}

func (s *Store) Walk(_ context.Context, root string, fn datastore.WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return backuperrors.WrapIoError(err, "walk "+path)
		}

		if !d.IsDir() {
			return nil
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return backuperrors.WrapIoError(err, "readdir "+path)
		}

		var dirs, files []string

		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, e.Name())
			} else {
				files = append(files, e.Name())
			}
		}

		return fn(datastore.WalkEntry{Root: path, Dirs: dirs, Files: files})
	})
}

// TempName generates a unique temporary sibling filename for path in the
// .__temp__<suffix> form from spec §4.6 (the same form mirror gives its
// staged files).
func TempName(path string) string {
	return path + ".__temp__" + uuid.NewString()
}
