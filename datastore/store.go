// Package datastore defines the DataStore capability interfaces used
// throughout the engine, generalizing the teacher's blob.Storage /
// storage.Storage split (whole-file operations instead of blob IDs) per
// spec §4.2: a common capability every store has, a file-based capability
// for stores that support random-access rename/walk, and a bulk capability
// for write-only remote targets that only support one-shot recursive push.
package datastore

import (
	"context"
	"io"
)

// ItemType classifies a filesystem entry.
type ItemType int

const (
	ItemTypeFile ItemType = iota
	ItemTypeDir
	ItemTypeSymLink
)

func (t ItemType) String() string {
	switch t {
	case ItemTypeFile:
		return "file"
	case ItemTypeDir:
		return "dir"
	case ItemTypeSymLink:
		return "symlink"
	default:
		return "unknown"
	}
}

// OpenMode selects the direction a Stream is opened in.
type OpenMode int

const (
	OpenRead OpenMode = iota
	OpenWrite
)

// Stream is the scoped read/write handle returned by FileStore.Open. Callers
// use only the direction matching the OpenMode they requested.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// WalkEntry is one (root, dirs, files) tuple produced while walking a tree,
// mirroring Python's os.walk semantics that the original implementation
// this engine is grounded on relies on.
type WalkEntry struct {
	Root  string
	Dirs  []string
	Files []string
}

// WalkFunc is invoked once per WalkEntry. Returning an error aborts the walk
// and is propagated to the Walk caller.
type WalkFunc func(entry WalkEntry) error

// Store is the capability common to every backend: whether the caller
// should parallelize work against it.
type Store interface {
	// ExecuteInParallel reports whether running multiple operations against
	// this store concurrently improves throughput (true for local SSD,
	// false otherwise including every remote backend).
	ExecuteInParallel() bool
}

// FileStore is the capability required by the mirror executor, the offsite
// executor's restore path, and cleanup/validate: whole-file operations over
// a hierarchical namespace.
type FileStore interface {
	Store

	// ValidateBackupInputs rejects any path that overlaps this store's
	// destination (a backup input that is the destination itself, or an
	// ancestor/descendant of it).
	ValidateBackupInputs(ctx context.Context, paths []string) error

	// SnapshotFilenameToDestinationName maps an absolute input root to a
	// platform-neutral destination directory name: "C:\" becomes "C_" on
	// drive-letter systems, a leading "/" is stripped on POSIX.
	SnapshotFilenameToDestinationName(path string) string

	// BytesAvailable returns free space at this store's root, or nil if the
	// backend cannot report it.
	BytesAvailable(ctx context.Context) (*uint64, error)

	WorkingDir() string
	SetWorkingDir(dir string)

	// ItemType returns the type of the item at path, or nil if it does not
	// exist.
	ItemType(ctx context.Context, path string) (*ItemType, error)
	FileSize(ctx context.Context, path string) (int64, error)

	RemoveDir(ctx context.Context, path string) error
	RemoveFile(ctx context.Context, path string) error
	RemoveItem(ctx context.Context, path string) error

	// MakeDirs creates path and any missing parents; it is idempotent.
	MakeDirs(ctx context.Context, path string) error

	Open(ctx context.Context, path string, mode OpenMode) (Stream, error)

	// Rename replaces newpath atomically where the backend allows it;
	// otherwise it removes newpath then renames.
	Rename(ctx context.Context, oldpath, newpath string) error

	Walk(ctx context.Context, root string, fn WalkFunc) error

	// IsLocalFilesystem reports whether this store is backed by the local
	// filesystem, which governs whether offsite restore reads a backup
	// directory in place (local) or first copies it into a work store. Restore
	// never symlinks content.
	IsLocalFilesystem() bool
}

// BulkStore is implemented by write-only remote targets that only support
// a one-shot recursive push of an entire local directory.
type BulkStore interface {
	FileStore

	Upload(ctx context.Context, localDir string) error
}
