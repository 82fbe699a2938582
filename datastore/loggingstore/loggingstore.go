// Package loggingstore wraps a datastore.FileStore and logs every file
// operation and its duration, grounded on the teacher's blob/logging.loggingStorage
// generalized from block IDs to whole-file operations.
package loggingstore

import (
	"context"
	"time"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
)

var log = blog.GetContextLoggerFunc("datastore.loggingstore")

// Store wraps a datastore.FileStore, logging the name, arguments, and
// duration of every file operation at debug level. ExecuteInParallel,
// IsLocalFilesystem, WorkingDir, SetWorkingDir and
// SnapshotFilenameToDestinationName pass through without logging.
type Store struct {
	base   datastore.FileStore
	prefix string
}

var _ datastore.FileStore = (*Store)(nil)

// Option modifies a Store's behavior.
type Option func(*Store)

// Prefix tags every log line emitted by the wrapper, useful when several
// stores are active in the same run (e.g. a mirror's source and dest).
func Prefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps base, logging every call through it.
func New(base datastore.FileStore, opts ...Option) *Store {
	s := &Store{base: base}
	for _, o := range opts {
		o(s)
	}

	return s
}

func (s *Store) ExecuteInParallel() bool { return s.base.ExecuteInParallel() }
func (s *Store) IsLocalFilesystem() bool { return s.base.IsLocalFilesystem() }
func (s *Store) WorkingDir() string      { return s.base.WorkingDir() }
func (s *Store) SetWorkingDir(dir string) { s.base.SetWorkingDir(dir) }

func (s *Store) ValidateBackupInputs(ctx context.Context, paths []string) error {
	t0 := time.Now()
	err := s.base.ValidateBackupInputs(ctx, paths)
	log(ctx).Debug().Str("op", s.prefix+"ValidateBackupInputs").Strs("paths", paths).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

func (s *Store) SnapshotFilenameToDestinationName(path string) string {
	return s.base.SnapshotFilenameToDestinationName(path)
}

func (s *Store) BytesAvailable(ctx context.Context) (*uint64, error) {
	t0 := time.Now()
	n, err := s.base.BytesAvailable(ctx)
	log(ctx).Debug().Str("op", s.prefix+"BytesAvailable").Err(err).Dur("took", time.Since(t0)).Send()

	return n, err
}

func (s *Store) ItemType(ctx context.Context, path string) (*datastore.ItemType, error) {
	t0 := time.Now()
	t, err := s.base.ItemType(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"ItemType").Str("path", path).Err(err).Dur("took", time.Since(t0)).Send()

	return t, err
}

func (s *Store) FileSize(ctx context.Context, path string) (int64, error) {
	t0 := time.Now()
	n, err := s.base.FileSize(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"FileSize").Str("path", path).Int64("size", n).Err(err).Dur("took", time.Since(t0)).Send()

	return n, err
}

func (s *Store) RemoveDir(ctx context.Context, path string) error {
	t0 := time.Now()
	err := s.base.RemoveDir(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"RemoveDir").Str("path", path).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

func (s *Store) RemoveFile(ctx context.Context, path string) error {
	t0 := time.Now()
	err := s.base.RemoveFile(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"RemoveFile").Str("path", path).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

func (s *Store) RemoveItem(ctx context.Context, path string) error {
	t0 := time.Now()
	err := s.base.RemoveItem(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"RemoveItem").Str("path", path).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

func (s *Store) MakeDirs(ctx context.Context, path string) error {
	t0 := time.Now()
	err := s.base.MakeDirs(ctx, path)
	log(ctx).Debug().Str("op", s.prefix+"MakeDirs").Str("path", path).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

// Open logs only the call itself, not individual Read/Write calls on the
// returned Stream, which are too hot a path to log per-call.
func (s *Store) Open(ctx context.Context, path string, mode datastore.OpenMode) (datastore.Stream, error) {
	t0 := time.Now()
	stream, err := s.base.Open(ctx, path, mode)
	log(ctx).Debug().Str("op", s.prefix+"Open").Str("path", path).Int("mode", int(mode)).Err(err).Dur("took", time.Since(t0)).Send()

	return stream, err
}

func (s *Store) Rename(ctx context.Context, oldpath, newpath string) error {
	t0 := time.Now()
	err := s.base.Rename(ctx, oldpath, newpath)
	log(ctx).Debug().Str("op", s.prefix+"Rename").Str("from", oldpath).Str("to", newpath).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}

func (s *Store) Walk(ctx context.Context, root string, fn datastore.WalkFunc) error {
	t0 := time.Now()
	err := s.base.Walk(ctx, root, fn)
	log(ctx).Debug().Str("op", s.prefix+"Walk").Str("root", root).Err(err).Dur("took", time.Since(t0)).Send()

	return err
}
