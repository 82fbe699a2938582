// Package mirror implements the mirror workflow from spec §4.6: a two-phase
// apply of a diff changeset against a file-based destination, kept
// byte-identical to the latest local snapshot, using pending-commit /
// pending-delete sidecar files for crash safety.
package mirror

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/cleanup"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/diffengine"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/discovery"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/parallelwork"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

var log = blog.GetContextLoggerFunc("mirror")

const (
	// SnapshotFilename is the persisted destination snapshot, per spec §4.6.
	SnapshotFilename = "BackupSnapshot.json"

	// ContentDirName is the subdirectory holding the mirrored tree.
	ContentDirName = "Content"

	PendingCommitSuffix = ".__pending_commit__"
	PendingDeleteSuffix = ".__pending_delete__"
	TempSuffix          = ".__temp__"

	// CapacityThreshold is the fraction of available destination space a
	// backup may consume before it is refused, per spec §4.6 step 3.
	CapacityThreshold = 0.85
)

// Options configures a mirror Backup run.
type Options struct {
	Force         bool
	CompareHashes bool
	HashLess      bool
	Include       func(path string) bool
	Exclude       func(path string) bool
	Progress      func(bytesSoFar int64)
}

// Result summarizes a completed (or partially completed) mirror run.
type Result struct {
	Diffs  []diffengine.Result
	Errors []error
}

func snapshotPath(destBase string) string { return destBase + "/" + SnapshotFilename }
func contentPath(destBase string) string  { return destBase + "/" + ContentDirName }

// Backup mirrors inputs from localStore to destStore at destBase, per spec
// §4.6.
func Backup(ctx context.Context, localStore, destStore datastore.FileStore, destBase string, inputs []string, opts Options) (*Result, error) {
	if err := destStore.ValidateBackupInputs(ctx, inputs); err != nil {
		return nil, err
	}

	destSnap, err := loadDestSnapshot(ctx, destStore, destBase, opts.Force)
	if err != nil {
		return nil, err
	}

	localSnap, sourcePaths, err := discovery.Discover(ctx, localStore, inputs, destStore.SnapshotFilenameToDestinationName, discovery.Options{
		Include:  opts.Include,
		Exclude:  opts.Exclude,
		HashLess: opts.HashLess,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	diffs := diffengine.Diff(localSnap, destSnap, opts.CompareHashes)

	if err := precheckCapacity(ctx, destStore, diffs); err != nil {
		return nil, err
	}

	if err := cleanup.Cleanup(ctx, destStore, contentPath(destBase)); err != nil {
		return nil, err
	}

	pendingSnapshotPath := snapshotPath(destBase) + PendingCommitSuffix
	if err := localSnap.Persist(ctx, destStore, pendingSnapshotPath); err != nil {
		return nil, err
	}

	var pendingCommits, pendingDeletes []string

	deletes, err := applyDeletes(ctx, destStore, destBase, diffs)
	if err != nil {
		return nil, err
	}

	pendingDeletes = append(pendingDeletes, deletes...)

	commits, err := applyAdds(ctx, localStore, destStore, destBase, diffs, sourcePaths)
	if err != nil {
		return nil, err
	}

	pendingCommits = append(pendingCommits, commits...)

	if err := commitPhase(ctx, destStore, pendingCommits, pendingDeletes); err != nil {
		return nil, err
	}

	if err := destStore.Rename(ctx, pendingSnapshotPath, snapshotPath(destBase)); err != nil {
		return nil, err
	}

	return &Result{Diffs: diffs}, nil
}

func loadDestSnapshot(ctx context.Context, destStore datastore.FileStore, destBase string, force bool) (*snapshot.Snapshot, error) {
	if force {
		return snapshot.New(), nil
	}

	persisted, err := snapshot.IsPersisted(ctx, destStore, snapshotPath(destBase))
	if err != nil {
		return nil, err
	}

	if !persisted {
		return snapshot.New(), nil
	}

	return snapshot.LoadPersisted(ctx, destStore, snapshotPath(destBase))
}

func precheckCapacity(ctx context.Context, destStore datastore.FileStore, diffs []diffengine.Result) error {
	var required uint64

	for _, d := range diffs {
		if (d.Operation == diffengine.Add || d.Operation == diffengine.Modify) && d.ThisFileSize != nil {
			required += uint64(*d.ThisFileSize)
		}
	}

	available, err := destStore.BytesAvailable(ctx)
	if err != nil {
		return err
	}

	if available == nil {
		return nil
	}

	if float64(required) > CapacityThreshold*float64(*available) {
		return backuperrors.NewCapacityError("backup requires more space than is available at the destination")
	}

	return nil
}

func destContentPath(destBase, path string) string {
	return contentPath(destBase) + "/" + path
}

// applyDeletes renames every remove/modify target that exists at the
// destination to its pending-delete name, returning the list of pending
// paths (with suffix already applied).
func applyDeletes(ctx context.Context, destStore datastore.FileStore, destBase string, diffs []diffengine.Result) ([]string, error) {
	var pending []string

	for _, d := range diffs {
		if d.Operation != diffengine.Remove && d.Operation != diffengine.Modify {
			continue
		}

		target := destContentPath(destBase, d.Path)

		t, err := destStore.ItemType(ctx, target)
		if err != nil {
			return nil, err
		}

		if t == nil {
			continue
		}

		pendingPath := target + PendingDeleteSuffix
		if err := destStore.Rename(ctx, target, pendingPath); err != nil {
			return nil, err
		}

		pending = append(pending, pendingPath)
	}

	return pending, nil
}

// applyAdds streams every add/modify file from localStore to a
// .__temp__<uuid> name at the destination and then renames it to its
// pending-commit path (directories-to-create get a single
// pending-commit directory marker), returning the list of pending paths.
// sourcePaths maps a diff's snapshot path to the absolute path it was
// actually discovered at, since d.Path is destination-mapped and may not be
// a valid path on localStore (see discovery.Discover).
func applyAdds(ctx context.Context, localStore, destStore datastore.FileStore, destBase string, diffs []diffengine.Result, sourcePaths map[string]string) ([]string, error) {
	type job struct {
		diff diffengine.Result
	}

	var jobs []job

	for _, d := range diffs {
		if d.Operation == diffengine.Add || d.Operation == diffengine.Modify {
			jobs = append(jobs, job{d})
		}
	}

	pendingPaths := make([]string, len(jobs))

	queue := parallelwork.NewQueue()

	width := 1
	if localStore.ExecuteInParallel() {
		width = len(jobs)
		if width == 0 {
			width = 1
		}
	}

	// Log once, after the last job finishes, rather than once per file.
	onLastJob := parallelwork.OnNthCompletion(len(jobs), func() error {
		log(ctx).Info().Int("files", len(jobs)).Msg("content staged for commit")
		return nil
	})

	for i, j := range jobs {
		i, d := i, j.diff

		queue.EnqueueBack(ctx, func() error {
			defer onLastJob() //nolint:errcheck // callback only logs, never errors

			target := destContentPath(destBase, d.Path)
			pendingPath := target + PendingCommitSuffix

			if _, isDir := d.ThisHash.(snapshot.DirHashPlaceholder); isDir {
				if err := destStore.MakeDirs(ctx, pendingPath); err != nil {
					return err
				}

				pendingPaths[i] = pendingPath

				return nil
			}

			srcPath, ok := sourcePaths[d.Path]
			if !ok {
				return backuperrors.WrapIoError(errors.Errorf("no source path recorded for %s", d.Path), "copying backup content")
			}

			tempPath := target + TempSuffix + uuid.NewString()
			if err := streamFile(ctx, localStore, destStore, srcPath, tempPath); err != nil {
				return err
			}

			if err := destStore.Rename(ctx, tempPath, pendingPath); err != nil {
				return err
			}

			pendingPaths[i] = pendingPath

			return nil
		})
	}

	if err := queue.Process(ctx, width); err != nil {
		return nil, backuperrors.WrapIoError(err, "copying backup content")
	}

	return pendingPaths, nil
}

func streamFile(ctx context.Context, localStore, destStore datastore.FileStore, localPath, destPath string) error {
	r, err := localStore.Open(ctx, localPath, datastore.OpenRead)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	w, err := destStore.Open(ctx, destPath, datastore.OpenWrite)
	if err != nil {
		return err
	}

	buf := make([]byte, 256*1024)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				w.Close() //nolint:errcheck
				return backuperrors.WrapIoError(err, "writing "+destPath)
			}
		}

		if readErr != nil {
			break
		}
	}

	return w.Close()
}

// commitPhase strips the pending-commit suffix from every successfully
// written item, then removes every pending-delete item. Commits happen
// before deletes (documented choice, spec §9): the two sets are disjoint by
// construction, so either order leaves the destination in the same final
// state.
func commitPhase(ctx context.Context, destStore datastore.FileStore, pendingCommits, pendingDeletes []string) error {
	sort.Strings(pendingCommits)

	for _, p := range pendingCommits {
		final := trimSuffix(p, PendingCommitSuffix)
		if err := destStore.Rename(ctx, p, final); err != nil {
			return err
		}
	}

	sort.Strings(pendingDeletes)

	for _, p := range pendingDeletes {
		if err := destStore.RemoveItem(ctx, p); err != nil {
			return err
		}
	}

	log(ctx).Info().Int("commits", len(pendingCommits)).Int("deletes", len(pendingDeletes)).Msg("mirror commit phase complete")

	return nil
}

func trimSuffix(s, suffix string) string {
	if len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}

	return s
}
