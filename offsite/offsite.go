// Package offsite implements the offsite workflow from spec §4.7: each run
// produces a self-contained, content-addressed delta directory (a primary
// on first run or force, a ".delta" thereafter) suitable for transfer to
// untrusted storage, with optional archiver-driven compression/encryption,
// and restorable by replaying deltas forward from the primary (see
// restore.go). Grounded on mirror's two-phase apply idiom, generalized from
// "replace the destination tree" to "append an immutable delta".
package offsite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/archiver"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/diffengine"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/discovery"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/parallelwork"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

var log = blog.GetContextLoggerFunc("offsite")

const (
	pendingCommitSuffix = ".__pending_commit__"
	archiveBaseName     = "data.7z"
)

// Target names where a Backup/Restore/Commit call reads and writes.
type Target struct {
	// BackupName identifies this offsite backup; state and working
	// directories are namespaced by it.
	BackupName string

	// StateStore/StateDir hold the per-backup snapshot files
	// (OffsiteBackup.<name>.json / .__pending__.json), per spec §4.7.
	StateStore datastore.FileStore
	StateDir   string

	// WorkStore/WorkBase is local scratch space used to assemble each
	// run's working directory before transfer (and, for a local-only run
	// with no Dest, is where the working directory is left for later
	// out-of-band transfer or Commit). WorkStore must be backed by a real
	// filesystem if Archiver is set, since archivers (aside from NoOp)
	// invoke external tools or tar/gzip against real OS paths.
	WorkStore datastore.FileStore
	WorkBase  string

	// Dest/DestBase is the optional transfer destination. A nil Dest
	// means the working directory is preserved for out-of-band transfer;
	// the run's snapshot is persisted as pending until Commit is called.
	Dest     datastore.FileStore
	DestBase string
}

// Options configures a Backup run.
type Options struct {
	Force                 bool
	CompareHashes         bool
	HashLess              bool
	Include               func(path string) bool
	Exclude               func(path string) bool
	Progress              func(bytesSoFar int64)
	IgnorePendingSnapshot bool

	// Archiver, when set, compresses/encrypts the working directory's
	// content-addressed pool and index into volumes after assembly.
	Archiver         archiver.Archiver
	VolumeSize       int64
	CompressionLevel int
	Password         string
}

// Result summarizes a completed offsite Backup run.
type Result struct {
	Diffs      []diffengine.Result
	DirName    string
	WorkingDir string
	Committed  bool
}

func statePath(stateDir, backupName string) string {
	return stateDir + "/OffsiteBackup." + backupName + ".json"
}

func pendingStatePath(stateDir, backupName string) string {
	return stateDir + "/OffsiteBackup." + backupName + ".__pending__.json"
}

func backupDirBase(workBase, backupName string) string {
	return workBase + "/" + backupName
}

// Backup implements spec §4.7's backup algorithm.
func Backup(ctx context.Context, localStore datastore.FileStore, inputs []string, target Target, opts Options) (*Result, error) {
	if err := localStore.ValidateBackupInputs(ctx, inputs); err != nil {
		return nil, err
	}

	pendingExists, err := snapshot.IsPersisted(ctx, target.StateStore, pendingStatePath(target.StateDir, target.BackupName))
	if err != nil {
		return nil, err
	}

	if pendingExists && !opts.IgnorePendingSnapshot {
		return nil, backuperrors.NewUsageError("a pending offsite snapshot exists for " + target.BackupName + "; commit or discard it first")
	}

	priorPersisted, err := snapshot.IsPersisted(ctx, target.StateStore, statePath(target.StateDir, target.BackupName))
	if err != nil {
		return nil, err
	}

	var offsiteSnap *snapshot.Snapshot

	if opts.Force || !priorPersisted {
		offsiteSnap = snapshot.New()
	} else {
		offsiteSnap, err = snapshot.LoadPersisted(ctx, target.StateStore, statePath(target.StateDir, target.BackupName))
		if err != nil {
			return nil, err
		}
	}

	localSnap, sourcePaths, err := discovery.Discover(ctx, localStore, inputs, target.WorkStore.SnapshotFilenameToDestinationName, discovery.Options{
		Include:  opts.Include,
		Exclude:  opts.Exclude,
		HashLess: opts.HashLess,
		Progress: opts.Progress,
	})
	if err != nil {
		return nil, err
	}

	diffs := diffengine.Diff(localSnap, offsiteSnap, opts.CompareHashes)
	if len(diffs) == 0 {
		return &Result{}, nil
	}

	isPrimary := opts.Force || !priorPersisted
	dirName := newDirName(time.Now(), !isPrimary)
	workDir := backupDirBase(target.WorkBase, target.BackupName) + "/" + dirName

	if err := target.WorkStore.MakeDirs(ctx, workDir); err != nil {
		return nil, err
	}

	known := offsiteHashSet(offsiteSnap)

	if err := assembleContent(ctx, localStore, target.WorkStore, workDir, diffs, known, sourcePaths); err != nil {
		return nil, err
	}

	indexData, err := marshalIndex(diffs)
	if err != nil {
		return nil, err
	}

	if err := writeFile(ctx, target.WorkStore, workDir+"/"+indexFilename, indexData); err != nil {
		return nil, err
	}

	if err := writeFile(ctx, target.WorkStore, workDir+"/"+indexHashFilename, []byte(indexHash(indexData))); err != nil {
		return nil, err
	}

	if opts.Archiver != nil {
		if err := archiveWorkDir(ctx, target.WorkStore, workDir, opts); err != nil {
			return nil, err
		}
	}

	result := &Result{Diffs: diffs, DirName: dirName, WorkingDir: workDir}

	if target.Dest == nil {
		if err := localSnap.Persist(ctx, target.StateStore, pendingStatePath(target.StateDir, target.BackupName)); err != nil {
			return nil, err
		}

		log(ctx).Info().Str("backup", target.BackupName).Str("dir", dirName).Msg("offsite run staged, awaiting transfer/commit")

		return result, nil
	}

	if err := transfer(ctx, target.WorkStore, workDir, target.Dest, target.DestBase+"/"+target.BackupName+"/"+dirName); err != nil {
		return nil, err
	}

	if err := localSnap.Persist(ctx, target.StateStore, statePath(target.StateDir, target.BackupName)); err != nil {
		return nil, err
	}

	result.Committed = true

	log(ctx).Info().Str("backup", target.BackupName).Str("dir", dirName).Msg("offsite run transferred and committed")

	return result, nil
}

// Commit renames a pending snapshot to standard, for the out-of-band
// transfer path described in spec §4.7 step 10.
func Commit(ctx context.Context, target Target) error {
	pending := pendingStatePath(target.StateDir, target.BackupName)

	persisted, err := snapshot.IsPersisted(ctx, target.StateStore, pending)
	if err != nil {
		return err
	}

	if !persisted {
		return backuperrors.NewUsageError("no pending offsite snapshot for " + target.BackupName)
	}

	return target.StateStore.Rename(ctx, pending, statePath(target.StateDir, target.BackupName))
}

// offsiteHashSet collects every file hash present in snap, per spec §4.7
// step 5.
func offsiteHashSet(snap *snapshot.Snapshot) map[string]bool {
	set := map[string]bool{}

	for _, n := range snap.Root.Enum() {
		if n.IsFile() {
			set[n.HashValue.(string)] = true //nolint:forcetypeassert
		}
	}

	return set
}

// assembleContent streams every add/modify file whose hash is not already
// known into the working directory's content-addressed pool, per spec §4.7
// step 6, deduping repeated content within this run. sourcePaths maps a
// diff's snapshot path to the absolute path it was actually discovered at,
// since d.Path is destination-mapped and may not be a valid path on
// localStore (see discovery.Discover).
func assembleContent(ctx context.Context, localStore, workStore datastore.FileStore, workDir string, diffs []diffengine.Result, known map[string]bool, sourcePaths map[string]string) error {
	var candidates int

	for _, d := range diffs {
		if d.Operation != diffengine.Add && d.Operation != diffengine.Modify {
			continue
		}

		if _, ok := d.ThisHash.(string); ok {
			candidates++
		}
	}

	// Log once, after the last candidate is considered (streamed or already
	// deduped), rather than once per file.
	onLastCandidate := parallelwork.OnNthCompletion(candidates, func() error {
		log(ctx).Info().Int("candidates", candidates).Msg("content assembled into pool")
		return nil
	})

	for _, d := range diffs {
		if d.Operation != diffengine.Add && d.Operation != diffengine.Modify {
			continue
		}

		hash, ok := d.ThisHash.(string)
		if !ok {
			continue // directory placeholder, nothing to stream
		}

		if known[hash] {
			onLastCandidate() //nolint:errcheck // callback only logs, never errors
			continue
		}

		srcPath, ok := sourcePaths[d.Path]
		if !ok {
			return backuperrors.WrapIoError(errors.Errorf("no source path recorded for %s", d.Path), "staging content for "+d.Path)
		}

		if err := streamFile(ctx, localStore, workStore, srcPath, poolPath(workDir, hash)); err != nil {
			return backuperrors.WrapIoError(err, "staging content for "+d.Path)
		}

		known[hash] = true

		onLastCandidate() //nolint:errcheck // callback only logs, never errors
	}

	return nil
}

func writeFile(ctx context.Context, store datastore.FileStore, path string, data []byte) error {
	w, err := store.Open(ctx, path, datastore.OpenWrite)
	if err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		w.Close() //nolint:errcheck
		return backuperrors.WrapIoError(err, "writing "+path)
	}

	return w.Close()
}

// archiveWorkDir replaces workDir's pool files and index with a volumed
// archive, per spec §4.7 step 8, then deletes the originals.
func archiveWorkDir(ctx context.Context, store datastore.FileStore, workDir string, opts Options) error {
	staging := workDir + pendingCommitSuffix + ".archive"

	original, err := topLevelNames(ctx, store, workDir)
	if err != nil {
		return err
	}

	spec := archiver.Spec{
		ArchiveName:      archiveBaseName,
		SourceDir:        workDir,
		DestDir:          staging,
		VolumeSize:       opts.VolumeSize,
		CompressionLevel: opts.CompressionLevel,
		Password:         opts.Password,
	}

	if err := opts.Archiver.Create(ctx, spec); err != nil {
		return err
	}

	if err := opts.Archiver.Verify(ctx, staging, archiveBaseName); err != nil {
		return err
	}

	produced, err := topLevelNames(ctx, store, staging)
	if err != nil {
		return err
	}

	for _, name := range produced {
		if err := store.Rename(ctx, staging+"/"+name, workDir+"/"+name); err != nil {
			return err
		}
	}

	if err := store.RemoveDir(ctx, staging); err != nil {
		log(ctx).Debug().Err(err).Str("dir", staging).Msg("removing empty archiver staging directory")
	}

	for _, name := range original {
		if err := store.RemoveItem(ctx, workDir+"/"+name); err != nil {
			return err
		}
	}

	return nil
}

// topLevelNames lists the immediate children (files and directories) of
// root, grounded on cleanup.topLevelEntries.
func topLevelNames(ctx context.Context, store datastore.FileStore, root string) ([]string, error) {
	var names []string

	err := store.Walk(ctx, root, func(entry datastore.WalkEntry) error {
		if entry.Root != root {
			return nil
		}

		names = append(names, entry.Dirs...)
		names = append(names, entry.Files...)

		return nil
	})

	return names, err
}

// transfer moves workDir's content to destStore at destDir: a one-shot
// recursive Upload for a BulkStore, or a per-file pending-commit two-phase
// push for a plain FileStore, per spec §4.7 step 9.
func transfer(ctx context.Context, workStore datastore.FileStore, workDir string, destStore datastore.FileStore, destDir string) error {
	if bulk, ok := destStore.(datastore.BulkStore); ok {
		return bulk.Upload(ctx, workDir)
	}

	files, err := listFiles(ctx, workStore, workDir)
	if err != nil {
		return err
	}

	pending := make([]string, 0, len(files))

	for _, f := range files {
		rel := f[len(workDir)+1:]
		dest := destDir + "/" + rel
		pendingDest := dest + pendingCommitSuffix

		if err := destStore.MakeDirs(ctx, parentOf(pendingDest)); err != nil {
			return err
		}

		if err := streamFile(ctx, workStore, destStore, f, pendingDest); err != nil {
			return err
		}

		pending = append(pending, pendingDest)
	}

	for _, p := range pending {
		final := p[:len(p)-len(pendingCommitSuffix)]
		if err := destStore.Rename(ctx, p, final); err != nil {
			return err
		}
	}

	return nil
}

func listFiles(ctx context.Context, store datastore.FileStore, root string) ([]string, error) {
	var files []string

	err := store.Walk(ctx, root, func(entry datastore.WalkEntry) error {
		for _, name := range entry.Files {
			files = append(files, entry.Root+"/"+name)
		}

		return nil
	})

	return files, err
}

func parentOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}

	return path
}
