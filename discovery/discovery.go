// Package discovery implements the concurrent traversal-and-hashing
// pipeline described in spec §4.4: validate inputs, walk each one recording
// files and empty directories, then hash (or size-only) every file,
// assembling the results into a single snapshot.Snapshot. Parallelism is
// driven by parallelwork.Queue at a width determined by the store's
// ExecuteInParallel capability.
package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/hashutil"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/parallelwork"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

var log = blog.GetContextLoggerFunc("discovery")

// HashLessSizeLiteral is recorded in the hash slot of a file in hash-less
// mode, per spec §4.4 step 3.
const HashLessSizeLiteral = "ignored"

// Options configures a Discover run.
type Options struct {
	// Include, if set, is consulted for every discovered file; a false
	// result excludes the file. Exclude, if set, is consulted first and
	// takes precedence over Include.
	Include func(path string) bool
	Exclude func(path string) bool

	// HashLess, when true, skips hashing: files are recorded with their
	// size and the literal hash HashLessSizeLiteral.
	HashLess bool

	// Progress is invoked after each chunk of a file is hashed with the
	// cumulative number of bytes hashed so far across the whole run. It is
	// not invoked in HashLess mode.
	Progress func(bytesSoFar int64)
}

func (o Options) included(path string) bool {
	if o.Exclude != nil && o.Exclude(path) {
		return false
	}

	if o.Include != nil {
		return o.Include(path)
	}

	return true
}

type discoveredFile struct {
	absPath string
	relPath string
}

// Discover validates inputs, walks each one through store, hashes (or
// sizes) every included file, and assembles a single snapshot.Snapshot
// rooted at the synthetic root with each input added under the destination
// name produced by destNamer (typically
// datastore.FileStore.SnapshotFilenameToDestinationName of the destination
// store, per spec §4.6's Content/ layout).
//
// The returned SourcePaths map carries, for every discovered file, its
// snapshot path (matching diffengine.Result.Path) back to the absolute path
// it was actually read from on store — destNamer's mapping is not
// necessarily invertible (on POSIX it only strips a leading slash), so
// callers that later need to re-read a file's bytes from store must look up
// its real path here rather than reusing the snapshot path directly.
func Discover(ctx context.Context, store datastore.FileStore, inputs []string, destNamer func(string) string, opts Options) (*snapshot.Snapshot, map[string]string, error) {
	if err := validateInputs(ctx, store, inputs); err != nil {
		return nil, nil, err
	}

	snap := snapshot.New()
	sourcePaths := map[string]string{}

	for _, input := range inputs {
		destName := destNamer(input)

		t, err := store.ItemType(ctx, input)
		if err != nil {
			return nil, nil, err
		}

		if t == nil {
			return nil, nil, backuperrors.NewUsageError("backup input does not exist: " + input)
		}

		if *t == datastore.ItemTypeFile {
			if err := hashOneFile(ctx, store, input, destName, snap, sourcePaths, opts); err != nil {
				return nil, nil, err
			}

			continue
		}

		if err := discoverDir(ctx, store, input, destName, snap, sourcePaths, opts); err != nil {
			return nil, nil, err
		}
	}

	return snap, sourcePaths, nil
}

// validateInputs requires every input to exist, then sorts by path-part
// count and rejects any input that is a descendant of a preceding one.
func validateInputs(ctx context.Context, store datastore.FileStore, inputs []string) error {
	sorted := append([]string(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool {
		return len(strings.Split(sorted[i], "/")) < len(strings.Split(sorted[j], "/"))
	})

	for i, input := range sorted {
		t, err := store.ItemType(ctx, input)
		if err != nil {
			return err
		}

		if t == nil {
			return backuperrors.NewUsageError("backup input does not exist: " + input)
		}

		for _, prior := range sorted[:i] {
			if isDescendant(input, prior) {
				return backuperrors.NewUsageError(input + " is nested under backup input " + prior)
			}
		}
	}

	return nil
}

func isDescendant(path, of string) bool {
	if path == of {
		return false
	}

	return strings.HasPrefix(path, strings.TrimSuffix(of, "/")+"/")
}

func discoverDir(ctx context.Context, store datastore.FileStore, root, destName string, snap *snapshot.Snapshot, sourcePaths map[string]string, opts Options) error {
	snap.Root.AddDir(destName, true)

	var files []discoveredFile

	walkErr := store.Walk(ctx, root, func(entry datastore.WalkEntry) error {
		if len(entry.Dirs) == 0 && len(entry.Files) == 0 {
			rel := relPath(root, entry.Root)
			if rel != "" {
				snap.Root.AddDir(destName+"/"+rel, false)
			}

			return nil
		}

		for _, name := range entry.Files {
			abs := entry.Root + "/" + name
			rel := relPath(root, abs)

			if !opts.included(abs) {
				continue
			}

			t, err := store.ItemType(ctx, abs)
			if err != nil {
				return err
			}

			if t == nil {
				// Disappeared between listing and classification; drop silently.
				continue
			}

			if *t == datastore.ItemTypeSymLink {
				log(ctx).Info().Str("path", abs).Msg("skipping symlink")
				continue
			}

			if *t != datastore.ItemTypeFile {
				log(ctx).Info().Str("path", abs).Msg("skipping non-regular item")
				continue
			}

			files = append(files, discoveredFile{absPath: abs, relPath: destName + "/" + rel})
		}

		return nil
	})
	if walkErr != nil {
		return walkErr
	}

	return hashFiles(ctx, store, files, snap, sourcePaths, opts)
}

func relPath(root, path string) string {
	rel := strings.TrimPrefix(path, root)
	return strings.Trim(rel, "/")
}

func hashOneFile(ctx context.Context, store datastore.FileStore, abs, destName string, snap *snapshot.Snapshot, sourcePaths map[string]string, opts Options) error {
	return hashFiles(ctx, store, []discoveredFile{{absPath: abs, relPath: destName}}, snap, sourcePaths, opts)
}

type hashResult struct {
	path    string
	absPath string
	hash    string
	size    int64
	ok      bool
}

// hashFiles hashes (or sizes) every file concurrently, at a width driven by
// store.ExecuteInParallel, and adds each surviving result to snap, recording
// its absolute source path in sourcePaths.
func hashFiles(ctx context.Context, store datastore.FileStore, files []discoveredFile, snap *snapshot.Snapshot, sourcePaths map[string]string, opts Options) error {
	width := 1
	if store.ExecuteInParallel() {
		width = len(files)
		if width == 0 {
			width = 1
		}
	}

	var (
		mu      sync.Mutex
		total   int64
		results = make([]hashResult, len(files))
	)

	queue := parallelwork.NewQueue()

	for i, f := range files {
		i, f := i, f

		queue.EnqueueBack(ctx, func() error {
			t, err := store.ItemType(ctx, f.absPath)
			if err != nil {
				return err
			}

			if t == nil {
				// Disappeared between discovery and hashing; drop silently.
				return nil
			}

			var (
				hash string
				size int64
			)

			if opts.HashLess {
				size, err = store.FileSize(ctx, f.absPath)
				if err != nil {
					return err
				}

				hash = HashLessSizeLiteral
			} else {
				size, err = store.FileSize(ctx, f.absPath)
				if err != nil {
					return err
				}

				// n is cumulative for this file; add only the bytes since the
				// previous call.
				var last int64

				hash, err = hashutil.CalculateHash(ctx, store, f.absPath, func(n int64) {
					mu.Lock()
					total += n - last
					last = n
					cur := total
					mu.Unlock()

					if opts.Progress != nil {
						opts.Progress(cur)
					}
				})
				if err != nil {
					return err
				}
			}

			results[i] = hashResult{f.relPath, f.absPath, hash, size, true}

			return nil
		})
	}

	if err := queue.Process(ctx, width); err != nil {
		return backuperrors.WrapIoError(err, "hashing backup inputs")
	}

	for _, r := range results {
		if r.ok {
			snap.Root.AddFile(r.path, r.hash, r.size, false)
			sourcePaths[r.path] = r.absPath
		}
	}

	return nil
}
