// Package cleanup implements the crash-recovery and verification pass
// described in spec §4.8: reconcile pending-commit/pending-delete sidecars
// left by an interrupted mirror or offsite run, and validate a destination
// against its persisted snapshot.
package cleanup

import (
	"context"
	"strings"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/diffengine"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/discovery"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

var log = blog.GetContextLoggerFunc("cleanup")

const (
	pendingCommitSuffix = ".__pending_commit__"
	pendingDeleteSuffix = ".__pending_delete__"
	tempMarker          = ".__temp__"
)

// Cleanup walks root, deleting every item with the pending-commit suffix or
// a .__temp__ marker in its name and restoring every item with the
// pending-delete suffix by stripping it. It is
// idempotent and safe to call against a destination with no sidecars at
// all. A missing root is a no-op; a root that is a plain file is removed.
func Cleanup(ctx context.Context, store datastore.FileStore, root string) error {
	t, err := store.ItemType(ctx, root)
	if err != nil {
		return err
	}

	if t == nil {
		return nil
	}

	if *t != datastore.ItemTypeDir {
		return store.RemoveItem(ctx, root)
	}

	var commits, deletes []string

	err = store.Walk(ctx, root, func(entry datastore.WalkEntry) error {
		for _, name := range entry.Dirs {
			collect(entry.Root+"/"+name, &commits, &deletes)
		}

		for _, name := range entry.Files {
			collect(entry.Root+"/"+name, &commits, &deletes)
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range commits {
		if err := store.RemoveItem(ctx, p); err != nil {
			return err
		}
	}

	for _, p := range deletes {
		final := strings.TrimSuffix(p, pendingDeleteSuffix)
		if err := store.Rename(ctx, p, final); err != nil {
			return err
		}
	}

	log(ctx).Info().Int("discarded_commits", len(commits)).Int("restored_deletes", len(deletes)).Str("root", root).Msg("cleanup complete")

	return nil
}

func collect(p string, commits, deletes *[]string) {
	switch {
	case strings.HasSuffix(p, pendingCommitSuffix):
		*commits = append(*commits, p)
	case strings.HasSuffix(p, pendingDeleteSuffix):
		*deletes = append(*deletes, p)
	case strings.Contains(p[strings.LastIndex(p, "/")+1:], tempMarker):
		*commits = append(*commits, p)
	}
}

// Mode selects how thoroughly Validate recomputes the destination's
// snapshot.
type Mode int

const (
	// Standard skips hashing and compares sizes only.
	Standard Mode = iota
	// Complete hashes every file.
	Complete
)

// Report is the result of a Validate run.
type Report struct {
	// Added and Removed are errors: the destination has drifted from what
	// the persisted snapshot says it should contain.
	Added   []diffengine.Result
	Removed []diffengine.Result

	// Modified is reported as warnings with expected/actual sizes (and, in
	// Complete mode, hashes).
	Modified []diffengine.Result
}

// Clean reports whether the destination exactly matches its persisted
// snapshot.
func (r Report) Clean() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

func topLevelEntries(ctx context.Context, store datastore.FileStore, root string) ([]string, error) {
	var entries []string

	err := store.Walk(ctx, root, func(entry datastore.WalkEntry) error {
		if entry.Root != root {
			return nil
		}

		for _, name := range entry.Dirs {
			entries = append(entries, root+"/"+name)
		}

		for _, name := range entry.Files {
			entries = append(entries, root+"/"+name)
		}

		return nil
	})

	return entries, err
}

func basename(p string) string {
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}

	return p
}

// Validate loads the snapshot persisted at snapshotPath, runs Cleanup
// against contentRoot, recomputes a snapshot from contentRoot (hashing only
// in Complete mode), and diffs the two, per spec §4.8.
func Validate(ctx context.Context, store datastore.FileStore, snapshotPath, contentRoot string, mode Mode) (Report, error) {
	persisted, err := snapshot.LoadPersisted(ctx, store, snapshotPath)
	if err != nil {
		return Report{}, err
	}

	if err := Cleanup(ctx, store, contentRoot); err != nil {
		return Report{}, err
	}

	// The content tree's top-level entries are already named with their
	// destination names (that is what mirror persisted them as), so they
	// are rediscovered as individual inputs named after themselves rather
	// than nested under contentRoot.
	roots, err := topLevelEntries(ctx, store, contentRoot)
	if err != nil {
		return Report{}, err
	}

	actual, _, err := discovery.Discover(ctx, store, roots, basename, discovery.Options{
		HashLess: mode == Standard,
	})
	if err != nil {
		return Report{}, err
	}

	diffs := diffengine.Diff(actual, persisted, mode == Complete)

	var report Report

	for _, d := range diffs {
		switch d.Operation {
		case diffengine.Add:
			report.Added = append(report.Added, d)
		case diffengine.Remove:
			report.Removed = append(report.Removed, d)
		case diffengine.Modify:
			report.Modified = append(report.Modified, d)
		}
	}

	return report, nil
}
