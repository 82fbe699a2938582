package offsite

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/archiver"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/diffengine"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/hashutil"
)

// Substitution replaces every occurrence of From with To in each restored
// path's posix form, per spec §4.7 step 5.
type Substitution struct {
	From string
	To   string
}

// RestoreOptions configures a Restore run.
type RestoreOptions struct {
	DryRun        bool
	Overwrite     bool
	Substitutions []Substitution

	// Archiver must match the one used to produce any compressed delta in
	// the replay set; nil if none were ever compressed.
	Archiver archiver.Archiver
}

// RestoreResult reports the plan (always populated) and, outside dry-run,
// how many operations were applied.
type RestoreResult struct {
	Plan    []string
	Applied int
}

type restoreOp struct {
	kind   string // "file", "dir", "remove"
	target string
	hash   string
}

type poolLocation struct {
	store datastore.FileStore
	path  string
}

var poolEntryRE = regexp.MustCompile(`^[0-9a-f]{2}/[0-9a-f]{2}/[0-9a-f]+$`)

// Restore implements spec §4.7's restore algorithm: load the backup
// directory listing, verify and stage every primary+delta directory, replay
// their indexes in order, and apply (or, in dry-run mode, report) the
// resulting operations against restoreStore at restoreBase.
func Restore(
	ctx context.Context,
	srcStore datastore.FileStore, srcBase, backupName string,
	workStore datastore.FileStore, workBase string,
	restoreStore datastore.FileStore, restoreBase string,
	opts RestoreOptions,
) (*RestoreResult, error) {
	replaySet, err := listReplaySet(ctx, srcStore, srcBase+"/"+backupName)
	if err != nil {
		return nil, err
	}

	var allDiffs []diffengine.Result

	pool := map[string]poolLocation{}

	for _, info := range replaySet {
		activeStore, localDir, err := stageDir(ctx, srcStore, srcBase+"/"+backupName+"/"+info.name, workStore, workBase+"/"+backupName+"/"+info.name, opts.Archiver)
		if err != nil {
			return nil, err
		}

		diffs, err := loadAndVerifyIndex(ctx, activeStore, localDir)
		if err != nil {
			return nil, err
		}

		allDiffs = append(allDiffs, diffs...)

		if err := collectPoolFiles(ctx, activeStore, localDir, pool); err != nil {
			return nil, err
		}
	}

	ops, err := replay(allDiffs, pool, opts.Substitutions)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{Plan: planLines(ops)}

	if opts.DryRun {
		return result, nil
	}

	if err := applyOps(ctx, restoreStore, restoreBase, pool, ops, opts.Overwrite); err != nil {
		return nil, err
	}

	result.Applied = len(ops)

	return result, nil
}

// listReplaySet lists base's children, requiring exactly one primary
// directory, and returns it followed by every delta in chronological order.
func listReplaySet(ctx context.Context, store datastore.FileStore, base string) ([]dirInfo, error) {
	names, err := topLevelNames(ctx, store, base)
	if err != nil {
		return nil, err
	}

	var primary *dirInfo

	var deltas []dirInfo

	for _, name := range names {
		info, ok := parseDirName(name)
		if !ok {
			return nil, backuperrors.NewIntegrityError("unrecognized offsite directory name " + name + " at " + base)
		}

		if info.isDelta {
			deltas = append(deltas, info)
			continue
		}

		if primary != nil {
			return nil, backuperrors.NewIntegrityError("multiple primary directories found for offsite backup at " + base)
		}

		p := info
		primary = &p
	}

	if primary == nil {
		return nil, backuperrors.NewIntegrityError("no primary directory found for offsite backup at " + base)
	}

	sort.Slice(deltas, func(i, j int) bool { return deltas[i].when.Before(deltas[j].when) })

	return append([]dirInfo{*primary}, deltas...), nil
}

// stageDir makes dir's content available on a local, randomly-addressable
// store: in place if srcStore is already local, otherwise streamed into
// workStore first. It then extracts any archive found in the directory.
func stageDir(ctx context.Context, srcStore datastore.FileStore, srcDir string, workStore datastore.FileStore, workDir string, arch archiver.Archiver) (datastore.FileStore, string, error) {
	activeStore := srcStore
	localDir := srcDir

	if !srcStore.IsLocalFilesystem() {
		if err := fetchDir(ctx, srcStore, srcDir, workStore, workDir); err != nil {
			return nil, "", err
		}

		activeStore = workStore
		localDir = workDir
	}

	names, err := topLevelNames(ctx, activeStore, localDir)
	if err != nil {
		return nil, "", err
	}

	var archived bool

	for _, name := range names {
		if strings.HasPrefix(name, "data.7z") {
			archived = true
			break
		}
	}

	if !archived {
		return activeStore, localDir, nil
	}

	if arch == nil {
		return nil, "", backuperrors.NewIntegrityError(localDir + " is compressed but no archiver was supplied for restore")
	}

	if err := arch.Verify(ctx, localDir, archiveBaseName); err != nil {
		return nil, "", backuperrors.WrapIntegrityError(err, "verifying archive at "+localDir)
	}

	if err := arch.Extract(ctx, localDir, archiveBaseName, localDir); err != nil {
		return nil, "", err
	}

	for _, name := range names {
		if strings.HasPrefix(name, "data.7z") {
			if err := activeStore.RemoveItem(ctx, localDir+"/"+name); err != nil {
				return nil, "", err
			}
		}
	}

	return activeStore, localDir, nil
}

// fetchDir recursively streams every file under srcDir (on srcStore) into
// the same relative layout under dstDir (on dstStore).
func fetchDir(ctx context.Context, srcStore datastore.FileStore, srcDir string, dstStore datastore.FileStore, dstDir string) error {
	if err := dstStore.MakeDirs(ctx, dstDir); err != nil {
		return err
	}

	return srcStore.Walk(ctx, srcDir, func(entry datastore.WalkEntry) error {
		rel := strings.Trim(strings.TrimPrefix(entry.Root, srcDir), "/")

		destSub := dstDir
		if rel != "" {
			destSub = dstDir + "/" + rel
		}

		if err := dstStore.MakeDirs(ctx, destSub); err != nil {
			return err
		}

		for _, name := range entry.Files {
			if err := streamFile(ctx, srcStore, dstStore, entry.Root+"/"+name, destSub+"/"+name); err != nil {
				return err
			}
		}

		return nil
	})
}

func loadAndVerifyIndex(ctx context.Context, store datastore.FileStore, dir string) ([]diffengine.Result, error) {
	idxData, err := readFile(ctx, store, dir+"/"+indexFilename)
	if err != nil {
		return nil, err
	}

	hashData, err := readFile(ctx, store, dir+"/"+indexHashFilename)
	if err != nil {
		return nil, err
	}

	if indexHash(idxData) != string(hashData) {
		return nil, backuperrors.NewIntegrityError(dir + "/" + indexFilename + " fails its recorded hash")
	}

	return unmarshalIndex(idxData)
}

func readFile(ctx context.Context, store datastore.FileStore, path string) ([]byte, error) {
	r, err := store.Open(ctx, path, datastore.OpenRead)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}

		if err != nil {
			break
		}
	}

	return buf, nil
}

// collectPoolFiles records every content-addressed pool file found under
// dir (relative path matching xx/yy/hash) into pool, SHA-512-verifying each
// against its own filename, per spec §4.7 restore step 2.
func collectPoolFiles(ctx context.Context, store datastore.FileStore, dir string, pool map[string]poolLocation) error {
	return store.Walk(ctx, dir, func(entry datastore.WalkEntry) error {
		rel := strings.Trim(strings.TrimPrefix(entry.Root, dir), "/")

		for _, name := range entry.Files {
			candidate := name
			if rel != "" {
				candidate = rel + "/" + name
			}

			if !poolEntryRE.MatchString(candidate) {
				continue
			}

			hash := name

			full := entry.Root + "/" + name

			actual, err := hashutil.CalculateHash(ctx, store, full, nil)
			if err != nil {
				return err
			}

			if actual != hash {
				return backuperrors.NewIntegrityError("pool file " + full + " does not match its hash-derived name")
			}

			pool[hash] = poolLocation{store: store, path: full}
		}

		return nil
	})
}

// replay turns the concatenated, directory-ordered diffs into a flat
// operation list, applying path substitutions and checking that every
// modify's prior hash is already known, per spec §4.7 restore step 4.
func replay(diffs []diffengine.Result, pool map[string]poolLocation, subs []Substitution) ([]restoreOp, error) {
	known := map[string]bool{}

	var ops []restoreOp

	for _, d := range diffs {
		target := substitute(d.Path, subs)

		switch d.Operation {
		case diffengine.Add:
			if hash, ok := d.ThisHash.(string); ok {
				if _, found := pool[hash]; !found {
					return nil, backuperrors.NewIntegrityError("index references hash " + hash + " missing from the content pool")
				}

				known[hash] = true
				ops = append(ops, restoreOp{kind: "file", target: target, hash: hash})
			} else {
				ops = append(ops, restoreOp{kind: "dir", target: target})
			}

		case diffengine.Modify:
			otherHash, _ := d.OtherHash.(string)
			if otherHash != "" && !known[otherHash] {
				return nil, backuperrors.NewIntegrityError("modify of " + d.Path + " references a prior hash not yet seen in replay")
			}

			hash, ok := d.ThisHash.(string)
			if !ok {
				continue // directory-to-directory modify: nothing to stage
			}

			if _, found := pool[hash]; !found {
				return nil, backuperrors.NewIntegrityError("index references hash " + hash + " missing from the content pool")
			}

			known[hash] = true
			ops = append(ops, restoreOp{kind: "file", target: target, hash: hash})

		case diffengine.Remove:
			ops = append(ops, restoreOp{kind: "remove", target: target})
		}
	}

	return ops, nil
}

func substitute(path string, subs []Substitution) string {
	for _, s := range subs {
		path = strings.ReplaceAll(path, s.From, s.To)
	}

	return path
}

func planLines(ops []restoreOp) []string {
	lines := make([]string, len(ops))

	for i, op := range ops {
		switch op.kind {
		case "file":
			lines[i] = "restore " + op.target + " from " + op.hash
		case "dir":
			lines[i] = "create directory " + op.target
		default:
			lines[i] = "remove " + op.target
		}
	}

	return lines
}

// applyOps first checks for pre-existing targets when overwrite is false,
// then streams every file op to a pending-commit path, creates every dir op
// directly, renames the staged files into place, and applies removes last,
// per spec §4.7 restore step 6. A target written by several ops (a file
// modified in a later delta) is staged once, with the last op's content.
func applyOps(ctx context.Context, store datastore.FileStore, restoreBase string, pool map[string]poolLocation, ops []restoreOp, overwrite bool) error {
	if !overwrite {
		for _, op := range ops {
			if op.kind == "remove" {
				continue
			}

			target := restoreBase + "/" + op.target

			t, err := store.ItemType(ctx, target)
			if err != nil {
				return err
			}

			if t != nil {
				return backuperrors.NewUsageError("restore target already exists: " + target)
			}
		}
	}

	type pendingWrite struct {
		pendingPath, finalPath string
	}

	var writes []pendingWrite

	staged := map[string]bool{}

	var dirs []string

	var removes []string

	for _, op := range ops {
		target := restoreBase + "/" + op.target

		switch op.kind {
		case "file":
			loc := pool[op.hash]
			pendingPath := target + pendingCommitSuffix

			if err := streamFile(ctx, loc.store, store, loc.path, pendingPath); err != nil {
				return err
			}

			if !staged[target] {
				staged[target] = true
				writes = append(writes, pendingWrite{pendingPath, target})
			}

		case "dir":
			dirs = append(dirs, target)

		case "remove":
			removes = append(removes, target)
		}
	}

	for _, d := range dirs {
		if err := store.MakeDirs(ctx, d); err != nil {
			return err
		}
	}

	for _, w := range writes {
		if err := store.Rename(ctx, w.pendingPath, w.finalPath); err != nil {
			return err
		}
	}

	sort.Strings(removes)

	for _, r := range removes {
		if err := store.RemoveItem(ctx, r); err != nil {
			return err
		}
	}

	return nil
}
