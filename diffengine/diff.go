// Package diffengine implements the pairwise snapshot tree comparison
// described in spec §4.5: a recursive walk producing add/modify/remove
// records, with directory-level collapsing when every change under a
// subtree shares one operation. Grounded on the original Snapshot.py
// CreateDiffs this engine was ported from.
package diffengine

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

// Operation is one of the three kinds of change a diff can describe.
type Operation int

const (
	Add Operation = iota
	Modify
	Remove
)

func (o Operation) String() string {
	switch o {
	case Add:
		return "add"
	case Modify:
		return "modify"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Result is one add/modify/remove record. It is immutable once constructed;
// New enforces the consistency invariants from spec §3.
type Result struct {
	Operation     Operation
	Path          string
	ThisHash      interface{} // string | snapshot.DirHashPlaceholder | nil
	ThisFileSize  *int64
	OtherHash     interface{}
	OtherFileSize *int64
}

// New validates and constructs a Result, panicking on an inconsistent
// combination of fields since every caller is this package's own diff walk
// and such a combination is a programming error, not a runtime condition.
func New(op Operation, path string, thisHash interface{}, thisSize *int64, otherHash interface{}, otherSize *int64) Result {
	r := Result{Operation: op, Path: path, ThisHash: thisHash, ThisFileSize: thisSize, OtherHash: otherHash, OtherFileSize: otherSize}

	if err := r.validate(); err != nil {
		panic(errors.Wrap(err, "diffengine: invalid DiffResult"))
	}

	return r
}

func (r Result) validate() error {
	if hashSideInvalid(r.ThisHash, r.ThisFileSize) {
		return errors.New("this_hash/this_file_size mismatch")
	}

	if hashSideInvalid(r.OtherHash, r.OtherFileSize) {
		return errors.New("other_hash/other_file_size mismatch")
	}

	switch r.Operation {
	case Add:
		if r.ThisHash == nil || r.OtherHash != nil {
			return errors.New("add requires this_hash set and other_hash nil")
		}
	case Remove:
		if r.ThisHash != nil || r.OtherHash == nil {
			return errors.New("remove requires this_hash nil and other_hash set")
		}
	case Modify:
		if r.ThisHash == nil || r.OtherHash == nil {
			return errors.New("modify requires both hashes set")
		}

		_, thisIsStr := r.ThisHash.(string)
		_, otherIsStr := r.OtherHash.(string)

		if thisIsStr != otherIsStr {
			return errors.New("modify forbids mixing a placeholder with a string hash")
		}

		// Equal hash strings are unremarkable in hash-less mode (every file
		// carries the same literal hash, §4.4): the two sides were found
		// unequal by size, not by hash, so there is nothing to enforce here.
	default:
		return errors.Errorf("unknown operation %v", r.Operation)
	}

	return nil
}

// hashSideInvalid reports whether hash/size are inconsistent: a hash is a
// placeholder iff size is nil on the same side.
func hashSideInvalid(hash interface{}, size *int64) bool {
	if hash == nil {
		return size != nil
	}

	_, isPlaceholder := hash.(snapshot.DirHashPlaceholder)

	return isPlaceholder == (size != nil)
}

// FileComparator decides whether two file nodes are equal for diff
// purposes: hash equality (compare_hashes=true) or size equality otherwise.
type FileComparator func(this, other *snapshot.Node) bool

// CompareHashes is a FileComparator comparing the file hash strings.
func CompareHashes(this, other *snapshot.Node) bool {
	return this.HashValue.(string) == other.HashValue.(string) //nolint:forcetypeassert
}

// CompareSizes is a FileComparator comparing the file sizes.
func CompareSizes(this, other *snapshot.Node) bool {
	return *this.FileSize == *other.FileSize
}

// Diff compares two whole snapshots and returns the flat list of changes
// needed to turn other into this, sorted by path for deterministic output
// (the offsite index in spec §6 requires a path-ordered list).
func Diff(this, other *snapshot.Snapshot, compareHashes bool) []Result {
	cmp := CompareSizes
	if compareHashes {
		cmp = CompareHashes
	}

	diffs, _ := CreateDiffs(this.Root, other.Root, cmp)

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })

	return diffs
}

// CreateDiffs recursively compares this against other, returning the
// emitted Results and a summary Operation: the shared kind when every
// emitted change at this subtree has one kind, Modify when the kinds are
// mixed, and nil if the subtree is unchanged.
func CreateDiffs(this, other *snapshot.Node, cmp FileComparator) ([]Result, *Operation) {
	if other == nil {
		diffs := addAll(this)
		op := Add

		return diffs, &op
	}

	if this.IsFile() || other.IsFile() {
		if this.IsFile() && other.IsFile() {
			if cmp(this, other) {
				return nil, nil
			}

			return []Result{New(Modify, this.FullPath(), this.HashValue, this.FileSize, other.HashValue, other.FileSize)}, opPtr(Modify)
		}

		// The type changed between the two snapshots: remove the old item
		// in its entirety, then add the new one.
		diffs := []Result{New(Remove, other.FullPath(), nil, nil, other.HashValue, other.FileSize)}
		diffs = append(diffs, addAll(this)...)

		return diffs, opPtr(Modify)
	}

	// Both are directories.
	var diffs []Result

	var atomic *Operation

	updateAtomic := func(result *Operation) {
		switch {
		case atomic == nil:
			atomic = result
		case result == nil:
			atomic = opPtr(Modify)
		case *result != *atomic:
			atomic = opPtr(Modify)
		}
	}

	for name, otherChild := range other.Children {
		if _, ok := this.Children[name]; ok {
			continue
		}

		diffs = append(diffs, New(Remove, otherChild.FullPath(), nil, nil, otherChild.HashValue, otherChild.FileSize))
		updateAtomic(opPtr(Remove))
	}

	for _, name := range sortedChildNames(this) {
		thisChild := this.Children[name]

		childDiffs, childResult := CreateDiffs(thisChild, other.Children[name], cmp)
		diffs = append(diffs, childDiffs...)
		updateAtomic(childResult)
	}

	if atomic != nil && *atomic == Remove {
		thisPlaceholder := this.Placeholder()
		otherPlaceholder := other.Placeholder()

		if thisPlaceholder.ExplicitlyAdded || otherPlaceholder.ExplicitlyAdded || this.IsRoot() {
			// Keep the per-child removes; the directory itself survives (the
			// synthetic root is never collapsed into a remove of itself).
			atomic = opPtr(Modify)
		} else {
			diffs = []Result{New(Remove, other.FullPath(), nil, nil, other.HashValue, other.FileSize)}
		}
	}

	return diffs, atomic
}

// addAll emits a single add for n if it is a leaf (file, or an explicitly-
// added empty directory), otherwise an add for every descendant leaf.
func addAll(n *snapshot.Node) []Result {
	if n.IsFile() {
		return []Result{New(Add, n.FullPath(), n.HashValue, n.FileSize, nil, nil)}
	}

	if len(n.Children) == 0 {
		return []Result{New(Add, n.FullPath(), n.HashValue, n.FileSize, nil, nil)}
	}

	var diffs []Result

	for _, name := range sortedChildNames(n) {
		diffs = append(diffs, addAll(n.Children[name])...)
	}

	return diffs
}

func sortedChildNames(n *snapshot.Node) []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func opPtr(o Operation) *Operation { return &o }
