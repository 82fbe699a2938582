// Package snapshot implements the content-addressed tree that describes a
// set of files and directories: construction, JSON persistence, and
// enumeration (diffing two Snapshots lives in package diffengine). It is
// grounded on the original
// Python Snapshot.py this engine was ported from, expressed as an
// owned-children / parent-pointer tree per the teacher's node-with-backlink
// idiom (see cas.ObjectID/objectManager for the sibling content-addressing
// convention this package generalizes from blocks to whole files).
package snapshot

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DirHashPlaceholder is the sentinel stored in the hash slot of directory
// nodes. ExplicitlyAdded records whether the directory was named as a user
// input (and so must be preserved even when empty); it is ignored by
// equality, since two placeholders always compare equal.
type DirHashPlaceholder struct {
	ExplicitlyAdded bool
}

// Node is a single vertex in a Snapshot tree.
//
// Name and Parent are both nil/empty for the synthetic root and both set
// otherwise. HashValue is either a string (lowercase hex SHA-512, for a
// file) or a DirHashPlaceholder (for a directory). FileSize is non-nil iff
// HashValue is a string. Children is non-empty only for directories.
type Node struct {
	Name      string
	Parent    *Node
	HashValue interface{} // string | DirHashPlaceholder
	FileSize  *int64
	Children  map[string]*Node
}

// NewRoot creates the synthetic root of a new, empty tree.
func NewRoot() *Node {
	return &Node{
		HashValue: DirHashPlaceholder{ExplicitlyAdded: false},
		Children:  map[string]*Node{},
	}
}

// IsRoot reports whether n is the synthetic tree root.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// IsFile reports whether n represents a file (as opposed to a directory).
func (n *Node) IsFile() bool {
	_, ok := n.HashValue.(string)
	return ok
}

// IsDir reports whether n represents a directory.
func (n *Node) IsDir() bool {
	return !n.IsFile()
}

// Placeholder returns n's DirHashPlaceholder, panicking if n is a file.
func (n *Node) Placeholder() DirHashPlaceholder {
	p, ok := n.HashValue.(DirHashPlaceholder)
	if !ok {
		panic("snapshot: Placeholder called on a file node")
	}

	return p
}

// FullPath reconstructs n's path by walking parents to the root and
// reversing, joining components with "/".
func (n *Node) FullPath() string {
	var parts []string

	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		parts = append(parts, cur.Name)
	}

	// parts is leaf-to-root; reverse in place.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	return strings.Join(parts, "/")
}

// AddFile inserts a file leaf at path, creating any missing intermediate
// directory placeholders (with ExplicitlyAdded=false) along the way.
// Without force, inserting over an existing leaf is a programmer error and
// panics, mirroring the teacher's "duplicate leaf insertion" invariant.
func (n *Node) AddFile(path string, hash string, size int64, force bool) *Node {
	parent, leaf := n.walkToParent(path)

	if existing, ok := parent.Children[leaf]; ok {
		if !force {
			panic(errors.Errorf("snapshot: duplicate leaf insertion at %q", path))
		}

		existing.HashValue = hash
		sz := size
		existing.FileSize = &sz
		existing.Children = nil

		return existing
	}

	sz := size
	child := &Node{Name: leaf, Parent: parent, HashValue: hash, FileSize: &sz}
	parent.Children[leaf] = child

	return child
}

// AddDir inserts a directory placeholder at path, creating any missing
// intermediate directories along the way. Every node AddDir creates is
// ExplicitlyAdded=true; force only controls whether an existing leaf is
// overwritten with a fresh directory placeholder.
func (n *Node) AddDir(path string, force bool) *Node {
	if path == "" {
		return n
	}

	parent, leaf := n.walkToParent(path)

	if existing, ok := parent.Children[leaf]; ok {
		if force {
			existing.HashValue = DirHashPlaceholder{ExplicitlyAdded: true}
			existing.FileSize = nil

			if existing.Children == nil {
				existing.Children = map[string]*Node{}
			}
		}

		return existing
	}

	child := &Node{
		Name:      leaf,
		Parent:    parent,
		HashValue: DirHashPlaceholder{ExplicitlyAdded: true},
		Children:  map[string]*Node{},
	}
	parent.Children[leaf] = child

	return child
}

// walkToParent walks/creates intermediate directory placeholders for every
// component of path but the last, returning the parent node and the final
// component name.
func (n *Node) walkToParent(path string) (*Node, string) {
	parts := splitPath(path)
	cur := n

	for _, part := range parts[:len(parts)-1] {
		child, ok := cur.Children[part]
		if !ok {
			child = &Node{
				Name:      part,
				Parent:    cur,
				HashValue: DirHashPlaceholder{ExplicitlyAdded: false},
				Children:  map[string]*Node{},
			}
			cur.Children[part] = child
		}

		cur = child
	}

	return cur, parts[len(parts)-1]
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	return strings.Split(path, "/")
}

// Enum performs a pre-order traversal yielding every non-root node.
func (n *Node) Enum() []*Node {
	var result []*Node

	var visit func(*Node)
	visit = func(cur *Node) {
		if !cur.IsRoot() {
			result = append(result, cur)
		}

		for _, name := range sortedKeys(cur.Children) {
			visit(cur.Children[name])
		}
	}

	visit(n)

	return result
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
