package snapshot

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
)

// Snapshot owns a single root Node describing a tree of files and
// directories.
type Snapshot struct {
	Root *Node
}

// New creates an empty Snapshot.
func New() *Snapshot {
	return &Snapshot{Root: NewRoot()}
}

// jsonNode mirrors the wire format in spec §6: hash_value is a string for a
// file, null for a directory; children is present only for directories.
type jsonNode struct {
	HashValue *string             `json:"hash_value"`
	FileSize  *int64              `json:"file_size,omitempty"`
	Children  map[string]jsonNode `json:"children,omitempty"`
}

func nodeToJSON(n *Node) jsonNode {
	if n.IsFile() {
		h := n.HashValue.(string) //nolint:forcetypeassert
		return jsonNode{HashValue: &h, FileSize: n.FileSize}
	}

	children := make(map[string]jsonNode, len(n.Children))
	for name, child := range n.Children {
		children[name] = nodeToJSON(child)
	}

	return jsonNode{Children: children}
}

func nodeFromJSON(name string, parent *Node, jn jsonNode) *Node {
	n := &Node{Name: name, Parent: parent}

	if jn.HashValue != nil {
		n.HashValue = *jn.HashValue
		n.FileSize = jn.FileSize

		return n
	}

	n.HashValue = DirHashPlaceholder{ExplicitlyAdded: len(jn.Children) == 0}
	n.Children = make(map[string]*Node, len(jn.Children))

	for childName, childJSON := range jn.Children {
		n.Children[childName] = nodeFromJSON(childName, n, childJSON)
	}

	return n
}

// ToJSON serializes the snapshot to its wire representation.
func (s *Snapshot) ToJSON() ([]byte, error) {
	return json.MarshalIndent(nodeToJSON(s.Root), "", "  ")
}

// FromJSON parses data produced by ToJSON into a new Snapshot.
func FromJSON(data []byte) (*Snapshot, error) {
	var jn jsonNode
	if err := json.Unmarshal(data, &jn); err != nil {
		return nil, errors.Wrap(err, "malformed snapshot JSON")
	}

	root := nodeFromJSON("", nil, jn)

	return &Snapshot{Root: root}, nil
}

// Persist writes the snapshot's JSON form to path through store.
func (s *Snapshot) Persist(ctx context.Context, store datastore.FileStore, path string) error {
	data, err := s.ToJSON()
	if err != nil {
		return err
	}

	w, err := store.Open(ctx, path, datastore.OpenWrite)
	if err != nil {
		return err
	}
	defer w.Close() //nolint:errcheck

	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(err, "writing snapshot to %v", path)
	}

	return nil
}

// LoadPersisted reads and parses the snapshot JSON at path from store.
func LoadPersisted(ctx context.Context, store datastore.FileStore, path string) (*Snapshot, error) {
	r, err := store.Open(ctx, path, datastore.OpenRead)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot at %v", path)
	}

	return FromJSON(data)
}

// IsPersisted reports whether a snapshot file exists at path in store.
func IsPersisted(ctx context.Context, store datastore.FileStore, path string) (bool, error) {
	t, err := store.ItemType(ctx, path)
	if err != nil {
		return false, err
	}

	return t != nil && *t == datastore.ItemTypeFile, nil
}
