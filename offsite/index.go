package offsite

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/diffengine"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

const (
	indexFilename     = "index.json"
	indexHashFilename = "index.json.hash"
)

// wireHash is index.json's encoding of a diffengine.Result hash slot: a hex
// string for a file, an explicit directory marker for a
// snapshot.DirHashPlaceholder, or JSON null (encoded as a nil *wireHash) for
// an absent side. Mirrors the snapshot package's jsonNode convention for
// the same string|placeholder|nil union.
type wireHash struct {
	Hash            string `json:"hash,omitempty"`
	IsDir           bool   `json:"is_dir,omitempty"`
	ExplicitlyAdded bool   `json:"explicitly_added,omitempty"`
}

func toWireHash(h interface{}) *wireHash {
	if h == nil {
		return nil
	}

	if p, ok := h.(snapshot.DirHashPlaceholder); ok {
		return &wireHash{IsDir: true, ExplicitlyAdded: p.ExplicitlyAdded}
	}

	return &wireHash{Hash: h.(string)} //nolint:forcetypeassert
}

func fromWireHash(w *wireHash) interface{} {
	if w == nil {
		return nil
	}

	if w.IsDir {
		return snapshot.DirHashPlaceholder{ExplicitlyAdded: w.ExplicitlyAdded}
	}

	return w.Hash
}

// indexEntry is the JSON wire form of one diffengine.Result, per spec §4.7's
// index.json.
type indexEntry struct {
	Operation     string    `json:"operation"`
	Path          string    `json:"path"`
	ThisHash      *wireHash `json:"this_hash"`
	ThisFileSize  *int64    `json:"this_file_size,omitempty"`
	OtherHash     *wireHash `json:"other_hash"`
	OtherFileSize *int64    `json:"other_file_size,omitempty"`
}

func toIndexEntry(r diffengine.Result) indexEntry {
	return indexEntry{
		Operation:     r.Operation.String(),
		Path:          r.Path,
		ThisHash:      toWireHash(r.ThisHash),
		ThisFileSize:  r.ThisFileSize,
		OtherHash:     toWireHash(r.OtherHash),
		OtherFileSize: r.OtherFileSize,
	}
}

func operationFromString(s string) (diffengine.Operation, error) {
	switch s {
	case "add":
		return diffengine.Add, nil
	case "modify":
		return diffengine.Modify, nil
	case "remove":
		return diffengine.Remove, nil
	default:
		return 0, errors.Errorf("unknown index operation %q", s)
	}
}

// fromIndexEntry reconstructs a diffengine.Result directly (bypassing
// diffengine.New's panicking validation), since restore must be able to
// report a malformed persisted index as an IntegrityError rather than crash
// on it.
func fromIndexEntry(e indexEntry) (diffengine.Result, error) {
	op, err := operationFromString(e.Operation)
	if err != nil {
		return diffengine.Result{}, err
	}

	return diffengine.Result{
		Operation:     op,
		Path:          e.Path,
		ThisHash:      fromWireHash(e.ThisHash),
		ThisFileSize:  e.ThisFileSize,
		OtherHash:     fromWireHash(e.OtherHash),
		OtherFileSize: e.OtherFileSize,
	}, nil
}

// marshalIndex renders diffs (already sorted by path, per
// diffengine.Diff's contract) as index.json.
func marshalIndex(diffs []diffengine.Result) ([]byte, error) {
	entries := make([]indexEntry, len(diffs))
	for i, d := range diffs {
		entries[i] = toIndexEntry(d)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshaling index.json")
	}

	return data, nil
}

func unmarshalIndex(data []byte) ([]diffengine.Result, error) {
	var entries []indexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "malformed index.json")
	}

	results := make([]diffengine.Result, len(entries))

	for i, e := range entries {
		r, err := fromIndexEntry(e)
		if err != nil {
			return nil, err
		}

		results[i] = r
	}

	return results, nil
}

// indexHash returns the lowercase hex SHA-512 of data, used for
// index.json.hash.
func indexHash(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}
