// Package hashutil implements the streaming SHA-512 hasher described in
// spec §4.1, grounded on the teacher's cas.objectManager.hashBuffer (same
// hash-then-hex-encode idiom, generalized from in-memory buffers to a
// chunked stream read through a datastore.FileStore).
package hashutil

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"io"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
)

// ChunkSize is the fixed read size used while hashing, per spec §4.1.
const ChunkSize = 16 * 1024

// ProgressFunc is invoked after each chunk is hashed with the cumulative
// number of bytes hashed so far.
type ProgressFunc func(bytesHashedSoFar int64)

// CalculateHash reads path through store in ChunkSize chunks, feeding a
// SHA-512 accumulator, and returns the final lowercase hex digest. It does
// not retry on failure.
func CalculateHash(ctx context.Context, store datastore.FileStore, path string, progress ProgressFunc) (string, error) {
	r, err := store.Open(ctx, path, datastore.OpenRead)
	if err != nil {
		return "", backuperrors.WrapIoError(err, "opening "+path+" for hashing")
	}
	defer r.Close() //nolint:errcheck

	h := sha512.New()
	buf := make([]byte, ChunkSize)

	var total int64

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := h.Write(buf[:n]); err != nil {
				return "", backuperrors.WrapIoError(err, "hashing "+path)
			}

			total += int64(n)

			if progress != nil {
				progress(total)
			}
		}

		if readErr != nil {
			if readErr == io.EOF { //nolint:errorlint
				break
			}

			return "", backuperrors.WrapIoError(readErr, "reading "+path)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
