package offsite

import (
	"context"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
)

// poolPath returns the content-addressed path of hash within dirBase, per
// spec §4.7: <hash[0:2]>/<hash[2:4]>/<hash>.
func poolPath(dirBase, hash string) string {
	return dirBase + "/" + hash[0:2] + "/" + hash[2:4] + "/" + hash
}

// streamFile copies srcPath from srcStore to dstPath on dstStore in fixed
// chunks, grounded on mirror.streamFile.
func streamFile(ctx context.Context, srcStore, dstStore datastore.FileStore, srcPath, dstPath string) error {
	r, err := srcStore.Open(ctx, srcPath, datastore.OpenRead)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	w, err := dstStore.Open(ctx, dstPath, datastore.OpenWrite)
	if err != nil {
		return err
	}

	buf := make([]byte, 256*1024)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				w.Close() //nolint:errcheck
				return err
			}
		}

		if readErr != nil {
			break
		}
	}

	return w.Close()
}
