package loggingstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore/dstest"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore/loggingstore"
)

func TestWrapperDelegatesEveryCall(t *testing.T) {
	ctx := context.Background()
	base := dstest.New(true, true)
	store := loggingstore.New(base, loggingstore.Prefix("test:"))

	require.NoError(t, store.MakeDirs(ctx, "/a/b"))

	w, err := store.Open(ctx, "/a/b/file.txt", datastore.OpenWrite)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	size, err := store.FileSize(ctx, "/a/b/file.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)

	itemType, err := store.ItemType(ctx, "/a/b/file.txt")
	require.NoError(t, err)
	require.NotNil(t, itemType)
	assert.Equal(t, datastore.ItemTypeFile, *itemType)

	require.NoError(t, store.Rename(ctx, "/a/b/file.txt", "/a/b/renamed.txt"))

	_, err = base.Open(ctx, "/a/b/renamed.txt", datastore.OpenRead)
	require.NoError(t, err)

	require.NoError(t, store.RemoveFile(ctx, "/a/b/renamed.txt"))

	missing, err := store.ItemType(ctx, "/a/b/renamed.txt")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, base.ExecuteInParallel(), store.ExecuteInParallel())
	assert.Equal(t, base.IsLocalFilesystem(), store.IsLocalFilesystem())
	assert.Equal(t, base.SnapshotFilenameToDestinationName("/x/y"), store.SnapshotFilenameToDestinationName("/x/y"))
}
