package cleanup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore/dstest"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/snapshot"
)

func writeFile(t *testing.T, store *dstest.Store, path, content string) {
	t.Helper()

	w, err := store.Open(context.Background(), path, datastore.OpenWrite)
	require.NoError(t, err)

	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestCleanupDiscardsPendingCommits(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/one/A", "kept")
	writeFile(t, store, "/dest/one/Stray"+pendingCommitSuffix, "junk")

	require.NoError(t, Cleanup(ctx, store, "/dest"))

	strayType, err := store.ItemType(ctx, "/dest/one/Stray"+pendingCommitSuffix)
	require.NoError(t, err)
	assert.Nil(t, strayType)

	aType, err := store.ItemType(ctx, "/dest/one/A")
	require.NoError(t, err)
	require.NotNil(t, aType)
}

func TestCleanupRestoresPendingDeletes(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/one/B"+pendingDeleteSuffix, "restored")

	require.NoError(t, Cleanup(ctx, store, "/dest"))

	bType, err := store.ItemType(ctx, "/dest/one/B")
	require.NoError(t, err)
	require.NotNil(t, bType)

	oldType, err := store.ItemType(ctx, "/dest/one/B"+pendingDeleteSuffix)
	require.NoError(t, err)
	assert.Nil(t, oldType)
}

func TestCleanupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/one/A", "kept")

	require.NoError(t, Cleanup(ctx, store, "/dest"))
	require.NoError(t, Cleanup(ctx, store, "/dest"))

	aType, err := store.ItemType(ctx, "/dest/one/A")
	require.NoError(t, err)
	require.NotNil(t, aType)
}

func TestCleanupNoOpWhenRootMissing(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)

	assert.NoError(t, Cleanup(ctx, store, "/dest"))
}

func TestValidateCleanWhenContentMatchesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/Content/one/A", "aaaa")

	snap := snapshot.New()
	snap.Root.AddFile("one/A", "ignored", 4, false)
	require.NoError(t, snap.Persist(ctx, store, "/dest/BackupSnapshot.json"))

	report, err := Validate(ctx, store, "/dest/BackupSnapshot.json", "/dest/Content", Standard)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestValidateReportsAddedAndRemoved(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/Content/one/A", "aaaa")
	writeFile(t, store, "/dest/Content/one/Extra", "extra")

	snap := snapshot.New()
	snap.Root.AddFile("one/A", "ignored", 4, false)
	snap.Root.AddFile("one/Missing", "ignored", 3, false)
	require.NoError(t, snap.Persist(ctx, store, "/dest/BackupSnapshot.json"))

	report, err := Validate(ctx, store, "/dest/BackupSnapshot.json", "/dest/Content", Standard)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Len(t, report.Added, 1)
	assert.Equal(t, "one/Extra", report.Added[0].Path)
	assert.Len(t, report.Removed, 1)
	assert.Equal(t, "one/Missing", report.Removed[0].Path)
}

func TestValidateReportsModifiedAsWarningWithSizes(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/dest/Content/one/A", "aaaaaaaa")

	snap := snapshot.New()
	snap.Root.AddFile("one/A", "deadbeef", 4, false)
	require.NoError(t, snap.Persist(ctx, store, "/dest/BackupSnapshot.json"))

	report, err := Validate(ctx, store, "/dest/BackupSnapshot.json", "/dest/Content", Standard)
	require.NoError(t, err)
	require.Len(t, report.Modified, 1)
	assert.Equal(t, int64(8), *report.Modified[0].ThisFileSize)
	assert.Equal(t, int64(4), *report.Modified[0].OtherFileSize)
}
