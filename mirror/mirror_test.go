package mirror

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/cleanup"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/datastore/dstest"
)

func writeFile(t *testing.T, store *dstest.Store, path, content string) {
	t.Helper()

	w, err := store.Open(context.Background(), path, datastore.OpenWrite)
	require.NoError(t, err)

	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestBackupBaseline(t *testing.T) {
	ctx := context.Background()

	local := dstest.New(false, true)
	writeFile(t, local, "/one/A", "aaaa")
	writeFile(t, local, "/one/B", "bbbb")
	require.NoError(t, local.MakeDirs(ctx, "/EmptyDir"))

	dest := dstest.New(false, true)

	result, err := Backup(ctx, local, dest, "/dest", []string{"/one", "/EmptyDir"}, Options{CompareHashes: true})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Diffs)

	persisted, err := dest.ItemType(ctx, snapshotPath("/dest"))
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, datastore.ItemTypeFile, *persisted)

	aType, err := dest.ItemType(ctx, "/dest/Content/one/A")
	require.NoError(t, err)
	require.NotNil(t, aType)
	assert.Equal(t, datastore.ItemTypeFile, *aType)

	emptyDirType, err := dest.ItemType(ctx, "/dest/Content/EmptyDir")
	require.NoError(t, err)
	require.NotNil(t, emptyDirType)
	assert.Equal(t, datastore.ItemTypeDir, *emptyDirType)

	report, err := cleanup.Validate(ctx, dest, snapshotPath("/dest"), contentPath("/dest"), cleanup.Complete)
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestBackupSecondRunIsIncremental(t *testing.T) {
	ctx := context.Background()

	local := dstest.New(false, true)
	writeFile(t, local, "/one/A", "aaaa")

	dest := dstest.New(false, true)

	_, err := Backup(ctx, local, dest, "/dest", []string{"/one"}, Options{CompareHashes: true})
	require.NoError(t, err)

	writeFile(t, local, "/one/NewFile1", "New file 1")

	result, err := Backup(ctx, local, dest, "/dest", []string{"/one"}, Options{CompareHashes: true})
	require.NoError(t, err)
	require.Len(t, result.Diffs, 1)
	assert.Equal(t, "one/NewFile1", result.Diffs[0].Path)

	newType, err := dest.ItemType(ctx, "/dest/Content/one/NewFile1")
	require.NoError(t, err)
	require.NotNil(t, newType)
}

func TestBackupRefusesOverCapacity(t *testing.T) {
	ctx := context.Background()

	local := dstest.New(false, true)
	writeFile(t, local, "/one/A", "this content is definitely more than a few bytes long")

	dest := dstest.New(false, true)
	dest.SetBytesAvailable(4)

	_, err := Backup(ctx, local, dest, "/dest", []string{"/one"}, Options{CompareHashes: true})
	require.Error(t, err)
}

func TestBackupRunsCleanupBeforeApply(t *testing.T) {
	ctx := context.Background()

	local := dstest.New(false, true)
	writeFile(t, local, "/one/A", "aaaa")

	dest := dstest.New(false, true)

	// Simulate a crash mid previous-run: a stray pending-commit file and a
	// stray pending-delete file under Content/.
	writeFile(t, dest, "/dest/Content/one/Stray"+PendingCommitSuffix, "junk")
	writeFile(t, dest, "/dest/Content/one/B"+PendingDeleteSuffix, "restored")

	_, err := Backup(ctx, local, dest, "/dest", []string{"/one"}, Options{CompareHashes: true, Force: true})
	require.NoError(t, err)

	strayType, err := dest.ItemType(ctx, "/dest/Content/one/Stray"+PendingCommitSuffix)
	require.NoError(t, err)
	assert.Nil(t, strayType)

	bType, err := dest.ItemType(ctx, "/dest/Content/one/B")
	require.NoError(t, err)
	require.NotNil(t, bType)
}
