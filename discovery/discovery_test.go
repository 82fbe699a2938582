package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func identity(p string) string { return p[1:] } // strip leading "/"

func TestDiscoverSingleFile(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/A", "hello")

	snap, sourcePaths, err := Discover(ctx, store, []string{"/A"}, identity, Options{})
	require.NoError(t, err)

	a := snap.Root.Children["A"]
	require.NotNil(t, a)
	assert.True(t, a.IsFile())
	assert.Equal(t, int64(5), *a.FileSize)
	assert.NotEmpty(t, a.HashValue)
	assert.NotEqual(t, HashLessSizeLiteral, a.HashValue)

	assert.Equal(t, "/A", sourcePaths["A"])
}

func TestDiscoverDirectoryTreeAndEmptyDir(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/one/A", "aaaa")
	writeFile(t, store, "/one/sub/B", "bbbb")
	require.NoError(t, store.MakeDirs(ctx, "/one/Empty"))

	snap, sourcePaths, err := Discover(ctx, store, []string{"/one"}, identity, Options{})
	require.NoError(t, err)

	var paths []string
	for _, n := range snap.Root.Enum() {
		paths = append(paths, n.FullPath())
	}

	assert.Contains(t, paths, "one/A")
	assert.Contains(t, paths, "one/sub/B")
	assert.Contains(t, paths, "one/Empty")

	assert.Equal(t, "/one/A", sourcePaths["one/A"])
	assert.Equal(t, "/one/sub/B", sourcePaths["one/sub/B"])
}

func TestDiscoverHashLessRecordsLiteral(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/A", "hello")

	snap, _, err := Discover(ctx, store, []string{"/A"}, identity, Options{HashLess: true})
	require.NoError(t, err)

	a := snap.Root.Children["A"]
	require.NotNil(t, a)
	assert.Equal(t, HashLessSizeLiteral, a.HashValue)
	assert.Equal(t, int64(5), *a.FileSize)
}

func TestDiscoverExcludeTakesPrecedenceOverInclude(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/one/A", "aaaa")
	writeFile(t, store, "/one/B", "bbbb")

	snap, _, err := Discover(ctx, store, []string{"/one"}, identity, Options{
		Include: func(string) bool { return true },
		Exclude: func(p string) bool { return p == "/one/B" },
	})
	require.NoError(t, err)

	assert.NotNil(t, snap.Root.Children["one"].Children["A"])
	assert.Nil(t, snap.Root.Children["one"].Children["B"])
}

func TestDiscoverRejectsMissingInput(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)

	_, _, err := Discover(ctx, store, []string{"/nope"}, identity, Options{})
	require.Error(t, err)
}

func TestDiscoverRejectsNestedInputs(t *testing.T) {
	ctx := context.Background()
	store := dstest.New(false, true)
	writeFile(t, store, "/one/A", "aaaa")

	_, _, err := Discover(ctx, store, []string{"/one", "/one/A"}, identity, Options{})
	require.Error(t, err)
}
