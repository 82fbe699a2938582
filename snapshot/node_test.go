package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFileCreatesIntermediateDirs(t *testing.T) {
	root := NewRoot()
	root.AddFile("one/two/A", "hash-a", 4, false)

	one, ok := root.Children["one"]
	require.True(t, ok)
	assert.True(t, one.IsDir())
	assert.False(t, one.Placeholder().ExplicitlyAdded)

	two := one.Children["two"]
	require.NotNil(t, two)

	a := two.Children["A"]
	require.NotNil(t, a)
	assert.True(t, a.IsFile())
	assert.Equal(t, "hash-a", a.HashValue)
	require.NotNil(t, a.FileSize)
	assert.Equal(t, int64(4), *a.FileSize)
	assert.Equal(t, "one/two/A", a.FullPath())
}

func TestAddFileDuplicatePanicsWithoutForce(t *testing.T) {
	root := NewRoot()
	root.AddFile("A", "hash-1", 1, false)

	assert.Panics(t, func() {
		root.AddFile("A", "hash-2", 2, false)
	})
}

func TestAddFileDuplicateOverwritesWithForce(t *testing.T) {
	root := NewRoot()
	root.AddFile("A", "hash-1", 1, false)
	root.AddFile("A", "hash-2", 2, true)

	a := root.Children["A"]
	assert.Equal(t, "hash-2", a.HashValue)
	assert.Equal(t, int64(2), *a.FileSize)
}

func TestAddDirExplicitlyAddedFlag(t *testing.T) {
	root := NewRoot()
	root.AddDir("Empty", true)
	root.AddFile("one/A", "hash-a", 1, false)

	empty := root.Children["Empty"]
	require.NotNil(t, empty)
	assert.True(t, empty.Placeholder().ExplicitlyAdded)

	one := root.Children["one"]
	require.NotNil(t, one)
	assert.False(t, one.Placeholder().ExplicitlyAdded)
}

func TestAddDirIsAlwaysExplicitlyAddedRegardlessOfForce(t *testing.T) {
	// discovery.discoverDir calls AddDir(path, false) for every directory it
	// finds empty during a walk; force only gates re-insertion over an
	// existing leaf, it must not affect whether a newly-created node counts
	// as explicitly added.
	root := NewRoot()
	root.AddDir("Discovered", false)

	discovered := root.Children["Discovered"]
	require.NotNil(t, discovered)
	assert.True(t, discovered.Placeholder().ExplicitlyAdded)
}

func TestEnumIsDeterministicPreOrder(t *testing.T) {
	root := NewRoot()
	root.AddFile("b/Z", "hash-z", 1, false)
	root.AddFile("a/Y", "hash-y", 1, false)
	root.AddFile("a/X", "hash-x", 1, false)

	var paths []string
	for _, n := range root.Enum() {
		paths = append(paths, n.FullPath())
	}

	assert.Equal(t, []string{"a", "a/X", "a/Y", "b", "b/Z"}, paths)
}

func TestPlaceholderPanicsOnFile(t *testing.T) {
	root := NewRoot()
	root.AddFile("A", "hash-a", 1, false)

	assert.Panics(t, func() {
		root.Children["A"].Placeholder()
	})
}
