package archiver_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/archiver"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
)

func writeTree(t *testing.T, root string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o775))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o664))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("beta"), 0o664))
}

func TestNoOpCreateVerifyExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	destParent := t.TempDir()

	writeTree(t, src)

	a := archiver.NoOp{}
	ctx := context.Background()

	spec := archiver.Spec{
		ArchiveName: "snap1",
		SourceDir:   src,
		DestDir:     destParent,
	}

	require.NoError(t, a.Create(ctx, spec))
	require.NoError(t, a.Verify(ctx, destParent, "snap1"))

	restoreDir := t.TempDir()
	require.NoError(t, a.Extract(ctx, destParent, "snap1", restoreDir))

	data, err := os.ReadFile(filepath.Join(restoreDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	data, err = os.ReadFile(filepath.Join(restoreDir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
}

func TestNoOpVerifyFailsWhenArchiveMissing(t *testing.T) {
	a := archiver.NoOp{}

	err := a.Verify(context.Background(), t.TempDir(), "missing")
	assert.Error(t, err)
}

func TestGzipCreateVerifyExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	destDir := t.TempDir()

	writeTree(t, src)

	a := archiver.Gzip{}
	ctx := context.Background()

	spec := archiver.Spec{
		ArchiveName: "snap1",
		SourceDir:   src,
		DestDir:     destDir,
	}

	require.NoError(t, a.Create(ctx, spec))
	require.NoError(t, a.Verify(ctx, destDir, "snap1"))

	restoreDir := t.TempDir()
	require.NoError(t, a.Extract(ctx, destDir, "snap1", restoreDir))

	data, err := os.ReadFile(filepath.Join(restoreDir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(data))

	data, err = os.ReadFile(filepath.Join(restoreDir, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(data))
}

func TestGzipVerifyFailsOnCorruptArchive(t *testing.T) {
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(destDir, "bad.tar.gz"), []byte("not gzip data"), 0o664))

	a := archiver.Gzip{}

	err := a.Verify(context.Background(), destDir, "bad")
	assert.Error(t, err)
}

func TestSevenZipCreateFailsWhenBinaryMissing(t *testing.T) {
	a := archiver.SevenZip{BinaryName: "definitely-not-a-real-7z-binary"}

	err := a.Create(context.Background(), archiver.Spec{
		ArchiveName: "snap1",
		SourceDir:   t.TempDir(),
		DestDir:     t.TempDir(),
	})

	require.Error(t, err)

	var toolErr *backuperrors.ExternalToolError
	assert.ErrorAs(t, err, &toolErr)
}
