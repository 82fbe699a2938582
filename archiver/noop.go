package archiver

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// NoOp is an Archiver that performs no compression or encryption: Create
// renames spec.SourceDir's contents into spec.DestDir/spec.ArchiveName as a
// plain directory, Verify checks it exists, Extract copies it back out. It
// grounds the opaque-tool contract for callers that disable compression
// entirely.
type NoOp struct{}

var _ Archiver = NoOp{}

func (NoOp) Create(_ context.Context, spec Spec) error {
	dest := filepath.Join(spec.DestDir, spec.ArchiveName)

	if err := os.MkdirAll(filepath.Dir(dest), 0o775); err != nil {
		return errors.Wrap(err, "creating archive destination directory")
	}

	if err := os.Rename(spec.SourceDir, dest); err != nil {
		return errors.Wrap(err, "moving source into archive destination")
	}

	return nil
}

func (NoOp) Verify(_ context.Context, archiveDir, archiveName string) error {
	_, err := os.Stat(filepath.Join(archiveDir, archiveName))
	if err != nil {
		return errors.Wrap(err, "verifying no-op archive")
	}

	return nil
}

func (NoOp) Extract(_ context.Context, archiveDir, archiveName, destDir string) error {
	src := filepath.Join(archiveDir, archiveName)

	if err := os.MkdirAll(filepath.Dir(destDir), 0o775); err != nil {
		return errors.Wrap(err, "creating extraction destination")
	}

	return errors.Wrap(copyTree(src, destDir), "extracting no-op archive")
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, 0o775)
		}

		data, err := os.ReadFile(path) //nolint:gosec
		if err != nil {
			return err
		}

		return os.WriteFile(target, data, 0o664) //nolint:gosec
	})
}
