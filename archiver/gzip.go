package archiver

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Gzip is a pure-Go Archiver: a single tar+gzip volume, no splitting, no
// encryption. It is the fallback used by tests and by callers without an
// external compression tool installed.
type Gzip struct {
	CompressionLevel int
}

var _ Archiver = Gzip{}

func archivePath(dir, name string) string {
	return filepath.Join(dir, name+".tar.gz")
}

func (g Gzip) Create(_ context.Context, spec Spec) error {
	if err := os.MkdirAll(spec.DestDir, 0o775); err != nil {
		return errors.Wrap(err, "creating archive destination directory")
	}

	out, err := os.Create(archivePath(spec.DestDir, spec.ArchiveName)) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "creating gzip archive")
	}
	defer out.Close() //nolint:errcheck

	level := g.CompressionLevel
	if level <= 0 {
		level = gzip.DefaultCompression
	}

	gw, err := gzip.NewWriterLevel(out, level)
	if err != nil {
		return errors.Wrap(err, "initializing gzip writer")
	}
	defer gw.Close() //nolint:errcheck

	tw := tar.NewWriter(gw)
	defer tw.Close() //nolint:errcheck

	return errors.Wrap(addTree(tw, spec.SourceDir), "writing gzip archive")
}

func addTree(tw *tar.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}

		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return err
		}
		defer f.Close() //nolint:errcheck

		_, err = io.Copy(tw, f) //nolint:gosec

		return err
	})
}

func (g Gzip) Verify(_ context.Context, archiveDir, archiveName string) error {
	f, err := os.Open(archivePath(archiveDir, archiveName)) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "opening gzip archive")
	}
	defer f.Close() //nolint:errcheck

	gr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "reading gzip header")
	}
	defer gr.Close() //nolint:errcheck

	tr := tar.NewReader(gr)

	for {
		_, err := tr.Next()
		if err == io.EOF { //nolint:errorlint
			return nil
		}

		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}

		if _, err := io.Copy(io.Discard, tr); err != nil {
			return errors.Wrap(err, "reading tar entry body")
		}
	}
}

func (g Gzip) Extract(_ context.Context, archiveDir, archiveName, destDir string) error {
	f, err := os.Open(archivePath(archiveDir, archiveName)) //nolint:gosec
	if err != nil {
		return errors.Wrap(err, "opening gzip archive")
	}
	defer f.Close() //nolint:errcheck

	gr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "reading gzip header")
	}
	defer gr.Close() //nolint:errcheck

	tr := tar.NewReader(gr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF { //nolint:errorlint
			return nil
		}

		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}

		target := filepath.Join(destDir, hdr.Name) //nolint:gosec

		if hdr.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o775); err != nil {
				return err
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o775); err != nil {
			return err
		}

		out, err := os.Create(target) //nolint:gosec
		if err != nil {
			return err
		}

		if _, err := io.Copy(out, tr); err != nil { //nolint:gosec
			out.Close() //nolint:errcheck
			return err
		}

		if err := out.Close(); err != nil {
			return err
		}
	}
}
