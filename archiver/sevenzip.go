package archiver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/davidbrownell/v4-DavidBrownell-Backup/backuperrors"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/blog"
	"github.com/davidbrownell/v4-DavidBrownell-Backup/internal/osexec"
)

var log = blog.GetContextLoggerFunc("archiver")

// SevenZip shells out to an external 7z-compatible binary (resolved by name
// via exec.LookPath, never an embedded path) to create, verify, and extract
// volumed, optionally encrypted archives.
type SevenZip struct {
	// BinaryName is the executable looked up on PATH; defaults to "7z" when
	// empty.
	BinaryName string
}

var _ Archiver = SevenZip{}

func (s SevenZip) binary() string {
	if s.BinaryName != "" {
		return s.BinaryName
	}

	return "7z"
}

func (s SevenZip) lookup() (string, error) {
	path, err := exec.LookPath(s.binary())
	if err != nil {
		return "", backuperrors.WrapExternalToolError(err, "locating "+s.binary()+" on PATH")
	}

	return path, nil
}

func (s SevenZip) Create(ctx context.Context, spec Spec) error {
	bin, err := s.lookup()
	if err != nil {
		return err
	}

	args := []string{"a", "-y"}

	if spec.CompressionLevel > 0 {
		args = append(args, fmt.Sprintf("-mx=%d", spec.CompressionLevel))
	}

	if spec.VolumeSize > 0 {
		args = append(args, fmt.Sprintf("-v%db", spec.VolumeSize))
	}

	if spec.Password != "" {
		args = append(args, "-p"+spec.Password, "-mhe=on")
	}

	args = append(args, filepath.Join(spec.DestDir, spec.ArchiveName), spec.SourceDir)

	return s.run(ctx, bin, args)
}

func (s SevenZip) Verify(ctx context.Context, archiveDir, archiveName string) error {
	bin, err := s.lookup()
	if err != nil {
		return err
	}

	return s.run(ctx, bin, []string{"t", filepath.Join(archiveDir, archiveName)})
}

func (s SevenZip) Extract(ctx context.Context, archiveDir, archiveName, destDir string) error {
	bin, err := s.lookup()
	if err != nil {
		return err
	}

	return s.run(ctx, bin, []string{"x", "-y", "-o" + destDir, filepath.Join(archiveDir, archiveName)})
}

func (s SevenZip) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	osexec.DisableInterruptSignal(cmd)

	log(ctx).Debug().Str("binary", bin).Strs("args", args).Msg("invoking archiver")

	if err := cmd.Run(); err != nil {
		return backuperrors.WrapExternalToolError(errors.Wrap(err, stderr.String()), s.binary()+" invocation failed")
	}

	return nil
}
