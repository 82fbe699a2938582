// Package archiver defines the opaque subprocess contract for volumed
// compression/encryption described in spec §4.7/§9, generalized in
// SPEC_FULL §4.7a into an Archiver interface with three concrete
// implementations: a pass-through no-op, an external 7z-compatible tool, and
// a pure-Go gzip fallback for environments without one installed.
package archiver

import "context"

// Spec describes one archive creation request.
type Spec struct {
	// ArchiveName is the base name of the archive (volumes, if any, are
	// named ArchiveName.001, ArchiveName.002, ...).
	ArchiveName string

	// SourceDir is the directory whose contents are archived.
	SourceDir string

	// DestDir is the directory the resulting archive (or its volumes) is
	// written to.
	DestDir string

	// VolumeSize splits the archive into fixed-size volumes when positive;
	// zero means a single unsplit archive.
	VolumeSize int64

	// CompressionLevel is implementation-defined; zero or less selects the
	// implementation's default level.
	CompressionLevel int

	// Password, if non-empty, enables encryption where the implementation
	// supports it.
	Password string
}

// Archiver is the opaque contract every compression/encryption tool
// implements: create an archive from a source directory, verify an existing
// archive's integrity, and extract one back to a destination directory.
type Archiver interface {
	Create(ctx context.Context, spec Spec) error
	Verify(ctx context.Context, archiveDir, archiveName string) error
	Extract(ctx context.Context, archiveDir, archiveName, destDir string) error
}
