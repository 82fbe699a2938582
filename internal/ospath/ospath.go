// Package ospath provides platform-neutral path helpers used by the engine's
// file-based data stores and per-user snapshot-file location.
package ospath

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
)

var uncShareRE = regexp.MustCompile(`^\\\\[^\\]+\\[^\\]+`)

// IsAbs reports whether path is an absolute path on the current platform.
// On Windows it recognizes drive-letter and UNC-share forms; on every other
// host it defers to filepath.IsAbs, so those forms are not recognized there.
func IsAbs(path string) bool {
	if runtime.GOOS == "windows" {
		if len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/') {
			return true
		}

		return uncShareRE.MatchString(path)
	}

	return filepath.IsAbs(path)
}

// ConfigDir returns the per-user configuration directory under which the
// offsite executor persists OffsiteBackup.<name>.json snapshot files.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "davidbrownell-backup")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".davidbrownell-backup")
}
