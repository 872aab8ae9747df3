// Package linker implements the Linker: materializing executable
// symlinks (and Windows .cmd shims) for a package's declared bin
// entries.
package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/git-pkgs/gpk/internal/core"
)

// Link creates, in binDir, one symlink per entry of bin, pointing at the
// matching relative path under installDir. An existing symlink already
// pointing at the same target is left intact; a symlink pointing
// elsewhere, or a non-symlink occupying the same path, is an error.
func Link(binDir, installDir string, bin map[string]string) error {
	if len(bin) == 0 {
		return nil
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return &core.IoError{Op: "mkdir", Path: binDir, Err: err}
	}

	for name, rel := range bin {
		target := filepath.Join(installDir, rel)
		linkPath := filepath.Join(binDir, name)

		relTarget, err := filepath.Rel(binDir, target)
		if err != nil {
			return &core.IoError{Op: "link", Path: linkPath, Err: err}
		}

		if err := ensureSymlink(linkPath, relTarget); err != nil {
			return err
		}

		if runtime.GOOS == "windows" {
			if err := writeCmdShim(binDir, name, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureSymlink makes linkPath a symlink to target, tolerating an
// existing symlink that already points there. Any other occupant of
// linkPath is an error.
func ensureSymlink(linkPath, target string) error {
	existing, err := os.Readlink(linkPath)
	if err == nil {
		if existing == target {
			return nil
		}
		return fmt.Errorf("%s: existing symlink points at %q, not %q", linkPath, existing, target)
	}
	if info, statErr := os.Lstat(linkPath); statErr == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%s: exists and is not a symlink", linkPath)
		}
	}
	return os.Symlink(target, linkPath)
}

// writeCmdShim writes a Windows .cmd shim that invokes the runtime
// against target.
func writeCmdShim(binDir, name, target string) error {
	shimPath := filepath.Join(binDir, name+".cmd")
	content := fmt.Sprintf("@node \"%%~dp0\\%s\" %%*\r\n", target)
	if err := os.WriteFile(shimPath, []byte(content), 0o755); err != nil {
		return &core.IoError{Op: "write", Path: shimPath, Err: err}
	}
	return nil
}

// Unlink removes the symlink (and any Windows .cmd shim) for each name
// in binDir. Missing entries are not an error.
func Unlink(binDir string, names []string) error {
	for _, name := range names {
		_ = os.Remove(filepath.Join(binDir, name))
		_ = os.Remove(filepath.Join(binDir, name+".cmd"))
	}
	return nil
}

// Names returns the bin map's keys, used by callers that only need the
// executable names (e.g. to unlink after an uninstall).
func Names(bin map[string]string) []string {
	names := make([]string, 0, len(bin))
	for name := range bin {
		names = append(names, name)
	}
	return names
}
