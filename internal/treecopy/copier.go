// Package treecopy implements the Tree Copier: a recursive copy from a
// Verified Cache Entry into an Install Site, honoring the File Filter at
// every directory it descends into.
package treecopy

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/git-pkgs/gpk/internal/filter"
)

// BundledCheck reports whether name (a direct child of node_modules/) is
// a declared bundled dependency of the package being copied.
type BundledCheck func(name string) bool

// Copy copies src into dst, applying keep at the top level and a freshly
// loaded Ignore layer at every directory. Before walking, src and dst are
// compared in the OS-normalized, forward-slash canonical form of their
// absolute paths, and a copy onto itself is refused.
func Copy(src, dst string, keep filter.Keep, bundled BundledCheck) error {
	srcCanon, err := CanonicalPath(src)
	if err != nil {
		return err
	}
	dstCanon, err := CanonicalPath(dst)
	if err != nil {
		return err
	}
	if srcCanon == dstCanon {
		return fmt.Errorf("copy source and destination are the same path: %s", srcCanon)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return copyDir(src, dst, keep, true, bundled)
}

func copyDir(src, dst string, keep filter.Keep, isRoot bool, bundled BundledCheck) error {
	ignore, err := filter.LoadIgnore(src)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()

		if isRoot && keep.Active() {
			if !keep.Kept(name) {
				continue
			}
			// A kept top-level entry can be excluded only by the
			// always-ignore baseline, never by a user pattern.
			if ignore.AlwaysIgnored(name) {
				continue
			}
		} else if ignore.Ignored(name) {
			continue
		}

		srcPath := filepath.Join(src, name)
		dstPath := filepath.Join(dst, name)

		if isRoot && name == "node_modules" && entry.IsDir() {
			if err := copyBundledNodeModules(srcPath, dstPath, bundled); err != nil {
				return err
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return err
			}
			if err := copyDir(srcPath, dstPath, keep, false, bundled); err != nil {
				return err
			}
		case info.Mode()&os.ModeSymlink != 0:
			if err := copySymlink(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath, info.Mode().Perm()); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyBundledNodeModules walks node_modules/ at the copy root, keeping
// only subtrees whose top name is a declared bundled dependency; every
// other subtree is ignored outright, ahead of any user ignore pattern.
func copyBundledNodeModules(src, dst string, bundled BundledCheck) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !filter.BundledSubtree(bundled(entry.Name())) {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if err := os.MkdirAll(dstPath, 0o755); err != nil {
			return err
		}
		if err := copyDir(srcPath, dstPath, filter.Keep{}, false, bundled); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	_ = os.Remove(dst)
	return os.Symlink(target, dst)
}

// CanonicalPath returns the OS-normalized, forward-slash canonical form
// of an absolute path, used by Copy to compare the source and
// destination roots.
func CanonicalPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return path.Clean(filepath.ToSlash(abs)), nil
}
