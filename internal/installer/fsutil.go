package installer

import (
	"os"
	"path/filepath"

	"github.com/git-pkgs/gpk/internal/core"
)

// readDirNames lists the entry names of dir, treating a missing
// directory as simply empty rather than an error.
func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &core.IoError{Op: "readdir", Path: dir, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// moveDir relocates src to dst, falling back to a full copy-and-remove
// when they straddle filesystems (os.Rename's EXDEV).
func moveDir(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return &core.IoError{Op: "move", Path: dst, Err: err}
	}
	return removeAll(src)
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(srcPath)
		if err != nil {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dstPath, data, info.Mode().Perm()); err != nil {
			return err
		}
	}
	return nil
}

// removeAll removes path, treating an already-absent path as success.
func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &core.IoError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
