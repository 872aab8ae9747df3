package linker

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLinkCreatesRelativeSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink assertions are POSIX-shaped")
	}
	root := t.TempDir()
	installDir := filepath.Join(root, "node_modules", "tool")
	binDir := filepath.Join(root, "node_modules", ".bin")
	if err := os.MkdirAll(filepath.Join(installDir, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installDir, "bin", "tool.js"), []byte("#!/usr/bin/env node\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	bin := map[string]string{"tool": "bin/tool.js"}
	if err := Link(binDir, installDir, bin); err != nil {
		t.Fatal(err)
	}

	target, err := os.Readlink(filepath.Join(binDir, "tool"))
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("..", "tool", "bin", "tool.js")
	if target != want {
		t.Errorf("symlink target = %q, want %q", target, want)
	}
}

func TestLinkIdempotent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink assertions are POSIX-shaped")
	}
	root := t.TempDir()
	installDir := filepath.Join(root, "node_modules", "tool")
	binDir := filepath.Join(root, "node_modules", ".bin")
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		t.Fatal(err)
	}

	bin := map[string]string{"tool": "bin/tool.js"}
	if err := Link(binDir, installDir, bin); err != nil {
		t.Fatal(err)
	}
	// A second link of the same target is left intact.
	if err := Link(binDir, installDir, bin); err != nil {
		t.Fatal(err)
	}
}

func TestLinkRejectsForeignSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink assertions are POSIX-shaped")
	}
	root := t.TempDir()
	installDir := filepath.Join(root, "node_modules", "tool")
	binDir := filepath.Join(root, "node_modules", ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("somewhere/else", filepath.Join(binDir, "tool")); err != nil {
		t.Fatal(err)
	}

	err := Link(binDir, installDir, map[string]string{"tool": "bin/tool.js"})
	if err == nil {
		t.Fatal("a symlink pointing elsewhere must be an error")
	}
}

func TestLinkRejectsNonSymlink(t *testing.T) {
	root := t.TempDir()
	installDir := filepath.Join(root, "node_modules", "tool")
	binDir := filepath.Join(root, "node_modules", ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "tool"), []byte("not a link"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := Link(binDir, installDir, map[string]string{"tool": "bin/tool.js"})
	if err == nil {
		t.Fatal("a non-symlink occupant must be an error")
	}
}

func TestUnlinkTolerantOfMissing(t *testing.T) {
	binDir := t.TempDir()
	if err := Unlink(binDir, []string{"ghost"}); err != nil {
		t.Fatal(err)
	}
}
