// Package buildhook is the contract-only delegate to the external
// native-addon build helper. The engine's responsibility ends at
// deciding where and when to invoke it; the build itself (and its own
// dependency resolution) is entirely out of scope.
package buildhook

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
)

// Invoker rebuilds a native addon in pkgDir by shelling out to the
// configured runtime with the configured addon-build script:
// `<runtime> <addon-build-script> rebuild`.
type Invoker interface {
	Rebuild(ctx context.Context, pkgDir, runtime, addonBuildScript string) error
}

// ExecInvoker shells out to the real runtime binary. This is the one
// place the native-addon build is actually invoked; everything about how
// the build itself works remains the external helper's concern.
type ExecInvoker struct {
	Stdout, Stderr *os.File
}

// Rebuild runs `<runtime> <addonBuildScript> rebuild` with pkgDir as the
// working directory.
func (e ExecInvoker) Rebuild(ctx context.Context, pkgDir, runtime, addonBuildScript string) error {
	cmd := exec.CommandContext(ctx, runtime, addonBuildScript, "rebuild")
	cmd.Dir = pkgDir
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd.Run()
}

// NeedsRebuild reports whether pkgDir declares a native addon, i.e.
// carries a top-level binding.gyp.
func NeedsRebuild(pkgDir string) bool {
	_, err := os.Stat(filepath.Join(pkgDir, "binding.gyp"))
	return err == nil
}
