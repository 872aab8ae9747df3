// Package gpk is the engine of a decentralized package manager whose
// sole source of truth for every package is a Git repository.
//
// Dependencies are fetched directly from Git remotes, authenticated by
// signature verification (signed annotated tag, signed lightweight tag
// by commit, or signed commit for a branch) through a content-addressed
// cache, and materialized as a deterministic flat tree of modules under
// a root package.
//
// Basic usage:
//
//	engine, err := gpk.New(gpk.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	root, _, err := engine.LocateRoot(".")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	err = engine.Install(context.Background(), root, nil, gpk.InstallOptions{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The CLI front-end, terminal rendering, script runner and the native
// build helper itself are external collaborators; this package ends at
// deciding what to fetch, where it lands, and when the build helper is
// invoked.
package gpk

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/gpk/internal/buildhook"
	"github.com/git-pkgs/gpk/internal/cache"
	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/env"
	"github.com/git-pkgs/gpk/internal/gitops"
	"github.com/git-pkgs/gpk/internal/installer"
	"github.com/git-pkgs/gpk/internal/manifest"
	"github.com/git-pkgs/gpk/internal/uninstall"
)

// Re-export types from internal/core
type (
	// Manifest is the package manifest document.
	Manifest = core.Manifest

	// ResolvedRemote is the canonical form of a dependency source string.
	ResolvedRemote = core.ResolvedRemote

	// TagInfo describes one tag in a remote tag view.
	TagInfo = core.TagInfo

	// BranchView is the branch tips and HEAD resolution of a remote.
	BranchView = core.BranchView
)

// Re-export configuration types
type (
	// Config is the process-wide configuration input.
	Config = env.Config

	// Environment is the resolved process-wide configuration.
	Environment = env.Environment

	// InstallOptions are the per-call install flags.
	InstallOptions = installer.Options

	// UninstallOptions are the per-call uninstall flags.
	UninstallOptions = uninstall.Options
)

// Re-export error sentinels for errors.Is checks
var (
	ErrManifestMissing   = core.ErrManifestMissing
	ErrUnknownRemote     = core.ErrUnknownRemote
	ErrUnknownBase       = core.ErrUnknownBase
	ErrUnknownRef        = core.ErrUnknownRef
	ErrRemoteMissing     = core.ErrRemoteMissing
	ErrVerificationFail  = core.ErrVerificationFail
	ErrPlacementConflict = core.ErrPlacementConflict
	ErrDuplicateDep      = core.ErrDuplicateDep
)

// Error types for errors.As checks
type (
	ManifestMissingError     = core.ManifestMissingError
	UnknownRemoteError       = core.UnknownRemoteError
	UnknownBaseError         = core.UnknownBaseError
	UnknownRefError          = core.UnknownRefError
	RemoteMissingError       = core.RemoteMissingError
	VerificationFailureError = core.VerificationFailureError
	PlacementConflictError   = core.PlacementConflictError
	DuplicateDependencyError = core.DuplicateDependencyError
	GitError                 = core.GitError
	IoError                  = core.IoError
)

// Engine wires the resolution, verification and flat-install components
// together over one Environment. Construct with New.
type Engine struct {
	Env *Environment

	// Runtime and AddonBuildScript configure native-addon rebuilds:
	// `<Runtime> <AddonBuildScript> rebuild` is invoked in any installed
	// package that carries a top-level binding.gyp. Defaults: "node" and
	// "gpk-build".
	Runtime          string
	AddonBuildScript string

	git   *gitops.Adapter
	cache *cache.Cache
}

// New creates an Engine from cfg, shelling out to the `git` binary on
// the PATH for all remote operations.
func New(cfg Config) (*Engine, error) {
	e, err := env.New(cfg)
	if err != nil {
		return nil, err
	}
	git := gitops.New(gitops.ExecRunner{})
	return &Engine{
		Env:              e,
		Runtime:          "node",
		AddonBuildScript: "gpk-build",
		git:              git,
		cache:            cache.New(e.CacheDir(), git),
	}, nil
}

func (e *Engine) installer() *installer.Installer {
	return &installer.Installer{
		Git:              e.git,
		Cache:            e.cache,
		Env:              e.Env,
		Build:            buildhook.ExecInvoker{Stdout: os.Stdout, Stderr: os.Stderr},
		Runtime:          e.Runtime,
		AddonBuildScript: e.AddonBuildScript,
	}
}

// Install resolves and installs rootDir's dependency tree. Extra sources
// are discovered, merged into the root manifest, and installed along
// with the declared dependencies; in global mode each source is instead
// installed standalone under the global library root.
func (e *Engine) Install(ctx context.Context, rootDir string, sources []string, opts InstallOptions) error {
	return e.installer().Install(ctx, rootDir, sources, opts)
}

// Uninstall removes names from rootDir's manifest and prunes every
// installed module no longer transitively required. In global mode each
// name's global install is unlinked and deleted directly.
func (e *Engine) Uninstall(rootDir string, names []string, opts UninstallOptions) error {
	u := &uninstall.Uninstaller{Env: e.Env}
	return u.Uninstall(rootDir, names, opts)
}

// Rebuild walks rootDir's installed tree bottom-up and invokes the
// native build helper in every package that carries a top-level
// binding.gyp.
func (e *Engine) Rebuild(ctx context.Context, rootDir string) error {
	nm := filepath.Join(rootDir, "node_modules")
	entries, err := os.ReadDir(nm)
	if err != nil && !os.IsNotExist(err) {
		return &IoError{Op: "readdir", Path: nm, Err: err}
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := e.Rebuild(ctx, filepath.Join(nm, entry.Name())); err != nil {
			return err
		}
	}
	if buildhook.NeedsRebuild(rootDir) {
		invoker := buildhook.ExecInvoker{Stdout: os.Stdout, Stderr: os.Stderr}
		return invoker.Rebuild(ctx, rootDir, e.Runtime, e.AddonBuildScript)
	}
	return nil
}

// Archive writes `git archive HEAD` of the clone at src to dst.
func (e *Engine) Archive(ctx context.Context, src, dst string) error {
	return e.git.Archive(ctx, src, dst)
}

// TreeHash returns a rolling digest over the tracked files of the clone
// at dir, for reproducibility comparisons between two checkouts of the
// same commit.
func (e *Engine) TreeHash(ctx context.Context, dir string) (string, error) {
	return e.git.TreeHash(ctx, dir, dir, "sha256")
}

// LocateRoot climbs from start toward the filesystem root and returns
// the first directory holding a package manifest, with the parsed
// manifest.
func (e *Engine) LocateRoot(start string) (string, *Manifest, error) {
	return manifest.Locate(start, true)
}

// ReadManifest reads the manifest in dir. A missing manifest is (nil,
// nil), not an error.
func ReadManifest(dir string) (*Manifest, error) {
	return manifest.Read(dir)
}

// WriteManifest writes m into dir as pretty-printed JSON with a trailing
// newline.
func WriteManifest(dir string, m *Manifest) error {
	return manifest.Write(dir, m)
}
