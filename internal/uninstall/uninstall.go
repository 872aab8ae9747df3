// Package uninstall implements the Uninstaller: removing named
// dependencies from the root manifest, pruning installed modules that
// are no longer transitively required, and unlinking the executables of
// everything it removes.
package uninstall

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/env"
	"github.com/git-pkgs/gpk/internal/linker"
	"github.com/git-pkgs/gpk/internal/manifest"
	"github.com/git-pkgs/gpk/internal/semver"
	"github.com/git-pkgs/gpk/internal/sourceurl"
)

// Options are the per-call uninstall flags.
type Options struct {
	Global     bool
	Production bool
}

// Uninstaller removes dependencies. The zero value is not usable;
// populate Env.
type Uninstaller struct {
	Env *env.Environment
}

// Uninstall removes names. In global mode each name's global install is
// unlinked and deleted directly. Locally, names are removed from the
// root manifest first, then every module directly under
// <root>/node_modules that is no longer reachable from the root through
// matching dependency declarations is pruned, together with its own
// nested node_modules. Nested installs inside a module that is kept are
// not examined.
func (u *Uninstaller) Uninstall(rootDir string, names []string, opts Options) error {
	if opts.Global {
		return u.uninstallGlobal(names)
	}
	return u.uninstallLocal(rootDir, names, opts.Production)
}

func (u *Uninstaller) uninstallGlobal(names []string) error {
	libRoot := u.Env.GlobalLibRoot()
	for _, name := range names {
		dir := filepath.Join(libRoot, name)
		m, err := manifest.Read(dir)
		if err != nil {
			return err
		}
		if m == nil {
			u.Env.Log.Warn("not installed globally", "name", name)
			continue
		}
		if err := linker.Unlink(u.Env.GlobalBinRoot(), linker.Names(m.Bin)); err != nil {
			return err
		}
		if err := removeAll(dir); err != nil {
			return err
		}
		u.Env.Log.Info("uninstalled globally", "name", name)
	}
	return nil
}

func (u *Uninstaller) uninstallLocal(rootDir string, names []string, production bool) error {
	m, err := manifest.Read(rootDir)
	if err != nil {
		return err
	}
	if m == nil {
		return &core.ManifestMissingError{StartDir: rootDir}
	}

	manifest.RemoveDeps(m, names)
	if err := manifest.Write(rootDir, m); err != nil {
		return err
	}

	reached, err := u.reachableSites(rootDir, production)
	if err != nil {
		return err
	}

	nm := filepath.Join(rootDir, "node_modules")
	binDir := filepath.Join(nm, ".bin")

	installed, err := readPackageNames(nm)
	if err != nil {
		return err
	}
	for _, name := range installed {
		dir := filepath.Join(nm, name)
		if reached[dir] {
			continue
		}
		im, err := manifest.Read(dir)
		if err != nil {
			return err
		}
		if im != nil {
			if err := linker.Unlink(binDir, linker.Names(im.Bin)); err != nil {
				return err
			}
		}
		if err := removeAll(dir); err != nil {
			return err
		}
		u.Env.Log.Info("removed unreachable dependency", "name", name)
	}
	return nil
}

// frame is one package under reachability analysis, carrying the
// ancestor chain its dependency lookups climb (its own directory first,
// the root last) so that hoisted installs are found wherever they
// actually landed.
type frame struct {
	dir   string
	chain []string
}

// reachableSites walks the dependency relation from the root manifest
// outward, returning the set of install-site paths some reachable
// package still requires. The walk is iterative with an explicit visited
// set, so a dependency cycle among installed packages terminates instead
// of recursing forever.
func (u *Uninstaller) reachableSites(rootDir string, production bool) (map[string]bool, error) {
	reached := make(map[string]bool)
	visited := map[string]bool{rootDir: true}
	queue := []frame{{dir: rootDir, chain: []string{rootDir}}}

	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		m, err := manifest.Read(f.dir)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}

		// Installed copies were installed production-only; dev
		// dependencies count only at the root.
		prod := production
		if f.dir != rootDir {
			prod = true
		}
		names, deps, err := manifest.MergedDependencies(m, prod)
		if err != nil {
			return nil, err
		}

		for _, name := range names {
			rr, err := sourceurl.Resolve(m.Remotes, name, deps[name], u.templateBase(f.dir), false)
			if err != nil {
				return nil, err
			}
			site, siteChain := findSite(f.chain, name, rr)
			if site == "" {
				continue
			}
			reached[site] = true
			if !visited[site] {
				visited[site] = true
				queue = append(queue, frame{dir: site, chain: siteChain})
			}
		}
	}
	return reached, nil
}

// findSite climbs the declaring package's ancestor chain looking for the
// install site that satisfies rr: a hoisted dependency may live at any
// enclosing package root, not just next to its declarer.
func findSite(chain []string, name string, rr core.ResolvedRemote) (string, []string) {
	for i, root := range chain {
		site := filepath.Join(root, "node_modules", name)
		m, err := manifest.Read(site)
		if err != nil || m == nil {
			continue
		}
		if !matches(m, rr) {
			continue
		}
		siteChain := append([]string{site}, chain[i:]...)
		return site, siteChain
	}
	return "", nil
}

// matches reports whether an installed copy satisfies a declared source:
// by branch identity when the source pins a branch (or commit SHA), by
// range satisfaction otherwise.
func matches(installed *core.Manifest, rr core.ResolvedRemote) bool {
	if rr.Branch != "" {
		return installed.Branch == rr.Branch
	}
	if rr.VersionRange != "" {
		v := semver.Parse("v" + strings.TrimPrefix(installed.Version, "v"))
		return semver.Satisfies(v, rr.VersionRange)
	}
	return false
}

func (u *Uninstaller) templateBase(pkgDir string) string {
	if u.Env.BaseDir != "" {
		return u.Env.BaseDir
	}
	return pkgDir
}

// readPackageNames lists the non-dotfile entries of a node_modules
// directory, treating a missing directory as empty.
func readPackageNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &core.IoError{Op: "readdir", Path: dir, Err: err}
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func removeAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return &core.IoError{Op: "remove", Path: path, Err: err}
	}
	return nil
}
