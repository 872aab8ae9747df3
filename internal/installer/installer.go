// Package installer implements the Resolver / Installer: the depth-first
// traversal that resolves a package's declared dependencies, plans where
// each lands, fetches and verifies it through the cache, copies it into
// place, injects resolution metadata, and recurses.
package installer

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/git-pkgs/gpk/internal/buildhook"
	"github.com/git-pkgs/gpk/internal/cache"
	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/env"
	"github.com/git-pkgs/gpk/internal/filter"
	"github.com/git-pkgs/gpk/internal/linker"
	"github.com/git-pkgs/gpk/internal/manifest"
	"github.com/git-pkgs/gpk/internal/placement"
	"github.com/git-pkgs/gpk/internal/semver"
	"github.com/git-pkgs/gpk/internal/sourceurl"
	"github.com/git-pkgs/gpk/internal/treecopy"
)

// defaultConcurrency bounds the fan-out of independent fetch/copy/inject
// work within one dependency round.
const defaultConcurrency = 8

// Git is the subset of the Git Adapter the installer drives directly
// (the cache drives CloneRef/VerifyTag/VerifyCommit on its own).
type Git interface {
	ListTags(ctx context.Context, gitURL string) (map[string]core.TagInfo, error)
	ListBranches(ctx context.Context, gitURL string) (core.BranchView, error)
	HeadCommit(ctx context.Context, dst string) (string, error)
}

// Cache is the subset of the Verified Cache the installer needs.
type Cache interface {
	FetchVerified(ctx context.Context, gitURL string, oid string, ref cache.Ref) (string, error)
}

// Options are the per-call install flags.
type Options struct {
	Global     bool
	Production bool
}

// Installer is the Resolver / Installer. The zero value is not usable;
// populate Git, Cache and Env at minimum.
type Installer struct {
	Git   Git
	Cache Cache
	Env   *env.Environment
	Build buildhook.Invoker

	// Runtime and AddonBuildScript configure the native build delegate
	// invocation: `<Runtime> <AddonBuildScript> rebuild`.
	Runtime          string
	AddonBuildScript string

	// Concurrency bounds the per-round fan-out; defaults to
	// defaultConcurrency.
	Concurrency int
}

func (ins *Installer) concurrency() int {
	if ins.Concurrency > 0 {
		return ins.Concurrency
	}
	return defaultConcurrency
}

// templateBase returns the directory relative git+file:// remote
// templates resolve against: the configured base directory when one is
// set (GPK_BASE_DIR), else the enclosing package's own directory.
func (ins *Installer) templateBase(pkgDir string) string {
	if ins.Env.BaseDir != "" {
		return ins.Env.BaseDir
	}
	return pkgDir
}

// Install resolves and installs the root package's dependency tree,
// merging any extra CLI sources into the root manifest first. In global
// mode each source is instead installed standalone under the global
// library root.
func (ins *Installer) Install(ctx context.Context, rootDir string, sources []string, opts Options) error {
	if opts.Global {
		for _, src := range sources {
			if err := ins.installGlobalSource(ctx, src); err != nil {
				return err
			}
		}
		return nil
	}

	m, err := manifest.Read(rootDir)
	if err != nil {
		return err
	}
	if m == nil {
		return &core.ManifestMissingError{StartDir: rootDir}
	}

	if len(sources) > 0 {
		added := make(map[string]string, len(sources))
		for _, src := range sources {
			gitURL, versionRange, branch, derr := parseDirectSource(src)
			if derr != nil {
				return derr
			}
			name, spec, derr := ins.DiscoverRepo(ctx, gitURL, versionRange, branch)
			if derr != nil {
				return derr
			}
			added[name] = spec
		}
		manifest.AddDeps(m, added)
		if err := manifest.Write(rootDir, m); err != nil {
			return err
		}
	}

	if err := ins.installFrame(ctx, rootDir, []string{rootDir}, opts.Production); err != nil {
		return err
	}

	if len(m.Bin) > 0 {
		if err := linker.Link(filepath.Join(rootDir, "node_modules", ".bin"), rootDir, m.Bin); err != nil {
			return err
		}
	}
	return nil
}

// DiscoverRepo resolves a bare Git target (with an optional range or
// branch) to the canonical package name and a source string suitable
// for recording in the root manifest's dependency map. Unlike a
// declared-dependency install, discovery prefers the highest
// non-prerelease tag.
func (ins *Installer) DiscoverRepo(ctx context.Context, gitURL, versionRange, branch string) (name, sourceSpec string, err error) {
	_, _, m, err := ins.fetchEntry(ctx, gitURL, versionRange, branch, "", true)
	if err != nil {
		return "", "", err
	}
	if m == nil {
		return "", "", &core.ManifestMissingError{StartDir: gitURL}
	}

	spec := "git+" + gitURL
	switch {
	case versionRange != "":
		spec += "#semver:" + versionRange
	case branch != "":
		spec += "#" + branch
	}
	return m.Name, spec, nil
}

// decidedDep is one dependency that survived placement with a concrete
// slot to fill (i.e. Plan did not return "no action").
type decidedDep struct {
	name, source string
	remote       core.ResolvedRemote
	decision     placement.Decision
	knownCommit  string // resolved eagerly for a non-SHA branch ref
}

// installFrame runs one install round over frameDir's own merged
// dependency map: placement decisions are made sequentially in
// lexicographic order against the placement context as it stood at the
// start of the round (siblings never observe each other's install sites
// mid-round), then the fetch/copy/inject/recurse work for every
// non-"no action" dependency is fanned out with bounded concurrency.
func (ins *Installer) installFrame(ctx context.Context, frameDir string, chain []string, production bool) error {
	m, err := manifest.Read(frameDir)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}

	names, deps, err := manifest.MergedDependencies(m, production)
	if err != nil {
		return err
	}

	var work []decidedDep
	for _, name := range names {
		source := deps[name]

		remote, err := sourceurl.Resolve(m.Remotes, name, source, ins.templateBase(frameDir), false)
		if err != nil {
			return err
		}

		req := placement.Request{Name: name, Range: remote.VersionRange}
		var knownCommit string
		if remote.Branch != "" {
			if sourceurl.LooksLikeCommitSHA(remote.Branch) {
				req = placement.Request{Name: name, Commit: remote.Branch}
				knownCommit = remote.Branch
			} else {
				bv, err := ins.Git.ListBranches(ctx, remote.GitURL)
				if err != nil {
					return err
				}
				commit, ok := bv.Branches[remote.Branch]
				if !ok {
					return &core.UnknownRefError{GitURL: remote.GitURL, Branch: remote.Branch}
				}
				req = placement.Request{Name: name, Commit: commit}
				knownCommit = commit
			}
		}

		bundlePath := filepath.Join(frameDir, "node_modules", name)
		decision, err := placement.Plan(req, bundlePath, chain, false)
		if err != nil {
			return err
		}

		if decision.NoAction {
			ins.Env.Log.Debug("dependency already satisfied", "name", name)
			continue
		}
		if remote.IsBareVersion() {
			return &core.RemoteMissingError{Name: name}
		}

		work = append(work, decidedDep{name: name, source: source, remote: remote, decision: decision, knownCommit: knownCommit})
	}

	if len(work) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(ins.concurrency())
		for _, w := range work {
			w := w
			g.Go(func() error {
				return ins.installChild(gctx, chain, w)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	return ins.finishFrame(ctx, frameDir)
}

// installChild fetches, verifies, copies and injects metadata for one
// decided dependency, links its executables, then recurses into its own
// dependency list with an extended ancestor chain.
func (ins *Installer) installChild(ctx context.Context, chain []string, w decidedDep) error {
	entryDir, commit, _, err := ins.fetchEntry(ctx, w.remote.GitURL, w.remote.VersionRange, w.remote.Branch, w.knownCommit, false)
	if err != nil {
		return err
	}

	if err := ins.copyAndInject(entryDir, w.decision.Dst, w.source, w.remote.GitURL, commit, w.remote.Branch); err != nil {
		return err
	}
	ins.Env.Log.Info("installed dependency", "name", w.name, "source", w.source, "commit", commit, "path", w.decision.Dst)

	childManifest, err := manifest.Read(w.decision.Dst)
	if err != nil {
		return err
	}
	if childManifest != nil && len(childManifest.Bin) > 0 {
		binDir := filepath.Join(w.decision.Container, "node_modules", ".bin")
		if err := linker.Link(binDir, w.decision.Dst, childManifest.Bin); err != nil {
			return err
		}
	}

	newChain := append([]string{w.decision.Dst}, chain...)
	return ins.installFrame(ctx, w.decision.Dst, newChain, true)
}

// finishFrame runs the hoisting pass and, if warranted, the native build
// delegate for frameDir, after its own dependency round has completed.
func (ins *Installer) finishFrame(ctx context.Context, frameDir string) error {
	if err := ins.hoistChildren(frameDir); err != nil {
		return err
	}
	if ins.Build != nil && buildhook.NeedsRebuild(frameDir) {
		if err := ins.Build.Rebuild(ctx, frameDir, ins.Runtime, ins.AddonBuildScript); err != nil {
			return err
		}
	}
	return nil
}

// hoistChildren implements the greedy hoisting pass: when two or more of
// frameDir's immediate children have installed an identical copy (same
// name, same resolved commit and version) of the same grandchild
// dependency, it is moved up into frameDir's own node_modules and the
// duplicated copies are removed. Because installFrame calls this only
// after a child's own subtree has fully finished installing, the pass
// composes bottom-up across the whole tree: by the time a package's own
// round finishes, any hoisting legal at a deeper level has already
// happened, and this round only considers what its direct children still
// hold duplicated between them.
func (ins *Installer) hoistChildren(frameDir string) error {
	nm := filepath.Join(frameDir, "node_modules")

	children, err := readPackageDirs(nm)
	if err != nil {
		return err
	}

	type occurrence struct {
		path string
		m    *core.Manifest
	}
	byName := make(map[string][]occurrence)

	for _, childDir := range children {
		grandNM := filepath.Join(childDir, "node_modules")
		grandchildren, err := readPackageDirs(grandNM)
		if err != nil {
			continue
		}
		for _, gPath := range grandchildren {
			gm, err := manifest.Read(gPath)
			if err != nil || gm == nil {
				continue
			}
			byName[filepath.Base(gPath)] = append(byName[filepath.Base(gPath)], occurrence{path: gPath, m: gm})
		}
	}

	for name, occs := range byName {
		if len(occs) < 2 {
			continue
		}

		identical := true
		for _, o := range occs[1:] {
			if o.m.Commit != occs[0].m.Commit || o.m.Version != occs[0].m.Version {
				identical = false
				break
			}
		}
		if !identical {
			continue
		}

		dst := filepath.Join(nm, name)
		existing, err := manifest.Read(dst)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Commit != occs[0].m.Commit {
				continue // frameDir already holds an incompatible copy; leave the duplicates where they are
			}
			for _, o := range occs {
				if err := removeAll(o.path); err != nil {
					return err
				}
			}
			continue
		}

		if err := moveDir(occs[0].path, dst); err != nil {
			return err
		}
		for _, o := range occs[1:] {
			if err := removeAll(o.path); err != nil {
				return err
			}
		}
		ins.Env.Log.Debug("hoisted dependency", "name", name, "to", frameDir)
	}

	return nil
}

func parseDirectSource(src string) (gitURL, versionRange, branch string, err error) {
	rr, err := sourceurl.Resolve(nil, "", src, "", false)
	if err != nil {
		return "", "", "", err
	}
	if rr.IsBareVersion() {
		return "", "", "", &core.RemoteMissingError{Name: src}
	}
	return rr.GitURL, rr.VersionRange, rr.Branch, nil
}

// resolveRef resolves a source to the ref to clone and the OID that
// addresses its cache entry: a branch ref is resolved to its tip commit
// (skipping list_branches entirely when the ref already looks like a
// 40-hex commit SHA), while a range is resolved to the highest tag
// satisfying it. In discovery mode prerelease tags are excluded, and an
// empty range selects the absolute highest non-prerelease tag.
func (ins *Installer) resolveRef(ctx context.Context, gitURL, versionRange, branch, knownCommit string, discovery bool) (cache.Ref, string, error) {
	if branch != "" {
		if sourceurl.LooksLikeCommitSHA(branch) {
			return cache.Ref{Branch: branch}, branch, nil
		}
		commit := knownCommit
		if commit == "" {
			bv, err := ins.Git.ListBranches(ctx, gitURL)
			if err != nil {
				return cache.Ref{}, "", err
			}
			c, ok := bv.Branches[branch]
			if !ok {
				return cache.Ref{}, "", &core.UnknownRefError{GitURL: gitURL, Branch: branch}
			}
			commit = c
		}
		return cache.Ref{Branch: branch}, commit, nil
	}

	tags, err := ins.Git.ListTags(ctx, gitURL)
	if err != nil {
		return cache.Ref{}, "", err
	}
	var tagName string
	switch {
	case discovery && versionRange == "":
		tagName = semver.HighestNonPrerelease(tagNames(tags))
	case discovery:
		tagName = semver.HighestNonPrereleaseSatisfying(tagNames(tags), versionRange)
	default:
		tagName = semver.MatchTag(tagNames(tags), versionRange)
	}
	if tagName == "" {
		return cache.Ref{}, "", &core.UnknownRefError{GitURL: gitURL, Range: versionRange}
	}
	info := tags[tagName]
	return cache.Ref{TagName: tagName, TagAnnotated: info.Annotated(), TagCommit: info.CommitOID}, info.CacheOID(), nil
}

// fetchEntry resolves ref/oid, ensures a Verified Cache Entry exists, and
// reads its HEAD commit and manifest.
func (ins *Installer) fetchEntry(ctx context.Context, gitURL, versionRange, branch, knownCommit string, discovery bool) (entryDir, commit string, m *core.Manifest, err error) {
	ref, oid, err := ins.resolveRef(ctx, gitURL, versionRange, branch, knownCommit, discovery)
	if err != nil {
		return "", "", nil, err
	}
	entryDir, err = ins.Cache.FetchVerified(ctx, gitURL, oid, ref)
	if err != nil {
		return "", "", nil, err
	}
	commit, err = ins.Git.HeadCommit(ctx, entryDir)
	if err != nil {
		return "", "", nil, err
	}
	m, err = manifest.Read(entryDir)
	if err != nil {
		return "", "", nil, err
	}
	return entryDir, commit, m, nil
}

// copyAndInject copies the cache entry into dst through the File Filter,
// then stamps it with resolution metadata.
func (ins *Installer) copyAndInject(entryDir, dst, from, gitURL, commit, branch string) error {
	srcManifest, err := manifest.Read(entryDir)
	if err != nil {
		return err
	}

	var files []string
	hasBundled := false
	bundledCheck := func(string) bool { return false }
	license := ""
	if srcManifest != nil {
		files = srcManifest.Files
		hasBundled = srcManifest.HasBundledDeps()
		bundledCheck = srcManifest.Bundled
		license = srcManifest.License
	}

	keep := filter.NewKeep(files, hasBundled)
	if err := treecopy.Copy(entryDir, dst, keep, bundledCheck); err != nil {
		return &core.IoError{Op: "copy", Path: dst, Err: err}
	}

	meta := manifest.InjectedMeta{From: from, GitURL: gitURL, Commit: commit, Branch: branch, License: license}
	return manifest.InjectMeta(dst, meta, func(s string) { ins.Env.Log.Warn(s) })
}

// installGlobalSource installs one CLI source standalone: it is fetched
// directly (there is no enclosing manifest to merge it into) and placed
// under the single global library root.
func (ins *Installer) installGlobalSource(ctx context.Context, src string) error {
	gitURL, versionRange, branch, err := parseDirectSource(src)
	if err != nil {
		return err
	}

	entryDir, commit, m, err := ins.fetchEntry(ctx, gitURL, versionRange, branch, "", true)
	if err != nil {
		return err
	}
	if m == nil {
		return &core.ManifestMissingError{StartDir: gitURL}
	}
	name := m.Name

	req := placement.Request{Name: name, Range: versionRange}
	if branch != "" {
		req = placement.Request{Name: name, Commit: commit}
	}

	globalParent := ins.Env.GlobalLibParent()
	decision, err := placement.Plan(req, "", []string{globalParent}, true)
	if err != nil {
		return err
	}
	if decision.NoAction {
		ins.Env.Log.Info("already installed globally", "name", name)
		return nil
	}

	if err := ins.copyAndInject(entryDir, decision.Dst, src, gitURL, commit, branch); err != nil {
		return err
	}
	ins.Env.Log.Info("installed globally", "name", name, "commit", commit, "path", decision.Dst)

	if len(m.Bin) > 0 {
		if err := linker.Link(ins.Env.GlobalBinRoot(), decision.Dst, m.Bin); err != nil {
			return err
		}
	}

	newChain := []string{decision.Dst, globalParent}
	return ins.installFrame(ctx, decision.Dst, newChain, true)
}

// tagNames returns the version-bearing tag names of a remote tag view;
// tags without the leading-v semver shape never participate in range
// matching.
func tagNames(tags map[string]core.TagInfo) []string {
	names := make([]string, 0, len(tags))
	for n := range tags {
		if semver.IsVersionTag(n) {
			names = append(names, n)
		}
	}
	return names
}

// readPackageDirs lists the non-dotfile immediate subdirectories of dir
// (a node_modules directory), returning their full paths.
func readPackageDirs(dir string) ([]string, error) {
	entries, err := readDirNames(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range entries {
		if strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}
