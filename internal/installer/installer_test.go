package installer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/git-pkgs/gpk/internal/cache"
	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/env"
	"github.com/git-pkgs/gpk/internal/manifest"
)

// fakeGit serves canned tag views and head commits so installs run
// against prepared on-disk "repos" with no git binary or network.
type fakeGit struct {
	mu       sync.Mutex
	tags     map[string]map[string]core.TagInfo // git url -> tag view
	branches map[string]core.BranchView
	heads    map[string]string // entry dir -> commit oid

	tagCalls    int
	branchCalls int
}

func (f *fakeGit) ListTags(_ context.Context, gitURL string) (map[string]core.TagInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tagCalls++
	return f.tags[gitURL], nil
}

func (f *fakeGit) ListBranches(_ context.Context, gitURL string) (core.BranchView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branchCalls++
	return f.branches[gitURL], nil
}

func (f *fakeGit) HeadCommit(_ context.Context, dst string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heads[dst], nil
}

// fakeCache hands back pre-populated entry directories keyed by git url.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string // git url -> entry dir
	fetches int
}

func (f *fakeCache) FetchVerified(_ context.Context, gitURL string, _ string, _ cache.Ref) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.entries[gitURL], nil
}

func testEnv(t *testing.T) *env.Environment {
	t.Helper()
	e, err := env.New(env.Config{
		Home:         t.TempDir(),
		GlobalPrefix: t.TempDir(),
		Stderr:       io.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// makeRepo prepares one fake repo worktree and registers its tag view,
// cache entry and head commit under url.
func makeRepo(t *testing.T, fg *fakeGit, fc *fakeCache, url, name, version, commit string, deps map[string]string) {
	t.Helper()
	dir := t.TempDir()
	m := &core.Manifest{Name: name, Version: version, Dependencies: deps}
	if err := manifest.Write(dir, m); err != nil {
		t.Fatal(err)
	}
	fg.tags[url] = map[string]core.TagInfo{
		"v" + version: {Name: "v" + version, CommitOID: commit},
	}
	fc.entries[url] = dir
	fg.heads[dir] = commit
}

func newFakes() (*fakeGit, *fakeCache) {
	fg := &fakeGit{
		tags:     make(map[string]map[string]core.TagInfo),
		branches: make(map[string]core.BranchView),
		heads:    make(map[string]string),
	}
	fc := &fakeCache{entries: make(map[string]string)}
	return fg, fc
}

// The unflat scenario: root a depends on c; c depends on d and e; both d
// and e depend on f with overlapping ranges. f must end up exactly once,
// at a/node_modules/c/node_modules/f.
func TestInstallHoistsSharedGrandchild(t *testing.T) {
	fg, fc := newFakes()
	makeRepo(t, fg, fc, "https://host/org/c.git", "c", "1.0.0", "c-commit", map[string]string{
		"d": "git+https://host/org/d.git#semver:^1.0.0",
		"e": "git+https://host/org/e.git#semver:^1.0.0",
	})
	makeRepo(t, fg, fc, "https://host/org/d.git", "d", "1.0.0", "d-commit", map[string]string{
		"f": "git+https://host/org/f.git#semver:^1.0.0",
	})
	makeRepo(t, fg, fc, "https://host/org/e.git", "e", "1.0.0", "e-commit", map[string]string{
		"f": "git+https://host/org/f.git#semver:~1.2.0",
	})
	makeRepo(t, fg, fc, "https://host/org/f.git", "f", "1.2.3", "f-commit", nil)

	root := t.TempDir()
	if err := manifest.Write(root, &core.Manifest{
		Name:    "a",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"c": "git+https://host/org/c.git#semver:^1.0.0",
		},
	}); err != nil {
		t.Fatal(err)
	}

	ins := &Installer{Git: fg, Cache: fc, Env: testEnv(t)}
	if err := ins.Install(context.Background(), root, nil, Options{}); err != nil {
		t.Fatal(err)
	}

	cDir := filepath.Join(root, "node_modules", "c")
	fDir := filepath.Join(cDir, "node_modules", "f")
	if _, err := os.Stat(fDir); err != nil {
		t.Fatalf("f must be hoisted to %s: %v", fDir, err)
	}
	for _, stale := range []string{
		filepath.Join(cDir, "node_modules", "d", "node_modules", "f"),
		filepath.Join(cDir, "node_modules", "e", "node_modules", "f"),
	} {
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("f must not remain at %s", stale)
		}
	}

	// Injected metadata round-trips the head commit of the cache entry.
	fm, err := manifest.Read(fDir)
	if err != nil {
		t.Fatal(err)
	}
	if fm.Commit != "f-commit" {
		t.Errorf("_commit = %q, want f-commit", fm.Commit)
	}
	if fm.Resolved != "git+https://host/org/f.git#f-commit" {
		t.Errorf("_resolved = %q", fm.Resolved)
	}
}

// Running install twice in a row is a no-op on the second run: no remote
// listings, no fetches, no copies.
func TestInstallIdempotent(t *testing.T) {
	fg, fc := newFakes()
	makeRepo(t, fg, fc, "https://host/org/c.git", "c", "1.0.0", "c-commit", map[string]string{
		"d": "git+https://host/org/d.git#semver:^1.0.0",
	})
	makeRepo(t, fg, fc, "https://host/org/d.git", "d", "1.0.0", "d-commit", nil)

	root := t.TempDir()
	if err := manifest.Write(root, &core.Manifest{
		Name:    "a",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"c": "git+https://host/org/c.git#semver:^1.0.0",
		},
	}); err != nil {
		t.Fatal(err)
	}

	ins := &Installer{Git: fg, Cache: fc, Env: testEnv(t)}
	if err := ins.Install(context.Background(), root, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if fc.fetches == 0 {
		t.Fatal("first run must fetch")
	}

	fg.tagCalls, fg.branchCalls, fc.fetches = 0, 0, 0
	if err := ins.Install(context.Background(), root, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if fg.tagCalls != 0 || fg.branchCalls != 0 || fc.fetches != 0 {
		t.Errorf("second run must be a no-op, got tags=%d branches=%d fetches=%d",
			fg.tagCalls, fg.branchCalls, fc.fetches)
	}
}

func TestInstallBareVersionErrors(t *testing.T) {
	fg, fc := newFakes()
	root := t.TempDir()
	if err := manifest.Write(root, &core.Manifest{
		Name:         "a",
		Version:      "1.0.0",
		Dependencies: map[string]string{"legacy": "^1.0.0"},
	}); err != nil {
		t.Fatal(err)
	}

	ins := &Installer{Git: fg, Cache: fc, Env: testEnv(t)}
	err := ins.Install(context.Background(), root, nil, Options{})
	if !errors.Is(err, core.ErrRemoteMissing) {
		t.Fatalf("expected RemoteMissingError, got %v", err)
	}
}

func TestInstallBranchPinSkipsListingForSHA(t *testing.T) {
	fg, fc := newFakes()
	sha := "0123456789abcdef0123456789abcdef01234567"

	dir := t.TempDir()
	if err := manifest.Write(dir, &core.Manifest{Name: "pinned", Version: "0.1.0"}); err != nil {
		t.Fatal(err)
	}
	fc.entries["https://host/org/pinned.git"] = dir
	fg.heads[dir] = sha

	root := t.TempDir()
	if err := manifest.Write(root, &core.Manifest{
		Name:    "a",
		Version: "1.0.0",
		Dependencies: map[string]string{
			"pinned": "git+https://host/org/pinned.git#" + sha,
		},
	}); err != nil {
		t.Fatal(err)
	}

	ins := &Installer{Git: fg, Cache: fc, Env: testEnv(t)}
	if err := ins.Install(context.Background(), root, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if fg.branchCalls != 0 {
		t.Errorf("a 40-hex fragment must never trigger branch listing, got %d calls", fg.branchCalls)
	}

	m, err := manifest.Read(filepath.Join(root, "node_modules", "pinned"))
	if err != nil {
		t.Fatal(err)
	}
	if m.Branch != sha {
		t.Errorf("_branch = %q, want the pinned sha", m.Branch)
	}
}
