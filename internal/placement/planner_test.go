package placement

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/manifest"
)

func writePkg(t *testing.T, dir string, m *core.Manifest) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := manifest.Write(dir, m); err != nil {
		t.Fatal(err)
	}
}

func TestPlanPicksShallowestFreeSlot(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "node_modules", "mid")
	writePkg(t, root, &core.Manifest{Name: "app", Version: "1.0.0"})
	writePkg(t, child, &core.Manifest{Name: "mid", Version: "1.0.0"})

	// Chain is current frame first, root last; both slots for "dep" are
	// free, so the first ancestor examined wins.
	chain := []string{child, root}
	d, err := Plan(Request{Name: "dep", Range: "^1.0.0"}, "", chain, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.NoAction {
		t.Fatal("expected a placement, got no action")
	}
	if d.Container != child {
		t.Errorf("Container = %q, want %q", d.Container, child)
	}
	if d.Dst != filepath.Join(child, "node_modules", "dep") {
		t.Errorf("Dst = %q", d.Dst)
	}
}

func TestPlanNoActionWhenCompatibleExists(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "node_modules", "mid")
	writePkg(t, root, &core.Manifest{Name: "app", Version: "1.0.0"})
	writePkg(t, child, &core.Manifest{Name: "mid", Version: "1.0.0"})
	writePkg(t, filepath.Join(root, "node_modules", "dep"), &core.Manifest{Name: "dep", Version: "1.4.0"})

	d, err := Plan(Request{Name: "dep", Range: "^1.0.0"}, "", []string{child, root}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.NoAction {
		t.Error("an existing compatible install at the root must satisfy the request")
	}
}

func TestPlanSkipsConflictAndContinues(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "node_modules", "mid")
	writePkg(t, root, &core.Manifest{Name: "app", Version: "1.0.0"})
	writePkg(t, child, &core.Manifest{Name: "mid", Version: "1.0.0"})
	// The child already holds an incompatible major of dep.
	writePkg(t, filepath.Join(child, "node_modules", "dep"), &core.Manifest{Name: "dep", Version: "2.0.0"})

	d, err := Plan(Request{Name: "dep", Range: "^1.0.0"}, "", []string{child, root}, false)
	if err != nil {
		t.Fatal(err)
	}
	if d.NoAction {
		t.Fatal("expected a placement")
	}
	if d.Container != root {
		t.Errorf("conflict at the child must fall through to the root, got %q", d.Container)
	}
}

func TestPlanConflictEverywhere(t *testing.T) {
	root := t.TempDir()
	writePkg(t, root, &core.Manifest{Name: "app", Version: "1.0.0"})
	writePkg(t, filepath.Join(root, "node_modules", "dep"), &core.Manifest{Name: "dep", Version: "2.0.0"})

	_, err := Plan(Request{Name: "dep", Range: "^1.0.0"}, "", []string{root}, false)
	if !errors.Is(err, core.ErrPlacementConflict) {
		t.Errorf("expected placement conflict, got %v", err)
	}
}

func TestPlanCommitPin(t *testing.T) {
	root := t.TempDir()
	writePkg(t, filepath.Join(root, "node_modules", "dep"), &core.Manifest{Name: "dep", Version: "1.0.0", Commit: "aaaa"})

	d, err := Plan(Request{Name: "dep", Commit: "aaaa"}, "", []string{root}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.NoAction {
		t.Error("matching commit pin must be no action")
	}

	_, err = Plan(Request{Name: "dep", Commit: "bbbb"}, "", []string{root}, true)
	if !errors.Is(err, core.ErrPlacementConflict) {
		t.Errorf("global-mode commit mismatch must be fatal, got %v", err)
	}
}

func TestPlanBundleSatisfies(t *testing.T) {
	root := t.TempDir()
	frame := filepath.Join(root, "node_modules", "mid")
	bundle := filepath.Join(frame, "node_modules", "dep")
	writePkg(t, bundle, &core.Manifest{Name: "dep", Version: "1.2.0"})

	d, err := Plan(Request{Name: "dep", Range: "^1.0.0"}, bundle, []string{frame, root}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !d.NoAction {
		t.Error("a compatible bundled copy must satisfy the request")
	}
}
