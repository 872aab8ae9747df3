// Package placement implements the Placement Planner: given a dependency
// request and the ancestor chain of already-installed package roots,
// decides whether an existing install site already satisfies the request
// and, failing that, the shallowest ancestor with a free slot.
package placement

import (
	"path/filepath"
	"strings"

	"github.com/git-pkgs/gpk/internal/core"
	"github.com/git-pkgs/gpk/internal/manifest"
	"github.com/git-pkgs/gpk/internal/semver"
)

// Request describes what the caller wants placed: exactly one of Commit
// (a branch pin) or Range (a version range) is set.
type Request struct {
	Name   string
	Range  string
	Commit string
}

func (r Request) satisfiedBy(m *core.Manifest) bool {
	if r.Commit != "" {
		return m.Commit == r.Commit
	}
	return semver.Satisfies(semver.Parse("v"+strings.TrimPrefix(m.Version, "v")), r.Range)
}

// Decision is the outcome of planning a placement.
type Decision struct {
	NoAction  bool   // an existing site already satisfies the request
	Dst       string // the chosen destination, when NoAction is false
	Container string // the ancestor root Dst lives under
}

// Plan chooses where a dependency lands. ancestorChain is ordered
// current-frame first, root last. In global mode (global=true) the chain
// must contain exactly the single global library root, and any conflict
// is fatal (there is no shallower fallback to search).
func Plan(req Request, bundlePath string, ancestorChain []string, global bool) (Decision, error) {
	if bundlePath != "" {
		if existing, ok := classify(bundlePath, req); existing && ok {
			return Decision{NoAction: true}, nil
		}
	}

	for _, root := range ancestorChain {
		dst := filepath.Join(root, "node_modules", req.Name)
		existing, ok := classify(dst, req)
		switch {
		case existing && ok:
			return Decision{NoAction: true}, nil
		case existing && !ok:
			if global {
				return Decision{}, &core.PlacementConflictError{Name: req.Name, Path: dst}
			}
			continue
		default: // !existing: absent, free slot
			return Decision{Dst: dst, Container: root}, nil
		}
	}

	return Decision{}, &core.PlacementConflictError{Name: req.Name, Path: filepath.Join(ancestorChain[len(ancestorChain)-1], "node_modules", req.Name)}
}

// classify reads the manifest (if any) at path and classifies it against
// req, three ways: (existing=false, ok=false) when no manifest is
// present, (existing=true, ok=true) when it is compatible,
// (existing=true, ok=false) on a version/commit conflict.
func classify(path string, req Request) (existing bool, ok bool) {
	m, err := manifest.Read(path)
	if err != nil || m == nil {
		return false, false
	}
	return true, req.satisfiedBy(m)
}
