// Package filter implements the File Filter: the layered "files" keep
// list plus per-directory ignore-file rules, and the bundled-dependency
// classification that precedes both.
//
// Pattern matching throughout is matchBase-style: each pattern is
// applied to a candidate's base name with path/filepath.Match. No
// directory-anchor or "**" semantics.
package filter

import (
	"os"
	"path/filepath"
	"strings"
)

// neverIgnoreStems are the baseline entries that are always kept and
// that no user pattern can ignore, compared case-insensitively against
// a candidate's base name.
var neverIgnoreStems = []string{
	"readme", "readme.md", "readme.txt",
	"license", "license.md", "license.txt",
	"licence", "licence.md", "licence.txt",
	"changelog", "changelog.md", "changelog.txt",
	"package.json",
}

// neverIgnored reports whether name is in the never-ignore baseline.
func neverIgnored(name string) bool {
	lower := strings.ToLower(name)
	for _, stem := range neverIgnoreStems {
		if lower == stem {
			return true
		}
	}
	return false
}

// alwaysIgnore is the always-ignored baseline, which supersedes every
// user ignore pattern.
var alwaysIgnore = []string{
	"*.swp", "*.swo", "*~",
	".DS_Store",
	".git", ".hg", ".svn",
	"config.gypi",
	"CVS",
	"npm-debug.log",
	".gpkignore", ".yarnignore", ".npmignore", ".gitignore",
}

// ignoreFilePriority is the order in which a directory's ignore file is
// looked up; the first one present wins.
var ignoreFilePriority = []string{".gpkignore", ".yarnignore", ".npmignore", ".gitignore"}

// Pattern is one ignore/keep line: a glob plus whether it was inverted
// with a leading "!".
type Pattern struct {
	Glob    string
	Inverse bool
}

func parsePatterns(lines []string) []Pattern {
	var out []Pattern
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := Pattern{Glob: line}
		if strings.HasPrefix(line, "!") {
			p.Inverse = true
			p.Glob = line[1:]
		}
		// The bundled-dependency path owns node_modules/; a user ignore
		// pattern naming it is dropped rather than double-applied.
		if strings.TrimSuffix(p.Glob, "/") == "node_modules" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func matchPattern(p Pattern, name string) bool {
	ok, _ := filepath.Match(p.Glob, name)
	return ok
}

// Keep is the top-of-tree Keep layer, computed once at the root of a
// copy when the manifest declares "files".
type Keep struct {
	active   bool
	patterns []Pattern
}

// NewKeep builds the Keep layer for a manifest's files list and whether
// it has any bundled dependencies (which additionally keeps node_modules/
// at the top level). The never-ignore baseline is always part of the
// layer.
func NewKeep(files []string, hasBundledDeps bool) Keep {
	if len(files) == 0 {
		return Keep{}
	}
	lines := files
	if hasBundledDeps {
		lines = append(append([]string{}, files...), "node_modules")
	}

	var patterns []Pattern
	for _, l := range lines {
		p := Pattern{Glob: l}
		if strings.HasPrefix(l, "!") {
			p.Inverse = true
			p.Glob = l[1:]
		}
		patterns = append(patterns, p)
	}
	return Keep{active: true, patterns: patterns}
}

// Kept reports whether name (a top-level entry's base name) is kept by
// this layer. The never-ignore baseline is always kept; when the layer
// is inactive (no "files" declared), every top-level entry is kept by
// default — the ignore layer is still applied separately.
func (k Keep) Kept(name string) bool {
	if !k.active {
		return true
	}
	if neverIgnored(name) {
		return true
	}
	kept := false
	for _, p := range k.patterns {
		if matchPattern(p, name) {
			kept = !p.Inverse
		}
	}
	return kept
}

// Active reports whether a files list was declared at all.
func (k Keep) Active() bool { return k.active }

// Ignore is the per-directory Ignore layer, recomputed for every
// directory entered during the copy.
type Ignore struct {
	patterns []Pattern
}

// LoadIgnore reads the first existing ignore file in priority order
// inside dir and builds its Ignore layer.
func LoadIgnore(dir string) (Ignore, error) {
	for _, name := range ignoreFilePriority {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return Ignore{patterns: parsePatterns(strings.Split(string(data), "\n"))}, nil
		}
		if !os.IsNotExist(err) {
			return Ignore{}, err
		}
	}
	return Ignore{}, nil
}

// Ignored reports whether name (a base name within the directory this
// Ignore layer was loaded for) should be excluded from the copy. The
// always-ignore baseline is checked first and cannot be overridden by a
// user pattern; the never-ignore baseline supersedes every user pattern;
// a leading "!" in a user pattern re-includes a name a broader user
// pattern had excluded.
func (ig Ignore) Ignored(name string) bool {
	if ig.AlwaysIgnored(name) {
		return true
	}
	if neverIgnored(name) {
		return false
	}
	ignored := false
	for _, p := range ig.patterns {
		if matchPattern(p, name) {
			ignored = !p.Inverse
		}
	}
	return ignored
}

// AlwaysIgnored reports whether name is excluded by the always-ignore
// baseline alone, disregarding user patterns. The copier uses this for
// kept top-level entries, which only the baseline may exclude.
func (ig Ignore) AlwaysIgnored(name string) bool {
	return matchAny(alwaysIgnore, name)
}

// BundledSubtree classifies a node_modules/<dep> subtree: kept in full if
// dep is listed as a bundled dependency, otherwise ignored outright. This
// classification precedes user pattern evaluation entirely.
func BundledSubtree(bundled bool) bool {
	return bundled
}
