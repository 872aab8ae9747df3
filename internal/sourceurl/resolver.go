// Package sourceurl implements the Source URL Resolver: it turns a
// dependency's Source String, together with the enclosing manifest's
// remotes table, into a canonical ResolvedRemote.
package sourceurl

import (
	"path"
	"regexp"
	"strings"

	"github.com/git-pkgs/gpk/internal/core"
)

// directPrefixes are the Git URL schemes a Source String may spell out
// directly. No source string can start with more than one of them, so
// their order does not affect which one matches.
var directPrefixes = []string{
	"git+https://",
	"git+ssh://",
	"git+file://",
	"git://",
}

// commitSHAPattern matches a 40-hex-character fragment, which is always
// treated as a commit SHA; no branch-name lookup is ever attempted for
// one.
var commitSHAPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// LooksLikeCommitSHA reports whether ref is a 40-hex-character string.
func LooksLikeCommitSHA(ref string) bool {
	return commitSHAPattern.MatchString(ref)
}

// Resolve turns a dependency's source string into a canonical
// ResolvedRemote, given the enclosing manifest's remotes table, the
// dependency name, the base directory relative git+file:// template
// paths resolve against, and whether this resolution is happening in
// global-install mode (which disables alias expansion).
func Resolve(remotes map[string]string, name, source, pkgDir string, global bool) (core.ResolvedRemote, error) {
	if rr, ok, err := resolveDirect(source); ok {
		return rr, err
	}

	if global {
		// Global mode disables alias expansion; anything that isn't a
		// direct git URL is either a bare version or unresolvable.
		return core.ResolvedRemote{VersionRange: source}, nil
	}

	alias, tail, hasColon := cutFirst(source, ':')
	if !hasColon {
		// Entire string is a bare, legacy version-only source.
		return core.ResolvedRemote{VersionRange: source}, nil
	}

	template, ok := remotes[alias]
	if !ok {
		return core.ResolvedRemote{}, &core.UnknownRemoteError{Alias: alias}
	}

	repo, fragment, _ := cutFirst(tail, '#')
	if repo == "" {
		repo = name
	}

	gitURL, err := composeURL(template, repo, pkgDir)
	if err != nil {
		return core.ResolvedRemote{}, err
	}

	rr := core.ResolvedRemote{GitURL: gitURL}
	applyFragment(&rr, fragment)
	return rr, nil
}

// resolveDirect handles a Source String that spells out a full Git URL
// with one of the direct prefixes.
func resolveDirect(source string) (core.ResolvedRemote, bool, error) {
	for _, prefix := range directPrefixes {
		if !strings.HasPrefix(source, prefix) {
			continue
		}
		rest := strings.TrimPrefix(source, prefix)
		urlPart, fragment, _ := cutFirst(rest, '#')

		scheme := strings.TrimSuffix(prefix, "://")
		scheme = strings.TrimPrefix(scheme, "git+")

		rr := core.ResolvedRemote{GitURL: scheme + "://" + urlPart}
		applyFragment(&rr, fragment)
		return rr, true, nil
	}
	return core.ResolvedRemote{}, false, nil
}

// applyFragment fills in VersionRange or Branch from a Source String
// fragment: "semver:<range>" yields VersionRange, any other non-empty
// fragment is a raw ref (branch name or commit SHA) yielding Branch.
func applyFragment(rr *core.ResolvedRemote, fragment string) {
	if fragment == "" {
		return
	}
	if r, ok := cutPrefix(fragment, "semver:"); ok {
		rr.VersionRange = r
		return
	}
	rr.Branch = fragment
}

// composeURL builds the final git URL for an alias-based Source String:
// a git+file:// template yields file://<base>/<repo>/.git, any other
// template yields <template>/<repo>.git.
func composeURL(template, repo, pkgDir string) (string, error) {
	if stripped, ok := cutPrefix(template, "git+file://"); ok {
		base := stripped
		if !path.IsAbs(base) {
			if pkgDir == "" {
				return "", &core.UnknownBaseError{Template: template}
			}
			base = path.Join(pkgDir, base)
		}
		return "file://" + path.Join(base, repo) + "/.git", nil
	}
	return strings.TrimRight(template, "/") + "/" + repo + ".git", nil
}

// cutFirst splits s on the first occurrence of sep, returning the parts
// either side and whether sep was found (mirrors strings.Cut for a byte
// separator).
func cutFirst(s string, sep byte) (before, after string, found bool) {
	if idx := strings.IndexByte(s, sep); idx >= 0 {
		return s[:idx], s[idx+1:], true
	}
	return s, "", false
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
