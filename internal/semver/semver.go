// Package semver implements the Version Range Evaluator: parsing of
// "v"-prefixed Git tags as semantic versions, range satisfaction, and
// ordering of tag lists by semver precedence with a deterministic
// tie-break for equal-precedence tags.
//
// The heavy lifting — constraint grammar (^, ~, >=, <, =, hyphen ranges,
// || unions, x/* wildcards) and version comparison — is delegated to
// github.com/Masterminds/semver/v3, whose Constraints type already
// implements that exact grammar. This package adds only what Masterminds
// does not: leading-"v" bookkeeping, invalid-tag-sorts-lowest ordering,
// and a lexicographic tie-break for tags of identical precedence.
package semver

import (
	"sort"
	"strings"

	mastersemver "github.com/Masterminds/semver/v3"
)

// Version wraps a parsed semantic version together with the original tag
// name it was parsed from, since callers need both the precedence and
// the on-disk tag string.
type Version struct {
	Tag string // original tag name, e.g. "v1.2.3"
	sv  *mastersemver.Version
}

// Valid reports whether the tag parsed as a semantic version at all.
func (v Version) Valid() bool { return v.sv != nil }

// String returns the stripped version string (no leading "v").
func (v Version) String() string {
	if v.sv == nil {
		return v.Tag
	}
	return v.sv.String()
}

// Parse strips an optional leading "v" from tag and parses the remainder
// as a semantic version. An invalid tag is not an error: it is returned
// with Valid() == false so callers (SortTags, MatchTag) can treat it as
// lower-precedence than every valid tag.
func Parse(tag string) Version {
	stripped := strings.TrimPrefix(tag, "v")
	sv, err := mastersemver.NewVersion(stripped)
	if err != nil {
		return Version{Tag: tag}
	}
	return Version{Tag: tag, sv: sv}
}

// IsVersionTag reports whether tag matches the "^v<semver>" shape the
// Remote Tag View uses to decide which tags are version-bearing at all.
func IsVersionTag(tag string) bool {
	if !strings.HasPrefix(tag, "v") {
		return false
	}
	return Parse(tag).Valid()
}

// Satisfies reports whether v satisfies the range expression r, using
// Masterminds' constraint grammar. An invalid version never satisfies
// any range.
func Satisfies(v Version, r string) bool {
	if !v.Valid() {
		return false
	}
	constraints, err := mastersemver.NewConstraint(r)
	if err != nil {
		return false
	}
	return constraints.Check(v.sv)
}

// Less reports whether a sorts before b under ascending semver
// precedence, with invalid versions sorting lower than every valid one
// and, for equal precedence, the lexicographically lower tag name
// sorting first (so the later, higher-named tag wins descending ties).
func Less(a, b Version) bool {
	switch {
	case !a.Valid() && !b.Valid():
		return a.Tag < b.Tag
	case !a.Valid():
		return true
	case !b.Valid():
		return false
	}
	switch a.sv.Compare(b.sv) {
	case -1:
		return true
	case 1:
		return false
	default:
		return a.Tag < b.Tag
	}
}

// SortTags orders tags by semver precedence, descending by default.
// Invalid tags sort lower than any valid tag. Ties (identical precedence)
// are broken by the lexicographically higher tag name winning, i.e.
// appearing first when descending.
func SortTags(tags []string, descending bool) []string {
	parsed := make([]Version, len(tags))
	for i, t := range tags {
		parsed[i] = Parse(t)
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		if descending {
			return Less(parsed[j], parsed[i])
		}
		return Less(parsed[i], parsed[j])
	})
	out := make([]string, len(parsed))
	for i, v := range parsed {
		out[i] = v.Tag
	}
	return out
}

// MatchTag returns the highest-precedence tag in tags whose parsed
// version satisfies r, or "" if none match. Ties in precedence are
// broken by lexicographically higher tag name, matching SortTags.
func MatchTag(tags []string, r string) string {
	descending := SortTags(tags, true)
	for _, t := range descending {
		v := Parse(t)
		if Satisfies(v, r) {
			return t
		}
	}
	return ""
}

// HighestNonPrerelease returns the highest-precedence tag among tags that
// carries no prerelease component, or "" if tags is empty or every entry
// is invalid. Used by repo discovery when no range and no branch were
// supplied.
func HighestNonPrerelease(tags []string) string {
	descending := SortTags(tags, true)
	for _, t := range descending {
		v := Parse(t)
		if v.Valid() && v.sv.Prerelease() == "" {
			return t
		}
	}
	return ""
}

// HighestNonPrereleaseSatisfying returns the highest-precedence
// non-prerelease tag satisfying r, or "" if none match.
func HighestNonPrereleaseSatisfying(tags []string, r string) string {
	descending := SortTags(tags, true)
	for _, t := range descending {
		v := Parse(t)
		if v.Valid() && v.sv.Prerelease() == "" && Satisfies(v, r) {
			return t
		}
	}
	return ""
}
