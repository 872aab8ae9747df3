// Package core holds the shared types and error kinds used across the
// engine's internal packages: the package manifest shape, resolved-source
// records, and the ten error kinds named by the resolver/installer
// contract.
package core

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks; the concrete types below wrap these.
var (
	ErrManifestMissing   = errors.New("manifest not found")
	ErrUnknownRemote     = errors.New("unknown remote alias")
	ErrUnknownBase       = errors.New("no base directory configured for relative file remote")
	ErrUnknownRef        = errors.New("no matching tag or branch")
	ErrRemoteMissing     = errors.New("source has no git remote")
	ErrVerificationFail  = errors.New("signature verification failed")
	ErrPlacementConflict = errors.New("placement conflict")
	ErrDuplicateDep      = errors.New("dependency declared in both dependencies and devDependencies")
)

// ManifestMissingError is raised when locate climbs to the filesystem
// root without finding a package manifest.
type ManifestMissingError struct {
	StartDir string
}

func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("no manifest found above %s", e.StartDir)
}

func (e *ManifestMissingError) Unwrap() error { return ErrManifestMissing }

// UnknownRemoteError is raised when a source string references a remote
// alias that is absent from the enclosing manifest's remotes table.
type UnknownRemoteError struct {
	Alias string
}

func (e *UnknownRemoteError) Error() string {
	return fmt.Sprintf("unknown remote alias %q", e.Alias)
}

func (e *UnknownRemoteError) Unwrap() error { return ErrUnknownRemote }

// UnknownBaseError is raised when a relative git+file:// remote template
// is used with no base directory configured.
type UnknownBaseError struct {
	Template string
}

func (e *UnknownBaseError) Error() string {
	return fmt.Sprintf("remote template %q is a relative git+file:// path but no base directory is configured", e.Template)
}

func (e *UnknownBaseError) Unwrap() error { return ErrUnknownBase }

// UnknownRefError is raised when no tag in the remote view satisfies a
// version range, or a named branch is absent from the remote.
type UnknownRefError struct {
	GitURL string
	Range  string
	Branch string
}

func (e *UnknownRefError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("branch %q not found at %s", e.Branch, e.GitURL)
	}
	return fmt.Sprintf("no tag satisfying %q found at %s", e.Range, e.GitURL)
}

func (e *UnknownRefError) Unwrap() error { return ErrUnknownRef }

// RemoteMissingError is raised when a source resolves to no git_url at
// install time (a bare legacy version-only source).
type RemoteMissingError struct {
	Name string
}

func (e *RemoteMissingError) Error() string {
	return fmt.Sprintf("%s: source is a bare version with no git remote", e.Name)
}

func (e *RemoteMissingError) Unwrap() error { return ErrRemoteMissing }

// VerificationFailureError is raised when git verify-tag/verify-commit
// exits non-zero. Always fatal; never recovered.
type VerificationFailureError struct {
	Ref    string
	Stderr string
}

func (e *VerificationFailureError) Error() string {
	return fmt.Sprintf("signature verification failed for %s: %s", e.Ref, e.Stderr)
}

func (e *VerificationFailureError) Unwrap() error { return ErrVerificationFail }

// PlacementConflictError is raised when an ancestor chain contains only
// incompatible installations of a dependency, with no free slot.
type PlacementConflictError struct {
	Name string
	Path string
}

func (e *PlacementConflictError) Error() string {
	return fmt.Sprintf("cannot place %s: %s is occupied by an incompatible version and no ancestor has a free slot", e.Name, e.Path)
}

func (e *PlacementConflictError) Unwrap() error { return ErrPlacementConflict }

// DuplicateDependencyError is raised when a name appears in both
// dependencies and devDependencies.
type DuplicateDependencyError struct {
	Name string
}

func (e *DuplicateDependencyError) Error() string {
	return fmt.Sprintf("%s: declared in both dependencies and devDependencies", e.Name)
}

func (e *DuplicateDependencyError) Unwrap() error { return ErrDuplicateDep }

// GitError wraps a failed git subprocess invocation other than a
// signature-verification failure.
type GitError struct {
	Stage  string
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s failed: %s", e.Stage, e.Stderr)
}

func (e *GitError) Unwrap() error { return e.Err }

// IoError wraps a filesystem failure other than "not found", which the
// core handles locally as an absence rather than an error.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
