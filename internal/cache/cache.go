// Package cache implements the Verified Cache: a content-addressed
// directory under <home>/cache/<oid>, populated by cloning at a ref and
// authenticating it with a signature verification subprocess before the
// working tree is ever considered a valid, shareable cache entry.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/git-pkgs/gpk/internal/core"
)

// GitAdapter is the subset of gitops.Adapter the cache needs, kept as an
// interface so tests can substitute a fake without a real git binary.
type GitAdapter interface {
	CloneRef(ctx context.Context, ref, gitURL, dst string) error
	VerifyTag(ctx context.Context, tag, dst string) error
	VerifyCommit(ctx context.Context, commit, dst string) error
	HeadCommit(ctx context.Context, dst string) (string, error)
}

// Ref names the ref a Verified Cache Entry should be populated and
// authenticated against: exactly one of Tag (for an annotated or
// lightweight tag, identified by name and resolved OID) or Branch is set.
type Ref struct {
	TagName      string
	TagAnnotated bool
	TagCommit    string // the lightweight tag's commit oid, for verify-commit
	Branch       string
}

// Cache is the Verified Cache rooted at dir (typically <home>/cache).
type Cache struct {
	dir string
	git GitAdapter
}

// New returns a Cache rooted at dir.
func New(dir string, git GitAdapter) *Cache {
	return &Cache{dir: dir, git: git}
}

// EntryPath returns the on-disk path of the cache entry addressed by oid.
func (c *Cache) EntryPath(oid string) string {
	return filepath.Join(c.dir, oid)
}

// Has reports whether a populated (verified) cache entry exists for oid.
func (c *Cache) Has(oid string) bool {
	info, err := os.Stat(c.EntryPath(oid))
	return err == nil && info.IsDir()
}

// FetchVerified implements fetch_verified: returns the path of a
// populated, signature-verified cache entry for oid, cloning and
// verifying it first if it is not already present. A cache hit performs
// no git operations at all.
func (c *Cache) FetchVerified(ctx context.Context, gitURL string, oid string, ref Ref) (string, error) {
	dst := c.EntryPath(oid)
	if c.Has(oid) {
		return dst, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", &core.IoError{Op: "mkdir", Path: c.dir, Err: err}
	}

	tmp := fmt.Sprintf("%s-unverified-%s", dst, uuid.NewString())

	cloneRef := ref.Branch
	if ref.TagName != "" {
		cloneRef = ref.TagName
	}

	if err := c.git.CloneRef(ctx, cloneRef, gitURL, tmp); err != nil {
		return "", err
	}

	if err := c.verify(ctx, ref, tmp); err != nil {
		// The unverified directory is deliberately left in place and is
		// never renamed into dst; a later attempt clones into a fresh,
		// uniquely named directory of its own. A verification failure is
		// always fatal for this attempt.
		return "", err
	}

	if err := os.Rename(tmp, dst); err != nil {
		// Another worker may have won the race and already populated
		// dst; that is success for this caller too.
		if c.Has(oid) {
			_ = os.RemoveAll(tmp)
			return dst, nil
		}
		return "", &core.IoError{Op: "rename", Path: tmp, Err: err}
	}

	return dst, nil
}

func (c *Cache) verify(ctx context.Context, ref Ref, dst string) error {
	switch {
	case ref.TagAnnotated:
		return c.git.VerifyTag(ctx, ref.TagName, dst)
	case ref.TagName != "":
		return c.git.VerifyCommit(ctx, ref.TagCommit, dst)
	default:
		return c.git.VerifyCommit(ctx, ref.Branch, dst)
	}
}
