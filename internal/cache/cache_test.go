package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeGit struct {
	cloneCalls  int
	verifyCalls int
	verifyErr   error
	headCommit  string
}

func (f *fakeGit) CloneRef(ctx context.Context, ref, gitURL, dst string) error {
	f.cloneCalls++
	return os.MkdirAll(dst, 0o755)
}

func (f *fakeGit) VerifyTag(ctx context.Context, tag, dst string) error {
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeGit) VerifyCommit(ctx context.Context, commit, dst string) error {
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeGit) HeadCommit(ctx context.Context, dst string) (string, error) {
	return f.headCommit, nil
}

func TestFetchVerifiedPopulatesOnce(t *testing.T) {
	dir := t.TempDir()
	fg := &fakeGit{headCommit: "deadbeef"}
	c := New(dir, fg)

	ref := Ref{TagName: "v1.0.0", TagAnnotated: true}
	dst, err := c.FetchVerified(context.Background(), "https://example.com/repo.git", "annoid", ref)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected populated entry at %s: %v", dst, err)
	}
	if fg.cloneCalls != 1 || fg.verifyCalls != 1 {
		t.Fatalf("clone=%d verify=%d, want 1,1", fg.cloneCalls, fg.verifyCalls)
	}

	// Second call: cache hit, no git operations at all.
	dst2, err := c.FetchVerified(context.Background(), "https://example.com/repo.git", "annoid", ref)
	if err != nil {
		t.Fatal(err)
	}
	if dst2 != dst {
		t.Fatalf("dst changed between calls: %s vs %s", dst, dst2)
	}
	if fg.cloneCalls != 1 || fg.verifyCalls != 1 {
		t.Fatalf("expected no new git operations on cache hit, got clone=%d verify=%d", fg.cloneCalls, fg.verifyCalls)
	}
}

func TestFetchVerifiedFailureLeavesNoEntry(t *testing.T) {
	dir := t.TempDir()
	fg := &fakeGit{verifyErr: errors.New("bad signature")}
	c := New(dir, fg)

	ref := Ref{Branch: "main"}
	_, err := c.FetchVerified(context.Background(), "https://example.com/repo.git", "deadbeef", ref)
	if err == nil {
		t.Fatal("expected verification failure")
	}
	if c.Has("deadbeef") {
		t.Error("a failed verification must never leave a populated entry")
	}

	// The unverified directory is left for inspection/retry.
	entries, _ := filepath.Glob(filepath.Join(dir, "deadbeef-unverified-*"))
	if len(entries) != 1 {
		t.Errorf("expected one leftover unverified dir, got %d", len(entries))
	}
}
