// Package gitops is the Git Adapter: the contract-only surface over the
// real `git` subprocess. Every operation is subprocess I/O, so the
// package is written for straightforward synchronous use from the
// depth-first installer, with an internal per-remote circuit breaker
// guarding the operations that actually talk to a remote.
package gitops

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/git-pkgs/gpk/internal/core"
)

// Adapter is the Git Adapter. The zero value is not usable; construct
// with New.
type Adapter struct {
	runner   Runner
	breakers *hostBreakers
}

// New returns a Git Adapter that shells out via runner.
func New(runner Runner) *Adapter {
	return &Adapter{runner: runner, breakers: newHostBreakers()}
}

// ListTags implements list_tags: parses `git ls-remote --tags <url>`,
// merging a tag's peeled ("<name>^{}") annotated OID with its commit OID.
func (a *Adapter) ListTags(ctx context.Context, gitURL string) (map[string]core.TagInfo, error) {
	var out map[string]core.TagInfo
	err := a.breakers.call(ctx, gitURL, func() error {
		stdout, stderr, err := a.runner.Run(ctx, "", "ls-remote", "--tags", gitURL)
		if err != nil {
			return &core.GitError{Stage: "ls-remote --tags", Args: []string{gitURL}, Stderr: stderr, Err: err}
		}
		out = parseTagRefs(stdout)
		return nil
	})
	return out, err
}

func parseTagRefs(output string) map[string]core.TagInfo {
	tags := make(map[string]core.TagInfo)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		oid, ref := fields[0], fields[1]
		name := strings.TrimPrefix(ref, "refs/tags/")
		if name == ref {
			continue // not a tag ref
		}

		if base, ok := cutSuffix(name, "^{}"); ok {
			// Peeled line for an annotated tag: the prior line's oid was
			// the tag object itself, and this line's oid is the commit
			// it points at.
			t := tags[base]
			t.Name = base
			t.AnnotatedOID = t.CommitOID
			t.CommitOID = oid
			tags[base] = t
			continue
		}

		// First line seen for this tag name: tentatively a lightweight
		// tag's commit OID, corrected to an annotated OID above if a
		// peeled line follows.
		t := tags[name]
		t.Name = name
		t.CommitOID = oid
		tags[name] = t
	}
	return tags
}

func cutSuffix(s, suffix string) (string, bool) {
	if strings.HasSuffix(s, suffix) {
		return s[:len(s)-len(suffix)], true
	}
	return s, false
}

// ListBranches implements list_branches: `git ls-remote --symref <url>
// HEAD` for the head ref, plus the full set of branch tips.
func (a *Adapter) ListBranches(ctx context.Context, gitURL string) (core.BranchView, error) {
	var out core.BranchView
	err := a.breakers.call(ctx, gitURL, func() error {
		stdout, stderr, err := a.runner.Run(ctx, "", "ls-remote", "--symref", gitURL, "HEAD")
		if err != nil {
			return &core.GitError{Stage: "ls-remote --symref", Args: []string{gitURL}, Stderr: stderr, Err: err}
		}
		headStdout := stdout

		branchesStdout, branchesStderr, err := a.runner.Run(ctx, "", "ls-remote", "--heads", gitURL)
		if err != nil {
			return &core.GitError{Stage: "ls-remote --heads", Args: []string{gitURL}, Stderr: branchesStderr, Err: err}
		}

		out = parseBranchRefs(headStdout, branchesStdout)
		return nil
	})
	return out, err
}

func parseBranchRefs(headOutput, headsOutput string) core.BranchView {
	view := core.BranchView{Branches: make(map[string]string)}

	scanner := bufio.NewScanner(strings.NewReader(headOutput))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ref: ") {
			ref := strings.TrimPrefix(line, "ref: ")
			ref = strings.Fields(ref)[0]
			view.Head = strings.TrimPrefix(ref, "refs/heads/")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "HEAD" && view.Head == "" {
			// A server with no symref support reports only the oid; the
			// head branch name is recovered once --heads is merged below.
			view.Branches["HEAD"] = fields[0]
		}
	}

	scanner = bufio.NewScanner(strings.NewReader(headsOutput))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		name := strings.TrimPrefix(fields[1], "refs/heads/")
		view.Branches[name] = fields[0]
	}

	if oid, ok := view.Branches["HEAD"]; ok && view.Head == "" {
		var matching []string
		for name, tip := range view.Branches {
			if name != "HEAD" && tip == oid {
				matching = append(matching, name)
			}
		}
		if len(matching) > 0 {
			sort.Strings(matching)
			view.Head = matching[0]
		}
	}

	return view
}

// CloneRef implements clone_ref: a shallow single-branch clone at ref.
func (a *Adapter) CloneRef(ctx context.Context, ref, gitURL, dst string) error {
	return a.breakers.call(ctx, gitURL, func() error {
		_, stderr, err := a.runner.Run(ctx, "", "clone", "--depth", "1", "--branch", ref, gitURL, dst)
		if err != nil {
			return &core.GitError{Stage: "clone", Args: []string{ref, gitURL, dst}, Stderr: stderr, Err: err}
		}
		return nil
	})
}

// VerifyTag implements verify(tag, _, dst): `git verify-tag <tag>`.
func (a *Adapter) VerifyTag(ctx context.Context, tag, dst string) error {
	_, stderr, err := a.runner.Run(ctx, dst, "verify-tag", tag)
	if err != nil {
		return &core.VerificationFailureError{Ref: tag, Stderr: stderr}
	}
	return nil
}

// VerifyCommit implements verify(_, commit, dst): `git verify-commit
// <commit>`.
func (a *Adapter) VerifyCommit(ctx context.Context, commit, dst string) error {
	_, stderr, err := a.runner.Run(ctx, dst, "verify-commit", commit)
	if err != nil {
		return &core.VerificationFailureError{Ref: commit, Stderr: stderr}
	}
	return nil
}

// HeadCommit implements head_commit: the HEAD commit OID of a local clone.
func (a *Adapter) HeadCommit(ctx context.Context, dst string) (string, error) {
	stdout, stderr, err := a.runner.Run(ctx, dst, "rev-parse", "HEAD")
	if err != nil {
		return "", &core.GitError{Stage: "rev-parse HEAD", Stderr: stderr, Err: err}
	}
	return strings.TrimSpace(stdout), nil
}

// Archive implements archive: `git archive -o <dst> HEAD` run in src.
func (a *Adapter) Archive(ctx context.Context, src, dst string) error {
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return &core.IoError{Op: "archive", Path: dst, Err: err}
	}
	_, stderr, err := a.runner.Run(ctx, src, "archive", "-o", absDst, "HEAD")
	if err != nil {
		return &core.GitError{Stage: "archive", Args: []string{src, dst}, Stderr: stderr, Err: err}
	}
	return nil
}

// ListTree implements list_tree: `git ls-tree --full-tree -r --name-only
// HEAD`, sorted.
func (a *Adapter) ListTree(ctx context.Context, dst string) ([]string, error) {
	stdout, stderr, err := a.runner.Run(ctx, dst, "ls-tree", "--full-tree", "-r", "--name-only", "HEAD")
	if err != nil {
		return nil, &core.GitError{Stage: "ls-tree", Stderr: stderr, Err: err}
	}
	var paths []string
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			paths = append(paths, line)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// TreeHash feeds, for each path in sorted ListTree,
// hex(digest(file)) + "  " + path + "\n" into a rolling sha256 digest.
// Used for reproducibility checks; algo is currently always sha256 and
// accepted only to keep the signature forward-compatible.
func (a *Adapter) TreeHash(ctx context.Context, dst, base, algo string) (string, error) {
	paths, err := a.ListTree(ctx, dst)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, p := range paths {
		fileHash, err := hashFile(filepath.Join(base, p))
		if err != nil {
			return "", &core.IoError{Op: "hash", Path: p, Err: err}
		}
		fmt.Fprintf(h, "%s  %s\n", hex.EncodeToString(fileHash), p)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
