package gitops

import (
	"bytes"
	"context"
	"os/exec"
)

// Runner executes a git subprocess and captures its stdout/stderr. It is
// the seam tests substitute a fake for, so the Git Adapter itself never
// needs network access or a real git binary to be exercised.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner shells out to the real git binary. Credentials and prompt
// suppression are the environment's concern; the runner itself never
// talks to a terminal.
type ExecRunner struct {
	// GitPath overrides the git binary to invoke; defaults to "git" on
	// the PATH when empty.
	GitPath string
}

func (r ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, string, error) {
	binary := r.GitPath
	if binary == "" {
		binary = "git"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
