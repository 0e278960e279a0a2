// Package syncbridge periodically pulls a vault's git remote then pushes
// local changes, applying a per-directory conflict policy before the push
// (spec.md §4.9). Git itself is invoked as a subprocess, following the
// pattern `theRebelliousNerd-codenerd`'s internal/world/git_scanner.go uses
// for `git log` — exec.CommandContext with cmd.Dir set to the repo root,
// never a cgo/libgit2 binding.
package syncbridge

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitRunner executes one git subcommand against a working directory.
// Production code wires CommandGitRunner; tests wire a recording fake.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (stdout string, err error)
}

// CommandGitRunner shells out to the system git binary.
type CommandGitRunner struct{}

// Run invokes `git <args...>` with cmd.Dir = dir, returning combined stdout.
func (CommandGitRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Pull runs `git pull --ff-only` against the vault's remote branch.
func Pull(ctx context.Context, runner GitRunner, repoRoot, branch string) error {
	_, err := runner.Run(ctx, repoRoot, "pull", "--ff-only", "origin", branch)
	return err
}

// Push stages everything, commits if there is anything to commit, and
// pushes to the remote branch.
func Push(ctx context.Context, runner GitRunner, repoRoot, branch, commitMessage string) error {
	if _, err := runner.Run(ctx, repoRoot, "add", "-A"); err != nil {
		return err
	}

	status, err := runner.Run(ctx, repoRoot, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil // nothing to commit
	}

	if _, err := runner.Run(ctx, repoRoot, "commit", "-m", commitMessage); err != nil {
		return err
	}
	_, err = runner.Run(ctx, repoRoot, "push", "origin", branch)
	return err
}
