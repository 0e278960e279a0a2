// Package reasoning wraps the external reasoning LLM as a single
// subprocess call. Per spec.md §1 and §9 ("the reasoning LLM is treated
// as a subprocess that reads/writes vault files"), its content is out of
// scope — this package only launches the configured command and reports
// how it exited. It is never imported by internal/orchestrator or
// internal/watcher; only the scheduler's inbox-processing job invokes it.
package reasoning

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Invoker launches the reasoning command once per call.
type Invoker struct {
	// Command is a template split on whitespace, with the single literal
	// token "{vault}" substituted for the vault path, e.g.
	// "claude --permission-mode acceptEdits --cwd {vault}".
	Command string
	Timeout time.Duration
}

// New builds an Invoker. Timeout defaults to 10 minutes — reasoning calls
// are long-lived relative to every other subprocess in this system.
func New(command string, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Invoker{Command: command, Timeout: timeout}
}

// Invoke runs the configured command against vaultPath and returns its
// exit code. A non-zero exit code is not itself an error from Invoke's
// perspective — the caller (the inbox-processing job) decides whether a
// non-zero exit is transient or permanent.
func (i *Invoker) Invoke(ctx context.Context, vaultPath string) (exitCode int, err error) {
	fields := strings.Fields(i.Command)
	if len(fields) == 0 {
		return 0, fmt.Errorf("reasoning: empty command")
	}
	for idx, f := range fields {
		if f == "{vault}" {
			fields[idx] = vaultPath
		}
	}

	ctx, cancel := context.WithTimeout(ctx, i.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = vaultPath

	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return -1, fmt.Errorf("reasoning: invocation timed out after %s: %w", i.Timeout, runErr)
	}
	var exitErr *exec.ExitError
	if exitCodeOf(runErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("reasoning: invocation failed: %w", runErr)
}

func exitCodeOf(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
