// Package git resolves repository topology (bare repos, linked worktrees,
// plain checkouts) and manages the worktree lifecycle the bot needs:
// create, list, remove, with idempotent existing-worktree detection.
package git

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// CmdOutcome distinguishes the three ways a git invocation can end.
type CmdOutcome int

const (
	// CmdOK: git ran and exited zero.
	CmdOK CmdOutcome = iota

	// CmdFailed: git ran and reported a non-zero exit.
	CmdFailed

	// CmdNotRun: git could not be invoked at all.
	CmdNotRun
)

// CmdResult is the structured outcome of one git invocation. Callers branch
// on Kind rather than sniffing output text.
type CmdResult struct {
	Kind   CmdOutcome
	Output string // trimmed stdout
	Stderr string // trimmed stderr
	Cause  error  // set when Kind == CmdNotRun
}

// OK reports whether the command ran and succeeded.
func (r CmdResult) OK() bool {
	return r.Kind == CmdOK
}

// Message returns a human-readable failure description.
func (r CmdResult) Message() string {
	switch r.Kind {
	case CmdFailed:
		if r.Stderr != "" {
			return r.Stderr
		}
		return "git exited with an error"
	case CmdNotRun:
		if r.Cause != nil {
			return r.Cause.Error()
		}
		return "git could not be invoked"
	}
	return ""
}

// runGit executes one git command in dir. Interactive credential prompts are
// suppressed so a missing remote credential fails fast instead of hanging.
func runGit(dir string, args ...string) CmdResult {
	fullArgs := append([]string{"-C", dir}, args...)
	cmd := exec.Command("git", fullArgs...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CmdResult{
		Output: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	switch {
	case err == nil:
		result.Kind = CmdOK
	case isExitError(err):
		result.Kind = CmdFailed
	default:
		result.Kind = CmdNotRun
		result.Cause = err
	}
	return result
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
