package internal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type CmdLine struct {
	base *Gitbase
}

func NewCmdLine(base *Gitbase) CmdLine {
	return CmdLine{base: base}
}

// transientGitErrors are output substrings that mark a git failure as
// retryable: gpg-agent flakes during commit/cherry-pick signing and
// short-lived ref lock contention. Anything else surfaces immediately.
var transientGitErrors = []string{
	"gpg failed to sign the data",
	"gpg: signing failed",
	"cannot lock ref",
}

const maxGitRetries = 3

func isTransientGitError(out string) bool {
	lower := strings.ToLower(out)
	for _, marker := range transientGitErrors {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (c CmdLine) Git(argStr string, output *string) error {
	return c.GitWithEditor(argStr, output, "/usr/bin/true")
}

func (c CmdLine) MustGit(argStr string, output *string) {
	err := c.Git(argStr, output)
	if err != nil {
		panic(err)
	}
}

// GitWithEditor runs a git command with the given editor wired in for
// interactive subcommands. If output is not nil it is set to the
// trimmed combined output. Transient failures are retried with
// exponential backoff before surfacing.
func (c CmdLine) GitWithEditor(argStr string, output *string, editorCmd string) error {
	// Rebase disabled
	_, noRebaseFlag := os.LookupEnv("SPR_NOREBASE")
	if (c.base.Config.User.NoRebase || noRebaseFlag) && strings.HasPrefix(argStr, "rebase") {
		return nil
	}

	log.Debug().Msg("git " + argStr)
	if c.base.Config.User.LogGitCommands {
		fmt.Printf("> git %s\n", argStr)
	}

	var out string
	var err error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < maxGitRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
			log.Debug().Int("attempt", attempt+1).Msg("retrying git " + argStr)
		}
		out, err = c.runOnce(argStr, editorCmd)
		if err == nil || !isTransientGitError(out) {
			break
		}
	}

	if output != nil {
		*output = strings.TrimSpace(out)
	}
	if err != nil {
		fmt.Fprintf(c.base.Stderr, "git error: %s", out)
		return err
	}
	return nil
}

func (c CmdLine) runOnce(argStr string, editorCmd string) (string, error) {
	args := []string{
		"-c", fmt.Sprintf("core.editor=%s", editorCmd),
		"-c", "commit.verbose=false",
		"-c", "rebase.abbreviateCommands=false",
		"-c", fmt.Sprintf("sequence.editor=%s", editorCmd),
	}
	args = append(args, strings.Split(argStr, " ")...)
	cmd := exec.Command("git", args...)
	cmd.Dir = c.base.Rootdir

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)

		if parts[1] != "" && strings.ToUpper(parts[0]) != "EDITOR" {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", parts[0], parts[1]))
		}
	}

	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (c *CmdLine) Rebase(ctx context.Context, remoteName, branchName string) error {
	err := c.Git(
		fmt.Sprintf("rebase %s/%s -i --autosquash --autostash",
			remoteName,
			branchName,
		), nil)
	if err != nil {
		return fmt.Errorf("rebase failed %w", err)
	}

	return nil
}
