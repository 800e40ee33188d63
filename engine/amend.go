package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/corvidworks/stackpr/engine/errs"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
)

// AmendCommit lets the user fold staged changes into any commit in the
// stack: the commits are listed newest-first, one is chosen by index,
// and a fixup commit plus autosquash rebase rewrites history in place.
// The commit-id trailers survive the rebase, so the next update only
// re-pushes the amended commit and everything above it.
func (e *Engine) AmendCommit(ctx context.Context, input io.Reader) error {
	localCommits, err := e.localCommits(ctx)
	if err != nil {
		return err
	}
	if len(localCommits) == 0 {
		e.Printer.Print("no commits to amend\n")
		return nil
	}

	for i := len(localCommits) - 1; i >= 0; i-- {
		c := localCommits[i]
		e.Printer.Printf(" %d : %s : %s\n", i+1, c.CommitID, c.Subject)
	}
	if len(localCommits) == 1 {
		e.Printer.Printf("commit to amend (%d): ", 1)
	} else {
		e.Printer.Printf("commit to amend (%d-%d): ", 1, len(localCommits))
	}

	reader := bufio.NewReader(input)
	line, _ := reader.ReadString('\n')
	commitIndex, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || commitIndex < 1 || commitIndex > len(localCommits) {
		e.Printer.Print("invalid input\n")
		return nil
	}
	commitIndex--

	if err := e.Git.Git(fmt.Sprintf("commit --fixup %s", localCommits[commitIndex].CommitHash), nil); err != nil {
		return errs.WorkingTree("commit --fixup", err)
	}
	rebaseCmd := fmt.Sprintf("rebase -i --autosquash --autostash %s/%s",
		e.Config.Repo.GitHubRemote, e.Config.Repo.GitHubBranch)
	if err := e.Git.Git(rebaseCmd, nil); err != nil {
		return errs.WorkingTree("rebase --autosquash", err)
	}
	return nil
}

// SyncStack fast-forwards the local branch to the top of the remote
// stack by cherry-picking every commit up to the highest stacked PR's
// head, for picking up a stack that was updated from another machine.
func (e *Engine) SyncStack(ctx context.Context) error {
	localCommits, err := e.localCommits(ctx)
	if err != nil {
		return err
	}
	nonWIP := git.NonWIPPrefix(localCommits)

	_, snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	stack, err := matchStack(e.Config.Repo.GitHubBranch, nonWIP, snap)
	if err != nil {
		return errs.ForgeConflict("matchStack", err)
	}
	if len(stack) == 0 {
		e.Printer.Print("pull request stack is empty\n")
		return nil
	}

	// The local branch may be behind the remote stack, so keep walking
	// up from the highest locally-matched PR: any open PR based on the
	// current top's head branch extends the stack.
	top := stack[len(stack)-1]
	byBase := make(map[string]*forge.PullRequest, len(snap.PullRequests))
	for _, pr := range snap.PullRequests {
		byBase[pr.ToBranch] = pr
	}
	for {
		next, ok := byBase[top.FromBranch]
		if !ok {
			break
		}
		top = next
	}
	if err := e.Git.Git(fmt.Sprintf("cherry-pick ..%s", top.Commit.CommitHash), nil); err != nil {
		return errs.MergeConflict("cherry-pick", err)
	}
	return nil
}
