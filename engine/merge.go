package engine

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/corvidworks/stackpr/engine/errs"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
)

// Merge walks the matched stack bottom-up, finds the highest mergeable
// prefix (every PR up to and including it is Ready, and every PR below
// it is also Ready or already merged), retargets that PR's base to
// GitHubBranchTarget, merges it (directly, or via EnableAutoMerge when
// merge_queue is set), then closes the PRs it absorbed with a
// cross-link comment pointing at the merge. count, when non-nil, caps
// how many PRs from the bottom are even considered.
func (e *Engine) Merge(ctx context.Context, count *int) error {
	localCommits, err := e.localCommits(ctx)
	if err != nil {
		return err
	}
	nonWIP := git.NonWIPPrefix(localCommits)

	_, snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return err
	}

	stack, err := matchStack(e.Config.Repo.GitHubBranchTarget, nonWIP, snap)
	if err != nil {
		return errs.ForgeConflict("matchStack", err)
	}
	if len(stack) == 0 {
		e.Printer.Print("no pull requests to merge\n")
		return nil
	}
	if count != nil && *count < len(stack) {
		stack = stack[:*count]
	}

	cutoff := -1
	for i, pr := range stack {
		if pr.Merged {
			continue
		}
		if !pr.Ready(e.Config) {
			break
		}
		cutoff = i
	}
	if cutoff < 0 {
		e.Printer.Print("no pull requests are ready to merge\n")
		return nil
	}

	top := stack[cutoff]

	// Merge-check gate: when a merge_check command is configured, the
	// commit at the top of the merged prefix must be the one `check`
	// last verified (or the gate must be explicitly disabled via SKIP).
	if e.Config.Repo.MergeCheck != "" {
		checked, found := e.Config.State.MergeCheckCommit[e.Config.Repo.Key()]
		if !found || (checked != "SKIP" && checked != top.Commit.CommitHash) {
			return errs.ForgeRefusal("MergeCheck",
				fmt.Errorf("need to run merge check 'stackpr check' before merging"))
		}
	}

	if err := e.Forge.UpdatePullRequest(ctx, e.Config, top, top.Commit, e.Config.Repo.GitHubBranchTarget, top.Body); err != nil {
		return errs.ForgeTransient("UpdatePullRequest(retarget)", err)
	}

	if e.Config.Repo.MergeQueue {
		if err := e.Forge.EnableAutoMerge(ctx, e.Config, top); err != nil {
			return errs.ForgeTransient("EnableAutoMerge", err)
		}
	} else {
		if err := e.Forge.MergePullRequest(ctx, e.Config, top); err != nil {
			return errs.MergeConflict("MergePullRequest", err)
		}
	}

	for i := 0; i < cutoff; i++ {
		absorbed := stack[i]
		comment := fmt.Sprintf("Merged as part of #%d", top.Number)
		if err := e.Forge.CommentPullRequest(ctx, absorbed, comment); err != nil {
			e.Printer.Printf("warning: failed to cross-link #%d: %s\n", absorbed.Number, err)
		}
		if err := e.Forge.ClosePullRequest(ctx, absorbed); err != nil {
			e.Printer.Printf("warning: failed to close #%d: %s\n", absorbed.Number, err)
			continue
		}
		if err := e.Git.DeleteRemoteBranch(ctx, absorbed.FromBranch); err != nil {
			e.Printer.Printf("warning: failed to delete branch %s: %s\n", absorbed.FromBranch, err)
		}
	}

	e.Printer.Printf("merged #%d (absorbing %d PR(s) below it)\n", top.Number, cutoff)
	return nil
}

// Status fetches the matched stack without mutating anything; it backs
// the `status` command.
func (e *Engine) Status(ctx context.Context) ([]*forge.PullRequest, error) {
	localCommits, err := e.localCommits(ctx)
	if err != nil {
		return nil, err
	}
	nonWIP := git.NonWIPPrefix(localCommits)

	_, snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	stack, err := matchStack(e.Config.Repo.GitHubBranch, nonWIP, snap)
	if err != nil {
		return nil, errs.ForgeConflict("matchStack", err)
	}
	return stack, nil
}

// PrintStack writes one line per PR, top of stack first.
func (e *Engine) PrintStack(stack []*forge.PullRequest) {
	if len(stack) == 0 {
		e.Printer.Print("no pull requests in stack\n")
		return
	}
	for i := len(stack) - 1; i >= 0; i-- {
		pr := stack[i]
		status := "OPEN"
		switch {
		case pr.Merged:
			status = "MERGED"
		case pr.Closed:
			status = "CLOSED"
		case pr.Ready(e.Config):
			status = "READY"
		}
		e.Printer.Printf("#%-5d %-7s %s\n", pr.Number, status, pr.Title)
	}
}

// Check runs the repository's configured merge_check command against
// HEAD and, on success, records the verified commit hash in
// config.InternalState.MergeCheckCommit so Merge can confirm the tip of
// the stack was actually checked before letting it merge. An empty
// merge_check disables the gate entirely ("SKIP").
func (e *Engine) Check(ctx context.Context) error {
	if e.Config.Repo.MergeCheck == "" {
		e.Config.State.MergeCheckCommit[e.Config.Repo.Key()] = "SKIP"
		return nil
	}

	var head string
	if err := e.Git.Git("rev-parse HEAD", &head); err != nil {
		return errs.GitTransient("rev-parse HEAD", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", e.Config.Repo.MergeCheck)
	cmd.Dir = e.Git.RootDir()
	if out, err := cmd.CombinedOutput(); err != nil {
		e.Printer.Printf("%s", out)
		e.Config.State.MergeCheckCommit[e.Config.Repo.Key()] = ""
		return errs.WorkingTree("merge_check", err)
	}

	e.Config.State.MergeCheckCommit[e.Config.Repo.Key()] = trimNewline(head)
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
