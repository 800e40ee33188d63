package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/engine/workpool"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
)

// refUpdate is one planned "hash -> branch" ref push.
type refUpdate struct {
	commit     git.Commit
	branchName string
}

// planPush computes the minimal set of ref updates for localCommits
// against snap: a commit needs a push iff it has no PR yet, or its
// hash differs from the PR's recorded top hash.
func planPush(cfg *config.Config, localCommits []git.Commit, snap *forge.Snapshot) []refUpdate {
	byCommitID := make(map[string]*forge.PullRequest, len(snap.PullRequests))
	for _, pr := range snap.PullRequests {
		byCommitID[pr.Commit.CommitID] = pr
	}

	var updates []refUpdate
	for _, c := range localCommits {
		pr, ok := byCommitID[c.CommitID]
		if !ok || pr.Commit.CommitHash != c.CommitHash {
			updates = append(updates, refUpdate{commit: c, branchName: git.BranchNameFromCommit(cfg, c)})
		}
	}
	return updates
}

// pushBranches delivers updates in one of three modes: atomic
// (default, one forced transactional push), individual (one push per
// ref, serial), or bounded-parallel individual pushes. It stashes a
// dirty working tree first and unconditionally unstashes on every exit
// path.
func (e *Engine) pushBranches(ctx context.Context, updates []refUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if e.Config.User.Pretend {
		for _, u := range updates {
			e.Printer.Printf("(pretend) push %s -> %s\n", u.commit.CommitHash, u.branchName)
		}
		return nil
	}

	var status string
	if err := e.Git.Git("status --porcelain --untracked-files=no", &status); err != nil {
		return fmt.Errorf("checking working tree status before push: %w", err)
	}
	stashed := strings.TrimSpace(status) != ""
	if stashed {
		if err := e.Git.Git("stash", nil); err != nil {
			return fmt.Errorf("stashing dirty working tree before push: %w", err)
		}
		defer func() { _ = e.Git.Git("stash pop", nil) }()
	}

	remote := e.Config.Repo.GitHubRemote

	individual := e.Config.Repo.BranchPushIndividually || e.concurrency() > 0
	if !individual {
		refspecs := make([]string, 0, len(updates))
		for _, u := range updates {
			refspecs = append(refspecs, "+"+u.commit.CommitHash+":refs/heads/"+u.branchName)
		}
		if err := e.Git.Push(remote, refspecs); err != nil {
			if e.Config.User.BestEffort {
				e.Printer.Printf("warning: atomic push failed, continuing (best_effort): %s\n", err)
				return nil
			}
			return fmt.Errorf("pushing stacked branches: %w", err)
		}
		return nil
	}

	err := workpool.Run(e.fanoutN(), updates, func(u refUpdate) error {
		refspec := "+" + u.commit.CommitHash + ":refs/heads/" + u.branchName
		if pushErr := e.Git.Push(remote, []string{refspec}); pushErr != nil {
			if e.Config.User.BestEffort {
				e.Printer.Printf("warning: push of %s failed, continuing (best_effort): %s\n", u.branchName, pushErr)
				return nil
			}
			return fmt.Errorf("pushing %s: %w", u.branchName, pushErr)
		}
		return nil
	})
	return err
}
