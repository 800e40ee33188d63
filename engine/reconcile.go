package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/corvidworks/stackpr/engine/errs"
	"github.com/corvidworks/stackpr/engine/workpool"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/forge/ghclient"
	"github.com/corvidworks/stackpr/git"
)

// Update runs the full stack-sync pass: commit identity, snapshot,
// push, reconcile, in that order. reviewers, when non-empty, are
// requested on every PR in the reconciled stack, including ones that
// already existed before this call. count, when non-nil, limits
// projection to the lowest count non-WIP commits.
func (e *Engine) Update(ctx context.Context, reviewers []string, count *int) ([]*forge.PullRequest, error) {
	if err := e.fetchAndRebase(ctx); err != nil {
		return nil, err
	}
	e.Profile.Step("Update::FetchAndRebase")

	allCommits, err := e.localCommits(ctx)
	if err != nil {
		return nil, err
	}
	nonWIP := git.NonWIPPrefix(allCommits)
	if count != nil && *count < len(nonWIP) {
		nonWIP = nonWIP[:*count]
	}
	e.Profile.Step("Update::GetLocalCommitStack")

	nonWIP, err = git.EnsureCommitIDs(ctx, e.Git, e.Config, nonWIP)
	if err != nil {
		return nil, err
	}
	e.Profile.Step("Update::EnsureCommitIDs")

	login, snap, err := e.fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	e.Profile.Step("Update::GetSnapshot")

	if err := e.closeDisappeared(ctx, nonWIP, snap); err != nil {
		return nil, err
	}
	e.Profile.Step("Update::CloseDisappeared")

	updates := planPush(e.Config, nonWIP, snap)
	if err := e.pushBranches(ctx, updates); err != nil {
		return nil, err
	}
	e.Profile.Step("Update::PushBranches")

	if e.Config.User.Pretend {
		return nil, nil
	}

	stack, err := e.reconcile(ctx, nonWIP, snap, reviewers, login)
	if err != nil {
		return nil, err
	}
	e.Profile.Step("Update::Reconcile")

	return stack, nil
}

func (e *Engine) fetchAndRebase(ctx context.Context) error {
	// Refuse to sync from a checked-out PR branch: creating PRs on top
	// of a PR branch duplicates the stack on the forge.
	branch, err := e.Git.GetLocalBranchShortName()
	if err != nil {
		return errs.GitTransient("GetLocalBranchShortName", err)
	}
	if git.CommitIDFromBranch(branch) != "" {
		return errs.WorkingTree("fetchAndRebase",
			fmt.Errorf("refusing to run from pull request branch %s; check out a local branch instead", branch))
	}

	if e.Config.Repo.ForceFetchTags {
		if err := e.Git.Git("fetch --tags --force", nil); err != nil {
			return errs.GitTransient("fetch --tags --force", err)
		}
	} else if err := e.Git.Fetch(e.Config.Repo.GitHubRemote, true); err != nil {
		return errs.GitTransient("Fetch", err)
	}
	if e.Config.User.NoRebase {
		return nil
	}
	if err := e.Git.Rebase(ctx, e.Config.Repo.GitHubRemote, e.Config.Repo.GitHubBranch); err != nil {
		return errs.WorkingTree("Rebase", err)
	}
	return nil
}

func (e *Engine) localCommits(ctx context.Context) ([]git.Commit, error) {
	raw, err := e.Git.UnmergedCommits(ctx)
	if err != nil {
		return nil, errs.GitTransient("UnmergedCommits", err)
	}
	return git.GenerateCommits(raw), nil
}

func (e *Engine) fetchSnapshot(ctx context.Context) (string, *forge.Snapshot, error) {
	login, err := e.Forge.GetAuthenticatedUserLogin(ctx)
	if err != nil {
		return "", nil, errs.ForgeTransient("GetAuthenticatedUserLogin", err)
	}
	snap, err := e.Forge.GetSnapshot(ctx, login)
	if err != nil {
		return "", nil, errs.ForgeTransient("GetSnapshot", err)
	}

	// The snapshot carries every PR whose head matches the branch
	// naming schemes. The stack model only reasons about primary
	// branches; a breakup PR carrying the same commit-id must not
	// shadow (or be mistaken for) the stacked PR.
	var primary []*forge.PullRequest
	for _, pr := range snap.PullRequests {
		if git.IsBreakupBranch(e.Config, pr.FromBranch) {
			continue
		}
		primary = append(primary, pr)
	}
	snap.PullRequests = primary
	return login, snap, nil
}

// closeDisappeared closes a PR whose commit-id no longer appears
// locally, with an explanatory comment, only when auto_close_prs is
// enabled; otherwise the PR is preserved untouched (so switching
// branches never destroys a PR from another stack).
func (e *Engine) closeDisappeared(ctx context.Context, localCommits []git.Commit, snap *forge.Snapshot) error {
	present := make(map[string]bool, len(localCommits))
	for _, c := range localCommits {
		present[c.CommitID] = true
	}

	var kept []*forge.PullRequest
	for _, pr := range snap.PullRequests {
		if present[pr.Commit.CommitID] || !e.Config.Repo.AutoCloseClosedCommits {
			kept = append(kept, pr)
			continue
		}
		if err := e.Forge.CommentPullRequest(ctx, pr, "Closing pull request: commit has gone away"); err != nil {
			e.Printer.Printf("warning: failed to comment on #%d before closing: %s\n", pr.Number, err)
		}
		if err := e.Forge.ClosePullRequest(ctx, pr); err != nil {
			e.Printer.Printf("warning: failed to close #%d: %s\n", pr.Number, err)
			kept = append(kept, pr)
			continue
		}
		if err := e.Git.DeleteRemoteBranch(ctx, pr.FromBranch); err != nil {
			e.Printer.Printf("warning: failed to delete branch %s: %s\n", pr.FromBranch, err)
		}
	}
	snap.PullRequests = kept
	return nil
}

// reconcile is C5: for every non-WIP local commit, create-if-absent or
// update-in-place, recompute base refs and stack body, then request
// reviewers on the whole reconciled stack. New PRs are created serially
// (in local commit order, so forge-assigned numbers stay sequential and
// every base branch already exists when the next PR targets it); the
// title/body/base rewrite and the reviewer pass both fan out through
// the bounded worker pool, since each call targets a distinct PR number.
func (e *Engine) reconcile(ctx context.Context, localCommits []git.Commit, snap *forge.Snapshot, reviewers []string, login string) ([]*forge.PullRequest, error) {
	byCommitID := make(map[string]*forge.PullRequest, len(snap.PullRequests))
	for _, pr := range snap.PullRequests {
		byCommitID[pr.Commit.CommitID] = pr
	}

	trunk := e.Config.Repo.GitHubBranch
	stack := make([]*forge.PullRequest, len(localCommits))

	for i, c := range localCommits {
		toBranch := trunk
		if i > 0 {
			toBranch = git.BranchNameFromCommit(e.Config, localCommits[i-1])
		}
		pr, ok := byCommitID[c.CommitID]
		if !ok {
			created, err := e.Forge.CreatePullRequest(ctx, e.Config, c, git.BranchNameFromCommit(e.Config, c), toBranch, c.Body)
			if err != nil {
				if isAlreadyExists(err) {
					existing, lookErr := e.Forge.GetPRForBranch(ctx, git.BranchNameFromCommit(e.Config, c))
					if lookErr != nil {
						return nil, errs.ForgeConflict("GetPRForBranch", lookErr)
					}
					created = existing
				} else {
					return nil, errs.ForgeTransient("CreatePullRequest", err)
				}
			}
			pr = created
		}
		pr.Commit = c
		stack[i] = pr
	}

	err := workpool.Run(e.fanoutN(), indexRange(len(stack)), func(i int) error {
		pr := stack[i]
		toBranch := trunk
		if i > 0 {
			toBranch = git.BranchNameFromCommit(e.Config, localCommits[i-1])
		}
		if pr.InQueue || git.IsBreakupBranch(e.Config, pr.FromBranch) {
			toBranch = pr.ToBranch
		}
		body := ghclient.FormatBody(localCommits[i], stack, e.Config.Repo.ShowPrTitlesInStack)
		if err := e.Forge.UpdatePullRequest(ctx, e.Config, pr, localCommits[i], toBranch, body); err != nil {
			return errs.ForgeTransient("UpdatePullRequest", err)
		}
		if len(e.Config.Repo.Labels) > 0 {
			if err := e.Forge.AddLabels(ctx, pr, e.Config.Repo.Labels); err != nil {
				return errs.ForgeTransient("AddLabels", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(reviewers) > 0 {
		if err := e.requestReviewers(ctx, stack, reviewers, login); err != nil {
			return nil, err
		}
	}

	return stack, nil
}

// requestReviewers resolves logins to forge user ids, dropping the
// invoking user and anyone not assignable, and submits the remainder
// on every PR in stack.
func (e *Engine) requestReviewers(ctx context.Context, stack []*forge.PullRequest, reviewers []string, login string) error {
	assignable, err := e.Forge.GetAssignableUsers(ctx)
	if err != nil {
		return errs.ForgeTransient("GetAssignableUsers", err)
	}

	var userIDs []string
	for _, r := range reviewers {
		if strings.EqualFold(r, login) {
			continue
		}
		for candidate, id := range assignable {
			if strings.EqualFold(candidate, r) {
				userIDs = append(userIDs, id)
				break
			}
		}
	}
	if len(userIDs) == 0 {
		return nil
	}

	return workpool.Run(e.fanoutN(), stack, func(pr *forge.PullRequest) error {
		if err := e.Forge.AddReviewers(ctx, pr, userIDs); err != nil {
			e.Printer.Printf("warning: failed to add reviewers on #%d: %s\n", pr.Number, err)
		}
		return nil
	})
}

func indexRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}
