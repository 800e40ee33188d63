// Package breakup projects a linear commit history onto the forge as
// independent pull requests (each targeting the trunk) by cherry-pick
// probing every commit against the trunk, or, in stacks mode, as
// several small independent stacks grouped by the dependency analyzer.
package breakup

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/corvidworks/stackpr/analyze"
	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/engine/errs"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/output"
)

// Mode selects the grouping algorithm used when stacks mode is on.
type Mode string

const (
	// ModeComponents groups each dependency-connected component into one
	// chain, replayed in local commit order.
	ModeComponents Mode = "components"
	// ModeTrees groups by the analyzer's single-parent trees, replayed
	// parents-before-children.
	ModeTrees Mode = "trees"
	// ModeStacks groups by the analyzer's linear stacks.
	ModeStacks Mode = "stacks"
)

// pushBatchSize caps how many refs go into one forced push; git (and
// the forge's receive hook) reject larger atomic batches.
const pushBatchSize = 5

// Options are the per-invocation knobs of the breakup engine.
type Options struct {
	Reviewers []string
	Count     *int
	Stacks    bool
	Mode      Mode
}

// Engine drives one breakup invocation.
type Engine struct {
	Config  *config.Config
	Git     git.Interface
	Forge   forge.Client
	Printer output.Printer
}

func New(cfg *config.Config, gitcmd git.Interface, forgeClient forge.Client, printer output.Printer) *Engine {
	return &Engine{Config: cfg, Git: gitcmd, Forge: forgeClient, Printer: printer}
}

// branchUpdate is one relocated commit: the breakup branch that now (or
// would, in pretend mode) points at its cherry-picked copy, and the
// base its PR should target.
type branchUpdate struct {
	commit     git.Commit
	branchName string
	baseBranch string
}

// Run executes the breakup pass: probe every non-WIP commit onto the
// trunk, create or update a breakup branch for each one that applies
// cleanly, push the branches in batches, then create or retarget a PR
// per branch. With opts.Stacks it instead delegates grouping to the
// dependency analyzer and chains each group.
func (e *Engine) Run(ctx context.Context, opts Options) error {
	raw, err := e.Git.UnmergedCommits(ctx)
	if err != nil {
		return errs.GitTransient("UnmergedCommits", err)
	}
	nonWIP := git.NonWIPPrefix(git.GenerateCommits(raw))
	if opts.Count != nil && *opts.Count < len(nonWIP) {
		nonWIP = nonWIP[:*opts.Count]
	}
	if len(nonWIP) == 0 {
		e.Printer.Print("no commits to break up\n")
		return nil
	}

	nonWIP, err = git.EnsureCommitIDs(ctx, e.Git, e.Config, nonWIP)
	if err != nil {
		return err
	}

	trunkRef := e.trunkRef()

	var updates []branchUpdate
	var skipped []git.Commit
	if opts.Stacks {
		updates, skipped, err = e.chainGroups(ctx, opts.Mode, trunkRef, nonWIP)
	} else {
		updates, skipped, err = e.relocateIndependent(ctx, trunkRef, nonWIP)
	}
	if err != nil {
		return err
	}

	pushed, err := e.pushBranches(ctx, updates)
	if err != nil {
		return err
	}

	if !e.Config.User.Pretend {
		if err := e.reconcilePRs(ctx, pushed, opts.Reviewers); err != nil {
			return err
		}
	}

	e.Printer.Printf("processed %d commit(s): %d branch(es), %d skipped\n",
		len(nonWIP), len(updates), len(skipped))
	for _, c := range skipped {
		e.Printer.Printf("  skipped %s %s\n", c.CommitHash[:8], c.Subject)
	}
	return nil
}

// trunkRef is the ref breakup probes against: the remote-tracking
// target branch, or the local one when no_rebase is set (so a user who
// deliberately stays behind the remote breaks up against what they
// have).
func (e *Engine) trunkRef() string {
	if e.Config.User.NoRebase {
		return e.Config.Repo.GitHubBranchTarget
	}
	return e.Config.Repo.GitHubRemote + "/" + e.Config.Repo.GitHubBranchTarget
}

// relocateIndependent is the regular breakup mode: each commit is
// probed onto the trunk alone. A conflicting commit is dependent on
// earlier ones and is skipped.
func (e *Engine) relocateIndependent(ctx context.Context, trunkRef string, commits []git.Commit) ([]branchUpdate, []git.Commit, error) {
	target := e.Config.Repo.GitHubBranchTarget

	var updates []branchUpdate
	var skipped []git.Commit
	for _, c := range commits {
		newHash, newTree, ok, err := e.Git.CherryPickProbe(ctx, trunkRef, c.CommitHash)
		if err != nil {
			return nil, nil, errs.GitTransient("CherryPickProbe", err)
		}
		if !ok {
			skipped = append(skipped, c)
			continue
		}
		branchName := git.BreakupBranchName(e.Config, c.CommitID)
		if err := e.ensureBranchAt(ctx, branchName, newHash, newTree); err != nil {
			return nil, nil, err
		}
		updates = append(updates, branchUpdate{commit: c, branchName: branchName, baseBranch: target})
	}
	return updates, skipped, nil
}

// chainGroups is stacks mode: the analyzer groups the commits, then
// each group is replayed as a linear chain on the trunk, every commit
// cherry-picked onto its predecessor's relocated tip and its PR based
// on the predecessor's breakup branch. Commits the analyzer could not
// place (multi-parent orphans) get no branch and no PR.
func (e *Engine) chainGroups(ctx context.Context, mode Mode, trunkRef string, commits []git.Commit) ([]branchUpdate, []git.Commit, error) {
	res, err := analyze.Analyze(ctx, e.Git, trunkRef, commits)
	if err != nil {
		return nil, nil, err
	}

	indexOf := make(map[string]int, len(commits))
	for i, c := range commits {
		indexOf[c.CommitID] = i
	}

	var groups [][]git.Commit
	var orphans []git.Commit
	switch mode {
	case ModeStacks:
		groups = res.Stacks
		orphans = res.StackOrphans
	case ModeTrees:
		for _, root := range res.Trees {
			groups = append(groups, preorder(root))
		}
		orphans = res.Orphan
	default: // ModeComponents
		for _, root := range res.Trees {
			groups = append(groups, localOrder(preorder(root), indexOf))
		}
		orphans = res.Orphan
	}

	target := e.Config.Repo.GitHubBranchTarget

	var updates []branchUpdate
	skipped := append([]git.Commit(nil), orphans...)
	for _, group := range groups {
		tip := trunkRef
		base := target
		for _, c := range group {
			newHash, newTree, ok, err := e.Git.CherryPickProbe(ctx, tip, c.CommitHash)
			if err != nil {
				return nil, nil, errs.GitTransient("CherryPickProbe", err)
			}
			if !ok {
				// The analyzer placed this commit but the replay could
				// not; it falls out of the chain as an orphan.
				skipped = append(skipped, c)
				continue
			}
			branchName := git.BreakupBranchName(e.Config, c.CommitID)
			if err := e.ensureBranchAt(ctx, branchName, newHash, newTree); err != nil {
				return nil, nil, err
			}
			updates = append(updates, branchUpdate{commit: c, branchName: branchName, baseBranch: base})
			tip = newHash
			base = branchName
		}
	}
	return updates, skipped, nil
}

func preorder(node *analyze.TreeNode) []git.Commit {
	out := []git.Commit{node.Commit}
	for _, child := range node.Children {
		out = append(out, preorder(child)...)
	}
	return out
}

func localOrder(commits []git.Commit, indexOf map[string]int) []git.Commit {
	out := append([]git.Commit(nil), commits...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && indexOf[out[j].CommitID] < indexOf[out[j-1].CommitID]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// ensureBranchAt points branchName at newHash, creating it if absent.
// An existing branch is compared by tree, not by hash: a cherry-pick
// re-roll produces a new hash even when the content is identical, and
// force-moving the branch then would re-trigger CI and re-notify
// reviewers for nothing.
func (e *Engine) ensureBranchAt(ctx context.Context, branchName, newHash, newTree string) error {
	exists, err := e.Git.BranchExists(branchName)
	if err != nil {
		return errs.GitTransient("BranchExists", err)
	}
	shortHash := newHash
	if len(shortHash) > 8 {
		shortHash = shortHash[:8]
	}

	if !exists {
		if e.Config.User.Pretend {
			e.Printer.Printf("(pretend) create branch %s at %s\n", branchName, shortHash)
			return nil
		}
		if err := e.Git.Git(fmt.Sprintf("branch %s %s", branchName, newHash), nil); err != nil {
			return errs.GitTransient("branch", err)
		}
		return nil
	}

	existingTree, err := e.Git.TreeHash(ctx, branchName)
	if err != nil {
		return errs.GitTransient("TreeHash", err)
	}
	if existingTree == newTree {
		e.Printer.Printf("branch %s already up to date\n", branchName)
		return nil
	}
	if e.Config.User.Pretend {
		e.Printer.Printf("(pretend) update branch %s to %s\n", branchName, shortHash)
		return nil
	}
	if err := e.Git.Git(fmt.Sprintf("branch -f %s %s", branchName, newHash), nil); err != nil {
		return errs.GitTransient("branch -f", err)
	}
	return nil
}

// pushBranches force-pushes every breakup branch in batches of
// pushBatchSize. A failed batch is retried one branch at a time so a
// single refused ref doesn't sink its batch-mates; a ref refused
// because its PR sits in the forge's merge queue is a warning, not a
// failure. Returns the updates whose branches are actually on the
// remote.
func (e *Engine) pushBranches(ctx context.Context, updates []branchUpdate) ([]branchUpdate, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	if e.Config.User.Pretend {
		for _, u := range updates {
			e.Printer.Printf("(pretend) push %s\n", u.branchName)
		}
		return nil, nil
	}

	remote := e.Config.Repo.GitHubRemote
	var pushed []branchUpdate
	for start := 0; start < len(updates); start += pushBatchSize {
		end := start + pushBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		batch := updates[start:end]

		refspecs := make([]string, 0, len(batch))
		for _, u := range batch {
			refspecs = append(refspecs, forcedRefspec(u.branchName))
		}
		if err := e.Git.Push(remote, refspecs); err == nil {
			pushed = append(pushed, batch...)
			continue
		}

		// Batch refused; identify the offender(s) individually.
		for _, u := range batch {
			err := e.Git.Push(remote, []string{forcedRefspec(u.branchName)})
			if err == nil {
				pushed = append(pushed, u)
				continue
			}
			if strings.Contains(err.Error(), "merge queue") {
				e.Printer.Printf("warning: %s is in a merge queue, not updated\n", u.branchName)
				log.Warn().Str("branch", u.branchName).Msg("push refused: merge queue")
				continue
			}
			if e.Config.User.BestEffort {
				e.Printer.Printf("warning: push of %s failed, continuing (best_effort): %s\n", u.branchName, err)
				continue
			}
			return nil, fmt.Errorf("pushing %s: %w", u.branchName, err)
		}
	}
	return pushed, nil
}

func forcedRefspec(branchName string) string {
	return fmt.Sprintf("+%s:refs/heads/%s", branchName, branchName)
}

// reconcilePRs creates or retargets one PR per pushed branch. Breakup
// PRs target their base directly and never carry a stack section, so
// the body is just the commit body. Reviewer failures are tolerated
// with a warning, matching the reconciler's policy for the same class.
func (e *Engine) reconcilePRs(ctx context.Context, updates []branchUpdate, reviewers []string) error {
	if len(updates) == 0 {
		return nil
	}

	login, err := e.Forge.GetAuthenticatedUserLogin(ctx)
	if err != nil {
		return errs.ForgeTransient("GetAuthenticatedUserLogin", err)
	}
	snap, err := e.Forge.GetSnapshot(ctx, login)
	if err != nil {
		return errs.ForgeTransient("GetSnapshot", err)
	}
	byBranch := make(map[string]*forge.PullRequest, len(snap.PullRequests))
	for _, pr := range snap.PullRequests {
		byBranch[pr.FromBranch] = pr
	}

	userIDs, err := e.resolveReviewers(ctx, reviewers, login)
	if err != nil {
		return err
	}

	for _, u := range updates {
		pr := byBranch[u.branchName]
		if pr == nil {
			if existing, lookErr := e.Forge.GetPRForBranch(ctx, u.branchName); lookErr == nil && existing != nil {
				pr = existing
			}
		}

		if pr == nil {
			created, err := e.Forge.CreatePullRequest(ctx, e.Config, u.commit, u.branchName, u.baseBranch, strings.TrimSpace(u.commit.Body))
			if err != nil {
				return errs.ForgeTransient("CreatePullRequest", err)
			}
			e.Printer.Printf("created #%d for %s\n", created.Number, u.branchName)
			if len(userIDs) > 0 {
				if err := e.Forge.AddReviewers(ctx, created, userIDs); err != nil {
					e.Printer.Printf("warning: failed to add reviewers on #%d: %s\n", created.Number, err)
				}
			}
			continue
		}

		if pr.ToBranch != u.baseBranch && !pr.InQueue {
			if err := e.Forge.UpdatePullRequest(ctx, e.Config, pr, u.commit, u.baseBranch, strings.TrimSpace(u.commit.Body)); err != nil {
				return errs.ForgeTransient("UpdatePullRequest", err)
			}
			e.Printer.Printf("retargeted #%d to %s\n", pr.Number, u.baseBranch)
		}
	}
	return nil
}

func (e *Engine) resolveReviewers(ctx context.Context, reviewers []string, login string) ([]string, error) {
	if len(reviewers) == 0 {
		return nil, nil
	}
	assignable, err := e.Forge.GetAssignableUsers(ctx)
	if err != nil {
		return nil, errs.ForgeTransient("GetAssignableUsers", err)
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
	return userIDs, nil
}
