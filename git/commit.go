// Package git defines the commit-identity model and the narrow git
// capability surface the engine is built against. Concrete
// implementations live in git/realgit (shells out to git + go-git) and
// git/gitmock (an ordered-expectation test double).
package git

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/corvidworks/stackpr/config"
)

// Interface is the git capability surface the core consumes. It never
// branches on whether it is talking to a real repository or a test
// double.
type Interface interface {
	Git(args string, output *string) error
	MustGit(args string, output *string)
	GitWithEditor(args string, output *string, editorCmd string) error
	RootDir() string

	GetLocalBranchShortName() (string, error)
	Fetch(remoteName string, prune bool) error
	Reference(name string, resolved bool) (string, error)
	Push(remoteName string, refspecs []string) error
	RemoteBranches() (mapset.Set[string], error)
	BranchExists(branchName string) (bool, error)
	OriginMainRef(ctx context.Context) (string, error)
	OriginBranchRef(ctx context.Context, branch string) (string, error)
	UnmergedCommits(ctx context.Context) ([]*object.Commit, error)
	Rebase(ctx context.Context, remoteName, branchName string) error
	Email() (string, error)
	DeleteRemoteBranch(ctx context.Context, branch string) error

	// CherryPickProbe attempts to cherry-pick sha onto a scratch worktree
	// rooted at destRef without touching the caller's working tree or
	// index. It returns the new commit hash and tree hash on success.
	// On conflict it returns ok=false with no error.
	CherryPickProbe(ctx context.Context, destRef string, sha string) (newHash string, newTree string, ok bool, err error)

	// TreeHash resolves ref^{tree}, used by the breakup engine to
	// compare an existing branch's content against a freshly probed
	// commit without relying on hash identity (which changes on every
	// cherry-pick even when the tree does not).
	TreeHash(ctx context.Context, ref string) (string, error)
}

// Commit has all the git commit info the engine reasons about.
type Commit struct {
	// CommitID is a long-lasting id describing the commit. It is
	// generated once and embedded as a "commit-id:<id>" trailer; it
	// remains the same across amends and cherry-picks that preserve the
	// message body.
	CommitID string

	// CommitHash is the git commit hash. It changes on every amend.
	CommitHash string

	// Subject is the first line of the commit message.
	Subject string

	// Body is everything after the subject, including the trailer.
	Body string

	// WIP is true if the subject starts with "WIP" (case-insensitive).
	WIP bool
}

const trailerPrefix = "commit-id:"

var commitIDRegex = regexp.MustCompile(`(?m)^commit-id:([a-f0-9]{8})\s*$`)

// CommitID parses the commit-id trailer out of a full commit message.
// It returns "" if no trailer is present.
func CommitID(msg string) string {
	matches := commitIDRegex.FindStringSubmatch(msg)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// IsWIP returns true if the subject line starts with "WIP" (any case),
// optionally bracketed ("[WIP] ...").
func IsWIP(subject string) bool {
	s := strings.TrimSpace(subject)
	upper := strings.ToUpper(s)
	return strings.HasPrefix(upper, "WIP") || strings.HasPrefix(upper, "[WIP]")
}

// Subject returns the first line of a commit message.
func Subject(msg string) string {
	return strings.SplitN(msg, "\n", 2)[0]
}

// Body returns everything after the first line of a commit message.
func Body(msg string) string {
	parts := strings.SplitN(msg, "\n", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// BranchNameRegex matches both the standard stacked-PR branch naming
// scheme and the breakup scheme, capturing (trunk, commitID).
var BranchNameRegex = regexp.MustCompile(`^(?:pyspr/cp|spr)/([^/]+)/([a-f0-9]{8})$`)

// CommitIDFromBranch decodes the commit-id embedded in a branch name
// produced by BranchNameFromCommitID or BreakupBranchName. It returns ""
// if the branch does not match either naming scheme.
func CommitIDFromBranch(branchName string) string {
	matches := BranchNameRegex.FindStringSubmatch(branchName)
	if matches == nil {
		return ""
	}
	return matches[2]
}

// BranchNameFromCommitID builds the standard stacked-PR branch name for
// a commit-id: spr/<trunk>/<commit_id>.
func BranchNameFromCommitID(cfg *config.Config, commitID string) string {
	return fmt.Sprintf("spr/%s/%s", cfg.Repo.GitHubBranch, commitID)
}

// BranchNameFromCommit is a convenience wrapper around
// BranchNameFromCommitID.
func BranchNameFromCommit(cfg *config.Config, commit Commit) string {
	return BranchNameFromCommitID(cfg, commit.CommitID)
}

// BreakupBranchName builds the breakup (independent-PR) branch name
// for a commit-id: <branch_prefix>cp/<trunk>/<commit_id>, which is
// pyspr/cp/<trunk>/<commit_id> under the default prefix.
func BreakupBranchName(cfg *config.Config, commitID string) string {
	prefix := cfg.Repo.BranchPrefix
	if prefix == "" {
		prefix = "pyspr/"
	}
	return fmt.Sprintf("%scp/%s/%s", prefix, cfg.Repo.GitHubBranch, commitID)
}

// IsBreakupBranch reports whether branchName was produced by
// BreakupBranchName; breakup PRs never get a stack section and are
// never retargeted by the stack reconciler.
func IsBreakupBranch(cfg *config.Config, branchName string) bool {
	prefix := cfg.Repo.BranchPrefix
	if prefix == "" {
		prefix = "pyspr/"
	}
	return strings.HasPrefix(branchName, prefix+"cp/")
}

// GenerateCommits converts the go-git commit objects (as returned by
// Interface.UnmergedCommits, HEAD-first) into the engine's Commit model,
// oldest-to-newest (trunk-base to HEAD).
func GenerateCommits(commits []*object.Commit) []Commit {
	out := make([]Commit, 0, len(commits))
	// commits arrives HEAD-first; reverse to get oldest-to-newest.
	for i := len(commits) - 1; i >= 0; i-- {
		cm := commits[i]
		out = append(out, Commit{
			CommitID:   CommitID(cm.Message),
			CommitHash: cm.Hash.String(),
			Subject:    Subject(cm.Message),
			Body:       Body(cm.Message),
			WIP:        IsWIP(Subject(cm.Message)),
		})
	}
	return out
}

// NonWIPPrefix returns the longest prefix of commits (in oldest-first
// order) before the first WIP commit. WIP commits and everything above
// the first WIP are excluded from PR projection.
func NonWIPPrefix(commits []Commit) []Commit {
	for i, c := range commits {
		if c.WIP {
			return commits[:i]
		}
	}
	return commits
}

// HasTrailer reports whether msg already carries a commit-id trailer.
func HasTrailer(msg string) bool {
	return strings.Contains(msg, trailerPrefix)
}
