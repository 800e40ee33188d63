// Package forge defines the hosted code-review-platform capability
// surface the engine is built against (PullRequest model, MergeStatus,
// and the Client interface). Concrete implementations live in
// forge/ghclient (GitHub, via GraphQL snapshot + REST mutation) and
// forge/ghmock (an ordered-expectation test double).
package forge

import (
	"context"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/git"
)

// CheckStatus is the tri-state result of a PR's required status checks.
type CheckStatus int

const (
	CheckStatusUnknown CheckStatus = iota
	CheckStatusPass
	CheckStatusPending
	CheckStatusFail
)

// MergeStatus summarizes everything the merge driver needs to know
// about whether a PR is eligible to merge.
type MergeStatus struct {
	ChecksPass     CheckStatus
	ReviewApproved bool
	NoConflicts    bool

	// Stacked marks the PR, and everything below it in the stack, as
	// satisfying the merge policy. Neither the forge clients nor the
	// merge driver set it; the merge driver walks the stack with Ready.
	Stacked bool
}

// Ready reports whether pr is mergeable under cfg's merge policy,
// independent of its position in the stack.
func (m MergeStatus) Ready(cfg *config.Config) bool {
	if cfg.Repo.RequireChecks && m.ChecksPass != CheckStatusPass {
		return false
	}
	if cfg.Repo.RequireApproval && !m.ReviewApproved {
		return false
	}
	return m.NoConflicts
}

// PullRequest is the engine's model of one stacked-PR entry.
type PullRequest struct {
	ID         string // GraphQL node id
	DatabaseID int64  // REST-numeric id, used for mutations go-github expects
	Number     int

	Title string
	Body  string

	FromBranch string
	ToBranch   string

	Commit git.Commit

	InQueue     bool
	Merged      bool
	Closed      bool
	MergeStatus MergeStatus
}

// Ready is a convenience wrapper around pr.MergeStatus.Ready.
func (pr *PullRequest) Ready(cfg *config.Config) bool {
	return pr.MergeStatus.Ready(cfg)
}

// Snapshot is everything the stack matcher needs about the forge's
// current view of this repository's open pull requests.
type Snapshot struct {
	PullRequests []*PullRequest
}

// Client is the forge capability surface the engine consumes.
type Client interface {
	// GetAuthenticatedUserLogin returns the login of the token owner,
	// used to filter snapshots down to PRs authored by the invoking
	// user.
	GetAuthenticatedUserLogin(ctx context.Context) (string, error)

	// GetSnapshot returns every open pull request authored by login
	// whose head branch matches git.BranchNameRegex.
	GetSnapshot(ctx context.Context, login string) (*Snapshot, error)

	CreatePullRequest(ctx context.Context, cfg *config.Config, commit git.Commit, fromBranch, toBranch string, prevBody string) (*PullRequest, error)
	UpdatePullRequest(ctx context.Context, cfg *config.Config, pr *PullRequest, commit git.Commit, toBranch string, stackBody string) error
	AddReviewers(ctx context.Context, pr *PullRequest, userIDs []string) error
	AddLabels(ctx context.Context, pr *PullRequest, labels []string) error
	CommentPullRequest(ctx context.Context, pr *PullRequest, comment string) error
	MergePullRequest(ctx context.Context, cfg *config.Config, pr *PullRequest) error
	EnableAutoMerge(ctx context.Context, cfg *config.Config, pr *PullRequest) error
	ClosePullRequest(ctx context.Context, pr *PullRequest) error

	// GetPRForBranch looks up the open PR whose head branch is
	// headBranch, used when CreatePullRequest reports "already exists".
	GetPRForBranch(ctx context.Context, headBranch string) (*PullRequest, error)

	GetAssignableUsers(ctx context.Context) (map[string]string, error)
}
