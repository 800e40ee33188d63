package engine

import (
	"fmt"

	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/git"
)

// matchStack reconciles localCommits (non-WIP, oldest-to-newest)
// against snap into an ordered (bottom-to-top) stack of PRs: a direct
// match when every local commit has a PR, else a chain walk starting
// from the highest local commit with a PR and following base refs down
// to the trunk.
func matchStack(trunk string, localCommits []git.Commit, snap *forge.Snapshot) ([]*forge.PullRequest, error) {
	byCommitID := make(map[string]*forge.PullRequest, len(snap.PullRequests))
	for _, pr := range snap.PullRequests {
		if pr.Commit.CommitID != "" {
			byCommitID[pr.Commit.CommitID] = pr
		}
	}

	if len(localCommits) == 0 {
		return nil, nil
	}

	// Find the highest local commit that has a PR; this is the top of
	// the stack regardless of whether every commit below it matched
	// (direct match is just the special case where the chain walk never
	// needs to fall back on base_ref).
	var top *forge.PullRequest
	for i := len(localCommits) - 1; i >= 0; i-- {
		if pr, ok := byCommitID[localCommits[i].CommitID]; ok {
			top = pr
			break
		}
	}
	if top == nil {
		return nil, nil
	}

	var stack []*forge.PullRequest
	cur := top
	for cur != nil {
		stack = append([]*forge.PullRequest{cur}, stack...)
		if cur.ToBranch == trunk {
			break
		}
		nextID := git.CommitIDFromBranch(cur.ToBranch)
		if nextID == "" {
			return nil, fmt.Errorf("pull request #%d has an unrecognized base branch %q", cur.Number, cur.ToBranch)
		}
		next, ok := byCommitID[nextID]
		if !ok {
			break
		}
		cur = next
	}
	return stack, nil
}
