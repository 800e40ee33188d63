// Package analyze classifies a linear commit history's true
// dependencies via cherry-pick probing (not textual diff), and derives
// the two stacking groupings breakup's --stacks mode delegates to.
package analyze

import (
	"context"
	"fmt"

	"github.com/corvidworks/stackpr/git"
)

// Classification is the coarse dependency bucket a commit falls into.
type Classification int

const (
	Unclassified Classification = iota
	Independent
	Dependent
	Orphan
)

func (c Classification) String() string {
	switch c {
	case Independent:
		return "independent"
	case Dependent:
		return "dependent"
	case Orphan:
		return "orphan"
	default:
		return "unclassified"
	}
}

// TreeNode is one node of the Trees forest: a commit plus the children
// that cherry-pick cleanly onto it once it is relocated onto the trunk.
type TreeNode struct {
	Commit   git.Commit
	Children []*TreeNode
}

// Result is C8's structured output: classification counts, the Trees
// forest, and the Stacks grouping. StackOrphans holds every Trees
// orphan plus any commit the Trees pass placed but that could not
// extend any stack's tip; the
// Stacks grouping is strictly more restrictive than Trees (it only
// tries a stack's single tip, not every relocated commit), so its
// orphan set can be a superset of Orphan.
type Result struct {
	Independent []git.Commit
	Dependent   []git.Commit
	Orphan      []git.Commit

	Trees  []*TreeNode
	Stacks [][]git.Commit

	StackOrphans []git.Commit
}

func (r *Result) Counts() (independent, dependent, orphan int) {
	return len(r.Independent), len(r.Dependent), len(r.Orphan)
}

type treeCandidate struct {
	node *TreeNode
	hash string
}

type stackCandidate struct {
	commits []git.Commit
	hash    string
}

// Analyze classifies commits (oldest-to-newest) against trunkRef, then
// builds Trees (try every already-relocated commit as a candidate
// parent) and Stacks (try only each existing stack's tip) groupings
// from the same cherry-pick-probe primitive. Both passes preserve
// stable traversal order: parents before children, siblings in local
// commit order, since commits are walked bottom-up exactly once and
// attached in that order.
func Analyze(ctx context.Context, gitcmd git.Interface, trunkRef string, commits []git.Commit) (*Result, error) {
	res := &Result{}

	var allTreeNodes []*treeCandidate
	var roots []*treeCandidate
	var stacks []*stackCandidate

	for _, c := range commits {
		trunkHash, trunkOK, err := probe(ctx, gitcmd, trunkRef, c.CommitHash)
		if err != nil {
			return nil, fmt.Errorf("probing %s onto trunk: %w", c.CommitID, err)
		}
		if trunkOK {
			node := &TreeNode{Commit: c}
			cand := &treeCandidate{node: node, hash: trunkHash}
			roots = append(roots, cand)
			allTreeNodes = append(allTreeNodes, cand)
			stacks = append(stacks, &stackCandidate{commits: []git.Commit{c}, hash: trunkHash})
			res.Independent = append(res.Independent, c)
			continue
		}

		var parent *treeCandidate
		var parentHash string
		for _, cand := range allTreeNodes {
			h, ok, err := probe(ctx, gitcmd, cand.hash, c.CommitHash)
			if err != nil {
				return nil, fmt.Errorf("probing %s onto %s: %w", c.CommitID, cand.node.Commit.CommitID, err)
			}
			if ok {
				parent, parentHash = cand, h
				break
			}
		}

		if parent == nil {
			res.Orphan = append(res.Orphan, c)
			res.StackOrphans = append(res.StackOrphans, c)
			continue
		}

		res.Dependent = append(res.Dependent, c)
		node := &TreeNode{Commit: c}
		parent.node.Children = append(parent.node.Children, node)
		allTreeNodes = append(allTreeNodes, &treeCandidate{node: node, hash: parentHash})

		attached := false
		for _, s := range stacks {
			h, ok, err := probe(ctx, gitcmd, s.hash, c.CommitHash)
			if err != nil {
				return nil, fmt.Errorf("probing %s onto stack tip: %w", c.CommitID, err)
			}
			if ok {
				s.commits = append(s.commits, c)
				s.hash = h
				attached = true
				break
			}
		}
		if !attached {
			res.StackOrphans = append(res.StackOrphans, c)
		}
	}

	for _, r := range roots {
		res.Trees = append(res.Trees, r.node)
	}
	for _, s := range stacks {
		res.Stacks = append(res.Stacks, s.commits)
	}
	return res, nil
}

func probe(ctx context.Context, gitcmd git.Interface, destRef, sha string) (newHash string, ok bool, err error) {
	newHash, _, ok, err = gitcmd.CherryPickProbe(ctx, destRef, sha)
	return newHash, ok, err
}
