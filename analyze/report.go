package analyze

import (
	"fmt"
	"strings"

	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/output"
)

// Report renders res for the analyze command: classification counts,
// the tree forest, and the stack grouping, in the analyzer's stable
// traversal order.
func Report(p output.Printer, res *Result) {
	independent, dependent, orphan := res.Counts()
	p.Printf("independent: %d  dependent: %d  orphan: %d\n", independent, dependent, orphan)

	if len(res.Trees) > 0 {
		p.Print("\ntrees:\n")
		for _, root := range res.Trees {
			printTree(p, root, 1)
		}
	}

	if len(res.Stacks) > 0 {
		p.Print("\nstacks:\n")
		for i, stack := range res.Stacks {
			p.Printf("  %d: %s\n", i+1, describeCommits(stack))
		}
	}

	if len(res.Orphan) > 0 {
		p.Print("\norphans (depend on more than one earlier commit):\n")
		for _, c := range res.Orphan {
			p.Printf("  %s %s\n", shortHash(c), c.Subject)
		}
	}
}

func printTree(p output.Printer, node *TreeNode, depth int) {
	p.Printf("%s%s %s\n", strings.Repeat("  ", depth), shortHash(node.Commit), node.Commit.Subject)
	for _, child := range node.Children {
		printTree(p, child, depth+1)
	}
}

func describeCommits(commits []git.Commit) string {
	parts := make([]string, 0, len(commits))
	for _, c := range commits {
		parts = append(parts, fmt.Sprintf("%s %q", shortHash(c), c.Subject))
	}
	return strings.Join(parts, " -> ")
}

func shortHash(c git.Commit) string {
	if len(c.CommitHash) > 8 {
		return c.CommitHash[:8]
	}
	return c.CommitHash
}
