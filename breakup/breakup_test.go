package breakup

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/forge/ghmock"
	"github.com/corvidworks/stackpr/git/gitmock"
	"github.com/corvidworks/stackpr/mock"
	"github.com/corvidworks/stackpr/output"
)

func testBreakup(t *testing.T) (*Engine, *mock.Expectations, *output.Captured) {
	exp := mock.NewExpectations(t)
	printer := output.MockPrinter(t.Fatalf)
	e := New(
		config.DefaultConfig(),
		gitmock.New(t, exp, t.TempDir()),
		ghmock.New(t, exp),
		printer,
	)
	return e, exp, printer
}

func hash(seed string) string {
	return strings.Repeat(seed, 40)[:40]
}

func commitObj(commitID, subject, hashSeed string) *object.Commit {
	return &object.Commit{
		Hash:    plumbing.NewHash(hash(hashSeed)),
		Message: subject + "\n\ncommit-id:" + commitID + "\n",
	}
}

func probeOK(newHash, newTree string) gitmock.CherryPickProbeResult {
	return gitmock.CherryPickProbeResult{NewHash: newHash, NewTree: newTree, OK: true}
}

func TestBreakupIndependentAndDependentCommits(t *testing.T) {
	e, exp, printer := testBreakup(t)
	ctx := context.Background()

	// A applies cleanly and gets a fresh branch; B conflicts and is
	// skipped; C applies but its branch already has the same tree, so
	// the branch SHA is left alone while its PR is still reconciled.
	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: []*object.Commit{
		commitObj("cccc3333", "third change", "c"),
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	}})

	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("new-a", "tree-a")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/aaaa1111", Output: false})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "branch pyspr/cp/main/aaaa1111 new-a"})

	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("b")}, Output: gitmock.CherryPickProbeResult{}})

	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("c")}, Output: probeOK("new-c", "tree-c")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/cccc3333", Output: true})
	exp.Expect(mock.Expectation{Op: gitmock.OpTreeHash, Input: "pyspr/cp/main/cccc3333", Output: "tree-c"})

	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+pyspr/cp/main/aaaa1111:refs/heads/pyspr/cp/main/aaaa1111",
		"+pyspr/cp/main/cccc3333:refs/heads/pyspr/cp/main/cccc3333",
	}})

	existing := &forge.PullRequest{
		Number:     7,
		FromBranch: "pyspr/cp/main/cccc3333",
		ToBranch:   "main",
	}
	exp.Expect(mock.Expectation{Op: ghmock.OpGetAuthenticatedUserLogin, Output: "me"})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetSnapshot, Output: &forge.Snapshot{PullRequests: []*forge.PullRequest{existing}}})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetPRForBranch, Input: "pyspr/cp/main/aaaa1111", Err: fmt.Errorf("no open pull request found")})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 8}})

	require.NoError(t, e.Run(ctx, Options{}))
	exp.Verify()

	creates := exp.Calls(ghmock.OpCreatePullRequest)
	require.Len(t, creates, 1)
	created := creates[0].Input.(ghmock.CreatePullRequestInput)
	assert.Equal(t, "pyspr/cp/main/aaaa1111", created.FromBranch)
	assert.Equal(t, "main", created.ToBranch)

	// The up-to-date branch was never moved and its PR never
	// retargeted.
	for _, call := range exp.Calls(gitmock.OpGit) {
		assert.NotContains(t, call.Input.(string), "branch -f")
	}
	assert.Empty(t, exp.Calls(ghmock.OpUpdatePullRequest))

	printer.Purge()
	printer.ExpectString("branch pyspr/cp/main/cccc3333 already up to date")
	printer.ExpectString("created #8 for pyspr/cp/main/aaaa1111")
	printer.ExpectString("processed 3 commit(s): 2 branch(es), 1 skipped")
	printer.ExpectRegExp(`^  skipped \w{8} second change$`)
	printer.ExpectationsMet()
}

func TestBreakupTreeChangedForceMovesBranch(t *testing.T) {
	e, exp, _ := testBreakup(t)
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: []*object.Commit{
		commitObj("aaaa1111", "first change", "a"),
	}})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("new-a", "tree-a2")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/aaaa1111", Output: true})
	exp.Expect(mock.Expectation{Op: gitmock.OpTreeHash, Input: "pyspr/cp/main/aaaa1111", Output: "tree-a1"})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "branch -f pyspr/cp/main/aaaa1111 new-a"})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+pyspr/cp/main/aaaa1111:refs/heads/pyspr/cp/main/aaaa1111",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetAuthenticatedUserLogin, Output: "me"})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetSnapshot, Output: &forge.Snapshot{PullRequests: []*forge.PullRequest{
		{Number: 7, FromBranch: "pyspr/cp/main/aaaa1111", ToBranch: "main"},
	}}})

	require.NoError(t, e.Run(ctx, Options{}))
	exp.Verify()
}

func TestBreakupMergeQueuePushIsWarningNotFailure(t *testing.T) {
	e, exp, printer := testBreakup(t)
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: []*object.Commit{
		commitObj("aaaa1111", "first change", "a"),
	}})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("new-a", "tree-a")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/aaaa1111", Output: false})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "branch pyspr/cp/main/aaaa1111 new-a"})

	queueErr := fmt.Errorf("refusing to update ref: branch has been added to a merge queue")
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Err: queueErr})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Err: queueErr})

	require.NoError(t, e.Run(ctx, Options{}))
	exp.Verify()

	// Nothing was pushed, so no PR work happened either.
	assert.Empty(t, exp.Calls(ghmock.OpGetSnapshot))
	assert.Empty(t, exp.Calls(ghmock.OpCreatePullRequest))

	printer.Purge()
	printer.ExpectString("warning: pyspr/cp/main/aaaa1111 is in a merge queue, not updated")
	printer.ExpectString("processed 1 commit(s): 1 branch(es), 0 skipped")
	printer.ExpectationsMet()
}

func TestBreakupPretendTouchesNothing(t *testing.T) {
	e, exp, printer := testBreakup(t)
	e.Config.User.Pretend = true
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: []*object.Commit{
		commitObj("aaaa1111", "first change", "a"),
	}})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("new-a", "tree-a")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/aaaa1111", Output: false})

	require.NoError(t, e.Run(ctx, Options{}))
	exp.Verify()
	assert.Empty(t, exp.Calls(gitmock.OpPush))
	assert.Empty(t, exp.Calls(ghmock.OpCreatePullRequest))

	printer.Purge()
	printer.ExpectString("(pretend) create branch pyspr/cp/main/aaaa1111 at new-a")
	printer.ExpectString("(pretend) push pyspr/cp/main/aaaa1111")
	printer.ExpectString("processed 1 commit(s): 1 branch(es), 0 skipped")
	printer.ExpectationsMet()
}

func TestBreakupStacksChainsDependentCommits(t *testing.T) {
	e, exp, _ := testBreakup(t)
	ctx := context.Background()

	// A is independent, B depends on A: the stacks mode first analyzes
	// (probing A onto trunk, B onto trunk, B onto relocated A), then
	// replays the group as a chain with B's PR based on A's branch.
	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: []*object.Commit{
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	}})

	// Analyzer probes.
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("an-1", "at-1")})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("b")}, Output: gitmock.CherryPickProbeResult{}})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"an-1", hash("b")}, Output: probeOK("bn-1", "bt-1")})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"an-1", hash("b")}, Output: probeOK("bn-2", "bt-2")})

	// Chain replay.
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"origin/main", hash("a")}, Output: probeOK("an-2", "at-2")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/aaaa1111", Output: false})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "branch pyspr/cp/main/aaaa1111 an-2"})
	exp.Expect(mock.Expectation{Op: gitmock.OpCherryPickProbe, Input: [2]string{"an-2", hash("b")}, Output: probeOK("bn-3", "bt-3")})
	exp.Expect(mock.Expectation{Op: gitmock.OpBranchExists, Input: "pyspr/cp/main/bbbb2222", Output: false})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "branch pyspr/cp/main/bbbb2222 bn-3"})

	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+pyspr/cp/main/aaaa1111:refs/heads/pyspr/cp/main/aaaa1111",
		"+pyspr/cp/main/bbbb2222:refs/heads/pyspr/cp/main/bbbb2222",
	}})

	exp.Expect(mock.Expectation{Op: ghmock.OpGetAuthenticatedUserLogin, Output: "me"})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetSnapshot, Output: &forge.Snapshot{}})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetPRForBranch, Input: "pyspr/cp/main/aaaa1111", Err: fmt.Errorf("no open pull request found")})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 1}})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetPRForBranch, Input: "pyspr/cp/main/bbbb2222", Err: fmt.Errorf("no open pull request found")})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 2}})

	require.NoError(t, e.Run(ctx, Options{Stacks: true, Mode: ModeStacks}))
	exp.Verify()

	creates := exp.Calls(ghmock.OpCreatePullRequest)
	require.Len(t, creates, 2)
	assert.Equal(t, "main", creates[0].Input.(ghmock.CreatePullRequestInput).ToBranch)
	assert.Equal(t, "pyspr/cp/main/aaaa1111", creates[1].Input.(ghmock.CreatePullRequestInput).ToBranch)
}
