package engine

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/forge/ghmock"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/git/gitmock"
	"github.com/corvidworks/stackpr/mock"
)

func expectFetchRebase(exp *mock.Expectations) {
	exp.Expect(mock.Expectation{Op: gitmock.OpGetLocalBranch, Output: "feature"})
	exp.Expect(mock.Expectation{Op: gitmock.OpFetch, Input: "origin"})
	exp.Expect(mock.Expectation{Op: gitmock.OpRebase, Input: [2]string{"origin", "main"}})
}

func expectLog(exp *mock.Expectations, commits ...*object.Commit) {
	exp.Expect(mock.Expectation{Op: gitmock.OpUnmergedCommits, Output: commits})
}

func expectSnapshot(exp *mock.Expectations, prs ...*forge.PullRequest) {
	exp.Expect(mock.Expectation{Op: ghmock.OpGetAuthenticatedUserLogin, Output: "me"})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetSnapshot, Output: &forge.Snapshot{PullRequests: prs}})
}

func TestUpdateCreatesChainedStack(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// UnmergedCommits returns HEAD-first.
	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	)
	expectSnapshot(exp)

	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "status --porcelain --untracked-files=no", Output: ""})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+" + hash("a") + ":refs/heads/spr/main/aaaa1111",
		"+" + hash("b") + ":refs/heads/spr/main/bbbb2222",
	}})

	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{
		Number: 1, FromBranch: "spr/main/aaaa1111", ToBranch: "main",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{
		Number: 2, FromBranch: "spr/main/bbbb2222", ToBranch: "spr/main/aaaa1111",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	stack, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()

	require.Len(t, stack, 2)
	assert.Equal(t, 1, stack[0].Number)
	assert.Equal(t, 2, stack[1].Number)

	creates := exp.Calls(ghmock.OpCreatePullRequest)
	require.Len(t, creates, 2)
	first := creates[0].Input.(ghmock.CreatePullRequestInput)
	second := creates[1].Input.(ghmock.CreatePullRequestInput)
	assert.Equal(t, "main", first.ToBranch)
	assert.Equal(t, "spr/main/aaaa1111", first.FromBranch)
	assert.Equal(t, "spr/main/aaaa1111", second.ToBranch)
	assert.Equal(t, "spr/main/bbbb2222", second.FromBranch)

	updates := exp.Calls(ghmock.OpUpdatePullRequest)
	require.Len(t, updates, 2)
	firstUp := updates[0].Input.(ghmock.UpdatePullRequestInput)
	secondUp := updates[1].Input.(ghmock.UpdatePullRequestInput)
	assert.Equal(t, "main", firstUp.ToBranch)
	assert.Equal(t, "spr/main/aaaa1111", secondUp.ToBranch)
	assert.Contains(t, firstUp.StackBody, "#2")
	assert.Contains(t, firstUp.StackBody, "#1 ⬅")
	assert.Contains(t, secondUp.StackBody, "#2 ⬅")
}

func TestUpdateWIPGating(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// Only the two commits below the WIP are projected; the WIP and the
	// commit above it get no PR and no push.
	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("dddd4444", "above wip", "d"),
		commitObj("cccc3333", "WIP: not ready", "c"),
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	)
	expectSnapshot(exp)

	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "status --porcelain --untracked-files=no", Output: ""})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+" + hash("a") + ":refs/heads/spr/main/aaaa1111",
		"+" + hash("b") + ":refs/heads/spr/main/bbbb2222",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 1}})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 2}})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	stack, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Len(t, stack, 2)
}

func TestUpdateNoLocalChangesDoesNotPush(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// The snapshot already carries both commits at their current
	// hashes: no ref updates are planned, but titles/bodies/bases are
	// still rewritten from the freshly computed stack.
	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	)
	expectSnapshot(exp,
		snapPR(1, "aaaa1111", "a", "main"),
		snapPR(2, "bbbb2222", "b", "spr/main/aaaa1111"),
	)
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	stack, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Len(t, stack, 2)
	assert.Empty(t, exp.Calls(gitmock.OpPush))
	assert.Empty(t, exp.Calls(ghmock.OpCreatePullRequest))
}

func TestUpdateReorderRetargetsSurvivingPRs(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// Local order is now A, C, B; reordering rewrote every hash above
	// A, so B and C are re-pushed and every base pointer is recomputed
	// from the new local order. All three PR numbers survive.
	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("bbbb2222", "second change", "e"),
		commitObj("cccc3333", "third change", "d"),
		commitObj("aaaa1111", "first change", "a"),
	)
	expectSnapshot(exp,
		snapPR(1, "aaaa1111", "a", "main"),
		snapPR(2, "bbbb2222", "b", "spr/main/aaaa1111"),
		snapPR(3, "cccc3333", "c", "spr/main/bbbb2222"),
	)

	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "status --porcelain --untracked-files=no", Output: ""})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+" + hash("d") + ":refs/heads/spr/main/cccc3333",
		"+" + hash("e") + ":refs/heads/spr/main/bbbb2222",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	stack, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()

	require.Len(t, stack, 3)
	assert.Equal(t, []int{1, 3, 2}, []int{stack[0].Number, stack[1].Number, stack[2].Number})

	updates := exp.Calls(ghmock.OpUpdatePullRequest)
	require.Len(t, updates, 3)
	assert.Equal(t, "main", updates[0].Input.(ghmock.UpdatePullRequestInput).ToBranch)
	assert.Equal(t, "spr/main/aaaa1111", updates[1].Input.(ghmock.UpdatePullRequestInput).ToBranch)
	assert.Equal(t, "spr/main/cccc3333", updates[2].Input.(ghmock.UpdatePullRequestInput).ToBranch)
}

func TestUpdateClosesDisappearedCommit(t *testing.T) {
	e, exp, _ := testEngine(t)
	e.Config.Repo.AutoCloseClosedCommits = true
	ctx := context.Background()

	expectFetchRebase(exp)
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp,
		snapPR(1, "aaaa1111", "a", "main"),
		snapPR(2, "bbbb2222", "b", "spr/main/aaaa1111"),
	)
	exp.Expect(mock.Expectation{Op: ghmock.OpCommentPullRequest, Input: "Closing pull request: commit has gone away"})
	exp.Expect(mock.Expectation{Op: ghmock.OpClosePullRequest, Input: 2})
	exp.Expect(mock.Expectation{Op: gitmock.OpDeleteRemoteBranch, Input: "spr/main/bbbb2222"})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	stack, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Len(t, stack, 1)
}

func TestUpdatePreservesForeignPRsWithoutAutoClose(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// auto_close_prs is off by default: a PR from another branch's
	// stack survives an update from this branch untouched.
	expectFetchRebase(exp)
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp,
		snapPR(1, "aaaa1111", "a", "main"),
		snapPR(2, "bbbb2222", "b", "spr/main/aaaa1111"),
	)
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	_, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Empty(t, exp.Calls(ghmock.OpClosePullRequest))
}

func TestUpdateReviewersSkipSelfAndUnassignable(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	expectFetchRebase(exp)
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp, snapPR(1, "aaaa1111", "a", "main"))
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetAssignableUsers, Output: map[string]string{
		"alice": "id-alice",
		"me":    "id-me",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpAddReviewers, Input: []string{"id-alice"}})

	_, err := e.Update(ctx, []string{"alice", "me", "ghost"}, nil)
	require.NoError(t, err)
	exp.Verify()
}

func TestUpdateReviewersApplyToExistingPRs(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	// One PR pre-exists and one is freshly created; the reviewer lands
	// on both.
	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("bbbb2222", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	)
	expectSnapshot(exp, snapPR(1, "aaaa1111", "a", "main"))

	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "status --porcelain --untracked-files=no", Output: ""})
	exp.Expect(mock.Expectation{Op: gitmock.OpPush, Input: []string{
		"+" + hash("b") + ":refs/heads/spr/main/bbbb2222",
	}})
	exp.Expect(mock.Expectation{Op: ghmock.OpCreatePullRequest, Output: &forge.PullRequest{Number: 2}})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpGetAssignableUsers, Output: map[string]string{"alice": "id-alice"}})
	exp.Expect(mock.Expectation{Op: ghmock.OpAddReviewers, Input: []string{"id-alice"}})
	exp.Expect(mock.Expectation{Op: ghmock.OpAddReviewers, Input: []string{"id-alice"}})

	_, err := e.Update(ctx, []string{"alice"}, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Len(t, exp.Calls(ghmock.OpAddReviewers), 2)
}

func TestUpdateDuplicateCommitIDAbortsBeforeAnyMutation(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	expectFetchRebase(exp)
	expectLog(exp,
		commitObj("aaaa1111", "second change", "b"),
		commitObj("aaaa1111", "first change", "a"),
	)

	_, err := e.Update(ctx, nil, nil)
	require.Error(t, err)

	var dup *git.DuplicateCommitIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "aaaa1111", dup.CommitID)
	assert.Contains(t, err.Error(), "cherry-pick")
	exp.Verify()

	// No forge call of any kind happened.
	assert.Empty(t, exp.Calls(ghmock.OpCreatePullRequest))
	assert.Empty(t, exp.Calls(ghmock.OpUpdatePullRequest))
	assert.Empty(t, exp.Calls(ghmock.OpGetSnapshot))
	assert.Empty(t, exp.Calls(gitmock.OpPush))
}

func TestUpdateLabels(t *testing.T) {
	e, exp, _ := testEngine(t)
	e.Config.Repo.Labels = []string{"stacked"}
	ctx := context.Background()

	expectFetchRebase(exp)
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp, snapPR(1, "aaaa1111", "a", "main"))
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})
	exp.Expect(mock.Expectation{Op: ghmock.OpAddLabels, Input: []string{"stacked"}})

	_, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
}

func TestUpdateRefusesPRBranchCheckout(t *testing.T) {
	e, exp, _ := testEngine(t)
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpGetLocalBranch, Output: "spr/main/aaaa1111"})

	_, err := e.Update(ctx, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull request branch")
	exp.Verify()
	assert.Empty(t, exp.Calls(gitmock.OpFetch))
}

func TestUpdateForceFetchTags(t *testing.T) {
	e, exp, _ := testEngine(t)
	e.Config.Repo.ForceFetchTags = true
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpGetLocalBranch, Output: "feature"})
	exp.Expect(mock.Expectation{Op: gitmock.OpGit, Input: "fetch --tags --force"})
	exp.Expect(mock.Expectation{Op: gitmock.OpRebase, Input: [2]string{"origin", "main"}})
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp, snapPR(1, "aaaa1111", "a", "main"))
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	_, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Empty(t, exp.Calls(gitmock.OpFetch))
}

func TestUpdateNoRebaseSkipsRebase(t *testing.T) {
	e, exp, _ := testEngine(t)
	e.Config.User.NoRebase = true
	ctx := context.Background()

	exp.Expect(mock.Expectation{Op: gitmock.OpGetLocalBranch, Output: "feature"})
	exp.Expect(mock.Expectation{Op: gitmock.OpFetch, Input: "origin"})
	expectLog(exp, commitObj("aaaa1111", "first change", "a"))
	expectSnapshot(exp, snapPR(1, "aaaa1111", "a", "main"))
	exp.Expect(mock.Expectation{Op: ghmock.OpUpdatePullRequest})

	_, err := e.Update(ctx, nil, nil)
	require.NoError(t, err)
	exp.Verify()
	assert.Empty(t, exp.Calls(gitmock.OpRebase))
}
