package engine

import (
	"strings"
	"testing"

	"github.com/ejoffe/profiletimer"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/forge"
	"github.com/corvidworks/stackpr/forge/ghmock"
	"github.com/corvidworks/stackpr/git"
	"github.com/corvidworks/stackpr/git/gitmock"
	"github.com/corvidworks/stackpr/mock"
	"github.com/corvidworks/stackpr/output"
)

// testEngine wires an Engine against the shared ordered-expectation
// queue, synchronized so fan-outs run serially and the call order is
// deterministic.
func testEngine(t *testing.T) (*Engine, *mock.Expectations, *output.Captured) {
	exp := mock.NewExpectations(t)
	printer := output.MockPrinter(t.Fatalf)
	e := New(
		config.DefaultConfig(),
		gitmock.New(t, exp, t.TempDir()),
		ghmock.New(t, exp),
		printer,
		profiletimer.StartNoopTimer(),
	)
	e.Synchronized = true
	return e, exp, printer
}

// hash returns a syntactically valid 40-hex commit hash derived from a
// short seed, stable so tests can predict refspecs.
func hash(seed string) string {
	return strings.Repeat(seed, 40/len(seed))[:40]
}

// commitObj builds the go-git commit object UnmergedCommits returns for
// a commit already carrying a commit-id trailer.
func commitObj(commitID, subject, hashSeed string) *object.Commit {
	return &object.Commit{
		Hash:    plumbing.NewHash(hash(hashSeed)),
		Message: subject + "\n\ncommit-id:" + commitID + "\n",
	}
}

// snapPR builds a snapshot entry for an open stacked PR.
func snapPR(number int, commitID, hashSeed, toBranch string) *forge.PullRequest {
	return &forge.PullRequest{
		Number:     number,
		FromBranch: "spr/main/" + commitID,
		ToBranch:   toBranch,
		Commit: git.Commit{
			CommitID:   commitID,
			CommitHash: hash(hashSeed),
		},
		MergeStatus: forge.MergeStatus{
			ChecksPass:     forge.CheckStatusPass,
			ReviewApproved: true,
			NoConflicts:    true,
		},
	}
}
