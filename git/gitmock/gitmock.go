// Package gitmock is an ordered-expectation test double for
// git.Interface.
package gitmock

import (
	"context"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/corvidworks/stackpr/mock"
)

const (
	OpGit               mock.Operation = "Git"
	OpFetch             mock.Operation = "Fetch"
	OpReference         mock.Operation = "Reference"
	OpPush              mock.Operation = "Push"
	OpRemoteBranches    mock.Operation = "RemoteBranches"
	OpBranchExists      mock.Operation = "BranchExists"
	OpOriginMainRef     mock.Operation = "OriginMainRef"
	OpOriginBranchRef   mock.Operation = "OriginBranchRef"
	OpUnmergedCommits   mock.Operation = "UnmergedCommits"
	OpRebase            mock.Operation = "Rebase"
	OpEmail             mock.Operation = "Email"
	OpCherryPickProbe   mock.Operation = "CherryPickProbe"
	OpGetLocalBranch    mock.Operation = "GetLocalBranchShortName"
	OpDeleteRemoteBranch mock.Operation = "DeleteRemoteBranch"
	OpTreeHash          mock.Operation = "TreeHash"
)

// Mock implements git.Interface against a shared *mock.Expectations
// queue, so a single test can interleave git and forge expectations in
// the exact order the engine is expected to issue them.
type Mock struct {
	Root string
	exp  *mock.Expectations
}

func New(t *testing.T, exp *mock.Expectations, root string) *Mock {
	return &Mock{Root: root, exp: exp}
}

func (m *Mock) RootDir() string { return m.Root }

func (m *Mock) Git(args string, output *string) error {
	e := m.exp.Next(OpGit, args)
	if output != nil {
		if s, ok := e.Output.(string); ok {
			*output = s
		}
	}
	return e.Err
}

func (m *Mock) MustGit(args string, output *string) {
	if err := m.Git(args, output); err != nil {
		panic(err)
	}
}

func (m *Mock) GitWithEditor(args string, output *string, editorCmd string) error {
	return m.Git(args, output)
}

func (m *Mock) GetLocalBranchShortName() (string, error) {
	e := m.exp.Next(OpGetLocalBranch, nil)
	s, _ := e.Output.(string)
	return s, e.Err
}

func (m *Mock) Fetch(remoteName string, prune bool) error {
	e := m.exp.Next(OpFetch, remoteName)
	return e.Err
}

func (m *Mock) Reference(name string, resolved bool) (string, error) {
	e := m.exp.Next(OpReference, name)
	s, _ := e.Output.(string)
	return s, e.Err
}

func (m *Mock) Push(remoteName string, refspecs []string) error {
	e := m.exp.Next(OpPush, refspecs)
	return e.Err
}

func (m *Mock) RemoteBranches() (mapset.Set[string], error) {
	e := m.exp.Next(OpRemoteBranches, nil)
	if s, ok := e.Output.(mapset.Set[string]); ok {
		return s, e.Err
	}
	return mapset.NewSet[string](), e.Err
}

func (m *Mock) BranchExists(branchName string) (bool, error) {
	e := m.exp.Next(OpBranchExists, branchName)
	b, _ := e.Output.(bool)
	return b, e.Err
}

func (m *Mock) OriginMainRef(ctx context.Context) (string, error) {
	e := m.exp.Next(OpOriginMainRef, nil)
	s, _ := e.Output.(string)
	return s, e.Err
}

func (m *Mock) OriginBranchRef(ctx context.Context, branch string) (string, error) {
	e := m.exp.Next(OpOriginBranchRef, branch)
	s, _ := e.Output.(string)
	return s, e.Err
}

func (m *Mock) UnmergedCommits(ctx context.Context) ([]*object.Commit, error) {
	e := m.exp.Next(OpUnmergedCommits, nil)
	if c, ok := e.Output.([]*object.Commit); ok {
		return c, e.Err
	}
	return nil, e.Err
}

func (m *Mock) Rebase(ctx context.Context, remoteName, branchName string) error {
	e := m.exp.Next(OpRebase, [2]string{remoteName, branchName})
	return e.Err
}

func (m *Mock) Email() (string, error) {
	e := m.exp.Next(OpEmail, nil)
	s, _ := e.Output.(string)
	return s, e.Err
}

// CherryPickProbeResult is the Output payload expected callers register
// for OpCherryPickProbe.
type CherryPickProbeResult struct {
	NewHash string
	NewTree string
	OK      bool
}

func (m *Mock) CherryPickProbe(ctx context.Context, destRef string, sha string) (string, string, bool, error) {
	e := m.exp.Next(OpCherryPickProbe, [2]string{destRef, sha})
	r, _ := e.Output.(CherryPickProbeResult)
	return r.NewHash, r.NewTree, r.OK, e.Err
}

func (m *Mock) DeleteRemoteBranch(ctx context.Context, branch string) error {
	e := m.exp.Next(OpDeleteRemoteBranch, branch)
	return e.Err
}

func (m *Mock) TreeHash(ctx context.Context, ref string) (string, error) {
	e := m.exp.Next(OpTreeHash, ref)
	s, _ := e.Output.(string)
	return s, e.Err
}
