// Package realgit is the production implementation of git.Interface. It
// composes a shell-exec half (internal.CmdLine, for the plumbing go-git
// does not expose well: rebase, cherry-pick, worktrees) with a
// go-git-native half (internal.NativeGit, for ref/remote queries,
// fetch, push and remote branch deletion) over a shared internal.Gitbase.
package realgit

import (
	"context"
	"io"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/git/realgit/internal"
)

// Cmd is the real git.Interface implementation.
type Cmd struct {
	base      *internal.Gitbase
	cmdline   internal.CmdLine
	nativegit internal.NativeGit
}

// NewGitCmd constructs a Cmd rooted at the repository containing the
// process's current working directory.
func NewGitCmd(cfg *config.Config) *Cmd {
	rootdir, err := rootDir()
	if err != nil {
		rootdir, _ = os.Getwd()
	}
	base := &internal.Gitbase{
		Config:  cfg,
		Rootdir: rootdir,
		Stderr:  os.Stderr,
	}
	return &Cmd{
		base:      base,
		cmdline:   internal.NewCmdLine(base),
		nativegit: internal.NewNativeGit(base),
	}
}

func rootDir() (string, error) {
	repo := internal.Repo()
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	return wt.Filesystem.Root(), nil
}

func (c *Cmd) SetStderr(w io.Writer) { c.base.Stderr = w }

func (c *Cmd) Git(args string, output *string) error { return c.cmdline.Git(args, output) }
func (c *Cmd) MustGit(args string, output *string)   { c.cmdline.MustGit(args, output) }
func (c *Cmd) GitWithEditor(args string, output *string, editorCmd string) error {
	return c.cmdline.GitWithEditor(args, output, editorCmd)
}
func (c *Cmd) RootDir() string { return c.base.Rootdir }

func (c *Cmd) GetLocalBranchShortName() (string, error) { return c.nativegit.GetLocalBranchShortName() }
func (c *Cmd) Fetch(remoteName string, prune bool) error { return c.nativegit.Fetch(remoteName, prune) }
func (c *Cmd) Reference(name string, resolved bool) (string, error) {
	return c.nativegit.Reference(name, resolved)
}
func (c *Cmd) Push(remoteName string, refspecs []string) error {
	return c.nativegit.Push(remoteName, refspecs)
}
func (c *Cmd) RemoteBranches() (mapset.Set[string], error) { return c.nativegit.RemoteBranches() }
func (c *Cmd) BranchExists(branchName string) (bool, error) {
	return c.nativegit.BranchExists(branchName)
}
func (c *Cmd) OriginMainRef(ctx context.Context) (string, error) {
	return c.nativegit.OriginMainRef(ctx)
}
func (c *Cmd) OriginBranchRef(ctx context.Context, branch string) (string, error) {
	return c.nativegit.OriginBranchRef(ctx, branch)
}
func (c *Cmd) UnmergedCommits(ctx context.Context) ([]*object.Commit, error) {
	return c.nativegit.UnmergedCommits(ctx)
}
func (c *Cmd) Rebase(ctx context.Context, remoteName, branchName string) error {
	return c.cmdline.Rebase(ctx, remoteName, branchName)
}
func (c *Cmd) Email() (string, error) { return c.nativegit.Email() }

func (c *Cmd) CherryPickProbe(ctx context.Context, destRef string, sha string) (string, string, bool, error) {
	return c.cmdline.CherryPickProbe(ctx, destRef, sha)
}

func (c *Cmd) TreeHash(ctx context.Context, ref string) (string, error) {
	return c.cmdline.TreeHash(ctx, ref)
}

func (c *Cmd) DeleteRemoteBranch(ctx context.Context, branch string) error {
	return c.nativegit.DeleteRemoteBranch(ctx, branch)
}
