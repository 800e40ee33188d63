// Package guard implements the state-restoration guard: before the
// engine touches history it records the current branch and HEAD, and if
// the operation fails it puts the repository back exactly there,
// aborting any rebase/cherry-pick/merge left in progress and clearing a
// stale index.lock rather than leaving the user stuck.
package guard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/corvidworks/stackpr/config"
	"github.com/corvidworks/stackpr/git"
)

// Guard snapshots repository state on construction and restores it on
// Restore, regardless of what the caller did in between.
type Guard struct {
	gitcmd        git.Interface
	cfg           *config.Config
	originalRef   string
	originalHead  string
	indexLockWait time.Duration
}

// New records the current branch and HEAD so Restore can return to them.
func New(gitcmd git.Interface, cfg *config.Config) (*Guard, error) {
	branch, err := gitcmd.GetLocalBranchShortName()
	if err != nil {
		return nil, fmt.Errorf("recording original branch: %w", err)
	}
	var head string
	if err := gitcmd.Git("rev-parse HEAD", &head); err != nil {
		return nil, fmt.Errorf("recording original HEAD: %w", err)
	}
	wait := time.Duration(cfg.User.IndexLockWaitSeconds) * time.Second
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Guard{
		gitcmd:        gitcmd,
		cfg:           cfg,
		originalRef:   branch,
		originalHead:  head,
		indexLockWait: wait,
	}, nil
}

// Run executes fn inside a guard: on any error (or panic) the
// repository is restored to the branch and HEAD recorded at entry, and
// the original error is returned.
func Run(ctx context.Context, gitcmd git.Interface, cfg *config.Config, fn func() error) error {
	g, err := New(gitcmd, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			g.Restore(ctx)
			panic(r)
		}
	}()
	if err := fn(); err != nil {
		g.Restore(ctx)
		return err
	}
	return nil
}

// Abort aborts any rebase, cherry-pick, or merge left in progress from
// a prior failed attempt. It is safe to call unconditionally: each
// abort is a no-op if nothing of that kind is in progress.
func (g *Guard) Abort(ctx context.Context) {
	var out string
	_ = g.gitcmd.Git("cherry-pick --abort", &out)
	_ = g.gitcmd.Git("rebase --abort", &out)
	_ = g.gitcmd.Git("merge --abort", &out)
}

// ClearStaleLock waits up to the configured timeout for .git/index.lock
// to disappear on its own (another git process holding it legitimately)
// before forcibly removing it. A lock that outlives the wait almost
// always belongs to a process this tool itself killed or crashed out
// of, since nothing else in the stack-sync flow runs two git commands
// concurrently against the same index.
func (g *Guard) ClearStaleLock() error {
	lockPath := filepath.Join(g.gitcmd.RootDir(), ".git", "index.lock")
	deadline := time.Now().Add(g.indexLockWait)
	for {
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			return nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale index.lock: %w", err)
	}
	log.Warn().Str("path", lockPath).Msg("removed stale index.lock after wait")
	return nil
}

// Restore returns the repository to the branch and HEAD recorded by
// New: abort anything in progress, check out the original branch
// (forcing if the tree is dirty), then reset hard to the original HEAD.
// If even that fails, the original SHA is logged for manual recovery.
func (g *Guard) Restore(ctx context.Context) {
	g.Abort(ctx)
	if err := g.ClearStaleLock(); err != nil {
		log.Warn().Err(err).Msg("clearing stale index.lock during restore")
	}

	var out string
	if err := g.gitcmd.Git(fmt.Sprintf("checkout %s", g.originalRef), &out); err != nil {
		if err := g.gitcmd.Git(fmt.Sprintf("checkout -f %s", g.originalRef), &out); err != nil {
			log.Error().Str("branch", g.originalRef).Err(err).Msg("failed to check out original branch")
		}
	}
	if err := g.gitcmd.Git(fmt.Sprintf("reset --hard %s", g.originalHead), &out); err != nil {
		log.Error().
			Str("branch", g.originalRef).
			Str("head", g.originalHead).
			Err(err).
			Msgf("failed to restore state; recover manually with: git checkout %s && git reset --hard %s",
				g.originalRef, g.originalHead)
	}
}
