package git

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/corvidworks/stackpr/config"
)

// DuplicateCommitIDError is returned when two commits in the same local
// stack carry the same commit-id trailer. It is fatal: the caller must
// not mutate anything once it sees this error.
type DuplicateCommitIDError struct {
	CommitID     string
	HashA, HashB string
}

func (e *DuplicateCommitIDError) Error() string {
	return fmt.Sprintf(
		"duplicate commit-id %q on commits %s and %s (likely cause: a commit was cherry-picked across branches without the trailer being re-rolled)",
		e.CommitID, e.HashA, e.HashB)
}

// GenerateCommitID returns a fresh random 8-hex commit-id, re-rolling
// against taken until it finds one that doesn't collide.
func GenerateCommitID(taken map[string]bool) string {
	for {
		id := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		if !taken[id] {
			return id
		}
	}
}

// checkDuplicates returns a *DuplicateCommitIDError the first time two
// commits in commits carry the same non-empty commit-id.
func checkDuplicates(commits []Commit) error {
	seen := map[string]string{} // commit-id -> hash
	for _, c := range commits {
		if c.CommitID == "" {
			continue
		}
		if hashA, ok := seen[c.CommitID]; ok {
			return &DuplicateCommitIDError{CommitID: c.CommitID, HashA: hashA, HashB: c.CommitHash}
		}
		seen[c.CommitID] = c.CommitHash
	}
	return nil
}

// EnsureCommitIDs guarantees every commit in commits (oldest-to-newest)
// carries a commit-id trailer, rewriting the real repository's history
// when any are missing. commits must describe the caller's actual
// current HEAD; on success it returns the same commits with an updated
// CommitHash for every replayed commit and an updated CommitID/Body for
// every one that was amended, and the
// caller's HEAD now matches the returned sequence.
//
// The rewrite is minimal: generate a trailer for every commit missing
// one, reset back to one commit before the oldest gap, and cherry-pick
// forward, amending each affected commit's message as it is replayed.
// Duplicate trailers are checked before anything is mutated.
func EnsureCommitIDs(ctx context.Context, gitcmd Interface, cfg *config.Config, commits []Commit) ([]Commit, error) {
	if err := checkDuplicates(commits); err != nil {
		return nil, err
	}

	missing := -1
	taken := map[string]bool{}
	for i, c := range commits {
		if c.CommitID == "" {
			if missing == -1 {
				missing = i
			}
		} else {
			taken[c.CommitID] = true
		}
	}
	if missing == -1 {
		return commits, nil
	}

	k := len(commits) - missing
	if err := gitcmd.Git(fmt.Sprintf("reset --hard HEAD~%d", k), nil); err != nil {
		return nil, fmt.Errorf("resetting back %d commits to rewrite trailers: %w", k, err)
	}

	out := append([]Commit(nil), commits[:missing]...)
	for i := missing; i < len(commits); i++ {
		c := commits[i]
		if err := gitcmd.Git(fmt.Sprintf("cherry-pick --keep-redundant-commits %s", c.CommitHash), nil); err != nil {
			return nil, fmt.Errorf("replaying commit %s while installing commit-id trailers: %w", c.CommitHash, err)
		}
		if c.CommitID == "" {
			id := GenerateCommitID(taken)
			taken[id] = true
			c.CommitID = id
			c.Body = appendTrailer(c.Body, id)
			if err := amendMessage(gitcmd, c.Subject, c.Body); err != nil {
				return nil, fmt.Errorf("amending commit-id trailer onto %s: %w", c.CommitHash, err)
			}
		}
		var hash string
		if err := gitcmd.Git("rev-parse HEAD", &hash); err != nil {
			return nil, fmt.Errorf("reading rewritten commit hash: %w", err)
		}
		c.CommitHash = strings.TrimSpace(hash)
		out = append(out, c)
	}
	return out, nil
}

// appendTrailer adds a commit-id trailer to body if it doesn't already
// carry one.
func appendTrailer(body, id string) string {
	if HasTrailer(body) {
		return body
	}
	body = strings.TrimRight(body, "\n")
	if body != "" {
		body += "\n\n"
	}
	return body + trailerPrefix + id + "\n"
}

// amendMessage rewrites HEAD's commit message via a temp file, since the
// shell-exec git driver splits its argument string on spaces and a
// multi-line message can't round-trip as a single -m argument.
func amendMessage(gitcmd Interface, subject, body string) error {
	f, err := os.CreateTemp("", "stackpr-commit-msg-*")
	if err != nil {
		return fmt.Errorf("creating commit message temp file: %w", err)
	}
	defer os.Remove(f.Name())
	msg := subject + "\n" + body
	if _, err := f.WriteString(msg); err != nil {
		f.Close()
		return fmt.Errorf("writing commit message temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return gitcmd.Git(fmt.Sprintf("commit --amend -F %s", f.Name()), nil)
}
