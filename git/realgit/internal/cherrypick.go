package internal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CherryPickProbe cherry-picks sha onto a scratch worktree rooted at
// destRef, without touching the caller's working tree or index, and
// reports the resulting commit and tree hashes. A conflicting pick is
// aborted and reported as ok=false, not as an error.
func (c CmdLine) CherryPickProbe(ctx context.Context, destRef string, sha string) (newHash string, newTree string, ok bool, err error) {
	worktreeDir := filepath.Join(os.TempDir(), fmt.Sprintf("stackpr-probe-%s", uuid.New().String()[:8]))

	if out, cerr := c.runIn(c.base.Rootdir, "worktree", "add", "--detach", worktreeDir, destRef); cerr != nil {
		return "", "", false, fmt.Errorf("creating probe worktree: %w (%s)", cerr, out)
	}
	defer func() {
		_, _ = c.runIn(c.base.Rootdir, "worktree", "remove", "--force", worktreeDir)
	}()

	if out, cerr := c.runIn(worktreeDir, "cherry-pick", "--keep-redundant-commits", sha); cerr != nil {
		_, _ = c.runIn(worktreeDir, "cherry-pick", "--abort")
		if strings.Contains(out, "conflict") || strings.Contains(out, "CONFLICT") || strings.Contains(out, "could not apply") {
			return "", "", false, nil
		}
		return "", "", false, fmt.Errorf("cherry-pick probe failed: %w (%s)", cerr, out)
	}

	hash, cerr := c.runIn(worktreeDir, "rev-parse", "HEAD")
	if cerr != nil {
		return "", "", false, fmt.Errorf("reading probe HEAD: %w", cerr)
	}
	tree, cerr := c.runIn(worktreeDir, "rev-parse", "HEAD^{tree}")
	if cerr != nil {
		return "", "", false, fmt.Errorf("reading probe tree: %w", cerr)
	}

	return strings.TrimSpace(hash), strings.TrimSpace(tree), true, nil
}

// TreeHash resolves ref^{tree} at the repository root, without a
// worktree, since it only needs read access to object data.
func (c CmdLine) TreeHash(ctx context.Context, ref string) (string, error) {
	out, err := c.runIn(c.base.Rootdir, "rev-parse", ref+"^{tree}")
	if err != nil {
		return "", fmt.Errorf("resolving tree for %s: %w (%s)", ref, err, out)
	}
	return strings.TrimSpace(out), nil
}

func (c CmdLine) runIn(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	return string(out), err
}
