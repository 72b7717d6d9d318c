package sync

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const gitCommitMessage = "sync: update progress export"

// GitDestination writes the JSONL snapshot into a local git clone and
// pushes. Unchanged snapshots produce no commit.
type GitDestination struct {
	repo   string // path to the local clone
	file   string // file path within the repo
	branch string // branch to commit and push to
}

// NewGitDestination creates a git destination. repo must be an existing
// local clone with push access to origin.
func NewGitDestination(repo, file, branch string) *GitDestination {
	return &GitDestination{repo: repo, file: file, branch: branch}
}

// Write lands data on the configured branch: checkout, fast-forward,
// write, stage, then commit and push only when the snapshot actually
// changed.
func (d *GitDestination) Write(ctx context.Context, data []byte) error {
	if err := d.git(ctx, "checkout", d.branch); err != nil {
		return err
	}
	// The remote may not have the branch yet; a failed fast-forward is
	// not fatal, the push below surfaces real divergence.
	_ = d.git(ctx, "pull", "--ff-only", "origin", d.branch)

	target := filepath.Join(d.repo, d.file)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}

	if err := d.git(ctx, "add", d.file); err != nil {
		return err
	}
	if !d.hasStagedChanges(ctx) {
		return nil
	}

	if err := d.git(ctx, "commit", "-m", gitCommitMessage); err != nil {
		return err
	}
	return d.git(ctx, "push", "origin", d.branch)
}

// git runs a git subcommand inside the clone, folding captured output
// into the error so export failures are diagnosable from logs alone.
func (d *GitDestination) git(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = d.repo
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", args[0], err, bytes.TrimSpace(out))
	}
	return nil
}

// hasStagedChanges reports whether the index differs from HEAD.
func (d *GitDestination) hasStagedChanges(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "diff", "--cached", "--quiet")
	cmd.Dir = d.repo
	return cmd.Run() != nil
}
