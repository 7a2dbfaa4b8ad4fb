package git

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/courier-bot/courier/internal/logging"
)

// WorktreeInfo describes one entry from the worktree listing. Recomputed on
// every query; never cached.
type WorktreeInfo struct {
	Path   string
	Branch string // empty for bare or detached entries
	IsBare bool
}

// CreateResult is the outcome of CreateWorktree.
type CreateResult struct {
	Path     string
	Existing bool // true when a worktree for the branch already existed
}

// WorktreeListDetailed parses the porcelain worktree listing for baseDir.
// Any failure yields an empty list.
func (r *Resolver) WorktreeListDetailed(baseDir string) []WorktreeInfo {
	res := runGit(baseDir, "worktree", "list", "--porcelain")
	if !res.OK() {
		logging.ForComponent(logging.CompGit).Debug("worktree_list_failed",
			"dir", baseDir, "reason", res.Message())
		return nil
	}
	return parseWorktreePorcelain(res.Output)
}

// WorktreeList returns just the worktree paths for baseDir.
// Any failure yields an empty list.
func (r *Resolver) WorktreeList(baseDir string) []string {
	res := runGit(baseDir, "worktree", "list")
	if !res.OK() {
		return nil
	}
	var paths []string
	for _, line := range strings.Split(res.Output, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			paths = append(paths, fields[0])
		}
	}
	return paths
}

// parseWorktreePorcelain parses `git worktree list --porcelain` output.
// Entries are separated by blank lines.
func parseWorktreePorcelain(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current WorktreeInfo

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = WorktreeInfo{}
			continue
		}

		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(branch, "refs/heads/")
		case line == "bare":
			current.IsBare = true
		case line == "detached":
			current.Branch = ""
		}
	}

	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees
}

// FindWorktreeForBranch returns the worktree path checked out on branch, or
// "" when none exists. Matching is exact: slashed branch names match as a
// whole token, never as a prefix.
func (r *Resolver) FindWorktreeForBranch(baseDir, branch string) string {
	res := runGit(baseDir, "worktree", "list")
	if !res.OK() {
		return ""
	}
	return matchBranchInListing(res.Output, branch)
}

// matchBranchInListing scans human-readable `git worktree list` lines for a
// trailing [branch] annotation equal to branch.
func matchBranchInListing(listing, branch string) string {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		last := fields[len(fields)-1]
		if strings.HasPrefix(last, "[") && strings.HasSuffix(last, "]") {
			if strings.Trim(last, "[]") == branch {
				return fields[0]
			}
		}
	}
	return ""
}

// FindWorktreeForBareRepo picks the working checkout for a bare repository:
// a direct child of bareDir that exists on disk and carries a genuine
// worktree link marker. Prefers main or master; otherwise the first valid
// candidate in listing order.
func (r *Resolver) FindWorktreeForBareRepo(bareDir string) string {
	var candidates []string
	for _, wt := range r.WorktreeListDetailed(bareDir) {
		if wt.IsBare {
			continue
		}
		if filepath.Dir(wt.Path) != filepath.Clean(bareDir) {
			continue
		}
		if info, err := os.Stat(wt.Path); err != nil || !info.IsDir() {
			continue
		}
		if !hasWorktreeMarker(wt.Path) {
			continue
		}
		candidates = append(candidates, wt.Path)
	}

	for _, c := range candidates {
		name := filepath.Base(c)
		if name == "main" || name == "master" {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

// ValidateBranchName checks a branch name against git's naming rules.
func ValidateBranchName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("branch name cannot be empty")
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("branch name cannot have leading or trailing spaces")
	case strings.Contains(name, ".."):
		return fmt.Errorf("branch name cannot contain '..'")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("branch name cannot start with '.'")
	case strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("branch name cannot end with '.lock'")
	case strings.Contains(name, "@{"):
		return fmt.Errorf("branch name cannot contain '@{'")
	case name == "@":
		return fmt.Errorf("branch name cannot be just '@'")
	}
	for _, ch := range []string{" ", "\t", "~", "^", ":", "?", "*", "[", "\\"} {
		if strings.Contains(name, ch) {
			return fmt.Errorf("branch name cannot contain %q", ch)
		}
	}
	return nil
}

// CreateWorktree creates a worktree for branch, creating the branch from ref
// (default: current HEAD) when it does not exist yet. Calling it again for a
// branch that already has a worktree returns that worktree flagged Existing.
func (r *Resolver) CreateWorktree(dir, branch, ref string) (*CreateResult, error) {
	if err := ValidateBranchName(branch); err != nil {
		return nil, fmt.Errorf("invalid branch name: %w", err)
	}

	log := logging.ForComponent(logging.CompGit)
	base := r.ResolveBaseRepoDir(dir)

	if existing := r.FindWorktreeForBranch(base, branch); existing != "" {
		log.Info("worktree_exists", "branch", branch, "path", existing)
		return &CreateResult{Path: existing, Existing: true}, nil
	}

	target := r.worktreePath(base, branch)
	if _, err := os.Stat(target); err == nil {
		return nil, fmt.Errorf("worktree path already exists: %s", target)
	}

	// Slashed branch names map to nested target paths.
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("create worktree parent dir: %w", err)
	}

	var res CmdResult
	if r.branchExists(base, branch) {
		res = runGit(base, "worktree", "add", target, branch)
	} else {
		if ref == "" {
			ref = "HEAD"
		}
		res = runGit(base, "worktree", "add", "-b", branch, target, ref)
	}
	if !res.OK() {
		return nil, fmt.Errorf("create worktree for %s: %s", branch, res.Message())
	}

	log.Info("worktree_created", "branch", branch, "path", target)
	return &CreateResult{Path: target, Existing: false}, nil
}

// worktreePath computes where a new worktree should live: inside the repo
// for bare repos, as a sibling directory for plain checkouts.
func (r *Resolver) worktreePath(base, branch string) string {
	if r.IsBareRepository(base) {
		return filepath.Join(base, branch)
	}
	sanitized := strings.ReplaceAll(branch, " ", "-")
	return filepath.Join(filepath.Dir(base), filepath.Base(base)+"-"+filepath.FromSlash(sanitized))
}

// branchExists checks for a local branch ref.
func (r *Resolver) branchExists(base, branch string) bool {
	return runGit(base, "show-ref", "--verify", "--quiet", "refs/heads/"+branch).OK()
}

// ListWorktrees resolves dir to its base repository and lists its worktrees.
func (r *Resolver) ListWorktrees(dir string) []WorktreeInfo {
	return r.WorktreeListDetailed(r.ResolveBaseRepoDir(dir))
}

// RemoveWorktree removes the worktree checked out on branch. The branch is
// resolved to its exact path first; removal is forced so a dirty worktree
// does not block it.
func (r *Resolver) RemoveWorktree(dir, branch string) error {
	base := r.ResolveBaseRepoDir(dir)

	path := r.FindWorktreeForBranch(base, branch)
	if path == "" {
		return fmt.Errorf("no worktree found for branch %q", branch)
	}

	res := runGit(base, "worktree", "remove", "--force", path)
	if !res.OK() {
		return fmt.Errorf("remove worktree %s: %s", path, res.Message())
	}

	logging.ForComponent(logging.CompGit).Info("worktree_removed",
		"branch", branch, "path", path)
	return nil
}
