package git

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/courier-bot/courier/internal/logging"
)

// Resolver answers topology questions about a repository: where its base
// directory lives, whether it is bare, and which worktrees it owns.
type Resolver struct {
	// ForceBare treats every repository as bare regardless of what git
	// reports. Supplied from configuration at construction.
	ForceBare bool
}

// NewResolver creates a topology resolver.
func NewResolver(forceBare bool) *Resolver {
	return &Resolver{ForceBare: forceBare}
}

// ResolveBaseRepoDir returns the canonical repository root for dir: the
// owning repository for a linked worktree, the bare root for a bare repo,
// or dir itself for a plain checkout. Never fails — when topology cannot
// be determined, dir is returned unchanged.
func (r *Resolver) ResolveBaseRepoDir(dir string) string {
	// A linked worktree carries a .git file pointing into the owning
	// repo's worktrees/ metadata directory.
	if base, ok := worktreeLinkTarget(dir); ok {
		return base
	}

	res := runGit(dir, "rev-parse", "--git-dir")
	if !res.OK() {
		logging.ForComponent(logging.CompGit).Debug("base_dir_unresolved",
			"dir", dir, "reason", res.Message())
		return dir
	}

	gitDir := res.Output
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(dir, gitDir)
	}
	gitDir = filepath.Clean(gitDir)

	// A plain checkout reports <root>/.git; the checkout itself is the base.
	// A bare repo reports its own root as the metadata directory.
	if filepath.Base(gitDir) == ".git" {
		return dir
	}
	return gitDir
}

// IsBareRepository reports whether dir is a bare repository. The ForceBare
// override wins unconditionally; any git failure is treated as "not bare".
func (r *Resolver) IsBareRepository(dir string) bool {
	if r.ForceBare {
		return true
	}
	res := runGit(dir, "rev-parse", "--is-bare-repository")
	if !res.OK() {
		return false
	}
	return res.Output == "true"
}

// worktreeLinkTarget reads dir's .git marker file. When it points at a
// worktrees/<id> metadata path, the owning repository is the path before
// /worktrees/.
func worktreeLinkTarget(dir string) (string, bool) {
	marker := filepath.Join(dir, ".git")
	info, err := os.Stat(marker)
	if err != nil || info.IsDir() {
		return "", false
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		return "", false
	}
	target := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(data)), "gitdir:"))
	if target == "" {
		return "", false
	}

	sep := string(filepath.Separator) + "worktrees" + string(filepath.Separator)
	idx := strings.Index(target, sep)
	if idx < 0 {
		return "", false
	}
	return target[:idx], true
}

// hasWorktreeMarker reports whether path looks like a genuine linked
// worktree checkout, defending against stale listing entries.
func hasWorktreeMarker(path string) bool {
	_, ok := worktreeLinkTarget(path)
	return ok
}
