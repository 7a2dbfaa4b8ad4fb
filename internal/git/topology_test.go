package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Helper function to create a git repo for testing
func createTestRepo(t *testing.T, dir string) {
	t.Helper()

	cmd := exec.Command("git", "init", "-b", "main")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	cmd = exec.Command("git", "config", "user.email", "test@test.com")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to configure git email: %v", err)
	}

	cmd = exec.Command("git", "config", "user.name", "Test User")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to configure git name: %v", err)
	}

	testFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(testFile, []byte("# Test Repo"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	cmd = exec.Command("git", "add", ".")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to git add: %v", err)
	}

	cmd = exec.Command("git", "commit", "-m", "Initial commit")
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to git commit: %v", err)
	}
}

func TestResolveBaseRepoDir(t *testing.T) {
	r := NewResolver(false)

	t.Run("plain repo resolves to itself", func(t *testing.T) {
		dir := t.TempDir()
		createTestRepo(t, dir)

		if got := r.ResolveBaseRepoDir(dir); got != dir {
			t.Errorf("expected %s, got %s", dir, got)
		}
	})

	t.Run("non-repo directory resolves to itself", func(t *testing.T) {
		dir := t.TempDir()

		if got := r.ResolveBaseRepoDir(dir); got != dir {
			t.Errorf("expected %s, got %s", dir, got)
		}
	})

	t.Run("linked worktree resolves to owning repo metadata", func(t *testing.T) {
		dir := t.TempDir()
		createTestRepo(t, dir)

		wtPath := filepath.Join(t.TempDir(), "feat-wt")
		cmd := exec.Command("git", "-C", dir, "worktree", "add", "-b", "feat", wtPath)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("failed to add worktree: %v: %s", err, out)
		}

		got := r.ResolveBaseRepoDir(wtPath)
		// The worktree marker points into <repo>/.git/worktrees/<id>,
		// so the derived base is the metadata container.
		want := filepath.Join(dir, ".git")
		if got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})
}

func TestIsBareRepository(t *testing.T) {
	t.Run("plain repo is not bare", func(t *testing.T) {
		dir := t.TempDir()
		createTestRepo(t, dir)

		r := NewResolver(false)
		if r.IsBareRepository(dir) {
			t.Error("expected plain repo to not be bare")
		}
	})

	t.Run("bare repo is bare", func(t *testing.T) {
		dir := t.TempDir()
		cmd := exec.Command("git", "init", "--bare")
		cmd.Dir = dir
		if err := cmd.Run(); err != nil {
			t.Fatalf("failed to init bare repo: %v", err)
		}

		r := NewResolver(false)
		if !r.IsBareRepository(dir) {
			t.Error("expected bare repo to be bare")
		}
	})

	t.Run("force override wins over git", func(t *testing.T) {
		dir := t.TempDir()
		createTestRepo(t, dir)

		r := NewResolver(true)
		if !r.IsBareRepository(dir) {
			t.Error("expected ForceBare to force true")
		}
	})

	t.Run("non-repo is not bare", func(t *testing.T) {
		r := NewResolver(false)
		if r.IsBareRepository(t.TempDir()) {
			t.Error("expected non-repo to not be bare")
		}
	})
}

func TestWorktreeLinkTarget(t *testing.T) {
	t.Run("reads worktree marker", func(t *testing.T) {
		dir := t.TempDir()
		marker := filepath.Join(dir, ".git")
		content := "gitdir: /repos/app/.git/worktrees/feat-x\n"
		if err := os.WriteFile(marker, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write marker: %v", err)
		}

		base, ok := worktreeLinkTarget(dir)
		if !ok {
			t.Fatal("expected marker to be recognized")
		}
		if base != "/repos/app/.git" {
			t.Errorf("expected /repos/app/.git, got %s", base)
		}
	})

	t.Run("ignores .git directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
			t.Fatalf("failed to create .git dir: %v", err)
		}

		if _, ok := worktreeLinkTarget(dir); ok {
			t.Error("expected .git directory to not be a marker")
		}
	})

	t.Run("ignores marker without worktrees segment", func(t *testing.T) {
		dir := t.TempDir()
		marker := filepath.Join(dir, ".git")
		if err := os.WriteFile(marker, []byte("gitdir: /somewhere/else\n"), 0644); err != nil {
			t.Fatalf("failed to write marker: %v", err)
		}

		if _, ok := worktreeLinkTarget(dir); ok {
			t.Error("expected non-worktree marker to be rejected")
		}
	})
}
