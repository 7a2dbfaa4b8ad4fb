package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/courier-bot/courier/internal/config"
	"github.com/courier-bot/courier/internal/git"
)

// handleWorktree dispatches worktree subcommands
func handleWorktree(args []string) {
	if len(args) == 0 {
		printWorktreeUsage()
		return
	}

	switch args[0] {
	case "list", "ls":
		handleWorktreeList(args[1:])
	case "create":
		handleWorktreeCreate(args[1:])
	case "remove", "rm":
		handleWorktreeRemove(args[1:])
	case "help", "-h", "--help":
		printWorktreeUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown worktree command: %s\n", args[0])
		printWorktreeUsage()
		os.Exit(1)
	}
}

func printWorktreeUsage() {
	fmt.Println("Usage: courier worktree <command> [options]")
	fmt.Println()
	fmt.Println("Manage git worktrees for the repository containing the current directory.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  list                      List all worktrees")
	fmt.Println("  create <branch> [ref]     Create a worktree (reuses an existing one)")
	fmt.Println("  remove <branch>           Remove the worktree for a branch")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --json                    Output as JSON (list only)")
}

func newResolver() *git.Resolver {
	cfg, err := config.Load()
	if err != nil {
		return git.NewResolver(false)
	}
	return git.NewResolver(cfg.Git.ForceBare)
}

func cwdOrExit() string {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get current directory: %v\n", err)
		os.Exit(1)
	}
	return cwd
}

func handleWorktreeList(args []string) {
	fs := flag.NewFlagSet("worktree list", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	worktrees := newResolver().ListWorktrees(cwdOrExit())

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(worktrees); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if len(worktrees) == 0 {
		fmt.Println("No worktrees found.")
		return
	}
	for _, wt := range worktrees {
		switch {
		case wt.IsBare:
			fmt.Printf("%s  (bare)\n", wt.Path)
		case wt.Branch == "":
			fmt.Printf("%s  (detached)\n", wt.Path)
		default:
			fmt.Printf("%s  [%s]\n", wt.Path, wt.Branch)
		}
	}
}

func handleWorktreeCreate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: courier worktree create <branch> [ref]")
		os.Exit(1)
	}
	branch := args[0]
	ref := ""
	if len(args) > 1 {
		ref = args[1]
	}

	result, err := newResolver().CreateWorktree(cwdOrExit(), branch, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if result.Existing {
		fmt.Printf("Worktree for %s already exists: %s\n", branch, result.Path)
		return
	}
	fmt.Printf("Created worktree for %s: %s\n", branch, result.Path)
}

func handleWorktreeRemove(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: courier worktree remove <branch>")
		os.Exit(1)
	}

	if err := newResolver().RemoveWorktree(cwdOrExit(), args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed worktree for %s\n", args[0])
}
