package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/courier-bot/courier/internal/bot"
	"github.com/courier-bot/courier/internal/claude"
	"github.com/courier-bot/courier/internal/config"
	"github.com/courier-bot/courier/internal/git"
	"github.com/courier-bot/courier/internal/hookserver"
	"github.com/courier-bot/courier/internal/logging"
	"github.com/courier-bot/courier/internal/platform"
	"github.com/courier-bot/courier/internal/stream"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("Courier v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "worktree", "wt":
			handleWorktree(args[1:])
			return
		case "serve":
			runServe()
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}

	runServe()
}

func printHelp() {
	fmt.Println("Usage: courier <command> [options]")
	fmt.Println()
	fmt.Println("A chat bot that relays prompts to the assistant CLI and streams")
	fmt.Println("progress back into a live status message.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve             Connect to the chat platform and serve (default)")
	fmt.Println("  worktree          Manage git worktrees")
	fmt.Println("  version           Print version")
	fmt.Println("  help              Show this help")
	fmt.Println()
	fmt.Println("Configuration lives at ~/.courier/config.toml; COURIER_TOKEN,")
	fmt.Println("COURIER_CHANNEL_ID, COURIER_SKIP_MESSAGE_TYPES and COURIER_FORCE_BARE")
	fmt.Println("override it.")
}

func runServe() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Bot.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: no bot token configured (set [bot] token or COURIER_TOKEN)")
		os.Exit(1)
	}

	logDir := cfg.Logs.Dir
	if logDir == "" {
		if dir, err := config.GetCourierDir(); err == nil {
			logDir = dir
		}
	}
	logging.Init(logging.Config{
		LogDir:   logDir,
		Level:    cfg.Logs.Level,
		Format:   cfg.Logs.Format,
		Compress: true,
		Debug:    cfg.Logs.Debug,
	})
	defer logging.Shutdown()

	workDir := resolveWorkDir(cfg)

	messenger := platform.NewRESTClient(cfg.Bot.APIBase, cfg.Bot.Token, cfg.Bot.ChannelID)
	agg := stream.New(messenger, stream.Options{
		Debounce:         time.Duration(cfg.Stream.DebounceMs) * time.Millisecond,
		CharBudget:       cfg.Stream.CharBudget,
		EditsPerSecond:   cfg.Stream.EditsPerSecond,
		SkipMessageTypes: cfg.Stream.SkipMessageTypes,
	})
	defer agg.Close()

	run := func(ctx context.Context, prompt, dir string) error {
		r := claude.NewRunner(claude.Config{
			Binary:        cfg.Claude.Binary,
			WorkDir:       dir,
			DangerousMode: cfg.Claude.DangerousMode,
		})
		return r.Run(ctx, prompt, agg.SendMessages)
	}

	b := bot.New(cfg, messenger, agg, git.NewResolver(cfg.Git.ForceBare), run, workDir)
	gw := platform.NewGateway(cfg.Bot.GatewayURL, cfg.Bot.Token, b.HandleMessage)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return gw.Run(egCtx) })
	if cfg.Hooks.Enabled {
		hooks := hookserver.New(cfg.Hooks.Port, agg.SendMessages)
		eg.Go(func() error { return hooks.Start(egCtx) })
	}

	fmt.Printf("Courier v%s serving (work dir: %s)\n", Version, workDir)
	if err := eg.Wait(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveWorkDir picks the bot's initial working directory: the configured
// directory or the current one, normalized through topology resolution so a
// bare repo lands in its working checkout.
func resolveWorkDir(cfg *config.Config) string {
	dir := cfg.Claude.WorkingDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "."
		}
		dir = cwd
	}

	resolver := git.NewResolver(cfg.Git.ForceBare)
	base := resolver.ResolveBaseRepoDir(dir)
	if resolver.IsBareRepository(base) {
		if wt := resolver.FindWorktreeForBareRepo(base); wt != "" {
			return wt
		}
	}
	return dir
}
