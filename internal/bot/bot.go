// Package bot wires the gateway, session manager, aggregator, and topology
// resolver into the chat-facing command surface.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courier-bot/courier/internal/config"
	"github.com/courier-bot/courier/internal/git"
	"github.com/courier-bot/courier/internal/logging"
	"github.com/courier-bot/courier/internal/platform"
	"github.com/courier-bot/courier/internal/session"
	"github.com/courier-bot/courier/internal/stream"
)

// StartRun launches one assistant run; supplied by the composition root so
// the bot stays testable without a real subprocess.
type StartRun func(ctx context.Context, prompt, workDir string) error

// Bot handles inbound chat messages: prefixed commands drive worktree and
// session management, everything else becomes an assistant prompt.
type Bot struct {
	cfg       *config.Config
	messenger platform.Messenger
	agg       *stream.Aggregator
	sessions  *session.Manager
	resolver  *git.Resolver
	workDir   string
	log       *slog.Logger
}

// New creates a Bot rooted at workDir.
func New(cfg *config.Config, messenger platform.Messenger, agg *stream.Aggregator,
	resolver *git.Resolver, run StartRun, workDir string) *Bot {

	return &Bot{
		cfg:       cfg,
		messenger: messenger,
		agg:       agg,
		sessions:  session.NewManager(session.RunFunc(run)),
		resolver:  resolver,
		workDir:   workDir,
		log:       logging.ForComponent(logging.CompSession),
	}
}

// HandleMessage processes one inbound gateway message.
func (b *Bot) HandleMessage(ctx context.Context, in platform.Inbound) {
	if b.cfg.Bot.ChannelID != "" && in.ChannelID != b.cfg.Bot.ChannelID {
		return
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return
	}

	prefix := b.cfg.Bot.CommandPrefix
	if strings.HasPrefix(content, prefix) {
		b.handleCommand(ctx, strings.TrimPrefix(content, prefix))
		return
	}
	b.startSession(ctx, content)
}

func (b *Bot) handleCommand(ctx context.Context, cmdline string) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "worktree", "wt":
		b.handleWorktree(ctx, fields[1:])
	case "abort":
		if b.sessions.Abort() {
			b.reply(ctx, "⏹️ Session aborted.")
		} else {
			b.reply(ctx, "Nothing is running.")
		}
	case "status":
		b.reply(ctx, b.statusLine())
	case "help":
		b.reply(ctx, b.helpText())
	default:
		b.reply(ctx, fmt.Sprintf("Unknown command %q. Try %shelp.", fields[0], b.cfg.Bot.CommandPrefix))
	}
}

func (b *Bot) handleWorktree(ctx context.Context, args []string) {
	if len(args) == 0 {
		b.reply(ctx, "Usage: worktree list | create <branch> [ref] | remove <branch>")
		return
	}

	switch args[0] {
	case "list", "ls":
		worktrees := b.resolver.ListWorktrees(b.workDir)
		if len(worktrees) == 0 {
			b.reply(ctx, "No worktrees found.")
			return
		}
		var sb strings.Builder
		sb.WriteString("**Worktrees**\n")
		for _, wt := range worktrees {
			switch {
			case wt.IsBare:
				fmt.Fprintf(&sb, "`%s` (bare)\n", wt.Path)
			case wt.Branch == "":
				fmt.Fprintf(&sb, "`%s` (detached)\n", wt.Path)
			default:
				fmt.Fprintf(&sb, "`%s` → %s\n", wt.Path, wt.Branch)
			}
		}
		b.reply(ctx, sb.String())

	case "create":
		if len(args) < 2 {
			b.reply(ctx, "Usage: worktree create <branch> [ref]")
			return
		}
		ref := ""
		if len(args) > 2 {
			ref = args[2]
		}
		result, err := b.resolver.CreateWorktree(b.workDir, args[1], ref)
		if err != nil {
			b.reply(ctx, "❌ "+err.Error())
			return
		}
		if result.Existing {
			b.reply(ctx, fmt.Sprintf("Worktree for `%s` already exists at `%s`.", args[1], result.Path))
			return
		}
		b.reply(ctx, fmt.Sprintf("✅ Created worktree for `%s` at `%s`.", args[1], result.Path))

	case "remove", "rm":
		if len(args) < 2 {
			b.reply(ctx, "Usage: worktree remove <branch>")
			return
		}
		if err := b.resolver.RemoveWorktree(b.workDir, args[1]); err != nil {
			b.reply(ctx, "❌ "+err.Error())
			return
		}
		b.reply(ctx, fmt.Sprintf("🗑️ Removed worktree for `%s`.", args[1]))

	default:
		b.reply(ctx, fmt.Sprintf("Unknown worktree action %q.", args[0]))
	}
}

// startSession posts the initial reply, points the aggregator at it, and
// launches the run.
func (b *Bot) startSession(ctx context.Context, prompt string) {
	id, err := b.messenger.Send(ctx, &platform.Outgoing{
		Embed: &platform.Embed{
			Title:       "⏳ " + shorten(prompt, 80),
			Description: "Starting...",
			Color:       platform.ColorNeutral,
		},
	})
	if err != nil {
		b.log.Warn("initial_reply_failed", "error", err)
		id = ""
	}

	b.agg.ResetProgress(prompt, id)

	// Session runs detached; progress flows through the aggregator.
	if _, err := b.sessions.Start(context.Background(), prompt, b.workDir, nil); err != nil {
		b.reply(ctx, "❌ "+err.Error())
	}
}

func (b *Bot) statusLine() string {
	s := b.sessions.Current()
	if s == nil {
		return "Idle — no session yet."
	}
	return fmt.Sprintf("Session `%s` is %s (dir `%s`).", s.ID, s.State, s.WorkDir)
}

func (b *Bot) helpText() string {
	p := b.cfg.Bot.CommandPrefix
	return strings.Join([]string{
		"Send any message to start an assistant run.",
		p + "worktree list — list worktrees",
		p + "worktree create <branch> [ref] — create a worktree",
		p + "worktree remove <branch> — remove a worktree",
		p + "abort — stop the active session",
		p + "status — show the current session",
	}, "\n")
}

func (b *Bot) reply(ctx context.Context, text string) {
	if _, err := b.messenger.Send(ctx, &platform.Outgoing{Content: text}); err != nil {
		b.log.Warn("reply_failed", "error", err)
	}
}

func shorten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
