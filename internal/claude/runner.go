// Package claude spawns the assistant CLI in stream-json mode and translates
// its output lines into batches of semantic messages for the aggregator.
package claude

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/courier-bot/courier/internal/logging"
	"github.com/courier-bot/courier/internal/stream"
)

// scanBufSize accommodates large single-line tool results.
const scanBufSize = 4 * 1024 * 1024

// Config configures a Runner.
type Config struct {
	// Binary is the assistant CLI executable.
	Binary string

	// WorkDir is the working directory for the subprocess.
	WorkDir string

	// DangerousMode passes --dangerously-skip-permissions.
	DangerousMode bool
}

// Deliver receives each decoded message batch in stream order.
type Deliver func(ctx context.Context, batch []stream.Message) error

// Runner executes one assistant prompt as a subprocess.
type Runner struct {
	cfg Config
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	return &Runner{cfg: cfg}
}

// Run spawns the CLI for prompt and feeds decoded batches to deliver until
// the stream ends. Cancelling ctx kills the subprocess. A run that dies
// without emitting a result line is surfaced as a synthesized failure batch.
func (r *Runner) Run(ctx context.Context, prompt string, deliver Deliver) error {
	log := logging.ForComponent(logging.CompClaude)

	args := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}
	if r.cfg.DangerousMode {
		args = append(args, "--dangerously-skip-permissions")
	}

	cmd := exec.CommandContext(ctx, r.cfg.Binary, args...)
	cmd.Dir = r.cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.cfg.Binary, err)
	}
	log.Info("run_started", "binary", r.cfg.Binary, "work_dir", r.cfg.WorkDir)

	model := ""
	sawTerminal := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), scanBufSize)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if m := gjson.Get(line, "model").String(); m != "" {
			model = m
		}

		batch := decodeLine(line, model)
		if len(batch) == 0 {
			continue
		}
		for _, m := range batch {
			if m.IsTerminal() {
				sawTerminal = true
			}
		}
		if err := deliver(ctx, batch); err != nil {
			log.Warn("batch_delivery_failed", "error", err)
		}
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	if !sawTerminal {
		reason := "assistant stream ended without a result"
		if waitErr != nil {
			reason = waitErr.Error()
		} else if scanErr != nil {
			reason = scanErr.Error()
		}
		failure := stream.Message{
			Kind:    stream.KindSystem,
			Subtype: stream.SubFailure,
			Meta:    &stream.SystemMeta{Error: reason, Model: model},
		}
		if err := deliver(ctx, []stream.Message{failure}); err != nil {
			log.Warn("failure_delivery_failed", "error", err)
		}
	}

	if ctx.Err() != nil {
		log.Info("run_aborted")
		return ctx.Err()
	}
	if waitErr != nil {
		log.Warn("run_exited_nonzero", "error", waitErr)
		return fmt.Errorf("%s exited: %w", r.cfg.Binary, waitErr)
	}
	log.Info("run_finished", "model", model)
	return nil
}

// decodeLine maps one stream-json line to its semantic messages. Unknown
// event shapes decode to nothing.
func decodeLine(line, model string) []stream.Message {
	if !gjson.Valid(line) {
		return nil
	}

	switch gjson.Get(line, "type").String() {
	case "assistant":
		return decodeAssistant(line)
	case "user":
		return decodeToolResults(line)
	case "result":
		return []stream.Message{decodeResult(line, model)}
	}
	return nil
}

func decodeAssistant(line string) []stream.Message {
	var batch []stream.Message

	gjson.Get(line, "message.content").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "text":
			batch = append(batch, stream.Message{
				Kind: stream.KindText,
				Text: item.Get("text").String(),
			})
		case "tool_use":
			batch = append(batch, stream.Message{
				Kind: stream.KindToolUse,
				Tool: &stream.ToolCall{
					Name:  item.Get("name").String(),
					Input: []byte(item.Get("input").Raw),
				},
			})
		case "thinking":
			batch = append(batch, stream.Message{
				Kind: stream.KindThinking,
				Text: item.Get("thinking").String(),
			})
		default:
			batch = append(batch, stream.Message{Kind: stream.KindOther})
		}
		return true
	})
	return batch
}

func decodeToolResults(line string) []stream.Message {
	var batch []stream.Message

	gjson.Get(line, "message.content").ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() != "tool_result" {
			return true
		}
		batch = append(batch, stream.Message{
			Kind: stream.KindToolResult,
			Text: toolResultText(item.Get("content")),
		})
		return true
	})
	return batch
}

// toolResultText flattens tool_result content, which is either a plain
// string or an array of text blocks.
func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var parts []string
	content.ForEach(func(_, item gjson.Result) bool {
		if item.Get("type").String() == "text" {
			parts = append(parts, item.Get("text").String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func decodeResult(line, model string) stream.Message {
	meta := &stream.SystemMeta{
		SessionID:  gjson.Get(line, "session_id").String(),
		Model:      model,
		DurationMs: gjson.Get(line, "duration_ms").Int(),
	}
	if cost := gjson.Get(line, "total_cost_usd"); cost.Exists() {
		meta.CostUSD = cost.Float()
		meta.HasCost = true
	}
	if cwd := gjson.Get(line, "cwd"); cwd.Exists() {
		meta.WorkDir = cwd.String()
	}

	subtype := stream.SubCompletion
	if gjson.Get(line, "is_error").Bool() || gjson.Get(line, "subtype").String() != "success" {
		subtype = stream.SubFailure
		meta.Error = gjson.Get(line, "result").String()
		if meta.Error == "" {
			meta.Error = gjson.Get(line, "error").String()
		}
	}

	return stream.Message{
		Kind:    stream.KindSystem,
		Subtype: subtype,
		Meta:    meta,
		Text:    gjson.Get(line, "result").String(),
	}
}
