package stream

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Classification limits.
const (
	textPreviewMax     = 1000
	commandPreviewMax  = 80
	thinkingPreviewMax = 150
	inlineResultMax    = 100
)

var (
	systemReminderRe = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

// Classifier maps one assistant message to a compact one-line summary, or
// nothing when the message contributes no visible progress.
type Classifier struct {
	skip map[string]struct{}
}

// NewClassifier creates a classifier with a case-insensitive skip set of
// "type" or "type:subtype" tags.
func NewClassifier(skipTags []string) *Classifier {
	skip := make(map[string]struct{}, len(skipTags))
	for _, tag := range skipTags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			skip[tag] = struct{}{}
		}
	}
	return &Classifier{skip: skip}
}

// Skip reports whether the message is suppressed by configuration.
// Terminal system messages drive state transitions and are never skippable.
func (c *Classifier) Skip(m Message) bool {
	if m.IsTerminal() {
		return false
	}
	if _, ok := c.skip[strings.ToLower(m.Tag())]; ok {
		return true
	}
	// A bare "system" tag suppresses all non-terminal subtypes.
	if m.Kind == KindSystem {
		if _, ok := c.skip[string(KindSystem)]; ok {
			return true
		}
	}
	return false
}

// Classify produces the progress line for one message. The second return is
// false when the message renders nothing. System messages never classify;
// the aggregator handles them as control events.
func (c *Classifier) Classify(m Message) (string, bool) {
	switch m.Kind {
	case KindText:
		return classifyText(m.Text)
	case KindToolUse:
		if m.Tool == nil {
			return "", false
		}
		return classifyToolUse(m.Tool), true
	case KindToolResult:
		return classifyToolResult(m.Text)
	case KindThinking:
		return classifyThinking(m.Text), true
	case KindOther:
		return "⚙️ Processing...", true
	}
	return "", false
}

func classifyText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	text = strings.Join(strings.Fields(text), " ")
	return "💬 " + truncate(text, textPreviewMax), true
}

func classifyToolUse(tool *ToolCall) string {
	input := gjson.ParseBytes(tool.Input)

	switch tool.Name {
	case "Bash":
		cmd := strings.Join(strings.Fields(input.Get("command").String()), " ")
		return "🔧 $ " + truncate(cmd, commandPreviewMax)
	case "Read":
		return "📖 Reading " + input.Get("file_path").String()
	case "Write":
		return "✏️ Writing " + input.Get("file_path").String()
	case "Edit":
		return "✏️ Editing " + input.Get("file_path").String()
	case "Glob":
		return "🔍 Searching " + input.Get("pattern").String()
	case "Grep":
		return "🔍 Grepping " + input.Get("pattern").String()
	case "Task":
		if desc := input.Get("description").String(); desc != "" {
			return "🤖 Spawning agent: " + desc
		}
		return "🤖 Spawning agent"
	default:
		preview := strings.Join(strings.Fields(input.Raw), " ")
		if preview == "" {
			return "🔧 " + tool.Name
		}
		return "🔧 " + tool.Name + " " + truncate(preview, commandPreviewMax)
	}
}

func classifyToolResult(text string) (string, bool) {
	text = systemReminderRe.ReplaceAllString(text, "")
	text = excessNewlinesRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	lines := strings.Split(text, "\n")
	if len(lines) == 1 && len(text) <= inlineResultMax {
		return "→ " + text, true
	}
	if len(lines) == 1 {
		return "→ 1 line of output", true
	}
	return fmt.Sprintf("→ %d lines of output", len(lines)), true
}

func classifyThinking(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "Thinking..."
	}
	text = strings.Join(strings.Fields(text), " ")
	return "*" + truncate(text, thinkingPreviewMax) + "*"
}

// truncate cuts s to max characters, appending an ellipsis when cut.
// Counting is by rune so multi-byte text is never split.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
