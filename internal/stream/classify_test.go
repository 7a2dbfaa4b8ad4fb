package stream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolMsg(name string, input map[string]any) Message {
	raw, _ := json.Marshal(input)
	return Message{Kind: KindToolUse, Tool: &ToolCall{Name: name, Input: raw}}
}

func TestClassify_Text(t *testing.T) {
	c := NewClassifier(nil)

	t.Run("whitespace-only produces nothing", func(t *testing.T) {
		_, ok := c.Classify(Message{Kind: KindText, Text: "  \n\t "})
		assert.False(t, ok)
	})

	t.Run("short text is quoted", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindText, Text: "All done."})
		require.True(t, ok)
		assert.Equal(t, "💬 All done.", line)
	})

	t.Run("long text truncated at 1000", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindText, Text: strings.Repeat("x", 1500)})
		require.True(t, ok)
		assert.Contains(t, line, strings.Repeat("x", 1000)+"...")
		assert.NotContains(t, line, strings.Repeat("x", 1001))
	})

	t.Run("newlines collapse to one line", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindText, Text: "first\nsecond"})
		require.True(t, ok)
		assert.Equal(t, "💬 first second", line)
	})
}

func TestClassify_ToolUse(t *testing.T) {
	c := NewClassifier(nil)

	t.Run("bash command truncated at 80 chars", func(t *testing.T) {
		line, ok := c.Classify(toolMsg("Bash", map[string]any{
			"command": strings.Repeat("a", 200),
		}))
		require.True(t, ok)
		assert.Equal(t, "🔧 $ "+strings.Repeat("a", 80)+"...", line)
	})

	t.Run("read shows file path", func(t *testing.T) {
		line, ok := c.Classify(toolMsg("Read", map[string]any{
			"file_path": "/src/main.go",
		}))
		require.True(t, ok)
		assert.Equal(t, "📖 Reading /src/main.go", line)
	})

	t.Run("grep shows pattern", func(t *testing.T) {
		line, ok := c.Classify(toolMsg("Grep", map[string]any{"pattern": "func main"}))
		require.True(t, ok)
		assert.Equal(t, "🔍 Grepping func main", line)
	})

	t.Run("task shows description", func(t *testing.T) {
		line, ok := c.Classify(toolMsg("Task", map[string]any{"description": "explore repo"}))
		require.True(t, ok)
		assert.Equal(t, "🤖 Spawning agent: explore repo", line)
	})

	t.Run("unknown tool falls back to json preview", func(t *testing.T) {
		line, ok := c.Classify(toolMsg("WebFetch", map[string]any{"url": "https://example.com"}))
		require.True(t, ok)
		assert.Contains(t, line, "🔧 WebFetch")
		assert.Contains(t, line, "example.com")
	})
}

func TestClassify_ToolResult(t *testing.T) {
	c := NewClassifier(nil)

	t.Run("system reminder stripped", func(t *testing.T) {
		line, ok := c.Classify(Message{
			Kind: KindToolResult,
			Text: "<system-reminder>x</system-reminder>\n\n\nok",
		})
		require.True(t, ok)
		assert.Equal(t, "→ ok", line)
	})

	t.Run("empty after stripping produces nothing", func(t *testing.T) {
		_, ok := c.Classify(Message{
			Kind: KindToolResult,
			Text: "<system-reminder>only this</system-reminder>",
		})
		assert.False(t, ok)
	})

	t.Run("multi-line summarized as count", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindToolResult, Text: "a\nb\nc"})
		require.True(t, ok)
		assert.Equal(t, "→ 3 lines of output", line)
	})

	t.Run("long single line summarized", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindToolResult, Text: strings.Repeat("y", 150)})
		require.True(t, ok)
		assert.Equal(t, "→ 1 line of output", line)
	})
}

func TestClassify_Thinking(t *testing.T) {
	c := NewClassifier(nil)

	t.Run("empty is the fixed literal", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindThinking})
		require.True(t, ok)
		assert.Equal(t, "Thinking...", line)
	})

	t.Run("preview truncated at 150 and emphasized", func(t *testing.T) {
		line, ok := c.Classify(Message{Kind: KindThinking, Text: strings.Repeat("z", 200)})
		require.True(t, ok)
		assert.Equal(t, "*"+strings.Repeat("z", 150)+"...*", line)
	})
}

func TestSkipFilter(t *testing.T) {
	t.Run("case insensitive tag match", func(t *testing.T) {
		c := NewClassifier([]string{"Thinking", "SYSTEM:INFO"})
		assert.True(t, c.Skip(Message{Kind: KindThinking}))
		assert.True(t, c.Skip(Message{Kind: KindSystem, Subtype: SubInfo}))
		assert.False(t, c.Skip(Message{Kind: KindText}))
	})

	t.Run("terminal subtypes are never suppressible", func(t *testing.T) {
		c := NewClassifier([]string{"system", "system:completion", "system:failure"})
		assert.False(t, c.Skip(Message{Kind: KindSystem, Subtype: SubCompletion}))
		assert.False(t, c.Skip(Message{Kind: KindSystem, Subtype: SubFailure}))
		assert.True(t, c.Skip(Message{Kind: KindSystem, Subtype: SubShutdown}))
	})
}
