// Package stream turns the assistant's event stream into a single live
// progress message: events are classified into compact lines, accumulated
// under a character budget, and flushed to the platform with debounced
// edits until a terminal completion or failure event finalizes the run.
package stream

import "encoding/json"

// Kind is the message type tag from the assistant event stream.
type Kind string

const (
	KindText       Kind = "text"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindThinking   Kind = "thinking"
	KindOther      Kind = "other"
	KindSystem     Kind = "system"
)

// Subtype refines system messages.
type Subtype string

const (
	SubCompletion Subtype = "completion"
	SubFailure    Subtype = "failure"
	SubShutdown   Subtype = "shutdown"
	SubInfo       Subtype = "info"
)

// ToolCall is the tool-use payload: a tool name plus its raw JSON input.
type ToolCall struct {
	Name  string
	Input json.RawMessage
}

// SystemMeta carries the free-form metadata attached to system messages.
type SystemMeta struct {
	WorkDir    string
	SessionID  string
	Model      string
	CostUSD    float64
	HasCost    bool
	DurationMs int64
	Error      string
	Signal     string
	Repo       string
	Branch     string
	Category   string
}

// Message is one decoded assistant event.
type Message struct {
	Kind    Kind
	Subtype Subtype // set only for KindSystem
	Text    string  // body for text / tool_result / thinking
	Tool    *ToolCall
	Meta    *SystemMeta
}

// Tag returns the message's skip-filter tag: "type" for plain kinds,
// "type:subtype" for system messages.
func (m Message) Tag() string {
	if m.Kind == KindSystem && m.Subtype != "" {
		return string(m.Kind) + ":" + string(m.Subtype)
	}
	return string(m.Kind)
}

// IsTerminal reports whether this message ends the run.
func (m Message) IsTerminal() bool {
	return m.Kind == KindSystem && (m.Subtype == SubCompletion || m.Subtype == SubFailure)
}
