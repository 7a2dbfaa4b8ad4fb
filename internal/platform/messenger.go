// Package platform provides the chat-platform client: the Messenger
// interface consumed by the stream aggregator, a REST implementation for
// message create/edit, and a websocket gateway for inbound events.
package platform

import "context"

// Embed colors for terminal run states.
const (
	ColorSuccess = 0x2ECC71
	ColorFailure = 0xE74C3C
	ColorNeutral = 0x95A5A6
)

// Button styles understood by the platform.
const (
	ButtonPrimary   = 1
	ButtonSecondary = 2
	ButtonDanger    = 4
)

// EmbedField is a labeled value rendered inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is a rich message block with a colored accent.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// File is an attachment uploaded alongside a message.
type File struct {
	Name string
	Data []byte
}

// Button is an interactive control attached to a message.
type Button struct {
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Style    int    `json:"style"`
}

// ActionRow groups up to five buttons on one line.
type ActionRow struct {
	Buttons []Button
}

// Outgoing is the full payload for a message create or edit.
type Outgoing struct {
	Content    string
	Embed      *Embed
	Files      []File
	Components []ActionRow
}

// Messenger sends and edits messages in the configured channel.
// Implementations must be safe for concurrent use.
type Messenger interface {
	// Send posts a new message and returns its identifier.
	Send(ctx context.Context, out *Outgoing) (string, error)

	// Edit replaces the content of an existing message.
	Edit(ctx context.Context, messageID string, out *Outgoing) error
}
