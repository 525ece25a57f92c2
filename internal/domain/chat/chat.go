package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Trigger is the reason the client asked for a response.
type Trigger string

const (
	TriggerSubmitMessage     Trigger = "submit-message"
	TriggerRegenerateMessage Trigger = "regenerate-message"
)

type SearchMode string

const (
	SearchModeQuick    SearchMode = "quick"
	SearchModeAdaptive SearchMode = "adaptive"
)

// Normalize returns quick for unknown or empty modes.
func (m SearchMode) Normalize() SearchMode {
	if m == SearchModeAdaptive {
		return SearchModeAdaptive
	}
	return SearchModeQuick
}

const (
	PartTypeText      = "text"
	PartTypeReasoning = "reasoning"
	PartTypeFile      = "file"
	PartTypeStepStart = "step-start"

	toolPartPrefix = "tool-"
	dataPartPrefix = "data-"
)

const (
	ToolStateInputAvailable  = "input-available"
	ToolStateOutputAvailable = "output-available"
	ToolStateOutputError     = "output-error"
)

// Part is one element of a message. Tool parts use the "tool-{name}" type and data parts the
// "data-{name}" type.
type Part struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	MediaType  string          `json:"mediaType,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	URL        string          `json:"url,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	State      string          `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (p Part) IsTool() bool {
	return strings.HasPrefix(p.Type, toolPartPrefix)
}

func (p Part) IsData() bool {
	return strings.HasPrefix(p.Type, dataPartPrefix)
}

// ToolName returns the tool name of a tool part.
func (p Part) ToolName() string {
	return strings.TrimPrefix(p.Type, toolPartPrefix)
}

// Message is a UI message: a role with ordered parts.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Parts     []Part         `json:"parts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	return TextFromParts(m.Parts)
}

// TextFromParts joins the text parts with newlines.
func TextFromParts(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Type == PartTypeText && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Chat is a conversation owned by one user.
type Chat struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Messages   []Message  `json:"messages,omitempty"`
}

// Turn is everything persisted at the end of one request.
type Turn struct {
	Chat Chat
	// CreateChat is set when the chat row did not exist when the request started.
	CreateChat bool
	// RegenerateFromID deletes this message and every later one before appending.
	RegenerateFromID string
	UserMessage      *Message
	Assistant        Message
}

// ChatRepository is the chat store. FindByID returns a NotFound platform error for unknown ids.
type ChatRepository interface {
	FindByID(ctx context.Context, chatID string) (*Chat, error)
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	SaveTurn(ctx context.Context, turn Turn) error
}
