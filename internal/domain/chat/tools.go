package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"bastion-server/internal/domain/files"
)

const (
	ToolFileRead  = "fileRead"
	ToolFileWrite = "fileWrite"
)

// ToolContext carries the request identity into tool execution. Tools never take ownership
// information from model input.
type ToolContext struct {
	UserID string
	ChatID string
}

// Tool is a function the agent can call.
type Tool interface {
	Definition() ToolDefinition
	Execute(ctx context.Context, tc ToolContext, arguments json.RawMessage) (any, error)
}

// FileStore is the subset of the files service the file tools need.
type FileStore interface {
	Enabled() bool
	Read(ctx context.Context, input files.ReadInput) (*files.ReadResult, error)
	Write(ctx context.Context, input files.WriteInput) (*files.WriteResult, error)
}

type fileReadArgs struct {
	URL        string `json:"url,omitempty" jsonschema_description:"Public URL of the file, as found in chat file parts"`
	Key        string `json:"key,omitempty" jsonschema_description:"Storage key of the file"`
	MaxBytes   int64  `json:"maxBytes,omitempty" jsonschema:"minimum=1,maximum=10485760,default=2097152" jsonschema_description:"Maximum number of bytes to read"`
	PreferText *bool  `json:"preferText,omitempty" jsonschema:"default=true" jsonschema_description:"Return text content as text instead of base64"`
}

type fileWriteArgs struct {
	Filename  string `json:"filename,omitempty" jsonschema_description:"File name used to build the storage key"`
	Text      string `json:"text,omitempty" jsonschema_description:"Plain text content to store"`
	DataURL   string `json:"dataUrl,omitempty" jsonschema:"pattern=^data:" jsonschema_description:"Base64 data URL content to store"`
	MediaType string `json:"mediaType,omitempty" jsonschema:"default=text/plain" jsonschema_description:"Media type of text content"`
}

type fileReadTool struct {
	store  FileStore
	schema map[string]any
}

type fileWriteTool struct {
	store  FileStore
	schema map[string]any
}

// NewFileTools returns the fileRead and fileWrite tools backed by store.
func NewFileTools(store FileStore) []Tool {
	return []Tool{
		&fileReadTool{store: store, schema: schemaFor(&fileReadArgs{})},
		&fileWriteTool{store: store, schema: schemaFor(&fileWriteArgs{})},
	}
}

func (t *fileReadTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: ToolFileRead,
		Description: "Read a user-uploaded file from storage. Prefer this for user attachments instead of fetching external URLs. " +
			"Accepts a public URL from chat file parts or a storage key. Returns small text files as text, otherwise base64.",
		Parameters: t.schema,
	}
}

func (t *fileReadTool) Execute(ctx context.Context, tc ToolContext, arguments json.RawMessage) (any, error) {
	var args fileReadArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return nil, err
	}
	preferText := true
	if args.PreferText != nil {
		preferText = *args.PreferText
	}
	return t.store.Read(ctx, files.ReadInput{
		URL:        args.URL,
		Key:        args.Key,
		MaxBytes:   args.MaxBytes,
		PreferText: preferText,
		OwnerID:    tc.UserID,
	})
}

func (t *fileWriteTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: ToolFileWrite,
		Description: "Write a small file to the user's upload folder for this chat. Use it to persist generated outputs " +
			"such as notes or summaries. Accepts plain text or a base64 data URL.",
		Parameters: t.schema,
	}
}

func (t *fileWriteTool) Execute(ctx context.Context, tc ToolContext, arguments json.RawMessage) (any, error) {
	var args fileWriteArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return nil, err
	}
	return t.store.Write(ctx, files.WriteInput{
		UserID:    tc.UserID,
		ChatID:    tc.ChatID,
		DataURL:   args.DataURL,
		Text:      args.Text,
		MediaType: args.MediaType,
		Filename:  args.Filename,
	})
}

func decodeArguments(arguments json.RawMessage, target any) error {
	if len(arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(arguments, target); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}

func schemaFor(args any) map[string]any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(args)
	schema.Version = ""
	schema.ID = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	return out
}

// toolSet indexes tools by name.
type toolSet map[string]Tool

func newToolSet(tools []Tool) toolSet {
	set := make(toolSet, len(tools))
	for _, tool := range tools {
		set[tool.Definition().Name] = tool
	}
	return set
}

func (s toolSet) definitions() []ToolDefinition {
	if len(s) == 0 {
		return nil
	}
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, s[name].Definition())
	}
	return defs
}
