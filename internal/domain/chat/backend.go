package chat

import (
	"context"

	"bastion-server/internal/domain/model"
)

// ModelMessage is a message in the provider wire shape (after UI parts are flattened).
type ModelMessage struct {
	Role       Role
	Content    string
	Reasoning  string
	Files      []FileRef
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// FileRef is a file attached to a user message.
type FileRef struct {
	MediaType string
	Filename  string
	URL       string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition is advertised to the model. Parameters is a JSON schema document.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  any
}

// Usage is reported token usage. Optional counters are nil when the provider did not report them.
type Usage struct {
	PromptTokens       int64
	CompletionTokens   int64
	TotalTokens        int64
	ReasoningTokens    *int64
	CachedPromptTokens *int64
}

// Add folds other into u. Optional counters are summed when both sides report them.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.ReasoningTokens = addOptional(u.ReasoningTokens, other.ReasoningTokens)
	u.CachedPromptTokens = addOptional(u.CachedPromptTokens, other.CachedPromptTokens)
}

func addOptional(a, b *int64) *int64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := *a + *b
		return &v
	}
}

// ProviderMetadata is the raw, vendor shaped metadata keyed by provider name.
type ProviderMetadata map[string]map[string]any

// StreamDelta is one increment of streamed output.
type StreamDelta struct {
	Text      string
	Reasoning string
}

type StepRequest struct {
	Model    model.Model
	Messages []ModelMessage
	Tools    []ToolDefinition
}

// StepResult is the resolved output of one streamed model call.
type StepResult struct {
	Text             string
	Reasoning        string
	ToolCalls        []ToolCall
	FinishReason     string
	Usage            *Usage
	ProviderMetadata ProviderMetadata
}

type CompletionRequest struct {
	Model     model.Model
	Messages  []ModelMessage
	JSONMode  bool
	MaxTokens int
}

type CompletionResult struct {
	Content string
	Usage   *Usage
}

// ModelBackend runs chat models. StreamStep invokes onDelta for every streamed increment and
// stops when ctx is cancelled or onDelta fails.
type ModelBackend interface {
	StreamStep(ctx context.Context, req StepRequest, onDelta func(StreamDelta) error) (*StepResult, error)
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

type GeneratedImage struct {
	Data      []byte
	MediaType string
}

// ImageGenerator produces one image per call.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, m model.Model, prompt, size string) (*GeneratedImage, error)
}
