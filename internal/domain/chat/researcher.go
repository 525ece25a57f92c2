package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/metrics"
)

const (
	quickMaxSteps    = 5
	adaptiveMaxSteps = 10

	finishReasonToolCalls = "tool-calls"
	finishReasonStop      = "stop"
)

// MaxSteps is the tool loop bound for a search mode.
func (m SearchMode) MaxSteps() int {
	if m.Normalize() == SearchModeAdaptive {
		return adaptiveMaxSteps
	}
	return quickMaxSteps
}

const quickSystemPrompt = `You are Bastion, a helpful AI assistant. Answer the user's question directly and concisely.
Use markdown for structure when it helps readability. Today's date is %s.`

const adaptiveSystemPrompt = `You are Bastion, a thorough research assistant. Break the user's question into parts,
reason about each of them and then write a complete, well structured answer in markdown.
When the question is ambiguous, state the assumptions you made. Today's date is %s.`

const fileToolsPrompt = `
You can read files the user attached with the fileRead tool and save generated notes or documents with the
fileWrite tool. Only use the tools when they help answer the request.`

func systemPrompt(mode SearchMode, withTools bool, now time.Time) string {
	template := quickSystemPrompt
	if mode.Normalize() == SearchModeAdaptive {
		template = adaptiveSystemPrompt
	}
	prompt := fmt.Sprintf(template, now.UTC().Format("2006-01-02"))
	if withTools {
		prompt += fileToolsPrompt
	}
	return prompt
}

// researchRun is the input of one agent invocation.
type researchRun struct {
	model       model.Model
	messages    []ModelMessage
	searchMode  SearchMode
	tools       toolSet
	toolContext ToolContext
	stream      *assistantStream
}

// ResearchResult is what the primary generation resolved to.
type ResearchResult struct {
	ResponseMessages []ModelMessage
	Usage            Usage
	ProviderKey      string
	ProviderMetadata *ProviderTokenMetadata
	FinishReason     string
}

// Researcher drives the bounded tool loop over a streaming model backend.
type Researcher struct {
	backend ModelBackend
	log     zerolog.Logger
	now     func() time.Time
}

func NewResearcher(backend ModelBackend, log zerolog.Logger) *Researcher {
	return &Researcher{backend: backend, log: log, now: time.Now}
}

func (r *Researcher) run(ctx context.Context, in researchRun) (*ResearchResult, error) {
	result := &ResearchResult{ProviderKey: in.model.MetadataKey()}
	prompt := ModelMessage{Role: RoleSystem, Content: systemPrompt(in.searchMode, len(in.tools) > 0, r.now())}
	definitions := in.tools.definitions()
	started := time.Now()
	firstToken := true

	for step := 0; step < in.searchMode.MaxSteps(); step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := in.stream.StartStep(); err != nil {
			return result, err
		}

		messages := make([]ModelMessage, 0, len(in.messages)+len(result.ResponseMessages)+1)
		messages = append(messages, prompt)
		messages = append(messages, in.messages...)
		messages = append(messages, result.ResponseMessages...)

		blocks := &blockState{stream: in.stream}
		stepStarted := time.Now()
		stepResult, err := r.backend.StreamStep(ctx, StepRequest{Model: in.model, Messages: messages, Tools: definitions}, func(delta StreamDelta) error {
			if firstToken && (delta.Text != "" || delta.Reasoning != "") {
				firstToken = false
				metrics.RecordFirstToken(in.model.ID, in.model.ProviderID, time.Since(started).Seconds())
			}
			return blocks.apply(delta)
		})
		if closeErr := blocks.close(); err == nil {
			err = closeErr
		}
		metrics.RecordLLMDuration(in.model.ID, in.model.ProviderID, "stream", time.Since(stepStarted).Seconds())
		if err != nil {
			metrics.RecordProviderError(in.model.ProviderID, "stream")
			return result, err
		}

		r.absorb(result, in.model, stepResult)
		if err := in.stream.FinishStep(); err != nil {
			return result, err
		}

		assistant := ModelMessage{Role: RoleAssistant, Content: stepResult.Text, Reasoning: stepResult.Reasoning, ToolCalls: stepResult.ToolCalls}
		result.ResponseMessages = append(result.ResponseMessages, assistant)
		result.FinishReason = stepResult.FinishReason

		if len(stepResult.ToolCalls) == 0 {
			break
		}
		for _, call := range stepResult.ToolCalls {
			toolMessage, err := r.executeTool(ctx, in, call)
			if err != nil {
				return result, err
			}
			result.ResponseMessages = append(result.ResponseMessages, toolMessage)
		}
		result.FinishReason = finishReasonToolCalls
	}

	if result.Usage.ReasoningTokens != nil {
		reasoning := *result.Usage.ReasoningTokens
		result.ProviderMetadata = MergeProviderMetadata(result.ProviderMetadata, &ProviderTokenMetadata{ReasoningTokens: &reasoning})
	}
	metrics.RecordTokens(in.model.ID, in.model.ProviderID, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

// absorb folds one step's usage and provider metadata into the turn result.
func (r *Researcher) absorb(result *ResearchResult, m model.Model, step *StepResult) {
	result.Usage.Add(step.Usage)

	key, extracted := ExtractProviderMetadata(step.ProviderMetadata, m.MetadataKey())
	if extracted == nil {
		return
	}
	if key != result.ProviderKey {
		result.ProviderKey = key
		result.ProviderMetadata = extracted
		return
	}
	result.ProviderMetadata = MergeProviderMetadata(result.ProviderMetadata, extracted)
}

func (r *Researcher) executeTool(ctx context.Context, in researchRun, call ToolCall) (ModelMessage, error) {
	input := toolInputJSON(call.Arguments)
	if err := in.stream.ToolInput(call, input); err != nil {
		return ModelMessage{}, err
	}

	toolMessage := ModelMessage{Role: RoleTool, ToolCallID: call.ID, ToolName: call.Name}
	tool, ok := in.tools[call.Name]
	if !ok {
		errorText := fmt.Sprintf("tool %q is not available", call.Name)
		toolMessage.Content = errorJSON(errorText)
		return toolMessage, in.stream.ToolError(call.ID, errorText)
	}

	output, err := tool.Execute(ctx, in.toolContext, input)
	if err != nil {
		r.log.Warn().Err(err).Str("tool", call.Name).Msg("tool execution failed")
		toolMessage.Content = errorJSON(err.Error())
		return toolMessage, in.stream.ToolError(call.ID, err.Error())
	}

	encoded, err := json.Marshal(output)
	if err != nil {
		toolMessage.Content = errorJSON(err.Error())
		return toolMessage, in.stream.ToolError(call.ID, err.Error())
	}
	toolMessage.Content = string(encoded)
	return toolMessage, in.stream.ToolOutput(call.ID, encoded)
}

// toolInputJSON returns the arguments as JSON, wrapping text that does not parse.
func toolInputJSON(arguments string) json.RawMessage {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(trimmed)
	return encoded
}

func errorJSON(message string) string {
	encoded, _ := json.Marshal(map[string]string{"error": message})
	return string(encoded)
}

// blockState opens text and reasoning blocks lazily as deltas arrive and closes a block as soon
// as the other kind starts.
type blockState struct {
	stream      *assistantStream
	textID      string
	reasoningID string
}

func (b *blockState) apply(delta StreamDelta) error {
	if delta.Reasoning != "" {
		if b.textID != "" {
			if err := b.stream.EndText(b.textID); err != nil {
				return err
			}
			b.textID = ""
		}
		if b.reasoningID == "" {
			id, err := b.stream.BeginReasoning()
			if err != nil {
				return err
			}
			b.reasoningID = id
		}
		if err := b.stream.ReasoningDelta(b.reasoningID, delta.Reasoning); err != nil {
			return err
		}
	}
	if delta.Text != "" {
		if b.reasoningID != "" {
			if err := b.stream.EndReasoning(b.reasoningID); err != nil {
				return err
			}
			b.reasoningID = ""
		}
		if b.textID == "" {
			id, err := b.stream.BeginText()
			if err != nil {
				return err
			}
			b.textID = id
		}
		if err := b.stream.TextDelta(b.textID, delta.Text); err != nil {
			return err
		}
	}
	return nil
}

func (b *blockState) close() error {
	if b.reasoningID != "" {
		if err := b.stream.EndReasoning(b.reasoningID); err != nil {
			return err
		}
		b.reasoningID = ""
	}
	if b.textID != "" {
		if err := b.stream.EndText(b.textID); err != nil {
			return err
		}
		b.textID = ""
	}
	return nil
}
