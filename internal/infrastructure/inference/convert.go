package inference

import (
	"strings"

	"github.com/sashabaranov/go-openai"

	"bastion-server/internal/domain/chat"
)

func toOpenAIMessages(messages []chat.ModelMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case chat.RoleUser:
			out = append(out, userMessage(msg))
		case chat.RoleAssistant:
			assistant := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Name, Arguments: call.Arguments},
				})
			}
			if assistant.Content == "" && len(assistant.ToolCalls) == 0 {
				continue
			}
			out = append(out, assistant)
		case chat.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				Name:       msg.ToolName,
			})
		}
	}
	return out
}

// userMessage inlines images as image_url parts and references other files by link.
func userMessage(msg chat.ModelMessage) openai.ChatCompletionMessage {
	if len(msg.Files) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content}
	}
	parts := make([]openai.ChatMessagePart, 0, len(msg.Files)+1)
	if msg.Content != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: msg.Content})
	}
	for _, file := range msg.Files {
		if strings.HasPrefix(file.MediaType, "image/") {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: file.URL, Detail: openai.ImageURLDetailAuto},
			})
			continue
		}
		name := file.Filename
		if name == "" {
			name = "attachment"
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: "[" + name + "](" + file.URL + ")",
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func toOpenAITools(tools []chat.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []chat.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]chat.ToolCall, 0, len(calls))
	for _, call := range calls {
		out = append(out, chat.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments})
	}
	return out
}

func fromOpenAIUsage(usage *openai.Usage) *chat.Usage {
	if usage == nil {
		return nil
	}
	out := &chat.Usage{
		PromptTokens:     int64(usage.PromptTokens),
		CompletionTokens: int64(usage.CompletionTokens),
		TotalTokens:      int64(usage.TotalTokens),
	}
	if usage.CompletionTokensDetails != nil {
		reasoning := int64(usage.CompletionTokensDetails.ReasoningTokens)
		out.ReasoningTokens = &reasoning
	}
	if usage.PromptTokensDetails != nil {
		cached := int64(usage.PromptTokensDetails.CachedTokens)
		out.CachedPromptTokens = &cached
	}
	return out
}

// providerMetadata reports the response id and token details under the provider's key.
func providerMetadata(key, responseID string, usage *openai.Usage) chat.ProviderMetadata {
	entry := map[string]any{}
	if responseID != "" {
		entry["responseId"] = responseID
	}
	if usage != nil {
		if usage.PromptTokensDetails != nil {
			entry["cachedPromptTokens"] = int64(usage.PromptTokensDetails.CachedTokens)
		}
		if usage.CompletionTokensDetails != nil {
			entry["reasoningTokens"] = int64(usage.CompletionTokensDetails.ReasoningTokens)
		}
	}
	if len(entry) == 0 {
		return nil
	}
	return chat.ProviderMetadata{key: entry}
}

// finishReason maps OpenAI finish reasons to the names the agent loop expects.
func finishReason(reason string, hasToolCalls bool) string {
	switch {
	case hasToolCalls || reason == string(openai.FinishReasonToolCalls) || reason == string(openai.FinishReasonFunctionCall):
		return "tool-calls"
	case reason == string(openai.FinishReasonLength):
		return "length"
	case reason == string(openai.FinishReasonContentFilter):
		return "content-filter"
	default:
		return "stop"
	}
}
