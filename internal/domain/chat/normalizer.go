package chat

import (
	"encoding/json"
	"strings"
)

// FilterReasoningParts drops reasoning parts that providers reject when replayed. Reasoning is
// kept only inside assistant messages and only when another output part directly follows it.
// Messages left without parts are removed. The input is not modified.
func FilterReasoningParts(messages []Message) []Message {
	result := make([]Message, 0, len(messages))
	for _, msg := range messages {
		parts := make([]Part, 0, len(msg.Parts))
		for i, part := range msg.Parts {
			if part.Type != PartTypeReasoning {
				parts = append(parts, part)
				continue
			}
			if msg.Role != RoleAssistant || strings.TrimSpace(part.Text) == "" {
				continue
			}
			if next, ok := nextOutputPart(msg.Parts, i); ok && next.Type != PartTypeReasoning {
				parts = append(parts, part)
			}
		}
		if len(parts) == 0 {
			continue
		}
		filtered := msg
		filtered.Parts = parts
		result = append(result, filtered)
	}
	return result
}

// nextOutputPart skips step boundaries, which carry no content.
func nextOutputPart(parts []Part, i int) (Part, bool) {
	for j := i + 1; j < len(parts); j++ {
		if parts[j].Type == PartTypeStepStart {
			continue
		}
		return parts[j], true
	}
	return Part{}, false
}

// ConvertToModelMessages flattens UI messages into provider messages. Assistant tool parts become
// an assistant message carrying tool calls followed by one tool message per result; data parts
// and step boundaries are not sent to the model.
func ConvertToModelMessages(messages []Message) []ModelMessage {
	result := make([]ModelMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if text := msg.Text(); text != "" {
				result = append(result, ModelMessage{Role: RoleSystem, Content: text})
			}
		case RoleUser:
			user := ModelMessage{Role: RoleUser, Content: msg.Text()}
			for _, part := range msg.Parts {
				if part.Type == PartTypeFile && part.URL != "" {
					user.Files = append(user.Files, FileRef{MediaType: part.MediaType, Filename: part.Filename, URL: part.URL})
				}
			}
			if user.Content != "" || len(user.Files) > 0 {
				result = append(result, user)
			}
		case RoleAssistant:
			result = append(result, convertAssistant(msg.Parts)...)
		}
	}
	return result
}

func convertAssistant(parts []Part) []ModelMessage {
	var (
		out     []ModelMessage
		current ModelMessage
		results []ModelMessage
		texts   []string
	)
	current.Role = RoleAssistant

	flush := func() {
		current.Content = strings.Join(texts, "\n")
		if current.Content != "" || current.Reasoning != "" || len(current.ToolCalls) > 0 {
			out = append(out, current)
			out = append(out, results...)
		}
		current = ModelMessage{Role: RoleAssistant}
		results = nil
		texts = nil
	}

	for _, part := range parts {
		switch {
		case part.Type == PartTypeText:
			if len(current.ToolCalls) > 0 {
				flush()
			}
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		case part.Type == PartTypeReasoning:
			if len(current.ToolCalls) > 0 {
				flush()
			}
			current.Reasoning += part.Text
		case part.Type == PartTypeFile:
			if part.URL != "" && !strings.HasPrefix(part.URL, "data:") {
				texts = append(texts, "["+fileLabel(part)+"]("+part.URL+")")
			}
		case part.IsTool():
			if part.State != ToolStateOutputAvailable && part.State != ToolStateOutputError {
				continue
			}
			call := ToolCall{ID: part.ToolCallID, Name: part.ToolName(), Arguments: rawOrEmptyObject(part.Input)}
			current.ToolCalls = append(current.ToolCalls, call)
			output := rawOrEmptyObject(part.Output)
			if part.State == ToolStateOutputError {
				encoded, _ := json.Marshal(map[string]string{"error": part.ErrorText})
				output = string(encoded)
			}
			results = append(results, ModelMessage{Role: RoleTool, ToolCallID: part.ToolCallID, ToolName: call.Name, Content: output})
		}
	}
	flush()
	return out
}

func fileLabel(part Part) string {
	if part.Filename != "" {
		return part.Filename
	}
	if part.MediaType != "" {
		return part.MediaType
	}
	return "file"
}

func rawOrEmptyObject(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
