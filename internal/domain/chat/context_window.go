package chat

import (
	"math"
	"strings"
	"unicode"

	"bastion-server/internal/domain/model"
)

const (
	// contextSafetyMargin leaves room for the system prompt, tool schemas and the answer.
	contextSafetyMargin   = 0.75
	defaultCharsPerToken  = 4.0
	claudeCharsPerToken   = 3.5
	cjkCharsPerToken      = 1.5
	messageOverheadTokens = 4
	fileTokens            = 85
)

// MaxAllowedTokens is the history budget for a model.
func MaxAllowedTokens(m model.Model) int {
	return int(math.Floor(float64(m.EffectiveContextWindow()) * contextSafetyMargin))
}

// ShouldTruncate reports whether the estimated size of messages exceeds the model budget.
func ShouldTruncate(messages []ModelMessage, m model.Model) bool {
	return EstimateMessagesTokens(messages, m.ID) > MaxAllowedTokens(m)
}

// TruncateMessages keeps every system message and the newest other messages that fit in
// maxTokens, in their original order. The newest message is always kept, even when it alone
// exceeds the budget, and the kept history starts at a user message whenever that does not drop
// the newest message.
func TruncateMessages(messages []ModelMessage, maxTokens int, modelID string) []ModelMessage {
	if len(messages) == 0 {
		return []ModelMessage{}
	}

	var system []ModelMessage
	rest := make([]int, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
			continue
		}
		rest = append(rest, i)
	}
	if len(rest) == 0 {
		return append([]ModelMessage{}, messages...)
	}

	budget := maxTokens - EstimateMessagesTokens(system, modelID)
	start := len(rest) - 1
	used := EstimateMessageTokens(messages[rest[start]], modelID)
	for start > 0 {
		cost := EstimateMessageTokens(messages[rest[start-1]], modelID)
		if used+cost > budget {
			break
		}
		used += cost
		start--
	}
	for start < len(rest)-1 && messages[rest[start]].Role != RoleUser {
		start++
	}

	first := rest[start]
	result := make([]ModelMessage, 0, len(messages))
	for i, msg := range messages {
		if msg.Role == RoleSystem || i >= first {
			result = append(result, msg)
		}
	}
	return result
}

// EstimateMessagesTokens sums EstimateMessageTokens over messages.
func EstimateMessagesTokens(messages []ModelMessage, modelID string) int {
	total := 0
	for _, msg := range messages {
		total += EstimateMessageTokens(msg, modelID)
	}
	return total
}

// EstimateMessageTokens approximates the prompt cost of one message.
func EstimateMessageTokens(msg ModelMessage, modelID string) int {
	tokens := messageOverheadTokens
	tokens += EstimateTextTokens(msg.Content, modelID)
	tokens += EstimateTextTokens(msg.Reasoning, modelID)
	for _, call := range msg.ToolCalls {
		tokens += EstimateTextTokens(call.Name, modelID) + EstimateTextTokens(call.Arguments, modelID)
	}
	tokens += len(msg.Files) * fileTokens
	return tokens
}

// EstimateTextTokens counts CJK runes at 1.5 chars per token and everything else at the
// model's Latin ratio.
func EstimateTextTokens(text, modelID string) int {
	if text == "" {
		return 0
	}
	var cjk, other int
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	estimate := float64(other)/charsPerToken(modelID) + float64(cjk)/cjkCharsPerToken
	return int(math.Ceil(estimate))
}

func charsPerToken(modelID string) float64 {
	if strings.Contains(strings.ToLower(modelID), "claude") {
		return claudeCharsPerToken
	}
	return defaultCharsPerToken
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
