package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bastion-server/internal/domain/model"
)

const relatedQuestionsCount = 3

const relatedQuestionsPrompt = `You suggest follow-up questions for a conversation.
Given the user's question and the assistant's answer, write %d short questions the user is likely to ask next.
Questions must be self-contained, specific to the conversation and in the user's language.
Reply with JSON only, in the form {"questions":[{"question":"..."}]}.`

// RelatedQuestion is one suggested follow-up.
type RelatedQuestion struct {
	Question string `json:"question"`
}

// RelatedQuestions is the payload of the data-relatedQuestions part.
type RelatedQuestions struct {
	Questions []RelatedQuestion `json:"questions"`
}

// RelatedQuestionsGenerator suggests follow-ups from the last user message and the response.
type RelatedQuestionsGenerator interface {
	Generate(ctx context.Context, m model.Model, messages []ModelMessage) (*RelatedQuestions, error)
}

type CompletionRelatedQuestions struct {
	backend ModelBackend
}

func NewCompletionRelatedQuestions(backend ModelBackend) *CompletionRelatedQuestions {
	return &CompletionRelatedQuestions{backend: backend}
}

func (g *CompletionRelatedQuestions) Generate(ctx context.Context, m model.Model, messages []ModelMessage) (*RelatedQuestions, error) {
	transcript := relatedTranscript(messages)
	if transcript == "" {
		return nil, fmt.Errorf("no conversation content for related questions")
	}

	result, err := g.backend.Complete(ctx, CompletionRequest{
		Model: m,
		Messages: []ModelMessage{
			{Role: RoleSystem, Content: fmt.Sprintf(relatedQuestionsPrompt, relatedQuestionsCount)},
			{Role: RoleUser, Content: transcript},
		},
		JSONMode:  true,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, err
	}
	return parseRelatedQuestions(result.Content)
}

// relatedTranscript renders user and assistant text. Tool traffic is left out.
func relatedTranscript(messages []ModelMessage) string {
	var b strings.Builder
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func parseRelatedQuestions(content string) (*RelatedQuestions, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var parsed RelatedQuestions
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		return nil, fmt.Errorf("parse related questions: %w", err)
	}

	questions := make([]RelatedQuestion, 0, relatedQuestionsCount)
	for _, q := range parsed.Questions {
		text := strings.TrimSpace(q.Question)
		if text == "" {
			continue
		}
		questions = append(questions, RelatedQuestion{Question: text})
		if len(questions) == relatedQuestionsCount {
			break
		}
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("model returned no related questions")
	}
	return &RelatedQuestions{Questions: questions}, nil
}
