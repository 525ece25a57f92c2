package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/metrics"
	"bastion-server/internal/utils/stringutils"
)

const DefaultChatTitle = stringutils.DefaultTitle

const titleSystemPrompt = `You write titles for chat conversations.
Given the user's first message, reply with a title of at most 8 words that captures the topic.
Reply with the title only: no quotes, no punctuation at the end, no markdown.
Use the same language as the user's message.`

// TitleGenerator turns the first user message into a short title.
type TitleGenerator interface {
	GenerateTitle(ctx context.Context, firstMessage string, m model.Model) (string, error)
}

// CompletionTitleGenerator asks a chat model for a title and cleans up the answer.
type CompletionTitleGenerator struct {
	backend ModelBackend
}

func NewCompletionTitleGenerator(backend ModelBackend) *CompletionTitleGenerator {
	return &CompletionTitleGenerator{backend: backend}
}

func (g *CompletionTitleGenerator) GenerateTitle(ctx context.Context, firstMessage string, m model.Model) (string, error) {
	firstMessage = strings.TrimSpace(firstMessage)
	if firstMessage == "" {
		return "", fmt.Errorf("first message is empty")
	}
	result, err := g.backend.Complete(ctx, CompletionRequest{
		Model: m,
		Messages: []ModelMessage{
			{Role: RoleSystem, Content: titleSystemPrompt},
			{Role: RoleUser, Content: firstMessage},
		},
		MaxTokens: 64,
	})
	if err != nil {
		return "", err
	}
	title := stringutils.NormalizeGeneratedTitle(result.Content)
	if title == DefaultChatTitle {
		if fallback := stringutils.GenerateTitle(firstMessage, stringutils.MaxTitleRunes); fallback != "" {
			return fallback, nil
		}
	}
	return title, nil
}

// TitleTask is a title generation running alongside the main response.
type TitleTask struct {
	done  chan struct{}
	title string
}

// StartTitleTask runs the generator in its own goroutine. Failures resolve to DefaultChatTitle.
func StartTitleTask(ctx context.Context, generator TitleGenerator, firstMessage string, m model.Model, log zerolog.Logger) *TitleTask {
	task := &TitleTask{done: make(chan struct{}), title: DefaultChatTitle}
	go func() {
		defer close(task.done)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("title generation panicked")
				metrics.RecordBackgroundFailure("title")
			}
		}()

		title, err := generator.GenerateTitle(ctx, firstMessage, m)
		if err != nil {
			log.Warn().Err(err).Str("model", m.Key()).Msg("title generation failed")
			metrics.RecordBackgroundFailure("title")
			return
		}
		if title = strings.TrimSpace(title); title != "" {
			task.title = title
		}
	}()
	return task
}

// Await blocks until the title is ready or ctx ends, in which case the default title is used.
// A nil task resolves to the default title.
func (t *TitleTask) Await(ctx context.Context) string {
	if t == nil {
		return DefaultChatTitle
	}
	select {
	case <-t.done:
		return t.title
	case <-ctx.Done():
		return DefaultChatTitle
	}
}
