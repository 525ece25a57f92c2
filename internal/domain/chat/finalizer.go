package chat

import (
	"context"
	"time"

	"bastion-server/internal/infrastructure/metrics"
)

const titleAwaitTimeout = 30 * time.Second

const (
	metadataThinkingTokens = "thinkingTokens"
	metadataProvider       = "provider"
)

// finalizeTurn persists the turn at most once, whether the stream completed or was aborted.
func (s *Service) finalizeTurn(ctx context.Context, t *turn) {
	t.finalize.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("chat_id", t.req.ChatID).Msg("chat finalizer panicked")
				metrics.RecordBackgroundFailure("persist")
			}
		}()
		s.persist(context.WithoutCancel(ctx), t, ctx.Err() != nil)
	})
}

func (s *Service) persist(ctx context.Context, t *turn, cancelled bool) {
	log := s.log.With().Str("chat_id", t.req.ChatID).Logger()

	if !t.stream.Produced() {
		if cancelled {
			log.Info().Msg("request cancelled before any output, skipping persistence")
		} else {
			log.Debug().Msg("no assistant output, skipping persistence")
		}
		return
	}
	if t.req.UserID == "" {
		log.Debug().Msg("anonymous caller, skipping persistence")
		return
	}

	assistant := t.stream.Snapshot()
	if t.result != nil {
		mergeTokenMetadata(assistant.Metadata, t.result.ProviderKey, t.result.ProviderMetadata)
	}

	chat := Chat{ID: t.req.ChatID, UserID: t.req.UserID, Visibility: VisibilityPrivate}
	if t.chat != nil {
		chat = *t.chat
	} else {
		awaitCtx, cancel := context.WithTimeout(ctx, titleAwaitTimeout)
		chat.Title = t.title.Await(awaitCtx)
		cancel()
	}

	err := s.repo.SaveTurn(ctx, Turn{
		Chat:             chat,
		CreateChat:       t.chat == nil,
		RegenerateFromID: t.regenerateFrom,
		UserMessage:      t.userMessage,
		Assistant:        assistant,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to persist chat turn")
		metrics.RecordBackgroundFailure("persist")
		return
	}
	log.Debug().Str("message_id", assistant.ID).Msg("persisted chat turn")
}

// mergeTokenMetadata writes thinkingTokens and provider[key] into metadata, keeping values
// already present when the captured metadata leaves a field unset.
func mergeTokenMetadata(metadata map[string]any, key string, md *ProviderTokenMetadata) {
	if md.IsEmpty() || key == "" {
		return
	}
	if md.ReasoningTokens != nil {
		metadata[metadataThinkingTokens] = *md.ReasoningTokens
	}

	providers, _ := metadata[metadataProvider].(map[string]any)
	merged := make(map[string]any, len(providers)+1)
	for k, v := range providers {
		merged[k] = v
	}
	entry, _ := merged[key].(map[string]any)
	combined := make(map[string]any, len(entry)+3)
	for k, v := range entry {
		combined[k] = v
	}
	for k, v := range md.toMap() {
		combined[k] = v
	}
	merged[key] = combined
	metadata[metadataProvider] = merged
}
