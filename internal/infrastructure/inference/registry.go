package inference

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"bastion-server/internal/config"
	"bastion-server/internal/domain/chat"
	domainmodel "bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/utils/httpclients"
	"bastion-server/internal/utils/platformerrors"
)

const defaultImageMediaType = "image/png"

// Registry routes model calls to the configured providers. It is the chat model backend, the
// image generator and the provider availability source of the catalog.
type Registry struct {
	clients map[string]*ChatCompletionClient
	timeout time.Duration
	log     zerolog.Logger
}

var (
	_ chat.ModelBackend                = (*Registry)(nil)
	_ chat.ImageGenerator              = (*Registry)(nil)
	_ domainmodel.ProviderAvailability = (*Registry)(nil)
)

// NewRegistry builds one client per provider with complete credentials.
func NewRegistry(cfg *config.Config) *Registry {
	return NewRegistryFromSettings(BuildProviderSettings(cfg), cfg.ModelRequestTimeout)
}

// NewRegistryFromSettings builds a registry over explicit provider settings.
func NewRegistryFromSettings(settings map[string]ProviderSettings, timeout time.Duration) *Registry {
	registry := &Registry{
		clients: make(map[string]*ChatCompletionClient, len(settings)),
		timeout: timeout,
		log:     logger.Component("inference"),
	}
	for id, s := range settings {
		// streams can outlive any client timeout, so deadlines come from the request context
		client := httpclients.NewClient(id+"Client", 0)
		registry.clients[id] = NewChatCompletionClient(client, s)
		registry.log.Info().Str("provider", id).Str("base_url", s.BaseURL).Bool("deployment", s.Deployment).Msg("model provider enabled")
	}
	return registry
}

// IsProviderEnabled implements model.ProviderAvailability.
func (r *Registry) IsProviderEnabled(providerID string) bool {
	_, ok := r.clients[providerID]
	return ok
}

// EnabledProviders lists the ids of configured providers.
func (r *Registry) EnabledProviders() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) client(ctx context.Context, m domainmodel.Model) (*ChatCompletionClient, error) {
	client, ok := r.clients[m.ProviderID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeValidation, "model provider is not configured: "+m.ProviderID, nil, "ebd6c270-55d7-487f-86f7-d041d1a0cbcf")
	}
	return client, nil
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// StreamStep implements chat.ModelBackend.
func (r *Registry) StreamStep(ctx context.Context, req chat.StepRequest, onDelta func(chat.StreamDelta) error) (*chat.StepResult, error) {
	client, err := r.client(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:    req.Model.ID,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}
	completion, err := client.StreamChatCompletion(ctx, request, func(chunk StreamChunk) error {
		for _, choice := range chunk.Choices {
			delta := chat.StreamDelta{
				Text:      choice.Delta.Content,
				Reasoning: choice.Delta.ReasoningContent + choice.Delta.Reasoning,
			}
			if delta.Text == "" && delta.Reasoning == "" {
				continue
			}
			if err := onDelta(delta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &chat.StepResult{
		Text:             completion.Content,
		Reasoning:        completion.Reasoning,
		ToolCalls:        fromOpenAIToolCalls(completion.ToolCalls),
		FinishReason:     finishReason(completion.FinishReason, len(completion.ToolCalls) > 0),
		Usage:            fromOpenAIUsage(completion.Usage),
		ProviderMetadata: providerMetadata(client.settings.MetadataKey, completion.ID, completion.Usage),
	}, nil
}

// Complete implements chat.ModelBackend.
func (r *Registry) Complete(ctx context.Context, req chat.CompletionRequest) (*chat.CompletionResult, error) {
	client, err := r.client(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model:    req.Model.ID,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		request.MaxCompletionTokens = req.MaxTokens
	}
	if req.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, err
	}
	result := &chat.CompletionResult{Usage: fromOpenAIUsage(&resp.Usage)}
	if len(resp.Choices) > 0 {
		result.Content = resp.Choices[0].Message.Content
	}
	return result, nil
}

// GenerateImage implements chat.ImageGenerator.
func (r *Registry) GenerateImage(ctx context.Context, m domainmodel.Model, prompt, size string) (*chat.GeneratedImage, error) {
	client, err := r.client(ctx, m)
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Model:  m.ID,
		Prompt: prompt,
		Size:   size,
		N:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "image provider returned no image", nil, "3f32b027-c62f-421c-8704-1eceaa016564")
	}

	item := resp.Data[0]
	if item.B64JSON != "" {
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "image provider returned invalid base64", err, "e79c6cf9-c204-4147-b9a2-b27fdd4c548c")
		}
		return &chat.GeneratedImage{Data: data, MediaType: sniffImageType(data)}, nil
	}
	if item.URL != "" {
		data, mediaType, err := client.Download(ctx, item.URL)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(mediaType, "image/") {
			mediaType = sniffImageType(data)
		}
		return &chat.GeneratedImage{Data: data, MediaType: mediaType}, nil
	}
	return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "image provider returned an empty item", nil, "5fbb8765-90eb-432e-9e44-16cf6d5778cd")
}

func sniffImageType(data []byte) string {
	if mediaType := mimetype.Detect(data).String(); strings.HasPrefix(mediaType, "image/") {
		return mediaType
	}
	return defaultImageMediaType
}
