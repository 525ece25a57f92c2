package chat

import (
	"context"
	"strings"
	"time"

	"bastion-server/internal/domain/files"
	"bastion-server/internal/infrastructure/metrics"
)

const (
	ImageSize          = "1024x1024"
	imageMediaType     = "image/png"
	imageFilename      = "image.png"
	emptyImagePrompt   = "Please provide a prompt to generate an image."
	imageFailedMessage = "Failed to generate image. Please try again."
)

// lastUserText returns the text of the most recent user message.
func lastUserText(messages []ModelMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

// runImage answers the turn with a single generated image. Generation failures are reported to
// the user as text and never returned. A cancelled request writes nothing further.
func (s *Service) runImage(ctx context.Context, t *turn) string {
	prompt := lastUserText(t.prepared)
	if prompt == "" {
		_ = t.stream.Text(emptyImagePrompt)
		return "empty_prompt"
	}

	s.startTitle(ctx, t)

	started := time.Now()
	image, err := s.images.GenerateImage(ctx, t.model, prompt, ImageSize)
	metrics.RecordLLMDuration(t.model.ID, t.model.ProviderID, "image", time.Since(started).Seconds())
	if ctx.Err() != nil {
		return "cancelled"
	}
	if err != nil || image == nil || len(image.Data) == 0 {
		if err != nil {
			s.log.Error().Err(err).Str("model", t.model.Key()).Str("chat_id", t.req.ChatID).Msg("image generation failed")
		}
		metrics.RecordProviderError(t.model.ProviderID, "image")
		_ = t.stream.Text(imageFailedMessage)
		return "image_failed"
	}

	mediaType := image.MediaType
	if mediaType == "" {
		mediaType = imageMediaType
	}
	dataURL := files.EncodeDataURL(mediaType, image.Data)
	_ = t.stream.File(mediaType, imageFilename, dataURL, s.persistImage(ctx, t, dataURL))
	return "success"
}

// persistImage uploads the image for signed-in callers when storage is configured and returns
// its public URL, or "" to keep the inline data URL.
func (s *Service) persistImage(ctx context.Context, t *turn, dataURL string) string {
	if s.files == nil || !s.files.Enabled() || t.req.UserID == "" {
		return ""
	}
	written, err := s.files.Write(ctx, files.WriteInput{
		UserID:   t.req.UserID,
		ChatID:   t.req.ChatID,
		DataURL:  dataURL,
		Filename: imageFilename,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("chat_id", t.req.ChatID).Msg("failed to upload generated image")
		metrics.RecordBackgroundFailure("image_upload")
		return ""
	}
	return written.URL
}
