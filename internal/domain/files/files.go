package files

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"bastion-server/internal/utils/platformerrors"
)

const (
	DefaultMaxBytes int64 = 2 * 1024 * 1024
	MaxReadBytes    int64 = 10 * 1024 * 1024
	CacheControl          = "max-age=3600"

	StateOK             = "ok"
	StateUnsupportedURL = "unsupported-url"

	defaultMediaType   = "text/plain"
	octetStream        = "application/octet-stream"
	defaultOutputName  = "output"
	unsupportedURLText = "URL is not under configured R2 public base URL."
)

var (
	unsafeNameChars = regexp.MustCompile(`(?i)[^a-z0-9.\-_]`)
	dataURLPattern  = regexp.MustCompile(`^data:([^;]+);base64,(.*)$`)
)

// Object is the result of a bounded object read.
type Object struct {
	Body          []byte
	ContentType   string
	ContentLength int64
}

// ObjectStore is the blob storage backend.
type ObjectStore interface {
	Enabled() bool
	GetObject(ctx context.Context, key string, maxBytes int64) (*Object, error)
	PutObject(ctx context.Context, key string, body []byte, contentType, cacheControl string) error
	PublicURL(key string) string
	KeyFromURL(url string) (string, bool)
}

type ReadInput struct {
	URL        string
	Key        string
	MaxBytes   int64
	PreferText bool
	// OwnerID restricts reads to keys under "{OwnerID}/" when set.
	OwnerID string
}

type ReadResult struct {
	State     string `json:"state"`
	Key       string `json:"key,omitempty"`
	URL       string `json:"url,omitempty"`
	Size      int64  `json:"size,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Content   string `json:"content,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type WriteInput struct {
	Key       string
	ChatID    string
	UserID    string
	DataURL   string
	Text      string
	MediaType string
	Filename  string
}

type WriteResult struct {
	State     string `json:"state"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

type Service struct {
	store ObjectStore
	now   func() time.Time
}

func NewService(store ObjectStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Enabled reports whether object storage is configured.
func (s *Service) Enabled() bool {
	return s.store != nil && s.store.Enabled()
}

// Read fetches at most MaxBytes of an object addressed by key or by a public URL.
func (s *Service) Read(ctx context.Context, input ReadInput) (*ReadResult, error) {
	if !s.Enabled() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "object storage is not configured", nil, "d8d3db95-6f76-4333-94b4-8adbd87f6795")
	}

	maxBytes := input.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if maxBytes > MaxReadBytes {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, fmt.Sprintf("maxBytes must not exceed %d", MaxReadBytes), nil, "b0f72650-4496-4a84-b82e-0d7fe2cde01f")
	}

	key := strings.TrimSpace(input.Key)
	if key == "" && input.URL != "" {
		if fromURL, ok := s.store.KeyFromURL(input.URL); ok {
			key = fromURL
		}
	}
	if key == "" {
		if input.URL == "" {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "provide either url or key", nil, "af46516f-b715-4d64-a286-3ddb4cbb648b")
		}
		return &ReadResult{State: StateUnsupportedURL, URL: input.URL, Reason: unsupportedURLText}, nil
	}
	if input.OwnerID != "" && !strings.HasPrefix(key, input.OwnerID+"/") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "file does not belong to the current user", nil, "b9aa4f32-fe9a-4ab0-bd5a-4a20e0271d42")
	}

	obj, err := s.store.GetObject(ctx, key, maxBytes)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to read object")
	}

	contentType := obj.ContentType
	if contentType == "" || contentType == octetStream {
		contentType = mimetype.Detect(obj.Body).String()
	}

	result := &ReadResult{
		State:     StateOK,
		Key:       key,
		URL:       s.store.PublicURL(key),
		Size:      obj.ContentLength,
		MediaType: contentType,
		Truncated: obj.ContentLength > int64(len(obj.Body)),
	}
	if input.PreferText && strings.HasPrefix(contentType, "text/") {
		result.Content = string(obj.Body)
	} else {
		result.Content = "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Body)
	}
	return result, nil
}

// Write stores text or a base64 data URL under the caller's chat folder.
func (s *Service) Write(ctx context.Context, input WriteInput) (*WriteResult, error) {
	if !s.Enabled() {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "object storage is not configured", nil, "90ab65d8-c556-43d1-ba0d-e2f6bd535de5")
	}
	if input.DataURL == "" && input.Text == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "Provide either dataUrl or text", nil, "6daa6cb8-38f8-495d-b8fb-5eec4a34c9a1")
	}
	if strings.TrimSpace(input.UserID) == "" || strings.TrimSpace(input.ChatID) == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "userId and chatId are required", nil, "03351065-1419-47fb-b973-e654333a1f59")
	}

	key := strings.TrimSpace(input.Key)
	if key == "" {
		key = ObjectKey(input.UserID, input.ChatID, input.Filename, s.now())
	} else if !strings.HasPrefix(key, input.UserID+"/") || strings.Contains(key, "..") {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "key must be inside the user's folder", nil, "a8c57772-4707-4cfd-8edc-0480f3363e9f")
	}

	var (
		body        []byte
		contentType = input.MediaType
	)
	if contentType == "" {
		contentType = defaultMediaType
	}
	if input.DataURL != "" {
		mediaType, decoded, err := DecodeDataURL(input.DataURL)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "Invalid dataUrl format", err, "33f062c9-38be-4d9e-a4d3-8ad9140fa507")
		}
		contentType = mediaType
		body = decoded
	} else {
		body = []byte(input.Text)
	}

	if err := s.store.PutObject(ctx, key, body, contentType, CacheControl); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to write object")
	}

	return &WriteResult{
		State:     StateOK,
		Key:       key,
		URL:       s.store.PublicURL(key),
		MediaType: contentType,
	}, nil
}

// ObjectKey builds "{userId}/chats/{chatId}/{unixMillis}-{sanitised filename}".
func ObjectKey(userID, chatID, filename string, now time.Time) string {
	name := filename
	if name == "" {
		name = defaultOutputName
	}
	return fmt.Sprintf("%s/chats/%s/%d-%s", userID, chatID, now.UnixMilli(), SanitizeFilename(name))
}

// SanitizeFilename replaces every character outside [a-z0-9.-_] (any case) with "_".
func SanitizeFilename(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// DecodeDataURL parses "data:<type>;base64,<payload>".
func DecodeDataURL(dataURL string) (string, []byte, error) {
	match := dataURLPattern.FindStringSubmatch(dataURL)
	if match == nil {
		return "", nil, fmt.Errorf("data url must match data:<type>;base64,<payload>")
	}
	decoded, err := base64.StdEncoding.DecodeString(match[2])
	if err != nil {
		return "", nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return match[1], decoded, nil
}

// EncodeDataURL is the inverse of DecodeDataURL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
