package files

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/utils/platformerrors"
)

type memoryObject struct {
	body         []byte
	contentType  string
	cacheControl string
}

type memoryStore struct {
	enabled bool
	base    string
	objects map[string]memoryObject
}

func newMemoryStore() *memoryStore {
	return &memoryStore{enabled: true, base: "https://files.example.com", objects: map[string]memoryObject{}}
}

func (m *memoryStore) Enabled() bool { return m.enabled }

func (m *memoryStore) GetObject(_ context.Context, key string, maxBytes int64) (*Object, error) {
	obj, ok := m.objects[key]
	if !ok {
		return nil, platformerrors.NewError(context.Background(), platformerrors.LayerInfrastructure, platformerrors.ErrorTypeNotFound, "object not found", nil, "")
	}
	body := obj.body
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
	}
	return &Object{Body: body, ContentType: obj.contentType, ContentLength: int64(len(obj.body))}, nil
}

func (m *memoryStore) PutObject(_ context.Context, key string, body []byte, contentType, cacheControl string) error {
	m.objects[key] = memoryObject{body: body, contentType: contentType, cacheControl: cacheControl}
	return nil
}

func (m *memoryStore) PublicURL(key string) string { return m.base + "/" + key }

func (m *memoryStore) KeyFromURL(url string) (string, bool) {
	return strings.CutPrefix(url, m.base+"/")
}

func fixedService(store ObjectStore) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc
}

func TestWriteText(t *testing.T) {
	store := newMemoryStore()
	svc := fixedService(store)

	result, err := svc.Write(context.Background(), WriteInput{UserID: "u1", ChatID: "c1", Text: "hello", Filename: "my notes (1).md"})
	require.NoError(t, err)

	assert.Equal(t, StateOK, result.State)
	assert.Equal(t, "u1/chats/c1/1700000000000-my_notes__1_.md", result.Key)
	assert.Equal(t, "https://files.example.com/"+result.Key, result.URL)
	assert.Equal(t, "text/plain", result.MediaType)

	stored := store.objects[result.Key]
	assert.Equal(t, "hello", string(stored.body))
	assert.Equal(t, CacheControl, stored.cacheControl)
}

func TestWriteDataURL(t *testing.T) {
	store := newMemoryStore()
	svc := fixedService(store)
	payload := []byte{0x89, 'P', 'N', 'G'}

	result, err := svc.Write(context.Background(), WriteInput{
		UserID:  "u1",
		ChatID:  "c1",
		DataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload),
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", result.MediaType)
	assert.Equal(t, "u1/chats/c1/1700000000000-output", result.Key)
	assert.Equal(t, payload, store.objects[result.Key].body)
}

func TestWriteValidation(t *testing.T) {
	svc := fixedService(newMemoryStore())
	ctx := context.Background()

	tests := []struct {
		name     string
		input    WriteInput
		wantType platformerrors.ErrorType
	}{
		{name: "no content", input: WriteInput{UserID: "u1", ChatID: "c1"}, wantType: platformerrors.ErrorTypeValidation},
		{name: "bad data url", input: WriteInput{UserID: "u1", ChatID: "c1", DataURL: "data:image/png,abc"}, wantType: platformerrors.ErrorTypeValidation},
		{name: "missing owner", input: WriteInput{ChatID: "c1", Text: "x"}, wantType: platformerrors.ErrorTypeValidation},
		{name: "foreign key", input: WriteInput{UserID: "u1", ChatID: "c1", Text: "x", Key: "u2/chats/c1/x"}, wantType: platformerrors.ErrorTypeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Write(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, platformerrors.IsErrorType(err, tt.wantType), err.Error())
		})
	}
}

func TestRead(t *testing.T) {
	store := newMemoryStore()
	store.objects["u1/chats/c1/a.txt"] = memoryObject{body: []byte("plain text"), contentType: "text/plain"}
	store.objects["u1/chats/c1/blob"] = memoryObject{body: []byte("%PDF-1.4 test")}
	svc := fixedService(store)
	ctx := context.Background()

	t.Run("text by url", func(t *testing.T) {
		result, err := svc.Read(ctx, ReadInput{URL: "https://files.example.com/u1/chats/c1/a.txt", PreferText: true})
		require.NoError(t, err)
		assert.Equal(t, StateOK, result.State)
		assert.Equal(t, "plain text", result.Content)
		assert.Equal(t, int64(10), result.Size)
	})

	t.Run("base64 when text not preferred", func(t *testing.T) {
		result, err := svc.Read(ctx, ReadInput{Key: "u1/chats/c1/a.txt"})
		require.NoError(t, err)
		assert.Equal(t, "data:text/plain;base64,"+base64.StdEncoding.EncodeToString([]byte("plain text")), result.Content)
	})

	t.Run("sniffed content type", func(t *testing.T) {
		result, err := svc.Read(ctx, ReadInput{Key: "u1/chats/c1/blob", PreferText: true})
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", result.MediaType)
		assert.True(t, strings.HasPrefix(result.Content, "data:application/pdf;base64,"))
	})

	t.Run("truncated", func(t *testing.T) {
		result, err := svc.Read(ctx, ReadInput{Key: "u1/chats/c1/a.txt", MaxBytes: 5, PreferText: true})
		require.NoError(t, err)
		assert.Equal(t, "plain", result.Content)
		assert.True(t, result.Truncated)
	})

	t.Run("foreign url", func(t *testing.T) {
		result, err := svc.Read(ctx, ReadInput{URL: "https://elsewhere.example.com/x.png"})
		require.NoError(t, err)
		assert.Equal(t, StateUnsupportedURL, result.State)
		assert.Equal(t, "https://elsewhere.example.com/x.png", result.URL)
	})

	t.Run("owner scoped", func(t *testing.T) {
		_, err := svc.Read(ctx, ReadInput{Key: "u1/chats/c1/a.txt", OwnerID: "u2"})
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
	})

	t.Run("limit too large", func(t *testing.T) {
		_, err := svc.Read(ctx, ReadInput{Key: "u1/chats/c1/a.txt", MaxBytes: MaxReadBytes + 1})
		assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	})
}

func TestDisabledStorage(t *testing.T) {
	store := newMemoryStore()
	store.enabled = false
	svc := fixedService(store)

	_, err := svc.Read(context.Background(), ReadInput{Key: "x"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	_, err = svc.Write(context.Background(), WriteInput{UserID: "u", ChatID: "c", Text: "x"})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	assert.False(t, NewService(nil).Enabled())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Report_2024-v1.PDF", SanitizeFilename("Report 2024-v1.PDF"))
	assert.Equal(t, "___.txt", SanitizeFilename("日本語.txt"))
}
