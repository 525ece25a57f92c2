package chathandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion-server/internal/domain/chat"
	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/auth"
	"bastion-server/internal/interfaces/httpserver/middlewares"
	"bastion-server/internal/utils/platformerrors"
)

type MockChatService struct {
	CreateChatStreamResponseFunc func(ctx context.Context, req chat.StreamRequest, writer chat.StreamWriter) error
	GetChatFunc                  func(ctx context.Context, chatID, userID string) (*chat.Chat, error)
}

func (m *MockChatService) CreateChatStreamResponse(ctx context.Context, req chat.StreamRequest, writer chat.StreamWriter) error {
	return m.CreateChatStreamResponseFunc(ctx, req, writer)
}

func (m *MockChatService) GetChat(ctx context.Context, chatID, userID string) (*chat.Chat, error) {
	return m.GetChatFunc(ctx, chatID, userID)
}

func newTestRouter(service ChatService, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := newChatHandler(service)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("principal", auth.Principal{ID: userID})
		c.Next()
	})
	router.POST("/v1/chat", handler.PostChat)
	router.GET("/v1/chats/:chat_id", handler.GetChat)
	return router
}

func postChat(router *gin.Engine, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPostChatStreamsParts(t *testing.T) {
	var captured chat.StreamRequest
	service := &MockChatService{CreateChatStreamResponseFunc: func(_ context.Context, req chat.StreamRequest, writer chat.StreamWriter) error {
		captured = req
		require.NoError(t, writer.Write(chat.StreamPart{Type: chat.StreamPartStart, MessageID: "msg_1"}))
		require.NoError(t, writer.Write(chat.StreamPart{Type: chat.StreamPartTextDelta, ID: "txt_1", Delta: "Hi"}))
		return writer.Write(chat.StreamPart{Type: chat.StreamPartFinish})
	}}

	w := postChat(newTestRouter(service, "u1"), `{"id":"c1","trigger":"submit-message","model":"openai:gpt-4o-mini","message":{"id":"m1","role":"user","parts":[{"type":"text","text":"Hi"}]}}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "v1", w.Header().Get(middlewares.UIMessageStreamHeader))

	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, events, 4)
	assert.Equal(t, `data: {"type":"start","messageId":"msg_1"}`, events[0])
	assert.Equal(t, `data: {"type":"text-delta","id":"txt_1","delta":"Hi"}`, events[1])
	assert.Equal(t, "data: [DONE]", events[3])

	assert.Equal(t, "c1", captured.ChatID)
	assert.Equal(t, "u1", captured.UserID)
	assert.Equal(t, model.Selector{ID: "gpt-4o-mini", ProviderID: "openai"}, captured.Model)
	assert.Equal(t, chat.TriggerSubmitMessage, captured.Trigger)
	require.NotNil(t, captured.Message)
	assert.Equal(t, "Hi", captured.Message.Text())
}

func TestPostChatErrorsBeforeStreamingAreJSON(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "missing chat id", err: platformerrors.NewError(context.Background(), platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "chatId is required", nil, "t1"), wantStatus: http.StatusBadRequest},
		{name: "foreign chat", err: platformerrors.NewError(context.Background(), platformerrors.LayerDomain, platformerrors.ErrorTypeForbidden, "chat belongs to another user", nil, "t2"), wantStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &MockChatService{CreateChatStreamResponseFunc: func(context.Context, chat.StreamRequest, chat.StreamWriter) error {
				return tt.err
			}}
			w := postChat(newTestRouter(service, "u1"), `{"chatId":"c1","message":{"role":"user","parts":[]}}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, w.Header().Get(middlewares.UIMessageStreamHeader))
			var body platformerrors.HTTPErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestPostChatValidation(t *testing.T) {
	service := &MockChatService{CreateChatStreamResponseFunc: func(context.Context, chat.StreamRequest, chat.StreamWriter) error {
		t.Fatal("service must not be called")
		return nil
	}}
	router := newTestRouter(service, "u1")

	for _, body := range []string{
		`not json`,
		`{"chatId":"c1","trigger":"submit-message"}`,
		`{"chatId":"c1","trigger":"regenerate-message"}`,
		`{"chatId":"c1","trigger":"delete-everything","message":{"role":"user"}}`,
	} {
		w := postChat(router, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestPostChatReadsCookies(t *testing.T) {
	var captured chat.StreamRequest
	service := &MockChatService{CreateChatStreamResponseFunc: func(_ context.Context, req chat.StreamRequest, writer chat.StreamWriter) error {
		captured = req
		return writer.Write(chat.StreamPart{Type: chat.StreamPartFinish})
	}}

	w := postChat(newTestRouter(service, ""), `{"chatId":"c1","message":{"role":"user","parts":[]}}`,
		&http.Cookie{Name: selectedModelCookie, Value: "%7B%22id%22%3A%22claude-sonnet%22%2C%22providerId%22%3A%22anthropic%22%7D"},
		&http.Cookie{Name: searchModeCookie, Value: "adaptive"},
	)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.Selector{ID: "claude-sonnet", ProviderID: "anthropic"}, captured.Model)
	assert.Equal(t, chat.SearchModeAdaptive, captured.SearchMode)
	assert.Empty(t, captured.UserID)
}

func TestGetChat(t *testing.T) {
	service := &MockChatService{GetChatFunc: func(_ context.Context, chatID, userID string) (*chat.Chat, error) {
		if chatID == "missing" {
			return nil, platformerrors.NewError(context.Background(), platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "chat not found", nil, "t3")
		}
		return &chat.Chat{ID: chatID, UserID: userID, Title: "Hello", Visibility: chat.VisibilityPrivate}, nil
	}}
	router := newTestRouter(service, "u1")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chats/c1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got chat.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Hello", got.Title)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/chats/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSelectorFromCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		value string
		want  model.Selector
	}{
		{value: "openai:gpt-4o", want: model.Selector{ID: "gpt-4o", ProviderID: "openai"}},
		{value: url.QueryEscape(`{"id":"gemini-2.5-flash","providerId":"google"}`), want: model.Selector{ID: "gemini-2.5-flash", ProviderID: "google"}},
		{value: "{broken", want: model.Selector{}},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		c.Request.AddCookie(&http.Cookie{Name: selectedModelCookie, Value: tt.value})
		assert.Equal(t, tt.want, selectorFromCookie(c), tt.value)
	}
}
