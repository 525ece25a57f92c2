package chathandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"bastion-server/internal/domain/chat"
	"bastion-server/internal/domain/model"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/interfaces/httpserver/middlewares"
	chatrequests "bastion-server/internal/interfaces/httpserver/requests/chat"
	"bastion-server/internal/utils/platformerrors"
)

const (
	selectedModelCookie = "selectedModel"
	searchModeCookie    = "searchMode"
)

// ChatService is the orchestration the handler drives.
type ChatService interface {
	CreateChatStreamResponse(ctx context.Context, req chat.StreamRequest, writer chat.StreamWriter) error
	GetChat(ctx context.Context, chatID, userID string) (*chat.Chat, error)
}

type ChatHandler struct {
	service  ChatService
	validate *validator.Validate
	log      zerolog.Logger
}

func NewChatHandler(service *chat.Service) *ChatHandler {
	return newChatHandler(service)
}

func newChatHandler(service ChatService) *ChatHandler {
	return &ChatHandler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.Component("chat-handler"),
	}
}

// PostChat
// @Summary Stream an assistant response
// @Description Streams the assistant message for one chat turn as a UI message stream over Server-Sent Events.
// @Description Every event is `data: {part}`; the stream ends with `data: [DONE]`.
// @Description Validation and ownership failures are answered with JSON before streaming starts.
// @Tags Chat API
// @Security BearerAuth
// @Accept json
// @Produce text/event-stream
// @Param request body chatrequests.ChatRequest true "Chat turn"
// @Success 200 {string} string "UI message stream"
// @Failure 400 {object} responses.ErrorResponse "Invalid request"
// @Failure 403 {object} responses.ErrorResponse "Chat belongs to another user"
// @Router /v1/chat [post]
func (h *ChatHandler) PostChat(c *gin.Context) {
	var req chatrequests.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		platformerrors.WriteValidationError(c, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		platformerrors.WriteValidationError(c, err.Error())
		return
	}

	principal := middlewares.PrincipalFromContext(c)
	streamReq := chat.StreamRequest{
		ChatID:     req.ResolvedChatID(),
		UserID:     principal.ID,
		MessageID:  req.MessageID,
		Trigger:    req.Trigger,
		Message:    req.Message,
		SearchMode: req.SearchMode,
		IsNewChat:  req.IsNewChat,
	}
	if req.Model != nil {
		streamReq.Model = *req.Model
	} else {
		streamReq.Model = selectorFromCookie(c)
	}
	if streamReq.SearchMode == "" {
		if mode, err := c.Cookie(searchModeCookie); err == nil {
			streamReq.SearchMode = chat.SearchMode(mode)
		}
	}

	writer := newSSEStreamWriter(c)
	err := h.service.CreateChatStreamResponse(c.Request.Context(), streamReq, writer)
	if err != nil && !writer.Committed() {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", streamReq.ChatID).Msg("chat stream ended with an error")
	}
	writer.Close()
}

// GetChat
// @Summary Get a chat
// @Description Returns a chat with its messages. Private chats are only visible to their owner.
// @Tags Chat API
// @Security BearerAuth
// @Produce json
// @Param chat_id path string true "Chat ID"
// @Success 200 {object} chat.Chat
// @Failure 403 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /v1/chats/{chat_id} [get]
func (h *ChatHandler) GetChat(c *gin.Context) {
	principal := middlewares.PrincipalFromContext(c)
	result, err := h.service.GetChat(c.Request.Context(), c.Param("chat_id"), principal.ID)
	if err != nil {
		platformerrors.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, result)
}

// selectorFromCookie reads the model chosen in the UI. The cookie holds URL-encoded JSON or a
// "provider:model" string.
func selectorFromCookie(c *gin.Context) model.Selector {
	raw, err := c.Cookie(selectedModelCookie)
	if err != nil || raw == "" {
		return model.Selector{}
	}
	if decoded, err := url.QueryUnescape(raw); err == nil {
		raw = decoded
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		raw = `"` + strings.ReplaceAll(raw, `"`, "") + `"`
	}
	var sel model.Selector
	if err := json.Unmarshal([]byte(raw), &sel); err != nil {
		return model.Selector{}
	}
	return sel
}
