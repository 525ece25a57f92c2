package chat

import (
	"bastion-server/internal/domain/chat"
	"bastion-server/internal/domain/model"
)

// ChatRequest is the body the chat client posts for every turn.
type ChatRequest struct {
	// ChatID falls back to ID, which is what the UI client sends by default.
	ChatID     string          `json:"chatId" example:"c_01HZY3T7E2"`
	ID         string          `json:"id,omitempty"`
	Message    *chat.Message   `json:"message,omitempty" validate:"required_if=Trigger submit-message"`
	MessageID  string          `json:"messageId,omitempty" validate:"required_if=Trigger regenerate-message"`
	Trigger    chat.Trigger    `json:"trigger" validate:"omitempty,oneof=submit-message regenerate-message" example:"submit-message"`
	Model      *model.Selector `json:"model,omitempty" swaggertype:"string" example:"openai:gpt-4o-mini"`
	SearchMode chat.SearchMode `json:"searchMode,omitempty" example:"quick"`
	IsNewChat  bool            `json:"isNewChat"`
}

// ResolvedChatID returns the chat id the request targets.
func (r ChatRequest) ResolvedChatID() string {
	if r.ChatID != "" {
		return r.ChatID
	}
	return r.ID
}
