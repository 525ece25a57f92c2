package dbschema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"bastion-server/internal/domain/chat"
)

// Chat represents the database schema for chats
type Chat struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"`
	UserID     string    `gorm:"type:varchar(128);index:idx_chats_user_updated;not null"`
	Title      string    `gorm:"type:varchar(256);not null;default:'Untitled'"`
	Visibility string    `gorm:"type:varchar(16);not null;default:'private'"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"index:idx_chats_user_updated;not null"`
}

// Message represents the database schema for chat messages. Seq is assigned by the database
// and orders the messages of a chat.
type Message struct {
	ID        string            `gorm:"type:varchar(64);primaryKey"`
	ChatID    string            `gorm:"type:varchar(64);index:idx_messages_chat_seq;not null"`
	Seq       int64             `gorm:"->;index:idx_messages_chat_seq"`
	Role      string            `gorm:"type:varchar(16);not null"`
	Parts     JSONParts         `gorm:"type:jsonb;not null"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null"`
}

// JSONParts is a custom type for []chat.Part stored as JSON
type JSONParts []chat.Part

func (j JSONParts) Value() (driver.Value, error) {
	if j == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j)
}

func (j *JSONParts) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("expected []byte, got %T", value)
	}
}

// NewSchemaChat creates a database schema from domain chat
func NewSchemaChat(c *chat.Chat) *Chat {
	return &Chat{
		ID:         c.ID,
		UserID:     c.UserID,
		Title:      c.Title,
		Visibility: string(c.Visibility),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// EtoD converts database schema to domain chat
func (c *Chat) EtoD() *chat.Chat {
	return &chat.Chat{
		ID:         c.ID,
		UserID:     c.UserID,
		Title:      c.Title,
		Visibility: chat.Visibility(c.Visibility),
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// NewSchemaMessage creates a database schema from domain message
func NewSchemaMessage(chatID string, m *chat.Message) *Message {
	var metadata datatypes.JSONMap
	if len(m.Metadata) > 0 {
		metadata = datatypes.JSONMap(m.Metadata)
	}
	return &Message{
		ID:        m.ID,
		ChatID:    chatID,
		Role:      string(m.Role),
		Parts:     JSONParts(m.Parts),
		Metadata:  metadata,
		CreatedAt: m.CreatedAt,
	}
}

// EtoD converts database schema to domain message
func (m *Message) EtoD() chat.Message {
	parts := []chat.Part(m.Parts)
	if parts == nil {
		parts = []chat.Part{}
	}
	var metadata map[string]any
	if len(m.Metadata) > 0 {
		metadata = map[string]any(m.Metadata)
	}
	return chat.Message{
		ID:        m.ID,
		Role:      chat.Role(m.Role),
		Parts:     parts,
		Metadata:  metadata,
		CreatedAt: m.CreatedAt,
	}
}
