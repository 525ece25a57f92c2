package chatrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"bastion-server/internal/domain/chat"
	"bastion-server/internal/infrastructure/database/dbschema"
	"bastion-server/internal/infrastructure/database/transaction"
	"bastion-server/internal/utils/platformerrors"
)

type ChatGormRepository struct {
	db  *transaction.Database
	now func() time.Time
}

var _ chat.ChatRepository = (*ChatGormRepository)(nil)

func NewChatGormRepository(db *transaction.Database) chat.ChatRepository {
	return &ChatGormRepository{db: db, now: time.Now}
}

// FindByID implements chat.ChatRepository.
func (repo *ChatGormRepository) FindByID(ctx context.Context, chatID string) (*chat.Chat, error) {
	var row dbschema.Chat
	err := repo.db.GetTx(ctx).Where("id = ?", chatID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "chat not found", err, "8ea61b55-678c-4993-b282-c848f7f01a1f")
		}
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find chat by ID")
	}
	return row.EtoD(), nil
}

// ListMessages implements chat.ChatRepository.
func (repo *ChatGormRepository) ListMessages(ctx context.Context, chatID string) ([]chat.Message, error) {
	var rows []dbschema.Message
	err := repo.db.GetTx(ctx).Where("chat_id = ?", chatID).Order("seq ASC").Find(&rows).Error
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to list chat messages")
	}
	messages := make([]chat.Message, 0, len(rows))
	for i := range rows {
		messages = append(messages, rows[i].EtoD())
	}
	return messages, nil
}

// SaveTurn implements chat.ChatRepository.
func (repo *ChatGormRepository) SaveTurn(ctx context.Context, turn chat.Turn) error {
	return repo.db.Transaction(ctx, func(ctx context.Context) error {
		tx := repo.db.GetTx(ctx)
		now := repo.now().UTC()

		if turn.CreateChat {
			row := dbschema.NewSchemaChat(&turn.Chat)
			if row.Title == "" {
				row.Title = "Untitled"
			}
			if row.Visibility == "" {
				row.Visibility = string(chat.VisibilityPrivate)
			}
			row.CreatedAt, row.UpdatedAt = now, now
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to create chat")
			}
		}

		// a concurrent request may have created the chat under another user
		var owner dbschema.Chat
		if err := tx.Clauses(dbresolver.Write, clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", turn.Chat.ID).First(&owner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "chat not found", err, "27f1b7ed-df41-47d7-bd60-7a77f43a07b5")
			}
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to lock chat")
		}
		if owner.UserID != turn.Chat.UserID {
			return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeForbidden, "chat belongs to another user", nil, "be6434f0-04a1-4e91-861e-97844bf32e6e")
		}

		if turn.RegenerateFromID != "" {
			if err := repo.deleteFrom(ctx, tx, turn.Chat.ID, turn.RegenerateFromID); err != nil {
				return err
			}
		}

		if turn.UserMessage != nil {
			row := dbschema.NewSchemaMessage(turn.Chat.ID, turn.UserMessage)
			if row.CreatedAt.IsZero() {
				row.CreatedAt = now
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save user message")
			}
		}

		assistant := dbschema.NewSchemaMessage(turn.Chat.ID, &turn.Assistant)
		if assistant.CreatedAt.IsZero() {
			assistant.CreatedAt = now
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"parts", "metadata"}),
		}).Create(assistant).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to save assistant message")
		}

		if err := tx.Model(&dbschema.Chat{}).Where("id = ?", turn.Chat.ID).Update("updated_at", now).Error; err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to touch chat")
		}
		return nil
	})
}

// deleteFrom removes messageID and every later message of the chat. An unknown id is a no-op.
func (repo *ChatGormRepository) deleteFrom(ctx context.Context, tx *gorm.DB, chatID, messageID string) error {
	var anchor dbschema.Message
	err := tx.Select("seq").Where("chat_id = ? AND id = ?", chatID, messageID).First(&anchor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to find regenerated message")
	}
	if err := tx.Where("chat_id = ? AND seq >= ?", chatID, anchor.Seq).Delete(&dbschema.Message{}).Error; err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerRepository, err, "failed to delete regenerated messages")
	}
	return nil
}
