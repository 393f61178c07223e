package contract

import (
	"context"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	// FindRecentByChatID returns the newest messages first.
	FindRecentByChatID(ctx context.Context, chatID uuid.UUID, limit int) ([]*entity.Message, error)
}
