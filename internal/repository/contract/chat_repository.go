package contract

import (
	"context"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

type ChatRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Chat, error)
	FindChatIDsByUserID(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	FindChatsByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Chat, error)
	IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error)
	FindParticipantIDs(ctx context.Context, chatID uuid.UUID) ([]uuid.UUID, error)
}
