package contract

import (
	"context"

	"chatwave-be/internal/entity"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *entity.Notification) error
}
