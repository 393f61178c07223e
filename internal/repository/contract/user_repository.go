package contract

import (
	"context"
	"time"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

type UserRepository interface {
	// FindByID returns (nil, nil) when the user does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, isOnline bool, lastSeen time.Time) error
}
