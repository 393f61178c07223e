package implementation

import (
	"context"
	"time"

	"chatwave-be/internal/entity"
	"chatwave-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type callRepository struct {
	db *gorm.DB
}

func NewCallRepository(db *gorm.DB) contract.CallRepository {
	return &callRepository{db: db}
}

func (r *callRepository) Create(ctx context.Context, call *entity.Call) error {
	return r.db.WithContext(ctx).Create(call).Error
}

func (r *callRepository) End(ctx context.Context, id uuid.UUID, reason string, duration int, acceptedAt *time.Time, endedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.Call{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      "ended",
		"end_reason":  reason,
		"duration":    duration,
		"accepted_at": acceptedAt,
		"ended_at":    endedAt,
	}).Error
}
