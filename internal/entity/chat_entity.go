package entity

import (
	"time"

	"github.com/google/uuid"
)

type Chat struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string
	IsGroup   bool
	CreatedAt time.Time
}

type ChatParticipant struct {
	ChatId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	JoinedAt time.Time
}
