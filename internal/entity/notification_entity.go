package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Notification struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId     uuid.UUID `gorm:"type:uuid;index"`
	ActorId    *uuid.UUID `gorm:"type:uuid"`
	TypeCode   string
	Title      string
	Message    string
	Metadata   datatypes.JSON
	EntityType string
	EntityId   *uuid.UUID `gorm:"type:uuid"`
	IsRead     bool
	CreatedAt  time.Time
}
