package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Message struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatId    uuid.UUID `gorm:"type:uuid;index"`
	SenderId  uuid.UUID `gorm:"type:uuid;index"`
	Content   string
	Type      string // "text", "file", ...
	FileURL   string
	ReplyToId *uuid.UUID `gorm:"type:uuid"`
	Metadata  datatypes.JSON
	CreatedAt time.Time
	IsDeleted bool
}
