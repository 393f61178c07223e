package entity

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"uniqueIndex"`
	FullName  string
	AvatarURL string
	IsAi      bool // AI persona account, not a real person
	IsBlocked bool

	// Presence snapshot. The realtime coordinator owns the live view;
	// these columns are the durable record.
	Status   string
	IsOnline bool
	LastSeen *time.Time

	// Digital twin auto-reply settings.
	TwinEnabled      bool
	TwinDelaySeconds int
	TwinInstruction  string

	CreatedAt time.Time
	UpdatedAt *time.Time
}
