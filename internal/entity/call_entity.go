package entity

import (
	"time"

	"github.com/google/uuid"
)

type Call struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatId      uuid.UUID `gorm:"type:uuid;index"`
	InitiatorId uuid.UUID `gorm:"type:uuid;index"`
	TargetId    uuid.UUID `gorm:"type:uuid;index"`
	Type        string    // "voice" or "video"
	Status      string    // "ringing", "active", "ended"
	EndReason   string    // "completed", "declined", "timeout", "disconnected", "unavailable"
	StartedAt   time.Time
	AcceptedAt  *time.Time
	EndedAt     *time.Time
	Duration    int // seconds, zero if never accepted
}
