package dto

import (
	"time"

	"github.com/google/uuid"
)

type ChatResponse struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	CreatedAt time.Time `json:"createdAt"`
}

type MessageResponse struct {
	Id        uuid.UUID  `json:"id"`
	ChatId    uuid.UUID  `json:"chatId"`
	SenderId  uuid.UUID  `json:"senderId"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	FileURL   string     `json:"fileUrl,omitempty"`
	ReplyToId *uuid.UUID `json:"replyToId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
