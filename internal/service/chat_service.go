package service

import (
	"context"
	"errors"

	"chatwave-be/internal/dto"
	"chatwave-be/internal/repository/contract"

	"github.com/google/uuid"
)

var ErrNotParticipant = errors.New("user is not a participant of this chat")

type IChatService interface {
	GetUserChats(ctx context.Context, userID uuid.UUID) ([]*dto.ChatResponse, error)
	GetChatMessages(ctx context.Context, userID, chatID uuid.UUID, limit int) ([]*dto.MessageResponse, error)
}

type chatService struct {
	chats    contract.ChatRepository
	messages contract.MessageRepository
}

func NewChatService(chats contract.ChatRepository, messages contract.MessageRepository) IChatService {
	return &chatService{chats: chats, messages: messages}
}

func (s *chatService) GetUserChats(ctx context.Context, userID uuid.UUID) ([]*dto.ChatResponse, error) {
	chats, err := s.chats.FindChatsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.ChatResponse, 0, len(chats))
	for _, chat := range chats {
		result = append(result, &dto.ChatResponse{
			Id:        chat.Id,
			Name:      chat.Name,
			IsGroup:   chat.IsGroup,
			CreatedAt: chat.CreatedAt,
		})
	}
	return result, nil
}

func (s *chatService) GetChatMessages(ctx context.Context, userID, chatID uuid.UUID, limit int) ([]*dto.MessageResponse, error) {
	member, err := s.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotParticipant
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.messages.FindRecentByChatID(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	result := make([]*dto.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		result = append(result, &dto.MessageResponse{
			Id:        msg.Id,
			ChatId:    msg.ChatId,
			SenderId:  msg.SenderId,
			Content:   msg.Content,
			Type:      msg.Type,
			FileURL:   msg.FileURL,
			ReplyToId: msg.ReplyToId,
			CreatedAt: msg.CreatedAt,
		})
	}
	return result, nil
}
