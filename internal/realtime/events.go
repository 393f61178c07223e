package realtime

import (
	"encoding/json"
	"time"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

// Inbound event names (client -> coordinator).
const (
	EventAuthenticate    = "authenticate"
	EventJoinChat        = "join_chat"
	EventLeaveChat       = "leave_chat"
	EventSendMessage     = "send_message"
	EventTyping          = "typing"
	EventCallUser        = "call_user"
	EventCallResponse    = "call_response"
	EventCallEnd         = "call_end"
	EventWebRTCOffer     = "webrtc_offer"
	EventWebRTCAnswer    = "webrtc_answer"
	EventWebRTCCandidate = "webrtc_ice_candidate"
)

// Outbound event names (coordinator -> clients).
const (
	EventAuthenticated     = "authenticated"
	EventAuthError         = "auth_error"
	EventNewMessage        = "new_message"
	EventUserTyping        = "user_typing"
	EventUserStatusChanged = "user_status_changed"
	EventChatMembership    = "chat_membership_changed"
	EventIncomingCall      = "incoming_call"
	EventCallEnded         = "call_ended"
	EventCallError         = "call_error"
	EventNotification      = "notification"
	EventMessageError      = "message_error"
)

// Envelope is the wire frame every event travels in. The payload stays raw
// until the event name selects the concrete type, which is then validated
// before any component sees it.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type AuthenticatePayload struct {
	Token string `json:"token" validate:"required"`
}

type JoinChatPayload struct {
	ChatID uuid.UUID `json:"chatId" validate:"required"`
}

type SendMessagePayload struct {
	ChatID    uuid.UUID  `json:"chatId" validate:"required"`
	Content   string     `json:"content"`
	FileURL   string     `json:"fileUrl"`
	Type      string     `json:"type"`
	ReplyToID *uuid.UUID `json:"replyToId"`
}

type TypingPayload struct {
	ChatID   uuid.UUID `json:"chatId" validate:"required"`
	IsTyping bool      `json:"isTyping"`
}

type CallUserPayload struct {
	ChatID       uuid.UUID `json:"chatId" validate:"required"`
	TargetUserID uuid.UUID `json:"targetUserId" validate:"required"`
	IsVideo      bool      `json:"isVideo"`
}

type CallResponsePayload struct {
	CallID   uuid.UUID `json:"callId" validate:"required"`
	Accepted bool      `json:"accepted"`
}

type CallEndPayload struct {
	CallID uuid.UUID `json:"callId" validate:"required"`
}

// WebRTCSignalPayload carries call-setup data. Signal is opaque to the
// coordinator; it is forwarded verbatim.
type WebRTCSignalPayload struct {
	TargetUserID uuid.UUID       `json:"targetUserId" validate:"required"`
	Signal       json.RawMessage `json:"signal"`
}

// MessageCreated is the in-process pubsub payload published after every
// delivered text message, consumed by the auto-responder.
type MessageCreated struct {
	MessageID uuid.UUID `json:"messageId"`
	ChatID    uuid.UUID `json:"chatId"`
	SenderID  uuid.UUID `json:"senderId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
}

func marshalEvent(event string, data interface{}) []byte {
	payload, err := json.Marshal(Envelope{Event: event, Data: mustMarshal(data)})
	if err != nil {
		return nil
	}
	return payload
}

func mustMarshal(data interface{}) json.RawMessage {
	raw, err := json.Marshal(data)
	if err != nil {
		return json.RawMessage("{}")
	}
	return raw
}

func newMessageEvent(msg *entity.Message, sender *entity.User, mentions, hashtags []string) []byte {
	var senderName, senderAvatar string
	if sender != nil {
		senderName = sender.Username
		senderAvatar = sender.AvatarURL
	}
	return marshalEvent(EventNewMessage, map[string]interface{}{
		"id":           msg.Id,
		"chatId":       msg.ChatId,
		"senderId":     msg.SenderId,
		"senderName":   senderName,
		"senderAvatar": senderAvatar,
		"content":      msg.Content,
		"type":         msg.Type,
		"fileUrl":      msg.FileURL,
		"replyToId":    msg.ReplyToId,
		"mentions":     mentions,
		"hashtags":     hashtags,
		"createdAt":    msg.CreatedAt.Format(time.RFC3339),
	})
}

func userTypingEvent(chatID, userID uuid.UUID, isTyping bool) []byte {
	return marshalEvent(EventUserTyping, map[string]interface{}{
		"chatId":   chatID,
		"userId":   userID,
		"isTyping": isTyping,
	})
}

func statusChangedEvent(userID uuid.UUID, isOnline bool, status string) []byte {
	return marshalEvent(EventUserStatusChanged, map[string]interface{}{
		"userId":   userID,
		"isOnline": isOnline,
		"status":   status,
	})
}

func callEndedEvent(callID uuid.UUID, reason string, duration int) []byte {
	return marshalEvent(EventCallEnded, map[string]interface{}{
		"callId":   callID,
		"reason":   reason,
		"duration": duration,
	})
}

func callErrorEvent(message string) []byte {
	return marshalEvent(EventCallError, map[string]interface{}{
		"message": message,
	})
}

func messageErrorEvent(message string) []byte {
	return marshalEvent(EventMessageError, map[string]interface{}{
		"message": message,
	})
}
