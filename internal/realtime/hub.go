package realtime

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"chatwave-be/internal/constant"
	"chatwave-be/internal/entity"
	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/repository/contract"
	"chatwave-be/pkg/events"
	natsbus "chatwave-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
	hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_]+)`)
)

// Hub owns every live connection and routes inbound events to the
// coordinator components. Dispatch runs on the connection's read loop, so
// events from one connection are always handled in arrival order.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	Registry *SessionRegistry
	Rooms    *RoomManager
	Presence *PresenceBroadcaster
	Typing   *TypingStore
	Calls    *CallMachine
	Relay    *SignalingRelay

	users         contract.UserRepository
	chats         contract.ChatRepository
	messages      contract.MessageRepository
	notifications contract.NotificationRepository

	publisher message.Publisher
	telemetry *natsbus.Publisher // optional, nil when NATS is not configured
	validate  *validator.Validate
	jwtSecret []byte
	logger    logger.ILogger
}

type HubConfig struct {
	Users         contract.UserRepository
	Chats         contract.ChatRepository
	Messages      contract.MessageRepository
	Notifications contract.NotificationRepository
	Calls         contract.CallRepository

	Publisher message.Publisher
	Telemetry *natsbus.Publisher
	Redis     *redis.Client
	JWTSecret string
	Logger    logger.ILogger

	// Zero values fall back to the production constants. Tests shrink these.
	TypingWindow time.Duration
	RingTimeout  time.Duration
}

func NewHub(cfg HubConfig) *Hub {
	typingWindow := cfg.TypingWindow
	if typingWindow <= 0 {
		typingWindow = constant.TypingWindow
	}
	ringTimeout := cfg.RingTimeout
	if ringTimeout <= 0 {
		ringTimeout = constant.CallRingTimeout
	}

	h := &Hub{
		clients:       make(map[uuid.UUID]*Client),
		users:         cfg.Users,
		chats:         cfg.Chats,
		messages:      cfg.Messages,
		notifications: cfg.Notifications,
		publisher:     cfg.Publisher,
		telemetry:     cfg.Telemetry,
		validate:      validator.New(),
		jwtSecret:     []byte(cfg.JWTSecret),
		logger:        cfg.Logger,
	}
	h.Registry = NewSessionRegistry(cfg.Users, cfg.Chats, cfg.Logger)
	h.Rooms = NewRoomManager(cfg.Chats, cfg.Logger)
	h.Presence = NewPresenceBroadcaster(h.Rooms, cfg.Redis, cfg.Logger)
	h.Typing = NewTypingStore(h.Rooms, typingWindow, cfg.Logger)
	h.Calls = NewCallMachine(h, cfg.Users, cfg.Calls, ringTimeout, cfg.Logger)
	h.Relay = NewSignalingRelay(h, cfg.Logger)
	return h
}

// ServeWs runs the connection's lifetime. It blocks until the read loop
// exits, which is what the fiber websocket handler expects.
func (h *Hub) ServeWs(conn *websocket.Conn) {
	client := newClient(h, conn)
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Debug("Hub", "Connection opened", map[string]interface{}{"connection_id": client.ID})

	go client.writePump()
	client.readPump()
}

// ClientByUser resolves a user to their live client through the session
// registry. Satisfies the directory the call machine and relay depend on.
func (h *Hub) ClientByUser(userID uuid.UUID) (*Client, bool) {
	connID, ok := h.Registry.LookupConnection(userID)
	if !ok {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	return client, ok
}

// Dispatch routes one inbound frame. Anything except authenticate requires
// a bound session first; unauthenticated frames get an auth_error and are
// otherwise ignored.
func (h *Hub) Dispatch(client *Client, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		client.enqueue(marshalEvent(EventMessageError, map[string]interface{}{"message": "malformed event"}))
		return
	}

	ctx := context.Background()

	if envelope.Event == EventAuthenticate {
		h.handleAuthenticate(ctx, client, envelope.Data)
		return
	}

	userID, bound := h.Registry.Lookup(client.ID)
	if !bound {
		client.enqueue(marshalEvent(EventAuthError, map[string]interface{}{"message": "not authenticated"}))
		return
	}

	switch envelope.Event {
	case EventJoinChat:
		h.handleJoinChat(ctx, client, userID, envelope.Data)
	case EventLeaveChat:
		h.handleLeaveChat(client, userID, envelope.Data)
	case EventSendMessage:
		h.handleSendMessage(ctx, client, userID, envelope.Data)
	case EventTyping:
		h.handleTyping(client, userID, envelope.Data)
	case EventCallUser:
		h.handleCallUser(ctx, client, userID, envelope.Data)
	case EventCallResponse:
		h.handleCallResponse(ctx, client, userID, envelope.Data)
	case EventCallEnd:
		h.handleCallEnd(ctx, client, userID, envelope.Data)
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCCandidate:
		h.handleWebRTCSignal(client, userID, envelope.Event, envelope.Data)
	default:
		h.logger.Debug("Hub", "Ignoring unknown event", map[string]interface{}{"event": envelope.Event, "connection_id": client.ID})
	}
}

// HandleDisconnect tears down everything the connection owned. LeaveAll
// reports the rooms it scrubbed so the offline broadcast still reaches the
// rooms the user just left.
func (h *Hub) HandleDisconnect(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.ID)
	h.mu.Unlock()

	ctx := context.Background()

	userID, bound := h.Registry.Lookup(client.ID)
	if bound {
		h.Calls.OnParticipantDisconnect(ctx, userID)
		h.Typing.ClearUser(userID)
	}
	// Room state is keyed by connection, so it is scrubbed even when the
	// session binding was already superseded by a newer connection.
	chatIDs := h.Rooms.LeaveAll(client)
	if bound {
		if _, changed := h.Registry.Unbind(ctx, client.ID); changed {
			h.Presence.PublishToRooms(ctx, chatIDs, userID, false, "offline")
		}
	}

	client.shutdown()
	h.logger.Debug("Hub", "Connection closed", map[string]interface{}{"connection_id": client.ID})
}

func (h *Hub) handleAuthenticate(ctx context.Context, client *Client, data json.RawMessage) {
	var payload AuthenticatePayload
	if err := h.decode(data, &payload); err != nil {
		h.rejectAuth(client, "missing token")
		return
	}

	userID, err := h.parseToken(payload.Token)
	if err != nil {
		h.rejectAuth(client, "invalid token")
		return
	}

	chatIDs, user, err := h.Registry.Bind(ctx, client.ID, userID)
	if err != nil {
		h.logger.Warn("Hub", "Authentication rejected", map[string]interface{}{"connection_id": client.ID, "error": err.Error()})
		h.rejectAuth(client, err.Error())
		return
	}

	for _, chatID := range chatIDs {
		h.Rooms.JoinOwned(client, userID, chatID)
	}

	client.enqueue(marshalEvent(EventAuthenticated, map[string]interface{}{
		"userId":   userID,
		"username": user.Username,
		"chats":    chatIDs,
	}))
	h.Presence.Publish(ctx, userID, true, "online")

	h.logger.Info("Hub", "Session authenticated", map[string]interface{}{
		"connection_id": client.ID, "user_id": userID, "chats": len(chatIDs),
	})
}

// rejectAuth reports the failure and drops the connection; a session that
// cannot authenticate has no reason to stay open.
func (h *Hub) rejectAuth(client *Client, reason string) {
	client.enqueue(marshalEvent(EventAuthError, map[string]interface{}{"message": reason}))
	if client.conn != nil {
		time.AfterFunc(writeWait, func() { client.conn.Close() })
	}
}

func (h *Hub) parseToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, &AuthenticationError{Reason: "unexpected signing method"}
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, &AuthenticationError{Reason: "invalid token"}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, &AuthenticationError{Reason: "invalid claims"}
	}
	sub, _ := claims["user_id"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, &AuthenticationError{Reason: "invalid user id claim"}
	}
	return userID, nil
}

func (h *Hub) handleJoinChat(ctx context.Context, client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload JoinChatPayload
	if err := h.decode(data, &payload); err != nil {
		client.enqueue(messageErrorEvent("invalid join payload"))
		return
	}
	if err := h.Rooms.Join(ctx, client, userID, payload.ChatID); err != nil {
		client.enqueue(messageErrorEvent(err.Error()))
	}
}

func (h *Hub) handleLeaveChat(client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload JoinChatPayload
	if err := h.decode(data, &payload); err != nil {
		return
	}
	h.Rooms.Leave(client, userID, payload.ChatID)
}

func (h *Hub) handleSendMessage(ctx context.Context, client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload SendMessagePayload
	if err := h.decode(data, &payload); err != nil {
		client.enqueue(messageErrorEvent("invalid message payload"))
		return
	}
	if !h.inRoom(client.ID, payload.ChatID) {
		client.enqueue(messageErrorEvent("not subscribed to this chat"))
		return
	}

	msgType := payload.Type
	if msgType == "" {
		msgType = constant.DefaultMessageType
	}

	sender, err := h.users.FindByID(ctx, userID)
	if err != nil || sender == nil {
		client.enqueue(messageErrorEvent("sender lookup failed"))
		return
	}

	mentions, hashtags := extractTags(payload.Content, sender.Username)

	msg := &entity.Message{
		Id:        uuid.New(),
		ChatId:    payload.ChatID,
		SenderId:  userID,
		Content:   payload.Content,
		Type:      msgType,
		FileURL:   payload.FileURL,
		ReplyToId: payload.ReplyToID,
		CreatedAt: time.Now(),
	}
	if err := h.messages.Create(ctx, msg); err != nil {
		// Nothing was broadcast, so the room never sees a message that
		// does not exist in the store.
		h.logger.Error("Hub", "Failed to persist message", map[string]interface{}{"chat_id": payload.ChatID, "error": err.Error()})
		client.enqueue(messageErrorEvent("message could not be saved"))
		return
	}

	h.Rooms.Broadcast(payload.ChatID, newMessageEvent(msg, sender, mentions, hashtags), uuid.Nil)
	h.Typing.SetTyping(payload.ChatID, userID, client.ID, false)

	h.notifyMentions(ctx, msg, sender, mentions)
	h.publishCreated(msg)
	h.logEvent("MESSAGE_SENT", map[string]interface{}{
		"message_id": msg.Id.String(),
		"chat_id":    msg.ChatId.String(),
		"sender_id":  msg.SenderId.String(),
		"type":       msg.Type,
	})
}

func (h *Hub) handleTyping(client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload TypingPayload
	if err := h.decode(data, &payload); err != nil {
		return
	}
	if !h.inRoom(client.ID, payload.ChatID) {
		return
	}
	h.Typing.SetTyping(payload.ChatID, userID, client.ID, payload.IsTyping)
}

func (h *Hub) handleCallUser(ctx context.Context, client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload CallUserPayload
	if err := h.decode(data, &payload); err != nil {
		client.enqueue(callErrorEvent("invalid call payload"))
		return
	}
	if _, err := h.Calls.Initiate(ctx, userID, payload.TargetUserID, payload.ChatID, payload.IsVideo); err != nil {
		client.enqueue(callErrorEvent(err.Error()))
	}
}

func (h *Hub) handleCallResponse(ctx context.Context, client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload CallResponsePayload
	if err := h.decode(data, &payload); err != nil {
		client.enqueue(callErrorEvent("invalid call response payload"))
		return
	}
	if err := h.Calls.Respond(ctx, payload.CallID, userID, payload.Accepted); err != nil {
		client.enqueue(callErrorEvent(err.Error()))
	}
}

func (h *Hub) handleCallEnd(ctx context.Context, client *Client, userID uuid.UUID, data json.RawMessage) {
	var payload CallEndPayload
	if err := h.decode(data, &payload); err != nil {
		client.enqueue(callErrorEvent("invalid call end payload"))
		return
	}
	if err := h.Calls.EndByParticipant(ctx, payload.CallID, userID, CallReasonCompleted); err != nil {
		client.enqueue(callErrorEvent(err.Error()))
	}
}

func (h *Hub) handleWebRTCSignal(client *Client, userID uuid.UUID, kind string, data json.RawMessage) {
	var payload WebRTCSignalPayload
	if err := h.decode(data, &payload); err != nil {
		return
	}
	h.Relay.Relay(kind, userID, payload.TargetUserID, payload.Signal)
}

// notifyMentions persists and delivers a notification per mentioned user.
// Best effort throughout; a failed notification never fails the message.
func (h *Hub) notifyMentions(ctx context.Context, msg *entity.Message, sender *entity.User, mentions []string) {
	for _, username := range mentions {
		mentioned, err := h.users.FindByUsername(ctx, username)
		if err != nil || mentioned == nil || mentioned.Id == sender.Id {
			continue
		}
		actorID := sender.Id
		entityID := msg.Id
		notification := &entity.Notification{
			Id:         uuid.New(),
			UserId:     mentioned.Id,
			ActorId:    &actorID,
			TypeCode:   "mention",
			Title:      sender.Username + " mentioned you",
			Message:    msg.Content,
			EntityType: "message",
			EntityId:   &entityID,
			CreatedAt:  time.Now(),
		}
		if err := h.notifications.Create(ctx, notification); err != nil {
			h.logger.Warn("Hub", "Failed to persist mention notification", map[string]interface{}{"user_id": mentioned.Id, "error": err.Error()})
			continue
		}
		if target, online := h.ClientByUser(mentioned.Id); online {
			target.enqueue(marshalEvent(EventNotification, map[string]interface{}{
				"id":       notification.Id,
				"type":     notification.TypeCode,
				"title":    notification.Title,
				"message":  notification.Message,
				"actorId":  sender.Id,
				"entityId": msg.Id,
			}))
		}
	}
}

// publishCreated hands the delivered message to the in-process pipeline the
// auto-responder consumes.
func (h *Hub) publishCreated(msg *entity.Message) {
	if h.publisher == nil {
		return
	}
	payload, err := json.Marshal(MessageCreated{
		MessageID: msg.Id,
		ChatID:    msg.ChatId,
		SenderID:  msg.SenderId,
		Content:   msg.Content,
		Type:      msg.Type,
	})
	if err != nil {
		return
	}
	if err := h.publisher.Publish(constant.MessageCreatedTopic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		h.logger.Warn("Hub", "Failed to publish message event", map[string]interface{}{"message_id": msg.Id, "error": err.Error()})
	}
}

// logEvent ships a telemetry event to NATS when the bus is configured.
func (h *Hub) logEvent(eventType string, data map[string]interface{}) {
	if h.telemetry == nil {
		return
	}
	event := events.BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now()}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.telemetry.Publish(ctx, event); err != nil {
		h.logger.Warn("Hub", "Telemetry publish failed", map[string]interface{}{"event": eventType, "error": err.Error()})
	}
}

func (h *Hub) decode(data json.RawMessage, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return h.validate.Struct(out)
}

func (h *Hub) inRoom(connID, chatID uuid.UUID) bool {
	for _, id := range h.Rooms.RoomsOf(connID) {
		if id == chatID {
			return true
		}
	}
	return false
}

// extractTags pulls @mentions (deduplicated, sender excluded) and #hashtags
// (deduplicated, "#" kept) out of the message body.
func extractTags(content, senderUsername string) ([]string, []string) {
	var mentions []string
	seenMentions := make(map[string]struct{})
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		username := match[1]
		if strings.EqualFold(username, senderUsername) {
			continue
		}
		if _, seen := seenMentions[username]; seen {
			continue
		}
		seenMentions[username] = struct{}{}
		mentions = append(mentions, username)
	}

	var hashtags []string
	seenTags := make(map[string]struct{})
	for _, match := range hashtagPattern.FindAllStringSubmatch(content, -1) {
		tag := "#" + match[1]
		if _, seen := seenTags[tag]; seen {
			continue
		}
		seenTags[tag] = struct{}{}
		hashtags = append(hashtags, tag)
	}
	return mentions, hashtags
}
