package realtime

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"chatwave-be/internal/constant"
	"chatwave-be/internal/entity"
	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/repository/contract"
	"chatwave-be/pkg/llm"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// AutoResponder decides whether an AI persona or an offline user's digital
// twin should produce a delayed reply to a delivered message. It consumes
// the in-process message-created topic so message delivery never waits on
// evaluation.
type AutoResponder struct {
	pubSub *gochannel.GoChannel
	topic  string

	users    contract.UserRepository
	chats    contract.ChatRepository
	messages contract.MessageRepository
	rooms    *RoomManager
	registry *SessionRegistry
	llm      llm.LLMProvider

	personaEnabled     bool
	personaUserID      uuid.UUID
	personaInstruction string
	replyProbability   float64
	jitterMin          time.Duration
	jitterMax          time.Duration

	// randFloat is swappable so tests can pin the probability gate.
	randFloat func() float64

	settings *gocache.Cache
	logger   logger.ILogger
}

type AutoResponderConfig struct {
	PubSub   *gochannel.GoChannel
	Topic    string
	Users    contract.UserRepository
	Chats    contract.ChatRepository
	Messages contract.MessageRepository
	Rooms    *RoomManager
	Registry *SessionRegistry
	LLM      llm.LLMProvider
	Logger   logger.ILogger

	PersonaEnabled     bool
	PersonaUserID      uuid.UUID
	PersonaInstruction string
	ReplyProbability   float64
	JitterMin          time.Duration
	JitterMax          time.Duration
}

func NewAutoResponder(cfg AutoResponderConfig) *AutoResponder {
	jitterMin := cfg.JitterMin
	jitterMax := cfg.JitterMax
	if jitterMin <= 0 {
		jitterMin = constant.AutoReplyJitterMin
	}
	if jitterMax < jitterMin {
		jitterMax = jitterMin
	}
	return &AutoResponder{
		pubSub:             cfg.PubSub,
		topic:              cfg.Topic,
		users:              cfg.Users,
		chats:              cfg.Chats,
		messages:           cfg.Messages,
		rooms:              cfg.Rooms,
		registry:           cfg.Registry,
		llm:                cfg.LLM,
		personaEnabled:     cfg.PersonaEnabled,
		personaUserID:      cfg.PersonaUserID,
		personaInstruction: cfg.PersonaInstruction,
		replyProbability:   cfg.ReplyProbability,
		jitterMin:          jitterMin,
		jitterMax:          jitterMax,
		randFloat:          rand.Float64,
		settings:           gocache.New(5*time.Minute, 10*time.Minute),
		logger:             cfg.Logger,
	}
}

// Start begins consuming the message-created topic.
func (a *AutoResponder) Start(ctx context.Context) error {
	messages, err := a.pubSub.Subscribe(ctx, a.topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var created MessageCreated
			if err := json.Unmarshal(msg.Payload, &created); err != nil {
				a.logger.Warn("AutoResponder", "Dropping malformed message event", map[string]interface{}{"error": err.Error()})
				msg.Ack()
				continue
			}
			a.Evaluate(ctx, created)
			msg.Ack()
		}
	}()

	return nil
}

// Evaluate schedules zero or more deferred replies for a delivered message.
// Scheduling decisions are made now; they are not re-validated at fire time.
func (a *AutoResponder) Evaluate(ctx context.Context, created MessageCreated) {
	if created.Type != constant.DefaultMessageType {
		return
	}
	content := strings.TrimSpace(created.Content)
	if content == "" || strings.HasPrefix(content, constant.CommandPrefix) {
		return
	}

	if a.personaEnabled && created.SenderID != a.personaUserID && a.randFloat() < a.replyProbability {
		delay := a.jitter()
		a.logger.Debug("AutoResponder", "Scheduling persona reply", map[string]interface{}{"chat_id": created.ChatID, "delay": delay.String()})
		time.AfterFunc(delay, func() {
			a.fire(created.ChatID, a.personaUserID, a.personaInstruction)
		})
	}

	participants, err := a.chats.FindParticipantIDs(ctx, created.ChatID)
	if err != nil {
		a.logger.Error("AutoResponder", "Failed to load participants", map[string]interface{}{"chat_id": created.ChatID, "error": err.Error()})
		return
	}

	for _, participantID := range participants {
		if participantID == created.SenderID || participantID == a.personaUserID {
			continue
		}
		if _, online := a.registry.LookupConnection(participantID); online {
			continue
		}
		user := a.userSettings(ctx, participantID)
		if user == nil || !user.TwinEnabled || user.TwinDelaySeconds <= 0 {
			continue
		}
		delay := time.Duration(user.TwinDelaySeconds) * time.Second
		instruction := user.TwinInstruction
		a.logger.Debug("AutoResponder", "Scheduling twin reply", map[string]interface{}{"chat_id": created.ChatID, "user_id": participantID, "delay": delay.String()})
		time.AfterFunc(delay, func() {
			a.fire(created.ChatID, participantID, instruction)
		})
	}
}

// fire runs one scheduled reply: recent history in, generated message out.
// A failed or empty generation completes silently with no message sent.
func (a *AutoResponder) fire(chatID, responderID uuid.UUID, instruction string) {
	ctx := context.Background()

	recent, err := a.messages.FindRecentByChatID(ctx, chatID, constant.RecentHistoryLimit)
	if err != nil {
		a.logger.Error("AutoResponder", "Failed to load history", map[string]interface{}{"chat_id": chatID, "error": err.Error()})
		return
	}

	history := make([]llm.Message, 0, len(recent)+1)
	if instruction != "" {
		history = append(history, llm.Message{Role: "system", Content: instruction})
	}
	// FindRecent returns newest first; the model wants chronological order.
	for i := len(recent) - 1; i >= 0; i-- {
		role := "user"
		if recent[i].SenderId == responderID {
			role = "assistant"
		}
		history = append(history, llm.Message{Role: role, Content: recent[i].Content})
	}

	reply, err := a.llm.Chat(ctx, history)
	if err != nil {
		extErr := &ExternalServiceError{Service: "text generation", Err: err}
		a.logger.Warn("AutoResponder", "Generation failed, skipping reply", map[string]interface{}{"chat_id": chatID, "error": extErr.Error()})
		return
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return
	}

	message := &entity.Message{
		Id:        uuid.New(),
		ChatId:    chatID,
		SenderId:  responderID,
		Content:   reply,
		Type:      constant.DefaultMessageType,
		CreatedAt: time.Now(),
	}
	if err := a.messages.Create(ctx, message); err != nil {
		a.logger.Error("AutoResponder", "Failed to persist reply", map[string]interface{}{"chat_id": chatID, "error": err.Error()})
		return
	}

	sender := a.userSettings(ctx, responderID)
	a.rooms.Broadcast(chatID, newMessageEvent(message, sender, nil, nil), uuid.Nil)
}

func (a *AutoResponder) jitter() time.Duration {
	spread := a.jitterMax - a.jitterMin
	if spread <= 0 {
		return a.jitterMin
	}
	return a.jitterMin + time.Duration(a.randFloat()*float64(spread))
}

func (a *AutoResponder) userSettings(ctx context.Context, userID uuid.UUID) *entity.User {
	if cached, found := a.settings.Get(userID.String()); found {
		return cached.(*entity.User)
	}
	user, err := a.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return nil
	}
	a.settings.Set(userID.String(), user, gocache.DefaultExpiration)
	return user
}
