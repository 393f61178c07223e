package bootstrap

import (
	"context"
	"log"

	"chatwave-be/internal/config"
	"chatwave-be/internal/constant"
	"chatwave-be/internal/controller"
	"chatwave-be/internal/handler"
	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/realtime"
	"chatwave-be/internal/repository/implementation"
	"chatwave-be/internal/service"
	"chatwave-be/pkg/llm/factory"
	pktNats "chatwave-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController controller.IChatController

	// WebSocket coordinator
	RealtimeHandler *handler.RealtimeHandler
	Hub             *realtime.Hub

	// Background services (exposed for main.go to run)
	AutoResponder *realtime.AutoResponder
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	rtLogger := logger.NewIsolatedLogger(cfg.App.RealtimeLogPath)

	// 2. Event bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)

	// 3. Repositories
	userRepo := implementation.NewUserRepository(db)
	chatRepo := implementation.NewChatRepository(db)
	messageRepo := implementation.NewMessageRepository(db)
	callRepo := implementation.NewCallRepository(db)
	notificationRepo := implementation.NewNotificationRepository(db)

	// 4. Infrastructure
	// NATS: telemetry only, the coordinator runs fine without it.
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	// Redis: optional presence mirror.
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
	}

	// 5. LLM provider for the auto-responder
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.HuggingFaceKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 6. Realtime coordinator
	hub := realtime.NewHub(realtime.HubConfig{
		Users:         userRepo,
		Chats:         chatRepo,
		Messages:      messageRepo,
		Notifications: notificationRepo,
		Calls:         callRepo,
		Publisher:     pubSub,
		Telemetry:     natsPub,
		Redis:         rdb,
		JWTSecret:     cfg.App.JWTSecret,
		Logger:        rtLogger,
	})

	personaUserID := uuid.Nil
	if cfg.Ai.PersonaUserID != "" {
		if id, err := uuid.Parse(cfg.Ai.PersonaUserID); err == nil {
			personaUserID = id
		} else {
			log.Printf("[WARN] Invalid AI_PERSONA_USER_ID, persona disabled: %v", err)
		}
	}

	autoResponder := realtime.NewAutoResponder(realtime.AutoResponderConfig{
		PubSub:             pubSub,
		Topic:              constant.MessageCreatedTopic,
		Users:              userRepo,
		Chats:              chatRepo,
		Messages:           messageRepo,
		Rooms:              hub.Rooms,
		Registry:           hub.Registry,
		LLM:                llmProvider,
		Logger:             rtLogger,
		PersonaEnabled:     cfg.Ai.PersonaEnabled && personaUserID != uuid.Nil,
		PersonaUserID:      personaUserID,
		PersonaInstruction: cfg.Ai.PersonaInstruction,
		ReplyProbability:   cfg.Ai.ReplyProbability,
	})

	// 7. HTTP surface
	chatService := service.NewChatService(chatRepo, messageRepo)

	sysLogger.Info("Bootstrap", "Container initialized", map[string]interface{}{
		"nats_connected": natsPub != nil,
		"redis_mirror":   rdb != nil,
		"persona":        cfg.Ai.PersonaEnabled && personaUserID != uuid.Nil,
	})

	return &Container{
		ChatController:  controller.NewChatController(chatService),
		RealtimeHandler: handler.NewRealtimeHandler(hub, rtLogger),
		Hub:             hub,
		AutoResponder:   autoResponder,
	}
}
