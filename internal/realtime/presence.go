package realtime

import (
	"context"
	"encoding/json"
	"time"

	"chatwave-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const presenceMirrorTTL = 5 * time.Minute

// PresenceBroadcaster publishes online/offline/status changes to every room
// the user belongs to. Pure fan-out; it never fails, unreachable
// connections are silently skipped.
type PresenceBroadcaster struct {
	rooms  *RoomManager
	rdb    *redis.Client // optional mirror for cross-instance visibility
	logger logger.ILogger
}

func NewPresenceBroadcaster(rooms *RoomManager, rdb *redis.Client, log logger.ILogger) *PresenceBroadcaster {
	return &PresenceBroadcaster{rooms: rooms, rdb: rdb, logger: log}
}

// Publish fans a status change out to the user's current rooms.
func (b *PresenceBroadcaster) Publish(ctx context.Context, userID uuid.UUID, isOnline bool, status string) {
	b.PublishToRooms(ctx, b.rooms.RoomsOfUser(userID), userID, isOnline, status)
}

// PublishToRooms is used when the room set was captured before a teardown
// (the user's own subscriptions are already gone on disconnect).
func (b *PresenceBroadcaster) PublishToRooms(ctx context.Context, chatIDs []uuid.UUID, userID uuid.UUID, isOnline bool, status string) {
	payload := statusChangedEvent(userID, isOnline, status)
	for _, chatID := range chatIDs {
		b.rooms.Broadcast(chatID, payload, uuid.Nil)
	}
	b.mirror(ctx, userID, isOnline, status)
}

func (b *PresenceBroadcaster) mirror(ctx context.Context, userID uuid.UUID, isOnline bool, status string) {
	if b.rdb == nil {
		return
	}
	state, _ := json.Marshal(map[string]interface{}{
		"userId":   userID,
		"isOnline": isOnline,
		"status":   status,
		"lastSeen": time.Now().Format(time.RFC3339),
	})
	if err := b.rdb.Set(ctx, "presence:"+userID.String(), state, presenceMirrorTTL).Err(); err != nil {
		b.logger.Warn("Presence", "Redis mirror write failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
	}
}
