package realtime

import (
	"sync"
	"time"

	"chatwave-be/internal/pkg/logger"

	"github.com/google/uuid"
)

type typingKey struct {
	chatID uuid.UUID
	userID uuid.UUID
}

type typingEntry struct {
	gen        uint64
	expiresAt  time.Time
	originConn uuid.UUID
}

// TypingStore holds per-room, per-user ephemeral "is typing" flags that
// self-expire after a fixed window unless refreshed. Every timer fire
// re-validates against a generation counter so a stale timer can never
// clobber a newer refresh or an explicit stop.
type TypingStore struct {
	mu      sync.Mutex
	entries map[typingKey]*typingEntry
	nextGen uint64
	window  time.Duration

	rooms  *RoomManager
	logger logger.ILogger
}

func NewTypingStore(rooms *RoomManager, window time.Duration, log logger.ILogger) *TypingStore {
	return &TypingStore{
		entries: make(map[typingKey]*typingEntry),
		window:  window,
		rooms:   rooms,
		logger:  log,
	}
}

// SetTyping records or clears the flag and broadcasts the change to the
// room, excluding the originating connection. A true flag arms an
// auto-clear timer for the window; an explicit false wins over the timer.
func (s *TypingStore) SetTyping(chatID, userID, originConn uuid.UUID, isTyping bool) {
	key := typingKey{chatID: chatID, userID: userID}

	if !isTyping {
		s.mu.Lock()
		_, existed := s.entries[key]
		delete(s.entries, key)
		s.mu.Unlock()
		if existed {
			s.rooms.Broadcast(chatID, userTypingEvent(chatID, userID, false), originConn)
		}
		return
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		entry = &typingEntry{}
		s.entries[key] = entry
	}
	// The generation is store-wide monotonic, never per entry: a stop
	// deletes the entry, and a restart must not hand a fresh entry the
	// same generation an older, still-pending timer captured.
	s.nextGen++
	entry.gen = s.nextGen
	entry.expiresAt = time.Now().Add(s.window)
	entry.originConn = originConn
	gen := entry.gen
	s.mu.Unlock()

	s.rooms.Broadcast(chatID, userTypingEvent(chatID, userID, true), originConn)

	time.AfterFunc(s.window, func() {
		s.expire(key, gen)
	})
}

// IsTyping reports whether a live, unexpired flag exists. An entry older
// than its expiry is treated as absent even if not yet swept.
func (s *TypingStore) IsTyping(chatID, userID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[typingKey{chatID: chatID, userID: userID}]
	return ok && time.Now().Before(entry.expiresAt)
}

// ClearUser drops every flag of the user and broadcasts the stop to each
// affected room. Used on disconnect.
func (s *TypingStore) ClearUser(userID uuid.UUID) {
	s.mu.Lock()
	cleared := make([]typingKey, 0)
	for key := range s.entries {
		if key.userID == userID {
			cleared = append(cleared, key)
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()

	for _, key := range cleared {
		s.rooms.Broadcast(key.chatID, userTypingEvent(key.chatID, key.userID, false), uuid.Nil)
	}
}

func (s *TypingStore) expire(key typingKey, gen uint64) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok || entry.gen != gen {
		// Refreshed or explicitly stopped since this timer was armed.
		s.mu.Unlock()
		return
	}
	originConn := entry.originConn
	delete(s.entries, key)
	s.mu.Unlock()

	s.rooms.Broadcast(key.chatID, userTypingEvent(key.chatID, key.userID, false), originConn)
}
