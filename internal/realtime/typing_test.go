package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typingFixture(t *testing.T, window time.Duration) (*TypingStore, *RoomManager, *Client, *Client, uuid.UUID, uuid.UUID) {
	t.Helper()
	chats := newFakeChatRepo()
	chatID := uuid.New()
	typistID, watcherID := uuid.New(), uuid.New()
	chats.addChat(chatID, typistID, watcherID)

	rooms := NewRoomManager(chats, nopLogger{})
	typist := newTestClient()
	watcher := newTestClient()
	require.NoError(t, rooms.Join(context.Background(), typist, typistID, chatID))
	require.NoError(t, rooms.Join(context.Background(), watcher, watcherID, chatID))
	drainEvents(t, typist)
	drainEvents(t, watcher)

	return NewTypingStore(rooms, window, nopLogger{}), rooms, typist, watcher, chatID, typistID
}

func TestTypingStartBroadcastsAndExpires(t *testing.T) {
	store, _, typist, watcher, chatID, typistID := typingFixture(t, 40*time.Millisecond)

	store.SetTyping(chatID, typistID, typist.ID, true)
	assert.True(t, store.IsTyping(chatID, typistID))
	assert.Empty(t, drainEvents(t, typist), "origin never sees its own typing echo")

	start := waitForEvent(t, watcher, EventUserTyping, time.Second)
	var payload TypingPayload
	require.NoError(t, json.Unmarshal(start.Data, &payload))
	assert.True(t, payload.IsTyping)

	// The window lapses with no refresh; a synthetic stop arrives.
	stop := waitForEvent(t, watcher, EventUserTyping, time.Second)
	require.NoError(t, json.Unmarshal(stop.Data, &payload))
	assert.False(t, payload.IsTyping)
	assert.False(t, store.IsTyping(chatID, typistID))
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	store, _, typist, watcher, chatID, typistID := typingFixture(t, 60*time.Millisecond)

	store.SetTyping(chatID, typistID, typist.ID, true)
	time.Sleep(35 * time.Millisecond)
	store.SetTyping(chatID, typistID, typist.ID, true)
	time.Sleep(35 * time.Millisecond)

	// First timer has fired by now but the refresh superseded it.
	assert.True(t, store.IsTyping(chatID, typistID))

	waitForEvent(t, watcher, EventUserTyping, time.Second) // first start
	stop := waitForEvent(t, watcher, EventUserTyping, time.Second)
	var payload TypingPayload
	require.NoError(t, json.Unmarshal(stop.Data, &payload))
	assert.True(t, payload.IsTyping, "stale timer must not emit a stop while refreshed")
}

func TestTypingRestartAfterStopOutlivesStaleTimer(t *testing.T) {
	store, _, typist, watcher, chatID, typistID := typingFixture(t, time.Minute)

	store.SetTyping(chatID, typistID, typist.ID, true)
	store.SetTyping(chatID, typistID, typist.ID, false)
	store.SetTyping(chatID, typistID, typist.ID, true)
	drainEvents(t, watcher)

	// Fire the first window's timer by hand with the generation it
	// captured. The restart carries a newer generation, so nothing happens.
	store.expire(typingKey{chatID: chatID, userID: typistID}, 1)

	assert.True(t, store.IsTyping(chatID, typistID), "restarted flag must survive the stale timer")
	assert.Empty(t, drainEvents(t, watcher), "stale timer must not broadcast a stop")
}

func TestTypingExplicitStop(t *testing.T) {
	store, _, typist, watcher, chatID, typistID := typingFixture(t, time.Minute)

	store.SetTyping(chatID, typistID, typist.ID, true)
	store.SetTyping(chatID, typistID, typist.ID, false)
	assert.False(t, store.IsTyping(chatID, typistID))

	events := drainEvents(t, watcher)
	require.Len(t, events, 2)

	// Stopping again is a no-op with no broadcast.
	store.SetTyping(chatID, typistID, typist.ID, false)
	assert.Empty(t, drainEvents(t, watcher))
}

func TestTypingClearUser(t *testing.T) {
	store, _, typist, watcher, chatID, typistID := typingFixture(t, time.Minute)

	store.SetTyping(chatID, typistID, typist.ID, true)
	drainEvents(t, watcher)

	store.ClearUser(typistID)
	assert.False(t, store.IsTyping(chatID, typistID))

	stop := waitForEvent(t, watcher, EventUserTyping, time.Second)
	var payload TypingPayload
	require.NoError(t, json.Unmarshal(stop.Data, &payload))
	assert.False(t, payload.IsTyping)
}
