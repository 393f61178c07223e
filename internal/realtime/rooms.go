package realtime

import (
	"context"
	"sync"

	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/repository/contract"

	"github.com/google/uuid"
)

// RoomManager tracks which connections are subscribed to which chat rooms.
// Rooms mirror chats that already exist in the store; the manager never
// creates one.
type RoomManager struct {
	mu     sync.RWMutex
	rooms    map[uuid.UUID]map[uuid.UUID]*Client  // chatId -> connectionId -> client
	byConn   map[uuid.UUID]map[uuid.UUID]struct{} // connectionId -> set of chatIds
	byUser   map[uuid.UUID]map[uuid.UUID]struct{} // userId -> set of chatIds
	connUser map[uuid.UUID]uuid.UUID              // connectionId -> userId

	chats  contract.ChatRepository
	logger logger.ILogger
}

func NewRoomManager(chats contract.ChatRepository, log logger.ILogger) *RoomManager {
	return &RoomManager{
		rooms:    make(map[uuid.UUID]map[uuid.UUID]*Client),
		byConn:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byUser:   make(map[uuid.UUID]map[uuid.UUID]struct{}),
		connUser: make(map[uuid.UUID]uuid.UUID),
		chats:    chats,
		logger:   log,
	}
}

// Join adds the connection to the room's delivery set after verifying the
// user actually participates in the chat. An unauthorized join fails with
// AuthorizationError and mutates nothing.
func (m *RoomManager) Join(ctx context.Context, client *Client, userID, chatID uuid.UUID) error {
	member, err := m.chats.IsMember(ctx, chatID, userID)
	if err != nil {
		return &PersistenceError{Op: "membership check", Err: err}
	}
	if !member {
		return &AuthorizationError{Reason: "not a participant of this chat"}
	}
	m.add(client, userID, chatID)
	m.notifyMembership(chatID, userID, true, client.ID)
	return nil
}

// JoinOwned subscribes without a membership check. Used for the auto-join
// at authentication time, where the chat list itself came from the store.
func (m *RoomManager) JoinOwned(client *Client, userID, chatID uuid.UUID) {
	m.add(client, userID, chatID)
}

func (m *RoomManager) add(client *Client, userID, chatID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[chatID] == nil {
		m.rooms[chatID] = make(map[uuid.UUID]*Client)
	}
	m.rooms[chatID][client.ID] = client
	m.connUser[client.ID] = userID
	if m.byConn[client.ID] == nil {
		m.byConn[client.ID] = make(map[uuid.UUID]struct{})
	}
	m.byConn[client.ID][chatID] = struct{}{}
	if m.byUser[userID] == nil {
		m.byUser[userID] = make(map[uuid.UUID]struct{})
	}
	m.byUser[userID][chatID] = struct{}{}
}

// Leave removes the connection from the room. Idempotent.
func (m *RoomManager) Leave(client *Client, userID, chatID uuid.UUID) {
	m.mu.Lock()
	removed := false
	if members, ok := m.rooms[chatID]; ok {
		if _, present := members[client.ID]; present {
			delete(members, client.ID)
			removed = true
			if len(members) == 0 {
				delete(m.rooms, chatID)
			}
		}
	}
	if set, ok := m.byConn[client.ID]; ok {
		delete(set, chatID)
		if len(set) == 0 {
			delete(m.byConn, client.ID)
			delete(m.connUser, client.ID)
		}
	}
	m.dropUserRoomLocked(userID, chatID)
	m.mu.Unlock()

	if removed {
		m.notifyMembership(chatID, userID, false, client.ID)
	}
}

// LeaveAll tears down every subscription of the connection and returns the
// rooms it was in. The owning user is resolved from the subscription state
// itself, so a connection whose session binding was already superseded
// still gets scrubbed.
func (m *RoomManager) LeaveAll(client *Client) []uuid.UUID {
	m.mu.Lock()
	userID := m.connUser[client.ID]
	chatIDs := make([]uuid.UUID, 0, len(m.byConn[client.ID]))
	for chatID := range m.byConn[client.ID] {
		chatIDs = append(chatIDs, chatID)
		if members, ok := m.rooms[chatID]; ok {
			delete(members, client.ID)
			if len(members) == 0 {
				delete(m.rooms, chatID)
			}
		}
		m.dropUserRoomLocked(userID, chatID)
	}
	delete(m.byConn, client.ID)
	delete(m.connUser, client.ID)
	m.mu.Unlock()
	return chatIDs
}

// dropUserRoomLocked removes the room from the user's index unless another
// of the user's connections is still subscribed. Caller holds the lock.
func (m *RoomManager) dropUserRoomLocked(userID, chatID uuid.UUID) {
	for connID := range m.rooms[chatID] {
		if m.connUser[connID] == userID {
			return
		}
	}
	if set, ok := m.byUser[userID]; ok {
		delete(set, chatID)
		if len(set) == 0 {
			delete(m.byUser, userID)
		}
	}
}

// MembersOf returns a snapshot of the room's delivery set.
func (m *RoomManager) MembersOf(chatID uuid.UUID) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make([]*Client, 0, len(m.rooms[chatID]))
	for _, client := range m.rooms[chatID] {
		members = append(members, client)
	}
	return members
}

// RoomsOf returns the rooms a connection is currently subscribed to.
func (m *RoomManager) RoomsOf(connID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chatIDs := make([]uuid.UUID, 0, len(m.byConn[connID]))
	for chatID := range m.byConn[connID] {
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs
}

// RoomsOfUser returns the rooms a user is subscribed to via any connection.
func (m *RoomManager) RoomsOfUser(userID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chatIDs := make([]uuid.UUID, 0, len(m.byUser[userID]))
	for chatID := range m.byUser[userID] {
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs
}

// Broadcast fans a frame out over a snapshot of the room's members.
// Not atomic: a member disconnecting mid-broadcast simply misses it.
func (m *RoomManager) Broadcast(chatID uuid.UUID, payload []byte, except uuid.UUID) {
	for _, client := range m.MembersOf(chatID) {
		if client.ID == except {
			continue
		}
		client.enqueue(payload)
	}
}

// notifyMembership tells the rest of the room that someone joined or left.
// Best effort, not required for correctness.
func (m *RoomManager) notifyMembership(chatID, userID uuid.UUID, joined bool, except uuid.UUID) {
	payload := marshalEvent(EventChatMembership, map[string]interface{}{
		"chatId": chatID,
		"userId": userID,
		"joined": joined,
	})
	m.Broadcast(chatID, payload, except)
}
