package realtime

import (
	"context"
	"sync"
	"time"

	"chatwave-be/internal/entity"
	"chatwave-be/internal/pkg/logger"
	"chatwave-be/internal/repository/contract"

	"github.com/google/uuid"
)

// SessionRegistry tracks which connection belongs to which user. The model
// is single-session: binding a new connection for an already-bound user
// silently supersedes the previous mapping without closing it.
type SessionRegistry struct {
	mu     sync.RWMutex
	byConn map[uuid.UUID]uuid.UUID // connectionId -> userId
	byUser map[uuid.UUID]uuid.UUID // userId -> connectionId

	users  contract.UserRepository
	chats  contract.ChatRepository
	logger logger.ILogger
}

func NewSessionRegistry(users contract.UserRepository, chats contract.ChatRepository, log logger.ILogger) *SessionRegistry {
	return &SessionRegistry{
		byConn: make(map[uuid.UUID]uuid.UUID),
		byUser: make(map[uuid.UUID]uuid.UUID),
		users:  users,
		chats:  chats,
		logger: log,
	}
}

// Bind records the connection/user mapping, marks the user online and
// returns the chats the connection should auto-join. Fails with
// AuthenticationError when the user does not exist or is blocked; the
// caller must then terminate the connection.
func (r *SessionRegistry) Bind(ctx context.Context, connID, userID uuid.UUID) ([]uuid.UUID, *entity.User, error) {
	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "load user", Err: err}
	}
	if user == nil {
		return nil, nil, &AuthenticationError{Reason: "user does not exist"}
	}
	if user.IsBlocked {
		return nil, nil, &AuthenticationError{Reason: "user account is blocked"}
	}

	r.mu.Lock()
	if prev, ok := r.byUser[userID]; ok && prev != connID {
		// Last writer wins; the superseded connection is orphaned, not closed.
		delete(r.byConn, prev)
		r.logger.Warn("SessionRegistry", "Superseding existing session", map[string]interface{}{
			"user_id": userID, "old_connection": prev, "new_connection": connID,
		})
	}
	r.byConn[connID] = userID
	r.byUser[userID] = connID
	r.mu.Unlock()

	if err := r.users.UpdateStatus(ctx, userID, "online", true, time.Now()); err != nil {
		r.logger.Error("SessionRegistry", "Failed to persist online status", map[string]interface{}{"user_id": userID, "error": err.Error()})
	}

	chatIDs, err := r.chats.FindChatIDsByUserID(ctx, userID)
	if err != nil {
		return nil, user, &PersistenceError{Op: "load user chats", Err: err}
	}
	return chatIDs, user, nil
}

// Unbind removes the mapping and marks the user offline when no other
// session remains. Idempotent: unbinding an unknown connection is a no-op
// that reports "no change".
func (r *SessionRegistry) Unbind(ctx context.Context, connID uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	userID, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return uuid.Nil, false
	}
	delete(r.byConn, connID)
	lastSession := r.byUser[userID] == connID
	if lastSession {
		delete(r.byUser, userID)
	}
	r.mu.Unlock()

	if lastSession {
		if err := r.users.UpdateStatus(ctx, userID, "offline", false, time.Now()); err != nil {
			r.logger.Error("SessionRegistry", "Failed to persist offline status", map[string]interface{}{"user_id": userID, "error": err.Error()})
		}
	}
	return userID, true
}

// Lookup resolves a connection to its bound user.
func (r *SessionRegistry) Lookup(connID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// LookupConnection resolves a user to their current live connection.
func (r *SessionRegistry) LookupConnection(userID uuid.UUID) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}
