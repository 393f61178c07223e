package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

// nopLogger keeps unit tests quiet.
type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

// newTestClient builds a client with no websocket connection. The dispatch
// and broadcast paths only touch the send channel, so tests read outbound
// frames straight from it.
func newTestClient() *Client {
	return &Client{
		ID:   uuid.New(),
		send: make(chan []byte, 64),
	}
}

// drainEvents decodes every frame currently buffered on the client.
func drainEvents(t *testing.T, c *Client) []Envelope {
	t.Helper()
	var events []Envelope
	for {
		select {
		case raw := <-c.send:
			var envelope Envelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				t.Fatalf("malformed frame: %v", err)
			}
			events = append(events, envelope)
		default:
			return events
		}
	}
}

// waitForEvent blocks until the client receives a frame with the given
// event name or the timeout passes.
func waitForEvent(t *testing.T, c *Client, event string, timeout time.Duration) Envelope {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case raw := <-c.send:
			var envelope Envelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				t.Fatalf("malformed frame: %v", err)
			}
			if envelope.Event == event {
				return envelope
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", event)
		}
	}
}

type statusUpdate struct {
	userID   uuid.UUID
	status   string
	isOnline bool
}

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*entity.User
	updates []statusUpdate
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[uuid.UUID]*entity.User)}
	for _, user := range users {
		repo.users[user.Id] = user
	}
	return repo
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, isOnline bool, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, statusUpdate{userID: id, status: status, isOnline: isOnline})
	if user, ok := r.users[id]; ok {
		user.Status = status
		user.IsOnline = isOnline
	}
	return nil
}

func (r *fakeUserRepo) lastUpdate() (statusUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updates) == 0 {
		return statusUpdate{}, false
	}
	return r.updates[len(r.updates)-1], true
}

type fakeChatRepo struct {
	mu      sync.Mutex
	chats   map[uuid.UUID]*entity.Chat
	members map[uuid.UUID][]uuid.UUID // chatId -> userIds
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{
		chats:   make(map[uuid.UUID]*entity.Chat),
		members: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *fakeChatRepo) addChat(chatID uuid.UUID, userIDs ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chats[chatID] = &entity.Chat{Id: chatID, Name: "chat", CreatedAt: time.Now()}
	r.members[chatID] = userIDs
}

func (r *fakeChatRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chats[id], nil
}

func (r *fakeChatRepo) FindChatIDsByUserID(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var chatIDs []uuid.UUID
	for chatID, members := range r.members {
		for _, member := range members {
			if member == userID {
				chatIDs = append(chatIDs, chatID)
			}
		}
	}
	return chatIDs, nil
}

func (r *fakeChatRepo) FindChatsByUserID(ctx context.Context, userID uuid.UUID) ([]*entity.Chat, error) {
	chatIDs, _ := r.FindChatIDsByUserID(ctx, userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	chats := make([]*entity.Chat, 0, len(chatIDs))
	for _, id := range chatIDs {
		chats = append(chats, r.chats[id])
	}
	return chats, nil
}

func (r *fakeChatRepo) IsMember(_ context.Context, chatID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, member := range r.members[chatID] {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeChatRepo) FindParticipantIDs(_ context.Context, chatID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.members[chatID]...), nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*entity.Message
	failNext bool
}

func (r *fakeMessageRepo) Create(_ context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return context.DeadlineExceeded
	}
	r.messages = append(r.messages, message)
	return nil
}

func (r *fakeMessageRepo) FindRecentByChatID(_ context.Context, chatID uuid.UUID, limit int) ([]*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var recent []*entity.Message
	for i := len(r.messages) - 1; i >= 0 && len(recent) < limit; i-- {
		if r.messages[i].ChatId == chatID {
			recent = append(recent, r.messages[i])
		}
	}
	return recent, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *fakeMessageRepo) last() *entity.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return nil
	}
	return r.messages[len(r.messages)-1]
}

type endedCall struct {
	id       uuid.UUID
	reason   string
	duration int
}

type fakeCallRepo struct {
	mu      sync.Mutex
	created []*entity.Call
	ended   []endedCall
}

func (r *fakeCallRepo) Create(_ context.Context, call *entity.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, call)
	return nil
}

func (r *fakeCallRepo) End(_ context.Context, id uuid.UUID, reason string, duration int, _ *time.Time, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, endedCall{id: id, reason: reason, duration: duration})
	return nil
}

func (r *fakeCallRepo) endedCalls() []endedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]endedCall(nil), r.ended...)
}

type fakeNotificationRepo struct {
	mu      sync.Mutex
	created []*entity.Notification
}

func (r *fakeNotificationRepo) Create(_ context.Context, notification *entity.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, notification)
	return nil
}

func (r *fakeNotificationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// fakeDirectory is a directory backed by a plain map, for components that
// do not need a full hub.
type fakeDirectory struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Client
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{clients: make(map[uuid.UUID]*Client)}
}

func (d *fakeDirectory) put(userID uuid.UUID, client *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[userID] = client
}

func (d *fakeDirectory) ClientByUser(userID uuid.UUID) (*Client, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	client, ok := d.clients[userID]
	return client, ok
}
