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

// directory resolves a user to their live client, if any. Implemented by
// the hub; faked in tests.
type directory interface {
	ClientByUser(userID uuid.UUID) (*Client, bool)
}

const (
	CallStatusRinging = "ringing"
	CallStatusActive  = "active"

	CallReasonCompleted    = "completed"
	CallReasonDeclined     = "declined"
	CallReasonTimeout      = "timeout"
	CallReasonDisconnected = "disconnected"
	CallReasonUnavailable  = "unavailable"
)

type liveCall struct {
	id          uuid.UUID
	chatID      uuid.UUID
	initiatorID uuid.UUID
	targetID    uuid.UUID
	callType    string
	status      string
	startedAt   time.Time
	acceptedAt  time.Time
}

// CallMachine owns the live call table and its timers. One record exists
// per live attempt; it leaves the table the instant it ends, and it can
// only leave once.
type CallMachine struct {
	mu   sync.Mutex
	live map[uuid.UUID]*liveCall

	dir         directory
	users       contract.UserRepository
	calls       contract.CallRepository
	ringTimeout time.Duration
	logger      logger.ILogger
}

func NewCallMachine(dir directory, users contract.UserRepository, calls contract.CallRepository, ringTimeout time.Duration, log logger.ILogger) *CallMachine {
	return &CallMachine{
		live:        make(map[uuid.UUID]*liveCall),
		dir:         dir,
		users:       users,
		calls:       calls,
		ringTimeout: ringTimeout,
		logger:      log,
	}
}

// Initiate starts a call attempt. An offline target is still persisted as a
// zero-duration ended call for history, but no ringing timer is armed and
// the initiator is told the callee is unreachable via NotFoundError.
func (m *CallMachine) Initiate(ctx context.Context, initiatorID, targetUserID, chatID uuid.UUID, isVideo bool) (uuid.UUID, error) {
	callType := "voice"
	if isVideo {
		callType = "video"
	}
	now := time.Now()
	record := &entity.Call{
		Id:          uuid.New(),
		ChatId:      chatID,
		InitiatorId: initiatorID,
		TargetId:    targetUserID,
		Type:        callType,
		Status:      CallStatusRinging,
		StartedAt:   now,
	}

	target, online := m.dir.ClientByUser(targetUserID)
	if !online {
		record.Status = "ended"
		record.EndReason = CallReasonUnavailable
		endedAt := now
		record.EndedAt = &endedAt
		if err := m.calls.Create(ctx, record); err != nil {
			m.logger.Error("CallMachine", "Failed to persist unavailable call", map[string]interface{}{"call_id": record.Id, "error": err.Error()})
		}
		return record.Id, &NotFoundError{Entity: "callee session"}
	}

	if err := m.calls.Create(ctx, record); err != nil {
		return uuid.Nil, &PersistenceError{Op: "create call", Err: err}
	}

	m.mu.Lock()
	m.live[record.Id] = &liveCall{
		id:          record.Id,
		chatID:      chatID,
		initiatorID: initiatorID,
		targetID:    targetUserID,
		callType:    callType,
		status:      CallStatusRinging,
		startedAt:   now,
	}
	m.mu.Unlock()

	caller, err := m.users.FindByID(ctx, initiatorID)
	if err != nil || caller == nil {
		caller = &entity.User{Id: initiatorID}
	}
	target.enqueue(marshalEvent(EventIncomingCall, map[string]interface{}{
		"callId":       record.Id,
		"chatId":       chatID,
		"callerId":     initiatorID,
		"callerName":   caller.Username,
		"callerAvatar": caller.AvatarURL,
		"isVideo":      isVideo,
	}))

	callID := record.Id
	time.AfterFunc(m.ringTimeout, func() {
		// The call may have been answered, declined or ended since the
		// timer was armed; finish re-checks before acting.
		m.finish(context.Background(), callID, CallReasonTimeout, CallStatusRinging)
	})

	return record.Id, nil
}

// Respond handles accept/decline. Valid only while ringing and only from
// the callee; anything else is a NotFoundError no-op.
func (m *CallMachine) Respond(ctx context.Context, callID, responderID uuid.UUID, accepted bool) error {
	m.mu.Lock()
	call, ok := m.live[callID]
	if !ok || call.status != CallStatusRinging || call.targetID != responderID {
		m.mu.Unlock()
		return &NotFoundError{Entity: "ringing call"}
	}
	initiatorID := call.initiatorID
	if accepted {
		call.status = CallStatusActive
		call.acceptedAt = time.Now()
	}
	m.mu.Unlock()

	if initiator, online := m.dir.ClientByUser(initiatorID); online {
		initiator.enqueue(marshalEvent(EventCallResponse, map[string]interface{}{
			"callId":      callID,
			"accepted":    accepted,
			"responderId": responderID,
		}))
	}

	if !accepted {
		m.finish(ctx, callID, CallReasonDeclined, CallStatusRinging)
	}
	return nil
}

// End terminates the call from ringing or active. Idempotent: ending an
// already-ended call is a no-op.
func (m *CallMachine) End(ctx context.Context, callID uuid.UUID, reason string) bool {
	return m.finish(ctx, callID, reason)
}

// EndByParticipant terminates the call on behalf of one of its two
// participants. Anyone else gets a NotFoundError and the call stays live.
func (m *CallMachine) EndByParticipant(ctx context.Context, callID, userID uuid.UUID, reason string) error {
	m.mu.Lock()
	call, ok := m.live[callID]
	if !ok || (call.initiatorID != userID && call.targetID != userID) {
		m.mu.Unlock()
		return &NotFoundError{Entity: "call"}
	}
	m.mu.Unlock()
	m.finish(ctx, callID, reason)
	return nil
}

// OnParticipantDisconnect ends any live call the user is part of. Safe to
// call when none exists.
func (m *CallMachine) OnParticipantDisconnect(ctx context.Context, userID uuid.UUID) {
	m.mu.Lock()
	affected := make([]uuid.UUID, 0, 1)
	for id, call := range m.live {
		if call.initiatorID == userID || call.targetID == userID {
			affected = append(affected, id)
		}
	}
	m.mu.Unlock()

	for _, id := range affected {
		m.finish(ctx, id, CallReasonDisconnected)
	}
}

// LiveCount reports the size of the live call table.
func (m *CallMachine) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// finish converges the call onto the durable ended record exactly once.
// When allowed statuses are given, the transition only happens from one of
// them; that is the guard stale timers rely on.
func (m *CallMachine) finish(ctx context.Context, callID uuid.UUID, reason string, allowed ...string) bool {
	m.mu.Lock()
	call, ok := m.live[callID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	if len(allowed) > 0 && !statusIn(call.status, allowed) {
		m.mu.Unlock()
		return false
	}
	delete(m.live, callID)
	initiatorID, targetID := call.initiatorID, call.targetID
	var acceptedAt *time.Time
	duration := 0
	if !call.acceptedAt.IsZero() {
		t := call.acceptedAt
		acceptedAt = &t
		duration = int(time.Since(call.acceptedAt).Round(time.Second) / time.Second)
		if duration == 0 {
			// A sub-second call still records one second, keeping zero
			// reserved for attempts that were never accepted.
			duration = 1
		}
	}
	m.mu.Unlock()

	endedAt := time.Now()
	if err := m.calls.End(ctx, callID, reason, duration, acceptedAt, endedAt); err != nil {
		// The call already left the live set; log the gap instead of
		// resurrecting it.
		m.logger.Error("CallMachine", "Failed to persist call end", map[string]interface{}{"call_id": callID, "error": err.Error()})
	}

	payload := callEndedEvent(callID, reason, duration)
	for _, userID := range []uuid.UUID{initiatorID, targetID} {
		if client, online := m.dir.ClientByUser(userID); online {
			client.enqueue(payload)
		}
	}
	return true
}

func statusIn(status string, allowed []string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
