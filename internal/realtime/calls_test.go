package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callFixture struct {
	machine *CallMachine
	dir     *fakeDirectory
	calls   *fakeCallRepo

	callerID, calleeID uuid.UUID
	caller, callee     *Client
	chatID             uuid.UUID
}

func newCallFixture(t *testing.T, ringTimeout time.Duration) *callFixture {
	t.Helper()
	f := &callFixture{
		dir:      newFakeDirectory(),
		calls:    &fakeCallRepo{},
		callerID: uuid.New(),
		calleeID: uuid.New(),
		caller:   newTestClient(),
		callee:   newTestClient(),
		chatID:   uuid.New(),
	}
	f.dir.put(f.callerID, f.caller)
	f.dir.put(f.calleeID, f.callee)
	users := newFakeUserRepo(
		&entity.User{Id: f.callerID, Username: "caller"},
		&entity.User{Id: f.calleeID, Username: "callee"},
	)
	f.machine = NewCallMachine(f.dir, users, f.calls, ringTimeout, nopLogger{})
	return f
}

func TestCallInitiateRingsTarget(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	callID, err := f.machine.Initiate(context.Background(), f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.machine.LiveCount())

	ring := waitForEvent(t, f.callee, EventIncomingCall, time.Second)
	var payload struct {
		CallID     uuid.UUID `json:"callId"`
		CallerName string    `json:"callerName"`
		IsVideo    bool      `json:"isVideo"`
	}
	require.NoError(t, json.Unmarshal(ring.Data, &payload))
	assert.Equal(t, callID, payload.CallID)
	assert.Equal(t, "caller", payload.CallerName)
	assert.False(t, payload.IsVideo)
}

func TestCallInitiateOfflineTarget(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	offlineID := uuid.New()

	_, err := f.machine.Initiate(context.Background(), f.callerID, offlineID, f.chatID, true)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Zero(t, f.machine.LiveCount())

	// The attempt still left a durable zero-duration record.
	require.Len(t, f.calls.created, 1)
	record := f.calls.created[0]
	assert.Equal(t, "ended", record.Status)
	assert.Equal(t, CallReasonUnavailable, record.EndReason)
	assert.Zero(t, record.Duration)
}

func TestCallAcceptFlow(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)

	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))
	assert.Equal(t, 1, f.machine.LiveCount(), "accepted call stays live")

	response := waitForEvent(t, f.caller, EventCallResponse, time.Second)
	var payload struct {
		Accepted bool `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(response.Data, &payload))
	assert.True(t, payload.Accepted)

	// Hang up; both sides learn the call ended exactly once.
	assert.True(t, f.machine.End(ctx, callID, CallReasonCompleted))
	waitForEvent(t, f.caller, EventCallEnded, time.Second)
	waitForEvent(t, f.callee, EventCallEnded, time.Second)

	ended := f.calls.endedCalls()
	require.Len(t, ended, 1)
	assert.Equal(t, CallReasonCompleted, ended[0].reason)

	assert.False(t, f.machine.End(ctx, callID, CallReasonCompleted), "second end is a no-op")
	assert.Len(t, f.calls.endedCalls(), 1)
}

func TestCallDecline(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)

	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, false))
	assert.Zero(t, f.machine.LiveCount())

	ended := f.calls.endedCalls()
	require.Len(t, ended, 1)
	assert.Equal(t, CallReasonDeclined, ended[0].reason)
	assert.Zero(t, ended[0].duration)
}

func TestCallRespondValidation(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)

	var notFound *NotFoundError

	// Only the callee may answer.
	require.ErrorAs(t, f.machine.Respond(ctx, callID, f.callerID, true), &notFound)

	// Unknown call id.
	require.ErrorAs(t, f.machine.Respond(ctx, uuid.New(), f.calleeID, true), &notFound)

	// Answering twice: the first accept leaves ringing, so the second fails.
	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))
	require.ErrorAs(t, f.machine.Respond(ctx, callID, f.calleeID, true), &notFound)
}

func TestCallEndByParticipantRejectsOutsiders(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)
	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))

	// Someone outside the call cannot hang it up.
	var notFound *NotFoundError
	require.ErrorAs(t, f.machine.EndByParticipant(ctx, callID, uuid.New(), CallReasonCompleted), &notFound)
	assert.Equal(t, 1, f.machine.LiveCount(), "outsider must not end the call")
	assert.Empty(t, f.calls.endedCalls())

	// Either participant can.
	require.NoError(t, f.machine.EndByParticipant(ctx, callID, f.callerID, CallReasonCompleted))
	assert.Zero(t, f.machine.LiveCount())

	// Once ended, the call is gone for everyone.
	require.ErrorAs(t, f.machine.EndByParticipant(ctx, callID, f.calleeID, CallReasonCompleted), &notFound)
	assert.Len(t, f.calls.endedCalls(), 1)
}

func TestCallSubSecondDurationRecordsOneSecond(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)
	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))

	// Hang up immediately; the record must still be distinguishable from a
	// call that was never accepted.
	require.True(t, f.machine.End(ctx, callID, CallReasonCompleted))

	ended := f.calls.endedCalls()
	require.Len(t, ended, 1)
	assert.Equal(t, 1, ended[0].duration)
}

func TestCallRingTimeout(t *testing.T) {
	f := newCallFixture(t, 30*time.Millisecond)
	ctx := context.Background()

	_, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)

	waitForEvent(t, f.caller, EventCallEnded, time.Second)
	assert.Zero(t, f.machine.LiveCount())

	ended := f.calls.endedCalls()
	require.Len(t, ended, 1)
	assert.Equal(t, CallReasonTimeout, ended[0].reason)
}

func TestCallTimeoutDoesNotFireAfterAccept(t *testing.T) {
	f := newCallFixture(t, 40*time.Millisecond)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)
	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))

	// Let the stale ring timer fire.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, f.machine.LiveCount(), "accepted call survives the stale ring timer")
	assert.Empty(t, f.calls.endedCalls())
}

func TestCallParticipantDisconnect(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	ctx := context.Background()

	callID, err := f.machine.Initiate(ctx, f.callerID, f.calleeID, f.chatID, false)
	require.NoError(t, err)
	require.NoError(t, f.machine.Respond(ctx, callID, f.calleeID, true))

	f.machine.OnParticipantDisconnect(ctx, f.calleeID)
	assert.Zero(t, f.machine.LiveCount())

	ended := f.calls.endedCalls()
	require.Len(t, ended, 1)
	assert.Equal(t, CallReasonDisconnected, ended[0].reason)

	// No live call for this user: nothing happens.
	f.machine.OnParticipantDisconnect(ctx, f.calleeID)
	assert.Len(t, f.calls.endedCalls(), 1)
}
