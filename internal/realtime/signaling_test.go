package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingRelayDelivers(t *testing.T) {
	dir := newFakeDirectory()
	senderID, targetID := uuid.New(), uuid.New()
	target := newTestClient()
	dir.put(targetID, target)

	relay := NewSignalingRelay(dir, nopLogger{})
	signal := json.RawMessage(`{"sdp":"v=0","type":"offer"}`)
	relay.Relay(EventWebRTCOffer, senderID, targetID, signal)

	frame := waitForEvent(t, target, EventWebRTCOffer, time.Second)
	var payload struct {
		SenderID uuid.UUID       `json:"senderId"`
		Signal   json.RawMessage `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, senderID, payload.SenderID)
	assert.JSONEq(t, string(signal), string(payload.Signal), "payload is forwarded verbatim")
}

func TestSignalingRelayDropsOfflineTarget(t *testing.T) {
	relay := NewSignalingRelay(newFakeDirectory(), nopLogger{})

	// Must not panic or block; the payload is simply dropped.
	relay.Relay(EventWebRTCCandidate, uuid.New(), uuid.New(), json.RawMessage(`{"candidate":"c"}`))
}
