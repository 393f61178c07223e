package realtime

import (
	"encoding/json"

	"chatwave-be/internal/pkg/logger"

	"github.com/google/uuid"
)

// SignalingRelay forwards call-setup payloads (offer/answer/ICE) point to
// point. It never inspects the payload; it is a pure routing function
// keyed by userId. Delivery is best-effort: an offline target means the
// payload is dropped and the call simply fails to connect, which the
// client detects via its own timeout.
type SignalingRelay struct {
	dir    directory
	logger logger.ILogger
}

func NewSignalingRelay(dir directory, log logger.ILogger) *SignalingRelay {
	return &SignalingRelay{dir: dir, logger: log}
}

func (r *SignalingRelay) Relay(kind string, fromUserID, toUserID uuid.UUID, signal json.RawMessage) {
	client, online := r.dir.ClientByUser(toUserID)
	if !online {
		r.logger.Debug("Signaling", "Dropping signal for offline target", map[string]interface{}{
			"kind": kind, "from": fromUserID, "to": toUserID,
		})
		return
	}
	client.enqueue(marshalEvent(kind, map[string]interface{}{
		"senderId": fromUserID,
		"signal":   signal,
	}))
}
