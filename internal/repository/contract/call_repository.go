package contract

import (
	"context"
	"time"

	"chatwave-be/internal/entity"

	"github.com/google/uuid"
)

type CallRepository interface {
	Create(ctx context.Context, call *entity.Call) error
	// End finalizes the durable record. Idempotency at the record level is the
	// caller's concern; End simply overwrites the terminal fields.
	End(ctx context.Context, id uuid.UUID, reason string, duration int, acceptedAt *time.Time, endedAt time.Time) error
}
