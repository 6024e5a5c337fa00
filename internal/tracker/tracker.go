// Package tracker keeps the client-visible status of each published request.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
	"github.com/mennohie/wdm-project-group-9/internal/redisx"
)

var ErrInvalidStatus = errors.New("invalid request status")

// Tracker stores request_status:{correlation_id}. A missing key reads as
// Pending. Writes are last-writer-wins.
type Tracker struct {
	RDB *redis.Client
	TTL time.Duration
}

func New(rdb *redis.Client) *Tracker {
	return &Tracker{RDB: rdb, TTL: redisx.TTLRequestStatus}
}

func key(correlationID string) string {
	return fmt.Sprintf(redisx.KeyRequestStatus, correlationID)
}

func (t *Tracker) Record(ctx context.Context, correlationID string, status orders.RequestStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := t.RDB.Set(ctx, key(correlationID), string(status), t.TTL).Err(); err != nil {
		return fmt.Errorf("record status %s: %w", correlationID, err)
	}
	return nil
}

func (t *Tracker) Lookup(ctx context.Context, correlationID string) (orders.RequestStatus, error) {
	v, err := t.RDB.Get(ctx, key(correlationID)).Result()
	if errors.Is(err, redis.Nil) {
		return orders.StatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup status %s: %w", correlationID, err)
	}
	return orders.RequestStatus(v), nil
}
