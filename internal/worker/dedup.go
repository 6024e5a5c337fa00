package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
	"github.com/mennohie/wdm-project-group-9/internal/redisx"
)

// Deduper remembers the terminal status of each correlation id so that a
// redelivered envelope is acknowledged without running its handler again.
type Deduper interface {
	Seen(ctx context.Context, correlationID string) (orders.RequestStatus, bool, error)
	Remember(ctx context.Context, correlationID string, status orders.RequestStatus) error
}

type RedisDeduper struct {
	RDB     *redis.Client
	Service string
	TTL     time.Duration
}

func NewRedisDeduper(rdb *redis.Client, service string) *RedisDeduper {
	return &RedisDeduper{RDB: rdb, Service: service, TTL: redisx.TTLDedup}
}

func (d *RedisDeduper) key(correlationID string) string {
	return fmt.Sprintf(redisx.KeyDedup, d.Service, correlationID)
}

func (d *RedisDeduper) Seen(ctx context.Context, correlationID string) (orders.RequestStatus, bool, error) {
	v, err := d.RDB.Get(ctx, d.key(correlationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orders.RequestStatus(v), true, nil
}

// Remember keeps the first terminal status recorded for a correlation id.
func (d *RedisDeduper) Remember(ctx context.Context, correlationID string, status orders.RequestStatus) error {
	return d.RDB.SetNX(ctx, d.key(correlationID), string(status), d.TTL).Err()
}
