package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mennohie/wdm-project-group-9/internal/redisx"
)

const casRetries = 5

// RedisStore keeps each order as a msgpack blob keyed by the bare order id.
type RedisStore struct{ RDB *redis.Client }

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{RDB: rdb} }

var _ Store = (*RedisStore)(nil)

func key(orderID string) string { return fmt.Sprintf(redisx.KeyOrder, orderID) }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

func encodeOrder(o Order) ([]byte, error) {
	if o.Items == nil {
		o.Items = []Item{}
	}
	return msgpack.Marshal(o)
}

func decodeOrder(orderID string, b []byte) (Order, error) {
	var o Order
	if err := msgpack.Unmarshal(b, &o); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	o.ID = orderID
	return o, nil
}

func (s *RedisStore) Get(ctx context.Context, orderID string) (Order, error) {
	b, err := s.RDB.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, orderID)
	}
	if err != nil {
		return Order{}, unavailable("get", err)
	}
	return decodeOrder(orderID, b)
}

func (s *RedisStore) Set(ctx context.Context, orderID string, o Order) error {
	b, err := encodeOrder(o)
	if err != nil {
		return err
	}
	if err := s.RDB.Set(ctx, key(orderID), b, 0).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, orderID string, o Order) error {
	b, err := encodeOrder(o)
	if err != nil {
		return err
	}
	ok, err := s.RDB.SetNX(ctx, key(orderID), b, 0).Result()
	if err != nil {
		return unavailable("create", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, orderID)
	}
	return nil
}

func (s *RedisStore) BulkSet(ctx context.Context, orders map[string]Order) error {
	if len(orders) == 0 {
		return nil
	}
	kv := make(map[string]any, len(orders))
	for id, o := range orders {
		b, err := encodeOrder(o)
		if err != nil {
			return err
		}
		kv[key(id)] = b
	}
	if err := s.RDB.MSet(ctx, kv).Err(); err != nil {
		return unavailable("mset", err)
	}
	return nil
}

// AddItem appends one line and adds quantity*price to the total.
func (s *RedisStore) AddItem(ctx context.Context, orderID, itemID string, quantity, price int64) (Order, error) {
	if quantity <= 0 {
		return Order{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return s.update(ctx, orderID, func(o *Order) error {
		o.Items = append(o.Items, Item{ItemID: itemID, Quantity: quantity})
		o.TotalCost += quantity * price
		return nil
	})
}

func (s *RedisStore) MarkPaid(ctx context.Context, orderID string) (Order, error) {
	return s.update(ctx, orderID, func(o *Order) error {
		o.Paid = true
		return nil
	})
}

// update runs mutate inside WATCH/MULTI on the order key, retrying a few
// times when another writer changed the key in between.
func (s *RedisStore) update(ctx context.Context, orderID string, mutate func(*Order) error) (Order, error) {
	k := key(orderID)
	var out Order

	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrNotFound, orderID)
		}
		if err != nil {
			return unavailable("get", err)
		}
		o, err := decodeOrder(orderID, b)
		if err != nil {
			return err
		}
		if err := mutate(&o); err != nil {
			return err
		}
		enc, err := encodeOrder(o)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, k, enc, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = o
		return nil
	}

	op := func() error {
		err := s.RDB.Watch(ctx, txf, k)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			return err
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrStoreUnavailable):
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(unavailable("update", err))
		}
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), casRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return Order{}, fmt.Errorf("%w: %s", ErrConflict, orderID)
		}
		return Order{}, err
	}
	return out, nil
}
