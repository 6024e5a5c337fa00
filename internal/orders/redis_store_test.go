package orders_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

func newStore(t *testing.T) (*orders.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return orders.NewRedisStore(rdb), mr
}

func TestRedisStore_CreateGet(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "o1", orders.NewOrder("o1", "u1")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("o1") {
		t.Errorf("order not stored under its id, keys = %v", mr.Keys())
	}
	got, err := s.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "o1" || got.UserID != "u1" || got.Paid || got.TotalCost != 0 || len(got.Items) != 0 {
		t.Errorf("got %+v", got)
	}

	if err := s.Create(ctx, "o1", orders.NewOrder("o1", "u2")); !errors.Is(err, orders.ErrAlreadyExists) {
		t.Errorf("second Create: want ErrAlreadyExists, got %v", err)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	s := orders.NewRedisStore(rdb)
	if _, err := s.Get(context.Background(), "o1"); !errors.Is(err, orders.ErrStoreUnavailable) {
		t.Errorf("want ErrStoreUnavailable, got %v", err)
	}
}

func TestRedisStore_AddItemAccumulates(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_ = s.Create(ctx, "o1", orders.NewOrder("o1", "u1"))

	if _, err := s.AddItem(ctx, "o1", "a", 2, 10); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	o, err := s.AddItem(ctx, "o1", "a", 1, 12)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	// Duplicates stay separate lines; cost uses the price at add time.
	if len(o.Items) != 2 || o.TotalCost != 2*10+1*12 {
		t.Errorf("got %+v", o)
	}
	stored, _ := s.Get(ctx, "o1")
	if stored.TotalCost != o.TotalCost || len(stored.Items) != 2 {
		t.Errorf("stored %+v", stored)
	}
}

func TestRedisStore_AddItemErrors(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	if _, err := s.AddItem(ctx, "missing", "a", 1, 1); !errors.Is(err, orders.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
	_ = s.Create(ctx, "o1", orders.NewOrder("o1", "u1"))
	if _, err := s.AddItem(ctx, "o1", "a", 0, 1); !errors.Is(err, orders.ErrInvalidQuantity) {
		t.Errorf("want ErrInvalidQuantity, got %v", err)
	}
}

func TestRedisStore_MarkPaid(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	_ = s.Create(ctx, "o1", orders.NewOrder("o1", "u1"))
	_, _ = s.AddItem(ctx, "o1", "a", 1, 5)

	o, err := s.MarkPaid(ctx, "o1")
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if !o.Paid || o.TotalCost != 5 || len(o.Items) != 1 {
		t.Errorf("got %+v", o)
	}
}

func TestRedisStore_BulkSetAndSet(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	batch := map[string]orders.Order{
		"0": {UserID: "u0", Items: []orders.Item{{ItemID: "1", Quantity: 1}}, TotalCost: 5},
		"1": {UserID: "u1"},
	}
	if err := s.BulkSet(ctx, batch); err != nil {
		t.Fatalf("BulkSet: %v", err)
	}
	for _, k := range []string{"0", "1"} {
		if !mr.Exists(k) {
			t.Errorf("batch order not stored under bare key %q, keys = %v", k, mr.Keys())
		}
	}
	o, err := s.Get(ctx, "0")
	if err != nil || o.UserID != "u0" || o.TotalCost != 5 {
		t.Fatalf("got %+v, %v", o, err)
	}

	o.Paid = true
	if err := s.Set(ctx, "0", o); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if o, _ := s.Get(ctx, "0"); !o.Paid {
		t.Error("Set did not replace the snapshot")
	}
}
