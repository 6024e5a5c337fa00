package orders

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrAlreadyExists    = errors.New("order already exists")
	ErrStoreUnavailable = errors.New("order store unavailable")
	ErrInvalidQuantity  = errors.New("quantity must be positive")

	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("order update conflict")
)

// Store is the gateway to the external key-value store holding orders.
// Get/Set/Create/BulkSet replace whole snapshots; AddItem and MarkPaid are
// read-modify-write with optimistic concurrency on the order key.
type Store interface {
	Get(ctx context.Context, orderID string) (Order, error)
	Set(ctx context.Context, orderID string, o Order) error
	Create(ctx context.Context, orderID string, o Order) error
	BulkSet(ctx context.Context, orders map[string]Order) error
	AddItem(ctx context.Context, orderID, itemID string, quantity, price int64) (Order, error)
	MarkPaid(ctx context.Context, orderID string) (Order, error)
}
