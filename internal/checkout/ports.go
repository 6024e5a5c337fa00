package checkout

import (
	"context"
	"errors"
)

// Collaborator errors. Implementations wrap these so callers can tell a
// business refusal from a transport failure with errors.Is.
var (
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrItemNotFound       = errors.New("item not found")
	ErrUnavailable        = errors.New("collaborator unavailable")
)

// Stock is the stock service as seen by the saga.
type Stock interface {
	Subtract(ctx context.Context, itemID string, quantity int64) error
	Add(ctx context.Context, itemID string, quantity int64) error
}

// Payment is the payment service as seen by the saga.
type Payment interface {
	Pay(ctx context.Context, userID string, amount int64) error
	AddFunds(ctx context.Context, userID string, amount int64) error
}

// Finalizer marks the order paid in the order store.
type Finalizer interface {
	MarkPaid(ctx context.Context, orderID string) error
}

// FinalizerFunc adapts a function to Finalizer.
type FinalizerFunc func(ctx context.Context, orderID string) error

func (f FinalizerFunc) MarkPaid(ctx context.Context, orderID string) error { return f(ctx, orderID) }
