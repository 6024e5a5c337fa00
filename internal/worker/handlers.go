package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
	"github.com/mennohie/wdm-project-group-9/internal/remote"
)

// ItemFinder looks up an item's current price.
type ItemFinder interface {
	Find(ctx context.Context, itemID string) (remote.ItemInfo, error)
}

type ItemAdder interface {
	AddItem(ctx context.Context, orderID, itemID string, quantity, price int64) (orders.Order, error)
}

type OrderReader interface {
	Get(ctx context.Context, orderID string) (orders.Order, error)
}

// Saga runs one checkout to a terminal result.
type Saga interface {
	Checkout(ctx context.Context, req checkout.Request) checkout.Result
}

// storeOutcome classifies order store errors.
func storeOutcome(err error) Outcome {
	if errors.Is(err, orders.ErrStoreUnavailable) || errors.Is(err, orders.ErrConflict) {
		return Retryable
	}
	return PermanentFailure
}

// AddItemHandler handles add-item(order_id, item_id, quantity).
type AddItemHandler struct {
	Items  ItemFinder
	Orders ItemAdder
	Log    *slog.Logger
}

func (h *AddItemHandler) Handle(ctx context.Context, env orders.Envelope) (Outcome, error) {
	args, err := env.AddItemArgs()
	if err != nil {
		return PermanentFailure, err
	}
	if args.Quantity <= 0 {
		return PermanentFailure, fmt.Errorf("%w: %d", orders.ErrInvalidQuantity, args.Quantity)
	}

	item, err := h.Items.Find(ctx, args.ItemID)
	if err != nil {
		if errors.Is(err, checkout.ErrItemNotFound) {
			return PermanentFailure, err
		}
		return Retryable, err
	}

	o, err := h.Orders.AddItem(ctx, args.OrderID, args.ItemID, args.Quantity, item.Price)
	if err != nil {
		return storeOutcome(err), err
	}
	if h.Log != nil {
		h.Log.DebugContext(ctx, "item added", "order_id", o.ID, "item_id", args.ItemID,
			"quantity", args.Quantity, "total_cost", o.TotalCost)
	}
	return Success, nil
}

// CheckoutHandler handles checkout(order_id, user_id, items, total_cost).
// Items and cost come from the envelope; the paid flag is read from the
// store at execution time.
type CheckoutHandler struct {
	Orders OrderReader
	Saga   Saga
	Log    *slog.Logger
}

func (h *CheckoutHandler) Handle(ctx context.Context, env orders.Envelope) (Outcome, error) {
	args, err := env.CheckoutArgs()
	if err != nil {
		return PermanentFailure, err
	}
	current, err := h.Orders.Get(ctx, args.OrderID)
	if err != nil {
		return storeOutcome(err), err
	}

	res := h.Saga.Checkout(ctx, checkout.Request{
		OrderID:       args.OrderID,
		CorrelationID: env.CorrelationID,
		UserID:        args.UserID,
		Items:         args.Items,
		TotalCost:     args.TotalCost,
		Paid:          current.Paid,
	})
	return SagaOutcome(res), resultErr(res)
}

// SagaOutcome maps a saga result onto a delivery outcome. Only an aborted
// saga whose cause was an unreachable collaborator and whose compensation
// fully succeeded is worth another attempt.
func SagaOutcome(res checkout.Result) Outcome {
	switch res.Status {
	case checkout.ResultCompleted:
		return Success
	case checkout.ResultAborted:
		if res.CompensationErr == nil && errors.Is(res.Cause, checkout.ErrUnavailable) {
			return Retryable
		}
	}
	return PermanentFailure
}

func resultErr(res checkout.Result) error {
	if res.Completed() {
		return nil
	}
	err := fmt.Errorf("checkout %s: %w", res.Status, res.Cause)
	if res.CompensationErr != nil {
		err = errors.Join(err, res.CompensationErr)
	}
	return err
}
