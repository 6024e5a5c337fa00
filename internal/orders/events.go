package orders

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Op is the closed set of operations carried by an Envelope.
type Op string

const (
	OpAddItem  Op = "add-item"
	OpCheckout Op = "checkout"
)

// Ops lists every operation a worker must be able to dispatch.
var Ops = []Op{OpAddItem, OpCheckout}

func (op Op) Known() bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the unit of work placed on a partition queue. It is never
// mutated after publishing; redelivery carries the same bytes.
type Envelope struct {
	Operation     Op                `json:"operation"`
	Args          []json.RawMessage `json:"args"`
	CorrelationID string            `json:"correlation_id"`
	ReplyTo       string            `json:"reply_to"`
}

// Arg decodes argument i into dst.
func (e Envelope) Arg(i int, dst any) error {
	if i < 0 || i >= len(e.Args) {
		return fmt.Errorf("%w: %s wants argument %d, got %d", ErrMalformedEnvelope, e.Operation, i, len(e.Args))
	}
	if err := json.Unmarshal(e.Args[i], dst); err != nil {
		return fmt.Errorf("%w: %s argument %d: %v", ErrMalformedEnvelope, e.Operation, i, err)
	}
	return nil
}

// Validate checks the fields required to dispatch and report on an envelope.
func (e Envelope) Validate() error {
	if e.Operation == "" {
		return fmt.Errorf("%w: missing operation", ErrMalformedEnvelope)
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("%w: missing correlation_id", ErrMalformedEnvelope)
	}
	return nil
}

func newEnvelope(op Op, replyTo string, args ...any) (Envelope, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s argument: %w", op, err)
		}
		raw = append(raw, b)
	}
	return Envelope{
		Operation:     op,
		Args:          raw,
		CorrelationID: uuid.NewString(),
		ReplyTo:       replyTo,
	}, nil
}

// NewAddItemEnvelope builds add-item(order_id, item_id, quantity).
func NewAddItemEnvelope(orderID, itemID string, quantity int64, replyTo string) (Envelope, error) {
	return newEnvelope(OpAddItem, replyTo, orderID, itemID, quantity)
}

// NewCheckoutEnvelope builds checkout(order_id, user_id, items, total_cost)
// from the order as currently recorded.
func NewCheckoutEnvelope(o Order, replyTo string) (Envelope, error) {
	return newEnvelope(OpCheckout, replyTo, o.ID, o.UserID, o.Items, o.TotalCost)
}

// AddItemArgs is the decoded form of an add-item envelope.
type AddItemArgs struct {
	OrderID  string
	ItemID   string
	Quantity int64
}

func (e Envelope) AddItemArgs() (AddItemArgs, error) {
	var a AddItemArgs
	if err := e.Arg(0, &a.OrderID); err != nil {
		return a, err
	}
	if err := e.Arg(1, &a.ItemID); err != nil {
		return a, err
	}
	if err := e.Arg(2, &a.Quantity); err != nil {
		return a, err
	}
	return a, nil
}

// CheckoutArgs is the decoded form of a checkout envelope.
type CheckoutArgs struct {
	OrderID   string
	UserID    string
	Items     []Item
	TotalCost int64
}

func (e Envelope) CheckoutArgs() (CheckoutArgs, error) {
	var a CheckoutArgs
	if err := e.Arg(0, &a.OrderID); err != nil {
		return a, err
	}
	if err := e.Arg(1, &a.UserID); err != nil {
		return a, err
	}
	if err := e.Arg(2, &a.Items); err != nil {
		return a, err
	}
	if err := e.Arg(3, &a.TotalCost); err != nil {
		return a, err
	}
	return a, nil
}
