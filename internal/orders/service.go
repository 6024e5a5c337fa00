package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"
)

var ErrCheckoutNotAllowed = errors.New("order already paid or empty")

// Publisher hands an envelope to the broker on the named partition queue.
type Publisher interface {
	PublishEnvelope(ctx context.Context, queue string, env Envelope) error
}

// Service backs the client endpoints: it owns order creation and turns
// mutation requests into envelopes routed by the owning user's partition.
type Service struct {
	Store      Store
	Publisher  Publisher
	Partitions int
	ReplyTo    string
}

func (s *Service) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()
	if err := s.Store.Create(ctx, id, NewOrder(id, userID)); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Service) Find(ctx context.Context, orderID string) (Order, error) {
	return s.Store.Get(ctx, orderID)
}

// BatchInit seeds n orders keyed "0".."n-1", each holding two random items
// of itemPrice for a random user. Used for load tests.
func (s *Service) BatchInit(ctx context.Context, n, nItems, nUsers int, itemPrice int64) error {
	if n < 0 || nItems <= 0 || nUsers <= 0 {
		return fmt.Errorf("batch init: invalid sizes n=%d items=%d users=%d", n, nItems, nUsers)
	}
	batch := make(map[string]Order, n)
	for i := range n {
		id := strconv.Itoa(i)
		batch[id] = Order{
			ID:     id,
			UserID: strconv.Itoa(rand.IntN(nUsers)),
			Items: []Item{
				{ItemID: strconv.Itoa(rand.IntN(nItems)), Quantity: 1},
				{ItemID: strconv.Itoa(rand.IntN(nItems)), Quantity: 1},
			},
			TotalCost: 2 * itemPrice,
		}
	}
	return s.Store.BulkSet(ctx, batch)
}

// QueueForOrder routes by the order's owning user, not by order id.
func (s *Service) QueueForOrder(ctx context.Context, orderID string) (string, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	return QueueFor(o.UserID, s.Partitions), nil
}

// RequestAddItem enqueues add-item and returns its correlation id.
func (s *Service) RequestAddItem(ctx context.Context, orderID, itemID string, quantity int64) (string, error) {
	if quantity <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	queue, err := s.QueueForOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	env, err := NewAddItemEnvelope(orderID, itemID, quantity, s.ReplyTo)
	if err != nil {
		return "", err
	}
	if err := s.Publisher.PublishEnvelope(ctx, queue, env); err != nil {
		return "", err
	}
	return env.CorrelationID, nil
}

// RequestCheckout enqueues checkout for the order as currently recorded.
// Paid or empty orders are refused here; the saga checks again on delivery.
func (s *Service) RequestCheckout(ctx context.Context, orderID string) (string, error) {
	o, err := s.Store.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Paid || o.Empty() {
		return "", fmt.Errorf("%w: %s", ErrCheckoutNotAllowed, orderID)
	}
	env, err := NewCheckoutEnvelope(o, s.ReplyTo)
	if err != nil {
		return "", err
	}
	if err := s.Publisher.PublishEnvelope(ctx, QueueFor(o.UserID, s.Partitions), env); err != nil {
		return "", err
	}
	return env.CorrelationID, nil
}
