package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
)

// ItemInfo is the stock service's view of an item.
type ItemInfo struct {
	Stock int64 `json:"stock"`
	Price int64 `json:"price"`
}

type StockClient struct{ c client }

func NewStockClient(o Options) *StockClient { return &StockClient{c: newClient(o)} }

var _ checkout.Stock = (*StockClient)(nil)

// Find returns checkout.ErrItemNotFound for a 4xx reply.
func (s *StockClient) Find(ctx context.Context, itemID string) (ItemInfo, error) {
	r, err := s.c.get(ctx, s.c.url("stock", "find", itemID))
	if err != nil {
		return ItemInfo{}, err
	}
	if !ok(r.status) {
		return ItemInfo{}, fmt.Errorf("%w: %s (status %d)", checkout.ErrItemNotFound, itemID, r.status)
	}
	var info ItemInfo
	if err := json.Unmarshal(r.body, &info); err != nil {
		return ItemInfo{}, fmt.Errorf("%w: decode item %s: %v", checkout.ErrUnavailable, itemID, err)
	}
	return info, nil
}

// Subtract returns checkout.ErrInsufficientStock for a 4xx reply.
func (s *StockClient) Subtract(ctx context.Context, itemID string, quantity int64) error {
	r, err := s.c.post(ctx, s.c.url("stock", "subtract", itemID, strconv.FormatInt(quantity, 10)))
	if err != nil {
		return err
	}
	if !ok(r.status) {
		return fmt.Errorf("%w: item %s quantity %d (status %d)", checkout.ErrInsufficientStock, itemID, quantity, r.status)
	}
	return nil
}

func (s *StockClient) Add(ctx context.Context, itemID string, quantity int64) error {
	r, err := s.c.post(ctx, s.c.url("stock", "add", itemID, strconv.FormatInt(quantity, 10)))
	if err != nil {
		return err
	}
	if !ok(r.status) {
		return fmt.Errorf("stock add %s: status %d: %s", itemID, r.status, r.body)
	}
	return nil
}
