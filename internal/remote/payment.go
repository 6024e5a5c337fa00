package remote

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
)

type PaymentClient struct{ c client }

func NewPaymentClient(o Options) *PaymentClient { return &PaymentClient{c: newClient(o)} }

var _ checkout.Payment = (*PaymentClient)(nil)

// Pay returns checkout.ErrInsufficientCredit for a 4xx reply.
func (p *PaymentClient) Pay(ctx context.Context, userID string, amount int64) error {
	r, err := p.c.post(ctx, p.c.url("payment", "pay", userID, strconv.FormatInt(amount, 10)))
	if err != nil {
		return err
	}
	if !ok(r.status) {
		return fmt.Errorf("%w: user %s amount %d (status %d)", checkout.ErrInsufficientCredit, userID, amount, r.status)
	}
	return nil
}

func (p *PaymentClient) AddFunds(ctx context.Context, userID string, amount int64) error {
	r, err := p.c.post(ctx, p.c.url("payment", "add_funds", userID, strconv.FormatInt(amount, 10)))
	if err != nil {
		return err
	}
	if !ok(r.status) {
		return fmt.Errorf("payment add_funds %s: status %d: %s", userID, r.status, r.body)
	}
	return nil
}
