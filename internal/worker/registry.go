package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Handler executes one operation. The error explains a non-success outcome
// and is only logged; the Outcome alone decides ack or requeue.
type Handler interface {
	Handle(ctx context.Context, env orders.Envelope) (Outcome, error)
}

type HandlerFunc func(ctx context.Context, env orders.Envelope) (Outcome, error)

func (f HandlerFunc) Handle(ctx context.Context, env orders.Envelope) (Outcome, error) {
	return f(ctx, env)
}

// Registry maps every orders.Op to exactly one handler. It is fixed at
// construction.
type Registry struct {
	handlers map[orders.Op]Handler
}

func NewRegistry(addItem, checkout Handler) *Registry {
	if addItem == nil || checkout == nil {
		panic("worker: registry needs a handler for every operation")
	}
	return &Registry{handlers: map[orders.Op]Handler{
		orders.OpAddItem:  addItem,
		orders.OpCheckout: checkout,
	}}
}

func (r *Registry) Lookup(op orders.Op) (Handler, bool) {
	h, ok := r.handlers[op]
	return h, ok
}

// Dispatch runs the handler for env.Operation. Unknown operations and
// handler panics are permanent failures.
func (r *Registry) Dispatch(ctx context.Context, env orders.Envelope) (out Outcome, err error) {
	h, ok := r.Lookup(env.Operation)
	if !ok {
		return PermanentFailure, fmt.Errorf("%w: %q", ErrUnknownOperation, env.Operation)
	}
	defer func() {
		if p := recover(); p != nil {
			out, err = PermanentFailure, fmt.Errorf("%s handler panic: %v", env.Operation, p)
		}
	}()
	return h.Handle(ctx, env)
}
