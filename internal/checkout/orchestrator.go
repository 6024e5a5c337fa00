// Package checkout runs the checkout saga: pay, subtract stock per distinct
// item, mark the order paid. A failure after the payment went through
// refunds it and restocks every line already subtracted in this execution.
//
// Compensation is best-effort. Each compensating call is attempted once on a
// context that ignores cancellation; failures are logged, counted and
// reported in Result.CompensationErr but never retried here.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mennohie/wdm-project-group-9/internal/metrics"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

const tracerName = "github.com/mennohie/wdm-project-group-9/internal/checkout"

// Request carries the order as recorded when checkout was requested, plus
// the paid flag as currently stored.
type Request struct {
	OrderID       string
	CorrelationID string
	UserID        string
	Items         []orders.Item
	TotalCost     int64
	Paid          bool
}

type ResultStatus string

const (
	ResultCompleted       ResultStatus = "completed"
	ResultRejected        ResultStatus = "rejected"
	ResultPaymentDeclined ResultStatus = "payment_declined"
	ResultOutOfStock      ResultStatus = "out_of_stock"
	ResultFinalizeFailed  ResultStatus = "finalize_failed"
	ResultAborted         ResultStatus = "aborted"
)

// Result is the terminal outcome of one saga execution.
type Result struct {
	Status ResultStatus
	// Cause is the step error that ended a non-completed saga.
	Cause error
	// CompensationErr joins the failures of refund/restock calls.
	CompensationErr error
	// Debited is the ledger at termination (already restocked unless completed).
	Debited Ledger
	// Refunded reports whether a refund was attempted.
	Refunded bool
}

func (r Result) Completed() bool { return r.Status == ResultCompleted }

type Orchestrator struct {
	Stock   Stock
	Payment Payment
	Orders  Finalizer
	Journal Journal
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Checkout executes the saga once. It never returns with stock or credit
// debited unless Status is ResultCompleted (modulo failed compensations).
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (res Result) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "checkout.saga", trace.WithAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.String("user_id", req.UserID),
	))
	x := &execution{o: o, req: req, log: o.logger().With("order_id", req.OrderID, "user_id", req.UserID)}
	defer func() {
		if p := recover(); p != nil {
			res = x.abort(ctx, ResultAborted, fmt.Errorf("checkout panic: %v", p))
		}
		o.finish(ctx, x, res, span)
	}()

	if req.Paid || len(req.Items) == 0 {
		return Result{Status: ResultRejected, Cause: fmt.Errorf("%w: %s", orders.ErrCheckoutNotAllowed, req.OrderID)}
	}
	return x.run(ctx)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

func (o *Orchestrator) finish(ctx context.Context, x *execution, res Result, span trace.Span) {
	defer span.End()
	span.SetAttributes(attribute.String("result", string(res.Status)))
	if res.Completed() {
		span.SetStatus(codes.Ok, "")
		x.log.InfoContext(ctx, "checkout completed", "total_cost", x.req.TotalCost)
	} else {
		if res.Cause != nil {
			span.RecordError(res.Cause)
		}
		span.SetStatus(codes.Error, string(res.Status))
		x.log.InfoContext(ctx, "checkout not completed", "result", res.Status, "err", res.Cause)
	}
	o.Metrics.SagaResult(string(res.Status))
	detail := string(res.Status)
	if res.CompensationErr != nil {
		detail += ": " + res.CompensationErr.Error()
	}
	x.journal(ctx, StepResult, StateFinished, detail)
}

// execution is the per-run state: whether the payment went through and which
// lines were subtracted so far.
type execution struct {
	o      *Orchestrator
	req    Request
	log    *slog.Logger
	paid   bool
	ledger Ledger
}

func (x *execution) run(ctx context.Context) Result {
	err := x.step(ctx, StepPay, "", func(ctx context.Context) error {
		return x.o.Payment.Pay(ctx, x.req.UserID, x.req.TotalCost)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredit) {
			return Result{Status: ResultPaymentDeclined, Cause: err}
		}
		return Result{Status: ResultAborted, Cause: err}
	}
	x.paid = true

	for _, line := range Aggregate(x.req.Items) {
		err := x.step(ctx, StepSubtract, line.ItemID, func(ctx context.Context) error {
			return x.o.Stock.Subtract(ctx, line.ItemID, line.Quantity)
		})
		if err != nil {
			status := ResultAborted
			if errors.Is(err, ErrInsufficientStock) {
				status = ResultOutOfStock
			}
			return x.abort(ctx, status, err)
		}
		x.ledger = append(x.ledger, line)
	}

	err = x.step(ctx, StepFinalize, "", func(ctx context.Context) error {
		return x.o.Orders.MarkPaid(ctx, x.req.OrderID)
	})
	if err != nil {
		return x.abort(ctx, ResultFinalizeFailed, err)
	}
	return Result{Status: ResultCompleted, Debited: x.ledger}
}

func (x *execution) step(ctx context.Context, name, itemID string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "checkout."+name)
	defer span.End()
	if itemID != "" {
		span.SetAttributes(attribute.String("item_id", itemID))
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.journal(ctx, name, StateFailed, joinDetail(itemID, err.Error()))
		return err
	}
	x.journal(ctx, name, StateDone, itemID)
	return nil
}

// abort refunds the payment (if taken) and restocks the ledger.
func (x *execution) abort(ctx context.Context, status ResultStatus, cause error) Result {
	x.log.WarnContext(ctx, "checkout failed, compensating",
		"result", status, "err", cause, "refund", x.paid, "restock_lines", len(x.ledger))

	cctx := context.WithoutCancel(ctx)
	var errs []error
	if x.paid {
		err := x.o.Payment.AddFunds(cctx, x.req.UserID, x.req.TotalCost)
		x.compensated(cctx, StepRefund, "", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("refund %d to user %s: %w", x.req.TotalCost, x.req.UserID, err))
		}
	}
	for _, line := range x.ledger {
		err := x.o.Stock.Add(cctx, line.ItemID, line.Quantity)
		x.compensated(cctx, StepRestock, line.ItemID, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("restock %d of item %s: %w", line.Quantity, line.ItemID, err))
		}
	}
	return Result{
		Status:          status,
		Cause:           cause,
		CompensationErr: errors.Join(errs...),
		Debited:         x.ledger,
		Refunded:        x.paid,
	}
}

func (x *execution) compensated(ctx context.Context, step, itemID string, err error) {
	x.o.Metrics.Compensation(step, err)
	if err != nil {
		x.log.ErrorContext(ctx, "CRITICAL: compensation failed", "step", step, "item_id", itemID, "err", err)
		x.journal(ctx, step, StateFailed, joinDetail(itemID, err.Error()))
		return
	}
	x.journal(ctx, step, StateCompensated, itemID)
}

func (x *execution) journal(ctx context.Context, step string, state State, detail string) {
	if x.o.Journal == nil {
		return
	}
	if err := x.o.Journal.Append(context.WithoutCancel(ctx), newEntry(ctx, x.req, step, state, detail)); err != nil {
		x.log.WarnContext(ctx, "saga journal append failed", "step", step, "err", err)
	}
}

func joinDetail(itemID, msg string) string {
	if itemID == "" {
		return msg
	}
	return itemID + ": " + msg
}
