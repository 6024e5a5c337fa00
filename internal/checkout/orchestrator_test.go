package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

// --- Fakes ---

// world is an in-memory stock and credit ledger that records every call.
type world struct {
	mu     sync.Mutex
	stock  map[string]int64
	credit map[string]int64
	calls  []string

	subtractFn func(itemID string, qty int64) error
	payFn      func(userID string, amount int64) error
	addFn      func(itemID string, qty int64) error
	refundFn   func(userID string, amount int64) error
}

func newWorld() *world {
	return &world{stock: map[string]int64{}, credit: map[string]int64{}}
}

func (w *world) record(format string, args ...any) {
	w.calls = append(w.calls, fmt.Sprintf(format, args...))
}

func (w *world) Subtract(_ context.Context, itemID string, qty int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("subtract %s %d", itemID, qty)
	if w.subtractFn != nil {
		if err := w.subtractFn(itemID, qty); err != nil {
			return err
		}
	}
	if w.stock[itemID] < qty {
		return fmt.Errorf("%w: %s", checkout.ErrInsufficientStock, itemID)
	}
	w.stock[itemID] -= qty
	return nil
}

func (w *world) Add(_ context.Context, itemID string, qty int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("add %s %d", itemID, qty)
	if w.addFn != nil {
		if err := w.addFn(itemID, qty); err != nil {
			return err
		}
	}
	w.stock[itemID] += qty
	return nil
}

func (w *world) Pay(_ context.Context, userID string, amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("pay %s %d", userID, amount)
	if w.payFn != nil {
		if err := w.payFn(userID, amount); err != nil {
			return err
		}
	}
	if w.credit[userID] < amount {
		return fmt.Errorf("%w: %s", checkout.ErrInsufficientCredit, userID)
	}
	w.credit[userID] -= amount
	return nil
}

func (w *world) AddFunds(_ context.Context, userID string, amount int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record("refund %s %d", userID, amount)
	if w.refundFn != nil {
		if err := w.refundFn(userID, amount); err != nil {
			return err
		}
	}
	w.credit[userID] += amount
	return nil
}

type mockFinalizer struct {
	markPaidFn func(ctx context.Context, orderID string) error
	paid       []string
}

func (m *mockFinalizer) MarkPaid(ctx context.Context, orderID string) error {
	if m.markPaidFn != nil {
		if err := m.markPaidFn(ctx, orderID); err != nil {
			return err
		}
	}
	m.paid = append(m.paid, orderID)
	return nil
}

type memJournal struct {
	entries []checkout.Entry
}

func (j *memJournal) Append(_ context.Context, e checkout.Entry) error {
	j.entries = append(j.entries, e)
	return nil
}

func newOrchestrator(w *world, f *mockFinalizer, j *memJournal) *checkout.Orchestrator {
	o := &checkout.Orchestrator{
		Stock:   w,
		Payment: w,
		Orders:  f,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if j != nil {
		o.Journal = j
	}
	return o
}

func request(items ...orders.Item) checkout.Request {
	return checkout.Request{OrderID: "o1", CorrelationID: "c1", UserID: "u1", Items: items, TotalCost: 30}
}

func item(id string, qty int64) orders.Item { return orders.Item{ItemID: id, Quantity: qty} }

// --- Tests ---

func TestCheckout_Completed(t *testing.T) {
	w := newWorld()
	w.stock["a"], w.credit["u1"] = 5, 100
	f := &mockFinalizer{}
	j := &memJournal{}

	res := newOrchestrator(w, f, j).Checkout(context.Background(), request(item("a", 2), item("a", 1)))

	if res.Status != checkout.ResultCompleted || res.Cause != nil {
		t.Fatalf("result = %+v", res)
	}
	if w.stock["a"] != 2 || w.credit["u1"] != 70 {
		t.Errorf("stock=%d credit=%d, want 2 and 70", w.stock["a"], w.credit["u1"])
	}
	if len(f.paid) != 1 || f.paid[0] != "o1" {
		t.Errorf("finalized %v", f.paid)
	}
	// Duplicate lines are merged into one subtract call.
	want := []string{"pay u1 30", "subtract a 3"}
	if fmt.Sprint(w.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", w.calls, want)
	}
	last := j.entries[len(j.entries)-1]
	if last.Step != checkout.StepResult || last.State != checkout.StateFinished || last.CorrelationID != "c1" {
		t.Errorf("last journal entry %+v", last)
	}
}

func TestCheckout_RejectedMakesNoCalls(t *testing.T) {
	tests := []struct {
		name string
		req  checkout.Request
	}{
		{"already paid", func() checkout.Request { r := request(item("a", 1)); r.Paid = true; return r }()},
		{"empty", request()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld()
			f := &mockFinalizer{}
			res := newOrchestrator(w, f, nil).Checkout(context.Background(), tt.req)
			if res.Status != checkout.ResultRejected || !errors.Is(res.Cause, orders.ErrCheckoutNotAllowed) {
				t.Fatalf("result = %+v", res)
			}
			if len(w.calls) != 0 || len(f.paid) != 0 {
				t.Errorf("collaborators called: %v %v", w.calls, f.paid)
			}
		})
	}
}

func TestCheckout_PaymentDeclined(t *testing.T) {
	w := newWorld()
	w.stock["a"], w.credit["u1"] = 5, 10

	res := newOrchestrator(w, &mockFinalizer{}, nil).Checkout(context.Background(), request(item("a", 1)))

	if res.Status != checkout.ResultPaymentDeclined || !errors.Is(res.Cause, checkout.ErrInsufficientCredit) {
		t.Fatalf("result = %+v", res)
	}
	if res.Refunded || len(w.calls) != 1 || w.stock["a"] != 5 || w.credit["u1"] != 10 {
		t.Errorf("nothing may be debited or compensated: calls=%v", w.calls)
	}
}

func TestCheckout_PaymentUnavailableAborts(t *testing.T) {
	w := newWorld()
	w.payFn = func(string, int64) error { return checkout.ErrUnavailable }

	res := newOrchestrator(w, &mockFinalizer{}, nil).Checkout(context.Background(), request(item("a", 1)))

	if res.Status != checkout.ResultAborted || !errors.Is(res.Cause, checkout.ErrUnavailable) || res.Refunded {
		t.Fatalf("result = %+v", res)
	}
	if len(w.calls) != 1 {
		t.Errorf("calls = %v", w.calls)
	}
}

func TestCheckout_OutOfStockRestocksEarlierLinesAndRefundsOnce(t *testing.T) {
	// Sorted order is a, b, c, d; d is short, so a..c were subtracted.
	w := newWorld()
	w.stock = map[string]int64{"a": 5, "b": 5, "c": 5, "d": 0}
	w.credit["u1"] = 100
	before := map[string]int64{"a": 5, "b": 5, "c": 5, "d": 0}
	f := &mockFinalizer{}

	res := newOrchestrator(w, f, nil).Checkout(context.Background(),
		request(item("c", 1), item("a", 2), item("d", 1), item("b", 3)))

	if res.Status != checkout.ResultOutOfStock || !errors.Is(res.Cause, checkout.ErrInsufficientStock) {
		t.Fatalf("result = %+v", res)
	}
	if res.CompensationErr != nil {
		t.Fatalf("compensation failed: %v", res.CompensationErr)
	}

	var refunds, restocks int
	for _, c := range w.calls {
		switch c[:3] {
		case "ref":
			refunds++
		case "add":
			restocks++
		}
	}
	if refunds != 1 || restocks != 3 {
		t.Errorf("refunds=%d restocks=%d, want 1 and 3; calls=%v", refunds, restocks, w.calls)
	}
	for id, q := range before {
		if w.stock[id] != q {
			t.Errorf("stock[%s] = %d, want %d", id, w.stock[id], q)
		}
	}
	if w.credit["u1"] != 100 {
		t.Errorf("credit = %d, want 100", w.credit["u1"])
	}
	if len(f.paid) != 0 {
		t.Error("order must not be finalized")
	}
	if res.Debited.Total() != 6 || len(res.Debited) != 3 {
		t.Errorf("debited ledger = %+v", res.Debited)
	}
}

func TestCheckout_SubtractTransportErrorAborts(t *testing.T) {
	w := newWorld()
	w.stock = map[string]int64{"a": 5, "b": 5}
	w.credit["u1"] = 100
	w.subtractFn = func(itemID string, _ int64) error {
		if itemID == "b" {
			return fmt.Errorf("%w: timeout", checkout.ErrUnavailable)
		}
		return nil
	}

	res := newOrchestrator(w, &mockFinalizer{}, nil).Checkout(context.Background(), request(item("a", 1), item("b", 1)))

	if res.Status != checkout.ResultAborted || !res.Refunded {
		t.Fatalf("result = %+v", res)
	}
	if w.stock["a"] != 5 || w.credit["u1"] != 100 {
		t.Errorf("state not restored: stock=%v credit=%v", w.stock, w.credit)
	}
}

func TestCheckout_FinalizeFailureCompensatesEverything(t *testing.T) {
	w := newWorld()
	w.stock = map[string]int64{"a": 5, "b": 5}
	w.credit["u1"] = 100
	f := &mockFinalizer{markPaidFn: func(context.Context, string) error { return orders.ErrStoreUnavailable }}

	res := newOrchestrator(w, f, nil).Checkout(context.Background(), request(item("a", 1), item("b", 2)))

	if res.Status != checkout.ResultFinalizeFailed || !errors.Is(res.Cause, orders.ErrStoreUnavailable) {
		t.Fatalf("result = %+v", res)
	}
	if w.stock["a"] != 5 || w.stock["b"] != 5 || w.credit["u1"] != 100 {
		t.Errorf("state not restored: stock=%v credit=%v", w.stock, w.credit)
	}
}

func TestCheckout_CompensationFailureIsReportedNotRetried(t *testing.T) {
	w := newWorld()
	w.stock = map[string]int64{"a": 5, "b": 0}
	w.credit["u1"] = 100
	w.addFn = func(string, int64) error { return errors.New("stock service down") }
	j := &memJournal{}

	res := newOrchestrator(w, &mockFinalizer{}, j).Checkout(context.Background(), request(item("a", 1), item("b", 1)))

	if res.Status != checkout.ResultOutOfStock || res.CompensationErr == nil {
		t.Fatalf("result = %+v", res)
	}
	adds := 0
	for _, c := range w.calls {
		if c == "add a 1" {
			adds++
		}
	}
	if adds != 1 {
		t.Errorf("restock attempted %d times, want exactly 1", adds)
	}
	if w.credit["u1"] != 100 {
		t.Errorf("refund must still happen, credit=%d", w.credit["u1"])
	}
	var failed bool
	for _, e := range j.entries {
		if e.Step == checkout.StepRestock && e.State == checkout.StateFailed {
			failed = true
		}
	}
	if !failed {
		t.Error("failed restock must be journaled")
	}
}

func TestCheckout_PanicIsCompensated(t *testing.T) {
	w := newWorld()
	w.stock = map[string]int64{"a": 5, "b": 5}
	w.credit["u1"] = 100
	w.subtractFn = func(itemID string, _ int64) error {
		if itemID == "b" {
			panic("nil map in stock client")
		}
		return nil
	}

	res := newOrchestrator(w, &mockFinalizer{}, nil).Checkout(context.Background(), request(item("a", 1), item("b", 1)))

	if res.Status != checkout.ResultAborted || res.Cause == nil {
		t.Fatalf("result = %+v", res)
	}
	if w.stock["a"] != 5 || w.credit["u1"] != 100 {
		t.Errorf("state not restored: stock=%v credit=%v", w.stock, w.credit)
	}
}

func TestCheckout_CompensationIgnoresCancellation(t *testing.T) {
	w := newWorld()
	w.stock = map[string]int64{"a": 5}
	w.credit["u1"] = 100
	ctx, cancel := context.WithCancel(context.Background())
	f := &mockFinalizer{markPaidFn: func(context.Context, string) error {
		cancel()
		return context.Canceled
	}}
	var refundCtxErr error
	o := newOrchestrator(w, f, nil)
	o.Payment = paymentSpy{world: w, onRefund: func(ctx context.Context) { refundCtxErr = ctx.Err() }}

	res := o.Checkout(ctx, request(item("a", 1)))

	if res.Status != checkout.ResultFinalizeFailed {
		t.Fatalf("result = %+v", res)
	}
	if refundCtxErr != nil {
		t.Errorf("refund ran on a canceled context: %v", refundCtxErr)
	}
	if w.credit["u1"] != 100 || w.stock["a"] != 5 {
		t.Errorf("state not restored: stock=%v credit=%v", w.stock, w.credit)
	}
}

type paymentSpy struct {
	*world
	onRefund func(ctx context.Context)
}

func (p paymentSpy) AddFunds(ctx context.Context, userID string, amount int64) error {
	p.onRefund(ctx)
	return p.world.AddFunds(ctx, userID, amount)
}
