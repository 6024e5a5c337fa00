package checkout

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// State of a journaled saga transition.
type State string

const (
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
	StateCompensated State = "COMPENSATED"
	StateFinished    State = "FINISHED"
)

// Step names used in spans and the journal.
const (
	StepPay      = "pay"
	StepSubtract = "subtract_stock"
	StepFinalize = "mark_paid"
	StepRefund   = "refund"
	StepRestock  = "restock"
	StepResult   = "result"
)

// Entry is one append-only saga journal row.
type Entry struct {
	OrderID       string
	CorrelationID string
	Step          string
	State         State
	Detail        string
	TraceID       string
	At            time.Time
}

// Journal persists saga transitions for audit. It is optional.
type Journal interface {
	Append(ctx context.Context, e Entry) error
}

func newEntry(ctx context.Context, req Request, step string, state State, detail string) Entry {
	e := Entry{
		OrderID:       req.OrderID,
		CorrelationID: req.CorrelationID,
		Step:          step,
		State:         state,
		Detail:        detail,
		At:            time.Now().UTC(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		e.TraceID = sc.TraceID().String()
	}
	return e
}
