// Package worker consumes partition queues: it dispatches each envelope to
// its operation handler, acknowledges or requeues it by outcome, and reports
// the resulting status on the envelope's reply queue.
package worker

import "github.com/mennohie/wdm-project-group-9/internal/orders"

// Outcome is how a delivery resolves against the broker.
type Outcome int

const (
	// Success: commit, status Processed.
	Success Outcome = iota
	// PermanentFailure: commit, status Failed. Redelivery would fail the same way.
	PermanentFailure
	// Retryable: requeue, status Retrying. No partial effects were left behind.
	Retryable
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PermanentFailure:
		return "permanent_failure"
	case Retryable:
		return "retryable"
	}
	return "unknown"
}

// Status is the client-visible status reported for this outcome.
func (o Outcome) Status() orders.RequestStatus {
	switch o {
	case Success:
		return orders.StatusProcessed
	case Retryable:
		return orders.StatusRetrying
	}
	return orders.StatusFailed
}
