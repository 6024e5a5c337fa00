package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/mennohie/wdm-project-group-9/internal/kafka"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

// Recorder is the write side of the tracker.
type Recorder interface {
	Record(ctx context.Context, correlationID string, status orders.RequestStatus) error
}

// Projector folds status records from the reply queue into a Recorder.
type Projector struct {
	Recorder Recorder
	Log      *slog.Logger
}

// Handle is a kafka.Handler. Undecodable records are dropped so they do not
// block the topic. A store error is returned so the consumer retries the
// same record and never commits past it.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	rec, err := kafka.DecodeStatus(m.Value)
	if err != nil {
		p.Log.WarnContext(ctx, "dropping status record", "offset", m.Offset, "err", err)
		return nil
	}
	if err := p.Recorder.Record(ctx, rec.CorrelationID, rec.Status); err != nil {
		p.Log.ErrorContext(ctx, "status record failed", "correlation_id", rec.CorrelationID, "err", err)
		return err
	}
	p.Log.DebugContext(ctx, "status recorded", "correlation_id", rec.CorrelationID, "status", rec.Status)
	return nil
}

// Run consumes topic until ctx ends. When the consumer gives up on a record
// it is reopened, resuming from the last committed offset.
func (p *Projector) Run(ctx context.Context, c *kafka.Consumer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	for {
		err := c.Start(ctx, p.Handle)
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		p.Log.WarnContext(ctx, "status projection interrupted, reopening", "err", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
