package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mennohie/wdm-project-group-9/internal/kafka"
	"github.com/mennohie/wdm-project-group-9/internal/metrics"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

const tracerName = "github.com/mennohie/wdm-project-group-9/internal/worker"

var ErrReconnectExhausted = errors.New("broker reconnect attempts exhausted")

// Publisher is what a loop needs from the producer.
type Publisher interface {
	PublishStatus(ctx context.Context, topic string, rec orders.StatusRecord) error
	Requeue(ctx context.Context, m kafkago.Message) error
}

type LoopConfig struct {
	Partition int
	Readers   kafka.ReaderFactory
	Registry  *Registry
	Publisher Publisher
	// Dedup is optional; without it redeliveries run their handler again.
	Dedup Deduper
	// StatusTopic receives status for envelopes that carry no reply queue.
	StatusTopic string

	InactivityTimeout   time.Duration
	ReconnectMaxElapsed time.Duration

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Loop consumes one partition queue until its context ends or the broker
// stays unreachable for longer than ReconnectMaxElapsed.
type Loop struct {
	cfg LoopConfig
	log *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 30 * time.Second
	}
	if cfg.ReconnectMaxElapsed <= 0 {
		cfg.ReconnectMaxElapsed = 2 * time.Minute
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Loop{cfg: cfg, log: log.With("partition", cfg.Partition, "queue", orders.QueueName(cfg.Partition))}
}

// Run returns nil when ctx is canceled. beat is called after every handled
// message and after every idle InactivityTimeout.
func (l *Loop) Run(ctx context.Context, beat func()) error {
	if beat == nil {
		beat = func() {}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 15 * time.Second
	b.MaxElapsedTime = l.cfg.ReconnectMaxElapsed
	b.Reset()

	l.log.InfoContext(ctx, "partition loop started")
	for {
		r := l.cfg.Readers()
		err := l.consume(ctx, r, b, beat)
		if cerr := r.Close(); cerr != nil {
			l.log.DebugContext(ctx, "reader close", "err", cerr)
		}
		if ctx.Err() != nil {
			l.log.InfoContext(ctx, "partition loop stopped")
			return nil
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%w: partition %d: %v", ErrReconnectExhausted, l.cfg.Partition, err)
		}
		l.log.WarnContext(ctx, "broker connection lost, reconnecting", "err", err, "wait", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *Loop) consume(ctx context.Context, r kafka.MessageReader, b backoff.BackOff, beat func()) error {
	for {
		fctx, cancel := context.WithTimeout(ctx, l.cfg.InactivityTimeout)
		m, err := r.FetchMessage(fctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				b.Reset()
				beat()
				continue
			}
			return fmt.Errorf("fetch: %w", err)
		}
		b.Reset()
		if err := l.process(ctx, r, m); err != nil {
			return err
		}
		beat()
	}
}

// process resolves one delivery. A returned error means the message was not
// committed and the reader must be reopened.
func (l *Loop) process(ctx context.Context, r kafka.MessageReader, m kafkago.Message) error {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(kafka.ExtractHeaders(ctx, m.Headers), "worker.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.Int("partition", l.cfg.Partition),
			attribute.Int64("offset", m.Offset),
		))
	defer span.End()

	env, err := kafka.DecodeEnvelope(m.Value)
	if env.CorrelationID == "" {
		env.CorrelationID = kafka.HeaderValue(m.Headers, kafka.HeaderCorrelationID)
	}
	log := l.log.With("correlation_id", env.CorrelationID, "operation", env.Operation)
	span.SetAttributes(
		attribute.String("correlation_id", env.CorrelationID),
		attribute.String("operation", string(env.Operation)),
	)

	var outcome Outcome
	if err != nil {
		outcome = PermanentFailure
	} else {
		if status, ok := l.seen(ctx, log, env.CorrelationID); ok {
			log.InfoContext(ctx, "duplicate delivery, replaying recorded status", "status", status)
			if err := l.report(ctx, log, env, status); err != nil {
				return fmt.Errorf("replay status offset %d: %w", m.Offset, err)
			}
			return l.commit(ctx, r, m)
		}
		outcome, err = l.cfg.Registry.Dispatch(ctx, env)
	}

	l.cfg.Metrics.ObserveEnvelope(opLabel(env.Operation), outcome.String(), time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.String())
		log.WarnContext(ctx, "envelope not processed", "outcome", outcome, "err", err)
	} else {
		log.InfoContext(ctx, "envelope processed", "duration_ms", time.Since(start).Milliseconds())
	}

	remembered := false
	if outcome == Retryable {
		if err := l.cfg.Publisher.Requeue(ctx, m); err != nil {
			return fmt.Errorf("requeue offset %d: %w", m.Offset, err)
		}
	} else if l.cfg.Dedup != nil && env.CorrelationID != "" {
		if err := l.cfg.Dedup.Remember(ctx, env.CorrelationID, outcome.Status()); err != nil {
			log.WarnContext(ctx, "dedup record failed", "err", err)
		} else {
			remembered = true
		}
	}
	if err := l.report(ctx, log, env, outcome.Status()); err != nil && remembered {
		// Redelivery replays the remembered status without running the handler again.
		return fmt.Errorf("report status offset %d: %w", m.Offset, err)
	}
	return l.commit(ctx, r, m)
}

func (l *Loop) seen(ctx context.Context, log *slog.Logger, correlationID string) (orders.RequestStatus, bool) {
	if l.cfg.Dedup == nil {
		return "", false
	}
	status, ok, err := l.cfg.Dedup.Seen(ctx, correlationID)
	if err != nil {
		log.WarnContext(ctx, "dedup lookup failed", "err", err)
		return "", false
	}
	return status, ok
}

// report publishes status on the reply queue. A delivery without a
// correlation id or a reply topic has nobody to tell and reports nil.
func (l *Loop) report(ctx context.Context, log *slog.Logger, env orders.Envelope, status orders.RequestStatus) error {
	if env.CorrelationID == "" {
		log.WarnContext(ctx, "no correlation id, status not reported", "status", status)
		return nil
	}
	topic := env.ReplyTo
	if topic == "" {
		topic = l.cfg.StatusTopic
	}
	if topic == "" {
		return nil
	}
	rec := orders.StatusRecord{CorrelationID: env.CorrelationID, Status: status}
	if err := l.cfg.Publisher.PublishStatus(ctx, topic, rec); err != nil {
		log.ErrorContext(ctx, "status publish failed", "status", status, "reply_to", topic, "err", err)
		return err
	}
	return nil
}

func (l *Loop) commit(ctx context.Context, r kafka.MessageReader, m kafkago.Message) error {
	if err := r.CommitMessages(ctx, m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

func opLabel(op orders.Op) string {
	if op.Known() {
		return string(op)
	}
	return "unknown"
}
