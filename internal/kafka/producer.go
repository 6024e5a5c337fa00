package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/mennohie/wdm-project-group-9/internal/metrics"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
)

const (
	HeaderCorrelationID = "correlation_id"
	HeaderOperation     = "x-operation"
	// HeaderDeliveryAttempt counts negative acknowledgements of a message.
	HeaderDeliveryAttempt = "x-delivery-attempt"

	maxBatch     = 100
	writeTimeout = 10 * time.Second
)

var ErrProducerClosed = errors.New("producer closed")

// MessageWriter is the part of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type outbound struct {
	msg  kafka.Message
	done chan error
}

// Producer serializes every broker write through one goroutine. Callers on
// any goroutine hand messages to the inbox; PublishWait additionally blocks
// until the broker acknowledged the write.
type Producer struct {
	w       MessageWriter
	inbox   chan outbound
	closeCh chan struct{}
	log     *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int, log *slog.Logger, m *metrics.Metrics) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 5 * time.Millisecond,
	}
	return NewProducerWithWriter(w, buf, log, m)
}

func NewProducerWithWriter(w MessageWriter, buf int, log *slog.Logger, m *metrics.Metrics) *Producer {
	return &Producer{
		w:       w,
		inbox:   make(chan outbound, buf),
		closeCh: make(chan struct{}),
		log:     log,
		metrics: m,
	}
}

// Start runs the writer goroutine. Canceling ctx closes the producer after
// flushing what is already queued.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		p.Close()
	}()
	go func() {
		defer close(p.closeCh)
		for o := range p.inbox {
			batch := []outbound{o}
		fill:
			for len(batch) < maxBatch {
				select {
				case next, ok := <-p.inbox:
					if !ok {
						break fill
					}
					batch = append(batch, next)
				default:
					break fill
				}
			}
			p.write(batch)
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("kafka writer close", "err", err)
		}
	}()
}

func (p *Producer) write(batch []outbound) {
	msgs := make([]kafka.Message, len(batch))
	for i, o := range batch {
		msgs[i] = o.msg
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := p.w.WriteMessages(ctx, msgs...)

	var perMsg kafka.WriteErrors
	hasPerMsg := errors.As(err, &perMsg) && len(perMsg) == len(batch)
	for i, o := range batch {
		e := err
		if hasPerMsg {
			e = perMsg[i]
		}
		p.metrics.Publish(e)
		if e != nil {
			p.log.Error("kafka write failed", "topic", o.msg.Topic, "key", string(o.msg.Key), "err", e)
		}
		if o.done != nil {
			o.done <- e
		}
	}
}

func (p *Producer) enqueue(ctx context.Context, o outbound) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- o:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish queues a message without waiting for the broker.
func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	return p.enqueue(context.Background(), outbound{msg: newMessage(topic, key, value, headers)})
}

// PublishWait queues a message and returns once the broker acknowledged it.
func (p *Producer) PublishWait(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	done := make(chan error, 1)
	if err := p.enqueue(ctx, outbound{msg: newMessage(topic, key, value, headers), done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishEnvelope puts env on the named partition queue.
func (p *Producer) PublishEnvelope(ctx context.Context, queue string, env orders.Envelope) error {
	b, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	headers := InjectHeaders(ctx, []kafka.Header{
		{Key: HeaderCorrelationID, Value: []byte(env.CorrelationID)},
		{Key: HeaderOperation, Value: []byte(env.Operation)},
	})
	return p.PublishWait(ctx, queue, []byte(env.CorrelationID), b, headers...)
}

// PublishStatus reports a delivery outcome on the reply queue.
func (p *Producer) PublishStatus(ctx context.Context, topic string, rec orders.StatusRecord) error {
	b, err := EncodeStatus(rec)
	if err != nil {
		return err
	}
	return p.PublishWait(ctx, topic, []byte(rec.CorrelationID), b,
		kafka.Header{Key: HeaderCorrelationID, Value: []byte(rec.CorrelationID)})
}

// Requeue writes m back to its own topic with the delivery attempt bumped.
// The caller commits the original offset only after this returns nil.
func (p *Producer) Requeue(ctx context.Context, m kafka.Message) error {
	headers := make([]kafka.Header, 0, len(m.Headers)+1)
	attempt := 1
	for _, h := range m.Headers {
		if h.Key == HeaderDeliveryAttempt {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				attempt = n + 1
			}
			continue
		}
		headers = append(headers, h)
	}
	headers = append(headers, kafka.Header{Key: HeaderDeliveryAttempt, Value: []byte(strconv.Itoa(attempt))})
	return p.PublishWait(ctx, m.Topic, m.Key, m.Value, headers...)
}

// Close stops accepting messages; queued ones are still written.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the writer goroutine flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

func newMessage(topic string, key, value []byte, headers []kafka.Header) kafka.Message {
	return kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}
