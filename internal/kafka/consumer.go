package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader used for manual-commit consumption.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ReaderFactory opens a fresh reader; loops call it again after a connection failure.
type ReaderFactory func() MessageReader

// QueueReaderFactory reads one partition queue as a member of group. Replicas
// serving the same queue share the group and therefore its committed offset.
func QueueReaderFactory(brokers []string, group, topic string) ReaderFactory {
	return func() MessageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        500 * time.Millisecond,
			CommitInterval: 0, // manual commit
			StartOffset:    kafka.FirstOffset,
		})
	}
}

// Handler must return nil only when the message may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer fans a topic out to a fixed worker pool and commits on success.
// A message whose handler keeps failing is never committed past: Start
// stops fetching, drains its workers and returns the error, so the next
// Start resumes from the last committed offset. Commits follow completion
// order, so a consumer that must not skip a record runs one worker.
type Consumer struct {
	readers ReaderFactory
	workers int
	log     *slog.Logger

	// RetryMaxElapsed bounds the retries of one failing message.
	RetryMaxElapsed time.Duration
	RetryInterval   time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	return NewConsumerWithReaders(QueueReaderFactory(brokers, group, topic), workers, log)
}

func NewConsumerWithReaders(readers ReaderFactory, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		readers:         readers,
		workers:         workers,
		log:             log,
		RetryMaxElapsed: 30 * time.Second,
		RetryInterval:   200 * time.Millisecond,
	}
}

// Start opens a reader and consumes until ctx ends (nil) or a message
// cannot be handled or committed (error).
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	r := c.readers()
	sctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	jobs := make(chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for range c.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if sctx.Err() != nil {
					continue
				}
				if err := c.handle(sctx, h, m); err != nil {
					if sctx.Err() == nil {
						stop(fmt.Errorf("handle offset %d: %w", m.Offset, err))
					}
					continue
				}
				if err := r.CommitMessages(sctx, m); err != nil && sctx.Err() == nil {
					stop(fmt.Errorf("commit offset %d: %w", m.Offset, err))
				}
			}
		}()
	}

	fetchErr := c.fetch(sctx, r, jobs)
	close(jobs)
	wg.Wait()
	if err := r.Close(); err != nil {
		c.log.Debug("reader close", "err", err)
	}

	if ctx.Err() != nil {
		return nil
	}
	if cause := context.Cause(sctx); cause != nil {
		return cause
	}
	return fetchErr
}

func (c *Consumer) fetch(ctx context.Context, r MessageReader, jobs chan<- kafka.Message) error {
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle retries h on the same message with exponential backoff.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxElapsedTime = c.RetryMaxElapsed
	attempt := 0
	op := func() error {
		attempt++
		err := h(ctx, m)
		if err != nil && ctx.Err() == nil {
			c.log.Warn("consumer handler failed", "topic", m.Topic, "offset", m.Offset, "attempt", attempt, "err", err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
