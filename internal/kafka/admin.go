package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// WaitForBroker dials the cluster with a fixed backoff. The broker is a boot
// dependency: callers exit when this fails.
func WaitForBroker(ctx context.Context, brokers []string, attempts int, interval time.Duration, log *slog.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if attempts < 1 {
		attempts = 1
	}
	try := 0
	op := func() error {
		try++
		var lastErr error
		for _, addr := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		log.Warn("broker not reachable", "brokers", brokers, "attempt", try, "of", attempts, "err", lastErr)
		return lastErr
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("kafka: broker unreachable after %d attempts: %w", attempts, err)
	}
	return nil
}

// EnsureTopics declares single-partition topics used as durable queues.
// Existing topics are left untouched.
func EnsureTopics(ctx context.Context, brokers []string, replication int, topics ...string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("kafka: dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer cc.Close()

	cfgs := make([]kafka.TopicConfig, 0, len(topics))
	for _, t := range topics {
		cfgs = append(cfgs, kafka.TopicConfig{Topic: t, NumPartitions: 1, ReplicationFactor: replication})
	}
	if err := cc.CreateTopics(cfgs...); err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafka: create topics: %w", err)
	}
	return nil
}
