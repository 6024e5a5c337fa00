package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	MetricsAddr string
	ServiceName string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers          []string
	BrokerConnectAttempts int
	BrokerConnectInterval time.Duration

	// Partitions is the number of partition queues (MQ_REPLICAS).
	Partitions int
	// ConsumePartitions is the subset this consumer replica serves.
	ConsumePartitions []int
	ReplicaIndex      string
	StatusTopic       string

	GatewayURL  string
	HTTPTimeout time.Duration

	// PostgresDSN enables the saga journal when set.
	PostgresDSN  string
	OTLPEndpoint string

	InactivityTimeout   time.Duration
	HeartbeatInterval   time.Duration
	ReconnectMaxElapsed time.Duration
}

func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":5000"),
		MetricsAddr:   getenv("METRICS_ADDR", ":9100"),
		ServiceName:   getenv("SERVICE_NAME", "order"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  splitCSV(getenv("KAFKA_BROKERS", "kafka:9092")),
		ReplicaIndex:  getenv("REPLICA_INDEX", "0"),
		StatusTopic:   getenv("STATUS_TOPIC", "status"),
		GatewayURL:    getenv("GATEWAY_URL", "http://gateway:80"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	var p parser
	cfg.RedisDB = p.integer("REDIS_DB", 0)
	cfg.Partitions = p.integer("MQ_REPLICAS", 4)
	cfg.BrokerConnectAttempts = p.integer("BROKER_CONNECT_ATTEMPTS", 5)
	cfg.BrokerConnectInterval = p.duration("BROKER_CONNECT_INTERVAL", 5*time.Second)
	cfg.HTTPTimeout = p.duration("HTTP_TIMEOUT", 5*time.Second)
	cfg.InactivityTimeout = p.duration("INACTIVITY_TIMEOUT", 30*time.Second)
	cfg.HeartbeatInterval = p.duration("HEARTBEAT_INTERVAL", 60*time.Second)
	cfg.ReconnectMaxElapsed = p.duration("RECONNECT_MAX_ELAPSED", 2*time.Minute)
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.Partitions <= 0 {
		return Config{}, fmt.Errorf("MQ_REPLICAS must be positive, got %d", cfg.Partitions)
	}

	var err error
	cfg.ConsumePartitions, err = partitions(os.Getenv("CONSUME_PARTITIONS"), cfg.Partitions)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parser keeps the first malformed value it meets.
type parser struct{ err error }

func (p *parser) fail(k string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", k, err)
	}
}

func (p *parser) integer(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(k, err)
		return def
	}
	return n
}

// duration accepts Go durations ("30s") or plain seconds ("30").
func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(k, err)
		return def
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// partitions parses a CSV of partition indexes; empty means all of [0,n).
func partitions(csv string, n int) ([]int, error) {
	fields := splitCSV(csv)
	if len(fields) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	seen := make(map[int]bool, len(fields))
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil || p < 0 || p >= n {
			return nil, fmt.Errorf("CONSUME_PARTITIONS: %q is not a partition in [0,%d)", f, n)
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
