package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mennohie/wdm-project-group-9/internal/checkout"
	"github.com/mennohie/wdm-project-group-9/internal/config"
	kafkax "github.com/mennohie/wdm-project-group-9/internal/kafka"
	"github.com/mennohie/wdm-project-group-9/internal/metrics"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
	"github.com/mennohie/wdm-project-group-9/internal/postgres"
	"github.com/mennohie/wdm-project-group-9/internal/redisx"
	"github.com/mennohie/wdm-project-group-9/internal/remote"
	"github.com/mennohie/wdm-project-group-9/internal/telemetry"
	"github.com/mennohie/wdm-project-group-9/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := telemetry.InitLogger(cfg.ServiceName+"-consumer", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("consumer exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName+"-consumer", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	// Redis
	rdb := redisx.New(redisx.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		return err
	}
	store := orders.NewRedisStore(rdb)

	// Saga journal (optional)
	var journal checkout.Journal
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{
			AppName:     cfg.ServiceName + "-consumer",
			PingRetries: uint64(cfg.BrokerConnectAttempts),
			RetryDelay:  cfg.BrokerConnectInterval,
			Log:         log,
		})
		if err != nil {
			return err
		}
		defer db.Close()
		repo := &postgres.SagaLogRepo{DB: db}
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		journal = repo
	}

	// Kafka
	if err := kafkax.WaitForBroker(ctx, cfg.KafkaBrokers, cfg.BrokerConnectAttempts, cfg.BrokerConnectInterval, log); err != nil {
		return err
	}
	topics := append(orders.QueueNames(cfg.Partitions), cfg.StatusTopic)
	if err := kafkax.EnsureTopics(ctx, cfg.KafkaBrokers, 1, topics...); err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer, "consumer")
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log, m)
	prod.Start(context.Background())

	remoteOpts := remote.Options{GatewayURL: cfg.GatewayURL, Timeout: cfg.HTTPTimeout, GetRetries: 3}
	stock := remote.NewStockClient(remoteOpts)
	saga := &checkout.Orchestrator{
		Stock:   stock,
		Payment: remote.NewPaymentClient(remoteOpts),
		Orders: checkout.FinalizerFunc(func(ctx context.Context, orderID string) error {
			_, err := store.MarkPaid(ctx, orderID)
			return err
		}),
		Journal: journal,
		Log:     log.With("component", "saga"),
		Metrics: m,
	}
	registry := worker.NewRegistry(
		&worker.AddItemHandler{Items: stock, Orders: store, Log: log},
		&worker.CheckoutHandler{Orders: store, Saga: saga, Log: log},
	)
	dedup := worker.NewRedisDeduper(rdb, cfg.ServiceName)

	sup := &worker.Supervisor{
		Partitions: cfg.ConsumePartitions,
		Interval:   cfg.HeartbeatInterval,
		Log:        log,
		Metrics:    m,
		NewRunner: func(p int) worker.Runner {
			queue := orders.QueueName(p)
			return worker.NewLoop(worker.LoopConfig{
				Partition:           p,
				Readers:             kafkax.QueueReaderFactory(cfg.KafkaBrokers, cfg.ServiceName+"-"+queue, queue),
				Registry:            registry,
				Publisher:           prod,
				Dedup:               dedup,
				StatusTopic:         cfg.StatusTopic,
				InactivityTimeout:   cfg.InactivityTimeout,
				ReconnectMaxElapsed: cfg.ReconnectMaxElapsed,
				Log:                 log,
				Metrics:             m,
			})
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consumer started", "partitions", cfg.ConsumePartitions, "replica", cfg.ReplicaIndex)
		return sup.Run(gctx)
	})
	g.Go(func() error {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return msrv.Shutdown(sctx)
	})

	err = g.Wait()
	log.Info("shutting down consumer...")
	prod.Close()
	prod.WaitClosed()
	return err
}
