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

	"github.com/mennohie/wdm-project-group-9/internal/config"
	"github.com/mennohie/wdm-project-group-9/internal/httpx"
	kafkax "github.com/mennohie/wdm-project-group-9/internal/kafka"
	"github.com/mennohie/wdm-project-group-9/internal/metrics"
	"github.com/mennohie/wdm-project-group-9/internal/orders"
	"github.com/mennohie/wdm-project-group-9/internal/redisx"
	"github.com/mennohie/wdm-project-group-9/internal/telemetry"
	"github.com/mennohie/wdm-project-group-9/internal/tracker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := telemetry.InitLogger(cfg.ServiceName+"-api", cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.ServiceName+"-api", cfg.OTLPEndpoint)
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

	// Kafka
	if err := kafkax.WaitForBroker(ctx, cfg.KafkaBrokers, cfg.BrokerConnectAttempts, cfg.BrokerConnectInterval, log); err != nil {
		return err
	}
	topics := append(orders.QueueNames(cfg.Partitions), cfg.StatusTopic)
	if err := kafkax.EnsureTopics(ctx, cfg.KafkaBrokers, 1, topics...); err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer, "api")
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log, m)
	prod.Start(context.Background())

	svc := &orders.Service{
		Store:      orders.NewRedisStore(rdb),
		Publisher:  prod,
		Partitions: cfg.Partitions,
		ReplyTo:    cfg.StatusTopic,
	}
	statuses := tracker.New(rdb)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{Service: svc, Status: statuses, Log: log}
	oh.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// Status projection: one worker keeps records of a correlation id in order.
	projector := &tracker.Projector{Recorder: statuses, Log: log.With("component", "projector")}
	group := cfg.ServiceName + "-status-projector"
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, cfg.StatusTopic, 1, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "partitions", cfg.Partitions)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("status projector started", "group", group, "topic", cfg.StatusTopic)
		return projector.Run(gctx, cons)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	prod.Close()
	prod.WaitClosed()
	return err
}
