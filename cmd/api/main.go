package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safar/go-card-store/internal/api"
	"github.com/safar/go-card-store/internal/config"
	"github.com/safar/go-card-store/internal/database"
	"github.com/safar/go-card-store/internal/events"
	"github.com/safar/go-card-store/internal/logger"
	"github.com/safar/go-card-store/internal/metrics"
	"github.com/safar/go-card-store/internal/migrate"
	"github.com/safar/go-card-store/internal/redisx"
	"github.com/safar/go-card-store/internal/service"
	"github.com/safar/go-card-store/internal/sweeper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	lg, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Init logger: %v", err)
	}

	os.Exit(exitCode(lg, func() error { return run(cfg, lg) }))
}

// exitCode runs fn and flushes the logger before the process exits, which
// deferred calls would not survive.
func exitCode(lg *zap.Logger, fn func() error) int {
	code := 0
	if err := fn(); err != nil {
		lg.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = lg.Sync()
	return code
}

func run(cfg *config.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	lg.Info("connected to database")

	applied, err := migrate.New(db, lg).Run(ctx)
	if err != nil {
		return err
	}
	lg.Info("schema up to date", zap.Int("applied", applied))

	var locker sweeper.Locker
	if cfg.Redis.Addr != "" {
		rdb, err := redisx.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = redisx.NewLocker(rdb)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Buffer, lg)
		producer.Start(ctx)
		defer func() {
			producer.Close()
			producer.WaitClosed()
		}()
		publisher = producer
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, "cardstore"),
	)
	m := metrics.New(reg)

	svc := service.New(db, publisher, m, lg, cfg.Points)
	sw := sweeper.New(svc, locker, cfg.Sweeper, m, lg)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(svc, lg, reg, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
