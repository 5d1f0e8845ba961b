// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mktgdata/similarweb-ingest/internal/api"
	"github.com/mktgdata/similarweb-ingest/internal/archive"
	"github.com/mktgdata/similarweb-ingest/internal/clock/system"
	"github.com/mktgdata/similarweb-ingest/internal/config"
	"github.com/mktgdata/similarweb-ingest/internal/history"
	"github.com/mktgdata/similarweb-ingest/internal/id/uuid"
	"github.com/mktgdata/similarweb-ingest/internal/ingest"
	"github.com/mktgdata/similarweb-ingest/internal/logging"
	"github.com/mktgdata/similarweb-ingest/internal/metrics"
	"github.com/mktgdata/similarweb-ingest/internal/notify"
	"github.com/mktgdata/similarweb-ingest/internal/similarweb"
	"github.com/mktgdata/similarweb-ingest/internal/warehouse"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wh, err := warehouse.New(ctx, warehouse.Config{
		ProjectID: cfg.Warehouse.ProjectID,
		Dataset:   cfg.Warehouse.Dataset,
		Table:     cfg.Warehouse.Table,
		Location:  cfg.Warehouse.Location,
	}, logger.Named("warehouse"))
	if err != nil {
		logger.Fatal("warehouse init failed", zap.Error(err))
	}

	archiver, err := newArchiver(ctx, cfg)
	if err != nil {
		logger.Fatal("archive init failed", zap.Error(err))
	}

	notifier, closeNotifier, err := newNotifier(ctx, cfg, logger.Named("notify"))
	if err != nil {
		logger.Fatal("notify init failed", zap.Error(err))
	}
	defer closeNotifier()

	historyStore, closeHistory, err := newHistoryStore(ctx, cfg)
	if err != nil {
		logger.Fatal("history init failed", zap.Error(err))
	}
	defer closeHistory()

	provider := similarweb.New(similarweb.Config{
		BaseURL: cfg.Similarweb.BaseURL,
		APIKey:  cfg.Similarweb.APIKey,
		Timeout: cfg.Similarweb.Timeout(),
	}, logger.Named("similarweb"))

	clock := system.New()
	fetcher := ingest.NewFetcher(provider, archiver, clock, logger.Named("fetcher"))
	runner := ingest.NewRunner(
		ingest.RunnerConfig{
			APIKey:         cfg.Similarweb.APIKey,
			Domains:        cfg.Ingest.DomainList(),
			StartPeriod:    cfg.Ingest.StartPeriod,
			EndPeriod:      cfg.Ingest.EndPeriod,
			Granularity:    cfg.Ingest.Granularity,
			MainDomainOnly: cfg.Ingest.MainDomainOnly,
			Destination:    cfg.Warehouse.TableID(),
		},
		fetcher,
		wh,
		notifier,
		historyStore,
		clock,
		uuid.New(),
		logger.Named("runner"),
	)

	apiServer := api.NewServer(runner, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newArchiver(ctx context.Context, cfg config.Config) (ingest.Archiver, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		return archive.NewGCS(ctx, client, cfg.Archive.GCSBucket, cfg.Archive.Prefix)
	case "noop":
		return archive.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func newNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.Notifier, func(), error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		pub, err := notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.Topic, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() {
			if err := pub.Close(); err != nil {
				logger.Warn("close publisher failed", zap.Error(err))
			}
		}, nil
	case "noop":
		return notify.NoopPublisher{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown notify provider: %s", cfg.Notify.Provider)
	}
}

func newHistoryStore(ctx context.Context, cfg config.Config) (ingest.HistoryStore, func(), error) {
	switch cfg.History.Provider {
	case "postgres":
		store, err := history.NewRunStore(ctx, history.RunStoreConfig{
			DSN:   cfg.History.DSN,
			Table: cfg.History.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "noop":
		return history.NoopStore{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown history provider: %s", cfg.History.Provider)
	}
}
