// Package main wires together the pagelens service binary.
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

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/api"
	"github.com/pagelens/pagelens/internal/clock/system"
	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/driver/collyhttp"
	"github.com/pagelens/pagelens/internal/driver/headless"
	"github.com/pagelens/pagelens/internal/frontier"
	"github.com/pagelens/pagelens/internal/hash/sha256"
	"github.com/pagelens/pagelens/internal/id/uuid"
	"github.com/pagelens/pagelens/internal/logging"
	"github.com/pagelens/pagelens/internal/notify"
	"github.com/pagelens/pagelens/internal/oracle/heuristic"
	"github.com/pagelens/pagelens/internal/progress"
	"github.com/pagelens/pagelens/internal/progress/sinks"
	"github.com/pagelens/pagelens/internal/ratelimit"
	"github.com/pagelens/pagelens/internal/review"
	"github.com/pagelens/pagelens/internal/storage/gcs"
	"github.com/pagelens/pagelens/internal/storage/local"
	blobMemory "github.com/pagelens/pagelens/internal/storage/memory"
	storeMemory "github.com/pagelens/pagelens/internal/store/memory"
	storePostgres "github.com/pagelens/pagelens/internal/store/postgres"
	"github.com/pagelens/pagelens/internal/visual"
	"github.com/pagelens/pagelens/internal/worker"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	ids := uuid.NewGenerator()
	hasher := sha256.New()

	var (
		sessions      core.SessionStore
		frontierStore core.FrontierStore
		pages         core.PageStore
		checkpoints   core.CheckpointStore
		baselines     core.BaselineStore
	)
	if cfg.DB.DSN != "" {
		pool, err := storePostgres.Connect(ctx, storePostgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxOpenConns),
		})
		if err != nil {
			logger.Fatal("database connect failed", zap.Error(err))
		}
		defer pool.Close()
		sessions = storePostgres.NewSessionStore(pool)
		frontierStore = storePostgres.NewFrontierStore(pool)
		pages = storePostgres.NewPageStore(pool)
		checkpoints = storePostgres.NewCheckpointStore(pool)
		baselines = storePostgres.NewBaselineStore(pool)
	} else {
		sessions = storeMemory.NewSessionStore()
		frontierStore = storeMemory.NewFrontierStore()
		pages = storeMemory.NewPageStore()
		checkpoints = storeMemory.NewCheckpointStore()
		baselines = storeMemory.NewBaselineStore()
	}

	var blobs core.BlobStore
	switch cfg.Storage.Kind {
	case "local":
		blobs, err = local.New(local.Config{BaseDir: cfg.Storage.LocalPath})
		if err != nil {
			logger.Fatal("local blob store init failed", zap.Error(err))
		}
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("gcs client close failed", zap.Error(closeErr))
			}
		}()
		blobs, err = gcs.New(client, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			logger.Fatal("gcs blob store init failed", zap.Error(err))
		}
	default:
		blobs = blobMemory.NewBlobStore()
	}

	var driver core.DriverProvider
	switch cfg.Driver.Kind {
	case "http":
		driver = collyhttp.NewProvider(collyhttp.Config{
			UserAgent:     cfg.Driver.UserAgent,
			RespectRobots: cfg.Driver.RespectRobots,
		})
	default:
		provider := headless.NewProvider(headless.Config{UserAgent: cfg.Driver.UserAgent})
		defer provider.Close()
		driver = provider
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("prometheus sink init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")), promSink)

	notifiers := []core.Notifier{notify.NewHubBridge(hub, clock)}
	if cfg.PubSub.TopicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		topic := client.Topic(cfg.PubSub.TopicName)
		defer topic.Stop()
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub client close failed", zap.Error(closeErr))
			}
		}()
		notifiers = append(notifiers, notify.NewPubSub(topic, logger.Named("pubsub")))
	}
	notifier := notify.NewFanout(notifiers...)

	fm := frontier.NewManager(sessions, frontierStore, ids, logger.Named("frontier"))
	oracle := heuristic.New(logger.Named("oracle"))
	engine := visual.New(checkpoints, baselines, pages, sessions, blobs,
		oracle, hasher, ids, clock, notifier, logger.Named("visual"))
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.DefaultRPS,
		DefaultBurst: cfg.RateLimit.DefaultBurst,
	})
	crawlWorker := worker.NewWorker(pages, fm, engine, limiter, ids, clock, logger.Named("worker"))
	runner := worker.NewRunner(sessions, fm, driver, crawlWorker, notifier, logger.Named("runner"))
	reviews := review.NewManager(checkpoints, baselines, sessions, ids, clock, logger.Named("review"))

	apiServer := api.NewServer(sessions, frontierStore, pages, checkpoints, baselines,
		reviews, runner, ids, clock, cfg, logger.Named("api"))

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
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub close error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
