package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campuscard/internal/blob"
	"campuscard/internal/card/handler"
	"campuscard/internal/card/render"
	"campuscard/internal/card/service"
	"campuscard/internal/card/store"
	"campuscard/internal/card/token"
	"campuscard/internal/directory"
	"campuscard/internal/platform/config"
	"campuscard/internal/platform/httpserver"
	"campuscard/internal/platform/logger"
	"campuscard/internal/platform/metrics"
	"campuscard/internal/platform/middleware"
	"campuscard/internal/platform/postgres"
	platformredis "campuscard/internal/platform/redis"
	"campuscard/internal/trigger"
)

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal packages.
func main() {
	configPath := flag.String("config", os.Getenv("CAMPUSCARD_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.LogLevel))
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: postgres when configured, in-memory for local development.
	var (
		cards store.Store
		dir   directory.Directory
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		cards = store.NewPostgres(db.SQL)
		dir = directory.NewPostgres(db.SQL)
	} else {
		log.Warn("no database_url configured, using in-memory stores")
		cards = store.NewMemory()
		dir = directory.NewMemory()
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Blob backend: HTTP object store first, redis second, memory for dev.
	var blobStore blob.Store
	switch {
	case cfg.BlobBackendURL != "":
		blobStore = blob.NewHTTP(cfg.BlobBackendURL, &http.Client{Timeout: cfg.BlobTimeout})
	case redisClient != nil:
		blobStore = blob.NewRedis(redisClient.Client)
	default:
		log.Warn("no blob backend configured, using in-memory store")
		blobStore = blob.NewMemory()
	}
	blobs := blob.NewClient(blobStore, blob.RetryPolicy(cfg.BlobRetry), cfg.BlobTimeout, m)

	svc := service.New(
		cards,
		dir,
		blobs,
		render.New(cfg.AssetsDir),
		token.NewIssuer(cfg.SiteOrigin),
		log,
		m,
		cfg.CardTTL,
	)
	triggers := trigger.New(svc, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(60 * time.Second))

	h := handler.New(svc, triggers, blobs,
		handler.NewSigner([]byte(cfg.FetchURLSigningKey), cfg.FetchURLTTL), log)
	h.Register(router, middleware.RequireAdmin(cfg.AdminTokenHash, log))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	// Background sources: approval-event consumer and the maintenance sweeper.
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		consumer, err := trigger.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, triggers, log)
		if err != nil {
			log.Error("kafka consumer init failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("kafka consumer stopped", "error", err)
			}
		}()
	}
	sweeper := trigger.NewSweeper(triggers, cfg.SweepInterval, log)
	go sweeper.Run(ctx)

	srv := httpserver.New(cfg.ServerAddr, router)
	go func() {
		log.Info("campuscard listening", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	triggers.Wait()
}
