package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kravtofly/svr-backend/api/routes"
	"github.com/kravtofly/svr-backend/internal/playback"
	"github.com/kravtofly/svr-backend/internal/reconcile"
	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/config"
	"github.com/kravtofly/svr-backend/pkg/db"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
	"github.com/kravtofly/svr-backend/pkg/migrate"
	"github.com/kravtofly/svr-backend/pkg/mux"
	"github.com/kravtofly/svr-backend/pkg/signing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	muxClient, err := mux.NewClient(cfg.Mux)
	if err != nil {
		logg.Error(context.Background(), "failed to create provider client", err)
		os.Exit(1)
	}

	signer, err := signing.NewSigner(cfg.Mux)
	if err != nil {
		logg.Error(context.Background(), "failed to load playback signing key", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	lifecycleMetrics := metrics.NewLifecycleMetrics(registry)

	videoRepo := videos.NewRepository(dbClient.DB())

	videoService, err := videos.NewService(videos.ServiceParams{
		Repo:     videoRepo,
		Provider: muxClient,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create video service", err)
		os.Exit(1)
	}

	playbackService, err := playback.NewService(playback.ServiceParams{
		Repo:   videoRepo,
		Signer: signer,
		Config: cfg.Playback,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create playback service", err)
		os.Exit(1)
	}

	reconcileService, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:     videoRepo,
		Videos:   videoService,
		Provider: muxClient,
		Metrics:  lifecycleMetrics,
		Logger:   logg,
		PageSize: cfg.Reconcile.PageSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			videoService,
			playbackService,
			reconcileService,
			lifecycleMetrics,
			registry,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
