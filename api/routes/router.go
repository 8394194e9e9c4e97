package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kravtofly/svr-backend/api/controllers"
	"github.com/kravtofly/svr-backend/api/middleware"
	"github.com/kravtofly/svr-backend/internal/playback"
	"github.com/kravtofly/svr-backend/internal/reconcile"
	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/config"
	"github.com/kravtofly/svr-backend/pkg/db"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	videoService *videos.Service,
	playbackService *playback.Service,
	reconcileService *reconcile.Service,
	lifecycleMetrics *metrics.LifecycleMetrics,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mux", controllers.MuxWebhook(videoService, cfg.Mux.WebhookSecret, lifecycleMetrics, logg))
	})

	r.Route("/api/v1/playback", func(r chi.Router) {
		r.Get("/sign", controllers.SignPlayback(playbackService, logg))
		r.Post("/sign", controllers.SignPlayback(playbackService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Post("/reconcile", controllers.Reconcile(reconcileService, cfg.Reconcile.AdminKey, logg))
	})

	return r
}
