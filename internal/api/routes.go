package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"uberfix/internal/observability"
)

type RouterDeps struct {
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Gatherer    prometheus.Gatherer
	ReadyChecks map[string]observability.CheckFunc
}

func NewRouter(h *Handler, deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.ReadyChecks))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", observability.Handler(deps.Gatherer, logger))
	}

	limiter := NewRateLimiter(h.cfg.RateLimitRPS, h.cfg.RateLimitBurst)

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireAuth(h.cfg))
		r.Use(limiter.Middleware)

		r.Get("/stages", h.ListStages)
		r.Get("/stages/{stage}", func(w http.ResponseWriter, r *http.Request) {
			h.GetStage(w, r, chi.URLParam(r, "stage"))
		})
		r.Get("/stages/{stage}/progress", func(w http.ResponseWriter, r *http.Request) {
			h.GetStageProgress(w, r, chi.URLParam(r, "stage"))
		})
		r.Get("/stats/stages", h.StageStats)

		r.Post("/requests", h.CreateRequest)
		r.Get("/requests", h.ListRequests)
		r.Route("/requests/{requestId}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				h.GetRequest(w, r, chi.URLParam(r, "requestId"))
			})
			r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
				h.GetRequestProgress(w, r, chi.URLParam(r, "requestId"))
			})
			r.Post("/transition", func(w http.ResponseWriter, r *http.Request) {
				h.Transition(w, r, chi.URLParam(r, "requestId"))
			})
			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				h.History(w, r, chi.URLParam(r, "requestId"))
			})
			r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
				h.Notifications(w, r, chi.URLParam(r, "requestId"))
			})
			r.Post("/attachments", func(w http.ResponseWriter, r *http.Request) {
				h.UploadAttachment(w, r, chi.URLParam(r, "requestId"))
			})
			r.Get("/attachments", func(w http.ResponseWriter, r *http.Request) {
				h.ListAttachments(w, r, chi.URLParam(r, "requestId"))
			})
			r.Get("/attachments/{attachmentId}", func(w http.ResponseWriter, r *http.Request) {
				h.DownloadAttachment(w, r, chi.URLParam(r, "requestId"), chi.URLParam(r, "attachmentId"))
			})
		})
	})

	return r
}
