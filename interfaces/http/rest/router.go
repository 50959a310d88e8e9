// Package rest wires the HTTP surface of the canvas service.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"canvasd/infrastructure/config"
	"canvasd/interfaces/http/rest/handlers"
	"canvasd/interfaces/http/rest/middleware"
	"canvasd/pkg/auth"
	"canvasd/pkg/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	cfg      *config.Config
	canvas   *handlers.CanvasHandler
	runs     *handlers.RunHandler
	activity *handlers.ActivityHandler
	metrics  *observability.Collector
	jwt      *auth.JWTValidator
	logger   *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	cfg *config.Config,
	canvasHandler *handlers.CanvasHandler,
	runHandler *handlers.RunHandler,
	activityHandler *handlers.ActivityHandler,
	metrics *observability.Collector,
	jwtValidator *auth.JWTValidator,
	logger *zap.Logger,
) *Router {
	return &Router{
		cfg:      cfg,
		canvas:   canvasHandler,
		runs:     runHandler,
		activity: activityHandler,
		metrics:  metrics,
		jwt:      jwtValidator,
		logger:   logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}

	if rt.cfg.Server.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Operational endpoints
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.cfg.Server.EnableMetrics && rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	// API routes
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware())

		r.Route("/canvases", func(r chi.Router) {
			r.Post("/", rt.canvas.CreateCanvas)
			r.Get("/", rt.canvas.ListCanvases)

			r.Route("/{canvasID}", func(r chi.Router) {
				r.Get("/", rt.canvas.GetCanvas)
				r.Delete("/", rt.canvas.DeleteCanvas)
				r.Post("/persist", rt.canvas.MarkPersisted)

				r.Route("/nodes", func(r chi.Router) {
					r.Post("/", rt.canvas.AddNode)
					r.Route("/{nodeID}", func(r chi.Router) {
						r.Patch("/", rt.canvas.UpdateNode)
						r.Delete("/", rt.canvas.RemoveNode)
						r.Get("/context", rt.canvas.ResolveContext)
						r.Get("/capsules", rt.canvas.FindCapsules)
						r.Post("/preview", rt.runs.StartPreview)
						r.Put("/preview/language", rt.runs.SetPreviewLanguage)
					})
				})

				r.Route("/edges", func(r chi.Router) {
					r.Post("/", rt.canvas.AddEdge)
					r.Delete("/{edgeID}", rt.canvas.RemoveEdge)
				})

				r.Post("/generation", rt.runs.StartGeneration)
			})
		})

		r.Get("/preview", rt.runs.ActivePreview)
		r.Post("/preview/cancel", rt.runs.CancelPreview)

		r.Get("/generation", rt.runs.GenerationStatus)
		r.Delete("/generation", rt.runs.StopGeneration)

		r.Get("/activity", rt.activity.ListActivity)
		r.Delete("/activity", rt.activity.ClearActivity)
		r.Get("/notices", rt.activity.ListNotices)
	})

	return router
}

// authMiddleware selects real JWT verification or the development identity
func (rt *Router) authMiddleware() func(next http.Handler) http.Handler {
	if rt.cfg.Auth.Enabled && rt.jwt != nil {
		ipLimiter := auth.NewTokenBucketLimiter(100, 600*time.Millisecond)   // ~100/min per IP
		userLimiter := auth.NewTokenBucketLimiter(200, 300*time.Millisecond) // ~200/min per user
		return middleware.Authenticate(rt.jwt, ipLimiter, userLimiter, rt.logger)
	}
	return middleware.DevAuthenticate()
}

func (rt *Router) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
