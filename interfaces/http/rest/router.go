package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"feedrank/application/commands/bus"
	querybus "feedrank/application/queries/bus"
	"feedrank/interfaces/http/rest/handlers"
	"feedrank/interfaces/http/rest/middleware"
	"feedrank/pkg/auth"
	pkgerrors "feedrank/pkg/errors"
)

// ReadinessCheck reports whether a dependency can serve traffic
type ReadinessCheck func(ctx context.Context) error

// StatsReporter returns counters included in the readiness report
type StatsReporter func() map[string]interface{}

// RouterOptions carries the optional router collaborators
type RouterOptions struct {
	AllowedOrigins     []string
	RateLimiter        auth.RateLimiter
	RateLimitPerMinute int
	Metrics            http.Handler
	Recorder           middleware.RequestRecorder
	ReadinessChecks    map[string]ReadinessCheck
	ReadinessStats     map[string]StatsReporter
	Debug              bool
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus    *bus.CommandBus
	queryBus      *querybus.QueryBus
	authenticator *middleware.Authenticator
	errors        *pkgerrors.ErrorHandler
	opts          RouterOptions
	logger        *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	validator middleware.TokenValidator,
	opts RouterOptions,
	logger *zap.Logger,
) *Router {
	errorHandler := pkgerrors.NewErrorHandler(logger, opts.Debug)
	return &Router{
		commandBus:    commandBus,
		queryBus:      queryBus,
		authenticator: middleware.NewAuthenticator(validator, errorHandler, logger),
		errors:        errorHandler,
		opts:          opts,
		logger:        logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger, rt.opts.Recorder))
	router.Use(versionMiddleware)

	origins := rt.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Feed-Fallback"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.Metrics)
	}

	// Legacy v1 paths
	router.Route("/api/v1", func(r chi.Router) {
		r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
			target := strings.Replace(req.URL.Path, "/api/v1", "/api/v2", 1)
			if req.URL.RawQuery != "" {
				target += "?" + req.URL.RawQuery
			}
			http.Redirect(w, req, target, http.StatusPermanentRedirect)
		})
	})

	feedHandler := handlers.NewFeedHandler(rt.queryBus, rt.errors, rt.logger)
	algorithmHandler := handlers.NewAlgorithmHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)

	router.Route("/api/v2", func(r chi.Router) {
		r.Use(rt.authenticator.Optional)
		if rt.opts.RateLimiter != nil {
			r.Use(middleware.RateLimit(rt.opts.RateLimiter, rt.opts.RateLimitPerMinute, rt.errors, rt.logger))
		}

		r.Get("/feed", feedHandler.GetFeed)

		r.Route("/algorithms", func(r chi.Router) {
			r.Get("/", algorithmHandler.ListAlgorithms)
			r.Get("/active", algorithmHandler.GetActiveAlgorithm)
			r.Get("/{id}", algorithmHandler.GetAlgorithm)
			r.Get("/{id}/revisions", algorithmHandler.ListRevisions)

			r.Group(func(r chi.Router) {
				r.Use(rt.authenticator.Required)

				r.Get("/installed", algorithmHandler.ListInstalled)
				r.Post("/", algorithmHandler.CreateAlgorithm)
				r.Put("/{id}", algorithmHandler.UpdateAlgorithm)
				r.Delete("/{id}", algorithmHandler.DeleteAlgorithm)
				r.Post("/{id}/install", algorithmHandler.InstallAlgorithm)
				r.Delete("/{id}/install", algorithmHandler.UninstallAlgorithm)
				r.Post("/{id}/activate", algorithmHandler.ActivateAlgorithm)
				r.Post("/{id}/ratings", algorithmHandler.RateAlgorithm)
			})
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	writeStatus(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// readinessCheck runs every registered dependency check
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(rt.opts.ReadinessChecks))
	status := http.StatusOK
	for name, check := range rt.opts.ReadinessChecks {
		if err := check(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	body := map[string]interface{}{"status": state, "checks": checks}
	if len(rt.opts.ReadinessStats) > 0 {
		stats := make(map[string]interface{}, len(rt.opts.ReadinessStats))
		for name, report := range rt.opts.ReadinessStats {
			stats[name] = report()
		}
		body["stats"] = stats
	}
	writeStatus(w, status, body)
}

func writeStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// versionMiddleware adds API version headers to all responses
func versionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := "v2"
		if strings.HasPrefix(r.URL.Path, "/api/v1") {
			version = "v1"
		}

		w.Header().Set("X-API-Version", version)
		w.Header().Set("X-API-Latest", "v2")
		w.Header().Set("X-API-Deprecated", strconv.FormatBool(version == "v1"))

		next.ServeHTTP(w, r)
	})
}
