package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/lazysignup-go/internal/api/handler"
	"github.com/mcoot/lazysignup-go/internal/api/middleware"
	"github.com/mcoot/lazysignup-go/internal/api/response"
	"github.com/mcoot/lazysignup-go/internal/metrics"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	"github.com/mcoot/lazysignup-go/internal/services/classifier"
	"github.com/mcoot/lazysignup-go/internal/services/lazy"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	LazyService *lazy.Service
	Classifier  *classifier.Classifier
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	// AdminToken guards /api/v1/admin; empty disables it
	AdminToken string
	// LazyTTL is the default older_than for the admin endpoints
	LazyTTL      time.Duration
	SecureCookie bool
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	userHandler := handler.NewUserHandler(cfg.AuthService, cfg.LazyService)
	adminHandler := handler.NewAdminHandler(cfg.AuthService, cfg.LazyService, cfg.LazyTTL, cfg.Logger)
	classifyHandler := handler.NewClassifyHandler(cfg.Classifier)

	// Create middleware
	sessionMiddleware := middleware.Session(cfg.AuthService)
	lazyUserMiddleware := middleware.LazyUser(middleware.LazyConfig{
		Auth:         cfg.AuthService,
		Lazy:         cfg.LazyService,
		Classifier:   cfg.Classifier,
		Metrics:      cfg.Metrics,
		Logger:       cfg.Logger,
		SecureCookie: cfg.SecureCookie,
	})
	authMiddleware := middleware.Auth()
	requireLazy := middleware.RequireLazy(cfg.LazyService)
	requireNonLazy := middleware.RequireNonLazy(cfg.LazyService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)
	api.Use(sessionMiddleware)

	// Routes that never create a lazy user
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/classify", classifyHandler.Classify).Methods(http.MethodGet)
	api.HandleFunc("/users/register", userHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/login", userHandler.Login).Methods(http.MethodPost)

	// Routes for signed-up users only
	api.Handle("/users/logout", authMiddleware(requireNonLazy(http.HandlerFunc(userHandler.Logout)))).Methods(http.MethodPost)

	// Routes that give anonymous visitors a lazy user
	allowLazy := api.PathPrefix("/users").Subrouter()
	allowLazy.Use(lazyUserMiddleware)
	allowLazy.HandleFunc("/me", userHandler.GetMe).Methods(http.MethodGet)
	allowLazy.Handle("/convert", requireLazy(http.HandlerFunc(userHandler.Convert))).Methods(http.MethodPost)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Admin(cfg.AdminToken))
	admin.HandleFunc("/lazy", adminHandler.ListLazy).Methods(http.MethodGet)
	admin.HandleFunc("/lazy/cleanup", adminHandler.Cleanup).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}", adminHandler.DeleteUser).Methods(http.MethodDelete)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.HealthResponse{Status: "ok"})
}
