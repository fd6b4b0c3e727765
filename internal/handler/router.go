package handler

import (
	"net/http"
	"time"

	"guardian-service/internal/config"
	"guardian-service/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// requireHTTPS rejects any request that wasn’t made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers bundles the route registrars the router mounts.
type Handlers struct {
	UserInfo   *UserInfoHandler
	Contacts   *ContactsHandler
	Locations  *LocationsHandler
	SharedData *SharedDataHandler
}

// NewRouter creates and configures the Chi router with all middleware and
// routes. The /api surface requires a bearer token; /shared/{token} is
// public by design, gated only by the link token itself.
func NewRouter(cfg *config.Config, handlers Handlers, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if cfg.Server.EnableTLS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint, also the target of the device connectivity probe
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		util.Debug("Health check requested")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"guardian-service"}`))
	})

	// Authenticated API surface
	router.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(cfg.Server.SigningSecret))
		handlers.UserInfo.RegisterRoutes(r)
		handlers.Contacts.RegisterRoutes(r)
		handlers.Locations.RegisterRoutes(r)
		handlers.SharedData.RegisterRoutes(r)
	})

	// Public shared-data read
	router.Get("/shared/{token}", handlers.SharedData.ReadShared)

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":"method not allowed"}`))
	})

	return router
}
