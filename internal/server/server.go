package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chefscart/backend/config"
	"github.com/chefscart/backend/internal/api"
	"github.com/chefscart/backend/internal/middleware"
	"github.com/chefscart/backend/internal/service"
)

// Deps are the services the HTTP server exposes
type Deps struct {
	ImageService service.IImageService
	Validator    middleware.TokenValidator
	// RateLimiter applies the per-user image budget; nil disables it
	RateLimiter  *middleware.RateLimiter
	HealthChecks map[string]api.HealthCheck
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
}

// New creates a new server instance with all routes registered
func New(cfg *config.Config, deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	api.NewHealthHandler(deps.HealthChecks).RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	api.NewImageHandler(deps.ImageService, deps.Validator, deps.RateLimiter).RegisterRoutes(v1)

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Printf("[Server] listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
