// Package server hosts the HTTP adapter and ties it to the fx lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/api"
	"github.com/pageza/mealsense/backend/internal/container"
	"github.com/pageza/mealsense/backend/internal/database"
	"github.com/pageza/mealsense/backend/internal/middleware"
)

// Module provides the server and starts it with the fx application
var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(registerHooks),
)

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
}

// New creates a new server instance over a built container
func New(c *container.Container) *Server {
	cfg := c.Config
	log := c.Logger.Named("http")

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.ErrorHandler(log),
		middleware.RequestLogger(log, c.Metrics),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	limiter := middleware.NewRateLimiter(c.Redis, middleware.RateLimitConfig{
		Window: cfg.Server.RateWindow,
		Limit:  cfg.Server.RateLimit,
	}, log)

	api.RegisterRoutes(router, api.Dependencies{
		Recommendations: c.Recommendations,
		Nutrition:       c.Nutrition,
		RAG:             c.RAG,
		Health: api.HealthCheckFunc(func(ctx context.Context) error {
			return database.HealthCheck(ctx, c.DB)
		}),
		Metrics:       c.Metrics.Handler(),
		Logger:        log,
		APIMiddleware: []gin.HandlerFunc{limiter.Middleware()},
	})

	return &Server{
		router: router,
		http: &http.Server{
			Addr:    cfg.Server.Addr(),
			Handler: router,
		},
		logger: log,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.http.Shutdown(ctx)
}

func registerHooks(lc fx.Lifecycle, s *Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := s.Start(); err != nil {
					s.logger.Error("HTTP server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
}
