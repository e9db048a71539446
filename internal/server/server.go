// Package server wires the runtime's components and serves the management
// API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apihttp "github.com/rfdeck/appos/internal/api/http"
	"github.com/rfdeck/appos/internal/api/middleware"
	"github.com/rfdeck/appos/internal/config"
	"github.com/rfdeck/appos/internal/installer"
	"github.com/rfdeck/appos/internal/logging"
	"github.com/rfdeck/appos/internal/monitoring"
	"github.com/rfdeck/appos/internal/permissions"
	"github.com/rfdeck/appos/internal/registry"
	"github.com/rfdeck/appos/internal/sandbox"
	"github.com/rfdeck/appos/internal/scripting"
	"go.uber.org/zap"
)

// Server bundles the HTTP server and the runtime's components.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	registry *registry.Manager
	httpSrv  *http.Server
}

// New builds the full runtime from configuration. The host carries the
// hardware backends; zero-value members leave the corresponding bindings
// unavailable to scripts.
func New(cfg *config.Config, host sandbox.Host, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewDefault()
	}

	store, err := permissions.OpenFileStore(cfg.Registry.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open permission store: %w", err)
	}
	perms := permissions.NewEngine(store, log)

	metrics := monitoring.New()

	engine := scripting.NewGojaEngine(log, time.Duration(cfg.Sandbox.TimeLimitMS)*time.Millisecond)
	sandboxes := sandbox.NewManager(engine, perms, host, sandbox.Config{
		PoolSize:          cfg.Sandbox.PoolSize,
		MemoryLimit:       cfg.Sandbox.MemoryLimit,
		TimeLimit:         time.Duration(cfg.Sandbox.TimeLimitMS) * time.Millisecond,
		AllowUnclassified: cfg.Sandbox.AllowUnclassified,
	}, log).WithMetrics(metrics)

	reg := registry.NewManager(registry.Config{
		MaxApps: cfg.Registry.MaxApps,
		AppsDir: cfg.Registry.AppsDir,
	}, installer.New(log), perms, sandboxes, log).WithMetrics(metrics)

	router := buildRouter(cfg, reg, metrics)

	return &Server{
		cfg:      cfg,
		log:      log.Component("server"),
		registry: reg,
		httpSrv: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
		},
	}, nil
}

func buildRouter(cfg *config.Config, reg *registry.Manager, metrics *monitoring.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(reg)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/capabilities", handlers.ListCapabilities)

	apps := router.Group("/apps")
	{
		apps.GET("", handlers.ListApps)
		apps.POST("", handlers.InstallApp)
		apps.GET("/current", handlers.CurrentApp)
		apps.GET("/:id", handlers.GetApp)
		apps.DELETE("/:id", handlers.UninstallApp)
		apps.POST("/:id/start", handlers.StartApp)
		apps.POST("/:id/stop", handlers.StopApp)
		apps.POST("/:id/pause", handlers.PauseApp)
		apps.POST("/:id/resume", handlers.ResumeApp)
		apps.GET("/:id/permissions", handlers.GetPermissions)
		apps.PUT("/:id/permissions", handlers.SetPermissions)
		apps.POST("/:id/permissions/grant", handlers.GrantPermissions)
		apps.POST("/:id/permissions/revoke", handlers.RevokePermissions)
	}
	return router
}

// Run serves the management API until Shutdown.
func (s *Server) Run() error {
	s.log.Info("management API listening", zap.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server, then stops every running app through the
// registry.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown failed", zap.Error(err))
	}
	return s.registry.Close()
}

// Registry exposes the registry for embedding callers.
func (s *Server) Registry() *registry.Manager {
	return s.registry
}
