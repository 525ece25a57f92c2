package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"bastion-server/internal/config"
	"bastion-server/internal/infrastructure"
	"bastion-server/internal/infrastructure/observability"
	middleware "bastion-server/internal/interfaces/httpserver/middlewares"
	v1 "bastion-server/internal/interfaces/httpserver/routes/v1"

	_ "bastion-server/docs/swagger"
)

type HTTPServer struct {
	engine  *gin.Engine
	infra   *infrastructure.Infrastructure
	v1Route *v1.V1Route
	config  *config.Config
}

func NewHttpServer(
	v1Route *v1.V1Route,
	infra *infrastructure.Infrastructure,
	cfg *config.Config,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := HTTPServer{
		gin.New(),
		infra,
		v1Route,
		cfg,
	}
	server.engine.Use(gin.Recovery())
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.TracingMiddleware(cfg.ServiceName))
	server.engine.Use(middleware.LoggingMiddleware(infra.Logger, observability.NewSanitizer(cfg.TelemetryPIILevel, cfg.ServiceName)))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	server.engine.GET("/readyz", server.readyz)
	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.EnableSwagger {
		server.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	server.registerRoutes()
	return &server
}

func (s *HTTPServer) readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if failures := s.infra.Ready(ctx); len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *HTTPServer) registerRoutes() {
	// Public routes (signature or no auth)
	root := s.engine.Group("/")
	s.v1Route.RegisterPublicRouter(root)

	protected := s.engine.Group("/")
	protected.Use(middleware.AuthMiddleware(s.infra.Validator, s.config.EnableAuth, s.config.AnonymousUserID, s.infra.Logger))
	s.v1Route.RegisterRouter(protected)
}

// Handler exposes the engine, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then drains in-flight requests for up to SHUTDOWN_TIMEOUT.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.infra.Logger.Info().Int("port", s.config.HTTPPort).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	s.infra.Logger.Info().Msg("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
