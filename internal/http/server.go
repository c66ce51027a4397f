// Package http is the ops surface: health, prometheus metrics, relay
// aggregates and recent DLQ rows. Read-only; the pipeline itself has no
// user-facing failure surface.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/config"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/http/middleware"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/relay"
	"github.com/KaoticFocus/BluidFlow-Pro2025-sub000/internal/repository"
)

type Server struct {
	e    *echo.Echo
	logg *zap.Logger
}

func NewServer(cfg config.Config, rel *relay.Relay, dlqRepo repository.DLQRepository, rds *redis.Client, logg *zap.Logger) *Server {
	if logg == nil {
		logg = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ops:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", rlMW)
	v1.GET("/relay/metrics", relayMetricsHandler(rel))
	v1.GET("/dlq", listDLQHandler(dlqRepo))

	return &Server{e: e, logg: logg}
}

func (s *Server) Start(addr string) error {
	s.logg.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
