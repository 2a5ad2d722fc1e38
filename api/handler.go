// Package api provides HTTP handlers for the pipeline service.
package api

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/runforge/runforge/config"
	"github.com/runforge/runforge/service"
	"github.com/runforge/runforge/supervisor"
)

// Handler handles HTTP requests.
type Handler struct {
	svc      *service.Service
	sup      *supervisor.Supervisor
	config   *config.Config
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, sup *supervisor.Supervisor, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		sup:    sup,
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/runs", h.LaunchRun)
	e.GET("/v1/runs", h.ListRunSummaries)
	e.DELETE("/v1/runs", h.PurgeAll)

	e.GET("/v1/runs/:run_id/status", h.RunStatus)
	e.POST("/v1/runs/:run_id/events", h.IngestEvent)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)
	e.DELETE("/v1/runs/:run_id/events", h.PurgeRun)
	e.GET("/v1/runs/:run_id/live", h.Live)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
