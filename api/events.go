package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/normalize"
)

// IngestEvent accepts one structured event submission for a run.
// POST /v1/runs/:run_id/events
//
// The body is either a canonical Event shape or a {line, runId?, jobId?,
// runnerId?} wrapper. The stored event, including its assigned seq, is
// returned.
func (h *Handler) IngestEvent(c echo.Context) error {
	runID := c.Param("run_id")

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
	}

	ev, err := normalize.Submission(body, normalize.Ambient{
		RunID:  runID,
		Source: domain.SourceServer,
	})
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	stored, err := h.svc.Ingest(c.Request().Context(), ev)
	if err != nil {
		h.logger.Error("failed to ingest event", zap.String("run_id", runID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store event"})
	}

	return c.JSON(http.StatusCreated, stored)
}

// GetRunEvents returns one backward-cursor page of a run's history.
// GET /v1/runs/:run_id/events?cursor=&limit=
func (h *Handler) GetRunEvents(c echo.Context) error {
	runID := c.Param("run_id")
	cursor := queryInt64(c, "cursor", 0)
	limit := int(queryInt64(c, "limit", 0))

	page, err := h.svc.Events(c.Request().Context(), runID, cursor, limit)
	if err != nil {
		h.logger.Error("failed to get events", zap.String("run_id", runID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get events"})
	}
	return c.JSON(http.StatusOK, page)
}

// PurgeRun deletes one run's events and summary.
// DELETE /v1/runs/:run_id/events
func (h *Handler) PurgeRun(c echo.Context) error {
	runID := c.Param("run_id")
	if err := h.svc.PurgeRun(c.Request().Context(), runID); err != nil {
		h.logger.Error("failed to purge run", zap.String("run_id", runID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to purge run"})
	}
	return c.JSON(http.StatusOK, map[string]string{"deleted": runID})
}

// PurgeAll deletes all runs' events and summaries.
// DELETE /v1/runs
func (h *Handler) PurgeAll(c echo.Context) error {
	if err := h.svc.PurgeAll(c.Request().Context()); err != nil {
		h.logger.Error("failed to purge history", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to purge history"})
	}
	return c.JSON(http.StatusOK, map[string]string{"deleted": "all"})
}

// queryInt64 parses an integer query parameter, falling back on absence or
// garbage.
func queryInt64(c echo.Context, name string, fallback int64) int64 {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
