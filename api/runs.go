package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/runforge/runforge/domain"
	"github.com/runforge/runforge/supervisor"
)

// LaunchRun starts an automation job under the supervisor.
// POST /v1/runs
func (h *Handler) LaunchRun(c echo.Context) error {
	var job supervisor.Job
	if err := c.Bind(&job); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job body"})
	}
	if strings.TrimSpace(job.Command) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "command is required"})
	}

	runID := h.sup.Launch(job)
	h.logger.Info("run launched", zap.String("run_id", runID), zap.String("job_id", job.JobID))
	return c.JSON(http.StatusAccepted, map[string]string{"runId": runID})
}

// ListRunSummaries returns recent run summaries, most recently active first.
// GET /v1/runs?limit=
func (h *Handler) ListRunSummaries(c echo.Context) error {
	limit := int(queryInt64(c, "limit", 0))

	summaries, err := h.svc.Summaries(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("failed to list run summaries", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	if summaries == nil {
		summaries = []domain.RunSummary{}
	}
	return c.JSON(http.StatusOK, summaries)
}

// RunStatus returns the ephemeral record for an in-flight or recent run.
// GET /v1/runs/:run_id/status
func (h *Handler) RunStatus(c echo.Context) error {
	runID := c.Param("run_id")
	run := h.svc.Registry().Get(runID)
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}
	return c.JSON(http.StatusOK, run)
}
