package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/service"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

type RunHandler struct {
	svc *service.SegregationService
	// runCtx bounds triggered runs; request contexts end with the response.
	runCtx context.Context
}

func NewRunHandler(runCtx context.Context, svc *service.SegregationService) *RunHandler {
	return &RunHandler{svc: svc, runCtx: runCtx}
}

// Health reports liveness and whether a run is in progress.
func (h *RunHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": h.svc.Running(),
	})
}

// ListRuns returns the most recent runs, newest first.
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := defaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.svc.Runs().ListRecent(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// LatestRun returns the newest run.
func (h *RunHandler) LatestRun(c *gin.Context) {
	run, err := h.svc.Runs().Latest(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch latest run")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch latest run"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// TriggerRun starts a run in the background.
func (h *RunHandler) TriggerRun(c *gin.Context) {
	if err := h.svc.Trigger(h.runCtx); err != nil {
		if errors.Is(err, service.ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "run started"})
}
