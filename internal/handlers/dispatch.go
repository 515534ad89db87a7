package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/gin-gonic/gin"
)

// Dispatcher is the worker surface exposed over HTTP.
type Dispatcher interface {
	RunOnce(ctx context.Context) models.DispatchResult
	RunBatch(ctx context.Context, n int) models.BatchSummary
	Sweep(ctx context.Context) (int, error)
}

// DispatchHandler exposes the worker invocations.
type DispatchHandler struct {
	worker   Dispatcher
	maxBatch int
	logger   *slog.Logger
}

func NewDispatchHandler(worker Dispatcher, maxBatch int, logger *slog.Logger) *DispatchHandler {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	return &DispatchHandler{
		worker:   worker,
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Run processes at most one queued message. The status code follows the outcome.
func (h *DispatchHandler) Run(c *gin.Context) {
	respondResult(c, h.worker.RunOnce(c.Request.Context()))
}

// Batch runs up to ?size=N invocations.
func (h *DispatchHandler) Batch(c *gin.Context) {
	size := 1
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondValidationError(c, errors.New("size must be a positive integer"))
			return
		}
		size = n
	}
	if size > h.maxBatch {
		size = h.maxBatch
	}

	summary := h.worker.RunBatch(c.Request.Context(), size)
	if n := summary.Counts[models.OutcomeError]; n > 0 {
		h.logger.Warn("batch finished with errors", slog.Int("errors", n), slog.Int("attempted", summary.Attempted))
	}
	respondBatch(c, summary)
}

// Sweep requeues abandoned processing rows.
func (h *DispatchHandler) Sweep(c *gin.Context) {
	n, err := h.worker.Sweep(c.Request.Context())
	if err != nil {
		h.logger.Error("sweep failed", slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "sweep failed", err)
		return
	}
	respondSuccess(c, "sweep finished", gin.H{"requeued": n})
}
