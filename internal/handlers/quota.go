package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/gin-gonic/gin"
)

// UsageReader is the ledger read path.
type UsageReader interface {
	Usage(ctx context.Context, salonID, date string) (*models.QuotaUsage, error)
}

// AuditReader is the audit trail read path.
type AuditReader interface {
	ListAudit(ctx context.Context, salonID, action string, limit int) ([]models.AuditLog, error)
}

// QuotaHandler serves the dashboard read endpoints.
type QuotaHandler struct {
	ledger UsageReader
	audit  AuditReader
	today  func() string
	logger *slog.Logger
}

func NewQuotaHandler(ledger UsageReader, audit AuditReader, today func() string, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{
		ledger: ledger,
		audit:  audit,
		today:  today,
		logger: logger,
	}
}

// GetUsage returns counters and caps for one tenant, today unless ?date= is given.
func (h *QuotaHandler) GetUsage(c *gin.Context) {
	salonID := c.Param("salon_id")
	date := c.DefaultQuery("date", h.today())
	if _, err := time.Parse("2006-01-02", date); err != nil {
		respondValidationError(c, errors.New("date must be YYYY-MM-DD"))
		return
	}

	usage, err := h.ledger.Usage(c.Request.Context(), salonID, date)
	if err != nil {
		h.logger.Error("failed to read quota usage", slog.String("salon_id", salonID), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "failed to read quota usage", err)
		return
	}
	respondSuccess(c, "quota usage", usage)
}

// ListAudit returns the newest dispatch history entries for one tenant.
func (h *QuotaHandler) ListAudit(c *gin.Context) {
	salonID := c.Param("salon_id")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondValidationError(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.audit.ListAudit(c.Request.Context(), salonID, c.Query("action"), limit)
	if err != nil {
		h.logger.Error("failed to list audit logs", slog.String("salon_id", salonID), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "failed to list audit logs", err)
		return
	}
	respondSuccess(c, "audit logs", entries)
}
