package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/metrics"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/retry"
)

// Quota policies applied when a tenant's daily budget is exhausted.
const (
	QuotaPolicyDrop  = "drop"
	QuotaPolicyDefer = "defer"
)

const quotaDateLayout = "2006-01-02"

// MessageQueue is the subset of the queue store the worker drives.
type MessageQueue interface {
	DequeueNext(ctx context.Context, now time.Time) (*models.QueuedMessage, error)
	MarkFailedTerminal(ctx context.Context, id string, retryCount int, reason string) error
	RescheduleWithBackoff(ctx context.Context, id string, retryCount int, backoff time.Duration, reason string) (time.Time, error)
	Defer(ctx context.Context, id string, until time.Time, reason string) error
	Complete(ctx context.Context, id string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) ([]models.QueuedMessage, error)
}

// QuotaLedger is the subset of the ledger the worker drives.
type QuotaLedger interface {
	CheckQuota(ctx context.Context, salonID, category, date string) (bool, error)
	Reserve(ctx context.Context, salonID, category, date string) (bool, error)
	Commit(ctx context.Context, salonID, category, date string) error
	Release(ctx context.Context, salonID, category, date string) error
}

// Gateway delivers one message.
type Gateway interface {
	Send(ctx context.Context, recipient, content, category string) (*SendResult, error)
}

// HistorySink records what the worker did.
type HistorySink interface {
	Record(ctx context.Context, entry *models.AuditLog) error
	RecordDelivery(ctx context.Context, msg *models.QueuedMessage) error
}

// WorkerConfig holds the dispatch policy knobs.
type WorkerConfig struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	QuotaPolicy   string
	QuotaLocation *time.Location
	DeferJitter   time.Duration
	StaleAfter    time.Duration
}

// DispatchWorker processes at most one queued message per RunOnce.
type DispatchWorker struct {
	queue   MessageQueue
	ledger  QuotaLedger
	gateway Gateway
	history HistorySink
	metrics *metrics.Collector
	logger  *slog.Logger
	cfg     WorkerConfig
	now     func() time.Time
}

func NewDispatchWorker(
	queue MessageQueue,
	ledger QuotaLedger,
	gateway Gateway,
	history HistorySink,
	collector *metrics.Collector,
	logger *slog.Logger,
	cfg WorkerConfig,
) *DispatchWorker {
	if collector == nil {
		collector = metrics.New()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 5 * time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Minute
	}
	if cfg.QuotaPolicy != QuotaPolicyDefer {
		cfg.QuotaPolicy = QuotaPolicyDrop
	}
	if cfg.QuotaLocation == nil {
		cfg.QuotaLocation = time.UTC
	}
	return &DispatchWorker{
		queue:   queue,
		ledger:  ledger,
		gateway: gateway,
		history: history,
		metrics: collector,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// WithClock overrides the worker clock. Tests only.
func (w *DispatchWorker) WithClock(now func() time.Time) *DispatchWorker {
	w.now = now
	return w
}

// QuotaDate is the ledger date for t in the configured quota location.
func (w *DispatchWorker) QuotaDate(t time.Time) string {
	return t.In(w.cfg.QuotaLocation).Format(quotaDateLayout)
}

// RunOnce claims and processes a single message.
func (w *DispatchWorker) RunOnce(ctx context.Context) models.DispatchResult {
	if w.cfg.StaleAfter > 0 {
		if _, err := w.Sweep(ctx); err != nil {
			w.logger.Warn("stale sweep failed", slog.Any("error", err))
		}
	}

	now := w.now()
	msg, err := w.queue.DequeueNext(ctx, now)
	if err != nil {
		w.metrics.IncErrors()
		w.logger.Error("failed to dequeue message", slog.Any("error", err))
		return models.DispatchResult{Outcome: models.OutcomeError, Error: err.Error()}
	}
	if msg == nil {
		w.metrics.IncEmpty()
		return models.DispatchResult{Outcome: models.OutcomeEmpty}
	}
	w.metrics.IncClaimed()

	category := models.QuotaCategory(msg.Type)
	result := models.DispatchResult{
		MessageID:  msg.ID,
		SalonID:    msg.SalonID,
		Category:   msg.Type,
		RetryCount: msg.RetryCount,
	}
	log := w.logger.With(
		slog.String("message_id", msg.ID),
		slog.String("salon_id", msg.SalonID),
		slog.String("category", msg.Type),
	)

	if msg.RetryCount >= w.cfg.MaxRetries {
		return w.failTerminal(ctx, log, msg, result, fmt.Sprintf("retry ceiling reached after %d attempts", msg.RetryCount))
	}

	date := w.QuotaDate(now)
	allowed, err := w.ledger.CheckQuota(ctx, msg.SalonID, category, date)
	if err != nil {
		return w.abortClaim(ctx, log, msg, result, fmt.Errorf("check quota: %w", err))
	}
	if !allowed {
		return w.quotaExceeded(ctx, log, msg, result, now)
	}

	reserved, err := w.ledger.Reserve(ctx, msg.SalonID, category, date)
	if err != nil {
		return w.abortClaim(ctx, log, msg, result, fmt.Errorf("reserve quota: %w", err))
	}
	if !reserved {
		return w.quotaExceeded(ctx, log, msg, result, now)
	}

	res, sendErr := w.gateway.Send(ctx, msg.RecipientPhone, msg.Content, msg.Type)
	if sendErr == nil && res != nil && res.OK {
		if err := w.ledger.Commit(ctx, msg.SalonID, category, date); err != nil {
			w.bookkeepingError(log, "commit quota", err)
		}
		return w.delivered(ctx, log, msg, result)
	}

	// Failed attempts do not consume budget.
	if err := w.ledger.Release(ctx, msg.SalonID, category, date); err != nil {
		w.bookkeepingError(log, "release quota", err)
	}
	return w.deliveryFailed(ctx, log, msg, result, failureReason(res, sendErr))
}

// RunBatch runs up to n invocations, stopping early once the queue is empty.
func (w *DispatchWorker) RunBatch(ctx context.Context, n int) models.BatchSummary {
	if n <= 0 {
		n = 1
	}
	summary := models.BatchSummary{Counts: map[models.Outcome]int{}}
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		res := w.RunOnce(ctx)
		summary.Attempted++
		summary.Counts[res.Outcome]++
		if res.Outcome == models.OutcomeEmpty {
			break
		}
		summary.Results = append(summary.Results, res)
	}
	return summary
}

// Sweep returns abandoned processing rows to the queue.
func (w *DispatchWorker) Sweep(ctx context.Context) (int, error) {
	if w.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	moved, err := w.queue.RequeueStale(ctx, w.cfg.StaleAfter)
	w.metrics.AddRequeued(int64(len(moved)))
	for i := range moved {
		msg := &moved[i]
		w.logger.Warn("requeued stale message",
			slog.String("message_id", msg.ID),
			slog.String("salon_id", msg.SalonID))
		w.audit(ctx, w.logger, msg, models.ActionMessageRequeued,
			fmt.Sprintf("Message %s released after being claimed for longer than %s", msg.ID, w.cfg.StaleAfter))
	}
	if err != nil {
		return len(moved), fmt.Errorf("requeue stale: %w", err)
	}
	return len(moved), nil
}

func (w *DispatchWorker) delivered(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, result models.DispatchResult) models.DispatchResult {
	w.audit(ctx, log, msg, models.ActionWhatsAppSent,
		fmt.Sprintf("Sent %s message to %s", msg.Type, msg.RecipientPhone))
	if err := w.history.RecordDelivery(ctx, msg); err != nil {
		w.bookkeepingError(log, "record delivery", err)
	}
	if err := w.queue.Complete(ctx, msg.ID); err != nil {
		w.bookkeepingError(log, "complete message", err)
	}

	w.metrics.IncDelivered()
	log.Info("message delivered", slog.String("outcome", string(models.OutcomeDelivered)))
	result.Outcome = models.OutcomeDelivered
	return result
}

func (w *DispatchWorker) deliveryFailed(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, result models.DispatchResult, reason string) models.DispatchResult {
	attempt := msg.RetryCount + 1
	result.Error = reason
	if attempt >= w.cfg.MaxRetries {
		result.RetryCount = attempt
		return w.failTerminal(ctx, log, msg, result, fmt.Sprintf("attempt %d failed: %s", attempt, reason))
	}

	backoff := retry.Backoff(attempt, w.cfg.BaseBackoff, w.cfg.MaxBackoff)
	next, err := w.queue.RescheduleWithBackoff(ctx, msg.ID, msg.RetryCount, backoff, reason)
	if err != nil {
		w.metrics.IncErrors()
		log.Error("failed to reschedule message", slog.Any("error", err))
		result.Outcome = models.OutcomeError
		result.Error = err.Error()
		return result
	}

	w.audit(ctx, log, msg, models.ActionMessageRetry,
		fmt.Sprintf("Attempt %d failed: %s; next attempt at %s", attempt, reason, next.UTC().Format(time.RFC3339)))
	w.metrics.IncRetried()
	log.Warn("delivery failed, retry scheduled",
		slog.String("outcome", string(models.OutcomeRetryScheduled)),
		slog.Int("retry_count", attempt),
		slog.Duration("backoff", backoff),
		slog.String("error", reason))

	result.Outcome = models.OutcomeRetryScheduled
	result.RetryCount = attempt
	result.NextAttemptAt = &next
	return result
}

func (w *DispatchWorker) failTerminal(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, result models.DispatchResult, reason string) models.DispatchResult {
	if err := w.queue.MarkFailedTerminal(ctx, msg.ID, result.RetryCount, reason); err != nil {
		w.metrics.IncErrors()
		log.Error("failed to mark message failed", slog.Any("error", err))
		result.Outcome = models.OutcomeError
		result.Error = err.Error()
		return result
	}

	w.audit(ctx, log, msg, models.ActionMessageFailed,
		fmt.Sprintf("Message %s to %s permanently failed: %s", msg.ID, msg.RecipientPhone, reason))
	w.metrics.IncFailed()
	log.Warn("message permanently failed",
		slog.String("outcome", string(models.OutcomeRetryCeiling)),
		slog.String("error", reason))

	result.Outcome = models.OutcomeRetryCeiling
	result.Error = reason
	return result
}

func (w *DispatchWorker) quotaExceeded(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, result models.DispatchResult, now time.Time) models.DispatchResult {
	category := models.QuotaCategory(msg.Type)
	reason := fmt.Sprintf("daily %s limit reached", category)

	if w.cfg.QuotaPolicy == QuotaPolicyDefer {
		until := w.nextQuotaDay(now)
		if err := w.queue.Defer(ctx, msg.ID, until, reason); err != nil {
			w.metrics.IncErrors()
			log.Error("failed to defer message", slog.Any("error", err))
			result.Outcome = models.OutcomeError
			result.Error = err.Error()
			return result
		}
		w.audit(ctx, log, msg, models.ActionMessageDeferred,
			fmt.Sprintf("Message %s deferred to %s", msg.ID, until.UTC().Format(time.RFC3339)))
		result.NextAttemptAt = &until
	} else if err := w.queue.MarkFailedTerminal(ctx, msg.ID, msg.RetryCount, reason); err != nil {
		w.metrics.IncErrors()
		log.Error("failed to drop message over quota", slog.Any("error", err))
		result.Outcome = models.OutcomeError
		result.Error = err.Error()
		return result
	}

	w.audit(ctx, log, msg, models.ActionLimitReached,
		fmt.Sprintf("Daily %s limit reached for salon %s", category, msg.SalonID))
	w.metrics.IncQuotaExceeded()
	log.Info("daily limit reached",
		slog.String("outcome", string(models.OutcomeQuotaExceeded)),
		slog.String("policy", w.cfg.QuotaPolicy))

	result.Outcome = models.OutcomeQuotaExceeded
	result.Error = reason
	return result
}

// abortClaim puts a claimed row back after a store failure so it does not sit
// in processing. No retry is consumed.
func (w *DispatchWorker) abortClaim(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, result models.DispatchResult, cause error) models.DispatchResult {
	w.metrics.IncErrors()
	log.Error("dispatch aborted", slog.Any("error", cause))

	until := w.now().Add(w.cfg.BaseBackoff)
	if err := w.queue.Defer(ctx, msg.ID, until, cause.Error()); err != nil {
		log.Error("failed to release claimed message", slog.Any("error", err))
	} else {
		result.NextAttemptAt = &until
	}

	result.Outcome = models.OutcomeError
	result.Error = cause.Error()
	return result
}

func (w *DispatchWorker) nextQuotaDay(now time.Time) time.Time {
	local := now.In(w.cfg.QuotaLocation)
	y, m, d := local.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, w.cfg.QuotaLocation)
	if w.cfg.DeferJitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(w.cfg.DeferJitter))))
	}
	return next
}

func (w *DispatchWorker) audit(ctx context.Context, log *slog.Logger, msg *models.QueuedMessage, action, details string) {
	entry := &models.AuditLog{
		SalonID:  msg.SalonID,
		Action:   action,
		Details:  details,
		Category: msg.Type,
	}
	if err := w.history.Record(ctx, entry); err != nil {
		w.bookkeepingError(log, "record "+action, err)
	}
}

func (w *DispatchWorker) bookkeepingError(log *slog.Logger, op string, err error) {
	w.metrics.IncBookkeepingErrors()
	log.Error("bookkeeping failed", slog.String("op", op), slog.Any("error", err))
}

func failureReason(res *SendResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res == nil {
		return "gateway returned no result"
	}
	return fmt.Sprintf("gateway returned status %d", res.StatusCode)
}
