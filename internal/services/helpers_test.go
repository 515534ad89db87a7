package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/repository"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/logger"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentCall struct {
	To, Msg, Type string
}

// fakeGateway answers with a fixed status code and records every call.
type fakeGateway struct {
	mu     sync.Mutex
	status int
	err    error
	calls  []sentCall
	// onSend runs before the gateway answers, while the send is in flight.
	onSend func()
}

func (g *fakeGateway) Send(_ context.Context, recipient, content, category string) (*SendResult, error) {
	if g.onSend != nil {
		g.onSend()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, sentCall{To: recipient, Msg: content, Type: category})
	if g.err != nil {
		return &SendResult{}, g.err
	}
	status := g.status
	if status == 0 {
		status = http.StatusOK
	}
	res := &SendResult{OK: status >= 200 && status < 300, StatusCode: status}
	if !res.OK {
		return res, fmt.Errorf("%w: status %d", ErrGatewayRejected, status)
	}
	return res, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type harness struct {
	db      *gorm.DB
	queue   *repository.QueueStore
	ledger  *repository.QuotaLedger
	history *repository.HistoryStore
	gateway *fakeGateway
	metrics *metrics.Collector
	clock   *testClock
	worker  *DispatchWorker
}

func newHarness(t *testing.T, cfg WorkerConfig) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.OpenDatabase("sqlite", dsn, "silent")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := &testClock{t: t0}
	queue, err := repository.NewQueueStore(db)
	if err != nil {
		t.Fatalf("queue store: %v", err)
	}
	queue.WithClock(clock.Now)
	ledger, err := repository.NewQuotaLedger(db, nil, repository.DefaultDailyLimit)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	history, err := repository.NewHistoryStore(db)
	if err != nil {
		t.Fatalf("history store: %v", err)
	}

	gateway := &fakeGateway{}
	collector := metrics.New()
	log := logger.Discard()
	worker := NewDispatchWorker(queue, ledger, gateway, NewAuditSink(history, nil, log), collector, log, cfg).
		WithClock(clock.Now)

	return &harness{
		db:      db,
		queue:   queue,
		ledger:  ledger,
		history: history,
		gateway: gateway,
		metrics: collector,
		clock:   clock,
		worker:  worker,
	}
}

func (h *harness) enqueue(t *testing.T, salonID, category string) *models.QueuedMessage {
	t.Helper()
	msg := &models.QueuedMessage{
		SalonID:        salonID,
		RecipientPhone: "+15550001111",
		Content:        "Your appointment is tomorrow at 10:00",
		Type:           category,
		ScheduledFor:   h.clock.Now().Add(-time.Minute),
	}
	if err := h.queue.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return msg
}

func (h *harness) setCap(t *testing.T, salonID string, settings models.MarketingSettings) {
	t.Helper()
	settings.SalonID = salonID
	if err := h.db.Create(&settings).Error; err != nil {
		t.Fatalf("seed settings: %v", err)
	}
}

func (h *harness) auditCount(t *testing.T, salonID, action string) int {
	t.Helper()
	entries, err := h.history.ListAudit(context.Background(), salonID, action, 500)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	return len(entries)
}

func (h *harness) used(t *testing.T, salonID, category string) int {
	t.Helper()
	usage, err := h.ledger.Usage(context.Background(), salonID, h.worker.QuotaDate(h.clock.Now()))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	return usage.Used[models.QuotaCategory(category)]
}

func (h *harness) reserved(t *testing.T, salonID, category string) int {
	t.Helper()
	usage, err := h.ledger.Usage(context.Background(), salonID, h.worker.QuotaDate(h.clock.Now()))
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	return usage.Reserved[models.QuotaCategory(category)]
}

func intPtr(v int) *int { return &v }

// failingHistory rejects every write.
type failingHistory struct{}

func (failingHistory) Record(context.Context, *models.AuditLog) error {
	return errors.New("audit store unavailable")
}

func (failingHistory) RecordDelivery(context.Context, *models.QueuedMessage) error {
	return errors.New("messages store unavailable")
}

// brokenLedger fails every lookup.
type brokenLedger struct{}

func (brokenLedger) CheckQuota(context.Context, string, string, string) (bool, error) {
	return false, errors.New("ledger offline")
}

func (brokenLedger) Reserve(context.Context, string, string, string) (bool, error) {
	return false, errors.New("ledger offline")
}

func (brokenLedger) Commit(context.Context, string, string, string) error {
	return errors.New("ledger offline")
}

func (brokenLedger) Release(context.Context, string, string, string) error {
	return errors.New("ledger offline")
}
