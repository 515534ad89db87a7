package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/handlers"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/repository"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/services"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/logger"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stack struct {
	router  *gin.Engine
	queue   *repository.QueueStore
	gateway *httptest.Server
	status  atomic.Int64
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()

	db, err := repository.OpenDatabase("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), "silent")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	queue, err := repository.NewQueueStore(db)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	ledger, err := repository.NewQuotaLedger(db, repository.NewMemoryCache(time.Minute), 1)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	history, err := repository.NewHistoryStore(db)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	s := &stack{queue: queue}
	s.status.Store(http.StatusOK)
	s.gateway = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(s.status.Load()))
	}))
	t.Cleanup(s.gateway.Close)

	gateway := services.NewGatewayClient(services.GatewaySettings{URL: s.gateway.URL, APIKey: "gw"}, log)
	collector := metrics.New()
	worker := services.NewDispatchWorker(queue, ledger, gateway, services.NewAuditSink(history, nil, log), collector, log, services.WorkerConfig{})

	today := func() string { return worker.QuotaDate(time.Now()) }
	s.router = gin.New()
	SetupRoutes(s.router,
		handlers.NewDispatchHandler(worker, 10, log),
		handlers.NewQuotaHandler(ledger, history, today, log),
		collector, log,
		Options{TriggerToken: "trigger", Started: time.Now()})
	return s
}

func (s *stack) call(method, path string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer trigger")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *stack) enqueue(t *testing.T, salonID string) {
	t.Helper()
	err := s.queue.Enqueue(context.Background(), &models.QueuedMessage{
		SalonID:        salonID,
		RecipientPhone: "+15550001111",
		Content:        "hi",
		Type:           models.CategoryReminder,
		ScheduledFor:   time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestDispatchEndpointsRequireAuth(t *testing.T) {
	s := newStack(t)
	for _, path := range []string{"/v1/dispatch/run", "/v1/dispatch/batch", "/v1/dispatch/sweep"} {
		if rec := s.call(http.MethodPost, path, false); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
	if rec := s.call(http.MethodGet, "/health", false); rec.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", rec.Code)
	}
	if rec := s.call(http.MethodGet, "/metrics", false); rec.Code != http.StatusOK {
		t.Fatalf("metrics should be public, got %d", rec.Code)
	}
}

func TestRunEndToEnd(t *testing.T) {
	s := newStack(t)

	if rec := s.call(http.MethodPost, "/v1/dispatch/run", true); rec.Code != http.StatusOK {
		t.Fatalf("empty queue should be 200, got %d", rec.Code)
	}

	// default cap of 1 per category: the second message is over quota
	s.enqueue(t, "s1")
	s.enqueue(t, "s1")
	if rec := s.call(http.MethodPost, "/v1/dispatch/run", true); rec.Code != http.StatusOK {
		t.Fatalf("expected delivery, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := s.call(http.MethodPost, "/v1/dispatch/run", true); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over quota, got %d", rec.Code)
	}

	s.status.Store(http.StatusServiceUnavailable)
	s.enqueue(t, "s2")
	rec := s.call(http.MethodPost, "/v1/dispatch/run", true)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on gateway failure, got %d", rec.Code)
	}
	var env struct {
		Data models.DispatchResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Outcome != models.OutcomeRetryScheduled || env.Data.RetryCount != 1 || env.Data.NextAttemptAt == nil {
		t.Fatalf("unexpected retry payload %+v", env.Data)
	}

	rec = s.call(http.MethodGet, "/v1/quota/s1", true)
	var usage struct {
		Data models.QuotaUsage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.Data.Used[models.CategoryReminder] != 1 || usage.Data.Caps[models.CategoryReminder] != 1 {
		t.Fatalf("unexpected usage %+v", usage.Data)
	}

	rec = s.call(http.MethodGet, "/v1/audit/s1?action=limit_reached", true)
	var audit struct {
		Data []models.AuditLog `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &audit); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(audit.Data) != 1 {
		t.Fatalf("expected one limit_reached entry, got %d", len(audit.Data))
	}
}
