package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
)

type fakeDispatcher struct {
	result    models.DispatchResult
	summary   models.BatchSummary
	batchSize int
	swept     int
	sweepErr  error
}

func (f *fakeDispatcher) RunOnce(context.Context) models.DispatchResult { return f.result }

func (f *fakeDispatcher) RunBatch(_ context.Context, n int) models.BatchSummary {
	f.batchSize = n
	return f.summary
}

func (f *fakeDispatcher) Sweep(context.Context) (int, error) { return f.swept, f.sweepErr }

type fakeUsage struct {
	date string
	err  error
}

func (f *fakeUsage) Usage(_ context.Context, salonID, date string) (*models.QuotaUsage, error) {
	f.date = date
	if f.err != nil {
		return nil, f.err
	}
	return &models.QuotaUsage{SalonID: salonID, Date: date, Used: map[string]int{"reminder": 3}, Caps: map[string]int{"reminder": 50}}, nil
}

type fakeAudit struct {
	action string
	limit  int
}

func (f *fakeAudit) ListAudit(_ context.Context, salonID, action string, limit int) ([]models.AuditLog, error) {
	f.action, f.limit = action, limit
	return []models.AuditLog{{ID: "a1", SalonID: salonID, Action: models.ActionWhatsAppSent}}, nil
}

func newTestRouter(d *fakeDispatcher, u *fakeUsage, a *fakeAudit) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(requestIDKey, "req-1") })
	log := logger.Discard()
	dh := NewDispatchHandler(d, 10, log)
	qh := NewQuotaHandler(u, a, func() string { return "2025-03-10" }, log)
	r.POST("/run", dh.Run)
	r.POST("/batch", dh.Batch)
	r.POST("/sweep", dh.Sweep)
	r.GET("/quota/:salon_id", qh.GetUsage)
	r.GET("/audit/:salon_id", qh.ListAudit)
	r.GET("/health", HealthCheck(time.Now()))
	return r
}

func do(r *gin.Engine, method, path string) (*httptest.ResponseRecorder, models.ResponseEnvelope) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var env models.ResponseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestRunMapsOutcomeToStatus(t *testing.T) {
	cases := []struct {
		outcome models.Outcome
		status  int
		success bool
	}{
		{models.OutcomeDelivered, http.StatusOK, true},
		{models.OutcomeEmpty, http.StatusOK, true},
		{models.OutcomeQuotaExceeded, http.StatusTooManyRequests, false},
		{models.OutcomeRetryCeiling, http.StatusTooManyRequests, false},
		{models.OutcomeRetryScheduled, http.StatusInternalServerError, false},
		{models.OutcomeError, http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		d := &fakeDispatcher{result: models.DispatchResult{Outcome: tc.outcome, MessageID: "m1"}}
		rec, env := do(newTestRouter(d, &fakeUsage{}, &fakeAudit{}), http.MethodPost, "/run")
		if rec.Code != tc.status || env.Success != tc.success || env.Message != string(tc.outcome) {
			t.Fatalf("%s: got status %d envelope %+v", tc.outcome, rec.Code, env)
		}
		if env.RequestID != "req-1" {
			t.Fatalf("%s: expected request id in envelope, got %q", tc.outcome, env.RequestID)
		}
	}
}

func TestBatchValidatesAndClampsSize(t *testing.T) {
	d := &fakeDispatcher{summary: models.BatchSummary{Attempted: 1, Counts: map[models.Outcome]int{models.OutcomeEmpty: 1}}}
	r := newTestRouter(d, &fakeUsage{}, &fakeAudit{})

	if rec, _ := do(r, http.MethodPost, "/batch?size=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad size, got %d", rec.Code)
	}
	if rec, _ := do(r, http.MethodPost, "/batch?size=500"); rec.Code != http.StatusOK || d.batchSize != 10 {
		t.Fatalf("expected clamped batch of 10, got status %d size %d", rec.Code, d.batchSize)
	}
	if _, _ = do(r, http.MethodPost, "/batch"); d.batchSize != 1 {
		t.Fatalf("expected default size 1, got %d", d.batchSize)
	}

	d.summary = models.BatchSummary{Attempted: 2, Counts: map[models.Outcome]int{models.OutcomeError: 1, models.OutcomeDelivered: 1}}
	rec, env := do(r, http.MethodPost, "/batch?size=2")
	if rec.Code != http.StatusInternalServerError || env.Success || env.Error != "1 invocations failed" {
		t.Fatalf("expected 500 when an invocation errored, got %d %+v", rec.Code, env)
	}
}

func TestSweep(t *testing.T) {
	d := &fakeDispatcher{swept: 3}
	r := newTestRouter(d, &fakeUsage{}, &fakeAudit{})
	rec, env := do(r, http.MethodPost, "/sweep")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected ok sweep, got %d", rec.Code)
	}

	d.sweepErr = errors.New("db down")
	if rec, _ := do(r, http.MethodPost, "/sweep"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetUsage(t *testing.T) {
	u := &fakeUsage{}
	r := newTestRouter(&fakeDispatcher{}, u, &fakeAudit{})

	rec, env := do(r, http.MethodGet, "/quota/s1")
	if rec.Code != http.StatusOK || !env.Success || u.date != "2025-03-10" {
		t.Fatalf("expected today's usage, got %d date=%s", rec.Code, u.date)
	}
	if _, _ = do(r, http.MethodGet, "/quota/s1?date=2025-02-01"); u.date != "2025-02-01" {
		t.Fatalf("expected explicit date, got %s", u.date)
	}
	if rec, _ := do(r, http.MethodGet, "/quota/s1?date=yesterday"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}

	u.err = errors.New("boom")
	if rec, _ := do(r, http.MethodGet, "/quota/s1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestListAudit(t *testing.T) {
	a := &fakeAudit{}
	r := newTestRouter(&fakeDispatcher{}, &fakeUsage{}, a)

	rec, _ := do(r, http.MethodGet, "/audit/s1?action=limit_reached&limit=5")
	if rec.Code != http.StatusOK || a.action != models.ActionLimitReached || a.limit != 5 {
		t.Fatalf("unexpected call status=%d action=%s limit=%d", rec.Code, a.action, a.limit)
	}
	if rec, _ := do(r, http.MethodGet, "/audit/s1?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	rec, env := do(newTestRouter(&fakeDispatcher{}, &fakeUsage{}, &fakeAudit{}), http.MethodGet, "/health")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("unexpected health response %d %+v", rec.Code, env)
	}
}
