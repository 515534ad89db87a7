package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHandlerReportsDispatchCounters(t *testing.T) {
	c := New()
	c.IncClaimed()
	c.IncClaimed()
	c.IncDelivered()
	c.IncQuotaExceeded()
	c.AddRequeued(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body struct {
		Dispatch Snapshot `json:"dispatch"`
		Success  bool     `json:"success"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Fatal("expected success flag")
	}
	if body.Dispatch.Claimed != 2 || body.Dispatch.Delivered != 1 || body.Dispatch.QuotaExceeded != 1 || body.Dispatch.Requeued != 3 {
		t.Fatalf("unexpected snapshot: %+v", body.Dispatch)
	}
}

func TestGinMiddlewareCountsFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New()
	r := gin.New()
	r.Use(c.GinMiddleware())
	r.GET("/ok", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	r.GET("/boom", func(ctx *gin.Context) { ctx.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/ok", "/boom", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := c.totalRequests.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
	if got := c.failedRequests.Load(); got != 2 {
		t.Fatalf("expected 2 failures, got %d", got)
	}
}
