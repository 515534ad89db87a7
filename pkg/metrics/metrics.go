package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Collector tracks dispatch outcomes and trigger request stats in memory.
type Collector struct {
	claimed           atomic.Int64
	delivered         atomic.Int64
	retried           atomic.Int64
	failed            atomic.Int64
	quotaExceeded     atomic.Int64
	empty             atomic.Int64
	errors            atomic.Int64
	bookkeepingErrors atomic.Int64
	requeued          atomic.Int64

	totalRequests   atomic.Int64
	failedRequests  atomic.Int64
	totalLatencyMic atomic.Int64
	startedAt       time.Time
}

func New() *Collector {
	return &Collector{
		startedAt: time.Now(),
	}
}

func (c *Collector) IncClaimed()           { c.claimed.Add(1) }
func (c *Collector) IncDelivered()         { c.delivered.Add(1) }
func (c *Collector) IncRetried()           { c.retried.Add(1) }
func (c *Collector) IncFailed()            { c.failed.Add(1) }
func (c *Collector) IncQuotaExceeded()     { c.quotaExceeded.Add(1) }
func (c *Collector) IncEmpty()             { c.empty.Add(1) }
func (c *Collector) IncErrors()            { c.errors.Add(1) }
func (c *Collector) IncBookkeepingErrors() { c.bookkeepingErrors.Add(1) }
func (c *Collector) AddRequeued(n int64)   { c.requeued.Add(n) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Claimed           int64 `json:"claimed"`
	Delivered         int64 `json:"delivered"`
	Retried           int64 `json:"retried"`
	Failed            int64 `json:"failed"`
	QuotaExceeded     int64 `json:"quota_exceeded"`
	Empty             int64 `json:"empty"`
	Errors            int64 `json:"errors"`
	BookkeepingErrors int64 `json:"bookkeeping_errors"`
	Requeued          int64 `json:"requeued"`
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Claimed:           c.claimed.Load(),
		Delivered:         c.delivered.Load(),
		Retried:           c.retried.Load(),
		Failed:            c.failed.Load(),
		QuotaExceeded:     c.quotaExceeded.Load(),
		Empty:             c.empty.Load(),
		Errors:            c.errors.Load(),
		BookkeepingErrors: c.bookkeepingErrors.Load(),
		Requeued:          c.requeued.Load(),
	}
}

// GinMiddleware records request count, failures, and aggregate latency.
func (c *Collector) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		c.totalRequests.Add(1)
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			c.failedRequests.Add(1)
		}
		c.totalLatencyMic.Add(time.Since(start).Microseconds())
	}
}

// Handler exposes the metrics in a simple JSON form.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs := c.totalRequests.Load()
		latency := c.totalLatencyMic.Load()
		var avgMicros int64
		if reqs > 0 {
			avgMicros = latency / reqs
		}

		payload := map[string]interface{}{
			"dispatch":           c.Snapshot(),
			"requests_total":     reqs,
			"requests_failed":    c.failedRequests.Load(),
			"avg_latency_micros": avgMicros,
			"uptime_seconds":     int64(time.Since(c.startedAt).Seconds()),
			"timestamp":          time.Now().UTC(),
			"success":            true,
			"message":            "whatsapp dispatcher metrics snapshot",
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	})
}
