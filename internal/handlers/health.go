package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports liveness and uptime.
func HealthCheck(started time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondSuccess(c, "whatsapp dispatcher healthy", gin.H{
			"status":         "ok",
			"uptime_seconds": int(time.Since(started).Seconds()),
			"timestamp":      time.Now().UTC(),
		})
	}
}
