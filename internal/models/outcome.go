package models

import (
	"net/http"
	"time"
)

// Outcome is the result of one dispatch invocation.
type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeEmpty          Outcome = "empty"
	OutcomeQuotaExceeded  Outcome = "quota_exceeded"
	OutcomeRetryCeiling   Outcome = "retry_ceiling"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
	OutcomeError          Outcome = "error"
)

// HTTPStatus maps an outcome onto the trigger response code.
func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeDelivered, OutcomeEmpty:
		return http.StatusOK
	case OutcomeQuotaExceeded, OutcomeRetryCeiling:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// DispatchResult describes what a single invocation did.
type DispatchResult struct {
	Outcome       Outcome    `json:"outcome"`
	MessageID     string     `json:"message_id,omitempty"`
	SalonID       string     `json:"tenant_id,omitempty"`
	Category      string     `json:"category,omitempty"`
	RetryCount    int        `json:"retry_count"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// BatchSummary aggregates a RunBatch call.
type BatchSummary struct {
	Attempted int              `json:"attempted"`
	Counts    map[Outcome]int  `json:"counts"`
	Results   []DispatchResult `json:"results"`
}
