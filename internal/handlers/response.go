package handlers

import (
	"fmt"
	"net/http"

	"github.com/Growva-Business/ClientBoost-by-Growva-sub000/internal/models"
	"github.com/gin-gonic/gin"
)

// requestIDKey is set by the request id middleware.
const requestIDKey = "request_id"

// respond writes the envelope. Anything below 400 counts as success.
func respond(c *gin.Context, status int, message string, data interface{}, errMsg string) {
	c.JSON(status, models.ResponseEnvelope{
		Success:   status < http.StatusBadRequest,
		Message:   message,
		Data:      data,
		Error:     errMsg,
		RequestID: c.GetString(requestIDKey),
	})
}

func respondSuccess(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, message, data, "")
}

func respondError(c *gin.Context, status int, message string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	respond(c, status, message, nil, errMsg)
}

func respondValidationError(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "validation failed", err)
}

// respondResult maps one invocation outcome onto its status code.
func respondResult(c *gin.Context, res models.DispatchResult) {
	respond(c, res.Outcome.HTTPStatus(), string(res.Outcome), res, res.Error)
}

// respondBatch fails the whole batch when any invocation hit an error.
func respondBatch(c *gin.Context, summary models.BatchSummary) {
	if n := summary.Counts[models.OutcomeError]; n > 0 {
		respond(c, http.StatusInternalServerError, "batch finished with errors", summary, fmt.Sprintf("%d invocations failed", n))
		return
	}
	respond(c, http.StatusOK, "batch finished", summary, "")
}
