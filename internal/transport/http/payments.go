package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cimillas/flashsale/internal/app"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "X-Idempotent-Replayed"
)

type PaymentSettler interface {
	Settle(ctx context.Context, key string, payload []byte) (app.SettleResult, error)
}

type PendingReconciler interface {
	Reconcile(ctx context.Context) (app.ReconcileResult, error)
}

// HandlePaymentWebhook settles a payment notification. The stored response
// body is written back verbatim, including on replays.
func HandlePaymentWebhook(svc PaymentSettler) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
		if err != nil {
			writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		res, err := svc.Settle(c.Request.Context(), c.GetHeader(idempotencyHeader), payload)
		if err != nil && len(res.Body) == 0 {
			writeDomainError(c, err)
			return
		}

		if res.Replayed {
			c.Header(replayedHeader, "true")
		}
		status := http.StatusOK
		if res.Response.Status == app.SettlementRejected {
			status = http.StatusUnprocessableEntity
		}
		c.Data(status, "application/json", res.Body)
	}
}

// HandleProcessPending reconciles queued notifications on demand. Failures of
// individual rows are logged and the counts are still returned.
func HandleProcessPending(svc PendingReconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.Reconcile(c.Request.Context())
		if err != nil && res == (app.ReconcileResult{}) {
			writeDomainError(c, err)
			return
		}
		if err != nil {
			_ = c.Error(err)
		}
		c.JSON(http.StatusOK, processPendingResponse{
			Processed: res.Processed,
			Rejected:  res.Rejected,
			Remaining: res.Remaining,
		})
	}
}

type processPendingResponse struct {
	Processed int `json:"processed"`
	Rejected  int `json:"rejected"`
	Remaining int `json:"remaining"`
}
