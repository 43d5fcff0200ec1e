package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cimillas/flashsale/internal/domain"
)

const (
	codeMethodNotAllowed    = "method_not_allowed"
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidID           = "invalid_id"
	codeInvalidQuantity     = "invalid_quantity"
	codeInvalidHoldToken    = "invalid_hold_token"
	codeInvalidPayload      = "invalid_payload"
	codeIdempotencyRequired = "idempotency_key_required"
	codeIdempotencyConflict = "idempotency_conflict"
	codeInsufficientStock   = "insufficient_stock"
	codeProductNotFound     = "product_not_found"
	codeHoldNotFound        = "hold_not_found"
	codeHoldInvalid         = "hold_invalid"
	codeHoldExpired         = "hold_expired"
	codeAmountMismatch      = "amount_mismatch"
	codeCurrencyMismatch    = "currency_mismatch"
	codeOrderSettled        = "order_already_settled"
	codeTemporarilyFailed   = "temporarily_unavailable"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	AvailableStock *int   `json:"available_stock,omitempty"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps a service error to a status and a stable code.
func writeDomainError(c *gin.Context, err error) {
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		available := stock.Available
		c.AbortWithStatusJSON(http.StatusConflict, errorResponse{
			Error:          "insufficient stock available",
			Code:           codeInsufficientStock,
			AvailableStock: &available,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(c, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(c, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, domain.ErrInvalidHoldToken):
		writeError(c, http.StatusBadRequest, codeInvalidHoldToken, err.Error())
	case errors.Is(err, domain.ErrInvalidPayload):
		writeError(c, http.StatusBadRequest, codeInvalidPayload, err.Error())
	case errors.Is(err, domain.ErrIdempotencyKeyRequired):
		writeError(c, http.StatusBadRequest, codeIdempotencyRequired, err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		writeError(c, http.StatusNotFound, codeProductNotFound, err.Error())
	case errors.Is(err, domain.ErrHoldNotFound):
		writeError(c, http.StatusNotFound, codeHoldNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		writeError(c, http.StatusConflict, codeInsufficientStock, err.Error())
	case errors.Is(err, domain.ErrHoldInvalid):
		writeError(c, http.StatusConflict, codeHoldInvalid, err.Error())
	case errors.Is(err, domain.ErrHoldExpired):
		writeError(c, http.StatusConflict, codeHoldExpired, err.Error())
	case errors.Is(err, domain.ErrIdempotencyConflict):
		writeError(c, http.StatusConflict, codeIdempotencyConflict, err.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		writeError(c, http.StatusUnprocessableEntity, codeAmountMismatch, err.Error())
	case errors.Is(err, domain.ErrCurrencyMismatch):
		writeError(c, http.StatusUnprocessableEntity, codeCurrencyMismatch, err.Error())
	case errors.Is(err, domain.ErrOrderAlreadySettled):
		writeError(c, http.StatusUnprocessableEntity, codeOrderSettled, err.Error())
	case errors.Is(err, domain.ErrTransient):
		c.Header("Retry-After", "1")
		writeError(c, http.StatusServiceUnavailable, codeTemporarilyFailed, "temporarily unavailable, retry")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
