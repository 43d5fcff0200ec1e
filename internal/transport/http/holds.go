package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cimillas/flashsale/internal/app"
	"github.com/cimillas/flashsale/internal/domain"
)

// HoldReserver is the minimal interface needed to create a hold.
type HoldReserver interface {
	Reserve(ctx context.Context, in app.ReserveInput) (domain.Hold, error)
}

// HoldSweeper releases expired holds.
type HoldSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// HandleCreateHold returns an HTTP handler for creating holds.
func HandleCreateHold(svc HoldReserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createHoldRequest
		if !decodeJSON(c, &req) {
			return
		}

		hold, err := svc.Reserve(c.Request.Context(), app.ReserveInput{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
		})
		if err != nil {
			writeDomainError(c, err)
			return
		}

		c.JSON(http.StatusCreated, dataResponse{Data: createHoldResponse{
			HoldID:    hold.ID,
			HoldToken: hold.Token,
			ProductID: hold.ProductID,
			Quantity:  hold.Quantity,
			ExpiresAt: hold.ExpiresAt,
		}})
	}
}

// HandleExpireHolds runs one expiration sweep on demand.
func HandleExpireHolds(svc HoldSweeper) gin.HandlerFunc {
	return func(c *gin.Context) {
		released, err := svc.Sweep(c.Request.Context())
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"released": released})
	}
}

type createHoldRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type createHoldResponse struct {
	HoldID    int64     `json:"hold_id"`
	HoldToken string    `json:"hold_token"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}
