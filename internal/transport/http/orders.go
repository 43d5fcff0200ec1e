package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cimillas/flashsale/internal/domain"
)

// OrderCreator is the minimal interface needed to turn a hold into an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, token string) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler for creating orders from holds.
func HandleCreateOrder(svc OrderCreator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createOrderRequest
		if !decodeJSON(c, &req) {
			return
		}

		order, err := svc.CreateOrder(c.Request.Context(), req.HoldToken)
		if err != nil {
			writeDomainError(c, err)
			return
		}

		c.JSON(http.StatusCreated, dataResponse{Data: createOrderResponse{
			OrderID:   order.ID,
			HoldID:    order.HoldID,
			ProductID: order.ProductID,
			Quantity:  order.Quantity,
			Amount:    order.Amount.StringFixed(2),
			Status:    string(order.Status),
			CreatedAt: order.CreatedAt,
		}})
	}
}

type createOrderRequest struct {
	HoldToken string `json:"hold_token"`
}

type createOrderResponse struct {
	OrderID   int64     `json:"order_id"`
	HoldID    int64     `json:"hold_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Amount    string    `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
