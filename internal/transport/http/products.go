package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cimillas/flashsale/internal/app"
)

type ProductReader interface {
	GetProduct(ctx context.Context, id int64) (app.ProductView, error)
}

// HandleGetProduct returns a product with its advisory available stock.
func HandleGetProduct(svc ProductReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(c, http.StatusBadRequest, codeInvalidID, "invalid id")
			return
		}

		view, err := svc.GetProduct(c.Request.Context(), id)
		if err != nil {
			writeDomainError(c, err)
			return
		}

		c.JSON(http.StatusOK, dataResponse{Data: productResponse{
			ID:             view.Product.ID,
			Name:           view.Product.Name,
			Price:          view.Product.UnitPrice.StringFixed(2),
			TotalStock:     view.Product.TotalStock,
			AvailableStock: view.AvailableStock,
			CreatedAt:      view.Product.CreatedAt,
		}})
	}
}

type productResponse struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Price          string    `json:"price"`
	TotalStock     int       `json:"total_stock"`
	AvailableStock int       `json:"available_stock"`
	CreatedAt      time.Time `json:"created_at"`
}
